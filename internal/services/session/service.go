package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/protocol/envelope"
)

// HistoryLimit is the page size used when loading a conversation. It matches
// the server's maximum query limit.
const HistoryLimit = 500

// Options identify the local user to the controller.
type Options struct {
	UserID    domain.UserID
	DeviceID  domain.DeviceID
	ServerURL string
}

// PlaintextExport is a conversation decrypted on this device.
type PlaintextExport struct {
	Conversation domain.Conversation       `json:"conversation"`
	Messages     []domain.DecryptedMessage `json:"messages"`
	ExportedAt   time.Time                 `json:"exportedAt"`
}

// Controller orchestrates bootstrap, join, send and receive for one user.
type Controller struct {
	identity domain.IdentityService
	relay    domain.RelayClient
	profiles domain.ProfileStore
	logger   *zap.Logger
	opts     Options

	mu            sync.RWMutex
	realtime      domain.RealtimeClient
	keys          *domain.KeyPair
	conversations map[domain.ConversationID]domain.Conversation
	participants  map[domain.ConversationID][]domain.Participant
	threads       map[domain.ConversationID]*thread
	online        []domain.UserID
}

// New constructs a Controller. profiles may be nil.
func New(
	identity domain.IdentityService,
	relay domain.RelayClient,
	profiles domain.ProfileStore,
	opts Options,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		identity:      identity,
		relay:         relay,
		profiles:      profiles,
		opts:          opts,
		logger:        logger.With(zap.String("component", "session"), zap.String("userID", opts.UserID.String())),
		conversations: make(map[domain.ConversationID]domain.Conversation),
		participants:  make(map[domain.ConversationID][]domain.Participant),
		threads:       make(map[domain.ConversationID]*thread),
	}
}

// SetRealtime attaches the realtime connection used by Join and Leave.
func (c *Controller) SetRealtime(rt domain.RealtimeClient) {
	c.mu.Lock()
	c.realtime = rt
	c.mu.Unlock()
}

// Bootstrap loads or creates the device keypair, registers its public half
// with the server and records the account profile.
func (c *Controller) Bootstrap(ctx context.Context, passphrase string) (domain.KeyPair, bool, error) {
	kp, created, err := c.identity.LoadOrCreateKeyPair(passphrase, c.opts.DeviceID)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	if err := c.relay.RegisterKey(ctx, domain.PublicKeyRecord{
		UserID:    c.opts.UserID,
		DeviceID:  kp.DeviceID,
		PublicKey: kp.Public.String(),
		Algorithm: kp.Algorithm,
	}); err != nil {
		return domain.KeyPair{}, false, err
	}

	if c.profiles != nil {
		if err := c.profiles.SaveProfile(domain.AccountProfile{
			ServerURL:    c.opts.ServerURL,
			UserID:       c.opts.UserID,
			DeviceID:     kp.DeviceID,
			Fingerprint:  crypto.Fingerprint(kp.Public),
			RegisteredAt: time.Now().UTC(),
		}); err != nil {
			return domain.KeyPair{}, false, err
		}
	}

	c.mu.Lock()
	c.keys = &kp
	c.mu.Unlock()

	c.logger.Info("keys ready",
		zap.Bool("created", created),
		zap.String("deviceID", kp.DeviceID.String()),
	)
	return kp, created, nil
}

// Ready reports whether the keypair has been bootstrapped.
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys != nil
}

// Conversations refreshes and returns the caller's conversations.
func (c *Controller) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	convs, err := c.relay.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, conv := range convs {
		c.conversations[conv.ID] = conv
	}
	c.mu.Unlock()
	return convs, nil
}

// CreateDirect opens the direct conversation with peer.
func (c *Controller) CreateDirect(
	ctx context.Context,
	peer domain.UserID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	conv, err := c.relay.CreateDirect(ctx, peer, policy)
	if err != nil {
		return domain.Conversation{}, err
	}
	c.upsert(conv)
	return conv, nil
}

// CreateTeam opens a conversation for team.
func (c *Controller) CreateTeam(
	ctx context.Context,
	team domain.TeamID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	conv, err := c.relay.CreateTeam(ctx, team, policy)
	if err != nil {
		return domain.Conversation{}, err
	}
	c.upsert(conv)
	return conv, nil
}

// UpdateRetention changes the policy for future messages of id.
func (c *Controller) UpdateRetention(
	ctx context.Context,
	id domain.ConversationID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	conv, err := c.relay.UpdateRetention(ctx, id, policy)
	if err != nil {
		return domain.Conversation{}, err
	}
	c.upsert(conv)
	return conv, nil
}

// Join loads membership and history for id, merges the history into the
// local thread and subscribes to realtime updates. It returns the thread.
func (c *Controller) Join(ctx context.Context, id domain.ConversationID) ([]domain.DecryptedMessage, error) {
	if err := c.refreshParticipants(ctx, id); err != nil {
		return nil, err
	}
	if err := c.loadHistory(ctx, id); err != nil {
		return nil, err
	}

	c.mu.RLock()
	rt := c.realtime
	c.mu.RUnlock()
	if rt != nil {
		if err := rt.Join(ctx, id); err != nil {
			return nil, err
		}
	}
	return c.Messages(id), nil
}

// loadHistory pages through every visible message of id, oldest first, so
// the newest messages are loaded however long the conversation is. From is
// inclusive; the overlap at each page boundary is dropped by id.
func (c *Controller) loadHistory(ctx context.Context, id domain.ConversationID) error {
	var (
		seen   = make(map[domain.MessageID]struct{})
		cursor time.Time
	)
	for {
		page, err := c.relay.FetchMessages(ctx, id, domain.MessageQuery{From: cursor, Limit: HistoryLimit})
		if err != nil {
			return err
		}
		fresh := 0
		for _, m := range page {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			c.merge(c.decrypt(m))
			fresh++
		}
		if fresh == 0 || len(page) < HistoryLimit {
			return nil
		}
		cursor = page[len(page)-1].CreatedAt
	}
}

// Leave unsubscribes from realtime updates for id. The local thread is kept.
func (c *Controller) Leave(ctx context.Context, id domain.ConversationID) error {
	c.mu.RLock()
	rt := c.realtime
	c.mu.RUnlock()
	if rt == nil {
		return nil
	}
	return rt.Leave(ctx, id)
}

// Send encrypts plaintext for every other participant and the sender, sends
// it, and appends it to the local thread.
func (c *Controller) Send(ctx context.Context, id domain.ConversationID, plaintext string) (domain.Message, error) {
	const op = "session.Send"

	c.mu.RLock()
	keys := c.keys
	c.mu.RUnlock()
	if keys == nil {
		return domain.Message{}, types.KeyUnavailable(op)
	}
	if strings.TrimSpace(plaintext) == "" {
		return domain.Message{}, types.Validation(op, "message is empty")
	}

	parts, err := c.participantsFor(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	recipients, pubs, err := c.recipientKeys(op, parts)
	if err != nil {
		return domain.Message{}, err
	}

	payload, err := envelope.Encrypt(*keys, c.opts.UserID, recipients, func(u domain.UserID) (domain.X25519Public, bool) {
		pub, ok := pubs[u]
		return pub, ok
	}, []byte(plaintext))
	if err != nil {
		return domain.Message{}, err
	}

	m, err := c.relay.SendMessage(ctx, domain.PersistRequest{
		ConversationID:  id,
		Ciphertext:      payload.Ciphertext,
		IV:              payload.IV,
		AuthTag:         payload.AuthTag,
		Recipients:      recipients,
		Envelopes:       payload.Envelopes,
		SenderPublicKey: payload.SenderPublicKey,
	})
	if err != nil {
		return domain.Message{}, err
	}

	c.merge(domain.DecryptedMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Plaintext:      plaintext,
		CreatedAt:      m.CreatedAt,
		ExpiresAt:      m.ExpiresAt,
	})
	c.touch(id, m.CreatedAt)
	return m, nil
}

// HandleNewMessage decrypts a pushed message and merges it into its thread.
// added is false when the message was already present.
func (c *Controller) HandleNewMessage(ev types.NewMessageEvent) (msg domain.DecryptedMessage, added bool) {
	msg = c.decrypt(ev.Message())
	if msg.Err != nil {
		c.logger.Warn("cannot decrypt pushed message",
			zap.String("conversationID", ev.ConversationID.String()),
			zap.String("messageID", ev.MessageID.String()),
			zap.Error(msg.Err),
		)
	}
	added = c.merge(msg)
	if added {
		c.touch(ev.ConversationID, ev.CreatedAt)
	}
	return msg, added
}

// HandlePresence records the server's online set.
func (c *Controller) HandlePresence(ev types.PresenceEvent) {
	c.mu.Lock()
	c.online = append([]domain.UserID(nil), ev.OnlineUserIDs...)
	c.mu.Unlock()
}

// Online returns the last online set received from the server.
func (c *Controller) Online() []domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.UserID(nil), c.online...)
}

// Messages returns the local thread of id ordered by creation time.
func (c *Controller) Messages(id domain.ConversationID) []domain.DecryptedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.threads[id]
	if t == nil {
		return nil
	}
	return append([]domain.DecryptedMessage(nil), t.items...)
}

// Search runs a metadata query on the server and decrypts the results.
// Results are not merged into the local thread.
func (c *Controller) Search(
	ctx context.Context,
	id domain.ConversationID,
	q domain.MessageQuery,
) ([]domain.DecryptedMessage, error) {
	msgs, err := c.relay.FetchMessages(ctx, id, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, c.decrypt(m))
	}
	sortMessages(out)
	return out, nil
}

// Export fetches every visible message of id and decrypts it locally.
func (c *Controller) Export(ctx context.Context, id domain.ConversationID) (PlaintextExport, error) {
	exp, err := c.relay.Export(ctx, id)
	if err != nil {
		return PlaintextExport{}, err
	}
	out := PlaintextExport{
		Conversation: exp.Conversation,
		Messages:     make([]domain.DecryptedMessage, 0, len(exp.Messages)),
		ExportedAt:   exp.ExportedAt,
	}
	for _, m := range exp.Messages {
		out.Messages = append(out.Messages, c.decrypt(m))
	}
	sortMessages(out.Messages)
	return out, nil
}

// Participants returns the cached membership of id.
func (c *Controller) Participants(id domain.ConversationID) []domain.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Participant(nil), c.participants[id]...)
}

func (c *Controller) refreshParticipants(ctx context.Context, id domain.ConversationID) error {
	parts, err := c.relay.Participants(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.participants[id] = parts
	c.mu.Unlock()
	return nil
}

func (c *Controller) participantsFor(ctx context.Context, id domain.ConversationID) ([]domain.Participant, error) {
	c.mu.RLock()
	parts, ok := c.participants[id]
	c.mu.RUnlock()
	if ok {
		return parts, nil
	}
	if err := c.refreshParticipants(ctx, id); err != nil {
		return nil, err
	}
	return c.Participants(id), nil
}

// recipientKeys returns every participant except the caller together with
// the parsed public keys that are known. At least one recipient must have a
// key; a missing key for any other recipient fails later in Encrypt.
func (c *Controller) recipientKeys(
	op string,
	parts []domain.Participant,
) ([]domain.UserID, map[domain.UserID]domain.X25519Public, error) {
	var recipients []domain.UserID
	pubs := make(map[domain.UserID]domain.X25519Public, len(parts))
	for _, p := range parts {
		if p.UserID == c.opts.UserID {
			continue
		}
		recipients = append(recipients, p.UserID)
		if p.PublicKey == "" {
			continue
		}
		pub, err := types.ParseX25519Public(p.PublicKey)
		if err != nil {
			return nil, nil, types.CryptoFailure(op, "malformed public key for "+p.UserID.String(), err)
		}
		pubs[p.UserID] = pub
	}
	if len(recipients) == 0 {
		return nil, nil, types.Validation(op, "no recipients available")
	}
	if len(pubs) == 0 {
		return nil, nil, types.CryptoFailure(op, "no recipient has a registered public key", nil)
	}
	return recipients, pubs, nil
}

func (c *Controller) decrypt(m domain.Message) domain.DecryptedMessage {
	out := domain.DecryptedMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		CreatedAt:      m.CreatedAt,
		ExpiresAt:      m.ExpiresAt,
	}
	c.mu.RLock()
	keys := c.keys
	c.mu.RUnlock()
	if keys == nil {
		out.Err = types.KeyUnavailable("session.decrypt")
		return out
	}
	pt, err := envelope.Decrypt(*keys, c.opts.UserID, m.Payload())
	if err != nil {
		out.Err = err
		return out
	}
	out.Plaintext = string(pt)
	return out
}

func (c *Controller) merge(m domain.DecryptedMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.threads[m.ConversationID]
	if t == nil {
		t = newThread()
		c.threads[m.ConversationID] = t
	}
	return t.add(m)
}

func (c *Controller) upsert(conv domain.Conversation) {
	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()
}

func (c *Controller) touch(id domain.ConversationID, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		return
	}
	if conv.LastMessageAt == nil || at.After(*conv.LastMessageAt) {
		at := at
		conv.LastMessageAt = &at
		c.conversations[id] = conv
	}
}

// thread is an ordered set of messages keyed by id.
type thread struct {
	ids   map[domain.MessageID]int
	items []domain.DecryptedMessage
}

func newThread() *thread {
	return &thread{ids: make(map[domain.MessageID]int)}
}

// add inserts m in creation order. A message already present is only
// replaced when the stored copy failed to decrypt and m did not.
func (t *thread) add(m domain.DecryptedMessage) bool {
	if i, ok := t.ids[m.ID]; ok {
		if t.items[i].Err != nil && m.Err == nil {
			t.items[i] = m
		}
		return false
	}
	t.items = append(t.items, m)
	sortMessages(t.items)
	for i, it := range t.items {
		t.ids[it.ID] = i
	}
	return true
}

func sortMessages(ms []domain.DecryptedMessage) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}
