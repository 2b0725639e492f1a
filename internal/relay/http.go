package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// HTTP is the REST client for a courier server.
type HTTP struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// NewHTTP returns a client for base that authenticates with token. A nil
// client means http.DefaultClient.
func NewHTTP(base, token string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: strings.TrimRight(base, "/"), Token: token, HTTP: client}
}

var _ domain.RelayClient = (*HTTP)(nil)

func (c *HTTP) RegisterKey(ctx context.Context, rec domain.PublicKeyRecord) error {
	body := struct {
		DeviceID  domain.DeviceID `json:"deviceId"`
		PublicKey string          `json:"publicKey"`
		Algorithm string          `json:"algorithm,omitempty"`
	}{rec.DeviceID, rec.PublicKey, rec.Algorithm}
	return c.do(ctx, http.MethodPost, "/v1/keys", body, nil)
}

func (c *HTTP) LookupKey(ctx context.Context, user domain.UserID) (domain.PublicKeyRecord, error) {
	var out domain.PublicKeyRecord
	err := c.do(ctx, http.MethodGet, "/v1/keys/"+url.PathEscape(user.String()), nil, &out)
	return out, err
}

func (c *HTTP) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &out)
	return out, err
}

func (c *HTTP) CreateDirect(
	ctx context.Context,
	peer domain.UserID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	var out domain.Conversation
	body := struct {
		ParticipantID   domain.UserID          `json:"participantId"`
		RetentionPolicy domain.RetentionPolicy `json:"retentionPolicy,omitempty"`
	}{peer, policy}
	err := c.do(ctx, http.MethodPost, "/v1/conversations/direct", body, &out)
	return out, err
}

func (c *HTTP) CreateTeam(
	ctx context.Context,
	team domain.TeamID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	var out domain.Conversation
	body := struct {
		TeamID          domain.TeamID          `json:"teamId"`
		RetentionPolicy domain.RetentionPolicy `json:"retentionPolicy,omitempty"`
	}{team, policy}
	err := c.do(ctx, http.MethodPost, "/v1/conversations/team", body, &out)
	return out, err
}

func (c *HTTP) UpdateRetention(
	ctx context.Context,
	id domain.ConversationID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	var out domain.Conversation
	body := struct {
		RetentionPolicy domain.RetentionPolicy `json:"retentionPolicy"`
	}{policy}
	err := c.do(ctx, http.MethodPatch, conversationPath(id, "retention"), body, &out)
	return out, err
}

func (c *HTTP) Participants(ctx context.Context, id domain.ConversationID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := c.do(ctx, http.MethodGet, conversationPath(id, "participants"), nil, &out)
	return out, err
}

func (c *HTTP) FetchMessages(
	ctx context.Context,
	id domain.ConversationID,
	q domain.MessageQuery,
) ([]domain.Message, error) {
	v := url.Values{}
	if q.SenderID != "" {
		v.Set("senderId", q.SenderID.String())
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := conversationPath(id, "messages")
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []domain.Message
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTP) SendMessage(ctx context.Context, req domain.PersistRequest) (domain.Message, error) {
	var out domain.Message
	err := c.do(ctx, http.MethodPost, conversationPath(req.ConversationID, "messages"), req, &out)
	return out, err
}

func (c *HTTP) Export(ctx context.Context, id domain.ConversationID) (domain.ConversationExport, error) {
	var out domain.ConversationExport
	err := c.do(ctx, http.MethodGet, conversationPath(id, "export"), nil, &out)
	return out, err
}

func conversationPath(id domain.ConversationID, tail string) string {
	return "/v1/conversations/" + url.PathEscape(id.String()) + "/" + tail
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// decodeError turns a non-2xx response into a domain error, keeping the
// server's error kind when the body carries one.
func decodeError(method, path string, resp *http.Response) error {
	op := fmt.Sprintf("relay %s %s", strings.ToLower(method), path)
	var body struct {
		Error struct {
			Code    types.ErrorKind `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		return types.NewError(body.Error.Code, op, body.Error.Message, nil)
	}
	return types.NewError(kindForStatus(resp.StatusCode), op, resp.Status, nil)
}

func kindForStatus(status int) types.ErrorKind {
	switch status {
	case http.StatusNotFound:
		return types.KindNotFound
	case http.StatusForbidden:
		return types.KindAccessDenied
	case http.StatusBadRequest:
		return types.KindValidation
	case http.StatusConflict:
		return types.KindConflict
	case http.StatusUnauthorized:
		return types.KindUnauthenticated
	default:
		return types.KindInternal
	}
}
