package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// SendMessageRequest carries an already encrypted message.
type SendMessageRequest struct {
	Ciphertext      string                            `json:"ciphertext" validate:"required"`
	IV              string                            `json:"iv" validate:"required"`
	AuthTag         string                            `json:"authTag" validate:"required"`
	Recipients      []domain.UserID                   `json:"recipients" validate:"required,min=1,max=1000"`
	Envelopes       map[domain.UserID]types.SealedBox `json:"envelopes" validate:"required"`
	SenderPublicKey string                            `json:"senderPublicKey" validate:"required"`
}

// ParseMessageQuery reads senderId, from, to and limit from q. Times are
// RFC 3339.
func ParseMessageQuery(q url.Values) (domain.MessageQuery, error) {
	const op = "api.ParseMessageQuery"

	var out domain.MessageQuery
	out.SenderID = domain.UserID(q.Get("senderId"))
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"from", &out.From}, {"to", &out.To}} {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return out, types.NewError(types.KindValidation, op, f.name+" must be an RFC 3339 timestamp", err)
		}
		*f.dst = t.UTC()
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return out, types.Validation(op, "limit must be a non-negative integer")
		}
		out.Limit = n
	}
	return out, nil
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	q, err := ParseMessageQuery(r.URL.Query())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	msgs, err := rt.messages.History(r.Context(), principal(r), conversationID(r), q)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// sendMessage persists first and only then fans out. A failed fan-out is
// logged; the message is already durable and clients recover it from
// history.
func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(w, r, "api.sendMessage", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	m, err := rt.messages.Persist(r.Context(), principal(r), domain.PersistRequest{
		ConversationID:  conversationID(r),
		Ciphertext:      req.Ciphertext,
		IV:              req.IV,
		AuthTag:         req.AuthTag,
		Recipients:      req.Recipients,
		Envelopes:       req.Envelopes,
		SenderPublicKey: req.SenderPublicKey,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.publisher != nil {
		if err := rt.publisher.PublishMessage(r.Context(), m); err != nil {
			rt.logger.Warn("publish failed",
				zap.String("conversationID", m.ConversationID.String()),
				zap.String("messageID", m.ID.String()),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusCreated, m)
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	exp, err := rt.messages.Export(r.Context(), principal(r), conversationID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if exp.Messages == nil {
		exp.Messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, exp)
}
