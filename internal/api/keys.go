package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/domain/types"
)

// RegisterKeyRequest publishes the caller's public key.
type RegisterKeyRequest struct {
	DeviceID  string `json:"deviceId" validate:"required,max=64"`
	PublicKey string `json:"publicKey" validate:"required,base64"`
	Algorithm string `json:"algorithm,omitempty" validate:"omitempty,oneof=x25519-aes-gcm"`
}

func principal(r *http.Request) domain.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// registerKey handles POST /v1/keys. A later registration replaces the
// earlier one.
func (rt *Router) registerKey(w http.ResponseWriter, r *http.Request) {
	const op = "api.registerKey"

	var req RegisterKeyRequest
	if err := decode(w, r, op, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if _, err := types.ParseX25519Public(req.PublicKey); err != nil {
		rt.writeError(w, r, types.NewError(types.KindValidation, op, "publicKey must be a 32-byte X25519 key", err))
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = types.AlgorithmX25519AESGCM
	}

	p := principal(r)
	rec := domain.PublicKeyRecord{
		UserID:       p.UserID,
		DeviceID:     domain.DeviceID(req.DeviceID),
		PublicKey:    req.PublicKey,
		Algorithm:    req.Algorithm,
		RegisteredAt: time.Now().UTC(),
	}
	if err := rt.keys.RegisterKey(r.Context(), rec); err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.logger.Info("public key registered",
		zap.String("userID", p.UserID.String()),
		zap.String("deviceID", req.DeviceID),
	)
	writeJSON(w, http.StatusCreated, rec)
}

// lookupKey handles GET /v1/keys/{userID}.
func (rt *Router) lookupKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(chi.URLParam(r, "userID"))
	rec, ok, err := rt.keys.LookupKey(r.Context(), user)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if !ok {
		rt.writeError(w, r, types.NotFound("api.lookupKey", "no public key registered for user"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
