package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"courier/internal/domain/types"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    types.ErrorKind `json:"code"`
	Message string          `json:"message"`
}

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindAccessDenied:
		return http.StatusForbidden
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindConflict:
		return http.StatusConflict
	case types.KindCrypto:
		return http.StatusUnprocessableEntity
	case types.KindUnauthenticated:
		return http.StatusUnauthorized
	case types.KindKeyUnavailable:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := types.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind, Message: types.PublicMessage(err)}})
}
