package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"courier/internal/domain"
)

// CreateDirectRequest opens the direct conversation with another user.
type CreateDirectRequest struct {
	ParticipantID   string `json:"participantId" validate:"required,max=128"`
	RetentionPolicy string `json:"retentionPolicy,omitempty" validate:"omitempty,oneof=7d 30d"`
}

// CreateTeamRequest opens a conversation for a whole team.
type CreateTeamRequest struct {
	TeamID          string `json:"teamId" validate:"required,max=128"`
	RetentionPolicy string `json:"retentionPolicy,omitempty" validate:"omitempty,oneof=7d 30d"`
}

// UpdateRetentionRequest changes the policy for future messages.
type UpdateRetentionRequest struct {
	RetentionPolicy string `json:"retentionPolicy" validate:"required,oneof=7d 30d"`
}

func conversationID(r *http.Request) domain.ConversationID {
	return domain.ConversationID(chi.URLParam(r, "conversationID"))
}

func (rt *Router) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := rt.directory.ListForUser(r.Context(), principal(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// createDirect answers 201 for a new conversation and 200 when the pair
// already had one.
func (rt *Router) createDirect(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRequest
	if err := decode(w, r, "api.createDirect", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, created, err := rt.directory.CreateDirect(r.Context(), principal(r),
		domain.UserID(req.ParticipantID), domain.RetentionPolicy(req.RetentionPolicy))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, c)
}

func (rt *Router) createTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := decode(w, r, "api.createTeam", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.directory.CreateTeam(r.Context(), principal(r),
		domain.TeamID(req.TeamID), domain.RetentionPolicy(req.RetentionPolicy))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (rt *Router) updateRetention(w http.ResponseWriter, r *http.Request) {
	var req UpdateRetentionRequest
	if err := decode(w, r, "api.updateRetention", &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.directory.UpdateRetention(r.Context(), principal(r),
		conversationID(r), domain.RetentionPolicy(req.RetentionPolicy))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) participants(w http.ResponseWriter, r *http.Request) {
	parts, err := rt.directory.Participants(r.Context(), principal(r), conversationID(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}
