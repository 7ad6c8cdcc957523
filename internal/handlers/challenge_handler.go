package handlers

import (
	"context"
	"net/http"

	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// ChallengeHandler handles weekend challenges
type ChallengeHandler struct {
	challengeService *service.ChallengeService
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(challengeService *service.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: challengeService}
}

// ListChallenges lists a child's challenges
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	challenges, err := h.challengeService.ListChallenges(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challenges)
}

// CreateChallenge sets a challenge for the child in the path
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.ChallengeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	in.ChildID = childID

	challenge, err := h.challengeService.CreateChallenge(r.Context(), security.CurrentPrincipal(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

// Accept is the child taking a challenge on
func (h *ChallengeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.challengeService.AcceptChallenge)
}

// Complete marks an accepted challenge done and pays the bonus
func (h *ChallengeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.challengeService.CompleteChallenge)
}

func (h *ChallengeHandler) transition(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, p *security.Principal, id int64) (*models.WeekendChallenge, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	challenge, err := move(r.Context(), security.CurrentPrincipal(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

// DeleteChallenge removes a challenge
func (h *ChallengeHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.challengeService.DeleteChallenge(r.Context(), security.CurrentPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
