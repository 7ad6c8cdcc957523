package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"habitheroes/internal/service"
	"habitheroes/internal/validation"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func respondWithError(w http.ResponseWriter, status int, userMsg, logMsg string, err error) {
	if err != nil {
		if logMsg == "" {
			logMsg = userMsg
		}
		log.Printf("%s: %v", logMsg, err)
	}

	writeJSON(w, status, errorBody{Error: userMsg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

var (
	notFoundErrors = []error{
		service.ErrChildNotFound, service.ErrFamilyNotFound, service.ErrHabitNotFound,
		service.ErrMasterHabitNotFound, service.ErrCompletionNotFound, service.ErrRewardNotFound,
		service.ErrClaimNotFound, service.ErrItemNotFound, service.ErrChallengeNotFound,
		service.ErrDeviceNotFound,
	}
	conflictErrors = []error{
		service.ErrNotPending, service.ErrAlreadyCompletedToday, service.ErrCompletionPending,
		service.ErrHabitInactive, service.ErrClaimNotPending, service.ErrRewardNotClaimable,
		service.ErrInsufficientPoints, service.ErrAlreadyUnlocked, service.ErrInvalidTransition,
		service.ErrChallengeClosed, service.ErrEmailTaken, service.ErrAlreadyInFamily,
		service.ErrCannotLeaveFamily,
	}
	badRequestErrors = []error{
		service.ErrFeedbackRequired, service.ErrInvalidAdjustment, service.ErrInvalidFamilyCode,
		service.ErrAvatarNotAvailable,
	}
	forbiddenErrors = []error{
		service.ErrForbidden, service.ErrFeatureDisabled, service.ErrNoFamily,
	}
	unauthorizedErrors = []error{
		service.ErrInvalidCredentials, service.ErrInvalidChildLogin,
		service.ErrSessionNotFound, service.ErrSessionExpired,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case validation.IsValidationError(err), isAny(err, badRequestErrors):
		return http.StatusBadRequest
	case isAny(err, unauthorizedErrors):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrChildBlocked), isAny(err, forbiddenErrors):
		return http.StatusForbidden
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError writes the JSON error for err. Unexpected errors are
// logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		respondWithError(w, status, "Internal server error", r.Method+" "+r.URL.Path, err)
		return
	}

	body := errorBody{Error: err.Error()}
	var blocked *service.BlockedError
	if errors.As(err, &blocked) {
		body.Reason = blocked.Reason
	}
	writeJSON(w, status, body)
}
