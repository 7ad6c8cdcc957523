package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitheroes/internal/service"
	"habitheroes/internal/validation"
)

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(recorder, 418, "Teapot", "", nil)

	if recorder.Code != 418 {
		t.Fatalf("expected status 418, got %d", recorder.Code)
	}

	var body errorBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	if body.Error != "Teapot" {
		t.Fatalf("expected error 'Teapot', got %q", body.Error)
	}
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
}

func TestRespondWithErrorLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Default()
	originalOutput := logger.Writer()
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	recorder := httptest.NewRecorder()
	err := errors.New("boom")

	respondWithError(recorder, 500, "Internal server error", "", err)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "Internal server error") {
		t.Fatalf("expected log to include user message, got %q", logOutput)
	}
	if !strings.Contains(logOutput, "boom") {
		t.Fatalf("expected log to include error, got %q", logOutput)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantReason string
	}{
		{"validation", validation.ValidationError{Field: "name", Message: "is required"}, http.StatusBadRequest, "", ""},
		{"feedback required", service.ErrFeedbackRequired, http.StatusBadRequest, service.ErrFeedbackRequired.Error(), ""},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, service.ErrInvalidCredentials.Error(), ""},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, service.ErrForbidden.Error(), ""},
		{"feature disabled", service.ErrFeatureDisabled, http.StatusForbidden, service.ErrFeatureDisabled.Error(), ""},
		{"blocked", &service.BlockedError{Reason: "bedtime"}, http.StatusForbidden, "", "bedtime"},
		{"wrapped not found", fmt.Errorf("loading: %w", service.ErrHabitNotFound), http.StatusNotFound, "", ""},
		{"insufficient points", service.ErrInsufficientPoints, http.StatusConflict, service.ErrInsufficientPoints.Error(), ""},
		{"already completed", service.ErrAlreadyCompletedToday, http.StatusConflict, service.ErrAlreadyCompletedToday.Error(), ""},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "Internal server error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodGet, "/api/anything", nil)

			writeServiceError(recorder, request, tt.err)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body.Error)
			}
			assert.Equal(t, tt.wantReason, body.Reason)
		})
	}
}

func TestWriteServiceErrorHidesInternalDetails(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Default()
	originalOutput := logger.Writer()
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/rewards", nil)

	writeServiceError(recorder, request, errors.New("constraint failed: rewards.title"))

	assert.NotContains(t, recorder.Body.String(), "constraint")
	assert.Contains(t, buf.String(), "POST /api/rewards")
	assert.Contains(t, buf.String(), "constraint failed")
}
