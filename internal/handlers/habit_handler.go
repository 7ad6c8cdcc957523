package handlers

import (
	"net/http"

	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// HabitHandler handles habits, master habits and the completion workflow
type HabitHandler struct {
	habitService      *service.HabitService
	completionService *service.CompletionService
}

// NewHabitHandler creates a new habit handler
func NewHabitHandler(habitService *service.HabitService, completionService *service.CompletionService) *HabitHandler {
	return &HabitHandler{
		habitService:      habitService,
		completionService: completionService,
	}
}

type reviewRequest struct {
	Message string `json:"message"`
}

// ListMasterHabits lists the family's habit templates
func (h *HabitHandler) ListMasterHabits(w http.ResponseWriter, r *http.Request) {
	masters, err := h.habitService.ListMasterHabits(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, masters)
}

// CreateMasterHabit adds a habit template
func (h *HabitHandler) CreateMasterHabit(w http.ResponseWriter, r *http.Request) {
	var in service.HabitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	master, err := h.habitService.CreateMasterHabit(r.Context(), security.CurrentPrincipal(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, master)
}

// UpdateMasterHabit edits a habit template. Habits already assigned keep their own copy.
func (h *HabitHandler) UpdateMasterHabit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.HabitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	master, err := h.habitService.UpdateMasterHabit(r.Context(), security.CurrentPrincipal(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, master)
}

// DeleteMasterHabit removes a habit template
func (h *HabitHandler) DeleteMasterHabit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.habitService.DeleteMasterHabit(r.Context(), security.CurrentPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignMasterHabit copies a template into a habit for each listed child
func (h *HabitHandler) AssignMasterHabit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		ChildIDs []int64 `json:"child_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	habits, err := h.habitService.AssignMasterHabit(r.Context(), security.CurrentPrincipal(r.Context()), id, req.ChildIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, habits)
}

// ListHabits lists a child's habits
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	habits, err := h.habitService.ListHabits(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// CreateHabit adds a habit to a child
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.HabitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	habit, err := h.habitService.CreateHabit(r.Context(), security.CurrentPrincipal(r.Context()), childID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// UpdateHabit edits a child's habit
func (h *HabitHandler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.HabitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	habit, err := h.habitService.UpdateHabit(r.Context(), security.CurrentPrincipal(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// DeleteHabit removes a child's habit and its completions
func (h *HabitHandler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.habitService.DeleteHabit(r.Context(), security.CurrentPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete submits today's completion of a habit for approval
func (h *HabitHandler) Complete(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	completion, err := h.completionService.Submit(r.Context(), security.CurrentPrincipal(r.Context()), habitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

// Streak returns the current streak of a habit
func (h *HabitHandler) Streak(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	streak, err := h.completionService.Streak(r.Context(), security.CurrentPrincipal(r.Context()), habitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"streak": streak})
}

// Approve approves a pending completion and credits the child
func (h *HabitHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	completion, err := h.completionService.Approve(r.Context(), security.CurrentPrincipal(r.Context()), id, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

// Reject rejects a pending completion with feedback
func (h *HabitHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	completion, err := h.completionService.Reject(r.Context(), security.CurrentPrincipal(r.Context()), id, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

// Reload clears a child's unapproved completions for today
func (h *HabitHandler) Reload(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	removed, err := h.completionService.Reload(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// ListCompletions returns a child's recent completions
func (h *HabitHandler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	completions, err := h.completionService.ListForChild(r.Context(), security.CurrentPrincipal(r.Context()), childID, r.URL.Query().Get("since"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completions)
}

// ListPending lists every pending completion in the family
func (h *HabitHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.completionService.ListPending(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}
