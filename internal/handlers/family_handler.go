package handlers

import (
	"net/http"

	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// FamilyHandler handles child profiles, parental controls and family settings
type FamilyHandler struct {
	familyService   *service.FamilyService
	controlsService *service.ControlsService
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(familyService *service.FamilyService, controlsService *service.ControlsService) *FamilyHandler {
	return &FamilyHandler{
		familyService:   familyService,
		controlsService: controlsService,
	}
}

type childRequest struct {
	Name     string `json:"name"`
	AvatarID string `json:"avatar_id"`
}

// ListChildren lists the children the caller can see
func (h *FamilyHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.familyService.ListChildren(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// CreateChild adds a child profile. The PIN is only ever returned here and
// on regeneration.
func (h *FamilyHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	child, pin, err := h.familyService.CreateChild(r.Context(), security.CurrentPrincipal(r.Context()), req.Name, req.AvatarID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"child": child, "pin": pin})
}

// GetChild returns one child
func (h *FamilyHandler) GetChild(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	child, err := h.familyService.GetChild(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// UpdateChild changes a child's name and avatar
func (h *FamilyHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req childRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	child, err := h.familyService.UpdateChild(r.Context(), security.CurrentPrincipal(r.Context()), childID, req.Name, req.AvatarID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// DeleteChild removes a child and everything that belongs to it
func (h *FamilyHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.familyService.DeleteChild(r.Context(), security.CurrentPrincipal(r.Context()), childID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegeneratePIN issues a new PIN and signs the child out everywhere
func (h *FamilyHandler) RegeneratePIN(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	pin, err := h.familyService.RegeneratePIN(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pin": pin})
}

// GetControls returns a child's parental controls
func (h *FamilyHandler) GetControls(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	controls, err := h.controlsService.GetControls(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controls)
}

// UpdateControls replaces a child's parental controls
func (h *FamilyHandler) UpdateControls(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.ControlsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	controls, err := h.controlsService.UpdateControls(r.Context(), security.CurrentPrincipal(r.Context()), childID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controls)
}

// GetApprovalSettings returns the family's auto-approval settings
func (h *FamilyHandler) GetApprovalSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.controlsService.GetApprovalSettings(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateApprovalSettings replaces the family's auto-approval settings
func (h *FamilyHandler) UpdateApprovalSettings(w http.ResponseWriter, r *http.Request) {
	var in service.ApprovalInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	settings, err := h.controlsService.UpdateApprovalSettings(r.Context(), security.CurrentPrincipal(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
