package handlers

import (
	"net/http"

	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// SyncHandler serves the polling endpoints used by parent and child devices
type SyncHandler struct {
	syncService   *service.SyncService
	familyService *service.FamilyService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService *service.SyncService, familyService *service.FamilyService) *SyncHandler {
	return &SyncHandler{
		syncService:   syncService,
		familyService: familyService,
	}
}

// RegisterDevice registers or refreshes the calling device
func (h *SyncHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var info service.DeviceInfo
	if err := decodeJSON(w, r, &info); err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := security.CurrentPrincipal(r.Context())
	device, err := h.syncService.RegisterDevice(r.Context(), p.User.ID, info)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// FamilyData returns every child's state plus the events since ?lastSyncTime=
func (h *SyncHandler) FamilyData(w http.ResponseWriter, r *http.Request) {
	lastSync, err := queryTime(r, "lastSyncTime")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := security.CurrentPrincipal(r.Context())
	data, err := h.syncService.SyncFamilyData(r.Context(), p.User.ID, lastSync)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ChildFamilyData returns one child's state. Children get their own; parents
// name the child with ?childId=.
func (h *SyncHandler) ChildFamilyData(w http.ResponseWriter, r *http.Request) {
	lastSync, err := queryTime(r, "lastSyncTime")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := security.CurrentPrincipal(r.Context())
	child := p.Child
	if !p.IsChild() {
		childID, err := queryInt(r, "childId", 0)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		child, err = h.familyService.GetChild(r.Context(), p, int64(childID))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	data, err := h.syncService.SyncChildFamilyData(r.Context(), child, lastSync)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// MarkCompleted acknowledges events and records the device heartbeat
func (h *SyncHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string  `json:"device_id"`
		EventIDs []int64 `json:"event_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := security.CurrentPrincipal(r.Context())
	marked, err := h.syncService.MarkCompleted(r.Context(), p.User.ID, req.DeviceID, req.EventIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": marked})
}
