package handlers

import (
	"net/http"

	"habitheroes/internal/catalog"
	"habitheroes/internal/models"
	"habitheroes/internal/security"
	"habitheroes/internal/service"
)

// RewardHandler handles rewards, claims, the points ledger and the avatar shop
type RewardHandler struct {
	rewardService *service.RewardService
}

// NewRewardHandler creates a new reward handler
func NewRewardHandler(rewardService *service.RewardService) *RewardHandler {
	return &RewardHandler{rewardService: rewardService}
}

// ListRewards lists the rewards the caller can see
func (h *RewardHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardService.ListRewards(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// CreateReward adds a reward
func (h *RewardHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var in service.RewardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	reward, err := h.rewardService.CreateReward(r.Context(), security.CurrentPrincipal(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// UpdateReward edits a reward
func (h *RewardHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var in service.RewardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	reward, err := h.rewardService.UpdateReward(r.Context(), security.CurrentPrincipal(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// DeleteReward removes a reward
func (h *RewardHandler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.rewardService.DeleteReward(r.Context(), security.CurrentPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Claim asks for a reward on behalf of the signed-in child
func (h *RewardHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	claim, err := h.rewardService.Claim(r.Context(), security.CurrentPrincipal(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// ListClaims lists reward claims, optionally filtered by ?status=
func (h *RewardHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.rewardService.ListClaims(r.Context(), security.CurrentPrincipal(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// ApproveClaim approves a claim and spends the child's points
func (h *RewardHandler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
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

	claim, err := h.rewardService.ApproveClaim(r.Context(), security.CurrentPrincipal(r.Context()), id, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// RejectClaim rejects a claim
func (h *RewardHandler) RejectClaim(w http.ResponseWriter, r *http.Request) {
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

	claim, err := h.rewardService.RejectClaim(r.Context(), security.CurrentPrincipal(r.Context()), id, req.Message)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// ListTransactions returns a child's ledger, newest first
func (h *RewardHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	transactions, err := h.rewardService.ListTransactions(r.Context(), security.CurrentPrincipal(r.Context()), childID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

// AdjustPoints applies a manual signed adjustment to a child's points
func (h *RewardHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		Amount      int    `json:"amount"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	child, err := h.rewardService.AdjustPoints(r.Context(), security.CurrentPrincipal(r.Context()), childID, req.Amount, req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// Balance compares a child's stored points with the ledger
func (h *RewardHandler) Balance(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	report, err := h.rewardService.Balance(r.Context(), security.CurrentPrincipal(r.Context()), childID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Reconcile lists the family's children whose balance disagrees with the ledger
func (h *RewardHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.rewardService.ReconcileBalances(r.Context(), security.CurrentPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mismatches)
}

// Unlock buys an avatar or gear piece with the child's points
func (h *RewardHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   models.ItemKind `json:"kind"`
		ItemID string          `json:"item_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	child, err := h.rewardService.UnlockItem(r.Context(), security.CurrentPrincipal(r.Context()), req.Kind, req.ItemID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// Catalog returns the embedded shop and starter habit catalog
func (h *RewardHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat, err := catalog.Load()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}
