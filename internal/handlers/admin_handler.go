package handlers

import (
	"net/http"

	"mana-market/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AdminHandler struct {
	resolutionService *services.ResolutionService
}

func NewAdminHandler(resolutionService *services.ResolutionService) *AdminHandler {
	return &AdminHandler{resolutionService: resolutionService}
}

type reconcileFeesRequest struct {
	ContractIDs []string `json:"contract_ids"`
}

// ReconcileFees refunds duplicate resolution fees. Safe to run repeatedly:
// fees already compensated are skipped.
// POST /api/admin/reconcile-fees
func (h *AdminHandler) ReconcileFees(c *gin.Context) {
	var req reconcileFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractIDs := make([]uuid.UUID, 0, len(req.ContractIDs))
	for _, raw := range req.ContractIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id: " + raw})
			return
		}
		contractIDs = append(contractIDs, id)
	}

	undone, err := h.resolutionService.ReconcileDuplicateResolutionFees(c.Request.Context(), contractIDs)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "fees_undone": undone})
}

// Unresolve reverts a resolution: payout transactions get compensating
// entries and the contract reopens for trading.
// POST /api/admin/contracts/:id/unresolve
func (h *AdminHandler) Unresolve(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	if err := h.resolutionService.Unresolve(c.Request.Context(), contractID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
