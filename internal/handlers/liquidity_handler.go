package handlers

import (
	"net/http"

	"mana-market/internal/models"
	"mana-market/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LiquidityHandler struct {
	liquidityService *services.LiquidityService
}

func NewLiquidityHandler(liquidityService *services.LiquidityService) *LiquidityHandler {
	return &LiquidityHandler{liquidityService: liquidityService}
}

// AddSubsidy pays mana into a contract's subsidy pool
// POST /api/contracts/:id/subsidy
func (h *LiquidityHandler) AddSubsidy(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	var req models.AddSubsidyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answerID, ok := parseOptionalAnswerID(c, req.AnswerID)
	if !ok {
		return
	}

	if err := h.liquidityService.AddSubsidy(c.Request.Context(), contractID, req.Amount, answerID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "amount": req.Amount})
}

// RemoveSubsidy withdraws the not-yet-drizzled portion of a subsidy
// POST /api/contracts/:id/subsidy/remove
func (h *LiquidityHandler) RemoveSubsidy(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	var req models.AddSubsidyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.liquidityService.RemoveSubsidy(c.Request.Context(), contractID, req.Amount); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "amount": req.Amount})
}
