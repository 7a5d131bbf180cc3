package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"mana-market/internal/cpmm"
	"mana-market/internal/models"
	"mana-market/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MarketHandler struct {
	liquidityService  *services.LiquidityService
	redemptionService *services.RedemptionService
	resolutionService *services.ResolutionService
}

func NewMarketHandler(
	liquidityService *services.LiquidityService,
	redemptionService *services.RedemptionService,
	resolutionService *services.ResolutionService,
) *MarketHandler {
	return &MarketHandler{
		liquidityService:  liquidityService,
		redemptionService: redemptionService,
		resolutionService: resolutionService,
	}
}

// GetContract retrieves a contract with its answers
// GET /api/contracts/:id
func (h *MarketHandler) GetContract(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	contract, err := h.liquidityService.GetContract(c.Request.Context(), contractID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	c.JSON(http.StatusOK, toContractResponse(contract))
}

// Quote prices a hypothetical bet without committing anything
// GET /api/contracts/:id/quote
func (h *MarketHandler) Quote(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	var req models.QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answerID, ok := parseOptionalAnswerID(c, req.AnswerID)
	if !ok {
		return
	}

	contract, err := h.liquidityService.GetContract(c.Request.Context(), contractID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	quote, err := h.liquidityService.Quote(contract, req.Amount, models.Outcome(req.Outcome), answerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// RedeemShares cancels the caller's matched opposing positions
// POST /api/contracts/:id/redeem
func (h *MarketHandler) RedeemShares(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	result, err := h.redemptionService.RedeemShares(c.Request.Context(), userID, contractID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"shares":       result.Shares,
		"loan_payment": result.LoanPayment,
		"net_amount":   result.NetAmount,
	})
}

// Resolve transitions a contract (or one answer) to a terminal outcome
// POST /api/contracts/:id/resolve
func (h *MarketHandler) Resolve(c *gin.Context) {
	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answerID, ok := parseOptionalAnswerID(c, req.AnswerID)
	if !ok {
		return
	}

	var probability *float64
	if req.ProbabilityInt != nil {
		p := *req.ProbabilityInt / 100
		probability = &p
	}

	contract, err := h.resolutionService.Resolve(
		c.Request.Context(), contractID, userID, models.Outcome(req.Outcome), probability, answerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toContractResponse(contract))
}

func toContractResponse(contract *models.Contract) *models.ContractResponse {
	prob := cpmm.Probability(cpmm.Pool{Yes: contract.PoolYes, No: contract.PoolNo}, contract.P)
	return &models.ContractResponse{
		ID:             contract.ID.String(),
		Question:       contract.Question,
		Mechanism:      string(contract.Mechanism),
		Probability:    prob,
		PoolYes:        contract.PoolYes,
		PoolNo:         contract.PoolNo,
		SubsidyPool:    contract.SubsidyPool,
		TotalLiquidity: contract.TotalLiquidity,
		Resolution:     contract.Resolution,
		ResolutionTime: contract.ResolutionTime,
		CreatedAt:      contract.CreatedAt,
	}
}

// requireUserID reads the authenticated user id injected by the outer API
// layer. Authentication itself is an external collaborator.
func requireUserID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return uint(id), true
}

func parseOptionalAnswerID(c *gin.Context, raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid answer id"})
		return nil, false
	}
	return &id, true
}

func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrContractNotFound), errors.Is(err, services.ErrAnswerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyResolved), errors.Is(err, services.ErrDuplicateGrant):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrMinimumLiquidity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// Numeric invariant violations and storage failures are server-side.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
