package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
	"github.com/yungbote/workbench-backend/internal/requestdata"
	"github.com/yungbote/workbench-backend/internal/schema"
	"github.com/yungbote/workbench-backend/internal/services"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type PricingHandler struct {
	log    *logger.Logger
	ledger services.LedgerService
}

func NewPricingHandler(log *logger.Logger, ledger services.LedgerService) *PricingHandler {
	return &PricingHandler{log: log.With("handler", "PricingHandler"), ledger: ledger}
}

// GET /pricing/balance
func (h *PricingHandler) Balance(c *gin.Context) {
	bal, err := h.ledger.Balance(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"balance": bal})
}

// GET /pricing/session
func (h *PricingHandler) Session(c *gin.Context) {
	response.RespondOK(c, gin.H{"session_cost": h.ledger.SessionCost()})
}

// GET /pricing/history?limit=N
func (h *PricingHandler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxHistoryLimit)
	}
	entries, err := h.ledger.History(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}
	response.RespondOK(c, gin.H{"entries": entries})
}

// POST /pricing/add
// body: { "sum": 10.0 }
func (h *PricingHandler) Add(c *gin.Context) {
	body, ok := bind(c, schema.PricingAdd)
	if !ok {
		return
	}
	sum, _ := body["sum"].(float64)
	bal, err := h.ledger.Credit(c.Request.Context(), sum, "topup")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Balance updated", "balance": bal})
}

// settle charges the upstream cost a request accumulated. It runs after the
// response whatever the outcome.
func settle(c *gin.Context, ledger services.LedgerService) {
	ctx := c.Request.Context()
	cost := requestdata.GetRequestData(ctx).TakeCost()
	if cost <= 0 {
		return
	}
	if _, err := ledger.Settle(context.WithoutCancel(ctx), cost); err != nil {
		_ = c.Error(err)
	}
}
