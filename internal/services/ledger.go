package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/workbench-backend/internal/data/graph"
	"github.com/yungbote/workbench-backend/internal/data/repos/ledger"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/observability"
	"github.com/yungbote/workbench-backend/internal/pkg/dbctx"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

// LedgerService owns the per-user balance. The balance itself lives on the
// graph User node; every mutation also appends an audit row.
type LedgerService interface {
	Balance(ctx context.Context) (float64, error)
	Credit(ctx context.Context, amount float64, reason string) (float64, error)
	Debit(ctx context.Context, amount float64, reason string) (float64, error)
	// RequirePositive refuses service when the balance is not above zero.
	RequirePositive(ctx context.Context) error
	// Settle charges cost incurred by a finished request. When the cost exceeds
	// the balance it drains the balance to zero.
	Settle(ctx context.Context, cost float64) (float64, error)
	// ApplyPromo credits the one-time promotional amount. It reports false when
	// the user already received it.
	ApplyPromo(ctx context.Context, amount float64) (bool, error)
	History(ctx context.Context, limit int) ([]*domain.LedgerEntry, error)
	// SessionCost is the cost of all upstream calls since the process started.
	SessionCost() float64
}

type ledgerService struct {
	log     *logger.Logger
	store   graph.Store
	entries ledger.EntryRepo
	meter   *llm.CostMeter
	metrics *observability.Metrics
}

func NewLedgerService(log *logger.Logger, store graph.Store, entries ledger.EntryRepo, meter *llm.CostMeter, metrics *observability.Metrics) LedgerService {
	return &ledgerService{
		log:     log.With("service", "LedgerService"),
		store:   store,
		entries: entries,
		meter:   meter,
		metrics: metrics,
	}
}

func validAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return apierr.BadRequest(apierr.CodeInvalidAmount, fmt.Errorf("amount must be a positive finite number"))
	}
	return nil
}

func (s *ledgerService) Balance(ctx context.Context) (float64, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.GetBalance(ctx, userID)
}

func (s *ledgerService) Credit(ctx context.Context, amount float64, reason string) (float64, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return 0, err
	}
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	bal, err := s.store.AddBalance(ctx, userID, amount)
	if err != nil {
		s.metrics.IncLedger(domain.LedgerCredit, "error")
		return 0, err
	}
	s.metrics.IncLedger(domain.LedgerCredit, "ok")
	s.audit(ctx, userID, domain.LedgerCredit, amount, bal, reason, nil)
	return bal, nil
}

func (s *ledgerService) Debit(ctx context.Context, amount float64, reason string) (float64, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return 0, err
	}
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	bal, ok, err := s.store.DebitBalance(ctx, userID, amount)
	if err != nil {
		s.metrics.IncLedger(domain.LedgerDebit, "error")
		return 0, err
	}
	if !ok {
		s.metrics.IncLedger(domain.LedgerDebit, "refused")
		return bal, insufficientBalance()
	}
	s.metrics.IncLedger(domain.LedgerDebit, "ok")
	s.audit(ctx, userID, domain.LedgerDebit, amount, bal, reason, nil)
	return bal, nil
}

func insufficientBalance() error {
	return apierr.New(http.StatusForbidden, apierr.CodeInsufficientBalance, fmt.Errorf("Insufficient balance"))
}

func (s *ledgerService) RequirePositive(ctx context.Context) error {
	bal, err := s.Balance(ctx)
	if err != nil {
		return err
	}
	if bal <= 0 {
		return insufficientBalance()
	}
	return nil
}

func (s *ledgerService) Settle(ctx context.Context, cost float64) (float64, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(cost) || cost <= 0 {
		return s.store.GetBalance(ctx, userID)
	}
	bal, ok, err := s.store.DebitBalance(ctx, userID, cost)
	if err != nil {
		s.metrics.IncLedger(domain.LedgerDebit, "error")
		return 0, err
	}
	if ok {
		s.metrics.IncLedger(domain.LedgerDebit, "ok")
		s.audit(ctx, userID, domain.LedgerDebit, cost, bal, "usage", nil)
		return bal, nil
	}
	taken, bal, err := s.store.DrainBalance(ctx, userID, cost)
	if err != nil {
		s.metrics.IncLedger(domain.LedgerDebit, "error")
		return 0, err
	}
	s.log.Warn("request cost exceeded balance, drained to zero", "user_id", userID, "cost", cost, "taken", taken)
	s.metrics.IncLedger(domain.LedgerDebit, "drained")
	if taken > 0 {
		s.audit(ctx, userID, domain.LedgerDebit, taken, bal, "usage", map[string]any{"uncovered": cost - taken})
	}
	return bal, nil
}

func (s *ledgerService) ApplyPromo(ctx context.Context, amount float64) (bool, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return false, err
	}
	if err := validAmount(amount); err != nil {
		return false, err
	}
	applied, bal, err := s.store.ApplyPromo(ctx, userID, amount)
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.IncLedger(domain.LedgerCredit, "ok")
		s.audit(ctx, userID, domain.LedgerCredit, amount, bal, "promo", nil)
	}
	return applied, nil
}

func (s *ledgerService) History(ctx context.Context, limit int) ([]*domain.LedgerEntry, error) {
	userID, err := userFrom(ctx)
	if err != nil {
		return nil, err
	}
	if s.entries == nil {
		return []*domain.LedgerEntry{}, nil
	}
	rows, err := s.entries.ListByUser(dbctx.Context{Ctx: ctx}, userID, limit)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return rows, nil
}

func (s *ledgerService) SessionCost() float64 {
	return s.meter.Total()
}

// audit records a balance mutation. Failures are logged and never surfaced.
func (s *ledgerService) audit(ctx context.Context, userID, kind string, amount, balanceAfter float64, reason string, meta map[string]any) {
	if s.entries == nil {
		return
	}
	entry := &domain.LedgerEntry{
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			entry.Meta = datatypes.JSON(raw)
		}
	}
	if _, err := s.entries.Create(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, []*domain.LedgerEntry{entry}); err != nil {
		s.log.Warn("ledger audit write failed", "user_id", userID, "kind", kind, "error", err)
		s.metrics.IncLedger(kind, "audit_failed")
	}
}
