package services

import (
	"context"
	"math"
	"testing"

	"github.com/yungbote/workbench-backend/internal/data/repos/ledger"
	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/llm"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
)

func newLedger(t *testing.T, d *deps) (LedgerService, *llm.CostMeter) {
	t.Helper()
	meter := &llm.CostMeter{}
	repo := ledger.NewEntryRepo(testutil.DB(t), testutil.Logger(t))
	return NewLedgerService(testutil.Logger(t), d.store, repo, meter, nil), meter
}

func TestLedgerRejectsInvalidCredits(t *testing.T) {
	d := newDeps(t)
	svc, _ := newLedger(t, d)
	_, ctx := d.user(t, "a@x")
	for _, amt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := svc.Credit(ctx, amt, "topup"); !apierr.Is(err, apierr.CodeInvalidAmount) {
			t.Fatalf("Credit(%v): expected invalid_amount, got %v", amt, err)
		}
	}
	if bal, _ := svc.Balance(ctx); bal != 0 {
		t.Fatalf("balance changed: %v", bal)
	}
}

func TestLedgerDebitNeverGoesNegative(t *testing.T) {
	d := newDeps(t)
	svc, _ := newLedger(t, d)
	_, ctx := d.user(t, "a@x")

	if err := svc.RequirePositive(ctx); !apierr.Is(err, apierr.CodeInsufficientBalance) {
		t.Fatalf("expected insufficient_balance at zero, got %v", err)
	}
	if bal, err := svc.Credit(ctx, 10, "topup"); err != nil || bal != 10 {
		t.Fatalf("Credit = %v, %v", bal, err)
	}
	if err := svc.RequirePositive(ctx); err != nil {
		t.Fatalf("RequirePositive: %v", err)
	}
	if _, err := svc.Debit(ctx, 10.5, "test"); !apierr.Is(err, apierr.CodeInsufficientBalance) {
		t.Fatalf("over-debit: %v", err)
	}
	if bal, _ := svc.Balance(ctx); bal != 10 {
		t.Fatalf("refused debit changed balance: %v", bal)
	}
	if bal, err := svc.Debit(ctx, 4, "test"); err != nil || bal != 6 {
		t.Fatalf("Debit = %v, %v", bal, err)
	}
}

func TestLedgerSettleDrainsToZero(t *testing.T) {
	d := newDeps(t)
	svc, _ := newLedger(t, d)
	_, ctx := d.user(t, "a@x")
	_, _ = svc.Credit(ctx, 1, "topup")

	if bal, err := svc.Settle(ctx, 0.25); err != nil || bal != 0.75 {
		t.Fatalf("Settle = %v, %v", bal, err)
	}
	if bal, err := svc.Settle(ctx, 5); err != nil || bal != 0 {
		t.Fatalf("over-cost Settle = %v, %v", bal, err)
	}
	if bal, err := svc.Settle(ctx, 0); err != nil || bal != 0 {
		t.Fatalf("zero Settle = %v, %v", bal, err)
	}

	rows, err := svc.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(rows))
	}
	if rows[0].Kind != domain.LedgerDebit || rows[0].Amount != 0.75 || rows[0].BalanceAfter != 0 {
		t.Fatalf("newest row should be the drain: %+v", rows[0])
	}
}

func TestLedgerPromoOnce(t *testing.T) {
	d := newDeps(t)
	svc, _ := newLedger(t, d)
	_, ctx := d.user(t, "a@x")
	first, err := svc.ApplyPromo(ctx, 1)
	second, _ := svc.ApplyPromo(ctx, 1)
	if err != nil || !first || second {
		t.Fatalf("ApplyPromo first=%v second=%v err=%v", first, second, err)
	}
	if bal, _ := svc.Balance(ctx); bal != 1 {
		t.Fatalf("balance = %v", bal)
	}
}

func TestLedgerRequiresUser(t *testing.T) {
	d := newDeps(t)
	svc, meter := newLedger(t, d)
	if _, err := svc.Balance(context.Background()); !apierr.Is(err, apierr.CodeTokenMissing) {
		t.Fatalf("expected token_missing, got %v", err)
	}
	meter.Add(0.5)
	if svc.SessionCost() != 0.5 {
		t.Fatalf("SessionCost = %v", svc.SessionCost())
	}
}
