package ledger

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/workbench-backend/internal/data/repos/testutil"
	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/pkg/dbctx"
)

func TestEntryRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEntryRepo(db, testutil.Logger(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*domain.LedgerEntry{
		{UserID: "u1", Kind: domain.LedgerCredit, Amount: 10, BalanceAfter: 10, Reason: "topup", CreatedAt: base},
		{UserID: "u1", Kind: domain.LedgerDebit, Amount: 0.25, BalanceAfter: 9.75, Reason: "stream", Meta: datatypes.JSON(`{"model":"m"}`), CreatedAt: base.Add(time.Minute)},
		{UserID: "u2", Kind: domain.LedgerCredit, Amount: 5, BalanceAfter: 5, Reason: "topup", CreatedAt: base},
	}
	if _, err := repo.Create(dbc, entries); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entries[0].ID == 0 {
		t.Fatal("expected ids to be assigned")
	}

	rows, err := repo.ListByUser(dbc, "u1", 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByUser: err=%v len=%d", err, len(rows))
	}
	if rows[0].Kind != domain.LedgerDebit {
		t.Fatalf("expected newest first, got %+v", rows[0])
	}
	if rows, _ := repo.ListByUser(dbc, "u1", 1); len(rows) != 1 {
		t.Fatalf("limit ignored: %d", len(rows))
	}

	credits, err := repo.SumByUser(dbc, "u1", domain.LedgerCredit)
	if err != nil || credits != 10 {
		t.Fatalf("SumByUser credit = %v, %v", credits, err)
	}
	all, _ := repo.SumByUser(dbc, "u1", "")
	if all != 10.25 {
		t.Fatalf("SumByUser all = %v", all)
	}

	if err := repo.DeleteByUserIDs(dbc, []string{"u1"}); err != nil {
		t.Fatalf("DeleteByUserIDs: %v", err)
	}
	if rows, _ := repo.ListByUser(dbc, "u1", 10); len(rows) != 0 {
		t.Fatalf("expected u1 rows deleted, got %d", len(rows))
	}
	if rows, _ := repo.ListByUser(dbc, "u2", 10); len(rows) != 1 {
		t.Fatalf("u2 rows affected: %d", len(rows))
	}
}
