package ledger

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/pkg/dbctx"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type EntryRepo interface {
	Create(dbc dbctx.Context, entries []*domain.LedgerEntry) ([]*domain.LedgerEntry, error)
	// ListByUser returns the newest entries first.
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.LedgerEntry, error)
	SumByUser(dbc dbctx.Context, userID, kind string) (float64, error)
	DeleteByUserIDs(dbc dbctx.Context, userIDs []string) error
}

type entryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntryRepo(db *gorm.DB, baseLog *logger.Logger) EntryRepo {
	return &entryRepo{db: db, log: baseLog.With("repo", "LedgerEntryRepo")}
}

func (r *entryRepo) Create(dbc dbctx.Context, entries []*domain.LedgerEntry) ([]*domain.LedgerEntry, error) {
	if len(entries) == 0 {
		return []*domain.LedgerEntry{}, nil
	}
	if err := dbc.DB(r.db).Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *entryRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*domain.LedgerEntry, error) {
	var results []*domain.LedgerEntry
	if strings.TrimSpace(userID) == "" {
		return results, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if err := dbc.DB(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *entryRepo) SumByUser(dbc dbctx.Context, userID, kind string) (float64, error) {
	var total float64
	q := dbc.DB(r.db).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *entryRepo) DeleteByUserIDs(dbc dbctx.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return dbc.DB(r.db).Where("user_id IN ?", userIDs).Delete(&domain.LedgerEntry{}).Error
}
