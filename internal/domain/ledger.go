package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LedgerCredit = "credit"
	LedgerDebit  = "debit"
)

// LedgerEntry is an audit row for one balance mutation.
type LedgerEntry struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string         `gorm:"column:user_id;not null;index" json:"-"`
	Kind         string         `gorm:"column:kind;not null" json:"kind"`
	Amount       float64        `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter float64        `gorm:"column:balance_after;not null" json:"balance_after"`
	Reason       string         `gorm:"column:reason" json:"reason"`
	Meta         datatypes.JSON `gorm:"column:meta" json:"meta,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
