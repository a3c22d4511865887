package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquitySnapshot is a periodic (equity, cash, positions_value) sample used
// for charting. Rows are append-only.
type EquitySnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;uniqueIndex" json:"snapshot_at"`

	Cash           decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cash"`
	PositionsValue decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"positions_value"`
	Equity         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"equity"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (EquitySnapshot) TableName() string {
	return "equity_snapshots"
}
