package models

import (
	"time"
)

// SignalOutcome is the resolved result of a SignalEvent once its horizon has
// fully elapsed. One row per event, created exactly once.
type SignalOutcome struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SignalEventID uint64 `gorm:"not null;uniqueIndex" json:"signal_event_id"`

	EntryPrice     float64 `gorm:"not null" json:"entry_price"`
	ExitPrice      float64 `gorm:"not null" json:"exit_price"`
	RealizedReturn float64 `gorm:"not null" json:"realized_return"`
	// MinDrawdown is the path-minimum return over the horizon, a negative
	// fraction (0 when price never dipped below entry).
	MinDrawdown float64 `gorm:"column:min_drawdown;not null" json:"min_drawdown"`

	ResolvedAt time.Time `gorm:"type:timestamptz;not null;index" json:"resolved_at"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (SignalOutcome) TableName() string {
	return "signal_outcomes"
}
