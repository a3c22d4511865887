package models

import (
	"time"

	"gorm.io/datatypes"
)

// SignalEvent is one evaluation of the active model on one bar. The composite
// unique index makes re-evaluating a bar idempotent at the storage layer.
type SignalEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Exchange   string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_signal_events_bar" json:"exchange"`
	Instrument string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_signal_events_bar" json:"instrument"`
	Timeframe  string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_signal_events_bar" json:"timeframe"`
	BarTime    time.Time `gorm:"type:timestamptz;not null;uniqueIndex:idx_signal_events_bar" json:"bar_time"`

	HorizonBars int     `gorm:"not null" json:"horizon_bars"`
	ClosePrice  float64 `gorm:"not null" json:"close_price"`
	Probability float64 `gorm:"not null" json:"probability"`
	Threshold   float64 `gorm:"not null" json:"threshold"`

	// Signal is "buy" or "flat"; Reasons is the ordered list of admission
	// rejections, empty when the signal is "buy".
	Signal  string         `gorm:"type:varchar(10);not null;index" json:"signal"`
	Reasons datatypes.JSON `gorm:"type:jsonb" json:"reasons"`

	ModelRunID *uint64 `gorm:"index" json:"model_run_id,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (SignalEvent) TableName() string {
	return "signal_events"
}
