package models

import (
	"time"

	"gorm.io/datatypes"
)

// WalkForwardRun archives one walk-forward evaluation: its window parameters,
// the immutable fold records and the down-sampled synthetic equity curve.
type WalkForwardRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Exchange    string `gorm:"type:varchar(50);not null;index" json:"exchange"`
	Instrument  string `gorm:"type:varchar(50);not null;index" json:"instrument"`
	Timeframe   string `gorm:"type:varchar(10);not null" json:"timeframe"`
	HorizonBars int    `gorm:"not null" json:"horizon_bars"`

	WindowTrain int `gorm:"not null" json:"window_train"`
	WindowTest  int `gorm:"not null" json:"window_test"`
	Step        int `gorm:"not null" json:"step"`

	FoldCount int  `gorm:"not null" json:"fold_count"`
	Empty     bool `gorm:"not null" json:"empty"`

	Folds   datatypes.JSON `gorm:"type:jsonb" json:"folds"`
	Summary datatypes.JSON `gorm:"type:jsonb" json:"summary"`
	Curve   datatypes.JSON `gorm:"type:jsonb" json:"curve"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (WalkForwardRun) TableName() string {
	return "walkforward_runs"
}
