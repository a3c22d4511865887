package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelRun is the metadata of one trained model artifact. Rows are
// append-only; which run is live for a key is tracked by ActiveModel.
type ModelRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Exchange    string `gorm:"type:varchar(50);not null;index:idx_model_runs_key" json:"exchange"`
	Instrument  string `gorm:"type:varchar(50);not null;index:idx_model_runs_key" json:"instrument"`
	Timeframe   string `gorm:"type:varchar(10);not null;index:idx_model_runs_key" json:"timeframe"`
	HorizonBars int    `gorm:"not null;index:idx_model_runs_key" json:"horizon_bars"`

	TrainRows int `gorm:"not null" json:"train_rows"`
	TestRows  int `gorm:"not null" json:"test_rows"`

	Threshold float64 `gorm:"not null" json:"threshold"`
	Accuracy  float64 `gorm:"not null" json:"accuracy"`
	AUC       float64 `gorm:"column:auc;not null" json:"auc"`
	CumReturn float64 `gorm:"not null" json:"cum_return"`
	Sharpe    float64 `gorm:"not null" json:"sharpe"`

	ArtifactPath string         `gorm:"type:text;not null" json:"artifact_path"`
	FeatureList  datatypes.JSON `gorm:"type:jsonb" json:"feature_list"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (ModelRun) TableName() string {
	return "model_runs"
}

// ActiveModel is the champion pointer for one market key. Promotion swaps
// ModelRunID in a single upsert.
type ActiveModel struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Exchange    string `gorm:"type:varchar(50);not null;uniqueIndex:idx_active_models_key" json:"exchange"`
	Instrument  string `gorm:"type:varchar(50);not null;uniqueIndex:idx_active_models_key" json:"instrument"`
	Timeframe   string `gorm:"type:varchar(10);not null;uniqueIndex:idx_active_models_key" json:"timeframe"`
	HorizonBars int    `gorm:"not null;uniqueIndex:idx_active_models_key" json:"horizon_bars"`

	ModelRunID uint64    `gorm:"not null" json:"model_run_id"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (ActiveModel) TableName() string {
	return "active_models"
}
