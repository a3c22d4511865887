package db

import (
	"alphapilot/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.SignalEvent{},
		&models.SignalOutcome{},
		&models.EquitySnapshot{},
		&models.ModelRun{},
		&models.ActiveModel{},
		&models.WalkForwardRun{},
	)
}
