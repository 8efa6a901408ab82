package db

import (
	"github.com/yungbote/valence-backend/internal/types"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Deal registry
		// =========================
		&types.Deal{},

		// =========================
		// Extraction bookkeeping
		// =========================
		&types.ExtractionRun{},
		&types.ModelCallLog{},
	)
}
