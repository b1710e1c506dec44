package repositories

import (
	"gorm.io/gorm"

	"labloan/internal/models"
)

// Migrate creates/updates the schema. The raw index below backs the
// one-return-record-per-borrowing rule at the database level, so a race
// between two Submit calls cannot slip past the service-level check.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Equipment{},
		&models.BorrowingRequest{},
		&models.QueueEntry{},
		&models.ReturnRecord{},
		&models.PenaltyRecord{},
	); err != nil {
		return err
	}

	return db.Exec(`
	  CREATE UNIQUE INDEX IF NOT EXISTS uniq_return_per_borrowing
	  ON return_records (borrowing_id);
	`).Error
}
