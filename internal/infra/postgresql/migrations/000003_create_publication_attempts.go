package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"gorm.io/gorm"
)

func createPublicationAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_publication_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PublicationAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_attempts_publication_number ON publication_attempts (publication_id, attempt_number)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PublicationAttemptModel{})
		},
	}
}
