package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"gorm.io/gorm"
)

func createPublicationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_publications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PublicationModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_publications_content_platform ON publications (content_id, platform_id)`,
				`CREATE INDEX IF NOT EXISTS idx_publications_status ON publications (status)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PublicationModel{})
		},
	}
}
