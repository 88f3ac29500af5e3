package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"gorm.io/gorm"
)

func createCatalogTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_catalog_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&repository.ProjectModel{},
				&repository.PlatformModel{},
				&repository.ContentModel{},
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&repository.ContentModel{},
				&repository.PlatformModel{},
				&repository.ProjectModel{},
			)
		},
	}
}
