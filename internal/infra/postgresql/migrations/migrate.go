package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// All returns the ordered migration set.
func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createCatalogTables(),
		createPublicationsTable(),
		createPublicationAttemptsTable(),
		createApprovalQueueTable(),
		addPublicationRetryIndexes(),
	}
}

func Migrate(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, All()).Migrate()
}

// RollbackLast reverts the most recently applied migration.
func RollbackLast(db *gorm.DB) error {
	return gormigrate.New(db, gormigrate.DefaultOptions, All()).RollbackLast()
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
