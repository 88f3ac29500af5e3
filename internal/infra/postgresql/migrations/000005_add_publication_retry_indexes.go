package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addPublicationRetryIndexes() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_add_publication_retry_indexes",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_publications_retry_due ON publications (scheduled_retry_at) WHERE status = 'RETRYING'`,
				`CREATE INDEX IF NOT EXISTS idx_publications_stale ON publications (last_attempt_at) WHERE status = 'PUBLISHING'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP INDEX IF EXISTS idx_publications_stale`,
				`DROP INDEX IF EXISTS idx_publications_retry_due`,
			})
		},
	}
}
