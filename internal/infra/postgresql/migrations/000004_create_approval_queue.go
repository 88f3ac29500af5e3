package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"gorm.io/gorm"
)

func createApprovalQueueTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_approval_queue",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ApprovalModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_approval_queue_pending_content ON approval_queue (content_id) WHERE status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_approval_queue_expiry ON approval_queue (expires_at) WHERE status = 'pending'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ApprovalModel{})
		},
	}
}
