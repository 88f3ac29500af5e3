package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository keeps the append-only history of publisher calls.
type AttemptRepository interface {
	// Record stores the attempt and assigns the next AttemptNumber for its
	// publication.
	Record(ctx context.Context, a *domain.PublicationAttempt) error
	ListByPublication(ctx context.Context, publicationID string) ([]domain.PublicationAttempt, error)
}

// The number is derived in the same statement as the insert; the unique
// (publication_id, attempt_number) index rejects a concurrent duplicate.
const insertAttemptSQL = `
INSERT INTO publication_attempts
	(id, publication_id, attempt_number, status, error, category, external_post_id, duration_ms, created_at)
SELECT ?, ?, COALESCE(MAX(attempt_number), 0) + 1, ?, ?, ?, ?, ?, ?
FROM publication_attempts
WHERE publication_id = ?
RETURNING attempt_number`

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Record(ctx context.Context, a *domain.PublicationAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}

	model := attemptModelFromDomain(a)
	var number int
	err := r.db.WithContext(ctx).Raw(insertAttemptSQL,
		model.ID,
		model.PublicationID,
		model.Status,
		model.Error,
		model.Category,
		model.ExternalPostID,
		model.DurationMs,
		model.CreatedAt,
		model.PublicationID,
	).Scan(&number).Error
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	a.AttemptNumber = number
	return nil
}

func (r *GormAttemptRepo) ListByPublication(ctx context.Context, publicationID string) ([]domain.PublicationAttempt, error) {
	var models []PublicationAttemptModel
	err := r.db.WithContext(ctx).
		Where("publication_id = ?", publicationID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.PublicationAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}
