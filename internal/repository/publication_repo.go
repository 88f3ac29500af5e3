package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/publish-engine/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransitionUpdate carries the columns written alongside a status change.
// Nil pointers leave the column untouched.
type TransitionUpdate struct {
	LastAttemptAt       *time.Time
	PublishedAt         *time.Time
	ExternalPostID      *string
	ExternalURL         *string
	ErrorMessage        *string
	ClearError          bool
	ScheduledRetryAt    *time.Time
	ClearScheduledRetry bool
	IncrementRetry      bool
	ResetRetry          bool
	Metadata            map[string]any

	// RequireScheduledRetry restricts the transition to rows that still hold
	// a scheduled retry.
	RequireScheduledRetry bool
}

type PublicationRepository interface {
	Ensure(ctx context.Context, contentID, platformID string) (*domain.Publication, error)
	GetByID(ctx context.Context, id string) (*domain.Publication, error)
	GetByPair(ctx context.Context, contentID, platformID string) (*domain.Publication, error)
	ListByContent(ctx context.Context, contentID string) ([]domain.Publication, error)
	Transition(ctx context.Context, id string, from []domain.PublicationStatus, to domain.PublicationStatus, update TransitionUpdate) (bool, error)
	ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Publication, error)
	ListStalePublishing(ctx context.Context, before time.Time, limit int) ([]domain.Publication, error)
}

type GormPublicationRepo struct {
	db *gorm.DB
}

func NewGormPublicationRepo(db *gorm.DB) *GormPublicationRepo {
	return &GormPublicationRepo{db: db}
}

// Ensure returns the publication for the pair, creating a PENDING row when none
// exists. Concurrent callers converge on the same row through the unique index.
func (r *GormPublicationRepo) Ensure(ctx context.Context, contentID, platformID string) (*domain.Publication, error) {
	model := PublicationModel{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		PlatformID: platformID,
		Status:     domain.StatusPending,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_id"}, {Name: "platform_id"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return nil, err
	}

	return r.GetByPair(ctx, contentID, platformID)
}

func (r *GormPublicationRepo) GetByID(ctx context.Context, id string) (*domain.Publication, error) {
	var model PublicationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return publicationModelToDomain(&model), nil
}

func (r *GormPublicationRepo) GetByPair(ctx context.Context, contentID, platformID string) (*domain.Publication, error) {
	var model PublicationModel
	err := r.db.WithContext(ctx).
		Where("content_id = ? AND platform_id = ?", contentID, platformID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return publicationModelToDomain(&model), nil
}

func (r *GormPublicationRepo) ListByContent(ctx context.Context, contentID string) ([]domain.Publication, error) {
	var models []PublicationModel
	err := r.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return publicationsToDomain(models), nil
}

// Transition moves the publication to status `to` only while it is in one of
// `from`. It reports false when the row was not in an allowed state, and
// returns domain.ErrConflict for a pair the state machine does not allow.
func (r *GormPublicationRepo) Transition(
	ctx context.Context,
	id string,
	from []domain.PublicationStatus,
	to domain.PublicationStatus,
	update TransitionUpdate,
) (bool, error) {
	if err := domain.CheckTransition(from, to); err != nil {
		return false, err
	}

	query := r.db.WithContext(ctx).
		Model(&PublicationModel{}).
		Where("id = ? AND status IN ?", id, from)
	if update.RequireScheduledRetry {
		query = query.Where("scheduled_retry_at IS NOT NULL")
	}
	result := query.Updates(transitionColumns(to, update))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func transitionColumns(to domain.PublicationStatus, update TransitionUpdate) map[string]any {
	columns := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}

	if update.LastAttemptAt != nil {
		columns["last_attempt_at"] = *update.LastAttemptAt
	}
	if update.PublishedAt != nil {
		columns["published_at"] = gorm.Expr("COALESCE(published_at, ?)", *update.PublishedAt)
	}
	if update.ExternalPostID != nil {
		columns["external_post_id"] = *update.ExternalPostID
	}
	if update.ExternalURL != nil {
		columns["external_url"] = *update.ExternalURL
	}
	switch {
	case update.ErrorMessage != nil:
		columns["error_message"] = *update.ErrorMessage
	case update.ClearError:
		columns["error_message"] = nil
	}
	switch {
	case update.ScheduledRetryAt != nil:
		columns["scheduled_retry_at"] = *update.ScheduledRetryAt
	case update.ClearScheduledRetry:
		columns["scheduled_retry_at"] = nil
	}
	switch {
	case update.ResetRetry:
		columns["retry_count"] = 0
	case update.IncrementRetry:
		columns["retry_count"] = gorm.Expr("retry_count + 1")
	}
	if len(update.Metadata) > 0 {
		columns["metadata"] = gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?", datatypes.JSONMap(update.Metadata))
	}

	return columns
}

func (r *GormPublicationRepo) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Publication, error) {
	var models []PublicationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_retry_at <= ?", domain.StatusRetrying, now).
		Order("scheduled_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return publicationsToDomain(models), nil
}

func (r *GormPublicationRepo) ListStalePublishing(ctx context.Context, before time.Time, limit int) ([]domain.Publication, error) {
	var models []PublicationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_attempt_at < ?", domain.StatusPublishing, before).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return publicationsToDomain(models), nil
}

func publicationsToDomain(models []PublicationModel) []domain.Publication {
	publications := make([]domain.Publication, 0, len(models))
	for i := range models {
		publications = append(publications, *publicationModelToDomain(&models[i]))
	}
	return publications
}
