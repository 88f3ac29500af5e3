package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, e *domain.ApprovalEntry) error
	GetPending(ctx context.Context, contentID string) (*domain.ApprovalEntry, error)
	GetLatest(ctx context.Context, contentID string) (*domain.ApprovalEntry, error)
	Decide(ctx context.Context, id string, status domain.ApprovalStatus, reason *string, decidedAt time.Time) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalEntry, error)
}

type GormApprovalRepo struct {
	db *gorm.DB
}

func NewGormApprovalRepo(db *gorm.DB) *GormApprovalRepo {
	return &GormApprovalRepo{db: db}
}

// Create inserts a pending entry. A second pending entry for the same content
// violates the partial unique index and is reported as ErrApprovalPending.
func (r *GormApprovalRepo) Create(ctx context.Context, e *domain.ApprovalEntry) error {
	model := approvalModelFromDomain(e)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrApprovalPending
		}
		return err
	}
	if e != nil {
		*e = *approvalModelToDomain(model)
	}
	return nil
}

func (r *GormApprovalRepo) GetPending(ctx context.Context, contentID string) (*domain.ApprovalEntry, error) {
	var model ApprovalModel
	err := r.db.WithContext(ctx).
		Where("content_id = ? AND status = ?", contentID, domain.ApprovalPending).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return approvalModelToDomain(&model), nil
}

func (r *GormApprovalRepo) GetLatest(ctx context.Context, contentID string) (*domain.ApprovalEntry, error) {
	var model ApprovalModel
	err := r.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("added_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return approvalModelToDomain(&model), nil
}

// Decide resolves a pending entry. It reports false if the entry was already
// decided by someone else.
func (r *GormApprovalRepo) Decide(
	ctx context.Context,
	id string,
	status domain.ApprovalStatus,
	reason *string,
	decidedAt time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ApprovalModel{}).
		Where("id = ? AND status = ?", id, domain.ApprovalPending).
		Updates(map[string]any{
			"status":           status,
			"rejection_reason": reason,
			"decided_at":       decidedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormApprovalRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalEntry, error) {
	var models []ApprovalModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", domain.ApprovalPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ApprovalEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *approvalModelToDomain(&models[i]))
	}
	return entries, nil
}

// IsUniqueViolation reports whether err came from a unique index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
