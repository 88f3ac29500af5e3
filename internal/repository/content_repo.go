package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"gorm.io/gorm"
)

type ContentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Content, error)
	UpdateStatus(ctx context.Context, id string, status domain.ContentStatus) error
}

type PlatformRepository interface {
	GetByID(ctx context.Context, id string) (*domain.PlatformTarget, error)
	ListConnectedByProject(ctx context.Context, projectID string) ([]domain.PlatformTarget, error)
}

type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Project, error)
}

type GormContentRepo struct {
	db *gorm.DB
}

func NewGormContentRepo(db *gorm.DB) *GormContentRepo {
	return &GormContentRepo{db: db}
}

func (r *GormContentRepo) GetByID(ctx context.Context, id string) (*domain.Content, error) {
	var model ContentModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contentModelToDomain(&model), nil
}

func (r *GormContentRepo) UpdateStatus(ctx context.Context, id string, status domain.ContentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&ContentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type GormPlatformRepo struct {
	db *gorm.DB
}

func NewGormPlatformRepo(db *gorm.DB) *GormPlatformRepo {
	return &GormPlatformRepo{db: db}
}

func (r *GormPlatformRepo) GetByID(ctx context.Context, id string) (*domain.PlatformTarget, error) {
	var model PlatformModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return platformModelToDomain(&model), nil
}

func (r *GormPlatformRepo) ListConnectedByProject(ctx context.Context, projectID string) ([]domain.PlatformTarget, error) {
	var models []PlatformModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_connected = ?", projectID, true).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	targets := make([]domain.PlatformTarget, 0, len(models))
	for i := range models {
		targets = append(targets, *platformModelToDomain(&models[i]))
	}
	return targets, nil
}

type GormProjectRepo struct {
	db *gorm.DB
}

func NewGormProjectRepo(db *gorm.DB) *GormProjectRepo {
	return &GormProjectRepo{db: db}
}

func (r *GormProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var model ProjectModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return projectModelToDomain(&model), nil
}
