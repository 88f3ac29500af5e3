package repository

import (
	"time"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"gorm.io/datatypes"
)

// PublicationModel is the persistence model for the publications table.
type PublicationModel struct {
	ID               string                   `gorm:"type:uuid;primaryKey"`
	ContentID        string                   `gorm:"type:uuid;not null;uniqueIndex:idx_publications_content_platform"`
	PlatformID       string                   `gorm:"type:uuid;not null;uniqueIndex:idx_publications_content_platform"`
	Status           domain.PublicationStatus `gorm:"type:varchar(20);not null"`
	ExternalPostID   *string                  `gorm:"type:varchar(255)"`
	ExternalURL      *string                  `gorm:"type:text"`
	ErrorMessage     *string                  `gorm:"type:text"`
	RetryCount       int                      `gorm:"not null;default:0"`
	LastAttemptAt    *time.Time               `gorm:"type:timestamptz"`
	PublishedAt      *time.Time               `gorm:"type:timestamptz"`
	ScheduledRetryAt *time.Time               `gorm:"type:timestamptz"`
	Metadata         datatypes.JSONMap        `gorm:"type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (PublicationModel) TableName() string {
	return "publications"
}

// PublicationAttemptModel is the persistence model for publication_attempts.
type PublicationAttemptModel struct {
	ID             string                   `gorm:"type:uuid;primaryKey"`
	PublicationID  string                   `gorm:"type:uuid;not null;index"`
	AttemptNumber  int                      `gorm:"not null"`
	Status         domain.PublicationStatus `gorm:"type:varchar(20);not null"`
	Error          *string                  `gorm:"type:text"`
	Category       *string                  `gorm:"type:varchar(32)"`
	ExternalPostID *string                  `gorm:"type:varchar(255)"`
	DurationMs     int64                    `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func (PublicationAttemptModel) TableName() string {
	return "publication_attempts"
}

// ContentModel is the persistence model for contents.
type ContentModel struct {
	ID           string                      `gorm:"type:uuid;primaryKey"`
	ProjectID    string                      `gorm:"type:uuid;not null;index"`
	Title        string                      `gorm:"type:text;not null"`
	Body         string                      `gorm:"type:text;not null"`
	Excerpt      *string                     `gorm:"type:text"`
	Tags         datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	CanonicalURL *string                     `gorm:"type:text"`
	Status       domain.ContentStatus        `gorm:"type:varchar(20);not null;default:'draft'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ContentModel) TableName() string {
	return "contents"
}

// PlatformModel is the persistence model for platform targets.
type PlatformModel struct {
	ID                  string              `gorm:"type:uuid;primaryKey"`
	ProjectID           string              `gorm:"type:uuid;not null;index"`
	Type                domain.PlatformType `gorm:"type:varchar(20);not null"`
	Name                string              `gorm:"type:varchar(255);not null"`
	IsConnected         bool                `gorm:"not null;default:false"`
	CredentialExpiresAt *time.Time          `gorm:"type:timestamptz"`
	Config              datatypes.JSONMap   `gorm:"type:jsonb"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (PlatformModel) TableName() string {
	return "platforms"
}

// ProjectModel is the persistence model for projects.
type ProjectModel struct {
	ID                     string                      `gorm:"type:uuid;primaryKey"`
	Name                   string                      `gorm:"type:varchar(255);not null"`
	AutoPublish            bool                        `gorm:"not null;default:false"`
	RequireApproval        bool                        `gorm:"not null;default:false"`
	AutoPublishPlatformIDs datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (ProjectModel) TableName() string {
	return "projects"
}

// ApprovalModel is the persistence model for approval_queue.
type ApprovalModel struct {
	ID              string                      `gorm:"type:uuid;primaryKey"`
	ContentID       string                      `gorm:"type:uuid;not null;index"`
	PlatformIDs     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null"`
	AddedAt         time.Time                   `gorm:"type:timestamptz;not null"`
	ExpiresAt       time.Time                   `gorm:"type:timestamptz;not null"`
	Status          domain.ApprovalStatus       `gorm:"type:varchar(20);not null"`
	RejectionReason *string                     `gorm:"type:text"`
	DecidedAt       *time.Time                  `gorm:"type:timestamptz"`
}

func (ApprovalModel) TableName() string {
	return "approval_queue"
}

func publicationModelToDomain(m *PublicationModel) *domain.Publication {
	if m == nil {
		return nil
	}

	return &domain.Publication{
		ID:               m.ID,
		ContentID:        m.ContentID,
		PlatformID:       m.PlatformID,
		Status:           m.Status,
		ExternalPostID:   m.ExternalPostID,
		ExternalURL:      m.ExternalURL,
		ErrorMessage:     m.ErrorMessage,
		RetryCount:       m.RetryCount,
		LastAttemptAt:    m.LastAttemptAt,
		PublishedAt:      m.PublishedAt,
		ScheduledRetryAt: m.ScheduledRetryAt,
		Metadata:         map[string]any(m.Metadata),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.PublicationAttempt) *PublicationAttemptModel {
	if a == nil {
		return nil
	}

	return &PublicationAttemptModel{
		ID:             a.ID,
		PublicationID:  a.PublicationID,
		AttemptNumber:  a.AttemptNumber,
		Status:         a.Status,
		Error:          a.Error,
		Category:       a.Category,
		ExternalPostID: a.ExternalPostID,
		DurationMs:     a.DurationMs,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *PublicationAttemptModel) *domain.PublicationAttempt {
	if m == nil {
		return nil
	}

	return &domain.PublicationAttempt{
		ID:             m.ID,
		PublicationID:  m.PublicationID,
		AttemptNumber:  m.AttemptNumber,
		Status:         m.Status,
		Error:          m.Error,
		Category:       m.Category,
		ExternalPostID: m.ExternalPostID,
		DurationMs:     m.DurationMs,
		CreatedAt:      m.CreatedAt,
	}
}

func contentModelToDomain(m *ContentModel) *domain.Content {
	if m == nil {
		return nil
	}

	return &domain.Content{
		ID:           m.ID,
		ProjectID:    m.ProjectID,
		Title:        m.Title,
		Body:         m.Body,
		Excerpt:      m.Excerpt,
		Tags:         []string(m.Tags),
		CanonicalURL: m.CanonicalURL,
		Status:       m.Status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func platformModelToDomain(m *PlatformModel) *domain.PlatformTarget {
	if m == nil {
		return nil
	}

	config := make(domain.PlatformConfig, len(m.Config))
	for k, v := range m.Config {
		if s, ok := v.(string); ok {
			config[k] = s
		}
	}

	return &domain.PlatformTarget{
		ID:                  m.ID,
		ProjectID:           m.ProjectID,
		Type:                m.Type,
		Name:                m.Name,
		IsConnected:         m.IsConnected,
		CredentialExpiresAt: m.CredentialExpiresAt,
		Config:              config,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func projectModelToDomain(m *ProjectModel) *domain.Project {
	if m == nil {
		return nil
	}

	return &domain.Project{
		ID:                     m.ID,
		Name:                   m.Name,
		AutoPublish:            m.AutoPublish,
		RequireApproval:        m.RequireApproval,
		AutoPublishPlatformIDs: []string(m.AutoPublishPlatformIDs),
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func approvalModelFromDomain(e *domain.ApprovalEntry) *ApprovalModel {
	if e == nil {
		return nil
	}

	return &ApprovalModel{
		ID:              e.ID,
		ContentID:       e.ContentID,
		PlatformIDs:     datatypes.JSONSlice[string](e.PlatformIDs),
		AddedAt:         e.AddedAt,
		ExpiresAt:       e.ExpiresAt,
		Status:          e.Status,
		RejectionReason: e.RejectionReason,
		DecidedAt:       e.DecidedAt,
	}
}

func approvalModelToDomain(m *ApprovalModel) *domain.ApprovalEntry {
	if m == nil {
		return nil
	}

	return &domain.ApprovalEntry{
		ID:              m.ID,
		ContentID:       m.ContentID,
		PlatformIDs:     []string(m.PlatformIDs),
		AddedAt:         m.AddedAt,
		ExpiresAt:       m.ExpiresAt,
		Status:          m.Status,
		RejectionReason: m.RejectionReason,
		DecidedAt:       m.DecidedAt,
	}
}
