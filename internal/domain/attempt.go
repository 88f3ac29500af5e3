package domain

import "time"

// PublicationAttempt records a single publisher call for a publication.
type PublicationAttempt struct {
	ID             string
	PublicationID  string
	AttemptNumber  int
	Status         PublicationStatus
	Error          *string
	Category       *string
	ExternalPostID *string
	DurationMs     int64
	CreatedAt      time.Time
}
