package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// InterviewRepository defines data access methods for interview records
type InterviewRepository interface {
	Create(ctx context.Context, record *entities.InterviewRecord) error
	Update(ctx context.Context, record *entities.InterviewRecord) error
	GetByID(ctx context.Context, id string) (*entities.InterviewRecord, error)
	ListByCandidate(ctx context.Context, candidateID string, limit int) ([]*entities.InterviewRecord, error)
	// EndStale marks records stuck in a running status for longer than maxAge
	// as ended and returns how many were changed
	EndStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// ResumeStore archives uploaded resume documents
type ResumeStore interface {
	Put(ctx context.Context, candidateID string, file entities.ResumeFile) (key string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// EmailSender sends a job application through the workflow webhook
type EmailSender interface {
	SendApplication(ctx context.Context, data entities.EmailSendData) (message string, err error)
}

// InterviewEventPublisher announces finished interviews to other services
type InterviewEventPublisher interface {
	PublishInterviewEnded(ctx context.Context, record *entities.InterviewRecord) error
}
