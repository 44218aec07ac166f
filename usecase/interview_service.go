package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/interview"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

const (
	persistTimeout      = 5 * time.Second
	defaultHistoryLimit = 20
)

// InterviewService creates interview controllers and keeps their records
type InterviewService struct {
	connector repositories.LiveConnector
	config    interview.Config
	repo      repositories.InterviewRepository
	publisher repositories.InterviewEventPublisher
	metrics   *observe.Metrics
	logger    *zap.Logger
}

// NewInterviewService creates a new interview service. publisher and metrics may be nil.
func NewInterviewService(
	connector repositories.LiveConnector,
	config interview.Config,
	repo repositories.InterviewRepository,
	publisher repositories.InterviewEventPublisher,
	metrics *observe.Metrics,
	logger *zap.Logger,
) (*InterviewService, error) {
	if err := interview.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid interview config: %w", err)
	}
	return &InterviewService{
		connector: connector,
		config:    config,
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// NewInterview builds a controller whose sessions are persisted for candidateID
func (s *InterviewService) NewInterview(candidateID string, mic repositories.Microphone, speaker repositories.OutputDevice, observer interview.Observer) *interview.Controller {
	logger := s.logger.With(zap.String("candidateID", candidateID))
	opts := []interview.Option{
		interview.WithObserver(newInterviewRecorder(candidateID, s.repo, s.publisher, logger)),
		interview.WithMetrics(s.metrics),
	}
	if observer != nil {
		opts = append(opts, interview.WithObserver(observer))
	}
	return interview.NewController(s.connector, mic, speaker, s.config, logger, opts...)
}

// ListInterviews returns the candidate's interviews, newest first
func (s *InterviewService) ListInterviews(ctx context.Context, candidateID string, limit int) ([]*entities.InterviewRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}
	return s.repo.ListByCandidate(ctx, candidateID, limit)
}

// GetInterview returns one of the candidate's interviews
func (s *InterviewService) GetInterview(ctx context.Context, candidateID, id string) (*entities.InterviewRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.CandidateID != candidateID {
		return nil, fmt.Errorf("interview %s: %w", id, repositories.ErrNotFound)
	}
	return record, nil
}

// interviewRecorder mirrors a controller's sessions into InterviewRecords.
// Every connecting status opens a new record.
type interviewRecorder struct {
	candidateID string
	repo        repositories.InterviewRepository
	publisher   repositories.InterviewEventPublisher
	logger      *zap.Logger

	mu      sync.Mutex
	record  *entities.InterviewRecord
	created bool
}

var _ interview.Observer = (*interviewRecorder)(nil)

func newInterviewRecorder(candidateID string, repo repositories.InterviewRepository, publisher repositories.InterviewEventPublisher, logger *zap.Logger) *interviewRecorder {
	return &interviewRecorder{
		candidateID: candidateID,
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
	}
}

func (r *interviewRecorder) OnStatusChange(status entities.SessionStatus, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	switch {
	case status == entities.SessionStatusIdle:
		return
	case status == entities.SessionStatusConnecting:
		r.record = entities.NewInterviewRecord(r.candidateID)
		r.created = false
		r.save(ctx)
		return
	case r.record == nil:
		r.logger.Warn("Status change without an open interview record", zap.String("status", string(status)))
		return
	}

	if r.record.Status.IsTerminal() {
		return
	}
	r.record.SetStatus(status, cause)
	r.save(ctx)

	if status.IsTerminal() && r.publisher != nil {
		if err := r.publisher.PublishInterviewEnded(ctx, r.record); err != nil {
			r.logger.Error("Failed to publish interview event", zap.String("interviewID", r.record.ID), zap.Error(err))
		}
	}
}

func (r *interviewRecorder) OnTurns(turns []entities.TranscriptTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.record == nil {
		r.logger.Warn("Transcript turns without an open interview record", zap.Int("turns", len(turns)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	r.record.AddTurns(turns...)
	r.save(ctx)
}

// save creates the record on first use and updates it afterwards. Must hold r.mu.
func (r *interviewRecorder) save(ctx context.Context) {
	var err error
	if r.created {
		err = r.repo.Update(ctx, r.record)
	} else {
		err = r.repo.Create(ctx, r.record)
		r.created = err == nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("Failed to persist interview record",
			zap.String("interviewID", r.record.ID),
			zap.String("status", string(r.record.Status)),
			zap.Error(err))
	}
}
