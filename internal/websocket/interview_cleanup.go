package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const (
	defaultCleanupInterval = 30 * time.Minute
	defaultCleanupDelay    = time.Minute
	defaultStaleAfter      = 2 * time.Hour
)

// InterviewCleanupConfig holds the cleanup schedule. Zero values fall back to defaults.
type InterviewCleanupConfig struct {
	Interval     time.Duration // time between runs
	InitialDelay time.Duration // delay before the first run
	StaleAfter   time.Duration // age after which a running interview record is ended
}

// InterviewCleanupService ends interview records left connecting or active by
// a crashed process or a dropped connection
type InterviewCleanupService struct {
	interviewRepo repositories.InterviewRepository
	config        InterviewCleanupConfig
	logger        *zap.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewInterviewCleanupService creates a new interview cleanup service
func NewInterviewCleanupService(interviewRepo repositories.InterviewRepository, config InterviewCleanupConfig, logger *zap.Logger) *InterviewCleanupService {
	if config.Interval == 0 {
		config.Interval = defaultCleanupInterval
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = defaultCleanupDelay
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = defaultStaleAfter
	}
	return &InterviewCleanupService{
		interviewRepo: interviewRepo,
		config:        config,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *InterviewCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Interview cleanup service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("staleAfter", s.config.StaleAfter))
}

// Stop gracefully stops the cleanup service
func (s *InterviewCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("Interview cleanup service stopped")
	})
}

// cleanupLoop runs the cleanup process periodically
func (s *InterviewCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initialTimer := time.NewTimer(s.config.InitialDelay)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup ends stale interview records
func (s *InterviewCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.logger.Info("Starting interview cleanup")

	ended, err := s.interviewRepo.EndStale(ctx, s.config.StaleAfter)
	if err != nil {
		s.logger.Error("Failed to end stale interviews", zap.Error(err))
		return
	}

	s.logger.Info("Interview cleanup completed", zap.Int("ended", ended))
}
