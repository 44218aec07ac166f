package interview

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

// PCMDuration returns the play time of 16-bit mono PCM at the given rate
func PCMDuration(byteLen, sampleRate int) time.Duration {
	samples := byteLen / entities.BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Scheduler queues inbound audio chunks back-to-back on an output clock.
//
// Each chunk starts at max(nextStart, clock.Now()) and advances nextStart by
// its duration, so chunks play in arrival order with no gap and no overlap.
// Every scheduled buffer leaves the active set exactly once.
type Scheduler struct {
	clock      repositories.OutputClock
	sampleRate int
	logger     *zap.Logger
	metrics    *observe.Metrics

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]time.Duration
	seq       uint64
	skipped   int
	closed    bool
}

// NewScheduler creates a scheduler whose cursor starts at the clock's current time
func NewScheduler(clock repositories.OutputClock, sampleRate int, logger *zap.Logger, metrics *observe.Metrics) *Scheduler {
	return &Scheduler{
		clock:      clock,
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    metrics,
		nextStart:  clock.Now(),
		active:     make(map[uint64]time.Duration),
	}
}

// Enqueue decodes a base64 chunk and schedules it. It returns the start time.
// Chunks that cannot be decoded are logged and skipped.
func (s *Scheduler) Enqueue(chunk string) (time.Duration, error) {
	pcm, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return 0, s.skip(fmt.Errorf("%w: %v", ErrCorruptChunk, err))
	}
	// A trailing odd byte is half a sample.
	if len(pcm)%entities.BytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return 0, s.skip(fmt.Errorf("%w: empty payload", ErrCorruptChunk))
	}
	duration := PCMDuration(len(pcm), s.sampleRate)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSchedulerClosed
	}
	prev := s.nextStart
	start := prev
	if now := s.clock.Now(); now > start {
		start = now
	}
	s.seq++
	id := s.seq
	s.active[id] = start
	s.nextStart = start + duration
	s.mu.Unlock()

	if err := s.clock.Play(pcm, start, func() { s.release(id) }); err != nil {
		s.mu.Lock()
		delete(s.active, id)
		// A buffer that never played must not push later chunks back
		if s.nextStart == start+duration {
			s.nextStart = prev
		}
		s.mu.Unlock()
		s.logger.Warn("Failed to schedule audio chunk", zap.Error(err))
		return 0, err
	}

	s.metrics.RecordChunkScheduled(context.Background())
	s.logger.Debug("Scheduled audio chunk",
		zap.Duration("start", start),
		zap.Duration("duration", duration))

	return start, nil
}

func (s *Scheduler) skip(err error) error {
	s.mu.Lock()
	s.skipped++
	s.mu.Unlock()

	s.metrics.RecordChunkSkipped(context.Background())
	s.logger.Warn("Skipping inbound audio chunk", zap.Error(err))
	return err
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Interrupt drops everything scheduled and resynchronises the cursor to now
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.active = make(map[uint64]time.Duration)
	s.mu.Unlock()

	s.clock.Flush()

	s.mu.Lock()
	s.nextStart = s.clock.Now()
	s.mu.Unlock()
}

// Active returns the number of buffers scheduled or playing
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the time the next chunk would start if the clock stood still
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Skipped returns how many chunks could not be decoded
func (s *Scheduler) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close closes the output clock, which stops every scheduled buffer
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.active = make(map[uint64]time.Duration)
	s.mu.Unlock()

	return s.clock.Close()
}
