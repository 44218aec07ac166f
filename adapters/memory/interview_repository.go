package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// InterviewRepository is an in-memory implementation of InterviewRepository.
// Records are copied on the way in and out so callers never share state with the store.
type InterviewRepository struct {
	mu          sync.RWMutex
	records     map[string]*entities.InterviewRecord // id -> record
	byCandidate map[string][]string                  // candidate_id -> record ids
}

var _ repositories.InterviewRepository = (*InterviewRepository)(nil)

// NewInterviewRepository creates a new in-memory interview repository
func NewInterviewRepository() *InterviewRepository {
	return &InterviewRepository{
		records:     make(map[string]*entities.InterviewRecord),
		byCandidate: make(map[string][]string),
	}
}

// Create implements repositories.InterviewRepository
func (m *InterviewRepository) Create(ctx context.Context, record *entities.InterviewRecord) error {
	if record == nil {
		return errors.New("interview record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("interview %s already exists", record.ID)
	}
	m.records[record.ID] = clone(record)
	m.byCandidate[record.CandidateID] = append(m.byCandidate[record.CandidateID], record.ID)
	return nil
}

// Update implements repositories.InterviewRepository
func (m *InterviewRepository) Update(ctx context.Context, record *entities.InterviewRecord) error {
	if record == nil {
		return errors.New("interview record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.records[record.ID]
	if !exists {
		return fmt.Errorf("interview %s: %w", record.ID, repositories.ErrNotFound)
	}
	if existing.CandidateID != record.CandidateID {
		return errors.New("candidate_id cannot change")
	}
	m.records[record.ID] = clone(record)
	return nil
}

// GetByID implements repositories.InterviewRepository
func (m *InterviewRepository) GetByID(ctx context.Context, id string) (*entities.InterviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, fmt.Errorf("interview %s: %w", id, repositories.ErrNotFound)
	}
	return clone(record), nil
}

// ListByCandidate implements repositories.InterviewRepository. Newest first.
func (m *InterviewRepository) ListByCandidate(ctx context.Context, candidateID string, limit int) ([]*entities.InterviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byCandidate[candidateID]
	records := make([]*entities.InterviewRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, clone(m.records[id]))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// EndStale implements repositories.InterviewRepository
func (m *InterviewRepository) EndStale(ctx context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ended := 0
	for _, record := range m.records {
		if record.IsStale(maxAge) {
			record.SetStatus(entities.SessionStatusEnded, nil)
			ended++
		}
	}
	return ended, nil
}

func clone(record *entities.InterviewRecord) *entities.InterviewRecord {
	c := *record
	c.Transcript = append([]entities.TranscriptTurn(nil), record.Transcript...)
	if record.EndedAt != nil {
		endedAt := *record.EndedAt
		c.EndedAt = &endedAt
	}
	return &c
}
