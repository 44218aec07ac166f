package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager manages saga execution and coordination
type Manager struct {
	logger      *zap.Logger
	instances   map[SagaID]*SagaInstance
	definitions map[string]SagaDefinition
	onEvent     func(SagaEvent)
	mu          sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithEventHandler receives every lifecycle event. It is called synchronously
// from the saga goroutine and must not block.
func WithEventHandler(handler func(SagaEvent)) Option {
	return func(m *Manager) {
		m.onEvent = handler
	}
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:      logger,
		instances:   make(map[SagaID]*SagaInstance),
		definitions: make(map[string]SagaDefinition),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterDefinition registers a saga definition
func (m *Manager) RegisterDefinition(def SagaDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID()] = def
	m.logger.Info("Saga definition registered", zap.String("id", def.ID()))
}

// StartSaga starts a new saga instance in the background. The saga outlives
// ctx cancellation and is bounded by the definition timeout. onDone, if not
// nil, receives the final snapshot.
func (m *Manager) StartSaga(ctx context.Context, definitionID string, data SagaData, onDone func(SagaInstance)) (SagaID, error) {
	m.mu.Lock()
	def, exists := m.definitions[definitionID]
	if !exists {
		m.mu.Unlock()
		return "", fmt.Errorf("saga definition not found: %s", definitionID)
	}

	sagaID := SagaID(fmt.Sprintf("%s_%s", definitionID, uuid.NewString()))

	steps := def.Steps()
	stepExecs := make([]StepExecution, len(steps))
	for i, step := range steps {
		stepExecs[i] = StepExecution{
			ID:    step.ID(),
			State: StepStatePending,
		}
	}

	if data == nil {
		data = SagaData{}
	}
	m.instances[sagaID] = &SagaInstance{
		ID:         sagaID,
		Definition: definitionID,
		State:      SagaStateStarted,
		Data:       data.clone(),
		Steps:      stepExecs,
		StartedAt:  time.Now(),
	}
	m.mu.Unlock()

	m.emitEvent(SagaEvent{SagaID: sagaID, Type: EventSagaStarted, Timestamp: time.Now()})

	go func() {
		m.executeSaga(context.WithoutCancel(ctx), sagaID, def, steps)
		if onDone != nil {
			if snapshot, ok := m.GetSaga(sagaID); ok {
				onDone(snapshot)
			}
		}
	}()

	m.logger.Info("Saga started", zap.String("sagaID", string(sagaID)), zap.String("definition", definitionID))
	return sagaID, nil
}

// GetSaga returns a snapshot of a saga instance
func (m *Manager) GetSaga(sagaID SagaID) (SagaInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, exists := m.instances[sagaID]
	if !exists {
		return SagaInstance{}, false
	}

	snapshot := *instance
	snapshot.Data = instance.Data.clone()
	snapshot.Steps = append([]StepExecution(nil), instance.Steps...)
	snapshot.Compensations = append([]Compensation(nil), instance.Compensations...)
	return snapshot, true
}

// Forget drops a finished saga instance
func (m *Manager) Forget(sagaID SagaID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[sagaID]; exists && instance.CompletedAt != nil {
		delete(m.instances, sagaID)
	}
}

// executeSaga executes a saga instance
func (m *Manager) executeSaga(ctx context.Context, sagaID SagaID, def SagaDefinition, steps []Step) {
	m.update(sagaID, func(instance *SagaInstance) { instance.State = SagaStateRunning })

	ctx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	// Execute steps sequentially
	lastCompletedStep := -1
	for i, step := range steps {
		if err := m.executeStep(ctx, sagaID, i, step); err != nil {
			m.logger.Error("Step failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))

			m.update(sagaID, func(instance *SagaInstance) { instance.Error = err.Error() })
			m.logger.Info("Starting compensation", zap.String("sagaID", string(sagaID)))
			m.compensateSaga(ctx, sagaID, steps, lastCompletedStep)
			return
		}
		lastCompletedStep = i
	}

	m.completeSaga(sagaID)
}

// executeStep executes a single step
func (m *Manager) executeStep(ctx context.Context, sagaID SagaID, stepIndex int, step Step) error {
	now := time.Now()
	var data SagaData
	m.update(sagaID, func(instance *SagaInstance) {
		instance.Steps[stepIndex].State = StepStateRunning
		instance.Steps[stepIndex].StartedAt = &now
		data = instance.Data.clone()
	})
	m.emitEvent(SagaEvent{SagaID: sagaID, StepID: step.ID(), Type: EventStepStarted, Timestamp: now})

	result := step.Execute(ctx, data)
	if result.Error == nil && ctx.Err() != nil {
		result.Error = ctx.Err()
	}
	now = time.Now()

	if result.Error != nil {
		m.update(sagaID, func(instance *SagaInstance) {
			instance.Steps[stepIndex].State = StepStateFailed
			instance.Steps[stepIndex].Error = result.Error.Error()
			instance.Steps[stepIndex].CompletedAt = &now
		})
		m.emitEvent(SagaEvent{SagaID: sagaID, StepID: step.ID(), Type: EventStepFailed, Timestamp: now, Error: result.Error.Error()})
		return result.Error
	}

	m.update(sagaID, func(instance *SagaInstance) {
		for k, v := range result.Data {
			instance.Data[k] = v
		}
		instance.Steps[stepIndex].State = StepStateCompleted
		instance.Steps[stepIndex].CompletedAt = &now
	})
	m.emitEvent(SagaEvent{SagaID: sagaID, StepID: step.ID(), Type: EventStepCompleted, Timestamp: now})

	m.logger.Info("Step completed",
		zap.String("sagaID", string(sagaID)),
		zap.String("stepID", string(step.ID())))
	return nil
}

// compensateSaga runs compensation for completed steps in reverse order
func (m *Manager) compensateSaga(ctx context.Context, sagaID SagaID, steps []Step, lastCompletedStep int) {
	// Undo runs even when the forward path ran out of time
	ctx = context.WithoutCancel(ctx)

	for i := lastCompletedStep; i >= 0; i-- {
		step := steps[i]

		m.logger.Info("Compensating step",
			zap.String("sagaID", string(sagaID)),
			zap.String("stepID", string(step.ID())))

		var data SagaData
		m.update(sagaID, func(instance *SagaInstance) { data = instance.Data.clone() })

		err := step.Compensate(ctx, data)
		record := Compensation{StepID: step.ID(), At: time.Now()}
		if err != nil {
			record.Error = err.Error()
			m.logger.Error("Compensation failed",
				zap.String("sagaID", string(sagaID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
		}

		m.update(sagaID, func(instance *SagaInstance) {
			instance.Compensations = append(instance.Compensations, record)
			if err == nil {
				instance.Steps[i].State = StepStateCompensated
			}
		})
		if err == nil {
			m.emitEvent(SagaEvent{SagaID: sagaID, StepID: step.ID(), Type: EventStepCompensated, Timestamp: record.At})
		}
	}

	now := time.Now()
	m.update(sagaID, func(instance *SagaInstance) {
		instance.State = SagaStateCompensated
		instance.CompletedAt = &now
	})
	m.emitEvent(SagaEvent{SagaID: sagaID, Type: EventSagaCompensated, Timestamp: now})

	m.logger.Info("Saga compensated", zap.String("sagaID", string(sagaID)))
}

// completeSaga marks a saga as completed
func (m *Manager) completeSaga(sagaID SagaID) {
	now := time.Now()
	m.update(sagaID, func(instance *SagaInstance) {
		instance.State = SagaStateCompleted
		instance.CompletedAt = &now
	})
	m.emitEvent(SagaEvent{SagaID: sagaID, Type: EventSagaCompleted, Timestamp: now})

	m.logger.Info("Saga completed", zap.String("sagaID", string(sagaID)))
}

func (m *Manager) update(sagaID SagaID, fn func(instance *SagaInstance)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if instance, exists := m.instances[sagaID]; exists {
		fn(instance)
	}
}

func (m *Manager) emitEvent(event SagaEvent) {
	if m.onEvent != nil {
		m.onEvent(event)
	}
}
