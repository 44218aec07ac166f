package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

// Observer is notified of status changes and committed transcript turns.
// Calls are made without the controller lock held, one at a time, in the
// order the changes happened.
type Observer interface {
	OnStatusChange(status entities.SessionStatus, cause error)
	OnTurns(turns []entities.TranscriptTurn)
}

// Observers fans notifications out to several observers
type Observers []Observer

func (o Observers) OnStatusChange(status entities.SessionStatus, cause error) {
	for _, observer := range o {
		observer.OnStatusChange(status, cause)
	}
}

func (o Observers) OnTurns(turns []entities.TranscriptTurn) {
	for _, observer := range o {
		observer.OnTurns(turns)
	}
}

// Option configures a Controller
type Option func(*Controller)

// WithObserver registers an observer
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, observer)
	}
}

// WithMetrics records session metrics
func WithMetrics(metrics *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// Controller owns the lifecycle of one interview at a time.
//
// Status moves idle -> connecting -> active -> ended|error. Every path out of
// connecting or active releases the microphone, the playback device and the
// remote session exactly once. A new Start is accepted from idle, ended or
// error and discards the previous transcript.
type Controller struct {
	connector repositories.LiveConnector
	mic       repositories.Microphone
	speaker   repositories.OutputDevice
	config    Config
	logger    *zap.Logger
	observers Observers
	metrics   *observe.Metrics

	mu         sync.Mutex
	status     entities.SessionStatus
	transcript []entities.TranscriptTurn
	err        error
	current    *session

	// guarded by mu
	outbox     []notification
	delivering bool
}

// notification is a status change, or committed turns when turns is non-nil
type notification struct {
	status entities.SessionStatus
	cause  error
	turns  []entities.TranscriptTurn
}

// NewController creates a Controller in the idle status
func NewController(
	connector repositories.LiveConnector,
	mic repositories.Microphone,
	speaker repositories.OutputDevice,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Controller {
	c := &Controller{
		connector:  connector,
		mic:        mic,
		speaker:    speaker,
		config:     applyDefaults(config, logger),
		logger:     logger,
		status:     entities.SessionStatusIdle,
		transcript: make([]entities.TranscriptTurn, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acquires the microphone and the output device, then opens the remote
// session. It returns once the session is connecting; the switch to active
// happens when the remote side confirms the open.
func (c *Controller) Start(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &session{startedAt: time.Now(), cancel: cancel}

	c.mu.Lock()
	if c.status.IsRunning() {
		c.mu.Unlock()
		cancel()
		return ErrSessionInProgress
	}
	c.current = s
	c.status = entities.SessionStatusConnecting
	c.transcript = make([]entities.TranscriptTurn, 0)
	c.err = nil
	c.queue(notification{status: entities.SessionStatusConnecting})
	c.mu.Unlock()

	c.logger.Info("Starting interview session", zap.String("model", c.config.Model))
	c.deliver()

	stream, err := c.mic.Open(ctx, repositories.CaptureFormat{
		SampleRate: entities.InputSampleRate,
		Channels:   1,
		BufferSize: entities.CaptureBufferSize,
	})
	if err != nil {
		c.logger.Error("Failed to open microphone", zap.Error(err))
		c.commitTurns(s, []entities.TranscriptTurn{{Role: entities.RoleModel, Content: MicrophoneFailureMessage}})
		return c.abortStart(s, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err))
	}
	if !s.attach(func() { s.stream = stream }) {
		_ = stream.Close()
		return ErrSessionStopped
	}

	clock, err := c.speaker.Open(ctx, entities.OutputSampleRate)
	if err != nil {
		c.logger.Error("Failed to open audio output", zap.Error(err))
		return c.abortStart(s, fmt.Errorf("%w: %v", ErrOutputUnavailable, err))
	}
	playback := NewScheduler(clock, entities.OutputSampleRate, c.logger, c.metrics)
	if !s.attach(func() { s.playback = playback }) {
		_ = playback.Close()
		return ErrSessionStopped
	}

	capture := newCapturePipeline(
		c.config.PendingFrameLimit,
		c.config.MaxSendFailures,
		func(err error) { c.finish(s, entities.SessionStatusError, err) },
		c.logger,
		c.metrics,
	)
	s.capture = capture
	go capture.run(sessionCtx, stream.Buffers())

	remote, err := c.connector.Connect(ctx, repositories.LiveSessionConfig{
		Model:               c.config.Model,
		SystemInstruction:   c.config.SystemInstruction,
		ResponseModalities:  []string{"AUDIO"},
		InputTranscription:  true,
		OutputTranscription: true,
	}, repositories.LiveCallbacks{
		OnOpen:    func() { c.onOpen(s) },
		OnMessage: func(msg entities.LiveMessage) { c.onMessage(s, msg) },
		OnError:   func(err error) { c.finish(s, entities.SessionStatusError, err) },
		OnClose:   func() { c.finish(s, entities.SessionStatusEnded, nil) },
	})
	if err != nil {
		c.logger.Error("Failed to connect live session", zap.Error(err))
		return c.abortStart(s, err)
	}
	if !s.attach(func() { s.remote = remote }) {
		_ = remote.Close()
		return ErrSessionStopped
	}
	capture.attachRemote(remote)

	timer := time.AfterFunc(c.config.ConnectTimeout, func() { c.onConnectTimeout(s) })
	if !s.attach(func() { s.timer = timer }) {
		timer.Stop()
	}

	c.metrics.RecordInterviewStart(ctx, "ok")
	return nil
}

func (c *Controller) abortStart(s *session, err error) error {
	c.metrics.RecordInterviewStart(context.Background(), "error")
	c.finish(s, entities.SessionStatusError, err)
	return err
}

// Stop ends the running session. It is a no-op when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	running := c.status.IsRunning()
	c.mu.Unlock()

	if !running || s == nil {
		return
	}
	c.logger.Info("Stopping interview session")
	c.finish(s, entities.SessionStatusEnded, nil)
}

// Status returns the current lifecycle status
func (c *Controller) Status() entities.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StatusMessage returns the user-facing text for the current status
func (c *Controller) StatusMessage() string {
	return entities.StatusMessage(c.Status())
}

// Transcript returns a copy of the committed turns
func (c *Controller) Transcript() []entities.TranscriptTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]entities.TranscriptTurn, len(c.transcript))
	copy(turns, c.transcript)
	return turns
}

// Err returns the cause of the error status, if any
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) onOpen(s *session) {
	c.mu.Lock()
	if c.current != s || c.status != entities.SessionStatusConnecting {
		c.mu.Unlock()
		return
	}
	c.status = entities.SessionStatusActive
	c.queue(notification{status: entities.SessionStatusActive})
	c.mu.Unlock()

	s.stopTimer()
	connectTime := time.Since(s.startedAt)
	c.logger.Info("Interview session opened", zap.Duration("connectTime", connectTime))
	c.metrics.RecordInterviewOpened(context.Background(), connectTime)
	c.deliver()

	s.capture.markOpen()
}

func (c *Controller) onMessage(s *session, msg entities.LiveMessage) {
	c.mu.Lock()
	if c.current != s || !c.status.IsRunning() {
		c.mu.Unlock()
		return
	}
	if msg.InputTranscription != "" {
		s.accumulator.AppendInput(msg.InputTranscription)
	}
	if msg.OutputTranscription != "" {
		s.accumulator.AppendOutput(msg.OutputTranscription)
	}
	var turns []entities.TranscriptTurn
	if msg.TurnComplete {
		turns = s.accumulator.Complete()
		c.transcript = append(c.transcript, turns...)
		if len(turns) > 0 {
			c.queue(notification{turns: turns})
		}
	}
	c.mu.Unlock()

	if playback := s.scheduler(); playback != nil {
		if msg.Interrupted {
			c.logger.Debug("Model output interrupted, flushing playback")
			playback.Interrupt()
		}
		for _, chunk := range msg.AudioChunks {
			if _, err := playback.Enqueue(chunk); errors.Is(err, ErrSchedulerClosed) {
				break
			}
		}
	}

	if len(turns) > 0 {
		c.deliver()
	}
}

func (c *Controller) onConnectTimeout(s *session) {
	c.mu.Lock()
	stalled := c.current == s && c.status == entities.SessionStatusConnecting
	c.mu.Unlock()

	if stalled {
		c.logger.Warn("Live session did not open in time", zap.Duration("timeout", c.config.ConnectTimeout))
		c.finish(s, entities.SessionStatusError, ErrConnectTimeout)
	}
}

func (c *Controller) commitTurns(s *session, turns []entities.TranscriptTurn) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.transcript = append(c.transcript, turns...)
	c.queue(notification{turns: turns})
	c.mu.Unlock()

	c.deliver()
}

// finish moves s to a terminal status and releases its resources.
// Only the first call for a session changes the status.
func (c *Controller) finish(s *session, status entities.SessionStatus, cause error) {
	c.mu.Lock()
	if c.current != s || !c.status.IsRunning() {
		c.mu.Unlock()
		s.teardown(c.logger)
		return
	}
	wasActive := c.status == entities.SessionStatusActive
	c.status = status
	c.err = cause
	c.queue(notification{status: status, cause: cause})
	c.mu.Unlock()

	s.teardown(c.logger)

	if cause != nil {
		c.logger.Error("Interview session failed", zap.Error(cause))
	} else {
		c.logger.Info("Interview session ended", zap.String("status", string(status)))
	}
	c.metrics.RecordInterviewEnd(context.Background(), string(status), wasActive)
	c.deliver()
}

// queue adds a notification to the outbox. c.mu must be held.
func (c *Controller) queue(n notification) {
	c.outbox = append(c.outbox, n)
}

// deliver hands queued notifications to the observers. Only one goroutine
// delivers at a time; a caller that finds delivery in progress leaves its
// notifications to that goroutine, which also covers calls made from inside
// an observer.
func (c *Controller) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()

		for _, n := range batch {
			if n.turns != nil {
				c.observers.OnTurns(n.turns)
			} else {
				c.observers.OnStatusChange(n.status, n.cause)
			}
		}

		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

// session holds the resources of one Start call
type session struct {
	startedAt   time.Time
	accumulator Accumulator // guarded by Controller.mu
	capture     *capturePipeline

	mu       sync.Mutex
	closed   bool
	cancel   context.CancelFunc
	timer    *time.Timer
	stream   repositories.CaptureStream
	playback *Scheduler
	remote   repositories.RemoteSession
}

// attach runs set unless the session was already torn down
func (s *session) attach(set func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	set()
	return true
}

func (s *session) scheduler() *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback
}

func (s *session) stopTimer() {
	s.mu.Lock()
	timer := s.timer
	s.timer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// teardown releases every acquired resource once
func (s *session) teardown(logger *zap.Logger) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, timer := s.cancel, s.timer
	stream, playback, remote := s.stream, s.playback, s.remote
	s.cancel, s.timer, s.stream, s.playback, s.remote = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			logger.Warn("Failed to close microphone", zap.Error(err))
		}
	}
	if playback != nil {
		if err := playback.Close(); err != nil {
			logger.Warn("Failed to close audio output", zap.Error(err))
		}
	}
	if remote != nil {
		if err := remote.Close(); err != nil {
			logger.Warn("Failed to close live session", zap.Error(err))
		}
	}
}
