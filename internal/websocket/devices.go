package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// ErrPermissionDenied is returned when the browser refused microphone access
var ErrPermissionDenied = errors.New("microphone permission denied by the browser")

// ErrClientGone is returned when the browser connection has closed
var ErrClientGone = errors.New("browser client disconnected")

const captureQueueSize = 32

// browserMicrophone regroups binary sample frames from the browser into
// fixed-size capture buffers
type browserMicrophone struct {
	logger *zap.Logger

	mu         sync.Mutex
	permission string
	stream     *browserStream
	gone       bool
}

var _ repositories.Microphone = (*browserMicrophone)(nil)

func (m *browserMicrophone) setPermission(permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permission = permission
}

func (m *browserMicrophone) Open(ctx context.Context, format repositories.CaptureFormat) (repositories.CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gone {
		return nil, ErrClientGone
	}
	if m.permission == MicrophoneDenied {
		return nil, ErrPermissionDenied
	}
	if m.stream != nil {
		m.stream.Close()
	}
	m.stream = &browserStream{
		size:    format.BufferSize,
		buffers: make(chan []float32, captureQueueSize),
		logger:  m.logger,
	}
	return m.stream, nil
}

// feed appends browser samples to the open stream, if any
func (m *browserMicrophone) feed(samples []float32) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()

	if stream != nil {
		stream.feed(samples)
	}
}

// disconnect closes the stream and refuses later opens
func (m *browserMicrophone) disconnect() {
	m.mu.Lock()
	m.gone = true
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
}

type browserStream struct {
	size   int
	logger *zap.Logger

	mu      sync.Mutex
	pending []float32
	buffers chan []float32
	closed  bool
	dropped int
}

func (s *browserStream) Buffers() <-chan []float32 { return s.buffers }

func (s *browserStream) feed(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= s.size {
		block := make([]float32, s.size)
		copy(block, s.pending[:s.size])
		s.pending = s.pending[s.size:]

		select {
		case s.buffers <- block:
		default:
			s.dropped++
			s.logger.Warn("Dropping capture buffer, consumer is behind", zap.Int("dropped", s.dropped))
		}
	}
}

func (s *browserStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	close(s.buffers)
	return nil
}

// sender queues a JSON message for the browser
type sender func(v any) error

// browserSpeaker forwards scheduled chunks to the browser, which plays them
// at the given offsets. Server-side timers mirror the browser clock so that
// buffers leave the active set when they would have finished playing.
type browserSpeaker struct {
	send   sender
	logger *zap.Logger
}

var _ repositories.OutputDevice = (*browserSpeaker)(nil)

func (s *browserSpeaker) Open(ctx context.Context, sampleRate int) (repositories.OutputClock, error) {
	return &browserClock{
		send:       s.send,
		sampleRate: sampleRate,
		origin:     time.Now(),
		timers:     make(map[uint64]*time.Timer),
		logger:     s.logger,
	}, nil
}

type browserClock struct {
	send       sender
	sampleRate int
	origin     time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	seq    uint64
	closed bool
}

var _ repositories.OutputClock = (*browserClock)(nil)

func (c *browserClock) Now() time.Duration {
	return time.Since(c.origin)
}

func (c *browserClock) Play(pcm []byte, at time.Duration, onEnded func()) error {
	duration := time.Duration(len(pcm)/entities.BytesPerSample) * time.Second / time.Duration(c.sampleRate)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientGone
	}
	c.seq++
	id := c.seq
	c.mu.Unlock()

	err := c.send(&AudioMessage{
		BaseMessage: newBase(MessageTypeAudio),
		Data:        base64.StdEncoding.EncodeToString(pcm),
		StartMs:     at.Milliseconds(),
		DurationMs:  duration.Milliseconds(),
		SampleRate:  c.sampleRate,
	})
	if err != nil {
		return err
	}

	wait := at + duration - c.Now()
	if wait < 0 {
		wait = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientGone
	}
	c.timers[id] = time.AfterFunc(wait, func() {
		c.mu.Lock()
		_, live := c.timers[id]
		delete(c.timers, id)
		c.mu.Unlock()

		if live && onEnded != nil {
			onEnded()
		}
	})
	return nil
}

func (c *browserClock) stopTimersLocked() {
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
}

func (c *browserClock) Flush() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimersLocked()
	c.mu.Unlock()

	if err := c.send(CreateFlushMessage()); err != nil {
		c.logger.Debug("Failed to send audio flush", zap.Error(err))
	}
}

func (c *browserClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimersLocked()
	return nil
}

// CreateFlushMessage tells the browser to stop every scheduled chunk
func CreateFlushMessage() *BaseMessage {
	msg := newBase(MessageTypeAudioFlush)
	return &msg
}
