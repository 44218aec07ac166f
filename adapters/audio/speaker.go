package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// FFplaySpeaker plays PCM through an ffplay subprocess
type FFplaySpeaker struct {
	path   string
	logger *zap.Logger
}

var _ repositories.OutputDevice = (*FFplaySpeaker)(nil)

// NewFFplaySpeaker creates a speaker backed by ffplay
func NewFFplaySpeaker(config Config, logger *zap.Logger) *FFplaySpeaker {
	path := config.FFplayPath
	if path == "" {
		path = defaultFFplayPath
	}
	return &FFplaySpeaker{path: path, logger: logger}
}

// Open starts ffplay reading 16-bit mono PCM at sampleRate from stdin
func (s *FFplaySpeaker) Open(ctx context.Context, sampleRate int) (repositories.OutputClock, error) {
	if _, err := exec.LookPath(s.path); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback: %w", err)
	}

	start := func() (io.WriteCloser, func(), error) {
		cmd := exec.Command(s.path,
			"-nodisp",
			"-autoexit",
			"-loglevel", "error",
			"-f", "s16le",
			"-ar", strconv.Itoa(sampleRate),
			"-ac", "1",
			"-i", "pipe:0",
		)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ffplay stdin: %w", err)
		}
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start ffplay: %w", err)
		}
		stop := func() {
			_ = stdin.Close()
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
		}
		return stdin, stop, nil
	}

	clock, err := newPipeClock(sampleRate, start, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Audio playback started", zap.Int("sampleRate", sampleRate))
	return clock, nil
}

// starter launches a sink and returns a function that stops it
type starter func() (io.WriteCloser, func(), error)

// pipeClock schedules PCM writes on a wall clock that starts when the clock
// is opened. Flush restarts the sink so audio already handed over is dropped.
type pipeClock struct {
	sampleRate int
	start      starter
	origin     time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	sink   io.WriteCloser
	stop   func()
	timers map[uint64]*time.Timer
	seq    uint64
	epoch  uint64
	closed bool
}

var _ repositories.OutputClock = (*pipeClock)(nil)

func newPipeClock(sampleRate int, start starter, logger *zap.Logger) (*pipeClock, error) {
	sink, stop, err := start()
	if err != nil {
		return nil, err
	}
	return &pipeClock{
		sampleRate: sampleRate,
		start:      start,
		origin:     time.Now(),
		logger:     logger,
		sink:       sink,
		stop:       stop,
		timers:     make(map[uint64]*time.Timer),
	}, nil
}

func (c *pipeClock) Now() time.Duration {
	return time.Since(c.origin)
}

func (c *pipeClock) Play(pcm []byte, at time.Duration, onEnded func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("playback closed")
	}

	c.seq++
	id := c.seq
	epoch := c.epoch
	duration := time.Duration(len(pcm)/2) * time.Second / time.Duration(c.sampleRate)

	wait := at - c.Now()
	if wait < 0 {
		wait = 0
	}
	c.timers[id] = time.AfterFunc(wait, func() {
		if !c.write(id, epoch, pcm) {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.epoch != epoch {
			return
		}
		c.timers[id] = time.AfterFunc(duration, func() {
			if c.finish(id, epoch) && onEnded != nil {
				onEnded()
			}
		})
	})
	return nil
}

func (c *pipeClock) write(id, epoch uint64, pcm []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		return false
	}
	if _, err := c.sink.Write(pcm); err != nil {
		c.logger.Warn("Failed to write audio to playback", zap.Error(err))
		delete(c.timers, id)
		return false
	}
	return true
}

func (c *pipeClock) finish(id, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		return false
	}
	delete(c.timers, id)
	return true
}

func (c *pipeClock) stopTimersLocked() {
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.epoch++
}

// Flush drops every scheduled buffer and restarts the sink
func (c *pipeClock) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopTimersLocked()

	c.stop()
	sink, stop, err := c.start()
	if err != nil {
		c.logger.Error("Failed to restart playback", zap.Error(err))
		c.sink, c.stop = discardSink{}, func() {}
		return
	}
	c.sink, c.stop = sink, stop
}

// Close stops every scheduled buffer; no onEnded fires afterwards
func (c *pipeClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimersLocked()
	c.stop()
	return nil
}

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }
func (discardSink) Close() error                { return nil }
