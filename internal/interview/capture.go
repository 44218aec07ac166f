package interview

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

// EncodeFrame converts float samples in [-1, 1] to a base64 16-bit PCM frame.
//
// Samples are scaled by 32768 and converted without clipping, so exactly +1.0
// wraps to -32768. Microphones rarely deliver full scale and the live service
// tolerates the glitch.
func EncodeFrame(samples []float32) entities.AudioFrame {
	pcm := make([]byte, len(samples)*entities.BytesPerSample)
	for i, sample := range samples {
		v := int32(sample * 32768)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return entities.AudioFrame{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: entities.InputMIMEType,
	}
}

// capturePipeline forwards encoded microphone frames to the remote session.
// Frames produced before the session opens wait in a bounded queue that drops
// the oldest frame when full.
type capturePipeline struct {
	limit       int
	maxFailures int
	onFatal     func(error)
	logger      *zap.Logger
	metrics     *observe.Metrics

	mu       sync.Mutex
	remote   repositories.RemoteSession
	open     bool
	pending  []entities.AudioFrame
	dropped  int
	sent     int
	failures int
	fatal    bool
}

func newCapturePipeline(limit, maxFailures int, onFatal func(error), logger *zap.Logger, metrics *observe.Metrics) *capturePipeline {
	return &capturePipeline{
		limit:       limit,
		maxFailures: maxFailures,
		onFatal:     onFatal,
		logger:      logger,
		metrics:     metrics,
		pending:     make([]entities.AudioFrame, 0, limit),
	}
}

// run encodes every delivered buffer until the stream closes or ctx is done
func (p *capturePipeline) run(ctx context.Context, buffers <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-buffers:
			if !ok {
				return
			}
			p.submit(EncodeFrame(buf))
		}
	}
}

func (p *capturePipeline) submit(frame entities.AudioFrame) {
	p.mu.Lock()
	if !p.open || p.remote == nil {
		p.enqueueLocked(frame)
		p.mu.Unlock()
		return
	}
	err := p.sendLocked(frame)
	p.mu.Unlock()

	if err != nil {
		p.onFatal(err)
	}
}

func (p *capturePipeline) enqueueLocked(frame entities.AudioFrame) {
	if len(p.pending) >= p.limit {
		p.pending = p.pending[1:]
		p.dropped++
		p.metrics.RecordFrameDropped(context.Background())
	}
	p.pending = append(p.pending, frame)
}

// sendLocked sends one frame and returns a non-nil error only when the
// failure budget is exhausted
func (p *capturePipeline) sendLocked(frame entities.AudioFrame) error {
	if p.fatal {
		return nil
	}
	if err := p.remote.SendRealtimeInput(frame); err != nil {
		p.failures++
		p.metrics.RecordFrameSendFailure(context.Background())
		p.logger.Warn("Failed to send audio frame",
			zap.Int("consecutiveFailures", p.failures),
			zap.Error(err))
		if p.failures >= p.maxFailures {
			p.fatal = true
			return fmt.Errorf("%w: %v", ErrTooManySendFailures, err)
		}
		return nil
	}
	p.failures = 0
	p.sent++
	p.metrics.RecordFrameSent(context.Background())
	return nil
}

// attachRemote sets the session frames are sent to
func (p *capturePipeline) attachRemote(remote repositories.RemoteSession) {
	p.mu.Lock()
	p.remote = remote
	err := p.flushLocked()
	p.mu.Unlock()

	if err != nil {
		p.onFatal(err)
	}
}

// markOpen releases queued frames once the remote session is open
func (p *capturePipeline) markOpen() {
	p.mu.Lock()
	p.open = true
	err := p.flushLocked()
	p.mu.Unlock()

	if err != nil {
		p.onFatal(err)
	}
}

func (p *capturePipeline) flushLocked() error {
	if !p.open || p.remote == nil || len(p.pending) == 0 {
		return nil
	}
	queued := p.pending
	p.pending = make([]entities.AudioFrame, 0, p.limit)
	if len(queued) > 0 {
		p.logger.Debug("Flushing queued audio frames", zap.Int("frames", len(queued)))
	}
	for _, frame := range queued {
		if err := p.sendLocked(frame); err != nil {
			return err
		}
	}
	return nil
}

type captureStats struct {
	Sent    int
	Dropped int
	Pending int
}

func (p *capturePipeline) stats() captureStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return captureStats{Sent: p.sent, Dropped: p.dropped, Pending: len(p.pending)}
}
