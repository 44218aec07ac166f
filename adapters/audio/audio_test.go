package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

func TestCaptureArgs(t *testing.T) {
	format := repositories.CaptureFormat{SampleRate: 16000, Channels: 1, BufferSize: 4096}

	linux, err := CaptureArgs("linux", "", format)
	if err != nil {
		t.Fatalf("CaptureArgs linux: %v", err)
	}
	if got := strings.Join(linux, " "); !strings.Contains(got, "-f pulse -i default -ac 1 -ar 16000 -f s16le -") {
		t.Errorf("Unexpected linux args %q", got)
	}

	darwin, err := CaptureArgs("darwin", "", format)
	if err != nil {
		t.Fatalf("CaptureArgs darwin: %v", err)
	}
	if got := strings.Join(darwin, " "); !strings.Contains(got, "-f avfoundation -i :0") {
		t.Errorf("Unexpected darwin args %q", got)
	}

	if _, err := CaptureArgs("windows", "", format); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("Expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestS16LEToFloat32(t *testing.T) {
	samples := S16LEToFloat32([]byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80, 0xff, 0x7f})
	want := []float32{0, 0.5, -1, 32767.0 / 32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Expected sample %d to be %f, got %f", i, want[i], samples[i])
		}
	}
}

func TestReadBlocksDropsPartialBlock(t *testing.T) {
	var blocks [][]float32
	readBlocks(bytes.NewReader(make([]byte, 10)), 2, func(block []float32) {
		blocks = append(blocks, block)
	})
	if len(blocks) != 2 {
		t.Errorf("Expected 2 full blocks, got %d", len(blocks))
	}
	for _, block := range blocks {
		if len(block) != 2 {
			t.Errorf("Expected blocks of 2 samples, got %d", len(block))
		}
	}
}

func TestMicrophoneMissingBinary(t *testing.T) {
	mic := NewFFmpegMicrophone(Config{FFmpegPath: "careerpilot-no-such-ffmpeg"}, zap.NewNop())
	if _, err := mic.Open(context.Background(), repositories.CaptureFormat{SampleRate: 16000, Channels: 1, BufferSize: 4096}); err == nil {
		t.Error("Expected an error when ffmpeg is missing")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (r *recordingSink) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

type sinkFactory struct {
	mu    sync.Mutex
	sinks []*recordingSink
}

func (f *sinkFactory) start() (io.WriteCloser, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sink := &recordingSink{}
	f.sinks = append(f.sinks, sink)
	return sink, func() { _ = sink.Close() }, nil
}

func (f *sinkFactory) sink(i int) *recordingSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[i]
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

func TestPipeClockPlaysInOrder(t *testing.T) {
	factory := &sinkFactory{}
	clock, err := newPipeClock(24000, factory.start, zap.NewNop())
	if err != nil {
		t.Fatalf("newPipeClock: %v", err)
	}
	defer clock.Close()

	ended := make(chan int, 2)
	now := clock.Now()
	// 240 samples play for 10ms at 24 kHz.
	first := bytes.Repeat([]byte{1}, 480)
	second := bytes.Repeat([]byte{2}, 480)
	if err := clock.Play(second, now+40*time.Millisecond, func() { ended <- 2 }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := clock.Play(first, now+10*time.Millisecond, func() { ended <- 1 }); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if got := <-ended; got != 1 {
		t.Errorf("Expected the earlier buffer to end first, got %d", got)
	}
	if got := <-ended; got != 2 {
		t.Errorf("Expected the later buffer to end second, got %d", got)
	}
	written := factory.sink(0).bytes()
	if !bytes.Equal(written, append(first, second...)) {
		t.Error("Expected buffers to be written in start-time order")
	}
}

func TestPipeClockFlushDropsPending(t *testing.T) {
	factory := &sinkFactory{}
	clock, err := newPipeClock(24000, factory.start, zap.NewNop())
	if err != nil {
		t.Fatalf("newPipeClock: %v", err)
	}
	defer clock.Close()

	ended := make(chan struct{}, 1)
	if err := clock.Play(make([]byte, 480), clock.Now()+50*time.Millisecond, func() { ended <- struct{}{} }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock.Flush()

	waitUntil(t, func() bool {
		factory.mu.Lock()
		defer factory.mu.Unlock()
		return len(factory.sinks) == 2
	})
	if !factory.sink(0).closed {
		t.Error("Expected the old sink to be stopped")
	}

	select {
	case <-ended:
		t.Error("Expected no onEnded for a flushed buffer")
	case <-time.After(120 * time.Millisecond):
	}
	if len(factory.sink(1).bytes()) != 0 {
		t.Error("Expected nothing written after flush")
	}
}

func TestPipeClockClose(t *testing.T) {
	factory := &sinkFactory{}
	clock, err := newPipeClock(24000, factory.start, zap.NewNop())
	if err != nil {
		t.Fatalf("newPipeClock: %v", err)
	}

	if err := clock.Play(make([]byte, 480), clock.Now()+20*time.Millisecond, func() {
		t.Error("Expected no onEnded after close")
	}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := clock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := clock.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := clock.Play(make([]byte, 2), 0, nil); err == nil {
		t.Error("Expected Play to fail after close")
	}
	time.Sleep(60 * time.Millisecond)
}
