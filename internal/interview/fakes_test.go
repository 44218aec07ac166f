package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

type scheduledPlay struct {
	at      time.Duration
	bytes   int
	onEnded func()
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Duration
	plays   []scheduledPlay
	flushes int
	closes  int
	playErr error
}

var _ repositories.OutputClock = (*fakeClock)(nil)

func (f *fakeClock) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) set(now time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *fakeClock) Play(pcm []byte, at time.Duration, onEnded func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.plays = append(f.plays, scheduledPlay{at: at, bytes: len(pcm), onEnded: onEnded})
	return nil
}

func (f *fakeClock) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeClock) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeClock) scheduled() []scheduledPlay {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledPlay(nil), f.plays...)
}

func (f *fakeClock) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeStream struct {
	buffers chan []float32

	mu     sync.Mutex
	closes int
}

func (f *fakeStream) Buffers() <-chan []float32 { return f.buffers }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeMicrophone struct {
	stream *fakeStream
	err    error
	format repositories.CaptureFormat
	opens  int
}

func (f *fakeMicrophone) Open(ctx context.Context, format repositories.CaptureFormat) (repositories.CaptureStream, error) {
	f.opens++
	f.format = format
	if f.err != nil {
		return nil, f.err
	}
	f.stream = &fakeStream{buffers: make(chan []float32, 16)}
	return f.stream, nil
}

type fakeSpeaker struct {
	clock      *fakeClock
	err        error
	sampleRate int
	opens      int
}

func (f *fakeSpeaker) Open(ctx context.Context, sampleRate int) (repositories.OutputClock, error) {
	f.opens++
	f.sampleRate = sampleRate
	if f.err != nil {
		return nil, f.err
	}
	f.clock = &fakeClock{}
	return f.clock, nil
}

type fakeRemote struct {
	mu      sync.Mutex
	frames  []entities.AudioFrame
	closes  int
	sendErr error
}

func (f *fakeRemote) SendRealtimeInput(frame entities.AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeRemote) sent() []entities.AudioFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.AudioFrame(nil), f.frames...)
}

func (f *fakeRemote) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeRemote) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

type fakeConnector struct {
	remote    *fakeRemote
	err       error
	config    repositories.LiveSessionConfig
	callbacks repositories.LiveCallbacks
	connects  int
}

func (f *fakeConnector) Connect(ctx context.Context, config repositories.LiveSessionConfig, callbacks repositories.LiveCallbacks) (repositories.RemoteSession, error) {
	f.connects++
	f.config = config
	f.callbacks = callbacks
	if f.err != nil {
		return nil, f.err
	}
	f.remote = &fakeRemote{}
	return f.remote, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []entities.SessionStatus
	turns    []entities.TranscriptTurn
}

func (r *recordingObserver) OnStatusChange(status entities.SessionStatus, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingObserver) OnTurns(turns []entities.TranscriptTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turns...)
}

func (r *recordingObserver) seenStatuses() []entities.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.SessionStatus(nil), r.statuses...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
