package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

func TestBrowserMicrophoneRegroupsSamples(t *testing.T) {
	mic := &browserMicrophone{permission: MicrophoneGranted, logger: zap.NewNop()}
	stream, err := mic.Open(context.Background(), repositories.CaptureFormat{SampleRate: 16000, Channels: 1, BufferSize: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mic.feed([]float32{1, 2, 3})
	mic.feed([]float32{4, 5, 6, 7, 8, 9})

	first := <-stream.Buffers()
	second := <-stream.Buffers()
	if first[0] != 1 || first[3] != 4 || second[0] != 5 || second[3] != 8 {
		t.Errorf("Unexpected buffers %v %v", first, second)
	}
	select {
	case extra := <-stream.Buffers():
		t.Errorf("Expected the partial buffer to wait, got %v", extra)
	default:
	}

	mic.disconnect()
	if _, ok := <-stream.Buffers(); ok {
		t.Error("Expected the stream to close on disconnect")
	}
	if _, err := mic.Open(context.Background(), repositories.CaptureFormat{BufferSize: 4}); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestBrowserMicrophoneDenied(t *testing.T) {
	mic := &browserMicrophone{logger: zap.NewNop()}
	mic.setPermission(MicrophoneDenied)

	if _, err := mic.Open(context.Background(), repositories.CaptureFormat{BufferSize: 4096}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

type capturedSends struct {
	mu       sync.Mutex
	messages []json.RawMessage
}

func (c *capturedSends) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, payload)
	return nil
}

func (c *capturedSends) all() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.messages...)
}

func TestBrowserClockPlay(t *testing.T) {
	sends := &capturedSends{}
	speaker := &browserSpeaker{send: sends.send, logger: zap.NewNop()}
	clock, err := speaker.Open(context.Background(), 24000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer clock.Close()

	ended := make(chan struct{}, 1)
	// 480 samples play for 20ms at 24 kHz.
	if err := clock.Play(make([]byte, 960), 1500*time.Millisecond, func() { ended <- struct{}{} }); err != nil {
		t.Fatalf("Play: %v", err)
	}

	messages := sends.all()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	var audio AudioMessage
	if err := json.Unmarshal(messages[0], &audio); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if audio.Type != MessageTypeAudio || audio.StartMs != 1500 || audio.DurationMs != 20 || audio.SampleRate != 24000 {
		t.Errorf("Unexpected audio message %+v", audio)
	}

	select {
	case <-ended:
		t.Fatal("Expected onEnded to wait for the scheduled end")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrowserClockFlushCancelsEnded(t *testing.T) {
	sends := &capturedSends{}
	speaker := &browserSpeaker{send: sends.send, logger: zap.NewNop()}
	clock, _ := speaker.Open(context.Background(), 24000)
	defer clock.Close()

	ended := make(chan struct{}, 1)
	if err := clock.Play(make([]byte, 960), 30*time.Millisecond, func() { ended <- struct{}{} }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock.Flush()

	select {
	case <-ended:
		t.Error("Expected no onEnded after flush")
	case <-time.After(100 * time.Millisecond):
	}

	messages := sends.all()
	var last BaseMessage
	if err := json.Unmarshal(messages[len(messages)-1], &last); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if last.Type != MessageTypeAudioFlush {
		t.Errorf("Expected an audio_flush message, got %s", last.Type)
	}
}

func TestBrowserClockEnded(t *testing.T) {
	sends := &capturedSends{}
	speaker := &browserSpeaker{send: sends.send, logger: zap.NewNop()}
	clock, _ := speaker.Open(context.Background(), 24000)

	ended := make(chan struct{}, 1)
	if err := clock.Play(make([]byte, 480), 0, func() { ended <- struct{}{} }); err != nil {
		t.Fatalf("Play: %v", err)
	}
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for onEnded")
	}

	if err := clock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := clock.Play(make([]byte, 2), 0, nil); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone after close, got %v", err)
	}
}
