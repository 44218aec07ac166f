package repositories

import (
	"context"
	"time"
)

// CaptureFormat describes the microphone stream requested by the caller
type CaptureFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BufferSize int `json:"buffer_size"`
}

// Microphone acquires an audio input device
type Microphone interface {
	// Open fails when permission is denied or no device is available
	Open(ctx context.Context, format CaptureFormat) (CaptureStream, error)
}

// CaptureStream delivers fixed-size buffers of samples in [-1, 1]
type CaptureStream interface {
	// Buffers is closed when capture stops
	Buffers() <-chan []float32
	Close() error
}

// OutputDevice acquires an audio output
type OutputDevice interface {
	Open(ctx context.Context, sampleRate int) (OutputClock, error)
}

// OutputClock plays 16-bit mono PCM at absolute times on its own clock
type OutputClock interface {
	// Now is the current position of the output clock
	Now() time.Duration
	// Play schedules pcm to start at the given clock time. onEnded is
	// called once when playback of the buffer finishes.
	Play(pcm []byte, at time.Duration, onEnded func()) error
	// Flush stops every scheduled buffer without closing the clock
	Flush()
	// Close stops every scheduled buffer and releases the device
	Close() error
}
