// Package audio provides the local microphone and speaker used by the
// terminal interview, backed by ffmpeg and ffplay subprocesses.
package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const (
	defaultFFmpegPath = "ffmpeg"
	defaultFFplayPath = "ffplay"
	bufferQueueSize   = 16
)

// ErrUnsupportedPlatform is returned when no capture backend exists for the OS
var ErrUnsupportedPlatform = errors.New("audio capture is not supported on this platform")

// Config holds the subprocess settings for local audio
type Config struct {
	FFmpegPath  string // default: ffmpeg
	FFplayPath  string // default: ffplay
	InputDevice string // default: "default" on linux, ":0" on darwin
}

// NewConfigFromEnv reads the audio configuration from the environment
func NewConfigFromEnv() Config {
	return Config{
		FFmpegPath:  os.Getenv("FFMPEG_PATH"),
		FFplayPath:  os.Getenv("FFPLAY_PATH"),
		InputDevice: os.Getenv("AUDIO_INPUT_DEVICE"),
	}
}

// CaptureArgs returns the ffmpeg arguments that record the input device as
// raw s16le PCM on stdout
func CaptureArgs(goos, device string, format repositories.CaptureFormat) ([]string, error) {
	var input []string
	switch goos {
	case "linux":
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "pulse", "-i", device}
	case "darwin":
		if device == "" {
			device = ":0"
		}
		input = []string{"-f", "avfoundation", "-i", device}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le", "-",
	), nil
}

// FFmpegMicrophone captures the default input device through ffmpeg
type FFmpegMicrophone struct {
	path   string
	device string
	goos   string
	logger *zap.Logger
}

var _ repositories.Microphone = (*FFmpegMicrophone)(nil)

// NewFFmpegMicrophone creates a microphone backed by ffmpeg
func NewFFmpegMicrophone(config Config, logger *zap.Logger) *FFmpegMicrophone {
	path := config.FFmpegPath
	if path == "" {
		path = defaultFFmpegPath
	}
	return &FFmpegMicrophone{
		path:   path,
		device: config.InputDevice,
		goos:   runtime.GOOS,
		logger: logger,
	}
}

// Open starts ffmpeg. A missing binary or a capture process that cannot
// start is reported as an unavailable device.
func (m *FFmpegMicrophone) Open(ctx context.Context, format repositories.CaptureFormat) (repositories.CaptureStream, error) {
	if _, err := exec.LookPath(m.path); err != nil {
		return nil, fmt.Errorf("ffmpeg is required for microphone capture: %w", err)
	}
	args, err := CaptureArgs(m.goos, m.device, format)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(m.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg capture: %w", err)
	}

	m.logger.Info("Microphone capture started",
		zap.Int("sampleRate", format.SampleRate),
		zap.Int("bufferSize", format.BufferSize))

	stream := &processStream{
		cmd:     cmd,
		buffers: make(chan []float32, bufferQueueSize),
		done:    make(chan struct{}),
		logger:  m.logger,
	}
	go stream.pump(stdout, format.BufferSize*format.Channels)
	return stream, nil
}

type processStream struct {
	cmd     *exec.Cmd
	buffers chan []float32
	done    chan struct{}
	logger  *zap.Logger

	closeOnce sync.Once
}

func (s *processStream) Buffers() <-chan []float32 { return s.buffers }

// pump reads fixed-size blocks until ffmpeg exits. A trailing partial block
// is dropped.
func (s *processStream) pump(r io.Reader, samples int) {
	defer close(s.buffers)
	readBlocks(bufio.NewReader(r), samples, func(block []float32) {
		select {
		case s.buffers <- block:
		case <-s.done:
		}
	})
}

func readBlocks(r io.Reader, samples int, emit func([]float32)) {
	raw := make([]byte, samples*2)
	for {
		if _, err := io.ReadFull(r, raw); err != nil {
			return
		}
		emit(S16LEToFloat32(raw))
	}
}

func (s *processStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
		s.logger.Info("Microphone capture stopped")
	})
	return nil
}
