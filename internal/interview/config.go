package interview

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultModel             = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultPendingFrameLimit = 64
	defaultConnectTimeout    = 15 * time.Second
	defaultMaxSendFailures   = 5

	// DefaultSystemInstruction is the interviewer persona given to the live model
	DefaultSystemInstruction = "You are an expert interviewer conducting a mock technical interview. " +
		"Start with introductory questions, then move to behavioral, and finally deep technical questions " +
		"related to common software engineering roles. Be professional and keep your responses concise " +
		"to maintain a conversational flow."

	// MicrophoneFailureMessage is committed to the transcript when capture cannot start
	MicrophoneFailureMessage = "Could not access microphone. Please grant permission and try again."
)

// Config holds configuration for interview sessions.
// All fields are optional; zero values fall back to defaults.
type Config struct {
	Model             string        // live model identifier
	SystemInstruction string        // interviewer persona
	PendingFrameLimit int           // frames buffered before the session opens
	ConnectTimeout    time.Duration // how long a session may stay connecting
	MaxSendFailures   int           // consecutive send failures that end the session
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.PendingFrameLimit < 0 {
		return fmt.Errorf("pending frame limit must be positive, got %d", config.PendingFrameLimit)
	}
	if config.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must be positive, got %s", config.ConnectTimeout)
	}
	if config.MaxSendFailures < 0 {
		return fmt.Errorf("max send failures must be positive, got %d", config.MaxSendFailures)
	}
	return nil
}

// NewConfigFromEnv reads the interview configuration from the environment
func NewConfigFromEnv() Config {
	config := Config{
		Model:             os.Getenv("INTERVIEW_MODEL"),
		SystemInstruction: os.Getenv("INTERVIEW_SYSTEM_INSTRUCTION"),
	}
	if v, err := strconv.Atoi(os.Getenv("INTERVIEW_PENDING_FRAME_LIMIT")); err == nil {
		config.PendingFrameLimit = v
	}
	if v, err := time.ParseDuration(os.Getenv("INTERVIEW_CONNECT_TIMEOUT")); err == nil {
		config.ConnectTimeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("INTERVIEW_MAX_SEND_FAILURES")); err == nil {
		config.MaxSendFailures = v
	}
	return config
}

// applyDefaults fills zero and negative limits so a Controller never runs
// with an unusable queue, timeout or failure budget
func applyDefaults(config Config, logger *zap.Logger) Config {
	if err := ValidateConfig(config); err != nil {
		logger.Warn("Invalid interview config, falling back to defaults", zap.Error(err))
	}
	if config.Model == "" {
		config.Model = defaultModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.SystemInstruction == "" {
		config.SystemInstruction = DefaultSystemInstruction
		logger.Info("Using default system instruction")
	}
	if config.PendingFrameLimit <= 0 {
		config.PendingFrameLimit = defaultPendingFrameLimit
		logger.Info("Using default pending frame limit", zap.Int("pendingFrameLimit", config.PendingFrameLimit))
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
		logger.Info("Using default connect timeout", zap.Duration("connectTimeout", config.ConnectTimeout))
	}
	if config.MaxSendFailures <= 0 {
		config.MaxSendFailures = defaultMaxSendFailures
		logger.Info("Using default max send failures", zap.Int("maxSendFailures", config.MaxSendFailures))
	}
	return config
}
