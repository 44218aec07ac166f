package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultParseModel     = "gemini-flash-latest"
	defaultAnalysisModel  = "gemini-2.5-pro"
	defaultSearchModel    = "gemini-flash-latest"
	defaultWriterModel    = "gemini-flash-lite-latest"
	defaultChatModel      = "gemini-flash-lite-latest"
	defaultThinkingBudget = 32768
	defaultTimeoutSeconds = 120
	defaultMaxAttempts    = 3
)

// GeminiConfig holds configuration for the Gemini career assistant.
// Only APIKey is required; every other zero value falls back to a default.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string // overrides the API endpoint, used by tests
	ParseModel     string // transcribes resume documents
	AnalysisModel  string // ATS analysis, runs with a thinking budget
	SearchModel    string // grounded job search
	WriterModel    string // cover letters
	ChatModel      string // career chat
	ThinkingBudget int32
	TimeoutSeconds int
	MaxAttempts    int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Gemini API key is required")
	}
	if config.ThinkingBudget < 0 {
		return fmt.Errorf("thinking budget must be positive, got %d", config.ThinkingBudget)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be positive, got %d", config.MaxAttempts)
	}
	return nil
}

// NewGeminiConfigFromEnv reads the assistant configuration from the environment
func NewGeminiConfigFromEnv() GeminiConfig {
	config := GeminiConfig{
		APIKey:        os.Getenv("GEMINI_API_KEY"),
		BaseURL:       os.Getenv("GEMINI_BASE_URL"),
		ParseModel:    os.Getenv("GEMINI_PARSE_MODEL"),
		AnalysisModel: os.Getenv("GEMINI_ANALYSIS_MODEL"),
		SearchModel:   os.Getenv("GEMINI_SEARCH_MODEL"),
		WriterModel:   os.Getenv("GEMINI_WRITER_MODEL"),
		ChatModel:     os.Getenv("GEMINI_CHAT_MODEL"),
	}
	if v, err := strconv.Atoi(os.Getenv("GEMINI_THINKING_BUDGET")); err == nil {
		config.ThinkingBudget = int32(v)
	}
	if v, err := strconv.Atoi(os.Getenv("GEMINI_TIMEOUT_SECONDS")); err == nil {
		config.TimeoutSeconds = v
	}
	return config
}

func applyDefaults(config GeminiConfig, logger *zap.Logger) GeminiConfig {
	if config.ParseModel == "" {
		config.ParseModel = defaultParseModel
		logger.Info("Using default parse model", zap.String("model", config.ParseModel))
	}
	if config.AnalysisModel == "" {
		config.AnalysisModel = defaultAnalysisModel
		logger.Info("Using default analysis model", zap.String("model", config.AnalysisModel))
	}
	if config.SearchModel == "" {
		config.SearchModel = defaultSearchModel
		logger.Info("Using default search model", zap.String("model", config.SearchModel))
	}
	if config.WriterModel == "" {
		config.WriterModel = defaultWriterModel
		logger.Info("Using default writer model", zap.String("model", config.WriterModel))
	}
	if config.ChatModel == "" {
		config.ChatModel = defaultChatModel
		logger.Info("Using default chat model", zap.String("model", config.ChatModel))
	}
	if config.ThinkingBudget == 0 {
		config.ThinkingBudget = defaultThinkingBudget
		logger.Info("Using default thinking budget", zap.Int32("thinkingBudget", config.ThinkingBudget))
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	return config
}

func (c GeminiConfig) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
