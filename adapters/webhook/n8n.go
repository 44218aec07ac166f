package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const (
	defaultTimeoutSeconds = 30
	maxErrorBodyBytes     = 4096

	// ActionSendEmail is the workflow action that mails an application
	ActionSendEmail = "send_email"
)

// N8nConfig holds configuration for the N8nClient adapter
// Required fields:
// - URL: the workflow webhook URL
// Optional fields with defaults:
// - TimeoutSeconds: request timeout (default: 30)
type N8nConfig struct {
	URL            string // Required: the workflow webhook URL
	TimeoutSeconds int    // Optional: request timeout in seconds
}

// N8nClient implements EmailSender by calling an n8n workflow webhook
type N8nClient struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure N8nClient implements the EmailSender interface
var _ repositories.EmailSender = (*N8nClient)(nil)

// ErrMalformedResponse is returned when the workflow answers with invalid JSON
var ErrMalformedResponse = errors.New("Failed to parse JSON response from the server.")

// Response is the body returned by the workflow
type Response struct {
	Message string `json:"Message"`
}

// APIError is a non-2xx answer from the workflow
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if body == "" {
		body = "An unknown error occurred"
	}
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, body)
}

// ValidateN8nConfig validates the N8nConfig
func ValidateN8nConfig(config N8nConfig) error {
	if config.URL == "" {
		return fmt.Errorf("n8n webhook URL is required")
	}
	if !strings.HasPrefix(config.URL, "http://") && !strings.HasPrefix(config.URL, "https://") {
		return fmt.Errorf("n8n webhook URL must be http or https, got %q", config.URL)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewN8nConfigFromEnv reads the webhook configuration from the environment
func NewN8nConfigFromEnv() N8nConfig {
	config := N8nConfig{URL: os.Getenv("N8N_WEBHOOK_URL")}
	if v, err := strconv.Atoi(os.Getenv("N8N_TIMEOUT_SECONDS")); err == nil {
		config.TimeoutSeconds = v
	}
	return config
}

// NewN8nClient creates a new webhook client
func NewN8nClient(config N8nConfig, logger *zap.Logger) (*N8nClient, error) {
	if err := ValidateN8nConfig(config); err != nil {
		return nil, err
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	return &N8nClient{
		url:        config.URL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		logger:     logger,
	}, nil
}

// SendApplication posts the application to the workflow and returns its message
func (n *N8nClient) SendApplication(ctx context.Context, data entities.EmailSendData) (string, error) {
	if data.Action == "" {
		data.Action = ActionSendEmail
	}
	if err := data.Validate(); err != nil {
		return "", err
	}

	requestBody, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	n.logger.Info("Sending application",
		zap.String("recipient", data.RecipientEmail),
		zap.String("job", data.JobDetails.Key()))

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		n.logger.Error("Webhook returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(errorBody)}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		n.logger.Error("Failed to decode webhook response", zap.Error(err))
		return "", ErrMalformedResponse
	}

	n.logger.Info("Application sent", zap.String("message", out.Message))
	return out.Message, nil
}
