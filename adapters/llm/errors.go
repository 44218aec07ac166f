package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAPIKey is returned when the provider rejects the API key
	ErrInvalidAPIKey = errors.New("the Gemini API key is not valid")

	// ErrUnsupportedInput is returned when the provider cannot read the input type
	ErrUnsupportedInput = errors.New("input type is not supported by the model")

	// ErrEmptyResponse is returned when the model produced no text
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// ClassifyError maps a provider error onto the package sentinels by its message
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid"):
		return fmt.Errorf("%s: %w", op, ErrInvalidAPIKey)
	case strings.Contains(msg, "Unsupported MIME type"):
		return fmt.Errorf("%s: %w: %v", op, ErrUnsupportedInput, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// retriable reports transient transport failures worth another attempt
func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "Error 503") ||
		strings.Contains(s, "Error 429")
}
