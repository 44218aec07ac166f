package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/adapters/llm"
	"github.com/satriahrh/careerpilot/server/adapters/webhook"
	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/jsonextract"
	"github.com/satriahrh/careerpilot/server/usecase"
)

// InvalidAPIKeyMessage is shown when the provider rejects the configured key
const InvalidAPIKeyMessage = "The Gemini API key is not valid. Please check your configuration."

// errorResponse maps service errors onto a status and an ErrorResponse.
// fallback prefixes the message of unclassified errors.
func errorResponse(err error, fallback string) (int, ErrorResponse) {
	var apiErr *webhook.APIError
	var parseErr *jsonextract.ParseError

	switch {
	case errors.Is(err, llm.ErrInvalidAPIKey):
		return http.StatusBadGateway, ErrorResponse{Error: "invalid_api_key", Message: InvalidAPIKeyMessage}
	case errors.Is(err, entities.ErrLegacyDoc), errors.Is(err, entities.ErrCorruptDocx):
		return http.StatusBadRequest, ErrorResponse{Error: "unreadable_file", Message: rootMessage(err)}
	case errors.Is(err, usecase.ErrMissingInput):
		return http.StatusBadRequest, ErrorResponse{Error: "missing_fields", Message: err.Error()}
	case errors.Is(err, usecase.ErrCannotOneClickApply):
		return http.StatusBadRequest, ErrorResponse{Error: "cannot_apply", Message: err.Error()}
	case errors.Is(err, usecase.ErrApplicationInProgress):
		return http.StatusConflict, ErrorResponse{Error: "application_in_progress", Message: err.Error()}
	case errors.Is(err, usecase.ErrEmailNotConfigured):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "email_not_configured", Message: err.Error()}
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()}
	case errors.As(err, &apiErr), errors.Is(err, webhook.ErrMalformedResponse):
		return http.StatusBadGateway, ErrorResponse{Error: "webhook_failed", Message: fallback + err.Error()}
	case errors.As(err, &parseErr), errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway, ErrorResponse{Error: "invalid_model_response", Message: fallback + err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: fallback + err.Error()}
	}
}

// rootMessage returns the text of the sentinel err wraps
func rootMessage(err error) string {
	for _, sentinel := range []error{entities.ErrLegacyDoc, entities.ErrCorruptDocx} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func writeError(c echo.Context, logger *zap.Logger, err error, fallback string) error {
	status, body := errorResponse(err, fallback)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, body)
}
