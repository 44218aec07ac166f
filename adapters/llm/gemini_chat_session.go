package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

// GeminiChatSession implements the ChatSession interface on a genai chat
type GeminiChatSession struct {
	chat    *genai.Chat
	timeout time.Duration
	logger  *zap.Logger
	metrics *observe.Metrics

	// genai.Chat appends to its history without locking
	mu sync.Mutex
}

var _ repositories.ChatSession = (*GeminiChatSession)(nil)

func newGeminiChatSession(chat *genai.Chat, timeout time.Duration, logger *zap.Logger, metrics *observe.Metrics) *GeminiChatSession {
	return &GeminiChatSession{
		chat:    chat,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// SendMessageStream sends a message and forwards every streamed chunk to onChunk.
// The reply and the user message are appended to the history.
func (s *GeminiChatSession) SendMessageStream(ctx context.Context, message string, onChunk func(chunk string) error) (entities.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var reply strings.Builder
	for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: message}) {
		if err != nil {
			s.metrics.RecordProviderRequest(ctx, "chat", "error", time.Since(start))
			s.logger.Error("Chat stream failed", zap.Error(err))
			return entities.ChatMessage{}, ClassifyError("chat", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		reply.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return entities.ChatMessage{}, fmt.Errorf("chat: deliver chunk: %w", err)
			}
		}
	}
	s.metrics.RecordProviderRequest(ctx, "chat", "ok", time.Since(start))

	if reply.Len() == 0 {
		return entities.ChatMessage{}, fmt.Errorf("chat: %w", ErrEmptyResponse)
	}

	s.logger.Info("Chat session message processed",
		zap.String("user_message", message[:min(50, len(message))]),
		zap.Int("reply_length", reply.Len()),
		zap.Int("history_length", len(s.chat.History(false))))

	return entities.ChatMessage{Role: entities.RoleModel, Content: reply.String()}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() []entities.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return convertFromGeminiFormat(s.chat.History(true))
}

// convertToGeminiFormat converts chat messages to Gemini contents
func convertToGeminiFormat(messages []entities.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case entities.RoleModel:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertFromGeminiFormat converts Gemini contents to chat messages
func convertFromGeminiFormat(contents []*genai.Content) []entities.ChatMessage {
	messages := make([]entities.ChatMessage, 0, len(contents))

	for _, content := range contents {
		if content == nil {
			continue
		}
		role := entities.RoleUser
		if content.Role == genai.RoleModel {
			role = entities.RoleModel
		}

		// Text parts only
		var text strings.Builder
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}

		if text.Len() == 0 {
			continue
		}
		// Streamed replies are recorded as one content per chunk
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += text.String()
		} else {
			messages = append(messages, entities.ChatMessage{
				Role:    role,
				Content: text.String(),
			})
		}
	}

	return messages
}
