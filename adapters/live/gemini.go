// Package live connects interview sessions to the Gemini Live
// BidiGenerateContent websocket protocol.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const (
	defaultBaseURL           = "wss://generativelanguage.googleapis.com/ws"
	defaultWriteTimeout      = 10 * time.Second
	defaultKeepaliveInterval = 20 * time.Second

	bidiPath       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	keepaliveWait  = 5 * time.Second
	maxMessageSize = 16 << 20
)

// ErrSessionClosed is returned when sending on a closed session
var ErrSessionClosed = errors.New("live session closed")

// ServerError is an error frame sent by the live service
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("live: %s (%d %s)", msg, e.Code, e.Status)
	}
	return fmt.Sprintf("live: %s (%d)", msg, e.Code)
}

// GeminiLiveConfig holds configuration for the GeminiLive connector
// Required fields:
// - APIKey: Gemini API key
// Optional fields with defaults:
// - BaseURL: websocket endpoint root (default: "wss://generativelanguage.googleapis.com/ws")
// - WriteTimeout: bound on a single frame write (default: 10s)
// - KeepaliveInterval: ping period (default: 20s)
type GeminiLiveConfig struct {
	APIKey            string
	BaseURL           string
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration
}

// ValidateGeminiLiveConfig validates the GeminiLiveConfig
func ValidateGeminiLiveConfig(config GeminiLiveConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.WriteTimeout < 0 {
		return fmt.Errorf("write timeout must be positive, got %s", config.WriteTimeout)
	}
	if config.KeepaliveInterval < 0 {
		return fmt.Errorf("keepalive interval must be positive, got %s", config.KeepaliveInterval)
	}
	return nil
}

// NewGeminiLiveConfigFromEnv reads the connector configuration from the environment
func NewGeminiLiveConfigFromEnv() GeminiLiveConfig {
	config := GeminiLiveConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: os.Getenv("GEMINI_LIVE_BASE_URL"),
	}
	if v, err := time.ParseDuration(os.Getenv("GEMINI_LIVE_WRITE_TIMEOUT")); err == nil {
		config.WriteTimeout = v
	}
	return config
}

// GeminiLive implements LiveConnector over the Gemini Live websocket API
type GeminiLive struct {
	apiKey            string
	baseURL           string
	writeTimeout      time.Duration
	keepaliveInterval time.Duration
	logger            *zap.Logger
}

// Ensure GeminiLive implements the LiveConnector interface
var _ repositories.LiveConnector = (*GeminiLive)(nil)

// NewGeminiLive creates a new GeminiLive connector
func NewGeminiLive(config GeminiLiveConfig, logger *zap.Logger) (*GeminiLive, error) {
	if err := ValidateGeminiLiveConfig(config); err != nil {
		return nil, err
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default live base URL", zap.String("baseURL", baseURL))
	}

	writeTimeout := config.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
		logger.Info("Using default write timeout", zap.Duration("writeTimeout", writeTimeout))
	}

	keepaliveInterval := config.KeepaliveInterval
	if keepaliveInterval == 0 {
		keepaliveInterval = defaultKeepaliveInterval
	}

	return &GeminiLive{
		apiKey:            config.APIKey,
		baseURL:           strings.TrimSuffix(baseURL, "/"),
		writeTimeout:      writeTimeout,
		keepaliveInterval: keepaliveInterval,
		logger:            logger,
	}, nil
}

// Connect dials the service and sends the setup message. OnOpen fires once
// the service acknowledges the setup.
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveSessionConfig, callbacks repositories.LiveCallbacks) (repositories.RemoteSession, error) {
	endpoint := g.baseURL + bidiPath + "?key=" + url.QueryEscape(g.apiKey)

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial live session: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:              conn,
		callbacks:         callbacks,
		writeTimeout:      g.writeTimeout,
		keepaliveInterval: g.keepaliveInterval,
		logger:            g.logger,
		ctx:               sessionCtx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}

	if err := s.writeJSON(newSetupMessage(config)); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("failed to send live setup: %w", err)
	}

	g.logger.Info("Live session connected", zap.String("model", config.Model))

	go s.readLoop()
	go s.keepaliveLoop()

	return s, nil
}

type session struct {
	conn              *websocket.Conn
	callbacks         repositories.LiveCallbacks
	writeTimeout      time.Duration
	keepaliveInterval time.Duration
	logger            *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal live message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// SendRealtimeInput submits one captured audio frame
func (s *session) SendRealtimeInput(frame entities.AudioFrame) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.writeJSON(realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []blob{{MIMEType: frame.MIMEType, Data: frame.Data}},
		},
	})
}

// Close starts the close handshake and returns without waiting for it
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	go func() {
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.cancel()
	}()
	return nil
}

// readLoop is the only caller of the callbacks, so they run in arrival order
func (s *session) readLoop() {
	defer s.cancel()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.handleReadError(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Skipping malformed live message", zap.Error(err))
			continue
		}
		s.dispatch(&msg)
	}
}

func (s *session) handleReadError(err error) {
	status := websocket.CloseStatus(err)
	if s.isClosed() || status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		s.logger.Info("Live session closed", zap.Int("status", int(status)))
		if s.callbacks.OnClose != nil {
			s.callbacks.OnClose()
		}
		return
	}

	s.logger.Error("Live session read failed", zap.Error(err))
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(fmt.Errorf("live session read failed: %w", err))
	}
}

func (s *session) dispatch(msg *serverMessage) {
	if msg.Error != nil {
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(msg.Error)
		}
		return
	}
	if msg.SetupComplete != nil && s.callbacks.OnOpen != nil {
		s.callbacks.OnOpen()
	}
	if msg.ServerContent != nil && s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(msg.ServerContent.toLiveMessage())
	}
}

func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(s.keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, keepaliveWait)
			if err := s.conn.Ping(ctx); err != nil {
				s.logger.Debug("Live keepalive ping failed", zap.Error(err))
			}
			cancel()
		}
	}
}
