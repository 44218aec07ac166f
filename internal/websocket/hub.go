package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/interview"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Time allowed for the microphone, output and live session to open.
	startTimeout = 30 * time.Second

	sendBufferSize = 256
)

var errSendBufferFull = errors.New("client send buffer full")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// InterviewFactory creates the controller that runs a client's interviews
type InterviewFactory interface {
	NewInterview(candidateID string, mic repositories.Microphone, speaker repositories.OutputDevice, observer interview.Observer) *interview.Controller
}

// Hub maintains the set of connected interview clients.
type Hub struct {
	// Registered clients, keyed by client ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex

	factory InterviewFactory
	logger  *zap.Logger
}

// NewHub creates a new websocket hub
func NewHub(factory InterviewFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		factory:    factory,
		logger:     logger,
	}
}

// Run processes registrations until ctx is done, then stops every interview
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.clientID),
				zap.String("candidateID", client.candidateID))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client.clientID)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))

		case <-ctx.Done():
			h.Shutdown()
			return
		}
	}
}

// Shutdown stops the interview of every connected client
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.controller.Stop()
	}
	h.logger.Info("Stopped all interviews", zap.Int("clients", len(clients)))
}

// ActiveClients returns the number of connected clients
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunningInterviews returns the number of clients with a connecting or active interview
func (h *Hub) RunningInterviews() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	running := 0
	for _, client := range h.clients {
		if client.controller.Status().IsRunning() {
			running++
		}
	}
	return running
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
// The browser acts as the microphone and the speaker of the client's interview.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the connection is gone.
	done      chan struct{}
	closeOnce sync.Once

	clientID    string
	candidateID string

	logger *zap.Logger

	mic        *browserMicrophone
	speaker    *browserSpeaker
	controller *interview.Controller
}

// HandleWebSocketWithAuth upgrades the request for an authenticated candidate
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, candidateID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, candidateID, logger)
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return fmt.Errorf("hub is shut down")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.notify(CreateStatusMessage(entities.SessionStatusIdle, nil))
	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, candidateID string, logger *zap.Logger) *Client {
	clientID := uuid.NewString()
	clientLogger := logger.With(zap.String("clientID", clientID))

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan WriteData, sendBufferSize),
		done:        make(chan struct{}),
		clientID:    clientID,
		candidateID: candidateID,
		logger:      clientLogger,
	}
	client.mic = &browserMicrophone{permission: MicrophoneGranted, logger: clientLogger}
	client.speaker = &browserSpeaker{send: client.enqueue, logger: clientLogger}
	client.controller = hub.factory.NewInterview(candidateID, client.mic, client.speaker, client)
	return client
}

// OnStatusChange forwards lifecycle changes to the browser
func (c *Client) OnStatusChange(status entities.SessionStatus, cause error) {
	c.notify(CreateStatusMessage(status, cause))
}

// OnTurns forwards committed transcript turns to the browser
func (c *Client) OnTurns(turns []entities.TranscriptTurn) {
	c.notify(CreateTranscriptMessage(turns))
}

func (c *Client) notify(v any) {
	if err := c.enqueue(v); err != nil && !errors.Is(err, ErrClientGone) {
		c.logger.Warn("Failed to queue message", zap.Error(err))
	}
}

// enqueue marshals v and queues it for the write pump without blocking
func (c *Client) enqueue(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.done:
		return ErrClientGone
	default:
		return errSendBufferFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps messages from the websocket connection to the interview.
func (c *Client) readPump() {
	defer func() {
		c.controller.Stop()
		c.mic.disconnect()
		c.close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage handles control messages from the browser
func (c *Client) processMessage(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Warn("Invalid control message", zap.Error(err))
		c.notify(CreateErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg.Type {
	case MessageTypeInterviewStart:
		c.mic.setPermission(msg.Microphone)
		go c.startInterview()
	case MessageTypeInterviewStop:
		c.controller.Stop()
	case MessageTypePing:
		c.notify(CreatePongMessage())
	}
}

func (c *Client) startInterview() {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	err := c.controller.Start(ctx)
	switch {
	case err == nil:
	case errors.Is(err, interview.ErrSessionInProgress):
		c.notify(CreateErrorMessage("session_in_progress", err.Error()))
	default:
		// The status update already carries the failure.
		c.logger.Warn("Interview failed to start", zap.Error(err))
	}
}

// processBinaryAudio feeds float32 microphone samples to the interview
func (c *Client) processBinaryAudio(data []byte) {
	samples, err := DecodeFloat32LE(data)
	if err != nil {
		c.logger.Warn("Invalid binary audio frame", zap.Error(err))
		return
	}
	c.mic.feed(samples)
}
