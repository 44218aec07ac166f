package websocket

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/interview"
)

type stubRemote struct {
	mu     sync.Mutex
	frames []entities.AudioFrame
	closed int
}

func (r *stubRemote) SendRealtimeInput(frame entities.AudioFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *stubRemote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *stubRemote) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// stubConnector opens immediately and hands the callbacks to the test
type stubConnector struct {
	remote    *stubRemote
	connected chan repositories.LiveCallbacks
}

func (s *stubConnector) Connect(ctx context.Context, config repositories.LiveSessionConfig, callbacks repositories.LiveCallbacks) (repositories.RemoteSession, error) {
	go callbacks.OnOpen()
	s.connected <- callbacks
	return s.remote, nil
}

type stubFactory struct {
	connector *stubConnector
}

func (f *stubFactory) NewInterview(candidateID string, mic repositories.Microphone, speaker repositories.OutputDevice, observer interview.Observer) *interview.Controller {
	return interview.NewController(f.connector, mic, speaker, interview.Config{}, zap.NewNop(), interview.WithObserver(observer))
}

func setupTestHub(t *testing.T) (*Hub, *stubConnector, string) {
	t.Helper()
	connector := &stubConnector{remote: &stubRemote{}, connected: make(chan repositories.LiveCallbacks, 1)}
	hub := NewHub(&stubFactory{connector: connector}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	e := echo.New()
	e.GET("/ws/interview", func(c echo.Context) error {
		return HandleWebSocketWithAuth(hub, c, "candidate-1", zap.NewNop())
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return hub, connector, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/interview"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads JSON messages until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, want MessageType, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Timed out waiting for %s: %v", want, err)
		}
		var base BaseMessage
		if err := json.Unmarshal(payload, &base); err != nil {
			continue
		}
		if base.Type == want && (match == nil || match(payload)) {
			return payload
		}
	}
}

func statusIs(status entities.SessionStatus) func(json.RawMessage) bool {
	return func(payload json.RawMessage) bool {
		var msg StatusMessage
		return json.Unmarshal(payload, &msg) == nil && msg.Status == status
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func samplesFrame(n int) []byte {
	data := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(0.25))
	}
	return data
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub(&stubFactory{}, zap.NewNop())

	if hub.clients == nil {
		t.Error("Hub clients map not initialized")
	}
	if hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialized")
	}
	if hub.ActiveClients() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ActiveClients())
	}
}

func TestHub_InterviewOverWebSocket(t *testing.T) {
	hub, connector, url := setupTestHub(t)
	conn := dial(t, url)

	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusIdle))
	if hub.ActiveClients() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ActiveClients())
	}

	sendJSON(t, conn, map[string]string{"type": "interview_start"})
	callbacks := <-connector.connected
	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusActive))

	if err := conn.WriteMessage(websocket.BinaryMessage, samplesFrame(4096)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for connector.remote.frameCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if connector.remote.frameCount() != 1 {
		t.Fatalf("Expected 1 frame forwarded to the live session, got %d", connector.remote.frameCount())
	}

	chunk := base64.StdEncoding.EncodeToString(make([]byte, 4800))
	callbacks.OnMessage(entities.LiveMessage{
		InputTranscription:  "I like Go.",
		OutputTranscription: "Why Go?",
		TurnComplete:        true,
		AudioChunks:         []string{chunk},
	})

	var audio AudioMessage
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeAudio, nil), &audio); err != nil {
		t.Fatalf("Unmarshal audio: %v", err)
	}
	if audio.DurationMs != 100 || audio.SampleRate != 24000 {
		t.Errorf("Unexpected audio message %+v", audio)
	}

	var transcript TranscriptMessage
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeTranscript, nil), &transcript); err != nil {
		t.Fatalf("Unmarshal transcript: %v", err)
	}
	if len(transcript.Turns) != 2 || transcript.Turns[0].Role != entities.RoleUser || transcript.Turns[1].Content != "Why Go?" {
		t.Errorf("Unexpected transcript %+v", transcript.Turns)
	}

	sendJSON(t, conn, map[string]string{"type": "interview_stop"})
	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusEnded))
}

func TestHub_MicrophoneDenied(t *testing.T) {
	_, _, url := setupTestHub(t)
	conn := dial(t, url)

	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusIdle))
	sendJSON(t, conn, map[string]string{"type": "interview_start", "microphone": "denied"})

	var transcript TranscriptMessage
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeTranscript, nil), &transcript); err != nil {
		t.Fatalf("Unmarshal transcript: %v", err)
	}
	if len(transcript.Turns) != 1 || transcript.Turns[0].Content != interview.MicrophoneFailureMessage {
		t.Errorf("Expected the microphone diagnostic turn, got %+v", transcript.Turns)
	}
	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusError))
}

func TestHub_InvalidMessage(t *testing.T) {
	_, _, url := setupTestHub(t)
	conn := dial(t, url)

	sendJSON(t, conn, map[string]string{"type": "listening_start"})
	var errMsg ErrorMessage
	if err := json.Unmarshal(readUntil(t, conn, MessageTypeError, nil), &errMsg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if errMsg.Code != "invalid_message" {
		t.Errorf("Expected error code invalid_message, got %s", errMsg.Code)
	}

	sendJSON(t, conn, map[string]string{"type": "ping"})
	readUntil(t, conn, MessageTypePong, nil)
}

func TestHub_DisconnectStopsInterview(t *testing.T) {
	hub, connector, url := setupTestHub(t)
	conn := dial(t, url)

	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusIdle))
	sendJSON(t, conn, map[string]string{"type": "interview_start"})
	<-connector.connected
	readUntil(t, conn, MessageTypeStatus, statusIs(entities.SessionStatusActive))

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveClients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ActiveClients() != 0 {
		t.Errorf("Expected the client to unregister, got %d", hub.ActiveClients())
	}
	connector.remote.mu.Lock()
	closed := connector.remote.closed
	connector.remote.mu.Unlock()
	if closed != 1 {
		t.Errorf("Expected the live session to close once, got %d", closed)
	}
}
