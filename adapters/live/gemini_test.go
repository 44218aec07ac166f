package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

func startLiveServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		handler(ctx, conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestConnector(t *testing.T, srv *httptest.Server) *GeminiLive {
	t.Helper()
	g, err := NewGeminiLive(GeminiLiveConfig{
		APIKey:  "test-key",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewGeminiLive: %v", err)
	}
	return g
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("read: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, raw string) {
	_ = conn.Write(ctx, websocket.MessageText, []byte(raw))
}

type callbackRecorder struct {
	opened   chan struct{}
	messages chan entities.LiveMessage
	errs     chan error
	closed   chan struct{}
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan entities.LiveMessage, 8),
		errs:     make(chan error, 2),
		closed:   make(chan struct{}, 2),
	}
}

func (r *callbackRecorder) callbacks() repositories.LiveCallbacks {
	return repositories.LiveCallbacks{
		OnOpen:    func() { r.opened <- struct{}{} },
		OnMessage: func(msg entities.LiveMessage) { r.messages <- msg },
		OnError:   func(err error) { r.errs <- err },
		OnClose:   func() { r.closed <- struct{}{} },
	}
}

func TestValidateGeminiLiveConfig(t *testing.T) {
	if err := ValidateGeminiLiveConfig(GeminiLiveConfig{}); err == nil {
		t.Error("Expected an error without an API key")
	}
	if err := ValidateGeminiLiveConfig(GeminiLiveConfig{APIKey: "k", WriteTimeout: -time.Second}); err == nil {
		t.Error("Expected an error for a negative write timeout")
	}
	if err := ValidateGeminiLiveConfig(GeminiLiveConfig{APIKey: "k"}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestGeminiLiveSession(t *testing.T) {
	setupSeen := make(chan setupMessage, 1)
	frameSeen := make(chan realtimeInputMessage, 1)
	keySeen := make(chan string, 1)

	srv := startLiveServer(t, func(ctx context.Context, conn *websocket.Conn, r *http.Request) {
		keySeen <- r.URL.Query().Get("key")

		var setup setupMessage
		readFrame(t, ctx, conn, &setup)
		setupSeen <- setup

		writeFrame(ctx, conn, `{"setupComplete":{}}`)

		var frame realtimeInputMessage
		readFrame(t, ctx, conn, &frame)
		frameSeen <- frame

		writeFrame(ctx, conn, `{"serverContent":{"modelTurn":{"parts":[`+
			`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAA"}},`+
			`{"text":"ignored"},`+
			`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"BBBB"}}]},`+
			`"outputTranscription":{"text":"Hello"}}}`)
		writeFrame(ctx, conn, `{"serverContent":{"inputTranscription":{"text":"Hi"},"turnComplete":true,"interrupted":true}}`)

		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	rec := newCallbackRecorder()
	g := newTestConnector(t, srv)
	remote, err := g.Connect(context.Background(), repositories.LiveSessionConfig{
		Model:               "gemini-live-test",
		SystemInstruction:   "Be an interviewer.",
		ResponseModalities:  []string{"AUDIO"},
		InputTranscription:  true,
		OutputTranscription: true,
	}, rec.callbacks())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer remote.Close()

	if key := <-keySeen; key != "test-key" {
		t.Errorf("Expected key test-key, got %s", key)
	}
	setup := <-setupSeen
	if setup.Setup.Model != "models/gemini-live-test" {
		t.Errorf("Expected model models/gemini-live-test, got %s", setup.Setup.Model)
	}
	if setup.Setup.SystemInstruction == nil || setup.Setup.SystemInstruction.Parts[0].Text != "Be an interviewer." {
		t.Error("Expected the system instruction in the setup message")
	}
	if setup.Setup.InputAudioTranscription == nil || setup.Setup.OutputAudioTranscription == nil {
		t.Error("Expected both transcriptions to be requested")
	}

	select {
	case <-rec.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for open")
	}

	if err := remote.SendRealtimeInput(entities.AudioFrame{Data: "AQI=", MIMEType: entities.InputMIMEType}); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}
	frame := <-frameSeen
	if len(frame.RealtimeInput.MediaChunks) != 1 || frame.RealtimeInput.MediaChunks[0].Data != "AQI=" {
		t.Errorf("Unexpected realtime input %+v", frame)
	}
	if frame.RealtimeInput.MediaChunks[0].MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Expected mime type audio/pcm;rate=16000, got %s", frame.RealtimeInput.MediaChunks[0].MIMEType)
	}

	first := <-rec.messages
	if len(first.AudioChunks) != 2 || first.AudioChunks[0] != "AAAA" || first.AudioChunks[1] != "BBBB" {
		t.Errorf("Expected both audio parts in order, got %v", first.AudioChunks)
	}
	if first.OutputTranscription != "Hello" {
		t.Errorf("Expected output transcription Hello, got %q", first.OutputTranscription)
	}

	second := <-rec.messages
	if second.InputTranscription != "Hi" || !second.TurnComplete || !second.Interrupted {
		t.Errorf("Unexpected second message %+v", second)
	}

	select {
	case <-rec.closed:
	case err := <-rec.errs:
		t.Fatalf("Expected a clean close, got error %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for close")
	}
}

func TestGeminiLiveServerError(t *testing.T) {
	srv := startLiveServer(t, func(ctx context.Context, conn *websocket.Conn, r *http.Request) {
		var setup setupMessage
		readFrame(t, ctx, conn, &setup)
		writeFrame(ctx, conn, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
		conn.Close(websocket.StatusPolicyViolation, "denied")
	})

	rec := newCallbackRecorder()
	remote, err := newTestConnector(t, srv).Connect(context.Background(), repositories.LiveSessionConfig{Model: "m"}, rec.callbacks())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer remote.Close()

	select {
	case err := <-rec.errs:
		var serverErr *ServerError
		if !errors.As(err, &serverErr) {
			t.Fatalf("Expected a ServerError, got %v", err)
		}
		if serverErr.Code != 403 || serverErr.Status != "PERMISSION_DENIED" {
			t.Errorf("Unexpected server error %+v", serverErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for error")
	}
}

func TestGeminiLiveCloseIsIdempotent(t *testing.T) {
	srv := startLiveServer(t, func(ctx context.Context, conn *websocket.Conn, r *http.Request) {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	rec := newCallbackRecorder()
	remote, err := newTestConnector(t, srv).Connect(context.Background(), repositories.LiveSessionConfig{Model: "m"}, rec.callbacks())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := remote.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := remote.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := remote.SendRealtimeInput(entities.AudioFrame{Data: "AA=="}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}

	select {
	case <-rec.closed:
	case err := <-rec.errs:
		t.Fatalf("Expected a local close to report OnClose, got %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for close")
	}
}

func TestGeminiLiveDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestConnector(t, srv).Connect(context.Background(), repositories.LiveSessionConfig{Model: "m"}, repositories.LiveCallbacks{})
	if err == nil {
		t.Fatal("Expected a dial error")
	}
}

func TestServerContentSkipsNonAudioParts(t *testing.T) {
	sc := serverContent{
		ModelTurn: &content{Parts: []part{
			{InlineData: &blob{MIMEType: "image/png", Data: "iVBO"}},
			{InlineData: &blob{MIMEType: "audio/pcm;rate=24000", Data: ""}},
			{InlineData: &blob{MIMEType: "audio/pcm;rate=24000", Data: "AAAA"}},
		}},
	}
	msg := sc.toLiveMessage()
	if len(msg.AudioChunks) != 1 || msg.AudioChunks[0] != "AAAA" {
		t.Errorf("Expected only the audio part, got %v", msg.AudioChunks)
	}
}
