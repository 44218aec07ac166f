package live

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// Integration test - only runs if GEMINI_API_KEY is set with a real API key
func TestGeminiLiveConnect_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test - set GEMINI_API_KEY environment variable with real API key")
	}

	g, err := NewGeminiLive(GeminiLiveConfig{APIKey: apiKey}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewGeminiLive: %v", err)
	}

	opened := make(chan struct{})
	failed := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := g.Connect(ctx, repositories.LiveSessionConfig{
		Model:               "gemini-2.5-flash-native-audio-preview-09-2025",
		SystemInstruction:   "You are a friendly interviewer.",
		ResponseModalities:  []string{"AUDIO"},
		InputTranscription:  true,
		OutputTranscription: true,
	}, repositories.LiveCallbacks{
		OnOpen: func() { close(opened) },
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	select {
	case <-opened:
	case err := <-failed:
		t.Fatalf("Session failed before setup completed: %v", err)
	case <-ctx.Done():
		t.Fatal("Timed out waiting for setup to complete")
	}
	t.Log("Live session opened")
}
