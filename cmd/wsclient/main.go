// Command wsclient probes a running server: it obtains a candidate token,
// opens /ws/interview, streams a raw float32 little-endian 16 kHz mono file
// as microphone input and prints every server event.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

const frameBytes = entities.CaptureBufferSize * 4

type tokenResponse struct {
	Token       string `json:"token"`
	CandidateID string `json:"candidate_id"`
}

type serverEvent struct {
	Type       string                    `json:"type"`
	Status     entities.SessionStatus    `json:"status"`
	Message    string                    `json:"message"`
	Error      string                    `json:"error"`
	Turns      []entities.TranscriptTurn `json:"turns"`
	StartMs    int64                     `json:"start_ms"`
	DurationMs int64                     `json:"duration_ms"`
	Code       string                    `json:"error_code"`
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	audioPath := flag.String("audio", "", "raw f32le 16 kHz mono file to stream (optional)")
	listen := flag.Duration("listen", 10*time.Second, "how long to listen after streaming")
	flag.Parse()

	base, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	// Step 1: Get authentication token
	fmt.Println("Step 1: Getting authentication token...")
	token := fetchToken(base)
	fmt.Printf("✓ Authentication successful. Candidate: %s\n", token.CandidateID)

	// Step 2: Connect to WebSocket with token
	fmt.Println("Step 2: Connecting to WebSocket with token...")
	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = "/ws/interview"
	q := wsURL.Query()
	q.Set("token", token.Token)
	wsURL.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("WebSocket connection failed with status %d: %v", resp.StatusCode, err)
		}
		log.Fatalf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()
	fmt.Println("✓ WebSocket connection successful!")

	statuses := make(chan entities.SessionStatus, 16)
	go readEvents(conn, statuses)

	// Step 3: Start the interview
	fmt.Println("Step 3: Starting interview...")
	if err := conn.WriteJSON(map[string]string{"type": "interview_start", "microphone": "granted"}); err != nil {
		log.Fatalf("Failed to send interview_start: %v", err)
	}
	if !waitFor(statuses, entities.SessionStatusActive, 30*time.Second) {
		log.Fatalf("Interview did not become active")
	}
	fmt.Println("✓ Interview active")

	// Step 4: Stream audio
	if *audioPath != "" {
		fmt.Printf("Step 4: Streaming %s...\n", *audioPath)
		sent, err := streamFile(conn, *audioPath)
		if err != nil {
			log.Fatalf("Failed to stream audio: %v", err)
		}
		fmt.Printf("✓ Streamed %d frames\n", sent)
	}

	fmt.Printf("Listening for %s...\n", *listen)
	time.Sleep(*listen)

	// Step 5: Stop
	fmt.Println("Step 5: Stopping interview...")
	if err := conn.WriteJSON(map[string]string{"type": "interview_stop"}); err != nil {
		log.Fatalf("Failed to send interview_stop: %v", err)
	}
	if !waitFor(statuses, entities.SessionStatusEnded, 5*time.Second) {
		log.Fatalf("Interview did not end")
	}
	fmt.Println("✓ Interview ended")
}

func fetchToken(base *url.URL) tokenResponse {
	resp, err := http.Post(base.JoinPath("/api/v1/auth/token").String(), "application/json", nil)
	if err != nil {
		log.Fatalf("Failed to request a token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Authentication failed with status %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		log.Fatalf("Failed to decode auth response: %v", err)
	}
	return token
}

func readEvents(conn *websocket.Conn, statuses chan<- entities.SessionStatus) {
	defer close(statuses)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Connection closed: %v\n", err)
			return
		}

		var event serverEvent
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Printf("? %s\n", data)
			continue
		}

		switch event.Type {
		case "status":
			fmt.Printf("[status] %s: %s %s\n", event.Status, event.Message, event.Error)
			select {
			case statuses <- event.Status:
			default:
			}
		case "transcript":
			for _, turn := range event.Turns {
				fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
			}
		case "audio":
			fmt.Printf("[audio] start=%dms duration=%dms\n", event.StartMs, event.DurationMs)
		case "audio_flush":
			fmt.Println("[audio] flushed")
		case "error":
			fmt.Printf("[error] %s: %s\n", event.Code, event.Message)
		default:
			fmt.Printf("[%s]\n", event.Type)
		}
	}
}

func waitFor(statuses <-chan entities.SessionStatus, want entities.SessionStatus, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case status, ok := <-statuses:
			if !ok {
				return false
			}
			if status == want {
				return true
			}
			if status.IsTerminal() {
				return false
			}
		case <-deadline:
			return false
		}
	}
}

// streamFile sends the file in capture-sized binary frames at real-time pace
func streamFile(conn *websocket.Conn, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	frameDuration := time.Duration(entities.CaptureBufferSize) * time.Second / entities.InputSampleRate
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	buf := make([]byte, frameBytes)
	sent := 0
	for {
		n, err := io.ReadFull(f, buf)
		// Drop a trailing partial sample
		n -= n % 4
		if n > 0 {
			if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return sent, err
			}
			sent++
			<-ticker.C
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
	}
}
