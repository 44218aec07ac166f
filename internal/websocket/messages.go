package websocket

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// MessageType defines the type of a JSON websocket message
type MessageType string

// Client to server
const (
	MessageTypeInterviewStart MessageType = "interview_start"
	MessageTypeInterviewStop  MessageType = "interview_stop"
	MessageTypePing           MessageType = "ping"
)

// Server to client
const (
	MessageTypeStatus     MessageType = "status"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeAudio      MessageType = "audio"
	MessageTypeAudioFlush MessageType = "audio_flush"
	MessageTypePong       MessageType = "pong"
	MessageTypeError      MessageType = "error"
)

// Microphone permission reported by the browser with interview_start
const (
	MicrophoneGranted = "granted"
	MicrophoneDenied  = "denied"
)

// BaseMessage defines the common structure for all websocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ControlMessage is a JSON message sent by the browser
type ControlMessage struct {
	BaseMessage
	// Microphone is the result of the browser permission prompt
	Microphone string `json:"microphone,omitempty"`
}

// StatusMessage reports a lifecycle change
type StatusMessage struct {
	BaseMessage
	Status  entities.SessionStatus `json:"status"`
	Message string                 `json:"message"`
	Error   string                 `json:"error,omitempty"`
}

// TranscriptMessage carries newly committed turns
type TranscriptMessage struct {
	BaseMessage
	Turns []entities.TranscriptTurn `json:"turns"`
}

// AudioMessage carries one 24 kHz s16le chunk and the offset, relative to
// the start of playback, at which the browser must start it
type AudioMessage struct {
	BaseMessage
	Data       string `json:"data"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseControlMessage decodes and validates a browser message
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch msg.Type {
	case MessageTypeInterviewStart:
		if msg.Microphone == "" {
			msg.Microphone = MicrophoneGranted
		}
		if msg.Microphone != MicrophoneGranted && msg.Microphone != MicrophoneDenied {
			return nil, fmt.Errorf("microphone must be one of: granted, denied")
		}
	case MessageTypeInterviewStop, MessageTypePing:
	case "":
		return nil, fmt.Errorf("message missing type field")
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return &msg, nil
}

// DecodeFloat32LE decodes a binary frame of little-endian float32 samples
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("binary audio frame length %d is not a multiple of 4", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateStatusMessage creates a status update
func CreateStatusMessage(status entities.SessionStatus, cause error) *StatusMessage {
	msg := &StatusMessage{
		BaseMessage: newBase(MessageTypeStatus),
		Status:      status,
		Message:     entities.StatusMessage(status),
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	return msg
}

// CreateTranscriptMessage creates a transcript update
func CreateTranscriptMessage(turns []entities.TranscriptTurn) *TranscriptMessage {
	return &TranscriptMessage{BaseMessage: newBase(MessageTypeTranscript), Turns: turns}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: newBase(MessageTypeError), Code: code, Message: message}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage() *BaseMessage {
	msg := newBase(MessageTypePong)
	return &msg
}
