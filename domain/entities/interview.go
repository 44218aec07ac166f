package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a live interview session
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusConnecting SessionStatus = "connecting"
	SessionStatusActive     SessionStatus = "active"
	SessionStatusError      SessionStatus = "error"
	SessionStatusEnded      SessionStatus = "ended"
)

var statusMessages = map[SessionStatus]string{
	SessionStatusIdle:       `Click "Start Interview" to begin your mock interview session.`,
	SessionStatusConnecting: "Connecting to the interview session...",
	SessionStatusActive:     "Interview in progress. The AI is listening.",
	SessionStatusError:      "An error occurred. Please try starting a new interview.",
	SessionStatusEnded:      "Interview session has ended. You can start a new one.",
}

// StatusMessage returns the user-facing text shown for a status
func StatusMessage(status SessionStatus) string {
	return statusMessages[status]
}

// IsValid reports whether the status is one of the known values
func (s SessionStatus) IsValid() bool {
	_, ok := statusMessages[s]
	return ok
}

// IsTerminal reports whether the status ends the current session
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusError || s == SessionStatusEnded
}

// IsRunning reports whether a session holds resources in this status
func (s SessionStatus) IsRunning() bool {
	return s == SessionStatusConnecting || s == SessionStatusActive
}

// Role identifies the speaker of a transcript turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// TranscriptTurn is one committed utterance of the interview
type TranscriptTurn struct {
	Role    Role   `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// Audio wire format constants
const (
	InputSampleRate   = 16000
	OutputSampleRate  = 24000
	CaptureBufferSize = 4096
	BytesPerSample    = 2

	InputMIMEType = "audio/pcm;rate=16000"
)

// AudioFrame is one outbound block of captured microphone audio
type AudioFrame struct {
	Data     string `json:"data"` // base64 encoded 16-bit PCM
	MIMEType string `json:"mimeType"`
}

// LiveMessage is an inbound message from the live session service
type LiveMessage struct {
	InputTranscription  string
	OutputTranscription string
	TurnComplete        bool
	Interrupted         bool

	// AudioChunks holds base64 encoded 24 kHz PCM payloads in part order
	AudioChunks []string
}

// InterviewRecord is the persisted summary of one interview session
type InterviewRecord struct {
	ID          string           `json:"id" bson:"_id"`
	CandidateID string           `json:"candidate_id" bson:"candidate_id"`
	Status      SessionStatus    `json:"status" bson:"status"`
	Transcript  []TranscriptTurn `json:"transcript" bson:"transcript"`
	Error       string           `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at" bson:"started_at"`
	UpdatedAt   time.Time        `json:"updated_at" bson:"updated_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// NewInterviewRecord creates a record for a session that is connecting
func NewInterviewRecord(candidateID string) *InterviewRecord {
	now := time.Now()
	return &InterviewRecord{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		Status:      SessionStatusConnecting,
		Transcript:  make([]TranscriptTurn, 0),
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// SetStatus moves the record to a new status, stamping EndedAt on terminal ones
func (r *InterviewRecord) SetStatus(status SessionStatus, cause error) {
	now := time.Now()
	r.Status = status
	r.UpdatedAt = now
	if cause != nil {
		r.Error = cause.Error()
	}
	if status.IsTerminal() && r.EndedAt == nil {
		r.EndedAt = &now
	}
}

// AddTurns appends committed turns to the record
func (r *InterviewRecord) AddTurns(turns ...TranscriptTurn) {
	r.Transcript = append(r.Transcript, turns...)
	r.UpdatedAt = time.Now()
}

// IsStale reports whether a non-terminal record has not been touched for maxAge
func (r *InterviewRecord) IsStale(maxAge time.Duration) bool {
	return !r.Status.IsTerminal() && time.Since(r.UpdatedAt) > maxAge
}

// Validate validates the record
func (r *InterviewRecord) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.CandidateID == "" {
		return errors.New("candidate_id is required")
	}
	if !r.Status.IsValid() {
		return errors.New("invalid session status")
	}
	for _, turn := range r.Transcript {
		if turn.Role != RoleUser && turn.Role != RoleModel {
			return errors.New("invalid transcript role")
		}
	}
	return nil
}
