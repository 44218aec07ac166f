package api

import (
	"time"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// TokenResponse represents the response payload for candidate authentication
type TokenResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CandidateID string    `json:"candidate_id"`
}

// AnalyzeRequest represents the request payload for resume analysis
type AnalyzeRequest struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

// SearchRequest represents the request payload for job search
type SearchRequest struct {
	JobDescription string `json:"job_description"`
}

// CoverLetterRequest represents the request payload for cover letters and one-click apply
type CoverLetterRequest struct {
	ResumeText string              `json:"resume_text"`
	Job        entities.JobListing `json:"job"`
}

// CoverLetterResponse represents a generated cover letter
type CoverLetterResponse struct {
	CoverLetter string `json:"cover_letter"`
}

// SendApplicationResponse represents the result of a manual send
type SendApplicationResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ChatRequest represents a chat message. History, when present, replaces the
// server-side conversation.
type ChatRequest struct {
	Message string                 `json:"message"`
	History []entities.ChatMessage `json:"history,omitempty"`
}

// ChatChunk is one server-sent event of a streamed reply
type ChatChunk struct {
	Chunk string `json:"chunk"`
}

// ChatHistoryResponse represents the current conversation
type ChatHistoryResponse struct {
	Messages []entities.ChatMessage `json:"messages"`
}

// InterviewListResponse represents the candidate's interview history
type InterviewListResponse struct {
	Interviews []*entities.InterviewRecord `json:"interviews"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
