package repositories

import (
	"context"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// CareerAssistant abstracts the generative AI provider used by the career tools
type CareerAssistant interface {
	// ExtractResumeText asks the model to transcribe a document it can read
	ExtractResumeText(ctx context.Context, file entities.ResumeFile) (string, error)
	// AnalyzeResume scores a resume against a job description
	AnalyzeResume(ctx context.Context, resumeText, jobDescription string) (*entities.AtsData, error)
	// SearchJobs finds job postings grounded on web search
	SearchJobs(ctx context.Context, jobDescription string) (*entities.JobSearchData, error)
	GenerateCoverLetter(ctx context.Context, resumeText string, job entities.JobListing) (string, error)
	// NewChat creates a chat session seeded with history
	NewChat(ctx context.Context, history []entities.ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session
type ChatSession interface {
	// SendMessageStream sends a message and calls onChunk for every streamed
	// piece of the reply. It returns the full reply.
	SendMessageStream(ctx context.Context, message string, onChunk func(chunk string) error) (entities.ChatMessage, error)
	History() []entities.ChatMessage
}
