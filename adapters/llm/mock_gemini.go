package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// MockAssistant is a canned CareerAssistant for local development and tests
type MockAssistant struct {
	// Err, when set, is returned by every call
	Err error
}

var _ repositories.CareerAssistant = (*MockAssistant)(nil)

// NewMockAssistant creates a new mock assistant
func NewMockAssistant() *MockAssistant {
	return &MockAssistant{}
}

// ExtractResumeText implements repositories.CareerAssistant
func (m *MockAssistant) ExtractResumeText(ctx context.Context, file entities.ResumeFile) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return fmt.Sprintf("Resume extracted from %s", file.Name), nil
}

// AnalyzeResume implements repositories.CareerAssistant
func (m *MockAssistant) AnalyzeResume(ctx context.Context, resumeText, jobDescription string) (*entities.AtsData, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &entities.AtsData{
		ATSScore:        75,
		Strengths:       "Solid backend experience.",
		Gaps:            "No mention of " + firstWord(jobDescription) + ".",
		Recommendations: "Quantify the impact of recent projects.",
	}, nil
}

// SearchJobs implements repositories.CareerAssistant
func (m *MockAssistant) SearchJobs(ctx context.Context, jobDescription string) (*entities.JobSearchData, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	listings := []entities.JobListing{
		{Title: "Backend Engineer", Company: "Acme", Location: "Remote", ApplyURL: "https://www.linkedin.com/jobs/view/1", ContactEmail: "jobs@acme.example"},
		{Title: "Go Developer", Company: "Globex", Location: "Jakarta", ApplyURL: "https://www.linkedin.com/jobs/view/2"},
	}
	return &entities.JobSearchData{
		JobListings: listings,
		Message:     fmt.Sprintf("Found %d relevant jobs from LinkedIn.", len(listings)),
		Sources:     []entities.GroundingSource{{Title: "linkedin.com", URI: "https://www.linkedin.com/jobs"}},
	}, nil
}

// GenerateCoverLetter implements repositories.CareerAssistant
func (m *MockAssistant) GenerateCoverLetter(ctx context.Context, resumeText string, job entities.JobListing) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return fmt.Sprintf("Dear Hiring Team,\n\nI am excited to apply for the %s role at %s.", job.Title, job.Company), nil
}

// NewChat implements repositories.CareerAssistant
func (m *MockAssistant) NewChat(ctx context.Context, history []entities.ChatMessage) (repositories.ChatSession, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &MockChatSession{history: append([]entities.ChatMessage(nil), history...)}, nil
}

// MockChatSession implements repositories.ChatSession
type MockChatSession struct {
	mu      sync.Mutex
	history []entities.ChatMessage
}

// SendMessageStream implements repositories.ChatSession. The reply is streamed word by word.
func (m *MockChatSession) SendMessageStream(ctx context.Context, message string, onChunk func(chunk string) error) (entities.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var response string
	switch {
	case len(message) > 0:
		response = fmt.Sprintf("Thanks for sharing! Tell me more about '%s'.", message)
	default:
		response = "Hi! I am your career assistant. What would you like to work on today?"
	}

	if onChunk != nil {
		words := strings.SplitAfter(response, " ")
		for _, word := range words {
			if err := onChunk(word); err != nil {
				return entities.ChatMessage{}, err
			}
		}
	}

	reply := entities.ChatMessage{Role: entities.RoleModel, Content: response}
	m.history = append(m.history, entities.ChatMessage{Role: entities.RoleUser, Content: message}, reply)
	return reply, nil
}

// History implements repositories.ChatSession
func (m *MockChatSession) History() []entities.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.ChatMessage(nil), m.history...)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "the required skills"
	}
	return fields[0]
}
