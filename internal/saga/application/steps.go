package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/saga"
)

// DefinitionID identifies the one-click apply saga
const DefinitionID = "one_click_apply"

// Data keys for the one-click apply saga
const (
	DataKeyResume      = "resume"
	DataKeyJob         = "job"
	DataKeyCoverLetter = "cover_letter"
	DataKeySendMessage = "send_message"
)

// Definition generates a cover letter for a listing and mails the application
type Definition struct {
	assistant repositories.CareerAssistant
	sender    repositories.EmailSender
	timeout   time.Duration
	logger    *zap.Logger
}

var _ saga.SagaDefinition = (*Definition)(nil)

// NewDefinition creates the one-click apply saga definition
func NewDefinition(assistant repositories.CareerAssistant, sender repositories.EmailSender, timeout time.Duration, logger *zap.Logger) *Definition {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Definition{
		assistant: assistant,
		sender:    sender,
		timeout:   timeout,
		logger:    logger,
	}
}

func (d *Definition) ID() string {
	return DefinitionID
}

func (d *Definition) Timeout() time.Duration {
	return d.timeout
}

func (d *Definition) Steps() []saga.Step {
	return []saga.Step{
		NewCoverLetterStep(d.assistant, d.logger),
		NewSendApplicationStep(d.sender, d.logger),
	}
}

// NewData builds the saga input for a listing
func NewData(resumeText string, job entities.JobListing) saga.SagaData {
	return saga.SagaData{
		DataKeyResume: resumeText,
		DataKeyJob:    job,
	}
}

func readInput(data saga.SagaData) (string, entities.JobListing, error) {
	resume, ok := data[DataKeyResume].(string)
	if !ok || resume == "" {
		return "", entities.JobListing{}, errors.New("resume text not found in saga data")
	}
	job, ok := data[DataKeyJob].(entities.JobListing)
	if !ok {
		return "", entities.JobListing{}, errors.New("job listing not found in saga data")
	}
	return resume, job, nil
}

// CoverLetterStep asks the assistant for a tailored cover letter
type CoverLetterStep struct {
	assistant repositories.CareerAssistant
	logger    *zap.Logger
}

func NewCoverLetterStep(assistant repositories.CareerAssistant, logger *zap.Logger) *CoverLetterStep {
	return &CoverLetterStep{
		assistant: assistant,
		logger:    logger,
	}
}

func (s *CoverLetterStep) ID() saga.StepID {
	return "generate_cover_letter"
}

func (s *CoverLetterStep) Execute(ctx context.Context, data saga.SagaData) saga.StepResult {
	resume, job, err := readInput(data)
	if err != nil {
		return saga.StepResult{Error: err}
	}

	s.logger.Info("Generating cover letter", zap.String("job", job.Key()))
	letter, err := s.assistant.GenerateCoverLetter(ctx, resume, job)
	if err != nil {
		return saga.StepResult{Error: fmt.Errorf("cover letter generation failed: %w", err)}
	}

	return saga.StepResult{Data: saga.SagaData{DataKeyCoverLetter: letter}}
}

// Compensate discards the draft. Nothing left the process.
func (s *CoverLetterStep) Compensate(ctx context.Context, data saga.SagaData) error {
	if _, job, err := readInput(data); err == nil {
		s.logger.Info("Discarding draft cover letter", zap.String("job", job.Key()))
	}
	return nil
}

// SendApplicationStep mails the resume and cover letter to the listing contact
type SendApplicationStep struct {
	sender repositories.EmailSender
	logger *zap.Logger
}

func NewSendApplicationStep(sender repositories.EmailSender, logger *zap.Logger) *SendApplicationStep {
	return &SendApplicationStep{
		sender: sender,
		logger: logger,
	}
}

func (s *SendApplicationStep) ID() saga.StepID {
	return "send_application"
}

func (s *SendApplicationStep) Execute(ctx context.Context, data saga.SagaData) saga.StepResult {
	resume, job, err := readInput(data)
	if err != nil {
		return saga.StepResult{Error: err}
	}
	letter, _ := data[DataKeyCoverLetter].(string)

	message, err := s.sender.SendApplication(ctx, entities.EmailSendData{
		Resume:         resume,
		CoverLetter:    letter,
		RecipientEmail: job.ContactEmail,
		JobDetails:     job,
	})
	if err != nil {
		return saga.StepResult{Error: err}
	}

	s.logger.Info("Application sent", zap.String("job", job.Key()), zap.String("message", message))
	return saga.StepResult{Data: saga.SagaData{DataKeySendMessage: message}}
}

// Compensate is a no-op: a sent email cannot be recalled, and a failed send
// left nothing behind.
func (s *SendApplicationStep) Compensate(ctx context.Context, data saga.SagaData) error {
	return nil
}
