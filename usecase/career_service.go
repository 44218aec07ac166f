package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/saga"
	"github.com/satriahrh/careerpilot/server/internal/saga/application"
)

var (
	// ErrMissingInput is returned when a required request field is empty
	ErrMissingInput = errors.New("missing input")

	// ErrCannotOneClickApply is returned for listings without a contact or before a resume is parsed
	ErrCannotOneClickApply = errors.New("Resume not parsed or no contact email available for this job.")

	// ErrApplicationInProgress rejects a second apply while one is sending
	ErrApplicationInProgress = errors.New("application already in progress")

	// ErrEmailNotConfigured is returned when no email webhook is configured
	ErrEmailNotConfigured = errors.New("email sending is not configured")
)

// ApplicationSentMessage is reported after a manual send succeeds
const ApplicationSentMessage = "Application sent successfully!"

// ParsedResume is the result of ParseResume
type ParsedResume struct {
	Text       string `json:"text"`
	StorageKey string `json:"storage_key,omitempty"`
	Source     string `json:"source"` // "local" or "model"
}

// CareerService implements the resume, job search, application and chat tools
type CareerService struct {
	assistant repositories.CareerAssistant
	extractor repositories.ResumeTextExtractor
	store     repositories.ResumeStore
	sender    repositories.EmailSender
	sagas     *saga.Manager
	logger    *zap.Logger

	mu           sync.Mutex
	applications map[string]*entities.Application // candidate|job key -> status
	chats        map[string]repositories.ChatSession
}

// CareerServiceOption configures a CareerService
type CareerServiceOption func(*CareerService)

// WithResumeStore archives every parsed resume
func WithResumeStore(store repositories.ResumeStore) CareerServiceOption {
	return func(s *CareerService) {
		s.store = store
	}
}

// WithEmailSender enables sending applications
func WithEmailSender(sender repositories.EmailSender) CareerServiceOption {
	return func(s *CareerService) {
		s.sender = sender
	}
}

// NewCareerService creates a new career service
func NewCareerService(
	assistant repositories.CareerAssistant,
	extractor repositories.ResumeTextExtractor,
	logger *zap.Logger,
	opts ...CareerServiceOption,
) *CareerService {
	s := &CareerService{
		assistant:    assistant,
		extractor:    extractor,
		logger:       logger,
		applications: make(map[string]*entities.Application),
		chats:        make(map[string]repositories.ChatSession),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sagas = saga.NewManager(logger, saga.WithEventHandler(func(event saga.SagaEvent) {
		logger.Debug("Saga event",
			zap.String("sagaID", string(event.SagaID)),
			zap.String("type", event.Type),
			zap.String("stepID", string(event.StepID)))
	}))
	if s.sender != nil {
		s.sagas.RegisterDefinition(application.NewDefinition(assistant, s.sender, 0, logger))
	}
	return s
}

// ParseResume extracts the text of an uploaded resume. Documents without a
// local text layer are transcribed by the model.
func (s *CareerService) ParseResume(ctx context.Context, candidateID string, file entities.ResumeFile) (*ParsedResume, error) {
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrMissingInput)
	}

	parsed := &ParsedResume{Source: "local"}
	text, err := s.extractor.ExtractText(file)
	switch {
	case errors.Is(err, entities.ErrNeedsModel):
		s.logger.Info("Extracting resume with the model", zap.String("name", file.Name), zap.String("mimeType", file.MIMEType))
		text, err = s.assistant.ExtractResumeText(ctx, file)
		if err != nil {
			return nil, err
		}
		parsed.Source = "model"
	case err != nil:
		return nil, err
	}
	parsed.Text = strings.TrimSpace(text)

	if s.store != nil {
		key, err := s.store.Put(ctx, candidateID, file)
		if err != nil {
			// The text is still usable without the archive
			s.logger.Error("Failed to archive resume", zap.String("candidateID", candidateID), zap.Error(err))
		} else {
			parsed.StorageKey = key
		}
	}

	s.logger.Info("Resume parsed",
		zap.String("candidateID", candidateID),
		zap.String("source", parsed.Source),
		zap.Int("length", len(parsed.Text)))
	return parsed, nil
}

// AnalyzeResume scores a resume against a job description
func (s *CareerService) AnalyzeResume(ctx context.Context, resumeText, jobDescription string) (*entities.AtsData, error) {
	if strings.TrimSpace(resumeText) == "" || strings.TrimSpace(jobDescription) == "" {
		return nil, fmt.Errorf("%w: resume and job description are required", ErrMissingInput)
	}
	return s.assistant.AnalyzeResume(ctx, resumeText, jobDescription)
}

// SearchJobs finds postings that match a job description
func (s *CareerService) SearchJobs(ctx context.Context, jobDescription string) (*entities.JobSearchData, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, fmt.Errorf("%w: job description is required", ErrMissingInput)
	}
	return s.assistant.SearchJobs(ctx, jobDescription)
}

// GenerateCoverLetter writes a cover letter for a listing
func (s *CareerService) GenerateCoverLetter(ctx context.Context, resumeText string, job entities.JobListing) (string, error) {
	if strings.TrimSpace(resumeText) == "" {
		return "", fmt.Errorf("%w: resume is required", ErrMissingInput)
	}
	return s.assistant.GenerateCoverLetter(ctx, resumeText, job)
}

// SendApplication mails an application composed by the candidate
func (s *CareerService) SendApplication(ctx context.Context, data entities.EmailSendData) (string, error) {
	if s.sender == nil {
		return "", ErrEmailNotConfigured
	}
	message, err := s.sender.SendApplication(ctx, data)
	if err != nil {
		return "", err
	}
	s.logger.Info("Application sent", zap.String("job", data.JobDetails.Key()), zap.String("message", message))
	return message, nil
}

// OneClickApply generates a cover letter and sends the application in the
// background. The returned status is sending; poll ApplicationStatus.
func (s *CareerService) OneClickApply(ctx context.Context, candidateID, resumeText string, job entities.JobListing) (entities.Application, error) {
	if s.sender == nil {
		return entities.Application{}, ErrEmailNotConfigured
	}
	if strings.TrimSpace(resumeText) == "" || job.ContactEmail == "" {
		return entities.Application{}, ErrCannotOneClickApply
	}

	key := applicationKey(candidateID, job.Key())
	s.mu.Lock()
	if current, ok := s.applications[key]; ok && current.Status == entities.ApplicationStatusSending {
		s.mu.Unlock()
		return *current, ErrApplicationInProgress
	}
	app := &entities.Application{Key: job.Key(), Status: entities.ApplicationStatusSending, UpdatedAt: time.Now()}
	s.applications[key] = app
	snapshot := *app
	s.mu.Unlock()

	_, err := s.sagas.StartSaga(ctx, application.DefinitionID, application.NewData(resumeText, job), func(instance saga.SagaInstance) {
		s.finishApplication(key, instance)
		s.sagas.Forget(instance.ID)
	})
	if err != nil {
		s.setApplication(key, entities.ApplicationStatusError, "Failed to send application: "+err.Error())
		return entities.Application{}, err
	}
	return snapshot, nil
}

func (s *CareerService) finishApplication(key string, instance saga.SagaInstance) {
	if instance.State == saga.SagaStateCompleted {
		message, _ := instance.Data[application.DataKeySendMessage].(string)
		s.setApplication(key, entities.ApplicationStatusSent, message)
		return
	}
	s.logger.Warn("One-click apply failed", zap.String("key", key), zap.String("error", instance.Error))
	s.setApplication(key, entities.ApplicationStatusError, "Failed to send application: "+instance.Error)
}

func (s *CareerService) setApplication(key string, status entities.ApplicationStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.applications[key]; ok {
		app.Status = status
		app.Message = message
		app.UpdatedAt = time.Now()
	}
}

// ApplicationStatus returns the one-click apply status for a listing key
func (s *CareerService) ApplicationStatus(candidateID, jobKey string) (entities.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[applicationKey(candidateID, jobKey)]
	if !ok {
		return entities.Application{}, fmt.Errorf("application %s: %w", jobKey, repositories.ErrNotFound)
	}
	return *app, nil
}

// Chat sends a message to the candidate's chat session. A non-nil history
// replaces the session; otherwise the previous conversation continues.
func (s *CareerService) Chat(ctx context.Context, candidateID, message string, history []entities.ChatMessage, onChunk func(chunk string) error) (entities.ChatMessage, error) {
	if strings.TrimSpace(message) == "" {
		return entities.ChatMessage{}, fmt.Errorf("%w: message is required", ErrMissingInput)
	}

	session, err := s.chatSession(ctx, candidateID, history)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	return session.SendMessageStream(ctx, message, onChunk)
}

// ChatHistory returns the candidate's current conversation
func (s *CareerService) ChatHistory(candidateID string) []entities.ChatMessage {
	s.mu.Lock()
	session, ok := s.chats[candidateID]
	s.mu.Unlock()
	if !ok {
		return []entities.ChatMessage{}
	}
	return session.History()
}

// ResetChat forgets the candidate's conversation
func (s *CareerService) ResetChat(candidateID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, candidateID)
}

func (s *CareerService) chatSession(ctx context.Context, candidateID string, history []entities.ChatMessage) (repositories.ChatSession, error) {
	if history == nil {
		s.mu.Lock()
		session, ok := s.chats[candidateID]
		s.mu.Unlock()
		if ok {
			return session, nil
		}
	}

	// Created without the lock so other candidates are not held up by the provider
	session, err := s.assistant.NewChat(ctx, history)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chats[candidateID]; ok && history == nil {
		return existing, nil
	}
	s.chats[candidateID] = session
	return session, nil
}

func applicationKey(candidateID, jobKey string) string {
	return candidateID + "/" + jobKey
}
