package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/careerpilot/server/adapters/llm"
	"github.com/satriahrh/careerpilot/server/adapters/resume"
	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

type fakeStore struct {
	keys []string
	err  error
}

func (f *fakeStore) Put(ctx context.Context, candidateID string, file entities.ResumeFile) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "resumes/" + candidateID + "/" + file.Name
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, repositories.ErrNotFound
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []entities.EmailSendData
	err     error
	release chan struct{}
}

func (f *fakeSender) SendApplication(ctx context.Context, data entities.EmailSendData) (string, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return "Email queued", nil
}

var acme = entities.JobListing{Title: "Backend Engineer", Company: "Acme", ContactEmail: "jobs@acme.example"}

func newTestCareerService(t *testing.T, opts ...CareerServiceOption) (*CareerService, *llm.MockAssistant) {
	assistant := llm.NewMockAssistant()
	return NewCareerService(assistant, resume.NewLocalExtractor(zap.NewNop()), zaptest.NewLogger(t), opts...), assistant
}

func waitForStatus(t *testing.T, s *CareerService, candidateID, key string, status entities.ApplicationStatus) entities.Application {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		app, err := s.ApplicationStatus(candidateID, key)
		if err == nil && app.Status == status {
			return app
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for status %s", status)
	return entities.Application{}
}

func TestCareerService_ParseResume(t *testing.T) {
	store := &fakeStore{}
	s, _ := newTestCareerService(t, WithResumeStore(store))
	ctx := context.Background()

	parsed, err := s.ParseResume(ctx, "c1", entities.ResumeFile{Name: "cv.txt", MIMEType: "text/plain", Data: []byte("  Jane Doe \n")})
	if err != nil {
		t.Fatalf("ParseResume: %v", err)
	}
	if parsed.Text != "Jane Doe" || parsed.Source != "local" || parsed.StorageKey != "resumes/c1/cv.txt" {
		t.Errorf("Unexpected result %+v", parsed)
	}

	parsed, err = s.ParseResume(ctx, "c1", entities.ResumeFile{Name: "scan.png", MIMEType: "image/png", Data: []byte{0x89}})
	if err != nil {
		t.Fatalf("ParseResume: %v", err)
	}
	if parsed.Source != "model" || parsed.Text != "Resume extracted from scan.png" {
		t.Errorf("Expected the model fallback, got %+v", parsed)
	}

	if _, err := s.ParseResume(ctx, "c1", entities.ResumeFile{Name: "old.doc", Data: []byte{1}}); !errors.Is(err, entities.ErrLegacyDoc) {
		t.Errorf("Expected ErrLegacyDoc, got %v", err)
	}
	if _, err := s.ParseResume(ctx, "c1", entities.ResumeFile{Name: "empty.txt"}); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
}

func TestCareerService_ParseResumeArchiveFailure(t *testing.T) {
	s, _ := newTestCareerService(t, WithResumeStore(&fakeStore{err: errors.New("bucket missing")}))

	parsed, err := s.ParseResume(context.Background(), "c1", entities.ResumeFile{Name: "cv.txt", Data: []byte("text")})
	if err != nil {
		t.Fatalf("Expected the parse to succeed without the archive, got %v", err)
	}
	if parsed.StorageKey != "" {
		t.Errorf("Expected no storage key, got %s", parsed.StorageKey)
	}
}

func TestCareerService_ModelErrorsPropagate(t *testing.T) {
	s, assistant := newTestCareerService(t)
	assistant.Err = llm.ErrInvalidAPIKey

	if _, err := s.ParseResume(context.Background(), "c1", entities.ResumeFile{Name: "scan.png", MIMEType: "image/png", Data: []byte{1}}); !errors.Is(err, llm.ErrInvalidAPIKey) {
		t.Errorf("Expected ErrInvalidAPIKey, got %v", err)
	}
	if _, err := s.AnalyzeResume(context.Background(), "resume", "role"); !errors.Is(err, llm.ErrInvalidAPIKey) {
		t.Errorf("Expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestCareerService_RequiredInputs(t *testing.T) {
	s, _ := newTestCareerService(t)
	ctx := context.Background()

	if _, err := s.AnalyzeResume(ctx, "", "role"); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
	if _, err := s.SearchJobs(ctx, "  "); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
	if _, err := s.GenerateCoverLetter(ctx, "", acme); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}
	if _, err := s.Chat(ctx, "c1", "", nil, nil); !errors.Is(err, ErrMissingInput) {
		t.Errorf("Expected ErrMissingInput, got %v", err)
	}

	result, err := s.SearchJobs(ctx, "Go developer")
	if err != nil || len(result.JobListings) == 0 {
		t.Errorf("Expected listings, got %+v, %v", result, err)
	}
}

func TestCareerService_SendApplication(t *testing.T) {
	s, _ := newTestCareerService(t)
	if _, err := s.SendApplication(context.Background(), entities.EmailSendData{}); !errors.Is(err, ErrEmailNotConfigured) {
		t.Errorf("Expected ErrEmailNotConfigured, got %v", err)
	}

	sender := &fakeSender{}
	s, _ = newTestCareerService(t, WithEmailSender(sender))
	message, err := s.SendApplication(context.Background(), entities.EmailSendData{Resume: "r", CoverLetter: "c", RecipientEmail: "a@b.c", JobDetails: acme})
	if err != nil || message != "Email queued" {
		t.Errorf("Unexpected result %q, %v", message, err)
	}
}

func TestCareerService_OneClickApply(t *testing.T) {
	sender := &fakeSender{release: make(chan struct{})}
	s, _ := newTestCareerService(t, WithEmailSender(sender))
	ctx := context.Background()

	app, err := s.OneClickApply(ctx, "c1", "My resume", acme)
	if err != nil {
		t.Fatalf("OneClickApply: %v", err)
	}
	if app.Status != entities.ApplicationStatusSending || app.Key != "Backend Engineer|Acme" {
		t.Errorf("Unexpected application %+v", app)
	}

	if _, err := s.OneClickApply(ctx, "c1", "My resume", acme); !errors.Is(err, ErrApplicationInProgress) {
		t.Errorf("Expected ErrApplicationInProgress, got %v", err)
	}

	// Another candidate is independent
	if _, err := s.OneClickApply(ctx, "c2", "Other resume", acme); err != nil {
		t.Errorf("Unexpected error for another candidate: %v", err)
	}

	close(sender.release)
	app = waitForStatus(t, s, "c1", acme.Key(), entities.ApplicationStatusSent)
	if app.Message != "Email queued" {
		t.Errorf("Expected the webhook message, got %q", app.Message)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) == 0 || !strings.Contains(sender.sent[0].CoverLetter, "Backend Engineer") {
		t.Errorf("Expected a generated cover letter, got %+v", sender.sent)
	}
}

func TestCareerService_OneClickApplyFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("API Error: 502 - bad gateway")}
	s, _ := newTestCareerService(t, WithEmailSender(sender))

	if _, err := s.OneClickApply(context.Background(), "c1", "My resume", acme); err != nil {
		t.Fatalf("OneClickApply: %v", err)
	}
	app := waitForStatus(t, s, "c1", acme.Key(), entities.ApplicationStatusError)
	if app.Message != "Failed to send application: API Error: 502 - bad gateway" {
		t.Errorf("Unexpected message %q", app.Message)
	}

	// A failed application can be retried
	if _, err := s.OneClickApply(context.Background(), "c1", "My resume", acme); err != nil {
		t.Errorf("Expected a retry to be accepted, got %v", err)
	}
}

func TestCareerService_OneClickApplyRejections(t *testing.T) {
	s, _ := newTestCareerService(t, WithEmailSender(&fakeSender{}))
	ctx := context.Background()

	noEmail := entities.JobListing{Title: "Go Developer", Company: "Globex"}
	if _, err := s.OneClickApply(ctx, "c1", "My resume", noEmail); !errors.Is(err, ErrCannotOneClickApply) {
		t.Errorf("Expected ErrCannotOneClickApply, got %v", err)
	}
	if _, err := s.OneClickApply(ctx, "c1", "", acme); !errors.Is(err, ErrCannotOneClickApply) {
		t.Errorf("Expected ErrCannotOneClickApply, got %v", err)
	}
	if _, err := s.ApplicationStatus("c1", noEmail.Key()); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCareerService_Chat(t *testing.T) {
	s, _ := newTestCareerService(t)
	ctx := context.Background()

	var chunks []string
	reply, err := s.Chat(ctx, "c1", "Hello", nil, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if strings.Join(chunks, "") != reply.Content {
		t.Errorf("Expected streamed chunks to form the reply")
	}

	s.Chat(ctx, "c1", "Second", nil, nil)
	if got := len(s.ChatHistory("c1")); got != 4 {
		t.Errorf("Expected 4 history messages, got %d", got)
	}

	// Supplied history replaces the session
	s.Chat(ctx, "c1", "Fresh", []entities.ChatMessage{{Role: entities.RoleUser, Content: "Earlier"}}, nil)
	if got := len(s.ChatHistory("c1")); got != 3 {
		t.Errorf("Expected 3 history messages, got %d", got)
	}

	s.ResetChat("c1")
	if got := len(s.ChatHistory("c1")); got != 0 {
		t.Errorf("Expected an empty history after reset, got %d", got)
	}
}

// slowChatAssistant holds NewChat until release is closed
type slowChatAssistant struct {
	*llm.MockAssistant
	entered chan struct{}
	release chan struct{}
}

func (a *slowChatAssistant) NewChat(ctx context.Context, history []entities.ChatMessage) (repositories.ChatSession, error) {
	close(a.entered)
	<-a.release
	return a.MockAssistant.NewChat(ctx, history)
}

func TestCareerService_ChatCreationDoesNotBlockOthers(t *testing.T) {
	assistant := &slowChatAssistant{
		MockAssistant: llm.NewMockAssistant(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	s := NewCareerService(assistant, resume.NewLocalExtractor(zap.NewNop()), zaptest.NewLogger(t))

	chatDone := make(chan error, 1)
	go func() {
		_, err := s.Chat(context.Background(), "c1", "Hello", nil, nil)
		chatDone <- err
	}()
	<-assistant.entered

	otherDone := make(chan struct{})
	go func() {
		defer close(otherDone)
		s.ChatHistory("c2")
		s.ApplicationStatus("c2", "Go Dev|Acme")
	}()
	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Error("Expected other candidates to be served while a chat session is created")
	}

	close(assistant.release)
	if err := <-chatDone; err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := len(s.ChatHistory("c1")); got != 2 {
		t.Errorf("Expected 2 history messages, got %d", got)
	}
}
