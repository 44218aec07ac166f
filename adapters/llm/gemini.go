package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/jsonextract"
	"github.com/satriahrh/careerpilot/server/internal/observe"
)

// GeminiAssistant implements the CareerAssistant interface using Google's Gemini API
type GeminiAssistant struct {
	client  *genai.Client
	config  GeminiConfig
	logger  *zap.Logger
	metrics *observe.Metrics
}

var _ repositories.CareerAssistant = (*GeminiAssistant)(nil)

// NewGeminiAssistant creates a new Gemini career assistant
func NewGeminiAssistant(config GeminiConfig, logger *zap.Logger, metrics *observe.Metrics) (*GeminiAssistant, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	config = applyDefaults(config, logger)

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAssistant{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// ExtractResumeText asks the model to transcribe a resume document
func (g *GeminiAssistant) ExtractResumeText(ctx context.Context, file entities.ResumeFile) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(file.Data, file.MIMEType),
			genai.NewPartFromText(extractResumePrompt),
		}, genai.RoleUser),
	}

	resp, err := g.generate(ctx, "extract_resume", g.config.ParseModel, contents, nil)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("extract_resume: %w", ErrEmptyResponse)
	}
	return text, nil
}

// AnalyzeResume scores a resume against a job description with a thinking budget
func (g *GeminiAssistant) AnalyzeResume(ctx context.Context, resumeText, jobDescription string) (*entities.AtsData, error) {
	config := &genai.GenerateContentConfig{
		ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(g.config.ThinkingBudget)},
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"ATS_Score":       {Type: genai.TypeInteger},
				"Strengths":       {Type: genai.TypeString},
				"Gaps":            {Type: genai.TypeString},
				"Recommendations": {Type: genai.TypeString},
			},
			Required: []string{"ATS_Score", "Strengths", "Gaps", "Recommendations"},
		},
	}

	resp, err := g.generate(ctx, "analyze_resume", g.config.AnalysisModel,
		genai.Text(analysisPrompt(resumeText, jobDescription)), config)
	if err != nil {
		return nil, err
	}

	var data entities.AtsData
	if err := jsonextract.Decode(resp.Text(), &data); err != nil {
		g.logger.Warn("Malformed ATS analysis", zap.Error(err))
		return nil, fmt.Errorf("analyze_resume: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("analyze_resume: %w", err)
	}
	return &data, nil
}

// SearchJobs finds LinkedIn job postings using the Google Search tool
func (g *GeminiAssistant) SearchJobs(ctx context.Context, jobDescription string) (*entities.JobSearchData, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(searchSystemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	resp, err := g.generate(ctx, "search_jobs", g.config.SearchModel, genai.Text(searchPrompt(jobDescription)), config)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		JobListings []entities.JobListing `json:"Job_Listings"`
	}
	if err := jsonextract.Decode(resp.Text(), &parsed); err != nil {
		g.logger.Warn("Malformed job search result", zap.String("raw", resp.Text()), zap.Error(err))
		return nil, fmt.Errorf("search_jobs: %w", err)
	}
	if parsed.JobListings == nil {
		parsed.JobListings = make([]entities.JobListing, 0)
	}

	return &entities.JobSearchData{
		JobListings: parsed.JobListings,
		Message:     fmt.Sprintf("Found %d relevant jobs from LinkedIn.", len(parsed.JobListings)),
		Sources:     groundingSources(resp),
	}, nil
}

// GenerateCoverLetter writes a cover letter for one listing
func (g *GeminiAssistant) GenerateCoverLetter(ctx context.Context, resumeText string, job entities.JobListing) (string, error) {
	resp, err := g.generate(ctx, "cover_letter", g.config.WriterModel, genai.Text(coverLetterPrompt(resumeText, job)), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("cover_letter: %w", ErrEmptyResponse)
	}
	return text, nil
}

// NewChat creates a chat session seeded with history
func (g *GeminiAssistant) NewChat(ctx context.Context, history []entities.ChatMessage) (repositories.ChatSession, error) {
	chat, err := g.client.Chats.Create(ctx, g.config.ChatModel, nil, convertToGeminiFormat(history))
	if err != nil {
		return nil, ClassifyError("chat", err)
	}
	return newGeminiChatSession(chat, g.config.timeout(), g.logger, g.metrics), nil
}

// generate calls the model, retrying transient failures
func (g *GeminiAssistant) generate(ctx context.Context, op, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.timeout())
	defer cancel()

	start := time.Now()
	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.config.MaxAttempts; attempt++ {
		resp, err = g.client.Models.GenerateContent(ctx, model, contents, config)
		if err == nil || !retriable(err) {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			attempt = g.config.MaxAttempts
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}

	if err != nil {
		g.metrics.RecordProviderRequest(ctx, op, "error", time.Since(start))
		g.logger.Error("Gemini request failed",
			zap.String("operation", op),
			zap.String("model", model),
			zap.Error(err))
		return nil, ClassifyError(op, err)
	}

	g.metrics.RecordProviderRequest(ctx, op, "ok", time.Since(start))
	g.logger.Debug("Gemini request completed",
		zap.String("operation", op),
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// groundingSources collects the web citations of the first candidate, deduplicated by URI
func groundingSources(resp *genai.GenerateContentResponse) []entities.GroundingSource {
	sources := make([]entities.GroundingSource, 0)
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return sources
	}

	seen := make(map[string]bool)
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true

		title := chunk.Web.Title
		if title == "" {
			title = "Source"
		}
		sources = append(sources, entities.GroundingSource{Title: title, URI: chunk.Web.URI})
	}
	return sources
}
