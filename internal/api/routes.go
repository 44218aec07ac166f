package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/adapters/llm"
	"github.com/satriahrh/careerpilot/server/adapters/resume"
	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/internal/auth"
	"github.com/satriahrh/careerpilot/server/internal/websocket"
	"github.com/satriahrh/careerpilot/server/usecase"
)

const (
	candidateIDKey = "candidateID"

	// Maximum accepted resume upload.
	maxResumeBytes = 10 << 20
)

// Dependencies are the services exposed over HTTP
type Dependencies struct {
	Hub        *websocket.Hub
	Career     *usecase.CareerService
	Interviews *usecase.InterviewService
	Issuer     *auth.Issuer
	Logger     *zap.Logger

	// Store is pinged by /health when set
	Store HealthChecker
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger

	// Health check
	e.GET("/health", func(c echo.Context) error {
		status, code := "ok", http.StatusOK
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := deps.Store.Healthy(ctx); err != nil {
				logger.Warn("Store health check failed", zap.Error(err))
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		return c.JSON(code, map[string]any{
			"status":             status,
			"service":            "careerpilot-server",
			"active_clients":     deps.Hub.ActiveClients(),
			"running_interviews": deps.Hub.RunningInterviews(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, deps.Issuer, logger)
	})

	protected := v1.Group("", requireCandidate(deps.Issuer, logger))

	// Resume and job tools
	protected.POST("/resume/parse", func(c echo.Context) error {
		return parseResume(c, deps.Career, logger)
	})
	protected.POST("/resume/analyze", func(c echo.Context) error {
		return analyzeResume(c, deps.Career, logger)
	})
	protected.POST("/jobs/search", func(c echo.Context) error {
		return searchJobs(c, deps.Career, logger)
	})
	protected.POST("/cover-letter", func(c echo.Context) error {
		return coverLetter(c, deps.Career, logger)
	})

	// Applications
	protected.POST("/applications/send", func(c echo.Context) error {
		return sendApplication(c, deps.Career, logger)
	})
	protected.POST("/applications/one-click", func(c echo.Context) error {
		return oneClickApply(c, deps.Career, logger)
	})
	protected.GET("/applications/status", func(c echo.Context) error {
		app, err := deps.Career.ApplicationStatus(candidateID(c), c.QueryParam("key"))
		if err != nil {
			return writeError(c, logger, err, "")
		}
		return c.JSON(http.StatusOK, app)
	})

	// Career chat
	protected.POST("/chat", func(c echo.Context) error {
		return chat(c, deps.Career, logger)
	})
	protected.GET("/chat/history", func(c echo.Context) error {
		return c.JSON(http.StatusOK, ChatHistoryResponse{Messages: deps.Career.ChatHistory(candidateID(c))})
	})
	protected.DELETE("/chat", func(c echo.Context) error {
		deps.Career.ResetChat(candidateID(c))
		return c.NoContent(http.StatusNoContent)
	})

	// Interview history
	protected.GET("/interviews", func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		records, err := deps.Interviews.ListInterviews(c.Request().Context(), candidateID(c), limit)
		if err != nil {
			return writeError(c, logger, err, "Failed to load interviews: ")
		}
		return c.JSON(http.StatusOK, InterviewListResponse{Interviews: records})
	})
	protected.GET("/interviews/:id", func(c echo.Context) error {
		record, err := deps.Interviews.GetInterview(c.Request().Context(), candidateID(c), c.Param("id"))
		if err != nil {
			return writeError(c, logger, err, "Failed to load interview: ")
		}
		return c.JSON(http.StatusOK, record)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws/interview", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Issuer, c, logger)
	})
}

func candidateID(c echo.Context) string {
	id, _ := c.Get(candidateIDKey).(string)
	return id
}

// requireCandidate validates the Bearer token and stores the candidate ID
func requireCandidate(issuer *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.String("path", c.Path()), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}
			c.Set(candidateIDKey, claims.CandidateID)
			return next(c)
		}
	}
}

// issueToken issues a token for a new candidate, or renews the one presented
func issueToken(c echo.Context, issuer *auth.Issuer, logger *zap.Logger) error {
	var id string
	if token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); token != "" {
		claims, err := issuer.ValidateToken(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}
		id = claims.CandidateID
	}

	token, claims, err := issuer.GenerateCandidateToken(id)
	if err != nil {
		logger.Error("Failed to generate candidate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Candidate token issued", zap.String("candidate_id", claims.CandidateID), zap.Bool("renewed", id != ""))
	return c.JSON(http.StatusOK, TokenResponse{
		Token:       token,
		ExpiresAt:   claims.ExpiresAt.Time,
		CandidateID: claims.CandidateID,
	})
}

func parseResume(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_file",
			Message: "A resume file is required in the 'file' field",
		})
	}
	if fileHeader.Size > maxResumeBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "file_too_large",
			Message: fmt.Sprintf("Resume files must be smaller than %d MB", maxResumeBytes>>20),
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return writeError(c, logger, err, "Failed to process the resume file: ")
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxResumeBytes))
	if err != nil {
		return writeError(c, logger, err, "Failed to process the resume file: ")
	}

	file := entities.ResumeFile{
		Name:     fileHeader.Filename,
		MIMEType: resume.DetectMIMEType(fileHeader.Filename, fileHeader.Header.Get(echo.HeaderContentType)),
		Data:     data,
	}
	parsed, err := career.ParseResume(c.Request().Context(), candidateID(c), file)
	if errors.Is(err, llm.ErrUnsupportedInput) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unsupported_file",
			Message: fmt.Sprintf("The file type (%s) is not supported for parsing. Please use PDF, DOCX, or TXT.", file.MIMEType),
		})
	}
	if err != nil {
		return writeError(c, logger, err, "Failed to process the resume file: ")
	}
	return c.JSON(http.StatusOK, parsed)
}

func analyzeResume(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	data, err := career.AnalyzeResume(c.Request().Context(), req.ResumeText, req.JobDescription)
	if err != nil {
		return writeError(c, logger, err, "Failed to analyze the resume: ")
	}
	return c.JSON(http.StatusOK, data)
}

func searchJobs(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	data, err := career.SearchJobs(c.Request().Context(), req.JobDescription)
	if err != nil {
		return writeError(c, logger, err, "Failed to search for jobs: ")
	}
	return c.JSON(http.StatusOK, data)
}

func coverLetter(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req CoverLetterRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	letter, err := career.GenerateCoverLetter(c.Request().Context(), req.ResumeText, req.Job)
	if err != nil {
		return writeError(c, logger, err, "Failed to generate the cover letter: ")
	}
	return c.JSON(http.StatusOK, CoverLetterResponse{CoverLetter: letter})
}

func sendApplication(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req entities.EmailSendData
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing_fields", Message: err.Error()})
	}
	detail, err := career.SendApplication(c.Request().Context(), req)
	if err != nil {
		return writeError(c, logger, err, "Failed to send application: ")
	}
	return c.JSON(http.StatusOK, SendApplicationResponse{Message: usecase.ApplicationSentMessage, Detail: detail})
}

func oneClickApply(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req CoverLetterRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	app, err := career.OneClickApply(c.Request().Context(), candidateID(c), req.ResumeText, req.Job)
	if err != nil {
		return writeError(c, logger, err, "Failed to send application: ")
	}
	return c.JSON(http.StatusAccepted, app)
}

// chat streams the reply as server-sent events: one data event per chunk,
// then a "done" event with the full message or an "error" event.
func chat(c echo.Context, career *usecase.CareerService, logger *zap.Logger) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}

	res := c.Response()
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)
	}

	reply, err := career.Chat(c.Request().Context(), candidateID(c), req.Message, req.History, func(chunk string) error {
		start()
		if err := writeEvent(res, "", ChatChunk{Chunk: chunk}); err != nil {
			return err
		}
		res.Flush()
		return nil
	})
	if err != nil {
		if !started {
			return writeError(c, logger, err, "Failed to get a reply: ")
		}
		_, body := errorResponse(err, "Failed to get a reply: ")
		logger.Error("Chat stream failed", zap.Error(err))
		writeEvent(res, "error", body)
		res.Flush()
		return nil
	}

	start()
	if err := writeEvent(res, "done", reply); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func writeEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func invalidRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request format",
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on a WebSocket, so the token may also come
// from the token query parameter.
func websocketWithAuth(hub *websocket.Hub, issuer *auth.Issuer, c echo.Context, logger *zap.Logger) error {
	token := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("candidate_id", claims.CandidateID),
		zap.Time("expires_at", claims.ExpiresAt.Time))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.CandidateID, logger)
}
