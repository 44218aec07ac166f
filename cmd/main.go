package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/careerpilot/server/adapters/events"
	"github.com/satriahrh/careerpilot/server/adapters/live"
	"github.com/satriahrh/careerpilot/server/adapters/llm"
	"github.com/satriahrh/careerpilot/server/adapters/memory"
	"github.com/satriahrh/careerpilot/server/adapters/mongo"
	"github.com/satriahrh/careerpilot/server/adapters/resume"
	"github.com/satriahrh/careerpilot/server/adapters/storage"
	"github.com/satriahrh/careerpilot/server/adapters/webhook"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
	"github.com/satriahrh/careerpilot/server/internal/api"
	"github.com/satriahrh/careerpilot/server/internal/auth"
	"github.com/satriahrh/careerpilot/server/internal/interview"
	"github.com/satriahrh/careerpilot/server/internal/observe"
	"github.com/satriahrh/careerpilot/server/internal/websocket"
	"github.com/satriahrh/careerpilot/server/usecase"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	// Initialize logger
	logger := newLogger()
	defer logger.Sync()

	if os.Getenv("GEMINI_API_KEY") == "" {
		logger.Fatal("GEMINI_API_KEY is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	provider, err := observe.InitProvider()
	if err != nil {
		logger.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		logger.Fatal("Failed to create metrics", zap.Error(err))
	}

	// Initialize adapters
	assistant, err := llm.NewGeminiAssistant(llm.NewGeminiConfigFromEnv(), logger, metrics)
	if err != nil {
		logger.Fatal("Failed to create Gemini assistant", zap.Error(err))
	}
	connector, err := live.NewGeminiLive(live.NewGeminiLiveConfigFromEnv(), logger)
	if err != nil {
		logger.Fatal("Failed to create Gemini Live connector", zap.Error(err))
	}

	var interviewRepo repositories.InterviewRepository
	var healthStore api.HealthChecker
	if os.Getenv("MONGODB_URI") != "" {
		mongoClient, err := mongo.NewClient(ctx, mongo.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Close(context.Background())
		interviewRepo = mongo.NewInterviewRepository(mongoClient.Database, logger)
		healthStore = mongoClient
	} else {
		logger.Info("MONGODB_URI not set, keeping interviews in memory")
		interviewRepo = memory.NewInterviewRepository()
	}

	var publisher repositories.InterviewEventPublisher
	if rabbitConfig := events.NewRabbitMQConfigFromEnv(); rabbitConfig.URL != "" {
		rabbit, err := events.NewRabbitMQPublisher(rabbitConfig, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	careerOpts := []usecase.CareerServiceOption{}
	if r2Config := storage.NewR2ConfigFromEnv(); r2Config.Bucket != "" {
		store, err := storage.NewR2ResumeStore(ctx, r2Config, logger)
		if err != nil {
			logger.Fatal("Failed to configure resume storage", zap.Error(err))
		}
		careerOpts = append(careerOpts, usecase.WithResumeStore(store))
	}
	if n8nConfig := webhook.NewN8nConfigFromEnv(); n8nConfig.URL != "" {
		sender, err := webhook.NewN8nClient(n8nConfig, logger)
		if err != nil {
			logger.Fatal("Failed to configure the email webhook", zap.Error(err))
		}
		careerOpts = append(careerOpts, usecase.WithEmailSender(sender))
	}

	issuer, err := auth.NewIssuer(auth.NewConfigFromEnv())
	if err != nil {
		logger.Fatal("Invalid JWT configuration", zap.Error(err))
	}

	// Initialize usecase services
	careerService := usecase.NewCareerService(assistant, resume.NewLocalExtractor(logger), logger, careerOpts...)
	interviewService, err := usecase.NewInterviewService(connector, interview.NewConfigFromEnv(), interviewRepo, publisher, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create interview service", zap.Error(err))
	}

	// Initialize WebSocket hub with the interview service
	hub := websocket.NewHub(interviewService, logger)
	cleanup := websocket.NewInterviewCleanupService(interviewRepo, websocket.InterviewCleanupConfig{}, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(observe.EchoMiddleware(metrics))

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub:        hub,
		Career:     careerService,
		Interviews: interviewService,
		Issuer:     issuer,
		Logger:     logger,
		Store:      healthStore,
	})
	e.GET("/metrics", echo.WrapHandler(provider.Handler))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cleanup.Start()
		<-gctx.Done()
		cleanup.Stop()
		return nil
	})
	g.Go(func() error {
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to flush metrics", zap.Error(err))
		}
		return nil
	})

	logger.Info("Server started", zap.String("port", port))

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

// newLogger builds the production logger, teed into a rotating file when
// LOG_FILE is set
func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	filename := os.Getenv("LOG_FILE")
	if filename == "" {
		return logger
	}

	maxSize, err := strconv.Atoi(os.Getenv("LOG_MAX_SIZE_MB"))
	if err != nil || maxSize <= 0 {
		maxSize = 100
	}
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotator),
		zap.InfoLevel,
	)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}
