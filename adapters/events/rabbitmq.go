package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const defaultExchange = "interview_updates"

// RabbitMQConfig holds configuration for the interview event publisher
// Required fields:
// - URL: the AMQP broker URL
// Optional fields with defaults:
// - Exchange: topic exchange name (default: interview_updates)
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// InterviewEnded is the body published when an interview reaches a terminal status
type InterviewEnded struct {
	InterviewID string                    `json:"interview_id"`
	CandidateID string                    `json:"candidate_id"`
	Status      entities.SessionStatus    `json:"status"`
	Error       string                    `json:"error,omitempty"`
	Turns       int                       `json:"turns"`
	Transcript  []entities.TranscriptTurn `json:"transcript"`
	StartedAt   time.Time                 `json:"started_at"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
}

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher implements InterviewEventPublisher on a topic exchange
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	open     func() (channel, error)
	exchange string
	logger   *zap.Logger
	mu       sync.Mutex
}

var _ repositories.InterviewEventPublisher = (*RabbitMQPublisher)(nil)

// ValidateRabbitMQConfig validates the RabbitMQConfig
func ValidateRabbitMQConfig(config RabbitMQConfig) error {
	if config.URL == "" {
		return fmt.Errorf("RabbitMQ URL is required")
	}
	return nil
}

// NewRabbitMQConfigFromEnv reads the broker configuration from the environment
func NewRabbitMQConfigFromEnv() RabbitMQConfig {
	return RabbitMQConfig{
		URL:      os.Getenv("RABBITMQ_URL"),
		Exchange: os.Getenv("RABBITMQ_EXCHANGE"),
	}
}

// NewRabbitMQPublisher dials the broker and declares the exchange
func NewRabbitMQPublisher(config RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if err := ValidateRabbitMQConfig(config); err != nil {
		return nil, fmt.Errorf("invalid RabbitMQ config: %w", err)
	}
	if config.Exchange == "" {
		config.Exchange = defaultExchange
		logger.Info("Using default exchange", zap.String("exchange", config.Exchange))
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(config.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	open := func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	p := newRabbitMQPublisher(open, config.Exchange, logger)
	p.conn = conn
	return p, nil
}

func newRabbitMQPublisher(open func() (channel, error), exchange string, logger *zap.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{open: open, exchange: exchange, logger: logger}
}

// RoutingKey is interview.<id>.<status>
func RoutingKey(record *entities.InterviewRecord) string {
	return fmt.Sprintf("interview.%s.%s", record.ID, record.Status)
}

// PublishInterviewEnded implements repositories.InterviewEventPublisher
func (p *RabbitMQPublisher) PublishInterviewEnded(ctx context.Context, record *entities.InterviewRecord) error {
	if !record.Status.IsTerminal() {
		return fmt.Errorf("interview %s is still %s", record.ID, record.Status)
	}

	body, err := json.Marshal(InterviewEnded{
		InterviewID: record.ID,
		CandidateID: record.CandidateID,
		Status:      record.Status,
		Error:       record.Error,
		Turns:       len(record.Transcript),
		Transcript:  record.Transcript,
		StartedAt:   record.StartedAt,
		EndedAt:     record.EndedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	routingKey := RoutingKey(record)
	if err := ch.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("Interview event published", zap.String("exchange", p.exchange), zap.String("routing_key", routingKey))
	return nil
}

// Close closes the broker connection
func (p *RabbitMQPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
