package mongo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	defaultURI            = "mongodb://localhost:27017"
	defaultDatabase       = "careerpilot"
	defaultMaxPoolSize    = 10
	defaultConnectTimeout = 10 * time.Second
)

// Client wraps the MongoDB client and the interview database
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// Config holds the MongoDB connection settings
// Optional fields with defaults:
// - URI: connection string (default: "mongodb://localhost:27017")
// - Database: database name (default: "careerpilot")
// - MaxPoolSize: connection pool ceiling (default: 10)
// - ConnectTimeout: bound on connect and the first ping (default: 10s)
type Config struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if config.URI != "" {
		if _, err := url.Parse(config.URI); err != nil {
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
	}
	if config.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must be positive, got %s", config.ConnectTimeout)
	}
	return nil
}

// NewConfigFromEnv reads MONGODB_URI, MONGODB_DATABASE and MONGODB_MAX_POOL_SIZE
func NewConfigFromEnv() Config {
	config := Config{
		URI:      os.Getenv("MONGODB_URI"),
		Database: os.Getenv("MONGODB_DATABASE"),
	}
	if v, err := strconv.ParseUint(os.Getenv("MONGODB_MAX_POOL_SIZE"), 10, 64); err == nil {
		config.MaxPoolSize = v
	}
	return config
}

// NewClient connects to MongoDB and verifies the connection with a ping
func NewClient(ctx context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	uri := config.URI
	if uri == "" {
		uri = defaultURI
		logger.Info("Using default MongoDB URI", zap.String("uri", uri))
	}

	dbName := config.Database
	if dbName == "" {
		dbName = defaultDatabase
		logger.Info("Using default MongoDB database", zap.String("database", dbName))
	}

	maxPoolSize := config.MaxPoolSize
	if maxPoolSize == 0 {
		maxPoolSize = defaultMaxPoolSize
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetAppName("careerpilot").
		SetMaxPoolSize(maxPoolSize).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(connectTimeout)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB",
		zap.String("host", redactedHost(uri)),
		zap.String("database", dbName),
		zap.Uint64("maxPoolSize", maxPoolSize))

	return &Client{
		Client:   client,
		Database: client.Database(dbName),
		logger:   logger,
	}, nil
}

// Healthy pings the primary
func (c *Client) Healthy(ctx context.Context) error {
	return c.Client.Ping(ctx, readpref.Primary())
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}

// redactedHost keeps credentials out of the logs
func redactedHost(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
