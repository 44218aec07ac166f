package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const keyPrefix = "resumes"

// R2Config holds configuration for the R2 resume store
// Required fields:
// - AccountID, Bucket, AccessKey, SecretKey
// Optional fields:
// - Endpoint: overrides the account endpoint (S3 compatible servers in development)
type R2Config struct {
	AccountID string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// objectAPI is the subset of the S3 client used by the store
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// R2ResumeStore archives resume uploads in a Cloudflare R2 bucket
type R2ResumeStore struct {
	client objectAPI
	bucket string
	logger *zap.Logger
}

var _ repositories.ResumeStore = (*R2ResumeStore)(nil)

// ValidateR2Config validates the R2Config
func ValidateR2Config(config R2Config) error {
	if config.AccountID == "" && config.Endpoint == "" {
		return fmt.Errorf("R2 account ID or endpoint is required")
	}
	if config.Bucket == "" {
		return fmt.Errorf("R2 bucket is required")
	}
	if config.AccessKey == "" || config.SecretKey == "" {
		return fmt.Errorf("R2 access key and secret key are required")
	}
	return nil
}

// NewR2ConfigFromEnv reads the bucket configuration from the environment
func NewR2ConfigFromEnv() R2Config {
	return R2Config{
		AccountID: os.Getenv("R2_ACCOUNT_ID"),
		Bucket:    os.Getenv("R2_BUCKET"),
		AccessKey: os.Getenv("R2_ACCESS_KEY"),
		SecretKey: os.Getenv("R2_SECRET_KEY"),
		Endpoint:  os.Getenv("R2_ENDPOINT"),
	}
}

// NewR2ResumeStore creates a store backed by the configured bucket
func NewR2ResumeStore(ctx context.Context, r2 R2Config, logger *zap.Logger) (*R2ResumeStore, error) {
	if err := ValidateR2Config(r2); err != nil {
		return nil, fmt.Errorf("invalid R2 config: %w", err)
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := r2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = r2.Endpoint != ""
	})

	logger.Info("R2 resume store configured", zap.String("bucket", r2.Bucket), zap.String("endpoint", endpoint))
	return newR2ResumeStore(client, r2.Bucket, logger), nil
}

func newR2ResumeStore(client objectAPI, bucket string, logger *zap.Logger) *R2ResumeStore {
	return &R2ResumeStore{client: client, bucket: bucket, logger: logger}
}

// Put implements repositories.ResumeStore
func (s *R2ResumeStore) Put(ctx context.Context, candidateID string, file entities.ResumeFile) (string, error) {
	if candidateID == "" {
		return "", fmt.Errorf("candidate ID is required")
	}
	key := objectKey(candidateID, file.Name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(file.Data),
		ContentLength: aws.Int64(int64(len(file.Data))),
	}
	if file.MIMEType != "" {
		input.ContentType = aws.String(file.MIMEType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Info("Resume archived", zap.String("candidate_id", candidateID), zap.String("key", key), zap.Int("size", len(file.Data)))
	return key, nil
}

// Get implements repositories.ResumeStore
func (s *R2ResumeStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return buf.Bytes(), nil
}

// objectKey builds resumes/<candidate>/<uuid>-<name>
func objectKey(candidateID, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "resume"
	}
	return path.Join(keyPrefix, candidateID, uuid.NewString()+"-"+name)
}
