package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

const interviewsCollection = "interviews"

// InterviewRepository implements repositories.InterviewRepository using MongoDB
type InterviewRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.InterviewRepository = (*InterviewRepository)(nil)

// NewInterviewRepository creates a new MongoDB interview repository
func NewInterviewRepository(db *mongo.Database, logger *zap.Logger) *InterviewRepository {
	collection := db.Collection(interviewsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Listing a candidate's interviews, newest first
		candidateIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "candidate_id", Value: 1},
				{Key: "started_at", Value: -1},
			},
		}

		// Finding stale running interviews
		statusIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "updated_at", Value: 1},
			},
		}

		if _, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{candidateIndex, statusIndex}); err != nil {
			logger.Error("Failed to create interview indexes", zap.Error(err))
		} else {
			logger.Info("Interview indexes created successfully")
		}
	}()

	return &InterviewRepository{
		collection: collection,
		logger:     logger,
	}
}

// Create implements repositories.InterviewRepository
func (r *InterviewRepository) Create(ctx context.Context, record *entities.InterviewRecord) error {
	if record == nil {
		return errors.New("interview record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to create interview: %w", err)
	}
	return nil
}

// Update implements repositories.InterviewRepository
func (r *InterviewRepository) Update(ctx context.Context, record *entities.InterviewRecord) error {
	if record == nil {
		return errors.New("interview record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"status":     record.Status,
			"transcript": record.Transcript,
			"error":      record.Error,
			"updated_at": record.UpdatedAt,
			"ended_at":   record.EndedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": record.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update interview: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("interview %s: %w", record.ID, repositories.ErrNotFound)
	}
	return nil
}

// GetByID implements repositories.InterviewRepository
func (r *InterviewRepository) GetByID(ctx context.Context, id string) (*entities.InterviewRecord, error) {
	if id == "" {
		return nil, errors.New("interview ID cannot be empty")
	}

	var record entities.InterviewRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("interview %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get interview %s: %w", id, err)
	}
	return &record, nil
}

// ListByCandidate implements repositories.InterviewRepository
func (r *InterviewRepository) ListByCandidate(ctx context.Context, candidateID string, limit int) ([]*entities.InterviewRecord, error) {
	if candidateID == "" {
		return nil, errors.New("candidate ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"candidate_id": candidateID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews for candidate %s: %w", candidateID, err)
	}
	defer cursor.Close(ctx)

	records := make([]*entities.InterviewRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode interviews: %w", err)
	}
	return records, nil
}

// EndStale implements repositories.InterviewRepository
func (r *InterviewRepository) EndStale(ctx context.Context, maxAge time.Duration) (int, error) {
	now := time.Now()
	filter := bson.M{
		"status": bson.M{"$in": []entities.SessionStatus{
			entities.SessionStatusConnecting,
			entities.SessionStatusActive,
		}},
		"updated_at": bson.M{"$lt": now.Add(-maxAge)},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     entities.SessionStatusEnded,
			"updated_at": now,
			"ended_at":   now,
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to end stale interviews: %w", err)
	}

	if result.ModifiedCount > 0 {
		r.logger.Info("Ended stale interviews", zap.Int64("count", result.ModifiedCount))
	}
	return int(result.ModifiedCount), nil
}
