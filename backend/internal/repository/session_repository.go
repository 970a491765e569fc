package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"student_records/backend/internal/shared"
)

type sessionRepository struct {
	col *mongo.Collection
}

// NewSessionRepository returns the Mongo-backed SessionRepository.
func NewSessionRepository(db *mongo.Database) SessionRepository {
	return &sessionRepository{col: db.Collection(sessionsCollection)}
}

func (r *sessionRepository) Create(ctx context.Context, session *shared.Session) error {
	insertCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(insertCtx, session); err != nil {
		return fmt.Errorf("insert session: %w", classify(err))
	}
	return nil
}

// Exists reports whether an unexpired session holds token.
func (r *sessionRepository) Exists(ctx context.Context, token string) (bool, error) {
	filter := bson.M{
		"token":      token,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	count, err := shared.CountDocumentsWithTimeout(ctx, r.col, filter, writeTimeout)
	if err != nil {
		return false, classify(err)
	}
	return count > 0, nil
}

func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	deleteCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	result, err := r.col.DeleteOne(deleteCtx, bson.M{"token": token})
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", classify(err))
	}
	return result.DeletedCount, nil
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	deleteCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	result, err := r.col.DeleteMany(deleteCtx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete sessions of %s: %w", userID, classify(err))
	}
	return result.DeletedCount, nil
}
