package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	uploadsCollection  = "uploads"
	recordsCollection  = "records"
	usersCollection    = "users"
	sessionsCollection = "sessions"

	queryTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Repositories bundles the Mongo-backed repositories of one database.
type Repositories struct {
	Uploads  UploadRepository
	Records  RecordRepository
	Users    UserRepository
	Sessions SessionRepository
}

// NewMongoRepositories wires every repository to db.
func NewMongoRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		Uploads:  NewUploadRepository(db),
		Records:  NewRecordRepository(db),
		Users:    NewUserRepository(db),
		Sessions: NewSessionRepository(db),
	}
}

// EnsureIndexes creates the indexes the query paths rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		uploadsCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		recordsCollection: {
			{Keys: bson.D{{Key: "upload_id", Value: 1}, {Key: "row_number", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		sessionsCollection: {
			{Keys: bson.D{{Key: "token", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}

	for collection, models := range specs {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, classify(err))
		}
	}
	return nil
}

// classify maps driver errors onto the repository sentinels.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
