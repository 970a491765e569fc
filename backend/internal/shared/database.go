// ============================================================================
// backend/internal/shared/database.go
// MongoDB connection and helper utilities
// ============================================================================

package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	MaxIdleTime    time.Duration
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 20 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    10,
		MaxIdleTime:    30 * time.Second,
	}
}

// ConnectMongoDB establishes connection to MongoDB Atlas/Local with proper configuration
func ConnectMongoDB(config *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("mongo config cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxIdleTime).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(config.ConnectTimeout).
		SetSocketTimeout(30 * time.Second).
		SetHeartbeatInterval(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping MongoDB to verify connection
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	Log.WithField("database", config.Database).Info("Successfully connected to MongoDB")

	db := client.Database(config.Database)
	return client, db, nil
}

// DisconnectMongoDB gracefully closes MongoDB connection
func DisconnectMongoDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	Log.Info("Successfully disconnected from MongoDB")
	return nil
}

// PingMongoDB reports whether the primary is reachable
func PingMongoDB(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}

// ============================================================================
// ID Generation Helpers
// ============================================================================

// GenerateID generates a unique ID with prefix
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// ============================================================================
// Query Helpers
// ============================================================================

// BuildFindOptions creates common find options with pagination and sort
func BuildFindOptions(skip, limit int64, sortField string, sortOrder int) *options.FindOptions {
	opts := options.Find()

	if skip > 0 {
		opts.SetSkip(skip)
	}

	if limit > 0 {
		opts.SetLimit(limit)
	}

	if sortField != "" {
		// _id as tiebreaker keeps skip/limit pages stable
		sort := bson.D{{Key: sortField, Value: sortOrder}}
		if sortField != "_id" {
			sort = append(sort, bson.E{Key: "_id", Value: sortOrder})
		}
		opts.SetSort(sort)
	}

	return opts
}

// CountDocumentsWithTimeout counts documents with timeout
func CountDocumentsWithTimeout(ctx context.Context, col *mongo.Collection, filter interface{}, timeout time.Duration) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	count, err := col.CountDocuments(queryCtx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	return count, nil
}

// FindOneWithTimeout decodes the first document matching filter into result
func FindOneWithTimeout(ctx context.Context, col *mongo.Collection, filter interface{}, result interface{}, timeout time.Duration) error {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return col.FindOne(queryCtx, filter).Decode(result)
}
