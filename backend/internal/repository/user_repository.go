package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"student_records/backend/internal/shared"
)

type userRepository struct {
	col *mongo.Collection
}

// NewUserRepository returns the Mongo-backed UserRepository.
func NewUserRepository(db *mongo.Database) UserRepository {
	return &userRepository{col: db.Collection(usersCollection)}
}

func (r *userRepository) Create(ctx context.Context, user *shared.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	insertCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(insertCtx, user); err != nil {
		return fmt.Errorf("insert user: %w", classify(err))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*shared.User, error) {
	var user shared.User
	if err := shared.FindOneWithTimeout(ctx, r.col, bson.M{"_id": id}, &user, queryTimeout); err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*shared.User, error) {
	var user shared.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := shared.FindOneWithTimeout(ctx, r.col, filter, &user, queryTimeout); err != nil {
		return nil, classify(err)
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, q UserQuery) ([]shared.User, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{}
	if q.Role != "" {
		filter["role"] = q.Role
	}
	if q.ActiveOnly {
		filter["is_active"] = true
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := r.col.Find(queryCtx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", classify(err))
	}
	defer cursor.Close(queryCtx)

	users := []shared.User{}
	if err := cursor.All(queryCtx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", classify(err))
	}
	return users, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.set(ctx, id, bson.M{"password_hash": passwordHash})
}

func (r *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.set(ctx, id, bson.M{"is_active": active})
}

func (r *userRepository) set(ctx context.Context, id string, fields bson.M) error {
	updateCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	fields["updated_at"] = time.Now()
	result, err := r.col.UpdateOne(updateCtx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update user %s: %w", id, classify(err))
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	count, err := shared.CountDocumentsWithTimeout(ctx, r.col, filter, queryTimeout)
	return count, classify(err)
}
