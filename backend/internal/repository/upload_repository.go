package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"student_records/backend/internal/shared"
)

type uploadRepository struct {
	col *mongo.Collection
}

// NewUploadRepository returns the Mongo-backed UploadRepository.
func NewUploadRepository(db *mongo.Database) UploadRepository {
	return &uploadRepository{col: db.Collection(uploadsCollection)}
}

func (r *uploadRepository) Create(ctx context.Context, upload *shared.UploadJob) error {
	if upload.Errors == nil {
		upload.Errors = []shared.RowError{}
	}

	insertCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(insertCtx, upload); err != nil {
		return fmt.Errorf("insert upload: %w", classify(err))
	}
	return nil
}

func (r *uploadRepository) Get(ctx context.Context, id string) (*shared.UploadJob, error) {
	var upload shared.UploadJob
	if err := shared.FindOneWithTimeout(ctx, r.col, bson.M{"_id": id}, &upload, queryTimeout); err != nil {
		return nil, classify(err)
	}
	return &upload, nil
}

func (r *uploadRepository) List(ctx context.Context, q UploadQuery) ([]shared.UploadJob, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{}
	if q.OwnerID != "" {
		filter["owner_id"] = q.OwnerID
	}

	total, err := r.col.CountDocuments(queryCtx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count uploads: %w", classify(err))
	}

	opts := shared.BuildFindOptions(q.Page.Skip(), int64(q.Page.Limit), "created_at", -1).
		SetProjection(bson.M{"errors": 0})

	cursor, err := r.col.Find(queryCtx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find uploads: %w", classify(err))
	}
	defer cursor.Close(queryCtx)

	uploads := []shared.UploadJob{}
	if err := cursor.All(queryCtx, &uploads); err != nil {
		return nil, 0, fmt.Errorf("decode uploads: %w", classify(err))
	}
	return uploads, total, nil
}

func (r *uploadRepository) ApplyBatch(ctx context.Context, id string, p BatchProgress) error {
	update := bson.M{
		"$inc": bson.M{
			"processed_records": p.Processed,
			"failed_records":    p.Failed,
		},
	}
	if len(p.Errors) > 0 {
		update["$push"] = bson.M{"errors": bson.M{"$each": p.Errors}}
	}
	return r.update(ctx, id, update)
}

func (r *uploadRepository) Finish(ctx context.Context, id string, status shared.UploadStatus, completedAt time.Time, errs []shared.RowError) error {
	update := bson.M{
		"$set": bson.M{
			"status":       status,
			"completed_at": completedAt,
		},
	}
	if len(errs) > 0 {
		update["$push"] = bson.M{"errors": bson.M{"$each": errs}}
	}
	return r.update(ctx, id, update)
}

func (r *uploadRepository) update(ctx context.Context, id string, update bson.M) error {
	updateCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	result, err := r.col.UpdateOne(updateCtx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update upload %s: %w", id, classify(err))
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *uploadRepository) Delete(ctx context.Context, id string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	result, err := r.col.DeleteOne(deleteCtx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete upload %s: %w", id, classify(err))
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *uploadRepository) Count(ctx context.Context, status shared.UploadStatus) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	count, err := shared.CountDocumentsWithTimeout(ctx, r.col, filter, queryTimeout)
	return count, classify(err)
}
