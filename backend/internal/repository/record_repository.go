package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"student_records/backend/internal/shared"
)

type recordRepository struct {
	col *mongo.Collection
}

// NewRecordRepository returns the Mongo-backed RecordRepository.
func NewRecordRepository(db *mongo.Database) RecordRepository {
	return &recordRepository{col: db.Collection(recordsCollection)}
}

func (r *recordRepository) Insert(ctx context.Context, record *shared.RecordRow) error {
	insertCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(insertCtx, record); err != nil {
		return fmt.Errorf("insert record row %d: %w", record.RowNumber, classify(err))
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, id string) (*shared.RecordRow, error) {
	var record shared.RecordRow
	if err := shared.FindOneWithTimeout(ctx, r.col, bson.M{"_id": id}, &record, queryTimeout); err != nil {
		return nil, classify(err)
	}
	return &record, nil
}

func (r *recordRepository) Find(ctx context.Context, q RecordQuery) ([]shared.RecordRow, int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := BuildRecordFilter(q)

	total, err := r.col.CountDocuments(queryCtx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count records: %w", classify(err))
	}

	opts := shared.BuildFindOptions(q.Page.Skip(), int64(q.Page.Limit), RecordSortField(q), sortDirection(q.SortOrder))
	cursor, err := r.col.Find(queryCtx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find records: %w", classify(err))
	}
	defer cursor.Close(queryCtx)

	records := []shared.RecordRow{}
	if err := cursor.All(queryCtx, &records); err != nil {
		return nil, 0, fmt.Errorf("decode records: %w", classify(err))
	}
	return records, total, nil
}

func (r *recordRepository) Each(ctx context.Context, q RecordQuery, fn func(*shared.RecordRow) error) error {
	opts := options.Find().SetSort(bson.D{
		{Key: RecordSortField(q), Value: sortDirection(q.SortOrder)},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.col.Find(ctx, BuildRecordFilter(q), opts)
	if err != nil {
		return fmt.Errorf("find records: %w", classify(err))
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var record shared.RecordRow
		if err := cursor.Decode(&record); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := fn(&record); err != nil {
			return err
		}
	}
	return classify(cursor.Err())
}

func (r *recordRepository) UpdateRawData(ctx context.Context, id string, data shared.Fields, updatedAt time.Time) error {
	updateCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		fieldRawData: data,
		"updated_at": updatedAt,
	}}
	result, err := r.col.UpdateOne(updateCtx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, classify(err))
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepository) Delete(ctx context.Context, id string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	result, err := r.col.DeleteOne(deleteCtx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, classify(err))
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepository) DeleteByUpload(ctx context.Context, uploadID string) (int64, error) {
	deleteCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.col.DeleteMany(deleteCtx, bson.M{"upload_id": uploadID})
	if err != nil {
		return 0, fmt.Errorf("delete records of %s: %w", uploadID, classify(err))
	}
	return result.DeletedCount, nil
}

func (r *recordRepository) Count(ctx context.Context) (int64, error) {
	count, err := shared.CountDocumentsWithTimeout(ctx, r.col, bson.M{}, queryTimeout)
	return count, classify(err)
}

func sortDirection(order int) int {
	if order < 0 {
		return -1
	}
	return 1
}
