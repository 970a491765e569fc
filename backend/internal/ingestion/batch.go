package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// tally accumulates the outcome of a whole run
type tally struct {
	processed int
	failed    int
	skipped   int
	batches   int
}

// pendingRow is a mapped row awaiting persistence
type pendingRow struct {
	record *shared.RecordRow
	raw    []interface{}
}

// batchWriter persists data rows in fixed-size batches. Batches run one after
// another; rows inside a batch are written concurrently and all of them settle
// before the upload counters are updated.
type batchWriter struct {
	uploads   repository.UploadRepository
	records   repository.RecordRepository
	batchSize int
	log       *logrus.Entry
}

// run writes rows (data rows only, header excluded). A non-nil error means
// the upload counters could not be persisted and the run must be failed.
func (w *batchWriter) run(ctx context.Context, columns []Column, rows [][]interface{}, stamp Stamp) (tally, error) {
	var t tally

	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		pending := make([]pendingRow, 0, end-start)
		for i := start; i < end; i++ {
			// first data row sits on sheet row 2
			record, ok := MapRow(columns, rows[i], i+2, stamp)
			if !ok {
				t.skipped++
				continue
			}
			pending = append(pending, pendingRow{record: record, raw: rows[i]})
		}

		progress := w.writeBatch(ctx, pending)
		t.processed += progress.Processed
		t.failed += progress.Failed
		t.batches++

		if err := w.uploads.ApplyBatch(ctx, stamp.UploadID, progress); err != nil {
			return t, fmt.Errorf("failed to update upload progress after batch %d: %w", t.batches, err)
		}

		w.log.WithFields(logrus.Fields{
			"batch":     t.batches,
			"processed": t.processed,
			"failed":    t.failed,
		}).Debug("Batch written")
	}

	return t, nil
}

// writeBatch persists every pending row and reports the batch delta
func (w *batchWriter) writeBatch(ctx context.Context, pending []pendingRow) (progress repository.BatchProgress) {
	if len(pending) == 0 {
		return progress
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.WithField("panic", r).Error("Batch write aborted")
			progress = batchFailure(pending, fmt.Sprintf("batch write failed: %v", r))
		}
	}()

	var (
		mu          sync.Mutex
		unavailable int
		g           errgroup.Group
	)

	for _, row := range pending {
		row := row
		g.Go(func() error {
			err := w.writeRow(ctx, row.record)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				progress.Processed++
				return nil
			}
			if errors.Is(err, repository.ErrUnavailable) {
				unavailable++
			}
			progress.Failed++
			progress.Errors = append(progress.Errors, shared.RowError{
				RowNumber: row.record.RowNumber,
				Message:   err.Error(),
				RawData:   row.raw,
			})
			return nil
		})
	}
	_ = g.Wait()

	if unavailable == len(pending) && len(pending) > 1 {
		return batchFailure(pending, fmt.Sprintf("batch write failed: %v", repository.ErrUnavailable))
	}

	sort.Slice(progress.Errors, func(i, j int) bool {
		return progress.Errors[i].RowNumber < progress.Errors[j].RowNumber
	})
	return progress
}

// writeRow inserts one record, converting a panic into a row error
func (w *batchWriter) writeRow(ctx context.Context, record *shared.RecordRow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row write panicked: %v", r)
		}
	}()
	return w.records.Insert(ctx, record)
}

// batchFailure counts every pending row as failed under one error entry
// keyed to the first row of the batch.
func batchFailure(pending []pendingRow, message string) repository.BatchProgress {
	return repository.BatchProgress{
		Failed: len(pending),
		Errors: []shared.RowError{{
			RowNumber: pending[0].record.RowNumber,
			Message:   fmt.Sprintf("%s (%d rows)", message, len(pending)),
		}},
	}
}
