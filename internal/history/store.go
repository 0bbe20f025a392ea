// Package history persists a small audit trail of pipeline runs in a bbolt file.
// Only run metadata and counts are stored. Appointment text, key material and
// plaintext never reach this package.
package history

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/operations"
)

var runsBucket = []byte("runs")

// DefaultLimit is how many runs are retained when no limit is configured
const DefaultLimit = 500

// RunRecord is the persisted summary of one run
type RunRecord struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	FailedStage string    `json:"failed_stage,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Format      string    `json:"format,omitempty"`
	Total       int       `json:"total"`
	Upcoming    int       `json:"upcoming"`
	Historical  int       `json:"historical"`
	Kept        int       `json:"kept"`
	Dropped     int       `json:"dropped"`
}

// FromResult extracts the storable fields of a run
func FromResult(result operations.Result) RunRecord {
	rec := RunRecord{
		RunID:       result.RunID,
		Status:      string(result.Status),
		ErrorKind:   string(result.ErrorKind),
		FailedStage: string(result.FailedStage),
		StartedAt:   result.StartedAt.UTC(),
		DurationMS:  result.Duration.Milliseconds(),
		Total:       result.Summary.Total,
		Upcoming:    result.Summary.Upcoming,
		Historical:  result.Summary.Historical,
		Kept:        result.Stats.Kept,
		Dropped:     result.Stats.Dropped(),
	}
	if !result.Failed() {
		rec.Format = result.Stats.Format.String()
	}
	return rec
}

// Store is a bbolt-backed run history
type Store struct {
	db     *bbolt.DB
	limit  int
	logger *slog.Logger
}

// Open opens or creates the history file at path. limit bounds how many runs are kept.
func Open(path string, limit int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, apperrors.NewStorageError("failed to create history directory", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open history database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to initialize history database", err)
	}

	return &Store{
		db:     db,
		limit:  limit,
		logger: logger.With(slog.String("component", "history")),
	}, nil
}

// Record stores rec and trims the history to the configured limit
func (s *Store) Record(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return apperrors.NewAppValidationError("run record has no id")
	}
	data, err := encode(rec)
	if err != nil {
		return apperrors.NewStorageError("failed to encode run record", err)
	}

	var pruned int
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		if err := bucket.Put(recordKey(rec), data); err != nil {
			return err
		}
		var pruneErr error
		pruned, pruneErr = prune(bucket, s.limit)
		return pruneErr
	})
	if err != nil {
		return apperrors.NewStorageError("failed to record run", err)
	}

	s.logger.DebugContext(ctx, "run recorded",
		slog.String("run_id", rec.RunID),
		slog.String("status", rec.Status),
		slog.Int("pruned", pruned))
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 returns everything retained.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	records := make([]RunRecord, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(runsBucket).Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec RunRecord
			if err := decode(v, &rec); err != nil {
				s.logger.WarnContext(ctx, "skipping unreadable run record", slog.String("error", err.Error()))
				continue
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list runs", err)
	}
	return records, nil
}

// Get returns the run with the given id
func (s *Store) Get(ctx context.Context, runID string) (RunRecord, error) {
	if runID == "" {
		return RunRecord{}, apperrors.NewAppValidationError("run id is required")
	}
	var (
		found RunRecord
		ok    bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(runsBucket).Cursor()
		suffix := []byte(runID)
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if !bytes.HasSuffix(k, suffix) {
				continue
			}
			if err := decode(v, &found); err != nil {
				return err
			}
			ok = true
			return nil
		}
		return nil
	})
	if err != nil {
		return RunRecord{}, apperrors.NewStorageError("failed to read run", err)
	}
	if !ok {
		return RunRecord{}, apperrors.NewNotFoundError("run " + runID)
	}
	return found, nil
}

// Prune deletes all but the newest keep runs and returns how many were removed
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		removed, err = prune(tx.Bucket(runsBucket), keep)
		return err
	})
	if err != nil {
		return 0, apperrors.NewStorageError("failed to prune runs", err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "run history pruned", slog.Int("removed", removed), slog.Int("kept", keep))
	}
	return removed, nil
}

// Close releases the database file
func (s *Store) Close() error {
	return s.db.Close()
}

// prune deletes the oldest entries beyond keep
func prune(bucket *bbolt.Bucket, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	cursor := bucket.Cursor()
	total := 0
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		total++
	}
	excess := total - keep
	if excess <= 0 {
		return 0, nil
	}

	keys := make([][]byte, 0, excess)
	for k, _ := cursor.First(); k != nil && len(keys) < excess; k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// recordKey orders runs by start time: 8 byte big-endian nanoseconds, then the run id
func recordKey(rec RunRecord) []byte {
	key := make([]byte, 8, 8+len(rec.RunID))
	binary.BigEndian.PutUint64(key, uint64(rec.StartedAt.UnixNano()))
	return append(key, rec.RunID...)
}

func encode(rec RunRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, rec *RunRecord) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(rec)
}
