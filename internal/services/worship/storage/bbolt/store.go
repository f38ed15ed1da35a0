// Package bbolt provides a BoltDB-backed activity log for deployments that
// keep the audit trail apart from the session database.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
	"github.com/louisbranch/hymnal.space/internal/services/worship/storage"
	"go.etcd.io/bbolt"
)

const activityBucket = "activity"

// Store provides a BoltDB-backed activity store. Each session gets a nested
// bucket keyed by a big-endian sequence number.
type Store struct {
	db *bbolt.DB
}

type activityRecord struct {
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id,omitempty"`
	ActionType string         `json:"action_type"`
	ActionData map[string]any `json:"action_data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendActivity stores entry under its session and returns the sequence.
func (s *Store) AppendActivity(ctx context.Context, entry domain.ActivityEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.SessionID) == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if !entry.ActionType.Valid() {
		return 0, fmt.Errorf("action type %q is invalid", entry.ActionType)
	}
	data := entry.ActionData
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(activityRecord{
		SessionID:  entry.SessionID,
		UserID:     entry.UserID,
		ActionType: string(entry.ActionType),
		ActionData: data,
		Timestamp:  entry.Timestamp.UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal activity: %w", err)
	}

	var seq uint64
	err = s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(activityBucket))
		if root == nil {
			return fmt.Errorf("activity bucket is missing")
		}
		bucket, err := root.CreateBucketIfNotExists([]byte(entry.SessionID))
		if err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		seq, err = bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		return bucket.Put(sequenceKey(seq), payload)
	})
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

// ListActivity returns up to limit most recent entries, oldest first.
func (s *Store) ListActivity(ctx context.Context, sessionID string, limit int) ([]domain.ActivityEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	entries := make([]domain.ActivityEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket([]byte(activityBucket))
		if root == nil {
			return fmt.Errorf("activity bucket is missing")
		}
		bucket := root.Bucket([]byte(strings.TrimSpace(sessionID)))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Last(); key != nil && len(entries) < limit; key, value = cursor.Prev() {
			var record activityRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("unmarshal activity: %w", err)
			}
			entries = append(entries, domain.ActivityEntry{
				ID:         int64(binary.BigEndian.Uint64(key)),
				SessionID:  record.SessionID,
				UserID:     record.UserID,
				ActionType: domain.ActionType(record.ActionType),
				ActionData: record.ActionData,
				Timestamp:  record.Timestamp,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(activityBucket)); err != nil {
			return fmt.Errorf("create activity bucket: %w", err)
		}
		return nil
	})
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

var _ storage.ActivityStore = (*Store)(nil)
