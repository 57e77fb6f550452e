// Package snapshot keeps the authoring client's local draft copy in a bbolt
// file so unsynced edits survive crashes, reloads and server outages.
package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// Bucket is the storage namespace of draft snapshots.
	Bucket = "proposal_draft"
	key    = "current"
)

// Snapshot is the locally persisted form state.
type Snapshot struct {
	FormData        json.RawMessage `json:"formData"`
	CurrentStep     int             `json:"currentStep"`
	DraftProposalID string          `json:"draftProposalId,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Store wraps BoltDB to persist the latest draft snapshot.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(Bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(Bucket),
	}, nil
}

// Save replaces the stored snapshot.
func (s *Store) Save(snap Snapshot) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if snap.Timestamp.IsZero() {
		return errors.New("snapshot: missing timestamp")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), payload)
	})
}

// Latest returns the stored snapshot when it is younger than maxAge at now.
// Older or unreadable snapshots are deleted and reported as absent.
func (s *Store) Latest(now time.Time, maxAge time.Duration) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}

	var (
		snap  Snapshot
		found bool
		stale bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &snap); err != nil {
			stale = true
			return nil
		}
		if maxAge > 0 && now.Sub(snap.Timestamp) > maxAge {
			stale = true
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, s.Clear()
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}

// Clear removes the stored snapshot.
func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
