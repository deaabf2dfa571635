package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pders01/usages/internal/usage"
)

var (
	searchesBucket = []byte("searches")
	usagesBucket   = []byte("usages")
	metaBucket     = []byte("metadata")
)

var ErrNotFound = errors.New("search not found")

const DefaultTimeout = time.Second

// MaxSavedUsages caps how many usages of one search are persisted.
const MaxSavedUsages = 10000

type Store struct {
	db *bolt.DB
}

var _ usage.Recorder = (*Store)(nil)

// NewStore opens the history database. A zero timeout uses DefaultTimeout.
func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{searchesBucket, usagesBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSearch(entry *SearchEntry) error {
	if entry.ID == "" {
		return errors.New("search entry without id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(searchesBucket).Put([]byte(entry.ID), data)
	})
}

func (s *Store) GetSearch(id string) (*SearchEntry, error) {
	var entry SearchEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(searchesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListSearches returns the history newest first. A limit of zero or less
// returns everything.
func (s *Store) ListSearches(limit int) ([]*SearchEntry, error) {
	var entries []*SearchEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(searchesBucket).ForEach(func(_ []byte, v []byte) error {
			var entry SearchEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, err
}

func (s *Store) SaveUsages(id string, usages []*usage.Usage) error {
	if len(usages) > MaxSavedUsages {
		usages = usages[:MaxSavedUsages]
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(usages)
		if err != nil {
			return err
		}
		return tx.Bucket(usagesBucket).Put([]byte(id), data)
	})
}

func (s *Store) GetUsages(id string) ([]*usage.Usage, error) {
	var usages []*usage.Usage
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(usagesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &usages)
	})
	return usages, err
}

func (s *Store) DeleteSearch(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(searchesBucket).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(usagesBucket).Delete([]byte(id))
	})
}

// Prune keeps the newest keep searches and deletes the rest.
func (s *Store) Prune(keep int) (int, error) {
	entries, err := s.ListSearches(0)
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(entries) <= keep {
		return 0, nil
	}
	removed := 0
	for _, e := range entries[keep:] {
		if err := s.DeleteSearch(e.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RecordSearch stores a finished search and the usages it found.
func (s *Store) RecordSearch(res usage.Result, usages []*usage.Usage) error {
	entry := EntryFromResult(res)
	entry.Saved = min(len(usages), MaxSavedUsages)
	if err := s.SaveSearch(entry); err != nil {
		return fmt.Errorf("saving search %s: %w", entry.ID, err)
	}
	if len(usages) == 0 {
		return nil
	}
	if err := s.SaveUsages(entry.ID, usages); err != nil {
		return fmt.Errorf("saving usages of %s: %w", entry.ID, err)
	}
	return nil
}

func (s *Store) SetMeta(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte(key), []byte(value))
	})
}

// GetMeta returns the stored value, or "" when unset.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		value = string(tx.Bucket(metaBucket).Get([]byte(key)))
		return nil
	})
	return value, err
}
