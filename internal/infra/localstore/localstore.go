// Package localstore is the device-local key-value store backing local mode.
// It is a single bbolt file; every call is its own transaction.
package localstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vibe-dev/academy/internal/domain"
)

var bucket = []byte("gamification")

// ErrLocked means another process (usually `vibe serve`) holds the file.
// bbolt allows a single writer process per file.
var ErrLocked = errors.New("local store is in use by another vibe process; stop `vibe serve` or use its HTTP API")

// lockTimeout bounds the wait for the file lock.
var lockTimeout = time.Second

// Store implements domain.LocalStore on bbolt.
type Store struct {
	db *bolt.DB
}

var _ domain.LocalStore = (*Store)(nil)

// Open creates or opens dir/local.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create local dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, "local.db"), 0600, &bolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %w", domain.ErrLocalStore, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", domain.ErrLocalStore, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init bucket: %v", domain.ErrLocalStore, err)
	}
	return &Store{db: db}, nil
}

// Get returns a copy of the value, or nil for a missing key.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrLocalStore, key, err)
	}
	return out, nil
}

// Set stores value under key.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrLocalStore, key, err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrLocalStore, key, err)
	}
	return nil
}

// Keys lists every stored key with the given prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Ping verifies the file is readable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucket) == nil {
			return fmt.Errorf("%w: bucket missing", domain.ErrLocalStore)
		}
		return nil
	})
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Memory is an in-process LocalStore for tests and ephemeral sessions.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (s *Memory) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Memory) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *Memory) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Keys lists stored keys with the given prefix, sorted.
func (s *Memory) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
