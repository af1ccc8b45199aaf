package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/podkeep/podkeep/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketShows   = []byte("shows")
	bucketEntries = []byte("entries")
)

// CacheStore implements domain.Store using BoltDB.
type CacheStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects the memory-only map

	// Backing map when running without a data directory
	mem map[string][]byte
}

// New opens the store under dir. An empty dir selects memory-only mode
// (no persistence), which is what tests use.
func New(dir string) (*CacheStore, error) {
	if dir == "" {
		return &CacheStore{mem: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "podkeep.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketShows, bucketEntries} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &CacheStore{db: db}, nil
}

func (s *CacheStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *CacheStore) get(bucket []byte, key string) ([]byte, bool) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		data, ok := s.mem[string(bucket)+":"+key]
		return data, ok
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, data != nil
}

func (s *CacheStore) set(bucket []byte, key string, data []byte) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mem[string(bucket)+":"+key] = data
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}

func (s *CacheStore) delete(bucket []byte, key string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.mem, string(bucket)+":"+key)
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			return b.Delete([]byte(key))
		}
		return nil
	})
}

// === Subscriptions ===

func (s *CacheStore) GetShows() ([]domain.Show, bool) {
	data, ok := s.get(bucketShows, "list")
	if !ok {
		return nil, false
	}
	var shows []domain.Show
	if err := json.Unmarshal(data, &shows); err != nil {
		return nil, false
	}
	return shows, true
}

func (s *CacheStore) SaveShows(shows []domain.Show) error {
	data, err := json.Marshal(shows)
	if err != nil {
		return err
	}
	return s.set(bucketShows, "list", data)
}

// === Cache Entries ===

func (s *CacheStore) GetEntry(key string) ([]byte, bool) {
	return s.get(bucketEntries, key)
}

func (s *CacheStore) SaveEntry(key string, data []byte) error {
	return s.set(bucketEntries, key, data)
}

func (s *CacheStore) DeleteEntry(key string) error {
	return s.delete(bucketEntries, key)
}

func (s *CacheStore) HasEntry(key string) bool {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, ok := s.mem[string(bucketEntries)+":"+key]
		return ok
	}

	found := false
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b != nil && b.Get([]byte(key)) != nil {
			found = true
		}
		return nil
	})
	return found
}

func (s *CacheStore) ClearEntries() error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		prefix := string(bucketEntries) + ":"
		for k := range s.mem {
			if strings.HasPrefix(k, prefix) {
				delete(s.mem, k)
			}
		}
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
