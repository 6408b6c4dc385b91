package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileKeyValueStore implements KeyValueStore on a single local JSON
// file. Suited to single-box deployments where running Redis is not
// worth it. A corrupt or missing file degrades to an empty store.
type FileKeyValueStore struct {
	mu     sync.Mutex
	path   string
	data   map[string]string
	logger *zap.Logger

	// MaxBytes caps the serialized file size; a write pushing past it
	// fails like a storage-quota exhaustion would. 0 means unlimited.
	MaxBytes int
}

// NewFileKeyValueStore loads (or initializes) the backing file.
func NewFileKeyValueStore(path string, maxBytes int, logger *zap.Logger) (*FileKeyValueStore, error) {
	s := &FileKeyValueStore{
		path:     path,
		data:     make(map[string]string),
		logger:   logger,
		MaxBytes: maxBytes,
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logger.Warn("store file corrupt, starting empty",
			zap.String("path", path),
			zap.Error(err))
		s.data = make(map[string]string)
	}
	return s, nil
}

// Get retrieves a stored value.
func (s *FileKeyValueStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// Set stores a value and rewrites the backing file.
func (s *FileKeyValueStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[key]
	s.data[key] = value
	if err := s.flushLocked(); err != nil {
		// Roll back so the in-memory view matches disk.
		if existed {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes a key.
func (s *FileKeyValueStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.flushLocked()
}

// Ping verifies the backing directory is writable.
func (s *FileKeyValueStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Close is a no-op; every write is already flushed.
func (s *FileKeyValueStore) Close() error {
	return nil
}

func (s *FileKeyValueStore) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if s.MaxBytes > 0 && len(raw) > s.MaxBytes {
		return fmt.Errorf("store size %d exceeds quota %d bytes", len(raw), s.MaxBytes)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
