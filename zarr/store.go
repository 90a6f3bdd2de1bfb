package zarr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by a Store when a key has no value.
var ErrNotFound = errors.New("zarr: key not found")

// Store is a flat key/value namespace holding metadata documents and
// encoded chunks. Keys use "/" as separator regardless of platform.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// LocalStore keeps every key as a file below a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore returns a Store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", abs, err)
	}

	return &LocalStore{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *LocalStore) Root() string {
	return s.root
}

// Get reads the file for key.
func (s *LocalStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return data, nil
}

// Set writes value to the file for key, creating parent directories.
func (s *LocalStore) Set(key string, value []byte) error {
	p := s.path(key)

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}

	if err := os.WriteFile(p, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// MemoryStore is an in-process Store, mostly useful in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return append([]byte(nil), v...), nil
}

// Set stores a copy of value under key.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)

	return nil
}

// Keys returns the number of keys held.
func (s *MemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}
