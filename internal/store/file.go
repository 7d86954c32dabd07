package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps one file per slot under <root>/<category>/<id>.
type FileStore struct {
	root string

	once sync.Once
	key  string
	err  error
}

// NewFileStore returns a store rooted at dir. Call Initialize before use.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Initialize creates the root and category directories and loads the
// process key, generating it on first start. Only the first call does work;
// later calls return the same key and error.
func (s *FileStore) Initialize(ctx context.Context) (string, error) {
	s.once.Do(func() {
		for _, c := range Categories {
			if err := os.MkdirAll(filepath.Join(s.root, c), 0o700); err != nil {
				s.err = fmt.Errorf("create cache dir %s: %w", c, err)
				return
			}
		}
		s.key, s.err = LoadOrCreateKey(ctx, s)
	})
	return s.key, s.err
}

func (s *FileStore) path(category, id string) (string, bool) {
	if !ValidID(category) || !ValidID(id) {
		return "", false
	}
	return filepath.Join(s.root, category, id), true
}

// Save writes blob to the slot, creating the category directory if needed.
func (s *FileStore) Save(_ context.Context, category, id, blob string) error {
	p, ok := s.path(category, id)
	if !ok {
		return fmt.Errorf("save %s/%s: %w", category, id, ErrInvalidID)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("save %s: %w", category, err)
	}
	if err := os.WriteFile(p, []byte(blob), 0o600); err != nil {
		return fmt.Errorf("save %s: %w", category, err)
	}
	return nil
}

// Load returns the slot content. Any read failure counts as absent.
func (s *FileStore) Load(_ context.Context, category, id string) (string, bool) {
	p, ok := s.path(category, id)
	if !ok {
		return "", false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Clear deletes the slot if present.
func (s *FileStore) Clear(_ context.Context, category, id string) error {
	p, ok := s.path(category, id)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear %s: %w", category, err)
	}
	return nil
}

// Sweep removes files of category whose modification time is before olderThan.
func (s *FileStore) Sweep(_ context.Context, category string, olderThan time.Time) (int64, error) {
	if !ValidID(category) {
		return 0, ErrInvalidID
	}
	entries, err := os.ReadDir(filepath.Join(s.root, category))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("sweep %s: %w", category, err)
	}

	var removed int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, category, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
