package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// Store is a string key-value store backed by a single JSON file. Every
// mutation re-reads the file, applies the change and writes it back
// atomically, so several daemons pointed at the same file converge on
// last-write-wins per key.
type Store struct {
	path string
	log  pslog.Logger

	readOnly bool

	mu     sync.RWMutex
	values map[string]string
}

// ErrReadOnly is returned by mutations on a store opened with OpenReadOnly.
var ErrReadOnly = errors.New("storage opened read-only")

// Open loads the store at path, creating its directory when missing. A
// missing file is an empty store.
func Open(path string) (*Store, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger loads the store at path with logging.
func OpenWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return load(path, logger, false)
}

// OpenReadOnly loads the store at path without creating anything on disk.
// A missing file or directory is an empty store; mutations fail with
// ErrReadOnly.
func OpenReadOnly(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	return load(path, logger, true)
}

func load(path string, logger pslog.Logger, readOnly bool) (*Store, error) {
	if logger != nil {
		logger = logger.With("storage", path)
	}
	s := &Store{path: path, log: logger, readOnly: readOnly, values: map[string]string{}}
	values, err := s.readFile()
	if err != nil {
		if s.log != nil {
			s.log.Warn("storage load failed", "err", err)
		}
		return nil, err
	}
	s.values = values
	if s.log != nil {
		s.log.Debug("storage load ok", "keys", len(values))
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Set stores value under key and persists the store.
func (s *Store) Set(key, value string) error {
	return s.mutate(func(values map[string]string) bool {
		if current, ok := values[key]; ok && current == value {
			return false
		}
		values[key] = value
		return true
	})
}

// Remove deletes key and persists the store. Removing a missing key is not
// an error.
func (s *Store) Remove(key string) error {
	return s.mutate(func(values map[string]string) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

// RemoveIf deletes key when match accepts the value currently on disk. The
// file is re-read under the store lock, so a value written by another
// process since the last reload is what match sees.
func (s *Store) RemoveIf(key string, match func(current string) bool) (bool, error) {
	removed := false
	err := s.mutate(func(values map[string]string) bool {
		current, ok := values[key]
		if !ok || !match(current) {
			return false
		}
		delete(values, key)
		removed = true
		return true
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Keys returns the sorted keys starting with prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Reload replaces the in-memory view with the file contents. A malformed
// file keeps the current view.
func (s *Store) Reload() error {
	values, err := s.readFile()
	if err != nil {
		if s.log != nil {
			s.log.Warn("storage reload failed", "err", err)
		}
		return err
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	if s.log != nil {
		s.log.Trace("storage reload ok", "keys", len(values))
	}
	return nil
}

// Watch reloads the store whenever the backing file changes on disk. It
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	// Saves replace the file by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debug("storage watch started")
	}
	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			if s.log != nil {
				s.log.Debug("storage watch stopped")
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			_ = s.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if s.log != nil {
				s.log.Warn("storage watch error", "err", err)
			}
		}
	}
}

func (s *Store) mutate(apply func(map[string]string) bool) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readFile()
	if err != nil {
		// Malformed file on disk: continue from the last good view.
		if s.log != nil {
			s.log.Warn("storage reread failed", "err", err)
		}
		values = cloneValues(s.values)
	}
	if !apply(values) {
		s.values = values
		return nil
	}
	if err := s.writeFile(values); err != nil {
		if s.log != nil {
			s.log.Warn("storage save failed", "err", err)
		}
		return err
	}
	s.values = values
	if s.log != nil {
		s.log.Trace("storage save ok", "keys", len(values))
	}
	return nil
}

func (s *Store) readFile() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	values := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Store) writeFile(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "storage-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func cloneValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
