// Package filestore keeps a preference store in a JSON file on local disk,
// written atomically on every change.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/hogliux/collect/internal/domain"
)

type record struct {
	Type  domain.Kind `json:"type"`
	Value string      `json:"value"`
}

// Store is a PreferenceStore backed by one JSON file. An empty path keeps
// the values in memory only.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]domain.Value
}

// Open loads path if it exists.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]domain.Value)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences %s: %w", path, err)
	}

	var records map[string]record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	for k, r := range records {
		v, err := domain.ParseValue(r.Type, r.Value)
		if err != nil {
			return nil, fmt.Errorf("preferences %s key %q: %w", path, k, err)
		}
		s.values[k] = v
	}
	return s, nil
}

// NewMemory returns a store that never touches disk.
func NewMemory() *Store {
	s, _ := Open("")
	return s
}

func (s *Store) Get(_ context.Context, key string) (domain.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) All(context.Context) (map[string]domain.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), nil
}

func (s *Store) Set(_ context.Context, key string, v domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	next[key] = v
	return s.commit(next)
}

func (s *Store) Replace(_ context.Context, values map[string]domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(maps.Clone(values))
}

func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(make(map[string]domain.Value))
}

// commit persists next and swaps it in only if the write succeeded.
func (s *Store) commit(next map[string]domain.Value) error {
	if next == nil {
		next = make(map[string]domain.Value)
	}
	if s.path != "" {
		if err := s.write(next); err != nil {
			return err
		}
	}
	s.values = next
	return nil
}

func (s *Store) write(values map[string]domain.Value) error {
	records := make(map[string]record, len(values))
	for k, v := range values {
		records[k] = record{Type: v.Kind, Value: v.Text()}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("create preferences file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("install preferences: %w", err)
	}
	return nil
}
