package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Store owns the single JSON document holding all state. Every mutation is
// serialized through one mutex (single-writer model), so two concurrent
// operations can never lose each other's update.
type Store struct {
	mu   sync.Mutex
	path string
	doc  *Document
}

// Open loads the document from path, seeding defaults when the file does
// not exist yet.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	s := &Store{path: path, doc: defaultDocument()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s.doc); err != nil {
		return nil, err
	}
	// Older files may miss maps entirely.
	if s.doc.Users == nil {
		s.doc.Users = map[string]User{}
	}
	if s.doc.APIs == nil {
		s.doc.APIs = map[string]Key{}
	}
	if s.doc.Resellers == nil {
		s.doc.Resellers = map[string]Reseller{}
	}
	return s, nil
}

// View runs fn with read access to the document. fn must not retain the
// pointer or mutate through it.
func (s *Store) View(fn func(*Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Update runs fn with write access and persists the whole document
// afterwards. An error from fn aborts the save; a save error is returned
// to the caller so a lost mutation is never silent.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.doc); err != nil {
		return err
	}
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
