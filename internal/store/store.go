// Package store contains the core logic for the in-memory movie table.
// It is designed to be thread-safe for concurrent access.
package store

import (
	"sync"

	"github.com/ASHISH26940/moviedb/internal/movie"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by Get when no movie is stored under the key.
	ErrNotFound = errors.New("movie not found")
	// ErrConflict is returned by Insert when the key is already taken.
	ErrConflict = errors.New("movie already stored")
)

// Store is a thread-safe in-memory movie table.
// A single mutex guards both reads and writes; no work beyond the map
// lookup or insert happens while it is held.
type Store struct {
	mu   sync.Mutex
	data map[uint64]movie.Movie
}

// New initializes and returns a new empty Store.
func New() *Store {
	return &Store{
		data: make(map[uint64]movie.Movie),
	}
}

// Get retrieves the movie stored under key.
func (s *Store) Get(key uint64) (movie.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.data[key]
	if !ok {
		return movie.Movie{}, ErrNotFound
	}
	return m, nil
}

// Insert stores m under key. An existing entry is never overwritten:
// the call returns ErrConflict and leaves the table untouched.
func (s *Store) Insert(key uint64, m movie.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return ErrConflict
	}
	s.data[key] = m
	return nil
}

// Len reports the number of stored movies.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Range calls fn for every stored movie until fn returns false.
// fn runs on a copy of the table, so it may call back into the store.
func (s *Store) Range(fn func(key uint64, m movie.Movie) bool) {
	s.mu.Lock()
	snapshot := make(map[uint64]movie.Movie, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
