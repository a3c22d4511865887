package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Expected, non-fatal outcomes of ledger operations.
var (
	ErrNoOpenPosition      = errors.New("ledger: no open position")
	ErrInsufficientCapital = errors.New("ledger: insufficient capital")
)

// PersistenceError means the atomic replace could not complete. The prior
// snapshot on disk is intact; the attempted mutation did not land.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store owns exclusive read/replace access to the ledger file. Every mutation
// is read-modify-write: the whole document is loaded, changed in memory and
// replaced through a temp-file rename, so a reader never observes a torn
// snapshot and a crash mid-write leaves the previous one in place.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string, initialCash decimal.Decimal) (*Store, error) {
	s := &Store{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &PersistenceError{Op: "init", Err: err}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		l := Ledger{Cash: initialCash, UpdatedAt: time.Now().UTC()}
		if err := s.replace(&l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Snapshot returns the current ledger document.
func (s *Store) Snapshot() (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update applies fn to a freshly loaded ledger and atomically replaces the
// file. If fn returns an error nothing is written. The returned ledger is the
// persisted state.
func (s *Store) Update(fn func(l *Ledger) error) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.load()
	if err != nil {
		return Ledger{}, err
	}
	if err := fn(&l); err != nil {
		return Ledger{}, err
	}
	l.UpdatedAt = time.Now().UTC()
	if err := s.replace(&l); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

func (s *Store) load() (Ledger, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Ledger{Cash: decimal.Zero}, nil
		}
		return Ledger{}, &PersistenceError{Op: "read", Err: err}
	}
	var l Ledger
	if err := json.Unmarshal(raw, &l); err != nil {
		return Ledger{}, &PersistenceError{Op: "decode", Err: err}
	}
	return l, nil
}

func (s *Store) replace(l *Ledger) error {
	raw, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return &PersistenceError{Op: "tempfile", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "rename", Err: err}
	}
	return nil
}
