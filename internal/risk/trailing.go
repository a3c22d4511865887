package risk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TrailingState tracks the running price peak for one open position once the
// trailing stop has activated. It is discarded when the position closes or
// the stop fires.
type TrailingState struct {
	Exchange    string          `json:"exchange"`
	Instrument  string          `json:"instrument"`
	Peak        decimal.Decimal `json:"peak"`
	Trigger     decimal.Decimal `json:"trigger"`
	ActivatedAt time.Time       `json:"activated_at"`
}

// TrailingStore persists trailing states as one JSON document in the state
// directory, keyed by exchange|instrument.
type TrailingStore struct {
	mu   sync.Mutex
	path string
}

func NewTrailingStore(stateDir string) (*TrailingStore, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	return &TrailingStore{path: filepath.Join(stateDir, "trailing_stops.json")}, nil
}

func trailingKey(exchange, instrument string) string {
	return exchange + "|" + instrument
}

func (s *TrailingStore) Get(exchange, instrument string) (*TrailingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	st, ok := doc[trailingKey(exchange, instrument)]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *TrailingStore) Put(st TrailingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[trailingKey(st.Exchange, st.Instrument)] = st
	return s.save(doc)
}

func (s *TrailingStore) Delete(exchange, instrument string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	delete(doc, trailingKey(exchange, instrument))
	return s.save(doc)
}

func (s *TrailingStore) load() (map[string]TrailingState, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]TrailingState{}, nil
		}
		return nil, err
	}
	doc := map[string]TrailingState{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]TrailingState{}, nil
	}
	return doc, nil
}

func (s *TrailingStore) save(doc map[string]TrailingState) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}
