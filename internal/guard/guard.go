package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Mode is the process-wide trade-guard kill switch.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeCloseOnly Mode = "close_only"
	ModeLocked    Mode = "locked"
)

// Action classifies what an order attempt does.
type Action string

const (
	ActionOpen   Action = "open"
	ActionReduce Action = "reduce"
	ActionClose  Action = "close"
	ActionAdmin  Action = "admin"
)

// EnvMode is the environment override applied at process start; it takes
// precedence over the persisted mode.
const EnvMode = "AP_GUARD_MODE"

// BlockedError is a guard rejection. It is user-actionable and distinct from
// risk-based rejections.
type BlockedError struct {
	Mode   Mode
	Action Action
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("guard: mode %s forbids %s", e.Mode, e.Action)
}

func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeLive:
		return ModeLive, true
	case ModeCloseOnly:
		return ModeCloseOnly, true
	case ModeLocked:
		return ModeLocked, true
	}
	return "", false
}

type guardDoc struct {
	Mode      Mode      `json:"mode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the guard mode as a JSON document in the state directory.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(stateDir string) (*Store, error) {
	s := &Store{path: filepath.Join(stateDir, "trade_guard.json")}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	if raw, ok := os.LookupEnv(EnvMode); ok {
		mode, valid := ParseMode(raw)
		if !valid {
			return nil, fmt.Errorf("guard: invalid %s value %q", EnvMode, raw)
		}
		if err := s.Set(mode); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return ModeLive
	}
	var doc guardDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ModeLive
	}
	if _, ok := ParseMode(string(doc.Mode)); !ok {
		return ModeLive
	}
	return doc.Mode
}

func (s *Store) Set(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.MarshalIndent(guardDoc{Mode: mode, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// Allows returns nil when the current mode permits the action, else a
// BlockedError.
func (s *Store) Allows(action Action) error {
	mode := s.Mode()
	switch mode {
	case ModeLive:
		return nil
	case ModeCloseOnly:
		if action == ActionOpen {
			return &BlockedError{Mode: mode, Action: action}
		}
		return nil
	case ModeLocked:
		if action == ActionAdmin {
			return nil
		}
		return &BlockedError{Mode: mode, Action: action}
	}
	return nil
}
