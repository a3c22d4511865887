package guard

import (
	"errors"
	"testing"
)

func TestDefaultModeIsLive(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if got := s.Mode(); got != ModeLive {
		t.Fatalf("mode = %q, want live", got)
	}
}

func TestModePersistsAcrossStores(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Set(ModeLocked); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Mode(); got != ModeLocked {
		t.Fatalf("mode after reopen = %q, want locked", got)
	}
}

func TestEnvOverrideWinsAtStartup(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Set(ModeLive); err != nil {
		t.Fatalf("Set: %v", err)
	}

	t.Setenv(EnvMode, "close_only")
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen with env: %v", err)
	}
	if got := reopened.Mode(); got != ModeCloseOnly {
		t.Fatalf("mode = %q, want close_only from env", got)
	}
}

func TestInvalidEnvOverrideFails(t *testing.T) {
	t.Setenv(EnvMode, "yolo")
	if _, err := NewStore(t.TempDir()); err == nil {
		t.Fatalf("expected error for invalid env mode")
	}
}

func TestAllowsMatrix(t *testing.T) {
	tests := []struct {
		mode    Mode
		action  Action
		blocked bool
	}{
		{ModeLive, ActionOpen, false},
		{ModeLive, ActionClose, false},
		{ModeLive, ActionAdmin, false},
		{ModeCloseOnly, ActionOpen, true},
		{ModeCloseOnly, ActionReduce, false},
		{ModeCloseOnly, ActionClose, false},
		{ModeLocked, ActionOpen, true},
		{ModeLocked, ActionClose, true},
		{ModeLocked, ActionAdmin, false},
	}
	for _, tt := range tests {
		s, err := NewStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		if err := s.Set(tt.mode); err != nil {
			t.Fatalf("Set: %v", err)
		}
		err = s.Allows(tt.action)
		if tt.blocked {
			var blocked *BlockedError
			if !errors.As(err, &blocked) {
				t.Fatalf("%s/%s: err = %v, want BlockedError", tt.mode, tt.action, err)
			}
			if blocked.Mode != tt.mode || blocked.Action != tt.action {
				t.Fatalf("blocked error %+v, want mode %s action %s", blocked, tt.mode, tt.action)
			}
		} else if err != nil {
			t.Fatalf("%s/%s: unexpected block: %v", tt.mode, tt.action, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode(" Close_Only "); !ok || m != ModeCloseOnly {
		t.Fatalf("ParseMode close_only = %q/%v", m, ok)
	}
	if _, ok := ParseMode("nope"); ok {
		t.Fatalf("parsed an invalid mode")
	}
}
