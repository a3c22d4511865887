package notifier

import (
	"context"
	"time"
)

// Event kinds pushed to the notification sink.
const (
	KindSignalDecided = "signal_decided"
	KindRiskAction    = "risk_action"
	KindPromotion     = "promotion"
)

// Event is a structured notification. Delivery is strictly best-effort:
// a failed send never rolls back the state change that produced it.
type Event struct {
	Kind       string         `json:"kind"`
	Exchange   string         `json:"exchange,omitempty"`
	Instrument string         `json:"instrument,omitempty"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
	At         time.Time      `json:"at"`
}

type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop is the sink used when notifications are disabled.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
