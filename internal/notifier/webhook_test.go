package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhookRetriesUntilDelivered(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	wh.Backoff = time.Millisecond

	err := wh.Notify(context.Background(), Event{Kind: KindRiskAction, Message: "stop_loss"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", hits.Load())
	}
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	wh.Backoff = time.Millisecond

	if err := wh.Notify(context.Background(), Event{Kind: KindPromotion, Message: "promoted"}); err == nil {
		t.Fatalf("Notify succeeded against a failing endpoint")
	}
	if hits.Load() != 3 {
		t.Fatalf("attempts = %d, want 3 (initial try plus two retries)", hits.Load())
	}
}

func TestWebhookDisabledIsNoop(t *testing.T) {
	var wh *Webhook
	if err := wh.Notify(context.Background(), Event{Kind: KindSignalDecided}); err != nil {
		t.Fatalf("nil webhook: %v", err)
	}
}
