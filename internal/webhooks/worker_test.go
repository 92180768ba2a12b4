package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"homeroute/internal/model"
	"homeroute/internal/store"
)

func TestWorkerDeliversAndSigns(t *testing.T) {
	var gotSig, gotEvent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig.Store(r.Header.Get("X-Signature") == SignHMAC("s3cret", body))
		gotEvent.Store(r.Header.Get("X-Event-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: srv.URL, Events: []string{EventRouteOptimized}, Secret: "s3cret"}); err != nil {
		t.Fatal(err)
	}

	NewPublisher(m).Emit(ctx, "t1", EventRouteOptimized, map[string]string{"routeId": "r1"})
	NewWorker(m).Tick(ctx)

	if v, _ := gotSig.Load().(bool); !v {
		t.Fatal("signature header missing or wrong")
	}
	if v, _ := gotEvent.Load().(string); v != EventRouteOptimized {
		t.Fatalf("event header = %q", v)
	}
	rows, _, err := m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("delivered = %d, want 1", len(rows))
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.EnqueueWebhook(ctx, "t1", "sub1", EventQuoteCompleted, srv.URL, "", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(m)
	w.maxAttempts = 2
	w.Tick(ctx) // attempt 1: rescheduled with backoff, so not due yet
	w.Tick(ctx)
	if hits.Load() != 1 {
		t.Fatalf("hits after backoff = %d, want 1", hits.Load())
	}

	// Force the retry due and exhaust attempts.
	if err := m.RetryWebhookDelivery(ctx, "t1", mustDeliveryID(t, m)); err != nil {
		t.Fatal(err)
	}
	w.Tick(ctx)

	rows, _, err := m.ListWebhookDeliveries(ctx, "t1", "failed", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("failed = %d, want 1", len(rows))
	}
}

func TestWorkerSkipsUnmatchedSubscriptions(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://example.com", Events: []string{EventQuoteCompleted}}); err != nil {
		t.Fatal(err)
	}

	NewPublisher(m).Emit(ctx, "t1", EventRouteOptimized, nil)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatalf("enqueued %d deliveries for a non-matching subscription", len(due))
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if nextBackoff(1) != 2*time.Second {
		t.Fatalf("first backoff = %v", nextBackoff(1))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("third backoff = %v", nextBackoff(3))
	}
	if nextBackoff(30) != time.Hour {
		t.Fatalf("backoff should cap at an hour, got %v", nextBackoff(30))
	}
}

func mustDeliveryID(t *testing.T, m *store.Memory) string {
	t.Helper()
	rows, _, err := m.ListWebhookDeliveries(context.Background(), "t1", "", "", 1)
	if err != nil || len(rows) == 0 {
		t.Fatalf("no deliveries: %v", err)
	}
	return rows[0]["id"].(string)
}
