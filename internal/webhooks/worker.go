package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"homeroute/internal/metrics"
	"homeroute/internal/store"
)

// Worker drains due deliveries, POSTs them, and schedules retries with
// exponential backoff until maxAttempts.
type Worker struct {
	store       store.Store
	client      *http.Client
	interval    time.Duration
	maxAttempts int
}

func NewWorker(st store.Store) *Worker {
	max := 8
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	return &Worker{
		store:       st,
		client:      &http.Client{Timeout: 10 * time.Second},
		interval:    2 * time.Second,
		maxAttempts: max,
	}
}

// Start launches the drain loop in the background.
func (w *Worker) Start() {
	go w.Run(context.Background())
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick processes one batch of due deliveries.
func (w *Worker) Tick(ctx context.Context) {
	due, err := w.store.FetchDueWebhookDeliveries(ctx, 50)
	if err != nil {
		log.Printf("webhooks: fetch due: %v", err)
		return
	}
	for _, d := range due {
		w.attempt(ctx, d)
	}
}

func (w *Worker) attempt(ctx context.Context, d store.WebhookDelivery) {
	start := time.Now()
	code, err := w.post(ctx, d)
	latency := int(time.Since(start).Milliseconds())

	if err == nil && code >= 200 && code < 300 {
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		if merr := w.store.MarkWebhookDelivery(ctx, d.ID, true, nil, "", code, latency); merr != nil {
			log.Printf("webhooks: mark delivered %s: %v", d.ID, merr)
		}
		return
	}

	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		lastErr = http.StatusText(code)
	}
	if d.Attempts+1 >= w.maxAttempts {
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		if ferr := w.store.FailWebhookDelivery(ctx, d.ID, lastErr, code, latency); ferr != nil {
			log.Printf("webhooks: mark failed %s: %v", d.ID, ferr)
		}
		return
	}
	metrics.WebhookDeliveries.WithLabelValues("retried").Inc()
	next := time.Now().Add(nextBackoff(d.Attempts + 1))
	if merr := w.store.MarkWebhookDelivery(ctx, d.ID, false, &next, lastErr, code, latency); merr != nil {
		log.Printf("webhooks: reschedule %s: %v", d.ID, merr)
	}
}

func (w *Worker) post(ctx context.Context, d store.WebhookDelivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	req.Header.Set("X-Delivery-Id", d.ID)
	if d.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(d.Secret, d.Payload))
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// nextBackoff doubles per attempt starting at 2s, capped at one hour.
func nextBackoff(attempts int) time.Duration {
	d := 2 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}
