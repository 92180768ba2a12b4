// Package webhooks fans events out to subscriber endpoints with signed
// payloads and retries.
package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"homeroute/internal/store"
)

// Event types emitted by the core.
const (
	EventRouteOptimized = "route.optimized"
	EventQuoteCompleted = "quote.completed"
)

// Publisher enqueues one delivery per matching subscription. Delivery is
// asynchronous; enqueue failures are logged, never surfaced to the caller.
type Publisher struct {
	store store.Store
}

func NewPublisher(st store.Store) *Publisher { return &Publisher{store: st} }

type envelope struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	TenantID   string `json:"tenantId"`
	OccurredAt string `json:"occurredAt"`
	Data       any    `json:"data"`
}

// Emit enqueues eventType for every subscriber of the tenant.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) {
	subs, err := p.store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		log.Printf("webhooks: list subscriptions for %s: %v", eventType, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
		Data:       data,
	})
	if err != nil {
		log.Printf("webhooks: marshal %s event: %v", eventType, err)
		return
	}
	for _, sub := range subs {
		if _, err := p.store.EnqueueWebhook(ctx, tenantID, sub.ID, eventType, sub.URL, sub.Secret, payload); err != nil {
			log.Printf("webhooks: enqueue %s to %s: %v", eventType, sub.URL, err)
		}
	}
}
