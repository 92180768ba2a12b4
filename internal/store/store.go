package store

import (
	"context"
	"errors"
	"time"

	"homeroute/internal/model"
)

// Store is the persistence interface used by the API server. The core
// algorithms only read configuration (providers, zones, fee rules) and
// write derived route artifacts, which are safe to discard and rebuild.
type Store interface {
	// Providers
	GetProvider(ctx context.Context, tenantID, ref string) (model.Provider, error) // ref is id or slug
	ListProviderLocations(ctx context.Context, tenantID, providerID string) ([]model.ProviderLocation, error)
	ListProviderZones(ctx context.Context, tenantID, providerID string) ([]model.Zone, error) // legacy per-provider zones, ordered
	ListZoneSelections(ctx context.Context, tenantID, providerID string) ([]model.ZoneSelection, error)

	// Platform zones. ListPlatformZones returns only active zones in
	// evaluation order; the admin listing returns everything.
	ListPlatformZones(ctx context.Context, tenantID string) ([]model.Zone, error)
	CreateZone(ctx context.Context, tenantID, providerID string, in model.ZoneInput) (model.Zone, error)
	GetZone(ctx context.Context, tenantID, id string) (model.Zone, error)
	ListZones(ctx context.Context, tenantID, cursor string, limit int) ([]model.Zone, string, error)
	PatchZone(ctx context.Context, tenantID, id string, in model.ZoneInput) (model.Zone, error)
	DeleteZone(ctx context.Context, tenantID, id string) error

	// Bookings
	ListAtHomeBookings(ctx context.Context, tenantID, providerID, date, staffID string) ([]model.Booking, error)
	UpdateBookingRouteInfo(ctx context.Context, tenantID string, info model.BookingRouteInfo) error

	// Routes. SaveRoute atomically replaces the route row and all of its
	// segments.
	GetRouteForDay(ctx context.Context, tenantID, providerID, date, staffID string) (model.Route, error)
	SaveRoute(ctx context.Context, route model.Route, segments []model.RouteSegment) error
	GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error)
	ListRoutes(ctx context.Context, tenantID, cursor string, limit int) ([]model.Route, string, error)
	ListRouteSegments(ctx context.Context, tenantID, routeID string) ([]model.RouteSegment, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")
