package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	providers  map[string]model.Provider           // id -> provider
	provByTen  map[string][]string                 // tenant -> provider ids
	locations  map[string][]model.ProviderLocation // providerId -> locations
	provZones  map[string][]model.Zone             // providerId -> legacy zones (ordered)
	selections map[string][]model.ZoneSelection    // providerId -> platform zone opt-ins
	zones      map[string]model.Zone               // zoneId -> zone
	zonesByTen map[string][]string                 // tenant -> zone ids in evaluation order
	bookings   map[string]model.Booking            // id -> booking
	bookByTen  map[string][]string                 // tenant -> booking ids
	routeInfo  map[string]model.BookingRouteInfo   // bookingId -> linkage
	routes     map[string]model.Route              // id -> route
	routesTen  map[string][]string                 // tenant -> route ids
	segments   map[string][]model.RouteSegment     // routeId -> segments (ordered)
	subs       map[string][]model.Subscription     // tenant -> subscriptions
	deliveries map[string]*memDelivery             // id -> delivery state
	delivByTen map[string][]string                 // tenant -> delivery ids
}

func NewMemory() *Memory {
	return &Memory{
		providers:  map[string]model.Provider{},
		provByTen:  map[string][]string{},
		locations:  map[string][]model.ProviderLocation{},
		provZones:  map[string][]model.Zone{},
		selections: map[string][]model.ZoneSelection{},
		zones:      map[string]model.Zone{},
		zonesByTen: map[string][]string{},
		bookings:   map[string]model.Booking{},
		bookByTen:  map[string][]string{},
		routeInfo:  map[string]model.BookingRouteInfo{},
		routes:     map[string]model.Route{},
		routesTen:  map[string][]string{},
		segments:   map[string][]model.RouteSegment{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
		delivByTen: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

// Seed helpers (tests and local runs only).

func (m *Memory) SeedProvider(p model.Provider, locs ...model.ProviderLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
	m.provByTen[p.TenantID] = append(m.provByTen[p.TenantID], p.ID)
	m.locations[p.ID] = append(m.locations[p.ID], locs...)
}

func (m *Memory) SeedZone(z model.Zone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = z
	if z.ProviderID != "" {
		m.provZones[z.ProviderID] = append(m.provZones[z.ProviderID], z)
		return
	}
	m.zonesByTen[z.TenantID] = append(m.zonesByTen[z.TenantID], z.ID)
}

func (m *Memory) SeedZoneSelection(sel model.ZoneSelection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[sel.ProviderID] = append(m.selections[sel.ProviderID], sel)
}

func (m *Memory) SeedBooking(b model.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		m.bookByTen[b.TenantID] = append(m.bookByTen[b.TenantID], b.ID)
	}
	m.bookings[b.ID] = b
}

// RouteInfo returns the linkage written back for a booking, if any.
func (m *Memory) RouteInfo(bookingID string) (model.BookingRouteInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.routeInfo[bookingID]
	return info, ok
}

// Providers

func (m *Memory) GetProvider(ctx context.Context, tenantID, ref string) (model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[ref]; ok && p.TenantID == tenantID {
		return p, nil
	}
	for _, id := range m.provByTen[tenantID] {
		if p := m.providers[id]; p.Slug == ref {
			return p, nil
		}
	}
	return model.Provider{}, ErrNotFound
}

func (m *Memory) ListProviderLocations(ctx context.Context, tenantID, providerID string) ([]model.ProviderLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.ProviderLocation(nil), m.locations[providerID]...)
	return out, nil
}

func (m *Memory) ListProviderZones(ctx context.Context, tenantID, providerID string) ([]model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Zone(nil), m.provZones[providerID]...), nil
}

func (m *Memory) ListZoneSelections(ctx context.Context, tenantID, providerID string) ([]model.ZoneSelection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ZoneSelection(nil), m.selections[providerID]...), nil
}

// Zones

func (m *Memory) ListPlatformZones(ctx context.Context, tenantID string) ([]model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Zone{}
	for _, id := range m.zonesByTen[tenantID] {
		z := m.zones[id]
		if z.Active {
			out = append(out, z)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *Memory) CreateZone(ctx context.Context, tenantID, providerID string, in model.ZoneInput) (model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := model.Zone{ID: uuid.New().String(), TenantID: tenantID, ProviderID: providerID, Active: true}
	applyZoneInput(&z, in)
	m.zones[z.ID] = z
	if providerID != "" {
		m.provZones[providerID] = append(m.provZones[providerID], z)
	} else {
		m.zonesByTen[tenantID] = append(m.zonesByTen[tenantID], z.ID)
	}
	return z, nil
}

func (m *Memory) GetZone(ctx context.Context, tenantID, id string) (model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok || z.TenantID != tenantID {
		return model.Zone{}, ErrNotFound
	}
	return z, nil
}

func (m *Memory) ListZones(ctx context.Context, tenantID, cursor string, limit int) ([]model.Zone, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.zonesByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Zone{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.zones[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) PatchZone(ctx context.Context, tenantID, id string, in model.ZoneInput) (model.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok || z.TenantID != tenantID {
		return model.Zone{}, ErrNotFound
	}
	applyZoneInput(&z, in)
	m.zones[id] = z
	return z, nil
}

func (m *Memory) DeleteZone(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok || z.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.zones, id)
	ids := m.zonesByTen[tenantID]
	for i, zid := range ids {
		if zid == id {
			m.zonesByTen[tenantID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func applyZoneInput(z *model.Zone, in model.ZoneInput) {
	if in.Name != "" {
		z.Name = in.Name
	}
	if in.Kind != "" {
		z.Kind = in.Kind
	}
	if in.Active != nil {
		z.Active = *in.Active
	}
	if in.SortOrder != nil {
		z.SortOrder = *in.SortOrder
	}
	if in.PostalCodes != nil {
		z.PostalCodes = in.PostalCodes
	}
	if in.Cities != nil {
		z.Cities = in.Cities
	}
	if in.Center != nil {
		z.Center = in.Center
	}
	if in.RadiusKm != 0 {
		z.RadiusKm = in.RadiusKm
	}
	if in.Ring != nil {
		z.Ring = in.Ring
	}
	if in.FixedPrice != nil {
		z.FixedPrice = in.FixedPrice
	}
}

// Bookings

func (m *Memory) ListAtHomeBookings(ctx context.Context, tenantID, providerID, date, staffID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Booking{}
	for _, id := range m.bookByTen[tenantID] {
		b := m.bookings[id]
		if !b.AtHome || b.ProviderID != providerID || b.Date != date {
			continue
		}
		if staffID != "" && b.StaffID != staffID {
			continue
		}
		if b.Status == model.BookingCancelled || b.Status == model.BookingNoShow {
			continue
		}
		out = append(out, b)
	}
	// RFC3339 UTC sorts lexicographically; booking id breaks ties.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScheduledAt != out[j].ScheduledAt {
			return out[i].ScheduledAt < out[j].ScheduledAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateBookingRouteInfo(ctx context.Context, tenantID string, info model.BookingRouteInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[info.BookingID]; !ok {
		return ErrNotFound
	}
	m.routeInfo[info.BookingID] = info
	return nil
}

// Routes

func (m *Memory) GetRouteForDay(ctx context.Context, tenantID, providerID, date, staffID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.routesTen[tenantID] {
		r := m.routes[id]
		if r.ProviderID == providerID && r.Date == date && r.StaffID == staffID {
			return r, nil
		}
	}
	return model.Route{}, ErrNotFound
}

func (m *Memory) SaveRoute(ctx context.Context, route model.Route, segments []model.RouteSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[route.ID]; !ok {
		m.routesTen[route.TenantID] = append(m.routesTen[route.TenantID], route.ID)
	}
	m.routes[route.ID] = route
	m.segments[route.ID] = append([]model.RouteSegment(nil), segments...)
	return nil
}

func (m *Memory) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok || r.TenantID != tenantID {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, tenantID, cursor string, limit int) ([]model.Route, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.routesTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Route{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.routes[ids[i]])
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) ListRouteSegments(ctx context.Context, tenantID, routeID string) ([]model.RouteSegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return append([]model.RouteSegment(nil), m.segments[routeID]...), nil
}

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], sub)
	return sub, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i, s := range subs {
			if s.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(subs) {
		end = len(subs)
	}
	out := append([]model.Subscription(nil), subs[start:end]...)
	next := ""
	if end < len(subs) && len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[tenantID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[tenantID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID: id, TenantID: tenantID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload,
			Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.delivByTen[tenantID] = append(m.delivByTen[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, d := range m.deliveries {
		if d.Status == "pending" && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.delivByTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []map[string]any{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		d := m.deliveries[ids[i]]
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, map[string]any{
			"id": d.ID, "eventType": d.EventType, "url": d.URL,
			"status": d.Status, "attempts": d.Attempts,
			"lastError": d.LastError, "responseCode": d.ResponseCode,
		})
		next = ids[i]
	}
	if start+len(out) >= len(ids) {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = "pending"
	d.NextAttemptAt = time.Now()
	return nil
}
