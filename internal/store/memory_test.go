package store

import (
	"context"
	"errors"
	"testing"

	"homeroute/internal/model"
)

func TestMemoryProviderLookupByIDAndSlug(t *testing.T) {
	m := NewMemory()
	m.SeedProvider(model.Provider{ID: "p1", TenantID: "t1", Slug: "glow-mobile", Active: true})

	ctx := context.Background()
	if _, err := m.GetProvider(ctx, "t1", "p1"); err != nil {
		t.Fatalf("lookup by id: %v", err)
	}
	if _, err := m.GetProvider(ctx, "t1", "glow-mobile"); err != nil {
		t.Fatalf("lookup by slug: %v", err)
	}
	if _, err := m.GetProvider(ctx, "t2", "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant lookup: got %v, want ErrNotFound", err)
	}
}

func TestMemoryPlatformZoneOrdering(t *testing.T) {
	m := NewMemory()
	m.SeedZone(model.Zone{ID: "z-late", TenantID: "t1", Kind: model.ZoneCity, Active: true, SortOrder: 5})
	m.SeedZone(model.Zone{ID: "z-off", TenantID: "t1", Kind: model.ZoneCity, Active: false, SortOrder: 0})
	m.SeedZone(model.Zone{ID: "z-first", TenantID: "t1", Kind: model.ZoneCity, Active: true, SortOrder: 1})

	zones, err := m.ListPlatformZones(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 2 {
		t.Fatalf("got %d zones, want 2 (inactive excluded)", len(zones))
	}
	if zones[0].ID != "z-first" || zones[1].ID != "z-late" {
		t.Fatalf("order = [%s %s], want [z-first z-late]", zones[0].ID, zones[1].ID)
	}
}

func TestMemoryZoneLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	z, err := m.CreateZone(ctx, "t1", "", model.ZoneInput{Name: "North", Kind: model.ZoneRadius, Center: &model.Coordinate{Lat: 1, Lng: 2}, RadiusKm: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !z.Active {
		t.Fatal("new zones should default to active")
	}

	off := false
	patched, err := m.PatchZone(ctx, "t1", z.ID, model.ZoneInput{Active: &off})
	if err != nil {
		t.Fatal(err)
	}
	if patched.Active {
		t.Fatal("patch did not deactivate zone")
	}
	if patched.RadiusKm != 10 {
		t.Fatalf("patch clobbered radius: %v", patched.RadiusKm)
	}

	if err := m.DeleteZone(ctx, "t1", z.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetZone(ctx, "t1", z.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryListAtHomeBookingsFiltersAndSorts(t *testing.T) {
	m := NewMemory()
	loc := &model.Coordinate{Lat: -33.9, Lng: 18.4}
	m.SeedBooking(model.Booking{ID: "b2", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T11:00:00Z", Status: "confirmed", AtHome: true, Location: loc})
	m.SeedBooking(model.Booking{ID: "b1", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T09:00:00Z", Status: "confirmed", AtHome: true, Location: loc})
	m.SeedBooking(model.Booking{ID: "b3", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T10:00:00Z", Status: model.BookingCancelled, AtHome: true, Location: loc})
	m.SeedBooking(model.Booking{ID: "b4", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T10:30:00Z", Status: "confirmed", AtHome: false})
	m.SeedBooking(model.Booking{ID: "b5", TenantID: "t1", ProviderID: "p1", Date: "2026-09-02", ScheduledAt: "2026-09-02T09:00:00Z", Status: "confirmed", AtHome: true, Location: loc})

	got, err := m.ListAtHomeBookings(context.Background(), "t1", "p1", "2026-09-01", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bookings, want 2", len(got))
	}
	if got[0].ID != "b1" || got[1].ID != "b2" {
		t.Fatalf("order = [%s %s], want chronological [b1 b2]", got[0].ID, got[1].ID)
	}
}

func TestMemorySaveRouteReplacesSegments(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	route := model.Route{ID: "r1", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", Status: model.RouteOptimized}
	first := []model.RouteSegment{{ID: "s1", RouteID: "r1", Order: 1, ToBookingID: "b1"}}
	if err := m.SaveRoute(ctx, route, first); err != nil {
		t.Fatal(err)
	}

	second := []model.RouteSegment{
		{ID: "s2", RouteID: "r1", Order: 1, ToBookingID: "b1"},
		{ID: "s3", RouteID: "r1", Order: 2, ToBookingID: "b2"},
	}
	if err := m.SaveRoute(ctx, route, second); err != nil {
		t.Fatal(err)
	}

	segs, err := m.ListRouteSegments(ctx, "t1", "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2 after replacement", len(segs))
	}
	if segs[0].ID != "s2" {
		t.Fatalf("stale segment survived replacement: %s", segs[0].ID)
	}

	if r, err := m.GetRouteForDay(ctx, "t1", "p1", "2026-09-01", ""); err != nil || r.ID != "r1" {
		t.Fatalf("GetRouteForDay = %v, %v", r.ID, err)
	}
}

func TestMemoryWebhookDeliveryStates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "t1", "sub1", "route.optimized", "https://example.com/hook", "s3cret", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %v", due)
	}

	if err := m.FailWebhookDelivery(ctx, id, "boom", 500, 12); err != nil {
		t.Fatal(err)
	}
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatal("failed delivery still listed as due")
	}

	if err := m.RetryWebhookDelivery(ctx, "t1", id); err != nil {
		t.Fatal(err)
	}
	if due, _ = m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 {
		t.Fatal("retried delivery not due again")
	}

	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 8); err != nil {
		t.Fatal(err)
	}
	rows, _, err := m.ListWebhookDeliveries(ctx, "t1", "delivered", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("delivered rows = %d, want 1", len(rows))
	}
}

func TestMemorySubscriptionEventFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://a", Events: []string{"route.optimized"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://b", Events: []string{"*"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://c", Events: []string{"quote.completed"}}); err != nil {
		t.Fatal(err)
	}

	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "route.optimized")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscribers, want 2 (exact + wildcard)", len(subs))
	}
}
