package routeopt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeroute/internal/fee"
	"homeroute/internal/geo"
	"homeroute/internal/model"
	"homeroute/internal/store"
)

// ErrProviderLocationMissing means the provider has no active base with
// coordinates, so there is nothing to chain legs from.
var ErrProviderLocationMissing = errors.New("provider has no located base")

// Optimizer builds a provider's daily route by chaining at-home bookings
// in scheduled order. Bookings are never reordered; the chain follows the
// customer-agreed times.
type Optimizer struct {
	store    store.Store
	defaults model.TravelFeeRules
	speedKmh float64

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func New(st store.Store, defaults model.TravelFeeRules, speedKmh float64) *Optimizer {
	if speedKmh <= 0 {
		speedKmh = 40
	}
	return &Optimizer{store: st, defaults: defaults, speedKmh: speedKmh, keys: map[string]*sync.Mutex{}}
}

// lockKey serializes optimizations per (provider, date, staff) so two
// concurrent requests for the same day cannot interleave segment writes.
func (o *Optimizer) lockKey(providerID, date, staffID string) *sync.Mutex {
	key := providerID + "|" + date + "|" + staffID
	o.mu.Lock()
	defer o.mu.Unlock()
	mu, ok := o.keys[key]
	if !ok {
		mu = &sync.Mutex{}
		o.keys[key] = mu
	}
	return mu
}

// Optimize rebuilds the route for one provider-day. Re-running it replaces
// the previous segment set wholesale, so it is safe after cancellations.
func (o *Optimizer) Optimize(ctx context.Context, tenantID, providerID, date, staffID string) (model.OptimizeResult, error) {
	mu := o.lockKey(providerID, date, staffID)
	mu.Lock()
	defer mu.Unlock()

	provider, err := o.store.GetProvider(ctx, tenantID, providerID)
	if err != nil {
		return model.OptimizeResult{}, fmt.Errorf("load provider %s: %w", providerID, err)
	}
	rules := fee.Resolve(provider.FeeRules, o.defaults)

	start, err := o.startLocation(ctx, tenantID, provider.ID)
	if err != nil {
		return model.OptimizeResult{}, err
	}

	bookings, err := o.store.ListAtHomeBookings(ctx, tenantID, provider.ID, date, staffID)
	if err != nil {
		return model.OptimizeResult{}, fmt.Errorf("list bookings: %w", err)
	}

	route, err := o.store.GetRouteForDay(ctx, tenantID, provider.ID, date, staffID)
	if errors.Is(err, store.ErrNotFound) {
		route = model.Route{ID: uuid.New().String(), TenantID: tenantID, ProviderID: provider.ID, StaffID: staffID, Date: date}
	} else if err != nil {
		return model.OptimizeResult{}, fmt.Errorf("load route for day: %w", err)
	}

	result := model.OptimizeResult{RouteID: route.ID, BookingsCount: len(bookings)}

	segments := []model.RouteSegment{}
	current := start
	var prevBookingID string
	for _, b := range bookings {
		if b.Location == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("booking %s has no coordinates; skipped", b.ID))
			continue
		}
		legIndex := len(segments)
		d := geo.DistanceKm(current, *b.Location)
		charged, _ := fee.Chained(rules, d, legIndex)
		standard, _ := fee.Chained(rules, d, 0)
		seg := model.RouteSegment{
			ID:                  uuid.New().String(),
			RouteID:             route.ID,
			Order:               legIndex + 1,
			ToBookingID:         b.ID,
			DistanceKm:          d,
			DurationMinutes:     legMinutes(d, o.speedKmh),
			TravelFeeCalculated: standard,
			TravelFeeCharged:    charged,
			FromLocation:        current,
			ToLocation:          *b.Location,
		}
		if prevBookingID != "" {
			from := prevBookingID
			seg.FromBookingID = &from
		}
		segments = append(segments, seg)
		current = *b.Location
		prevBookingID = b.ID
	}

	route.Status = model.RouteOptimized
	route.StartLocation = &start
	route.OptimizedAt = time.Now().UTC().Format(time.RFC3339)
	route.TotalDistanceKm = 0
	route.TotalDurationMinutes = 0
	for _, s := range segments {
		route.TotalDistanceKm += s.DistanceKm
		route.TotalDurationMinutes += s.DurationMinutes
	}
	route.TotalDistanceKm = math.Round(route.TotalDistanceKm*100) / 100
	if len(segments) > 0 {
		last := segments[len(segments)-1].ToLocation
		route.EndLocation = &last
	} else {
		route.EndLocation = nil
	}

	if err := o.store.SaveRoute(ctx, route, segments); err != nil {
		return model.OptimizeResult{}, fmt.Errorf("save route %s: %w", route.ID, err)
	}

	for i, s := range segments {
		info := model.BookingRouteInfo{
			BookingID:       s.ToBookingID,
			SegmentID:       s.ID,
			DistanceKm:      s.DistanceKm,
			DurationMinutes: s.DurationMinutes,
			TravelFee:       s.TravelFeeCharged,
		}
		if s.FromBookingID != nil {
			info.PrevBookingID = *s.FromBookingID
		}
		if i+1 < len(segments) {
			info.NextBookingID = segments[i+1].ToBookingID
		}
		if err := o.store.UpdateBookingRouteInfo(ctx, tenantID, info); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("booking %s: linkage not written: %v", s.ToBookingID, err))
		}
	}

	result.SegmentsCreated = len(segments)
	result.TotalDistanceKm = route.TotalDistanceKm
	result.TotalDurationMinutes = route.TotalDurationMinutes
	result.Segments = segments
	result.Savings = ComputeSavings(start, segments, rules)
	return result, nil
}

// startLocation picks the provider's primary active base, falling back to
// any active base with coordinates.
func (o *Optimizer) startLocation(ctx context.Context, tenantID, providerID string) (model.Coordinate, error) {
	locs, err := o.store.ListProviderLocations(ctx, tenantID, providerID)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("list provider locations: %w", err)
	}
	var fallback *model.Coordinate
	for i := range locs {
		l := locs[i]
		if !l.Active || l.Location == nil {
			continue
		}
		if l.Primary {
			return *l.Location, nil
		}
		if fallback == nil {
			fallback = l.Location
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return model.Coordinate{}, fmt.Errorf("provider %s: %w", providerID, ErrProviderLocationMissing)
}

// legMinutes converts a leg distance to driving minutes at the configured
// average speed, rounded up.
func legMinutes(distanceKm, speedKmh float64) int {
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / speedKmh * 60))
}
