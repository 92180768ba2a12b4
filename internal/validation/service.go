// Package validation answers "can this provider serve this address, and at
// what travel fee". Business "no" outcomes are data (Valid=false plus a
// code); only infrastructure faults surface as errors.
package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"homeroute/internal/fee"
	"homeroute/internal/geo"
	"homeroute/internal/geocode"
	"homeroute/internal/model"
	"homeroute/internal/store"
	"homeroute/internal/zone"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	// ErrProviderBaseMissing means the provider has no active located base
	// to measure distance from.
	ErrProviderBaseMissing = errors.New("provider has no located base")
)

// Service runs address validation quotes.
type Service struct {
	Store    store.Store
	Geo      geocode.Geocoder
	Defaults model.TravelFeeRules
}

func New(st store.Store, g geocode.Geocoder, defaults model.TravelFeeRules) *Service {
	return &Service{Store: st, Geo: g, Defaults: defaults}
}

// Validate resolves the provider, geocodes the address, applies platform
// and provider coverage rules in order, and prices the trip.
func (s *Service) Validate(ctx context.Context, req model.QuoteRequest) (model.QuoteResult, error) {
	provider, err := s.Store.GetProvider(ctx, req.TenantID, req.ProviderRef)
	if errors.Is(err, store.ErrNotFound) {
		return model.QuoteResult{}, fmt.Errorf("%w: %s", ErrProviderNotFound, req.ProviderRef)
	}
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("load provider: %w", err)
	}
	if !provider.Active || !provider.OffersAtHome {
		return reject(model.CodeServiceNotOffered, "this provider does not offer at-home services"), nil
	}

	loc, err := s.Geo.Geocode(ctx, req.Address, req.CountryHint)
	if errors.Is(err, geocode.ErrNotFound) {
		return reject(model.CodeAddressNotFound, "we could not find that address; please check it and try again"), nil
	}
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("geocode: %w", err)
	}
	addr := loc.Address
	addr.Location = loc.Location

	base, err := s.nearestBase(ctx, req.TenantID, provider.ID, loc.Location)
	if err != nil {
		return model.QuoteResult{}, err
	}
	distance := geo.DistanceKm(base, loc.Location)

	// Platform zones are a hard boundary when any are configured: the
	// address must fall in one, and the provider must have opted in to it.
	var matched *model.Zone
	var selection *model.ZoneSelection
	platform, err := s.Store.ListPlatformZones(ctx, req.TenantID)
	if err != nil {
		return model.QuoteResult{}, fmt.Errorf("list platform zones: %w", err)
	}
	if len(platform) > 0 {
		matched = zone.Match(loc.Location, addr, platform)
		if matched == nil {
			res := reject(model.CodeOutsideCoverage, "this address is outside our service areas")
			res.Coordinates = &loc.Location
			res.Address = &addr
			return res, nil
		}
		selection, err = s.selectionFor(ctx, req.TenantID, provider.ID, matched.ID)
		if err != nil {
			return model.QuoteResult{}, err
		}
		if selection == nil {
			res := reject(model.CodeProviderNotInZone, fmt.Sprintf("%s does not serve the %s area", providerName(provider), matched.Name))
			res.ZoneID = matched.ID
			res.ZoneName = matched.Name
			res.Coordinates = &loc.Location
			res.Address = &addr
			return res, nil
		}
	} else {
		// Legacy per-provider zones apply only when the platform defines none.
		provZones, err := s.Store.ListProviderZones(ctx, req.TenantID, provider.ID)
		if err != nil {
			return model.QuoteResult{}, fmt.Errorf("list provider zones: %w", err)
		}
		if len(provZones) > 0 {
			matched = zone.Match(loc.Location, addr, provZones)
			if matched == nil {
				res := reject(model.CodeOutsideCoverage, fmt.Sprintf("this address is outside %s's service area", providerName(provider)))
				res.Coordinates = &loc.Location
				res.Address = &addr
				return res, nil
			}
		}
	}

	if provider.DistanceFilterEnabled && provider.MaxServiceDistanceKm > 0 && distance > provider.MaxServiceDistanceKm {
		res := reject(model.CodeDistanceExceeded, fmt.Sprintf("address is %.1fkm away, beyond the %gkm service limit", distance, provider.MaxServiceDistanceKm))
		res.DistanceKm = round2(distance)
		res.Coordinates = &loc.Location
		res.Address = &addr
		return res, nil
	}

	rules := fee.Resolve(provider.FeeRules, s.Defaults)
	feeRes := fee.Compute(base, addr, rules, matched)
	if !feeRes.WithinServiceArea {
		res := reject(model.CodeDistanceExceeded, feeRes.OutsideReason)
		res.DistanceKm = feeRes.DistanceKm
		res.Coordinates = &loc.Location
		res.Address = &addr
		return res, nil
	}

	result := model.QuoteResult{
		Valid:             true,
		TravelFee:         feeRes.Fee,
		ZoneID:            feeRes.ZoneID,
		ZoneName:          feeRes.ZoneName,
		DistanceKm:        feeRes.DistanceKm,
		TravelTimeMinutes: feeRes.TravelTimeMinutes,
		Coordinates:       &loc.Location,
		Address:           &addr,
		Breakdown:         feeRes.Breakdown,
	}
	// A provider's own price for an opted-in platform zone beats any
	// computed fee.
	if selection != nil {
		if selection.Price != nil {
			result.TravelFee = round2(*selection.Price)
			result.Breakdown = []model.FeeLine{{Label: "Provider zone rate: " + matched.Name, Amount: result.TravelFee}}
		}
		if selection.DurationMin != nil {
			result.TravelTimeMinutes = *selection.DurationMin
		}
	}
	return result, nil
}

func (s *Service) nearestBase(ctx context.Context, tenantID, providerID string, to model.Coordinate) (model.Coordinate, error) {
	locs, err := s.Store.ListProviderLocations(ctx, tenantID, providerID)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("list provider locations: %w", err)
	}
	var best *model.Coordinate
	bestD := 0.0
	for i := range locs {
		l := locs[i]
		if !l.Active || l.Location == nil {
			continue
		}
		d := geo.DistanceKm(*l.Location, to)
		if best == nil || d < bestD {
			best = l.Location
			bestD = d
		}
	}
	if best == nil {
		return model.Coordinate{}, fmt.Errorf("provider %s: %w", providerID, ErrProviderBaseMissing)
	}
	return *best, nil
}

func (s *Service) selectionFor(ctx context.Context, tenantID, providerID, zoneID string) (*model.ZoneSelection, error) {
	sels, err := s.Store.ListZoneSelections(ctx, tenantID, providerID)
	if err != nil {
		return nil, fmt.Errorf("list zone selections: %w", err)
	}
	for i := range sels {
		if sels[i].ZoneID == zoneID {
			return &sels[i], nil
		}
	}
	return nil, nil
}

func reject(code, reason string) model.QuoteResult {
	return model.QuoteResult{Valid: false, Code: code, Reason: reason}
}

func providerName(p model.Provider) string {
	if p.Name != "" {
		return p.Name
	}
	return "this provider"
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
