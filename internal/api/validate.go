package api

import (
	"fmt"
	"strings"
	"time"

	"homeroute/internal/model"
)

func validateQuoteRequest(req *model.QuoteRequest) error {
	if strings.TrimSpace(req.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if strings.TrimSpace(req.ProviderRef) == "" {
		return fmt.Errorf("provider is required")
	}
	if req.CountryHint != "" && len(req.CountryHint) != 2 {
		return fmt.Errorf("countryHint must be a 2-letter country code")
	}
	return nil
}

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if strings.TrimSpace(req.ProviderID) == "" {
		return fmt.Errorf("providerId is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD")
	}
	return nil
}

func validateZoneInput(in *model.ZoneInput, creating bool) error {
	if creating && in.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	switch in.Kind {
	case "", model.ZonePostalCode, model.ZoneCity, model.ZoneRadius, model.ZonePolygon:
	default:
		return fmt.Errorf("unknown zone kind: %s", in.Kind)
	}
	if in.Kind == model.ZoneRadius && creating {
		if in.Center == nil || in.RadiusKm <= 0 {
			return fmt.Errorf("radius zones need a center and a positive radiusKm")
		}
	}
	if in.Kind == model.ZonePolygon && creating && len(in.Ring) < 3 {
		return fmt.Errorf("polygon zones need at least 3 ring points")
	}
	return nil
}
