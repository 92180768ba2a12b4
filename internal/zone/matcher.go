// Package zone decides whether a point/address falls inside a declared
// service area.
package zone

import (
	"strings"

	"homeroute/internal/geo"
	"homeroute/internal/model"
)

// Match scans zones in the given order and returns the first active zone
// whose predicate holds, or nil. It never decides policy: a nil result may
// mean "outside coverage" or "fall back to legacy provider zones" depending
// on the caller.
//
// Malformed variants are skipped, not errors: a radius zone without a
// center or radius, and a polygon with fewer than 3 vertices, simply do not
// match.
func Match(point model.Coordinate, addr model.Address, zones []model.Zone) *model.Zone {
	for i := range zones {
		z := &zones[i]
		if !z.Active {
			continue
		}
		if matches(z, point, addr) {
			return z
		}
	}
	return nil
}

func matches(z *model.Zone, point model.Coordinate, addr model.Address) bool {
	switch z.Kind {
	case model.ZonePostalCode:
		code := normPostal(addr.PostalCode)
		if code == "" {
			return false
		}
		for _, c := range z.PostalCodes {
			if normPostal(c) == code {
				return true
			}
		}
	case model.ZoneCity:
		city := normCity(addr.City)
		if city == "" {
			return false
		}
		for _, c := range z.Cities {
			if normCity(c) == city {
				return true
			}
		}
	case model.ZoneRadius:
		if z.Center == nil || z.RadiusKm <= 0 {
			return false
		}
		return geo.DistanceKm(*z.Center, point) <= z.RadiusKm
	case model.ZonePolygon:
		if len(z.Ring) < 3 {
			return false
		}
		return geo.PointInPolygon(point, z.Ring)
	}
	return false
}

// normPostal strips all whitespace and upper-cases ("8001 " == "8001",
// "ec1a 1bb" == "EC1A1BB").
func normPostal(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// normCity trims and lower-cases.
func normCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
