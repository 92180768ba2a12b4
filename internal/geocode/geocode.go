// Package geocode resolves free-form address text to coordinates.
package geocode

import (
	"context"
	"errors"

	"homeroute/internal/model"
)

// ErrNotFound means the geocoder answered but found no match for the text.
var ErrNotFound = errors.New("address not found")

// ErrUnavailable means the geocoder could not be reached or timed out.
var ErrUnavailable = errors.New("geocoding unavailable")

// Result is a resolved address with its coordinate.
type Result struct {
	Location model.Coordinate `json:"location"`
	Address  model.Address    `json:"address"`
}

// Geocoder resolves address text. Implementations must honor ctx deadlines
// and return ErrNotFound/ErrUnavailable rather than hanging or panicking.
type Geocoder interface {
	Geocode(ctx context.Context, addressText, countryHint string) (Result, error)
}

// Cache stores geocode results keyed by normalized query text.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Put(ctx context.Context, key string, res Result)
}

// NopCache satisfies Cache without storing anything.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key string) (Result, bool) { return Result{}, false }
func (NopCache) Put(ctx context.Context, key string, res Result)    {}
