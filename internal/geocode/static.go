package geocode

import (
	"context"
	"sync"
)

// Static is a fixture-backed geocoder for tests and offline development.
type Static struct {
	mu sync.Mutex
	m  map[string]Result
}

func NewStatic() *Static { return &Static{m: map[string]Result{}} }

// Add registers a result for an address text.
func (s *Static) Add(addressText string, res Result) {
	s.mu.Lock()
	s.m[cacheKey(addressText, "")] = res
	s.mu.Unlock()
}

func (s *Static) Geocode(ctx context.Context, addressText, countryHint string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.m[cacheKey(addressText, "")]; ok {
		return res, nil
	}
	return Result{}, ErrNotFound
}
