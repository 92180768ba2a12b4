package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"homeroute/internal/model"
)

// Nominatim geocodes via a Nominatim-compatible /search endpoint. Public
// instances enforce an absolute usage policy, so every call goes through a
// client-side rate limiter.
type Nominatim struct {
	BaseURL string
	HTTP    *http.Client
	limiter *rate.Limiter
	cache   Cache
}

// NewNominatim builds a geocoder for baseURL limited to rps requests per
// second. cache may be nil.
func NewNominatim(baseURL string, rps float64, cache Cache) *Nominatim {
	if rps <= 0 {
		rps = 1
	}
	if cache == nil {
		cache = NopCache{}
	}
	return &Nominatim{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cache,
	}
}

type nominatimHit struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		HouseNumber string `json:"house_number"`
		Road        string `json:"road"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		Country     string `json:"country"`
		Postcode    string `json:"postcode"`
	} `json:"address"`
}

func (n *Nominatim) Geocode(ctx context.Context, addressText, countryHint string) (Result, error) {
	key := cacheKey(addressText, countryHint)
	if res, ok := n.cache.Get(ctx, key); ok {
		return res, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	q := url.Values{}
	q.Set("q", addressText)
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")
	if countryHint != "" {
		q.Set("countrycodes", strings.ToLower(countryHint))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", "homeroute/1.0")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(hits) == 0 {
		return Result{}, ErrNotFound
	}

	h := hits[0]
	lat, errLat := strconv.ParseFloat(h.Lat, 64)
	lng, errLng := strconv.ParseFloat(h.Lon, 64)
	if errLat != nil || errLng != nil {
		return Result{}, fmt.Errorf("%w: bad coordinates in response", ErrUnavailable)
	}

	city := h.Address.City
	if city == "" {
		city = h.Address.Town
	}
	if city == "" {
		city = h.Address.Village
	}
	line1 := strings.TrimSpace(h.Address.HouseNumber + " " + h.Address.Road)

	res := Result{
		Location: model.Coordinate{Lat: lat, Lng: lng},
		Address: model.Address{
			Line1:      line1,
			City:       city,
			Country:    h.Address.Country,
			PostalCode: h.Address.Postcode,
			Location:   model.Coordinate{Lat: lat, Lng: lng},
		},
	}
	n.cache.Put(ctx, key, res)
	return res, nil
}

func cacheKey(addressText, countryHint string) string {
	return strings.ToLower(strings.Join(strings.Fields(addressText), " ")) + "|" + strings.ToLower(countryHint)
}
