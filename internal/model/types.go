package model

// Core domain types for coverage checks, travel fees, and daily routes.

// Coordinate is a WGS-84 point. Value type, never mutated.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address is a geocoded customer address. City and postal code are stored
// as returned by the geocoder; comparisons normalize at the match site.
type Address struct {
	Line1      string     `json:"line1,omitempty"`
	City       string     `json:"city,omitempty"`
	Country    string     `json:"country,omitempty"`
	PostalCode string     `json:"postalCode,omitempty"`
	Location   Coordinate `json:"location"`
}

// Zone kinds.
const (
	ZonePostalCode = "postal_code"
	ZoneCity       = "city"
	ZoneRadius     = "radius"
	ZonePolygon    = "polygon"
)

// Zone is a declared service area. Exactly one variant's fields are
// populated depending on Kind. Zones are evaluated in list order; the
// first active match wins.
type Zone struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId,omitempty"`
	ProviderID  string       `json:"providerId,omitempty"` // empty for platform zones
	Name        string       `json:"name,omitempty"`
	Kind        string       `json:"kind"`
	Active      bool         `json:"active"`
	SortOrder   int          `json:"sortOrder,omitempty"`
	PostalCodes []string     `json:"postalCodes,omitempty"`
	Cities      []string     `json:"cities,omitempty"`
	Center      *Coordinate  `json:"center,omitempty"`
	RadiusKm    float64      `json:"radiusKm,omitempty"`
	Ring        []Coordinate `json:"ring,omitempty"`
	// Provider-scoped pricing override for zone-based fees.
	FixedPrice       *float64 `json:"fixedPrice,omitempty"`
	FixedDurationMin int      `json:"fixedDurationMin,omitempty"`
}

// ZoneInput is the create/patch payload for the zones admin surface.
type ZoneInput struct {
	Name        string       `json:"name,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	Active      *bool        `json:"active,omitempty"`
	SortOrder   *int         `json:"sortOrder,omitempty"`
	PostalCodes []string     `json:"postalCodes,omitempty"`
	Cities      []string     `json:"cities,omitempty"`
	Center      *Coordinate  `json:"center,omitempty"`
	RadiusKm    float64      `json:"radiusKm,omitempty"`
	Ring        []Coordinate `json:"ring,omitempty"`
	FixedPrice  *float64     `json:"fixedPrice,omitempty"`
}

// ZoneSelection is a provider's opt-in to a platform zone, optionally with
// its own price/duration for bookings inside that zone.
type ZoneSelection struct {
	ProviderID  string   `json:"providerId"`
	ZoneID      string   `json:"zoneId"`
	Price       *float64 `json:"price,omitempty"`
	DurationMin *int     `json:"durationMin,omitempty"`
}

// Fee strategies.
const (
	StrategyFlat          = "flat"
	StrategyDistanceBased = "distance_based"
	StrategyTiered        = "tiered"
	StrategyZoneBased     = "zone_based"
)

// FeeTier is one step of a tiered schedule. Tiers are ordered ascending by
// UptoKm.
type FeeTier struct {
	UptoKm float64 `json:"uptoKm" yaml:"uptoKm"`
	Fee    float64 `json:"fee" yaml:"fee"`
}

// TravelFeeRules is the configuration a fee computation runs under.
// MinimumFee <= MaximumFee when both are set.
type TravelFeeRules struct {
	Strategy              string    `json:"strategy" yaml:"strategy"`
	PerKmRate             float64   `json:"perKmRate" yaml:"perKmRate"`
	MinimumFee            *float64  `json:"minimumFee,omitempty" yaml:"minimumFee"`
	MaximumFee            *float64  `json:"maximumFee,omitempty" yaml:"maximumFee"`
	FlatFee               float64   `json:"flatFee,omitempty" yaml:"flatFee"`
	Tiers                 []FeeTier `json:"tiers,omitempty" yaml:"tiers"`
	MaxRadiusKm           *float64  `json:"maxRadiusKm,omitempty" yaml:"maxRadiusKm"`
	BaseTravelTimeMinutes int       `json:"baseTravelTimeMinutes,omitempty" yaml:"baseTravelTimeMinutes"`
	DefaultMinutesPerKm   float64   `json:"defaultMinutesPerKm,omitempty" yaml:"defaultMinutesPerKm"`
	// Chained schedule for legs after the first stop of a day.
	ChainedFreeKm    float64  `json:"chainedFreeKm,omitempty" yaml:"chainedFreeKm"`
	ChainedPerKmRate *float64 `json:"chainedPerKmRate,omitempty" yaml:"chainedPerKmRate"`
}

// FeeLine is one human-readable breakdown entry. Amounts are rounded to
// two decimals at the boundary.
type FeeLine struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// TravelFeeResult is produced fresh per computation and never mutated.
type TravelFeeResult struct {
	Fee               float64   `json:"fee"`
	DistanceKm        float64   `json:"distanceKm"`
	TravelTimeMinutes int       `json:"travelTimeMinutes"`
	WithinServiceArea bool      `json:"withinServiceArea"`
	OutsideReason     string    `json:"outsideReason,omitempty"`
	ZoneID            string    `json:"zoneId,omitempty"`
	ZoneName          string    `json:"zoneName,omitempty"`
	Breakdown         []FeeLine `json:"breakdown"`
}

// Provider is the subset of the provider record the core reads.
type Provider struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"tenantId"`
	Slug                  string          `json:"slug,omitempty"`
	Name                  string          `json:"name,omitempty"`
	Active                bool            `json:"active"`
	OffersAtHome          bool            `json:"offersAtHome"`
	DistanceFilterEnabled bool            `json:"distanceFilterEnabled,omitempty"`
	MaxServiceDistanceKm  float64         `json:"maxServiceDistanceKm,omitempty"`
	FeeRules              *TravelFeeRules `json:"feeRules,omitempty"` // overrides platform defaults when set
}

// ProviderLocation is one of a provider's physical bases.
type ProviderLocation struct {
	ID         string      `json:"id"`
	ProviderID string      `json:"providerId"`
	Name       string      `json:"name,omitempty"`
	Active     bool        `json:"active"`
	Primary    bool        `json:"primary,omitempty"`
	Location   *Coordinate `json:"location,omitempty"`
}

// Booking statuses relevant to routing.
const (
	BookingCancelled = "cancelled"
	BookingNoShow    = "no_show"
)

// Booking is an at-home appointment as read from the booking repository.
// ScheduledAt is RFC3339 UTC; Date is YYYY-MM-DD.
type Booking struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	ProviderID  string      `json:"providerId"`
	StaffID     string      `json:"staffId,omitempty"`
	Date        string      `json:"date"`
	ScheduledAt string      `json:"scheduledAt"`
	Status      string      `json:"status"`
	AtHome      bool        `json:"atHome"`
	Address     Address     `json:"address"`
	Location    *Coordinate `json:"location,omitempty"`
}

// BookingRouteInfo is the linkage written back onto a booking after its
// day's route has been built, for downstream billing.
type BookingRouteInfo struct {
	BookingID       string  `json:"bookingId"`
	SegmentID       string  `json:"segmentId"`
	DistanceKm      float64 `json:"distanceKm"`
	DurationMinutes int     `json:"durationMinutes"`
	PrevBookingID   string  `json:"prevBookingId,omitempty"`
	NextBookingID   string  `json:"nextBookingId,omitempty"`
	TravelFee       float64 `json:"travelFee"`
}

// Route statuses.
const (
	RoutePending   = "pending"
	RouteOptimized = "optimized"
)

// Route is a provider's daily travel plan. One row per
// (provider, staff, date); re-optimizing replaces its segments wholesale.
type Route struct {
	ID                   string      `json:"id"`
	TenantID             string      `json:"tenantId"`
	ProviderID           string      `json:"providerId"`
	StaffID              string      `json:"staffId,omitempty"`
	Date                 string      `json:"date"`
	Status               string      `json:"status"`
	StartLocation        *Coordinate `json:"startLocation,omitempty"`
	EndLocation          *Coordinate `json:"endLocation,omitempty"`
	TotalDistanceKm      float64     `json:"totalDistanceKm"`
	TotalDurationMinutes int         `json:"totalDurationMinutes"`
	OptimizedAt          string      `json:"optimizedAt,omitempty"`
}

// RouteSegment is one directed leg of a route. Owned by its route and
// replaced as a set on re-optimize. FromBookingID is nil on the first
// segment (leg from the start location).
type RouteSegment struct {
	ID                  string     `json:"id"`
	RouteID             string     `json:"routeId"`
	Order               int        `json:"order"` // 1-based
	FromBookingID       *string    `json:"fromBookingId,omitempty"`
	ToBookingID         string     `json:"toBookingId"`
	DistanceKm          float64    `json:"distanceKm"`
	DurationMinutes     int        `json:"durationMinutes"`
	TravelFeeCalculated float64    `json:"travelFeeCalculated"`
	TravelFeeCharged    float64    `json:"travelFeeCharged"`
	FromLocation        Coordinate `json:"fromLocation"`
	ToLocation          Coordinate `json:"toLocation"`
}

// Quote failure codes. These are outcomes, not errors.
const (
	CodeOutsideCoverage   = "outside_coverage"
	CodeProviderNotInZone = "provider_not_in_zone"
	CodeDistanceExceeded  = "distance_exceeded"
	CodeAddressNotFound   = "address_not_found"
	CodeServiceNotOffered = "service_not_offered"
)

// QuoteRequest asks whether an address is servable by a provider.
type QuoteRequest struct {
	TenantID    string `json:"tenantId,omitempty"`
	Address     string `json:"address"`
	CountryHint string `json:"countryHint,omitempty"`
	ProviderRef string `json:"provider"` // id or slug
}

// QuoteResult is the validation outcome. "No" outcomes carry Valid=false
// with a code and a human-readable reason.
type QuoteResult struct {
	Valid             bool        `json:"valid"`
	Code              string      `json:"code,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	TravelFee         float64     `json:"travelFee"`
	ZoneID            string      `json:"zoneId,omitempty"`
	ZoneName          string      `json:"zoneName,omitempty"`
	DistanceKm        float64     `json:"distanceKm,omitempty"`
	TravelTimeMinutes int         `json:"travelTimeMinutes,omitempty"`
	Coordinates       *Coordinate `json:"coordinates,omitempty"`
	Address           *Address    `json:"address,omitempty"`
	Breakdown         []FeeLine   `json:"breakdown,omitempty"`
}

// OptimizeRequest builds (or rebuilds) a provider's route for one day.
type OptimizeRequest struct {
	TenantID   string `json:"tenantId,omitempty"`
	ProviderID string `json:"providerId"`
	Date       string `json:"date"`
	StaffID    string `json:"staffId,omitempty"`
}

// Savings compares independent per-booking fees against the chained total.
type Savings struct {
	StandardTotal   float64 `json:"standardTotal"`
	ChainedTotal    float64 `json:"chainedTotal"`
	AmountSaved     float64 `json:"amountSaved"`
	PercentageSaved float64 `json:"percentageSaved"`
}

// OptimizeResult is returned from a route optimization call. Warnings list
// legs that were skipped or defaulted rather than aborting the route.
type OptimizeResult struct {
	RouteID              string         `json:"routeId"`
	BookingsCount        int            `json:"bookingsCount"`
	SegmentsCreated      int            `json:"segmentsCreated"`
	TotalDistanceKm      float64        `json:"totalDistanceKm"`
	TotalDurationMinutes int            `json:"totalDurationMinutes"`
	Segments             []RouteSegment `json:"segments"`
	Savings              Savings        `json:"savings"`
	Warnings             []string       `json:"warnings,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
