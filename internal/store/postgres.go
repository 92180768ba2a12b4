package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"homeroute/internal/model"
)

// Postgres implements Store over a PostgreSQL database via the pgx stdlib
// driver. Composite fields (fee rules, rings, addresses, events) are stored
// as jsonb and validated here at the repository boundary.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping reports database connectivity (used by the readiness probe).
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies all .sql files in dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("migrate: read %s: %w", name, err)
		}
		if _, err := p.db.Exec(string(body)); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", name, err)
		}
	}
	return nil
}

// Providers

func (p *Postgres) GetProvider(ctx context.Context, tenantID, ref string) (model.Provider, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id::text, tenant_id, slug, name, active, offers_at_home,
		       distance_filter_enabled, max_service_distance_km, fee_rules
		FROM providers
		WHERE tenant_id=$1 AND (id::text=$2 OR slug=$2)`, tenantID, ref)
	var pr model.Provider
	var slug, name sql.NullString
	var rules []byte
	err := row.Scan(&pr.ID, &pr.TenantID, &slug, &name, &pr.Active, &pr.OffersAtHome,
		&pr.DistanceFilterEnabled, &pr.MaxServiceDistanceKm, &rules)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Provider{}, ErrNotFound
	}
	if err != nil {
		return model.Provider{}, err
	}
	pr.Slug = slug.String
	pr.Name = name.String
	if len(rules) > 0 {
		var fr model.TravelFeeRules
		if err := json.Unmarshal(rules, &fr); err != nil {
			return model.Provider{}, fmt.Errorf("provider %s: malformed fee_rules: %w", pr.ID, err)
		}
		pr.FeeRules = &fr
	}
	return pr, nil
}

func (p *Postgres) ListProviderLocations(ctx context.Context, tenantID, providerID string) ([]model.ProviderLocation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, provider_id::text, name, active, is_primary, lat, lng
		FROM provider_locations WHERE provider_id=$1 ORDER BY created_at, id`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ProviderLocation{}
	for rows.Next() {
		var l model.ProviderLocation
		var name sql.NullString
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.ProviderID, &name, &l.Active, &l.Primary, &lat, &lng); err != nil {
			return nil, err
		}
		l.Name = name.String
		if lat.Valid && lng.Valid {
			l.Location = &model.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) ListProviderZones(ctx context.Context, tenantID, providerID string) ([]model.Zone, error) {
	return p.queryZones(ctx, `
		SELECT `+zoneColumns+` FROM zones
		WHERE tenant_id=$1 AND provider_id=$2
		ORDER BY sort_order, created_at, id`, tenantID, providerID)
}

func (p *Postgres) ListZoneSelections(ctx context.Context, tenantID, providerID string) ([]model.ZoneSelection, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT provider_id::text, zone_id::text, price, duration_min
		FROM zone_selections WHERE provider_id=$1`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ZoneSelection{}
	for rows.Next() {
		var s model.ZoneSelection
		var price sql.NullFloat64
		var dur sql.NullInt64
		if err := rows.Scan(&s.ProviderID, &s.ZoneID, &price, &dur); err != nil {
			return nil, err
		}
		if price.Valid {
			v := price.Float64
			s.Price = &v
		}
		if dur.Valid {
			v := int(dur.Int64)
			s.DurationMin = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Zones

const zoneColumns = `id::text, tenant_id, COALESCE(provider_id::text,''), name, kind, active, sort_order,
	postal_codes, cities, center_lat, center_lng, radius_km, ring, fixed_price, fixed_duration_min`

func (p *Postgres) queryZones(ctx context.Context, query string, args ...any) ([]model.Zone, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Zone{}
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanZone(row rowScanner) (model.Zone, error) {
	var z model.Zone
	var name sql.NullString
	var codes, cities, ring []byte
	var cLat, cLng, price sql.NullFloat64
	var durMin sql.NullInt64
	err := row.Scan(&z.ID, &z.TenantID, &z.ProviderID, &name, &z.Kind, &z.Active, &z.SortOrder,
		&codes, &cities, &cLat, &cLng, &z.RadiusKm, &ring, &price, &durMin)
	if err != nil {
		return model.Zone{}, err
	}
	z.Name = name.String
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &z.PostalCodes); err != nil {
			return model.Zone{}, fmt.Errorf("zone %s: malformed postal_codes: %w", z.ID, err)
		}
	}
	if len(cities) > 0 {
		if err := json.Unmarshal(cities, &z.Cities); err != nil {
			return model.Zone{}, fmt.Errorf("zone %s: malformed cities: %w", z.ID, err)
		}
	}
	if cLat.Valid && cLng.Valid {
		z.Center = &model.Coordinate{Lat: cLat.Float64, Lng: cLng.Float64}
	}
	if len(ring) > 0 {
		if err := json.Unmarshal(ring, &z.Ring); err != nil {
			return model.Zone{}, fmt.Errorf("zone %s: malformed ring: %w", z.ID, err)
		}
	}
	if price.Valid {
		v := price.Float64
		z.FixedPrice = &v
	}
	if durMin.Valid {
		z.FixedDurationMin = int(durMin.Int64)
	}
	return z, nil
}

func (p *Postgres) ListPlatformZones(ctx context.Context, tenantID string) ([]model.Zone, error) {
	return p.queryZones(ctx, `
		SELECT `+zoneColumns+` FROM zones
		WHERE tenant_id=$1 AND provider_id IS NULL AND active
		ORDER BY sort_order, created_at, id`, tenantID)
}

func (p *Postgres) CreateZone(ctx context.Context, tenantID, providerID string, in model.ZoneInput) (model.Zone, error) {
	z := model.Zone{ID: uuid.New().String(), TenantID: tenantID, ProviderID: providerID, Active: true}
	applyZoneInput(&z, in)
	var cLat, cLng any
	if z.Center != nil {
		cLat, cLng = z.Center.Lat, z.Center.Lng
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO zones (id, tenant_id, provider_id, name, kind, active, sort_order,
			postal_codes, cities, center_lat, center_lng, radius_km, ring, fixed_price, fixed_duration_min)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		z.ID, tenantID, nullIfEmpty(providerID), z.Name, z.Kind, z.Active, z.SortOrder,
		toJSON(z.PostalCodes), toJSON(z.Cities), cLat, cLng, z.RadiusKm, toJSON(z.Ring),
		z.FixedPrice, nullIfZero(z.FixedDurationMin))
	if err != nil {
		return model.Zone{}, err
	}
	return z, nil
}

func (p *Postgres) GetZone(ctx context.Context, tenantID, id string) (model.Zone, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+zoneColumns+` FROM zones WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Zone{}, ErrNotFound
	}
	return z, err
}

func (p *Postgres) ListZones(ctx context.Context, tenantID, cursor string, limit int) ([]model.Zone, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		zones []model.Zone
		err   error
	)
	if cursor != "" {
		zones, err = p.queryZones(ctx, `
			SELECT `+zoneColumns+` FROM zones
			WHERE tenant_id=$1 AND provider_id IS NULL AND id::text > $2
			ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		zones, err = p.queryZones(ctx, `
			SELECT `+zoneColumns+` FROM zones
			WHERE tenant_id=$1 AND provider_id IS NULL
			ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(zones) == limit {
		next = zones[len(zones)-1].ID
	}
	return zones, next, nil
}

func (p *Postgres) PatchZone(ctx context.Context, tenantID, id string, in model.ZoneInput) (model.Zone, error) {
	z, err := p.GetZone(ctx, tenantID, id)
	if err != nil {
		return model.Zone{}, err
	}
	applyZoneInput(&z, in)
	var cLat, cLng any
	if z.Center != nil {
		cLat, cLng = z.Center.Lat, z.Center.Lng
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE zones SET name=$3, kind=$4, active=$5, sort_order=$6, postal_codes=$7,
			cities=$8, center_lat=$9, center_lng=$10, radius_km=$11, ring=$12,
			fixed_price=$13, fixed_duration_min=$14
		WHERE tenant_id=$1 AND id::text=$2`,
		tenantID, id, z.Name, z.Kind, z.Active, z.SortOrder, toJSON(z.PostalCodes),
		toJSON(z.Cities), cLat, cLng, z.RadiusKm, toJSON(z.Ring),
		z.FixedPrice, nullIfZero(z.FixedDurationMin))
	if err != nil {
		return model.Zone{}, err
	}
	return z, nil
}

func (p *Postgres) DeleteZone(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM zones WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Bookings

func (p *Postgres) ListAtHomeBookings(ctx context.Context, tenantID, providerID, date, staffID string) ([]model.Booking, error) {
	query := `
		SELECT id::text, tenant_id, provider_id::text, COALESCE(staff_id::text,''), date, scheduled_at,
		       status, at_home, address, lat, lng
		FROM bookings
		WHERE tenant_id=$1 AND provider_id=$2 AND date=$3 AND at_home
		  AND status NOT IN ('cancelled','no_show')`
	args := []any{tenantID, providerID, date}
	if staffID != "" {
		query += ` AND staff_id=$4`
		args = append(args, staffID)
	}
	query += ` ORDER BY scheduled_at, id`
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		var scheduled time.Time
		var addr []byte
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ProviderID, &b.StaffID, &b.Date, &scheduled,
			&b.Status, &b.AtHome, &addr, &lat, &lng); err != nil {
			return nil, err
		}
		b.ScheduledAt = scheduled.UTC().Format(time.RFC3339)
		if len(addr) > 0 {
			if err := json.Unmarshal(addr, &b.Address); err != nil {
				return nil, fmt.Errorf("booking %s: malformed address: %w", b.ID, err)
			}
		}
		if lat.Valid && lng.Valid {
			b.Location = &model.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateBookingRouteInfo(ctx context.Context, tenantID string, info model.BookingRouteInfo) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET segment_id=$3, route_distance_km=$4, route_duration_min=$5,
			prev_booking_id=$6, next_booking_id=$7, route_travel_fee=$8
		WHERE tenant_id=$1 AND id::text=$2`,
		tenantID, info.BookingID, info.SegmentID, info.DistanceKm, info.DurationMinutes,
		nullIfEmpty(info.PrevBookingID), nullIfEmpty(info.NextBookingID), info.TravelFee)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Routes

const routeColumns = `id::text, tenant_id, provider_id::text, COALESCE(staff_id::text,''), date, status,
	start_lat, start_lng, end_lat, end_lng, total_distance_km, total_duration_min, optimized_at`

func scanRoute(row rowScanner) (model.Route, error) {
	var r model.Route
	var sLat, sLng, eLat, eLng sql.NullFloat64
	var optimizedAt sql.NullTime
	err := row.Scan(&r.ID, &r.TenantID, &r.ProviderID, &r.StaffID, &r.Date, &r.Status,
		&sLat, &sLng, &eLat, &eLng, &r.TotalDistanceKm, &r.TotalDurationMinutes, &optimizedAt)
	if err != nil {
		return model.Route{}, err
	}
	if sLat.Valid && sLng.Valid {
		r.StartLocation = &model.Coordinate{Lat: sLat.Float64, Lng: sLng.Float64}
	}
	if eLat.Valid && eLng.Valid {
		r.EndLocation = &model.Coordinate{Lat: eLat.Float64, Lng: eLng.Float64}
	}
	if optimizedAt.Valid {
		r.OptimizedAt = optimizedAt.Time.UTC().Format(time.RFC3339)
	}
	return r, nil
}

func (p *Postgres) GetRouteForDay(ctx context.Context, tenantID, providerID, date, staffID string) (model.Route, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+routeColumns+` FROM routes
		WHERE tenant_id=$1 AND provider_id::text=$2 AND date=$3 AND COALESCE(staff_id::text,'')=$4`,
		tenantID, providerID, date, staffID)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	return r, err
}

// SaveRoute upserts the route row and replaces its segments in one
// transaction, so concurrent readers never observe a partial segment set.
func (p *Postgres) SaveRoute(ctx context.Context, route model.Route, segments []model.RouteSegment) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var sLat, sLng, eLat, eLng any
	if route.StartLocation != nil {
		sLat, sLng = route.StartLocation.Lat, route.StartLocation.Lng
	}
	if route.EndLocation != nil {
		eLat, eLng = route.EndLocation.Lat, route.EndLocation.Lng
	}
	var optimizedAt any
	if route.OptimizedAt != "" {
		if t, err := time.Parse(time.RFC3339, route.OptimizedAt); err == nil {
			optimizedAt = t
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO routes (id, tenant_id, provider_id, staff_id, date, status,
			start_lat, start_lng, end_lat, end_lng, total_distance_km, total_duration_min, optimized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status,
			start_lat=EXCLUDED.start_lat, start_lng=EXCLUDED.start_lng,
			end_lat=EXCLUDED.end_lat, end_lng=EXCLUDED.end_lng,
			total_distance_km=EXCLUDED.total_distance_km,
			total_duration_min=EXCLUDED.total_duration_min,
			optimized_at=EXCLUDED.optimized_at`,
		route.ID, route.TenantID, route.ProviderID, nullIfEmpty(route.StaffID), route.Date, route.Status,
		sLat, sLng, eLat, eLng, route.TotalDistanceKm, route.TotalDurationMinutes, optimizedAt)
	if err != nil {
		return fmt.Errorf("save route %s: %w", route.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM route_segments WHERE route_id=$1`, route.ID); err != nil {
		return fmt.Errorf("clear segments for route %s: %w", route.ID, err)
	}
	for _, s := range segments {
		var from any
		if s.FromBookingID != nil {
			from = *s.FromBookingID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO route_segments (id, route_id, seq, from_booking_id, to_booking_id,
				distance_km, duration_min, fee_calculated, fee_charged,
				from_lat, from_lng, to_lat, to_lng)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			s.ID, s.RouteID, s.Order, from, s.ToBookingID,
			s.DistanceKm, s.DurationMinutes, s.TravelFeeCalculated, s.TravelFeeCharged,
			s.FromLocation.Lat, s.FromLocation.Lng, s.ToLocation.Lat, s.ToLocation.Lng)
		if err != nil {
			return fmt.Errorf("insert segment %d for route %s: %w", s.Order, route.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) GetRoute(ctx context.Context, tenantID, routeID string) (model.Route, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+routeColumns+` FROM routes WHERE tenant_id=$1 AND id::text=$2`, tenantID, routeID)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListRoutes(ctx context.Context, tenantID, cursor string, limit int) ([]model.Route, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+routeColumns+` FROM routes
			WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT `+routeColumns+` FROM routes
			WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) ListRouteSegments(ctx context.Context, tenantID, routeID string) ([]model.RouteSegment, error) {
	if _, err := p.GetRoute(ctx, tenantID, routeID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, route_id::text, seq, from_booking_id::text, to_booking_id::text,
		       distance_km, duration_min, fee_calculated, fee_charged,
		       from_lat, from_lng, to_lat, to_lng
		FROM route_segments WHERE route_id=$1 ORDER BY seq`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RouteSegment{}
	for rows.Next() {
		var s model.RouteSegment
		var from sql.NullString
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Order, &from, &s.ToBookingID,
			&s.DistanceKm, &s.DurationMinutes, &s.TravelFeeCalculated, &s.TravelFeeCharged,
			&s.FromLocation.Lat, &s.FromLocation.Lng, &s.ToLocation.Lat, &s.ToLocation.Lng); err != nil {
			return nil, err
		}
		if from.Valid {
			v := from.String
			s.FromBookingID = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Subscriptions

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		sub.ID, sub.TenantID, sub.URL, toJSON(sub.Events), sub.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	subs, _, err := p.ListSubscriptions(ctx, tenantID, "", 500)
	if err != nil {
		return nil, err
	}
	out := []model.Subscription{}
	for _, s := range subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id::text, tenant_id, url, events, secret FROM subscriptions
			WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id::text, tenant_id, url, events, secret FROM subscriptions
			WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
			return nil, "", err
		}
		if len(events) > 0 {
			if err := json.Unmarshal(events, &s.Events); err != nil {
				return nil, "", fmt.Errorf("subscription %s: malformed events: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status='pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1,
				last_error=$2, response_code=$3, latency_ms=$4, delivered_at=now()
			WHERE id::text=$1`, id, lastError, responseCode, latencyMs)
		return err
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=COALESCE($2, next_attempt_at),
			last_error=$3, response_code=$4, latency_ms=$5
		WHERE id::text=$1`, id, next, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='failed', attempts=attempts+1,
			last_error=$2, response_code=$3, latency_ms=$4
		WHERE id::text=$1`, id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id::text, event_type, url, status, attempts, COALESCE(last_error,''), COALESCE(response_code,0)
		FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		query += fmt.Sprintf(" AND id::text > $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	last := ""
	for rows.Next() {
		var id, eventType, url, st, lastErr string
		var attempts, code int
		if err := rows.Scan(&id, &eventType, &url, &st, &attempts, &lastErr, &code); err != nil {
			return nil, "", err
		}
		out = append(out, map[string]any{
			"id": id, "eventType": eventType, "url": url, "status": st,
			"attempts": attempts, "lastError": lastErr, "responseCode": code,
		})
		last = id
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='pending', next_attempt_at=now()
		WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// helpers

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func toJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
