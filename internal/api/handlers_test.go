package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"homeroute/internal/auth"
	"homeroute/internal/config"
	"homeroute/internal/geocode"
	"homeroute/internal/model"
	"homeroute/internal/routeopt"
	"homeroute/internal/store"
	"homeroute/internal/validation"
	"homeroute/internal/webhooks"
)

func newTestServer(t *testing.T) (*Server, *store.Memory, *geocode.Static) {
	t.Helper()
	m := store.NewMemory()
	g := geocode.NewStatic()
	cfg := config.Defaults()
	v, err := auth.NewFromEnv()
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	s := &Server{
		Cfg:       cfg,
		Store:     m,
		Pub:       webhooks.NewPublisher(m),
		Auth:      v,
		Broker:    NewBroker(),
		Quotes:    validation.New(m, g, cfg.DefaultFeeRules),
		Optimizer: routeopt.New(m, cfg.DefaultFeeRules, cfg.AverageSpeedKmh),
	}
	return s, m, g
}

func seedProvider(m *store.Memory) {
	m.SeedProvider(
		model.Provider{ID: "p1", TenantID: "t1", Name: "Glow Mobile", Slug: "glow-mobile", Active: true, OffersAtHome: true},
		model.ProviderLocation{ID: "l1", ProviderID: "p1", Active: true, Primary: true, Location: &model.Coordinate{Lat: 0, Lng: 0}},
	)
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t1")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestQuotesHandler(t *testing.T) {
	s, m, g := newTestServer(t)
	seedProvider(m)
	g.Add("12 Harbour Rd", geocode.Result{Location: model.Coordinate{Lat: 0, Lng: 8.0 / 111.195}})

	rr := doJSON(t, s.QuotesHandler, http.MethodPost, "/v1/quotes/validate-address",
		map[string]string{"address": "12 Harbour Rd", "provider": "glow-mobile"}, nil)
	if rr.Code != 200 {
		t.Fatalf("quote: %d %s", rr.Code, rr.Body.String())
	}
	var res model.QuoteResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.TravelFee < 39 || res.TravelFee > 41 {
		t.Fatalf("result = %+v", res)
	}

	// Unknown address is an outcome, not an error.
	rr = doJSON(t, s.QuotesHandler, http.MethodPost, "/v1/quotes/validate-address",
		map[string]string{"address": "nowhere", "provider": "glow-mobile"}, nil)
	if rr.Code != 200 {
		t.Fatalf("quote unknown address: %d", rr.Code)
	}
	res = model.QuoteResult{}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Valid || res.Code != model.CodeAddressNotFound {
		t.Fatalf("result = %+v", res)
	}

	// Unknown provider is a 404.
	rr = doJSON(t, s.QuotesHandler, http.MethodPost, "/v1/quotes/validate-address",
		map[string]string{"address": "12 Harbour Rd", "provider": "ghost"}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("quote unknown provider: %d", rr.Code)
	}

	// Missing fields are a 400.
	rr = doJSON(t, s.QuotesHandler, http.MethodPost, "/v1/quotes/validate-address",
		map[string]string{"address": "12 Harbour Rd"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("quote missing provider: %d", rr.Code)
	}
}

func seedBookingsForDay(m *store.Memory) {
	at8 := model.Coordinate{Lat: 0, Lng: 8.0 / 111.195}
	at12 := model.Coordinate{Lat: 0, Lng: 12.0 / 111.195}
	m.SeedBooking(model.Booking{ID: "b1", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T09:00:00Z", Status: "confirmed", AtHome: true, Location: &at8})
	m.SeedBooking(model.Booking{ID: "b2", TenantID: "t1", ProviderID: "p1", Date: "2026-09-01", ScheduledAt: "2026-09-01T11:00:00Z", Status: "confirmed", AtHome: true, Location: &at12})
}

func TestOptimizeAndRouteHandlers(t *testing.T) {
	s, m, _ := newTestServer(t)
	seedProvider(m)
	seedBookingsForDay(m)

	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "2026-09-01"}, nil)
	if rr.Code != 200 {
		t.Fatalf("optimize: %d %s", rr.Code, rr.Body.String())
	}
	var res model.OptimizeResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.SegmentsCreated != 2 {
		t.Fatalf("segments = %d", res.SegmentsCreated)
	}

	// List routes.
	req := httptest.NewRequest(http.MethodGet, "/v1/routes", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.RoutesIndexHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), res.RouteID) {
		t.Fatalf("routes index: %d %s", rr.Code, rr.Body.String())
	}

	// Get the route with its segments.
	req = httptest.NewRequest(http.MethodGet, "/v1/routes/"+res.RouteID, nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.RouteByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("route get: %d", rr.Code)
	}
	var detail struct {
		Route    model.Route          `json:"route"`
		Segments []model.RouteSegment `json:"segments"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Route.Status != model.RouteOptimized || len(detail.Segments) != 2 {
		t.Fatalf("detail = %+v", detail)
	}

	// Savings endpoint agrees with the optimize response.
	req = httptest.NewRequest(http.MethodGet, "/v1/routes/"+res.RouteID+"/savings", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.RouteByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("savings: %d", rr.Code)
	}
	var sv model.Savings
	if err := json.Unmarshal(rr.Body.Bytes(), &sv); err != nil {
		t.Fatal(err)
	}
	if sv.ChainedTotal != res.Savings.ChainedTotal {
		t.Fatalf("savings mismatch: %+v vs %+v", sv, res.Savings)
	}

	// Unknown route is a 404.
	req = httptest.NewRequest(http.MethodGet, "/v1/routes/nope", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.RouteByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("route get missing: %d", rr.Code)
	}
}

func TestOptimizeRBAC(t *testing.T) {
	s, m, _ := newTestServer(t)
	seedProvider(m)

	// Customers cannot optimize.
	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "2026-09-01"}, map[string]string{"X-Role": "customer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer optimize: %d", rr.Code)
	}

	// A provider can optimize its own routes but not another's.
	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "2026-09-01"}, map[string]string{"X-Role": "provider", "X-Provider-Id": "p1"})
	if rr.Code != 200 {
		t.Fatalf("own provider optimize: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "2026-09-01"}, map[string]string{"X-Role": "provider", "X-Provider-Id": "p2"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("other provider optimize: %d", rr.Code)
	}

	// Bad date format is a 400.
	rr = doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "01-09-2026"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", rr.Code)
	}
}

func TestZonesCRUD(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := doJSON(t, s.ZonesHandler, http.MethodPost, "/v1/zones",
		model.ZoneInput{Name: "North", Kind: model.ZoneRadius, Center: &model.Coordinate{Lat: 0, Lng: 0}, RadiusKm: 10}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create zone: %d %s", rr.Code, rr.Body.String())
	}
	var z model.Zone
	if err := json.Unmarshal(rr.Body.Bytes(), &z); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.ZonesHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), z.ID) {
		t.Fatalf("list zones: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s.ZoneByIDHandler, http.MethodPatch, "/v1/zones/"+z.ID,
		model.ZoneInput{Name: "North Capped"}, nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "North Capped") {
		t.Fatalf("patch zone: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/zones/"+z.ID, nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.ZoneByIDHandler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete zone: %d", rr.Code)
	}

	// Invalid kind rejected.
	rr = doJSON(t, s.ZonesHandler, http.MethodPost, "/v1/zones",
		model.ZoneInput{Name: "Odd", Kind: "hexagon"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: %d", rr.Code)
	}

	// Customers cannot touch zones.
	rr = doJSON(t, s.ZonesHandler, http.MethodPost, "/v1/zones",
		model.ZoneInput{Name: "X", Kind: model.ZoneCity, Cities: []string{"a"}}, map[string]string{"X-Role": "customer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("customer create zone: %d", rr.Code)
	}
}

func TestSubscriptionsAndDeliveriesAdmin(t *testing.T) {
	s, m, g := newTestServer(t)
	seedProvider(m)
	g.Add("12 Harbour Rd", geocode.Result{Location: model.Coordinate{Lat: 0, Lng: 8.0 / 111.195}})

	rr := doJSON(t, s.SubscriptionsHandler, http.MethodPost, "/v1/subscriptions",
		model.SubscriptionRequest{URL: "https://example.com/hook", Events: []string{"quote.completed"}}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatal(err)
	}

	// A quote emits a delivery for the subscriber.
	rr = doJSON(t, s.QuotesHandler, http.MethodPost, "/v1/quotes/validate-address",
		map[string]string{"address": "12 Harbour Rd", "provider": "p1"}, nil)
	if rr.Code != 200 {
		t.Fatalf("quote: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "quote.completed") {
		t.Fatalf("deliveries: %d %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil)
	req.Header.Set("X-Tenant-Id", "t1")
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete sub: %d", rr.Code)
	}

	// Non-admins are rejected.
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	req.Header.Set("X-Role", "provider")
	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("provider deliveries: %d", rr.Code)
	}
}

func TestRouteEventsWebsocket(t *testing.T) {
	s, m, _ := newTestServer(t)
	seedProvider(m)
	seedBookingsForDay(m)

	rr := doJSON(t, s.OptimizeHandler, http.MethodPost, "/v1/routes/optimize",
		model.OptimizeRequest{ProviderID: "p1", Date: "2026-09-01"}, nil)
	if rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}
	var res model.OptimizeResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(s.RouteByIDHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/routes/" + res.RouteID + "/events/ws"
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t1")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server's subscribe a moment, then publish.
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(res.RouteID, Event{Type: "route.optimized", Data: map[string]any{"routeId": res.RouteID}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != "route.optimized" {
		t.Fatalf("event = %+v", evt)
	}
}
