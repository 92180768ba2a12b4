package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homeroute/internal/fee"
	"homeroute/internal/geocode"
	"homeroute/internal/metrics"
	"homeroute/internal/model"
	"homeroute/internal/routeopt"
	"homeroute/internal/store"
	"homeroute/internal/validation"
	"homeroute/internal/webhooks"
)

// QuotesHandler handles POST /v1/quotes/validate-address
func (s *Server) QuotesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateQuoteRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid quote request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		_, req.TenantID = s.withTenant(r)
	}

	res, err := s.Quotes.Validate(r.Context(), req)
	if errors.Is(err, validation.ErrProviderNotFound) {
		writeProblem(w, http.StatusNotFound, "Provider not found", err.Error(), r.URL.Path)
		return
	}
	if errors.Is(err, geocode.ErrUnavailable) {
		writeProblem(w, http.StatusBadGateway, "Geocoder unavailable", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Quote failed", err.Error(), r.URL.Path)
		return
	}

	outcome := "valid"
	if !res.Valid {
		outcome = res.Code
	}
	metrics.QuoteOutcomes.WithLabelValues(outcome).Inc()
	s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventQuoteCompleted, map[string]any{
		"provider":  req.ProviderRef,
		"valid":     res.Valid,
		"code":      res.Code,
		"travelFee": res.TravelFee,
	})
	writeJSON(w, http.StatusOK, res)
}

// OptimizeHandler handles POST /v1/routes/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.canManageProvider(req.ProviderID) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin or the provider itself required", r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}

	start := time.Now()
	res, err := s.Optimizer.Optimize(r.Context(), req.TenantID, req.ProviderID, req.Date, req.StaffID)
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Provider not found", err.Error(), r.URL.Path)
		return
	}
	if errors.Is(err, routeopt.ErrProviderLocationMissing) {
		writeProblem(w, http.StatusConflict, "Provider has no located base", err.Error(), r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Optimize failed", err.Error(), r.URL.Path)
		return
	}

	data := map[string]any{
		"routeId":         res.RouteID,
		"date":            req.Date,
		"providerId":      req.ProviderID,
		"segmentsCreated": res.SegmentsCreated,
		"totalDistanceKm": res.TotalDistanceKm,
		"amountSaved":     res.Savings.AmountSaved,
	}
	s.Broker.Publish(res.RouteID, Event{Type: webhooks.EventRouteOptimized, Data: data})
	s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventRouteOptimized, data)
	writeJSON(w, http.StatusOK, res)
}

// RoutesIndexHandler handles GET /v1/routes
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRoutes(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RouteByIDHandler handles GET /v1/routes/{id}, /v1/routes/{id}/savings and
// the websocket stream at /v1/routes/{id}/events/ws.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "ws" {
		s.routeEventsWS(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "savings" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.routeSavings(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	route, err := s.Store.GetRoute(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Route not found", err.Error(), r.URL.Path)
		return
	}
	segs, err := s.Store.ListRouteSegments(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load segments failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route": route, "segments": segs})
}

func (s *Server) routeSavings(w http.ResponseWriter, r *http.Request, id string) {
	_, tenant := s.withTenant(r)
	route, err := s.Store.GetRoute(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Route not found", err.Error(), r.URL.Path)
		return
	}
	segs, err := s.Store.ListRouteSegments(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load segments failed", err.Error(), r.URL.Path)
		return
	}
	if route.StartLocation == nil || len(segs) == 0 {
		writeJSON(w, http.StatusOK, model.Savings{})
		return
	}
	rules := s.Cfg.DefaultFeeRules
	if provider, err := s.Store.GetProvider(r.Context(), tenant, route.ProviderID); err == nil {
		rules = fee.Resolve(provider.FeeRules, rules)
	}
	writeJSON(w, http.StatusOK, routeopt.ComputeSavings(*route.StartLocation, segs, rules))
}

// ZonesHandler handles POST/GET /v1/zones. Admins manage platform zones;
// providers manage their own legacy zones.
func (s *Server) ZonesHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.IsAdmin() && p.Role != "provider" {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin or provider required", r.URL.Path)
			return
		}
		var in model.ZoneInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateZoneInput(&in, true); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid zone", err.Error(), r.URL.Path)
			return
		}
		providerID := ""
		if !p.IsAdmin() {
			providerID = p.ProviderID
		}
		z, err := s.Store.CreateZone(r.Context(), p.Tenant, providerID, in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create zone failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, z)
	case http.MethodGet:
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListZones(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List zones failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ZoneByIDHandler handles GET/PATCH/DELETE /v1/zones/{id}
func (s *Server) ZoneByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/zones/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		z, err := s.Store.GetZone(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Zone not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Get zone failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, z)
	case http.MethodPatch:
		var in model.ZoneInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateZoneInput(&in, false); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid zone", err.Error(), r.URL.Path)
			return
		}
		z, err := s.Store.PatchZone(r.Context(), p.Tenant, id, in)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Zone not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Update zone failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, z)
	case http.MethodDelete:
		err := s.Store.DeleteZone(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Zone not found", "", r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Delete zone failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "retry" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, parts[0])
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz: verifies the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if pg, ok := s.Store.(*store.Postgres); ok {
		if err := pg.Ping(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
