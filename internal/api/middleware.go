package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"homeroute/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request counts and latency per route. Websocket
// upgrades bypass the recorder because hijacking needs the raw writer.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		route := metricRoute(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// metricRoute collapses ids so the label set stays bounded.
func metricRoute(path string) string {
	if path == "/v1/routes/optimize" {
		return path
	}
	for _, prefix := range []string{"/v1/routes/", "/v1/zones/", "/v1/subscriptions/", "/v1/admin/webhook-deliveries/"} {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return prefix + "{id}/" + rest[i+1:]
		}
		return prefix + "{id}"
	}
	return path
}
