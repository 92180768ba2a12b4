package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"homeroute/internal/auth"
	"homeroute/internal/config"
	"homeroute/internal/geocode"
	"homeroute/internal/routeopt"
	"homeroute/internal/store"
	"homeroute/internal/validation"
	"homeroute/internal/webhooks"
)

type Server struct {
	Cfg       config.Config
	Store     store.Store
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Broker    EventBroker
	Quotes    *validation.Service
	Optimizer *routeopt.Optimizer
}

// NewServer wires the service from environment and config file. With no
// DATABASE_URL it runs on the in-memory store; with no REDIS_URL events
// stay process-local and geocode results are uncached.
func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var st store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = pg.MigrateDir("db/migrations")
		}
		st = pg
	}

	var broker EventBroker
	var geoCache geocode.Cache = geocode.NopCache{}
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
		if opt, err := redis.ParseURL(os.Getenv("REDIS_URL")); err == nil {
			geoCache = geocode.NewRedisCache(redis.NewClient(opt))
		}
	} else {
		broker = NewBroker()
	}

	verifier, err := auth.NewFromEnv()
	if err != nil {
		return nil, err
	}

	geocoder := geocode.NewNominatim(cfg.GeocoderBaseURL, cfg.GeocoderRPS, geoCache)

	return &Server{
		Cfg:       cfg,
		Store:     st,
		Pub:       webhooks.NewPublisher(st),
		Auth:      verifier,
		Broker:    broker,
		Quotes:    validation.New(st, geocoder, cfg.DefaultFeeRules),
		Optimizer: routeopt.New(st, cfg.DefaultFeeRules, cfg.AverageSpeedKmh),
	}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
