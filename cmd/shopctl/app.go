package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/dnscache"

	"github.com/merchkit/shopfront/internal/api"
	"github.com/merchkit/shopfront/internal/config"
	"github.com/merchkit/shopfront/internal/notify"
	"github.com/merchkit/shopfront/internal/query"
	"github.com/merchkit/shopfront/internal/session"
	"github.com/merchkit/shopfront/internal/shop"
	"github.com/merchkit/shopfront/internal/sponsored"
	"github.com/merchkit/shopfront/internal/storage/sqlite"
	"github.com/merchkit/shopfront/internal/telemetry"
)

// app holds the wired client: explicit instances, constructed once and
// passed by reference, never package globals.
type app struct {
	cfg       *config.Config
	store     *sqlite.Store
	session   *session.Session
	cache     *query.Store
	shop      *shop.Service
	sponsored *sponsored.Client
	registry  *prometheus.Registry
	metrics   *telemetry.Metrics

	tracingShutdown func(context.Context) error
}

// newApp loads config, opens local storage, restores the session, and
// wires the dispatcher, cache, and endpoint layer.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return nil, err
		}
		a.tracingShutdown = shutdown
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = telemetry.NewMetrics(a.registry)

	a.store, err = sqlite.New(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	a.session = session.New(a.store)
	if err := a.session.Load(ctx); err != nil {
		a.store.Close()
		return nil, err
	}

	resolver := &dnscache.Resolver{}
	httpClient := &http.Client{
		Timeout: cfg.API.Timeout,
		Transport: &session.Transport{
			Session: a.session,
			Base:    api.NewTransport(resolver),
		},
	}

	notifier := notify.NewConsole(cfg.Notifications.Color, a.metrics)
	client := api.New(cfg.API.BaseURL, httpClient,
		api.WithMetrics(a.metrics),
		api.WithReporter(notify.Reporter(notifier)),
		api.WithLogoutHook(func(ctx context.Context) {
			_ = a.session.Clear(ctx)
		}),
	)

	a.cache, err = query.NewStore(query.Options{
		Retention:   cfg.Cache.Retention,
		GracePeriod: cfg.Cache.GracePeriod,
		MaxDetached: cfg.Cache.MaxDetached,
		Metrics:     a.metrics,
	})
	if err != nil {
		a.store.Close()
		return nil, err
	}

	a.shop = shop.New(client, a.cache, a.session)

	if cfg.API.SponsoredURL != "" {
		a.sponsored = sponsored.New(cfg.API.SponsoredURL, &http.Client{Timeout: 3 * time.Second})
	}

	return a, nil
}

// Close releases local resources.
func (a *app) Close() error {
	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tracingShutdown(ctx)
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
