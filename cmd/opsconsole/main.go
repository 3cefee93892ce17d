// Package main is the entry point for the operations console service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opsconsole/internal/api"
	"opsconsole/internal/blackpoint"
	"opsconsole/internal/config"
	"opsconsole/internal/correlate"
	"opsconsole/internal/cove"
	"opsconsole/internal/dnsfilter"
	"opsconsole/internal/feed"
	"opsconsole/internal/metrics"
	"opsconsole/internal/notify"
	"opsconsole/internal/psa"
	"opsconsole/internal/schema"
	"opsconsole/internal/sentinelone"
	"opsconsole/internal/state"
	"opsconsole/internal/storage"
	"opsconsole/internal/uptimerobot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"state_backend", cfg.State.Backend,
		"audit_enabled", cfg.Audit.Enabled,
		"notify_enabled", cfg.Notify.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alert state store
	var store state.Store
	var redisStore *state.RedisStore
	switch cfg.State.Backend {
	case "redis":
		redisStore, err = state.NewRedisStore(state.RedisConfig{
			Addr:         cfg.State.Redis.Addr,
			Password:     cfg.State.Redis.Password,
			DB:           cfg.State.Redis.DB,
			KeyPrefix:    cfg.State.Redis.KeyPrefix,
			DialTimeout:  cfg.State.Redis.DialTimeout,
			ReadTimeout:  cfg.State.Redis.ReadTimeout,
			WriteTimeout: cfg.State.Redis.WriteTimeout,
			PoolSize:     cfg.State.Redis.PoolSize,
			TLSEnabled:   cfg.State.Redis.TLSEnabled,
		})
		if err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		store = redisStore
	default:
		slog.Warn("using in-memory state store, operator state will not survive restarts")
		store = state.NewMemoryStore()
	}

	// Vendor sources
	sources, mitigators, ttls := buildSources(cfg)

	// Correlation policy
	pairs := make([]correlate.Pair, 0, len(cfg.Correlation.Pairs))
	for _, p := range cfg.Correlation.Pairs {
		pairs = append(pairs, correlate.Pair{
			Lead:    schema.Source(p.Lead),
			Context: schema.Source(p.Context),
		})
	}
	engine := correlate.New(correlate.Config{
		Window: cfg.Correlation.Window,
		Pairs:  pairs,
	})

	// Ticketing
	var tickets *psa.Correlator
	if cfg.PSA.BaseURL != "" && cfg.PSA.APIKey != "" {
		psaClient := psa.NewClient(psa.ClientConfig{
			BaseURL: cfg.PSA.BaseURL,
			APIKey:  cfg.PSA.APIKey,
			Timeout: cfg.PSA.Timeout,
		})
		tickets = psa.NewCorrelator(psaClient, cfg.PSA.DefaultBoard, logger).
			WithMaxSummary(cfg.PSA.MaxSummaryLength)
	} else {
		slog.Warn("psa integration not configured, ticket operations disabled")
	}

	// Audit trail
	var chClient *storage.ClickHouseClient
	var auditWriter *storage.AuditWriter
	if cfg.Audit.Enabled {
		chClient, err = storage.NewClickHouseClient(storage.ClickHouseConfig{
			Hosts:           cfg.Audit.ClickHouse.Hosts,
			Database:        cfg.Audit.ClickHouse.Database,
			Username:        cfg.Audit.ClickHouse.Username,
			Password:        cfg.Audit.ClickHouse.Password,
			MaxOpenConns:    cfg.Audit.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ClickHouse.ConnMaxLifetime,
			TLSEnabled:      cfg.Audit.ClickHouse.TLSEnabled,
			DialTimeout:     cfg.Audit.ClickHouse.DialTimeout,
		})
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		if err := chClient.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare audit schema", "error", err)
			os.Exit(1)
		}
		auditWriter = storage.NewAuditWriter(chClient, storage.AuditWriterConfig{
			BatchSize:     cfg.Audit.Batch.BatchSize,
			FlushInterval: cfg.Audit.Batch.FlushInterval,
			MaxRetries:    cfg.Audit.Batch.MaxRetries,
			RetryDelay:    cfg.Audit.Batch.RetryDelay,
		})
		slog.Info("audit trail initialized", "hosts", cfg.Audit.ClickHouse.Hosts)
	}

	// Action event publisher
	var publisher *notify.Publisher
	if cfg.Notify.Enabled {
		publisher, err = notify.NewPublisher(notify.Config{
			Brokers:      cfg.Notify.Brokers,
			Topic:        cfg.Notify.Topic,
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			MaxAttempts:  3,
		}, logger)
		if err != nil {
			slog.Error("failed to initialize action publisher", "error", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	consoleMetrics := metrics.New(registry)

	opts := feed.Options{
		Sources:    sources,
		Mitigators: mitigators,
		Engine:     engine,
		Store:      store,
		Tickets:    tickets,
		Cache:      feed.NewCache(time.Minute, ttls),
		Metrics:    consoleMetrics,
		Logger:     logger,
	}
	if auditWriter != nil {
		opts.Audit = auditWriter
	}
	if publisher != nil {
		opts.Events = publisher
	}
	facade := feed.New(opts)

	handler := api.NewHandler(facade, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.Routes(handler, registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting console server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	cancel()

	if auditWriter != nil {
		if err := auditWriter.Close(); err != nil {
			slog.Error("audit writer close error", "error", err)
		}
	}
	if chClient != nil {
		if err := chClient.Close(); err != nil {
			slog.Error("clickhouse close error", "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			slog.Error("publisher close error", "error", err)
		}
	}
	if redisStore != nil {
		if err := redisStore.CloseConn(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

// buildSources wires every vendor integration, configured or not, so the
// feed can report "not connected" states for the missing ones.
func buildSources(cfg *config.Config) ([]feed.Source, map[schema.Source]feed.Mitigator, map[schema.Source]time.Duration) {
	v := cfg.Vendors

	s1 := sentinelone.NewSource(sentinelone.NewClient(sentinelone.ClientConfig{
		BaseURL:  v.SentinelOne.BaseURL,
		APIToken: v.SentinelOne.APIKey,
		Timeout:  v.SentinelOne.Timeout,
	}), v.SentinelOne.Configured())

	bp := blackpoint.NewSource(blackpoint.NewClient(blackpoint.ClientConfig{
		BaseURL: v.Blackpoint.BaseURL,
		APIKey:  v.Blackpoint.APIKey,
		Timeout: v.Blackpoint.Timeout,
	}), v.Blackpoint.Configured())

	ur := uptimerobot.NewSource(uptimerobot.NewClient(uptimerobot.ClientConfig{
		BaseURL: v.UptimeRobot.BaseURL,
		APIKey:  v.UptimeRobot.APIKey,
		Timeout: v.UptimeRobot.Timeout,
	}), v.UptimeRobot.Configured())

	cv := cove.NewSource(cove.NewClient(cove.ClientConfig{
		BaseURL: v.Cove.BaseURL,
		APIKey:  v.Cove.APIKey,
		Timeout: v.Cove.Timeout,
	}), v.Cove.Configured())

	dns := dnsfilter.NewSource(dnsfilter.NewClient(dnsfilter.ClientConfig{
		BaseURL: v.DNSFilter.BaseURL,
		APIKey:  v.DNSFilter.APIKey,
		Timeout: v.DNSFilter.Timeout,
	}), v.DNSFilter.Configured())

	sources := []feed.Source{s1, bp, ur, cv, dns}

	mitigators := map[schema.Source]feed.Mitigator{
		schema.SourceSentinelOne: s1,
	}

	ttls := map[schema.Source]time.Duration{
		schema.SourceSentinelOne: v.SentinelOne.CacheTTL,
		schema.SourceBlackpoint:  v.Blackpoint.CacheTTL,
		schema.SourceUptimeRobot: v.UptimeRobot.CacheTTL,
		schema.SourceCove:        v.Cove.CacheTTL,
		schema.SourceDNSFilter:   v.DNSFilter.CacheTTL,
	}

	return sources, mitigators, ttls
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
