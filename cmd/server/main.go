package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/shared-ride/internal/candidates"
	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/config"
	"github.com/example/shared-ride/internal/dispatch"
	"github.com/example/shared-ride/internal/geo"
	httpapi "github.com/example/shared-ride/internal/http"
	"github.com/example/shared-ride/internal/ingest"
	"github.com/example/shared-ride/internal/logging"
	"github.com/example/shared-ride/internal/matcher"
	"github.com/example/shared-ride/internal/opportunity"
	"github.com/example/shared-ride/internal/routing"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}

	var oracle routing.Oracle
	switch {
	case cfg.OSRMEndpoint != "":
		oracle = routing.NewOSRMClient(cfg.OSRMEndpoint)
		logger.Info("routing via osrm", "endpoint", cfg.OSRMEndpoint)
	case cfg.GoogleMapsAPIKey != "":
		g, err := routing.NewGoogleOracle(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.Error("google directions client", "error", err)
			os.Exit(1)
		}
		oracle = g
		logger.Info("routing via google directions")
	default:
		logger.Warn("no routing oracle configured, all paths are straight-line estimates")
	}
	pathCache := routing.NewCache(cfg.PathCacheTTL, clk)
	paths := routing.NewFinder(oracle, pathCache, cfg.RoutingTimeout, cfg.FallbackSpeedKmh, logger)

	var requests geo.GeoStore = geo.NewIndex()
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		requests = geo.NewRedisStore(rc, cfg.RedisRequestsKey)
	}

	var store opportunity.Store = opportunity.NewMemoryStore()
	if cfg.PGDSN != "" {
		ps, err := opportunity.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unreachable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if err := ps.Migrate(ctx); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("opportunity schema migrated")
		}
		store = ps
	}

	var publisher opportunity.Publisher
	var requestLog httpapi.RequestPublisher
	if len(cfg.KafkaBrokers) > 0 {
		events := ingest.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer events.Close()
		reqs := ingest.NewRequestPublisher(cfg.KafkaBrokers, cfg.KafkaRequestsTopic)
		defer reqs.Close()
		publisher, requestLog = events, reqs
	}

	ws := dispatch.NewWSRegistry()
	var push dispatch.Notifier
	if cfg.FirebaseProjectID != "" || cfg.FirebaseCredentialsFile != "" {
		fcm, err := dispatch.NewFCMNotifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("firebase messaging", "error", err)
			os.Exit(1)
		}
		push = fcm
	}
	limiter := dispatch.NewCooldownLimiter(clk)
	fanout := dispatch.NewFanOut(dispatch.NewPushDispatcher(ws, push, logger), limiter, cfg.NotifyCooldown, logger)

	opps := opportunity.NewManager(store, clk, opportunity.NewHub(), publisher, opportunity.Config{
		TTL:           cfg.OpportunityTTL,
		MaxPassengers: cfg.OpportunityMaxPassengers,
	}, logger)
	ranker := matcher.NewRanker(paths, cfg.MatchMinOverlap, cfg.FallbackSpeedKmh, logger)
	locator := candidates.NewLocator(requests, cfg.CandidateQueryLimit, logger)
	shares := matcher.NewService(paths, locator, ranker, opps, fanout, matcher.Config{
		RadiusKm:         cfg.MatchRadiusKm,
		MaxDetourPercent: cfg.MatchMaxDetour,
		NotifyOverlap:    cfg.MatchNotifyOverlap,
	}, logger)

	api := httpapi.NewServer(httpapi.Deps{
		Paths:         paths,
		Ranker:        ranker,
		Shares:        shares,
		Opportunities: opps,
		Requests:      requests,
		Publisher:     requestLog,
		WS:            ws,
		Clock:         clk,
		RadiusKm:      cfg.MatchRadiusKm,
		MaxDetour:     cfg.MatchMaxDetour,
		Logger:        logger,
	})

	go opps.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)
	go janitor(ctx, pathCache, limiter, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	go func() {
		logger.Info("shared-ride listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("shared-ride stopped")
}

// janitor drops expired path cache entries and notification cooldowns.
func janitor(ctx context.Context, cache *routing.Cache, limiter *dispatch.CooldownLimiter, logger *slog.Logger) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			paths, cooldowns := cache.Prune(), limiter.Prune()
			logger.Debug("janitor pass", "paths_pruned", paths, "cooldowns_pruned", cooldowns)
		}
	}
}
