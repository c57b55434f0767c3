// Command streamserver runs the Stream Core (§4.D), Discovery Engine
// (§4.J) and Analytics/Engagement (§4.K). Boot sequence mirrors
// cmd/chathub: config, logging, metrics, upstreams, then component
// wiring and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "go.uber.org/automaxprocs"

	"github.com/okinrev/veza/internal/analytics"
	"github.com/okinrev/veza/internal/auth"
	"github.com/okinrev/veza/internal/config"
	"github.com/okinrev/veza/internal/discovery"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/logging"
	"github.com/okinrev/veza/internal/metrics"
	"github.com/okinrev/veza/internal/stream/buffer"
	"github.com/okinrev/veza/internal/stream/core"
	"github.com/okinrev/veza/internal/stream/transport"
)

const serviceName = "streamserver"

func main() {
	logger := logging.New(serviceName, "info", "json")

	cfg, err := config.Load(&logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger = logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	bus, err := eventbus.NewClient(eventbus.DefaultConfig(cfg.NatsURL), reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to event bus")
	}
	defer bus.Close()

	catalog := discovery.NewCatalog(db)

	analyticsEngine := analytics.New(analytics.Config{RetentionDays: cfg.AnalyticsRetentionDays}, bus, logger)

	discoveryEngine := discovery.New(discovery.Deps{
		Config: discovery.Config{
			MaxRecommendationsPerRequest: cfg.MaxRecommendationsPerRequest,
			TrendingDecayFactor:          cfg.TrendingDecayFactor,
			TrendingUpdateInterval:       cfg.TrendingUpdateInterval,
			TrendingMinPlays:             cfg.TrendingMinPlays,
			ChartRecomputeInterval:       cfg.ChartRecomputeInterval,
			MaxStationsPerUser:           cfg.MaxStationsPerUser,
			RadioQueueSize:               cfg.RadioQueueSize,
			RadioQueueLowWaterMark:       cfg.RadioQueueLowWaterMark,
		},
		Collaborative: catalog,
		Content:       catalog,
		Feedback:      analyticsEngine.Feedback(),
		Bus:           bus,
		Metrics:       reg,
		Logger:        logger,
	})

	streamManager := core.New(core.Config{
		MaxConcurrentStreams:  cfg.MaxConcurrentStreams,
		MaxListenersTotal:     cfg.MaxListenersTotal,
		ChunkPoolSize:         cfg.ChunkPoolSize,
		BufferAdaptationSpeed: cfg.BufferAdaptationSpeed,
		MeasurementWindow:     cfg.MeasurementWindow,
	}, bus, reg, logger)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenTTL)

	srv := transport.New(transport.Deps{
		Manager:     streamManager,
		JWTManager:  jwtManager,
		RequireAuth: cfg.RequireAuth,
		BufferCfg: buffer.Config{
			MaxSize:                cfg.ChunkPoolSize,
			MinTargetSize:          4,
			MaxTargetSize:          64,
			AdaptationSpeed:        cfg.BufferAdaptationSpeed,
			EnableQualitySwitching: true,
		},
		Logger: logger,
	})

	go discoveryEngine.Run(ctx)
	go analyticsEngine.Run(ctx)

	httpSrv := &http.Server{Addr: cfg.HTTPBindAddr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPBindAddr).Msg("streamserver listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("listener failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown error")
	}
	if err := streamManager.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("stream manager shutdown error")
	}
	logger.Info().Msg("streamserver stopped")
}
