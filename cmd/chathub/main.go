// Command chathub runs the Session & Connection Hub (§4.H): WebSocket
// accept/auth, room/DM fan-out, backed by the Advanced Rate Limiter
// (§4.E), Moderation Engine (§4.F), Tiered Message Store (§4.G) and
// Social Graph (§4.I). Boot sequence and shutdown handling follow the
// teacher's single-binary main, generalized to this process's own
// dependency set.
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
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/okinrev/veza/internal/auth"
	"github.com/okinrev/veza/internal/chat/hub"
	"github.com/okinrev/veza/internal/chat/moderation"
	"github.com/okinrev/veza/internal/chat/ratelimit"
	"github.com/okinrev/veza/internal/chat/social"
	"github.com/okinrev/veza/internal/chat/store"
	"github.com/okinrev/veza/internal/config"
	"github.com/okinrev/veza/internal/errs"
	"github.com/okinrev/veza/internal/eventbus"
	"github.com/okinrev/veza/internal/httpapi"
	"github.com/okinrev/veza/internal/logging"
	"github.com/okinrev/veza/internal/metrics"
	"github.com/okinrev/veza/internal/sysload"
)

const serviceName = "chathub"

// defaultRooms seeds the statically-known room set §4.H's RoomExists
// checks against; a production deployment would instead load this
// from the room membership table's distinct room_id values.
var defaultRooms = []string{"general", "dev", "random"}

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

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.CacheURL)})
	defer rdb.Close()

	bus, err := eventbus.NewClient(eventbus.DefaultConfig(cfg.NatsURL), reg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to event bus")
	}
	defer bus.Close()

	msgStore := store.New(store.Config{
		L1CacheSize:          cfg.L1CacheSize,
		L1CacheTTL:           cfg.L1CacheTTL,
		L2CacheTTL:           cfg.L2CacheTTL,
		CacheTimeout:         cfg.CacheTimeout,
		CompressionEnabled:   cfg.CompressionEnabled,
		CompressionThreshold: cfg.CompressionThreshold,
		BatchSize:            cfg.BatchSize,
		BatchFlushInterval:   cfg.BatchFlushInterval,
		MaxPinsPerRoom:       cfg.MaxPinsPerRoom,
	}, rdb, db, reg, logger)

	if err := store.Migrate(ctx, msgStore); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.Budgets[ratelimit.LimitMessagesPerMinute] = ratelimit.Budget{
		Capacity: cfg.RateMessagesBurst, RefillRate: cfg.RateMessagesPerMinute / 60,
	}
	limiterCfg.Budgets[ratelimit.LimitConnectionsPerHour] = ratelimit.Budget{
		Capacity: cfg.RateConnectionsBurst, RefillRate: cfg.RateConnectionsPerHour / 3600,
	}
	limiterCfg.Budgets[ratelimit.LimitAuthAttemptsPerMin] = ratelimit.Budget{
		Capacity: cfg.RateAuthAttemptsBurst, RefillRate: cfg.RateAuthAttemptsPerMin / 60,
	}
	limiterCfg.Budgets[ratelimit.LimitAPIRequestsPerMin] = ratelimit.Budget{
		Capacity: cfg.RateAPIRequestsPerMin, RefillRate: cfg.RateAPIRequestsPerMin / 60,
	}
	limiterCfg.Budgets[ratelimit.LimitFileUploadsPerMin] = ratelimit.Budget{
		Capacity: cfg.RateFileUploadsPerMin, RefillRate: cfg.RateFileUploadsPerMin / 60,
	}
	limiterCfg.AutoBlacklistDuration = cfg.AutoBlacklistDuration
	limiterCfg.IPSuspiciousViolations = cfg.IPSuspiciousViolations
	limiterCfg.IPBlacklistViolations = cfg.IPBlacklistViolations
	limiterCfg.AttackWindow = cfg.AttackWindow
	limiterCfg.DDoSEventThreshold = cfg.DDoSEventThreshold
	limiterCfg.BruteForceEventThresh = cfg.BruteForceEventThresh
	limiterCfg.BotEventThreshold = cfg.BotEventThreshold
	limiterCfg.InactiveReapTime = cfg.LimiterInactiveReapTime
	limiter := ratelimit.New(limiterCfg, bus, reg)

	connGuard := ratelimit.NewConnectionGuard(ratelimit.ConnectionGuardConfig{
		IPBurst: cfg.ConnGuardIPBurst, IPRate: cfg.ConnGuardIPRate, IPTTL: cfg.ConnGuardIPTTL,
		GlobalBurst: cfg.ConnGuardGlobalBurst, GlobalRate: cfg.ConnGuardGlobalRate,
	})

	modCfg := moderation.DefaultConfig()
	modCfg.ProfileRetention = cfg.ProfileRetentionDuration
	modCfg.SpamThreshold = cfg.SpamThreshold
	modCfg.ToxicityThreshold = cfg.ToxicityThreshold
	modCfg.InappropriateThreshold = cfg.InappropriateThreshold
	modCfg.FraudThreshold = cfg.FraudThreshold
	modCfg.AbuseThreshold = cfg.AbuseThreshold
	modCfg.SuspicionThreshold = cfg.SuspicionThreshold
	moderator := moderation.New(modCfg, bus, reg, logger)

	socialGraph := social.New(social.Config{
		MaxFollowingPerUser: cfg.MaxFollowingPerUser,
		MaxCommentLength:    cfg.MaxCommentLength,
	}, db, bus)
	_ = socialGraph // wired for downstream REST/admin surfaces beyond this binary's own routes

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTokenTTL)

	sampler := sysload.NewSampler()
	guard := sysload.NewGuard(sampler, cfg.CPURejectThreshold, cfg.CPUPauseThreshold)

	chatHub := hub.New(hub.Deps{
		Store:       msgStore,
		RateLimiter: limiter,
		Moderator:   moderator,
		UserDir:     msgStore,
		Bus:         bus,
		Metrics:     reg,
		Logger:      logger,
		KnownRooms:  defaultRooms,
	})

	api := httpapi.New(httpapi.Deps{
		Store:     msgStore,
		Hub:       chatHub,
		Sampler:   sampler,
		Guard:     guard,
		Version:   "1.0.0",
		ServiceID: serviceName,
		Logger:    logger,
	})

	go msgStore.Run(ctx)
	go moderator.Run(ctx)
	go limiter.RunReaper(ctx, time.Minute)
	go sysloadSampleLoop(ctx, sampler, 5*time.Second)
	go connGuardSweepLoop(ctx, connGuard, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(chatHub, jwtManager, cfg.RequireAuth, connGuard, w, r)
	})
	mux.Handle("/", api.Handler())

	srv := &http.Server{Addr: cfg.WSBindAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.WSBindAddr).Msg("chathub listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown error")
	}
	if err := chatHub.Shutdown(shutdownCtx); err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.KindShutdownTimeout {
			logger.Warn().Msg("hub shutdown timed out, sessions forcibly dropped")
		}
	}
	logger.Info().Msg("chathub stopped")
}

func sysloadSampleLoop(ctx context.Context, s *sysload.Sampler, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sample()
		}
	}
}

func connGuardSweepLoop(ctx context.Context, g *ratelimit.ConnectionGuard, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			g.Sweep(now)
		}
	}
}

// redisAddr strips a redis:// scheme down to a host:port, accepting
// either form in CACHE_URL.
func redisAddr(url string) string {
	const prefix = "redis://"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		rest := url[len(prefix):]
		if i := indexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	return url
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
