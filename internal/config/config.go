// Package config loads process configuration from environment variables
// (and an optional .env file), the way both binaries in this repository
// boot. Every threshold named in the component designs has a struct
// field and a sane default here; nothing is hardcoded downstream.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is shared by both cmd/chathub and cmd/streamserver. A binary
// that doesn't need a section (e.g. streamserver ignores Moderation)
// simply never reads those fields; parsing them anyway keeps a single
// env surface across both processes, as the teacher's single-binary
// config does.
type Config struct {
	// Process basics
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// Network
	WSBindAddr   string `env:"WS_BIND_ADDR" envDefault:"127.0.0.1:9001"`
	HTTPBindAddr string `env:"HTTP_BIND_ADDR" envDefault:"127.0.0.1:9002"`

	// Upstreams
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/veza?sslmode=disable"`
	CacheURL    string `env:"CACHE_URL" envDefault:"redis://localhost:6379/0"`
	NatsURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// Auth
	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTTokenTTL    time.Duration `env:"JWT_TOKEN_TTL" envDefault:"24h"`
	RequireAuth    bool          `env:"REQUIRE_AUTH" envDefault:"true"`

	// Resource guard (§5, sysload)
	CPURejectThreshold float64 `env:"CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64 `env:"CPU_PAUSE_THRESHOLD" envDefault:"80.0"`
	MaxConnections     int     `env:"MAX_CONNECTIONS" envDefault:"5000"`

	// §4.E Rate Limiter
	RateMessagesPerMinute   float64       `env:"RATE_MESSAGES_PER_MINUTE" envDefault:"60"`
	RateMessagesBurst       float64       `env:"RATE_MESSAGES_BURST" envDefault:"10"`
	RateConnectionsPerHour  float64       `env:"RATE_CONNECTIONS_PER_HOUR" envDefault:"120"`
	RateConnectionsBurst    float64       `env:"RATE_CONNECTIONS_BURST" envDefault:"5"`
	RateAuthAttemptsPerMin  float64       `env:"RATE_AUTH_ATTEMPTS_PER_MIN" envDefault:"5"`
	RateAuthAttemptsBurst   float64       `env:"RATE_AUTH_ATTEMPTS_BURST" envDefault:"2"`
	RateAPIRequestsPerMin   float64       `env:"RATE_API_REQUESTS_PER_MIN" envDefault:"1000"`
	RateFileUploadsPerMin   float64       `env:"RATE_FILE_UPLOADS_PER_MIN" envDefault:"10"`
	AutoBlacklistDuration   time.Duration `env:"AUTO_BLACKLIST_DURATION" envDefault:"15m"`
	IPSuspiciousViolations  int           `env:"IP_SUSPICIOUS_VIOLATIONS" envDefault:"5"`
	IPBlacklistViolations   int           `env:"IP_BLACKLIST_VIOLATIONS" envDefault:"10"`
	AttackWindow            time.Duration `env:"ATTACK_WINDOW" envDefault:"60s"`
	DDoSEventThreshold      int           `env:"DDOS_EVENT_THRESHOLD" envDefault:"100"`
	BruteForceEventThresh   int           `env:"BRUTE_FORCE_EVENT_THRESHOLD" envDefault:"10"`
	BotEventThreshold       int           `env:"BOT_EVENT_THRESHOLD" envDefault:"50"`
	LimiterInactiveReapTime time.Duration `env:"LIMITER_INACTIVE_REAP_TIME" envDefault:"1h"`

	// §4.F Moderation Engine
	ProfileRetentionDuration time.Duration `env:"PROFILE_RETENTION_DURATION" envDefault:"720h"`
	SpamThreshold            float64       `env:"SPAM_THRESHOLD" envDefault:"0.5"`
	ToxicityThreshold        float64       `env:"TOXICITY_THRESHOLD" envDefault:"0.3"`
	InappropriateThreshold   float64       `env:"INAPPROPRIATE_THRESHOLD" envDefault:"0.2"`
	FraudThreshold           float64       `env:"FRAUD_THRESHOLD" envDefault:"0.3"`
	AbuseThreshold           float64       `env:"ABUSE_THRESHOLD" envDefault:"0.4"`
	SuspicionThreshold       float64       `env:"SUSPICION_THRESHOLD" envDefault:"0.6"`

	// §4.G Message Store
	L1CacheSize         int           `env:"L1_CACHE_SIZE" envDefault:"10000"`
	L1CacheTTL          time.Duration `env:"L1_CACHE_TTL" envDefault:"10m"`
	L2CacheTTL          time.Duration `env:"L2_CACHE_TTL" envDefault:"1h"`
	CacheTimeout         time.Duration `env:"CACHE_TIMEOUT" envDefault:"50ms"`
	CompressionEnabled  bool          `env:"COMPRESSION_ENABLED" envDefault:"true"`
	CompressionThreshold int          `env:"COMPRESSION_THRESHOLD" envDefault:"1024"`
	BatchSize           int           `env:"BATCH_SIZE" envDefault:"100"`
	BatchFlushInterval  time.Duration `env:"BATCH_FLUSH_INTERVAL" envDefault:"500ms"`
	MaxPinsPerRoom      int           `env:"MAX_PINS_PER_ROOM" envDefault:"10"`
	MaxMessageLength    int           `env:"MAX_MESSAGE_LENGTH" envDefault:"4000"`

	// §4.B/C/D Stream Core
	MaxConcurrentStreams int           `env:"MAX_CONCURRENT_STREAMS" envDefault:"1000"`
	MaxListenersTotal    int           `env:"MAX_LISTENERS_TOTAL" envDefault:"10000"`
	ChunkPoolSize        int           `env:"CHUNK_POOL_SIZE" envDefault:"2048"`
	BufferAdaptationSpeed float64      `env:"BUFFER_ADAPTATION_SPEED" envDefault:"0.1"`
	MeasurementWindow    int           `env:"MEASUREMENT_WINDOW" envDefault:"20"`

	// §4.J Discovery Engine
	MaxRecommendationsPerRequest int           `env:"MAX_RECOMMENDATIONS_PER_REQUEST" envDefault:"50"`
	TrendingDecayFactor          float64       `env:"TRENDING_DECAY_FACTOR" envDefault:"0.95"`
	TrendingUpdateInterval       time.Duration `env:"TRENDING_UPDATE_INTERVAL" envDefault:"5m"`
	TrendingMinPlays             int           `env:"TRENDING_MIN_PLAYS" envDefault:"100"`
	ChartRecomputeInterval       time.Duration `env:"CHART_RECOMPUTE_INTERVAL" envDefault:"1h"`
	MaxStationsPerUser           int           `env:"MAX_STATIONS_PER_USER" envDefault:"20"`
	RadioQueueSize               int           `env:"RADIO_QUEUE_SIZE" envDefault:"30"`
	RadioQueueLowWaterMark       int           `env:"RADIO_QUEUE_LOW_WATER_MARK" envDefault:"5"`

	// §4.I Social Graph
	MaxFollowingPerUser int `env:"MAX_FOLLOWING_PER_USER" envDefault:"7500"`
	MaxCommentLength    int `env:"MAX_COMMENT_LENGTH" envDefault:"1000"`

	// §4.K Analytics
	AnalyticsRetentionDays int `env:"ANALYTICS_RETENTION_DAYS" envDefault:"90"`

	// Metrics / monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Connection-level accept-rate guard (§5 backpressure policy)
	ConnGuardIPBurst     int           `env:"CONN_GUARD_IP_BURST" envDefault:"10"`
	ConnGuardIPRate      float64       `env:"CONN_GUARD_IP_RATE" envDefault:"1.0"`
	ConnGuardIPTTL       time.Duration `env:"CONN_GUARD_IP_TTL" envDefault:"5m"`
	ConnGuardGlobalBurst int           `env:"CONN_GUARD_GLOBAL_BURST" envDefault:"300"`
	ConnGuardGlobalRate  float64       `env:"CONN_GUARD_GLOBAL_RATE" envDefault:"50.0"`
}

// Load reads .env (if present), then environment variables, applying
// defaults and validating the result. logger may be nil.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate applies the range and logical checks named across the
// component designs (e.g. CPU pause threshold must not be below the
// reject threshold, pin limit must be positive).
func (c *Config) Validate() error {
	if c.WSBindAddr == "" {
		return fmt.Errorf("WS_BIND_ADDR is required")
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("CPU_PAUSE_THRESHOLD must be 0-100, got %.1f", c.CPUPauseThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("CPU_PAUSE_THRESHOLD (%.1f) must be >= CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}
	if c.MaxPinsPerRoom <= 0 {
		return fmt.Errorf("MAX_PINS_PER_ROOM must be > 0, got %d", c.MaxPinsPerRoom)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug,info,warn,error (got %q)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json,console (got %q)", c.LogFormat)
	}
	return nil
}
