package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	GRPC    GRPCConfig
	Worker  WorkerConfig
	DB      DatabaseConfig
	Index   IndexConfig
	Routing RoutingConfig
	Scoring ScoringConfig
	Logging LoggingConfig
}

type GRPCConfig struct {
	Port int
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "pgx"
	Path   string
	URL    string
}

type IndexConfig struct {
	RefreshInterval time.Duration
	StoreTimeout    time.Duration
	MaxStaleness    time.Duration
	IncludePending  bool
	PendingWeight   float64
	DegradeNeutral  bool
	CellDegrees     float64
}

type RoutingConfig struct {
	OSRMURL  string
	Profile  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type ScoringConfig struct {
	BufferMeters     float64
	ZoneSampleMeters float64
	ZoneThreshold    float64
	ZoneMergeMeters  float64
	DetourPenalty    float64
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 5),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 50051),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		DB: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/saferoute.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Index: IndexConfig{
			RefreshInterval: getEnvDuration("INDEX_REFRESH_INTERVAL", time.Minute),
			StoreTimeout:    getEnvDuration("INDEX_STORE_TIMEOUT", 5*time.Second),
			MaxStaleness:    getEnvDuration("INDEX_MAX_STALENESS", 15*time.Minute),
			IncludePending:  getEnvBool("INDEX_INCLUDE_PENDING", false),
			PendingWeight:   getEnvFloat("INDEX_PENDING_WEIGHT", 0.5),
			DegradeNeutral:  getEnvBool("INDEX_DEGRADE_NEUTRAL", false),
			CellDegrees:     getEnvFloat("INDEX_CELL_DEGREES", 0.01),
		},
		Routing: RoutingConfig{
			OSRMURL:  getEnv("OSRM_URL", "https://router.project-osrm.org"),
			Profile:  getEnv("OSRM_PROFILE", "driving"),
			Timeout:  getEnvDuration("ROUTING_TIMEOUT", 10*time.Second),
			CacheTTL: getEnvDuration("ROUTING_CACHE_TTL", 5*time.Minute),
		},
		Scoring: ScoringConfig{
			BufferMeters:     getEnvFloat("SCORING_BUFFER_METERS", 100),
			ZoneSampleMeters: getEnvFloat("SCORING_ZONE_SAMPLE_METERS", 25),
			ZoneThreshold:    getEnvFloat("SCORING_ZONE_THRESHOLD", 1.0),
			ZoneMergeMeters:  getEnvFloat("SCORING_ZONE_MERGE_METERS", 100),
			DetourPenalty:    getEnvFloat("SCORING_DETOUR_PENALTY", 1.0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "pgx":
		if c.DB.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the pgx driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.DB.Driver)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size must not be negative")
	}

	if c.Index.RefreshInterval < time.Second {
		return fmt.Errorf("index refresh interval must be at least 1 second")
	}
	if c.Index.StoreTimeout <= 0 {
		return fmt.Errorf("index store timeout must be positive")
	}
	if c.Index.PendingWeight <= 0 || c.Index.PendingWeight > 1 {
		return fmt.Errorf("pending weight must be in (0, 1], got %v", c.Index.PendingWeight)
	}
	if c.Index.CellDegrees <= 0 {
		return fmt.Errorf("index cell size must be positive")
	}

	if c.Routing.OSRMURL == "" {
		return fmt.Errorf("OSRM_URL is required")
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("routing timeout must be positive")
	}

	if c.Scoring.BufferMeters <= 0 {
		return fmt.Errorf("scoring buffer must be positive")
	}
	if c.Scoring.ZoneSampleMeters <= 0 || c.Scoring.ZoneSampleMeters > c.Scoring.BufferMeters {
		return fmt.Errorf("zone sample spacing must be in (0, %v]", c.Scoring.BufferMeters)
	}
	if c.Scoring.ZoneThreshold <= 0 {
		return fmt.Errorf("zone threshold must be positive")
	}
	if c.Scoring.ZoneMergeMeters < 0 || c.Scoring.DetourPenalty < 0 {
		return fmt.Errorf("zone merge gap and detour penalty must not be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
