package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RegionBounds is the rectangular acceptance region, inclusive on all edges
type RegionBounds struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// OGNConfig holds the APRS-IS session parameters
type OGNConfig struct {
	Server               string
	Port                 int
	Callsign             string
	Passcode             string
	Filter               string
	AppName              string
	AppVersion           string
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	KeepAliveInterval    time.Duration
	MaxReconnectAttempts int
}

// FilteringConfig holds the parse-time and traffic-filter policy
type FilteringConfig struct {
	AircraftTypes        []int
	Region               RegionBounds
	RateLimit            time.Duration
	MaxMessageAge        time.Duration
	CacheCleanupInterval time.Duration
	MaxCacheSize         int
}

// Config holds the application configuration
type Config struct {
	OGN       OGNConfig
	Filtering FilteringConfig

	NATSURL     string
	NATSSubject string

	RedisAddr   string // optional, disabled when empty
	DatabaseURL string // optional, disabled when empty
	ArchiveDir  string // optional raw feed archive, disabled when empty

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		OGN: OGNConfig{
			Server:               getEnv("OGN_APRS_SERVER", "aprs.glidernet.org"),
			Port:                 getEnvInt("OGN_APRS_PORT", 14580),
			Callsign:             getEnv("OGN_APRS_CALLSIGN", "OGN2FANET"),
			Passcode:             getEnv("OGN_APRS_PASSCODE", "-1"),
			Filter:               getEnv("OGN_APRS_FILTER", "r/46.5/10.5/300"),
			AppName:              "ogn2fanet",
			AppVersion:           "1.0.0",
			ConnectTimeout:       30 * time.Second,
			ReconnectInterval:    time.Duration(getEnvInt("RECONNECT_INTERVAL_SEC", 30)) * time.Second,
			KeepAliveInterval:    time.Duration(getEnvInt("KEEPALIVE_INTERVAL_MINUTES", 5)) * time.Minute,
			MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 10),
		},
		Filtering: FilteringConfig{
			Region: RegionBounds{
				LatMin: getEnvFloat("REGION_LAT_MIN", 44.0),
				LatMax: getEnvFloat("REGION_LAT_MAX", 48.0),
				LonMin: getEnvFloat("REGION_LON_MIN", 5.0),
				LonMax: getEnvFloat("REGION_LON_MAX", 17.0),
			},
			RateLimit:            time.Duration(getEnvInt("MESSAGE_RATE_LIMIT_SEC", 1)) * time.Second,
			MaxMessageAge:        time.Duration(getEnvInt("MAX_MESSAGE_AGE_MINUTES", 60)) * time.Minute,
			CacheCleanupInterval: time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 5)) * time.Minute,
			MaxCacheSize:         getEnvInt("MAX_CACHE_SIZE", 10000),
		},
		NATSURL:     getEnv("NATS_URL", "nats://nats:4222"),
		NATSSubject: getEnv("NATS_SUBJECT", "fanet.tracking"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ArchiveDir:  os.Getenv("ARCHIVE_DIR"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}

	types, err := parseAircraftTypes(getEnv("AIRCRAFT_TYPES", "1,6,7"))
	if err != nil {
		return nil, err
	}
	cfg.Filtering.AircraftTypes = types

	if cfg.Filtering.Region.LatMin > cfg.Filtering.Region.LatMax {
		return nil, fmt.Errorf("REGION_LAT_MIN %.4f exceeds REGION_LAT_MAX %.4f",
			cfg.Filtering.Region.LatMin, cfg.Filtering.Region.LatMax)
	}
	if cfg.Filtering.Region.LonMin > cfg.Filtering.Region.LonMax {
		return nil, fmt.Errorf("REGION_LON_MIN %.4f exceeds REGION_LON_MAX %.4f",
			cfg.Filtering.Region.LonMin, cfg.Filtering.Region.LonMax)
	}

	return cfg, nil
}

func parseAircraftTypes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	types := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid aircraft type %q in AIRCRAFT_TYPES: %w", p, err)
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("AIRCRAFT_TYPES must list at least one category")
	}
	return types, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
