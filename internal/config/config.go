package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Elevation lookup configuration.
	ElevationBaseURL    string
	ElevationTimeout    time.Duration
	ElevationPace       time.Duration
	ElevationMaxRetries int
	ElevationCacheSize  int
	ElevationCacheDB    string
	ElevationStrict     bool

	// Feature derivation and model fitting.
	DayMapping   string
	TestFraction float64
	SplitSeed    uint64

	// Optional Kafka sink for enriched incidents.
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// KafkaEnabled reports whether enriched incidents should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	elevationTimeout, err := parsePositiveDuration("ELEVATION_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	pace, err := parseDuration("ELEVATION_PACE", "500ms")
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseInt("ELEVATION_MAX_RETRIES", 3, 0, 10)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseInt("ELEVATION_CACHE_SIZE", 10000, 1, 10_000_000)
	if err != nil {
		return nil, err
	}

	strict, err := parseBool("ELEVATION_STRICT", false)
	if err != nil {
		return nil, err
	}

	testFraction, err := parseTestFraction()
	if err != nil {
		return nil, err
	}

	seed, err := strconv.ParseUint(sharedcfg.EnvOrDefault("SPLIT_SEED", "42"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid SPLIT_SEED")
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ElevationBaseURL:    strings.TrimRight(sharedcfg.EnvOrDefault("ELEVATION_BASE_URL", "https://api.open-elevation.com"), "/"),
		ElevationTimeout:    elevationTimeout,
		ElevationPace:       pace,
		ElevationMaxRetries: maxRetries,
		ElevationCacheSize:  cacheSize,
		ElevationCacheDB:    os.Getenv("ELEVATION_CACHE_DB"),
		ElevationStrict:     strict,

		DayMapping:   strings.ToLower(sharedcfg.EnvOrDefault("DAY_MAPPING", "reference")),
		TestFraction: testFraction,
		SplitSeed:    seed,

		KafkaBrokers:   brokers,
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "enriched-incidents"),
	}

	if cfg.ElevationBaseURL == "" {
		return nil, errors.New("ELEVATION_BASE_URL is required")
	}
	if cfg.DayMapping != "reference" && cfg.DayMapping != "iso" {
		return nil, fmt.Errorf("invalid DAY_MAPPING %q: want reference or iso", cfg.DayMapping)
	}
	if cfg.KafkaEnabled() && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := parseDuration(key, fallback)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseTestFraction() (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("TEST_FRACTION", "0.25"), 64)
	if err != nil || f < 0 || f >= 1 {
		return 0, errors.New("invalid TEST_FRACTION: must be in [0, 1)")
	}
	return f, nil
}
