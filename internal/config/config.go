// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis
	RedisURL string `koanf:"redis_url"`

	// Hotness ranking
	RankViewWeight     int           `koanf:"rank_view_weight"`
	RankLikeWeight     int           `koanf:"rank_like_weight"`
	RankCommentWeight  int           `koanf:"rank_comment_weight"`
	RankFavoriteWeight int           `koanf:"rank_favorite_weight"`
	RankScoreFloor     float64       `koanf:"rank_score_floor"`
	RankClampMin       float64       `koanf:"rank_clamp_min"`
	RankClampMax       float64       `koanf:"rank_clamp_max"`
	RankDayTTL         time.Duration `koanf:"rank_day_ttl"`
	RankWeekTTL        time.Duration `koanf:"rank_week_ttl"`

	// Cache invalidation pipeline
	InvalidationEnabled bool          `koanf:"invalidation_enabled"`
	InvalidationWorkers int           `koanf:"invalidation_workers"`
	InvalidationBuffer  int           `koanf:"invalidation_buffer"`
	DrainInterval       time.Duration `koanf:"drain_interval"`
	DelayedDeleteDelay  time.Duration `koanf:"delayed_delete_delay"`
	QueueRetention      time.Duration `koanf:"queue_retention"`
	CacheTTL            time.Duration `koanf:"cache_ttl"`
	VerifyInterval      time.Duration `koanf:"verify_interval"`
	VerifySampleSize    int           `koanf:"verify_sample_size"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidWeight      = errors.New("rank weights must be non-negative")
	ErrInvalidClampRange  = errors.New("RANK_CLAMP_MIN must not exceed RANK_CLAMP_MAX")
	ErrInvalidSampleSize  = errors.New("VERIFY_SAMPLE_SIZE must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort = 8080
	DefaultEnv  = "development"

	DefaultRankViewWeight     = 1
	DefaultRankLikeWeight     = 5
	DefaultRankCommentWeight  = 10
	DefaultRankFavoriteWeight = 8
	DefaultRankScoreFloor     = 0.0
	DefaultRankDayTTL         = 48 * time.Hour
	DefaultRankWeekTTL        = 14 * 24 * time.Hour

	DefaultInvalidationEnabled = true
	DefaultInvalidationWorkers = 4
	DefaultInvalidationBuffer  = 256
	DefaultDrainInterval       = 100 * time.Millisecond
	DefaultDelayedDeleteDelay  = 500 * time.Millisecond
	DefaultQueueRetention      = 24 * time.Hour
	DefaultCacheTTL            = 7 * 24 * time.Hour
	DefaultVerifyInterval      = 5 * time.Minute
	DefaultVerifySampleSize    = 100
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try SCRIBE_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"SCRIBE_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	collectInt := func(envKey, koanfKey string, def int) int {
		v, err := getEnvIntOrDefault(envKey, k.Int(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}
	collectFloat := func(envKey, koanfKey string, def float64) float64 {
		v, err := getEnvFloatOrDefault(envKey, k.Float64(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}
	collectDuration := func(envKey, koanfKey string, def time.Duration) time.Duration {
		v, err := getEnvDurationOrDefault(envKey, k.Duration(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:        port,
		Env:         getEnvOrDefaultMulti([]string{"SCRIBE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL: getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:    getEnvOrKoanf("REDIS_URL", k, "redis_url"),

		RankViewWeight:     collectInt("RANK_VIEW_WEIGHT", "rank_view_weight", DefaultRankViewWeight),
		RankLikeWeight:     collectInt("RANK_LIKE_WEIGHT", "rank_like_weight", DefaultRankLikeWeight),
		RankCommentWeight:  collectInt("RANK_COMMENT_WEIGHT", "rank_comment_weight", DefaultRankCommentWeight),
		RankFavoriteWeight: collectInt("RANK_FAVORITE_WEIGHT", "rank_favorite_weight", DefaultRankFavoriteWeight),
		RankScoreFloor:     collectFloat("RANK_SCORE_FLOOR", "rank_score_floor", DefaultRankScoreFloor),
		RankClampMin:       collectFloat("RANK_CLAMP_MIN", "rank_clamp_min", 0),
		RankClampMax:       collectFloat("RANK_CLAMP_MAX", "rank_clamp_max", 0),
		RankDayTTL:         collectDuration("RANK_DAY_TTL", "rank_day_ttl", DefaultRankDayTTL),
		RankWeekTTL:        collectDuration("RANK_WEEK_TTL", "rank_week_ttl", DefaultRankWeekTTL),

		InvalidationEnabled: getEnvBoolOrDefault("INVALIDATION_ENABLED", k, "invalidation_enabled", DefaultInvalidationEnabled),
		InvalidationWorkers: collectInt("INVALIDATION_WORKERS", "invalidation_workers", DefaultInvalidationWorkers),
		InvalidationBuffer:  collectInt("INVALIDATION_BUFFER", "invalidation_buffer", DefaultInvalidationBuffer),
		DrainInterval:       collectDuration("DRAIN_INTERVAL", "drain_interval", DefaultDrainInterval),
		DelayedDeleteDelay:  collectDuration("DELAYED_DELETE_DELAY", "delayed_delete_delay", DefaultDelayedDeleteDelay),
		QueueRetention:      collectDuration("QUEUE_RETENTION", "queue_retention", DefaultQueueRetention),
		CacheTTL:            collectDuration("CACHE_TTL", "cache_ttl", DefaultCacheTTL),
		VerifyInterval:      collectDuration("VERIFY_INTERVAL", "verify_interval", DefaultVerifyInterval),
		VerifySampleSize:    collectInt("VERIFY_SAMPLE_SIZE", "verify_sample_size", DefaultVerifySampleSize),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: a zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if set,
// otherwise the koanf value, or default. Accepts Go duration syntax ("500ms", "48h").
func getEnvDurationOrDefault(envKey string, koanfVal time.Duration, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", envKey, err)
		}
		return d, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set, otherwise
// the koanf value if present in the file, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	out := defaultVal
	if k.Exists(koanfKey) {
		out = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			out = true
		case "false", "0", "no", "off":
			out = false
		}
	}
	return out
}

// Validate checks that all required configuration values are present and
// that tunables are internally consistent.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.RedisURL == "" {
		errs = append(errs, ErrMissingRedisURL)
	}
	if c.RankViewWeight < 0 || c.RankLikeWeight < 0 || c.RankCommentWeight < 0 || c.RankFavoriteWeight < 0 {
		errs = append(errs, ErrInvalidWeight)
	}
	// Zero for both means clamping is disabled.
	if (c.RankClampMin != 0 || c.RankClampMax != 0) && c.RankClampMin > c.RankClampMax {
		errs = append(errs, ErrInvalidClampRange)
	}
	if c.VerifySampleSize <= 0 {
		errs = append(errs, ErrInvalidSampleSize)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// Credentials embedded in URLs are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                 fmt.Sprintf("%d", c.Port),
		"env":                  c.Env,
		"database_url":         maskURLPassword(c.DatabaseURL),
		"redis_url":            maskURLPassword(c.RedisURL),
		"rank_view_weight":     fmt.Sprintf("%d", c.RankViewWeight),
		"rank_like_weight":     fmt.Sprintf("%d", c.RankLikeWeight),
		"rank_comment_weight":  fmt.Sprintf("%d", c.RankCommentWeight),
		"rank_favorite_weight": fmt.Sprintf("%d", c.RankFavoriteWeight),
		"rank_day_ttl":         c.RankDayTTL.String(),
		"rank_week_ttl":        c.RankWeekTTL.String(),
		"invalidation_enabled": fmt.Sprintf("%t", c.InvalidationEnabled),
		"invalidation_workers": fmt.Sprintf("%d", c.InvalidationWorkers),
		"drain_interval":       c.DrainInterval.String(),
		"delayed_delete_delay": c.DelayedDeleteDelay.String(),
		"queue_retention":      c.QueueRetention.String(),
		"cache_ttl":            c.CacheTTL.String(),
		"verify_interval":      c.VerifyInterval.String(),
		"verify_sample_size":   fmt.Sprintf("%d", c.VerifySampleSize),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURLPassword masks the password in a connection URL.
// Supports postgres://, postgresql:// and redis:// schemes.
func maskURLPassword(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
