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

	// Data source: "postgres" or "memory"
	DataSource  string `koanf:"data_source"`
	DatabaseURL string `koanf:"database_url"`
	FixturePath string `koanf:"fixture_path"`
	DBMaxConns  int    `koanf:"db_max_conns"`

	// Redis backs the shared rate limiter; empty keeps limits in memory
	RedisURL string `koanf:"redis_url"`

	// Leaderboard
	ExposedBaselines  []string `koanf:"exposed_baselines"`
	ReferenceBaseline string   `koanf:"reference_baseline"`
	FetchConcurrency  int      `koanf:"fetch_concurrency"`
	ExcludedDatasets  []string `koanf:"excluded_datasets"`

	// Combined view cache. A zero refresh interval builds the views once.
	ViewRefreshInterval time.Duration `koanf:"view_refresh_interval"`
	ViewBuildTimeout    time.Duration `koanf:"view_build_timeout"`

	// HTTP surface
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	RateLimitRPM       int      `koanf:"rate_limit_rpm"`
	MetricsEnabled     bool     `koanf:"metrics_enabled"`
	ProfilingEnabled   bool     `koanf:"profiling_enabled"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Data sources accepted in DATA_SOURCE.
const (
	DataSourcePostgres = "postgres"
	DataSourceMemory   = "memory"
)

// Configuration validation errors.
var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required for the postgres data source")
	ErrMissingFixturePath    = errors.New("FIXTURE_PATH is required for the memory data source")
	ErrInvalidDataSource     = errors.New("DATA_SOURCE must be postgres or memory")
	ErrInvalidPort           = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidInteger        = errors.New("value must be a valid integer")
	ErrInvalidFloat          = errors.New("value must be a valid number")
	ErrInvalidDuration       = errors.New("value must be a valid duration")
	ErrInvalidConcurrency    = errors.New("FETCH_CONCURRENCY must be positive")
	ErrInvalidRateLimit      = errors.New("RATE_LIMIT_RPM must be positive")
	ErrInvalidSampleRate     = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidExporter       = errors.New("TRACING_EXPORTER must be otlp-http or otlp-grpc")
	ErrInvalidRefreshTimeout = errors.New("VIEW_BUILD_TIMEOUT must be positive")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultDataSource          = DataSourcePostgres
	DefaultReferenceBaseline   = "dense"
	DefaultFetchConcurrency    = 8
	DefaultViewRefreshInterval = 15 * time.Minute
	DefaultViewBuildTimeout    = 5 * time.Minute
	DefaultRateLimitRPM        = 100
	DefaultMetricsEnabled      = true
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSampleRate   = 0.1
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

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// Try LEADERBOARD_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"LEADERBOARD_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		collect(fmt.Errorf("%w: %v", ErrInvalidPort, err))
	}
	fetchConcurrency, err := getEnvIntOrDefault("FETCH_CONCURRENCY", k.Int("fetch_concurrency"), DefaultFetchConcurrency)
	collect(err)
	dbMaxConns, err := getEnvIntOrDefault("DB_MAX_CONNS", k.Int("db_max_conns"), 0)
	collect(err)
	rateLimitRPM, err := getEnvIntOrDefault("RATE_LIMIT_RPM", k.Int("rate_limit_rpm"), DefaultRateLimitRPM)
	collect(err)
	refreshInterval, err := getEnvDurationOrDefault("VIEW_REFRESH_INTERVAL", k, "view_refresh_interval", DefaultViewRefreshInterval)
	collect(err)
	buildTimeout, err := getEnvDurationOrDefault("VIEW_BUILD_TIMEOUT", k, "view_build_timeout", DefaultViewBuildTimeout)
	collect(err)
	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"LEADERBOARD_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DataSource:          strings.ToLower(getEnvOrDefault("DATA_SOURCE", k.String("data_source"), DefaultDataSource)),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		FixturePath:         getEnvOrKoanf("FIXTURE_PATH", k, "fixture_path"),
		DBMaxConns:          dbMaxConns,
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		ExposedBaselines:    getEnvListOrKoanf("EXPOSED_BASELINES", k, "exposed_baselines"),
		ReferenceBaseline:   getEnvOrDefault("REFERENCE_BASELINE", k.String("reference_baseline"), DefaultReferenceBaseline),
		FetchConcurrency:    fetchConcurrency,
		ExcludedDatasets:    getEnvListOrKoanf("EXCLUDED_DATASETS", k, "excluded_datasets"),
		ViewRefreshInterval: refreshInterval,
		ViewBuildTimeout:    buildTimeout,
		CORSAllowedOrigins:  getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		RateLimitRPM:        rateLimitRPM,
		MetricsEnabled:      getEnvBoolOrDefault("METRICS_ENABLED", k, "metrics_enabled", DefaultMetricsEnabled),
		ProfilingEnabled:    getEnvBoolOrDefault("PROFILING_ENABLED", k, "profiling_enabled", false),
		TracingEnabled:      getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:        getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSampleRate:   sampleRate,
		TracingInsecure:     getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing_insecure", false),
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

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
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

// getEnvListOrKoanf reads a comma separated list from the environment, or a
// YAML list (or comma separated string) from the file. Blank items are dropped.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	var raw []string
	if val := os.Getenv(envKey); val != "" {
		raw = []string{val}
	} else if k.Exists(koanfKey) {
		raw = k.Strings(koanfKey)
		if len(raw) == 0 {
			raw = []string{k.String(koanfKey)}
		}
	}

	var out []string
	for _, entry := range raw {
		for _, item := range strings.Split(entry, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// Note: A value of 0 from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the file value when present, or default. An explicit 0 in the
// file is kept.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if it holds a
// recognized value, otherwise the file value when present, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// getEnvDurationOrDefault parses a Go duration ("90s", "15m") from the
// environment or the file. An explicit "0" is kept.
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	raw, name := os.Getenv(envKey), envKey
	if raw == "" {
		if !k.Exists(koanfKey) {
			return defaultVal, nil
		}
		raw, name = k.String(koanfKey), koanfKey
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s=%q: %w", name, raw, ErrInvalidDuration)
	}
	return d, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	switch c.DataSource {
	case DataSourcePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	case DataSourceMemory:
		if c.FixturePath == "" {
			errs = append(errs, ErrMissingFixturePath)
		}
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrInvalidDataSource, c.DataSource))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, ErrInvalidConcurrency)
	}
	if c.RateLimitRPM <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.ViewBuildTimeout <= 0 {
		errs = append(errs, ErrInvalidRefreshTimeout)
	}

	if c.TracingEnabled {
		if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
			errs = append(errs, ErrInvalidSampleRate)
		}
		if c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
			errs = append(errs, ErrInvalidExporter)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  strconv.Itoa(c.Port),
		"env":                   c.Env,
		"data_source":           c.DataSource,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"fixture_path":          c.FixturePath,
		"redis_url":             maskDatabaseURL(c.RedisURL),
		"exposed_baselines":     listSummary(c.ExposedBaselines),
		"reference_baseline":    c.ReferenceBaseline,
		"fetch_concurrency":     strconv.Itoa(c.FetchConcurrency),
		"excluded_datasets":     listSummary(c.ExcludedDatasets),
		"view_refresh_interval": c.ViewRefreshInterval.String(),
		"view_build_timeout":    c.ViewBuildTimeout.String(),
		"cors_allowed_origins":  listSummary(c.CORSAllowedOrigins),
		"rate_limit_rpm":        strconv.Itoa(c.RateLimitRPM),
		"metrics_enabled":       strconv.FormatBool(c.MetricsEnabled),
		"profiling_enabled":     strconv.FormatBool(c.ProfilingEnabled),
		"tracing_enabled":       strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":      c.TracingExporter,
		"otlp_endpoint":         c.OTLPEndpoint,
		"tracing_sample_rate":   strconv.FormatFloat(c.TracingSampleRate, 'g', -1, 64),
	}
}

func listSummary(items []string) string {
	if len(items) == 0 {
		return "<all>"
	}
	return strings.Join(items, ",")
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

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres://, postgresql://, redis:// and rediss:// schemes.
func maskDatabaseURL(s string) string {
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
