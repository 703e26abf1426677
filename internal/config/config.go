// Package config loads the proximity configuration from flags, environment
// (PROXIMITY_*) and an optional config.yaml through viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/proximity/internal/overpass"
)

// EnvPrefix is the prefix of all environment overrides, e.g.
// PROXIMITY_GEOCODE_API_KEY for geocode.api_key.
const EnvPrefix = "PROXIMITY"

// Transport names accepted by overpass.transport.
const (
	TransportHTTP    = "http"
	TransportLibrary = "library"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel    string   `mapstructure:"log_level"`
	LogFormat   string   `mapstructure:"log_format"`
	Verbose     bool     `mapstructure:"verbose"`
	MetricsFile string   `mapstructure:"metrics_file"`
	Overpass    Overpass `mapstructure:"overpass"`
	Geocode     Geocode  `mapstructure:"geocode"`
	Redis       Redis    `mapstructure:"redis"`
	Output      Output   `mapstructure:"output"`
	Archive     Archive  `mapstructure:"archive"`
	Search      Search   `mapstructure:"search"`
}

// Overpass configures the feature database mirrors.
type Overpass struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Backoff   time.Duration `mapstructure:"backoff"`
	Transport string        `mapstructure:"transport"`
	UserAgent string        `mapstructure:"user_agent"`
	// MaxConcurrent caps parallel queries across all searches; 0 disables the cap
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// Geocode configures the word-code geocoding service.
type Geocode struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Redis configures the optional geocode cache. An empty Addr disables it.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Output configures the file artifacts. Empty directories disable the sink.
type Output struct {
	GeoJSONDir string `mapstructure:"geojson_dir"`
	MapDir     string `mapstructure:"map_dir"`
	MapWidth   int    `mapstructure:"map_width"`
	MapHeight  int    `mapstructure:"map_height"`
}

// Archive configures the SQLite search archive. An empty Path disables it.
type Archive struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
}

// Search holds the per-search defaults.
type Search struct {
	Radius          int `mapstructure:"radius"`
	MaxRows         int `mapstructure:"max_rows"`
	Workers         int `mapstructure:"workers"`
	DistanceWorkers int `mapstructure:"distance_workers"`
}

// SetDefaults registers every key with its default value. Registering the
// keys also makes AutomaticEnv see them on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("metrics_file", "")

	v.SetDefault("overpass.endpoints", overpass.DefaultEndpoints)
	v.SetDefault("overpass.timeout", 25*time.Second)
	v.SetDefault("overpass.backoff", time.Second)
	v.SetDefault("overpass.transport", TransportHTTP)
	v.SetDefault("overpass.user_agent", "proximity/1.0")
	v.SetDefault("overpass.max_concurrent", 2)

	v.SetDefault("geocode.api_key", "")
	v.SetDefault("geocode.base_url", "https://api.what3words.com/v3")
	v.SetDefault("geocode.timeout", 10*time.Second)
	v.SetDefault("geocode.cache_ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("output.geojson_dir", "")
	v.SetDefault("output.map_dir", "")
	v.SetDefault("output.map_width", 1024)
	v.SetDefault("output.map_height", 768)

	v.SetDefault("archive.path", "")
	v.SetDefault("archive.batch_size", 20)

	v.SetDefault("search.radius", 250)
	v.SetDefault("search.max_rows", 500)
	v.SetDefault("search.workers", runtime.NumCPU())
	v.SetDefault("search.distance_workers", runtime.NumCPU())
}

// Setup prepares v for Load: defaults plus PROXIMITY_ environment overrides
// with nested keys joined by underscores.
func Setup(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Overpass.Endpoints) == 0 {
		errs = append(errs, errors.New("overpass.endpoints must not be empty"))
	}
	for _, e := range c.Overpass.Endpoints {
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			errs = append(errs, fmt.Errorf("overpass.endpoints: %q is not an http(s) URL", e))
		}
	}
	if c.Overpass.Timeout <= 0 {
		errs = append(errs, errors.New("overpass.timeout must be positive"))
	}
	if c.Overpass.MaxConcurrent < 0 {
		errs = append(errs, errors.New("overpass.max_concurrent must not be negative"))
	}
	if c.Overpass.Backoff < 0 {
		errs = append(errs, errors.New("overpass.backoff must not be negative"))
	}
	switch c.Overpass.Transport {
	case TransportHTTP, TransportLibrary:
	default:
		errs = append(errs, fmt.Errorf("overpass.transport %q: must be %q or %q",
			c.Overpass.Transport, TransportHTTP, TransportLibrary))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: must be 'text' or 'json'", c.LogFormat))
	}
	if c.Search.Workers <= 0 {
		errs = append(errs, errors.New("search.workers must be positive"))
	}
	if c.Search.MaxRows <= 0 {
		errs = append(errs, errors.New("search.max_rows must be positive"))
	}
	if c.Archive.BatchSize <= 0 {
		errs = append(errs, errors.New("archive.batch_size must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel; Verbose forces debug.
func (c *Config) SlogLevel() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
