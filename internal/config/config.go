// Package config loads stationdist settings from config.yaml, .env files and
// STATIONDIST_* environment variables.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Roads    RoadsConfig    `yaml:"roads" mapstructure:"roads"`
	OSM      OSMConfig      `yaml:"osm" mapstructure:"osm"`
	Stations StationsConfig `yaml:"stations" mapstructure:"stations"`
	Routing  RoutingConfig  `yaml:"routing" mapstructure:"routing"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RoadsConfig configures where the road network comes from and where it is cached.
type RoadsConfig struct {
	Place                 string      `yaml:"place" mapstructure:"place"`
	BufferMeters          float64     `yaml:"buffer_meters" mapstructure:"buffer_meters"`
	CacheDir              string      `yaml:"cache_dir" mapstructure:"cache_dir"`
	Source                string      `yaml:"source" mapstructure:"source"`
	FreshToleranceMeters  float64     `yaml:"fresh_tolerance_meters" mapstructure:"fresh_tolerance_meters"`
	CachedToleranceMeters float64     `yaml:"cached_tolerance_meters" mapstructure:"cached_tolerance_meters"`
	TigerYear             int         `yaml:"tiger_year" mapstructure:"tiger_year"`
	TigerCounties         []string    `yaml:"tiger_counties" mapstructure:"tiger_counties"`
	TigerURLs             []string    `yaml:"tiger_urls" mapstructure:"tiger_urls"`
	Retry                 RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig bounds whole-download retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// OSMConfig holds the OpenStreetMap endpoints and HTTP client settings.
type OSMConfig struct {
	NominatimURL     string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	OverpassURL      string `yaml:"overpass_url" mapstructure:"overpass_url"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	QueryTimeoutSecs int    `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// StationsConfig selects the station registry source.
type StationsConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	File        string `yaml:"file" mapstructure:"file"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// RoutingConfig tunes distance computation.
type RoutingConfig struct {
	WalkupMiles   float64 `yaml:"walkup_miles" mapstructure:"walkup_miles"`
	MaxSnapMeters float64 `yaml:"max_snap_meters" mapstructure:"max_snap_meters"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	SnapCacheSize int     `yaml:"snap_cache_size" mapstructure:"snap_cache_size"`
	ProgressEvery int64   `yaml:"progress_every" mapstructure:"progress_every"`
}

// InputConfig names the incident table columns and how to read the file.
type InputConfig struct {
	LonColumn    string `yaml:"lon_column" mapstructure:"lon_column"`
	LatColumn    string `yaml:"lat_column" mapstructure:"lat_column"`
	BucketColumn string `yaml:"bucket_column" mapstructure:"bucket_column"`
	TimeColumn   string `yaml:"time_column" mapstructure:"time_column"`
	TimeLayout   string `yaml:"time_layout" mapstructure:"time_layout"`
	Encoding     string `yaml:"encoding" mapstructure:"encoding"`
	Sheet        string `yaml:"sheet" mapstructure:"sheet"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LoadDotEnv loads .env and then .env.local from the working directory.
// Missing files are ignored.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STATIONDIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("roads.place", "Pflugerville, Texas, United States")
	v.SetDefault("roads.buffer_meters", 10000)
	v.SetDefault("roads.cache_dir", "data/roads")
	v.SetDefault("roads.source", "osm")
	v.SetDefault("roads.fresh_tolerance_meters", 20)
	v.SetDefault("roads.cached_tolerance_meters", 5)
	v.SetDefault("roads.tiger_year", 2023)
	v.SetDefault("roads.tiger_counties", []string{"48453", "48491"})
	v.SetDefault("roads.retry.max_attempts", 3)
	v.SetDefault("roads.retry.initial_backoff_ms", 2000)
	v.SetDefault("roads.retry.max_backoff_ms", 60000)
	v.SetDefault("osm.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("osm.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("osm.user_agent", "stationdist/1.0")
	v.SetDefault("osm.timeout_secs", 300)
	v.SetDefault("osm.query_timeout_secs", 180)
	v.SetDefault("osm.max_retries", 3)
	v.SetDefault("stations.source", "file")
	v.SetDefault("stations.file", "data/stations.yaml")
	v.SetDefault("stations.table", "stations")
	v.SetDefault("routing.walkup_miles", 0.05)
	v.SetDefault("routing.max_snap_meters", 0)
	v.SetDefault("routing.concurrency", 1)
	v.SetDefault("routing.snap_cache_size", 4096)
	v.SetDefault("routing.progress_every", 0)
	v.SetDefault("input.lon_column", "X-Long")
	v.SetDefault("input.lat_column", "Y_Lat")
	v.SetDefault("input.bucket_column", "Bucket Type")
	v.SetDefault("input.time_column", "Earliest Time Phone Pickup AFD or EMS")
	v.SetDefault("input.time_layout", "2006-01-02 15:04:05")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "route",
// "roads", "stations" or "serve"; unknown modes only get the common checks.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Roads.Source {
	case "osm", "tiger":
	default:
		problems = append(problems, `roads.source must be "osm" or "tiger"`)
	}
	if c.Roads.BufferMeters < 0 {
		problems = append(problems, "roads.buffer_meters must not be negative")
	}
	if c.Roads.FreshToleranceMeters < 0 || c.Roads.CachedToleranceMeters < 0 {
		problems = append(problems, "roads tolerances must not be negative")
	}
	if c.Roads.CacheDir == "" {
		problems = append(problems, "roads.cache_dir is required")
	}
	if c.Roads.Source == "tiger" && len(c.Roads.TigerURLs) == 0 && len(c.Roads.TigerCounties) == 0 {
		problems = append(problems, "roads.tiger_counties or roads.tiger_urls is required for the tiger source")
	}

	switch c.Store.Driver {
	case "", "none", "sqlite", "postgres":
	default:
		problems = append(problems, `store.driver must be "sqlite", "postgres" or "none"`)
	}

	if mode != "roads" {
		switch c.Stations.Source {
		case "file":
			if c.Stations.File == "" {
				problems = append(problems, "stations.file is required")
			}
		case "postgres":
			if c.Stations.DatabaseURL == "" {
				problems = append(problems, "stations.database_url is required")
			}
		default:
			problems = append(problems, `stations.source must be "file" or "postgres"`)
		}
	}

	if mode == "route" || mode == "serve" {
		if c.Routing.WalkupMiles <= 0 {
			problems = append(problems, "routing.walkup_miles must be positive")
		}
		if c.Routing.Concurrency < 1 {
			problems = append(problems, "routing.concurrency must be at least 1")
		}
		if c.Routing.MaxSnapMeters < 0 {
			problems = append(problems, "routing.max_snap_meters must not be negative")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
