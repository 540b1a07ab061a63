// Package config loads the service configuration from an optional YAML file
// and CARBONAWARE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// SourceKind selects a data source variant.
type SourceKind string

// Supported data source kinds.
const (
	KindJSON        SourceKind = "json"
	KindWattTime    SourceKind = "watttime"
	KindAzure       SourceKind = "azure"
	KindTelemetryDB SourceKind = "telemetrydb"
)

// Config is the full service configuration.
type Config struct {
	Server           ServerConfig      `yaml:"server"`
	Logging          LoggingConfig     `yaml:"logging"`
	CarbonIntensity  SourceKind        `yaml:"carbonIntensitySource"`
	ComputeInventory SourceKind        `yaml:"computeInventorySource"`
	JSONFile         JSONFileConfig    `yaml:"jsonFile"`
	WattTime         WattTimeConfig    `yaml:"wattTime"`
	Azure            AzureConfig       `yaml:"azure"`
	TelemetryDB      TelemetryDBConfig `yaml:"telemetryDB"`
	Cache            CacheConfig       `yaml:"cache"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"httpAddr"`
	GRPCAddr        string        `yaml:"grpcAddr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           *int     `yaml:"maxAge"`

	// AllowAllOrigins is set when "*" appears in the origin list.
	AllowAllOrigins bool `yaml:"-"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JSONFileConfig locates the JSON dataset, on disk or in a bucket.
type JSONFileConfig struct {
	Path   string       `yaml:"path"`
	Bucket BucketConfig `yaml:"bucket"`
}

// BucketConfig locates an object in S3-compatible storage.
type BucketConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
}

// Enabled reports whether the dataset should be read from a bucket.
func (b BucketConfig) Enabled() bool {
	return b.Endpoint != "" && b.Bucket != "" && b.Object != ""
}

// WattTimeConfig configures the WattTime client.
type WattTimeConfig struct {
	BaseURL  string `yaml:"baseURL"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AzureConfig configures the Azure inventory. Either AccessToken or the
// client credentials must be set.
type AzureConfig struct {
	ManagementURL  string `yaml:"managementURL"`
	AuthorityURL   string `yaml:"authorityURL"`
	SubscriptionID string `yaml:"subscriptionId"`
	ResourceGroup  string `yaml:"resourceGroup"`
	TenantID       string `yaml:"tenantId"`
	ClientID       string `yaml:"clientId"`
	ClientSecret   string `yaml:"clientSecret"`
	AccessToken    string `yaml:"accessToken"`
}

// TelemetryDBConfig configures the PostgreSQL telemetry inventory.
type TelemetryDBConfig struct {
	DSN          string `yaml:"dsn"`
	EnsureSchema bool   `yaml:"ensureSchema"`
}

// CacheConfig configures the Redis cache in front of the intensity source.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	IntensityTTL time.Duration `yaml:"intensityTTL"`
	ForecastTTL  time.Duration `yaml:"forecastTTL"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CarbonIntensity:  KindJSON,
		ComputeInventory: KindJSON,
		JSONFile: JSONFileConfig{
			Path: "data/dataset.json",
		},
		Cache: CacheConfig{
			IntensityTTL: time.Hour,
			ForecastTTL:  5 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// path is non-empty), then environment overrides. The result is validated.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg, logger)

	if err := cfg.Server.CORS.normalize(logger); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug().
		Str("carbon_intensity_source", string(cfg.CarbonIntensity)).
		Str("compute_inventory_source", string(cfg.ComputeInventory)).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Msg("configuration loaded")
	return cfg, nil
}

// Validate checks that the selected data sources have what they need.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.httpAddr is required"))
	}

	if c.CarbonIntensity == KindJSON || c.ComputeInventory == KindJSON {
		errs = append(errs, c.JSONFile.validate())
	}

	switch c.CarbonIntensity {
	case KindJSON:
	case KindWattTime:
		if c.WattTime.Username == "" || c.WattTime.Password == "" {
			errs = append(errs, errors.New("wattTime.username and wattTime.password are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown carbon intensity source %q", c.CarbonIntensity))
	}

	switch c.ComputeInventory {
	case KindJSON:
	case KindAzure:
		hasCreds := c.Azure.TenantID != "" && c.Azure.ClientID != "" && c.Azure.ClientSecret != ""
		if c.Azure.AccessToken == "" && !hasCreds {
			errs = append(errs, errors.New("azure requires accessToken or tenantId, clientId and clientSecret"))
		}
	case KindTelemetryDB:
		if c.TelemetryDB.DSN == "" {
			errs = append(errs, errors.New("telemetryDB.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown compute inventory source %q", c.ComputeInventory))
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, errors.New("cache.addr is required when the cache is enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (j JSONFileConfig) validate() error {
	if j.Path == "" && !j.Bucket.Enabled() {
		return errors.New("jsonFile.path or jsonFile.bucket is required")
	}
	return nil
}

// normalize trims origins, handles the wildcard and applies the max-age
// default.
func (c *CORSConfig) normalize(logger zerolog.Logger) error {
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		trimmed := strings.TrimSpace(o)
		if trimmed == "*" {
			c.AllowAllOrigins = true
			continue
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins

	if c.AllowAllOrigins {
		logger.Warn().Msg("CORS wildcard origin (*) is insecure; use specific origins in production")
		if c.AllowCredentials {
			return fmt.Errorf("cannot enable credentials with wildcard origin (*); security risk")
		}
	}

	if c.MaxAge == nil || *c.MaxAge < 0 {
		maxAge := defaultCORSMaxAge
		c.MaxAge = &maxAge
	}

	logger.Debug().
		Strs("allowed_origins", c.AllowedOrigins).
		Int("max_age", *c.MaxAge).
		Msg("CORS configuration applied")
	return nil
}

const defaultCORSMaxAge = 86400
