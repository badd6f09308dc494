// Package config loads service configuration from the environment and the
// zone list from a YAML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/breatheroute/zoneaqi/internal/airquality"
	"github.com/breatheroute/zoneaqi/internal/aqi"
	"github.com/breatheroute/zoneaqi/internal/database"
	"github.com/breatheroute/zoneaqi/internal/readinglog"
)

// Config holds all configuration for the zone AQI service.
type Config struct {
	Port        string `env:"APP_PORT,default=8080"`
	Environment string `env:"APP_ENV,default=development"`
	Version     string `env:"APP_VERSION,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	RequireTLS  bool   `env:"REQUIRE_TLS,default=false"`

	ZonesFile string `env:"ZONES_FILE"`

	AQIProfile    string        `env:"AQI_PROFILE,default=us_epa"`
	AQISaturation string        `env:"AQI_SATURATION,default=top"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=900s"`

	Refresh   RefreshConfig
	Providers ProvidersConfig
	History   HistoryConfig
	Telemetry TelemetryConfig
	PubSub    PubSubConfig

	// Zones is populated from ZonesFile, or DefaultZones when unset.
	Zones []airquality.Zone
}

// RefreshConfig controls the background refresh scheduler.
type RefreshConfig struct {
	Enabled     bool          `env:"REFRESH_ENABLED,default=true"`
	Interval    time.Duration `env:"REFRESH_INTERVAL,default=900s"`
	ZoneDelay   time.Duration `env:"REFRESH_ZONE_DELAY,default=1s"`
	ZoneTimeout time.Duration `env:"REFRESH_ZONE_TIMEOUT,default=60s"`
}

// ProvidersConfig holds upstream endpoints and credentials.
type ProvidersConfig struct {
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT,default=15s"`
	HTTPMaxRetries int           `env:"HTTP_MAX_RETRIES,default=2"`

	OpenMeteoBaseURL string `env:"OPENMETEO_BASE_URL"`
	OpenAQBaseURL    string `env:"OPENAQ_BASE_URL"`
	OpenAQAPIKey     string `env:"OPENAQ_API_KEY"`
	PurpleAirBaseURL string `env:"PURPLEAIR_BASE_URL"`
	PurpleAirAPIKey  string `env:"PURPLEAIR_API_KEY"`
}

// HistoryConfig selects the reading log backend.
type HistoryConfig struct {
	Backend   string        `env:"HISTORY_BACKEND,default=local"`
	Dir       string        `env:"HISTORY_DIR,default=./data/history"`
	Bucket    string        `env:"HISTORY_BUCKET"`
	Prefix    string        `env:"HISTORY_PREFIX,default=readinglog"`
	Retention time.Duration `env:"HISTORY_RETENTION,default=26h"`

	// Database is used by the postgres backend.
	Database database.Config
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `env:"OTEL_ENABLED,default=false"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT,default=localhost:4317"`
}

// PubSubConfig enables on-demand refresh messages when both are set.
type PubSubConfig struct {
	ProjectID    string `env:"PUBSUB_PROJECT_ID"`
	Subscription string `env:"PUBSUB_SUBSCRIPTION"`
}

// Enabled reports whether a subscription is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Subscription != ""
}

// ReadingLog converts the history settings into a reading log config.
func (h HistoryConfig) ReadingLog() readinglog.Config {
	return readinglog.Config{
		Backend:   readinglog.Backend(h.Backend),
		Dir:       h.Dir,
		Bucket:    h.Bucket,
		Prefix:    h.Prefix,
		Retention: h.Retention,
		Database:  h.Database,
	}
}

// Calculator builds the AQI calculator for the configured profile.
func (c *Config) Calculator() (*aqi.Calculator, error) {
	profile, err := aqi.LookupProfile(c.AQIProfile)
	if err != nil {
		return nil, err
	}
	sat, err := aqi.ParseSaturation(c.AQISaturation)
	if err != nil {
		return nil, err
	}
	return aqi.NewCalculator(profile, sat), nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith processes configuration from the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zones, err := LoadZones(cfg.ZonesFile)
	if err != nil {
		return nil, err
	}
	cfg.Zones = zones

	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Calculator(); err != nil {
		return err
	}
	switch readinglog.Backend(c.History.Backend) {
	case readinglog.BackendLocal:
	case readinglog.BackendGCS:
		if c.History.Bucket == "" {
			return errors.New("HISTORY_BUCKET is required for the gcs backend")
		}
	case readinglog.BackendPostgres:
		if c.History.Database.Database == "" {
			return errors.New("DB_NAME is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND %q", c.History.Backend)
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.Providers.HTTPMaxRetries < 0 {
		return errors.New("HTTP_MAX_RETRIES must not be negative")
	}
	return nil
}

// zoneFile is the YAML layout of ZONES_FILE.
type zoneFile struct {
	Zones []airquality.Zone `yaml:"zones" validate:"required,min=1,unique=ID,dive"`
}

var zoneIDPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("zoneid", func(fl validator.FieldLevel) bool {
		return zoneIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// LoadZones reads and validates the zone file. An empty path yields
// DefaultZones.
func LoadZones(path string) ([]airquality.Zone, error) {
	if path == "" {
		return ValidateZones(DefaultZones())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}

	var file zoneFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse zones file %s: %w", path, err)
	}
	return ValidateZones(file.Zones)
}

// ValidateZones checks every zone, rejects duplicate ids and applies the
// default zone type.
func ValidateZones(zones []airquality.Zone) ([]airquality.Zone, error) {
	file := zoneFile{Zones: zones}
	if err := newValidator().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid zones: %w", err)
	}

	out := make([]airquality.Zone, len(zones))
	for i, z := range zones {
		if z.ZoneType == "" {
			z.ZoneType = airquality.DefaultZoneType
		}
		out[i] = z
	}
	return out, nil
}

// DefaultZones are served when no zone file is configured.
func DefaultZones() []airquality.Zone {
	return []airquality.Zone{
		{ID: "srinagar", Name: "Srinagar", Lat: 34.0837, Lon: 74.7973, ZoneType: "urban", Provider: "openmeteo"},
		{ID: "gulmarg", Name: "Gulmarg", Lat: 34.0484, Lon: 74.3805, ZoneType: "hills", Provider: "openmeteo"},
		{ID: "pahalgam", Name: "Pahalgam", Lat: 34.0161, Lon: 75.3150, ZoneType: "hills", Provider: "openmeteo"},
		{ID: "sonamarg", Name: "Sonamarg", Lat: 34.3032, Lon: 75.2931, ZoneType: "hills", Provider: "openmeteo"},
	}
}
