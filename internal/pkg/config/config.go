package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Imagery     ImageryConfig     `mapstructure:"imagery"`
	SentinelHub SentinelHubConfig `mapstructure:"sentinelhub"`
	Esri        EsriConfig        `mapstructure:"esri"`
	Links       LinksConfig       `mapstructure:"links"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	ReadTimeout   int    `mapstructure:"read_timeout"`
	WriteTimeout  int    `mapstructure:"write_timeout"`
	AllowOrigins  string `mapstructure:"allow_origins"`
	RatePerMinute int    `mapstructure:"rate_per_minute"` // 0 disables
	SessionTTL    int    `mapstructure:"session_ttl"`     // seconds
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Strategy selection values for imagery.strategy.
const (
	StrategyAuto          = "auto"
	StrategyStatic        = "static"
	StrategyAuthenticated = "authenticated"
)

type ImageryConfig struct {
	Strategy      string `mapstructure:"strategy"`
	ParallelFetch bool   `mapstructure:"parallel_fetch"`
	CacheTTL      int    `mapstructure:"cache_ttl"` // seconds, 0 disables
	BeforeFrom    string `mapstructure:"before_from"`
	BeforeTo      string `mapstructure:"before_to"`
	RecentMonths  int    `mapstructure:"recent_months"`
	Width         int    `mapstructure:"width"`
	Height        int    `mapstructure:"height"`
	Format        string `mapstructure:"format"`
	SceneMaxCloud int    `mapstructure:"scene_max_cloud"`
}

// BeforeWindow returns the fixed historical window.
func (c ImageryConfig) BeforeWindow() (domain.Period, error) {
	from, err := domain.ParseDate(c.BeforeFrom)
	if err != nil {
		return domain.Period{}, err
	}
	to, err := domain.ParseDate(c.BeforeTo)
	if err != nil {
		return domain.Period{}, err
	}
	p := domain.Period{From: from, To: to}
	return p, p.Validate()
}

type SentinelHubConfig struct {
	TokenURL      string  `mapstructure:"token_url"`
	ProcessURL    string  `mapstructure:"process_url"`
	ClientID      string  `mapstructure:"client_id"`
	ClientSecret  string  `mapstructure:"client_secret"`
	Collection    string  `mapstructure:"collection"`
	Brightness    float64 `mapstructure:"brightness"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Timeout       int     `mapstructure:"timeout"` // seconds
}

// HasCredentials reports whether both client credentials are set.
func (c SentinelHubConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c SentinelHubConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type EsriConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	PrimaryZoom  int    `mapstructure:"primary_zoom"`
	FallbackZoom int    `mapstructure:"fallback_zoom"`
}

type LinksConfig struct {
	DateFrom string `mapstructure:"date_from"`
	DateTo   string `mapstructure:"date_to"`
	Zoom     int    `mapstructure:"zoom"`
}

// Window returns the portal date window.
func (c LinksConfig) Window() (domain.Period, error) {
	from, err := domain.ParseDate(c.DateFrom)
	if err != nil {
		return domain.Period{}, err
	}
	to, err := domain.ParseDate(c.DateTo)
	if err != nil {
		return domain.Period{}, err
	}
	p := domain.Period{From: from, To: to}
	return p, p.Validate()
}

// UseAuthenticated reports whether the processing API should be tried first.
func (c *Config) UseAuthenticated() bool {
	switch c.Imagery.Strategy {
	case StrategyAuthenticated:
		return true
	case StrategyStatic:
		return false
	default:
		return c.SentinelHub.HasCredentials()
	}
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: EUDRSAT_SENTINELHUB_CLIENT_ID → sentinelhub.client_id
	v.SetEnvPrefix("EUDRSAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.allow_origins", "*")
	v.SetDefault("server.rate_per_minute", 120)
	v.SetDefault("server.session_ttl", 3600)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "eudrsat")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "eudrsat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "eudrsat:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "imagery-fetch")

	v.SetDefault("imagery.strategy", StrategyAuto)
	v.SetDefault("imagery.parallel_fetch", false)
	v.SetDefault("imagery.cache_ttl", 3600)
	v.SetDefault("imagery.before_from", "2020-06-01")
	v.SetDefault("imagery.before_to", "2020-12-30")
	v.SetDefault("imagery.recent_months", 3)
	v.SetDefault("imagery.width", 512)
	v.SetDefault("imagery.height", 512)
	v.SetDefault("imagery.format", "image/png")
	v.SetDefault("imagery.scene_max_cloud", 20)

	// Credentials have no default; supply them through the environment.
	v.SetDefault("sentinelhub.token_url", "https://services.sentinel-hub.com/oauth/token")
	v.SetDefault("sentinelhub.process_url", "https://services.sentinel-hub.com/api/v1/process")
	v.SetDefault("sentinelhub.client_id", "")
	v.SetDefault("sentinelhub.client_secret", "")
	v.SetDefault("sentinelhub.collection", "sentinel-2-l2a")
	v.SetDefault("sentinelhub.brightness", 2.5)
	v.SetDefault("sentinelhub.rate_per_second", 5)
	v.SetDefault("sentinelhub.timeout", 30)

	v.SetDefault("esri.base_url", "https://services.arcgisonline.com/arcgis/rest/services/World_Imagery/MapServer")
	v.SetDefault("esri.primary_zoom", 14)
	v.SetDefault("esri.fallback_zoom", 13)

	v.SetDefault("links.date_from", "2020-01-01")
	v.SetDefault("links.date_to", "2024-12-31")
	v.SetDefault("links.zoom", 13)
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RatePerMinute < 0 {
		errs = append(errs, "server.rate_per_minute must not be negative")
	}
	if c.Server.SessionTTL <= 0 {
		errs = append(errs, "server.session_ttl must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	switch c.Imagery.Strategy {
	case StrategyAuto, StrategyStatic:
	case StrategyAuthenticated:
		if !c.SentinelHub.HasCredentials() {
			errs = append(errs, "imagery.strategy=authenticated requires sentinelhub.client_id and sentinelhub.client_secret")
		}
	default:
		errs = append(errs, fmt.Sprintf("imagery.strategy must be auto, static or authenticated, got %q", c.Imagery.Strategy))
	}
	if _, err := c.Imagery.BeforeWindow(); err != nil {
		errs = append(errs, "imagery.before_from/before_to: "+err.Error())
	}
	if c.Imagery.RecentMonths <= 0 {
		errs = append(errs, "imagery.recent_months must be positive")
	}
	if c.Imagery.Width <= 0 || c.Imagery.Height <= 0 || c.Imagery.Width > 2500 || c.Imagery.Height > 2500 {
		errs = append(errs, "imagery.width and imagery.height must be 1-2500")
	}
	if c.Imagery.CacheTTL < 0 {
		errs = append(errs, "imagery.cache_ttl must not be negative")
	}
	if c.Imagery.SceneMaxCloud < 0 || c.Imagery.SceneMaxCloud > 100 {
		errs = append(errs, "imagery.scene_max_cloud must be 0-100")
	}
	if c.SentinelHub.Brightness <= 0 {
		errs = append(errs, "sentinelhub.brightness must be positive")
	}
	if c.SentinelHub.Timeout <= 0 {
		errs = append(errs, "sentinelhub.timeout must be positive")
	}
	if c.Esri.BaseURL == "" {
		errs = append(errs, "esri.base_url is required")
	}
	for name, z := range map[string]int{"esri.primary_zoom": c.Esri.PrimaryZoom, "esri.fallback_zoom": c.Esri.FallbackZoom} {
		if z < 0 || z > 23 {
			errs = append(errs, fmt.Sprintf("%s must be 0-23, got %d", name, z))
		}
	}
	if _, err := c.Links.Window(); err != nil {
		errs = append(errs, "links.date_from/date_to: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
