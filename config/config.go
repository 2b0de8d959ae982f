// Package config loads runtime configuration from an optional YAML file, a
// .env file and SCRAPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/artscrape/article"
	"github.com/pevans/artscrape/logging"
	"github.com/pevans/artscrape/scraper"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so database.dsn is
// read from SCRAPER_DATABASE_DSN.
const EnvPrefix = "SCRAPER"

// Config represents the complete configuration.
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects the article store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig contains read API settings.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// ScraperConfig contains scrape run settings.
type ScraperConfig struct {
	SitesFile     string        `mapstructure:"sites_file"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	RenderWait    time.Duration `mapstructure:"render_wait"`
	UserAgent     string        `mapstructure:"user_agent"`
	ChromePath    string        `mapstructure:"chrome_path"`
	Preflight     bool          `mapstructure:"preflight"`
	SkipExisting  bool          `mapstructure:"skip_existing"`
}

// FetchersConfig converts the scraper settings for scraper.NewFetchers.
func (c ScraperConfig) FetchersConfig() scraper.FetchersConfig {
	return scraper.FetchersConfig{
		HTTPTimeout:   c.HTTPTimeout,
		RenderTimeout: c.RenderTimeout,
		RenderWait:    c.RenderWait,
		UserAgent:     c.UserAgent,
		ChromePath:    c.ChromePath,
		Preflight:     c.Preflight,
	}
}

// Load reads configuration. An explicit cfgFile must exist; without one,
// scraper.yaml is looked up in the working directory and is optional.
// Environment variables override the file and .env fills in variables that
// are not already set.
func Load(cfgFile string) (*Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, cfgFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	v.SetDefault("database.driver", article.DriverSQLite)
	v.SetDefault("database.dsn", "scraper.db")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("scraper.sites_file", "websites.yaml")
	v.SetDefault("scraper.http_timeout", scraper.DefaultHTTPTimeout)
	v.SetDefault("scraper.render_timeout", scraper.DefaultRenderTimeout)
	v.SetDefault("scraper.render_wait", scraper.DefaultRenderWait)
	v.SetDefault("scraper.user_agent", scraper.DefaultUserAgent)
	v.SetDefault("scraper.chrome_path", "")
	v.SetDefault("scraper.preflight", true)
	v.SetDefault("scraper.skip_existing", false)
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	switch c.Database.Driver {
	case article.DriverSQLite, article.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q",
			article.DriverSQLite, article.DriverPostgres, c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Scraper.SitesFile == "" {
		errs = append(errs, errors.New("scraper.sites_file is required"))
	}

	if c.Scraper.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("scraper.http_timeout must be positive"))
	}
	if c.Scraper.RenderTimeout <= 0 {
		errs = append(errs, errors.New("scraper.render_timeout must be positive"))
	}
	if c.Scraper.RenderWait < 0 {
		errs = append(errs, errors.New("scraper.render_wait must not be negative"))
	}

	return errors.Join(errs...)
}
