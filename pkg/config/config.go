// Package config loads starfan's configuration from a TOML file and
// STARFAN_* environment variables.
//
// The only required value is the GitHub token. Everything else has a default
// matching a plain run: ten pages of one hundred Rust repositories.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/starfan/pkg/cache"
	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/spf13/viper"
)

// ErrConfig is wrapped by every configuration error. It is fatal: the run
// never starts.
var ErrConfig = errors.New("config error")

// EnvPrefix prefixes every environment override, e.g. STARFAN_TOKEN or
// STARFAN_SEARCH_PAGE_COUNT.
const EnvPrefix = "STARFAN"

// Config holds all application configuration.
type Config struct {
	Token       string            `mapstructure:"token"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Search      SearchConfig      `mapstructure:"search"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Progress    ProgressConfig    `mapstructure:"progress"`
}

// GitHubConfig holds REST client settings.
type GitHubConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SearchConfig describes the fixed search that is planned up front.
type SearchConfig struct {
	Filter    string `mapstructure:"filter"`
	Language  string `mapstructure:"language"`
	PageCount int    `mapstructure:"page_count"`
	PageSize  int    `mapstructure:"page_size"`
}

// ConcurrencyConfig bounds the fan-out.
type ConcurrencyConfig struct {
	PageWorkers int           `mapstructure:"page_workers"`
	MaxInFlight int           `mapstructure:"max_in_flight"` // 0 = unbounded
	PageTimeout time.Duration `mapstructure:"page_timeout"`
	MarkTimeout time.Duration `mapstructure:"mark_timeout"`
}

// RedisConfig enables rate limit tracking and the search cache. An empty
// Addr disables both.
type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	CacheSearch bool   `mapstructure:"cache_search"`

	// CacheRetention keeps expired pages around as ETag validators.
	CacheRetention time.Duration `mapstructure:"cache_retention"`

	// PurgeOnStart drops this token's cached search pages before the run.
	PurgeOnStart bool `mapstructure:"purge_on_start"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ProgressConfig toggles the progress renderer.
type ProgressConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Default returns the default configuration (without a token).
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			BaseURL:   client.DefaultBaseURL,
			UserAgent: client.DefaultUserAgent,
			Timeout:   30 * time.Second,
		},
		Search: SearchConfig{
			Filter:    "Rust language",
			Language:  "Rust",
			PageCount: 10,
			PageSize:  100,
		},
		Concurrency: ConcurrencyConfig{
			PageWorkers: 10,
			MaxInFlight: 0,
			PageTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			CacheSearch:    true,
			CacheRetention: cache.DefaultRetention,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Progress: ProgressConfig{
			Enabled: true,
		},
	}
}

// defaultConfigPath returns $HOME/.config/starfan.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "starfan")
}

// Load reads config.toml from $STARFAN_CONFIG (a file or directory), the
// working directory and $HOME/.config/starfan, applies STARFAN_* environment
// overrides and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		if info, err := os.Stat(explicit); err == nil && !info.IsDir() {
			v.SetConfigFile(explicit)
		} else {
			v.SetConfigName("config")
			v.AddConfigPath(explicit)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if dir := defaultConfigPath(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	return load(v)
}

// LoadFile reads configuration from path only, plus environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v, Default())

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: read config file: %w", ErrConfig, err)
		}
		// A missing file is fine when the token comes from the environment.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token", "")
	v.SetDefault("github.base_url", d.GitHub.BaseURL)
	v.SetDefault("github.user_agent", d.GitHub.UserAgent)
	v.SetDefault("github.timeout", d.GitHub.Timeout)
	v.SetDefault("search.filter", d.Search.Filter)
	v.SetDefault("search.language", d.Search.Language)
	v.SetDefault("search.page_count", d.Search.PageCount)
	v.SetDefault("search.page_size", d.Search.PageSize)
	v.SetDefault("concurrency.page_workers", d.Concurrency.PageWorkers)
	v.SetDefault("concurrency.max_in_flight", d.Concurrency.MaxInFlight)
	v.SetDefault("concurrency.page_timeout", d.Concurrency.PageTimeout)
	v.SetDefault("concurrency.mark_timeout", d.Concurrency.MarkTimeout)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.cache_search", d.Redis.CacheSearch)
	v.SetDefault("redis.cache_retention", d.Redis.CacheRetention)
	v.SetDefault("redis.purge_on_start", d.Redis.PurgeOnStart)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("progress.enabled", d.Progress.Enabled)
}

// Validate checks the configuration. Every error wraps ErrConfig.
func (c *Config) Validate() error {
	if err := client.ValidateToken(c.Token); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if c.Search.PageCount < 1 {
		return fmt.Errorf("%w: search.page_count must be at least 1 (got %d)", ErrConfig, c.Search.PageCount)
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 100 {
		return fmt.Errorf("%w: search.page_size must be between 1 and 100 (got %d)", ErrConfig, c.Search.PageSize)
	}
	if c.Concurrency.MaxInFlight < 0 {
		return fmt.Errorf("%w: concurrency.max_in_flight must not be negative (got %d)", ErrConfig, c.Concurrency.MaxInFlight)
	}
	if c.GitHub.UserAgent == "" {
		return fmt.Errorf("%w: github.user_agent is required", ErrConfig)
	}
	return nil
}

// ClientConfig maps the configuration onto a client.Config.
// The Redis handle is attached by the caller.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Token)
	cfg.BaseURL = c.GitHub.BaseURL
	cfg.UserAgent = c.GitHub.UserAgent
	if c.GitHub.Timeout > 0 {
		cfg.Timeout = c.GitHub.Timeout
	}
	cfg.CacheSearch = c.Redis.CacheSearch
	cfg.CacheRetention = c.Redis.CacheRetention
	return cfg
}
