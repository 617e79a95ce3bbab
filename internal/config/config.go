// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	DB      DBConfig      `mapstructure:"db"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Sources SourcesConfig `mapstructure:"sources"`
}

// ServerConfig controls the operational HTTP endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig holds Postgres pool settings.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// FetchConfig governs outbound HTTP behavior shared by every source.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	UserAgent      string `mapstructure:"user_agent"`
}

// BatchConfig shapes the driver's work-list batches.
type BatchConfig struct {
	Size    int `mapstructure:"size"`
	PauseMs int `mapstructure:"pause_ms"`
}

// SourcesConfig holds the per-source sections.
type SourcesConfig struct {
	Pension  PensionSourceConfig            `mapstructure:"pension"`
	Houjin   HoujinSourceConfig             `mapstructure:"houjin"`
	JobBoard JobBoardSourceConfig           `mapstructure:"jobboard"`
	Profiles map[string]ProfileSourceConfig `mapstructure:"profiles"`
}

// PensionSourceConfig configures the coverage-registry source.
type PensionSourceConfig struct {
	SearchURL  string `mapstructure:"search_url"`
	Charset    string `mapstructure:"charset"`
	MinDelayMs int    `mapstructure:"min_delay_ms"`
}

// HoujinSourceConfig configures the corporate-number registry source.
type HoujinSourceConfig struct {
	SearchURL  string `mapstructure:"search_url"`
	Charset    string `mapstructure:"charset"`
	MinDelayMs int    `mapstructure:"min_delay_ms"`
}

// JobBoardSourceConfig configures the job-board source.
type JobBoardSourceConfig struct {
	SearchURL      string `mapstructure:"search_url"`
	DetailURL      string `mapstructure:"detail_url"`
	OccupationCode string `mapstructure:"occupation_code"`
	PageSize       int    `mapstructure:"page_size"`
	Charset        string `mapstructure:"charset"`
	MinDelayMs     int    `mapstructure:"min_delay_ms"`
	PagePauseMs    int    `mapstructure:"page_pause_ms"`
}

// ProfileSourceConfig configures one company-profile site.
type ProfileSourceConfig struct {
	URLPattern    string `mapstructure:"url_pattern"`
	ItemSelector  string `mapstructure:"item_selector"`
	LabelSelector string `mapstructure:"label_selector"`
	ValueSelector string `mapstructure:"value_selector"`
	NameLabel     string `mapstructure:"name_label"`
	AddressLabel  string `mapstructure:"address_label"`
	MinDelayMs    int    `mapstructure:"min_delay_ms"`
}

// Load reads configuration from the optional file at path, applies
// PIPELINE_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("batch.size", 1000)
	v.SetDefault("batch.pause_ms", 1000)
	v.SetDefault("sources.pension.search_url", "https://www2.nenkin.go.jp/do/search_section")
	v.SetDefault("sources.pension.min_delay_ms", 1000)
	v.SetDefault("sources.houjin.search_url", "https://www.houjin-bangou.nta.go.jp/kensaku-kekka.html")
	v.SetDefault("sources.houjin.min_delay_ms", 1000)
	v.SetDefault("sources.jobboard.search_url", "https://www.hellowork.mhlw.go.jp/kensaku/GECA110010.do")
	v.SetDefault("sources.jobboard.detail_url", "https://www.hellowork.mhlw.go.jp/kensaku/GECA110010.do")
	v.SetDefault("sources.jobboard.occupation_code", "09,4")
	v.SetDefault("sources.jobboard.page_size", 50)
	v.SetDefault("sources.jobboard.min_delay_ms", 1000)
	v.SetDefault("sources.jobboard.page_pause_ms", 1000)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Sources.Pension.SearchURL == "" {
		return fmt.Errorf("sources.pension.search_url is required")
	}
	if c.Sources.Houjin.SearchURL == "" {
		return fmt.Errorf("sources.houjin.search_url is required")
	}
	for name, p := range c.Sources.Profiles {
		if p.URLPattern == "" {
			return fmt.Errorf("sources.profiles.%s.url_pattern is required", name)
		}
		if !strings.Contains(p.URLPattern, "%d") {
			return fmt.Errorf("sources.profiles.%s.url_pattern must contain %%d", name)
		}
	}
	return nil
}

// FetchTimeout is the per-request HTTP budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BatchPause is the idle time between work-list batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Batch.PauseMs) * time.Millisecond
}

// SourceDelays maps each configured source to its minimum delay between
// outbound fetches, feeding the per-source limiter.
func (c Config) SourceDelays() map[string]time.Duration {
	delays := map[string]time.Duration{
		"pension":  time.Duration(c.Sources.Pension.MinDelayMs) * time.Millisecond,
		"houjin":   time.Duration(c.Sources.Houjin.MinDelayMs) * time.Millisecond,
		"jobboard": time.Duration(c.Sources.JobBoard.MinDelayMs) * time.Millisecond,
	}
	for name, p := range c.Sources.Profiles {
		delays[name] = time.Duration(p.MinDelayMs) * time.Millisecond
	}
	return delays
}

// MaxConnLifetime converts the configured minutes into a duration.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}
