// Package config defines the top-level configuration for the resale
// dashboard service and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RESALEDASH_* environment variables.
type Config struct {
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Realtime  RealtimeConfig  `toml:"realtime"`
	Analytics AnalyticsConfig `toml:"analytics"`
	Views     []ViewConfig    `toml:"views"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN              string `toml:"dsn"`
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Database         string `toml:"database"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	SSLMode          string `toml:"ssl_mode"`
	PoolMaxConns     int    `toml:"pool_max_conns"`
	PoolMinConns     int    `toml:"pool_min_conns"`
	ApiURL           string `toml:"api_url"`
	ApiKey           string `toml:"api_key"`
	RunMigrations    bool   `toml:"run_migrations"`
	EncryptedDSNPath string `toml:"encrypted_dsn_path"`
	KeyPassword      string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	MaxUploadMB int      `toml:"max_upload_mb"`
}

// RealtimeConfig controls change notifications from the store.
type RealtimeConfig struct {
	Enabled          bool     `toml:"enabled"`
	Channel          string   `toml:"channel"`
	Debounce         duration `toml:"debounce"`
	WebhookSecret    string   `toml:"webhook_secret"`
	WebhookTolerance duration `toml:"webhook_tolerance"`
}

// AnalyticsConfig parameterises snapshots and the aggregation engine.
type AnalyticsConfig struct {
	Timezone        string          `toml:"timezone"`
	WindowDays      int             `toml:"window_days"`
	ImminentDays    int             `toml:"imminent_days"`
	SeriesDays      int             `toml:"series_days"`
	MaxSeriesDays   int             `toml:"max_series_days"`
	PageSize        int             `toml:"page_size"`
	MaxPageSize     int             `toml:"max_page_size"`
	MaxScanRows     int             `toml:"max_scan_rows"`
	FetchTimeout    duration        `toml:"fetch_timeout"`
	RefreshInterval duration        `toml:"refresh_interval"`
	CostModel       CostModelConfig `toml:"cost_model"`
}

// Location resolves Timezone, falling back to UTC.
func (a AnalyticsConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlatformCostConfig is the cost assumption for one platform, as fractions of
// the ticket price.
type PlatformCostConfig struct {
	CostFactor float64 `toml:"cost_factor"`
	FeeRate    float64 `toml:"fee_rate"`
}

// CostModelConfig overrides the built-in margin assumptions. Platform keys
// accept short codes or canonical names.
type CostModelConfig struct {
	Default   PlatformCostConfig            `toml:"default"`
	Platforms map[string]PlatformCostConfig `toml:"platforms"`
}

// ViewConfig is a named dashboard view preset.
type ViewConfig struct {
	Name     string   `toml:"name"`
	Title    string   `toml:"title"`
	Category string   `toml:"category"`
	EventIDs []string `toml:"event_ids"`
	Days     int      `toml:"days"`
	Limit    int      `toml:"limit"`
}

// PipelineConfig holds background job parameters.
type PipelineConfig struct {
	Enabled              bool     `toml:"enabled"`
	ArchiveEnabled       bool     `toml:"archive_enabled"`
	ArchiveCron          string   `toml:"archive_cron"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	HealthInterval       duration `toml:"health_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// Duration builds a duration value; handy when constructing a Config in code.
func Duration(d time.Duration) duration {
	return duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	AlertTTL          duration `toml:"alert_ttl"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 24 * 60,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "resaledash-exports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			MaxUploadMB: 10,
		},
		Realtime: RealtimeConfig{
			Enabled:          true,
			Channel:          "resale_changes",
			Debounce:         duration{750 * time.Millisecond},
			WebhookTolerance: duration{5 * time.Minute},
		},
		Analytics: AnalyticsConfig{
			Timezone:        "Europe/London",
			WindowDays:      7,
			ImminentDays:    14,
			SeriesDays:      30,
			MaxSeriesDays:   366,
			PageSize:        25,
			MaxPageSize:     500,
			MaxScanRows:     5000,
			FetchTimeout:    duration{15 * time.Second},
			RefreshInterval: duration{5 * time.Minute},
			CostModel: CostModelConfig{
				Default: PlatformCostConfig{CostFactor: 0.80, FeeRate: 0.10},
				Platforms: map[string]PlatformCostConfig{
					"LFT": {CostFactor: 0.80, FeeRate: 0.10},
					"TIX": {CostFactor: 0.80, FeeRate: 0.08},
					"FP":  {CostFactor: 0.82, FeeRate: 0.12},
					"LTG": {CostFactor: 0.78, FeeRate: 0.10},
				},
			},
		},
		Views: []ViewConfig{
			{Name: "all", Title: "All Sales"},
			{Name: "liverpool", Title: "Liverpool", Category: "Liverpool"},
			{Name: "world-cup", Title: "World Cup", Category: "World Cup"},
		},
		Pipeline: PipelineConfig{
			Enabled:              true,
			ArchiveEnabled:       false,
			ArchiveCron:          "30 2 * * *",
			ArchiveRetentionDays: 90,
			HealthInterval:       duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:   []string{"risk_high", "service_error", "import_completed"},
			AlertTTL: duration{6 * time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var (
	validModes     = []string{"serve", "worker", "full"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// problems accumulates validation failures as "section: message" lines.
type problems []string

func (p *problems) add(section, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if section != "" {
		msg = section + ": " + msg
	}
	*p = append(*p, msg)
}

func (p *problems) check(ok bool, section, format string, args ...any) {
	if !ok {
		p.add(section, format, args...)
	}
}

func validPort(port int) bool { return port > 0 && port <= 65535 }

// Validate reports every invalid or missing setting in one error.
func (c *Config) Validate() error {
	var p problems

	p.check(slices.Contains(validModes, strings.ToLower(c.Mode)), "",
		"unknown mode %q (valid: %s)", c.Mode, strings.Join(validModes, ", "))
	p.check(slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)), "",
		"unknown log_level %q (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))

	c.Supabase.validate(&p)

	p.check(c.Redis.Addr != "", "redis", "addr must not be empty")
	p.check(c.Redis.PoolSize >= 1, "redis", "pool_size must be >= 1")

	// Object storage is optional unless archiving is on.
	if c.Pipeline.ArchiveEnabled {
		p.check(c.S3.Bucket != "", "s3", "bucket must not be empty when pipeline.archive_enabled")
		p.check(c.S3.Region != "", "s3", "region must not be empty when pipeline.archive_enabled")
		p.check(strings.TrimSpace(c.Pipeline.ArchiveCron) != "", "pipeline", "archive_cron must not be empty when archive_enabled")
	}
	p.check(c.Pipeline.ArchiveRetentionDays >= 0, "pipeline", "archive_retention_days must be >= 0")

	if c.Server.Enabled {
		p.check(validPort(c.Server.Port), "server", "port must be 1-65535, got %d", c.Server.Port)
		p.check(c.Server.RateLimit <= 0 || c.Server.RateWindow.Duration > 0,
			"server", "rate_window must be > 0 when rate_limit is set")
	}
	p.check(!c.Realtime.Enabled || c.Realtime.Channel != "", "realtime", "channel must not be empty when enabled")

	c.Analytics.validate(&p)
	c.validateViews(&p)

	if len(p) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (s SupabaseConfig) validate(p *problems) {
	if strings.TrimSpace(s.DSN) == "" && s.EncryptedDSNPath == "" {
		p.check(s.Host != "", "supabase", "host must not be empty (or set supabase.dsn)")
		p.check(validPort(s.Port), "supabase", "port must be 1-65535, got %d", s.Port)
		p.check(s.Database != "", "supabase", "database must not be empty")
	}
	p.check(s.EncryptedDSNPath == "" || s.KeyPassword != "",
		"supabase", "key_password is required when encrypted_dsn_path is set")
	p.check(s.PoolMaxConns >= 1, "supabase", "pool_max_conns must be >= 1")
	p.check(s.PoolMinConns >= 0 && s.PoolMinConns <= s.PoolMaxConns,
		"supabase", "pool_min_conns must be between 0 and pool_max_conns")
}

func (a AnalyticsConfig) validate(p *problems) {
	if a.Timezone != "" {
		_, err := time.LoadLocation(a.Timezone)
		p.check(err == nil, "analytics", "unknown timezone %q", a.Timezone)
	}
	p.check(a.WindowDays >= 1, "analytics", "window_days must be >= 1")
	p.check(a.ImminentDays >= 0, "analytics", "imminent_days must be >= 0")
	p.check(a.SeriesDays >= 1, "analytics", "series_days must be >= 1")
	p.check(a.MaxSeriesDays >= a.SeriesDays, "analytics", "max_series_days must be >= series_days")
	p.check(a.PageSize >= 1, "analytics", "page_size must be >= 1")
	p.check(a.MaxPageSize >= a.PageSize, "analytics", "max_page_size must be >= page_size")
	p.check(a.MaxScanRows >= 1, "analytics", "max_scan_rows must be >= 1")
	p.check(a.FetchTimeout.Duration > 0, "analytics", "fetch_timeout must be > 0")
	for _, msg := range a.CostModel.validate() {
		p.add("analytics.cost_model", "%s", msg)
	}
}

func (c *Config) validateViews(p *problems) {
	p.check(len(c.Views) > 0, "views", "at least one view must be configured")
	seen := make(map[string]bool, len(c.Views))
	for i, v := range c.Views {
		switch {
		case v.Name == "":
			p.add("views["+strconv.Itoa(i)+"]", "name must not be empty")
		case seen[v.Name]:
			p.add("views", "duplicate view name %q", v.Name)
		case strings.ContainsAny(v.Name, "/ "):
			p.add("views", "name %q must not contain spaces or slashes", v.Name)
		}
		seen[v.Name] = true
		p.check(v.Days >= 0 && v.Limit >= 0, "views", "%q days and limit must be >= 0", v.Name)
	}
}

func (m CostModelConfig) validate() []string {
	var errs []string
	check := func(name string, pc PlatformCostConfig) {
		if pc.CostFactor < 0 || pc.FeeRate < 0 {
			errs = append(errs, name+" factors must be >= 0")
		}
	}
	check("default", m.Default)
	for name, pc := range m.Platforms {
		check(name, pc)
	}
	return errs
}
