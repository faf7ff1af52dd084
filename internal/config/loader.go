package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RESALEDASH_* environment variable overrides, and
// returns the final Config. A missing file is not an error when path is
// empty. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		// Views are decoded into an empty list so a file's [[views]] replace
		// the presets instead of merging field by field into them.
		cfg.Views = nil
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, err
		}
		if !md.IsDefined("views") {
			cfg.Views = Defaults().Views
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RESALEDASH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "RESALEDASH_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "RESALEDASH_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "RESALEDASH_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "RESALEDASH_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "RESALEDASH_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "RESALEDASH_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "RESALEDASH_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "RESALEDASH_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "RESALEDASH_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "RESALEDASH_SUPABASE_POOL_MIN_CONNS")
	setStr(&cfg.Supabase.ApiURL, "RESALEDASH_SUPABASE_API_URL")
	setStr(&cfg.Supabase.ApiKey, "RESALEDASH_SUPABASE_API_KEY")
	setBool(&cfg.Supabase.RunMigrations, "RESALEDASH_SUPABASE_RUN_MIGRATIONS")
	setStr(&cfg.Supabase.EncryptedDSNPath, "RESALEDASH_SUPABASE_ENCRYPTED_DSN_PATH")
	setStr(&cfg.Supabase.KeyPassword, "RESALEDASH_SUPABASE_KEY_PASSWORD")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RESALEDASH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RESALEDASH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RESALEDASH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RESALEDASH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RESALEDASH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RESALEDASH_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "RESALEDASH_REDIS_CACHE_TTL_MINUTES")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "RESALEDASH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RESALEDASH_S3_REGION")
	setStr(&cfg.S3.Bucket, "RESALEDASH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RESALEDASH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RESALEDASH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RESALEDASH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RESALEDASH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RESALEDASH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RESALEDASH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RESALEDASH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "RESALEDASH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "RESALEDASH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RESALEDASH_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.MaxUploadMB, "RESALEDASH_SERVER_MAX_UPLOAD_MB")

	// ── Realtime ──
	setBool(&cfg.Realtime.Enabled, "RESALEDASH_REALTIME_ENABLED")
	setStr(&cfg.Realtime.Channel, "RESALEDASH_REALTIME_CHANNEL")
	setDuration(&cfg.Realtime.Debounce, "RESALEDASH_REALTIME_DEBOUNCE")
	setStr(&cfg.Realtime.WebhookSecret, "RESALEDASH_REALTIME_WEBHOOK_SECRET")
	setDuration(&cfg.Realtime.WebhookTolerance, "RESALEDASH_REALTIME_WEBHOOK_TOLERANCE")

	// ── Analytics ──
	setStr(&cfg.Analytics.Timezone, "RESALEDASH_ANALYTICS_TIMEZONE")
	setInt(&cfg.Analytics.WindowDays, "RESALEDASH_ANALYTICS_WINDOW_DAYS")
	setInt(&cfg.Analytics.ImminentDays, "RESALEDASH_ANALYTICS_IMMINENT_DAYS")
	setInt(&cfg.Analytics.SeriesDays, "RESALEDASH_ANALYTICS_SERIES_DAYS")
	setInt(&cfg.Analytics.MaxSeriesDays, "RESALEDASH_ANALYTICS_MAX_SERIES_DAYS")
	setInt(&cfg.Analytics.PageSize, "RESALEDASH_ANALYTICS_PAGE_SIZE")
	setInt(&cfg.Analytics.MaxScanRows, "RESALEDASH_ANALYTICS_MAX_SCAN_ROWS")
	setDuration(&cfg.Analytics.FetchTimeout, "RESALEDASH_ANALYTICS_FETCH_TIMEOUT")
	setDuration(&cfg.Analytics.RefreshInterval, "RESALEDASH_ANALYTICS_REFRESH_INTERVAL")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "RESALEDASH_PIPELINE_ENABLED")
	setBool(&cfg.Pipeline.ArchiveEnabled, "RESALEDASH_PIPELINE_ARCHIVE_ENABLED")
	setStr(&cfg.Pipeline.ArchiveCron, "RESALEDASH_PIPELINE_ARCHIVE_CRON")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "RESALEDASH_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Pipeline.HealthInterval, "RESALEDASH_PIPELINE_HEALTH_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RESALEDASH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RESALEDASH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RESALEDASH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RESALEDASH_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.AlertTTL, "RESALEDASH_NOTIFY_ALERT_TTL")

	// ── Top-level ──
	setStr(&cfg.Mode, "RESALEDASH_MODE")
	setStr(&cfg.LogLevel, "RESALEDASH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
