package config

import "maps"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Supabase
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Supabase.ApiKey)
	redact(&out.Supabase.KeyPassword)

	// Redis
	redact(&out.Redis.Password)

	// S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Server / realtime
	redact(&out.Server.ApiKey)
	redact(&out.Realtime.WebhookSecret)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Views != nil {
		out.Views = make([]ViewConfig, len(cfg.Views))
		for i, v := range cfg.Views {
			v.EventIDs = append([]string(nil), v.EventIDs...)
			out.Views[i] = v
		}
	}
	if cfg.Analytics.CostModel.Platforms != nil {
		out.Analytics.CostModel.Platforms = maps.Clone(cfg.Analytics.CostModel.Platforms)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
