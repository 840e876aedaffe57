package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	redact(&out.ExchangeA.ApiKey)
	redact(&out.ExchangeB.ApiKey)
	redact(&out.ExchangeB.PrivateKeyBase64)
	redact(&out.ExchangeB.KeyPassword)
	redact(&out.Analyst.ApiKey)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.Archive.AccessKey)
	redact(&out.Archive.SecretKey)
	redact(&out.Server.ApiKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.ExchangeA.AssetIDs != nil {
		out.ExchangeA.AssetIDs = append([]string(nil), cfg.ExchangeA.AssetIDs...)
	}
	if cfg.ExchangeB.Tickers != nil {
		out.ExchangeB.Tickers = append([]string(nil), cfg.ExchangeB.Tickers...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.DemoProbs != nil {
		out.DemoProbs = make(map[string]float64, len(cfg.DemoProbs))
		for k, v := range cfg.DemoProbs {
			out.DemoProbs[k] = v
		}
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
