package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/calendarhub/libs/config"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/providers"
)

// buildProviders returns one provider per configured OAuth client. A provider
// without a client id is left out.
func buildProviders(logger *slog.Logger) []providers.Provider {
	shared := providers.Config{
		RequestTimeout:  config.Seconds("PROVIDER_REQUEST_TIMEOUT_SECONDS", providers.DefaultRequestTimeout),
		RatePerSecond:   float64(config.PositiveInt("PROVIDER_RATE_PER_SECOND", 10)),
		LookAhead:       time.Duration(config.PositiveInt("LOOKAHEAD_DAYS", 7)) * 24 * time.Hour,
		MaxAlternatives: config.PositiveInt("MAX_ALTERNATIVES", providers.DefaultMaxAlternatives),
		Logger:          logger,
	}

	var out []providers.Provider
	if id := strings.TrimSpace(config.String("GOOGLE_CLIENT_ID", "")); id != "" {
		cfg := shared
		cfg.ClientID = id
		cfg.ClientSecret = config.String("GOOGLE_CLIENT_SECRET", "")
		cfg.RedirectURL = config.String("GOOGLE_REDIRECT_URL", "")
		cfg.BaseURL = config.String("GOOGLE_API_BASE_URL", "")
		out = append(out, providers.NewGoogle(cfg))
		logger.Info("calendar provider enabled", "provider", "google")
	}
	if id := strings.TrimSpace(config.String("MICROSOFT_CLIENT_ID", "")); id != "" {
		cfg := shared
		cfg.ClientID = id
		cfg.ClientSecret = config.String("MICROSOFT_CLIENT_SECRET", "")
		cfg.RedirectURL = config.String("MICROSOFT_REDIRECT_URL", "")
		cfg.BaseURL = config.String("MICROSOFT_API_BASE_URL", "")
		out = append(out, providers.NewOutlook(cfg, config.String("MICROSOFT_TENANT", "common")))
		logger.Info("calendar provider enabled", "provider", "outlook")
	}
	return out
}
