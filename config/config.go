package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the engine and its HTTP host read from the
// environment. Pricing and commission knobs live here so deployments can
// adjust policy without a schema change.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"8080"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		URL string `env:"URL,required"`
	} `envPrefix:"DATABASE_"`
	JWT struct {
		Secret     string `env:"SECRET,required"`
		Expiration int    `env:"EXPIRATION" envDefault:"86400"`
	} `envPrefix:"JWT_"`
	Pricing struct {
		// DefaultCredits is charged when no active rate entry matches.
		DefaultCredits int64 `env:"DEFAULT_CREDITS" envDefault:"5"`
		// FallbackEnabled=false turns an unmatched lookup into an error
		// instead of the default price.
		FallbackEnabled bool `env:"FALLBACK_ENABLED" envDefault:"true"`
	} `envPrefix:"PRICING_"`
	Commission struct {
		// Basis selects the price the vendor commission is computed on:
		// "final" (after discount) or "original".
		Basis string `env:"BASIS" envDefault:"final"`
		// DueMonths is added to the purchase time to produce the payout due date.
		DueMonths int `env:"DUE_MONTHS" envDefault:"4"`
	} `envPrefix:"COMMISSION_"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// surface only the first problem to keep startup logs readable
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}
	if cfg.Commission.Basis != "final" && cfg.Commission.Basis != "original" {
		return nil, errors.New("config: COMMISSION_BASIS must be \"final\" or \"original\"")
	}
	return cfg, nil
}
