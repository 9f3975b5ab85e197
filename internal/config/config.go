package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// Storage
	DBPath      string `env:"DB_PATH" envDefault:"data/not_telegram.db"`
	CatalogPath string `env:"CATALOG_PATH"`

	// Conversations
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SessionSweepSpec string        `env:"SESSION_SWEEP_SPEC" envDefault:"@every 5m"`

	// Daily report to the admin, cron syntax in UTC
	ReportSpec string `env:"REPORT_SPEC" envDefault:"0 21 * * *"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
