package infra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"sidestake"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"sidestake"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"sidestake"`

	// Chat surface
	BotToken    string `env:"BOT_TOKEN"`
	AdminIDsRaw string `env:"ADMIN_IDS"`

	// Crypto Pay
	CryptoPayToken     string `env:"CRYPTO_PAY_TOKEN"`
	CryptoPayBaseURL   string `env:"CRYPTO_PAY_BASE_URL" envDefault:"https://pay.crypt.bot/api"`
	CryptoDefaultAsset string `env:"CRYPTO_DEFAULT_ASSET" envDefault:"USDT"`

	// Platform fee, decimal fraction of the matched total (0.10 = 10%).
	FeePct float64 `env:"FEE_PCT" envDefault:"0.10"`

	// Google Sheets catalog
	GSheetAPIKey        string `env:"GSHEET_API_KEY"`
	GSheetSpreadsheetID string `env:"GSHEET_SPREADSHEET_ID"`
	GSheetRange         string `env:"GSHEET_RANGE" envDefault:"Sheet1!A:I"`
	GSheetPollSeconds   int    `env:"GSHEET_POLL_SECONDS" envDefault:"20"`

	// Presentation
	MainMenuPhotoURL   string `env:"MAIN_MENU_PHOTO_URL"`
	EventsMenuPhotoURL string `env:"EVENTS_MENU_PHOTO_URL"`

	// API server
	APIPort       int    `env:"API_PORT" envDefault:"3200"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	ServiceAPIKey string `env:"SERVICE_API_KEY"`
	AdminAPIKey   string `env:"ADMIN_API_KEY"`

	// Workers
	ReconcileIntervalSeconds int `env:"RECONCILE_INTERVAL_SECONDS" envDefault:"6"`
	SettleTickSeconds        int `env:"SETTLE_TICK_SECONDS" envDefault:"10"`
	SettleBatch              int `env:"SETTLE_BATCH" envDefault:"100"`

	// Kafka notification dispatch
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or unusable configuration.
func (c *Config) Validate() error {
	if c.FeePct < 0 || c.FeePct >= 1 {
		return fmt.Errorf("FEE_PCT must be in [0,1), got %v", c.FeePct)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// AdminIDs parses ADMIN_IDS as a comma-separated list of external chat user ids.
func (c *Config) AdminIDs() []int64 {
	if c.AdminIDsRaw == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(c.AdminIDsRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
