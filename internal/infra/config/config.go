package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	AdminTelegramID int64 // bootstrapped as an admin member on start
	LogLevel        string
	Environment     string

	TiersFile       string
	ReservedNumbers []int
	MaxTxRetries    int

	CronSpecCycleStatus      string
	CronSpecPaymentReminders string
	CronSpecPayoutDue        string
	ReminderLeadDays         int

	RedisURL string // optional; enables the cross-replica job lock

	S3 S3Config
}

// S3Config points at the S3-compatible bucket holding proof-of-payment uploads.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether proof uploads are configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.TiersFile = envOr("TIERS_FILE", "tiers.yaml")

	cfg.ReservedNumbers, err = ParseNumberList(envOr("RESERVED_NUMBERS", "1,2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESERVED_NUMBERS: %w", err)
	}

	cfg.MaxTxRetries, err = envInt("MAX_TX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if cfg.MaxTxRetries < 1 {
		return nil, fmt.Errorf("MAX_TX_RETRIES must be at least 1")
	}

	// Defaults: 01:00, 09:00 and 10:00 daily.
	cfg.CronSpecCycleStatus = envOr("CRON_SPEC_CYCLE_STATUS", "0 1 * * *")
	cfg.CronSpecPaymentReminders = envOr("CRON_SPEC_PAYMENT_REMINDERS", "0 9 * * *")
	cfg.CronSpecPayoutDue = envOr("CRON_SPEC_PAYOUT_DUE", "0 10 * * *")

	cfg.ReminderLeadDays, err = envInt("REMINDER_LEAD_DAYS", 3)
	if err != nil {
		return nil, err
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.S3 = S3Config{
		Bucket:          os.Getenv("S3_BUCKET"),
		Region:          envOr("S3_REGION", "auto"),
		Endpoint:        os.Getenv("S3_ENDPOINT"),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
	}

	return cfg, nil
}

// ParseNumberList parses "1, 2,5" into []int{1, 2, 5}. An empty string yields no numbers.
func ParseNumberList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		if n < 1 {
			return nil, fmt.Errorf("%d is not a valid slot number", n)
		}
		out = append(out, n)
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
