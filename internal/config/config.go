package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/fidus-platform/fidus/internal/domain"
	"github.com/fidus-platform/fidus/internal/fund"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const defaultReportSchedule = "0 1 * * *"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreBackend          string
	MongoURL              string
	MongoDB               string
	DatabaseURL           string
	RedisURL              string
	AccountCacheTTL       time.Duration
	HTTPPort              string
	AdminAPIKey           string
	BrokerLocation        *time.Location
	RebateRatePerLot      *decimal.Decimal
	Terms                 fund.TermsBook
	ReportSchedule        cron.Schedule
	ReportScheduleSpec    string
	ExportDir             string
	GoogleSheetsID        string
	GoogleCredentialsJSON string
	LogFormat             string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	schedule, spec := envOrDefaultSchedule("REPORT_SCHEDULE", defaultReportSchedule)
	cfg := Config{
		StoreBackend:          strings.ToLower(envOrDefault("STORE_BACKEND", BackendMongo)),
		MongoURL:              envOrDefault("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:               envOrDefault("MONGO_DB", "fidus_production"),
		DatabaseURL:           envOrDefault("DATABASE_URL", ""),
		RedisURL:              envOrDefault("REDIS_URL", ""),
		AccountCacheTTL:       envOrDefaultDuration("ACCOUNT_CACHE_TTL", 5*time.Minute),
		HTTPPort:              envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:           envOrDefaultWarn("ADMIN_API_KEY", ""),
		BrokerLocation:        envOrDefaultLocation("BROKER_TIMEZONE", time.UTC),
		RebateRatePerLot:      envDecimal("REBATE_RATE_PER_LOT"),
		Terms:                 fund.TermsBook{},
		ReportSchedule:        schedule,
		ReportScheduleSpec:    spec,
		ExportDir:             envOrDefault("EXPORT_DIR", ""),
		GoogleSheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		LogFormat:             envOrDefault("LOG_FORMAT", "text"),
	}

	defaults := []fund.Terms{
		{Fund: domain.FundCore, Frequency: fund.Monthly, PeriodicRate: decimal.RequireFromString("0.015"), Periods: 12, IncubationMonths: 2},
		{Fund: domain.FundBalance, Frequency: fund.Quarterly, PeriodicRate: decimal.RequireFromString("0.025"), Periods: 4, IncubationMonths: 2},
	}
	for _, d := range defaults {
		if t, ok := envTerms(d); ok {
			cfg.Terms[d.Fund] = t
		}
	}

	switch cfg.StoreBackend {
	case BackendMongo, BackendPostgres, BackendMemory:
	default:
		slog.Warn("unknown store backend, using default", "key", "STORE_BACKEND", "value", cfg.StoreBackend, "default", BackendMongo)
		cfg.StoreBackend = BackendMongo
	}
	return cfg
}

// envTerms reads <FUND>_RATE, <FUND>_PERIODS, <FUND>_FREQUENCY and
// <FUND>_INCUBATION_MONTHS. An invalid rate or frequency leaves the fund without
// terms so obligation projection fails with a configuration error.
func envTerms(def fund.Terms) (fund.Terms, bool) {
	prefix := string(def.Fund) + "_"
	t := def

	if v := os.Getenv(prefix + "RATE"); v != "" {
		rate, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			slog.Warn("invalid decimal env var, fund terms unset", "key", prefix+"RATE", "value", v)
			return fund.Terms{}, false
		}
		t.PeriodicRate = rate
	}
	if v := os.Getenv(prefix + "FREQUENCY"); v != "" {
		f, err := fund.ParseFrequency(v)
		if err != nil {
			slog.Warn("invalid frequency env var, fund terms unset", "key", prefix+"FREQUENCY", "value", v)
			return fund.Terms{}, false
		}
		t.Frequency = f
	}
	t.Periods = envOrDefaultInt(prefix+"PERIODS", def.Periods)
	t.IncubationMonths = envOrDefaultInt(prefix+"INCUBATION_MONTHS", def.IncubationMonths)
	return t, true
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envDecimal returns nil when the variable is unset or invalid.
func envDecimal(key string) *decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("invalid decimal env var, leaving unset", "key", key, "value", v)
		return nil
	}
	return &d
}

func envOrDefaultLocation(key string, defaultVal *time.Location) *time.Location {
	if v := os.Getenv(key); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			slog.Warn("invalid timezone env var, using default", "key", key, "value", v, "default", defaultVal.String())
			return defaultVal
		}
		return loc
	}
	return defaultVal
}

func envOrDefaultSchedule(key, defaultSpec string) (cron.Schedule, string) {
	spec := envOrDefault(key, defaultSpec)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		slog.Warn("invalid cron env var, using default", "key", key, "value", spec, "default", defaultSpec)
		spec = defaultSpec
		schedule, _ = cron.ParseStandard(defaultSpec)
	}
	return schedule, spec
}
