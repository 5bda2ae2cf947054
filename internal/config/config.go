// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env          string // APP_ENV (dev, test, prod)
	Port         string // APP_PORT
	LogLevel     string // LOG_LEVEL
	StoreDriver  string // STORE_DRIVER: mysql or memory
	SeedFile     string // SEED_FILE, memory store only
	DBUser       string // DB_USER
	DBPass       string // DB_PASS (optional)
	DBHost       string // DB_HOST
	DBPort       string // DB_PORT
	DBName       string // DB_NAME
	DBMigrate    bool   // DB_MIGRATE: apply the embedded schema on boot
	JWTSecret    string // JWT_SECRET
	AccessTTLMin int    // ACCESS_TOKEN_TTL_MIN

	Booking   BookingConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
}

// BookingConfig tunes the booking core.
type BookingConfig struct {
	HoldTTL       time.Duration // HOLD_TTL
	TxMaxAttempts int           // TX_MAX_ATTEMPTS
	CostPerSlot   int64         // COST_PER_SLOT_CENTS
	CostPerDay    int64         // COST_PER_DAY_CENTS
}

// SchedulerConfig drives the background jobs.  With SweepEnabled false
// expired holds keep their capacity until cancelled.
type SchedulerConfig struct {
	SweepEnabled       bool          // HOLD_SWEEP_ENABLED
	SweepInterval      time.Duration // HOLD_SWEEP_INTERVAL
	SweepBatch         int           // HOLD_SWEEP_BATCH
	MonthlyRebuildCron string        // MONTHLY_REBUILD_CRON (5-field crontab)
}

// QueueConfig points at the RabbitMQ broker.  An empty URL disables
// event publishing.
type QueueConfig struct {
	URL             string // RABBITMQ_URL (AMQP_URL accepted)
	Queue           string // BOOKING_EVENTS_QUEUE
	ConsumerEnabled bool   // QUEUE_CONSUMER_ENABLED
	AuditLogPath    string // QUEUE_AUDIT_LOG
}

// Load reads a .env file when present and then the environment.  A
// missing required variable is fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("config: .env not loaded")
	}
	cfg := Config{
		Env:          envStr("APP_ENV", "dev"),
		Port:         envStr("APP_PORT", "8080"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		StoreDriver:  strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
		SeedFile:     os.Getenv("SEED_FILE"),
		DBPass:       os.Getenv("DB_PASS"),
		DBMigrate:    envBool("DB_MIGRATE", false),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
		Booking: BookingConfig{
			HoldTTL:       envDur("HOLD_TTL", 72*time.Hour),
			TxMaxAttempts: envInt("TX_MAX_ATTEMPTS", 5),
			CostPerSlot:   envInt64("COST_PER_SLOT_CENTS", 0),
			CostPerDay:    envInt64("COST_PER_DAY_CENTS", 0),
		},
		Scheduler: SchedulerConfig{
			SweepEnabled:       envBool("HOLD_SWEEP_ENABLED", false),
			SweepInterval:      envDur("HOLD_SWEEP_INTERVAL", 15*time.Minute),
			SweepBatch:         envInt("HOLD_SWEEP_BATCH", 500),
			MonthlyRebuildCron: envStr("MONTHLY_REBUILD_CRON", "30 2 * * *"),
		},
		Queue: QueueConfig{
			URL:             envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
			Queue:           envStr("BOOKING_EVENTS_QUEUE", "booking.events"),
			ConsumerEnabled: envBool("QUEUE_CONSUMER_ENABLED", false),
			AuditLogPath:    envStr("QUEUE_AUDIT_LOG", "logs/booking-events.log"),
		},
	}
	switch cfg.StoreDriver {
	case StoreMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case StoreMemory:
	default:
		logrus.Fatalf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Booking.TxMaxAttempts < 1 {
		cfg.Booking.TxMaxAttempts = 1
	}
	return cfg
}

// NewLogger returns a JSON logger on stdout at the configured level;
// unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envInt64(k string, d int64) int64 {
	if n, err := strconv.ParseInt(os.Getenv(k), 10, 64); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
