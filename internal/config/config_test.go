package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadMemoryDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HOLD_SWEEP_ENABLED", "yes")
	t.Setenv("HOLD_TTL", "48h")
	t.Setenv("TX_MAX_ATTEMPTS", "0")
	t.Setenv("COST_PER_DAY_CENTS", "250000")

	cfg := Load()
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 48*time.Hour, cfg.Booking.HoldTTL)
	assert.Equal(t, 1, cfg.Booking.TxMaxAttempts)
	assert.Equal(t, int64(250000), cfg.Booking.CostPerDay)
	assert.True(t, cfg.Scheduler.SweepEnabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.SweepInterval)
	assert.Equal(t, "30 2 * * *", cfg.Scheduler.MonthlyRebuildCron)
	assert.Equal(t, "booking.events", cfg.Queue.Queue)
}

func TestLoadMySQLReadsDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "MySQL")
	t.Setenv("DB_USER", "booking")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "shows")

	cfg := Load()
	assert.Equal(t, StoreMySQL, cfg.StoreDriver)
	assert.Equal(t, "db", cfg.DBHost)
	assert.False(t, cfg.Scheduler.SweepEnabled)
	assert.Equal(t, 72*time.Hour, cfg.Booking.HoldTTL)
}

func TestRateLimitFloors(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestNewLoggerLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
}
