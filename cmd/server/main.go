package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/config"
	"github.com/iliyamo/school-show-booking/internal/database"
	"github.com/iliyamo/school-show-booking/internal/handler"
	"github.com/iliyamo/school-show-booking/internal/middleware"
	"github.com/iliyamo/school-show-booking/internal/queue"
	"github.com/iliyamo/school-show-booking/internal/repository"
	"github.com/iliyamo/school-show-booking/internal/repository/memory"
	"github.com/iliyamo/school-show-booking/internal/router"
	"github.com/iliyamo/school-show-booking/internal/scheduler"
	"github.com/iliyamo/school-show-booking/internal/service"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var pub service.Publisher = service.NopPublisher{}
	if cfg.Queue.URL != "" {
		p := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Queue, log)
		defer p.Close()
		pub = p
	}
	if cfg.Queue.ConsumerEnabled && cfg.Queue.URL != "" {
		startConsumer(ctx, cfg.Queue, log)
	}

	ledger := service.NewLedger(store, log)
	resolver := service.NewResolver(store)
	mgr := service.NewManager(store, ledger, resolver, log,
		service.WithHoldTTL(cfg.Booking.HoldTTL),
		service.WithPublisher(pub),
	)
	cost := service.FixedCostModel{PerDay: cfg.Booking.CostPerDay, PerSlot: cfg.Booking.CostPerSlot}
	closeout := service.NewCloseout(store, cost, pub, log, nil)
	sweeper := service.NewSweeper(store, mgr, log, cfg.Scheduler.SweepBatch)

	sched, err := scheduler.New(cfg.Scheduler, sweeper, closeout, log, nil)
	if err != nil {
		log.WithError(err).Fatal("scheduler setup failed")
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.WithError(err).Warn("scheduler shutdown")
		}
	}()
	if !cfg.Scheduler.SweepEnabled {
		log.Info("hold sweep disabled: expired holds are detected lazily")
	}

	// Redis is optional: without it rate limiting and the summary cache
	// are skipped.  A nil *redis.Client must not reach the middleware as
	// a non-nil interface.
	var (
		scripter redis.Scripter
		cmdable  redis.Cmdable
	)
	if rdb, err := config.NewRedisClient(ctx); err != nil {
		log.WithError(err).Warn("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
		scripter, cmdable = rdb, rdb
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.RequestLogger(log))

	h := router.Handlers{
		Bookings: handler.NewBookingHandler(mgr),
		Inbox:    handler.NewInboxHandler(service.NewInbox(store, nil), nil),
		Slots:    handler.NewSlotHandler(ledger),
		Pricing:  handler.NewPricingHandler(resolver),
		Closeout: handler.NewCloseoutHandler(closeout),
		Sweep:    handler.NewSweepHandler(sweeper),
	}
	router.RegisterRoutes(e)
	router.RegisterStaff(e, h, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), scripter, log))
	router.RegisterOperator(e, h, cfg.JWTSecret,
		middleware.ImmutableCache(config.LoadCacheConfig(), cmdable, log))

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "store": cfg.StoreDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (repository.Store, func()) {
	if cfg.StoreDriver == config.StoreMemory {
		st := memory.New()
		if cfg.SeedFile != "" {
			if err := st.LoadSeed(cfg.SeedFile); err != nil {
				log.WithError(err).Fatal("load seed file")
			}
		}
		log.Warn("using in-memory store; data is lost on exit")
		return st, func() {}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("database migration failed")
		}
	}
	return repository.NewMySQLStore(db, cfg.Booking.TxMaxAttempts), func() { _ = db.Close() }
}

func startConsumer(ctx context.Context, qc config.QueueConfig, log *logrus.Logger) {
	audit, f, err := queue.OpenAuditLog(qc.AuditLogPath)
	if err != nil {
		log.WithError(err).Warn("audit log unavailable, consumer not started")
		return
	}
	c := queue.NewConsumer(qc.URL, qc.Queue, log, audit)
	go func() {
		defer f.Close()
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("event consumer stopped")
		}
	}()
}
