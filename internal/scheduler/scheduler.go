// Package scheduler runs the background jobs of the booking service: the
// active hold sweep and the nightly monthly-summary rebuild.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/config"
	"github.com/iliyamo/school-show-booking/internal/service"
)

// Scheduler wraps a gocron scheduler bound to the booking services.
type Scheduler struct {
	cron     gocron.Scheduler
	sweeper  *service.Sweeper
	closeout *service.Closeout
	log      logrus.FieldLogger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

// New registers the configured jobs without starting them.  The sweep job
// exists only when cfg.SweepEnabled is set; the rebuild job exists when
// cfg.MonthlyRebuildCron is not empty.
func New(cfg config.SchedulerConfig, sweeper *service.Sweeper, closeout *service.Closeout, log logrus.FieldLogger, now func() time.Time) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(cronLogger{log}),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: cron, sweeper: sweeper, closeout: closeout, log: log, now: now, ctx: ctx, cancel: cancel}

	if cfg.SweepEnabled {
		if sweeper == nil {
			return nil, fmt.Errorf("scheduler: hold sweep enabled without a sweeper")
		}
		interval := cfg.SweepInterval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		if _, err := cron.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.sweep),
			gocron.WithName("hold-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduler: hold sweep job: %w", err)
		}
	}
	if cfg.MonthlyRebuildCron != "" && closeout != nil {
		if _, err := cron.NewJob(
			gocron.CronJob(cfg.MonthlyRebuildCron, false),
			gocron.NewTask(s.rebuild),
			gocron.WithName("monthly-rebuild"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduler: monthly rebuild job %q: %w", cfg.MonthlyRebuildCron, err)
		}
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Jobs())).Info("scheduler started")
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.cron.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) sweep() {
	if _, err := s.sweeper.SweepNow(s.ctx); err != nil {
		s.log.WithError(err).Error("hold sweep failed")
	}
}

// rebuild refreshes the current month and the previous one, which may
// still receive the closeout of its last days.
func (s *Scheduler) rebuild() {
	now := s.now().UTC()
	cur := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, m := range []time.Time{cur.AddDate(0, -1, 0), cur} {
		if _, err := s.closeout.RebuildMonth(s.ctx, m.Year(), m.Month()); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"year": m.Year(), "month": int(m.Month())}).Error("monthly rebuild failed")
		}
	}
}

// cronLogger routes gocron's key/value logging into logrus.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) fields(args []any) logrus.FieldLogger {
	f := logrus.Fields{"component": "gocron"}
	for i := 0; i+1 < len(args); i += 2 {
		f[fmt.Sprint(args[i])] = args[i+1]
	}
	return l.log.WithFields(f)
}

func (l cronLogger) Debug(msg string, args ...any) { l.fields(args).Debug(msg) }
func (l cronLogger) Info(msg string, args ...any)  { l.fields(args).Info(msg) }
func (l cronLogger) Warn(msg string, args ...any)  { l.fields(args).Warn(msg) }
func (l cronLogger) Error(msg string, args ...any) { l.fields(args).Error(msg) }
