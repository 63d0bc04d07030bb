package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/app"
	"ajo_ledger/internal/infra/lock"
)

// CycleStatusSyncer advances cycle statuses with the calendar.
type CycleStatusSyncer interface {
	SyncCycleStatuses(ctx context.Context) (int, error)
}

// Specs are the cron expressions of the three daily jobs.
type Specs struct {
	CycleStatus      string // e.g. "0 1 * * *"
	PaymentReminders string // e.g. "0 9 * * *"
	PayoutDue        string // e.g. "0 10 * * *"
}

type LedgerScheduler struct {
	cronEngine *cron.Cron
	cycles     CycleStatusSyncer
	reminders  app.ReminderService
	locker     lock.Locker
	logger     *logrus.Entry
	specs      Specs
}

func NewLedgerScheduler(
	cycles CycleStatusSyncer,
	reminders app.ReminderService,
	locker lock.Locker,
	logger *logrus.Entry,
	specs Specs,
) *LedgerScheduler {
	return &LedgerScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		cycles:     cycles,
		reminders:  reminders,
		locker:     locker,
		logger:     logger,
		specs:      specs,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *LedgerScheduler) Start() error {
	s.logger.Info("Starting ledger scheduler...")

	jobs := []struct {
		spec    string
		name    string
		timeout time.Duration
		run     func(ctx context.Context) (int, error)
	}{
		{s.specs.CycleStatus, "cycle_status", time.Minute, s.cycles.SyncCycleStatuses},
		{s.specs.PaymentReminders, "payment_reminders", 10 * time.Minute, s.paymentReminders},
		{s.specs.PayoutDue, "payout_digest", 5 * time.Minute, s.reminders.SendPayoutDueDigest},
	}
	for _, j := range jobs {
		if _, err := s.cronEngine.AddFunc(j.spec, func() {
			s.runJob(context.Background(), j.name, j.timeout, j.run)
		}); err != nil {
			return fmt.Errorf("add %s job (%q): %w", j.name, j.spec, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(jobs)).Info("Ledger scheduler started")
	return nil
}

func (s *LedgerScheduler) paymentReminders(ctx context.Context) (int, error) {
	dueSoon, err := s.reminders.SendDueSoonReminders(ctx)
	if err != nil {
		return dueSoon, err
	}
	overdue, err := s.reminders.SendOverdueNotices(ctx)
	return dueSoon + overdue, err
}

// runJob executes one job under the shared lock. A replica that loses the lock skips the run.
func (s *LedgerScheduler) runJob(parent context.Context, name string, timeout time.Duration, run func(ctx context.Context) (int, error)) {
	entry := s.logger.WithField("job", name)
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok, err := s.locker.TryLock(ctx, name, timeout)
	if err != nil {
		entry.WithError(err).Error("Could not acquire job lock")
		return
	}
	if !ok {
		entry.Info("Job already running elsewhere, skipped")
		return
	}
	defer release()

	started := time.Now()
	n, err := run(ctx)
	entry = entry.WithFields(logrus.Fields{"affected": n, "took": time.Since(started).String()})
	if err != nil {
		entry.WithError(err).Error("Job finished with errors")
		return
	}
	entry.Info("Job finished")
}

func (s *LedgerScheduler) Stop() {
	s.logger.Info("Stopping ledger scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Ledger scheduler gracefully stopped.")
}
