package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"ajo_ledger/internal/infra/lock"
	"ajo_ledger/internal/infra/logger"
)

type fakeSyncer struct{ calls int }

func (f *fakeSyncer) SyncCycleStatuses(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeReminders struct {
	dueSoon, overdue, digest int
	dueSoonErr               error
}

func (f *fakeReminders) SendDueSoonReminders(context.Context) (int, error) {
	f.dueSoon++
	return 1, f.dueSoonErr
}

func (f *fakeReminders) SendOverdueNotices(context.Context) (int, error) {
	f.overdue++
	return 1, nil
}

func (f *fakeReminders) SendPayoutDueDigest(context.Context) (int, error) {
	f.digest++
	return 1, nil
}

func newTestScheduler(specs Specs) (*LedgerScheduler, *fakeSyncer, *fakeReminders, *lock.Local) {
	syncer := &fakeSyncer{}
	rem := &fakeReminders{}
	locker := lock.NewLocal()
	return NewLedgerScheduler(syncer, rem, locker, logger.Discard(), specs), syncer, rem, locker
}

func TestRunJobSkipsWhenLocked(t *testing.T) {
	t.Parallel()
	s, syncer, _, locker := newTestScheduler(Specs{})
	ctx := context.Background()

	release, ok, _ := locker.TryLock(ctx, "cycle_status", time.Minute)
	if !ok {
		t.Fatalf("could not take lock")
	}
	s.runJob(ctx, "cycle_status", time.Minute, syncer.SyncCycleStatuses)
	if syncer.calls != 0 {
		t.Fatalf("job ran while locked")
	}

	release()
	s.runJob(ctx, "cycle_status", time.Minute, syncer.SyncCycleStatuses)
	if syncer.calls != 1 {
		t.Fatalf("calls = %d, want 1", syncer.calls)
	}

	// The lock is released once the job returns.
	s.runJob(ctx, "cycle_status", time.Minute, syncer.SyncCycleStatuses)
	if syncer.calls != 2 {
		t.Fatalf("calls = %d, want 2", syncer.calls)
	}
}

func TestPaymentRemindersStopOnError(t *testing.T) {
	t.Parallel()
	s, _, rem, _ := newTestScheduler(Specs{})

	n, err := s.paymentReminders(context.Background())
	if err != nil || n != 2 || rem.dueSoon != 1 || rem.overdue != 1 {
		t.Fatalf("n=%d err=%v dueSoon=%d overdue=%d", n, err, rem.dueSoon, rem.overdue)
	}

	rem.dueSoonErr = errors.New("db down")
	if _, err := s.paymentReminders(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if rem.overdue != 1 {
		t.Fatalf("overdue notices must not run after a failed due-soon pass")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s, _, _, _ := newTestScheduler(Specs{CycleStatus: "not a spec", PaymentReminders: "0 9 * * *", PayoutDue: "0 10 * * *"})
	if err := s.Start(); err == nil {
		t.Fatalf("expected invalid cron spec to fail")
	}

	ok, _, _, _ := newTestScheduler(Specs{CycleStatus: "0 1 * * *", PaymentReminders: "0 9 * * *", PayoutDue: "0 10 * * *"})
	if err := ok.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ok.Stop()
}
