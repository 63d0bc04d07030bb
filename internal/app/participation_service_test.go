package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
)

func TestJoinCycleStampsTierAndSchedule(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.newCycle(t, 20)
	m := env.newMember(t, 1)

	p := env.join(t, m, c)
	if p.ID == 0 || p.ContributionMode != "50k" {
		t.Fatalf("unexpected participation %+v", p)
	}
	if !p.MonthlyAmount.Equal(decimal.NewFromInt(50000)) || !p.TotalPayout.Equal(decimal.NewFromInt(500000)) || !p.FineAmount.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("tier amounts not stamped: %+v", p)
	}

	// Later tier changes leave the stamped amounts alone.
	err := env.participations.SeedTiers(env.ctx, []participation.Tier{
		{Name: "50k", MonthlyAmount: decimal.NewFromInt(55000), TotalPayout: decimal.NewFromInt(550000), FineAmount: decimal.NewFromInt(3000)},
	})
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	stored, _ := memParticipations{env.db}.GetByID(env.ctx, p.ID)
	if !stored.MonthlyAmount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("stamped amount changed to %s", stored.MonthlyAmount)
	}

	payments, err := env.payments.ListMyPayments(env.ctx, m.ID, c.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 20 {
		t.Fatalf("got %d payments, want 20", len(payments))
	}
	for i, pay := range payments {
		if pay.MonthNumber != i+1 {
			t.Fatalf("month numbers not contiguous: index %d has month %d", i, pay.MonthNumber)
		}
		if pay.DueDate.Day() != 28 {
			t.Fatalf("month %d due on day %d", pay.MonthNumber, pay.DueDate.Day())
		}
	}

	bank, err := memParticipations{env.db}.GetBankDetails(env.ctx, p.ID)
	if err != nil || bank.AccountNumber != "0123456789" {
		t.Fatalf("bank details not stored: %+v %v", bank, err)
	}

	ok, err := env.participations.CheckParticipation(env.ctx, m.ID, c.ID)
	if err != nil || !ok {
		t.Fatalf("CheckParticipation = %v, %v", ok, err)
	}
}

func TestJoinCycleFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.newCycle(t, 20)
	m := env.newMember(t, 1)
	env.join(t, m, c)

	if _, err := env.participations.JoinCycle(env.ctx, m.ID, c.ID, "50k", validBank()); !errors.Is(err, failure.ErrAlreadyRegistered) {
		t.Fatalf("second join: expected ErrAlreadyRegistered, got %v", err)
	}

	other := env.newMember(t, 2)
	badBank := validBank()
	badBank.AccountNumber = "12345"
	if _, err := env.participations.JoinCycle(env.ctx, other.ID, c.ID, "50k", badBank); !errors.Is(err, failure.ErrInvalidBankDetails) {
		t.Fatalf("short account: expected ErrInvalidBankDetails, got %v", err)
	}
	if _, err := env.participations.JoinCycle(env.ctx, other.ID, c.ID, "75k", validBank()); !errors.Is(err, failure.ErrUnknownTier) {
		t.Fatalf("unknown tier: expected ErrUnknownTier, got %v", err)
	}
	if _, err := env.participations.JoinCycle(env.ctx, other.ID, 424242, "50k", validBank()); !errors.Is(err, failure.ErrCycleNotFound) {
		t.Fatalf("missing cycle: expected ErrCycleNotFound, got %v", err)
	}

	env.clock.Set(c.RegistrationDeadline)
	if _, err := env.participations.JoinCycle(env.ctx, other.ID, c.ID, "50k", validBank()); !errors.Is(err, failure.ErrDeadlinePassed) {
		t.Fatalf("at deadline: expected ErrDeadlinePassed, got %v", err)
	}
}

func TestJoinCycleCapacity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.newCycle(t, 2)
	env.join(t, env.newMember(t, 1), c)
	env.join(t, env.newMember(t, 2), c)

	if _, err := env.participations.JoinCycle(env.ctx, env.newMember(t, 3).ID, c.ID, "20k", validBank()); !errors.Is(err, failure.ErrNoSlotsAvailable) {
		t.Fatalf("full cycle: expected ErrNoSlotsAvailable, got %v", err)
	}
}

// Two members race for the last slot: exactly one wins.
func TestJoinCycleConcurrentLastSlot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.newCycle(t, 3)
	env.join(t, env.newMember(t, 1), c)
	env.join(t, env.newMember(t, 2), c)

	contenders := []int64{env.newMember(t, 3).ID, env.newMember(t, 4).ID}
	errs := make([]error, len(contenders))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, userID := range contenders {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			<-start
			_, errs[i] = env.participations.JoinCycle(env.ctx, userID, c.ID, "50k", validBank())
		}(i, userID)
	}
	close(start)
	wg.Wait()

	succeeded, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, failure.ErrNoSlotsAvailable):
			full++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 || full != 1 {
		t.Fatalf("succeeded=%d full=%d, want 1 and 1", succeeded, full)
	}
	count, _ := memCycles{env.db}.CountParticipants(env.ctx, c.ID)
	if count != 3 {
		t.Fatalf("participant count = %d, want 3", count)
	}
}

func TestOptOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.newCycle(t, 10)
	quitter := env.newMember(t, 1)
	picker := env.newMember(t, 2)
	env.join(t, quitter, c)
	env.join(t, picker, c)

	p, err := env.participations.OptOut(env.ctx, quitter.ID, c.ID)
	if err != nil {
		t.Fatalf("opt out: %v", err)
	}
	if !p.HasOptedOut {
		t.Fatalf("expected opted out")
	}
	if _, err := env.slots.PickNumber(env.ctx, quitter.ID, 5); !errors.Is(err, failure.ErrNotRegistered) {
		t.Fatalf("opted-out member pick: expected ErrNotRegistered, got %v", err)
	}
	details, _ := env.cycles.GetCycleDetails(env.ctx, c.ID)
	if details.ParticipantCount != 2 {
		t.Fatalf("opted-out participation must still hold its seat, count=%d", details.ParticipantCount)
	}

	if _, err := env.slots.PickNumber(env.ctx, picker.ID, 5); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if _, err := env.participations.OptOut(env.ctx, picker.ID, c.ID); !errors.Is(err, failure.ErrOptOutNotAllowed) {
		t.Fatalf("after pick: expected ErrOptOutNotAllowed, got %v", err)
	}
}

func TestListTiersOrderedByAmount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tiers, err := env.participations.ListTiers(env.ctx)
	if err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	want := []string{"20k", "50k", "100k"}
	if len(tiers) != len(want) {
		t.Fatalf("got %d tiers", len(tiers))
	}
	for i, name := range want {
		if tiers[i].Name != name {
			t.Fatalf("tier %d = %s, want %s", i, tiers[i].Name, name)
		}
	}
}

// A member joining after the first deadline day of the start month is not overdue on arrival.
func TestJoinAfterFirstDeadlineIsNotOverdue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c, err := env.cycles.CreateCycle(env.ctx, env.admin.ID, CycleInput{
		Name:                 "Early deadline",
		StartDate:            time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
		RegistrationDeadline: time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		TotalSlots:           10,
		PaymentDeadlineDay:   5,
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	m := env.newMember(t, 1)
	p := env.join(t, m, c)

	n, err := env.payments.GetOverdueCount(env.ctx, p.ID)
	if err != nil || n != 0 {
		t.Fatalf("overdue right after join = %d, %v", n, err)
	}
	payments, err := env.payments.ListMyPayments(env.ctx, m.ID, c.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if got := payments[0].DueDate.Format("2006-01-02"); got != "2025-01-10" {
		t.Fatalf("month 1 due %s, want the join day", got)
	}
	if got := payments[1].DueDate.Format("2006-01-02"); got != "2025-02-05" {
		t.Fatalf("month 2 due %s", got)
	}
}
