package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/cycle"
)

func TestAssessFineLateSettlement(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, time.January, 29, 0, 0, 0, 0, time.UTC)
	settled := time.Date(2025, time.February, 2, 12, 0, 0, 0, time.UTC)
	fine := decimal.NewFromInt(2500)

	got := AssessFine(due, settled, fine)
	if !got.HasFine || !got.FineAmount.Equal(fine) {
		t.Fatalf("expected fine 2500, got %+v", got)
	}
}

func TestAssessFineOnOrBeforeDueDate(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, time.January, 29, 0, 0, 0, 0, time.UTC)
	fine := decimal.NewFromInt(2500)

	for _, settled := range []time.Time{due, due.Add(-48 * time.Hour)} {
		got := AssessFine(due, settled, fine)
		if got.HasFine || !got.FineAmount.IsZero() {
			t.Fatalf("settled %s: expected no fine, got %+v", settled, got)
		}
	}
}

func TestAssessFineTreatsDueDateAsWholeDay(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, time.January, 28, 0, 0, 0, 0, time.UTC)
	fine := decimal.NewFromInt(2500)

	for _, settled := range []time.Time{due.Add(10 * time.Hour), due.Add(24*time.Hour - time.Second)} {
		if got := AssessFine(due, settled, fine); got.HasFine {
			t.Fatalf("settled %s on the due day: expected no fine", settled.Format(time.RFC3339))
		}
	}
	if got := AssessFine(due, due.AddDate(0, 0, 1), fine); !got.HasFine {
		t.Fatalf("settled at the start of the next day: expected a fine")
	}
	if got := OverdueCutoff(due.Add(10 * time.Hour)); !got.Equal(due) {
		t.Fatalf("cutoff = %s, want %s", got, due)
	}
}

func TestSettleKeepsTenderAndFineApart(t *testing.T) {
	t.Parallel()

	p := &Payment{
		ID:      7,
		Amount:  decimal.NewFromInt(50000),
		DueDate: time.Date(2025, time.January, 29, 0, 0, 0, 0, time.UTC),
		Status:  StatusPending,
	}
	late := time.Date(2025, time.February, 2, 0, 0, 0, 0, time.UTC)
	fine := decimal.NewFromInt(2500)

	s := Settle(p, decimal.NewFromInt(50000), fine, late)
	if !s.PaidAmount.Equal(decimal.NewFromInt(50000)) || !s.HasFine || s.FinePaid {
		t.Fatalf("base-only tender: unexpected settlement %+v", s)
	}
	s = Settle(p, decimal.NewFromInt(52500), fine, late)
	if !s.FinePaid {
		t.Fatalf("tender covering the fine should mark it paid")
	}

	s.Apply(p)
	if p.Status != StatusPaid || !p.PaidAt.Valid || !p.TotalCharged().Equal(decimal.NewFromInt(52500)) {
		t.Fatalf("apply: unexpected payment %+v", p)
	}
}

func TestScheduleIsContiguous(t *testing.T) {
	t.Parallel()

	c := &cycle.Cycle{
		ID:                 3,
		StartDate:          time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		TotalSlots:         12,
		PaymentDeadlineDay: 25,
	}
	payments := Schedule(c, decimal.NewFromInt(20000), c.StartDate)
	if len(payments) != 12 {
		t.Fatalf("expected 12 payments, got %d", len(payments))
	}
	for i, p := range payments {
		if p.MonthNumber != i+1 {
			t.Fatalf("month %d at index %d", p.MonthNumber, i)
		}
		if p.Status != StatusPending || p.CycleID != 3 {
			t.Fatalf("unexpected payment %+v", p)
		}
		if p.DueDate.Day() != 25 || p.DueDate.Month() != time.Month(i+1) {
			t.Fatalf("month %d due %s", p.MonthNumber, p.DueDate.Format("2006-01-02"))
		}
	}
}

func TestIsOverdueAndDaysPastDue(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	p := &Payment{DueDate: due, Status: StatusPending}
	now := due.AddDate(0, 0, 5).Add(time.Hour)

	if !p.IsOverdue(now) || p.DaysPastDue(now) != 5 {
		t.Fatalf("expected overdue by 5 days, got %v/%d", p.IsOverdue(now), p.DaysPastDue(now))
	}
	if p.IsOverdue(due) {
		t.Fatalf("a payment is not overdue on its due instant")
	}
	if onDueDay := due.Add(10 * time.Hour); p.IsOverdue(onDueDay) || p.DaysPastDue(onDueDay) != 0 {
		t.Fatalf("a payment is not overdue during its due day")
	}
	if nextDay := due.AddDate(0, 0, 1); !p.IsOverdue(nextDay) || p.DaysPastDue(nextDay) != 1 {
		t.Fatalf("expected 1 day overdue once the due day ends, got %v/%d", p.IsOverdue(nextDay), p.DaysPastDue(nextDay))
	}
	p.Status = StatusPaid
	if p.IsOverdue(now) {
		t.Fatalf("paid payments are never overdue")
	}
}

func TestScheduleNeverFallsDueBeforeJoining(t *testing.T) {
	t.Parallel()

	c := &cycle.Cycle{
		StartDate:          time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		TotalSlots:         4,
		PaymentDeadlineDay: 5,
	}
	joined := time.Date(2025, time.January, 10, 15, 30, 0, 0, time.UTC)
	payments := Schedule(c, decimal.NewFromInt(20000), joined)

	joinDay := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	if !payments[0].DueDate.Equal(joinDay) {
		t.Fatalf("month 1 due %s, want the join day", payments[0].DueDate.Format("2006-01-02"))
	}
	if payments[0].IsOverdue(joined) {
		t.Fatalf("month 1 must not be overdue at join time")
	}
	want := time.Date(2025, time.February, 5, 0, 0, 0, 0, time.UTC)
	if !payments[1].DueDate.Equal(want) {
		t.Fatalf("month 2 due %s, want %s", payments[1].DueDate.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}
