package app

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
)

var hundred = decimal.NewFromInt(100)

// FinancialSummary totals the ledger. Profit is TotalCollected minus TotalPaidOut.
type FinancialSummary struct {
	CycleID        int64
	TotalCollected decimal.Decimal // sum of paid_amount over PAID payments
	FinesAssessed  decimal.Decimal
	FinesCollected decimal.Decimal
	PaidCount      int
	TotalPending   decimal.Decimal
	PendingCount   int
	TotalOverdue   decimal.Decimal
	OverdueCount   int
	TotalPaidOut   decimal.Decimal
	PayoutsPaid    int
	PayoutsPending decimal.Decimal
	Profit         decimal.Decimal
}

// Defaulter groups one member's overdue payments.
type Defaulter struct {
	UserID         int64
	OverdueCount   int
	OverdueAmount  decimal.Decimal
	MaxDaysPastDue int
	PaymentIDs     []int64
}

// CyclePerformance compares what a cycle collected with what was due so far.
type CyclePerformance struct {
	CycleID            int64
	Name               string
	TotalSlots         int
	ParticipantCount   int
	OccupancyRate      decimal.Decimal // percent
	ExpectedCollection decimal.Decimal // base amounts of payments due by now
	Collected          decimal.Decimal
	CollectionRate     decimal.Decimal // percent
}

// MonthlyReconciliation covers the window [PeriodStart, PeriodEnd).
type MonthlyReconciliation struct {
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Collected        decimal.Decimal
	PaymentsCount    int
	FinesAssessed    decimal.Decimal
	Due              decimal.Decimal
	DueCount         int
	Outstanding      decimal.Decimal
	PaidOut          decimal.Decimal
	PayoutsCount     int
	PayoutsScheduled decimal.Decimal
	Net              decimal.Decimal
}

// TrendPoint is one calendar month of settled payments.
type TrendPoint struct {
	Year      int
	Month     time.Month
	Collected decimal.Decimal
	Count     int
}

func summarize(cycleID int64, payments []*payment.Payment, payouts []*payout.Payout, now time.Time) FinancialSummary {
	s := FinancialSummary{
		CycleID:        cycleID,
		TotalCollected: decimal.Zero,
		FinesAssessed:  decimal.Zero,
		FinesCollected: decimal.Zero,
		TotalPending:   decimal.Zero,
		TotalOverdue:   decimal.Zero,
		TotalPaidOut:   decimal.Zero,
		PayoutsPending: decimal.Zero,
	}
	for _, p := range payments {
		switch p.Status {
		case payment.StatusPaid:
			s.PaidCount++
			s.TotalCollected = s.TotalCollected.Add(p.PaidAmount)
			if p.HasFine {
				s.FinesAssessed = s.FinesAssessed.Add(p.FineAmount)
				if p.FinePaid {
					s.FinesCollected = s.FinesCollected.Add(p.FineAmount)
				}
			}
		case payment.StatusPending:
			s.PendingCount++
			s.TotalPending = s.TotalPending.Add(p.Amount)
			if p.IsOverdue(now) {
				s.OverdueCount++
				s.TotalOverdue = s.TotalOverdue.Add(p.Amount)
			}
		}
	}
	for _, po := range payouts {
		if po.Status == payout.StatusPaid {
			s.PayoutsPaid++
			s.TotalPaidOut = s.TotalPaidOut.Add(po.Amount)
		} else {
			s.PayoutsPending = s.PayoutsPending.Add(po.Amount)
		}
	}
	s.Profit = s.TotalCollected.Sub(s.TotalPaidOut)
	return s
}

// defaulters groups overdue payments by member, skipping participations in excluded.
// The largest overdue amount comes first.
func defaulters(payments []*payment.Payment, excluded map[int64]bool, now time.Time) []Defaulter {
	byUser := make(map[int64]*Defaulter)
	for _, p := range payments {
		if !p.IsOverdue(now) || excluded[p.ParticipationID] {
			continue
		}
		d, ok := byUser[p.UserID]
		if !ok {
			d = &Defaulter{UserID: p.UserID, OverdueAmount: decimal.Zero}
			byUser[p.UserID] = d
		}
		d.OverdueCount++
		d.OverdueAmount = d.OverdueAmount.Add(p.Amount)
		d.PaymentIDs = append(d.PaymentIDs, p.ID)
		if days := p.DaysPastDue(now); days > d.MaxDaysPastDue {
			d.MaxDaysPastDue = days
		}
	}
	out := make([]Defaulter, 0, len(byUser))
	for _, d := range byUser {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].OverdueAmount.Cmp(out[j].OverdueAmount); c != 0 {
			return c > 0
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// percent returns part/whole*100 rounded to two places, zero when whole is zero.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

func performance(cycleID int64, name string, totalSlots, participants int, payments []*payment.Payment, now time.Time) CyclePerformance {
	perf := CyclePerformance{
		CycleID:            cycleID,
		Name:               name,
		TotalSlots:         totalSlots,
		ParticipantCount:   participants,
		ExpectedCollection: decimal.Zero,
		Collected:          decimal.Zero,
	}
	for _, p := range payments {
		if !p.DueDate.After(now) {
			perf.ExpectedCollection = perf.ExpectedCollection.Add(p.Amount)
		}
		if p.Status == payment.StatusPaid {
			perf.Collected = perf.Collected.Add(p.PaidAmount)
		}
	}
	perf.OccupancyRate = percent(decimal.NewFromInt(int64(participants)), decimal.NewFromInt(int64(totalSlots)))
	perf.CollectionRate = percent(perf.Collected, perf.ExpectedCollection)
	return perf
}

// monthWindow is [first of month, first of next month) in UTC.
func monthWindow(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func reconcileMonth(year int, month time.Month, payments []*payment.Payment, payouts []*payout.Payout) MonthlyReconciliation {
	start, end := monthWindow(year, month)
	r := MonthlyReconciliation{
		PeriodStart:      start,
		PeriodEnd:        end,
		Collected:        decimal.Zero,
		FinesAssessed:    decimal.Zero,
		Due:              decimal.Zero,
		Outstanding:      decimal.Zero,
		PaidOut:          decimal.Zero,
		PayoutsScheduled: decimal.Zero,
	}
	for _, p := range payments {
		if p.Status == payment.StatusPaid && p.PaidAt.Valid && inWindow(p.PaidAt.Time, start, end) {
			r.PaymentsCount++
			r.Collected = r.Collected.Add(p.PaidAmount)
			if p.HasFine {
				r.FinesAssessed = r.FinesAssessed.Add(p.FineAmount)
			}
		}
		if inWindow(p.DueDate, start, end) {
			r.DueCount++
			r.Due = r.Due.Add(p.Amount)
			if p.Status == payment.StatusPending {
				r.Outstanding = r.Outstanding.Add(p.Amount)
			}
		}
	}
	for _, po := range payouts {
		if po.Status == payout.StatusPaid && po.PaidAt.Valid && inWindow(po.PaidAt.Time, start, end) {
			r.PayoutsCount++
			r.PaidOut = r.PaidOut.Add(po.Amount)
		}
		if inWindow(po.ScheduledDate, start, end) {
			r.PayoutsScheduled = r.PayoutsScheduled.Add(po.Amount)
		}
	}
	r.Net = r.Collected.Sub(r.PaidOut)
	return r
}

// trend buckets settled payments into the twelve calendar months ending with now's month,
// oldest first. Months without payments are present with zero totals.
func trend(payments []*payment.Payment, now time.Time) []TrendPoint {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	points := make([]TrendPoint, 12)
	for i := range points {
		m := first.AddDate(0, i, 0)
		points[i] = TrendPoint{Year: m.Year(), Month: m.Month(), Collected: decimal.Zero}
	}
	for _, p := range payments {
		if p.Status != payment.StatusPaid || !p.PaidAt.Valid {
			continue
		}
		paid := p.PaidAt.Time.UTC()
		idx := (paid.Year()-first.Year())*12 + int(paid.Month()) - int(first.Month())
		if idx < 0 || idx >= len(points) {
			continue
		}
		points[idx].Count++
		points[idx].Collected = points[idx].Collected.Add(p.PaidAmount)
	}
	return points
}
