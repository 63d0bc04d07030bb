package payment

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Assessment is the outcome of the lateness rule for one settlement.
type Assessment struct {
	HasFine    bool
	FineAmount decimal.Decimal
}

// dueDay truncates t to the start of its UTC calendar day.
func dueDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LateFrom is the first instant a payment due on dueDate counts as late. Due dates are
// calendar days, so anything settled during the due day itself is on time.
func LateFrom(dueDate time.Time) time.Time {
	return dueDay(dueDate).AddDate(0, 0, 1)
}

// OverdueCutoff bounds the stored due dates that are overdue at now: due_date < OverdueCutoff(now).
func OverdueCutoff(now time.Time) time.Time {
	return dueDay(now)
}

// AssessFine applies the flat per-tier fine when settledAt falls after the due day.
// The fine is not prorated by days late.
func AssessFine(dueDate, settledAt time.Time, flatFine decimal.Decimal) Assessment {
	if !settledAt.Before(LateFrom(dueDate)) {
		return Assessment{HasFine: true, FineAmount: flatFine}
	}
	return Assessment{HasFine: false, FineAmount: decimal.Zero}
}

// Settlement is the single guarded PENDING→PAID write for a payment.
type Settlement struct {
	PaymentID      int64
	PaidAt         time.Time
	PaidAmount     decimal.Decimal
	HasFine        bool
	FineAmount     decimal.Decimal
	FinePaid       bool
	ProofOfPayment sql.NullString
	VerifiedBy     sql.NullInt64
	VerifiedAt     sql.NullTime
}

// Settle computes the settlement of p for a tendered amount at settledAt.
// The tendered amount and the fine are kept apart; the fine counts as paid only
// when the tender covers base plus fine.
func Settle(p *Payment, tendered decimal.Decimal, flatFine decimal.Decimal, settledAt time.Time) Settlement {
	fine := AssessFine(p.DueDate, settledAt, flatFine)
	s := Settlement{
		PaymentID:  p.ID,
		PaidAt:     settledAt,
		PaidAmount: tendered,
		HasFine:    fine.HasFine,
		FineAmount: fine.FineAmount,
	}
	if fine.HasFine {
		s.FinePaid = tendered.GreaterThanOrEqual(p.Amount.Add(fine.FineAmount))
	}
	return s
}

// Apply copies the settlement onto p, marking it PAID.
func (s Settlement) Apply(p *Payment) {
	p.Status = StatusPaid
	p.PaidAt = sql.NullTime{Time: s.PaidAt, Valid: true}
	p.PaidAmount = s.PaidAmount
	p.HasFine = s.HasFine
	p.FineAmount = s.FineAmount
	p.FinePaid = s.FinePaid
	if s.ProofOfPayment.Valid {
		p.ProofOfPayment = s.ProofOfPayment
	}
	if s.VerifiedBy.Valid {
		p.VerifiedBy = s.VerifiedBy
		p.VerifiedAt = s.VerifiedAt
	}
}
