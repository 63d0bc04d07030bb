// internal/domain/payment/payment.go
package payment

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/cycle"
)

// Status of a monthly obligation. PENDING moves to PAID once and never back.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Payment is one monthly contribution owed by a participation.
// Corresponds to the 'payments' table.
type Payment struct {
	ID               int64
	ParticipationID  int64
	UserID           int64
	CycleID          int64
	MonthNumber      int
	Amount           decimal.Decimal // base monthly amount
	DueDate          time.Time
	Status           Status
	PaidAt           sql.NullTime
	PaidAmount       decimal.Decimal // amount tendered, fine not folded in
	HasFine          bool
	FineAmount       decimal.Decimal
	FinePaid         bool
	ProofOfPayment   sql.NullString
	ProofSubmittedAt sql.NullTime
	VerifiedBy       sql.NullInt64
	VerifiedAt       sql.NullTime
	Notes            sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOverdue is derived from the clock; nothing stores an overdue flag.
func (p *Payment) IsOverdue(now time.Time) bool {
	return p.Status == StatusPending && !now.Before(LateFrom(p.DueDate))
}

// TotalCharged is the base amount plus any fine assessed at settlement.
func (p *Payment) TotalCharged() decimal.Decimal {
	return p.Amount.Add(p.FineAmount)
}

// DaysPastDue counts whole days since the start of the due day, zero until the day has passed.
func (p *Payment) DaysPastDue(now time.Time) int {
	if now.Before(LateFrom(p.DueDate)) {
		return 0
	}
	return int(now.Sub(dueDay(p.DueDate)).Hours() / 24)
}

// Schedule builds the PENDING obligations for months 1..c.TotalSlots for a member joining at joinedAt.
// A month whose period date falls before the later of the cycle start and the join day is due on
// that day instead, so nobody is overdue the moment they join.
// Participation, user and cycle ids are filled in by the caller once known.
func Schedule(c *cycle.Cycle, monthlyAmount decimal.Decimal, joinedAt time.Time) []*Payment {
	earliest := dueDay(c.StartDate)
	if joined := dueDay(joinedAt); joined.After(earliest) {
		earliest = joined
	}
	payments := make([]*Payment, 0, c.TotalSlots)
	for month := 1; month <= c.TotalSlots; month++ {
		due := c.PeriodDate(month)
		if due.Before(earliest) {
			due = earliest
		}
		payments = append(payments, &Payment{
			CycleID:     c.ID,
			MonthNumber: month,
			Amount:      monthlyAmount,
			DueDate:     due,
			Status:      StatusPending,
		})
	}
	return payments
}
