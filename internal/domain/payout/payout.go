// internal/domain/payout/payout.go
package payout

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/participation"
)

// Status of a payout. PENDING moves to PAID once.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// Payout is the lump sum owed to a participation, derived from its picked number.
// Corresponds to the 'payouts' table.
type Payout struct {
	ID                int64
	ParticipationID   int64
	UserID            int64
	CycleID           int64
	Amount            decimal.Decimal
	ScheduledMonth    int // always the participation's picked number
	ScheduledDate     time.Time
	Status            Status
	PaidAt            sql.NullTime
	TransferReference sql.NullString
	ProcessedBy       sql.NullInt64
	Notes             sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ForSlot derives the payout of p for slot number n in cycle c.
func ForSlot(p *participation.Participation, c *cycle.Cycle, n int) *Payout {
	return &Payout{
		ParticipationID: p.ID,
		UserID:          p.UserID,
		CycleID:         c.ID,
		Amount:          p.TotalPayout,
		ScheduledMonth:  n,
		ScheduledDate:   c.PeriodDate(n),
		Status:          StatusPending,
	}
}

// Processing is the single guarded PENDING→PAID write for a payout.
type Processing struct {
	PayoutID          int64
	PaidAt            time.Time
	TransferReference string
	ProcessedBy       int64
	Notes             sql.NullString
}

// BatchReference numbers the i-th (1-based) payout of a batch.
func BatchReference(base string, i int) string {
	return fmt.Sprintf("%s-%d", base, i)
}
