package payout

import (
	"context"
	"time"
)

// Filter narrows report reads; zero CycleID means every cycle.
type Filter struct {
	CycleID int64
}

// Repository defines persistence operations for payouts. Payouts are created and
// rescheduled only through slot.Store.Assign.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Payout, error)
	GetByParticipation(ctx context.Context, participationID int64) (*Payout, error)
	// ListByIDs returns the payouts among ids that exist, in no particular order.
	ListByIDs(ctx context.Context, ids []int64) ([]*Payout, error)
	List(ctx context.Context, f Filter) ([]*Payout, error)
	ListPendingDueBy(ctx context.Context, t time.Time) ([]*Payout, error)
	// MarkPaid performs the PENDING→PAID transition guarded by status in a single statement.
	MarkPaid(ctx context.Context, p Processing) (*Payout, error)
}
