package payment

import (
	"context"
	"time"
)

// Filter narrows report reads; zero CycleID means every cycle.
type Filter struct {
	CycleID int64
}

// Repository defines persistence operations for payments.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Payment, error)
	ListByParticipation(ctx context.Context, participationID int64) ([]*Payment, error)
	// Settle performs the PENDING→PAID transition guarded by status in a single statement.
	// It fails with ErrAlreadyPaid if the payment was settled first by someone else.
	Settle(ctx context.Context, s Settlement) (*Payment, error)
	// AttachProof records a proof reference on a PENDING payment. The submission time is only
	// set when none is stored yet.
	AttachProof(ctx context.Context, id int64, proofRef string, submittedAt time.Time) error
	// RejectProof clears the proof of a PENDING payment and stores the reason.
	RejectProof(ctx context.Context, id int64, notes string) error
	// MarkVerified stamps admin attribution on a PAID payment that has none yet.
	MarkVerified(ctx context.Context, id, adminID int64, at time.Time) (*Payment, error)
	CountOverdue(ctx context.Context, participationID int64, now time.Time) (int, error)
	// ListPendingDueBetween returns PENDING payments with from <= due_date < to.
	ListPendingDueBetween(ctx context.Context, from, to time.Time) ([]*Payment, error)
	List(ctx context.Context, f Filter) ([]*Payment, error)
}
