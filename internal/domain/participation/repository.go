package participation

import "context"

// Repository defines persistence operations for participations.
type Repository interface {
	// Join writes the enrollment atomically. Inside the transaction it locks the cycle row and
	// re-checks that the cycle is open and below capacity.
	Join(ctx context.Context, e *Enrollment) error
	GetByID(ctx context.Context, id int64) (*Participation, error)
	GetByUserAndCycle(ctx context.Context, userID, cycleID int64) (*Participation, error)
	Exists(ctx context.Context, userID, cycleID int64) (bool, error)
	// GetActiveForUser returns the caller's most recent participation in an ACTIVE cycle
	// that has not been opted out of.
	GetActiveForUser(ctx context.Context, userID int64) (*Participation, error)
	ListByCycle(ctx context.Context, cycleID int64) ([]*Participation, error)
	ListByUser(ctx context.Context, userID int64) ([]*Participation, error)
	GetBankDetails(ctx context.Context, participationID int64) (*BankDetails, error)
	// SetOptedOut flags the participation; it fails with ErrOptOutNotAllowed once a number is picked.
	SetOptedOut(ctx context.Context, id int64) error
}

// TierRepository stores the system-wide tier settings.
type TierRepository interface {
	Snapshot(ctx context.Context) (TierSet, error)
	Upsert(ctx context.Context, t Tier) error
}
