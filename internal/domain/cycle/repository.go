package cycle

import "context"

// Repository defines persistence operations for cycles.
type Repository interface {
	Create(ctx context.Context, c *Cycle) error
	GetByID(ctx context.Context, id int64) (*Cycle, error)
	List(ctx context.Context) ([]*Cycle, error)
	// Update persists c in one transaction. Under a lock on the cycle row it checks that the
	// stored status is still from, that from may move to c.Status, and that c.TotalSlots does
	// not fall below the current Usage floor.
	Update(ctx context.Context, c *Cycle, from Status) error
	// UpdateStatus moves the cycle from one status to another; it fails with
	// ErrInvalidTransition when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	CountParticipants(ctx context.Context, cycleID int64) (int, error)
	GetUsage(ctx context.Context, cycleID int64) (Usage, error)
}
