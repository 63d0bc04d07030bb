// internal/infra/database/postgres_cycle_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
)

type PostgresCycleRepository struct {
	db *sql.DB
	tx *TxRunner
}

func NewPostgresCycleRepository(db *sql.DB, tx *TxRunner) *PostgresCycleRepository {
	return &PostgresCycleRepository{db: db, tx: tx}
}

const cycleColumns = `id, name, start_date, end_date, registration_deadline, number_picking_start_date,
               status, total_slots, payment_deadline_day, created_at, updated_at`

func scanCycle(row interface{ Scan(dest ...any) error }) (*cycle.Cycle, error) {
	c := &cycle.Cycle{}
	err := row.Scan(
		&c.ID, &c.Name, &c.StartDate, &c.EndDate, &c.RegistrationDeadline, &c.NumberPickingStartDate,
		&c.Status, &c.TotalSlots, &c.PaymentDeadlineDay, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *PostgresCycleRepository) Create(ctx context.Context, c *cycle.Cycle) error {
	query := `INSERT INTO cycles (name, start_date, end_date, registration_deadline, number_picking_start_date,
                                 status, total_slots, payment_deadline_day)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		c.Name, c.StartDate, c.EndDate, c.RegistrationDeadline, c.NumberPickingStartDate,
		c.Status, c.TotalSlots, c.PaymentDeadlineDay,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating cycle: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) GetByID(ctx context.Context, id int64) (*cycle.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	c, err := scanCycle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting cycle by ID: %w", err)
	}
	return c, nil
}

// List returns every cycle, newest start first.
func (r *PostgresCycleRepository) List(ctx context.Context) ([]*cycle.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles ORDER BY start_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]*cycle.Cycle, 0)
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning cycle row: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle rows: %w", err)
	}
	return cycles, nil
}

// Update writes the editable fields of c and, when c.Status differs from from, the status
// move as well. The cycle row is locked first; a join or a pick has to take the same lock, so
// neither can slip in between the usage check and the write.
func (r *PostgresCycleRepository) Update(ctx context.Context, c *cycle.Cycle, from cycle.Status) error {
	return r.tx.Run(ctx, nil, "update_cycle", func(txn *sql.Tx) error {
		var stored cycle.Status
		err := txn.QueryRowContext(ctx, `SELECT status FROM cycles WHERE id = $1 FOR UPDATE`, c.ID).Scan(&stored)
		if err != nil {
			if err == sql.ErrNoRows {
				return failure.ErrCycleNotFound
			}
			return fmt.Errorf("error locking cycle: %w", err)
		}
		if stored != from {
			return failure.ErrInvalidTransition.Withf("cycle %d is %s, not %s", c.ID, stored, from)
		}
		if c.Status != from && !cycle.CanTransition(from, c.Status) {
			return failure.ErrInvalidTransition.Withf("cannot move cycle from %s to %s", from, c.Status)
		}

		usage, err := usageOf(ctx, txn, c.ID)
		if err != nil {
			return err
		}
		if c.TotalSlots < usage.Floor() {
			return failure.ErrCapacityConflict.Withf(
				"total slots %d is below current usage (%d participants, highest picked number %d)",
				c.TotalSlots, usage.ParticipantCount, usage.MaxPickedNumber)
		}

		query := `UPDATE cycles
                   SET name = $1, start_date = $2, end_date = $3, registration_deadline = $4,
                       number_picking_start_date = $5, total_slots = $6, payment_deadline_day = $7,
                       status = $8, updated_at = NOW()
                   WHERE id = $9
                   RETURNING updated_at`
		err = txn.QueryRowContext(ctx, query,
			c.Name, c.StartDate, c.EndDate, c.RegistrationDeadline, c.NumberPickingStartDate,
			c.TotalSlots, c.PaymentDeadlineDay, c.Status, c.ID,
		).Scan(&c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error updating cycle: %w", err)
		}
		return nil
	})
}

// UpdateStatus moves a cycle from one status to another in a single guarded statement.
func (r *PostgresCycleRepository) UpdateStatus(ctx context.Context, id int64, from, to cycle.Status) error {
	query := `UPDATE cycles SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("error updating cycle status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return failure.ErrInvalidTransition.Withf("cycle %d is %s, not %s", id, current.Status, from)
}

func (r *PostgresCycleRepository) CountParticipants(ctx context.Context, cycleID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE cycle_id = $1`, cycleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting participants: %w", err)
	}
	return count, nil
}

func (r *PostgresCycleRepository) GetUsage(ctx context.Context, cycleID int64) (cycle.Usage, error) {
	return usageOf(ctx, r.db, cycleID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func usageOf(ctx context.Context, q queryRower, cycleID int64) (cycle.Usage, error) {
	var u cycle.Usage
	query := `SELECT COUNT(*), COALESCE(MAX(picked_number), 0) FROM participations WHERE cycle_id = $1`
	if err := q.QueryRowContext(ctx, query, cycleID).Scan(&u.ParticipantCount, &u.MaxPickedNumber); err != nil {
		return cycle.Usage{}, fmt.Errorf("error reading cycle usage: %w", err)
	}
	return u, nil
}
