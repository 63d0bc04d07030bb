package database

import (
	"context"
	"database/sql"
	"fmt"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/slot"
)

// PostgresSlotStore performs number assignment. The unique constraint on
// (cycle_id, picked_number) backs up the serializable transaction.
type PostgresSlotStore struct {
	db *sql.DB
	tx *TxRunner
}

func NewPostgresSlotStore(db *sql.DB, tx *TxRunner) *PostgresSlotStore {
	return &PostgresSlotStore{db: db, tx: tx}
}

// Assign sets the picked number and upserts the payout in one serializable transaction.
// The cycle row is share-locked first, so a capacity change or cancellation either lands
// before the range check below or waits for this pick to commit.
func (s *PostgresSlotStore) Assign(ctx context.Context, a *slot.Assignment) error {
	return s.tx.Run(ctx, serializable, "assign_slot", func(txn *sql.Tx) error {
		var (
			totalSlots int
			status     cycle.Status
		)
		err := txn.QueryRowContext(ctx,
			`SELECT total_slots, status FROM cycles WHERE id = $1 FOR SHARE`, a.CycleID,
		).Scan(&totalSlots, &status)
		if err != nil {
			if err == sql.ErrNoRows {
				return failure.ErrCycleNotFound
			}
			return fmt.Errorf("error locking cycle for pick: %w", err)
		}
		if err := slot.CheckAssignable(status, totalSlots, a.Number); err != nil {
			return err
		}

		var current sql.NullInt64
		err = txn.QueryRowContext(ctx,
			`SELECT picked_number FROM participations WHERE id = $1 AND cycle_id = $2 FOR UPDATE`,
			a.ParticipationID, a.CycleID,
		).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				return failure.ErrParticipationNotFound
			}
			return fmt.Errorf("error locking participation: %w", err)
		}
		if current.Valid {
			return failure.ErrAlreadyPicked.Withf("you already picked number %d", current.Int64)
		}

		var holder int64
		err = txn.QueryRowContext(ctx,
			`SELECT id FROM participations WHERE cycle_id = $1 AND picked_number = $2 AND id <> $3`,
			a.CycleID, a.Number, a.ParticipationID,
		).Scan(&holder)
		switch {
		case err == nil:
			return failure.ErrSlotTaken.Withf("number %d is already taken", a.Number)
		case err != sql.ErrNoRows:
			return fmt.Errorf("error checking slot holder: %w", err)
		}

		if _, err := txn.ExecContext(ctx,
			`UPDATE participations SET picked_number = $1 WHERE id = $2`, a.Number, a.ParticipationID,
		); err != nil {
			if isUniqueViolation(err, constraintParticipationSlot) {
				return failure.ErrSlotTaken.Withf("number %d is already taken", a.Number)
			}
			return fmt.Errorf("error setting picked number: %w", err)
		}

		p := a.Payout
		err = txn.QueryRowContext(ctx,
			`INSERT INTO payouts (participation_id, user_id, cycle_id, amount, scheduled_month, scheduled_date, status)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               ON CONFLICT ON CONSTRAINT `+constraintPayoutParticipation+` DO UPDATE
               SET amount = EXCLUDED.amount,
                   scheduled_month = EXCLUDED.scheduled_month,
                   scheduled_date = EXCLUDED.scheduled_date,
                   updated_at = NOW()
               RETURNING id, status, created_at, updated_at`,
			p.ParticipationID, p.UserID, p.CycleID, p.Amount, p.ScheduledMonth, p.ScheduledDate, p.Status,
		).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error upserting payout: %w", err)
		}
		return nil
	})
}

func (s *PostgresSlotStore) PickedNumbers(ctx context.Context, cycleID int64) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT picked_number FROM participations WHERE cycle_id = $1 AND picked_number IS NOT NULL ORDER BY picked_number`,
		cycleID)
	if err != nil {
		return nil, fmt.Errorf("error querying picked numbers: %w", err)
	}
	defer rows.Close()

	numbers := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("error scanning picked number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating picked numbers: %w", err)
	}
	return numbers, nil
}
