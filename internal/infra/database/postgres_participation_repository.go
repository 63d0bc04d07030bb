// internal/infra/database/postgres_participation_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
)

type PostgresParticipationRepository struct {
	db *sql.DB
	tx *TxRunner
}

func NewPostgresParticipationRepository(db *sql.DB, tx *TxRunner) *PostgresParticipationRepository {
	return &PostgresParticipationRepository{db: db, tx: tx}
}

const participationColumns = `p.id, p.user_id, p.cycle_id, p.contribution_mode, p.monthly_amount, p.total_payout,
               p.fine_amount, p.picked_number, p.has_opted_out, p.registered_at`

func scanParticipation(row interface{ Scan(dest ...any) error }) (*participation.Participation, error) {
	p := &participation.Participation{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.CycleID, &p.ContributionMode, &p.MonthlyAmount, &p.TotalPayout,
		&p.FineAmount, &p.PickedNumber, &p.HasOptedOut, &p.RegisteredAt,
	)
	return p, err
}

func scanParticipations(rows *sql.Rows) ([]*participation.Participation, error) {
	list := make([]*participation.Participation, 0)
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning participation row: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participation rows: %w", err)
	}
	return list, nil
}

// Join writes the participation, its bank details and its payment schedule in one transaction.
// The cycle row is locked FOR UPDATE, which serialises concurrent joins on the same cycle, and
// the open/deadline/capacity checks are repeated under that lock.
func (r *PostgresParticipationRepository) Join(ctx context.Context, e *participation.Enrollment) error {
	p := e.Participation
	return r.tx.Run(ctx, nil, "join_cycle", func(txn *sql.Tx) error {
		var (
			status     cycle.Status
			totalSlots int
			deadline   time.Time
		)
		err := txn.QueryRowContext(ctx,
			`SELECT status, total_slots, registration_deadline FROM cycles WHERE id = $1 FOR UPDATE`, p.CycleID,
		).Scan(&status, &totalSlots, &deadline)
		if err != nil {
			if err == sql.ErrNoRows {
				return failure.ErrCycleNotFound
			}
			return fmt.Errorf("error locking cycle for join: %w", err)
		}
		if status == cycle.StatusCompleted || status == cycle.StatusCancelled {
			return failure.ErrCycleClosed.Withf("cycle %d is %s", p.CycleID, status)
		}
		if !p.RegisteredAt.Before(deadline) {
			return failure.ErrDeadlinePassed
		}

		var count int
		if err := txn.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE cycle_id = $1`, p.CycleID).Scan(&count); err != nil {
			return fmt.Errorf("error counting participants: %w", err)
		}
		if count >= totalSlots {
			return failure.ErrNoSlotsAvailable.Withf("all %d slots of cycle %d are taken", totalSlots, p.CycleID)
		}

		err = txn.QueryRowContext(ctx,
			`INSERT INTO participations (user_id, cycle_id, contribution_mode, monthly_amount, total_payout, fine_amount, registered_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id`,
			p.UserID, p.CycleID, p.ContributionMode, p.MonthlyAmount, p.TotalPayout, p.FineAmount, p.RegisteredAt,
		).Scan(&p.ID)
		if err != nil {
			if isUniqueViolation(err, constraintParticipationUser) {
				return failure.ErrAlreadyRegistered
			}
			return fmt.Errorf("error creating participation: %w", err)
		}

		b := e.Bank
		b.ParticipationID = p.ID
		err = txn.QueryRowContext(ctx,
			`INSERT INTO bank_details (participation_id, bank_name, account_number, account_name)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at`,
			b.ParticipationID, b.BankName, b.AccountNumber, b.AccountName,
		).Scan(&b.ID, &b.CreatedAt)
		if err != nil {
			return fmt.Errorf("error creating bank details: %w", err)
		}

		return insertSchedule(ctx, txn, e)
	})
}

func insertSchedule(ctx context.Context, txn *sql.Tx, e *participation.Enrollment) error {
	if len(e.Schedule) == 0 {
		return nil
	}
	stmt, err := txn.PrepareContext(ctx, `INSERT INTO payments (participation_id, user_id, cycle_id, month_number, amount, due_date, status)
                                         VALUES ($1, $2, $3, $4, $5, $6, $7)
                                         RETURNING id, created_at, updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for payment schedule: %w", err)
	}
	defer stmt.Close()

	p := e.Participation
	for _, pay := range e.Schedule {
		pay.ParticipationID = p.ID
		pay.UserID = p.UserID
		pay.CycleID = p.CycleID
		err := stmt.QueryRowContext(ctx, pay.ParticipationID, pay.UserID, pay.CycleID, pay.MonthNumber, pay.Amount, pay.DueDate, pay.Status).
			Scan(&pay.ID, &pay.CreatedAt, &pay.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, constraintPaymentMonth) {
				return fmt.Errorf("duplicate payment for participation %d month %d: %w", p.ID, pay.MonthNumber, err)
			}
			return fmt.Errorf("error creating payment for month %d: %w", pay.MonthNumber, err)
		}
	}
	return nil
}

func (r *PostgresParticipationRepository) GetByID(ctx context.Context, id int64) (*participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations p WHERE p.id = $1`
	p, err := scanParticipation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrParticipationNotFound
		}
		return nil, fmt.Errorf("error getting participation by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresParticipationRepository) GetByUserAndCycle(ctx context.Context, userID, cycleID int64) (*participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations p WHERE p.user_id = $1 AND p.cycle_id = $2`
	p, err := scanParticipation(r.db.QueryRowContext(ctx, query, userID, cycleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrParticipationNotFound
		}
		return nil, fmt.Errorf("error getting participation by user and cycle: %w", err)
	}
	return p, nil
}

func (r *PostgresParticipationRepository) Exists(ctx context.Context, userID, cycleID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM participations WHERE user_id = $1 AND cycle_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, userID, cycleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking participation: %w", err)
	}
	return exists, nil
}

func (r *PostgresParticipationRepository) GetActiveForUser(ctx context.Context, userID int64) (*participation.Participation, error) {
	query := `SELECT ` + participationColumns + `
               FROM participations p
               JOIN cycles c ON c.id = p.cycle_id
               WHERE p.user_id = $1 AND c.status = $2 AND p.has_opted_out = FALSE
               ORDER BY p.registered_at DESC, p.id DESC
               LIMIT 1`
	p, err := scanParticipation(r.db.QueryRowContext(ctx, query, userID, cycle.StatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrNotRegistered
		}
		return nil, fmt.Errorf("error getting active participation: %w", err)
	}
	return p, nil
}

func (r *PostgresParticipationRepository) ListByCycle(ctx context.Context, cycleID int64) ([]*participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations p WHERE p.cycle_id = $1 ORDER BY p.id`
	rows, err := r.db.QueryContext(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("error querying participations by cycle: %w", err)
	}
	defer rows.Close()
	return scanParticipations(rows)
}

func (r *PostgresParticipationRepository) ListByUser(ctx context.Context, userID int64) ([]*participation.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations p WHERE p.user_id = $1 ORDER BY p.registered_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying participations by user: %w", err)
	}
	defer rows.Close()
	return scanParticipations(rows)
}

func (r *PostgresParticipationRepository) GetBankDetails(ctx context.Context, participationID int64) (*participation.BankDetails, error) {
	query := `SELECT id, participation_id, bank_name, account_number, account_name, created_at
               FROM bank_details WHERE participation_id = $1`
	b := &participation.BankDetails{}
	err := r.db.QueryRowContext(ctx, query, participationID).
		Scan(&b.ID, &b.ParticipationID, &b.BankName, &b.AccountNumber, &b.AccountName, &b.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrParticipationNotFound.Withf("no bank details for participation %d", participationID)
		}
		return nil, fmt.Errorf("error getting bank details: %w", err)
	}
	return b, nil
}

func (r *PostgresParticipationRepository) SetOptedOut(ctx context.Context, id int64) error {
	query := `UPDATE participations SET has_opted_out = TRUE WHERE id = $1 AND picked_number IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("error opting out participation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return failure.ErrOptOutNotAllowed
}
