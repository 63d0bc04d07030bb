// internal/infra/database/postgres_payout_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // For pq.Array

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/payout"
)

type PostgresPayoutRepository struct {
	db *sql.DB
}

func NewPostgresPayoutRepository(db *sql.DB) *PostgresPayoutRepository {
	return &PostgresPayoutRepository{db: db}
}

const payoutColumns = `id, participation_id, user_id, cycle_id, amount, scheduled_month, scheduled_date, status,
               paid_at, transfer_reference, processed_by, notes, created_at, updated_at`

func scanPayout(row interface{ Scan(dest ...any) error }) (*payout.Payout, error) {
	p := &payout.Payout{}
	err := row.Scan(
		&p.ID, &p.ParticipationID, &p.UserID, &p.CycleID, &p.Amount, &p.ScheduledMonth, &p.ScheduledDate, &p.Status,
		&p.PaidAt, &p.TransferReference, &p.ProcessedBy, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanPayouts(rows *sql.Rows) ([]*payout.Payout, error) {
	payouts := make([]*payout.Payout, 0)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payout row: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}

func (r *PostgresPayoutRepository) GetByID(ctx context.Context, id int64) (*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("error getting payout by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresPayoutRepository) GetByParticipation(ctx context.Context, participationID int64) (*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE participation_id = $1`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, participationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("error getting payout by participation: %w", err)
	}
	return p, nil
}

func (r *PostgresPayoutRepository) ListByIDs(ctx context.Context, ids []int64) ([]*payout.Payout, error) {
	if len(ids) == 0 {
		return []*payout.Payout{}, nil
	}
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error querying payouts by IDs: %w", err)
	}
	defer rows.Close()
	return scanPayouts(rows)
}

func (r *PostgresPayoutRepository) List(ctx context.Context, f payout.Filter) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE ($1::BIGINT = 0 OR cycle_id = $1) ORDER BY scheduled_date, id`
	rows, err := r.db.QueryContext(ctx, query, f.CycleID)
	if err != nil {
		return nil, fmt.Errorf("error querying payouts: %w", err)
	}
	defer rows.Close()
	return scanPayouts(rows)
}

// ListPendingDueBy returns PENDING payouts scheduled on or before t.
func (r *PostgresPayoutRepository) ListPendingDueBy(ctx context.Context, t time.Time) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE status = $1 AND scheduled_date <= $2 ORDER BY scheduled_date, id`
	rows, err := r.db.QueryContext(ctx, query, payout.StatusPending, t)
	if err != nil {
		return nil, fmt.Errorf("error querying due payouts: %w", err)
	}
	defer rows.Close()
	return scanPayouts(rows)
}

// MarkPaid moves a PENDING payout to PAID; a second call finds no PENDING row and fails
// with ErrAlreadyProcessed, leaving the first reference in place.
func (r *PostgresPayoutRepository) MarkPaid(ctx context.Context, pr payout.Processing) (*payout.Payout, error) {
	query := `UPDATE payouts
               SET status = $2, paid_at = $3, transfer_reference = $4, processed_by = $5, notes = $6, updated_at = NOW()
               WHERE id = $1 AND status = $7
               RETURNING ` + payoutColumns
	p, err := scanPayout(r.db.QueryRowContext(ctx, query,
		pr.PayoutID, payout.StatusPaid, pr.PaidAt, pr.TransferReference, pr.ProcessedBy, pr.Notes, payout.StatusPending,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := r.GetByID(ctx, pr.PayoutID); getErr != nil {
				return nil, getErr
			}
			return nil, failure.ErrAlreadyProcessed.Withf("payout %d is already processed", pr.PayoutID)
		}
		return nil, fmt.Errorf("error marking payout paid: %w", err)
	}
	return p, nil
}
