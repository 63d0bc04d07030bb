// internal/infra/database/postgres_payment_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/payment"
)

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

const paymentColumns = `id, participation_id, user_id, cycle_id, month_number, amount, due_date, status,
               paid_at, paid_amount, has_fine, fine_amount, fine_paid, proof_of_payment, proof_submitted_at,
               verified_by, verified_at, notes, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (*payment.Payment, error) {
	p := &payment.Payment{}
	err := row.Scan(
		&p.ID, &p.ParticipationID, &p.UserID, &p.CycleID, &p.MonthNumber, &p.Amount, &p.DueDate, &p.Status,
		&p.PaidAt, &p.PaidAmount, &p.HasFine, &p.FineAmount, &p.FinePaid, &p.ProofOfPayment, &p.ProofSubmittedAt,
		&p.VerifiedBy, &p.VerifiedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func scanPayments(rows *sql.Rows) ([]*payment.Payment, error) {
	payments := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("error getting payment by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) ListByParticipation(ctx context.Context, participationID int64) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE participation_id = $1 ORDER BY month_number`
	rows, err := r.db.QueryContext(ctx, query, participationID)
	if err != nil {
		return nil, fmt.Errorf("error querying payments by participation: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// pendingGuardFailure explains why a status-guarded write on a pending payment touched no row.
func (r *PostgresPaymentRepository) pendingGuardFailure(ctx context.Context, id int64) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return failure.ErrAlreadyPaid.Withf("payment %d is already paid", id)
}

// Settle moves a PENDING payment to PAID. The status predicate in the WHERE clause makes the
// transition happen at most once even under concurrent calls.
func (r *PostgresPaymentRepository) Settle(ctx context.Context, s payment.Settlement) (*payment.Payment, error) {
	query := `UPDATE payments
               SET status = $2, paid_at = $3, paid_amount = $4, has_fine = $5, fine_amount = $6, fine_paid = $7,
                   proof_of_payment = COALESCE($8, proof_of_payment),
                   verified_by = COALESCE($9, verified_by),
                   verified_at = COALESCE($10, verified_at),
                   updated_at = NOW()
               WHERE id = $1 AND status = $11
               RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRowContext(ctx, query,
		s.PaymentID, payment.StatusPaid, s.PaidAt, s.PaidAmount, s.HasFine, s.FineAmount, s.FinePaid,
		s.ProofOfPayment, s.VerifiedBy, s.VerifiedAt, payment.StatusPending,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, r.pendingGuardFailure(ctx, s.PaymentID)
		}
		return nil, fmt.Errorf("error settling payment: %w", err)
	}
	return p, nil
}

// AttachProof stores proofRef; an earlier submission time survives a replacement proof.
func (r *PostgresPaymentRepository) AttachProof(ctx context.Context, id int64, proofRef string, submittedAt time.Time) error {
	query := `UPDATE payments
               SET proof_of_payment = $2, proof_submitted_at = COALESCE(proof_submitted_at, $3),
                   notes = NULL, updated_at = NOW()
               WHERE id = $1 AND status = $4`
	return r.execPending(ctx, "attaching proof", query, id, proofRef, submittedAt, payment.StatusPending)
}

func (r *PostgresPaymentRepository) RejectProof(ctx context.Context, id int64, notes string) error {
	query := `UPDATE payments
               SET proof_of_payment = NULL, proof_submitted_at = NULL, notes = $2, updated_at = NOW()
               WHERE id = $1 AND status = $3`
	return r.execPending(ctx, "rejecting proof", query, id, notes, payment.StatusPending)
}

func (r *PostgresPaymentRepository) execPending(ctx context.Context, action, query string, id int64, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("error %s: %w", action, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return r.pendingGuardFailure(ctx, id)
	}
	return nil
}

func (r *PostgresPaymentRepository) MarkVerified(ctx context.Context, id, adminID int64, at time.Time) (*payment.Payment, error) {
	query := `UPDATE payments
               SET verified_by = $2, verified_at = $3, updated_at = NOW()
               WHERE id = $1 AND status = $4 AND verified_by IS NULL
               RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id, adminID, at, payment.StatusPaid))
	if err != nil {
		if err == sql.ErrNoRows {
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			if current.Status == payment.StatusPending {
				return nil, failure.ErrInvalidProof.Withf("payment %d is not settled yet", id)
			}
			return nil, failure.ErrAlreadyPaid.Withf("payment %d is already verified", id)
		}
		return nil, fmt.Errorf("error verifying payment: %w", err)
	}
	return p, nil
}

// CountOverdue counts PENDING payments whose due day ended before now.
func (r *PostgresPaymentRepository) CountOverdue(ctx context.Context, participationID int64, now time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM payments WHERE participation_id = $1 AND status = $2 AND due_date < $3`
	cutoff := payment.OverdueCutoff(now)
	if err := r.db.QueryRowContext(ctx, query, participationID, payment.StatusPending, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting overdue payments: %w", err)
	}
	return count, nil
}

func (r *PostgresPaymentRepository) ListPendingDueBetween(ctx context.Context, from, to time.Time) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + `
               FROM payments
               WHERE status = $1 AND due_date >= $2 AND due_date < $3
               ORDER BY due_date, id`
	rows, err := r.db.QueryContext(ctx, query, payment.StatusPending, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying pending payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *PostgresPaymentRepository) List(ctx context.Context, f payment.Filter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ($1::BIGINT = 0 OR cycle_id = $1) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, f.CycleID)
	if err != nil {
		return nil, fmt.Errorf("error querying payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}
