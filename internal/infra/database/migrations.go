package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Constraint names matched by the repositories when mapping unique violations.
const (
	constraintMemberTelegramID    = "members_telegram_id_key"
	constraintParticipationUser   = "participations_user_cycle_key"
	constraintParticipationSlot   = "participations_cycle_number_key"
	constraintPaymentMonth        = "payments_participation_month_key"
	constraintPayoutParticipation = "payouts_participation_key"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id BIGSERIAL PRIMARY KEY,
		telegram_id BIGINT NOT NULL,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255),
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT members_telegram_id_key UNIQUE (telegram_id)
	)`,
	`CREATE TABLE IF NOT EXISTS contribution_tiers (
		name VARCHAR(32) PRIMARY KEY,
		monthly_amount NUMERIC(14,2) NOT NULL CHECK (monthly_amount > 0),
		total_payout NUMERIC(14,2) NOT NULL CHECK (total_payout > 0),
		fine_amount NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (fine_amount >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cycles (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		registration_deadline TIMESTAMPTZ NOT NULL,
		number_picking_start_date TIMESTAMPTZ,
		status VARCHAR(16) NOT NULL DEFAULT 'UPCOMING'
			CHECK (status IN ('UPCOMING', 'ACTIVE', 'COMPLETED', 'CANCELLED')),
		total_slots INT NOT NULL CHECK (total_slots >= 1),
		payment_deadline_day INT NOT NULL CHECK (payment_deadline_day BETWEEN 1 AND 28),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (start_date < end_date),
		CHECK (registration_deadline <= end_date)
	)`,
	`CREATE TABLE IF NOT EXISTS participations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES members(id),
		cycle_id BIGINT NOT NULL REFERENCES cycles(id),
		contribution_mode VARCHAR(32) NOT NULL,
		monthly_amount NUMERIC(14,2) NOT NULL,
		total_payout NUMERIC(14,2) NOT NULL,
		fine_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		picked_number INT,
		has_opted_out BOOLEAN NOT NULL DEFAULT FALSE,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT participations_user_cycle_key UNIQUE (user_id, cycle_id),
		CONSTRAINT participations_cycle_number_key UNIQUE (cycle_id, picked_number)
	)`,
	`CREATE TABLE IF NOT EXISTS bank_details (
		id BIGSERIAL PRIMARY KEY,
		participation_id BIGINT NOT NULL UNIQUE REFERENCES participations(id) ON DELETE CASCADE,
		bank_name VARCHAR(255) NOT NULL,
		account_number VARCHAR(10) NOT NULL,
		account_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		participation_id BIGINT NOT NULL REFERENCES participations(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES members(id),
		cycle_id BIGINT NOT NULL REFERENCES cycles(id),
		month_number INT NOT NULL CHECK (month_number >= 1),
		amount NUMERIC(14,2) NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID')),
		paid_at TIMESTAMPTZ,
		paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		has_fine BOOLEAN NOT NULL DEFAULT FALSE,
		fine_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		fine_paid BOOLEAN NOT NULL DEFAULT FALSE,
		proof_of_payment TEXT,
		proof_submitted_at TIMESTAMPTZ,
		verified_by BIGINT REFERENCES members(id),
		verified_at TIMESTAMPTZ,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payments_participation_month_key UNIQUE (participation_id, month_number)
	)`,
	`CREATE INDEX IF NOT EXISTS payments_status_due_idx ON payments (status, due_date)`,
	`CREATE INDEX IF NOT EXISTS payments_cycle_idx ON payments (cycle_id)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id BIGSERIAL PRIMARY KEY,
		participation_id BIGINT NOT NULL REFERENCES participations(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES members(id),
		cycle_id BIGINT NOT NULL REFERENCES cycles(id),
		amount NUMERIC(14,2) NOT NULL,
		scheduled_month INT NOT NULL CHECK (scheduled_month >= 1),
		scheduled_date TIMESTAMPTZ NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID')),
		paid_at TIMESTAMPTZ,
		transfer_reference VARCHAR(255),
		processed_by BIGINT REFERENCES members(id),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payouts_participation_key UNIQUE (participation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS payouts_status_date_idx ON payouts (status, scheduled_date)`,
}

// RunMigrations creates the ledger schema. Every statement is idempotent, so it runs on each start.
func RunMigrations(ctx context.Context, db *sql.DB, logger *logrus.Entry) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	logger.WithField("statements", len(schema)).Info("Database schema is up to date")
	return nil
}
