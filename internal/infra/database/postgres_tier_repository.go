package database

import (
	"context"
	"database/sql"
	"fmt"

	"ajo_ledger/internal/domain/participation"
)

// PostgresTierRepository stores the system-wide contribution tier settings.
type PostgresTierRepository struct {
	db *sql.DB
}

func NewPostgresTierRepository(db *sql.DB) *PostgresTierRepository {
	return &PostgresTierRepository{db: db}
}

// Snapshot reads every tier in one query so an operation sees a consistent set.
func (r *PostgresTierRepository) Snapshot(ctx context.Context) (participation.TierSet, error) {
	query := `SELECT name, monthly_amount, total_payout, fine_amount FROM contribution_tiers ORDER BY monthly_amount`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying contribution tiers: %w", err)
	}
	defer rows.Close()

	tiers := make([]participation.Tier, 0)
	for rows.Next() {
		var t participation.Tier
		if err := rows.Scan(&t.Name, &t.MonthlyAmount, &t.TotalPayout, &t.FineAmount); err != nil {
			return nil, fmt.Errorf("error scanning contribution tier row: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contribution tier rows: %w", err)
	}
	return participation.NewTierSet(tiers), nil
}

// Upsert creates or replaces a tier. Existing participations keep their stamped amounts.
func (r *PostgresTierRepository) Upsert(ctx context.Context, t participation.Tier) error {
	if err := t.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO contribution_tiers (name, monthly_amount, total_payout, fine_amount)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (name) DO UPDATE
               SET monthly_amount = EXCLUDED.monthly_amount,
                   total_payout = EXCLUDED.total_payout,
                   fine_amount = EXCLUDED.fine_amount,
                   updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, t.Name, t.MonthlyAmount, t.TotalPayout, t.FineAmount); err != nil {
		return fmt.Errorf("error upserting contribution tier %s: %w", t.Name, err)
	}
	return nil
}
