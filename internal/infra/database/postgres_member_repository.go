// internal/infra/database/postgres_member_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
)

type PostgresMemberRepository struct {
	db *sql.DB
}

// NewPostgresMemberRepository creates a new instance of PostgresMemberRepository.
func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

const memberColumns = `id, telegram_id, first_name, last_name, is_admin, is_active, created_at, updated_at`

func scanMember(row interface{ Scan(dest ...any) error }) (*member.Member, error) {
	m := &member.Member{}
	err := row.Scan(&m.ID, &m.TelegramID, &m.FirstName, &m.LastName, &m.IsAdmin, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Create inserts a new member into the database.
// It sets the ID, CreatedAt, and UpdatedAt fields on the passed-in member object.
func (r *PostgresMemberRepository) Create(ctx context.Context, m *member.Member) error {
	query := `INSERT INTO members (telegram_id, first_name, last_name, is_admin, is_active)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.TelegramID, m.FirstName, m.LastName, m.IsAdmin, m.IsActive).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintMemberTelegramID) {
			return failure.ErrMemberExists.Withf("member with telegram id %d already exists", m.TelegramID)
		}
		return fmt.Errorf("error creating member: %w", err)
	}
	return nil
}

func (r *PostgresMemberRepository) GetByID(ctx context.Context, id int64) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrMemberNotFound
		}
		return nil, fmt.Errorf("error getting member by ID: %w", err)
	}
	return m, nil
}

func (r *PostgresMemberRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE telegram_id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, failure.ErrMemberNotFound
		}
		return nil, fmt.Errorf("error getting member by Telegram ID: %w", err)
	}
	return m, nil
}

// Update modifies an existing member's details in the database.
// It updates FirstName, LastName, IsAdmin, IsActive, and automatically sets UpdatedAt.
func (r *PostgresMemberRepository) Update(ctx context.Context, m *member.Member) error {
	query := `UPDATE members
               SET first_name = $1, last_name = $2, is_admin = $3, is_active = $4, updated_at = NOW()
               WHERE id = $5
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, m.FirstName, m.LastName, m.IsAdmin, m.IsActive, m.ID).Scan(&m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return failure.ErrMemberNotFound
		}
		return fmt.Errorf("error updating member: %w", err)
	}
	return nil
}

// ListAdmins returns active administrators; reminders and digests go to them.
func (r *PostgresMemberRepository) ListAdmins(ctx context.Context) ([]*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE is_admin = TRUE AND is_active = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying admins: %w", err)
	}
	defer rows.Close()

	admins := make([]*member.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning member row: %w", err)
		}
		admins = append(admins, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return admins, nil
}
