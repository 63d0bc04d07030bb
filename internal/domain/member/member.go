package member

import (
	"database/sql"
	"strings"
	"time"
)

// Member represents a person who can join cycles; admins additionally run the ledger.
type Member struct {
	ID         int64
	TelegramID int64
	FirstName  string
	LastName   sql.NullString // To handle optional last name
	IsAdmin    bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName joins first and last name.
func (m *Member) DisplayName() string {
	if m.LastName.Valid && strings.TrimSpace(m.LastName.String) != "" {
		return m.FirstName + " " + m.LastName.String
	}
	return m.FirstName
}
