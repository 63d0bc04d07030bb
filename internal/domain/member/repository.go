package member

import (
	"context"
)

// Repository defines the operations for persisting and retrieving Member entities.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id int64) (*Member, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Member, error)
	Update(ctx context.Context, m *Member) error // Should handle updates to names, IsAdmin, IsActive
	ListAdmins(ctx context.Context) ([]*Member, error)
}
