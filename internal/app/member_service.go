package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
)

// MemberService registers members and verifies admin privileges.
type MemberService struct {
	memberRepo      member.Repository
	adminTelegramID int64 // bootstrapped as the first admin
	logger          *logrus.Entry
}

func NewMemberService(mr member.Repository, adminTelegramID int64, logger *logrus.Entry) *MemberService {
	return &MemberService{
		memberRepo:      mr,
		adminTelegramID: adminTelegramID,
		logger:          logger,
	}
}

// RegisterMember returns the member for telegramID, creating it on first contact.
// Names are refreshed when they changed on Telegram's side.
func (s *MemberService) RegisterMember(ctx context.Context, telegramID int64, firstName, lastNameValue string) (*member.Member, error) {
	var lastName sql.NullString
	if v := strings.TrimSpace(lastNameValue); v != "" {
		lastName = sql.NullString{String: v, Valid: true}
	}
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = fmt.Sprintf("member-%d", telegramID)
	}

	existing, err := s.memberRepo.GetByTelegramID(ctx, telegramID)
	if err == nil {
		if existing.FirstName != firstName || existing.LastName != lastName {
			existing.FirstName = firstName
			existing.LastName = lastName
			if err := s.memberRepo.Update(ctx, existing); err != nil {
				return nil, failure.Internal(fmt.Errorf("failed to refresh member names: %w", err))
			}
		}
		return existing, nil
	}
	if !errors.Is(err, failure.ErrMemberNotFound) {
		return nil, failure.Internal(fmt.Errorf("failed to check existing member: %w", err))
	}

	m := &member.Member{
		TelegramID: telegramID,
		FirstName:  firstName,
		LastName:   lastName,
		IsAdmin:    telegramID == s.adminTelegramID,
		IsActive:   true,
	}
	if err := s.memberRepo.Create(ctx, m); err != nil {
		if errors.Is(err, failure.ErrMemberExists) {
			// Lost a race with a concurrent /start from the same account.
			return s.memberRepo.GetByTelegramID(ctx, telegramID)
		}
		return nil, failure.Internal(fmt.Errorf("failed to create member: %w", err))
	}
	s.logger.WithFields(logrus.Fields{"user_id": m.ID, "telegram_id": telegramID}).Info("Member registered")
	return m, nil
}

// EnsureBootstrapAdmin makes sure the configured Telegram account exists and is an admin.
func (s *MemberService) EnsureBootstrapAdmin(ctx context.Context) (*member.Member, error) {
	m, err := s.memberRepo.GetByTelegramID(ctx, s.adminTelegramID)
	if errors.Is(err, failure.ErrMemberNotFound) {
		return s.RegisterMember(ctx, s.adminTelegramID, "Admin", "")
	}
	if err != nil {
		return nil, failure.Internal(fmt.Errorf("failed to look up bootstrap admin: %w", err))
	}
	if m.IsAdmin && m.IsActive {
		return m, nil
	}
	m.IsAdmin = true
	m.IsActive = true
	if err := s.memberRepo.Update(ctx, m); err != nil {
		return nil, failure.Internal(fmt.Errorf("failed to promote bootstrap admin: %w", err))
	}
	s.logger.WithField("user_id", m.ID).Info("Bootstrap admin promoted")
	return m, nil
}

// GetByTelegramID resolves the member behind an inbound Telegram update.
func (s *MemberService) GetByTelegramID(ctx context.Context, telegramID int64) (*member.Member, error) {
	m, err := s.memberRepo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return m, nil
}

// GetMember loads a member by ledger id.
func (s *MemberService) GetMember(ctx context.Context, memberID int64) (*member.Member, error) {
	m, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return m, nil
}

// ListAdmins returns the active admins, e.g. to route proof-of-payment reviews.
func (s *MemberService) ListAdmins(ctx context.Context) ([]*member.Member, error) {
	admins, err := s.memberRepo.ListAdmins(ctx)
	if err != nil {
		return nil, failure.Internal(fmt.Errorf("failed to list admins: %w", err))
	}
	return admins, nil
}

// RequireAdmin re-reads memberID and fails with ErrUnauthorized unless it is an active admin.
func (s *MemberService) RequireAdmin(ctx context.Context, memberID int64) (*member.Member, error) {
	return requireAdmin(ctx, s.memberRepo, memberID)
}

// PromoteAdmin grants admin status to the member with targetTelegramID.
func (s *MemberService) PromoteAdmin(ctx context.Context, performingAdminID, targetTelegramID int64) (*member.Member, error) {
	if _, err := s.RequireAdmin(ctx, performingAdminID); err != nil {
		return nil, err
	}

	target, err := s.memberRepo.GetByTelegramID(ctx, targetTelegramID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if target.IsAdmin {
		return target, nil
	}
	target.IsAdmin = true
	if err := s.memberRepo.Update(ctx, target); err != nil {
		return nil, failure.Internal(fmt.Errorf("failed to promote member: %w", err))
	}
	s.logger.WithFields(logrus.Fields{"admin_id": performingAdminID, "user_id": target.ID}).Info("Member promoted to admin")
	return target, nil
}

// requireAdmin is the privilege check shared by every admin operation. Admin status is
// read from storage each time and never taken from the caller.
func requireAdmin(ctx context.Context, repo member.Repository, memberID int64) (*member.Member, error) {
	m, err := repo.GetByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, failure.ErrMemberNotFound) {
			return nil, failure.ErrUnauthorized
		}
		return nil, failure.Internal(fmt.Errorf("failed to verify admin: %w", err))
	}
	if !m.IsAdmin || !m.IsActive {
		return nil, failure.ErrUnauthorized
	}
	return m, nil
}
