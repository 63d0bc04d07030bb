// internal/app/reminder_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
	domainTelegram "ajo_ledger/internal/domain/telegram"
)

// ReminderService defines the scheduled outbound messages.
type ReminderService interface {
	// SendDueSoonReminders nudges members whose payment falls due within the lead window.
	SendDueSoonReminders(ctx context.Context) (int, error)
	// SendOverdueNotices tells members about pending payments past their due date.
	SendOverdueNotices(ctx context.Context) (int, error)
	// SendPayoutDueDigest lists pending payouts that are due to every admin.
	SendPayoutDueDigest(ctx context.Context) (int, error)
}

// ReminderServiceImpl implements ReminderService over the ledger repositories.
type ReminderServiceImpl struct {
	paymentRepo       payment.Repository
	payoutRepo        payout.Repository
	participationRepo participation.Repository
	memberRepo        member.Repository
	telegramClient    domainTelegram.Client
	leadDays          int
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewReminderServiceImpl(
	payRepo payment.Repository,
	por payout.Repository,
	pr participation.Repository,
	mr member.Repository,
	tc domainTelegram.Client,
	leadDays int,
	logger *logrus.Entry,
) *ReminderServiceImpl {
	return &ReminderServiceImpl{
		paymentRepo:       payRepo,
		payoutRepo:        por,
		participationRepo: pr,
		memberRepo:        mr,
		telegramClient:    tc,
		leadDays:          leadDays,
		logger:            logger,
		nowFn:             time.Now,
	}
}

// recipients resolves members and participations once per run.
type recipients struct {
	s              *ReminderServiceImpl
	members        map[int64]*member.Member
	participations map[int64]*participation.Participation
}

func (s *ReminderServiceImpl) newRecipients() *recipients {
	return &recipients{
		s:              s,
		members:        make(map[int64]*member.Member),
		participations: make(map[int64]*participation.Participation),
	}
}

func (r *recipients) member(ctx context.Context, id int64) (*member.Member, error) {
	if m, ok := r.members[id]; ok {
		return m, nil
	}
	m, err := r.s.memberRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.members[id] = m
	return m, nil
}

func (r *recipients) participation(ctx context.Context, id int64) (*participation.Participation, error) {
	if p, ok := r.participations[id]; ok {
		return p, nil
	}
	p, err := r.s.participationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.participations[id] = p
	return p, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *ReminderServiceImpl) SendDueSoonReminders(ctx context.Context) (int, error) {
	now := s.nowFn()
	from := payment.OverdueCutoff(now)
	to := from.AddDate(0, 0, s.leadDays+1)
	payments, err := s.paymentRepo.ListPendingDueBetween(ctx, from, to)
	if err != nil {
		return 0, failure.Internal(err)
	}
	s.logger.WithField("payments", len(payments)).Info("Sending due-soon reminders")

	return s.notifyPayments(ctx, payments, func(p *payment.Payment, part *participation.Participation, m *member.Member) domainTelegram.Notice {
		return domainTelegram.Notice{
			ChatID: m.TelegramID,
			Text: fmt.Sprintf(
				"Hi %s! Your contribution #%d of %s is due on %s (payment id %d).\n"+
					"Pay on time to avoid the %s late fine. Send a photo of your receipt with the caption \"%d\" once paid.",
				m.FirstName, p.MonthNumber, p.Amount.StringFixed(2), p.DueDate.Format("2 Jan 2006"), p.ID,
				part.FineAmount.StringFixed(2), p.ID),
		}
	})
}

func (s *ReminderServiceImpl) SendOverdueNotices(ctx context.Context) (int, error) {
	now := s.nowFn()
	payments, err := s.paymentRepo.ListPendingDueBetween(ctx, time.Unix(0, 0).UTC(), payment.OverdueCutoff(now))
	if err != nil {
		return 0, failure.Internal(err)
	}
	s.logger.WithField("payments", len(payments)).Info("Sending overdue notices")

	return s.notifyPayments(ctx, payments, func(p *payment.Payment, part *participation.Participation, m *member.Member) domainTelegram.Notice {
		return domainTelegram.Notice{
			ChatID: m.TelegramID,
			Text: fmt.Sprintf(
				"%s, contribution #%d of %s was due on %s and is %d day(s) overdue (payment id %d).\n"+
					"A flat late fine of %s applies when it is settled.",
				m.FirstName, p.MonthNumber, p.Amount.StringFixed(2), p.DueDate.Format("2 Jan 2006"),
				p.DaysPastDue(now), p.ID, part.FineAmount.StringFixed(2)),
		}
	})
}

// notifyPayments sends one notice per payment, skipping opted-out participations and
// inactive members. A failed send is logged and does not stop the run.
func (s *ReminderServiceImpl) notifyPayments(
	ctx context.Context,
	payments []*payment.Payment,
	build func(*payment.Payment, *participation.Participation, *member.Member) domainTelegram.Notice,
) (int, error) {
	rcpt := s.newRecipients()
	sent := 0
	var errs []error
	for _, p := range payments {
		entry := s.logger.WithFields(logrus.Fields{"payment_id": p.ID, "user_id": p.UserID})

		part, err := rcpt.participation(ctx, p.ParticipationID)
		if err != nil {
			entry.WithError(err).Error("Failed to load participation for reminder")
			errs = append(errs, err)
			continue
		}
		if part.HasOptedOut {
			continue
		}
		m, err := rcpt.member(ctx, p.UserID)
		if err != nil {
			entry.WithError(err).Error("Failed to load member for reminder")
			errs = append(errs, err)
			continue
		}
		if !m.IsActive {
			continue
		}

		notice := build(p, part, m)
		if err := s.telegramClient.SendMessage(notice.ChatID, notice.Text, notice.Options()); err != nil {
			entry.WithError(err).Error("Failed to send reminder")
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *ReminderServiceImpl) SendPayoutDueDigest(ctx context.Context) (int, error) {
	now := s.nowFn()
	due, err := s.payoutRepo.ListPendingDueBy(ctx, startOfDay(now).AddDate(0, 0, 1))
	if err != nil {
		return 0, failure.Internal(err)
	}
	if len(due) == 0 {
		s.logger.Info("No payouts due, digest skipped")
		return 0, nil
	}

	admins, err := s.memberRepo.ListAdmins(ctx)
	if err != nil {
		return 0, failure.Internal(err)
	}
	if len(admins) == 0 {
		s.logger.Warn("Payouts are due but no admin is registered")
		return 0, nil
	}

	text := s.payoutDigest(ctx, due)
	sent := 0
	for _, a := range admins {
		notice := domainTelegram.Notice{ChatID: a.TelegramID, Text: text}
		if err := s.telegramClient.SendMessage(notice.ChatID, notice.Text, notice.Options()); err != nil {
			s.logger.WithError(err).WithField("admin_id", a.ID).Error("Failed to send payout digest")
			continue
		}
		sent++
	}
	s.logger.WithFields(logrus.Fields{"payouts": len(due), "admins": sent}).Info("Payout digest sent")
	return sent, nil
}

func (s *ReminderServiceImpl) payoutDigest(ctx context.Context, due []*payout.Payout) string {
	rcpt := s.newRecipients()
	var b strings.Builder
	fmt.Fprintf(&b, "%d payout(s) due:\n", len(due))
	for _, po := range due {
		name := fmt.Sprintf("member %d", po.UserID)
		if m, err := rcpt.member(ctx, po.UserID); err == nil {
			name = m.DisplayName()
		}
		fmt.Fprintf(&b, "• #%d %s, slot %d, %s on %s\n",
			po.ID, name, po.ScheduledMonth, po.Amount.StringFixed(2), po.ScheduledDate.Format("2 Jan 2006"))
	}
	b.WriteString("Process with /process_payout <id> <reference>.")
	return b.String()
}
