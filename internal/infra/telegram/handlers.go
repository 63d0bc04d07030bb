package telegram

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/app"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	domainTelegram "ajo_ledger/internal/domain/telegram"
	"ajo_ledger/internal/infra/logger"
	"ajo_ledger/internal/infra/storage"
)

// Services are the application services the bot commands drive.
type Services struct {
	Members        *app.MemberService
	Cycles         *app.CycleService
	Participations *app.ParticipationService
	Slots          *app.SlotService
	Payments       *app.PaymentService
	Payouts        *app.PayoutService
	Reports        *app.ReconciliationService
}

// Handlers binds bot commands to the ledger services.
type Handlers struct {
	ctx        context.Context
	svc        Services
	proofs     storage.ProofStore // nil keeps the Telegram file id as the proof reference
	notifier   domainTelegram.Client
	baseLogger *logrus.Entry
}

func NewHandlers(ctx context.Context, svc Services, proofs storage.ProofStore, notifier domainTelegram.Client, baseLogger *logrus.Entry) *Handlers {
	return &Handlers{ctx: ctx, svc: svc, proofs: proofs, notifier: notifier, baseLogger: baseLogger}
}

// Register installs every command, upload and callback handler on b.
func (h *Handlers) Register(b *telebot.Bot) {
	h.registerBotCommands(b)
	h.registerMemberHandlers(b)
	h.registerProofHandlers(b)
	h.registerAdminHandlers(b)
}

type memberHandler func(c telebot.Context, m *member.Member, log *logrus.Entry) error

// asMember resolves the sender to a registered, active member before calling fn.
func (h *Handlers) asMember(command string, fn memberHandler) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}
		log := logger.WithRequest(h.baseLogger).WithFields(logrus.Fields{
			"handler":   command,
			"sender_id": c.Sender().ID,
		})
		log.Info("Command received")

		m, err := h.svc.Members.GetByTelegramID(h.ctx, c.Sender().ID)
		if errors.Is(err, failure.ErrMemberNotFound) {
			log.Info("Sender is not registered")
			return c.Send("Please send /start first to register.")
		}
		if err != nil {
			return h.fail(c, log, err)
		}
		if !m.IsActive {
			log.Warn("Inactive member")
			return c.Send("Your membership is inactive. Please contact an administrator.")
		}
		return fn(c, m, log.WithField("user_id", m.ID))
	}
}

// asAdmin additionally re-checks admin status in storage.
func (h *Handlers) asAdmin(command string, fn memberHandler) telebot.HandlerFunc {
	return h.asMember(command, func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		if _, err := h.svc.Members.RequireAdmin(h.ctx, m.ID); err != nil {
			return h.fail(c, log, err)
		}
		return fn(c, m, log.WithField("admin_id", m.ID))
	})
}

// fail logs err at a level matching its kind and replies with a user-facing message.
func (h *Handlers) fail(c telebot.Context, log *logrus.Entry, err error) error {
	if failure.IsBusiness(err) {
		log.WithError(err).Warn("Command rejected")
	} else {
		log.WithError(err).Error("Command failed")
	}
	return c.Send(errorReply(err))
}

func usage(c telebot.Context, format string) error {
	return c.Send("Usage: " + format)
}
