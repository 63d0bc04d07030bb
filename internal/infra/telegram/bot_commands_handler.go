// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/infra/logger"
)

const memberHelp = "Member commands:\n\n" +
	"/cycles - list cycles\n" +
	"/cycle <id> - cycle details and free slots\n" +
	"/tiers - contribution tiers\n" +
	"/join <cycle id> <tier> | <bank name> | <account number> | <account name>\n" +
	"/pick <number> - pick your payout number\n" +
	"/taken [cycle id] - numbers already taken\n" +
	"/mystatus - your participations and overdue counts\n" +
	"/mypayments [cycle id] - your payment schedule\n" +
	"/mypayout [participation id] - your payout\n" +
	"/optout <cycle id> - leave a cycle before picking a number\n\n" +
	"To submit proof of payment, send a photo or PDF of the receipt captioned with the payment id."

const adminHelp = "\n\nAdmin commands:\n\n" +
	"/create_cycle <name> | <start> | <end> | <registration deadline> | <slots> | <due day> [| <picking opens>]\n" +
	"/update_cycle <id> | key=value ... (name, start, end, deadline, picking, slots, day, status)\n" +
	"/cancel_cycle <id>\n" +
	"/record_payment <payment id> <amount> [reference]\n" +
	"/verify <payment id> approve [amount] | reject [notes]\n" +
	"/process_payout <payout id> <reference> [notes]\n" +
	"/batch_payout <base reference> <id,id,...>\n" +
	"/payouts [cycle id], /due_payouts\n" +
	"/summary [cycle id], /defaulters [cycle id], /performance <cycle id>\n" +
	"/reconcile <YYYY-MM> [cycle id], /trend [cycle id]\n" +
	"/promote <telegram id>\n" +
	"Dates are YYYY-MM-DD."

func (h *Handlers) registerBotCommands(b *telebot.Bot) {
	startHelpLogger := h.baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		logCtx := logger.WithRequest(startHelpLogger).WithFields(logrus.Fields{"command": "/start", "sender_id": sender.ID})
		logCtx.Info("Processing /start command")

		m, err := h.svc.Members.RegisterMember(h.ctx, sender.ID, sender.FirstName, sender.LastName)
		if err != nil {
			return h.fail(c, logCtx, err)
		}
		logCtx.WithFields(logrus.Fields{"user_id": m.ID, "is_admin": m.IsAdmin}).Info("Member registered")

		if m.IsAdmin {
			return c.Send(fmt.Sprintf("Hello, %s! You are an administrator. Use /help to see the commands.", m.FirstName))
		}
		return c.Send(fmt.Sprintf("Welcome, %s! You are registered. Use /cycles to see open cycles and /help for all commands.", m.FirstName))
	})

	b.Handle("/help", h.asMember("/help", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		var text strings.Builder
		text.WriteString(memberHelp)
		if m.IsAdmin {
			text.WriteString(adminHelp)
		}
		return c.Send(text.String())
	}))
}
