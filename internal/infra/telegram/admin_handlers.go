package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/payment"
)

// registerAdminHandlers registers handlers for admin commands.
// Every handler re-reads the sender's admin flag; the services check it again.
func (h *Handlers) registerAdminHandlers(b *telebot.Bot) {
	b.Handle("/create_cycle", h.asAdmin("/create_cycle", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		in, err := parseCycleInput(c.Message().Payload)
		if err != nil {
			return usage(c, "/create_cycle <name> | <start> | <end> | <registration deadline> | <slots> | <due day> [| <picking opens>]\n"+err.Error())
		}
		cy, err := h.svc.Cycles.CreateCycle(h.ctx, m.ID, in)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.WithField("cycle_id", cy.ID).Info("Cycle created")
		return c.Send("Cycle created.\n" + formatCycle(cy))
	}))

	b.Handle("/update_cycle", h.asAdmin("/update_cycle", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		id, u, err := parseCycleUpdate(c.Message().Payload)
		if err != nil {
			return usage(c, "/update_cycle <id> | key=value ...\n"+err.Error())
		}
		log = log.WithField("cycle_id", id)
		cy, err := h.svc.Cycles.UpdateCycle(h.ctx, m.ID, id, u)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.Info("Cycle updated")
		return c.Send("Cycle updated.\n" + formatCycle(cy))
	}))

	b.Handle("/cancel_cycle", h.asAdmin("/cancel_cycle", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/cancel_cycle <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		log = log.WithField("cycle_id", id)
		cy, err := h.svc.Cycles.CancelCycle(h.ctx, m.ID, id)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.Info("Cycle cancelled")
		return c.Send(fmt.Sprintf("Cycle #%d %s is now %s.", cy.ID, cy.Name, cy.Status))
	}))

	b.Handle("/record_payment", h.asAdmin("/record_payment", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 2 || len(args) > 3 {
			return usage(c, "/record_payment <payment id> <amount> [reference]")
		}
		paymentID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return c.Send(err.Error())
		}
		var ref string
		if len(args) == 3 {
			ref = args[2]
		}
		log = log.WithFields(logrus.Fields{"payment_id": paymentID, "amount": amount.String()})

		p, err := h.svc.Payments.RecordPayment(h.ctx, m.ID, paymentID, amount, ref)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.WithField("has_fine", p.HasFine).Info("Payment recorded")
		h.notifyPayer(log, p, true)
		return c.Send("Payment recorded.\n" + formatPayment(p))
	}))

	b.Handle("/verify", h.asAdmin("/verify", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 2 {
			return usage(c, "/verify <payment id> approve [amount] | reject [notes]")
		}
		paymentID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		var approve bool
		switch strings.ToLower(args[1]) {
		case "approve", "ok", "yes":
			approve = true
		case "reject", "no":
		default:
			return usage(c, "/verify <payment id> approve [amount] | reject [notes]")
		}
		log = log.WithFields(logrus.Fields{"payment_id": paymentID, "approve": approve})

		var p *payment.Payment
		if approve && len(args) > 2 {
			tendered, perr := parseAmount(args[2])
			if perr != nil {
				return c.Send(perr.Error())
			}
			p, err = h.svc.Payments.ApprovePaymentAmount(h.ctx, m.ID, paymentID, tendered)
		} else {
			p, err = h.svc.Payments.VerifyPayment(h.ctx, m.ID, paymentID, approve, strings.Join(args[2:], " "))
		}
		if err != nil {
			return h.fail(c, log, err)
		}
		log.Info("Payment reviewed")
		h.notifyPayer(log, p, approve)
		return c.Send(formatPayment(p))
	}))

	b.Handle("/process_payout", h.asAdmin("/process_payout", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 2 {
			return usage(c, "/process_payout <payout id> <reference> [notes]")
		}
		payoutID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		log = log.WithField("payout_id", payoutID)

		po, err := h.svc.Payouts.ProcessPayout(h.ctx, m.ID, payoutID, args[1], strings.Join(args[2:], " "))
		if err != nil {
			return h.fail(c, log, err)
		}
		log.Info("Payout processed")
		return c.Send(formatPayout(po))
	}))

	b.Handle("/batch_payout", h.asAdmin("/batch_payout", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 2 {
			return usage(c, "/batch_payout <base reference> <id,id,...>")
		}
		ids, err := parseIDList(strings.Join(args[1:], ","))
		if err != nil {
			return c.Send(err.Error())
		}
		res, err := h.svc.Payouts.BatchProcessPayouts(h.ctx, m.ID, ids, args[0], "")
		if err != nil {
			return h.fail(c, log, err)
		}
		log.WithFields(logrus.Fields{"succeeded": res.Succeeded, "failed": res.Failed}).Info("Batch payout finished")
		return c.Send(formatBatch(res))
	}))

	b.Handle("/payouts", h.asAdmin("/payouts", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		payouts, err := h.svc.Payouts.ListPayouts(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatPayouts(payouts))
	}))

	b.Handle("/due_payouts", h.asAdmin("/due_payouts", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		payouts, err := h.svc.Payouts.ListDuePayouts(h.ctx)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatPayouts(payouts))
	}))

	b.Handle("/summary", h.asAdmin("/summary", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		s, err := h.svc.Reports.FinancialSummary(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatSummary(s))
	}))

	b.Handle("/defaulters", h.asAdmin("/defaulters", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		list, err := h.svc.Reports.Defaulters(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatDefaulters(list))
	}))

	b.Handle("/performance", h.asAdmin("/performance", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/performance <cycle id>")
		}
		cycleID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		perf, err := h.svc.Reports.CyclePerformance(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log.WithField("cycle_id", cycleID), err)
		}
		return c.Send(formatPerformance(perf))
	}))

	b.Handle("/reconcile", h.asAdmin("/reconcile", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) < 1 || len(args) > 2 {
			return usage(c, "/reconcile <YYYY-MM> [cycle id]")
		}
		year, month, err := parseMonth(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		cycleID, err := parseOptionalID(args[1:])
		if err != nil {
			return c.Send(err.Error())
		}
		r, err := h.svc.Reports.MonthlyReconciliation(h.ctx, year, month, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatReconciliation(r))
	}))

	b.Handle("/trend", h.asAdmin("/trend", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		points, err := h.svc.Reports.PaymentTrend(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatTrend(points))
	}))

	b.Handle("/promote", h.asAdmin("/promote", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/promote <telegram id>")
		}
		telegramID, err := parseID(args[0])
		if err != nil {
			return c.Send("Error: Telegram ID must be a number.")
		}
		target, err := h.svc.Members.PromoteAdmin(h.ctx, m.ID, telegramID)
		if err != nil {
			return h.fail(c, log.WithField("target_telegram_id", telegramID), err)
		}
		log.WithField("target_id", target.ID).Info("Member promoted")
		return c.Send(fmt.Sprintf("%s (ID: %d) is now an administrator.", target.DisplayName(), target.TelegramID))
	}))
}
