package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
)

func (h *Handlers) registerMemberHandlers(b *telebot.Bot) {
	b.Handle("/cycles", h.asMember("/cycles", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycles, err := h.svc.Cycles.ListCycles(h.ctx)
		if err != nil {
			return h.fail(c, log, err)
		}
		if len(cycles) == 0 {
			return c.Send("There are no cycles yet.")
		}
		parts := make([]string, 0, len(cycles))
		for _, cy := range cycles {
			parts = append(parts, formatCycle(cy))
		}
		return c.Send(strings.Join(parts, "\n\n"))
	}))

	b.Handle("/cycle", h.asMember("/cycle", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/cycle <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		details, err := h.svc.Cycles.GetCycleDetails(h.ctx, id)
		if err != nil {
			return h.fail(c, log.WithField("cycle_id", id), err)
		}
		return c.Send(formatCycleDetails(details))
	}))

	b.Handle("/tiers", h.asMember("/tiers", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		tiers, err := h.svc.Participations.ListTiers(h.ctx)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatTiers(tiers))
	}))

	b.Handle("/join", h.asMember("/join", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, tier, bank, err := parseJoin(c.Message().Payload)
		if err != nil {
			return usage(c, "/join <cycle id> <tier> | <bank name> | <account number> | <account name>\n"+err.Error())
		}
		log = log.WithFields(logrus.Fields{"cycle_id": cycleID, "tier": tier})

		p, err := h.svc.Participations.JoinCycle(h.ctx, m.ID, cycleID, tier, bank)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.WithField("participation_id", p.ID).Info("Member joined cycle")
		return c.Send(fmt.Sprintf(
			"You joined cycle #%d on the %s tier (%s monthly, payout %s). Your payment schedule is ready: /mypayments %d",
			cycleID, p.ContributionMode, money(p.MonthlyAmount), money(p.TotalPayout), cycleID))
	}))

	b.Handle("/pick", h.asMember("/pick", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/pick <number>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return c.Send(fmt.Sprintf("%q is not a number.", args[0]))
		}
		log = log.WithField("number", n)

		res, err := h.svc.Slots.PickNumber(h.ctx, m.ID, n)
		if err != nil {
			return h.fail(c, log, err)
		}
		log.WithFields(logrus.Fields{"participation_id": res.ParticipationID, "payout_id": res.PayoutID}).Info("Number picked")
		return c.Send(formatPick(res))
	}))

	b.Handle("/taken", h.asMember("/taken", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		if cycleID == 0 {
			p, err := h.svc.Participations.GetActiveParticipation(h.ctx, m.ID)
			if err != nil {
				return h.fail(c, log, err)
			}
			cycleID = p.CycleID
		}
		taken, err := h.svc.Slots.GetTakenNumbers(h.ctx, cycleID)
		if err != nil {
			return h.fail(c, log.WithField("cycle_id", cycleID), err)
		}
		return c.Send(fmt.Sprintf("Cycle #%d\n%s", cycleID, formatTaken(taken, h.svc.Slots.ReservedNumbers())))
	}))

	b.Handle("/mystatus", h.asMember("/mystatus", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		parts, err := h.svc.Participations.ListMyParticipations(h.ctx, m.ID)
		if err != nil {
			return h.fail(c, log, err)
		}
		if len(parts) == 0 {
			return c.Send("You have not joined any cycle yet. See /cycles.")
		}
		lines := make([]string, 0, len(parts))
		for _, p := range parts {
			overdue, err := h.svc.Payments.GetOverdueCount(h.ctx, p.ID)
			if err != nil {
				return h.fail(c, log.WithField("participation_id", p.ID), err)
			}
			lines = append(lines, formatParticipation(p, overdue))
		}
		return c.Send(strings.Join(lines, "\n"))
	}))

	b.Handle("/mypayments", h.asMember("/mypayments", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		cycleID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		payments, err := h.svc.Payments.ListMyPayments(h.ctx, m.ID, cycleID)
		if err != nil {
			return h.fail(c, log, err)
		}
		return c.Send(formatPayments(payments))
	}))

	b.Handle("/mypayout", h.asMember("/mypayout", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		participationID, err := parseOptionalID(c.Args())
		if err != nil {
			return c.Send(err.Error())
		}
		if participationID == 0 {
			p, err := h.svc.Participations.GetActiveParticipation(h.ctx, m.ID)
			if err != nil {
				return h.fail(c, log, err)
			}
			participationID = p.ID
		}
		po, err := h.svc.Payouts.GetPayoutForParticipation(h.ctx, m.ID, participationID)
		if errors.Is(err, failure.ErrPayoutNotFound) {
			return c.Send("No payout yet. Pick a number with /pick first.")
		}
		if err != nil {
			return h.fail(c, log.WithField("participation_id", participationID), err)
		}
		return c.Send(formatPayout(po))
	}))

	b.Handle("/optout", h.asMember("/optout", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		args := c.Args()
		if len(args) != 1 {
			return usage(c, "/optout <cycle id>")
		}
		cycleID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		p, err := h.svc.Participations.OptOut(h.ctx, m.ID, cycleID)
		if err != nil {
			return h.fail(c, log.WithField("cycle_id", cycleID), err)
		}
		log.WithField("participation_id", p.ID).Info("Member opted out")
		return c.Send(fmt.Sprintf("You have opted out of cycle #%d. You will no longer receive reminders for it.", cycleID))
	}))
}
