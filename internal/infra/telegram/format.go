package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/app"
	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
)

const (
	callbackApprove = "pay_ok_"
	callbackReject  = "pay_no_"
	dayLayout       = "2 Jan 2006"
)

// errorReply turns a service error into the text shown to the user.
// Infrastructure failures never leak their cause.
func errorReply(err error) string {
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Kind == failure.KindInternal {
		return "Something went wrong. Please try again later."
	}
	switch fe.Kind {
	case failure.KindUnauthorized:
		return "Not allowed: " + fe.Message + "."
	case failure.KindNotFound:
		return "Not found: " + fe.Message + "."
	default:
		return "Error: " + fe.Message + "."
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func proofKeyboard(paymentID int64) *telebot.ReplyMarkup {
	id := strconv.FormatInt(paymentID, 10)
	return &telebot.ReplyMarkup{InlineKeyboard: [][]telebot.InlineButton{{
		{Text: "Approve", Data: callbackApprove + id},
		{Text: "Reject", Data: callbackReject + id},
	}}}
}

// parseProofCallback reads pay_ok_<id> / pay_no_<id>.
func parseProofCallback(data string) (paymentID int64, approve bool, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(data, callbackApprove):
		rest, approve = strings.TrimPrefix(data, callbackApprove), true
	case strings.HasPrefix(data, callbackReject):
		rest = strings.TrimPrefix(data, callbackReject)
	default:
		return 0, false, false
	}
	id, err := parseID(rest)
	if err != nil {
		return 0, false, false
	}
	return id, approve, true
}

func formatCycle(c *cycle.Cycle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", c.ID, c.Name, c.Status)
	fmt.Fprintf(&b, "Runs %s to %s, %d slots, dues on day %d\n",
		c.StartDate.Format(dayLayout), c.EndDate.Format(dayLayout), c.TotalSlots, c.PaymentDeadlineDay)
	fmt.Fprintf(&b, "Registration closes %s", c.RegistrationDeadline.Format(dayLayout))
	if c.NumberPickingStartDate.Valid {
		fmt.Fprintf(&b, "\nNumber picking opens %s", c.NumberPickingStartDate.Time.Format(dayLayout))
	}
	return b.String()
}

func formatCycleDetails(d *cycle.Details) string {
	return fmt.Sprintf("%s\nParticipants: %d, available slots: %d", formatCycle(d.Cycle), d.ParticipantCount, d.AvailableSlots)
}

func formatTiers(tiers []participation.Tier) string {
	if len(tiers) == 0 {
		return "No contribution tiers are configured."
	}
	var b strings.Builder
	b.WriteString("Contribution tiers:\n")
	for _, t := range tiers {
		fmt.Fprintf(&b, "• %s: %s monthly, payout %s, late fine %s\n",
			t.Name, money(t.MonthlyAmount), money(t.TotalPayout), money(t.FineAmount))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatParticipation(p *participation.Participation, overdue int) string {
	picked := "not picked"
	if p.HasPicked() {
		picked = strconv.FormatInt(p.PickedNumber.Int64, 10)
	}
	line := fmt.Sprintf("Participation #%d in cycle #%d: %s tier, %s monthly, number %s, %d overdue",
		p.ID, p.CycleID, p.ContributionMode, money(p.MonthlyAmount), picked, overdue)
	if p.HasOptedOut {
		line += " (opted out)"
	}
	return line
}

func formatPayment(p *payment.Payment) string {
	line := fmt.Sprintf("#%d month %d: %s due %s [%s]", p.ID, p.MonthNumber, money(p.Amount), p.DueDate.Format(dayLayout), p.Status)
	switch {
	case p.Status == payment.StatusPaid:
		line += fmt.Sprintf(" paid %s on %s", money(p.PaidAmount), p.PaidAt.Time.Format(dayLayout))
		if p.HasFine {
			line += fmt.Sprintf(", fine %s", money(p.FineAmount))
		}
	case p.ProofOfPayment.Valid:
		line += " proof awaiting review"
	}
	return line
}

func formatPayments(payments []*payment.Payment) string {
	if len(payments) == 0 {
		return "No payments found."
	}
	lines := make([]string, 0, len(payments))
	for _, p := range payments {
		lines = append(lines, formatPayment(p))
	}
	return strings.Join(lines, "\n")
}

func formatPayout(p *payout.Payout) string {
	line := fmt.Sprintf("Payout #%d: %s for slot %d on %s [%s]",
		p.ID, money(p.Amount), p.ScheduledMonth, p.ScheduledDate.Format(dayLayout), p.Status)
	if p.Status == payout.StatusPaid && p.TransferReference.Valid {
		line += " ref " + p.TransferReference.String
	}
	return line
}

func formatPayouts(payouts []*payout.Payout) string {
	if len(payouts) == 0 {
		return "No payouts found."
	}
	lines := make([]string, 0, len(payouts))
	for _, p := range payouts {
		lines = append(lines, formatPayout(p))
	}
	return strings.Join(lines, "\n")
}

func formatPick(r *app.PickResult) string {
	if r.Unchanged {
		return fmt.Sprintf("You already hold number %d. Payout is scheduled for %s.", r.Number, r.ScheduledDate.Format(dayLayout))
	}
	return fmt.Sprintf("Number %d is yours. Payout #%d is scheduled for %s.", r.Number, r.PayoutID, r.ScheduledDate.Format(dayLayout))
}

func formatTaken(taken, reserved []int) string {
	return fmt.Sprintf("Taken: %s\nReserved: %s", joinInts(taken), joinInts(reserved))
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "none"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func formatSummary(s *app.FinancialSummary) string {
	scope := "all cycles"
	if s.CycleID != 0 {
		scope = fmt.Sprintf("cycle #%d", s.CycleID)
	}
	return fmt.Sprintf(
		"Financial summary (%s)\n"+
			"Collected: %s from %d payments\n"+
			"Fines: %s assessed, %s collected\n"+
			"Pending: %s in %d payments, %s overdue in %d\n"+
			"Paid out: %s in %d payouts, %s still pending\n"+
			"Profit: %s",
		scope,
		money(s.TotalCollected), s.PaidCount,
		money(s.FinesAssessed), money(s.FinesCollected),
		money(s.TotalPending), s.PendingCount, money(s.TotalOverdue), s.OverdueCount,
		money(s.TotalPaidOut), s.PayoutsPaid, money(s.PayoutsPending),
		money(s.Profit),
	)
}

func formatDefaulters(list []app.Defaulter) string {
	if len(list) == 0 {
		return "No defaulters."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d defaulter(s):\n", len(list))
	for _, d := range list {
		fmt.Fprintf(&b, "• member %d: %d payment(s), %s, up to %d day(s) late\n",
			d.UserID, d.OverdueCount, money(d.OverdueAmount), d.MaxDaysPastDue)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPerformance(p *app.CyclePerformance) string {
	return fmt.Sprintf(
		"Cycle #%d %s\nOccupancy: %d/%d (%s%%)\nCollected %s of %s expected (%s%%)",
		p.CycleID, p.Name, p.ParticipantCount, p.TotalSlots, p.OccupancyRate.StringFixed(2),
		money(p.Collected), money(p.ExpectedCollection), p.CollectionRate.StringFixed(2),
	)
}

func formatReconciliation(r *app.MonthlyReconciliation) string {
	return fmt.Sprintf(
		"Reconciliation %s\n"+
			"Collected: %s in %d payments (fines %s)\n"+
			"Due: %s in %d payments, %s outstanding\n"+
			"Paid out: %s in %d payouts, %s scheduled\n"+
			"Net: %s",
		r.PeriodStart.Format("January 2006"),
		money(r.Collected), r.PaymentsCount, money(r.FinesAssessed),
		money(r.Due), r.DueCount, money(r.Outstanding),
		money(r.PaidOut), r.PayoutsCount, money(r.PayoutsScheduled),
		money(r.Net),
	)
}

func formatTrend(points []app.TrendPoint) string {
	var b strings.Builder
	b.WriteString("Collections, last 12 months:\n")
	for _, p := range points {
		fmt.Fprintf(&b, "%d-%02d  %s (%d)\n", p.Year, p.Month, money(p.Collected), p.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatBatch(r *app.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch done: %d processed, %d failed", r.Succeeded, r.Failed)
	ids := make([]int64, 0, len(r.Failures))
	for id := range r.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(&b, "\n• #%d: %s", id, errorReply(r.Failures[id]))
	}
	return b.String()
}
