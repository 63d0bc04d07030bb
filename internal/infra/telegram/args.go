package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/app"
	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/participation"
)

const dateLayout = "2006-01-02"

// Multi-word command payloads separate their fields with '|'.
func splitFields(payload string) []string {
	parts := strings.Split(payload, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", raw)
	}
	return id, nil
}

// parseOptionalID returns 0 when args is empty.
func parseOptionalID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return parseID(args[0])
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := parseID(f)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no payout ids given")
	}
	return ids, nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date, use YYYY-MM-DD", raw)
	}
	return t, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%q is not an amount", raw)
	}
	return amount, nil
}

// parseMonth reads "2025-03".
func parseMonth(raw string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a month, use YYYY-MM", raw)
	}
	return t.Year(), t.Month(), nil
}

// parseCycleInput reads "name | start | end | registration deadline | slots | due day [| picking opens]".
func parseCycleInput(payload string) (app.CycleInput, error) {
	f := splitFields(payload)
	if len(f) < 6 || len(f) > 7 {
		return app.CycleInput{}, fmt.Errorf("expected 6 or 7 fields, got %d", len(f))
	}
	in := app.CycleInput{Name: f[0]}
	var err error
	if in.StartDate, err = parseDate(f[1]); err != nil {
		return app.CycleInput{}, err
	}
	if in.EndDate, err = parseDate(f[2]); err != nil {
		return app.CycleInput{}, err
	}
	if in.RegistrationDeadline, err = parseDate(f[3]); err != nil {
		return app.CycleInput{}, err
	}
	if in.TotalSlots, err = strconv.Atoi(f[4]); err != nil {
		return app.CycleInput{}, fmt.Errorf("%q is not a slot count", f[4])
	}
	if in.PaymentDeadlineDay, err = strconv.Atoi(f[5]); err != nil {
		return app.CycleInput{}, fmt.Errorf("%q is not a day of month", f[5])
	}
	if len(f) == 7 && f[6] != "" {
		picking, err := parseDate(f[6])
		if err != nil {
			return app.CycleInput{}, err
		}
		in.NumberPickingStartDate = &picking
	}
	return in, nil
}

// parseCycleUpdate reads "id | key=value | ...". Keys: name, start, end, deadline, picking, slots, day, status.
func parseCycleUpdate(payload string) (int64, app.CycleUpdate, error) {
	f := splitFields(payload)
	var u app.CycleUpdate
	if len(f) < 2 {
		return 0, u, fmt.Errorf("nothing to update")
	}
	id, err := parseID(f[0])
	if err != nil {
		return 0, u, err
	}
	for _, kv := range f[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return 0, u, fmt.Errorf("%q is not key=value", kv)
		}
		key, value = strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)
		switch key {
		case "name":
			u.Name = &value
		case "start", "end", "deadline", "picking":
			t, err := parseDate(value)
			if err != nil {
				return 0, u, err
			}
			switch key {
			case "start":
				u.StartDate = &t
			case "end":
				u.EndDate = &t
			case "deadline":
				u.RegistrationDeadline = &t
			default:
				u.NumberPickingStartDate = &t
			}
		case "slots", "day":
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, u, fmt.Errorf("%s: %q is not a number", key, value)
			}
			if key == "slots" {
				u.TotalSlots = &n
			} else {
				u.PaymentDeadlineDay = &n
			}
		case "status":
			st := cycle.Status(strings.ToUpper(value))
			u.Status = &st
		default:
			return 0, u, fmt.Errorf("unknown field %q", key)
		}
	}
	return id, u, nil
}

// parseJoin reads "cycleID tier | bank name | account number | account name".
func parseJoin(payload string) (int64, string, *participation.BankDetails, error) {
	f := splitFields(payload)
	if len(f) != 4 {
		return 0, "", nil, fmt.Errorf("expected cycle and tier followed by three bank fields")
	}
	head := strings.Fields(f[0])
	if len(head) != 2 {
		return 0, "", nil, fmt.Errorf("expected \"<cycle id> <tier>\" before the first '|'")
	}
	cycleID, err := parseID(head[0])
	if err != nil {
		return 0, "", nil, err
	}
	bank := &participation.BankDetails{BankName: f[1], AccountNumber: f[2], AccountName: f[3]}
	return cycleID, head[1], bank, nil
}

// parseProofCaption reads the payment id a receipt photo is captioned with, e.g. "42" or "#42".
func parseProofCaption(caption string) (int64, error) {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return 0, fmt.Errorf("caption the receipt with its payment id")
	}
	return parseID(strings.TrimPrefix(fields[0], "#"))
}
