package participation

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/failure"
)

// Tier is a named contribution plan.
type Tier struct {
	Name          string
	MonthlyAmount decimal.Decimal
	TotalPayout   decimal.Decimal
	FineAmount    decimal.Decimal
}

// Validate requires a name, positive contribution and payout, and a non-negative fine.
func (t Tier) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return failure.ErrUnknownTier.Withf("tier name is required")
	}
	if !t.MonthlyAmount.IsPositive() || !t.TotalPayout.IsPositive() {
		return failure.ErrInvalidAmount.Withf("tier %s: monthly amount and payout must be positive", t.Name)
	}
	if t.FineAmount.IsNegative() {
		return failure.ErrInvalidAmount.Withf("tier %s: fine must not be negative", t.Name)
	}
	return nil
}

// TierSet is a snapshot of the tier settings taken once per operation.
type TierSet map[string]Tier

func NewTierSet(tiers []Tier) TierSet {
	set := make(TierSet, len(tiers))
	for _, t := range tiers {
		set[strings.ToLower(t.Name)] = t
	}
	return set
}

// Lookup finds a tier by name, case-insensitively.
func (s TierSet) Lookup(name string) (Tier, error) {
	t, ok := s[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Tier{}, failure.ErrUnknownTier.Withf("unknown contribution tier %q", name)
	}
	return t, nil
}

// Names lists tier names in ascending monthly amount.
func (s TierSet) Names() []string {
	tiers := make([]Tier, 0, len(s))
	for _, t := range s {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MonthlyAmount.LessThan(tiers[j].MonthlyAmount) })
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.Name
	}
	return names
}
