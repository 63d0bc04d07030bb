// internal/domain/participation/participation.go
package participation

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/payment"
)

var accountNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)

// Participation is one member's enrollment in one cycle.
// Amounts are copied from the tier at join time so later tier changes do not touch it.
type Participation struct {
	ID               int64
	UserID           int64
	CycleID          int64
	ContributionMode string // tier name
	MonthlyAmount    decimal.Decimal
	TotalPayout      decimal.Decimal
	FineAmount       decimal.Decimal
	PickedNumber     sql.NullInt64
	HasOptedOut      bool
	RegisteredAt     time.Time
}

// BankDetails is where a participation's payout is sent.
type BankDetails struct {
	ID              int64
	ParticipationID int64
	BankName        string
	AccountNumber   string
	AccountName     string
	CreatedAt       time.Time
}

// Validate checks the bank name, account name and the 10-digit account number.
func (b *BankDetails) Validate() error {
	if b == nil {
		return failure.ErrInvalidBankDetails.Withf("bank details are required")
	}
	b.BankName = strings.TrimSpace(b.BankName)
	b.AccountName = strings.TrimSpace(b.AccountName)
	b.AccountNumber = strings.TrimSpace(b.AccountNumber)
	if b.BankName == "" || b.AccountName == "" {
		return failure.ErrInvalidBankDetails.Withf("bank name and account name are required")
	}
	if !accountNumberPattern.MatchString(b.AccountNumber) {
		return failure.ErrInvalidBankDetails.Withf("account number must be exactly 10 digits")
	}
	return nil
}

// New stamps the tier's current amounts onto a fresh participation.
func New(userID, cycleID int64, tier Tier, now time.Time) *Participation {
	return &Participation{
		UserID:           userID,
		CycleID:          cycleID,
		ContributionMode: tier.Name,
		MonthlyAmount:    tier.MonthlyAmount,
		TotalPayout:      tier.TotalPayout,
		FineAmount:       tier.FineAmount,
		RegisteredAt:     now,
	}
}

// HasPicked reports whether a slot number is assigned.
func (p *Participation) HasPicked() bool {
	return p.PickedNumber.Valid
}

// Enrollment is everything a join writes in one transaction.
type Enrollment struct {
	Participation *Participation
	Bank          *BankDetails
	Schedule      []*payment.Payment
}
