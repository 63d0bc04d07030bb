// internal/domain/cycle/cycle.go
package cycle

import (
	"database/sql"
	"strings"
	"time"

	"ajo_ledger/internal/domain/failure"
)

// Status is the lifecycle state of a contribution cycle.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// MaxDeadlineDay keeps the derived due/payout day valid in every month.
const MaxDeadlineDay = 28

// Cycle represents one run of the savings scheme.
// Corresponds to the 'cycles' table.
type Cycle struct {
	ID                     int64
	Name                   string
	StartDate              time.Time
	EndDate                time.Time
	RegistrationDeadline   time.Time
	NumberPickingStartDate sql.NullTime
	Status                 Status
	TotalSlots             int
	PaymentDeadlineDay     int // day of month on which monthly dues and payouts fall
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Details is a cycle plus its derived occupancy.
type Details struct {
	Cycle            *Cycle
	ParticipantCount int
	AvailableSlots   int
}

// Usage is what a capacity change must not undercut.
type Usage struct {
	ParticipantCount int
	MaxPickedNumber  int
}

// Floor is the smallest totalSlots this usage allows.
func (u Usage) Floor() int {
	if u.MaxPickedNumber > u.ParticipantCount {
		return u.MaxPickedNumber
	}
	return u.ParticipantCount
}

// Validate checks the field-level rules of a cycle.
// Registration must close no later than the end of the cycle; the start may precede or follow it.
func (c *Cycle) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return failure.ErrInvalidRange.Withf("cycle name is required")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || c.RegistrationDeadline.IsZero() {
		return failure.ErrInvalidRange.Withf("start, end and registration deadline are required")
	}
	if !c.StartDate.Before(c.EndDate) {
		return failure.ErrInvalidRange.Withf("start date must be before end date")
	}
	if c.RegistrationDeadline.After(c.EndDate) {
		return failure.ErrInvalidRange.Withf("registration deadline must not be after end date")
	}
	if c.NumberPickingStartDate.Valid && c.NumberPickingStartDate.Time.After(c.EndDate) {
		return failure.ErrInvalidRange.Withf("number picking must open before the cycle ends")
	}
	if c.TotalSlots < 1 {
		return failure.ErrInvalidRange.Withf("total slots must be at least 1")
	}
	if c.PaymentDeadlineDay < 1 || c.PaymentDeadlineDay > MaxDeadlineDay {
		return failure.ErrInvalidRange.Withf("payment deadline day must be between 1 and %d", MaxDeadlineDay)
	}
	switch c.Status {
	case StatusUpcoming, StatusActive, StatusCompleted, StatusCancelled:
	default:
		return failure.ErrInvalidRange.Withf("unknown status %q", c.Status)
	}
	return nil
}

// IsClosed reports whether the cycle no longer accepts members.
func (c *Cycle) IsClosed() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// RegistrationOpen reports whether a member may still join at now.
func (c *Cycle) RegistrationOpen(now time.Time) bool {
	return now.Before(c.RegistrationDeadline)
}

// PickingOpen reports whether numbers may be picked at now.
func (c *Cycle) PickingOpen(now time.Time) bool {
	return !c.NumberPickingStartDate.Valid || !c.NumberPickingStartDate.Time.After(now)
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusUpcoming:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// NextStatus is the status the calendar implies at now, or the current one when no move is due.
func (c *Cycle) NextStatus(now time.Time) Status {
	switch c.Status {
	case StatusUpcoming:
		if !now.Before(c.StartDate) {
			return StatusActive
		}
	case StatusActive:
		if now.After(c.EndDate) {
			return StatusCompleted
		}
	}
	return c.Status
}

// PeriodDate is the calendar date of the n-th monthly period (1-based): the cycle's start month
// advanced by n-1 months, on PaymentDeadlineDay. Monthly dues and the slot-n payout both fall on it.
func (c *Cycle) PeriodDate(n int) time.Time {
	start := c.StartDate
	return time.Date(start.Year(), start.Month()+time.Month(n-1), c.PaymentDeadlineDay, 0, 0, 0, 0, start.Location())
}
