// Package slot holds the payout-order numbering rules.
package slot

import (
	"context"
	"sort"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/payout"
)

// ReservedSet holds house numbers no member may claim.
type ReservedSet map[int]struct{}

func NewReservedSet(numbers ...int) ReservedSet {
	set := make(ReservedSet, len(numbers))
	for _, n := range numbers {
		set[n] = struct{}{}
	}
	return set
}

func (r ReservedSet) Contains(n int) bool {
	_, ok := r[n]
	return ok
}

// Sorted lists the reserved numbers in ascending order.
func (r ReservedSet) Sorted() []int {
	out := make([]int, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Taken merges reserved numbers with the picked ones, sorted and de-duplicated.
// It is informational only: the store's Assign is the authoritative check.
func Taken(reserved ReservedSet, picked []int) []int {
	seen := make(map[int]struct{}, len(reserved)+len(picked))
	out := make([]int, 0, len(reserved)+len(picked))
	for n := range reserved {
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, n := range picked {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// InRange reports whether n is a valid slot for a cycle with totalSlots slots.
func InRange(n, totalSlots int) bool {
	return n >= 1 && n <= totalSlots
}

// CheckAssignable decides whether number may be assigned in a cycle with the given status and
// capacity. Stores call it on the cycle row they hold locked.
func CheckAssignable(status cycle.Status, totalSlots, number int) error {
	if status != cycle.StatusActive {
		return failure.ErrCycleClosed.Withf("cycle is %s", status)
	}
	if !InRange(number, totalSlots) {
		return failure.ErrOutOfRange.Withf("pick a number between 1 and %d", totalSlots)
	}
	return nil
}

// Assignment is the atomic check-and-set of a number plus its payout upsert.
type Assignment struct {
	ParticipationID int64
	CycleID         int64
	Number          int
	Payout          *payout.Payout
}

// Store performs assignments. Assign must, within one transaction and holding the cycle row
// against concurrent updates, re-run CheckAssignable on the stored cycle, fail with
// ErrAlreadyPicked if the participation already holds a number, fail with ErrSlotTaken
// if another participation in the cycle holds Number, and otherwise set the number and
// create or update the payout, filling a.Payout.ID.
type Store interface {
	Assign(ctx context.Context, a *Assignment) error
	PickedNumbers(ctx context.Context, cycleID int64) ([]int, error)
}
