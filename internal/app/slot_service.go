package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payout"
	"ajo_ledger/internal/domain/slot"
)

// PickResult is the outcome of a successful pick.
type PickResult struct {
	Number          int
	ParticipationID int64
	PayoutID        int64
	ScheduledDate   time.Time
	// Unchanged is set when the caller re-picked the number it already holds.
	Unchanged bool
}

// SlotService is the slot allocator. It validates a pick cheaply up front and leaves the
// authoritative uniqueness check to slot.Store.Assign.
type SlotService struct {
	cycleRepo         cycle.Repository
	participationRepo participation.Repository
	payoutRepo        payout.Repository
	store             slot.Store
	reserved          slot.ReservedSet
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewSlotService(
	cr cycle.Repository,
	pr participation.Repository,
	por payout.Repository,
	store slot.Store,
	reserved slot.ReservedSet,
	logger *logrus.Entry,
) *SlotService {
	return &SlotService{
		cycleRepo:         cr,
		participationRepo: pr,
		payoutRepo:        por,
		store:             store,
		reserved:          reserved,
		logger:            logger,
		nowFn:             time.Now,
	}
}

// PickNumber assigns number to the caller's active participation and schedules its payout.
func (s *SlotService) PickNumber(ctx context.Context, userID int64, number int) (*PickResult, error) {
	entry := s.logger.WithFields(logrus.Fields{"user_id": userID, "number": number})

	if s.reserved.Contains(number) {
		return nil, failure.ErrReservedNumber.Withf("number %d is reserved", number)
	}
	p, err := s.participationRepo.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	c, err := s.cycleRepo.GetByID(ctx, p.CycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if !c.PickingOpen(s.nowFn()) {
		return nil, failure.ErrPickingNotOpen.Withf("number picking opens on %s", c.NumberPickingStartDate.Time.Format("2006-01-02"))
	}
	if p.HasPicked() {
		return s.existingPick(ctx, p, number)
	}
	if !slot.InRange(number, c.TotalSlots) {
		return nil, failure.ErrOutOfRange.Withf("pick a number between 1 and %d", c.TotalSlots)
	}

	po := payout.ForSlot(p, c, number)
	a := &slot.Assignment{
		ParticipationID: p.ID,
		CycleID:         c.ID,
		Number:          number,
		Payout:          po,
	}
	if err := s.store.Assign(ctx, a); err != nil {
		if errors.Is(err, failure.ErrAlreadyPicked) {
			// A concurrent request for the same participation won; re-read to report it.
			fresh, getErr := s.participationRepo.GetByID(ctx, p.ID)
			if getErr != nil {
				return nil, failure.Internal(getErr)
			}
			return s.existingPick(ctx, fresh, number)
		}
		if failure.IsBusiness(err) {
			entry.WithError(err).Warn("Pick rejected")
			return nil, err
		}
		entry.WithError(err).Error("Failed to assign number")
		return nil, failure.Internal(err)
	}

	entry.WithFields(logrus.Fields{
		"participation_id": p.ID,
		"cycle_id":         c.ID,
		"payout_id":        po.ID,
	}).Info("Number picked")
	return &PickResult{
		Number:          number,
		ParticipationID: p.ID,
		PayoutID:        po.ID,
		ScheduledDate:   po.ScheduledDate,
	}, nil
}

// existingPick answers a pick on a participation that already holds a number: the same
// number is returned unchanged, any other number is refused.
func (s *SlotService) existingPick(ctx context.Context, p *participation.Participation, number int) (*PickResult, error) {
	held := int(p.PickedNumber.Int64)
	if held != number {
		return nil, failure.ErrAlreadyPicked.Withf("you already picked number %d", held)
	}
	res := &PickResult{Number: held, ParticipationID: p.ID, Unchanged: true}
	po, err := s.payoutRepo.GetByParticipation(ctx, p.ID)
	switch {
	case err == nil:
		res.PayoutID = po.ID
		res.ScheduledDate = po.ScheduledDate
	case !errors.Is(err, failure.ErrPayoutNotFound):
		return nil, failure.Internal(err)
	}
	return res, nil
}

// GetTakenNumbers lists reserved and picked numbers. It is a display aid, not a reservation.
func (s *SlotService) GetTakenNumbers(ctx context.Context, cycleID int64) ([]int, error) {
	picked, err := s.store.PickedNumbers(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return slot.Taken(s.reserved, picked), nil
}

// ReservedNumbers lists the house numbers.
func (s *SlotService) ReservedNumbers() []int {
	return s.reserved.Sorted()
}
