package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
)

// CycleInput carries the fields of a new cycle.
type CycleInput struct {
	Name                   string
	StartDate              time.Time
	EndDate                time.Time
	RegistrationDeadline   time.Time
	NumberPickingStartDate *time.Time
	TotalSlots             int
	PaymentDeadlineDay     int
}

// CycleUpdate is a partial update; nil fields are left unchanged.
type CycleUpdate struct {
	Name                   *string
	StartDate              *time.Time
	EndDate                *time.Time
	RegistrationDeadline   *time.Time
	NumberPickingStartDate *time.Time
	TotalSlots             *int
	PaymentDeadlineDay     *int
	Status                 *cycle.Status
}

// CycleService is the cycle registry: creation, edits, lifecycle and occupancy.
type CycleService struct {
	cycleRepo  cycle.Repository
	memberRepo member.Repository
	logger     *logrus.Entry
	nowFn      func() time.Time
}

func NewCycleService(cr cycle.Repository, mr member.Repository, logger *logrus.Entry) *CycleService {
	return &CycleService{
		cycleRepo:  cr,
		memberRepo: mr,
		logger:     logger,
		nowFn:      time.Now,
	}
}

func (s *CycleService) CreateCycle(ctx context.Context, adminID int64, in CycleInput) (*cycle.Cycle, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}

	c := &cycle.Cycle{
		Name:                 in.Name,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		RegistrationDeadline: in.RegistrationDeadline,
		Status:               cycle.StatusUpcoming,
		TotalSlots:           in.TotalSlots,
		PaymentDeadlineDay:   in.PaymentDeadlineDay,
	}
	if in.NumberPickingStartDate != nil {
		c.NumberPickingStartDate = sql.NullTime{Time: *in.NumberPickingStartDate, Valid: true}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	// A cycle created after its start date begins life ACTIVE.
	c.Status = c.NextStatus(s.nowFn())

	if err := s.cycleRepo.Create(ctx, c); err != nil {
		s.logger.WithError(err).Error("Failed to create cycle")
		return nil, failure.Internal(err)
	}
	s.logger.WithFields(logrus.Fields{
		"admin_id":    adminID,
		"cycle_id":    c.ID,
		"total_slots": c.TotalSlots,
		"status":      c.Status,
	}).Info("Cycle created")
	return c, nil
}

// UpdateCycle applies u to the cycle. Field edits and any status move are written together;
// the repository re-checks the transition and the usage floor under a row lock.
func (s *CycleService) UpdateCycle(ctx context.Context, adminID, cycleID int64, u CycleUpdate) (*cycle.Cycle, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}

	c, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	from := c.Status

	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.StartDate != nil {
		c.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		c.EndDate = *u.EndDate
	}
	if u.RegistrationDeadline != nil {
		c.RegistrationDeadline = *u.RegistrationDeadline
	}
	if u.NumberPickingStartDate != nil {
		c.NumberPickingStartDate = sql.NullTime{Time: *u.NumberPickingStartDate, Valid: true}
	}
	if u.TotalSlots != nil {
		c.TotalSlots = *u.TotalSlots
	}
	if u.PaymentDeadlineDay != nil {
		c.PaymentDeadlineDay = *u.PaymentDeadlineDay
	}
	if u.Status != nil && *u.Status != from {
		if !cycle.CanTransition(from, *u.Status) {
			return nil, failure.ErrInvalidTransition.Withf("cannot move cycle from %s to %s", from, *u.Status)
		}
		c.Status = *u.Status
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{"admin_id": adminID, "cycle_id": cycleID})
	if err := s.cycleRepo.Update(ctx, c, from); err != nil {
		if failure.IsBusiness(err) {
			entry.WithError(err).Warn("Cycle update rejected")
			return nil, err
		}
		entry.WithError(err).Error("Failed to update cycle")
		return nil, failure.Internal(err)
	}
	entry.WithField("status", c.Status).Info("Cycle updated")
	return c, nil
}

func (s *CycleService) GetCycleDetails(ctx context.Context, cycleID int64) (*cycle.Details, error) {
	c, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	count, err := s.cycleRepo.CountParticipants(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	available := c.TotalSlots - count
	if available < 0 {
		available = 0
	}
	return &cycle.Details{Cycle: c, ParticipantCount: count, AvailableSlots: available}, nil
}

func (s *CycleService) ListCycles(ctx context.Context) ([]*cycle.Cycle, error) {
	cycles, err := s.cycleRepo.List(ctx)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return cycles, nil
}

// CancelCycle is allowed from UPCOMING or ACTIVE.
func (s *CycleService) CancelCycle(ctx context.Context, adminID, cycleID int64) (*cycle.Cycle, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}
	c, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if !cycle.CanTransition(c.Status, cycle.StatusCancelled) {
		return nil, failure.ErrInvalidTransition.Withf("cycle %d is %s and cannot be cancelled", cycleID, c.Status)
	}
	if err := s.cycleRepo.UpdateStatus(ctx, cycleID, c.Status, cycle.StatusCancelled); err != nil {
		return nil, failure.Internal(err)
	}
	c.Status = cycle.StatusCancelled
	s.logger.WithFields(logrus.Fields{"admin_id": adminID, "cycle_id": cycleID}).Info("Cycle cancelled")
	return c, nil
}

// SyncCycleStatuses advances every cycle whose dates have passed. It returns the number of
// transitions applied; failures on one cycle do not stop the others.
func (s *CycleService) SyncCycleStatuses(ctx context.Context) (int, error) {
	cycles, err := s.cycleRepo.List(ctx)
	if err != nil {
		return 0, failure.Internal(err)
	}
	now := s.nowFn()
	moved := 0
	var errs []error
	for _, c := range cycles {
		for next := c.NextStatus(now); next != c.Status; next = c.NextStatus(now) {
			if err := s.cycleRepo.UpdateStatus(ctx, c.ID, c.Status, next); err != nil {
				s.logger.WithError(err).WithField("cycle_id", c.ID).Error("Failed to advance cycle status")
				errs = append(errs, fmt.Errorf("cycle %d: %w", c.ID, err))
				break
			}
			s.logger.WithFields(logrus.Fields{"cycle_id": c.ID, "from": c.Status, "to": next}).Info("Cycle status advanced")
			c.Status = next
			moved++
		}
	}
	return moved, errors.Join(errs...)
}
