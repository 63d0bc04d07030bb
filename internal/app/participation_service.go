package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
)

// ParticipationService is the participation ledger: joining, opting out and membership reads.
type ParticipationService struct {
	cycleRepo         cycle.Repository
	participationRepo participation.Repository
	tierRepo          participation.TierRepository
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewParticipationService(
	cr cycle.Repository,
	pr participation.Repository,
	tr participation.TierRepository,
	logger *logrus.Entry,
) *ParticipationService {
	return &ParticipationService{
		cycleRepo:         cr,
		participationRepo: pr,
		tierRepo:          tr,
		logger:            logger,
		nowFn:             time.Now,
	}
}

// JoinCycle enrolls userID into cycleID on the named tier. The participation, its bank
// details and its monthly payment schedule are written in one transaction.
func (s *ParticipationService) JoinCycle(ctx context.Context, userID, cycleID int64, tierName string, bank *participation.BankDetails) (*participation.Participation, error) {
	entry := s.logger.WithFields(logrus.Fields{"user_id": userID, "cycle_id": cycleID, "tier": tierName})

	if err := bank.Validate(); err != nil {
		return nil, err
	}
	tiers, err := s.tierRepo.Snapshot(ctx)
	if err != nil {
		return nil, failure.Internal(err)
	}
	tier, err := tiers.Lookup(tierName)
	if err != nil {
		return nil, err
	}

	c, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	now := s.nowFn()
	if c.IsClosed() {
		return nil, failure.ErrCycleClosed.Withf("cycle %s is %s", c.Name, c.Status)
	}
	if !c.RegistrationOpen(now) {
		return nil, failure.ErrDeadlinePassed
	}
	exists, err := s.participationRepo.Exists(ctx, userID, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if exists {
		return nil, failure.ErrAlreadyRegistered
	}
	count, err := s.cycleRepo.CountParticipants(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if count >= c.TotalSlots {
		return nil, failure.ErrNoSlotsAvailable
	}

	p := participation.New(userID, cycleID, tier, now)
	enrollment := &participation.Enrollment{
		Participation: p,
		Bank:          bank,
		Schedule:      payment.Schedule(c, p.MonthlyAmount, now),
	}
	if err := s.participationRepo.Join(ctx, enrollment); err != nil {
		if failure.IsBusiness(err) {
			entry.WithError(err).Warn("Join rejected inside transaction")
			return nil, err
		}
		entry.WithError(err).Error("Failed to join cycle")
		return nil, failure.Internal(err)
	}
	entry.WithFields(logrus.Fields{
		"participation_id": p.ID,
		"payments":         len(enrollment.Schedule),
	}).Info("Member joined cycle")
	return p, nil
}

func (s *ParticipationService) CheckParticipation(ctx context.Context, userID, cycleID int64) (bool, error) {
	ok, err := s.participationRepo.Exists(ctx, userID, cycleID)
	if err != nil {
		return false, failure.Internal(err)
	}
	return ok, nil
}

// OptOut withdraws userID from cycleID. Only possible before a number is picked; the
// participation keeps its seat for capacity purposes.
func (s *ParticipationService) OptOut(ctx context.Context, userID, cycleID int64) (*participation.Participation, error) {
	p, err := s.participationRepo.GetByUserAndCycle(ctx, userID, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if p.HasPicked() {
		return nil, failure.ErrOptOutNotAllowed
	}
	if p.HasOptedOut {
		return p, nil
	}
	if err := s.participationRepo.SetOptedOut(ctx, p.ID); err != nil {
		return nil, failure.Internal(err)
	}
	p.HasOptedOut = true
	s.logger.WithFields(logrus.Fields{"user_id": userID, "participation_id": p.ID}).Info("Member opted out")
	return p, nil
}

// GetActiveParticipation resolves the participation a member acts on by default.
func (s *ParticipationService) GetActiveParticipation(ctx context.Context, userID int64) (*participation.Participation, error) {
	p, err := s.participationRepo.GetActiveForUser(ctx, userID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return p, nil
}

func (s *ParticipationService) ListMyParticipations(ctx context.Context, userID int64) ([]*participation.Participation, error) {
	list, err := s.participationRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return list, nil
}

// ListTiers returns the current tier settings, cheapest first.
func (s *ParticipationService) ListTiers(ctx context.Context) ([]participation.Tier, error) {
	tiers, err := s.tierRepo.Snapshot(ctx)
	if err != nil {
		return nil, failure.Internal(err)
	}
	out := make([]participation.Tier, 0, len(tiers))
	for _, name := range tiers.Names() {
		t, _ := tiers.Lookup(name)
		out = append(out, t)
	}
	return out, nil
}

// SeedTiers writes the configured tier settings. Existing participations keep the amounts
// stamped on them at join time.
func (s *ParticipationService) SeedTiers(ctx context.Context, tiers []participation.Tier) error {
	for _, t := range tiers {
		if err := s.tierRepo.Upsert(ctx, t); err != nil {
			return failure.Internal(err)
		}
	}
	s.logger.WithField("tiers", len(tiers)).Info("Contribution tiers seeded")
	return nil
}
