package app

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payout"
)

// BatchResult counts the outcome of a best-effort batch. Failures is keyed by payout id.
type BatchResult struct {
	Succeeded int
	Failed    int
	Processed []*payout.Payout
	Failures  map[int64]error
}

// PayoutService processes the payouts derived by slot assignment.
type PayoutService struct {
	payoutRepo        payout.Repository
	participationRepo participation.Repository
	memberRepo        member.Repository
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewPayoutService(
	por payout.Repository,
	pr participation.Repository,
	mr member.Repository,
	logger *logrus.Entry,
) *PayoutService {
	return &PayoutService{
		payoutRepo:        por,
		participationRepo: pr,
		memberRepo:        mr,
		logger:            logger,
		nowFn:             time.Now,
	}
}

// ProcessPayout marks a pending payout as transferred. A payout is processed at most once.
func (s *PayoutService) ProcessPayout(ctx context.Context, adminID, payoutID int64, reference, notes string) (*payout.Payout, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, failure.ErrMissingReference
	}
	return s.markPaid(ctx, adminID, payoutID, reference, notes)
}

func (s *PayoutService) markPaid(ctx context.Context, adminID, payoutID int64, reference, notes string) (*payout.Payout, error) {
	entry := s.logger.WithFields(logrus.Fields{"payout_id": payoutID, "admin_id": adminID, "reference": reference})
	pr := payout.Processing{
		PayoutID:          payoutID,
		PaidAt:            s.nowFn(),
		TransferReference: reference,
		ProcessedBy:       adminID,
	}
	if n := strings.TrimSpace(notes); n != "" {
		pr.Notes = sql.NullString{String: n, Valid: true}
	}
	paid, err := s.payoutRepo.MarkPaid(ctx, pr)
	if err != nil {
		if failure.IsBusiness(err) {
			entry.WithError(err).Warn("Payout processing rejected")
			return nil, err
		}
		entry.WithError(err).Error("Failed to process payout")
		return nil, failure.Internal(err)
	}
	entry.WithField("amount", paid.Amount.StringFixed(2)).Info("Payout processed")
	return paid, nil
}

// BatchProcessPayouts processes each id independently with reference "{base}-{i}", i counting
// from 1 in input order. One failure does not undo or stop the others.
func (s *PayoutService) BatchProcessPayouts(ctx context.Context, adminID int64, payoutIDs []int64, baseReference, notes string) (*BatchResult, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}
	baseReference = strings.TrimSpace(baseReference)
	if baseReference == "" {
		return nil, failure.ErrMissingReference
	}

	known, err := s.payoutRepo.ListByIDs(ctx, payoutIDs)
	if err != nil {
		return nil, failure.Internal(err)
	}
	byID := make(map[int64]*payout.Payout, len(known))
	for _, p := range known {
		byID[p.ID] = p
	}

	res := &BatchResult{Failures: make(map[int64]error)}
	for i, id := range payoutIDs {
		var err error
		switch p, ok := byID[id]; {
		case !ok:
			err = failure.ErrPayoutNotFound.Withf("payout %d not found", id)
		case p.Status == payout.StatusPaid:
			err = failure.ErrAlreadyProcessed.Withf("payout %d is already processed", id)
		default:
			var paid *payout.Payout
			paid, err = s.markPaid(ctx, adminID, id, payout.BatchReference(baseReference, i+1), notes)
			if err == nil {
				res.Processed = append(res.Processed, paid)
			}
		}
		if err != nil {
			res.Failed++
			res.Failures[id] = err
			continue
		}
		res.Succeeded++
	}

	s.logger.WithFields(logrus.Fields{
		"admin_id":  adminID,
		"reference": baseReference,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	}).Info("Batch payout finished")
	return res, nil
}

// GetPayoutForParticipation returns the payout of one of the caller's participations.
func (s *PayoutService) GetPayoutForParticipation(ctx context.Context, userID, participationID int64) (*payout.Payout, error) {
	part, err := s.participationRepo.GetByID(ctx, participationID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if part.UserID != userID {
		return nil, failure.ErrNotOwner
	}
	p, err := s.payoutRepo.GetByParticipation(ctx, participationID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return p, nil
}

// ListPayouts lists payouts in scheduled order; zero cycleID means all cycles.
func (s *PayoutService) ListPayouts(ctx context.Context, cycleID int64) ([]*payout.Payout, error) {
	list, err := s.payoutRepo.List(ctx, payout.Filter{CycleID: cycleID})
	if err != nil {
		return nil, failure.Internal(err)
	}
	return list, nil
}

// ListDuePayouts lists pending payouts scheduled on or before the current time.
func (s *PayoutService) ListDuePayouts(ctx context.Context) ([]*payout.Payout, error) {
	list, err := s.payoutRepo.ListPendingDueBy(ctx, s.nowFn())
	if err != nil {
		return nil, failure.Internal(err)
	}
	return list, nil
}
