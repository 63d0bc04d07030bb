package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/cycle"
	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
	"ajo_ledger/internal/domain/payout"
)

// ReconciliationService builds read-only reports. Every report is recomputed from the
// ledger at call time.
type ReconciliationService struct {
	cycleRepo         cycle.Repository
	participationRepo participation.Repository
	paymentRepo       payment.Repository
	payoutRepo        payout.Repository
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewReconciliationService(
	cr cycle.Repository,
	pr participation.Repository,
	payRepo payment.Repository,
	por payout.Repository,
	logger *logrus.Entry,
) *ReconciliationService {
	return &ReconciliationService{
		cycleRepo:         cr,
		participationRepo: pr,
		paymentRepo:       payRepo,
		payoutRepo:        por,
		logger:            logger,
		nowFn:             time.Now,
	}
}

func (s *ReconciliationService) load(ctx context.Context, cycleID int64) ([]*payment.Payment, []*payout.Payout, error) {
	payments, err := s.paymentRepo.List(ctx, payment.Filter{CycleID: cycleID})
	if err != nil {
		return nil, nil, failure.Internal(err)
	}
	payouts, err := s.payoutRepo.List(ctx, payout.Filter{CycleID: cycleID})
	if err != nil {
		return nil, nil, failure.Internal(err)
	}
	return payments, payouts, nil
}

// FinancialSummary totals collections, fines, arrears and payouts; zero cycleID covers all cycles.
func (s *ReconciliationService) FinancialSummary(ctx context.Context, cycleID int64) (*FinancialSummary, error) {
	payments, payouts, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	summary := summarize(cycleID, payments, payouts, s.nowFn())
	return &summary, nil
}

// Defaulters lists members with overdue payments. Opted-out participations are left out.
func (s *ReconciliationService) Defaulters(ctx context.Context, cycleID int64) ([]Defaulter, error) {
	payments, err := s.paymentRepo.List(ctx, payment.Filter{CycleID: cycleID})
	if err != nil {
		return nil, failure.Internal(err)
	}
	excluded, err := s.optedOut(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return defaulters(payments, excluded, s.nowFn()), nil
}

func (s *ReconciliationService) optedOut(ctx context.Context, cycleID int64) (map[int64]bool, error) {
	cycleIDs := []int64{cycleID}
	if cycleID == 0 {
		cycles, err := s.cycleRepo.List(ctx)
		if err != nil {
			return nil, failure.Internal(err)
		}
		cycleIDs = cycleIDs[:0]
		for _, c := range cycles {
			cycleIDs = append(cycleIDs, c.ID)
		}
	}
	out := make(map[int64]bool)
	for _, id := range cycleIDs {
		parts, err := s.participationRepo.ListByCycle(ctx, id)
		if err != nil {
			return nil, failure.Internal(err)
		}
		for _, p := range parts {
			if p.HasOptedOut {
				out[p.ID] = true
			}
		}
	}
	return out, nil
}

// CyclePerformance reports occupancy and collection rate for one cycle.
func (s *ReconciliationService) CyclePerformance(ctx context.Context, cycleID int64) (*CyclePerformance, error) {
	c, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	count, err := s.cycleRepo.CountParticipants(ctx, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	payments, err := s.paymentRepo.List(ctx, payment.Filter{CycleID: cycleID})
	if err != nil {
		return nil, failure.Internal(err)
	}
	perf := performance(c.ID, c.Name, c.TotalSlots, count, payments, s.nowFn())
	return &perf, nil
}

// MonthlyReconciliation reports one calendar month (UTC) across all cycles or one cycle.
func (s *ReconciliationService) MonthlyReconciliation(ctx context.Context, year int, month time.Month, cycleID int64) (*MonthlyReconciliation, error) {
	if month < time.January || month > time.December || year < 1 {
		return nil, failure.ErrInvalidRange.Withf("invalid period %d-%02d", year, month)
	}
	payments, payouts, err := s.load(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	r := reconcileMonth(year, month, payments, payouts)
	s.logger.WithFields(logrus.Fields{
		"period":    r.PeriodStart.Format("2006-01"),
		"cycle_id":  cycleID,
		"collected": r.Collected.StringFixed(2),
		"paid_out":  r.PaidOut.StringFixed(2),
	}).Debug("Monthly reconciliation computed")
	return &r, nil
}

// PaymentTrend returns twelve trailing months of collections, oldest first.
func (s *ReconciliationService) PaymentTrend(ctx context.Context, cycleID int64) ([]TrendPoint, error) {
	payments, err := s.paymentRepo.List(ctx, payment.Filter{CycleID: cycleID})
	if err != nil {
		return nil, failure.Internal(err)
	}
	return trend(payments, s.nowFn()), nil
}
