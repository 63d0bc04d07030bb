package app

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/participation"
	"ajo_ledger/internal/domain/payment"
)

// PaymentService settles monthly obligations and applies the lateness fine.
type PaymentService struct {
	paymentRepo       payment.Repository
	participationRepo participation.Repository
	memberRepo        member.Repository
	logger            *logrus.Entry
	nowFn             func() time.Time
}

func NewPaymentService(
	pr payment.Repository,
	partRepo participation.Repository,
	mr member.Repository,
	logger *logrus.Entry,
) *PaymentService {
	return &PaymentService{
		paymentRepo:       pr,
		participationRepo: partRepo,
		memberRepo:        mr,
		logger:            logger,
		nowFn:             time.Now,
	}
}

// RecordPayment settles a payment at the current time for the tendered amount. The admin
// attests receipt, so the payment is stamped as verified by them.
func (s *PaymentService) RecordPayment(ctx context.Context, adminID, paymentID int64, amount decimal.Decimal, proofRef string) (*payment.Payment, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, failure.ErrInvalidAmount
	}

	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if p.Status == payment.StatusPaid {
		return nil, failure.ErrAlreadyPaid
	}
	part, err := s.participationRepo.GetByID(ctx, p.ParticipationID)
	if err != nil {
		return nil, failure.Internal(err)
	}

	now := s.nowFn()
	settlement := payment.Settle(p, amount, part.FineAmount, now)
	settlement.VerifiedBy = sql.NullInt64{Int64: adminID, Valid: true}
	settlement.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	if ref := strings.TrimSpace(proofRef); ref != "" {
		settlement.ProofOfPayment = sql.NullString{String: ref, Valid: true}
	}
	return s.settle(ctx, settlement, adminID)
}

func (s *PaymentService) settle(ctx context.Context, st payment.Settlement, adminID int64) (*payment.Payment, error) {
	entry := s.logger.WithFields(logrus.Fields{"payment_id": st.PaymentID, "admin_id": adminID})
	paid, err := s.paymentRepo.Settle(ctx, st)
	if err != nil {
		if failure.IsBusiness(err) {
			entry.WithError(err).Warn("Settlement rejected")
			return nil, err
		}
		entry.WithError(err).Error("Failed to settle payment")
		return nil, failure.Internal(err)
	}
	entry.WithFields(logrus.Fields{
		"paid_amount": paid.PaidAmount.StringFixed(2),
		"has_fine":    paid.HasFine,
		"fine_amount": paid.FineAmount.StringFixed(2),
	}).Info("Payment settled")
	return paid, nil
}

// UploadPaymentProof attaches an opaque proof reference to the member's own pending payment.
// A replacement proof keeps the first submission time, which is what lateness is judged on;
// a rejection clears it.
func (s *PaymentService) UploadPaymentProof(ctx context.Context, userID, paymentID int64, proofRef string) (*payment.Payment, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, failure.ErrInvalidProof.Withf("proof reference is required")
	}
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if p.UserID != userID {
		return nil, failure.ErrNotOwner
	}
	if p.Status == payment.StatusPaid {
		return nil, failure.ErrAlreadyPaid
	}

	now := s.nowFn()
	if err := s.paymentRepo.AttachProof(ctx, paymentID, proofRef, now); err != nil {
		return nil, failure.Internal(err)
	}
	p.ProofOfPayment = sql.NullString{String: proofRef, Valid: true}
	if !p.ProofSubmittedAt.Valid {
		p.ProofSubmittedAt = sql.NullTime{Time: now, Valid: true}
	}
	p.Notes = sql.NullString{}
	s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "user_id": userID}).Info("Payment proof submitted")
	return p, nil
}

// VerifyPayment approves or rejects a submitted proof.
//
// Approving a pending payment settles it as of the proof submission time. The receipt is taken
// to cover the base amount plus any fine that timing incurs, so the fine counts as paid; use
// ApprovePaymentAmount when the receipt shows a different sum. Approving a paid payment only
// records the verification. Rejecting clears the proof so the member can submit again.
func (s *PaymentService) VerifyPayment(ctx context.Context, adminID, paymentID int64, approve bool, notes string) (*payment.Payment, error) {
	return s.review(ctx, adminID, paymentID, approve, decimal.NullDecimal{}, notes)
}

// ApprovePaymentAmount approves a submitted proof for the amount the receipt actually shows.
// The fine counts as paid only when tendered covers the base amount plus the fine.
func (s *PaymentService) ApprovePaymentAmount(ctx context.Context, adminID, paymentID int64, tendered decimal.Decimal) (*payment.Payment, error) {
	if !tendered.IsPositive() {
		return nil, failure.ErrInvalidAmount
	}
	return s.review(ctx, adminID, paymentID, true, decimal.NullDecimal{Decimal: tendered, Valid: true}, "")
}

func (s *PaymentService) review(ctx context.Context, adminID, paymentID int64, approve bool, tendered decimal.NullDecimal, notes string) (*payment.Payment, error) {
	if _, err := requireAdmin(ctx, s.memberRepo, adminID); err != nil {
		return nil, err
	}
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	entry := s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "admin_id": adminID, "approve": approve})
	now := s.nowFn()

	if !approve {
		if p.Status == payment.StatusPaid {
			return nil, failure.ErrAlreadyPaid
		}
		reason := strings.TrimSpace(notes)
		if err := s.paymentRepo.RejectProof(ctx, paymentID, reason); err != nil {
			return nil, failure.Internal(err)
		}
		p.ProofOfPayment = sql.NullString{}
		p.ProofSubmittedAt = sql.NullTime{}
		p.Notes = sql.NullString{String: reason, Valid: true}
		entry.Info("Payment proof rejected")
		return p, nil
	}

	if p.Status == payment.StatusPaid {
		if p.VerifiedBy.Valid {
			return p, nil
		}
		verified, err := s.paymentRepo.MarkVerified(ctx, paymentID, adminID, now)
		if err != nil {
			return nil, failure.Internal(err)
		}
		entry.Info("Paid payment verified")
		return verified, nil
	}

	if !p.ProofSubmittedAt.Valid {
		return nil, failure.ErrInvalidProof.Withf("no proof has been submitted for this payment")
	}
	part, err := s.participationRepo.GetByID(ctx, p.ParticipationID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	submittedAt := p.ProofSubmittedAt.Time
	amount := tendered.Decimal
	if !tendered.Valid {
		fine := payment.AssessFine(p.DueDate, submittedAt, part.FineAmount)
		amount = p.Amount.Add(fine.FineAmount)
	}
	settlement := payment.Settle(p, amount, part.FineAmount, submittedAt)
	settlement.VerifiedBy = sql.NullInt64{Int64: adminID, Valid: true}
	settlement.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	return s.settle(ctx, settlement, adminID)
}

// GetOverdueCount counts pending payments past their due date at call time.
func (s *PaymentService) GetOverdueCount(ctx context.Context, participationID int64) (int, error) {
	n, err := s.paymentRepo.CountOverdue(ctx, participationID, s.nowFn())
	if err != nil {
		return 0, failure.Internal(err)
	}
	return n, nil
}

// ListMyPayments returns the caller's schedule in cycleID, month by month.
func (s *PaymentService) ListMyPayments(ctx context.Context, userID, cycleID int64) ([]*payment.Payment, error) {
	part, err := s.participationRepo.GetByUserAndCycle(ctx, userID, cycleID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	payments, err := s.paymentRepo.ListByParticipation(ctx, part.ID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return payments, nil
}

// GetPayment returns one payment, enforcing ownership for non-admin callers.
func (s *PaymentService) GetPayment(ctx context.Context, userID, paymentID int64) (*payment.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, failure.Internal(err)
	}
	if p.UserID != userID {
		if _, err := requireAdmin(ctx, s.memberRepo, userID); err != nil {
			return nil, failure.ErrNotOwner
		}
	}
	return p, nil
}
