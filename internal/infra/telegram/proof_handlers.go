package telegram

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"ajo_ledger/internal/domain/failure"
	"ajo_ledger/internal/domain/member"
	"ajo_ledger/internal/domain/payment"
	domainTelegram "ajo_ledger/internal/domain/telegram"
	"ajo_ledger/internal/infra/logger"
)

// receipt is the file part of an uploaded proof.
type receipt struct {
	file     *telebot.File
	fileName string
}

func (h *Handlers) registerProofHandlers(b *telebot.Bot) {
	b.Handle(telebot.OnPhoto, h.asMember("photo", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		photo := c.Message().Photo
		return h.submitProof(c, m, log, receipt{file: &photo.File, fileName: "receipt.jpg"})
	}))

	b.Handle(telebot.OnDocument, h.asMember("document", func(c telebot.Context, m *member.Member, log *logrus.Entry) error {
		doc := c.Message().Document
		return h.submitProof(c, m, log, receipt{file: &doc.File, fileName: doc.FileName})
	}))

	b.Handle(telebot.OnCallback, h.handleProofReview)
}

// submitProof stores the receipt, attaches it to the captioned payment and asks admins to review it.
func (h *Handlers) submitProof(c telebot.Context, m *member.Member, log *logrus.Entry, r receipt) error {
	paymentID, err := parseProofCaption(c.Message().Caption)
	if err != nil {
		return c.Send("To submit proof of payment, caption the receipt with the payment id from /mypayments.")
	}
	log = log.WithField("payment_id", paymentID)

	// Ownership and status are checked before anything is uploaded.
	p, err := h.svc.Payments.GetPayment(h.ctx, m.ID, paymentID)
	if err != nil {
		return h.fail(c, log, err)
	}
	if p.Status != payment.StatusPending {
		return h.fail(c, log, failure.ErrAlreadyPaid)
	}

	ref, err := h.storeReceipt(c, paymentID, r)
	if err != nil {
		log.WithError(err).Error("Failed to store proof of payment")
		return c.Send("Could not save your receipt. Please try again later.")
	}

	p, err = h.svc.Payments.UploadPaymentProof(h.ctx, m.ID, paymentID, ref)
	if err != nil {
		return h.fail(c, log, err)
	}
	log.Info("Proof of payment submitted")

	h.notifyAdmins(log, m, p)
	return c.Send(fmt.Sprintf("Thanks! Your receipt for payment #%d was received and is awaiting review.", paymentID))
}

// storeReceipt returns the proof reference: an object URL when a store is configured,
// the Telegram file id otherwise.
func (h *Handlers) storeReceipt(c telebot.Context, paymentID int64, r receipt) (string, error) {
	if h.proofs == nil {
		return "telegram:" + r.file.FileID, nil
	}
	body, err := c.Bot().File(r.file)
	if err != nil {
		return "", fmt.Errorf("download receipt: %w", err)
	}
	defer body.Close()
	return h.proofs.SaveProof(h.ctx, paymentID, r.fileName, body, r.file.FileSize)
}

func (h *Handlers) notifyAdmins(log *logrus.Entry, payer *member.Member, p *payment.Payment) {
	admins, err := h.svc.Members.ListAdmins(h.ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list admins for proof review")
		return
	}
	text := fmt.Sprintf("%s submitted proof for payment #%d (month %d, %s due %s).\nReference: %s",
		payer.DisplayName(), p.ID, p.MonthNumber, money(p.Amount), p.DueDate.Format(dayLayout), p.ProofOfPayment.String)
	for _, a := range admins {
		notice := domainTelegram.Notice{ChatID: a.TelegramID, Text: text}
		opts := notice.Options()
		opts.ReplyMarkup = proofKeyboard(p.ID)
		if err := h.notifier.SendMessage(notice.ChatID, notice.Text, opts); err != nil {
			log.WithError(err).WithField("admin_id", a.ID).Warn("Failed to notify admin about proof")
		}
	}
}

// handleProofReview serves the Approve/Reject buttons attached to proof notifications.
func (h *Handlers) handleProofReview(c telebot.Context) error {
	data := c.Callback().Data
	log := logger.WithRequest(h.baseLogger).WithFields(logrus.Fields{
		"handler":   "proof_review",
		"sender_id": c.Sender().ID,
		"data":      data,
	})

	paymentID, approve, ok := parseProofCallback(data)
	if !ok {
		log.Warn("Unhandled callback data")
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	}
	log = log.WithFields(logrus.Fields{"payment_id": paymentID, "approve": approve})

	admin, err := h.svc.Members.GetByTelegramID(h.ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, failure.ErrMemberNotFound) {
			err = failure.ErrUnauthorized
		}
		log.WithError(err).Warn("Proof review refused")
		return c.Respond(&telebot.CallbackResponse{Text: errorReply(err)})
	}

	p, err := h.svc.Payments.VerifyPayment(h.ctx, admin.ID, paymentID, approve, "")
	if err != nil {
		if failure.IsBusiness(err) {
			log.WithError(err).Warn("Proof review rejected")
		} else {
			log.WithError(err).Error("Proof review failed")
		}
		return c.Respond(&telebot.CallbackResponse{Text: errorReply(err)})
	}

	verdict := "approved"
	if !approve {
		verdict = "rejected"
	}
	log.Info("Proof reviewed")

	if err := c.Edit(fmt.Sprintf("%s\n\n%s by %s.", c.Message().Text, verdict, admin.DisplayName())); err != nil {
		log.WithError(err).Warn("Failed to update review message")
	}
	h.notifyPayer(log, p, approve)
	return c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("Payment #%d %s", paymentID, verdict)})
}

func (h *Handlers) notifyPayer(log *logrus.Entry, p *payment.Payment, approved bool) {
	payer, err := h.svc.Members.GetMember(h.ctx, p.UserID)
	if err != nil {
		log.WithError(err).Warn("Failed to load payer for review notice")
		return
	}
	text := fmt.Sprintf("Your receipt for payment #%d was rejected. Please send a clearer receipt.", p.ID)
	if approved {
		text = fmt.Sprintf("Your payment #%d is confirmed: %s received.", p.ID, money(p.PaidAmount))
		if p.HasFine {
			text += fmt.Sprintf(" It was late, so a fine of %s applied.", money(p.FineAmount))
		}
	}
	notice := domainTelegram.Notice{ChatID: payer.TelegramID, Text: text}
	if err := h.notifier.SendMessage(notice.ChatID, notice.Text, notice.Options()); err != nil {
		log.WithError(err).Warn("Failed to notify payer")
	}
}
