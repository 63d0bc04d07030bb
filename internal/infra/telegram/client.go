// internal/infra/telegram/client.go
package telegram

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	domainTelegram "ajo_ledger/internal/domain/telegram"
)

// maxFloodWait bounds how long one send may sleep on a flood-control reply.
const maxFloodWait = 30 * time.Second

// sender is the part of *telebot.Bot the adapter uses.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter delivers reminders and review requests through telebot.
// A flood-control reply is waited out once before the send is retried.
type TelebotAdapter struct {
	bot    sender
	logger *logrus.Entry
	sleep  func(time.Duration)
}

var _ domainTelegram.Client = (*TelebotAdapter)(nil)

func NewTelebotAdapter(b *telebot.Bot, logger *logrus.Entry) *TelebotAdapter {
	return &TelebotAdapter{bot: b, logger: logger, sleep: time.Sleep}
}

// SendMessage sends text to a member's private chat; the chat id equals the user id.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	recipient := &telebot.User{ID: recipientChatID}

	_, err := tba.bot.Send(recipient, text, options)
	var flood telebot.FloodError
	if !errors.As(err, &flood) {
		return err
	}

	wait := time.Duration(flood.RetryAfter) * time.Second
	if wait > maxFloodWait {
		return err
	}
	tba.logger.WithFields(logrus.Fields{"chat_id": recipientChatID, "retry_after": wait.String()}).Warn("Telegram flood limit hit, retrying")
	tba.sleep(wait)
	_, err = tba.bot.Send(recipient, text, options)
	return err
}
