// internal/domain/telegram/client.go
package telegram

import "gopkg.in/telebot.v3"

// Client is the outbound channel for reminders and admin digests.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// Notice is one outbound message addressed to a member's chat.
type Notice struct {
	ChatID int64
	Text   string
	// Markdown selects telebot.ModeMarkdown instead of plain text.
	Markdown bool
}

// Options builds the send options a Notice needs.
func (n Notice) Options() *telebot.SendOptions {
	if n.Markdown {
		return &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}
	}
	return &telebot.SendOptions{ParseMode: telebot.ModeDefault}
}
