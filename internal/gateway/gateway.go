// Package gateway wraps the Telegram transport behind a narrow interface so
// the dispatcher, gate and notifier never touch the SDK client directly.
package gateway

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrUnconfigured is returned when no bot token has been set yet.
var ErrUnconfigured = errors.New("bot token not configured")

// Info describes the connected bot and its webhook registration.
type Info struct {
	BotUsername    string `json:"bot_username"`
	BotName        string `json:"bot_name"`
	BotID          int64  `json:"bot_id"`
	WebhookURL     string `json:"webhook_url"`
	WebhookSet     bool   `json:"webhook_set"`
	PendingUpdates int    `json:"pending_updates"`
}

// Gateway is the messaging transport used for bot replies, membership
// checks and notifications.
type Gateway interface {
	SendMessage(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	EditMessage(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID string) error
	// ChatMember resolves the membership status ("member", "administrator",
	// "creator", "left", ...) of userID in the given channel. Channel is
	// either "@username" or a numeric chat id.
	ChatMember(channel string, userID int64) (string, error)
	// SendToChannel posts to a channel by "@username" or numeric id.
	SendToChannel(channel, text string) error
}
