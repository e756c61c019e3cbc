package gateway

import (
	"log"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Manager is the live Telegram implementation of Gateway. The underlying
// client can be swapped at runtime when the admin panel changes the bot
// token (the credentials-changed hook).
type Manager struct {
	mu  sync.RWMutex
	bot *tgbotapi.BotAPI
}

// NewManager connects with the given token. An empty token yields an
// unconfigured manager; every call then fails with ErrUnconfigured until
// Reload supplies credentials.
func NewManager(token string) *Manager {
	m := &Manager{}
	if token == "" {
		log.Println("⚠️ Bot token not set; gateway starts unconfigured")
		return m
	}
	if err := m.Reload(token); err != nil {
		log.Printf("⚠️ Bot connection failed: %v", err)
	}
	return m
}

// Reload replaces the Telegram session with one built from token. An empty
// token drops the session.
func (m *Manager) Reload(token string) error {
	if token == "" {
		m.mu.Lock()
		m.bot = nil
		m.mu.Unlock()
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.bot = bot
	m.mu.Unlock()
	log.Printf("✅ Telegram session established as @%s", bot.Self.UserName)
	return nil
}

// Configured reports whether a Telegram session is live.
func (m *Manager) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bot != nil
}

func (m *Manager) api() (*tgbotapi.BotAPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bot == nil {
		return nil, ErrUnconfigured
	}
	return m.bot, nil
}

func (m *Manager) SendMessage(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	bot, err := m.api()
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err = bot.Send(msg)
	return err
}

func (m *Manager) EditMessage(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	bot, err := m.api()
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb
	_, err = bot.Send(edit)
	return err
}

func (m *Manager) AnswerCallback(callbackID string) error {
	bot, err := m.api()
	if err != nil {
		return err
	}
	_, err = bot.Request(tgbotapi.NewCallback(callbackID, ""))
	return err
}

func (m *Manager) ChatMember(channel string, userID int64) (string, error) {
	bot, err := m.api()
	if err != nil {
		return "", err
	}
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID},
	}
	if id, convErr := strconv.ParseInt(channel, 10, 64); convErr == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = channel
	}
	member, err := bot.GetChatMember(cfg)
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

func (m *Manager) SendToChannel(channel, text string) error {
	bot, err := m.api()
	if err != nil {
		return err
	}
	var msg tgbotapi.MessageConfig
	if id, convErr := strconv.ParseInt(channel, 10, 64); convErr == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(channel, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = bot.Send(msg)
	return err
}

// SetWebhook registers url as the inbound update endpoint.
func (m *Manager) SetWebhook(url string) error {
	bot, err := m.api()
	if err != nil {
		return err
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = bot.Request(wh)
	return err
}

// Info reports bot identity and webhook registration state.
func (m *Manager) Info() (Info, error) {
	bot, err := m.api()
	if err != nil {
		return Info{}, err
	}
	wh, err := bot.GetWebhookInfo()
	if err != nil {
		return Info{}, err
	}
	return Info{
		BotUsername:    bot.Self.UserName,
		BotName:        bot.Self.FirstName,
		BotID:          bot.Self.ID,
		WebhookURL:     wh.URL,
		WebhookSet:     wh.URL != "",
		PendingUpdates: wh.PendingUpdateCount,
	}, nil
}
