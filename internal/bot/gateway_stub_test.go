package bot

import (
	"errors"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var errTransport = errors.New("transport down")

// gatewayStub records outbound traffic and can be told to fail selectively.
type gatewayStub struct {
	mu           sync.Mutex
	sent         []string
	sentTo       []int64
	edits        []string
	channelPosts map[string][]string
	failSendTo   map[int64]bool
	channelErr   error
	memberStatus string
	memberErr    error
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{
		channelPosts: map[string][]string{},
		failSendTo:   map[int64]bool{},
		memberStatus: "member",
	}
}

func (g *gatewayStub) SendMessage(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSendTo[chatID] {
		return errors.New("blocked by user")
	}
	g.sent = append(g.sent, text)
	g.sentTo = append(g.sentTo, chatID)
	return nil
}

func (g *gatewayStub) EditMessage(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edits = append(g.edits, text)
	return nil
}

func (g *gatewayStub) AnswerCallback(callbackID string) error { return nil }

func (g *gatewayStub) ChatMember(channel string, userID int64) (string, error) {
	return g.memberStatus, g.memberErr
}

func (g *gatewayStub) SendToChannel(channel, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.channelErr != nil {
		return g.channelErr
	}
	g.channelPosts[channel] = append(g.channelPosts[channel], text)
	return nil
}

func (g *gatewayStub) lastEdit() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.edits) == 0 {
		return ""
	}
	return g.edits[len(g.edits)-1]
}
