// Package bot maps inbound Telegram updates onto registry and gate
// operations. Sessions are stateless: every command or button press is one
// operation plus one rendered reply.
package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"keydesk/internal/analytics"
	"keydesk/internal/gate"
	"keydesk/internal/gateway"
	"keydesk/internal/registry"
	"keydesk/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Self-service plan issued from the bot menu.
const (
	selfServeLimit = 1000
	selfServeDays  = 30
	selfServeKind  = "perplexity"
)

type Dispatcher struct {
	gw        gateway.Gateway
	store     *store.Store
	registry  *registry.Registry
	gate      *gate.Gate
	analytics *analytics.Store
	notifier  *Notifier
}

func NewDispatcher(gw gateway.Gateway, st *store.Store, reg *registry.Registry, g *gate.Gate, an *analytics.Store, n *Notifier) *Dispatcher {
	return &Dispatcher{
		gw:        gw,
		store:     st,
		registry:  reg,
		gate:      g,
		analytics: an,
		notifier:  n,
	}
}

func mainMenu() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔑 Get API Key", "get_api")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 My Dashboard", "dashboard")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💼 Become Reseller", "become_reseller")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💰 My Wallet", "wallet")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📈 Usage Stats", "usage")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("ℹ️ Help & Support", "help")),
	)
	return &kb
}

func joinMenu(channel string) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if strings.HasPrefix(channel, "@") {
		url := "https://t.me/" + strings.TrimPrefix(channel, "@")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📢 Join Channel", url)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ I've Joined", "check_join")))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// HandleUpdate processes one inbound update. Errors are logged, never
// returned: the webhook must always ack.
func (d *Dispatcher) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		d.handleCommand(update.Message)
	case update.CallbackQuery != nil:
		d.handleCallback(update.CallbackQuery)
	}
}

func (d *Dispatcher) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		name := displayName(msg.From)
		price, limit := d.planTerms()
		if err := d.gw.SendMessage(msg.Chat.ID, welcomeText(name, price, limit), mainMenu()); err != nil {
			log.Printf("welcome send failed: %v", err)
			return
		}
		d.registry.Record(name, "Bot Started", registry.ActivitySuccess)
	case "help":
		if err := d.gw.SendMessage(msg.Chat.ID, helpText(), nil); err != nil {
			log.Printf("help send failed: %v", err)
		}
	}
	// Other commands are ignored.
}

func (d *Dispatcher) handleCallback(q *tgbotapi.CallbackQuery) {
	if err := d.gw.AnswerCallback(q.ID); err != nil {
		log.Printf("answer callback failed: %v", err)
	}
	if q.Message == nil || q.From == nil {
		return
	}

	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	userID := q.From.ID
	telegramID := strconv.FormatInt(userID, 10)
	name := displayName(q.From)

	reply := func(text string, kb *tgbotapi.InlineKeyboardMarkup) {
		if err := d.gw.EditMessage(chatID, messageID, text, kb); err != nil {
			log.Printf("reply to %d failed: %v", chatID, err)
		}
	}

	// Key issuance, dashboard and reseller enrollment are gated; wallet,
	// usage and help never are.
	gated := func() bool {
		if d.gate.Allowed(userID) {
			return true
		}
		reply(joinText(d.gate.Channel()), joinMenu(d.gate.Channel()))
		return false
	}

	switch q.Data {
	case "get_api":
		if !gated() {
			return
		}
		keyID, key, err := d.registry.IssueKey(telegramID, name, selfServeKind, selfServeLimit, selfServeDays)
		if err != nil {
			log.Printf("key issuance for %s failed: %v", telegramID, err)
			reply("⚠️ Could not generate your key right now. Please try again.", mainMenu())
			return
		}
		reply(keyIssuedText(keyID, key), nil)
		d.notifier.AdminNotify(fmt.Sprintf("🔑 New API key issued to <b>%s</b> (id %s)", name, telegramID))

	case "dashboard":
		if !gated() {
			return
		}
		view, err := d.registry.Dashboard(telegramID)
		if err != nil {
			reply(noKeyText(), mainMenu())
			return
		}
		reply(dashboardText(view), nil)

	case "become_reseller":
		if !gated() {
			return
		}
		reseller, err := d.registry.EnrollReseller(telegramID, name)
		if err != nil {
			log.Printf("reseller enrollment for %s failed: %v", telegramID, err)
			reply("⚠️ Enrollment failed. Please try again.", mainMenu())
			return
		}
		price, _ := d.planTerms()
		reply(resellerText(reseller, price), nil)

	case "wallet":
		reply(walletText(d.registry.Wallet(telegramID)), nil)

	case "usage":
		view, err := d.registry.Dashboard(telegramID)
		if err != nil {
			reply("⚠️ No usage data found.", mainMenu())
			return
		}
		summary, err := d.analytics.Summary(view.KeyID)
		if err != nil {
			log.Printf("usage summary for %s failed: %v", view.KeyID, err)
		}
		reply(usageText(view, summary), nil)

	case "help":
		reply(helpText(), nil)

	case "check_join":
		if d.gate.Allowed(userID) {
			price, limit := d.planTerms()
			reply(welcomeText(name, price, limit), mainMenu())
			return
		}
		reply(joinText(d.gate.Channel()), joinMenu(d.gate.Channel()))

	default:
		// Unknown callback identifiers are ignored.
	}
}

func (d *Dispatcher) planTerms() (price, limit int) {
	d.store.View(func(doc *store.Document) {
		price = doc.Settings.APIPrice
	})
	return price, selfServeLimit
}

func displayName(u *tgbotapi.User) string {
	if u == nil || u.FirstName == "" {
		return "User"
	}
	return u.FirstName
}
