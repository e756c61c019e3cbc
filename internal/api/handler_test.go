package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"keydesk/internal/analytics"
	"keydesk/internal/bot"
	"keydesk/internal/gate"
	"keydesk/internal/gateway"
	"keydesk/internal/registry"
	"keydesk/internal/store"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// transportStub fakes the delivery side of the gateway.
type transportStub struct {
	mu         sync.Mutex
	sentTo     []int64
	failSendTo map[int64]bool
	posts      map[string][]string
}

func newTransportStub() *transportStub {
	return &transportStub{failSendTo: map[int64]bool{}, posts: map[string][]string{}}
}

func (s *transportStub) SendMessage(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSendTo[chatID] {
		return gateway.ErrUnconfigured
	}
	s.sentTo = append(s.sentTo, chatID)
	return nil
}

func (s *transportStub) EditMessage(chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	return nil
}

func (s *transportStub) AnswerCallback(callbackID string) error { return nil }

func (s *transportStub) ChatMember(channel string, userID int64) (string, error) {
	return "member", nil
}

func (s *transportStub) SendToChannel(channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[channel] = append(s.posts[channel], text)
	return nil
}

// botStub fakes the session-management side.
type botStub struct {
	configured bool
	webhookURL string
	reloads    []string
}

func (b *botStub) Reload(token string) error {
	b.reloads = append(b.reloads, token)
	b.configured = token != ""
	return nil
}

func (b *botStub) SetWebhook(url string) error {
	if !b.configured {
		return gateway.ErrUnconfigured
	}
	b.webhookURL = url
	return nil
}

func (b *botStub) Info() (gateway.Info, error) {
	if !b.configured {
		return gateway.Info{}, gateway.ErrUnconfigured
	}
	return gateway.Info{BotUsername: "keydesk_bot", WebhookSet: b.webhookURL != "", WebhookURL: b.webhookURL}, nil
}

func (b *botStub) Configured() bool { return b.configured }

type apiRig struct {
	router    *gin.Engine
	store     *store.Store
	registry  *registry.Registry
	transport *transportStub
	bot       *botStub
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "data.json"))
	if err != nil {
		t.Fatal(err)
	}
	an, err := analytics.Open(filepath.Join(dir, "analytics.db"))
	if err != nil {
		t.Fatal(err)
	}

	transport := newTransportStub()
	reg := registry.New(st)
	g := gate.New(st, transport)
	n := bot.NewNotifier(transport, st)
	t.Cleanup(n.Close)
	d := bot.NewDispatcher(transport, st, reg, g, an, n)

	bs := &botStub{}
	srv := NewServer(st, reg, an, bs, n, d)
	r := gin.New()
	srv.RegisterRoutes(r)

	return &apiRig{router: r, store: st, registry: reg, transport: transport, bot: bs}
}

func (rig *apiRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rig.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad JSON %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGenerate(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "apiType": "perplexity",
		"rateLimit": 1000, "expiryDays": 30,
	})
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	key, _ := body["api_key"].(string)
	if !strings.HasPrefix(key, "pplx-") {
		t.Errorf("api_key = %q", key)
	}

	stats := decode(t, rig.do(t, http.MethodGet, "/api/stats", nil))
	if stats["users"].(float64) != 1 || stats["apis"].(float64) != 1 {
		t.Errorf("stats = %v", stats)
	}
	if stats["revenue"].(float64) != 499 {
		t.Errorf("revenue = %v, want 499", stats["revenue"])
	}
}

func TestGenerateValidation(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/api/generate", gin.H{"userName": "Alice"}); w.Code != 400 {
		t.Errorf("missing telegramId: status = %d", w.Code)
	}
	if w := rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": -5,
	}); w.Code != 400 {
		t.Errorf("negative rateLimit: status = %d", w.Code)
	}
}

func TestDeleteCascade(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodDelete, "/api/delete/pplx-nope", nil); w.Code != 404 {
		t.Errorf("delete unknown: status = %d", w.Code)
	}

	w := rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": 1000,
	})
	key := decode(t, w)["api_key"].(string)

	if w := rig.do(t, http.MethodDelete, "/api/delete/"+key, nil); w.Code != 200 {
		t.Fatalf("delete: status = %d", w.Code)
	}

	users := decode(t, rig.do(t, http.MethodGet, "/api/users", nil))
	if len(users) != 0 {
		t.Errorf("users after cascade = %v", users)
	}
}

func TestRevoke(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/api/revoke/pplx-nope", nil); w.Code != 404 {
		t.Errorf("revoke unknown: status = %d", w.Code)
	}

	w := rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": 1000,
	})
	key := decode(t, w)["api_key"].(string)

	if w := rig.do(t, http.MethodPost, "/api/revoke/"+key, nil); w.Code != 200 {
		t.Fatalf("revoke: status = %d", w.Code)
	}

	apis := decode(t, rig.do(t, http.MethodGet, "/api/apis", nil))
	entry := apis[key].(map[string]any)
	if entry["status"] != "revoked" {
		t.Errorf("key status = %v, want revoked", entry["status"])
	}
}

func TestSettingsMergePatch(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/api/settings", gin.H{"api_price": 999}); w.Code != 200 {
		t.Fatalf("patch: status = %d", w.Code)
	}

	settings := decode(t, rig.do(t, http.MethodGet, "/api/settings", nil))
	if settings["api_price"].(float64) != 999 {
		t.Errorf("api_price = %v", settings["api_price"])
	}
	// Unspecified fields keep prior values.
	if settings["default_commission"].(float64) != 20 {
		t.Errorf("default_commission = %v, want 20", settings["default_commission"])
	}
	if len(rig.bot.reloads) != 0 {
		t.Errorf("gateway reloaded without a token change: %v", rig.bot.reloads)
	}
}

func TestSettingsTokenChangeReloadsGateway(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/api/settings", gin.H{"bot_token": "123:abc"}); w.Code != 200 {
		t.Fatalf("patch: status = %d", w.Code)
	}
	if len(rig.bot.reloads) != 1 || rig.bot.reloads[0] != "123:abc" {
		t.Errorf("reloads = %v", rig.bot.reloads)
	}
}

func TestBroadcast(t *testing.T) {
	rig := newAPIRig(t)

	for _, id := range []string{"1", "2", "3"} {
		w := rig.do(t, http.MethodPost, "/api/generate", gin.H{
			"telegramId": id, "userName": "U" + id, "rateLimit": 1000,
		})
		if w.Code != 200 {
			t.Fatal(w.Body.String())
		}
	}
	rig.transport.failSendTo[2] = true

	body := decode(t, rig.do(t, http.MethodPost, "/api/broadcast", gin.H{"message": "hi"}))
	if body["sent"].(float64) != 2 || body["failed"].(float64) != 1 || body["total"].(float64) != 3 {
		t.Errorf("broadcast result = %v", body)
	}
}

func TestWebhookAck(t *testing.T) {
	rig := newAPIRig(t)
	w := rig.do(t, http.MethodPost, "/webhook", gin.H{"update_id": 1})
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["ok"] != true {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSetupWebhook(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/setup_webhook", nil); w.Code != 400 {
		t.Errorf("no URL configured: status = %d", w.Code)
	}

	err := rig.store.Update(func(doc *store.Document) error {
		doc.Settings.WebhookURL = "https://keydesk.example.com/"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if w := rig.do(t, http.MethodPost, "/setup_webhook", nil); w.Code != 400 {
		t.Errorf("bot unconfigured: status = %d", w.Code)
	}

	rig.bot.configured = true
	w := rig.do(t, http.MethodPost, "/setup_webhook", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if rig.bot.webhookURL != "https://keydesk.example.com/webhook" {
		t.Errorf("registered URL = %q", rig.bot.webhookURL)
	}
}

func TestHealthAndStatus(t *testing.T) {
	rig := newAPIRig(t)

	health := decode(t, rig.do(t, http.MethodGet, "/health", nil))
	if health["status"] != "healthy" || health["bot_initialized"] != false {
		t.Errorf("health = %v", health)
	}

	if w := rig.do(t, http.MethodGet, "/bot_status", nil); w.Code != 400 {
		t.Errorf("unconfigured bot_status: status = %d", w.Code)
	}

	rig.bot.configured = true
	status := decode(t, rig.do(t, http.MethodGet, "/bot_status", nil))
	if status["bot_username"] != "keydesk_bot" {
		t.Errorf("bot_status = %v", status)
	}
}

func TestActivitiesEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodGet, "/api/activities", nil)
	if strings.TrimSpace(w.Body.String()) == "null" {
		t.Error("empty activities must encode as [], not null")
	}

	rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": 1000,
	})
	var activities []map[string]any
	resp := rig.do(t, http.MethodGet, "/api/activities", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &activities); err != nil {
		t.Fatal(err)
	}
	if len(activities) == 0 {
		t.Fatal("no activity recorded for admin issuance")
	}
}

func TestRenewEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	if w := rig.do(t, http.MethodPost, "/api/renew", gin.H{"telegramId": "42"}); w.Code != 404 {
		t.Errorf("renew unknown user: status = %d", w.Code)
	}

	rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": 1000,
	})
	if w := rig.do(t, http.MethodPost, "/api/renew", gin.H{"telegramId": "42", "expiryDays": 30}); w.Code != 200 {
		t.Errorf("renew: status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCreditSaleEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	reseller, err := rig.registry.EnrollReseller("42", "Alice")
	if err != nil {
		t.Fatal(err)
	}

	if w := rig.do(t, http.MethodPost, "/api/credit_sale", gin.H{"referralCode": "NOPE1234", "amount": 499}); w.Code != 404 {
		t.Errorf("unknown code: status = %d", w.Code)
	}

	body := decode(t, rig.do(t, http.MethodPost, "/api/credit_sale", gin.H{
		"referralCode": reseller.ReferralCode, "amount": 499,
	}))
	if body["earnings"].(float64) != 99 || body["sales"].(float64) != 1 {
		t.Errorf("credit result = %v", body)
	}
}

func TestReportUsage(t *testing.T) {
	rig := newAPIRig(t)

	body := decode(t, rig.do(t, http.MethodPost, "/api/generate", gin.H{
		"telegramId": "42", "userName": "Alice", "rateLimit": 1000,
	}))
	keyID := body["api_key"].(string)

	if w := rig.do(t, http.MethodPost, "/api/usage", gin.H{"key": "pplx-missing", "endpoint": "/chat"}); w.Code != 404 {
		t.Errorf("unknown key: status = %d", w.Code)
	}

	first := decode(t, rig.do(t, http.MethodPost, "/api/usage", gin.H{
		"key": keyID, "endpoint": "/chat", "durationMs": 120,
	}))
	if first["requests"].(float64) != 1 {
		t.Errorf("requests after first report = %v, want 1", first["requests"])
	}
	second := decode(t, rig.do(t, http.MethodPost, "/api/usage", gin.H{
		"key": keyID, "endpoint": "/chat", "status": 500, "durationMs": 80,
	}))
	if second["requests"].(float64) != 2 {
		t.Errorf("requests after second report = %v, want 2", second["requests"])
	}

	apis := decode(t, rig.do(t, http.MethodGet, "/api/apis", nil))
	key := apis[keyID].(map[string]any)
	if key["requests"].(float64) != 2 {
		t.Errorf("stored requests = %v, want 2", key["requests"])
	}

	summary := decode(t, rig.do(t, http.MethodGet, "/api/analytics?key="+keyID, nil))
	if summary["total"].(float64) != 2 {
		t.Errorf("analytics total = %v, want 2", summary["total"])
	}
	if summary["success"].(float64) != 1 {
		t.Errorf("analytics success = %v, want 1", summary["success"])
	}
}
