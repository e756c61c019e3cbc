package api

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"keydesk/internal/analytics"
	"keydesk/internal/bot"
	"keydesk/internal/gateway"
	"keydesk/internal/registry"
	"keydesk/internal/store"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BotGateway is the slice of the gateway the admin surface needs: session
// management, not message delivery.
type BotGateway interface {
	Reload(token string) error
	SetWebhook(url string) error
	Info() (gateway.Info, error)
	Configured() bool
}

// Server holds the admin surface dependencies. Handlers are stateless;
// all state lives in the injected store.
type Server struct {
	store      *store.Store
	registry   *registry.Registry
	analytics  *analytics.Store
	bot        BotGateway
	notifier   *bot.Notifier
	dispatcher *bot.Dispatcher
}

func NewServer(st *store.Store, reg *registry.Registry, an *analytics.Store, gw BotGateway, n *bot.Notifier, d *bot.Dispatcher) *Server {
	return &Server{
		store:      st,
		registry:   reg,
		analytics:  an,
		bot:        gw,
		notifier:   n,
		dispatcher: d,
	}
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "message": msg})
}

// GetStats - GET /api/stats
func (s *Server) GetStats(c *gin.Context) {
	c.JSON(200, s.registry.Stats())
}

// GetUsers - GET /api/users
func (s *Server) GetUsers(c *gin.Context) {
	users := map[string]store.User{}
	s.store.View(func(doc *store.Document) {
		for id, u := range doc.Users {
			users[id] = u
		}
	})
	c.JSON(200, users)
}

// GetResellers - GET /api/resellers
func (s *Server) GetResellers(c *gin.Context) {
	resellers := map[string]store.Reseller{}
	s.store.View(func(doc *store.Document) {
		for id, r := range doc.Resellers {
			resellers[id] = r
		}
	})
	c.JSON(200, resellers)
}

// GetAPIs - GET /api/apis
func (s *Server) GetAPIs(c *gin.Context) {
	apis := map[string]store.Key{}
	s.store.View(func(doc *store.Document) {
		for id, k := range doc.APIs {
			apis[id] = k
		}
	})
	c.JSON(200, apis)
}

// GetActivities - GET /api/activities
func (s *Server) GetActivities(c *gin.Context) {
	activities := s.registry.Activities()
	if activities == nil {
		activities = []store.Activity{}
	}
	c.JSON(200, activities)
}

// GetSettings - GET /api/settings
func (s *Server) GetSettings(c *gin.Context) {
	var settings store.Settings
	s.store.View(func(doc *store.Document) {
		settings = doc.Settings
	})
	c.JSON(200, settings)
}

// UpdateSettings - POST /api/settings
// Merge-patch: only supplied fields change. A bot_token change reloads the
// Telegram session.
func (s *Server) UpdateSettings(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, 400, err.Error())
		return
	}

	var newToken string
	tokenChanged := false
	err := s.store.Update(func(doc *store.Document) error {
		current, err := json.Marshal(doc.Settings)
		if err != nil {
			return err
		}
		merged := map[string]json.RawMessage{}
		if err := json.Unmarshal(current, &merged); err != nil {
			return err
		}
		for k, v := range patch {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		var next store.Settings
		if err := json.Unmarshal(raw, &next); err != nil {
			return err
		}
		tokenChanged = next.BotToken != doc.Settings.BotToken
		newToken = next.BotToken
		doc.Settings = next
		return nil
	})
	if err != nil {
		fail(c, 400, err.Error())
		return
	}

	if tokenChanged {
		if err := s.bot.Reload(newToken); err != nil {
			log.Printf("gateway reload after settings change failed: %v", err)
		}
	}
	s.registry.Record("Admin", "Settings Updated", registry.ActivitySuccess)
	c.JSON(200, gin.H{"success": true})
}

// GenerateRequest - body of POST /api/generate
type GenerateRequest struct {
	TelegramID string `json:"telegramId" binding:"required"`
	UserName   string `json:"userName" binding:"required"`
	APIType    string `json:"apiType"`
	RateLimit  int    `json:"rateLimit"`
	ExpiryDays int    `json:"expiryDays"`
}

// Generate - POST /api/generate
func (s *Server) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}
	if req.ExpiryDays == 0 {
		req.ExpiryDays = 30
	}

	keyID, _, err := s.registry.AdminIssueKey(req.TelegramID, req.UserName, req.APIType, req.RateLimit, req.ExpiryDays)
	if err != nil {
		if errors.Is(err, registry.ErrValidation) {
			fail(c, 400, "invalid issuance parameters")
			return
		}
		fail(c, 500, "failed to persist key")
		return
	}
	c.JSON(200, gin.H{"success": true, "api_key": keyID})
}

// Delete - DELETE /api/delete/:keyId (cascades to the owning user)
func (s *Server) Delete(c *gin.Context) {
	err := s.registry.DeleteKey(c.Param("keyId"))
	if errors.Is(err, registry.ErrNotFound) {
		fail(c, 404, "key not found")
		return
	}
	if err != nil {
		fail(c, 500, "failed to delete key")
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// Revoke - POST /api/revoke/:keyId
func (s *Server) Revoke(c *gin.Context) {
	err := s.registry.RevokeKey(c.Param("keyId"))
	if errors.Is(err, registry.ErrNotFound) {
		fail(c, 404, "key not found")
		return
	}
	if err != nil {
		fail(c, 500, "failed to revoke key")
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// RenewRequest - body of POST /api/renew
type RenewRequest struct {
	TelegramID string `json:"telegramId" binding:"required"`
	ExpiryDays int    `json:"expiryDays"`
}

// Renew - POST /api/renew
func (s *Server) Renew(c *gin.Context) {
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}
	if req.ExpiryDays == 0 {
		req.ExpiryDays = 30
	}
	key, err := s.registry.RenewKey(req.TelegramID, req.ExpiryDays)
	if errors.Is(err, registry.ErrNotFound) {
		fail(c, 404, "user not found")
		return
	}
	if err != nil {
		fail(c, 500, "failed to renew")
		return
	}
	c.JSON(200, gin.H{"success": true, "expiry": key.Expiry})
}

// CreditSaleRequest - body of POST /api/credit_sale
type CreditSaleRequest struct {
	ReferralCode string `json:"referralCode" binding:"required"`
	Amount       int    `json:"amount" binding:"required"`
}

// CreditSale - POST /api/credit_sale
func (s *Server) CreditSale(c *gin.Context) {
	var req CreditSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}
	reseller, err := s.registry.CreditSale(req.ReferralCode, req.Amount)
	if errors.Is(err, registry.ErrNotFound) {
		fail(c, 404, "referral code not found")
		return
	}
	if err != nil {
		fail(c, 400, "invalid sale")
		return
	}
	c.JSON(200, gin.H{"success": true, "earnings": reseller.Earnings, "sales": reseller.Sales})
}

// Broadcast - POST /api/broadcast: sequential best-effort fan-out to all
// known users.
func (s *Server) Broadcast(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}

	var recipients []int64
	s.store.View(func(doc *store.Document) {
		for id := range doc.Users {
			chatID, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				continue
			}
			recipients = append(recipients, chatID)
		}
	})

	result := s.notifier.Broadcast(req.Message, recipients)
	s.registry.Record("Admin", "Broadcast Sent", registry.ActivitySuccess)
	c.JSON(200, result)
}

// ChannelPost - POST /api/channel_post: best-effort announcement to the
// public channel.
func (s *Server) ChannelPost(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}
	queued := s.notifier.ChannelPost(req.Message)
	c.JSON(200, gin.H{"success": queued})
}

// GetAnalytics - GET /api/analytics[?key=<keyId>]
func (s *Server) GetAnalytics(c *gin.Context) {
	if keyID := c.Query("key"); keyID != "" {
		summary, err := s.analytics.Summary(keyID)
		if err != nil {
			fail(c, 500, "failed to load analytics")
			return
		}
		c.JSON(200, summary)
		return
	}
	recent, err := s.analytics.Recent(100)
	if err != nil {
		fail(c, 500, "failed to load analytics")
		return
	}
	c.JSON(200, recent)
}

// UsageRequest - body of POST /api/usage. The consuming system reports
// each serviced request here after the fact; status defaults to 200.
type UsageRequest struct {
	Key        string `json:"key" binding:"required"`
	Endpoint   string `json:"endpoint"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"durationMs"`
}

// ReportUsage - POST /api/usage: bumps the key's request counter and
// appends a row to the usage log backing /api/analytics.
func (s *Server) ReportUsage(c *gin.Context) {
	var req UsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, err.Error())
		return
	}
	if req.Status == 0 {
		req.Status = 200
	}

	key, err := s.registry.TrackRequest(req.Key)
	if errors.Is(err, registry.ErrNotFound) {
		fail(c, 404, "key not found")
		return
	}
	if err != nil {
		fail(c, 500, "failed to record usage")
		return
	}

	// The counter is the source of truth; a lost analytics row only
	// degrades the usage breakdown.
	if err := s.analytics.Record(req.Key, req.Endpoint, req.Status, time.Duration(req.DurationMs)*time.Millisecond); err != nil {
		log.Printf("⚠️ usage log write failed: %v", err)
	}

	c.JSON(200, gin.H{"success": true, "requests": key.Requests, "limit": key.Limit})
}

// Webhook - POST /webhook: Telegram update ingestion. Dispatch runs off
// the request goroutine so the transport ack is never blocked on
// persistence or sends.
func (s *Server) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	go s.dispatcher.HandleUpdate(update)
	c.JSON(200, gin.H{"ok": true})
}

// SetupWebhook - GET/POST /setup_webhook: (re)registers the delivery
// endpoint with Telegram.
func (s *Server) SetupWebhook(c *gin.Context) {
	var base string
	s.store.View(func(doc *store.Document) {
		base = doc.Settings.WebhookURL
	})
	if base == "" {
		fail(c, 400, "Webhook URL not configured")
		return
	}

	full := strings.TrimRight(base, "/") + "/webhook"
	if err := s.bot.SetWebhook(full); err != nil {
		if errors.Is(err, gateway.ErrUnconfigured) {
			fail(c, 400, "Bot not initialized. Please add bot_token in settings.")
			return
		}
		fail(c, 500, err.Error())
		return
	}

	log.Printf("✅ Webhook set to %s", full)
	s.registry.Record("System", "Webhook Configured", registry.ActivitySuccess)
	c.JSON(200, gin.H{"success": true, "webhook_url": full, "message": "Webhook configured successfully!"})
}

// BotStatus - GET /bot_status
func (s *Server) BotStatus(c *gin.Context) {
	info, err := s.bot.Info()
	if err != nil {
		if errors.Is(err, gateway.ErrUnconfigured) {
			fail(c, 400, "Bot not initialized")
			return
		}
		fail(c, 500, err.Error())
		return
	}
	c.JSON(200, info)
}

// Health - GET /health
func (s *Server) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":          "healthy",
		"timestamp":       time.Now().Format(time.RFC3339),
		"bot_initialized": s.bot.Configured(),
	})
}

// RegisterRoutes wires the full admin surface onto r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.Use(MetricsMiddleware())

	api := r.Group("/api")
	{
		api.GET("/stats", s.GetStats)
		api.GET("/users", s.GetUsers)
		api.GET("/resellers", s.GetResellers)
		api.GET("/apis", s.GetAPIs)
		api.GET("/activities", s.GetActivities)
		api.GET("/settings", s.GetSettings)
		api.POST("/settings", s.UpdateSettings)
		api.POST("/generate", s.Generate)
		api.DELETE("/delete/:keyId", s.Delete)
		api.POST("/revoke/:keyId", s.Revoke)
		api.POST("/renew", s.Renew)
		api.POST("/credit_sale", s.CreditSale)
		api.POST("/broadcast", s.Broadcast)
		api.POST("/channel_post", s.ChannelPost)
		api.GET("/analytics", s.GetAnalytics)
		api.POST("/usage", s.ReportUsage)
	}

	r.POST("/webhook", s.Webhook)
	r.GET("/setup_webhook", s.SetupWebhook)
	r.POST("/setup_webhook", s.SetupWebhook)
	r.GET("/bot_status", s.BotStatus)
	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
