package main

import (
	"log"

	"keydesk/internal/analytics"
	"keydesk/internal/api"
	"keydesk/internal/bot"
	"keydesk/internal/config"
	"keydesk/internal/gate"
	"keydesk/internal/gateway"
	"keydesk/internal/registry"
	"keydesk/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	st, err := store.Open(cfg.DataFile)
	if err != nil {
		log.Fatalf("❌ Failed to open document store: %v", err)
	}
	log.Printf("✅ Document store loaded from %s", cfg.DataFile)

	// Env credentials win over stored settings on every boot.
	if cfg.BotToken != "" || cfg.WebhookURL != "" {
		err := st.Update(func(doc *store.Document) error {
			if cfg.BotToken != "" {
				doc.Settings.BotToken = cfg.BotToken
			}
			if cfg.WebhookURL != "" {
				doc.Settings.WebhookURL = cfg.WebhookURL
			}
			return nil
		})
		if err != nil {
			log.Fatalf("❌ Failed to apply env overrides: %v", err)
		}
	}

	an, err := analytics.Open(cfg.AnalyticsDB)
	if err != nil {
		log.Fatalf("❌ Failed to open analytics store: %v", err)
	}
	log.Println("✅ Analytics store migrated.")

	var token string
	st.View(func(doc *store.Document) {
		token = doc.Settings.BotToken
	})
	gw := gateway.NewManager(token)

	reg := registry.New(st)
	gt := gate.New(st, gw)
	notifier := bot.NewNotifier(gw, st)
	defer notifier.Close()
	dispatcher := bot.NewDispatcher(gw, st, reg, gt, an, notifier)

	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	srv := api.NewServer(st, reg, an, gw, notifier, dispatcher)
	srv.RegisterRoutes(r)

	log.Printf("Keydesk starting on %s...", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}
