package config

import "os"

// Config holds process-level configuration sourced from environment
// variables. Entity state and admin-editable settings live in the document
// store, not here; env values for the bot token and webhook URL take
// precedence over stored settings on every boot.
type Config struct {
	ListenAddr  string
	DataFile    string
	AnalyticsDB string

	BotToken   string
	WebhookURL string
}

func Load() *Config {
	return &Config{
		ListenAddr:  getenv("KEYDESK_LISTEN_ADDR", ":5000"),
		DataFile:    getenv("KEYDESK_DATA_FILE", "data.json"),
		AnalyticsDB: getenv("KEYDESK_ANALYTICS_DB", "analytics.db"),
		BotToken:    os.Getenv("BOT_TOKEN"),
		WebhookURL:  os.Getenv("WEBHOOK_URL"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
