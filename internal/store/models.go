package store

import "time"

// Key status values
const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// User status values
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User represents a bot end-user holding an issued key.
type User struct {
	Name       string    `json:"name"`
	APIKey     string    `json:"api_key"` // current key id; a reissue replaces this reference
	Status     string    `json:"status"`
	Expiry     time.Time `json:"expiry"`
	TelegramID string    `json:"telegram_id"`
}

// Key is an issued credential. Keyed by its own id in Document.APIs.
type Key struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Type     string    `json:"type"` // "perplexity" or a custom kind
	Requests int       `json:"requests"`
	Limit    int       `json:"limit"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Expiry   time.Time `json:"expiry"`
}

// Reseller is a user enrolled in the affiliate program. Keyed by telegram id.
type Reseller struct {
	ID           string    `json:"id"` // human-readable "RSL..." token
	Name         string    `json:"name"`
	Commission   int       `json:"commission"` // percent, fixed at enrollment
	Sales        int       `json:"sales"`
	Earnings     int       `json:"earnings"` // smallest currency unit
	Status       string    `json:"status"`
	Joined       time.Time `json:"joined"`
	ReferralCode string    `json:"referral_code"`
}

// Activity is one immutable log entry.
type Activity struct {
	Time   time.Time `json:"time"`
	User   string    `json:"user"`
	Action string    `json:"action"`
	Status string    `json:"status"`
}

// Settings is the process-wide configuration singleton. Updated via
// merge-patch from the admin panel; unspecified fields keep prior values.
type Settings struct {
	MasterAPI         string `json:"master_api"`
	BotToken          string `json:"bot_token"`
	WebhookURL        string `json:"webhook_url"`
	APIPrice          int    `json:"api_price"`
	DefaultCommission int    `json:"default_commission"`
	Theme             string `json:"theme"`

	// Feature toggles collapsing the deployment variants.
	ForceSubscribe bool `json:"force_subscribe"`
	AdminNotify    bool `json:"admin_notify"`
	ChannelPost    bool `json:"channel_post"`

	// Channel identifiers: "@username" or a numeric chat id.
	GateChannel  string `json:"gate_channel"`
	AdminChannel string `json:"admin_channel"`
	PostChannel  string `json:"post_channel"`
}

// Document is the whole persisted state. One JSON file owns the canonical
// copy of every entity.
type Document struct {
	Users      map[string]User     `json:"users"`     // keyed by telegram id
	APIs       map[string]Key      `json:"apis"`      // keyed by key id
	Resellers  map[string]Reseller `json:"resellers"` // keyed by telegram id
	Activities []Activity          `json:"activities"`
	Settings   Settings            `json:"settings"`
}

func defaultDocument() *Document {
	return &Document{
		Users:      map[string]User{},
		APIs:       map[string]Key{},
		Resellers:  map[string]Reseller{},
		Activities: []Activity{},
		Settings: Settings{
			APIPrice:          499,
			DefaultCommission: 20,
			Theme:             "light",
		},
	}
}
