// Package gate decides whether a user may use gated features based on an
// optional channel-membership requirement.
package gate

import (
	"log"

	"keydesk/internal/store"
)

// MembershipChecker is the one external capability the gate consumes.
type MembershipChecker interface {
	ChatMember(channel string, userID int64) (string, error)
}

// Gate implements the force-subscribe policy. It fails open: when the
// membership check cannot be completed, access is granted. Availability
// over strictness, inherited product decision.
type Gate struct {
	store   *store.Store
	checker MembershipChecker
}

func New(s *store.Store, c MembershipChecker) *Gate {
	return &Gate{store: s, checker: c}
}

// Channel returns the configured gating channel, or "" when gating is off.
func (g *Gate) Channel() string {
	var channel string
	g.store.View(func(doc *store.Document) {
		if doc.Settings.ForceSubscribe {
			channel = doc.Settings.GateChannel
		}
	})
	return channel
}

// Allowed reports whether userID may use gated features.
func (g *Gate) Allowed(userID int64) bool {
	channel := g.Channel()
	if channel == "" {
		return true
	}

	status, err := g.checker.ChatMember(channel, userID)
	if err != nil {
		log.Printf("membership check failed for %d, failing open: %v", userID, err)
		return true
	}
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}
