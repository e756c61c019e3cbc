package registry

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"keydesk/internal/store"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an operation targets a missing user or key.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed issuance parameters.
	ErrValidation = errors.New("invalid request")
)

const keyPrefix = "pplx"

// Registry owns User/Key/Reseller bookkeeping on top of the document store.
type Registry struct {
	store *store.Store
}

func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// newKeyID returns a key id with 256 bits of entropy: "pplx-<43 url-safe chars>".
func newKeyID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	return keyPrefix + "-" + base64.RawURLEncoding.EncodeToString(b)
}

// referralCode derives a fixed 8-char token from the telegram id, so
// re-enrollment always yields the same code.
func referralCode(telegramID string) string {
	sum := md5.Sum([]byte(telegramID))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

func newResellerID() string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "RSL" + strings.ToUpper(token[:8])
}

// IssueKey generates a key for the given user and upserts the user record.
// A previously issued key stays in the document untouched (latest key wins);
// it is not revoked.
func (r *Registry) IssueKey(telegramID, name, kind string, requestLimit, durationDays int) (string, store.Key, error) {
	return r.issue(telegramID, name, kind, requestLimit, durationDays, "API Key Generated")
}

// AdminIssueKey is IssueKey with the owner identity supplied by the admin
// surface instead of a bot session.
func (r *Registry) AdminIssueKey(telegramID, name, kind string, requestLimit, durationDays int) (string, store.Key, error) {
	return r.issue(telegramID, name, kind, requestLimit, durationDays, "API Generated via Admin Panel")
}

// issue does the shared issuance work. Each issuance logs exactly one
// activity entry, labeled for the surface it came through.
func (r *Registry) issue(telegramID, name, kind string, requestLimit, durationDays int, action string) (string, store.Key, error) {
	if telegramID == "" || requestLimit <= 0 || durationDays <= 0 {
		return "", store.Key{}, ErrValidation
	}
	if kind == "" {
		kind = "perplexity"
	}
	if name == "" {
		name = "User"
	}

	now := time.Now()
	expiry := now.Add(time.Duration(durationDays) * 24 * time.Hour)

	var id string
	var key store.Key
	err := r.store.Update(func(doc *store.Document) error {
		id = newKeyID()
		// Collision is negligible at 256 bits, but verify before insert anyway.
		for {
			if _, exists := doc.APIs[id]; !exists {
				break
			}
			id = newKeyID()
		}

		key = store.Key{
			UserID:   telegramID,
			Username: name,
			Type:     kind,
			Requests: 0,
			Limit:    requestLimit,
			Status:   store.KeyStatusActive,
			Created:  now,
			Expiry:   expiry,
		}
		doc.APIs[id] = key
		doc.Users[telegramID] = store.User{
			Name:       name,
			APIKey:     id,
			Status:     store.UserStatusActive,
			Expiry:     expiry,
			TelegramID: telegramID,
		}
		appendActivity(doc, name, action, ActivitySuccess)
		return nil
	})
	if err != nil {
		return "", store.Key{}, err
	}
	return id, key, nil
}

// DashboardView is the rendered account summary for one user.
type DashboardView struct {
	Name         string
	TelegramID   string
	UserStatus   string
	KeyID        string
	KeyType      string
	KeyStatus    string
	Requests     int
	Limit        int
	Remaining    int // may be negative if over-used
	UsagePercent float64
	Segments     int // filled progress segments, clamped to [0,10]
	Expiry       time.Time
	DaysLeft     int // may be negative once expired; expiry is reported, not enforced
}

// ProgressBar renders the 10-segment usage indicator.
func (v DashboardView) ProgressBar() string {
	return strings.Repeat("█", v.Segments) + strings.Repeat("░", 10-v.Segments)
}

func (r *Registry) Dashboard(telegramID string) (DashboardView, error) {
	var view DashboardView
	found := false
	r.store.View(func(doc *store.Document) {
		user, ok := doc.Users[telegramID]
		if !ok {
			return
		}
		found = true
		key := doc.APIs[user.APIKey]

		percent := 0.0
		if key.Limit > 0 {
			percent = float64(key.Requests) / float64(key.Limit) * 100
		}
		segments := int(percent / 10)
		if segments < 0 {
			segments = 0
		}
		if segments > 10 {
			segments = 10
		}

		view = DashboardView{
			Name:         user.Name,
			TelegramID:   telegramID,
			UserStatus:   user.Status,
			KeyID:        user.APIKey,
			KeyType:      key.Type,
			KeyStatus:    key.Status,
			Requests:     key.Requests,
			Limit:        key.Limit,
			Remaining:    key.Limit - key.Requests,
			UsagePercent: percent,
			Segments:     segments,
			Expiry:       key.Expiry,
			DaysLeft:     int(math.Ceil(time.Until(key.Expiry).Hours() / 24)),
		}
	})
	if !found {
		return DashboardView{}, ErrNotFound
	}
	return view, nil
}

// EnrollReseller enrolls a user into the affiliate program. Idempotent: an
// existing record is returned unchanged.
func (r *Registry) EnrollReseller(telegramID, name string) (store.Reseller, error) {
	var reseller store.Reseller
	err := r.store.Update(func(doc *store.Document) error {
		if existing, ok := doc.Resellers[telegramID]; ok {
			reseller = existing
			return nil
		}
		reseller = store.Reseller{
			ID:           newResellerID(),
			Name:         name,
			Commission:   doc.Settings.DefaultCommission,
			Sales:        0,
			Earnings:     0,
			Status:       "active",
			Joined:       time.Now(),
			ReferralCode: referralCode(telegramID),
		}
		doc.Resellers[telegramID] = reseller
		appendActivity(doc, name, "Became Reseller", ActivitySuccess)
		return nil
	})
	return reseller, err
}

// Wallet returns the reseller earnings balance, or 0 for non-resellers.
func (r *Registry) Wallet(telegramID string) int {
	balance := 0
	r.store.View(func(doc *store.Document) {
		if reseller, ok := doc.Resellers[telegramID]; ok {
			balance = reseller.Earnings
		}
	})
	return balance
}

// CreditSale records one referred sale: bumps the sales counter and accrues
// the reseller's commission share of amount.
func (r *Registry) CreditSale(code string, amount int) (store.Reseller, error) {
	if amount < 0 {
		return store.Reseller{}, ErrValidation
	}
	var credited store.Reseller
	err := r.store.Update(func(doc *store.Document) error {
		for id, reseller := range doc.Resellers {
			if reseller.ReferralCode != code {
				continue
			}
			reseller.Sales++
			reseller.Earnings += amount * reseller.Commission / 100
			doc.Resellers[id] = reseller
			credited = reseller
			appendActivity(doc, reseller.Name, "Referral Sale Credited", ActivitySuccess)
			return nil
		}
		return ErrNotFound
	})
	return credited, err
}

// DeleteKey removes a key and its owning user. Reseller records survive.
func (r *Registry) DeleteKey(keyID string) error {
	return r.store.Update(func(doc *store.Document) error {
		key, ok := doc.APIs[keyID]
		if !ok {
			return ErrNotFound
		}
		delete(doc.APIs, keyID)
		delete(doc.Users, key.UserID)
		appendActivity(doc, "Admin", fmt.Sprintf("Deleted API key of %s", key.Username), ActivitySuccess)
		return nil
	})
}

// RevokeKey marks a key revoked in place. Irreversible short of a reissue;
// does not block issuing a fresh key to the same user.
func (r *Registry) RevokeKey(keyID string) error {
	return r.store.Update(func(doc *store.Document) error {
		key, ok := doc.APIs[keyID]
		if !ok {
			return ErrNotFound
		}
		key.Status = store.KeyStatusRevoked
		doc.APIs[keyID] = key
		appendActivity(doc, "Admin", fmt.Sprintf("Revoked API key of %s", key.Username), ActivitySuccess)
		return nil
	})
}

// RenewKey extends a user's current key. An already expired key restarts
// from now.
func (r *Registry) RenewKey(telegramID string, durationDays int) (store.Key, error) {
	if durationDays <= 0 {
		return store.Key{}, ErrValidation
	}
	var renewed store.Key
	err := r.store.Update(func(doc *store.Document) error {
		user, ok := doc.Users[telegramID]
		if !ok {
			return ErrNotFound
		}
		key, ok := doc.APIs[user.APIKey]
		if !ok {
			return ErrNotFound
		}

		base := key.Expiry
		if base.Before(time.Now()) {
			base = time.Now()
		}
		key.Expiry = base.Add(time.Duration(durationDays) * 24 * time.Hour)
		doc.APIs[user.APIKey] = key

		user.Expiry = key.Expiry
		doc.Users[telegramID] = user

		renewed = key
		appendActivity(doc, user.Name, "Subscription Renewed", ActivitySuccess)
		return nil
	})
	return renewed, err
}

// TrackRequest counts one consumed request against a key. The consuming
// system reports usage here; limits are enforced there, not here, so the
// counter may pass the limit.
func (r *Registry) TrackRequest(keyID string) (store.Key, error) {
	var tracked store.Key
	err := r.store.Update(func(doc *store.Document) error {
		key, ok := doc.APIs[keyID]
		if !ok {
			return ErrNotFound
		}
		key.Requests++
		doc.APIs[keyID] = key
		tracked = key
		return nil
	})
	return tracked, err
}

// Stats are the aggregate counters shown on the admin dashboard.
type Stats struct {
	Users     int `json:"users"`
	Resellers int `json:"resellers"`
	APIs      int `json:"apis"`
	Revenue   int `json:"revenue"` // users * api_price, an estimate, not billing
}

func (r *Registry) Stats() Stats {
	var st Stats
	r.store.View(func(doc *store.Document) {
		st.Users = len(doc.Users)
		st.Resellers = len(doc.Resellers)
		st.APIs = len(doc.APIs)
		st.Revenue = len(doc.Users) * doc.Settings.APIPrice
	})
	return st
}
