package registry

import (
	"log"
	"time"

	"keydesk/internal/store"
)

// Activity status values
const (
	ActivitySuccess = "success"
	ActivityFailure = "failure"
)

// maxActivities bounds the log; oldest entries fall off silently.
const maxActivities = 100

// appendActivity prepends an entry inside a running Update.
func appendActivity(doc *store.Document, actor, action, status string) {
	entry := store.Activity{
		Time:   time.Now(),
		User:   actor,
		Action: action,
		Status: status,
	}
	doc.Activities = append([]store.Activity{entry}, doc.Activities...)
	if len(doc.Activities) > maxActivities {
		doc.Activities = doc.Activities[:maxActivities]
	}
}

// Record appends a standalone activity entry. Persistence failures are
// swallowed: logging must never abort the operation that triggered it.
func (r *Registry) Record(actor, action, status string) {
	err := r.store.Update(func(doc *store.Document) error {
		appendActivity(doc, actor, action, status)
		return nil
	})
	if err != nil {
		log.Printf("activity log write failed: %v", err)
	}
}

// Activities returns a copy of the log, newest first.
func (r *Registry) Activities() []store.Activity {
	var out []store.Activity
	r.store.View(func(doc *store.Document) {
		out = append(out, doc.Activities...)
	})
	return out
}
