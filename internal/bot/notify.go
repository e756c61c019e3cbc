package bot

import (
	"log"
	"sync"

	"keydesk/internal/gateway"
	"keydesk/internal/store"
)

// BroadcastResult counts the outcome of a fan-out.
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type outbound struct {
	channel string
	text    string
}

// Notifier delivers best-effort, at-most-once notifications. Channel posts
// go through a bounded queue drained by one sender goroutine, so the
// request path only enqueues and never waits on Telegram.
type Notifier struct {
	gw        gateway.Gateway
	store     *store.Store
	queue     chan outbound
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewNotifier(gw gateway.Gateway, st *store.Store) *Notifier {
	n := &Notifier{
		gw:    gw,
		store: st,
		queue: make(chan outbound, 64),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for msg := range n.queue {
		if err := n.gw.SendToChannel(msg.channel, msg.text); err != nil {
			log.Printf("notification to %s failed: %v", msg.channel, err)
		}
	}
}

// Close drains the queue and stops the sender. Safe to call twice.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

// Notify enqueues a channel message. Returns false when the target is
// missing or the queue is full; never blocks, never errors to the caller.
func (n *Notifier) Notify(channel, text string) bool {
	if channel == "" {
		return false
	}
	select {
	case n.queue <- outbound{channel: channel, text: text}:
		return true
	default:
		log.Printf("notification queue full, dropping message for %s", channel)
		return false
	}
}

// AdminNotify posts to the admin channel when the toggle is on.
func (n *Notifier) AdminNotify(text string) bool {
	var channel string
	n.store.View(func(doc *store.Document) {
		if doc.Settings.AdminNotify {
			channel = doc.Settings.AdminChannel
		}
	})
	return n.Notify(channel, text)
}

// ChannelPost posts an announcement to the public channel when the toggle
// is on.
func (n *Notifier) ChannelPost(text string) bool {
	var channel string
	n.store.View(func(doc *store.Document) {
		if doc.Settings.ChannelPost {
			channel = doc.Settings.PostChannel
		}
	})
	return n.Notify(channel, text)
}

// Broadcast sends text to every recipient in turn. Per-recipient failures
// are counted and never abort the remaining sends.
func (n *Notifier) Broadcast(text string, recipients []int64) BroadcastResult {
	result := BroadcastResult{Total: len(recipients)}
	for _, chatID := range recipients {
		if err := n.gw.SendMessage(chatID, text, nil); err != nil {
			log.Printf("broadcast to %d failed: %v", chatID, err)
			result.Failed++
			continue
		}
		result.Sent++
	}
	return result
}
