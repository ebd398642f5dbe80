// Package throttle tracks per-product notification cooldowns.
package throttle

import (
	"sync"
	"time"

	"stockwatch/internal/product"
)

const DefaultCooldown = 60 * time.Minute

// Throttle holds the last-notified time of each product, keyed by URL.
//
// Only the check cycle mutates it; the mutex exists because status readers
// take snapshots concurrently. Entries are never removed.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[product.Key]time.Time
}

func New(cooldown time.Duration) *Throttle {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Throttle{cooldown: cooldown, last: map[product.Key]time.Time{}}
}

// SetCooldown changes the window used by later Partition calls.
func (t *Throttle) SetCooldown(d time.Duration) {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	t.cooldown = d
	t.mu.Unlock()
}

func (t *Throttle) Cooldown() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cooldown
}

// Partition splits candidates into eligible and suppressed, preserving order.
// A product is eligible when it was never notified or when at least one
// cooldown has elapsed since it was.
func (t *Throttle) Partition(candidates []product.Descriptor, now time.Time) (eligible, suppressed []product.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range candidates {
		last, ok := t.last[p.Key()]
		if !ok || now.Sub(last) >= t.cooldown {
			eligible = append(eligible, p)
			continue
		}
		suppressed = append(suppressed, p)
	}
	return eligible, suppressed
}

// MarkNotified records now as the last notification time of every product.
func (t *Throttle) MarkNotified(ps []product.Descriptor, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range ps {
		t.last[p.Key()] = now
	}
}

// LastNotified returns the recorded time and whether the product was ever notified.
func (t *Throttle) LastNotified(k product.Key) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.last[k]
	return at, ok
}

// Snapshot copies the current state.
func (t *Throttle) Snapshot() map[product.Key]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[product.Key]time.Time, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}
	return out
}
