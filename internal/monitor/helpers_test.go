package monitor

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/notify"
	"stockwatch/internal/product"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *manualClock {
	return &manualClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type page struct {
	frags []string
	err   error
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	p := f.pages[url]
	return p.frags, p.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *fakeNotifier) Deliver(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

var (
	prodA = product.Descriptor{Name: "A", URL: "https://store.example/a"}
	prodB = product.Descriptor{Name: "B", URL: "https://store.example/b"}
	prodC = product.Descriptor{Name: "C", URL: "https://store.example/c"}
)

const marker = "out of stock"

func testSettings(ps ...product.Descriptor) Settings {
	s := DefaultSettings()
	s.Products = ps
	s.Marker = marker
	s.Cooldown = 60 * time.Minute
	return s
}
