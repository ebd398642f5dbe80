// Package monitor runs the stock check cycle and the loop that schedules it.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/fetch"
	"stockwatch/internal/notify"
	"stockwatch/internal/product"
	"stockwatch/internal/stock"
	"stockwatch/internal/throttle"
	logx "stockwatch/pkg/logx"
)

var errNotConfigured = errors.New("checker has no settings")

// ProductOutcome is the result of checking one product.
type ProductOutcome struct {
	Cycle     uint64
	At        time.Time
	Product   product.Descriptor
	Status    stock.Status
	Fragments int
	Err       error
	Took      time.Duration
}

// CycleResult describes one pass over every configured product.
type CycleResult struct {
	Cycle     uint64
	StartedAt time.Time
	Took      time.Duration

	Outcomes []ProductOutcome
	// Available lists products found in stock, in configuration order.
	Available  []product.Descriptor
	Eligible   []product.Descriptor
	Suppressed []product.Descriptor

	Notified    bool
	DeliveryErr error
}

// Failed counts products whose fetch failed.
func (r CycleResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// NotifyResult is published with NotifySent / NotifyFailed events.
type NotifyResult struct {
	Cycle    uint64
	At       time.Time
	Products []product.Descriptor
	Err      error
}

type runtimeDeps struct {
	settings Settings
	fetcher  fetch.PageFetcher
	notifier notify.Notifier
}

// Checker executes check cycles. Only one cycle may run at a time; the
// Scheduler guarantees that.
type Checker struct {
	rt       atomic.Pointer[runtimeDeps]
	throttle *throttle.Throttle

	log   logx.Logger
	bus   eventbus.Bus
	clock Clock
	rnd   Rand
	sleep SleepFunc

	cycles atomic.Uint64
}

type Option func(*Checker)

func WithLogger(log logx.Logger) Option { return func(c *Checker) { c.log = log } }
func WithBus(bus eventbus.Bus) Option { return func(c *Checker) { c.bus = bus } }
func WithClock(clk Clock) Option { return func(c *Checker) { c.clock = clk } }
func WithRand(r Rand) Option { return func(c *Checker) { c.rnd = r } }
func WithSleep(fn SleepFunc) Option { return func(c *Checker) { c.sleep = fn } }
func WithThrottle(t *throttle.Throttle) Option { return func(c *Checker) { c.throttle = t } }

func NewChecker(s Settings, f fetch.PageFetcher, n notify.Notifier, opts ...Option) *Checker {
	c := &Checker{}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop{}
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.rnd == nil {
		c.rnd = newRand()
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	if c.throttle == nil {
		c.throttle = throttle.New(s.Cooldown)
	}
	c.rt.Store(&runtimeDeps{settings: s, fetcher: f, notifier: n})
	return c
}

// Apply swaps settings and collaborators. A running cycle keeps the values it
// started with; the next cycle uses the new ones. Nil collaborators keep the
// current ones.
func (c *Checker) Apply(s Settings, f fetch.PageFetcher, n notify.Notifier) {
	cur := c.rt.Load()
	if cur != nil {
		if f == nil {
			f = cur.fetcher
		}
		if n == nil {
			n = cur.notifier
		}
	}
	c.rt.Store(&runtimeDeps{settings: s, fetcher: f, notifier: n})
}

// Settings returns the settings the next cycle will use.
func (c *Checker) Settings() Settings {
	if rt := c.rt.Load(); rt != nil {
		return rt.settings
	}
	return Settings{}
}

func (c *Checker) Throttle() *throttle.Throttle { return c.throttle }

// RunCycle checks every product once and sends at most one notification.
//
// Per-product fetch failures are logged and isolated. The returned error is
// non-nil only when the cycle itself could not complete (cancellation or
// missing configuration).
func (c *Checker) RunCycle(ctx context.Context) (CycleResult, error) {
	rt := c.rt.Load()
	if rt == nil || rt.fetcher == nil || rt.notifier == nil {
		return CycleResult{}, errNotConfigured
	}
	s := rt.settings
	c.throttle.SetCooldown(s.Cooldown)

	res := CycleResult{Cycle: c.cycles.Add(1), StartedAt: c.clock.Now()}
	log := c.log.With(logx.Int64("cycle", int64(res.Cycle)))
	log.Debug("cycle started", logx.Int("products", len(s.Products)))

	for _, p := range s.Products {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := c.checkProduct(ctx, log, rt, res.Cycle, p)
		res.Outcomes = append(res.Outcomes, out)
		if out.Err == nil && out.Status == stock.Available {
			res.Available = append(res.Available, p)
		}
		c.bus.Publish(eventbus.Event{Type: eventbus.ProductChecked, Data: out})

		// Pacing applies after every product, failed or not.
		if err := c.sleep(ctx, uniform(c.rnd, s.PacingMin, s.PacingMax)); err != nil {
			return res, err
		}
	}

	if len(res.Available) > 0 {
		c.notifyAvailable(ctx, log, rt, &res)
	}

	res.Took = c.clock.Now().Sub(res.StartedAt)
	return res, nil
}

func (c *Checker) checkProduct(ctx context.Context, log logx.Logger, rt *runtimeDeps, cycle uint64, p product.Descriptor) ProductOutcome {
	start := c.clock.Now()
	out := ProductOutcome{Cycle: cycle, At: start, Product: p}
	plog := log.With(logx.String("product", p.DisplayName()), logx.String("url", p.URL))

	frags, err := rt.fetcher.Fetch(ctx, p.URL)
	out.Took = c.clock.Now().Sub(start)
	if err != nil {
		out.Err = err
		out.Status = stock.Indeterminate
		if ctx.Err() == nil {
			plog.Error("product check failed", logx.Err(err))
		}
		return out
	}

	out.Fragments = len(frags)
	out.Status = stock.Inspect(frags, rt.settings.Marker)
	switch out.Status {
	case stock.Available:
		plog.Info("product in stock")
	case stock.OutOfStock:
		plog.Debug("product still out of stock")
	default:
		plog.Warn("stock status element not found; page layout may have changed")
	}
	return out
}

func (c *Checker) notifyAvailable(ctx context.Context, log logx.Logger, rt *runtimeDeps, res *CycleResult) {
	s := rt.settings
	now := c.clock.Now()
	res.Eligible, res.Suppressed = c.throttle.Partition(res.Available, now)
	if len(res.Eligible) == 0 {
		log.Debug("products in stock but all within notification cooldown",
			logx.Int("suppressed", len(res.Suppressed)))
		return
	}

	msg := BuildMessage(s.Title, s.Header, s.LinkText, res.Eligible)
	log.Info("sending stock notification",
		logx.Int("eligible", len(res.Eligible)),
		logx.Int("suppressed", len(res.Suppressed)))

	err := rt.notifier.Deliver(ctx, msg)
	// State advances whether or not delivery succeeded.
	c.throttle.MarkNotified(res.Eligible, now)
	res.Notified = true
	res.DeliveryErr = err

	ev := NotifyResult{Cycle: res.Cycle, At: now, Products: res.Eligible, Err: err}
	if err != nil {
		log.Error("stock notification failed", logx.Err(err))
		c.bus.Publish(eventbus.Event{Type: eventbus.NotifyFailed, Data: ev})
		return
	}
	log.Info("stock notification sent")
	c.bus.Publish(eventbus.Event{Type: eventbus.NotifySent, Data: ev})
}
