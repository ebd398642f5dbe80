package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/eventbus"
	logx "stockwatch/pkg/logx"
)

// Cycler runs one check cycle and exposes the settings driving the loop.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
	Settings() Settings
}

// CycleError wraps a failure that escaped a cycle: a returned error or a
// recovered panic.
type CycleError struct {
	Err   error
	Panic any
	Stack string
}

func (e *CycleError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("cycle panicked: %v", e.Panic)
	}
	return "cycle failed: " + e.Err.Error()
}

func (e *CycleError) Unwrap() error { return e.Err }

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running   bool
	Cycles    uint64
	Failures  uint64
	NextRun   time.Time
	LastStart time.Time
	LastTook  time.Duration
	LastErr   string
	Last      *CycleResult
}

// Scheduler runs cycles back to back on a single goroutine: the first one
// immediately, then after a jittered interval (or at the next Settings.Cron
// time), or after the fixed retry delay when a cycle fails.
type Scheduler struct {
	cycler Cycler
	log    logx.Logger
	bus    eventbus.Bus
	clock  Clock
	rnd    Rand
	sleep  SleepFunc
	hooks  []func(CycleResult, error)

	mu     sync.Mutex
	status Status
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(log logx.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}
func WithSchedulerBus(bus eventbus.Bus) SchedulerOption { return func(s *Scheduler) { s.bus = bus } }
func WithSchedulerClock(clk Clock) SchedulerOption { return func(s *Scheduler) { s.clock = clk } }
func WithSchedulerRand(r Rand) SchedulerOption { return func(s *Scheduler) { s.rnd = r } }
func WithSchedulerSleep(fn SleepFunc) SchedulerOption { return func(s *Scheduler) { s.sleep = fn } }

// WithCycleHook registers fn to run on the scheduler goroutine after every cycle.
func WithCycleHook(fn func(CycleResult, error)) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.hooks = append(s.hooks, fn)
		}
	}
}

func NewScheduler(c Cycler, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{cycler: c}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.bus == nil {
		s.bus = eventbus.Nop{}
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.rnd == nil {
		s.rnd = newRand()
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	return s
}

// Run blocks until ctx is cancelled. Cycles never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.status.Running = false
		s.status.NextRun = time.Time{}
		s.mu.Unlock()
	}()

	s.log.Info("scheduler started")
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := s.runCycle(ctx)
		if ctx.Err() != nil {
			s.log.Debug("scheduler stopping", logx.Uint64("cycle", res.Cycle))
			return nil
		}

		settings := s.cycler.Settings()
		var next cron.Schedule
		if err != nil {
			retry := settings.RetryDelay
			if retry <= 0 {
				retry = DefaultRetryDelay
			}
			next = fixedSchedule{d: retry}
			var ce *CycleError
			if errors.As(err, &ce) && ce.Panic != nil {
				s.log.Error("cycle failed", logx.Err(err), logx.Stack(ce.Stack), logx.Duration("retry_in", retry))
			} else {
				s.log.Error("cycle failed", logx.Err(err), logx.Duration("retry_in", retry))
			}
			s.bus.Publish(eventbus.Event{Type: eventbus.CycleFailed, Data: err})
		} else {
			next = intervalSchedule{min: settings.IntervalMin, max: settings.IntervalMax, rnd: s.rnd}
			if settings.Cron != nil {
				next = settings.Cron
			}
			s.bus.Publish(eventbus.Event{Type: eventbus.CycleCompleted, Data: res})
		}
		s.record(res, err)
		for _, h := range s.hooks {
			h(res, err)
		}

		now := s.clock.Now()
		at := next.Next(now)
		s.mu.Lock()
		s.status.NextRun = at
		s.mu.Unlock()
		if err == nil {
			s.log.Info("next check scheduled",
				logx.Duration("in", at.Sub(now)),
				logx.Int("available", len(res.Available)),
				logx.Int("failed", res.Failed()))
		}

		if err := s.sleep(ctx, at.Sub(now)); err != nil {
			return nil
		}
	}
}

// runCycle converts errors and panics escaping the cycle into *CycleError.
func (s *Scheduler) runCycle(ctx context.Context) (res CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CycleError{Err: fmt.Errorf("panic: %v", r), Panic: r, Stack: string(debug.Stack())}
		}
	}()
	res, err = s.cycler.RunCycle(ctx)
	if err != nil && ctx.Err() == nil {
		err = &CycleError{Err: err}
	}
	return res, err
}

func (s *Scheduler) record(res CycleResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Cycles++
	s.status.LastStart = res.StartedAt
	s.status.LastTook = res.Took
	if err != nil {
		s.status.Failures++
		s.status.LastErr = err.Error()
		return
	}
	s.status.LastErr = ""
	r := res
	s.status.Last = &r
}

// Status returns a snapshot for status reporting.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
