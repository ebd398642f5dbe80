package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedCycler replays steps in order; a nil step succeeds.
type scriptedCycler struct {
	mu       sync.Mutex
	settings Settings
	steps    []func() error
	calls    int
}

func (c *scriptedCycler) RunCycle(ctx context.Context) (CycleResult, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.mu.Unlock()
	res := CycleResult{Cycle: uint64(i + 1)}
	if i < len(c.steps) && c.steps[i] != nil {
		return res, c.steps[i]()
	}
	return res, nil
}

func (c *scriptedCycler) Settings() Settings { return c.settings }

// stopAfter returns a sleep func that records delays and cancels after n calls.
func stopAfter(n int, cancel context.CancelFunc, delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		if len(*delays) >= n {
			cancel()
		}
		return ctx.Err()
	}
}

func runScheduler(t *testing.T, c *scriptedCycler, r Rand, sleeps int, opts ...SchedulerOption) ([]time.Duration, *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var delays []time.Duration
	base := []SchedulerOption{
		WithSchedulerClock(newClock()),
		WithSchedulerRand(r),
		WithSchedulerSleep(stopAfter(sleeps, cancel, &delays)),
	}
	s := NewScheduler(c, append(base, opts...)...)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
	return delays, s
}

func TestSchedulerFirstCycleImmediate(t *testing.T) {
	t.Parallel()
	c := &scriptedCycler{settings: testSettings(prodA)}
	var sawSleepBeforeCycle bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(c,
		WithSchedulerClock(newClock()),
		WithSchedulerRand(fixedRand(0)),
		WithSchedulerSleep(func(ctx context.Context, d time.Duration) error {
			c.mu.Lock()
			if c.calls == 0 {
				sawSleepBeforeCycle = true
			}
			c.mu.Unlock()
			cancel()
			return ctx.Err()
		}))
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sawSleepBeforeCycle {
		t.Fatal("scheduler slept before the first cycle")
	}
	if c.calls != 1 {
		t.Fatalf("cycles = %d, want 1", c.calls)
	}
}

func TestSchedulerIntervalDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		min, max int
		rnd      float64
		want     time.Duration
	}{
		{"low end", 3, 6, 0, 3 * time.Minute},
		{"middle", 3, 6, 0.5, 4 * time.Minute},
		{"high end", 3, 6, 0.999, 5 * time.Minute},
		{"equal bounds", 5, 5, 0.7, 5 * time.Minute},
		{"zero", 0, 0, 0.3, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := testSettings(prodA)
			st.IntervalMin, st.IntervalMax = tt.min, tt.max
			delays, _ := runScheduler(t, &scriptedCycler{settings: st}, fixedRand(tt.rnd), 1)
			if len(delays) != 1 || delays[0] != tt.want {
				t.Fatalf("delays = %v, want [%v]", delays, tt.want)
			}
		})
	}
}

func TestSchedulerRetryAfterFailure(t *testing.T) {
	t.Parallel()
	c := &scriptedCycler{
		settings: testSettings(prodA),
		steps: []func() error{
			func() error { return errors.New("boom") },
			nil,
		},
	}
	delays, s := runScheduler(t, c, fixedRand(0), 2)
	if len(delays) != 2 {
		t.Fatalf("delays = %v", delays)
	}
	if delays[0] != DefaultRetryDelay {
		t.Fatalf("retry delay = %v, want %v", delays[0], DefaultRetryDelay)
	}
	if delays[1] != 3*time.Minute {
		t.Fatalf("interval after recovery = %v, want 3m", delays[1])
	}
	st := s.Status()
	if st.Cycles != 2 || st.Failures != 1 || st.LastErr != "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestSchedulerRecoversPanic(t *testing.T) {
	t.Parallel()
	c := &scriptedCycler{
		settings: testSettings(prodA),
		steps:    []func() error{func() error { panic("kaboom") }},
	}
	var hookErr error
	delays, s := runScheduler(t, c, fixedRand(0), 1, WithCycleHook(func(_ CycleResult, err error) { hookErr = err }))
	if len(delays) != 1 || delays[0] != DefaultRetryDelay {
		t.Fatalf("delays = %v, want [%v]", delays, DefaultRetryDelay)
	}
	var ce *CycleError
	if !errors.As(hookErr, &ce) || ce.Panic == nil || ce.Stack == "" {
		t.Fatalf("hook error = %#v, want *CycleError with panic", hookErr)
	}
	if s.Status().Failures != 1 {
		t.Fatalf("failures = %d, want 1", s.Status().Failures)
	}
}

func TestSchedulerCustomRetryDelay(t *testing.T) {
	t.Parallel()
	st := testSettings(prodA)
	st.RetryDelay = 30 * time.Second
	c := &scriptedCycler{settings: st, steps: []func() error{func() error { return errors.New("x") }}}
	delays, _ := runScheduler(t, c, fixedRand(0), 1)
	if delays[0] != 30*time.Second {
		t.Fatalf("retry delay = %v, want 30s", delays[0])
	}
}

func TestSchedulerStopsWhenCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &scriptedCycler{settings: testSettings(prodA)}
	s := NewScheduler(c, WithSchedulerSleep(func(context.Context, time.Duration) error {
		t.Error("sleep called after cancellation")
		return nil
	}))
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.calls != 0 {
		t.Fatalf("cycles = %d, want 0", c.calls)
	}
	if s.Status().Running {
		t.Fatal("Running still true after Run returned")
	}
}

func TestSchedulerStatusTracksLastCycle(t *testing.T) {
	t.Parallel()
	c := &scriptedCycler{settings: testSettings(prodA)}
	var hooks int
	_, s := runScheduler(t, c, fixedRand(0), 3, WithCycleHook(func(CycleResult, error) { hooks++ }))
	st := s.Status()
	if st.Cycles != 3 || hooks != 3 {
		t.Fatalf("cycles=%d hooks=%d, want 3/3", st.Cycles, hooks)
	}
	if st.Last == nil || st.Last.Cycle != 3 {
		t.Fatalf("Last = %+v", st.Last)
	}
	if !st.NextRun.IsZero() {
		t.Fatalf("NextRun = %v, want zero after stop", st.NextRun)
	}
}

func TestSchedulerRetryDelayIsExact(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		retry time.Duration
	}{
		{"one minute", time.Minute},
		{"fractional seconds", 1500 * time.Millisecond},
		{"below one second", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := testSettings(prodA)
			st.RetryDelay = tt.retry
			c := &scriptedCycler{settings: st, steps: []func() error{func() error { return errors.New("down") }}}
			clk := &manualClock{t: time.Date(2024, 5, 1, 12, 0, 0, 700_000_000, time.UTC)}
			delays, _ := runScheduler(t, c, fixedRand(0), 1, WithSchedulerClock(clk))
			if len(delays) != 1 || delays[0] != tt.retry {
				t.Fatalf("retry delay = %v, want %v", delays, tt.retry)
			}
		})
	}
}

func TestSchedulerFollowsCronSchedule(t *testing.T) {
	t.Parallel()
	sched, err := ParseSchedule("*/10 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	st := testSettings(prodA)
	st.Cron = sched
	clk := &manualClock{t: time.Date(2024, 5, 1, 12, 3, 0, 500_000_000, time.UTC)}
	delays, _ := runScheduler(t, &scriptedCycler{settings: st}, fixedRand(0.9), 1, WithSchedulerClock(clk))
	if want := 6*time.Minute + 59500*time.Millisecond; len(delays) != 1 || delays[0] != want {
		t.Fatalf("delays = %v, want [%v]", delays, want)
	}
}

func TestSchedulerCronIgnoredAfterFailure(t *testing.T) {
	t.Parallel()
	sched, err := ParseSchedule("@hourly")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	st := testSettings(prodA)
	st.Cron = sched
	c := &scriptedCycler{settings: st, steps: []func() error{func() error { return errors.New("down") }}}
	delays, _ := runScheduler(t, c, fixedRand(0), 1)
	if len(delays) != 1 || delays[0] != DefaultRetryDelay {
		t.Fatalf("delays = %v, want [%v]", delays, DefaultRetryDelay)
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	from := time.Date(2024, 5, 1, 12, 3, 20, 250_000_000, time.UTC)
	tests := []struct {
		name    string
		expr    string
		want    time.Time
		wantErr bool
	}{
		{"five fields", "*/10 * * * *", time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), false},
		{"with seconds", "30 */5 * * * *", time.Date(2024, 5, 1, 12, 5, 30, 0, time.UTC), false},
		{"descriptor", "@hourly", time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), false},
		{"every keeps sub-second offset", "@every 90s", from.Add(90 * time.Second), false},
		{"empty", "  ", time.Time{}, true},
		{"garbage", "every tuesday", time.Time{}, true},
		{"never fires", "0 0 30 2 *", time.Time{}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) = nil error, want error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.expr, err)
			}
			if got := s.Next(from); !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}
