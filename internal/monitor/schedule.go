package monitor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts crontab expressions with an optional seconds field
// and descriptors such as "@hourly" or "@every 90s".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression used in place of the jittered
// interval. "@every" descriptors become a fixed delay from the end of the
// previous cycle.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("schedule is empty")
	}
	s, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	if every, ok := s.(cron.ConstantDelaySchedule); ok {
		return fixedSchedule{d: every.Delay}, nil
	}
	if s.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("schedule %q never fires", expr)
	}
	return s, nil
}

// intervalSchedule draws the delay after a successful cycle uniformly from
// [min, max) whole minutes.
type intervalSchedule struct {
	min, max int
	rnd      Rand
}

func (s intervalSchedule) Delay() time.Duration {
	minutes := s.min
	if s.max > s.min {
		minutes += int(s.rnd.Float64() * float64(s.max-s.min))
	}
	return time.Duration(minutes) * time.Minute
}

func (s intervalSchedule) Next(t time.Time) time.Time { return t.Add(s.Delay()) }

// fixedSchedule fires exactly d after t, without second alignment.
type fixedSchedule struct {
	d time.Duration
}

func (s fixedSchedule) Next(t time.Time) time.Time { return t.Add(s.d) }
