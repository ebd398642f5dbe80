package monitor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/product"
	"stockwatch/internal/throttle"
)

const (
	DefaultIntervalMin = 3
	DefaultIntervalMax = 6
	DefaultRetryDelay  = time.Minute
	DefaultPacingMin   = time.Second
	DefaultPacingMax   = 3 * time.Second
	DefaultMarker      = "缺货"
	DefaultTitle       = "DJI商品有货提醒"
	DefaultHeader      = "以下商品已有货："
	DefaultLinkText    = "查看商品"
)

var ErrNoProducts = errors.New("no products configured")

// Settings is the immutable configuration of the check loop. A new value
// replaces the old one as a whole; nothing mutates a Settings in place.
type Settings struct {
	Products []product.Descriptor

	// Interval bounds in whole minutes; the next delay is drawn from [Min, Max).
	IntervalMin int
	IntervalMax int
	RetryDelay  time.Duration

	// Cron, when set, replaces the interval bounds: the next cycle starts at
	// the first activation after the previous one ended. Missed activations
	// are skipped.
	Cron cron.Schedule

	PacingMin time.Duration
	PacingMax time.Duration

	Marker   string
	Cooldown time.Duration

	Title    string
	Header   string
	LinkText string
}

// DefaultSettings returns the built-in values for everything but the products.
func DefaultSettings() Settings {
	return Settings{
		IntervalMin: DefaultIntervalMin,
		IntervalMax: DefaultIntervalMax,
		RetryDelay:  DefaultRetryDelay,
		PacingMin:   DefaultPacingMin,
		PacingMax:   DefaultPacingMax,
		Marker:      DefaultMarker,
		Cooldown:    throttle.DefaultCooldown,
		Title:       DefaultTitle,
		Header:      DefaultHeader,
		LinkText:    DefaultLinkText,
	}
}

func (s Settings) Validate() error {
	if len(s.Products) == 0 {
		return ErrNoProducts
	}
	for i, p := range s.Products {
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("products[%d]: url is required", i)
		}
	}
	if s.IntervalMin < 0 || s.IntervalMax < 0 {
		return fmt.Errorf("interval bounds must be >= 0 (min=%d max=%d)", s.IntervalMin, s.IntervalMax)
	}
	if s.IntervalMin > s.IntervalMax {
		return fmt.Errorf("interval_min (%d) must be <= interval_max (%d)", s.IntervalMin, s.IntervalMax)
	}
	if s.RetryDelay <= 0 {
		return errors.New("retry_delay must be > 0")
	}
	if s.PacingMin < 0 || s.PacingMax < s.PacingMin {
		return fmt.Errorf("pacing bounds invalid (min=%s max=%s)", s.PacingMin, s.PacingMax)
	}
	if s.Marker == "" {
		return errors.New("marker must not be empty")
	}
	if s.Cooldown < 0 {
		return errors.New("cooldown must be >= 0")
	}
	return nil
}
