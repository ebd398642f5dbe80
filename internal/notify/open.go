// Package notify delivers aggregated stock notifications.
package notify

import (
	"fmt"
	"strings"
	"time"

	logx "stockwatch/pkg/logx"
)

// Config selects and configures the delivery driver.
//
// Driver values:
//   - "wecom" (default): WeCom group bot webhook
//   - "telegram": Telegram Bot API
type Config struct {
	Driver     string
	WebhookURL string
	Telegram   TelegramConfig
	Timeout    time.Duration
	RatePerMin int
}

// Open builds the configured notifier wrapped in a rate limiter.
func Open(cfg Config, log logx.Logger) (Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		n   Notifier
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "wecom", "wechat":
		n, err = NewWeCom(cfg.WebhookURL, cfg.Timeout, log)
	case "telegram":
		tc := cfg.Telegram
		if tc.Timeout <= 0 {
			tc.Timeout = cfg.Timeout
		}
		n, err = NewTelegram(tc, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return NewLimited(n, cfg.RatePerMin), nil
}
