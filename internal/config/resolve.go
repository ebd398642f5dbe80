package config

import (
	"errors"
	"fmt"
	"strings"

	"stockwatch/internal/fetch"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/product"
	"stockwatch/internal/status"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

// Resolved is a validated Config translated into component settings.
type Resolved struct {
	Monitor monitor.Settings
	Fetch   fetch.Config
	Notify  notify.Config
	Storage storage.Config
	Logging logx.Config
	Status  StatusConfig

	// Duplicates lists products dropped because an earlier entry had the same URL.
	Duplicates []product.Descriptor
}

// Validate reports the first problem Resolve would find.
func (c *Config) Validate() error {
	_, err := c.Resolve()
	return err
}

// Resolve applies defaults and validates every section.
func (c *Config) Resolve() (Resolved, error) {
	if c == nil {
		return Resolved{}, errors.New("config is nil")
	}
	var (
		r   Resolved
		err error
	)

	if r.Monitor, r.Duplicates, err = c.monitorSettings(); err != nil {
		return Resolved{}, err
	}
	if err := r.Monitor.Validate(); err != nil {
		return Resolved{}, err
	}
	if r.Fetch, err = c.fetchConfig(); err != nil {
		return Resolved{}, err
	}
	if r.Notify, err = c.notifyConfig(); err != nil {
		return Resolved{}, err
	}
	if r.Storage, err = c.storageConfig(); err != nil {
		return Resolved{}, err
	}

	r.Logging = logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
	r.Status = c.Status
	if r.Status.Addr == "" {
		r.Status.Addr = DefaultStatusAddr
	}
	if r.Status.Enabled && r.Status.Pprof && r.Status.PprofToken == "" && !status.IsLoopbackAddr(r.Status.Addr) {
		return Resolved{}, fmt.Errorf("status.pprof on non-loopback %q requires status.pprof_token", r.Status.Addr)
	}
	return r, nil
}

func (c *Config) monitorSettings() (monitor.Settings, []product.Descriptor, error) {
	s := monitor.DefaultSettings()

	ps := make([]product.Descriptor, 0, len(c.Products))
	for i, p := range c.Products {
		if strings.TrimSpace(p.URL) == "" {
			return s, nil, fmt.Errorf("products[%d]: url is required", i)
		}
		ps = append(ps, product.Descriptor{Name: p.Name, URL: p.URL})
	}
	var dropped []product.Descriptor
	s.Products, dropped = product.Dedupe(ps)

	if c.Check.IntervalMin != nil {
		s.IntervalMin = *c.Check.IntervalMin
	}
	if c.Check.IntervalMax != nil {
		s.IntervalMax = *c.Check.IntervalMax
	}
	var err error
	if expr := strings.TrimSpace(c.Check.Schedule); expr != "" {
		if s.Cron, err = monitor.ParseSchedule(expr); err != nil {
			return s, nil, fmt.Errorf("check.schedule: %w", err)
		}
	}
	if s.RetryDelay, err = ParseDurationOrDefault("check.retry_delay", c.Check.RetryDelay, monitor.DefaultRetryDelay); err != nil {
		return s, nil, err
	}
	if s.RetryDelay == 0 {
		return s, nil, errors.New("check.retry_delay must be > 0")
	}
	if s.PacingMin, err = ParseDurationOrDefault("check.pacing_min", c.Check.PacingMin, monitor.DefaultPacingMin); err != nil {
		return s, nil, err
	}
	if s.PacingMax, err = ParseDurationOrDefault("check.pacing_max", c.Check.PacingMax, monitor.DefaultPacingMax); err != nil {
		return s, nil, err
	}

	if c.Inspect.Marker != "" {
		s.Marker = c.Inspect.Marker
	}

	if s.Cooldown, err = minutesOrDefault("notify.cooldown_minutes", c.Notify.CooldownMinutes, s.Cooldown); err != nil {
		return s, nil, err
	}
	if c.Notify.Title != nil {
		s.Title = *c.Notify.Title
	}
	if c.Notify.Header != nil {
		s.Header = *c.Notify.Header
	}
	if c.Notify.LinkText != "" {
		s.LinkText = c.Notify.LinkText
	}
	return s, dropped, nil
}

func (c *Config) fetchConfig() (fetch.Config, error) {
	timeout, err := ParseDurationOrDefault("fetch.timeout", c.Fetch.Timeout, fetch.DefaultTimeout)
	if err != nil {
		return fetch.Config{}, err
	}
	ref := c.Fetch.Referrer
	if ref == "" {
		ref = fetch.DefaultReferrer
	}
	lang := c.Fetch.AcceptLanguage
	if lang == "" {
		lang = fetch.DefaultAcceptLanguage
	}
	return fetch.Config{
		UserAgent:          c.Fetch.UserAgent,
		Timeout:            timeout,
		Referrer:           ref,
		AcceptLanguage:     lang,
		Selector:           strings.TrimSpace(c.Inspect.Selector),
		TargetClass:        strings.TrimSpace(c.Inspect.TargetClass),
		InsecureSkipVerify: c.Fetch.InsecureSkipVerify,
		RespectRobots:      c.Fetch.RespectRobots,
	}, nil
}

func (c *Config) notifyConfig() (notify.Config, error) {
	n := c.Notify
	timeout, err := ParseDurationOrDefault("notify.timeout", n.Timeout, notify.DefaultTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	rate := notify.DefaultRatePerMin
	if n.RatePerMin != nil {
		if *n.RatePerMin < 0 {
			return notify.Config{}, errors.New("notify.rate_per_min must be >= 0")
		}
		rate = *n.RatePerMin
	}
	driver := strings.ToLower(strings.TrimSpace(n.Driver))
	switch driver {
	case "", "wecom", "wechat":
		driver = "wecom"
		if strings.TrimSpace(n.WebhookURL) == "" {
			return notify.Config{}, fmt.Errorf("notify.webhook_url: %w", notify.ErrNoDestination)
		}
	case "telegram":
		if strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0 {
			return notify.Config{}, fmt.Errorf("notify.telegram token and chat_id: %w", notify.ErrNoDestination)
		}
	default:
		return notify.Config{}, fmt.Errorf("notify.driver: %w: %s", notify.ErrUnknownDriver, n.Driver)
	}
	return notify.Config{
		Driver:     driver,
		WebhookURL: strings.TrimSpace(n.WebhookURL),
		Telegram: notify.TelegramConfig{
			Token:    strings.TrimSpace(n.Telegram.Token),
			ChatID:   n.Telegram.ChatID,
			ThreadID: n.Telegram.ThreadID,
			APIURL:   n.Telegram.APIURL,
		},
		Timeout:    timeout,
		RatePerMin: rate,
	}, nil
}

func (c *Config) storageConfig() (storage.Config, error) {
	s := c.Storage
	busy, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "none":
		driver = "none"
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(s.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required for driver %q", driver)
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(s.DSN) == "" {
			return storage.Config{}, errors.New("storage.dsn is required for driver postgres")
		}
	default:
		return storage.Config{}, fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(s.Path),
		DSN:         strings.TrimSpace(s.DSN),
		BusyTimeout: busy,
	}, nil
}
