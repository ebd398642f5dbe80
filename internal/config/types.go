package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("1s", "15s", "1m"); empty means the built-in default.
type Config struct {
	Products []ProductConfig `json:"products"`
	Check    CheckConfig     `json:"check"`
	Inspect  InspectConfig   `json:"inspect"`
	Fetch    FetchConfig     `json:"fetch"`
	Notify   NotifyConfig    `json:"notify"`
	Logging  LoggingConfig   `json:"logging"`
	Storage  StorageConfig   `json:"storage"`
	Status   StatusConfig    `json:"status"`
}

type ProductConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CheckConfig controls the loop cadence.
//
// Interval bounds are pointers so an explicit 0 is distinguishable from an
// omitted field (defaults 3 and 6 minutes).
type CheckConfig struct {
	IntervalMin *int   `json:"interval_min,omitempty"`
	IntervalMax *int   `json:"interval_max,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`
	PacingMin   string `json:"pacing_min,omitempty"`
	PacingMax   string `json:"pacing_max,omitempty"`

	// Schedule is an optional cron expression ("*/10 * * * *", "@hourly")
	// that replaces the interval bounds.
	Schedule string `json:"schedule,omitempty"`
}

type InspectConfig struct {
	TargetClass string `json:"target_class,omitempty"`
	// Selector overrides the "section.<target_class> p" selector.
	Selector string `json:"selector,omitempty"`
	Marker   string `json:"marker,omitempty"`
}

type FetchConfig struct {
	UserAgent          string `json:"user_agent,omitempty"`
	Timeout            string `json:"timeout,omitempty"`
	Referrer           string `json:"referrer,omitempty"`
	AcceptLanguage     string `json:"accept_language,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
	RespectRobots      bool   `json:"respect_robots,omitempty"`
}

type NotifyConfig struct {
	// Driver is "wecom" (default) or "telegram".
	Driver     string         `json:"driver,omitempty"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	Telegram   TelegramConfig `json:"telegram"`

	// CooldownMinutes defaults to 60; 0 disables the cooldown.
	CooldownMinutes *int `json:"cooldown_minutes,omitempty"`

	Title    *string `json:"title,omitempty"`
	Header   *string `json:"header,omitempty"`
	LinkText string  `json:"link_text,omitempty"`

	Timeout string `json:"timeout,omitempty"`
	// RatePerMin defaults to 20; 0 disables rate limiting.
	RatePerMin *int `json:"rate_per_min,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the check journal. Driver "none" or empty disables it.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// StatusConfig controls the read-only HTTP status server. Pprof mounts the
// profiler under /debug/pprof; off-loopback it requires PprofToken.
type StatusConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr,omitempty"`
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

const DefaultStatusAddr = "127.0.0.1:8089"
