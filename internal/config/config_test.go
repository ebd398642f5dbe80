package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
)

const sampleYAML = `
products:
  - name: Mini 4 Pro
    url: https://store.example/mini4
  - url: https://store.example/pocket3
  - name: dup
    url: https://store.example/mini4
check:
  interval_min: 2
  interval_max: 2
notify:
  webhook_url: https://hook.example/send
  cooldown_minutes: 0
logging:
  level: debug
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeYAMLAndResolve(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	m := r.Monitor
	if len(m.Products) != 2 || len(r.Duplicates) != 1 {
		t.Fatalf("products=%d duplicates=%d, want 2/1", len(m.Products), len(r.Duplicates))
	}
	if m.IntervalMin != 2 || m.IntervalMax != 2 {
		t.Fatalf("interval = %d..%d, want 2..2", m.IntervalMin, m.IntervalMax)
	}
	if m.Cooldown != 0 {
		t.Fatalf("Cooldown = %v, want 0", m.Cooldown)
	}
	if m.Marker != monitor.DefaultMarker || m.Title != monitor.DefaultTitle || m.Header != monitor.DefaultHeader {
		t.Fatalf("defaults not applied: %+v", m)
	}
	if m.RetryDelay != time.Minute || m.PacingMin != time.Second || m.PacingMax != 3*time.Second {
		t.Fatalf("durations = %v %v %v", m.RetryDelay, m.PacingMin, m.PacingMax)
	}
	if r.Notify.Driver != "wecom" || r.Notify.Timeout != notify.DefaultTimeout || r.Notify.RatePerMin != notify.DefaultRatePerMin {
		t.Fatalf("notify = %+v", r.Notify)
	}
	if r.Fetch.InsecureSkipVerify {
		t.Fatal("TLS verification must stay on by default")
	}
	if r.Fetch.Referrer == "" || r.Fetch.AcceptLanguage == "" {
		t.Fatalf("fetch defaults missing: %+v", r.Fetch)
	}
	if r.Storage.Driver != "none" || r.Status.Addr != DefaultStatusAddr {
		t.Fatalf("storage=%q status=%q", r.Storage.Driver, r.Status.Addr)
	}
	if r.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", r.Logging.Level)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"products":[],"bogus":1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestDecodeYAMLNodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "anchors and aliases",
			body: "products:\n  - { name: Mini, url: https://s/m }\ninspect:\n  marker: &m \"sold out\"\nnotify:\n  webhook_url: x\n  title: *m\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Notify.Title == nil || *cfg.Notify.Title != "sold out" {
					t.Fatalf("Title = %v, want alias value", cfg.Notify.Title)
				}
				if len(cfg.Products) != 1 || cfg.Products[0].Name != "Mini" {
					t.Fatalf("Products = %+v", cfg.Products)
				}
			},
		},
		{
			name: "empty document",
			body: "",
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Products) != 0 {
					t.Fatalf("Products = %+v, want none", cfg.Products)
				}
			},
		},
		{name: "duplicate key", body: "check:\n  interval_min: 1\n  interval_min: 2\n", wantErr: "interval_min"},
		{name: "merge key", body: "check: &c\n  interval_min: 1\nfetch:\n  <<: *c\n", wantErr: "merge"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode("config.yml", []byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Decode error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		is   error
	}{
		{"no products", `{"notify":{"webhook_url":"x"}}`, monitor.ErrNoProducts},
		{"no webhook", `{"products":[{"url":"u"}]}`, notify.ErrNoDestination},
		{"telegram without chat", `{"products":[{"url":"u"}],"notify":{"driver":"telegram","telegram":{"token":"t"}}}`, notify.ErrNoDestination},
		{"unknown driver", `{"products":[{"url":"u"}],"notify":{"driver":"sms"}}`, notify.ErrUnknownDriver},
		{"min above max", `{"products":[{"url":"u"}],"check":{"interval_min":7,"interval_max":6},"notify":{"webhook_url":"x"}}`, nil},
		{"bad duration", `{"products":[{"url":"u"}],"check":{"pacing_min":"soon"},"notify":{"webhook_url":"x"}}`, nil},
		{"blank url", `{"products":[{"name":"x","url":" "}],"notify":{"webhook_url":"x"}}`, nil},
		{"bad schedule", `{"products":[{"url":"u"}],"check":{"schedule":"every tuesday"},"notify":{"webhook_url":"x"}}`, nil},
		{"negative rate", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x","rate_per_min":-1}}`, nil},
		{"negative cooldown", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x","cooldown_minutes":-1}}`, nil},
		{"sqlite without path", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x"},"storage":{"driver":"sqlite"}}`, nil},
		{"postgres without dsn", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x"},"storage":{"driver":"postgres"}}`, nil},
		{"pprof exposed without token", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x"},"status":{"enabled":true,"addr":":8089","pprof":true}}`, nil},
		{"unknown storage", `{"products":[{"url":"u"}],"notify":{"webhook_url":"x"},"storage":{"driver":"mongo"}}`, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode("c.json", []byte(tt.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("Validate() = %v, want errors.Is %v", err, tt.is)
			}
		})
	}
}

func TestResolveTelegram(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.json", []byte(`{"products":[{"url":"u"}],"notify":{"driver":"Telegram","telegram":{"token":"t","chat_id":-100,"thread_id":7}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Notify.Driver != "telegram" || r.Notify.Telegram.ChatID != -100 || r.Notify.Telegram.ThreadID != 7 {
		t.Fatalf("notify = %+v", r.Notify)
	}
}

func TestResolveSchedule(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte("products:\n  - url: u\ncheck:\n  schedule: \"*/10 * * * *\"\nnotify:\n  webhook_url: x\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Monitor.Cron == nil {
		t.Fatal("Cron = nil, want parsed schedule")
	}
	from := time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)
	if got, want := r.Monitor.Cron.Next(from), time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Next(%v) = %v, want %v", from, got, want)
	}

	cfg.Check.Schedule = ""
	if r, err = cfg.Resolve(); err != nil || r.Monitor.Cron != nil {
		t.Fatalf("empty schedule: Cron=%v err=%v", r.Monitor.Cron, err)
	}
}

func TestResolveRatePerMin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		notify string
		want   int
	}{
		{"omitted uses default", `{"webhook_url":"x"}`, notify.DefaultRatePerMin},
		{"zero disables", `{"webhook_url":"x","rate_per_min":0}`, 0},
		{"explicit", `{"webhook_url":"x","rate_per_min":5}`, 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode("c.json", []byte(`{"products":[{"url":"u"}],"notify":`+tt.notify+`}`))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			r, err := cfg.Resolve()
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if r.Notify.RatePerMin != tt.want {
				t.Fatalf("RatePerMin = %d, want %d", r.Notify.RatePerMin, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STOCKWATCH_WEBHOOK_URL", "https://env.example/hook")
	t.Setenv("STOCKWATCH_LOG_LEVEL", "warn")
	t.Setenv("STOCKWATCH_TELEGRAM_CHAT_ID", "42")

	cfg := &Config{}
	cfg.Notify.WebhookURL = "https://file.example/hook"
	cfg.Logging.Level = "info"
	if err := ApplyEnv(EnvPrefix, cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Notify.WebhookURL != "https://env.example/hook" {
		t.Fatalf("WebhookURL = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Logging.Level != "warn" || cfg.Notify.Telegram.ChatID != 42 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplyEnvRejectsBadValue(t *testing.T) {
	t.Setenv("STOCKWATCH_TELEGRAM_CHAT_ID", "not-a-number")
	if err := ApplyEnv(EnvPrefix, &Config{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv missing file = %v, want nil", err)
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)

	m := NewManager(path)
	m.SetEnvPrefix("")
	m.SetValidator(func(_ context.Context, cfg *Config) error { return cfg.Validate() })
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	published, err := m.Reload(context.Background())
	if err != nil || published {
		t.Fatalf("unchanged Reload = %v, %v; want false, nil", published, err)
	}

	writeFile(t, dir, "config.yaml", strings.Replace(sampleYAML, "level: debug", "level: info", 1))
	published, err = m.Reload(context.Background())
	if err != nil || !published {
		t.Fatalf("Reload = %v, %v; want true, nil", published, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "info" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("no config published")
	}

	writeFile(t, dir, "config.yaml", `{"products":[]}`)
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
	if m.Get().Logging.Level != "info" {
		t.Fatal("rejected config was committed")
	}
}

func TestManagerPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("slow subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed by Unsubscribe")
	}
}

func TestManagerWatchPublishesChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)
	m := NewManager(path)
	m.SetEnvPrefix("")
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	body := strings.Replace(sampleYAML, "level: debug", "level: error", 1)
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "error" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// Rewrite until the watcher has picked the directory up.
			writeFile(t, dir, "config.yaml", body)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, _ := Decode("c.yaml", []byte(sampleYAML))
	newCfg, _ := Decode("c.yaml", []byte(sampleYAML))
	newCfg.Notify.WebhookURL = "https://hook.example/other"
	newCfg.Status.Enabled = true

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "notify,status" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "status" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 5 * time.Second, false},
		{"0s", 0, false},
		{"90s", 90 * time.Second, false},
		{"-1s", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x", tt.raw, 5*time.Second)
		if (err != nil) != tt.wantErr || (!tt.wantErr && got != tt.want) {
			t.Fatalf("ParseDurationOrDefault(%q) = %v, %v; want %v, err=%v", tt.raw, got, err, tt.want, tt.wantErr)
		}
	}
}
