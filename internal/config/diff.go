package config

import (
	"reflect"
	"strings"

	logx "stockwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and log attributes
// describing the new values. Secrets (webhook URL, bot token, DSN) are only
// reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Products, newCfg.Products) {
		changed = append(changed, "products")
		attrs = append(attrs, logx.Int("products.count", len(newCfg.Products)))
	}
	if !reflect.DeepEqual(oldCfg.Check, newCfg.Check) {
		changed = append(changed, "check")
		if newCfg.Check.IntervalMin != nil {
			attrs = append(attrs, logx.Int("check.interval_min", *newCfg.Check.IntervalMin))
		}
		if newCfg.Check.IntervalMax != nil {
			attrs = append(attrs, logx.Int("check.interval_max", *newCfg.Check.IntervalMax))
		}
		if newCfg.Check.Schedule != "" {
			attrs = append(attrs, logx.String("check.schedule", newCfg.Check.Schedule))
		}
	}
	if oldCfg.Inspect != newCfg.Inspect {
		changed = append(changed, "inspect")
		attrs = append(attrs,
			logx.String("inspect.target_class", newCfg.Inspect.TargetClass),
			logx.String("inspect.selector", newCfg.Inspect.Selector),
		)
	}
	if oldCfg.Fetch != newCfg.Fetch {
		changed = append(changed, "fetch")
		attrs = append(attrs,
			logx.String("fetch.timeout", newCfg.Fetch.Timeout),
			logx.Bool("fetch.insecure_skip_verify", newCfg.Fetch.InsecureSkipVerify),
			logx.Bool("fetch.respect_robots", newCfg.Fetch.RespectRobots),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.driver", newCfg.Notify.Driver),
			logx.Bool("notify.webhook_set", strings.TrimSpace(newCfg.Notify.WebhookURL) != ""),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(newCfg.Notify.Telegram.Token) != ""),
		)
		if newCfg.Notify.RatePerMin != nil {
			attrs = append(attrs, logx.Int("notify.rate_per_min", *newCfg.Notify.RatePerMin))
		}
		if newCfg.Notify.CooldownMinutes != nil {
			attrs = append(attrs, logx.Int("notify.cooldown_minutes", *newCfg.Notify.CooldownMinutes))
		}
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
			logx.Bool("status.pprof_token_set", newCfg.Status.PprofToken != ""),
		)
	}
	return changed, attrs
}

// RestartRequired filters changed sections down to those that only take
// effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s == "storage" || s == "status" {
			out = append(out, s)
		}
	}
	return out
}
