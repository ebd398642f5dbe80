package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. STOCKWATCH_WEBHOOK_URL.
const EnvPrefix = "STOCKWATCH"

// envOverrides lists the values that may come from the environment. Empty
// values leave the file setting alone. Secrets belong here rather than in
// the config file.
type envOverrides struct {
	NotifyDriver   string `split_words:"true"`
	WebhookURL     string `split_words:"true"`
	TelegramToken  string `split_words:"true"`
	TelegramChatID int64  `split_words:"true"`
	LogLevel       string `split_words:"true"`
	StorageDriver  string `split_words:"true"`
	StorageDSN     string `split_words:"true"`
	StatusAddr     string `split_words:"true"`
	PprofToken     string `split_words:"true"`
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays prefixed environment variables onto cfg.
func ApplyEnv(prefix string, cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process(prefix, &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if o.NotifyDriver != "" {
		cfg.Notify.Driver = o.NotifyDriver
	}
	if o.WebhookURL != "" {
		cfg.Notify.WebhookURL = o.WebhookURL
	}
	if o.TelegramToken != "" {
		cfg.Notify.Telegram.Token = o.TelegramToken
	}
	if o.TelegramChatID != 0 {
		cfg.Notify.Telegram.ChatID = o.TelegramChatID
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.StorageDriver != "" {
		cfg.Storage.Driver = o.StorageDriver
	}
	if o.StorageDSN != "" {
		cfg.Storage.DSN = o.StorageDSN
	}
	if o.StatusAddr != "" {
		cfg.Status.Addr = o.StatusAddr
	}
	if o.PprofToken != "" {
		cfg.Status.PprofToken = o.PprofToken
	}
	return nil
}
