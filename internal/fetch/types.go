package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout        = 15 * time.Second
	DefaultReferrer       = "https://www.dji.com/"
	DefaultAcceptLanguage = "zh-CN,zh;q=0.9"
	DefaultTargetClass    = "info-section"
)

// PageFetcher returns the candidate stock-status text fragments of a page.
//
// An empty, nil-error result means the page loaded but no fragment matched
// the configured selector.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

// Config controls the request shape and the fragment selector.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	Referrer       string
	AcceptLanguage string

	// Selector is a CSS selector; when empty it is derived from TargetClass
	// as "section.<class> p".
	Selector    string
	TargetClass string

	// InsecureSkipVerify disables TLS certificate checks. Off unless set explicitly.
	InsecureSkipVerify bool
	RespectRobots      bool
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TargetClass == "" {
		c.TargetClass = DefaultTargetClass
	}
	if c.Selector == "" {
		c.Selector = SelectorForClass(c.TargetClass)
	}
	return c
}

// SelectorForClass builds the default status-region selector.
func SelectorForClass(class string) string {
	return "section." + class + " p"
}

// FetchError reports a failed page load for a single product.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying later may succeed.
func (e *FetchError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
