// Package fetch loads product pages and extracts the stock-status fragments.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strings"

	"github.com/gocolly/colly/v2"

	logx "stockwatch/pkg/logx"
)

// Colly is a PageFetcher backed by a fresh colly collector per request.
// It is safe for concurrent use.
type Colly struct {
	cfg       Config
	log       logx.Logger
	transport http.RoundTripper
}

func NewColly(cfg Config, log logx.Logger) *Colly {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		log.Warn("TLS certificate verification disabled for page fetches")
	}
	return &Colly{cfg: cfg, log: log, transport: base}
}

func (f *Colly) Config() Config { return f.cfg }

func (f *Colly) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(ctxTransport{ctx: ctx, base: f.transport})

	c.OnRequest(func(r *colly.Request) {
		if f.cfg.Referrer != "" {
			r.Headers.Set("Referer", f.cfg.Referrer)
		}
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
	})
	return c
}

func (f *Colly) Fetch(ctx context.Context, url string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	c := f.newCollector(ctx)

	fragments := []string{}
	c.OnHTML(f.cfg.Selector, func(e *colly.HTMLElement) {
		fragments = append(fragments, strings.TrimSpace(e.Text))
	})

	status := 0
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = ctxErr
		}
		return nil, &FetchError{URL: url, StatusCode: status, Err: err}
	}

	f.log.Trace("page fetched", logx.String("url", url), logx.Int("fragments", len(fragments)))
	return fragments, nil
}

// ctxTransport binds every request of one fetch to the caller's context.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
