package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "stockwatch/pkg/logx"
)

const DefaultTimeout = 10 * time.Second

// WeCom posts markdown messages to a WeCom (WeChat Work) group bot webhook.
type WeCom struct {
	url  string
	http *http.Client
	log  logx.Logger
}

type wecomPayload struct {
	MsgType  string        `json:"msgtype"`
	Markdown wecomMarkdown `json:"markdown"`
}

type wecomMarkdown struct {
	Content string `json:"content"`
}

type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewWeCom(webhookURL string, timeout time.Duration, log logx.Logger) (*WeCom, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, ErrNoDestination
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &WeCom{url: webhookURL, http: &http.Client{Timeout: timeout}, log: log}, nil
}

// WeComContent renders the markdown content field: a level-2 heading with
// the title followed by the body.
func WeComContent(msg Message) string {
	return "## " + msg.Title + "\n" + msg.Body
}

func (w *WeCom) Deliver(ctx context.Context, msg Message) error {
	b, err := json.Marshal(wecomPayload{
		MsgType:  "markdown",
		Markdown: wecomMarkdown{Content: WeComContent(msg)},
	})
	if err != nil {
		return &DeliveryError{Driver: "wecom", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return &DeliveryError{Driver: "wecom", Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := w.http.Do(req)
	if err != nil {
		return &DeliveryError{Driver: "wecom", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{
			Driver:     "wecom",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body))),
		}
	}

	// The webhook answers 200 even for rejected messages; errcode carries the verdict.
	var wr wecomResponse
	if err := json.Unmarshal(body, &wr); err == nil && wr.ErrCode != 0 {
		return &DeliveryError{
			Driver:     "wecom",
			StatusCode: resp.StatusCode,
			Code:       wr.ErrCode,
			Err:        errors.New(wr.ErrMsg),
		}
	}

	w.log.Debug("wecom message delivered", logx.Int("bytes", len(b)))
	return nil
}
