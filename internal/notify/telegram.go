package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "stockwatch/pkg/logx"
)

const telegramTextLimit = 4000

// TelegramConfig targets a chat (and optionally a forum thread).
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	Timeout  time.Duration

	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
}

// Telegram sends messages through the Bot API. The bot never polls for updates.
type Telegram struct {
	bot *tele.Bot
	cfg TelegramConfig
	log logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, ErrNoDestination
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, cfg: cfg, log: log}, nil
}

// TelegramText renders a message in Telegram HTML mode. Every caller-supplied
// string is escaped; messages without items fall back to the escaped Body.
func TelegramText(msg Message) string {
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString("<b>" + html.EscapeString(msg.Title) + "</b>\n\n")
	}
	if len(msg.Items) == 0 {
		b.WriteString(html.EscapeString(msg.Body))
		return strings.TrimSpace(b.String())
	}
	if msg.Header != "" {
		b.WriteString(html.EscapeString(msg.Header) + "\n\n")
	}
	for _, it := range msg.Items {
		link := it.LinkText
		if link == "" {
			link = it.URL
		}
		fmt.Fprintf(&b, "- %s  <a href=\"%s\">%s</a>\n\n",
			html.EscapeString(it.Name), html.EscapeString(it.URL), html.EscapeString(link))
	}
	return strings.TrimSpace(b.String())
}

func (t *Telegram) Deliver(ctx context.Context, msg Message) error {
	chat := &tele.Chat{ID: t.cfg.ChatID}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              t.cfg.ThreadID,
	}

	for _, chunk := range splitText(TelegramText(msg), telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return &DeliveryError{Driver: "telegram", Err: err}
		}
		if _, err := t.bot.Send(chat, chunk, opts); err != nil {
			de := &DeliveryError{Driver: "telegram", Err: err}
			var te *tele.Error
			if errors.As(err, &te) {
				de.Code = te.Code
			}
			return de
		}
	}
	t.log.Debug("telegram message delivered", logx.Int64("chat_id", t.cfg.ChatID))
	return nil
}

// splitText splits s into chunks of at most limit runes, preferring newline
// boundaries that leave chunks at least a third of the limit long.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
