package monitor

import (
	"fmt"
	"strings"

	"stockwatch/internal/notify"
	"stockwatch/internal/product"
)

// BuildMessage renders one aggregated notification listing ps in order.
func BuildMessage(title, header, linkText string, ps []product.Descriptor) notify.Message {
	var b strings.Builder
	items := make([]notify.Item, 0, len(ps))
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	for _, p := range ps {
		fmt.Fprintf(&b, "- %s  [%s](%s)\n\n", p.DisplayName(), linkText, p.URL)
		items = append(items, notify.Item{Name: p.DisplayName(), URL: p.URL, LinkText: linkText})
	}
	return notify.Message{
		Title:  title,
		Body:   strings.TrimSpace(b.String()),
		Header: header,
		Items:  items,
	}
}
