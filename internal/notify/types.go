package notify

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoDestination = errors.New("notify: destination is not configured")
	ErrUnknownDriver = errors.New("notify: unknown driver")
)

// Message is one aggregated notification. Body is the Markdown rendering;
// Header and Items carry the same content unformatted for drivers that need
// their own markup.
type Message struct {
	Title  string
	Body   string
	Header string
	Items  []Item
}

// Item is one product line of a message.
type Item struct {
	Name     string
	URL      string
	LinkText string
}

// Notifier delivers a message to a fixed destination.
type Notifier interface {
	Deliver(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }

// DeliveryError reports a failed delivery attempt.
type DeliveryError struct {
	Driver     string
	StatusCode int // HTTP status, 0 when the request never completed
	Code       int // provider error code (e.g. wecom errcode)
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s delivery failed: code %d: %v", e.Driver, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s delivery failed: http %d: %v", e.Driver, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s delivery failed: %v", e.Driver, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }
