package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRatePerMin is the delivery cap used when none is configured.
const DefaultRatePerMin = 20

// Limited caps the delivery rate of a Notifier. Deliver waits for a token
// and gives up when ctx ends first.
type Limited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewLimited allows perMinute deliveries per minute with an equal burst.
// perMinute <= 0 disables limiting.
func NewLimited(next Notifier, perMinute int) Notifier {
	if perMinute <= 0 {
		return next
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

func (l *Limited) Deliver(ctx context.Context, msg Message) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Driver: "ratelimit", Err: err}
	}
	return l.next.Deliver(ctx, msg)
}
