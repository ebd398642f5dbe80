package app

import (
	"context"
	"time"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/monitor"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

const journalWriteTimeout = 5 * time.Second

// journal turns monitor events into storage records. Write failures are
// logged and otherwise ignored.
type journal struct {
	store  storage.Store
	driver func() string
	log    logx.Logger
}

func (j *journal) handle(ctx context.Context, e eventbus.Event) {
	wctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	var err error
	switch v := e.Data.(type) {
	case monitor.ProductOutcome:
		err = j.store.AppendCheck(wctx, checkRecord(v))
	case monitor.NotifyResult:
		err = j.store.AppendNotification(wctx, notificationRecord(v, j.driver()))
	default:
		return
	}
	if err != nil && ctx.Err() == nil {
		j.log.Warn("journal write failed", logx.String("event", e.Type), logx.Err(err))
	}
}

func checkRecord(o monitor.ProductOutcome) storage.CheckRecord {
	r := storage.CheckRecord{
		At:        o.At,
		Cycle:     o.Cycle,
		Name:      o.Product.Name,
		URL:       o.Product.URL,
		Status:    o.Status.String(),
		Fragments: o.Fragments,
		TookMS:    o.Took.Milliseconds(),
	}
	if o.Err != nil {
		r.Status = "error"
		r.Error = o.Err.Error()
	}
	return r
}

func notificationRecord(n monitor.NotifyResult, driver string) storage.NotificationRecord {
	r := storage.NotificationRecord{
		At:       n.At,
		Cycle:    n.Cycle,
		Driver:   driver,
		Products: make([]string, 0, len(n.Products)),
		OK:       n.Err == nil,
	}
	for _, p := range n.Products {
		r.Products = append(r.Products, p.URL)
	}
	if n.Err != nil {
		r.Error = n.Err.Error()
	}
	return r
}
