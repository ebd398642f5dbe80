package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"stockwatch/internal/monitor"
	logx "stockwatch/pkg/logx"
)

// sdNotifyStatus is the sd_notify STATUS= prefix (go-systemd does not export one).
const sdNotifyStatus = "STATUS="

// sdNotify is swapped in tests.
var sdNotify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }

func (a *App) notifySystemd(state string) {
	sent, err := sdNotify(state)
	if err != nil {
		a.log.Debug("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Trace("systemd notified", logx.String("state", state))
	}
}

// cycleStatus reports the last cycle in `systemctl status`.
func (a *App) cycleStatus(res monitor.CycleResult, err error) {
	if err != nil {
		a.notifySystemd(sdNotifyStatus + "last cycle failed: " + err.Error())
		return
	}
	a.notifySystemd(fmt.Sprintf("%scycle %d: %d checked, %d available, %d failed",
		sdNotifyStatus, res.Cycle, len(res.Outcomes), len(res.Available), res.Failed()))
}

// watchdog pings systemd at half the configured WatchdogSec while the
// scheduler loop is alive.
func (a *App) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.sched.Status().Running {
				a.notifySystemd(daemon.SdNotifyWatchdog)
			}
		}
	}
}
