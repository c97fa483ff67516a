package runtime

import (
	"context"
	"time"

	configpkg "github.com/drblury/omsn/internal/runtime/config"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
)

// Reporter periodically logs the accounting state. It never mutates it.
type Reporter struct {
	Accounting *TrafficAccounting
	Logger     loggingpkg.ServiceLogger
	Interval   time.Duration
}

// Run reports every Interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = configpkg.DefaultStatsInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one aggregate line and one line per sender.
func (r *Reporter) Report() {
	snap := r.Accounting.Snapshot()

	r.Logger.Info("Traffic stats", loggingpkg.LogFields{
		"uplink_datagrams":   snap.UplinkDatagrams,
		"downlink_datagrams": snap.DownlinkDatagrams,
		"uplink_errors":      snap.UplinkErrors,
		"downlink_errors":    snap.DownlinkErrors,
		"inbound_dropped":    snap.InboundDropped,
		"senders":            len(snap.Senders),
		"goroutines":         snap.Resources.Goroutines,
		"heap_bytes":         snap.Resources.HeapBytes,
		"cpu_percent":        snap.Resources.CPUPercent,
	})
	for _, sc := range snap.Senders {
		r.Logger.Info("Per-sender stats", loggingpkg.LogFields{
			"site_id":        sc.SiteID,
			"application_id": sc.ApplicationID,
			"datagrams":      sc.Datagrams,
		})
	}
}
