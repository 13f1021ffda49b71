package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/benestar-app/benestar/internal/metrics"
)

const (
	notifyQueueSize = 256
	notifyTimeout   = 5 * time.Second
)

// notify queues ev without blocking. A full queue drops the event.
func (g *Gate) notify(ev Event) {
	if g.events == nil {
		return
	}
	select {
	case g.events <- ev:
	default:
		metrics.QuotaEventsDroppedTotal.WithLabelValues(string(ev.Kind)).Inc()
		slog.Warn("quota: denial event queue full, dropping event", "user_id", ev.UserID, "kind", ev.Kind)
	}
}

// RunNotifier delivers queued denial events to the notifier until ctx is
// cancelled. Each delivery is bounded by its own timeout. It returns
// immediately when the gate has no notifier.
func (g *Gate) RunNotifier(ctx context.Context) {
	if g.events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-g.events:
			g.deliver(ctx, ev)
		}
	}
}

func (g *Gate) deliver(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := g.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("quota: publishing denial event", "error", err, "user_id", ev.UserID, "kind", ev.Kind)
	}
}
