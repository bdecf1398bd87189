package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

const (
	// DefaultSchedule runs the export pass weekly.
	DefaultSchedule = "@weekly"
	// DefaultLookback bounds the export query to the last 7 days.
	DefaultLookback = 7 * 24 * time.Hour
)

// Exporter periodically forwards recent feedback to an external
// training/reporting sink.
type Exporter struct {
	store    domain.FeedbackStore
	sink     domain.FeedbackSink
	lookback time.Duration
	now      func() time.Time
}

func NewExporter(store domain.FeedbackStore, sink domain.FeedbackSink, lookback time.Duration) *Exporter {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Exporter{
		store:    store,
		sink:     sink,
		lookback: lookback,
		now:      time.Now,
	}
}

// Run performs one export pass. No matching feedback is a no-op, not an
// error: the sink is not called at all.
func (e *Exporter) Run(ctx context.Context) error {
	since := e.now().Add(-e.lookback)

	records, err := e.store.QueryFeedbackSince(ctx, since)
	if err != nil {
		return fmt.Errorf("query feedback: %w", err)
	}

	log := observability.LoggerFromContext(ctx)
	if len(records) == 0 {
		log.Debug("no new feedback to export")
		return nil
	}

	if err := e.sink.Export(ctx, records); err != nil {
		return fmt.Errorf("export feedback: %w", err)
	}
	log.Info("feedback exported", "count", len(records))
	return nil
}

// Schedule registers the recurring export pass on the given cron runner.
func (e *Exporter) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	return c.AddFunc(spec, func() {
		if err := e.Run(context.Background()); err != nil {
			observability.Logger().Error("feedback export failed", "error", err)
		}
	})
}
