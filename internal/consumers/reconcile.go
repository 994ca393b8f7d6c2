package consumers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ticketgate/internal/metrics"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

const DefaultReconcileInterval = 5 * time.Minute

// DriftSource lists events whose checked_in counter disagrees with their
// checked-in tickets.
type DriftSource interface {
	CheckedInDrift(ctx context.Context) ([]models.CounterDrift, error)
}

// CounterReconciliationJob periodically looks for counter drift. It only
// reports: the counter is never rewritten here.
type CounterReconciliationJob struct {
	source   DriftSource
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewCounterReconciliationJob(source DriftSource, interval time.Duration) *CounterReconciliationJob {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &CounterReconciliationJob{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until Stop or
// ctx cancellation.
func (j *CounterReconciliationJob) Start(ctx context.Context) {
	slog.Info("Starting counter reconciliation job", "check_interval", j.interval.String())

	j.ticker = time.NewTicker(j.interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.RunOnce(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("Counter reconciliation job stopped")
				return
			case <-j.done:
				slog.Info("Counter reconciliation job stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background job
func (j *CounterReconciliationJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	select {
	case <-j.done:
	default:
		close(j.done)
	}
	j.wg.Wait()
}

// RunOnce performs a single reconciliation pass and exports the result.
func (j *CounterReconciliationJob) RunOnce(ctx context.Context) []models.CounterDrift {
	drift, err := j.source.CheckedInDrift(ctx)
	if err != nil {
		slog.Error("Failed to check counter drift", "error", err)
		return nil
	}

	byEvent := make(map[uuid.UUID]int, len(drift))
	for _, d := range drift {
		byEvent[d.EventID] = d.CheckedIn - d.CheckedInTickets
		slog.Warn("Checked-in counter drift detected",
			"event_id", d.EventID,
			"checked_in", d.CheckedIn,
			"checked_in_tickets", d.CheckedInTickets)
	}
	metrics.SetCounterDrift(byEvent)

	if len(drift) == 0 {
		slog.Debug("No counter drift found")
	}
	return drift
}
