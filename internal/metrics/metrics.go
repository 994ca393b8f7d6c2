package metrics

import (
	"time"

	apperrors "ticketgate/internal/errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"result"},
	)

	checkins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_checkins_total",
			Help: "Scan attempts by outcome",
		},
		[]string{"result"},
	)

	cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_cancellations_total",
			Help: "Owner cancellations by outcome",
		},
		[]string{"result"},
	)

	checkinDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_checkin_duration_seconds",
			Help:    "Latency of a scan from credential verification to commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	counterDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_checked_in_drift",
			Help: "checked_in counter minus checked-in ticket rows, per drifting event",
		},
		[]string{"event_id"},
	)
)

// Result maps an operation error onto a bounded label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := apperrors.As(err); ok {
		return e.Code
	}
	return "error"
}

func RecordBooking(err error) {
	bookings.WithLabelValues(Result(err)).Inc()
}

func RecordCheckin(err error, started time.Time) {
	checkins.WithLabelValues(Result(err)).Inc()
	if err == nil {
		checkinDuration.Observe(time.Since(started).Seconds())
	}
}

func RecordCancellation(err error) {
	cancellations.WithLabelValues(Result(err)).Inc()
}

// SetCounterDrift replaces the drift gauge with the latest reconciliation
// pass. Events that stopped drifting disappear from the series.
func SetCounterDrift(drift map[uuid.UUID]int) {
	counterDrift.Reset()
	for eventID, delta := range drift {
		counterDrift.WithLabelValues(eventID.String()).Set(float64(delta))
	}
}
