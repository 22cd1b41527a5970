package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Counters are created lazily; labels are part of the metric name.

func RecordRequestCreated(source string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`booking_requests_created_total{source=%q}`, source)).Inc()
}

// RecordFormSubmission counts form webhook calls by result (ok, forbidden, invalid, error)
func RecordFormSubmission(result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`booking_form_submissions_total{result=%q}`, result)).Inc()
}

// RecordTransition counts lifecycle actions by outcome kind
func RecordTransition(action, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`booking_transitions_total{action=%q,outcome=%q}`, action, outcome)).Inc()
}

// RecordDelivery counts outbound Telegram calls (send, edit, tell) by status
func RecordDelivery(kind string, ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`booking_deliveries_total{kind=%q,status=%q}`, kind, status)).Inc()
}

// DeliveryCount returns the current value of a delivery counter
func DeliveryCount(kind string, ok bool) uint64 {
	status := "sent"
	if !ok {
		status = "failed"
	}
	return metrics.GetOrCreateCounter(fmt.Sprintf(`booking_deliveries_total{kind=%q,status=%q}`, kind, status)).Get()
}

// WritePrometheus writes all metrics in Prometheus text format
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
