package metrics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordDelivery(t *testing.T) {
	before := DeliveryCount("edit", false)
	RecordDelivery("edit", false)
	RecordDelivery("edit", false)
	assert.Equal(t, before+2, DeliveryCount("edit", false))
}

func TestWritePrometheus(t *testing.T) {
	RecordRequestCreated("form")
	RecordFormSubmission("forbidden")
	RecordTransition("claim", "success")

	var buf bytes.Buffer
	WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `booking_requests_created_total{source="form"}`)
	assert.Contains(t, out, `booking_form_submissions_total{result="forbidden"}`)
	assert.Contains(t, out, `booking_transitions_total{action="claim",outcome="success"}`)
}
