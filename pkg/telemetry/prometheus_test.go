package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewProm(reg)

	sink.MessageReceived("telegram")
	sink.MessageReceived("telegram")
	sink.StoryEntered("greeting")
	sink.StepExecuted("greeting", 0)
	sink.StoryCompleted("greeting")
	sink.Unhandled("telegram")
	sink.ProcessingFailed("discord")

	if got := testutil.ToFloat64(sink.messagesReceived.WithLabelValues("telegram")); got != 2 {
		t.Fatalf("messages received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(sink.storiesEntered.WithLabelValues("greeting")); got != 1 {
		t.Fatalf("stories entered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.stepsExecuted.WithLabelValues("greeting", "0")); got != 1 {
		t.Fatalf("steps executed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.storiesCompleted.WithLabelValues("greeting")); got != 1 {
		t.Fatalf("stories completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.unhandled.WithLabelValues("telegram")); got != 1 {
		t.Fatalf("unhandled = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sink.failures.WithLabelValues("discord")); got != 1 {
		t.Fatalf("failures = %v, want 1", got)
	}
}
