package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prom exposes engine activity as Prometheus counters.
type Prom struct {
	messagesReceived *prometheus.CounterVec
	storiesEntered   *prometheus.CounterVec
	stepsExecuted    *prometheus.CounterVec
	storiesCompleted *prometheus.CounterVec
	unhandled        *prometheus.CounterVec
	failures         *prometheus.CounterVec
}

// NewProm registers the engine metrics with reg and returns the sink.
func NewProm(reg prometheus.Registerer) *Prom {
	factory := promauto.With(reg)

	return &Prom{
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_messages_received_total",
			Help: "Inbound envelopes entering the processor.",
		}, []string{"channel"}),
		storiesEntered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_stories_entered_total",
			Help: "Stories entered from idle sessions.",
		}, []string{"story"}),
		stepsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_steps_executed_total",
			Help: "Story steps executed without error.",
		}, []string{"story", "step"}),
		storiesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_stories_completed_total",
			Help: "Stories whose frame left the dialogue stack.",
		}, []string{"story"}),
		unhandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_unhandled_total",
			Help: "Idle-session envelopes no trigger matched.",
		}, []string{"channel"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_processing_failures_total",
			Help: "Envelopes that failed processing.",
		}, []string{"channel"}),
	}
}

func (p *Prom) MessageReceived(channel string) {
	p.messagesReceived.WithLabelValues(channel).Inc()
}

func (p *Prom) StoryEntered(storyID string) {
	p.storiesEntered.WithLabelValues(storyID).Inc()
}

func (p *Prom) StepExecuted(storyID string, stepIndex int) {
	p.stepsExecuted.WithLabelValues(storyID, strconv.Itoa(stepIndex)).Inc()
}

func (p *Prom) StoryCompleted(storyID string) {
	p.storiesCompleted.WithLabelValues(storyID).Inc()
}

func (p *Prom) Unhandled(channel string) {
	p.unhandled.WithLabelValues(channel).Inc()
}

func (p *Prom) ProcessingFailed(channel string) {
	p.failures.WithLabelValues(channel).Inc()
}
