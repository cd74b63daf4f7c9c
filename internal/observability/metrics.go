package observability

import (
	"fmt"
	"time"
)

// GateRecord is the most recent gate evaluation seen in the event log.
type GateRecord struct {
	TaskID int       `json:"task_id"`
	State  string    `json:"state"`
	Time   time.Time `json:"time"`
}

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	CyclesStarted    int            `json:"cycles_started"`
	CyclesCompleted  int            `json:"cycles_completed"`
	CyclesFailed     int            `json:"cycles_failed"`
	FailuresByKind   map[string]int `json:"failures_by_kind"`
	CompliancePassed int            `json:"compliance_passed"`
	ComplianceFailed int            `json:"compliance_failed"`
	GateOutcomes     map[string]int `json:"gate_outcomes"`
	LastGate         *GateRecord    `json:"last_gate,omitempty"`
	EventCount       int            `json:"event_count"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		FailuresByKind: make(map[string]int),
		GateOutcomes:   make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case EventCycleStarted:
			m.CyclesStarted++
		case EventCycleCompleted:
			m.CyclesCompleted++
		case EventCycleFailed:
			m.CyclesFailed++
			if kind, ok := event.Data["kind"].(string); ok {
				m.FailuresByKind[kind]++
			}
		case EventCompliancePassed:
			m.CompliancePassed++
		case EventComplianceFailed:
			m.ComplianceFailed++
		case EventGateEvaluated:
			state, _ := event.Data["state"].(string)
			m.GateOutcomes[state]++
			m.LastGate = &GateRecord{TaskID: event.TaskID, State: state, Time: event.Time}
		}
	}

	return m, nil
}
