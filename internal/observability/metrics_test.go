package observability

import (
	"testing"
	"time"
)

func TestMetricsCalculator_Calculate(t *testing.T) {
	log, _ := newTestEventLog(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Time: base, Type: EventCycleStarted, TaskID: 1},
		{Time: base.Add(1 * time.Second), Type: EventComplianceFailed, TaskID: 1},
		{Time: base.Add(2 * time.Second), Type: EventCycleFailed, TaskID: 1, Data: map[string]any{"kind": "compliance"}},
		{Time: base.Add(3 * time.Second), Type: EventCycleStarted, TaskID: 1},
		{Time: base.Add(4 * time.Second), Type: EventCompliancePassed, TaskID: 1},
		{Time: base.Add(5 * time.Second), Type: EventGateEvaluated, TaskID: 1, Data: map[string]any{"state": "READY"}},
		{Time: base.Add(6 * time.Second), Type: EventCycleCompleted, TaskID: 1},
		{Time: base.Add(7 * time.Second), Type: EventGateEvaluated, TaskID: 2, Data: map[string]any{"state": "BLOCKED"}},
	}
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}

	m, err := NewMetricsCalculator(log).Calculate(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}

	if m.CyclesStarted != 2 || m.CyclesCompleted != 1 || m.CyclesFailed != 1 {
		t.Errorf("unexpected cycle counts: %+v", m)
	}
	if m.FailuresByKind["compliance"] != 1 {
		t.Errorf("expected 1 compliance failure kind, got %v", m.FailuresByKind)
	}
	if m.CompliancePassed != 1 || m.ComplianceFailed != 1 {
		t.Errorf("unexpected compliance counts: passed=%d failed=%d", m.CompliancePassed, m.ComplianceFailed)
	}
	if m.GateOutcomes["READY"] != 1 || m.GateOutcomes["BLOCKED"] != 1 {
		t.Errorf("unexpected gate outcomes: %v", m.GateOutcomes)
	}
	if m.LastGate == nil || m.LastGate.TaskID != 2 || m.LastGate.State != "BLOCKED" {
		t.Errorf("unexpected last gate: %+v", m.LastGate)
	}
	if m.EventCount != len(events) {
		t.Errorf("expected %d events, got %d", len(events), m.EventCount)
	}
	if m.OldestEvent == nil || !m.OldestEvent.Equal(base) {
		t.Errorf("unexpected oldest event: %v", m.OldestEvent)
	}
	if m.NewestEvent == nil || !m.NewestEvent.Equal(base.Add(7*time.Second)) {
		t.Errorf("unexpected newest event: %v", m.NewestEvent)
	}
}

func TestMetricsCalculator_EmptyLog(t *testing.T) {
	log, _ := newTestEventLog(t)

	m, err := NewMetricsCalculator(log).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("calculating metrics: %v", err)
	}
	if m.EventCount != 0 || m.LastGate != nil || m.OldestEvent != nil {
		t.Errorf("expected empty metrics, got %+v", m)
	}
}
