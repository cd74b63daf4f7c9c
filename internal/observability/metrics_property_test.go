package observability

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// For any sequence of cycle events, the calculated counters match the number
// of events of each type written to the log.
func TestProperty_MetricsCountersMatchEvents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		el, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
		if err != nil {
			t.Fatalf("creating event log: %v", err)
		}
		defer el.Close()

		types := []string{EventCycleStarted, EventCycleCompleted, EventCycleFailed, EventCompliancePassed, EventComplianceFailed}
		counts := make(map[string]int)
		base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

		n := rapid.IntRange(0, 30).Draw(rt, "n")
		for i := 0; i < n; i++ {
			typ := rapid.SampledFrom(types).Draw(rt, fmt.Sprintf("type_%d", i))
			counts[typ]++
			if err := el.Write(Event{Time: base.Add(time.Duration(i) * time.Second), Level: "INFO", Type: typ}); err != nil {
				t.Fatalf("writing event: %v", err)
			}
		}

		m, err := NewMetricsCalculator(el).Calculate(base)
		if err != nil {
			t.Fatalf("calculating metrics: %v", err)
		}
		if m.CyclesStarted != counts[EventCycleStarted] {
			rt.Errorf("CyclesStarted = %d, want %d", m.CyclesStarted, counts[EventCycleStarted])
		}
		if m.CyclesCompleted != counts[EventCycleCompleted] {
			rt.Errorf("CyclesCompleted = %d, want %d", m.CyclesCompleted, counts[EventCycleCompleted])
		}
		if m.CyclesFailed != counts[EventCycleFailed] {
			rt.Errorf("CyclesFailed = %d, want %d", m.CyclesFailed, counts[EventCycleFailed])
		}
		if m.CompliancePassed != counts[EventCompliancePassed] {
			rt.Errorf("CompliancePassed = %d, want %d", m.CompliancePassed, counts[EventCompliancePassed])
		}
		if m.ComplianceFailed != counts[EventComplianceFailed] {
			rt.Errorf("ComplianceFailed = %d, want %d", m.ComplianceFailed, counts[EventComplianceFailed])
		}
		if m.EventCount != n {
			rt.Errorf("EventCount = %d, want %d", m.EventCount, n)
		}
	})
}
