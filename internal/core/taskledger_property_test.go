package core

import (
	"fmt"
	"testing"

	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
	"pgregory.net/rapid"
)

// A header rendered by FormatTaskHeader parses back to the same task.
func TestProperty_TaskHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		task := models.Task{
			ID:    rapid.IntRange(1, 9999).Draw(rt, "id"),
			Title: rapid.StringMatching(`[A-Za-z][A-Za-z0-9 ]{0,30}[A-Za-z0-9]`).Draw(rt, "title"),
			Status: rapid.SampledFrom([]models.TaskStatus{
				models.StatusPending, models.StatusComplete,
			}).Draw(rt, "status"),
		}
		got, ok := ParseTaskHeader(FormatTaskHeader(task))
		if !ok {
			rt.Fatalf("header %q did not parse", FormatTaskHeader(task))
		}
		if got != task {
			rt.Fatalf("round trip mismatch: got %+v, want %+v", got, task)
		}
	})
}

// Marking tasks in any order leaves exactly the marked ones complete, each
// marker written once.
func TestProperty_MarkCompleteIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		titles := make([]string, n)
		for i := range titles {
			titles[i] = fmt.Sprintf("Step %d", i+1)
		}
		env := newTestEnv(t, titles)

		marks := rapid.SliceOfN(rapid.IntRange(1, n), 0, 2*n).Draw(rt, "marks")
		want := make(map[int]bool)
		for _, id := range marks {
			changed, err := env.ledger.MarkComplete(id)
			if err != nil {
				rt.Fatalf("MarkComplete(%d): %v", id, err)
			}
			if changed == want[id] {
				rt.Fatalf("MarkComplete(%d) changed=%v but already marked=%v", id, changed, want[id])
			}
			want[id] = true
		}

		tasks, err := env.ledger.Tasks()
		if err != nil {
			rt.Fatal(err)
		}
		if len(tasks) != n {
			rt.Fatalf("expected %d tasks, got %d", n, len(tasks))
		}
		for _, task := range tasks {
			if task.IsComplete() != want[task.ID] {
				rt.Errorf("task %d complete=%v, want %v", task.ID, task.IsComplete(), want[task.ID])
			}
			if task.Title != titles[task.ID-1] {
				rt.Errorf("task %d title %q, want %q", task.ID, task.Title, titles[task.ID-1])
			}
		}
	})
}
