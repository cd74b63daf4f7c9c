package markdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const progressFixture = `# Progress

## Task Progress
[None yet]

## Timeline
- Workflow initialized
`

func TestPatch_ReplacesPlaceholder(t *testing.T) {
	doc := Parse(progressFixture)

	got := doc.Patch("## Task Progress", "### Task 1: Setup\n- **Status:** COMPLETE")
	if got != PlacedPlaceholder {
		t.Fatalf("expected placeholder placement, got %s", got)
	}

	want := `# Progress

## Task Progress
### Task 1: Setup
- **Status:** COMPLETE

## Timeline
- Workflow initialized
`
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("patched document mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_AppendsAfterPriorContent(t *testing.T) {
	doc := Parse("## Task Progress\nSome prior content\n\n## Timeline\n- Workflow initialized\n")

	got := doc.Patch("## Task Progress", "New block")
	if got != PlacedBeforeNext {
		t.Fatalf("expected before-next placement, got %s", got)
	}

	want := "## Task Progress\nSome prior content\n\nNew block\n\n## Timeline\n- Workflow initialized\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("patched document mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_RepeatedCallsDuplicate(t *testing.T) {
	doc := Parse(progressFixture)

	doc.Patch("## Task Progress", "entry")
	if got := doc.Patch("## Task Progress", "entry"); got != PlacedBeforeNext {
		t.Fatalf("second patch should append, got %s", got)
	}
	if n := strings.Count(doc.String(), "entry"); n != 2 {
		t.Fatalf("expected 2 copies of the block, got %d", n)
	}
}

func TestPatch_BracketedContentIsNotPlaceholder(t *testing.T) {
	doc := Parse(progressFixture)

	doc.Patch("## Task Progress", "### Task 1: Setup\nBuilt parser.\n[See README]")
	if got := doc.Patch("## Task Progress", "### Task 2: Auth"); got != PlacedBeforeNext {
		t.Fatalf("second patch should go before the next header, got %s", got)
	}

	want := `# Progress

## Task Progress
### Task 1: Setup
Built parser.
[See README]

### Task 2: Auth

## Timeline
- Workflow initialized
`
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("patched document mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_OnlyPlaceholdersReplacesFirst(t *testing.T) {
	doc := Parse("## Notes\n[None]\n\n[Add notes here]\n")

	if got := doc.Patch("## Notes", "note"); got != PlacedPlaceholder {
		t.Fatalf("expected placeholder placement, got %s", got)
	}
	if diff := cmp.Diff("## Notes\nnote\n\n[Add notes here]\n", doc.String()); diff != "" {
		t.Errorf("patched document mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_LastSectionWithoutPlaceholder(t *testing.T) {
	doc := Parse("## Timeline\n- Workflow initialized\n")

	if got := doc.Patch("Timeline", "- later"); got != PlacedBeforeNext {
		t.Fatalf("expected before-next placement, got %s", got)
	}
	want := "## Timeline\n- Workflow initialized\n\n- later\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_MissingSectionAppendsAtEOF(t *testing.T) {
	doc := Parse("## Other\ncontent\n")

	if got := doc.Patch("## Task Progress", "orphan block"); got != PlacedAppended {
		t.Fatalf("expected appended placement, got %s", got)
	}
	want := "## Other\ncontent\n\norphan block\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPatch_EmptyDocument(t *testing.T) {
	doc := Parse("")
	doc.Patch("## Anything", "block")
	if doc.String() != "\nblock\n" {
		t.Fatalf("unexpected output %q", doc.String())
	}
}

func TestPatch_ThirdLevelHeadersStayInBody(t *testing.T) {
	doc := Parse("## Exported Components\n### Agent 1 Exports\n- a\n\n## Integration Points\n[None]\n")

	if got := doc.Patch("## Exported Components", "### Agent 2 Exports\n- b"); got != PlacedBeforeNext {
		t.Fatalf("expected before-next placement, got %s", got)
	}
	s := doc.Section("Exported Components")
	if s == nil {
		t.Fatal("section lost")
	}
	if !strings.Contains(strings.Join(s.Lines, "\n"), "### Agent 2 Exports") {
		t.Errorf("block not placed inside section: %q", s.Lines)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"[None yet]", true},
		{"  [AI-maintained summary]  ", true},
		{"[]", true},
		{"- [ ] todo", false},
		{"[link](http://example.com)", false},
		{"[a] and [b]", false},
		{"plain text", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.line); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestReplaceLine_RewritesHeader(t *testing.T) {
	doc := Parse("## Task 1: Setup\nbody\n## Task 2: Build\n")
	ok := doc.ReplaceLine(func(l string) bool { return strings.HasPrefix(l, "## Task 2:") }, "## Task 2: COMPLETE - Build")
	if !ok {
		t.Fatal("expected a line to be rewritten")
	}
	if doc.Section("## Task 2: COMPLETE - Build") == nil {
		t.Fatalf("header not rewritten: %q", doc.String())
	}
	if doc.ReplaceLine(func(string) bool { return false }, "x") {
		t.Fatal("no line should match")
	}
}

func TestSetBody(t *testing.T) {
	doc := Parse("## Agent Status\n[Pending]\n\n## Task Progress\n[None]\n")
	doc.SetBody("## Agent Status", []string{"- done"})
	want := "## Agent Status\n- done\n\n## Task Progress\n[None]\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	doc.SetBody("## Missing", []string{"x"})
	if !strings.HasSuffix(doc.String(), "\n\n## Missing\nx\n") {
		t.Errorf("missing section not appended: %q", doc.String())
	}
}

func TestInsertAfterAnchor(t *testing.T) {
	doc := Parse("## Timeline\n- 2026-01-01: Workflow initialized\n- older\n")
	if !doc.InsertAfterAnchor("## Timeline", "Workflow initialized", "- newest") {
		t.Fatal("expected insertion")
	}
	want := "## Timeline\n- 2026-01-01: Workflow initialized\n- newest\n- older\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	before := doc.String()
	if doc.InsertAfterAnchor("## Timeline", "Workflow started", "- dropped") {
		t.Fatal("expected no insertion without anchor")
	}
	if doc.String() != before {
		t.Fatal("document changed although anchor was missing")
	}
}

func TestReplaceFenced(t *testing.T) {
	doc := Parse("## Dependency Tree\n```\nold 1\nold 2\n```\n\n## Known Issues\n[None]\n")
	if err := doc.ReplaceFenced("## Dependency Tree", []string{"new"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "## Dependency Tree\n```\nnew\n```\n\n## Known Issues\n[None]\n"
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	lines, err := doc.Fenced("Dependency Tree")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"new"}, lines); diff != "" {
		t.Errorf("fenced lines mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceFenced_Corruption(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"missing section", "## Known Issues\n", ErrSectionNotFound},
		{"missing opening fence", "## Dependency Tree\nno fence\n", ErrFenceNotFound},
		{"unterminated fence", "## Dependency Tree\n```\nAgent 1\n\n## Known Issues\n", ErrFenceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.doc)
			err := doc.ReplaceFenced("## Dependency Tree", []string{"x"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if doc.String() != tt.doc {
				t.Fatal("document must not change on corruption")
			}
		})
	}
}

func TestContentLines(t *testing.T) {
	doc := Parse("## Known Issues\n[None]\n\n## Other\n")
	if doc.HasContent("## Known Issues") {
		t.Fatal("placeholder-only section should have no content")
	}
	doc = Parse("## Known Issues\n- flaky build\n")
	if got := doc.ContentLines("Known Issues"); len(got) != 1 || got[0] != "- flaky build" {
		t.Fatalf("unexpected content lines: %q", got)
	}
}
