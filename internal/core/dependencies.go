package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/internal/markdown"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// Dependency document sections. Older documents name the exports section
// "Component Dependencies".
const (
	SectionExportedComponents    = "## Exported Components"
	SectionComponentDependencies = "## Component Dependencies"
	SectionIntegrationPoints     = "## Integration Points"
	SectionDependencyTree        = "## Dependency Tree"
	SectionKnownIssues           = "## Known Issues"
)

// EmptyTreeLine fills the dependency tree before any task completes.
const EmptyTreeLine = "[No completed tasks]"

const (
	fieldWorkspace      = "**Workspace:**"
	fieldExports        = "**Exports:**"
	fieldPackages       = "**Packages:**"
	fieldPackageUpdate  = "**Package update:**"
	integrationNoneNote = "- No upstream dependencies"
)

var exportHeaderPattern = regexp.MustCompile(`^###\s+Agent\s+(\d+)\s+Exports\s*$`)

// DependencyLedger records exports, integration notes and the dependency
// tree in the dependency document.
type DependencyLedger interface {
	RecordExports(record models.ExportRecord) error
	RecordIntegrationNotes(taskID int, notes []string) error
	RebuildDependencyTree(taskIDs []int) error
	NotePackageUpdate(taskID int) (bool, error)
	Exports() ([]models.ExportRecord, error)
	KnownIssues() ([]string, error)
}

// DependencyOptions configures package-manifest change detection.
type DependencyOptions struct {
	Workspace      string
	ManifestFiles  []string
	ManifestWindow time.Duration
	Now            func() time.Time
}

type dependencyLedger struct {
	docs   storage.DocumentStore
	ledger TaskLedger
	opts   DependencyOptions
}

// NewDependencyLedger creates a DependencyLedger. Titles for the dependency
// tree come from ledger.
func NewDependencyLedger(docs storage.DocumentStore, ledger TaskLedger, opts DependencyOptions) DependencyLedger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ManifestWindow == 0 {
		opts.ManifestWindow = time.Hour
	}
	return &dependencyLedger{docs: docs, ledger: ledger, opts: opts}
}

func (d *dependencyLedger) read() (*markdown.Document, error) {
	return readDocument(d.docs, storage.DocDependencies, "dependency")
}

func (d *dependencyLedger) write(doc *markdown.Document) error {
	return d.docs.Write(storage.DocDependencies, doc.String())
}

// exportsSection returns the header of the exports section in use.
func exportsSection(doc *markdown.Document) string {
	if !doc.HasSection(SectionExportedComponents) && doc.HasSection(SectionComponentDependencies) {
		return SectionComponentDependencies
	}
	return SectionExportedComponents
}

func exportHeader(taskID int) string {
	return fmt.Sprintf("### Agent %d Exports", taskID)
}

func integrationHeader(taskID int) string {
	return fmt.Sprintf("### Agent %d Integration", taskID)
}

// FormatExportBlock renders the subsection for one export record.
func FormatExportBlock(rec models.ExportRecord) string {
	lines := []string{exportHeader(rec.TaskID)}
	if rec.Workspace != "" {
		lines = append(lines, fieldWorkspace+" "+rec.Workspace)
	}
	lines = append(lines, fieldExports)
	exports := strings.TrimSpace(rec.Exports)
	if exports == "" {
		exports = "None reported."
	}
	lines = append(lines, strings.Split(exports, "\n")...)
	if len(rec.Packages) > 0 {
		lines = append(lines, fieldPackages+" "+strings.Join(rec.Packages, ", "))
	}
	for _, n := range rec.Notes {
		lines = append(lines, fieldPackageUpdate+" "+n)
	}
	return strings.Join(lines, "\n")
}

func (d *dependencyLedger) RecordExports(rec models.ExportRecord) error {
	doc, err := d.read()
	if err != nil {
		return fmt.Errorf("recording exports for task %d: %w", rec.TaskID, err)
	}
	patchSection(doc, exportsSection(doc), FormatExportBlock(rec))
	if err := d.write(doc); err != nil {
		return fmt.Errorf("recording exports for task %d: %w", rec.TaskID, err)
	}
	return nil
}

func (d *dependencyLedger) RecordIntegrationNotes(taskID int, notes []string) error {
	lines := []string{integrationHeader(taskID)}
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, "- ") {
			n = "- " + n
		}
		lines = append(lines, n)
	}
	if len(lines) == 1 {
		lines = append(lines, integrationNoneNote)
	}

	doc, err := d.read()
	if err != nil {
		return fmt.Errorf("recording integration notes for task %d: %w", taskID, err)
	}
	patchSection(doc, SectionIntegrationPoints, strings.Join(lines, "\n"))
	if err := d.write(doc); err != nil {
		return fmt.Errorf("recording integration notes for task %d: %w", taskID, err)
	}
	return nil
}

// DependencyTreeLines renders one line per task id in ascending order; every
// task after the first points at its predecessor.
func DependencyTreeLines(taskIDs []int, titleOf func(int) string) []string {
	ids := uniqueSorted(taskIDs)
	if len(ids) == 0 {
		return []string{EmptyTreeLine}
	}
	lines := make([]string, 0, len(ids))
	for i, id := range ids {
		line := fmt.Sprintf("Agent %d: %s", id, titleOf(id))
		if i > 0 {
			line += fmt.Sprintf(" --> Agent %d", ids[i-1])
		}
		lines = append(lines, line)
	}
	return lines
}

// RebuildDependencyTree replaces the whole fenced block under Dependency Tree.
// A missing section or fence is a corruption error and nothing is written.
func (d *dependencyLedger) RebuildDependencyTree(taskIDs []int) error {
	doc, err := d.read()
	if err != nil {
		return fmt.Errorf("rebuilding dependency tree: %w", err)
	}
	lines := DependencyTreeLines(taskIDs, d.ledger.TitleOf)
	if err := doc.ReplaceFenced(SectionDependencyTree, lines); err != nil {
		detail := "the fenced block under '## Dependency Tree' is missing or unterminated"
		if errors.Is(err, markdown.ErrSectionNotFound) {
			detail = "the '## Dependency Tree' section is missing"
		}
		return &CorruptionError{
			Document: "dependency",
			Path:     d.docs.Path(storage.DocDependencies),
			Detail:   detail,
			Remedy:   "restore the section with an opening and closing ``` fence, or copy it from a backup",
			Err:      err,
		}
	}
	if err := d.write(doc); err != nil {
		return fmt.Errorf("rebuilding dependency tree: %w", err)
	}
	return nil
}

// NotePackageUpdate adds one line to the task's export subsection when a
// package manifest under the workspace changed within the window.
func (d *dependencyLedger) NotePackageUpdate(taskID int) (bool, error) {
	cutoff := d.opts.Now().Add(-d.opts.ManifestWindow)
	var changed string
	for _, m := range d.opts.ManifestFiles {
		path := filepath.Join(d.opts.Workspace, m)
		if mod, ok := d.docs.ModTime(path); ok && !mod.Before(cutoff) {
			changed = m
			break
		}
	}
	if changed == "" {
		return false, nil
	}

	doc, err := d.read()
	if err != nil {
		return false, fmt.Errorf("noting package update for task %d: %w", taskID, err)
	}
	s := doc.Section(exportsSection(doc))
	if s == nil {
		return false, nil
	}
	start := -1
	for i, l := range s.Lines {
		if strings.TrimSpace(l) == exportHeader(taskID) {
			start = i
		}
	}
	if start < 0 {
		return false, nil
	}
	end := len(s.Lines)
	for i := start + 1; i < len(s.Lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(s.Lines[i]), "### ") {
			end = i
			break
		}
	}
	at := start + 1
	for i := start + 1; i < end; i++ {
		if strings.TrimSpace(s.Lines[i]) != "" {
			at = i + 1
		}
	}
	note := fmt.Sprintf("%s %s modified, run the package manager before building", fieldPackageUpdate, changed)
	s.Lines = append(s.Lines[:at:at], append([]string{note}, s.Lines[at:]...)...)

	if err := d.write(doc); err != nil {
		return false, fmt.Errorf("noting package update for task %d: %w", taskID, err)
	}
	return true, nil
}

// Exports parses every "### Agent <N> Exports" subsection, in document order.
func (d *dependencyLedger) Exports() ([]models.ExportRecord, error) {
	doc, err := d.read()
	if err != nil {
		return nil, err
	}
	return ParseExports(doc), nil
}

// ParseExports reads the export records from a parsed dependency document.
func ParseExports(doc *markdown.Document) []models.ExportRecord {
	s := doc.Section(exportsSection(doc))
	if s == nil {
		return nil
	}

	var (
		records   []models.ExportRecord
		cur       *models.ExportRecord
		exports   []string
		inExports bool
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Exports = strings.TrimSpace(strings.Join(exports, "\n"))
		records = append(records, *cur)
		cur, exports, inExports = nil, nil, false
	}

	for _, raw := range s.Lines {
		line := strings.TrimSpace(raw)
		if m := exportHeaderPattern.FindStringSubmatch(line); m != nil {
			flush()
			id, _ := strconv.Atoi(m[1])
			cur = &models.ExportRecord{TaskID: id}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "### "):
			flush()
		case strings.HasPrefix(line, fieldWorkspace):
			cur.Workspace = strings.TrimSpace(strings.TrimPrefix(line, fieldWorkspace))
			inExports = false
		case line == fieldExports:
			inExports = true
		case strings.HasPrefix(line, fieldPackages):
			for _, p := range strings.Split(strings.TrimPrefix(line, fieldPackages), ",") {
				if p = strings.TrimSpace(p); p != "" {
					cur.Packages = append(cur.Packages, p)
				}
			}
			inExports = false
		case strings.HasPrefix(line, fieldPackageUpdate):
			cur.Notes = append(cur.Notes, strings.TrimSpace(strings.TrimPrefix(line, fieldPackageUpdate)))
			inExports = false
		case inExports:
			exports = append(exports, raw)
		}
	}
	flush()
	return records
}

// KnownIssues returns the non-placeholder lines of the Known Issues section.
func (d *dependencyLedger) KnownIssues() ([]string, error) {
	doc, err := d.read()
	if err != nil {
		return nil, err
	}
	return knownIssues(doc), nil
}

// RenderAvailableImports lists every recorded export for the next task's context.
func RenderAvailableImports(records []models.ExportRecord) string {
	if len(records) == 0 {
		return "No exports recorded yet."
	}
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "From Agent %d", r.TaskID)
		if r.Workspace != "" {
			fmt.Fprintf(&sb, " (%s)", r.Workspace)
		}
		sb.WriteString(":\n")
		for _, l := range strings.Split(r.Exports, "\n") {
			if strings.TrimSpace(l) == "" {
				continue
			}
			sb.WriteString("  " + strings.TrimSpace(l) + "\n")
		}
		if len(r.Packages) > 0 {
			sb.WriteString("  packages: " + strings.Join(r.Packages, ", ") + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
