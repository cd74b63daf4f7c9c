package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDocumentExists is returned by InitializeDocuments when a document is
// already present and overwrite was not requested.
var ErrDocumentExists = errors.New("document already exists")

const planHeader = `# Task Plan

`

const planTaskTemplate = `## Task %d: %s
[Task description]

`

const progressTemplate = `# Progress

## Agent Status
[Workflow not started]

## Task Progress
[None yet]

## Completed Components
[None yet]

## Timeline
- %s: Workflow initialized
`

const dependenciesTemplate = "# Dependencies\n" +
	"\n" +
	"## Exported Components\n" +
	"[None yet]\n" +
	"\n" +
	"## Integration Points\n" +
	"[None yet]\n" +
	"\n" +
	"## Dependency Tree\n" +
	"```\n" +
	"[No completed tasks]\n" +
	"```\n" +
	"\n" +
	"## Known Issues\n" +
	"[None]\n"

const executionLogHeader = "# Execution Log\n"

// RenderPlan returns a plan document with one "## Task <N>: <Title>" header per title.
func RenderPlan(titles []string) string {
	var sb strings.Builder
	sb.WriteString(planHeader)
	for i, title := range titles {
		sb.WriteString(fmt.Sprintf(planTaskTemplate, i+1, strings.TrimSpace(title)))
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// RenderProgress returns an empty progress document whose timeline anchor
// carries the given initialization time.
func RenderProgress(initialized time.Time) string {
	return fmt.Sprintf(progressTemplate, initialized.UTC().Format(time.RFC3339))
}

// RenderDependencies returns an empty dependency document.
func RenderDependencies() string {
	return dependenciesTemplate
}

// InitializeDocuments writes the plan, progress, dependency and execution log
// documents in their placeholder state. Existing documents are left alone
// unless overwrite is set.
func InitializeDocuments(store DocumentStore, titles []string, now time.Time, overwrite bool) error {
	docs := []struct {
		name    DocumentName
		content string
	}{
		{DocPlan, RenderPlan(titles)},
		{DocProgress, RenderProgress(now)},
		{DocDependencies, RenderDependencies()},
		{DocExecutionLog, executionLogHeader},
	}

	if !overwrite {
		for _, d := range docs {
			if store.Exists(d.name) {
				return fmt.Errorf("initializing documents: %s (%s): %w", d.name, store.Path(d.name), ErrDocumentExists)
			}
		}
	}

	for _, d := range docs {
		if err := store.Write(d.name, d.content); err != nil {
			return fmt.Errorf("initializing documents: %w", err)
		}
	}
	return nil
}
