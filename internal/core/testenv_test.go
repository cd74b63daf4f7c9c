package core

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
)

// testClock returns increasing instants one second apart.
type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// testEnv is a fully wired workspace with initialized documents.
type testEnv struct {
	dir        string
	clock      *testClock
	docs       storage.DocumentStore
	backups    storage.BackupManager
	reports    storage.ReportStore
	execLog    *storage.ExecutionLog
	events     observability.EventLog
	ledger     TaskLedger
	progress   ProgressTracker
	deps       DependencyLedger
	compliance *ComplianceGate
	gate       GateEvaluator
	cycle      *Cycle
}

type envOption func(*envConfig)

type envConfig struct {
	maxAttempts int
	ecosystem   *Ecosystem
	manifests   []string
}

func withMaxAttempts(n int) envOption {
	return func(c *envConfig) { c.maxAttempts = n }
}

func withEcosystem(name string) envOption {
	return func(c *envConfig) {
		eco, _ := LookupEcosystem(name)
		c.ecosystem = &eco
		c.manifests = eco.Manifests
	}
}

func newTestEnv(t *testing.T, titles []string, opts ...envOption) *testEnv {
	t.Helper()
	var cfg envConfig
	for _, o := range opts {
		o(&cfg)
	}

	dir := t.TempDir()
	env := &testEnv{dir: dir, clock: newTestClock()}
	env.docs = storage.NewDocumentStore(dir, map[storage.DocumentName]string{
		storage.DocPlan:         "docs/TASKS.md",
		storage.DocProgress:     "docs/PROGRESS.md",
		storage.DocDependencies: "docs/DEPENDENCIES.md",
		storage.DocExecutionLog: "docs/EXECUTION_LOG.md",
	})
	if err := storage.InitializeDocuments(env.docs, titles, env.clock.Now(), false); err != nil {
		t.Fatalf("initializing documents: %v", err)
	}

	env.backups = storage.NewBackupManagerWithClock(filepath.Join(dir, ".relay", "backups"), env.docs, env.clock.Now)
	env.reports = storage.NewReportStore(filepath.Join(dir, ".relay", "reports"))

	var err error
	env.execLog, err = storage.NewExecutionLog(env.docs.Path(storage.DocExecutionLog))
	if err != nil {
		t.Fatalf("creating execution log: %v", err)
	}
	env.execLog.SetClock(env.clock.Now)
	env.events, err = observability.NewJSONLEventLog(filepath.Join(dir, ".relay", "events.jsonl"))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = env.events.Close() })

	env.ledger = NewTaskLedger(env.docs)
	env.progress = NewProgressTracker(env.docs, env.clock.Now)
	env.deps = NewDependencyLedger(env.docs, env.ledger, DependencyOptions{
		Workspace:      ".",
		ManifestFiles:  cfg.manifests,
		ManifestWindow: time.Hour,
		Now:            env.clock.Now,
	})
	checker := NewComplianceChecker(storage.NewWorkspace(dir), ComplianceRules{
		MaxLines:     DefaultMaxLines,
		AllowedRoots: []string{"src", "tests"},
		Extensions:   extensionsOf(cfg.ecosystem),
	}, env.clock.Now)
	env.compliance = NewComplianceGate(checker, env.reports, env.events, cfg.maxAttempts, env.clock.Now)
	env.gate = NewGateEvaluator(env.docs, env.ledger, env.deps, env.reports, cfg.ecosystem, ".")

	var ids atomic.Int32
	env.cycle = NewCycle(CycleDeps{
		Docs:       env.docs,
		Backups:    env.backups,
		ExecLog:    env.execLog,
		Events:     env.events,
		Ledger:     env.ledger,
		Progress:   env.progress,
		Deps:       env.deps,
		Compliance: env.compliance,
		Gate:       env.gate,
		Now:        env.clock.Now,
		NewID: func() string {
			return "cycle-" + strings.Repeat("x", int(ids.Add(1)))
		},
	})
	return env
}

func extensionsOf(eco *Ecosystem) []string {
	if eco == nil {
		return nil
	}
	return eco.Extensions
}

func (e *testEnv) read(t *testing.T, name storage.DocumentName) string {
	t.Helper()
	text, err := e.docs.Read(name)
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return text
}

func (e *testEnv) write(t *testing.T, name storage.DocumentName, content string) {
	t.Helper()
	if err := e.docs.Write(name, content); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func removeDoc(env *testEnv, name storage.DocumentName) error {
	return os.Remove(env.docs.Path(name))
}

// writeSource creates a workspace file with the given number of lines.
func (e *testEnv) writeSource(t *testing.T, rel string, lines int) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		sb.WriteString("line\n")
	}
	path := filepath.Join(e.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
	return rel
}
