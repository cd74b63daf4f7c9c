// Package internal provides the App struct that wires all components of
// relay together and initializes the CLI layer.
package internal

import (
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/internal/cli"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/logging"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// HomeEnv overrides base path discovery.
const HomeEnv = "RELAY_HOME"

// App holds all service dependencies for relay.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config

	// Storage layer
	Docs      storage.DocumentStore
	Backups   storage.BackupManager
	Reports   storage.ReportStore
	ExecLog   *storage.ExecutionLog
	Workspace *storage.Workspace

	// Core services
	Ledger     core.TaskLedger
	Progress   core.ProgressTracker
	Deps       core.DependencyLedger
	Compliance *core.ComplianceGate
	Gate       core.GateEvaluator
	Cycle      *core.Cycle

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of relay. basePath is the
// directory holding .relayconfig; every relative path in the configuration
// is resolved against it.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, &core.ValidationError{
			Artifact: filepath.Join(basePath, core.ConfigFileName),
			Problem:  err.Error(),
			Remedy:   "fix the YAML syntax or delete the file to use defaults",
		}
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, &core.ValidationError{
			Artifact: filepath.Join(basePath, core.ConfigFileName),
			Problem:  err.Error(),
			Remedy:   "correct the listed keys",
		}
	}
	app.Config = cfg

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	// --- Storage layer ---
	app.Docs = storage.NewDocumentStore(basePath, map[storage.DocumentName]string{
		storage.DocPlan:         cfg.Documents.Plan,
		storage.DocProgress:     cfg.Documents.Progress,
		storage.DocDependencies: cfg.Documents.Dependencies,
		storage.DocExecutionLog: cfg.Documents.ExecutionLog,
	})
	app.Backups = storage.NewBackupManager(resolve(basePath, cfg.Backups.Dir), app.Docs)
	app.Reports = storage.NewReportStore(resolve(basePath, cfg.Reports.Dir))
	app.Workspace = storage.NewWorkspace(resolve(basePath, cfg.Project.Workspace))

	app.ExecLog, err = storage.NewExecutionLog(app.Docs.Path(storage.DocExecutionLog))
	if err != nil {
		return nil, err
	}

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(resolve(basePath, cfg.Events.Path))
	if err != nil {
		// Non-fatal: attempt counting falls back to the stored reports.
		log := logging.Component("app")
		log.Warn().Err(err).Msg("event log unavailable")
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	var ecosystem *core.Ecosystem
	if eco, ok := core.LookupEcosystem(cfg.Project.Type); ok {
		ecosystem = &eco
	}

	app.Ledger = core.NewTaskLedger(app.Docs)
	app.Progress = core.NewProgressTracker(app.Docs, time.Now)
	app.Deps = core.NewDependencyLedger(app.Docs, app.Ledger, core.DependencyOptions{
		Workspace:      cfg.Project.Workspace,
		ManifestFiles:  core.ManifestFiles(cfg),
		ManifestWindow: cfg.Dependencies.ManifestWindow,
		Now:            time.Now,
	})

	checker := core.NewComplianceChecker(app.Workspace, core.ComplianceRules{
		MaxLines:     cfg.Compliance.MaxLines,
		AllowedRoots: cfg.Compliance.AllowedRoots,
		Extensions:   core.ComplianceExtensions(cfg),
	}, time.Now)
	app.Compliance = core.NewComplianceGate(checker, app.Reports, app.EventLog, cfg.Compliance.MaxAttempts, time.Now)
	app.Gate = core.NewGateEvaluator(app.Docs, app.Ledger, app.Deps, app.Reports, ecosystem, cfg.Project.Workspace)

	app.Cycle = core.NewCycle(core.CycleDeps{
		Docs:       app.Docs,
		Backups:    app.Backups,
		ExecLog:    app.ExecLog,
		Events:     app.EventLog,
		Ledger:     app.Ledger,
		Progress:   app.Progress,
		Deps:       app.Deps,
		Compliance: app.Compliance,
		Gate:       app.Gate,
		Now:        time.Now,
		LockPath:   filepath.Join(filepath.Dir(resolve(basePath, cfg.Backups.Dir)), core.LockFileName),
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Docs = app.Docs
	cli.Backups = app.Backups
	cli.Reports = app.Reports
	cli.ExecLog = app.ExecLog
	cli.Ledger = app.Ledger
	cli.Progress = app.Progress
	cli.Deps = app.Deps
	cli.Compliance = app.Compliance
	cli.Gate = app.Gate
	cli.Cycle = app.Cycle
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the relay base directory. It checks the
// RELAY_HOME env var, then walks up from the current directory looking for
// .relayconfig, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

func resolve(basePath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}
