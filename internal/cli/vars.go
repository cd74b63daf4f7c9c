package cli

import (
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.Config

	Docs    storage.DocumentStore
	Backups storage.BackupManager
	Reports storage.ReportStore
	ExecLog *storage.ExecutionLog

	Ledger     core.TaskLedger
	Progress   core.ProgressTracker
	Deps       core.DependencyLedger
	Compliance *core.ComplianceGate
	Gate       core.GateEvaluator
	Cycle      *core.Cycle

	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
)
