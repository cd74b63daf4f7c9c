package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/ai-dev-relay/internal/cli"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
)

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, core.ConfigFileName), []byte("project:\n  type: go\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(subDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, tmpDir, core.ConfigFileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv(HomeEnv, "")

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	dir := t.TempDir()

	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Config.Compliance.MaxLines != 500 {
		t.Errorf("max_lines = %d, want default 500", app.Config.Compliance.MaxLines)
	}
	if got := app.Docs.Path("plan"); got != filepath.Join(dir, "docs", "TASKS.md") {
		t.Errorf("plan path = %q", got)
	}
	if app.EventLog == nil || app.MetricsCalc == nil {
		t.Error("event log and metrics should be wired")
	}
	if app.Cycle == nil || app.Gate == nil || app.Compliance == nil {
		t.Error("core services should be wired")
	}
	if cli.Ledger != app.Ledger || cli.Cycle != app.Cycle || cli.BasePath != dir {
		t.Error("CLI package variables not wired")
	}
}

func TestNewApp_ReadsConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := `documents:
  plan: plan/PLAN.md
project:
  type: python
compliance:
  max_lines: 300
  max_attempts: 2
`
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := NewApp(dir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Config.Project.Type != "python" || app.Config.Compliance.MaxLines != 300 {
		t.Errorf("config not applied: %+v", app.Config)
	}
	if app.Compliance.MaxAttempts() != 2 {
		t.Errorf("max attempts = %d, want 2", app.Compliance.MaxAttempts())
	}
	if got := app.Docs.Path("plan"); got != filepath.Join(dir, "plan", "PLAN.md") {
		t.Errorf("plan path = %q", got)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed yaml", "compliance: [\n", core.ConfigFileName},
		{"invalid values", "compliance:\n  max_lines: -1\nlogging:\n  level: loud\n", "max_lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := NewApp(dir)
			if err == nil {
				t.Fatal("expected an error for an invalid config")
			}
			if core.ExitCode(err) != core.ExitValidation {
				t.Errorf("exit code = %d, want %d", core.ExitCode(err), core.ExitValidation)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestClose_NilEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() on an App without an event log = %v", err)
	}
}
