// Package core contains the business logic for relay: the task, progress and
// dependency ledgers, the gate evaluator, the file-compliance check and the
// state-update cycle that drives them.
package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// ConfigFileName is the name of the configuration file at the base path.
const ConfigFileName = ".relayconfig"

// ConfigurationManager loads and validates the .relayconfig file.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .relayconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no .relayconfig exists.
func DefaultConfig() *models.Config {
	return &models.Config{
		Documents: models.DocumentsConfig{
			Plan:         "docs/TASKS.md",
			Progress:     "docs/PROGRESS.md",
			Dependencies: "docs/DEPENDENCIES.md",
			ExecutionLog: "docs/EXECUTION_LOG.md",
		},
		Backups: models.PathConfig{Dir: ".relay/backups"},
		Reports: models.PathConfig{Dir: ".relay/reports"},
		Events:  models.PathConfig{Path: ".relay/events.jsonl"},
		Project: models.ProjectConfig{Workspace: "."},
		Compliance: models.ComplianceConfig{
			MaxLines:     500,
			AllowedRoots: []string{"src", "tests"},
		},
		Dependencies: models.DependencyConfig{
			ManifestWindow: time.Hour,
		},
		Logging: models.LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads .relayconfig. Missing keys, or a missing file, fall back to
// DefaultConfig.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("documents.plan", cfg.Documents.Plan)
	v.SetDefault("documents.progress", cfg.Documents.Progress)
	v.SetDefault("documents.dependencies", cfg.Documents.Dependencies)
	v.SetDefault("documents.execution_log", cfg.Documents.ExecutionLog)
	v.SetDefault("backups.dir", cfg.Backups.Dir)
	v.SetDefault("reports.dir", cfg.Reports.Dir)
	v.SetDefault("events.path", cfg.Events.Path)
	v.SetDefault("project.workspace", cfg.Project.Workspace)
	v.SetDefault("compliance.max_lines", cfg.Compliance.MaxLines)
	v.SetDefault("compliance.allowed_roots", cfg.Compliance.AllowedRoots)
	v.SetDefault("compliance.max_attempts", cfg.Compliance.MaxAttempts)
	v.SetDefault("dependencies.manifest_window", cfg.Dependencies.ManifestWindow)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	cfg.Documents.Plan = v.GetString("documents.plan")
	cfg.Documents.Progress = v.GetString("documents.progress")
	cfg.Documents.Dependencies = v.GetString("documents.dependencies")
	cfg.Documents.ExecutionLog = v.GetString("documents.execution_log")
	cfg.Backups.Dir = v.GetString("backups.dir")
	cfg.Reports.Dir = v.GetString("reports.dir")
	cfg.Events.Path = v.GetString("events.path")
	cfg.Project.Type = strings.ToLower(v.GetString("project.type"))
	cfg.Project.Workspace = v.GetString("project.workspace")
	cfg.Compliance.MaxLines = v.GetInt("compliance.max_lines")
	cfg.Compliance.AllowedRoots = v.GetStringSlice("compliance.allowed_roots")
	cfg.Compliance.Extensions = v.GetStringSlice("compliance.extensions")
	cfg.Compliance.MaxAttempts = v.GetInt("compliance.max_attempts")
	cfg.Dependencies.ManifestFiles = v.GetStringSlice("dependencies.manifest_files")
	cfg.Dependencies.ManifestWindow = v.GetDuration("dependencies.manifest_window")
	cfg.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	cfg.Logging.Format = strings.ToLower(v.GetString("logging.format"))

	return cfg, nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"console": true, "json": true,
}

// ValidateConfig reports every invalid key in a single error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	docs := map[string]string{
		"documents.plan":          cfg.Documents.Plan,
		"documents.progress":      cfg.Documents.Progress,
		"documents.dependencies":  cfg.Documents.Dependencies,
		"documents.execution_log": cfg.Documents.ExecutionLog,
	}
	seen := make(map[string]string, len(docs))
	for _, key := range []string{"documents.plan", "documents.progress", "documents.dependencies", "documents.execution_log"} {
		p := docs[key]
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Sprintf("%s must not be empty", key))
			continue
		}
		clean := filepath.Clean(p)
		if other, dup := seen[clean]; dup {
			errs = append(errs, fmt.Sprintf("%s %q is already used by %s", key, p, other))
			continue
		}
		seen[clean] = key
	}

	if strings.TrimSpace(cfg.Backups.Dir) == "" {
		errs = append(errs, "backups.dir must not be empty")
	}
	if strings.TrimSpace(cfg.Reports.Dir) == "" {
		errs = append(errs, "reports.dir must not be empty")
	}
	if strings.TrimSpace(cfg.Events.Path) == "" {
		errs = append(errs, "events.path must not be empty")
	}

	if cfg.Project.Type != "" {
		if _, ok := LookupEcosystem(cfg.Project.Type); !ok {
			errs = append(errs, fmt.Sprintf(
				"project.type %q is invalid, must be one of: %s",
				cfg.Project.Type, strings.Join(EcosystemNames(), ", "),
			))
		}
	}

	if cfg.Compliance.MaxLines <= 0 {
		errs = append(errs, fmt.Sprintf("compliance.max_lines must be positive, got %d", cfg.Compliance.MaxLines))
	}
	if len(cfg.Compliance.AllowedRoots) == 0 {
		errs = append(errs, "compliance.allowed_roots must list at least one directory")
	}
	for _, root := range cfg.Compliance.AllowedRoots {
		if filepath.IsAbs(root) || strings.HasPrefix(filepath.Clean(root), "..") {
			errs = append(errs, fmt.Sprintf("compliance.allowed_roots entry %q must be relative to the workspace", root))
		}
	}
	for _, ext := range cfg.Compliance.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("compliance.extensions entry %q must start with a dot", ext))
		}
	}
	if cfg.Compliance.MaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("compliance.max_attempts must be non-negative, got %d", cfg.Compliance.MaxAttempts))
	}

	if cfg.Dependencies.ManifestWindow < 0 {
		errs = append(errs, fmt.Sprintf("dependencies.manifest_window must be non-negative, got %s", cfg.Dependencies.ManifestWindow))
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid, must be one of: trace, debug, info, warn, error", cfg.Logging.Level))
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid, must be one of: console, json", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ComplianceExtensions returns the configured extension set, or the
// ecosystem's when none is configured. An empty result disables the
// extension rule.
func ComplianceExtensions(cfg *models.Config) []string {
	if len(cfg.Compliance.Extensions) > 0 {
		return cfg.Compliance.Extensions
	}
	if eco, ok := LookupEcosystem(cfg.Project.Type); ok {
		return eco.Extensions
	}
	return nil
}

// ManifestFiles returns the package manifests watched for dependency
// changes, or the ecosystem's when none is configured.
func ManifestFiles(cfg *models.Config) []string {
	if len(cfg.Dependencies.ManifestFiles) > 0 {
		return cfg.Dependencies.ManifestFiles
	}
	if eco, ok := LookupEcosystem(cfg.Project.Type); ok {
		return eco.Manifests
	}
	return nil
}
