package models

import "time"

// DocumentsConfig locates the shared workflow documents, relative to the base path.
type DocumentsConfig struct {
	Plan         string `yaml:"plan" mapstructure:"plan"`
	Progress     string `yaml:"progress" mapstructure:"progress"`
	Dependencies string `yaml:"dependencies" mapstructure:"dependencies"`
	ExecutionLog string `yaml:"execution_log" mapstructure:"execution_log"`
}

// ProjectConfig describes the target ecosystem the external agent writes code for.
type ProjectConfig struct {
	Type      string `yaml:"type" mapstructure:"type"`
	Workspace string `yaml:"workspace" mapstructure:"workspace"`
}

// ComplianceConfig holds the file-compliance rules.
type ComplianceConfig struct {
	MaxLines     int      `yaml:"max_lines" mapstructure:"max_lines"`
	AllowedRoots []string `yaml:"allowed_roots" mapstructure:"allowed_roots"`
	Extensions   []string `yaml:"extensions,omitempty" mapstructure:"extensions"`
	// MaxAttempts bounds the corrective retry loop. Zero means unbounded.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// DependencyConfig controls package-manifest change detection.
type DependencyConfig struct {
	ManifestFiles  []string      `yaml:"manifest_files,omitempty" mapstructure:"manifest_files"`
	ManifestWindow time.Duration `yaml:"manifest_window" mapstructure:"manifest_window"`
}

// PathConfig locates a directory or file relative to the base path.
type PathConfig struct {
	Dir  string `yaml:"dir,omitempty" mapstructure:"dir"`
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// LoggingConfig controls operator log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Config holds all settings read from .relayconfig via Viper.
type Config struct {
	Documents    DocumentsConfig  `yaml:"documents" mapstructure:"documents"`
	Backups      PathConfig       `yaml:"backups" mapstructure:"backups"`
	Reports      PathConfig       `yaml:"reports" mapstructure:"reports"`
	Events       PathConfig       `yaml:"events" mapstructure:"events"`
	Project      ProjectConfig    `yaml:"project" mapstructure:"project"`
	Compliance   ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Dependencies DependencyConfig `yaml:"dependencies" mapstructure:"dependencies"`
	Logging      LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}
