package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
	"gopkg.in/yaml.v3"
)

// ReportStore persists the latest compliance report per task so the gate can
// see it in a later invocation.
type ReportStore interface {
	SaveReport(report *models.ComplianceReport) error
	LoadReport(taskID int) (*models.ComplianceReport, error)
}

type fileReportStore struct {
	dir string
}

// NewReportStore creates a ReportStore writing task-<id>.yaml files into dir.
func NewReportStore(dir string) ReportStore {
	return &fileReportStore{dir: dir}
}

func (s *fileReportStore) reportPath(taskID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("task-%d.yaml", taskID))
}

func (s *fileReportStore) SaveReport(report *models.ComplianceReport) error {
	if report == nil {
		return fmt.Errorf("saving compliance report: report is nil")
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("saving compliance report for task %d: marshaling YAML: %w", report.TaskID, err)
	}
	if err := writeFileAtomic(s.reportPath(report.TaskID), data, 0o644); err != nil {
		return fmt.Errorf("saving compliance report for task %d: %w", report.TaskID, err)
	}
	return nil
}

// LoadReport returns nil without error when no report was saved for taskID.
func (s *fileReportStore) LoadReport(taskID int) (*models.ComplianceReport, error) {
	data, err := os.ReadFile(s.reportPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading compliance report for task %d: %w", taskID, err)
	}
	var report models.ComplianceReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("loading compliance report for task %d: parsing YAML: %w", taskID, err)
	}
	return &report, nil
}

// LoadAgentOutput reads the manifest the external agent produced for a task.
func LoadAgentOutput(path string) (*models.AgentOutput, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("loading agent output: %w", err)
	}
	var out models.AgentOutput
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("loading agent output %s: parsing YAML: %w", path, err)
	}
	return &out, nil
}
