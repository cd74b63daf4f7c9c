package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// snapshotTimeLayout is sortable and filesystem-safe.
const snapshotTimeLayout = "20060102T150405.000000000Z"

var snapshotNamePattern = regexp.MustCompile(`^(.+)\.task-(\d+)\.(\d{8}T\d{6}\.\d{9}Z)(\.[^.]+)?$`)

// BackupManager snapshots documents before they are mutated. Snapshots are
// never pruned and never restored automatically.
type BackupManager interface {
	Snapshot(name DocumentName, taskID int) (models.Snapshot, error)
	List(taskID int) ([]models.Snapshot, error)
	Dir() string
}

type fileBackupManager struct {
	dir  string
	docs DocumentStore
	now  func() time.Time
}

// NewBackupManager creates a BackupManager that writes copies into dir.
func NewBackupManager(dir string, docs DocumentStore) BackupManager {
	return &fileBackupManager{dir: dir, docs: docs, now: time.Now}
}

// NewBackupManagerWithClock is NewBackupManager with an injectable clock.
func NewBackupManagerWithClock(dir string, docs DocumentStore, now func() time.Time) BackupManager {
	return &fileBackupManager{dir: dir, docs: docs, now: now}
}

func (m *fileBackupManager) Dir() string {
	return m.dir
}

// Snapshot copies the current on-disk bytes of the document. A backup
// directory that cannot be created is fatal.
func (m *fileBackupManager) Snapshot(name DocumentName, taskID int) (models.Snapshot, error) {
	src := m.docs.Path(name)
	if src == "" {
		return models.Snapshot{}, fmt.Errorf("snapshotting %s: %w", name, ErrUnknownDocument)
	}
	data, err := os.ReadFile(src) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshotting %s: reading source: %w", name, err)
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return models.Snapshot{}, fmt.Errorf("snapshotting %s: creating backup dir %s: %w", name, m.dir, err)
	}

	ext := filepath.Ext(src)
	stem := strings.TrimSuffix(filepath.Base(src), ext)
	taken := m.now().UTC()

	for {
		dst := filepath.Join(m.dir, fmt.Sprintf("%s.task-%d.%s%s", stem, taskID, taken.Format(snapshotTimeLayout), ext))
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: path built from managed dir
		if os.IsExist(err) {
			taken = taken.Add(time.Nanosecond)
			continue
		}
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("snapshotting %s: creating backup file: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return models.Snapshot{}, fmt.Errorf("snapshotting %s: writing backup file: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return models.Snapshot{}, fmt.Errorf("snapshotting %s: closing backup file: %w", name, err)
		}
		return models.Snapshot{
			Document: filepath.Base(src),
			TaskID:   taskID,
			TakenAt:  taken,
			Path:     dst,
		}, nil
	}
}

// List returns snapshots for taskID, or all snapshots when taskID is zero,
// oldest first.
func (m *fileBackupManager) List(taskID int) ([]models.Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var snaps []models.Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := snapshotNamePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		id, err := strconv.Atoi(match[2])
		if err != nil || (taskID != 0 && id != taskID) {
			continue
		}
		taken, err := time.Parse(snapshotTimeLayout, match[3])
		if err != nil {
			continue
		}
		snaps = append(snaps, models.Snapshot{
			Document: match[1] + match[4],
			TaskID:   id,
			TakenAt:  taken,
			Path:     filepath.Join(m.dir, e.Name()),
		})
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].TakenAt.Before(snaps[j].TakenAt)
	})
	return snaps, nil
}
