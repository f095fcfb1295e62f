package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/codewarden/internal/models"
)

const (
	runsDirName   = "runs"
	runFileSuffix = "-report.json"
	runTimeLayout = "2006-01-02T15-04-05"
)

// LocalStorage keeps one JSON file per scan run under <baseDir>/runs
type LocalStorage struct {
	baseDir string
}

// NewLocal creates a new local storage instance
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

func (s *LocalStorage) runsDir() string {
	return filepath.Join(s.baseDir, runsDirName)
}

func (s *LocalStorage) runPath(t time.Time) string {
	return filepath.Join(s.runsDir(), t.UTC().Format(runTimeLayout)+runFileSuffix)
}

// SaveReport writes report atomically, keyed by its timestamp
func (s *LocalStorage) SaveReport(report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := WriteFileAtomic(s.runPath(report.Timestamp), data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// LoadReport loads the report stored for timestamp
func (s *LocalStorage) LoadReport(timestamp time.Time) (*models.Report, error) {
	path := s.runPath(timestamp)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", path, err)
	}
	return &report, nil
}

// GetLatestRun retrieves the most recent report
func (s *LocalStorage) GetLatestRun() (*models.Report, error) {
	runs, err := s.GetLastNRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no readable runs found")
	}
	return runs[0], nil
}

// GetLastNRuns returns up to n of the newest reports, oldest first.
// Unreadable run files are skipped.
func (s *LocalStorage) GetLastNRuns(n int) ([]*models.Report, error) {
	timestamps, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("no runs found")
	}

	if n > 0 && len(timestamps) > n {
		timestamps = timestamps[len(timestamps)-n:]
	}

	reports := make([]*models.Report, 0, len(timestamps))
	for _, ts := range timestamps {
		report, err := s.LoadReport(ts)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ListRuns returns stored run timestamps sorted chronologically
func (s *LocalStorage) ListRuns() ([]time.Time, error) {
	entries, err := os.ReadDir(s.runsDir())
	if os.IsNotExist(err) {
		return []time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	timestamps := []time.Time{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, runFileSuffix) {
			continue
		}
		ts, err := time.Parse(runTimeLayout, strings.TrimSuffix(name, runFileSuffix))
		if err != nil {
			continue
		}
		timestamps = append(timestamps, ts)
	}

	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i].Before(timestamps[j])
	})
	return timestamps, nil
}

// PruneRuns deletes all but the newest keep runs and returns how many
// files were removed.
func (s *LocalStorage) PruneRuns(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	timestamps, err := s.ListRuns()
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := 0; i < len(timestamps)-keep; i++ {
		if err := os.Remove(s.runPath(timestamps[i])); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to prune run: %w", err)
		}
		removed++
	}
	return removed, nil
}

// GetStoragePath returns the full path to the storage directory
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

// EnsureDirectoryExists creates the storage directory if it doesn't exist
func (s *LocalStorage) EnsureDirectoryExists() error {
	return os.MkdirAll(s.runsDir(), 0o755)
}
