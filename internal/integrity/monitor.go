// Package integrity baselines file contents by SHA-256 digest and raises
// tampering alerts when the current content drifts from the baseline.
//
// A Monitor is not safe for concurrent writers. Callers serialize access.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Monitor owns the baseline records and pending alerts. State is loaded
// once at construction and saved after every mutation.
type Monitor struct {
	store  *ProvenanceStore
	state  State
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewMonitor loads state from store
func NewMonitor(store *ProvenanceStore, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		store:  store,
		state:  store.Load(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Digest returns the hex SHA-256 of content
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (m *Monitor) save() error {
	return m.store.Save(m.state)
}

// Register baselines filename. Registering a known filename returns the
// existing id without touching the baseline; use UpdateBaseline for that.
func (m *Monitor) Register(filename, content string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("register: empty filename")
	}
	if rec, ok := m.state.FindByFilename(filename); ok {
		return rec.ID, nil
	}

	critical := IsSecurityCritical(filename)
	meta := Classify(filename)
	rec := FileIntegrityRecord{
		ID:                 m.newID(),
		Filename:           path.Base(strings.ReplaceAll(filename, "\\", "/")),
		Path:               filename,
		Checksum:           Digest(content),
		Algorithm:          DefaultAlgorithm,
		Size:               int64(len(content)),
		LastModified:       m.now(),
		IsSecurityCritical: critical,
		IsBaseline:         true,
		Tags:               tagsFor(meta, critical),
		Metadata:           meta,
	}
	m.state.Put(rec)

	m.logger.Debug("registered file", "file", filename, "id", rec.ID, "critical", critical)
	if err := m.save(); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Verify compares content against the baseline of filename. An unknown
// filename fails closed with IsValid=false and no record.
func (m *Monitor) Verify(filename, content string) (VerifyResult, error) {
	rec, ok := m.state.FindByFilename(filename)
	if !ok {
		return VerifyResult{IsValid: false}, nil
	}

	digest := Digest(content)
	if digest == rec.Checksum {
		return VerifyResult{IsValid: true, Record: &rec}, nil
	}

	changes := m.changesFor(rec, content, digest)
	alert, added := m.raise(m.modificationAlert(rec, changes, digest))
	if added {
		if err := m.save(); err != nil {
			return VerifyResult{}, err
		}
	}
	return VerifyResult{IsValid: false, Record: &rec, Changes: changes, Alert: &alert}, nil
}

func (m *Monitor) changesFor(rec FileIntegrityRecord, content, digest string) []FileChange {
	ts := m.now()
	changes := []FileChange{{
		Kind:       ChangeContent,
		Field:      "checksum",
		OldValue:   rec.Checksum,
		NewValue:   digest,
		Timestamp:  ts,
		Confidence: 100,
	}}
	if size := int64(len(content)); size != rec.Size {
		changes = append(changes, FileChange{
			Kind:       ChangeContent,
			Field:      "size",
			OldValue:   fmt.Sprintf("%d", rec.Size),
			NewValue:   fmt.Sprintf("%d", size),
			Timestamp:  ts,
			Confidence: 100,
		})
	}
	return changes
}

func (m *Monitor) modificationAlert(rec FileIntegrityRecord, changes []FileChange, digest string) TamperingAlert {
	severity, fp := "high", 30
	risk := "Unexpected modification of a monitored file"
	if rec.IsSecurityCritical {
		severity, fp = "critical", 10
		risk = "Security-critical file modified; may indicate tampering or a supply chain compromise"
	}
	return TamperingAlert{
		FileID:            rec.ID,
		Filename:          rec.Path,
		Type:              AlertModification,
		Severity:          severity,
		DetectedAt:        m.now(),
		Description:       fmt.Sprintf("File %s has been modified since baseline", rec.Path),
		Changes:           changes,
		RiskAssessment:    risk,
		FalsePositiveRisk: fp,
		Checksum:          digest,
		RecommendedActions: []string{
			"Review the change against version control history",
			"Confirm the change was authorized",
			"Rebaseline the file once the change is verified",
		},
	}
}

func (m *Monitor) deletionAlert(rec FileIntegrityRecord) TamperingAlert {
	severity := "medium"
	if rec.IsSecurityCritical {
		severity = "critical"
	}
	return TamperingAlert{
		FileID:            rec.ID,
		Filename:          rec.Path,
		Type:              AlertDeletion,
		Severity:          severity,
		DetectedAt:        m.now(),
		Description:       fmt.Sprintf("Monitored file %s is missing", rec.Path),
		RiskAssessment:    "A baselined file was removed from the monitored set",
		FalsePositiveRisk: 5,
		Checksum:          rec.Checksum,
		RecommendedActions: []string{
			"Confirm the deletion was intentional",
			"Restore the file from a trusted source if it was not",
		},
	}
}

func (m *Monitor) suspiciousAlert(filename, digest string, reasons []string) TamperingAlert {
	return TamperingAlert{
		Filename:          filename,
		Type:              AlertSuspiciousPattern,
		Severity:          "medium",
		DetectedAt:        m.now(),
		Description:       fmt.Sprintf("New file %s matches suspicious patterns: %s", filename, strings.Join(reasons, ", ")),
		RiskAssessment:    "Unbaselined file with characteristics common to injected code",
		FalsePositiveRisk: 60,
		Checksum:          digest,
		RecommendedActions: []string{
			"Inspect the file contents",
			"Register the file if it is expected",
		},
	}
}

// raise appends alert unless an equivalent one is pending. It returns the
// pending alert and whether it was newly added. Nothing is recorded while
// monitoring is disabled.
func (m *Monitor) raise(alert TamperingAlert) (TamperingAlert, bool) {
	if existing, ok := m.findAlert(alert); ok {
		return existing, false
	}
	alert.ID = m.newID()
	if !m.state.MonitoringEnabled {
		return alert, false
	}
	m.state.Alerts = append(m.state.Alerts, alert)
	m.logger.Info("integrity alert", "type", alert.Type, "file", alert.Filename, "severity", alert.Severity)
	return alert, true
}

func (m *Monitor) findAlert(a TamperingAlert) (TamperingAlert, bool) {
	for _, p := range m.state.Alerts {
		if p.Type != a.Type || p.Checksum != a.Checksum {
			continue
		}
		if a.FileID != "" && p.FileID == a.FileID {
			return p, true
		}
		if a.FileID == "" && p.FileID == "" && p.Filename == a.Filename {
			return p, true
		}
	}
	return TamperingAlert{}, false
}

// Scan reconciles files against every baseline in one pass: modified
// and deleted baselines and suspicious unbaselined files raise alerts.
// files must be the complete current file set.
func (m *Monitor) Scan(ctx context.Context, files []File) (*ProvenanceReport, error) {
	return m.ScanUnder(ctx, nil, files)
}

// ScanUnder is Scan for a partial tree: files holds everything found
// under roots, and a baseline missing from files only counts as deleted
// when it lies under one of roots. No roots means the whole tree.
func (m *Monitor) ScanUnder(ctx context.Context, roots []string, files []File) (*ProvenanceReport, error) {
	current := make(map[string]string, len(files))
	for _, f := range files {
		current[f.Filename] = f.Content
	}

	report := &ProvenanceReport{
		TotalFiles:     len(current),
		MonitoredFiles: len(m.state.Records),
		ScannedAt:      m.now(),
		Alerts:         []TamperingAlert{},
		ByCategory:     map[string]int{},
		ByImportance:   map[string]int{},
		ByLanguage:     map[string]int{},
	}

	known := make(map[string]bool, len(m.state.Records))
	dirty := false
	var suspicious int
	emit := func(a TamperingAlert) {
		alert, added := m.raise(a)
		report.Alerts = append(report.Alerts, alert)
		if added {
			report.NewViolations++
			dirty = true
		}
	}

	for _, rec := range m.state.SortedRecords() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rec.IsSecurityCritical {
			report.CriticalFiles++
		}
		report.ByCategory[rec.Metadata.Category]++
		report.ByImportance[rec.Metadata.Importance]++
		report.ByLanguage[rec.Metadata.Language]++
		known[rec.Path] = true

		content, present := current[rec.Path]
		if !present {
			if underAny(rec.Path, roots) {
				emit(m.deletionAlert(rec))
			}
			continue
		}
		if digest := Digest(content); digest != rec.Checksum {
			emit(m.modificationAlert(rec, m.changesFor(rec, content, digest), digest))
		}
	}

	names := make([]string, 0, len(current))
	for name := range current {
		if !known[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content := current[name]
		reasons := suspiciousReasons(name, content)
		if len(reasons) == 0 {
			continue
		}
		suspicious++
		emit(m.suspiciousAlert(name, Digest(content), reasons))
	}

	var critical, high int
	for _, a := range report.Alerts {
		switch a.Severity {
		case "critical":
			critical++
		case "high":
			high++
		}
	}
	report.Violations = len(report.Alerts)
	report.RiskScore = RiskScore(critical, high, suspicious)

	if dirty {
		if err := m.save(); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// underAny reports whether name is one of roots or lies below one
func underAny(name string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		root = path.Clean(filepath.ToSlash(root))
		if root == "." && !path.IsAbs(name) && !strings.HasPrefix(name, "../") {
			return true
		}
		if name == root || strings.HasPrefix(name, strings.TrimSuffix(root, "/")+"/") {
			return true
		}
	}
	return false
}

// RiskScore is min(100, 25*critical + 10*high + 5*newFiles)
func RiskScore(critical, high, newFiles int) int {
	score := 25*critical + 10*high + 5*newFiles
	if score > 100 {
		return 100
	}
	return score
}

// ResolveAlert removes the pending alert id. Unknown ids return false.
func (m *Monitor) ResolveAlert(id string) (bool, error) {
	for i, a := range m.state.Alerts {
		if a.ID != id {
			continue
		}
		m.state.Alerts = append(m.state.Alerts[:i], m.state.Alerts[i+1:]...)
		return true, m.save()
	}
	return false, nil
}

// UpdateBaseline replaces the baseline of a known filename and drops its
// pending alerts. Unknown filenames return false.
func (m *Monitor) UpdateBaseline(filename, content string) (bool, error) {
	rec, ok := m.state.FindByFilename(filename)
	if !ok {
		return false, nil
	}

	rec.Checksum = Digest(content)
	rec.Size = int64(len(content))
	rec.LastModified = m.now()
	rec.IsBaseline = true
	m.state.Put(rec)
	m.dropAlertsFor(rec.ID)

	return true, m.save()
}

// Remove stops monitoring filename and drops its pending alerts
func (m *Monitor) Remove(filename string) (bool, error) {
	rec, ok := m.state.FindByFilename(filename)
	if !ok {
		return false, nil
	}
	m.state.Delete(rec.ID)
	m.dropAlertsFor(rec.ID)
	return true, m.save()
}

func (m *Monitor) dropAlertsFor(fileID string) {
	kept := m.state.Alerts[:0]
	for _, a := range m.state.Alerts {
		if a.FileID != fileID {
			kept = append(kept, a)
		}
	}
	m.state.Alerts = kept
}

// Reset clears every record and alert
func (m *Monitor) Reset() error {
	enabled := m.state.MonitoringEnabled
	m.state = NewState()
	m.state.MonitoringEnabled = enabled
	return m.save()
}

// SetMonitoring toggles alert recording. Verification still reports
// changes while disabled.
func (m *Monitor) SetMonitoring(enabled bool) error {
	m.state.MonitoringEnabled = enabled
	return m.save()
}

// MonitoringEnabled reports whether alerts are recorded
func (m *Monitor) MonitoringEnabled() bool {
	return m.state.MonitoringEnabled
}

// Records returns all baselines ordered by path
func (m *Monitor) Records() []FileIntegrityRecord {
	return m.state.SortedRecords()
}

// Record looks up the baseline of filename
func (m *Monitor) Record(filename string) (FileIntegrityRecord, bool) {
	return m.state.FindByFilename(filename)
}

// Alerts returns pending alerts, oldest first
func (m *Monitor) Alerts() []TamperingAlert {
	out := make([]TamperingAlert, len(m.state.Alerts))
	copy(out, m.state.Alerts)
	return out
}
