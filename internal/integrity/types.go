package integrity

import "time"

// DefaultAlgorithm is the digest used for every record
const DefaultAlgorithm = "sha256"

// File categories
const (
	CategorySource     = "source"
	CategoryConfig     = "config"
	CategoryDependency = "dependency"
	CategoryBuild      = "build"
	CategorySecurity   = "security"
)

// Importance levels
const (
	ImportanceCritical = "critical"
	ImportanceHigh     = "high"
	ImportanceMedium   = "medium"
	ImportanceLow      = "low"
)

// AlertType is the kind of integrity violation
type AlertType string

const (
	AlertModification       AlertType = "modification"
	AlertDeletion           AlertType = "deletion"
	AlertUnauthorizedAccess AlertType = "unauthorized_access"
	AlertSuspiciousPattern  AlertType = "suspicious_pattern"
)

// ChangeKind classifies a FileChange
type ChangeKind string

const (
	ChangeContent     ChangeKind = "content"
	ChangePermissions ChangeKind = "permissions"
	ChangeMetadata    ChangeKind = "metadata"
	ChangeLocation    ChangeKind = "location"
)

// RecordMetadata is the classification attached to a monitored file
type RecordMetadata struct {
	Category   string `json:"category"`
	Importance string `json:"importance"`
	Language   string `json:"language"`
}

// FileIntegrityRecord is the baseline of one monitored file
type FileIntegrityRecord struct {
	ID                 string         `json:"id"`
	Filename           string         `json:"filename"`
	Path               string         `json:"path"`
	Checksum           string         `json:"checksum"`
	Algorithm          string         `json:"algorithm"`
	Size               int64          `json:"size"`
	LastModified       time.Time      `json:"lastModified"`
	IsSecurityCritical bool           `json:"isSecurityCritical"`
	IsBaseline         bool           `json:"isBaseline"`
	Tags               []string       `json:"tags"`
	Metadata           RecordMetadata `json:"metadata"`
}

// FileChange is one attribute delta between baseline and current state
type FileChange struct {
	Kind       ChangeKind `json:"type"`
	Field      string     `json:"field"`
	OldValue   string     `json:"oldValue"`
	NewValue   string     `json:"newValue"`
	Timestamp  time.Time  `json:"timestamp"`
	Confidence int        `json:"confidence"`
}

// TamperingAlert is a pending integrity violation
type TamperingAlert struct {
	ID                 string       `json:"id"`
	FileID             string       `json:"fileId"`
	Filename           string       `json:"filename"`
	Type               AlertType    `json:"alertType"`
	Severity           string       `json:"severity"`
	DetectedAt         time.Time    `json:"detectedAt"`
	Description        string       `json:"description"`
	Changes            []FileChange `json:"changes"`
	RiskAssessment     string       `json:"riskAssessment"`
	RecommendedActions []string     `json:"recommendedActions"`
	FalsePositiveRisk  int          `json:"falsePositiveRisk"`
	// Checksum is the observed digest that raised the alert. Deletion
	// alerts carry the baseline digest.
	Checksum string `json:"checksum,omitempty"`
}

// VerifyResult is the outcome of Verify. An unregistered file yields
// IsValid=false with a nil Record.
type VerifyResult struct {
	IsValid bool                 `json:"isValid"`
	Record  *FileIntegrityRecord `json:"record,omitempty"`
	Changes []FileChange         `json:"changes,omitempty"`
	Alert   *TamperingAlert      `json:"alert,omitempty"`
}

// File is one current file presented to Scan
type File struct {
	Filename string
	Content  string
}

// ProvenanceReport summarizes one Scan call
type ProvenanceReport struct {
	TotalFiles     int              `json:"totalFiles"`
	MonitoredFiles int              `json:"monitoredFiles"`
	CriticalFiles  int              `json:"criticalFiles"`
	Violations     int              `json:"violations"`
	NewViolations  int              `json:"newViolations"`
	ScannedAt      time.Time        `json:"scannedAt"`
	Alerts         []TamperingAlert `json:"alerts"`
	ByCategory     map[string]int   `json:"byCategory"`
	ByImportance   map[string]int   `json:"byImportance"`
	ByLanguage     map[string]int   `json:"byLanguage"`
	RiskScore      int              `json:"riskScore"`
}
