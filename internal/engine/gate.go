package engine

// GateStatus is the outcome of one quality gate condition
type GateStatus string

const (
	GateOK    GateStatus = "OK"
	GateError GateStatus = "ERROR"
)

// Quality gate condition names
const (
	CondVulnerabilities    = "new_vulnerabilities"
	CondBugs               = "new_bugs"
	CondMaintainability    = "new_maintainability_rating"
	CondTechnicalDebtRatio = "new_technical_debt_ratio"
	CondCodeSmells         = "new_code_smells"
	CondDuplicationDensity = "new_duplicated_lines_density"
)

// Gate thresholds
const (
	MaxVulnerabilities    = 0
	MaxBugs               = 5
	MinMaintainability    = 65
	MaxTechnicalDebtRatio = 5
	MaxCodeSmells         = 10
	MaxDuplicationDensity = 3
)

// GateCondition is one evaluated threshold check
type GateCondition struct {
	Metric    string     `json:"metric"`
	Status    GateStatus `json:"status"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
	Operator  string     `json:"operator"` // GT: error when value > threshold, LT: error when value < threshold
}

// QualityGateResult holds the gate verdict and every condition
type QualityGateResult struct {
	Passed     bool            `json:"passed"`
	Conditions []GateCondition `json:"conditions"`
}

// Failed returns the conditions in ERROR state
func (r QualityGateResult) Failed() []GateCondition {
	var out []GateCondition
	for _, c := range r.Conditions {
		if c.Status == GateError {
			out = append(out, c)
		}
	}
	return out
}

// GateInput carries the values the quality gate checks
type GateInput struct {
	Vulnerabilities        int
	Bugs                   int
	MaintainabilityIndex   float64
	TechnicalDebtRatio     float64
	CodeSmells             int
	DuplicatedLinesDensity float64
}

// GateInputFrom extracts gate inputs from file metrics
func GateInputFrom(m CodeQualityMetrics) GateInput {
	return GateInput{
		Vulnerabilities:        m.Vulnerabilities,
		Bugs:                   m.Bugs,
		MaintainabilityIndex:   m.MaintainabilityIndex,
		TechnicalDebtRatio:     m.TechnicalDebtRatio,
		CodeSmells:             m.CodeSmells,
		DuplicatedLinesDensity: m.DuplicatedLinesDensity,
	}
}

// EvaluateGate checks the six fixed conditions. The gate passes iff all are OK.
func EvaluateGate(in GateInput) QualityGateResult {
	conds := []GateCondition{
		upperBound(CondVulnerabilities, float64(in.Vulnerabilities), MaxVulnerabilities),
		upperBound(CondBugs, float64(in.Bugs), MaxBugs),
		lowerBound(CondMaintainability, in.MaintainabilityIndex, MinMaintainability),
		upperBound(CondTechnicalDebtRatio, in.TechnicalDebtRatio, MaxTechnicalDebtRatio),
		upperBound(CondCodeSmells, float64(in.CodeSmells), MaxCodeSmells),
		upperBound(CondDuplicationDensity, in.DuplicatedLinesDensity, MaxDuplicationDensity),
	}

	passed := true
	for _, c := range conds {
		if c.Status == GateError {
			passed = false
		}
	}
	return QualityGateResult{Passed: passed, Conditions: conds}
}

func upperBound(metric string, value, threshold float64) GateCondition {
	status := GateOK
	if value > threshold {
		status = GateError
	}
	return GateCondition{Metric: metric, Status: status, Value: value, Threshold: threshold, Operator: "GT"}
}

func lowerBound(metric string, value, threshold float64) GateCondition {
	status := GateOK
	if value < threshold {
		status = GateError
	}
	return GateCondition{Metric: metric, Status: status, Value: value, Threshold: threshold, Operator: "LT"}
}
