package domain

// Role is a contributor in a deliberation round.
type Role string

const (
	RoleHypothesis      Role = "hypothesis"
	RoleTestSelection   Role = "test_selection"
	RoleChallenge       Role = "challenge"
	RoleCostStewardship Role = "cost_stewardship"
	RoleQualityCheck    Role = "quality_check"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleHypothesis, RoleTestSelection, RoleChallenge, RoleCostStewardship, RoleQualityCheck:
		return true
	}
	return false
}

// DiagnosisDelta is a contributor's stated estimate for one condition.
type DiagnosisDelta struct {
	ConditionID string  `json:"condition_id"`
	Probability float64 `json:"probability"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Contribution is the structured result of one role for one round.
type Contribution struct {
	Role            Role             `json:"role"`
	Round           int              `json:"round"`
	Narrative       string           `json:"narrative"`
	DiagnosisDeltas []DiagnosisDelta `json:"diagnosis_deltas,omitempty"`
	TestsRequested  []string         `json:"tests_requested,omitempty"`
	CostEstimate    *float64         `json:"cost_estimate,omitempty"`
	BiasesFound     []string         `json:"biases_found,omitempty"`
	Failed          bool             `json:"failed,omitempty"`
}

func (c Contribution) Clone() Contribution {
	out := c
	out.DiagnosisDeltas = append([]DiagnosisDelta(nil), c.DiagnosisDeltas...)
	out.TestsRequested = cloneStrings(c.TestsRequested)
	out.BiasesFound = cloneStrings(c.BiasesFound)
	if c.CostEstimate != nil {
		v := *c.CostEstimate
		out.CostEstimate = &v
	}
	return out
}
