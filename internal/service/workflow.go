package service

import (
	"strings"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
)

// WorkflowConfig holds the stopping rules and limits of an investigation.
type WorkflowConfig struct {
	MaxRounds              int
	MinInteractionRounds   int
	MaxInteractionRounds   int
	ConfidenceThreshold    float64
	LowConfidenceThreshold float64
	MaxCandidates          int
	CostBudget             float64
	HistoryLimit           int
	MaxStepsPerRun         int
	// LiveCandidateFloor is the posterior at or above which a condition
	// counts as a live candidate for fan-out checks.
	LiveCandidateFloor float64
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxRounds:              6,
		MinInteractionRounds:   2,
		MaxInteractionRounds:   5,
		ConfidenceThreshold:    0.8,
		LowConfidenceThreshold: 0.4,
		MaxCandidates:          5,
		CostBudget:             2000,
		HistoryLimit:           12,
		MaxStepsPerRun:         32,
		LiveCandidateFloor:     0.05,
	}
}

// Snapshot is the read-only view of a case the transition function decides on.
type Snapshot struct {
	Phase             domain.Phase
	AwaitingUserInput bool
	PendingQuestions  int
	ReadyForDiagnosis bool
	CumulativeCost    float64
	CostBudget        float64
	DebateRound       int
	InteractionRound  int
	Confidence        float64
	LiveCandidates    int
	MissingEssentials []string
	RecentNarratives  []string
	TestsRequested    bool
}

// SnapshotOf extracts the decision inputs from a case.
func SnapshotOf(s domain.CaseState, cfg WorkflowConfig) Snapshot {
	snap := Snapshot{
		Phase:             s.Phase,
		AwaitingUserInput: s.AwaitingUserInput,
		PendingQuestions:  len(s.PendingQuestions),
		ReadyForDiagnosis: s.ReadyForDiagnosis,
		CumulativeCost:    s.CumulativeCost,
		CostBudget:        s.CostBudget,
		DebateRound:       s.DebateRound,
		InteractionRound:  s.InteractionRound,
		Confidence:        s.Confidence,
		MissingEssentials: s.Facts.MissingEssentials(),
		TestsRequested:    len(s.RequestedTests) > 0,
	}
	for _, b := range s.Beliefs {
		if b.PosteriorProbability >= cfg.LiveCandidateFloor {
			snap.LiveCandidates++
		}
	}
	for _, c := range s.Contributions {
		if c.Round == s.DebateRound && !c.Failed {
			snap.RecentNarratives = append(snap.RecentNarratives, c.Narrative)
		}
	}
	return snap
}

// Decision is the outcome of one transition.
type Decision struct {
	Next   domain.Phase
	Action domain.Action
	Reason string
}

var informationRequestMarkers = []string{"need", "require", "clarify"}

func mentionsInformationRequest(narratives []string) bool {
	for _, n := range narratives {
		lower := strings.ToLower(n)
		for _, m := range informationRequestMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

func interactionFloorUnmet(s Snapshot, cfg WorkflowConfig) bool {
	return s.InteractionRound < cfg.MinInteractionRounds
}

// NeedsMoreInformation is the question-generation policy.
func NeedsMoreInformation(s Snapshot, cfg WorkflowConfig) bool {
	if s.PendingQuestions > 0 {
		return false
	}
	if interactionFloorUnmet(s, cfg) {
		return true
	}
	if cfg.MaxInteractionRounds > 0 && s.InteractionRound >= cfg.MaxInteractionRounds {
		return false
	}
	switch {
	case s.Confidence < cfg.LowConfidenceThreshold:
		return true
	case cfg.MaxCandidates > 0 && s.LiveCandidates > cfg.MaxCandidates:
		return true
	case len(s.MissingEssentials) > 0:
		return true
	case mentionsInformationRequest(s.RecentNarratives):
		return true
	}
	return false
}

// nextPhase walks the linear phase order and stays in deliberation once reached.
func nextPhase(p domain.Phase) domain.Phase {
	switch p {
	case domain.PhaseCasePresentation:
		return domain.PhaseInitialAssessment
	case domain.PhaseInitialAssessment:
		return domain.PhaseInformationGathering
	case domain.PhaseInformationGathering:
		return domain.PhaseTestSelection
	default:
		return domain.PhaseDeliberation
	}
}

func suspend(reason string) Decision {
	return Decision{Next: domain.PhasePatientInteraction, Action: domain.ActionSuspend, Reason: reason}
}

func finalize(reason string) Decision {
	return Decision{Next: domain.PhaseFinalDiagnosis, Action: domain.ActionFinalize, Reason: reason}
}

// Transition decides the next phase and action. It is total and pure: every
// snapshot maps to exactly one decision and nothing is mutated.
func Transition(s Snapshot, cfg WorkflowConfig) Decision {
	if s.CumulativeCost >= s.CostBudget {
		return finalize("cost budget exhausted")
	}
	if s.AwaitingUserInput || s.PendingQuestions > 0 {
		return suspend("awaiting answers to pending questions")
	}
	if NeedsMoreInformation(s, cfg) {
		return suspend("more information needed")
	}
	if s.ReadyForDiagnosis || s.Phase == domain.PhaseFinalDiagnosis {
		if interactionFloorUnmet(s, cfg) && s.Confidence < cfg.ConfidenceThreshold {
			return suspend("interaction floor not met")
		}
		return finalize("ready for diagnosis")
	}
	if s.DebateRound >= cfg.MaxRounds {
		if interactionFloorUnmet(s, cfg) {
			return suspend("round limit reached before interaction floor")
		}
		return finalize("round limit reached")
	}
	if s.DebateRound > 0 && s.DebateRound%2 == 0 && interactionFloorUnmet(s, cfg) {
		return suspend("periodic check-in")
	}
	if s.TestsRequested {
		return Decision{Next: domain.PhaseDeliberation, Action: domain.ActionExecuteTests, Reason: "tests requested"}
	}
	return Decision{Next: nextPhase(s.Phase), Action: domain.ActionDeliberate, Reason: "continue deliberation"}
}
