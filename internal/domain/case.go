package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase is a node of the investigation workflow.
type Phase string

const (
	PhaseCasePresentation     Phase = "case_presentation"
	PhaseInitialAssessment    Phase = "initial_assessment"
	PhaseInformationGathering Phase = "information_gathering"
	PhaseTestSelection        Phase = "test_selection"
	PhaseDeliberation         Phase = "deliberation"
	PhaseFinalDiagnosis       Phase = "final_diagnosis"
	PhasePatientInteraction   Phase = "patient_interaction"
)

func (p Phase) IsValid() bool {
	switch p {
	case PhaseCasePresentation, PhaseInitialAssessment, PhaseInformationGathering,
		PhaseTestSelection, PhaseDeliberation, PhaseFinalDiagnosis, PhasePatientInteraction:
		return true
	}
	return false
}

// Action is what the workflow performs after a transition decision.
type Action string

const (
	ActionSuspend      Action = "suspend"
	ActionFinalize     Action = "finalize"
	ActionExecuteTests Action = "execute_tests"
	ActionDeliberate   Action = "deliberate"
)

type CaseStatus string

const (
	CaseStatusActive    CaseStatus = "active"
	CaseStatusSuspended CaseStatus = "suspended"
	CaseStatusFinalized CaseStatus = "finalized"
)

type SymptomFact struct {
	Name     string `json:"name"`
	Present  *bool  `json:"present,omitempty"`
	Severity string `json:"severity,omitempty"`
}

type TestResultFact struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// CaseFacts is the structured view of the free-text case. Nil lists mean the
// field was never recorded; an empty list means it was recorded as empty.
type CaseFacts struct {
	Age             int              `json:"age"`
	Gender          string           `json:"gender"`
	ChiefComplaint  string           `json:"chief_complaint"`
	History         []string         `json:"history"`
	Symptoms        []SymptomFact    `json:"symptoms"`
	Medications     []string         `json:"medications"`
	Allergies       []string         `json:"allergies"`
	FamilyHistory   []string         `json:"family_history"`
	SymptomTimeline string           `json:"symptom_timeline"`
	SymptomSeverity string           `json:"symptom_severity"`
	TestResults     []TestResultFact `json:"test_results,omitempty"`
}

// Essential case fields, in the order questions about them are asked.
const (
	FieldAge             = "age"
	FieldGender          = "gender"
	FieldMedications     = "medications"
	FieldAllergies       = "allergies"
	FieldFamilyHistory   = "family_history"
	FieldSymptomTimeline = "symptom_timeline"
	FieldSymptomSeverity = "symptom_severity"
)

// MissingEssentials lists the essential fields that are still unrecorded.
func (f CaseFacts) MissingEssentials() []string {
	var missing []string
	if f.Age <= 0 {
		missing = append(missing, FieldAge)
	}
	if g := strings.ToLower(strings.TrimSpace(f.Gender)); g == "" || g == "unknown" {
		missing = append(missing, FieldGender)
	}
	if f.Medications == nil {
		missing = append(missing, FieldMedications)
	}
	if f.Allergies == nil {
		missing = append(missing, FieldAllergies)
	}
	if f.FamilyHistory == nil {
		missing = append(missing, FieldFamilyHistory)
	}
	if strings.TrimSpace(f.SymptomTimeline) == "" {
		missing = append(missing, FieldSymptomTimeline)
	}
	if strings.TrimSpace(f.SymptomSeverity) == "" {
		missing = append(missing, FieldSymptomSeverity)
	}
	return missing
}

// Merge fills unrecorded fields from other and unions list fields.
func (f CaseFacts) Merge(other CaseFacts) CaseFacts {
	out := f.Clone()
	if out.Age <= 0 && other.Age > 0 {
		out.Age = other.Age
	}
	if g := strings.ToLower(strings.TrimSpace(out.Gender)); (g == "" || g == "unknown") && other.Gender != "" {
		out.Gender = other.Gender
	}
	if out.ChiefComplaint == "" {
		out.ChiefComplaint = other.ChiefComplaint
	}
	if out.SymptomTimeline == "" {
		out.SymptomTimeline = other.SymptomTimeline
	}
	if out.SymptomSeverity == "" {
		out.SymptomSeverity = other.SymptomSeverity
	}
	out.History = unionStrings(out.History, other.History)
	out.Medications = unionStrings(out.Medications, other.Medications)
	out.Allergies = unionStrings(out.Allergies, other.Allergies)
	out.FamilyHistory = unionStrings(out.FamilyHistory, other.FamilyHistory)

	seen := make(map[string]int, len(out.Symptoms))
	for i, s := range out.Symptoms {
		seen[strings.ToLower(s.Name)] = i
	}
	for _, s := range other.Symptoms {
		if i, ok := seen[strings.ToLower(s.Name)]; ok {
			out.Symptoms[i] = s
			continue
		}
		seen[strings.ToLower(s.Name)] = len(out.Symptoms)
		out.Symptoms = append(out.Symptoms, s)
	}
	out.TestResults = append(out.TestResults, other.TestResults...)
	return out
}

func (f CaseFacts) Clone() CaseFacts {
	out := f
	out.History = cloneStrings(f.History)
	out.Medications = cloneStrings(f.Medications)
	out.Allergies = cloneStrings(f.Allergies)
	out.FamilyHistory = cloneStrings(f.FamilyHistory)
	if f.Symptoms != nil {
		out.Symptoms = append([]SymptomFact{}, f.Symptoms...)
	}
	if f.TestResults != nil {
		out.TestResults = append([]TestResultFact{}, f.TestResults...)
	}
	return out
}

// unionStrings keeps nil only when both inputs are nil so that
// "recorded as empty" survives a merge.
func unionStrings(a, b []string) []string {
	if a == nil && b == nil {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			k := strings.ToLower(strings.TrimSpace(s))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

// DiagnosisEntry is one row of the ranked differential. Probability is the
// belief engine posterior; ReportedProbability is the last estimate a
// contributor stated for the condition.
type DiagnosisEntry struct {
	Rank                int      `json:"rank"`
	ConditionID         string   `json:"condition_id"`
	Probability         float64  `json:"probability"`
	ReportedProbability float64  `json:"reported_probability,omitempty"`
	Reasoning           string   `json:"reasoning,omitempty"`
	SupportingNotes     []string `json:"supporting_notes,omitempty"`
	ClassificationCode  string   `json:"classification_code,omitempty"`
}

type QuestionCategory string

const (
	QuestionDemographics  QuestionCategory = "demographics"
	QuestionHistory       QuestionCategory = "history"
	QuestionMedications   QuestionCategory = "medications"
	QuestionAllergies     QuestionCategory = "allergies"
	QuestionFamilyHistory QuestionCategory = "family_history"
	QuestionSymptoms      QuestionCategory = "symptoms"
	QuestionTestResult    QuestionCategory = "test_result"
	QuestionClarification QuestionCategory = "clarification"
)

func (c QuestionCategory) IsValid() bool {
	switch c {
	case QuestionDemographics, QuestionHistory, QuestionMedications, QuestionAllergies,
		QuestionFamilyHistory, QuestionSymptoms, QuestionTestResult, QuestionClarification:
		return true
	}
	return false
}

// PendingQuestion is a request for human-supplied information.
// Lower Priority values are asked first.
type PendingQuestion struct {
	ID             uuid.UUID        `json:"id"`
	RequestingRole Role             `json:"requesting_role"`
	Category       QuestionCategory `json:"category"`
	Text           string           `json:"text"`
	Priority       int              `json:"priority"`
}

type OrderedTest struct {
	Name           string    `json:"name"`
	EvidenceName   string    `json:"evidence_name"`
	Cost           float64   `json:"cost"`
	Sensitivity    float64   `json:"sensitivity"`
	Specificity    float64   `json:"specificity"`
	OrderedAt      time.Time `json:"ordered_at"`
	ResultReceived bool      `json:"result_received"`
}

type HistoryEntry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type BiasFlag struct {
	Bias  string `json:"bias"`
	Role  Role   `json:"role"`
	Round int    `json:"round"`
}

type SimilarCase struct {
	ID             uuid.UUID `json:"id"`
	FinalDiagnosis string    `json:"final_diagnosis"`
	Confidence     float64   `json:"confidence"`
	Score          float64   `json:"score"`
}

// CaseState is the single record threading through the workflow.
type CaseState struct {
	ID          uuid.UUID  `json:"id"`
	Description string     `json:"description"`
	Facts       CaseFacts  `json:"facts"`
	Status      CaseStatus `json:"status"`

	Phase       Phase `json:"phase"`
	ResumePhase Phase `json:"resume_phase,omitempty"`

	DebateRound      int `json:"debate_round"`
	InteractionRound int `json:"interaction_round"`

	CumulativeCost float64 `json:"cumulative_cost"`
	CostBudget     float64 `json:"cost_budget"`

	Confidence        float64 `json:"confidence"`
	ReadyForDiagnosis bool    `json:"ready_for_diagnosis"`
	AwaitingUserInput bool    `json:"awaiting_user_input"`

	Differential []DiagnosisEntry `json:"differential"`
	Beliefs      []BeliefRecord   `json:"beliefs"`
	EvidenceKeys []string         `json:"evidence_keys,omitempty"`

	PendingQuestions []PendingQuestion `json:"pending_questions,omitempty"`
	AskedQuestions   []PendingQuestion `json:"asked_questions,omitempty"`

	Contributions     []Contribution `json:"contributions,omitempty"`
	ContributionCount int            `json:"contribution_count"`
	RequestedTests    []string       `json:"requested_tests,omitempty"`
	OrderedTests      []OrderedTest  `json:"ordered_tests,omitempty"`
	BiasLog           []BiasFlag     `json:"bias_log,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
	SimilarCases      []SimilarCase  `json:"similar_cases,omitempty"`

	FinalDiagnosis   string  `json:"final_diagnosis,omitempty"`
	ReasoningQuality float64 `json:"reasoning_quality"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCaseState builds the initial state for a freshly presented case.
func NewCaseState(id uuid.UUID, description string, facts CaseFacts, costBudget float64) CaseState {
	now := time.Now().UTC()
	return CaseState{
		ID:          id,
		Description: description,
		Facts:       facts,
		Status:      CaseStatusActive,
		Phase:       PhaseCasePresentation,
		CostBudget:  costBudget,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasEvidence reports whether an evidence key was already applied to the case.
func (s CaseState) HasEvidence(key string) bool {
	for _, k := range s.EvidenceKeys {
		if k == key {
			return true
		}
	}
	return false
}

// OutstandingTests returns ordered tests still waiting for a result.
func (s CaseState) OutstandingTests() []OrderedTest {
	var out []OrderedTest
	for _, t := range s.OrderedTests {
		if !t.ResultReceived {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy so that round steps never alias their input.
func (s CaseState) Clone() CaseState {
	out := s
	out.Facts = s.Facts.Clone()
	if s.Differential != nil {
		out.Differential = make([]DiagnosisEntry, len(s.Differential))
		for i, d := range s.Differential {
			d.SupportingNotes = cloneStrings(d.SupportingNotes)
			out.Differential[i] = d
		}
	}
	if s.Beliefs != nil {
		out.Beliefs = make([]BeliefRecord, len(s.Beliefs))
		for i, b := range s.Beliefs {
			b.EvidenceLog = append([]Evidence(nil), b.EvidenceLog...)
			out.Beliefs[i] = b
		}
	}
	out.EvidenceKeys = cloneStrings(s.EvidenceKeys)
	out.PendingQuestions = append([]PendingQuestion(nil), s.PendingQuestions...)
	out.AskedQuestions = append([]PendingQuestion(nil), s.AskedQuestions...)
	if s.Contributions != nil {
		out.Contributions = make([]Contribution, len(s.Contributions))
		for i, c := range s.Contributions {
			out.Contributions[i] = c.Clone()
		}
	}
	out.RequestedTests = cloneStrings(s.RequestedTests)
	out.OrderedTests = append([]OrderedTest(nil), s.OrderedTests...)
	out.BiasLog = append([]BiasFlag(nil), s.BiasLog...)
	out.History = append([]HistoryEntry(nil), s.History...)
	out.SimilarCases = append([]SimilarCase(nil), s.SimilarCases...)
	return out
}
