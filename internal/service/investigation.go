package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/extract"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"github.com/Harshitk-cp/diagnostician/internal/metrics"
	"github.com/Harshitk-cp/diagnostician/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCaseNotFound     = errors.New("case not found")
	ErrNotSuspended     = errors.New("case is not waiting for input")
	ErrCaseFinalized    = errors.New("case is already finalized")
	ErrEmptyDescription = errors.New("description is required")
	ErrEmptyAnswer      = errors.New("answer is required")
	ErrTestNameMissing  = errors.New("test name is required")
)

const (
	// SimilarCaseLimit is how many finalized cases are recalled into briefings.
	SimilarCaseLimit = 3

	caseLockStripes = 64

	historyRoleCase    = "case"
	historyRolePatient = "patient"
	historyRoleSystem  = "system"
)

// Outcome is what a caller sees after a run: either the questions the case
// is suspended on, or the final diagnosis.
type Outcome struct {
	CaseID           uuid.UUID                `json:"case_id"`
	Status           domain.CaseStatus        `json:"status"`
	Phase            domain.Phase             `json:"phase"`
	Questions        []domain.PendingQuestion `json:"questions,omitempty"`
	FinalDiagnosis   string                   `json:"final_diagnosis,omitempty"`
	Confidence       float64                  `json:"confidence"`
	ReasoningQuality float64                  `json:"reasoning_quality"`
	Differential     []domain.DiagnosisEntry  `json:"differential"`
	CumulativeCost   float64                  `json:"cumulative_cost"`
	CostBudget       float64                  `json:"cost_budget"`
	DebateRound      int                      `json:"debate_round"`
	InteractionRound int                      `json:"interaction_round"`
}

func OutcomeOf(s *domain.CaseState) Outcome {
	return Outcome{
		CaseID:           s.ID,
		Status:           s.Status,
		Phase:            s.Phase,
		Questions:        s.PendingQuestions,
		FinalDiagnosis:   s.FinalDiagnosis,
		Confidence:       s.Confidence,
		ReasoningQuality: s.ReasoningQuality,
		Differential:     s.Differential,
		CumulativeCost:   s.CumulativeCost,
		CostBudget:       s.CostBudget,
		DebateRound:      s.DebateRound,
		InteractionRound: s.InteractionRound,
	}
}

// InvestigationService drives cases through rounds, suspensions and
// finalization. Each case gets its own belief engine rebuilt from the stored
// state; operations on the same case are serialized.
type InvestigationService struct {
	caseStore       domain.CaseStore
	embeddingClient domain.EmbeddingClient
	kb              *knowledge.Base
	intake          *IntakeParser
	rounds          *RoundExecutor
	questions       *QuestionGenerator
	advisor         domain.TestAdvisor
	cfg             WorkflowConfig
	metrics         *metrics.Workflow
	logger          *zap.Logger

	// locks is a fixed stripe table; a case always maps to the same stripe.
	locks [caseLockStripes]sync.Mutex
}

func NewInvestigationService(cs domain.CaseStore, ec domain.EmbeddingClient, oracle domain.Oracle, kb *knowledge.Base, cfg WorkflowConfig, m *metrics.Workflow, logger *zap.Logger) *InvestigationService {
	return &InvestigationService{
		caseStore:       cs,
		embeddingClient: ec,
		kb:              kb,
		intake:          NewIntakeParser(oracle, kb, logger),
		rounds:          NewRoundExecutor(oracle, extract.New(kb), kb, cfg, m, logger),
		questions:       NewQuestionGenerator(oracle, logger),
		advisor:         NewKnowledgeTestAdvisor(kb),
		cfg:             cfg,
		metrics:         m,
		logger:          logger,
	}
}

func (s *InvestigationService) SetTestAdvisor(a domain.TestAdvisor) {
	s.advisor = a
}

func lockStripe(id uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return int(h.Sum32() % caseLockStripes)
}

func (s *InvestigationService) lock(id uuid.UUID) func() {
	mu := &s.locks[lockStripe(id)]
	mu.Lock()
	return mu.Unlock
}

func (s *InvestigationService) load(ctx context.Context, id uuid.UUID) (*domain.CaseState, error) {
	c, err := s.caseStore.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("load case: %w", err)
	}
	return c, nil
}

// newEngine seeds a fresh engine with the knowledge base priors.
func (s *InvestigationService) newEngine() *BeliefEngine {
	engine := NewBeliefEngine(s.kb, s.logger)
	for _, c := range s.kb.Conditions() {
		if err := engine.InitializeDiagnosis(c.ID, c.Prior, c.Code); err != nil {
			s.logger.Warn("skipping condition with invalid prior",
				zap.String("condition", c.ID), zap.Error(err))
		}
	}
	return engine
}

func (s *InvestigationService) engineFor(state *domain.CaseState) *BeliefEngine {
	if len(state.Beliefs) == 0 {
		return s.newEngine()
	}
	engine := NewBeliefEngine(s.kb, s.logger)
	engine.Restore(state.Beliefs)
	return engine
}

// applyEvidence feeds evidence not yet seen by the case into the engine and
// returns how many pieces were applied.
func (s *InvestigationService) applyEvidence(state *domain.CaseState, engine *BeliefEngine, evidence []domain.Evidence) int {
	applied := 0
	for _, ev := range evidence {
		if ev.Name == "" {
			continue
		}
		key := ev.Key()
		if state.HasEvidence(key) {
			continue
		}
		engine.UpdateWithEvidence(ev)
		state.EvidenceKeys = append(state.EvidenceKeys, key)
		s.metrics.EvidenceApplied(string(ev.Kind))
		applied++
	}
	return applied
}

// Start presents a new case and runs it until it suspends or finalizes.
// Starting a case id that already exists is a no-op returning the stored
// state. A nil id gets a generated one.
func (s *InvestigationService) Start(ctx context.Context, id uuid.UUID, description string) (*domain.CaseState, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	unlock := s.lock(id)
	defer unlock()

	existing, err := s.caseStore.Get(ctx, id)
	if err == nil {
		s.logger.Info("case already started, skipping initialization", zap.String("case_id", id.String()))
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load case: %w", err)
	}

	facts, structured := s.intake.Parse(ctx, description)
	state := domain.NewCaseState(id, description, facts, s.cfg.CostBudget)
	state.History = append(state.History, domain.HistoryEntry{
		Role:    historyRoleCase,
		Content: description,
		At:      state.CreatedAt,
	})

	engine := s.newEngine()
	applied := s.applyEvidence(&state, engine, FactsEvidence(facts, s.kb))
	ProjectBeliefs(&state, engine, s.kb)

	embedding := s.recallSimilar(ctx, &state)

	if err := s.caseStore.Create(ctx, &state, embedding); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return s.load(ctx, id)
		}
		return nil, fmt.Errorf("create case: %w", err)
	}
	s.metrics.CaseStarted()

	s.logger.Info("case started",
		zap.String("case_id", id.String()),
		zap.Bool("structured_intake", structured),
		zap.Int("evidence_applied", applied),
		zap.Int("similar_cases", len(state.SimilarCases)))

	return s.run(ctx, state, engine)
}

// recallSimilar embeds the description and attaches similar finalized cases.
// Failures only cost the recall.
func (s *InvestigationService) recallSimilar(ctx context.Context, state *domain.CaseState) []float32 {
	if s.embeddingClient == nil {
		return nil
	}
	embedding, err := s.embeddingClient.Embed(ctx, state.Description)
	if err != nil {
		s.logger.Warn("failed to embed case description", zap.String("case_id", state.ID.String()), zap.Error(err))
		return nil
	}
	similar, err := s.caseStore.FindSimilar(ctx, embedding, SimilarCaseLimit)
	if err != nil {
		s.logger.Warn("similar case lookup failed", zap.String("case_id", state.ID.String()), zap.Error(err))
		return embedding
	}
	state.SimilarCases = similar
	return embedding
}

// Resume folds a free-text answer into a suspended case and re-enters the
// workflow at the phase after the one that suspended.
func (s *InvestigationService) Resume(ctx context.Context, id uuid.UUID, answer string) (*domain.CaseState, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	unlock := s.lock(id)
	defer unlock()

	stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Status != domain.CaseStatusSuspended {
		return nil, ErrNotSuspended
	}

	state := stored.Clone()
	engine := s.engineFor(&state)
	now := time.Now().UTC()

	state.History = append(state.History, domain.HistoryEntry{Role: historyRolePatient, Content: answer, At: now})

	facts, _ := s.intake.Parse(ctx, answer)
	state.Facts = state.Facts.Merge(facts)
	for _, t := range facts.TestResults {
		markResultReceived(&state, t.Name)
	}
	applied := s.applyEvidence(&state, engine, FactsEvidence(facts, s.kb))

	state.AskedQuestions = append(state.AskedQuestions, state.PendingQuestions...)
	state.PendingQuestions = nil
	state.AwaitingUserInput = false
	state.InteractionRound++
	state.Status = domain.CaseStatusActive
	state.Phase = state.ResumePhase
	if !state.Phase.IsValid() || state.Phase == domain.PhasePatientInteraction {
		state.Phase = domain.PhaseDeliberation
	}
	state.ResumePhase = ""
	ProjectBeliefs(&state, engine, s.kb)

	s.logger.Info("case resumed",
		zap.String("case_id", id.String()),
		zap.Int("interaction_round", state.InteractionRound),
		zap.Int("evidence_applied", applied),
		zap.String("phase", string(state.Phase)))

	return s.run(ctx, state, engine)
}

func markResultReceived(state *domain.CaseState, testName string) {
	name := extract.NormalizeName(testName)
	for i := range state.OrderedTests {
		if state.OrderedTests[i].Name == name {
			state.OrderedTests[i].ResultReceived = true
		}
	}
}

// RecordTestResult applies a test result to a case directly, outside the
// question cycle. A result already recorded is a no-op.
func (s *InvestigationService) RecordTestResult(ctx context.Context, id uuid.UUID, name string, value any, confidence float64) ([]domain.BeliefUpdate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTestNameMissing
	}
	if confidence <= 0 || confidence > 1 {
		confidence = testResultConfidence
	}

	unlock := s.lock(id)
	defer unlock()

	stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Status == domain.CaseStatusFinalized {
		return nil, ErrCaseFinalized
	}

	state := stored.Clone()
	ev := TestResultEvidence(s.kb, name, value, confidence)
	if state.HasEvidence(ev.Key()) {
		return nil, nil
	}

	engine := s.engineFor(&state)
	updates := engine.UpdateWithEvidence(ev)
	state.EvidenceKeys = append(state.EvidenceKeys, ev.Key())
	state.Facts.TestResults = append(state.Facts.TestResults, domain.TestResultFact{Name: name, Value: value})
	markResultReceived(&state, name)
	s.metrics.EvidenceApplied(string(ev.Kind))

	ProjectBeliefs(&state, engine, s.kb)
	state = Synthesize(state, engine.RankedDiagnoses(), s.cfg)
	if err := s.save(ctx, &state); err != nil {
		return nil, err
	}

	s.logger.Info("test result recorded",
		zap.String("case_id", id.String()),
		zap.String("evidence", ev.Key()))
	return updates, nil
}

func (s *InvestigationService) Get(ctx context.Context, id uuid.UUID) (*domain.CaseState, error) {
	return s.load(ctx, id)
}

// Beliefs returns the ranked belief records of a case and their entropy.
func (s *InvestigationService) Beliefs(ctx context.Context, id uuid.UUID) ([]domain.BeliefRecord, float64, error) {
	state, err := s.load(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	engine := s.engineFor(state)
	return engine.RankedDiagnoses(), engine.Entropy(), nil
}

func (s *InvestigationService) save(ctx context.Context, state *domain.CaseState) error {
	state.UpdatedAt = time.Now().UTC()
	if err := s.caseStore.Update(ctx, state); err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return nil
}

// run executes rounds until the transition function suspends or finalizes.
func (s *InvestigationService) run(ctx context.Context, state domain.CaseState, engine *BeliefEngine) (*domain.CaseState, error) {
	for step := 0; ; step++ {
		if s.cfg.MaxStepsPerRun > 0 && step >= s.cfg.MaxStepsPerRun {
			s.logger.Warn("step limit reached, forcing final diagnosis",
				zap.String("case_id", state.ID.String()), zap.Int("steps", step))
			return s.finalize(ctx, state, engine, "step limit reached")
		}

		next, err := s.rounds.ExecuteRound(ctx, state, engine)
		if err != nil {
			return nil, err
		}
		state = Synthesize(next, engine.RankedDiagnoses(), s.cfg)

		d := Transition(SnapshotOf(state, s.cfg), s.cfg)
		s.metrics.Transition(string(d.Action), string(state.Phase))
		s.logger.Debug("transition",
			zap.String("case_id", state.ID.String()),
			zap.String("phase", string(state.Phase)),
			zap.String("action", string(d.Action)),
			zap.String("next", string(d.Next)),
			zap.String("reason", d.Reason),
			zap.Float64("confidence", state.Confidence))

		switch d.Action {
		case domain.ActionSuspend:
			return s.suspend(ctx, state, d.Reason)
		case domain.ActionFinalize:
			return s.finalize(ctx, state, engine, d.Reason)
		case domain.ActionExecuteTests:
			state = s.executeTests(ctx, state, engine)
		}
		state.Phase = d.Next
	}
}

func (s *InvestigationService) suspend(ctx context.Context, state domain.CaseState, reason string) (*domain.CaseState, error) {
	state.ResumePhase = nextPhase(state.Phase)
	state.Phase = domain.PhasePatientInteraction
	state.PendingQuestions = s.questions.Generate(ctx, state)
	state.AwaitingUserInput = true
	state.Status = domain.CaseStatusSuspended

	if err := s.save(ctx, &state); err != nil {
		return nil, err
	}
	s.metrics.Suspended()

	s.logger.Info("case suspended for input",
		zap.String("case_id", state.ID.String()),
		zap.String("reason", reason),
		zap.Int("questions", len(state.PendingQuestions)),
		zap.Int("interaction_round", state.InteractionRound))
	return &state, nil
}

// finalize runs the closing quality check unless the case already ran it,
// then records the final diagnosis.
func (s *InvestigationService) finalize(ctx context.Context, state domain.CaseState, engine *BeliefEngine, reason string) (*domain.CaseState, error) {
	if state.Phase != domain.PhaseFinalDiagnosis {
		state.Phase = domain.PhaseFinalDiagnosis
		next, err := s.rounds.ExecuteRound(ctx, state, engine)
		if err != nil {
			return nil, err
		}
		state = Synthesize(next, engine.RankedDiagnoses(), s.cfg)
	}

	state.Status = domain.CaseStatusFinalized
	state.AwaitingUserInput = false
	state.PendingQuestions = nil
	state.ResumePhase = ""

	if err := s.save(ctx, &state); err != nil {
		return nil, err
	}
	s.metrics.CaseFinalized(state.Confidence, state.CumulativeCost)

	s.logger.Info("case finalized",
		zap.String("case_id", state.ID.String()),
		zap.String("reason", reason),
		zap.String("diagnosis", state.FinalDiagnosis),
		zap.Float64("confidence", state.Confidence),
		zap.Float64("cumulative_cost", state.CumulativeCost),
		zap.Float64("reasoning_quality", state.ReasoningQuality))
	return &state, nil
}

// executeTests orders the advisor's picks among the tests contributors asked
// for, charging their catalog cost. Results arrive later as answers or via
// RecordTestResult.
func (s *InvestigationService) executeTests(ctx context.Context, state domain.CaseState, engine *BeliefEngine) domain.CaseState {
	ordered := make([]string, len(state.OrderedTests))
	for i, t := range state.OrderedTests {
		ordered[i] = t.Name
	}

	recs, err := s.advisor.Recommend(ctx, domain.TestRequest{
		Ranked:          engine.RankedDiagnoses(),
		RemainingBudget: math.Max(state.CostBudget-state.CumulativeCost, 0),
		AlreadyOrdered:  ordered,
		Requested:       state.RequestedTests,
		InformationGain: engine.InformationGain,
	})
	state.RequestedTests = nil
	if err != nil {
		s.logger.Warn("test recommendation failed", zap.String("case_id", state.ID.String()), zap.Error(err))
		return state
	}

	now := time.Now().UTC()
	for _, r := range recs {
		state.OrderedTests = append(state.OrderedTests, domain.OrderedTest{
			Name:         r.Name,
			EvidenceName: r.EvidenceName,
			Cost:         r.Cost,
			Sensitivity:  r.Sensitivity,
			Specificity:  r.Specificity,
			OrderedAt:    now,
		})
		state.CumulativeCost += r.Cost
		state.History = append(state.History, domain.HistoryEntry{
			Role:    historyRoleSystem,
			Content: fmt.Sprintf("ordered %s ($%.0f, expected gain %.3f bits)", r.Name, r.Cost, r.InformationGain),
			At:      now,
		})
	}

	s.logger.Debug("tests ordered",
		zap.String("case_id", state.ID.String()),
		zap.Int("ordered", len(recs)),
		zap.Float64("cumulative_cost", state.CumulativeCost))
	return state
}
