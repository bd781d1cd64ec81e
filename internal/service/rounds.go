package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/extract"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"github.com/Harshitk-cp/diagnostician/internal/metrics"
	"go.uber.org/zap"
)

// phaseRoles is the fixed contributor order per phase.
var phaseRoles = map[domain.Phase][]domain.Role{
	domain.PhaseCasePresentation:     {domain.RoleHypothesis},
	domain.PhaseInitialAssessment:    {domain.RoleHypothesis, domain.RoleChallenge},
	domain.PhaseInformationGathering: {domain.RoleHypothesis, domain.RoleTestSelection},
	domain.PhaseTestSelection:        {domain.RoleTestSelection, domain.RoleCostStewardship},
	domain.PhaseDeliberation:         {domain.RoleHypothesis, domain.RoleChallenge, domain.RoleCostStewardship, domain.RoleQualityCheck},
	domain.PhaseFinalDiagnosis:       {domain.RoleQualityCheck},
}

var roleBriefs = map[domain.Role]string{
	domain.RoleHypothesis:      roleHypothesisBrief,
	domain.RoleTestSelection:   roleTestSelectionBrief,
	domain.RoleChallenge:       roleChallengeBrief,
	domain.RoleCostStewardship: roleCostStewardshipBrief,
	domain.RoleQualityCheck:    roleQualityCheckBrief,
}

// RolesFor returns the contributors that speak in phase, in order.
func RolesFor(p domain.Phase) []domain.Role {
	return append([]domain.Role(nil), phaseRoles[p]...)
}

const maxNarrativeRunes = 400

type RoundExecutor struct {
	oracle    domain.Oracle
	extractor *extract.Extractor
	kb        *knowledge.Base
	cfg       WorkflowConfig
	metrics   *metrics.Workflow
	logger    *zap.Logger
}

func NewRoundExecutor(oracle domain.Oracle, extractor *extract.Extractor, kb *knowledge.Base, cfg WorkflowConfig, m *metrics.Workflow, logger *zap.Logger) *RoundExecutor {
	return &RoundExecutor{
		oracle:    oracle,
		extractor: extractor,
		kb:        kb,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// ExecuteRound runs every role of the current phase in order and returns the
// resulting state. The input state is never modified. A failed oracle call
// yields an empty contribution; only context cancellation aborts the round.
func (r *RoundExecutor) ExecuteRound(ctx context.Context, state domain.CaseState, engine *BeliefEngine) (domain.CaseState, error) {
	roles := phaseRoles[state.Phase]
	if len(roles) == 0 {
		return state, nil
	}

	next := state.Clone()
	next.DebateRound++
	next.RequestedTests = nil

	for _, role := range roles {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		prompt := r.briefing(role, next, engine)
		text, err := r.oracle.Invoke(ctx, prompt)

		var c domain.Contribution
		if err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			r.logger.Warn("contribution failed, continuing with empty contribution",
				zap.String("case_id", next.ID.String()),
				zap.String("role", string(role)),
				zap.Int("round", next.DebateRound),
				zap.Error(err))
			c = domain.Contribution{
				Role:      role,
				Round:     next.DebateRound,
				Narrative: "contribution unavailable: " + err.Error(),
				Failed:    true,
			}
			r.metrics.ObserveContribution(string(role), "failed")
		} else {
			c = r.extractor.Contribution(role, next.DebateRound, text)
			r.metrics.ObserveContribution(string(role), "ok")
		}

		next = FoldContribution(next, c, r.cfg.HistoryLimit)
		ProjectBeliefs(&next, engine, r.kb)
	}

	r.logger.Debug("round complete",
		zap.String("case_id", next.ID.String()),
		zap.String("phase", string(next.Phase)),
		zap.Int("round", next.DebateRound),
		zap.Float64("cumulative_cost", next.CumulativeCost))

	return next, nil
}

// FoldContribution merges one contribution into a copy of state.
func FoldContribution(state domain.CaseState, c domain.Contribution, historyLimit int) domain.CaseState {
	out := state.Clone()

	for _, d := range c.DiagnosisDeltas {
		id := extract.NormalizeName(d.ConditionID)
		if id == "" {
			continue
		}
		found := false
		for i := range out.Differential {
			if out.Differential[i].ConditionID != id {
				continue
			}
			out.Differential[i].ReportedProbability = d.Probability
			out.Differential[i].Reasoning = d.Reasoning
			if d.Reasoning != "" {
				out.Differential[i].SupportingNotes = append(out.Differential[i].SupportingNotes, d.Reasoning)
			}
			found = true
			break
		}
		if !found {
			entry := domain.DiagnosisEntry{
				Rank:                len(out.Differential) + 1,
				ConditionID:         id,
				Probability:         d.Probability,
				ReportedProbability: d.Probability,
				Reasoning:           d.Reasoning,
			}
			if d.Reasoning != "" {
				entry.SupportingNotes = []string{d.Reasoning}
			}
			out.Differential = append(out.Differential, entry)
		}
	}

	if c.CostEstimate != nil && *c.CostEstimate > 0 {
		out.CumulativeCost += *c.CostEstimate
	}

	for _, b := range c.BiasesFound {
		out.BiasLog = append(out.BiasLog, domain.BiasFlag{Bias: b, Role: c.Role, Round: c.Round})
	}

	for _, t := range c.TestsRequested {
		if !containsString(out.RequestedTests, t) {
			out.RequestedTests = append(out.RequestedTests, t)
		}
	}

	out.Contributions = append(out.Contributions, c.Clone())
	if historyLimit > 0 && len(out.Contributions) > historyLimit {
		out.Contributions = out.Contributions[len(out.Contributions)-historyLimit:]
	}
	out.ContributionCount++
	out.History = append(out.History, domain.HistoryEntry{
		Role:    string(c.Role),
		Content: c.Narrative,
		At:      time.Now().UTC(),
	})
	return out
}

// ProjectBeliefs initializes belief records for conditions contributors
// introduced and rebuilds the ranked differential from the engine. The engine
// owns posteriors; contributor estimates are kept as reported values.
func ProjectBeliefs(state *domain.CaseState, engine *BeliefEngine, kb *knowledge.Base) {
	previous := make(map[string]domain.DiagnosisEntry, len(state.Differential))
	for _, d := range state.Differential {
		previous[d.ConditionID] = d
		if _, ok := engine.Diagnosis(d.ConditionID); ok {
			continue
		}
		code := ""
		if c, ok := kb.Condition(d.ConditionID); ok {
			code = c.Code
		}
		_ = engine.InitializeDiagnosis(d.ConditionID, clampPosterior(d.Probability), code)
	}

	ranked := engine.RankedDiagnoses()
	differential := make([]domain.DiagnosisEntry, 0, len(ranked))
	for i, rec := range ranked {
		entry := domain.DiagnosisEntry{
			Rank:               i + 1,
			ConditionID:        rec.ConditionID,
			Probability:        rec.PosteriorProbability,
			ClassificationCode: rec.ClassificationCode,
		}
		if prev, ok := previous[rec.ConditionID]; ok {
			entry.ReportedProbability = prev.ReportedProbability
			entry.Reasoning = prev.Reasoning
			entry.SupportingNotes = append([]string(nil), prev.SupportingNotes...)
		}
		differential = append(differential, entry)
	}
	state.Differential = differential
	state.Beliefs = engine.Snapshot()
}

func (r *RoundExecutor) briefing(role domain.Role, state domain.CaseState, engine *BeliefEngine) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s contributor in round %d (phase %s) of a diagnostic case.\n",
		role, state.DebateRound, state.Phase)
	sb.WriteString(roleBriefs[role])
	sb.WriteString("\n\n")

	sb.WriteString("Case description:\n")
	sb.WriteString(state.Description)
	sb.WriteString("\n\n")
	writeFacts(&sb, state.Facts)

	sb.WriteString("\nCurrent differential:\n")
	limit := r.cfg.MaxCandidates
	for i, d := range state.Differential {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(&sb, "%d. %s: %.1f%%", d.Rank, d.ConditionID, d.Probability*100)
		if d.ReportedProbability > 0 {
			fmt.Fprintf(&sb, " (last stated %.0f%%)", d.ReportedProbability*100)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nSpent $%.0f of a $%.0f budget.\n", state.CumulativeCost, state.CostBudget)
	if len(state.OrderedTests) > 0 {
		sb.WriteString("Tests ordered so far: ")
		names := make([]string, len(state.OrderedTests))
		for i, t := range state.OrderedTests {
			names[i] = t.Name
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}

	if len(state.Contributions) > 0 {
		sb.WriteString("\nRecent contributions:\n")
		for _, c := range state.Contributions {
			fmt.Fprintf(&sb, "[%s, round %d] %s\n", c.Role, c.Round, truncateRunes(c.Narrative, maxNarrativeRunes))
		}
	}

	if role == domain.RoleHypothesis {
		r.writeBeliefContext(&sb, state, engine)
	}
	return sb.String()
}

func (r *RoundExecutor) writeBeliefContext(sb *strings.Builder, state domain.CaseState, engine *BeliefEngine) {
	sb.WriteString("\nBayesian belief ranking:\n")
	for i, rec := range engine.RankedDiagnoses() {
		if r.cfg.MaxCandidates > 0 && i >= r.cfg.MaxCandidates {
			break
		}
		fmt.Fprintf(sb, "- %s: posterior %.1f%% (prior %.1f%%, cumulative LR %.2f, %d observations)\n",
			rec.ConditionID, rec.PosteriorProbability*100, rec.PriorProbability*100,
			rec.CumulativeLikelihood, len(rec.EvidenceLog))
	}
	fmt.Fprintf(sb, "Belief entropy: %.3f bits\n", engine.Entropy())

	gains := informationGainTable(state, engine, r.kb)
	if len(gains) > 0 {
		sb.WriteString("\nExpected information gain of next observations:\n")
		for _, g := range gains {
			fmt.Fprintf(sb, "- %s: %.3f bits\n", g.name, g.gain)
		}
	}

	if len(state.SimilarCases) > 0 {
		sb.WriteString("\nSimilar past cases:\n")
		for _, sc := range state.SimilarCases {
			fmt.Fprintf(sb, "- %s (confidence %.0f%%, similarity %.2f)\n", sc.FinalDiagnosis, sc.Confidence*100, sc.Score)
		}
	}
}

type evidenceGain struct {
	name string
	gain float64
}

// informationGainTable scores the candidate observations not yet recorded,
// highest gain first.
func informationGainTable(state domain.CaseState, engine *BeliefEngine, kb *knowledge.Base) []evidenceGain {
	var out []evidenceGain
	for _, name := range kb.CandidateEvidence() {
		if state.HasEvidence(name) || state.HasEvidence("no_"+name) {
			continue
		}
		g := engine.InformationGain(domain.Evidence{
			Kind:       domain.EvidenceSymptom,
			Name:       name,
			Value:      true,
			Confidence: 1,
		})
		out = append(out, evidenceGain{name: name, gain: g})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].gain > out[j].gain })
	return out
}

func writeFacts(sb *strings.Builder, f domain.CaseFacts) {
	sb.WriteString("Known facts:\n")
	if f.Age > 0 {
		fmt.Fprintf(sb, "- age: %d\n", f.Age)
	}
	if f.Gender != "" {
		fmt.Fprintf(sb, "- gender: %s\n", f.Gender)
	}
	if f.ChiefComplaint != "" {
		fmt.Fprintf(sb, "- chief complaint: %s\n", f.ChiefComplaint)
	}
	if len(f.Symptoms) > 0 {
		parts := make([]string, 0, len(f.Symptoms))
		for _, s := range f.Symptoms {
			p := s.Name
			if s.Present != nil && !*s.Present {
				p = "no " + p
			}
			if s.Severity != "" {
				p += " (" + s.Severity + ")"
			}
			parts = append(parts, p)
		}
		fmt.Fprintf(sb, "- symptoms: %s\n", strings.Join(parts, ", "))
	}
	writeList(sb, "history", f.History)
	writeList(sb, "medications", f.Medications)
	writeList(sb, "allergies", f.Allergies)
	writeList(sb, "family history", f.FamilyHistory)
	if f.SymptomTimeline != "" {
		fmt.Fprintf(sb, "- timeline: %s\n", f.SymptomTimeline)
	}
	if f.SymptomSeverity != "" {
		fmt.Fprintf(sb, "- severity: %s\n", f.SymptomSeverity)
	}
	for _, t := range f.TestResults {
		fmt.Fprintf(sb, "- test %s: %v\n", t.Name, t.Value)
	}
}

func writeList(sb *strings.Builder, label string, items []string) {
	switch {
	case items == nil:
		fmt.Fprintf(sb, "- %s: unknown\n", label)
	case len(items) == 0:
		fmt.Fprintf(sb, "- %s: none\n", label)
	default:
		fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(items, ", "))
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
