package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/extract"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxQuestions = 5

type questionRecord struct {
	Role     string `json:"role"`
	Category string `json:"category"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

type essentialQuestion struct {
	category domain.QuestionCategory
	text     string
	priority int
}

var essentialQuestions = map[string]essentialQuestion{
	domain.FieldAge:             {domain.QuestionDemographics, "How old is the patient?", 1},
	domain.FieldGender:          {domain.QuestionDemographics, "What is the patient's sex?", 1},
	domain.FieldMedications:     {domain.QuestionMedications, "What medications is the patient currently taking (or none)?", 2},
	domain.FieldAllergies:       {domain.QuestionAllergies, "Does the patient have any allergies?", 2},
	domain.FieldFamilyHistory:   {domain.QuestionFamilyHistory, "Is there any relevant family history (heart disease, clotting disorders, lung disease)?", 3},
	domain.FieldSymptomTimeline: {domain.QuestionSymptoms, "When did the symptoms start and how have they changed since?", 2},
	domain.FieldSymptomSeverity: {domain.QuestionSymptoms, "How severe are the symptoms on a scale of 1 to 10?", 2},
}

// QuestionGenerator produces the pending questions emitted on suspension.
type QuestionGenerator struct {
	oracle domain.Oracle
	logger *zap.Logger
	max    int
}

func NewQuestionGenerator(oracle domain.Oracle, logger *zap.Logger) *QuestionGenerator {
	return &QuestionGenerator{oracle: oracle, logger: logger, max: DefaultMaxQuestions}
}

// Generate asks the oracle for questions and falls back to DefaultQuestions
// when the oracle fails, returns garbage, or returns nothing usable.
func (g *QuestionGenerator) Generate(ctx context.Context, state domain.CaseState) []domain.PendingQuestion {
	var records []questionRecord
	raw, err := g.oracle.Invoke(ctx, fmt.Sprintf(questionsPrompt, questionContext(state), g.max))
	if err == nil {
		err = extract.DecodeJSON(raw, &records)
	}

	var questions []domain.PendingQuestion
	if err == nil {
		questions = fromRecords(records, state)
	}
	if len(questions) == 0 {
		if err != nil {
			g.logger.Warn("question generation failed, using default questions",
				zap.String("case_id", state.ID.String()), zap.Error(err))
		}
		questions = DefaultQuestions(state)
	}
	return orderQuestions(questions, g.max)
}

func fromRecords(records []questionRecord, state domain.CaseState) []domain.PendingQuestion {
	asked := make(map[string]bool, len(state.AskedQuestions))
	for _, q := range state.AskedQuestions {
		asked[strings.ToLower(strings.TrimSpace(q.Text))] = true
	}

	var out []domain.PendingQuestion
	for _, r := range records {
		text := strings.TrimSpace(r.Text)
		if text == "" || asked[strings.ToLower(text)] {
			continue
		}
		role := domain.Role(strings.ToLower(strings.TrimSpace(r.Role)))
		if !role.IsValid() {
			role = domain.RoleHypothesis
		}
		category := domain.QuestionCategory(strings.ToLower(strings.TrimSpace(r.Category)))
		if !category.IsValid() {
			category = domain.QuestionClarification
		}
		priority := r.Priority
		if priority < 1 {
			priority = 3
		}
		out = append(out, domain.PendingQuestion{
			ID:             uuid.New(),
			RequestingRole: role,
			Category:       category,
			Text:           text,
			Priority:       priority,
		})
	}
	return out
}

// DefaultQuestions is the deterministic question set: one per missing
// essential field, one per ordered test still waiting for a result, and a
// general clarification when nothing else is outstanding.
func DefaultQuestions(state domain.CaseState) []domain.PendingQuestion {
	var out []domain.PendingQuestion
	for _, field := range state.Facts.MissingEssentials() {
		q, ok := essentialQuestions[field]
		if !ok {
			continue
		}
		out = append(out, domain.PendingQuestion{
			ID:             uuid.New(),
			RequestingRole: domain.RoleHypothesis,
			Category:       q.category,
			Text:           q.text,
			Priority:       q.priority,
		})
	}
	for _, t := range state.OutstandingTests() {
		out = append(out, domain.PendingQuestion{
			ID:             uuid.New(),
			RequestingRole: domain.RoleTestSelection,
			Category:       domain.QuestionTestResult,
			Text:           fmt.Sprintf("What was the result of the %s test?", strings.ReplaceAll(t.Name, "_", " ")),
			Priority:       1,
		})
	}
	if len(out) == 0 {
		out = append(out, domain.PendingQuestion{
			ID:             uuid.New(),
			RequestingRole: domain.RoleChallenge,
			Category:       domain.QuestionClarification,
			Text:           "Are there any other symptoms or changes since the last update?",
			Priority:       3,
		})
	}
	return out
}

func orderQuestions(qs []domain.PendingQuestion, max int) []domain.PendingQuestion {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Priority < qs[j].Priority })
	if max > 0 && len(qs) > max {
		qs = qs[:max]
	}
	return qs
}

func questionContext(state domain.CaseState) string {
	var sb strings.Builder
	sb.WriteString("Case description:\n")
	sb.WriteString(state.Description)
	sb.WriteString("\n\n")
	writeFacts(&sb, state.Facts)
	if missing := state.Facts.MissingEssentials(); len(missing) > 0 {
		fmt.Fprintf(&sb, "\nStill unrecorded: %s\n", strings.Join(missing, ", "))
	}
	if pending := state.OutstandingTests(); len(pending) > 0 {
		names := make([]string, len(pending))
		for i, t := range pending {
			names[i] = t.Name
		}
		fmt.Fprintf(&sb, "Ordered tests awaiting results: %s\n", strings.Join(names, ", "))
	}
	if len(state.Differential) > 0 {
		sb.WriteString("\nLeading conditions:\n")
		for i, d := range state.Differential {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&sb, "- %s (%.1f%%)\n", d.ConditionID, d.Probability*100)
		}
	}
	if len(state.AskedQuestions) > 0 {
		sb.WriteString("\nAlready asked (do not repeat):\n")
		for _, q := range state.AskedQuestions {
			fmt.Fprintf(&sb, "- %s\n", q.Text)
		}
	}
	return sb.String()
}
