package service

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"github.com/Harshitk-cp/diagnostician/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evidenceByName(evs []domain.Evidence) map[string]domain.Evidence {
	out := make(map[string]domain.Evidence, len(evs))
	for _, ev := range evs {
		out[ev.Name] = ev
	}
	return out
}

func TestIntakeParser_StructuredRecord(t *testing.T) {
	kb := knowledge.Default()
	oracle := llm.NewMockClient().Respond("clinical intake assistant", "```json\n"+`{
		"age": "62", "gender": "female", "chief_complaint": "shortness of breath",
		"symptoms": [{"name": "Leg Swelling", "present": true}, {"name": "fever", "present": false}],
		"history": ["recent surgery"], "medications": [], "symptom_timeline": "two days"
	}`+"\n```")

	facts, structured := NewIntakeParser(oracle, kb, testLogger()).Parse(context.Background(), "text")

	require.True(t, structured)
	assert.Equal(t, 62, facts.Age)
	assert.Equal(t, "female", facts.Gender)
	require.Len(t, facts.Symptoms, 2)
	assert.Equal(t, "leg_swelling", facts.Symptoms[0].Name)
	assert.NotNil(t, facts.Medications, "recorded as empty")
	assert.Empty(t, facts.Medications)
	assert.Nil(t, facts.Allergies, "absent means unrecorded")
	assert.Equal(t, "two days", facts.SymptomTimeline)
}

func TestIntakeParser_FallsBackOnGarbage(t *testing.T) {
	kb := knowledge.Default()
	oracle := llm.NewMockClient().Respond("clinical intake assistant", "I cannot help with that.")
	text := "45-year-old woman with fever and cough, denies chest pain. No known allergies."

	facts, structured := NewIntakeParser(oracle, kb, testLogger()).Parse(context.Background(), text)

	assert.False(t, structured)
	assert.Equal(t, 45, facts.Age)
	assert.Equal(t, "female", facts.Gender)
	assert.Equal(t, text, facts.ChiefComplaint)
	assert.NotNil(t, facts.Allergies)
	assert.Nil(t, facts.Medications)

	present := make(map[string]bool)
	for _, s := range facts.Symptoms {
		require.NotNil(t, s.Present)
		present[s.Name] = *s.Present
	}
	assert.True(t, present["fever"])
	assert.True(t, present["cough"])
	v, ok := present["chest_pain"]
	assert.True(t, ok)
	assert.False(t, v, "negated within the clause")
}

func TestIntakeParser_FallsBackOnOracleError(t *testing.T) {
	kb := knowledge.Default()
	oracle := llm.NewMockClient()
	oracle.DefaultError = domain.ErrOracleUnavailable

	facts, structured := NewIntakeParser(oracle, kb, testLogger()).Parse(context.Background(), "patient feels unwell")

	assert.False(t, structured)
	assert.Zero(t, facts.Age)
	assert.Equal(t, "unknown", facts.Gender)
	assert.Empty(t, facts.Symptoms)
}

func TestFallbackFacts_TruncatesComplaint(t *testing.T) {
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	facts := FallbackFacts(string(long), NewEvidenceScanner(knowledge.Default()))
	assert.Len(t, []rune(facts.ChiefComplaint), 200)
}

func TestFallbackFacts_Allergies(t *testing.T) {
	facts := FallbackFacts("He is allergic to penicillin and sulfa.", NewEvidenceScanner(knowledge.Default()))
	assert.Equal(t, []string{"penicillin", "sulfa"}, facts.Allergies)
	assert.Equal(t, "male", facts.Gender)
}

func TestEvidenceScanner_Scan(t *testing.T) {
	kb := knowledge.Default()
	evs := evidenceByName(NewEvidenceScanner(kb).Scan("Fever for three days; no cough. Reports heartburn after meals."))

	require.Contains(t, evs, "fever")
	assert.Equal(t, true, evs["fever"].Value)
	require.Contains(t, evs, "cough")
	assert.Equal(t, false, evs["cough"].Value)
	require.Contains(t, evs, "heartburn")
	assert.Equal(t, true, evs["heartburn"].Value)
	assert.NotContains(t, evs, "dyspnea")
	assert.NotContains(t, evs, "age_over_50")
	for _, ev := range evs {
		assert.InDelta(t, 0.6, ev.Confidence, 1e-12)
	}
}

func TestEvidenceScanner_CompilesOnce(t *testing.T) {
	kb := knowledge.Default()
	sc := NewEvidenceScanner(kb)

	var eligible int
	for _, name := range kb.EvidenceNames() {
		if !strings.HasPrefix(name, "sex_") && name != "age_over_50" {
			eligible++
		}
	}
	require.Len(t, sc.mentions, eligible)

	patterns := make([]*regexp.Regexp, len(sc.mentions))
	for i, m := range sc.mentions {
		patterns[i] = m.pattern
	}
	first := evidenceByName(sc.Scan("fever and cough"))
	second := evidenceByName(sc.Scan("fever and cough"))
	assert.Equal(t, len(first), len(second))
	for i, m := range sc.mentions {
		assert.Same(t, patterns[i], m.pattern)
	}
}

func TestFactsEvidence(t *testing.T) {
	kb := knowledge.Default()
	no := false
	facts := domain.CaseFacts{
		Age:      67,
		Gender:   "M",
		Symptoms: []domain.SymptomFact{{Name: "chest pain"}, {Name: "fever", Present: &no}},
		History:  []string{"Smoking"},
		TestResults: []domain.TestResultFact{
			{Name: "troponin", Value: "elevated"},
		},
	}

	evs := FactsEvidence(facts, kb)
	byName := evidenceByName(evs)

	assert.Equal(t, "age_over_50", byName["age_over_50"].Key())
	assert.Equal(t, "sex_male", byName["sex"].Key())
	assert.Equal(t, "chest_pain", byName["chest_pain"].Key())
	assert.Equal(t, "no_fever", byName["fever"].Key())
	assert.Equal(t, domain.EvidenceHistory, byName["smoking"].Kind)

	trop := byName["troponin_elevated"]
	assert.Equal(t, domain.EvidenceTestResult, trop.Kind)
	assert.Equal(t, true, trop.Value)
	assert.InDelta(t, 0.95, trop.Confidence, 1e-12)
	assert.InDelta(t, 0.8, byName["chest_pain"].Confidence, 1e-12)
}

func TestFactsEvidence_YoungPatient(t *testing.T) {
	evs := evidenceByName(FactsEvidence(domain.CaseFacts{Age: 30, Gender: "unknown"}, knowledge.Default()))
	assert.Equal(t, "no_age_over_50", evs["age_over_50"].Key())
	assert.NotContains(t, evs, "sex")
}

func TestTestResultEvidence(t *testing.T) {
	kb := knowledge.Default()
	tests := []struct {
		name    string
		test    string
		value   any
		wantKey string
	}{
		{"positive string", "troponin", "positive", "troponin_elevated"},
		{"negative string", "troponin", "Negative", "no_troponin_elevated"},
		{"normal", "d_dimer", "normal", "no_d_dimer_elevated"},
		{"bool", "chest_xray", true, "infiltrate_on_xray"},
		{"spaced name", "Chest Xray", false, "no_infiltrate_on_xray"},
		{"unknown test keeps raw value", "lipase", "300", "lipase_300"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := TestResultEvidence(kb, tt.test, tt.value, 0.9)
			assert.Equal(t, tt.wantKey, ev.Key())
			assert.Equal(t, domain.EvidenceTestResult, ev.Kind)
		})
	}
}
