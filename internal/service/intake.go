package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/extract"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"go.uber.org/zap"
)

const (
	placeholderComplaintRunes = 200
	placeholderGender         = "unknown"

	symptomConfidence     = 0.8
	historyConfidence     = 0.9
	demographicConfidence = 0.9
	testResultConfidence  = 0.95
	scanConfidence        = 0.6
	elderlyAgeThreshold   = 50
)

var (
	agePattern       = regexp.MustCompile(`(?i)\b(\d{1,3})[ -]?(?:years?[ -]old|y/?o|yrs?[ -]old|year-old)\b`)
	agePhrasePattern = regexp.MustCompile(`(?i)\bage[:\s]+(\d{1,3})\b`)
	malePattern      = regexp.MustCompile(`(?i)\b(male|man|gentleman|boy|he)\b`)
	femalePattern    = regexp.MustCompile(`(?i)\b(female|woman|lady|girl|she)\b`)
	negationPattern  = regexp.MustCompile(`(?i)\b(no|denies|denied|without|negative for|not)\b[^.;,]*$`)
	allergyPattern   = regexp.MustCompile(`(?i)allergic to ([a-z0-9 ,\-]+)`)
	listSeparator    = regexp.MustCompile(`,|\band\b`)
)

// intakeRecord is the JSON layout requested from the oracle. Absent list
// fields decode to nil and stay unrecorded.
type intakeRecord struct {
	Age             any                     `json:"age"`
	Gender          string                  `json:"gender"`
	ChiefComplaint  string                  `json:"chief_complaint"`
	History         []string                `json:"history"`
	Symptoms        []domain.SymptomFact    `json:"symptoms"`
	Medications     []string                `json:"medications"`
	Allergies       []string                `json:"allergies"`
	FamilyHistory   []string                `json:"family_history"`
	SymptomTimeline string                  `json:"symptom_timeline"`
	SymptomSeverity string                  `json:"symptom_severity"`
	TestResults     []domain.TestResultFact `json:"test_results"`
}

func (r intakeRecord) facts() domain.CaseFacts {
	f := domain.CaseFacts{
		Age:             coerceAge(r.Age),
		Gender:          strings.TrimSpace(r.Gender),
		ChiefComplaint:  strings.TrimSpace(r.ChiefComplaint),
		History:         r.History,
		Medications:     r.Medications,
		Allergies:       r.Allergies,
		FamilyHistory:   r.FamilyHistory,
		SymptomTimeline: strings.TrimSpace(r.SymptomTimeline),
		SymptomSeverity: strings.TrimSpace(r.SymptomSeverity),
		TestResults:     r.TestResults,
	}
	for _, s := range r.Symptoms {
		s.Name = extract.NormalizeName(s.Name)
		if s.Name != "" {
			f.Symptoms = append(f.Symptoms, s)
		}
	}
	return f
}

func coerceAge(v any) int {
	switch a := v.(type) {
	case float64:
		if a > 0 && a < 150 {
			return int(a)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(a)); err == nil && n > 0 && n < 150 {
			return n
		}
	}
	return 0
}

// IntakeParser turns free text (a case description or a patient answer) into
// case facts. Oracle failure or garbage falls back to deterministic parsing.
type IntakeParser struct {
	oracle  domain.Oracle
	scanner *EvidenceScanner
	logger  *zap.Logger
}

func NewIntakeParser(oracle domain.Oracle, kb *knowledge.Base, logger *zap.Logger) *IntakeParser {
	return &IntakeParser{oracle: oracle, scanner: NewEvidenceScanner(kb), logger: logger}
}

// Parse extracts facts from text. The second result reports whether the
// oracle record was used.
func (p *IntakeParser) Parse(ctx context.Context, text string) (domain.CaseFacts, bool) {
	raw, err := p.oracle.Invoke(ctx, fmt.Sprintf(intakePrompt, text))
	if err == nil {
		var rec intakeRecord
		if err = extract.DecodeJSON(raw, &rec); err == nil {
			return rec.facts(), true
		}
	}
	p.logger.Warn("intake extraction failed, using fallback record", zap.Error(err))
	return FallbackFacts(text, p.scanner), false
}

// FallbackFacts builds the placeholder record: default demographics unless
// the text states them plainly, the leading text as the complaint, and
// symptoms found by keyword scan.
func FallbackFacts(text string, scanner *EvidenceScanner) domain.CaseFacts {
	f := domain.CaseFacts{
		Gender:         placeholderGender,
		ChiefComplaint: strings.TrimSpace(truncatePlain(text, placeholderComplaintRunes)),
	}
	if m := agePattern.FindStringSubmatch(text); m != nil {
		f.Age, _ = strconv.Atoi(m[1])
	} else if m := agePhrasePattern.FindStringSubmatch(text); m != nil {
		f.Age, _ = strconv.Atoi(m[1])
	}
	if f.Age >= 150 {
		f.Age = 0
	}

	male := malePattern.FindStringIndex(text)
	female := femalePattern.FindStringIndex(text)
	switch {
	case male != nil && (female == nil || male[0] < female[0]):
		f.Gender = "male"
	case female != nil:
		f.Gender = "female"
	}

	lower := strings.ToLower(text)
	if containsAny(lower, "no medications", "no meds", "not on any medication", "takes no medication") {
		f.Medications = []string{}
	}
	if containsAny(lower, "no allergies", "no known allergies", "nkda") {
		f.Allergies = []string{}
	} else if m := allergyPattern.FindStringSubmatch(text); m != nil {
		f.Allergies = splitList(m[1])
	}
	if containsAny(lower, "no family history", "family history is unremarkable", "noncontributory family history") {
		f.FamilyHistory = []string{}
	}

	for _, ev := range scanner.Scan(text) {
		present := ev.Value == true
		f.Symptoms = append(f.Symptoms, domain.SymptomFact{Name: ev.Name, Present: &present})
	}
	return f
}

func truncatePlain(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSeparator.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type mentionPattern struct {
	name    string
	pattern *regexp.Regexp
}

// EvidenceScanner finds known evidence names mentioned in text. Patterns are
// compiled once per knowledge base. A mention preceded in the same clause by
// a negation ("no", "denies", "without") yields a false value.
type EvidenceScanner struct {
	mentions []mentionPattern
}

func NewEvidenceScanner(kb *knowledge.Base) *EvidenceScanner {
	sc := &EvidenceScanner{}
	for _, name := range kb.EvidenceNames() {
		if strings.HasPrefix(name, "sex_") || name == "age_over_50" {
			continue
		}
		sc.mentions = append(sc.mentions, mentionPattern{
			name:    name,
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ReplaceAll(name, "_", " ")) + `\b`),
		})
	}
	return sc
}

func (sc *EvidenceScanner) Scan(text string) []domain.Evidence {
	lower := strings.ToLower(text)
	now := time.Now().UTC()
	var out []domain.Evidence
	for _, m := range sc.mentions {
		loc := m.pattern.FindStringIndex(lower)
		if loc == nil {
			continue
		}
		present := !negationPattern.MatchString(lower[:loc[0]])
		out = append(out, domain.Evidence{
			Kind:       domain.EvidenceSymptom,
			Name:       m.name,
			Value:      present,
			Confidence: scanConfidence,
			ObservedAt: now,
		})
	}
	return out
}

func normalizeSex(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "male", "m", "man":
		return "male"
	case "female", "f", "woman":
		return "female"
	}
	return ""
}

// FactsEvidence converts structured facts into evidence for the belief engine.
func FactsEvidence(f domain.CaseFacts, kb *knowledge.Base) []domain.Evidence {
	now := time.Now().UTC()
	var out []domain.Evidence

	if f.Age > 0 {
		out = append(out, domain.Evidence{
			Kind: domain.EvidenceDemographic, Name: "age_over_50", Value: f.Age > elderlyAgeThreshold,
			Confidence: demographicConfidence, ObservedAt: now,
		})
	}
	if sex := normalizeSex(f.Gender); sex != "" {
		out = append(out, domain.Evidence{
			Kind: domain.EvidenceDemographic, Name: "sex", Value: sex,
			Confidence: demographicConfidence, ObservedAt: now,
		})
	}
	for _, s := range f.Symptoms {
		present := s.Present == nil || *s.Present
		out = append(out, domain.Evidence{
			Kind: domain.EvidenceSymptom, Name: extract.NormalizeName(s.Name), Value: present,
			Confidence: symptomConfidence, ObservedAt: now,
		})
	}
	for _, h := range f.History {
		name := extract.NormalizeName(h)
		if name == "" {
			continue
		}
		out = append(out, domain.Evidence{
			Kind: domain.EvidenceHistory, Name: name, Value: true,
			Confidence: historyConfidence, ObservedAt: now,
		})
	}
	for _, t := range f.TestResults {
		out = append(out, TestResultEvidence(kb, t.Name, t.Value, testResultConfidence))
	}
	return out
}

var negativeResults = map[string]bool{
	"negative": true, "normal": true, "false": true, "no": true,
	"not elevated": true, "unremarkable": true, "within normal limits": true,
}

// TestResultEvidence maps a result for a catalog test onto the test's
// evidence name: positive-looking values become true, negative-looking values
// false. Unknown tests keep their own name and raw value.
func TestResultEvidence(kb *knowledge.Base, name string, value any, confidence float64) domain.Evidence {
	ev := domain.Evidence{
		Kind:       domain.EvidenceTestResult,
		Name:       extract.NormalizeName(name),
		Value:      value,
		Confidence: confidence,
		ObservedAt: time.Now().UTC(),
	}
	t, ok := kb.Test(ev.Name)
	if !ok {
		return ev
	}
	ev.Name = t.EvidenceName
	switch v := value.(type) {
	case bool:
		ev.Value = v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch {
		case negativeResults[s]:
			ev.Value = false
		case s == "positive" || s == "elevated" || s == "true" || s == "abnormal" || s == "yes":
			ev.Value = true
		}
	}
	return ev
}
