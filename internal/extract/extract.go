// Package extract turns free oracle text into structured records. Heuristic
// extraction never fails; record decoding fails with domain.ErrMalformedOutput.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
)

var (
	percentPattern     = regexp.MustCompile(`([A-Za-z][A-Za-z0-9'/\-]*(?:[ \t]+[A-Za-z0-9][A-Za-z0-9'/\-]*){0,5}?)\**[ \t]*(?::|\(|-|–|=)[ \t]*(\d{1,3}(?:\.\d+)?)[ \t]*%`)
	fractionPattern    = regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9'/\-]*(?:[ \t]+[A-Za-z0-9][A-Za-z0-9'/\-]*){0,5}?)[ \t,]*(?:p[ \t]*=|probability(?:[ \t]+of)?[ \t]*[:=]?)[ \t]*(0?\.\d+|1(?:\.0+)?)\b`)
	dollarPattern      = regexp.MustCompile(`\$[ \t]?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	leadingListPattern = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s*`)
)

// Names that look like conditions in "name: NN%" phrases but are not.
var nonConditionNames = map[string]bool{
	"confidence": true, "probability": true, "certainty": true, "overall": true,
	"total": true, "budget": true, "sensitivity": true, "specificity": true,
	"cost": true, "likelihood": true, "estimate": true, "remaining": true,
}

// KnownBiases are the cognitive bias terms recognized in contributions.
var KnownBiases = []string{
	"anchoring",
	"confirmation bias",
	"availability",
	"premature closure",
	"overconfidence",
	"framing",
	"representativeness",
	"sunk cost",
	"search satisficing",
	"diagnosis momentum",
	"base rate neglect",
}

type testMatcher struct {
	name    string
	pattern *regexp.Regexp
}

type conditionName struct {
	id   string
	name string
}

// Extractor holds the vocabularies used by the heuristics. It is read-only
// after construction.
type Extractor struct {
	tests      []testMatcher
	conditions []conditionName
}

func New(kb *knowledge.Base) *Extractor {
	x := &Extractor{}
	for _, t := range kb.Tests() {
		terms := append([]string{t.Name, strings.ReplaceAll(t.Name, "_", " ")}, t.Aliases...)
		quoted := make([]string, 0, len(terms))
		seen := make(map[string]bool)
		for _, term := range terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			quoted = append(quoted, regexp.QuoteMeta(term))
		}
		// longest first so "ct pulmonary angiogram" wins over shorter aliases
		sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
		x.tests = append(x.tests, testMatcher{
			name:    t.Name,
			pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
		})
	}
	for _, c := range kb.Conditions() {
		x.conditions = append(x.conditions, conditionName{id: c.ID, name: NormalizeName(c.Name)})
	}
	return x
}

// NormalizeName lowercases and joins words with underscores.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "*_:-. ")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), "_")
}

// Contribution applies the extraction rules of role to text.
func (x *Extractor) Contribution(role domain.Role, round int, text string) domain.Contribution {
	c := domain.Contribution{
		Role:      role,
		Round:     round,
		Narrative: strings.TrimSpace(text),
	}
	switch role {
	case domain.RoleHypothesis:
		c.DiagnosisDeltas = x.Probabilities(text)
	case domain.RoleChallenge:
		c.DiagnosisDeltas = x.Probabilities(text)
		c.BiasesFound = Biases(text)
	case domain.RoleTestSelection:
		c.TestsRequested = x.Tests(text)
		if cost, ok := CostEstimate(text); ok {
			c.CostEstimate = &cost
		}
	case domain.RoleCostStewardship:
		if cost, ok := CostEstimate(text); ok {
			c.CostEstimate = &cost
		}
	case domain.RoleQualityCheck:
		c.BiasesFound = Biases(text)
	}
	return c
}

// resolveCondition maps a free-text name onto a known condition id when the
// name mentions one; otherwise the normalized name is returned.
func (x *Extractor) resolveCondition(raw string) (string, bool) {
	name := NormalizeName(raw)
	best, bestLen := "", 0
	for _, c := range x.conditions {
		for _, candidate := range []string{c.id, c.name} {
			if candidate == "" {
				continue
			}
			if name == candidate || strings.HasSuffix(name, "_"+candidate) || strings.Contains("_"+name+"_", "_"+candidate+"_") {
				if len(candidate) > bestLen {
					best, bestLen = c.id, len(candidate)
				}
			}
		}
	}
	if best != "" {
		return best, true
	}
	return name, false
}

// Probabilities extracts "name: NN%", "name (NN%)", "name - NN%" and
// "name p=0.NN" phrases. Later mentions of a condition override earlier ones.
func (x *Extractor) Probabilities(text string) []domain.DiagnosisDelta {
	var out []domain.DiagnosisDelta
	index := make(map[string]int)

	add := func(raw string, p float64, line string) {
		if p < 0 || p > 1 {
			return
		}
		raw = leadingListPattern.ReplaceAllString(strings.TrimSpace(raw), "")
		id, known := x.resolveCondition(raw)
		if id == "" {
			return
		}
		if !known {
			for _, word := range strings.Split(id, "_") {
				if nonConditionNames[word] {
					return
				}
			}
		}
		d := domain.DiagnosisDelta{ConditionID: id, Probability: p, Reasoning: strings.TrimSpace(line)}
		if i, ok := index[id]; ok {
			out[i] = d
			return
		}
		index[id] = len(out)
		out = append(out, d)
	}

	for _, line := range strings.Split(text, "\n") {
		for _, m := range percentPattern.FindAllStringSubmatch(line, -1) {
			pct, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			add(m[1], pct/100, line)
		}
		for _, m := range fractionPattern.FindAllStringSubmatch(line, -1) {
			p, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			add(m[1], p, line)
		}
	}
	return out
}

// Tests returns catalog test names mentioned in text, in catalog order.
func (x *Extractor) Tests(text string) []string {
	var out []string
	for _, t := range x.tests {
		if t.pattern.MatchString(text) {
			out = append(out, t.name)
		}
	}
	return out
}

// CostEstimate returns the first dollar amount in text.
func CostEstimate(text string) (float64, bool) {
	m := dollarPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Biases returns the known bias terms mentioned in text.
func Biases(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, b := range KnownBiases {
		if strings.Contains(lower, b) {
			out = append(out, b)
		}
	}
	return out
}

// StripFences removes a surrounding markdown code fence.
func StripFences(text string) string {
	result := strings.TrimSpace(text)
	result = strings.TrimPrefix(result, "```json")
	result = strings.TrimPrefix(result, "```JSON")
	result = strings.TrimPrefix(result, "```")
	result = strings.TrimSuffix(result, "```")
	return strings.TrimSpace(result)
}

// DecodeJSON decodes the first JSON object or array embedded in text into v.
func DecodeJSON(text string, v any) error {
	body := StripFences(text)
	if body == "" {
		return fmt.Errorf("%w: empty response", domain.ErrMalformedOutput)
	}
	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return fmt.Errorf("%w: no JSON record found", domain.ErrMalformedOutput)
	}
	closer := byte('}')
	if body[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(body, closer)
	if end < start {
		return fmt.Errorf("%w: unterminated JSON record", domain.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	return nil
}
