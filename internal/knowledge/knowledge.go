// Package knowledge holds the immutable domain tables the belief engine is
// seeded with: condition priors, likelihood ratios, the diagnostic test
// catalog, and the candidate observations scored for information gain.
package knowledge

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidBase = errors.New("invalid knowledge base")

type Condition struct {
	ID    string  `yaml:"id" json:"id"`
	Name  string  `yaml:"name" json:"name"`
	Code  string  `yaml:"code" json:"code,omitempty"`
	Prior float64 `yaml:"prior" json:"prior"`
}

type Test struct {
	Name         string   `yaml:"name" json:"name"`
	EvidenceName string   `yaml:"evidence" json:"evidence_name"`
	Cost         float64  `yaml:"cost" json:"cost"`
	Sensitivity  float64  `yaml:"sensitivity" json:"sensitivity"`
	Specificity  float64  `yaml:"specificity" json:"specificity"`
	Targets      []string `yaml:"targets" json:"targets"`
	Aliases      []string `yaml:"aliases" json:"aliases,omitempty"`
}

// File is the on-disk YAML layout.
type File struct {
	Conditions  []Condition                   `yaml:"conditions"`
	Likelihoods map[string]map[string]float64 `yaml:"likelihoods"`
	Tests       []Test                        `yaml:"tests"`
	Candidates  []string                      `yaml:"candidates"`
}

// Base is read-only after construction; accessors return copies.
type Base struct {
	conditions  []Condition
	likelihoods map[string]map[string]float64
	tests       []Test
	candidates  []string
}

// New validates the tables and derives test likelihood ratios from
// sensitivity and specificity where no explicit ratio is given.
func New(f File) (*Base, error) {
	if len(f.Conditions) == 0 {
		return nil, fmt.Errorf("%w: no conditions", ErrInvalidBase)
	}
	b := &Base{
		likelihoods: make(map[string]map[string]float64),
	}
	seen := make(map[string]bool)
	for i, c := range f.Conditions {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: condition[%d] has no id", ErrInvalidBase, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate condition %q", ErrInvalidBase, c.ID)
		}
		if math.IsNaN(c.Prior) || c.Prior <= 0 || c.Prior >= 1 {
			return nil, fmt.Errorf("%w: condition %q prior %v outside (0,1)", ErrInvalidBase, c.ID, c.Prior)
		}
		seen[c.ID] = true
		if c.Name == "" {
			c.Name = strings.ReplaceAll(c.ID, "_", " ")
		}
		b.conditions = append(b.conditions, c)
	}

	for cond, table := range f.Likelihoods {
		inner := make(map[string]float64, len(table))
		for key, lr := range table {
			if math.IsNaN(lr) || math.IsInf(lr, 0) || lr <= 0 {
				return nil, fmt.Errorf("%w: likelihood %s/%s must be positive and finite", ErrInvalidBase, cond, key)
			}
			inner[key] = lr
		}
		b.likelihoods[cond] = inner
	}

	for i, t := range f.Tests {
		if t.Name == "" || t.EvidenceName == "" {
			return nil, fmt.Errorf("%w: test[%d] needs name and evidence", ErrInvalidBase, i)
		}
		if math.IsNaN(t.Cost) || math.IsInf(t.Cost, 0) || t.Cost < 0 {
			return nil, fmt.Errorf("%w: test %q has negative cost", ErrInvalidBase, t.Name)
		}
		if math.IsNaN(t.Sensitivity) || math.IsNaN(t.Specificity) ||
			t.Sensitivity <= 0 || t.Sensitivity >= 1 || t.Specificity <= 0 || t.Specificity >= 1 {
			return nil, fmt.Errorf("%w: test %q sensitivity/specificity outside (0,1)", ErrInvalidBase, t.Name)
		}
		for _, target := range t.Targets {
			table, ok := b.likelihoods[target]
			if !ok {
				table = make(map[string]float64)
				b.likelihoods[target] = table
			}
			if _, ok := table[t.EvidenceName]; !ok {
				table[t.EvidenceName] = t.Sensitivity / (1 - t.Specificity)
			}
			if _, ok := table["no_"+t.EvidenceName]; !ok {
				table["no_"+t.EvidenceName] = (1 - t.Sensitivity) / t.Specificity
			}
		}
		t.Targets = append([]string(nil), t.Targets...)
		t.Aliases = append([]string(nil), t.Aliases...)
		b.tests = append(b.tests, t)
	}

	b.candidates = append([]string(nil), f.Candidates...)
	return b, nil
}

// Load reads a knowledge base from a YAML file.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge file %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge YAML: %w", err)
	}

	return New(f)
}

// LikelihoodRatio returns the base ratio for an evidence key under a condition.
func (b *Base) LikelihoodRatio(conditionID, key string) (float64, bool) {
	table, ok := b.likelihoods[conditionID]
	if !ok {
		return 0, false
	}
	lr, ok := table[key]
	return lr, ok
}

func (b *Base) Conditions() []Condition {
	return append([]Condition(nil), b.conditions...)
}

func (b *Base) Condition(id string) (Condition, bool) {
	for _, c := range b.conditions {
		if c.ID == id {
			return c, true
		}
	}
	return Condition{}, false
}

func (b *Base) Tests() []Test {
	out := make([]Test, len(b.tests))
	for i, t := range b.tests {
		t.Targets = append([]string(nil), t.Targets...)
		t.Aliases = append([]string(nil), t.Aliases...)
		out[i] = t
	}
	return out
}

func (b *Base) Test(name string) (Test, bool) {
	for _, t := range b.Tests() {
		if t.Name == name {
			return t, true
		}
	}
	return Test{}, false
}

// CandidateEvidence is the fixed set of next observations scored for
// information gain in hypothesis briefings.
func (b *Base) CandidateEvidence() []string {
	return append([]string(nil), b.candidates...)
}

// EvidenceNames lists every positive evidence name the tables know about,
// sorted, with "no_" prefixes and value suffixes left as-is.
func (b *Base) EvidenceNames() []string {
	set := make(map[string]bool)
	for _, table := range b.likelihoods {
		for key := range table {
			set[strings.TrimPrefix(key, "no_")] = true
		}
	}
	for _, c := range b.candidates {
		set[c] = true
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
