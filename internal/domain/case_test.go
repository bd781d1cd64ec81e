package domain

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestMissingEssentials(t *testing.T) {
	t.Run("empty facts", func(t *testing.T) {
		got := CaseFacts{}.MissingEssentials()
		want := []string{
			FieldAge, FieldGender, FieldMedications, FieldAllergies,
			FieldFamilyHistory, FieldSymptomTimeline, FieldSymptomSeverity,
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("MissingEssentials() = %v, want %v", got, want)
		}
	})

	t.Run("recorded as empty counts", func(t *testing.T) {
		f := CaseFacts{
			Age:             40,
			Gender:          "female",
			Medications:     []string{},
			Allergies:       []string{},
			FamilyHistory:   []string{},
			SymptomTimeline: "2 days",
			SymptomSeverity: "mild",
		}
		if got := f.MissingEssentials(); len(got) != 0 {
			t.Errorf("MissingEssentials() = %v, want none", got)
		}
	})

	t.Run("unknown gender is missing", func(t *testing.T) {
		f := CaseFacts{Age: 40, Gender: "Unknown"}
		got := f.MissingEssentials()
		if len(got) == 0 || got[0] != FieldGender {
			t.Errorf("MissingEssentials() = %v, want gender first", got)
		}
	})
}

func TestCaseFactsMerge(t *testing.T) {
	present := true
	base := CaseFacts{
		Age:         0,
		Gender:      "unknown",
		Medications: []string{"Aspirin"},
		Symptoms:    []SymptomFact{{Name: "chest pain"}},
	}
	other := CaseFacts{
		Age:             61,
		Gender:          "male",
		Medications:     []string{"aspirin", "metformin"},
		Allergies:       []string{},
		Symptoms:        []SymptomFact{{Name: "Chest Pain", Present: &present, Severity: "severe"}, {Name: "nausea"}},
		SymptomTimeline: "1 hour",
	}

	got := base.Merge(other)

	if got.Age != 61 || got.Gender != "male" {
		t.Errorf("demographics = %d/%s, want 61/male", got.Age, got.Gender)
	}
	if want := []string{"Aspirin", "metformin"}; !reflect.DeepEqual(got.Medications, want) {
		t.Errorf("Medications = %v, want %v", got.Medications, want)
	}
	if got.Allergies == nil {
		t.Error("recorded-empty allergies should survive the merge")
	}
	if got.FamilyHistory != nil {
		t.Error("family history was never recorded and should stay nil")
	}
	if len(got.Symptoms) != 2 || got.Symptoms[0].Severity != "severe" {
		t.Errorf("Symptoms = %+v, want chest pain replaced and nausea appended", got.Symptoms)
	}
	if got.SymptomTimeline != "1 hour" {
		t.Errorf("SymptomTimeline = %q", got.SymptomTimeline)
	}
	if len(base.Symptoms) != 1 || base.Symptoms[0].Severity != "" {
		t.Error("Merge mutated its receiver")
	}

	kept := CaseFacts{Age: 30}.Merge(CaseFacts{Age: 70})
	if kept.Age != 30 {
		t.Errorf("recorded age overwritten: %d", kept.Age)
	}
}

func TestCaseStateClone(t *testing.T) {
	s := NewCaseState(uuid.New(), "cough", CaseFacts{Medications: []string{"ibuprofen"}}, 500)
	s.Beliefs = []BeliefRecord{{ConditionID: "pneumonia", EvidenceLog: []Evidence{{Name: "fever"}}}}
	s.Differential = []DiagnosisEntry{{ConditionID: "pneumonia", SupportingNotes: []string{"fever"}}}
	s.EvidenceKeys = []string{"fever"}
	s.OrderedTests = []OrderedTest{{Name: "chest_xray"}}

	c := s.Clone()
	c.Facts.Medications[0] = "changed"
	c.Beliefs[0].EvidenceLog[0].Name = "changed"
	c.Differential[0].SupportingNotes[0] = "changed"
	c.EvidenceKeys[0] = "changed"
	c.OrderedTests[0].ResultReceived = true

	if s.Facts.Medications[0] != "ibuprofen" ||
		s.Beliefs[0].EvidenceLog[0].Name != "fever" ||
		s.Differential[0].SupportingNotes[0] != "fever" ||
		s.EvidenceKeys[0] != "fever" ||
		s.OrderedTests[0].ResultReceived {
		t.Error("Clone shares memory with the original")
	}
}

func TestCaseStateEvidenceAndTests(t *testing.T) {
	s := NewCaseState(uuid.New(), "cough", CaseFacts{}, 500)
	if s.Status != CaseStatusActive || s.Phase != PhaseCasePresentation {
		t.Errorf("new case = %s/%s", s.Status, s.Phase)
	}

	s.EvidenceKeys = []string{"fever", "no_cough"}
	if !s.HasEvidence("no_cough") || s.HasEvidence("cough") {
		t.Error("HasEvidence mismatch")
	}

	s.OrderedTests = []OrderedTest{{Name: "cbc", ResultReceived: true}, {Name: "chest_xray"}}
	out := s.OutstandingTests()
	if len(out) != 1 || out[0].Name != "chest_xray" {
		t.Errorf("OutstandingTests() = %+v", out)
	}
}

func TestEnumsValid(t *testing.T) {
	if !QuestionTestResult.IsValid() || QuestionCategory("weather").IsValid() {
		t.Error("QuestionCategory.IsValid mismatch")
	}
	if !RoleHypothesis.IsValid() || Role("oracle").IsValid() {
		t.Error("Role.IsValid mismatch")
	}
}
