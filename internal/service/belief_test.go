package service

import (
	"math"
	"testing"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/knowledge"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func mustKB(t *testing.T, f knowledge.File) *knowledge.Base {
	t.Helper()
	kb, err := knowledge.New(f)
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}
	return kb
}

func newTestEngine(t *testing.T, likelihoods map[string]map[string]float64) *BeliefEngine {
	t.Helper()
	conds := make([]knowledge.Condition, 0, len(likelihoods))
	for id := range likelihoods {
		conds = append(conds, knowledge.Condition{ID: id, Prior: 0.1})
	}
	if len(conds) == 0 {
		conds = append(conds, knowledge.Condition{ID: "placeholder", Prior: 0.1})
	}
	return NewBeliefEngine(mustKB(t, knowledge.File{Conditions: conds, Likelihoods: likelihoods}), testLogger())
}

func boolEvidence(name string, value bool, confidence float64) domain.Evidence {
	return domain.Evidence{
		Kind:       domain.EvidenceSymptom,
		Name:       name,
		Value:      value,
		Confidence: confidence,
		ObservedAt: time.Now(),
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestBeliefEngine_MyocardialInfarctionTroponin(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{
		"myocardial_infarction": {"troponin_elevated": 20.0},
	})
	if err := e.InitializeDiagnosis("myocardial_infarction", 0.02, "I21.9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updates := e.UpdateWithEvidence(domain.Evidence{
		Kind:       domain.EvidenceTestResult,
		Name:       "troponin_elevated",
		Value:      true,
		Confidence: 0.95,
	})

	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	u := updates[0]
	if !approx(u.LikelihoodRatio, 19.05, 1e-9) {
		t.Errorf("adjusted ratio = %f, want 19.05", u.LikelihoodRatio)
	}
	if !approx(u.OldProbability, 0.02, 1e-12) {
		t.Errorf("old probability = %f, want 0.02", u.OldProbability)
	}
	if !approx(u.NewProbability, 0.2799, 1e-4) {
		t.Errorf("posterior = %f, want ~0.2799", u.NewProbability)
	}

	rec, ok := e.Diagnosis("myocardial_infarction")
	if !ok {
		t.Fatal("expected record")
	}
	if !approx(rec.CumulativeLikelihood, 19.05, 1e-9) {
		t.Errorf("cumulative likelihood = %f, want 19.05", rec.CumulativeLikelihood)
	}
	if len(rec.EvidenceLog) != 1 {
		t.Errorf("evidence log = %d, want 1", len(rec.EvidenceLog))
	}
	if rec.ClassificationCode != "I21.9" {
		t.Errorf("classification code = %q", rec.ClassificationCode)
	}
}

func TestBeliefEngine_PneumoniaNoFever(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{
		"pneumonia": {"no_fever": 0.3},
	})
	_ = e.InitializeDiagnosis("pneumonia", 0.05, "")

	updates := e.UpdateWithEvidence(boolEvidence("fever", false, 1.0))

	u := updates[0]
	if !approx(u.LikelihoodRatio, 0.3, 1e-12) {
		t.Errorf("adjusted ratio = %f, want 0.3", u.LikelihoodRatio)
	}
	if !approx(u.NewProbability, 0.01554, 1e-5) {
		t.Errorf("posterior = %f, want ~0.01554", u.NewProbability)
	}
	if u.NewProbability >= 0.05 {
		t.Errorf("posterior %f should be below prior", u.NewProbability)
	}
}

func TestBeliefEngine_Monotonicity(t *testing.T) {
	tests := []struct {
		name       string
		lr         float64
		confidence float64
		want       int // +1 increase, -1 decrease, 0 unchanged
	}{
		{"strong support", 8, 1, 1},
		{"weak support low confidence", 1.2, 0.1, 1},
		{"strong refute", 0.1, 1, -1},
		{"weak refute", 0.9, 0.5, -1},
		{"neutral ratio", 1, 1, 0},
		{"zero confidence", 8, 0, 0},
		{"zero confidence refute", 0.1, 0, 0},
	}

	for _, tt := range tests {
		for _, prior := range []float64{0.01, 0.2, 0.5, 0.8} {
			t.Run(tt.name, func(t *testing.T) {
				e := newTestEngine(t, map[string]map[string]float64{"c": {"sign": tt.lr}})
				_ = e.InitializeDiagnosis("c", prior, "")
				u := e.UpdateWithEvidence(boolEvidence("sign", true, tt.confidence))[0]

				switch tt.want {
				case 1:
					if !(u.NewProbability > prior) {
						t.Errorf("prior %f: posterior %f should increase", prior, u.NewProbability)
					}
				case -1:
					if !(u.NewProbability < prior) {
						t.Errorf("prior %f: posterior %f should decrease", prior, u.NewProbability)
					}
				default:
					if !approx(u.NewProbability, prior, 1e-12) {
						t.Errorf("prior %f: posterior %f should be unchanged", prior, u.NewProbability)
					}
				}
			})
		}
	}
}

func TestAdjustLikelihood_Endpoints(t *testing.T) {
	for _, lr := range []float64{0.01, 0.3, 1, 2.5, 20, 1e6} {
		if got := AdjustLikelihood(lr, 0); got != 1 {
			t.Errorf("lr %v at confidence 0 = %v, want exactly 1", lr, got)
		}
		if got := AdjustLikelihood(lr, 1); got != lr {
			t.Errorf("lr %v at confidence 1 = %v, want exactly %v", lr, got, lr)
		}
	}
}

func TestBeliefEngine_Bounds(t *testing.T) {
	priors := []float64{1e-9, 0.001, 0.3, 0.999, 1 - 1e-9}
	ratios := []float64{1e-300, 1e-12, 1e-3, 0.5, 1, 3, 1e3, 1e12, 1e300, 1e308, math.MaxFloat64}

	for _, prior := range priors {
		for _, lr := range ratios {
			e := newTestEngine(t, map[string]map[string]float64{"c": {"sign": lr}})
			_ = e.InitializeDiagnosis("c", prior, "")
			for i := 0; i < 3; i++ {
				e.UpdateWithEvidence(boolEvidence("sign", true, 1))
				rec, _ := e.Diagnosis("c")
				if rec.PosteriorProbability < MinPosterior || rec.PosteriorProbability > MaxPosterior {
					t.Fatalf("prior %g lr %g: posterior %g out of bounds", prior, lr, rec.PosteriorProbability)
				}
			}
		}
	}
}

func TestApplyLikelihood_ExtremeRatios(t *testing.T) {
	tests := []struct {
		name  string
		prior float64
		lr    float64
		want  float64
	}{
		{"odds overflow", 0.9, 1e308, MaxPosterior},
		{"max float", 0.5, math.MaxFloat64, MaxPosterior},
		{"vanishing ratio", 0.5, 1e-320, MinPosterior},
		{"certain prior", 1, 0, MinPosterior},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyLikelihood(tt.prior, tt.lr)
			if math.IsNaN(got) || got != tt.want {
				t.Errorf("ApplyLikelihood(%g, %g) = %g, want %g", tt.prior, tt.lr, got, tt.want)
			}
		})
	}
}

func TestBeliefEngine_HugeRatioKeepsEntropyFinite(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"c": {"sign": 1e308}, "d": {}})
	_ = e.InitializeDiagnosis("c", 0.9, "")
	_ = e.InitializeDiagnosis("d", 0.05, "")

	e.UpdateWithEvidence(boolEvidence("sign", true, 1))

	for _, rec := range e.RankedDiagnoses() {
		if math.IsNaN(rec.PosteriorProbability) || rec.PosteriorProbability < MinPosterior || rec.PosteriorProbability > MaxPosterior {
			t.Fatalf("%s posterior %g out of bounds", rec.ConditionID, rec.PosteriorProbability)
		}
	}
	if h := e.Entropy(); math.IsNaN(h) || math.IsInf(h, 0) {
		t.Errorf("entropy = %g", h)
	}
	if top := e.RankedDiagnoses()[0]; top.ConditionID != "c" {
		t.Errorf("top = %s, want c", top.ConditionID)
	}
}

func TestBeliefEngine_UnknownEvidenceIsNeutral(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"c": {"known": 5}})
	_ = e.InitializeDiagnosis("c", 0.3, "")

	u := e.UpdateWithEvidence(boolEvidence("never_seen", true, 1))[0]
	if u.LikelihoodRatio != 1 {
		t.Errorf("ratio = %f, want 1", u.LikelihoodRatio)
	}
	if !approx(u.NewProbability, 0.3, 1e-12) {
		t.Errorf("posterior = %f, want 0.3", u.NewProbability)
	}
}

func TestBeliefEngine_UpdatesEveryCondition(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{
		"a": {"sign": 4},
		"b": {"sign": 0.5},
		"c": {},
	})
	_ = e.InitializeDiagnosis("a", 0.1, "")
	_ = e.InitializeDiagnosis("b", 0.1, "")
	_ = e.InitializeDiagnosis("c", 0.1, "")

	updates := e.UpdateWithEvidence(boolEvidence("sign", true, 1))
	if len(updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(updates))
	}
	for _, id := range []string{"a", "b", "c"} {
		rec, _ := e.Diagnosis(id)
		if len(rec.EvidenceLog) != 1 {
			t.Errorf("%s: evidence log = %d, want 1", id, len(rec.EvidenceLog))
		}
	}
}

func TestBeliefEngine_Normalization(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{
		"a": {"strong": 50},
		"b": {"strong": 40},
		"c": {"strong": 30},
	})
	_ = e.InitializeDiagnosis("a", 0.4, "")
	_ = e.InitializeDiagnosis("b", 0.4, "")
	_ = e.InitializeDiagnosis("c", 0.4, "")

	var preSum float64
	for _, id := range []string{"a", "b", "c"} {
		rec, _ := e.Diagnosis(id)
		preSum += ApplyLikelihood(rec.PosteriorProbability, e.likelihood(id, "strong", 1))
	}
	if preSum <= 1 {
		t.Fatalf("test setup: pre-normalization sum %f should exceed 1", preSum)
	}

	e.UpdateWithEvidence(boolEvidence("strong", true, 1))

	var postSum float64
	for _, rec := range e.RankedDiagnoses() {
		postSum += rec.PosteriorProbability
	}
	if postSum > preSum {
		t.Errorf("post sum %f exceeds pre sum %f", postSum, preSum)
	}
	if !approx(postSum, NormalizationHeadroom, 1e-9) {
		t.Errorf("post sum = %f, want %f", postSum, NormalizationHeadroom)
	}
}

func TestBeliefEngine_NoNormalizationWhenDiffuse(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"a": {}, "b": {}})
	_ = e.InitializeDiagnosis("a", 0.1, "")
	_ = e.InitializeDiagnosis("b", 0.1, "")

	e.UpdateWithEvidence(boolEvidence("unrelated", true, 1))

	a, _ := e.Diagnosis("a")
	if !approx(a.PosteriorProbability, 0.1, 1e-12) {
		t.Errorf("posterior = %f, want 0.1 (sum below 1 is never rescaled)", a.PosteriorProbability)
	}
}

func TestBeliefEngine_OrderSensitivityIsPossible(t *testing.T) {
	likelihoods := map[string]map[string]float64{"c": {"a": 1e6, "b": 1e-3}}
	evA := boolEvidence("a", true, 1)
	evB := boolEvidence("b", true, 1)

	first := newTestEngine(t, likelihoods)
	_ = first.InitializeDiagnosis("c", 0.5, "")
	first.UpdateWithEvidence(evA)
	first.UpdateWithEvidence(evB)

	second := newTestEngine(t, likelihoods)
	_ = second.InitializeDiagnosis("c", 0.5, "")
	second.UpdateWithEvidence(evB)
	second.UpdateWithEvidence(evA)

	ab, _ := first.Diagnosis("c")
	ba, _ := second.Diagnosis("c")
	if approx(ab.PosteriorProbability, ba.PosteriorProbability, 1e-6) {
		t.Errorf("expected clamping to make order matter, both = %f", ab.PosteriorProbability)
	}
	if ab.CumulativeLikelihood != ba.CumulativeLikelihood {
		t.Errorf("cumulative likelihood should not depend on order: %g vs %g",
			ab.CumulativeLikelihood, ba.CumulativeLikelihood)
	}
}

func TestBeliefEngine_InitializeValidatesPrior(t *testing.T) {
	e := newTestEngine(t, nil)
	for _, p := range []float64{0, 1, -0.2, 1.5, math.NaN()} {
		if err := e.InitializeDiagnosis("x", p, ""); err != ErrInvalidPrior {
			t.Errorf("prior %v: err = %v, want ErrInvalidPrior", p, err)
		}
	}
	if e.Len() != 0 {
		t.Errorf("invalid priors must not create records")
	}
}

func TestBeliefEngine_ReinitializeOverwrites(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"a": {"s": 3}, "b": {}})
	_ = e.InitializeDiagnosis("a", 0.2, "")
	_ = e.InitializeDiagnosis("b", 0.2, "")
	e.UpdateWithEvidence(boolEvidence("s", true, 1))

	_ = e.InitializeDiagnosis("a", 0.3, "code")

	rec, _ := e.Diagnosis("a")
	if rec.PosteriorProbability != 0.3 || rec.CumulativeLikelihood != 1 || len(rec.EvidenceLog) != 0 {
		t.Errorf("re-initialize should overwrite, got %+v", rec)
	}
	if e.Len() != 2 {
		t.Errorf("len = %d, want 2", e.Len())
	}
}

func TestBeliefEngine_RankingStableOnTies(t *testing.T) {
	e := newTestEngine(t, nil)
	_ = e.InitializeDiagnosis("first", 0.2, "")
	_ = e.InitializeDiagnosis("top", 0.5, "")
	_ = e.InitializeDiagnosis("second", 0.2, "")
	_ = e.InitializeDiagnosis("third", 0.2, "")

	ranked := e.RankedDiagnoses()
	want := []string{"top", "first", "second", "third"}
	for i, id := range want {
		if ranked[i].ConditionID != id {
			t.Errorf("rank %d = %s, want %s", i, ranked[i].ConditionID, id)
		}
	}
}

func TestBeliefEngine_DiagnosisAbsent(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, ok := e.Diagnosis("missing"); ok {
		t.Error("expected no result")
	}
}

func TestBeliefEngine_Reset(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"a": {"s": 3}})
	_ = e.InitializeDiagnosis("a", 0.2, "")
	e.UpdateWithEvidence(boolEvidence("s", true, 1))

	e.Reset()

	if got := e.RankedDiagnoses(); len(got) != 0 {
		t.Errorf("ranked after reset = %d, want 0", len(got))
	}
	if e.Entropy() != 0 {
		t.Errorf("entropy of empty store = %f", e.Entropy())
	}
}

func TestBeliefEngine_InformationGainDoesNotMutate(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{
		"a": {"fever": 4, "no_fever": 0.2},
		"b": {"fever": 0.5, "no_fever": 1.5},
	})
	_ = e.InitializeDiagnosis("a", 0.3, "")
	_ = e.InitializeDiagnosis("b", 0.3, "")
	before := e.Snapshot()

	gain := e.InformationGain(boolEvidence("fever", true, 1))

	after := e.Snapshot()
	for i := range before {
		if before[i].PosteriorProbability != after[i].PosteriorProbability ||
			len(before[i].EvidenceLog) != len(after[i].EvidenceLog) {
			t.Fatalf("information gain mutated the store: %+v -> %+v", before[i], after[i])
		}
	}
	if gain == 0 {
		t.Error("discriminating evidence should have non-zero gain")
	}
}

func TestBeliefEngine_InformationGainUnknownEvidence(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"a": {}, "b": {}})
	_ = e.InitializeDiagnosis("a", 0.3, "")
	_ = e.InitializeDiagnosis("b", 0.2, "")

	if g := e.InformationGain(boolEvidence("unknown", true, 1)); !approx(g, 0, 1e-12) {
		t.Errorf("gain = %f, want 0", g)
	}
}

func TestEntropy(t *testing.T) {
	if h := Entropy([]float64{0.25, 0.25}); !approx(h, 1, 1e-12) {
		t.Errorf("two equal = %f, want 1", h)
	}
	if h := Entropy([]float64{0.4}); h != 0 {
		t.Errorf("single = %f, want 0", h)
	}
	if h := Entropy(nil); h != 0 {
		t.Errorf("empty = %f, want 0", h)
	}
}

func TestBeliefEngine_SnapshotRestore(t *testing.T) {
	e := newTestEngine(t, map[string]map[string]float64{"a": {"s": 3}, "b": {}})
	_ = e.InitializeDiagnosis("a", 0.2, "")
	_ = e.InitializeDiagnosis("b", 0.1, "")
	e.UpdateWithEvidence(boolEvidence("s", true, 1))
	snap := e.Snapshot()

	restored := newTestEngine(t, map[string]map[string]float64{"a": {"s": 3}, "b": {}})
	restored.Restore(snap)

	got := restored.RankedDiagnoses()
	want := e.RankedDiagnoses()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ConditionID != want[i].ConditionID || got[i].PosteriorProbability != want[i].PosteriorProbability {
			t.Errorf("rank %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}
