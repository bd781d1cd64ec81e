package knowledge

// Default returns the built-in demonstration knowledge base (acute chest
// and respiratory presentations). Ratios are illustrative, not clinical.
func Default() *Base {
	b, err := New(defaultFile())
	if err != nil {
		panic("knowledge: built-in tables are invalid: " + err.Error())
	}
	return b
}

func defaultFile() File {
	return File{
		Conditions: []Condition{
			{ID: "myocardial_infarction", Name: "Myocardial infarction", Code: "I21.9", Prior: 0.02},
			{ID: "pneumonia", Name: "Pneumonia", Code: "J18.9", Prior: 0.05},
			{ID: "pulmonary_embolism", Name: "Pulmonary embolism", Code: "I26.99", Prior: 0.01},
			{ID: "gerd", Name: "Gastroesophageal reflux disease", Code: "K21.9", Prior: 0.10},
			{ID: "influenza", Name: "Influenza", Code: "J11.1", Prior: 0.08},
			{ID: "heart_failure", Name: "Heart failure", Code: "I50.9", Prior: 0.03},
			{ID: "costochondritis", Name: "Costochondritis", Code: "M94.0", Prior: 0.04},
		},
		Likelihoods: map[string]map[string]float64{
			"myocardial_infarction": {
				"chest_pain":        5.0,
				"no_chest_pain":     0.2,
				"troponin_elevated": 20.0,
				"diaphoresis":       2.5,
				"radiating_pain":    3.0,
				"age_over_50":       2.0,
				"no_age_over_50":    0.5,
				"sex_male":          1.4,
				"smoking":           1.8,
				"fever":             0.6,
				"reproducible_pain": 0.3,
			},
			"pneumonia": {
				"fever":       3.0,
				"no_fever":    0.3,
				"cough":       2.5,
				"no_cough":    0.4,
				"dyspnea":     2.0,
				"crackles":    3.5,
				"chest_pain":  1.3,
				"age_over_50": 1.3,
			},
			"pulmonary_embolism": {
				"dyspnea":        3.0,
				"no_dyspnea":     0.3,
				"tachycardia":    2.5,
				"leg_swelling":   3.0,
				"recent_surgery": 4.0,
				"chest_pain":     1.8,
				"hemoptysis":     2.5,
			},
			"gerd": {
				"heartburn":         4.0,
				"no_heartburn":      0.5,
				"chest_pain":        1.5,
				"pain_after_meals":  3.0,
				"troponin_elevated": 0.3,
				"fever":             0.7,
			},
			"influenza": {
				"fever":    4.0,
				"no_fever": 0.2,
				"myalgia":  3.0,
				"cough":    2.0,
				"fatigue":  1.8,
			},
			"heart_failure": {
				"dyspnea":      2.5,
				"leg_swelling": 3.0,
				"orthopnea":    4.0,
				"age_over_50":  2.5,
				"fatigue":      1.5,
			},
			"costochondritis": {
				"reproducible_pain":    6.0,
				"no_reproducible_pain": 0.3,
				"chest_pain":           2.0,
				"fever":                0.5,
				"troponin_elevated":    0.2,
			},
		},
		Tests: []Test{
			{Name: "troponin", EvidenceName: "troponin_elevated", Cost: 60, Sensitivity: 0.95, Specificity: 0.90,
				Targets: []string{"myocardial_infarction"}, Aliases: []string{"troponin", "cardiac enzymes"}},
			{Name: "ecg", EvidenceName: "st_elevation", Cost: 50, Sensitivity: 0.65, Specificity: 0.95,
				Targets: []string{"myocardial_infarction"}, Aliases: []string{"ecg", "ekg", "electrocardiogram"}},
			{Name: "chest_xray", EvidenceName: "infiltrate_on_xray", Cost: 120, Sensitivity: 0.75, Specificity: 0.90,
				Targets: []string{"pneumonia", "heart_failure"}, Aliases: []string{"chest x-ray", "chest xray", "cxr", "x-ray"}},
			{Name: "d_dimer", EvidenceName: "d_dimer_elevated", Cost: 90, Sensitivity: 0.96, Specificity: 0.45,
				Targets: []string{"pulmonary_embolism"}, Aliases: []string{"d-dimer", "d dimer"}},
			{Name: "ct_pulmonary_angiogram", EvidenceName: "filling_defect_on_ctpa", Cost: 900, Sensitivity: 0.90, Specificity: 0.95,
				Targets: []string{"pulmonary_embolism"}, Aliases: []string{"ctpa", "ct angiogram", "ct pulmonary angiogram"}},
			{Name: "bnp", EvidenceName: "bnp_elevated", Cost: 80, Sensitivity: 0.90, Specificity: 0.75,
				Targets: []string{"heart_failure"}, Aliases: []string{"bnp", "natriuretic peptide"}},
			{Name: "influenza_swab", EvidenceName: "influenza_positive", Cost: 40, Sensitivity: 0.70, Specificity: 0.95,
				Targets: []string{"influenza"}, Aliases: []string{"flu swab", "influenza swab", "rapid flu"}},
			{Name: "cbc", EvidenceName: "leukocytosis", Cost: 30, Sensitivity: 0.70, Specificity: 0.60,
				Targets: []string{"pneumonia"}, Aliases: []string{"cbc", "complete blood count", "white count"}},
		},
		Candidates: []string{
			"fever", "cough", "dyspnea", "chest_pain", "troponin_elevated",
			"leg_swelling", "heartburn", "reproducible_pain",
		},
	}
}
