package service

const intakePrompt = `You are a clinical intake assistant. Extract a structured case record from the text below.

Respond ONLY with a JSON object. No markdown, no explanation. Fields:
{"age": 0, "gender": "", "chief_complaint": "", "history": [], "symptoms": [{"name": "", "present": true, "severity": ""}],
 "medications": [], "allergies": [], "family_history": [], "symptom_timeline": "", "symptom_severity": "",
 "test_results": [{"name": "", "value": ""}]}

Use snake_case symptom names (e.g. "chest_pain", "fever"). Set "present" to false for denied symptoms.
Omit a list field entirely when the text says nothing about it; use [] only when the text says "none".

Text:
%s`

const questionsPrompt = `You are coordinating a diagnostic case and must decide what to ask the patient next.

%s

Respond ONLY with a JSON array of at most %d questions. No markdown, no explanation. Example:
[{"role":"hypothesis","category":"symptoms","text":"Does the pain get worse when you breathe in?","priority":1}]

Valid roles: hypothesis, test_selection, challenge, cost_stewardship, quality_check.
Valid categories: demographics, history, medications, allergies, family_history, symptoms, test_result, clarification.
Priority 1 is most urgent.`

const roleHypothesisBrief = `You maintain the differential diagnosis. Give your updated probability for each condition on its own line as "condition: NN%" with one sentence of reasoning.`

const roleTestSelectionBrief = `You choose the next diagnostic tests. Name the tests that would best separate the leading conditions and state the expected total cost as a dollar amount.`

const roleChallengeBrief = `You are the devil's advocate. Challenge the leading diagnosis, name any cognitive bias you see, and give a revised probability as "condition: NN%" where you disagree.`

const roleCostStewardshipBrief = `You steward the testing budget. State the dollar cost of the proposed workup and flag anything low-yield.`

const roleQualityCheckBrief = `You audit the reasoning. Name any cognitive bias present (anchoring, confirmation bias, premature closure, availability, overconfidence, ...) and say whether the evidence supports the leading diagnosis.`
