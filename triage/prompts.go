package triage

import (
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
)

// Template names registered by DefaultPrompts.
const (
	PromptRiskSystem      = "risk.system"
	PromptRisk            = "risk.user"
	PromptGuidelineSystem = "guideline.system"
	PromptGuideline       = "guideline.user"
	PromptCritiqueSystem  = "critique.system"
	PromptCritique        = "critique.user"
	PromptExecutiveSystem = "executive.system"
	PromptExecutive       = "executive.user"
)

// VisionPrompt is sent with every clinical image.
const VisionPrompt = "Analyze this clinical image of a pregnant patient for visible symptoms like edema (swelling), jaundice, or rashes. Identify any clinical anomalies."

const riskSystem = `You are a maternal-fetal medicine triage specialist. Assess maternal risk from
the vitals and symptoms you are given and answer with a structured JSON risk
assessment consistent with WHO and NICE guidance on pre-eclampsia and
hypertensive disorders of pregnancy.

Risk levels:
- severe: immediate danger to life; BP at or above 160/110 with neurological or organ signs
- high: urgent escalation needed; BP at or above 140/90 with proteinuria or symptoms
- moderate: closer monitoring; BP 130-139/80-89 or a single isolated symptom
- low: no significant concern now

Score bands (0-100): severe 75-100, high 50-74, moderate 25-49, low 0-24.

Reply with valid JSON only, without preamble or markdown.`

const riskUser = `Assess the maternal risk of this patient.

PATIENT
- Name: {{.Name}}
- Age: {{.Age}} years
- Gestational age: {{.GestationalAgeWeeks}} weeks

VITALS
- Blood pressure: {{.BPSystolic}}/{{.BPDiastolic}} mmHg
{{- if .HeartRate}}
- Heart rate: {{.HeartRate}} bpm
{{- end}}
- Proteinuria: {{.Proteinuria}}

SYMPTOMS
- Severe headache: {{yesno .Headache}}
- Visual disturbance: {{yesno .VisualDisturbance}}
- Epigastric pain: {{yesno .EpigastricPain}}
- Oedema: {{yesno .Oedema}}
- Reduced fetal movements: {{yesno .FetalMovementReduced}}
- Additional symptoms: {{.AdditionalSymptoms}}

MEDICAL HISTORY: {{.MedicalHistory}}
{{- if .Notes}}
NOTES: {{.Notes}}
{{- end}}
{{- if .VisionFindings}}

IMAGE FINDINGS: {{.VisionFindings}}
{{- end}}

Answer with exactly this JSON shape:
{
  "risk_level": "low|moderate|high|severe",
  "risk_score": <integer 0-100>,
  "confidence": <number 0.0-1.0>,
  "reasoning": "<one to three clinical sentences>",
  "immediate_actions": ["<action>", "<action>"]
}`

const guidelineSystem = `You are an evidence-based maternal health clinical advisor. Produce a clear,
actionable management plan for hypertensive disorders of pregnancy, grounded in
WHO and NICE guidance.

Use only the guideline excerpts included in the request. Do not invent
medications or doses; take them from the excerpts.
Reply with valid JSON only, without preamble or markdown.`

const guidelineUser = `Advise on the clinical management of this maternal patient.

RISK ASSESSMENT
- Risk level: {{.RiskLevel}}
- Risk score: {{.RiskScore}} / 100
- Reasoning: {{.Reasoning}}

KEY VITALS
- BP: {{.BPSystolic}}/{{.BPDiastolic}} mmHg
- Gestational age: {{.GestationalAgeWeeks}} weeks
- Proteinuria: {{.Proteinuria}}

GUIDELINE EXCERPTS
{{.Context}}

Using the risk level and the excerpts above, write the management plan.
Answer with exactly this JSON shape:
{
  "stabilization_plan": "<ordered stabilisation steps>",
  "monitoring_instructions": "<what to monitor and how often>",
  "medication_guidance": "<medications and doses taken from the excerpts>",
  "guideline_refs": ["<reference>", "<reference>"]
}`

const critiqueSystem = `You are a clinical safety lead reviewing a proposed maternal management plan
for safety gaps, contradictions and protocol violations.

Check in particular for:
1. Wrong magnesium sulfate dosing.
2. Inappropriate antihypertensive use.
3. A stabilisation plan that does not match the assessed risk level.

Set "safe" to true when the plan is safe. Otherwise set it to false and put a
corrected plan in "revised_plan".
Reply with valid JSON only.`

const critiqueUser = `REVIEW REQUEST
Patient risk: {{.RiskLevel}}
Proposed plan: {{.Plan}}
Medication guidance: {{.Medication}}

Answer with exactly this JSON shape:
{
  "safe": true|false,
  "safety_score": <integer 0-100>,
  "critique_notes": "<summary of findings>",
  "revised_plan": "<corrected plan when unsafe, otherwise null>"
}`

const executiveSystem = `You are a senior consultant obstetrician and maternal-fetal medicine
specialist. Peripheral clinics escalate high-risk and severe maternal cases to
you after an automated risk assessment and guideline lookup.

For each case:
1. Review the case summary, risk assessment and guideline plan.
2. Write one harmonised senior escalation and care plan.
3. Set referral urgency and priority and justify them clinically.
4. Estimate a safe transfer window.

Follow WHO Hypertensive Disorders of Pregnancy 2011, NICE NG133 2019 and RCOG
Green-top Guideline 10A.
Reply with valid JSON only, with nothing outside the JSON object.`

const executiveUser = `Review this escalated maternal case from a peripheral clinic.

PATIENT
{{.Patient}}
{{- if .VisionFindings}}

IMAGE FINDINGS
{{.VisionFindings}}
{{- end}}

EDGE RISK ASSESSMENT
- Risk level: {{.RiskLevel}}
- Risk score: {{.RiskScore}}/100
- Confidence: {{.Confidence}}
- Reasoning: {{.Reasoning}}
- Immediate actions: {{join .ImmediateActions ", "}}

GUIDELINE PLAN
- Stabilisation: {{.Plan}}
- Monitoring: {{.Monitoring}}
- Medication: {{.Medication}}
- References: {{join .Refs ", "}}

ESCALATION TRIGGER: {{.Reason}}

Answer with exactly this JSON shape:
{
  "executive_summary": "<two or three sentences on the case and its urgency>",
  "care_plan": "<numbered care plan>",
  "referral_urgency": "immediate|within-1-hour|within-4-hours|within-24-hours",
  "referral_priority": "immediate|urgent|routine",
  "justification": "<clinical justification citing specific parameters>",
  "time_to_transfer_hours": <number, e.g. 0.5>,
  "receiving_facility_requirements": "<capabilities the receiving facility needs>",
  "in_transit_care": "<care during transport>"
}`

// DefaultPrompts returns a manager holding every pipeline template.
func DefaultPrompts() *prompt.Manager {
	return prompt.NewManager().MustRegister(map[string]string{
		PromptRiskSystem:      riskSystem,
		PromptRisk:            riskUser,
		PromptGuidelineSystem: guidelineSystem,
		PromptGuideline:       guidelineUser,
		PromptCritiqueSystem:  critiqueSystem,
		PromptCritique:        critiqueUser,
		PromptExecutiveSystem: executiveSystem,
		PromptExecutive:       executiveUser,
	})
}
