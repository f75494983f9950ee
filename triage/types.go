// Package triage implements the maternal risk triage pipeline: vision, risk,
// guideline, critique and router steps, plus the conditional executive
// escalation, wired together by Engine.
package triage

import (
	"fmt"
	"strings"
	"time"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

// RiskLevel is the four-band maternal risk classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskSevere   RiskLevel = "severe"
)

// Valid reports whether l is one of the four bands.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskModerate, RiskHigh, RiskSevere:
		return true
	}
	return false
}

// ParseRiskLevel normalises model output such as "Severe" or " high ".
func ParseRiskLevel(s string) (RiskLevel, bool) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Vision step statuses.
const (
	VisionSkipped = "skipped"
	VisionSuccess = "success"
	VisionFailed  = "failed"
)

// Case modes describing whether the remote executive call happened.
const (
	ModeOnline        = "online"
	ModeOffline       = "offline"
	ModeOfflineForced = "offline-forced"
)

// Output sources.
const (
	SourceModel     = "model"
	SourceRuleBased = "rule-based"
)

// Proteinuria grades accepted at intake.
const (
	ProteinuriaNone  = "none"
	ProteinuriaTrace = "trace"
	Proteinuria1     = "1+"
	Proteinuria2     = "2+"
	Proteinuria3     = "3+"
)

// Intake symptom names understood by SymptomsFromList.
const (
	SymptomHeadache             = "headache"
	SymptomVisualDisturbance    = "visual_disturbance"
	SymptomEpigastricPain       = "epigastric_pain"
	SymptomOedema               = "oedema"
	SymptomFetalMovementReduced = "fetal_movement_reduced"
)

// PatientData is the immutable intake for one case.
type PatientData struct {
	Name                 string         `json:"name"`
	Age                  int            `json:"age"`
	GestationalAgeWeeks  int            `json:"gestational_age_weeks"`
	BPSystolic           int            `json:"bp_systolic"`
	BPDiastolic          int            `json:"bp_diastolic"`
	HeartRate            int            `json:"heart_rate,omitempty"`
	Proteinuria          string         `json:"proteinuria"`
	Headache             bool           `json:"headache"`
	VisualDisturbance    bool           `json:"visual_disturbance"`
	EpigastricPain       bool           `json:"epigastric_pain"`
	Oedema               bool           `json:"oedema"`
	FetalMovementReduced bool           `json:"fetal_movement_reduced"`
	AdditionalSymptoms   string         `json:"additional_symptoms,omitempty"`
	MedicalHistory       string         `json:"medical_history,omitempty"`
	Notes                string         `json:"notes,omitempty"`
	Image                *message.Image `json:"-"`
}

// HasProteinuria is true for any recorded grade other than none.
func (p PatientData) HasProteinuria() bool {
	g := strings.ToLower(strings.TrimSpace(p.Proteinuria))
	return g != "" && g != ProteinuriaNone && g != "false" && g != "negative"
}

// NeurologicalSymptom is true when headache or visual disturbance is present.
func (p PatientData) NeurologicalSymptom() bool {
	return p.Headache || p.VisualDisturbance
}

// HasImage reports whether clinical imagery was supplied.
func (p PatientData) HasImage() bool {
	return p.Image != nil && len(p.Image.Data) > 0
}

// SymptomsFromList sets the symptom flags from an intake list. Unrecognised
// entries are appended to AdditionalSymptoms.
func (p *PatientData) SymptomsFromList(symptoms []string) {
	var extra []string
	for _, raw := range symptoms {
		s := strings.ToLower(strings.TrimSpace(raw))
		s = strings.ReplaceAll(s, " ", "_")
		switch s {
		case "":
		case SymptomHeadache:
			p.Headache = true
		case SymptomVisualDisturbance:
			p.VisualDisturbance = true
		case SymptomEpigastricPain:
			p.EpigastricPain = true
		case SymptomOedema, "edema":
			p.Oedema = true
		case SymptomFetalMovementReduced:
			p.FetalMovementReduced = true
		default:
			extra = append(extra, strings.TrimSpace(raw))
		}
	}
	if len(extra) == 0 {
		return
	}
	joined := strings.Join(extra, ", ")
	if p.AdditionalSymptoms == "" {
		p.AdditionalSymptoms = joined
	} else {
		p.AdditionalSymptoms += ", " + joined
	}
}

// Validate rejects intake the pipeline cannot reason about.
func (p PatientData) Validate() error {
	var problems []string
	if p.BPSystolic <= 0 || p.BPSystolic > 300 {
		problems = append(problems, fmt.Sprintf("bp_systolic %d out of range", p.BPSystolic))
	}
	if p.BPDiastolic <= 0 || p.BPDiastolic > 200 {
		problems = append(problems, fmt.Sprintf("bp_diastolic %d out of range", p.BPDiastolic))
	}
	if p.Age < 0 || p.Age > 70 {
		problems = append(problems, fmt.Sprintf("age %d out of range", p.Age))
	}
	if p.GestationalAgeWeeks < 0 || p.GestationalAgeWeeks > 45 {
		problems = append(problems, fmt.Sprintf("gestational_age_weeks %d out of range", p.GestationalAgeWeeks))
	}
	if p.HeartRate < 0 || p.HeartRate > 250 {
		problems = append(problems, fmt.Sprintf("heart_rate %d out of range", p.HeartRate))
	}
	switch strings.ToLower(strings.TrimSpace(p.Proteinuria)) {
	case "", ProteinuriaNone, ProteinuriaTrace, Proteinuria1, Proteinuria2, Proteinuria3, "true", "false", "negative":
	default:
		problems = append(problems, fmt.Sprintf("unknown proteinuria grade %q", p.Proteinuria))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", matrixerrors.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// VisionOutput is written by the vision step.
type VisionOutput struct {
	Status   string `json:"status"`
	Findings string `json:"findings"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RiskOutput is written by the risk step.
type RiskOutput struct {
	RiskLevel        RiskLevel `json:"risk_level"`
	RiskScore        int       `json:"risk_score"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning"`
	ImmediateActions []string  `json:"immediate_actions"`
	Source           string    `json:"source"`
}

// GuidelineOutput is written by the guideline step; critique may replace the
// plan and annotate the medication guidance.
type GuidelineOutput struct {
	StabilizationPlan      string   `json:"stabilization_plan"`
	MonitoringInstructions string   `json:"monitoring_instructions"`
	MedicationGuidance     string   `json:"medication_guidance"`
	GuidelineRefs          []string `json:"guideline_refs"`
	Source                 string   `json:"source"`
}

// CritiqueOutput is written by the critique step.
type CritiqueOutput struct {
	Safe               bool   `json:"safe"`
	SafetyScore        int    `json:"safety_score"`
	CritiqueNotes      string `json:"critique_notes"`
	RevisedPlan        string `json:"revised_plan,omitempty"`
	HeuristicViolation string `json:"heuristic_violation,omitempty"`
	// Bypassed marks a fail-open verdict taken without a model review.
	Bypassed bool `json:"bypassed,omitempty"`
}

// ExecutiveOutput is the senior review written by the escalation step.
type ExecutiveOutput struct {
	ExecutiveSummary              string  `json:"executive_summary"`
	CarePlan                      string  `json:"care_plan"`
	ReferralUrgency               string  `json:"referral_urgency"`
	ReferralPriority              string  `json:"referral_priority"`
	Justification                 string  `json:"justification"`
	TimeToTransferHours           float64 `json:"time_to_transfer_hours"`
	ReceivingFacilityRequirements string  `json:"receiving_facility_requirements,omitempty"`
	InTransitCare                 string  `json:"in_transit_care,omitempty"`
	Mode                          string  `json:"mode"`
	Error                         string  `json:"error,omitempty"`
}

// CaseState is the record threaded through the pipeline for one case.
type CaseState struct {
	CaseID              string           `json:"case_id"`
	Patient             PatientData      `json:"patient_data"`
	Vision              *VisionOutput    `json:"vision_output,omitempty"`
	Risk                *RiskOutput      `json:"risk_output,omitempty"`
	Guideline           *GuidelineOutput `json:"guideline_output,omitempty"`
	Critique            *CritiqueOutput  `json:"critique_output,omitempty"`
	EscalationTriggered bool             `json:"escalation_triggered"`
	EscalationReason    string           `json:"escalation_reason"`
	Executive           *ExecutiveOutput `json:"executive_output,omitempty"`
	CloudConnected      bool             `json:"cloud_connected"`
	Mode                string           `json:"mode"`
	Error               string           `json:"error,omitempty"`
	Topology            topology.Policy  `json:"topology"`
	StartedAt           time.Time        `json:"started_at"`
	CompletedAt         time.Time        `json:"completed_at,omitempty"`
}

// NewCaseState returns the initial state for a case.
func NewCaseState(caseID string, patient PatientData, policy topology.Policy, now time.Time) *CaseState {
	return &CaseState{
		CaseID:    caseID,
		Patient:   patient,
		Mode:      ModeOffline,
		Topology:  policy,
		StartedAt: now,
	}
}

// RiskLevel returns the assessed level, or low before the risk step ran.
func (s *CaseState) RiskLevel() RiskLevel {
	if s.Risk == nil {
		return RiskLow
	}
	return s.Risk.RiskLevel
}

// StabilizationPlan returns the current plan or "".
func (s *CaseState) StabilizationPlan() string {
	if s.Guideline == nil {
		return ""
	}
	return s.Guideline.StabilizationPlan
}
