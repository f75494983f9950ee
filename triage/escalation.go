package triage

import (
	"context"
	"fmt"
	"log/slog"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/structured"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

const (
	offlineForcedSummary = "System is in Strict Offline mode. Cloud 27B escalation is disabled by administrator. " +
		"Please refer to the edge 4B guideline plan and escalate via standard hospital protocol."
	offlineForcedJustification     = "Topology locked to OFFLINE — cloud routing blocked."
	executiveDisabledJustification = "Executive agent disabled by topology policy."
	cloudFailureSummary            = "Cloud executive service unavailable. " +
		"Please refer to the guideline plan and escalate via standard protocol."
	localExecutiveJustification = "Cloud executive unreachable; review produced by the edge model."
	urgencyUrgent               = "urgent"
	defaultTransferHours        = 1.0
)

// ShouldEscalate reports whether the escalation step runs for s: the router
// escalated, or the captured topology forces escalation.
func ShouldEscalate(s *CaseState) bool {
	return s.EscalationTriggered || s.Topology.ForcesEscalation()
}

// EscalationStep requests a senior review from the executive model. It never
// leaves the device when the captured topology is OFFLINE.
type EscalationStep struct {
	Model   modelclient.Generator
	Prompts *prompt.Manager
	Logger  *slog.Logger
}

// NewEscalationStep returns an EscalationStep.
func NewEscalationStep(model modelclient.Generator) *EscalationStep {
	return &EscalationStep{Model: model, Prompts: DefaultPrompts(), Logger: logging.WithComponent("triage")}
}

func (e *EscalationStep) Name() string { return StepEscalation }

type executivePromptData struct {
	Patient          string
	VisionFindings   string
	RiskLevel        RiskLevel
	RiskScore        int
	Confidence       float64
	Reasoning        string
	ImmediateActions []string
	Plan             string
	Monitoring       string
	Medication       string
	Refs             []string
	Reason           string
}

func (e *EscalationStep) Run(ctx context.Context, s *CaseState) *CaseState {
	log := caseLogger(e.Logger, StepEscalation, s)

	if s.Topology.GetMode() == topology.Offline {
		log.Info("escalation kept local, topology is offline")
		e.forceOffline(s, offlineForcedJustification)
		return s
	}
	if !s.Topology.ExecutiveAgentEnabled {
		log.Info("escalation kept local, executive agent disabled")
		e.forceOffline(s, executiveDisabledJustification)
		return s
	}

	out, remote, err := e.review(ctx, s)
	if err != nil {
		log.Warn("executive escalation failed", "error", err)
		s.CloudConnected = false
		s.Mode = ModeOffline
		s.Executive = e.failure(s, err)
		s.Error = "Cloud escalation failed: " + err.Error()
		return s
	}
	if !remote {
		log.Warn("executive review answered by a local backend")
		out.Mode = ModeOffline
		if out.Justification == "" {
			out.Justification = localExecutiveJustification
		}
		s.CloudConnected = false
		s.Mode = ModeOffline
		s.Executive = out
		return s
	}
	s.CloudConnected = true
	s.Mode = ModeOnline
	s.Executive = out
	log.Info("executive review received", "referral_priority", out.ReferralPriority)
	return s
}

func (e *EscalationStep) forceOffline(s *CaseState, justification string) {
	plan := s.StabilizationPlan()
	if plan == "" {
		plan = "Unknown"
	}
	s.CloudConnected = false
	s.Mode = ModeOfflineForced
	s.Executive = &ExecutiveOutput{
		ExecutiveSummary:    offlineForcedSummary,
		CarePlan:            plan,
		ReferralUrgency:     urgencyUrgent,
		ReferralPriority:    urgencyUrgent,
		Justification:       justification,
		TimeToTransferHours: defaultTransferHours,
		Mode:                ModeOfflineForced,
	}
}

func (e *EscalationStep) failure(s *CaseState, err error) *ExecutiveOutput {
	out := &ExecutiveOutput{
		ExecutiveSummary:    cloudFailureSummary,
		ReferralUrgency:     urgencyUrgent,
		ReferralPriority:    urgencyUrgent,
		Justification:       "Cloud unavailable: " + err.Error(),
		TimeToTransferHours: defaultTransferHours,
		Mode:                ModeOffline,
		Error:               err.Error(),
	}
	if s.Topology.FallbackEnabled {
		out.CarePlan = s.StabilizationPlan()
	}
	return out
}

// review asks the executive model for a senior review and reports whether
// the answer came from a remote backend.
func (e *EscalationStep) review(ctx context.Context, s *CaseState) (*ExecutiveOutput, bool, error) {
	if e.Model == nil {
		return nil, false, fmt.Errorf("%w: no executive backend configured", matrixerrors.ErrModelUnavailable)
	}
	system, user, err := renderPair(e.Prompts, PromptExecutiveSystem, PromptExecutive, e.promptData(s))
	if err != nil {
		return nil, false, err
	}
	res := e.Model.Generate(ctx, modelclient.Request{
		Step:        StepEscalation,
		CaseID:      s.CaseID,
		System:      system,
		Prompt:      user,
		AllowRemote: s.Topology.IsRemoteAllowed(),
	})
	if !res.OK {
		return nil, false, res.Err
	}
	summary := structured.String(res.Data, "executive_summary", "")
	if summary == "" {
		return nil, false, fmt.Errorf("%w: executive_summary missing", matrixerrors.ErrMalformedOutput)
	}
	return &ExecutiveOutput{
		ExecutiveSummary:              summary,
		CarePlan:                      structured.String(res.Data, "care_plan", s.StabilizationPlan()),
		ReferralUrgency:               structured.String(res.Data, "referral_urgency", urgencyUrgent),
		ReferralPriority:              structured.String(res.Data, "referral_priority", urgencyUrgent),
		Justification:                 structured.String(res.Data, "justification", s.EscalationReason),
		TimeToTransferHours:           structured.Float(res.Data, "time_to_transfer_hours", defaultTransferHours),
		ReceivingFacilityRequirements: structured.String(res.Data, "receiving_facility_requirements", ""),
		InTransitCare:                 structured.String(res.Data, "in_transit_care", ""),
		Mode:                          ModeOnline,
	}, res.Remote, nil
}

func (e *EscalationStep) promptData(s *CaseState) executivePromptData {
	p := s.Patient
	summary := prompt.NewBuilder().
		AddFormat("Name: %s, Age: %d, GA: %d weeks, ", orUnknown(p.Name), p.Age, p.GestationalAgeWeeks).
		AddFormat("BP: %d/%d mmHg, ", p.BPSystolic, p.BPDiastolic).
		AddFormat("Proteinuria: %s, ", orNone(p.Proteinuria)).
		AddFormat("Headache: %t, Visual disturbance: %t, Epigastric pain: %t", p.Headache, p.VisualDisturbance, p.EpigastricPain)
	if p.MedicalHistory != "" {
		summary.AddFormat(", History: %s", p.MedicalHistory)
	}

	data := executivePromptData{
		Patient:          summary.Build(),
		RiskLevel:        s.RiskLevel(),
		ImmediateActions: []string{},
		Plan:             "Not provided",
		Monitoring:       "Not provided",
		Medication:       "Not provided",
		Refs:             []string{},
		Reason:           s.EscalationReason,
	}
	if data.Reason == "" {
		data.Reason = "Topology forces escalation of every case."
	}
	if s.Vision != nil && s.Vision.Status == VisionSuccess {
		data.VisionFindings = s.Vision.Findings
	}
	if r := s.Risk; r != nil {
		data.RiskScore = r.RiskScore
		data.Confidence = r.Confidence
		data.Reasoning = r.Reasoning
		data.ImmediateActions = r.ImmediateActions
	}
	if g := s.Guideline; g != nil {
		data.Plan = g.StabilizationPlan
		data.Monitoring = g.MonitoringInstructions
		data.Medication = g.MedicationGuidance
		data.Refs = g.GuidelineRefs
	}
	return data
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return ProteinuriaNone
	}
	return s
}
