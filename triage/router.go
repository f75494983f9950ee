package triage

import (
	"context"
	"fmt"
)

// HighRiskConfidenceThreshold and RiskScoreThreshold are independent
// escalation triggers.
const (
	HighRiskConfidenceThreshold = 0.60
	RiskScoreThreshold          = 70
	CriticalSystolic            = 160
)

// RouterStep applies the escalation rules. It makes no calls.
type RouterStep struct{}

func (RouterStep) Name() string { return StepRouter }

func (RouterStep) Run(_ context.Context, s *CaseState) *CaseState {
	s.EscalationReason = Route(s.Risk, s.Patient)
	s.EscalationTriggered = s.EscalationReason != ""
	return s
}

// Route returns the escalation reason, or "" when no rule fires. Rules are
// checked in priority order and the first match wins.
func Route(risk *RiskOutput, p PatientData) string {
	level, score, confidence := RiskLow, 0, 0.0
	if risk != nil {
		level, score, confidence = risk.RiskLevel, risk.RiskScore, risk.Confidence
	}

	switch {
	case level == RiskSevere:
		return "Severe maternal risk classification."
	case level == RiskHigh && confidence >= HighRiskConfidenceThreshold:
		return fmt.Sprintf("High risk (score %d) with confidence %.2f.", score, confidence)
	case p.BPSystolic >= CriticalSystolic:
		return fmt.Sprintf("Systolic BP critically elevated at %d mmHg.", p.BPSystolic)
	case p.Headache && p.VisualDisturbance:
		return "Combined neurological symptoms (headache + visual disturbance)."
	case score >= RiskScoreThreshold:
		return fmt.Sprintf("Risk score %d exceeds escalation threshold.", score)
	}
	return ""
}
