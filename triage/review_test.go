package triage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/metrics"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

type countingRecorder struct {
	metrics.NoopRecorder

	mu     sync.Mutex
	blocks map[string]int
	cases  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{blocks: map[string]int{}}
}

func (r *countingRecorder) IncSafetyBlock(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[stage]++
}

func (r *countingRecorder) ObserveCase(_, _ string, _ bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases++
}

func critiqueState(plan, medication string) *CaseState {
	s := newState(PatientData{BPSystolic: 150, BPDiastolic: 100}, topology.Hybrid)
	s.Risk = &RiskOutput{RiskLevel: RiskHigh, RiskScore: 65, Confidence: 0.8}
	s.Guideline = &GuidelineOutput{StabilizationPlan: plan, MedicationGuidance: medication, Source: SourceModel}
	return s
}

func TestCritiqueBlocksUnsafePlanWithoutModelCall(t *testing.T) {
	tests := []struct {
		name       string
		plan       string
		medication string
		violation  string
	}{
		{name: "magnesium 5g", plan: "Give MgSO4 5g IV stat.", violation: "Magnesium sulfate dose of 5g"},
		{name: "magnesium sulphate 6g", plan: "Load magnesium sulphate 6g over 20 minutes.", violation: "Magnesium sulfate dose of 6g"},
		{name: "labetalol 450mg", plan: "Stabilise.", medication: "Labetalol 450mg IV.", violation: "Labetalol dose of 450mg"},
		{name: "ace inhibitor", plan: "Start lisinopril 10mg daily.", violation: "Contraindicated medication in pregnancy: lisinopril"},
		{name: "magnesium in milligrams", plan: "Give MgSO4 5000mg IV.", violation: "Magnesium sulfate dose of 5g"},
		{name: "magnesium thousands separator", plan: "Give MgSO4 5,000 mg IV.", violation: "Magnesium sulfate dose of 5g"},
		{name: "labetalol in grams", plan: "Stabilise.", medication: "labetalol 0.4g IV.", violation: "Labetalol dose of 400mg"},
		{name: "labetalol thousands separator", plan: "Stabilise.", medication: "Labetalol 1,200 mg IV.", violation: "Labetalol dose of 1200mg"},
		{name: "labetalol second dose", plan: "Stabilise.", medication: "Labetalol (max 300mg): give 400 mg", violation: "Labetalol dose of 400mg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := newStubModel().on(StepCritique, map[string]any{"safe": true})
			rec := newCountingRecorder()
			step := NewCritiqueStep(model)
			step.Recorder = rec

			s := step.Run(context.Background(), critiqueState(tt.plan, tt.medication))

			if model.count(StepCritique) != 0 {
				t.Error("blocked plan must not reach the model")
			}
			c := s.Critique
			if c.Safe || c.SafetyScore != 0 || !strings.HasPrefix(c.HeuristicViolation, tt.violation) {
				t.Errorf("critique = %+v", c)
			}
			if want := BlockedPlan(c.HeuristicViolation); s.Guideline.StabilizationPlan != want {
				t.Errorf("plan = %q, want %q", s.Guideline.StabilizationPlan, want)
			}
			if rec.blocks["pre-review"] != 1 {
				t.Errorf("blocks = %v", rec.blocks)
			}
		})
	}
}

func TestCritiqueModelReview(t *testing.T) {
	const plan = "Give MgSO4 4g IV loading dose."
	const medication = "Labetalol 20mg IV."

	t.Run("safe plan is kept", func(t *testing.T) {
		model := newStubModel().on(StepCritique, map[string]any{"safe": true, "critique_notes": "Appropriate."})
		s := NewCritiqueStep(model).Run(context.Background(), critiqueState(plan, medication))
		if !s.Critique.Safe || s.Critique.SafetyScore != 100 || s.Guideline.StabilizationPlan != plan {
			t.Errorf("critique = %+v, plan = %q", s.Critique, s.Guideline.StabilizationPlan)
		}
		req, _ := model.last(StepCritique)
		if !strings.Contains(req.Prompt, "Proposed plan: "+plan) || req.AllowRemote {
			t.Errorf("request = %+v", req)
		}
	})

	t.Run("clean revision replaces the plan", func(t *testing.T) {
		model := newStubModel().on(StepCritique, map[string]any{
			"safe":         "false",
			"safety_score": 40,
			"revised_plan": "Give MgSO4 4g IV and transfer.",
		})
		s := NewCritiqueStep(model).Run(context.Background(), critiqueState(plan, medication))
		if s.Critique.Safe || s.Critique.SafetyScore != 40 {
			t.Errorf("critique = %+v", s.Critique)
		}
		if s.Guideline.StabilizationPlan != "Give MgSO4 4g IV and transfer." {
			t.Errorf("plan = %q", s.Guideline.StabilizationPlan)
		}
		if !strings.HasSuffix(s.Guideline.MedicationGuidance, "(Note: Revised for safety by Critique Agent)") {
			t.Errorf("medication = %q", s.Guideline.MedicationGuidance)
		}
	})

	t.Run("unsafe revision is blocked", func(t *testing.T) {
		rec := newCountingRecorder()
		model := newStubModel().on(StepCritique, map[string]any{
			"safe":           false,
			"critique_notes": "Dose too low.",
			"revised_plan":   "Give MgSO4 8g IV.",
		})
		step := NewCritiqueStep(model)
		step.Recorder = rec
		s := step.Run(context.Background(), critiqueState(plan, medication))
		if !strings.HasPrefix(s.Guideline.StabilizationPlan, "BLOCKED BY SAFETY CHECK: Magnesium sulfate dose of 8g") {
			t.Errorf("plan = %q", s.Guideline.StabilizationPlan)
		}
		if s.Critique.Safe || s.Critique.RevisedPlan != "Give MgSO4 8g IV." || s.Critique.CritiqueNotes != "Dose too low." {
			t.Errorf("critique = %+v", s.Critique)
		}
		if rec.blocks["revision"] != 1 {
			t.Errorf("blocks = %v", rec.blocks)
		}
	})

	t.Run("unsafe without revision keeps the plan", func(t *testing.T) {
		model := newStubModel().on(StepCritique, map[string]any{"safe": false, "revised_plan": "null"})
		s := NewCritiqueStep(model).Run(context.Background(), critiqueState(plan, medication))
		if s.Critique.Safe || s.Critique.RevisedPlan != "" || s.Guideline.StabilizationPlan != plan {
			t.Errorf("critique = %+v, plan = %q", s.Critique, s.Guideline.StabilizationPlan)
		}
	})

	t.Run("model failure bypasses review", func(t *testing.T) {
		s := NewCritiqueStep(newStubModel()).Run(context.Background(), critiqueState(plan, medication))
		c := s.Critique
		if !c.Safe || !c.Bypassed || c.CritiqueNotes != "Critique Agent bypass (LLM error)" {
			t.Errorf("critique = %+v", c)
		}
		if s.Guideline.StabilizationPlan != plan || s.Error == "" {
			t.Errorf("plan = %q, error = %q", s.Guideline.StabilizationPlan, s.Error)
		}
	})

	t.Run("missing guideline uses the rule table", func(t *testing.T) {
		s := critiqueState("", "")
		s.Guideline = nil
		s = NewCritiqueStep(newStubModel()).Run(context.Background(), s)
		if s.Guideline == nil || s.Guideline.StabilizationPlan != RuleBasedGuideline(RiskHigh, nil).StabilizationPlan {
			t.Errorf("guideline = %+v", s.Guideline)
		}
	})
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		risk *RiskOutput
		p    PatientData
		want string
	}{
		{
			name: "severe",
			risk: &RiskOutput{RiskLevel: RiskSevere, RiskScore: 10, Confidence: 0.1},
			want: "Severe maternal risk classification.",
		},
		{
			name: "high with confidence",
			risk: &RiskOutput{RiskLevel: RiskHigh, RiskScore: 65, Confidence: 0.6},
			want: "High risk (score 65) with confidence 0.60.",
		},
		{
			name: "high with low confidence and low score",
			risk: &RiskOutput{RiskLevel: RiskHigh, RiskScore: 55, Confidence: 0.59},
			p:    PatientData{BPSystolic: 150},
		},
		{
			name: "critical systolic",
			risk: &RiskOutput{RiskLevel: RiskModerate, RiskScore: 30, Confidence: 0.9},
			p:    PatientData{BPSystolic: 160},
			want: "Systolic BP critically elevated at 160 mmHg.",
		},
		{
			name: "combined neurological symptoms",
			risk: &RiskOutput{RiskLevel: RiskLow, RiskScore: 5, Confidence: 0.9},
			p:    PatientData{BPSystolic: 118, Headache: true, VisualDisturbance: true},
			want: "Combined neurological symptoms (headache + visual disturbance).",
		},
		{
			name: "score threshold",
			risk: &RiskOutput{RiskLevel: RiskModerate, RiskScore: 70, Confidence: 0.5},
			want: "Risk score 70 exceeds escalation threshold.",
		},
		{
			name: "moderate below every threshold",
			risk: &RiskOutput{RiskLevel: RiskModerate, RiskScore: 30, Confidence: 0.9},
			p:    PatientData{BPSystolic: 120, Headache: true},
		},
		{
			name: "missing risk",
			p:    PatientData{BPSystolic: 159},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.risk, tt.p); got != tt.want {
				t.Errorf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteSevereAlwaysEscalates(t *testing.T) {
	for score := 0; score <= 100; score += 5 {
		for _, conf := range []float64{0, 0.3, 0.59, 1} {
			s := newState(PatientData{BPSystolic: 100}, topology.Hybrid)
			s.Risk = &RiskOutput{RiskLevel: RiskSevere, RiskScore: score, Confidence: conf}
			s = RouterStep{}.Run(context.Background(), s)
			if !s.EscalationTriggered || s.EscalationReason == "" {
				t.Fatalf("score %d confidence %v did not escalate", score, conf)
			}
		}
	}
}

func escalationState(mode topology.Mode) *CaseState {
	p := PatientData{Name: "Grace", Age: 31, GestationalAgeWeeks: 35, BPSystolic: 168, BPDiastolic: 112, Proteinuria: "3+", Headache: true}
	s := newState(p, mode)
	r := RuleBasedRisk(p)
	s.Risk = &r
	g := RuleBasedGuideline(RiskSevere, nil)
	s.Guideline = &g
	s.EscalationTriggered = true
	s.EscalationReason = Route(s.Risk, p)
	return s
}

func TestEscalationStep(t *testing.T) {
	plan := RuleBasedGuideline(RiskSevere, nil).StabilizationPlan

	t.Run("offline never calls out", func(t *testing.T) {
		model := newStubModel().on(StepEscalation, map[string]any{"executive_summary": "x"})
		s := NewEscalationStep(model).Run(context.Background(), escalationState(topology.Offline))
		if model.total() != 0 {
			t.Fatalf("offline escalation made %d calls", model.total())
		}
		e := s.Executive
		if e.ExecutiveSummary != offlineForcedSummary || e.Justification != "Topology locked to OFFLINE — cloud routing blocked." {
			t.Errorf("executive = %+v", e)
		}
		if e.CarePlan != plan || e.ReferralUrgency != "urgent" || e.ReferralPriority != "urgent" || e.TimeToTransferHours != 1.0 {
			t.Errorf("executive = %+v", e)
		}
		if s.Mode != ModeOfflineForced || e.Mode != ModeOfflineForced || s.CloudConnected {
			t.Errorf("mode = %q, cloud = %v", s.Mode, s.CloudConnected)
		}
	})

	t.Run("executive agent disabled", func(t *testing.T) {
		model := newStubModel()
		s := escalationState(topology.Hybrid)
		s.Topology.ExecutiveAgentEnabled = false
		s = NewEscalationStep(model).Run(context.Background(), s)
		if model.total() != 0 || s.Executive.Justification != "Executive agent disabled by topology policy." {
			t.Errorf("calls = %d, executive = %+v", model.total(), s.Executive)
		}
		if s.Mode != ModeOfflineForced {
			t.Errorf("mode = %q", s.Mode)
		}
	})

	t.Run("success", func(t *testing.T) {
		model := newStubModel().on(StepEscalation, map[string]any{
			"executive_summary":      "Severe pre-eclampsia at 35 weeks.",
			"referral_priority":      "immediate",
			"time_to_transfer_hours": 0.5,
		})
		s := NewEscalationStep(model).Run(context.Background(), escalationState(topology.Hybrid))
		e := s.Executive
		if e.ExecutiveSummary != "Severe pre-eclampsia at 35 weeks." || e.ReferralPriority != "immediate" || e.TimeToTransferHours != 0.5 {
			t.Errorf("executive = %+v", e)
		}
		if e.CarePlan != plan || e.ReferralUrgency != "urgent" || e.Justification != s.EscalationReason {
			t.Errorf("defaults not applied: %+v", e)
		}
		if !s.CloudConnected || s.Mode != ModeOnline || e.Mode != ModeOnline {
			t.Errorf("mode = %q, cloud = %v", s.Mode, s.CloudConnected)
		}
		req, _ := model.last(StepEscalation)
		if !req.AllowRemote {
			t.Error("escalation should allow remote backends in HYBRID")
		}
		for _, want := range []string{
			"Name: Grace, Age: 31, GA: 35 weeks, BP: 168/112 mmHg, Proteinuria: 3+",
			"ESCALATION TRIGGER: Severe maternal risk classification.",
		} {
			if !strings.Contains(req.Prompt, want) {
				t.Errorf("prompt missing %q:\n%s", want, req.Prompt)
			}
		}
	})

	t.Run("failure keeps the local plan", func(t *testing.T) {
		s := NewEscalationStep(newStubModel()).Run(context.Background(), escalationState(topology.Hybrid))
		e := s.Executive
		if e.ExecutiveSummary != cloudFailureSummary || !strings.HasPrefix(e.Justification, "Cloud unavailable: ") {
			t.Errorf("executive = %+v", e)
		}
		if e.CarePlan != plan || e.Error == "" {
			t.Errorf("executive = %+v", e)
		}
		if s.CloudConnected || s.Mode != ModeOffline || !strings.HasPrefix(s.Error, "Cloud escalation failed: ") {
			t.Errorf("mode = %q, cloud = %v, error = %q", s.Mode, s.CloudConnected, s.Error)
		}
	})

	t.Run("failure without fallback omits the care plan", func(t *testing.T) {
		s := escalationState(topology.Cloud)
		s.Topology.FallbackEnabled = false
		s = NewEscalationStep(newStubModel()).Run(context.Background(), s)
		if s.Executive.CarePlan != "" {
			t.Errorf("care plan = %q", s.Executive.CarePlan)
		}
	})

	t.Run("missing summary counts as failure", func(t *testing.T) {
		model := newStubModel().on(StepEscalation, map[string]any{"care_plan": "Transfer."})
		s := NewEscalationStep(model).Run(context.Background(), escalationState(topology.Cloud))
		if s.Executive.ExecutiveSummary != cloudFailureSummary || s.CloudConnected {
			t.Errorf("executive = %+v", s.Executive)
		}
	})
}

func TestShouldEscalate(t *testing.T) {
	s := newState(PatientData{BPSystolic: 110}, topology.Hybrid)
	if ShouldEscalate(s) {
		t.Error("HYBRID without a trigger should not escalate")
	}
	s.Topology.Mode = topology.Cloud
	if !ShouldEscalate(s) {
		t.Error("CLOUD forces escalation")
	}
	s.Topology.Mode = topology.Offline
	s.EscalationTriggered = true
	if !ShouldEscalate(s) {
		t.Error("router trigger escalates in OFFLINE too")
	}
}
