package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/guidelines"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/safety"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

var jpeg = &message.Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}

func TestVisionStep(t *testing.T) {
	tests := []struct {
		name       string
		image      *message.Image
		mode       topology.Mode
		visionOff  bool
		model      *stubModel
		wantStatus string
		wantFind   string
		wantCalls  int
	}{
		{
			name: "no image", mode: topology.Hybrid, model: newStubModel(),
			wantStatus: VisionSkipped, wantFind: "No clinical imagery provided.",
		},
		{
			name: "offline topology", image: jpeg, mode: topology.Offline, model: newStubModel(),
			wantStatus: VisionSkipped, wantFind: "Vision analysis disabled by topology policy.",
		},
		{
			name: "vision toggle off", image: jpeg, mode: topology.Hybrid, visionOff: true, model: newStubModel(),
			wantStatus: VisionSkipped, wantFind: "Vision analysis disabled by topology policy.",
		},
		{
			name: "success", image: jpeg, mode: topology.Hybrid,
			model:      newStubModel().on(StepVision, map[string]any{"analysis": "Pitting oedema of both ankles."}),
			wantStatus: VisionSuccess, wantFind: "Pitting oedema of both ankles.", wantCalls: 1,
		},
		{
			name: "success without findings", image: jpeg, mode: topology.Cloud,
			model:      newStubModel().on(StepVision, map[string]any{}),
			wantStatus: VisionSuccess, wantFind: "No findings returned.", wantCalls: 1,
		},
		{
			name: "service failure", image: jpeg, mode: topology.Hybrid, model: newStubModel(),
			wantStatus: VisionFailed, wantFind: "Vision service error: ", wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(PatientData{BPSystolic: 120, BPDiastolic: 80, Image: tt.image}, tt.mode)
			s.Topology.VisionEnabled = !tt.visionOff
			s = NewVisionStep(tt.model).Run(context.Background(), s)

			if s.Vision.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", s.Vision.Status, tt.wantStatus)
			}
			if !strings.HasPrefix(s.Vision.Findings, tt.wantFind) {
				t.Errorf("findings = %q, want prefix %q", s.Vision.Findings, tt.wantFind)
			}
			if got := tt.model.count(StepVision); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCalls > 0 {
				req, _ := tt.model.last(StepVision)
				if req.Image == nil || req.Prompt != VisionPrompt || !req.AllowRemote {
					t.Errorf("unexpected vision request: %+v", req)
				}
			}
			if tt.wantStatus == VisionFailed && (s.Vision.Error == "" || s.Error == "") {
				t.Error("failure should record the error")
			}
		})
	}
}

func TestRuleBasedRisk(t *testing.T) {
	tests := []struct {
		name      string
		p         PatientData
		wantLevel RiskLevel
		wantScore int
		wantConf  float64
	}{
		{name: "systolic 160", p: PatientData{BPSystolic: 160}, wantLevel: RiskSevere, wantScore: 90, wantConf: 0.95},
		{name: "140 with headache", p: PatientData{BPSystolic: 142, Headache: true}, wantLevel: RiskSevere, wantScore: 90, wantConf: 0.95},
		{name: "140 with visual", p: PatientData{BPSystolic: 140, VisualDisturbance: true}, wantLevel: RiskSevere, wantScore: 90, wantConf: 0.95},
		{name: "140 with proteinuria", p: PatientData{BPSystolic: 145, Proteinuria: "2+"}, wantLevel: RiskHigh, wantScore: 68, wantConf: 0.85},
		{name: "139 with proteinuria", p: PatientData{BPSystolic: 139, Proteinuria: "2+"}, wantLevel: RiskModerate, wantScore: 40, wantConf: 0.75},
		{name: "epigastric pain", p: PatientData{BPSystolic: 110, EpigastricPain: true}, wantLevel: RiskModerate, wantScore: 40, wantConf: 0.75},
		{name: "headache alone at 120", p: PatientData{BPSystolic: 120, Headache: true}, wantLevel: RiskLow, wantScore: 12, wantConf: 0.90},
		{name: "normal", p: PatientData{BPSystolic: 115}, wantLevel: RiskLow, wantScore: 12, wantConf: 0.90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleBasedRisk(tt.p)
			if got.RiskLevel != tt.wantLevel || got.RiskScore != tt.wantScore || got.Confidence != tt.wantConf {
				t.Errorf("RuleBasedRisk() = %s/%d/%v", got.RiskLevel, got.RiskScore, got.Confidence)
			}
			if got.Source != SourceRuleBased || len(got.ImmediateActions) == 0 || got.Reasoning == "" {
				t.Errorf("incomplete fallback: %+v", got)
			}
		})
	}
}

func TestRuleBasedRiskSevereForCriticalSystolic(t *testing.T) {
	for sys := 160; sys <= 260; sys++ {
		for _, p := range []PatientData{
			{BPSystolic: sys},
			{BPSystolic: sys, Proteinuria: "3+", EpigastricPain: true},
		} {
			got := RuleBasedRisk(p)
			if got.RiskLevel != RiskSevere || got.RiskScore != 90 {
				t.Fatalf("systolic %d: %s/%d", sys, got.RiskLevel, got.RiskScore)
			}
		}
	}
}

func TestRiskStep(t *testing.T) {
	patient := PatientData{Name: "Amina", Age: 29, GestationalAgeWeeks: 33, BPSystolic: 150, BPDiastolic: 100, Proteinuria: "1+"}

	t.Run("model answer is used and clamped", func(t *testing.T) {
		model := newStubModel().on(StepRisk, map[string]any{
			"risk_level": "High",
			"risk_score": "120",
			"confidence": 1.7,
		})
		s := NewRiskStep(model).Run(context.Background(), newState(patient, topology.Hybrid))
		r := s.Risk
		if r.RiskLevel != RiskHigh || r.RiskScore != 100 || r.Confidence != 1 || r.Source != SourceModel {
			t.Errorf("risk = %+v", r)
		}
		if r.Reasoning != "" || r.ImmediateActions == nil || len(r.ImmediateActions) != 0 {
			t.Errorf("defaults not applied: %+v", r)
		}
		req, _ := model.last(StepRisk)
		if req.AllowRemote {
			t.Error("risk must stay local in HYBRID")
		}
		if !strings.Contains(req.Prompt, "150/100 mmHg") || !strings.Contains(req.Prompt, "Amina") {
			t.Errorf("prompt missing vitals:\n%s", req.Prompt)
		}
	})

	t.Run("missing score falls back", func(t *testing.T) {
		model := newStubModel().on(StepRisk, map[string]any{"risk_level": "low"})
		s := NewRiskStep(model).Run(context.Background(), newState(patient, topology.Hybrid))
		if s.Risk.RiskLevel != RiskHigh || s.Risk.RiskScore != 68 || s.Risk.Source != SourceRuleBased {
			t.Errorf("risk = %+v", s.Risk)
		}
		if !strings.Contains(s.Risk.Reasoning, " (LLM unavailable: ") {
			t.Errorf("reasoning = %q", s.Risk.Reasoning)
		}
	})

	t.Run("unknown level falls back", func(t *testing.T) {
		model := newStubModel().on(StepRisk, map[string]any{"risk_level": "critical", "risk_score": 99})
		s := NewRiskStep(model).Run(context.Background(), newState(patient, topology.Hybrid))
		if s.Risk.Source != SourceRuleBased {
			t.Errorf("risk = %+v", s.Risk)
		}
	})

	t.Run("model unavailable", func(t *testing.T) {
		s := NewRiskStep(newStubModel()).Run(context.Background(), newState(patient, topology.Hybrid))
		if s.Risk.RiskLevel != RiskHigh || s.Error == "" {
			t.Errorf("risk = %+v, error = %q", s.Risk, s.Error)
		}
	})

	t.Run("vision findings reach the prompt", func(t *testing.T) {
		model := newStubModel()
		s := newState(patient, topology.Hybrid)
		s.Vision = &VisionOutput{Status: VisionSuccess, Findings: "Facial oedema."}
		NewRiskStep(model).Run(context.Background(), s)
		req, _ := model.last(StepRisk)
		if !strings.Contains(req.Prompt, "IMAGE FINDINGS: Facial oedema.") {
			t.Errorf("prompt:\n%s", req.Prompt)
		}
	})
}

func TestGuidelineQuery(t *testing.T) {
	tests := []struct {
		level RiskLevel
		p     PatientData
		want  string
	}{
		{
			level: RiskSevere,
			p:     PatientData{BPSystolic: 165, BPDiastolic: 110, GestationalAgeWeeks: 34, Proteinuria: "2+"},
			want:  "maternal severe risk hypertension management BP 165/110 gestational weeks 34 proteinuria preeclampsia",
		},
		{
			level: RiskModerate,
			p:     PatientData{BPSystolic: 132, BPDiastolic: 84, GestationalAgeWeeks: 28},
			want:  "maternal moderate risk hypertension management BP 132/84 gestational weeks 28  hypertension monitoring",
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := GuidelineQuery(tt.level, tt.p); got != tt.want {
				t.Errorf("GuidelineQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuidelineStep(t *testing.T) {
	patient := PatientData{BPSystolic: 165, BPDiastolic: 110, GestationalAgeWeeks: 34, Proteinuria: "2+"}
	severe := func() *CaseState {
		s := newState(patient, topology.Hybrid)
		r := RuleBasedRisk(patient)
		s.Risk = &r
		return s
	}
	hits := []guidelines.Hit{
		{Source: "WHO 2011 — Magnesium Sulphate", Text: "Loading dose 4g IV.", Similarity: 0.81},
		{Source: "NICE NG133 2019 — Hypertension in Pregnancy", Text: "Labetalol first line.", Similarity: 0.66},
	}

	t.Run("retrieved excerpts ground the prompt", func(t *testing.T) {
		model := newStubModel().on(StepGuideline, map[string]any{"stabilization_plan": "Give MgSO4 4g IV."})
		ret := &stubRetriever{hits: hits}
		s := NewGuidelineStep(model, ret).Run(context.Background(), severe())

		g := s.Guideline
		if g.StabilizationPlan != "Give MgSO4 4g IV." || g.Source != SourceModel {
			t.Errorf("guideline = %+v", g)
		}
		if len(g.GuidelineRefs) != 2 || g.GuidelineRefs[0] != hits[0].Source {
			t.Errorf("refs = %v", g.GuidelineRefs)
		}
		if g.MonitoringInstructions == "" || g.MedicationGuidance == "" {
			t.Error("missing sections should be filled from the rule table")
		}
		req, _ := model.last(StepGuideline)
		if !strings.Contains(req.Prompt, "[1] (WHO 2011 — Magnesium Sulphate, similarity 0.81):\nLoading dose 4g IV.") {
			t.Errorf("prompt:\n%s", req.Prompt)
		}
		if len(ret.queries) != 1 || !strings.HasSuffix(ret.queries[0], "preeclampsia") {
			t.Errorf("queries = %v", ret.queries)
		}
	})

	t.Run("retrieval failure uses built-in excerpts", func(t *testing.T) {
		model := newStubModel().on(StepGuideline, map[string]any{"stabilization_plan": "plan"})
		s := NewGuidelineStep(model, &stubRetriever{err: errors.New("pgvector down")}).Run(context.Background(), severe())
		if len(s.Guideline.GuidelineRefs) != 1 || s.Guideline.GuidelineRefs[0] != guidelines.DefaultReference {
			t.Errorf("refs = %v", s.Guideline.GuidelineRefs)
		}
		req, _ := model.last(StepGuideline)
		if !strings.Contains(req.Prompt, guidelines.FallbackContext("severe")) {
			t.Error("fallback context missing from prompt")
		}
	})

	t.Run("empty retrieval uses built-in excerpts", func(t *testing.T) {
		model := newStubModel()
		s := NewGuidelineStep(model, &stubRetriever{}).Run(context.Background(), severe())
		if s.Guideline.GuidelineRefs[0] != guidelines.DefaultReference {
			t.Errorf("refs = %v", s.Guideline.GuidelineRefs)
		}
	})

	t.Run("model failure uses the rule table", func(t *testing.T) {
		s := NewGuidelineStep(newStubModel(), &stubRetriever{hits: hits}).Run(context.Background(), severe())
		want := RuleBasedGuideline(RiskSevere, nil)
		if s.Guideline.StabilizationPlan != want.StabilizationPlan || s.Guideline.Source != SourceRuleBased {
			t.Errorf("guideline = %+v", s.Guideline)
		}
		if s.Guideline.GuidelineRefs[0] != hits[0].Source {
			t.Errorf("refs = %v", s.Guideline.GuidelineRefs)
		}
	})

	t.Run("missing plan uses the rule table", func(t *testing.T) {
		model := newStubModel().on(StepGuideline, map[string]any{"monitoring_instructions": "BP hourly"})
		s := NewGuidelineStep(model, nil).Run(context.Background(), severe())
		if s.Guideline.Source != SourceRuleBased {
			t.Errorf("guideline = %+v", s.Guideline)
		}
	})
}

func TestRuleBasedGuidelineTable(t *testing.T) {
	for _, level := range []RiskLevel{RiskLow, RiskModerate, RiskHigh, RiskSevere} {
		g := RuleBasedGuideline(level, nil)
		if g.StabilizationPlan == "" || g.MonitoringInstructions == "" || g.MedicationGuidance == "" {
			t.Errorf("%s: incomplete plan", level)
		}
		if _, bad := safety.Check(g.StabilizationPlan + "\n" + g.MedicationGuidance); bad {
			t.Errorf("%s: built-in plan trips the safety check", level)
		}
	}
	if RuleBasedGuideline("unknown", nil).StabilizationPlan != RuleBasedGuideline(RiskLow, nil).StabilizationPlan {
		t.Error("unknown level should use the low plan")
	}
}
