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
)

// RiskStep classifies maternal risk, falling back to fixed rules when the
// model gives nothing usable.
type RiskStep struct {
	Model   modelclient.Generator
	Prompts *prompt.Manager
	Logger  *slog.Logger
}

// NewRiskStep returns a RiskStep using the default templates.
func NewRiskStep(model modelclient.Generator) *RiskStep {
	return &RiskStep{Model: model, Prompts: DefaultPrompts(), Logger: logging.WithComponent("triage")}
}

func (r *RiskStep) Name() string { return StepRisk }

type riskPromptData struct {
	PatientData
	VisionFindings string
}

func (r *RiskStep) Run(ctx context.Context, s *CaseState) *CaseState {
	log := caseLogger(r.Logger, StepRisk, s)

	out, err := r.assess(ctx, s)
	if err != nil {
		fallback := RuleBasedRisk(s.Patient)
		fallback.Reasoning += fmt.Sprintf(" (LLM unavailable: %v)", err)
		log.Warn("risk model unusable, using rule-based classifier", "error", err, "risk_level", fallback.RiskLevel)
		s.Error = "Risk model unavailable: " + err.Error()
		s.Risk = &fallback
		return s
	}
	log.Info("risk assessed", "risk_level", out.RiskLevel, "risk_score", out.RiskScore)
	s.Risk = out
	return s
}

func (r *RiskStep) assess(ctx context.Context, s *CaseState) (*RiskOutput, error) {
	if r.Model == nil {
		return nil, fmt.Errorf("%w: no risk backend configured", matrixerrors.ErrModelUnavailable)
	}
	data := riskPromptData{PatientData: s.Patient}
	if s.Vision != nil && s.Vision.Status == VisionSuccess {
		data.VisionFindings = s.Vision.Findings
	}
	if data.AdditionalSymptoms == "" {
		data.AdditionalSymptoms = "None"
	}
	if data.MedicalHistory == "" {
		data.MedicalHistory = "None"
	}
	if data.Proteinuria == "" {
		data.Proteinuria = ProteinuriaNone
	}
	system, user, err := renderPair(r.Prompts, PromptRiskSystem, PromptRisk, data)
	if err != nil {
		return nil, err
	}

	res := r.Model.Generate(ctx, modelclient.Request{
		Step:        StepRisk,
		CaseID:      s.CaseID,
		System:      system,
		Prompt:      user,
		AllowRemote: s.Topology.ForcesEscalation(),
	})
	if !res.OK {
		return nil, res.Err
	}

	level, ok := ParseRiskLevel(structured.String(res.Data, "risk_level", ""))
	if !ok || !structured.Has(res.Data, "risk_score") {
		return nil, fmt.Errorf("%w: risk_level or risk_score missing", matrixerrors.ErrMalformedOutput)
	}
	actions := structured.StringSlice(res.Data, "immediate_actions")
	if actions == nil {
		actions = []string{}
	}
	return &RiskOutput{
		RiskLevel:        level,
		RiskScore:        clampInt(structured.Int(res.Data, "risk_score", 0), 0, 100),
		Confidence:       clampFloat(structured.Float(res.Data, "confidence", 0), 0, 1),
		Reasoning:        structured.String(res.Data, "reasoning", ""),
		ImmediateActions: actions,
		Source:           SourceModel,
	}, nil
}

// RuleBasedRisk is the deterministic classifier. First match wins:
// systolic >= 160, or >= 140 with a neurological symptom, is severe; >= 140
// with proteinuria is high; >= 130 or epigastric pain is moderate; otherwise low.
func RuleBasedRisk(p PatientData) RiskOutput {
	sys := p.BPSystolic
	switch {
	case sys >= 160 || (sys >= 140 && p.NeurologicalSymptom()):
		return RiskOutput{
			RiskLevel:  RiskSevere,
			RiskScore:  90,
			Confidence: 0.95,
			Reasoning:  "Severe hypertension with neurological symptoms meets criteria for severe preeclampsia.",
			ImmediateActions: []string{
				"Administer MgSO4 4g IV loading dose over 20 minutes",
				"Give antihypertensive (labetalol 20mg IV or nifedipine 10mg oral)",
				"Arrange immediate transfer to obstetric unit",
				"Continuous fetal monitoring",
			},
			Source: SourceRuleBased,
		}
	case sys >= 140 && p.HasProteinuria():
		return RiskOutput{
			RiskLevel:  RiskHigh,
			RiskScore:  68,
			Confidence: 0.85,
			Reasoning:  "Hypertension with proteinuria consistent with preeclampsia.",
			ImmediateActions: []string{
				"Monitor BP every 15 minutes",
				"Urine output monitoring",
				"Blood tests: FBC, LFT, urate, creatinine",
			},
			Source: SourceRuleBased,
		}
	case sys >= 130 || p.EpigastricPain:
		return RiskOutput{
			RiskLevel:        RiskModerate,
			RiskScore:        40,
			Confidence:       0.75,
			Reasoning:        "Borderline hypertension or concerning symptoms warrant closer monitoring.",
			ImmediateActions: []string{"Repeat BP in 30 minutes", "Urine dipstick"},
			Source:           SourceRuleBased,
		}
	default:
		return RiskOutput{
			RiskLevel:        RiskLow,
			RiskScore:        12,
			Confidence:       0.90,
			Reasoning:        "Vital signs within normal range. No significant risk factors identified.",
			ImmediateActions: []string{"Routine antenatal monitoring at next visit"},
			Source:           SourceRuleBased,
		}
	}
}
