package triage

import (
	"context"
	"fmt"
	"log/slog"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/guidelines"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/structured"
)

// DefaultGuidelineTopK is the number of excerpts retrieved per case.
const DefaultGuidelineTopK = 3

// Retriever fetches guideline excerpts for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]guidelines.Hit, error)
}

// GuidelineStep grounds a management plan on retrieved guideline excerpts.
type GuidelineStep struct {
	Model     modelclient.Generator
	Retriever Retriever
	TopK      int
	Prompts   *prompt.Manager
	Logger    *slog.Logger
}

// NewGuidelineStep returns a GuidelineStep. retriever may be nil, in which
// case the built-in excerpts are used.
func NewGuidelineStep(model modelclient.Generator, retriever Retriever) *GuidelineStep {
	return &GuidelineStep{
		Model:     model,
		Retriever: retriever,
		TopK:      DefaultGuidelineTopK,
		Prompts:   DefaultPrompts(),
		Logger:    logging.WithComponent("triage"),
	}
}

func (g *GuidelineStep) Name() string { return StepGuideline }

type guidelinePromptData struct {
	RiskLevel           RiskLevel
	RiskScore           int
	Reasoning           string
	BPSystolic          int
	BPDiastolic         int
	GestationalAgeWeeks int
	Proteinuria         bool
	Context             string
}

// GuidelineQuery builds the retrieval query for a risk level and patient.
func GuidelineQuery(level RiskLevel, p PatientData) string {
	protein := ""
	if p.HasProteinuria() {
		protein = "proteinuria"
	}
	focus := "hypertension monitoring"
	if level == RiskHigh || level == RiskSevere {
		focus = "preeclampsia"
	}
	return fmt.Sprintf("maternal %s risk hypertension management BP %d/%d gestational weeks %d %s %s",
		level, p.BPSystolic, p.BPDiastolic, p.GestationalAgeWeeks, protein, focus)
}

func (g *GuidelineStep) Run(ctx context.Context, s *CaseState) *CaseState {
	log := caseLogger(g.Logger, StepGuideline, s)
	level := s.RiskLevel()

	contextText, refs := g.retrieve(ctx, log, level, s.Patient)

	out, err := g.plan(ctx, s, level, contextText, refs)
	if err != nil {
		log.Warn("guideline model unusable, using rule table", "error", err, "risk_level", level)
		s.Error = "Guideline model unavailable: " + err.Error()
		fallback := RuleBasedGuideline(level, refs)
		s.Guideline = &fallback
		return s
	}
	s.Guideline = out
	return s
}

func (g *GuidelineStep) retrieve(ctx context.Context, log *slog.Logger, level RiskLevel, p PatientData) (string, []string) {
	if g.Retriever == nil {
		return guidelines.FallbackContext(string(level)), []string{guidelines.DefaultReference}
	}
	topK := g.TopK
	if topK <= 0 {
		topK = DefaultGuidelineTopK
	}
	hits, err := g.Retriever.Retrieve(ctx, GuidelineQuery(level, p), topK)
	if err != nil || len(hits) == 0 {
		log.Warn("guideline retrieval unavailable, using built-in excerpts", "error", err, "hits", len(hits))
		return guidelines.FallbackContext(string(level)), []string{guidelines.DefaultReference}
	}
	return guidelines.FormatContext(hits), guidelines.References(hits)
}

func (g *GuidelineStep) plan(ctx context.Context, s *CaseState, level RiskLevel, contextText string, refs []string) (*GuidelineOutput, error) {
	if g.Model == nil {
		return nil, fmt.Errorf("%w: no guideline backend configured", matrixerrors.ErrModelUnavailable)
	}
	data := guidelinePromptData{
		RiskLevel:           level,
		BPSystolic:          s.Patient.BPSystolic,
		BPDiastolic:         s.Patient.BPDiastolic,
		GestationalAgeWeeks: s.Patient.GestationalAgeWeeks,
		Proteinuria:         s.Patient.HasProteinuria(),
		Context:             contextText,
	}
	if s.Risk != nil {
		data.RiskScore = s.Risk.RiskScore
		data.Reasoning = s.Risk.Reasoning
	}
	system, user, err := renderPair(g.Prompts, PromptGuidelineSystem, PromptGuideline, data)
	if err != nil {
		return nil, err
	}

	res := g.Model.Generate(ctx, modelclient.Request{
		Step:        StepGuideline,
		CaseID:      s.CaseID,
		System:      system,
		Prompt:      user,
		AllowRemote: s.Topology.ForcesEscalation(),
	})
	if !res.OK {
		return nil, res.Err
	}
	plan := structured.String(res.Data, "stabilization_plan", "")
	if plan == "" {
		return nil, fmt.Errorf("%w: stabilization_plan missing", matrixerrors.ErrMalformedOutput)
	}

	// Missing secondary fields come from the rule table so downstream steps
	// never see an empty section.
	base := RuleBasedGuideline(level, refs)
	modelRefs := structured.StringSlice(res.Data, "guideline_refs")
	if len(modelRefs) == 0 {
		modelRefs = append([]string(nil), refs...)
	}
	return &GuidelineOutput{
		StabilizationPlan:      plan,
		MonitoringInstructions: structured.String(res.Data, "monitoring_instructions", base.MonitoringInstructions),
		MedicationGuidance:     structured.String(res.Data, "medication_guidance", base.MedicationGuidance),
		GuidelineRefs:          modelRefs,
		Source:                 SourceModel,
	}, nil
}

type guidelineRule struct {
	plan, monitoring, medication string
}

var guidelineTable = map[RiskLevel]guidelineRule{
	RiskSevere: {
		plan: "1. Call obstetric emergency team immediately.\n" +
			"2. Secure IV access (two large-bore lines).\n" +
			"3. Administer MgSO4 4g IV loading dose over 15–20 min.\n" +
			"4. Start antihypertensive: Labetalol 20mg IV or Nifedipine 10mg oral.\n" +
			"5. Insert urinary catheter and monitor urine output (target >25mL/hr).\n" +
			"6. Arrange emergency obstetric transfer.",
		monitoring: "BP every 5 minutes until stable, then every 15 minutes. " +
			"Continuous CTG. Pulse oximetry. GCS monitoring every 30 minutes. " +
			"Blood tests: FBC, U&E, LFT, uric acid, coagulation.",
		medication: "MgSO4: 4g IV over 20 min (loading), then 1–2g/hr maintenance. " +
			"Labetalol 20mg IV q10min (max 300mg) OR Nifedipine 10mg oral (may repeat). " +
			"Hydralazine 5mg IV if BP remains > 160/110 after labetalol.",
	},
	RiskHigh: {
		plan: "1. Semi-recumbent position, O2 if SpO2 < 95%.\n" +
			"2. IV access, blood samples (FBC, LFT, renal function, uric acid).\n" +
			"3. Urine dipstick and 24-hour urine protein collection.\n" +
			"4. Oral antihypertensive if BP ≥ 150/100.",
		monitoring: "BP every 15 minutes. Urine output hourly. Daily bloods. " +
			"CTG twice daily. Watch for headache, visual changes, epigastric pain.",
		medication: "Nifedipine LA 20mg oral BD or Methyldopa 250mg oral TDS. " +
			"Do NOT use ACE inhibitors or ARBs in pregnancy.",
	},
	RiskModerate: {
		plan: "1. Rest and repeat BP after 5–10 minutes.\n" +
			"2. Urine dipstick for protein.\n" +
			"3. Review medications and dietary salt intake.",
		monitoring: "BP twice daily. Urine dipstick every visit. Weekly blood tests if on antihypertensives. " +
			"Fetal growth scan if < 34 weeks.",
		medication: "Consider starting antihypertensive if BP consistently ≥ 140/90.",
	},
	RiskLow: {
		plan:       "Continue routine antenatal care. No immediate interventions required.",
		monitoring: "Routine antenatal BP monitoring at each visit.",
		medication: "No medications currently indicated.",
	},
}

// RuleBasedGuideline returns the fixed plan for level; unknown levels use low.
func RuleBasedGuideline(level RiskLevel, refs []string) GuidelineOutput {
	rule, ok := guidelineTable[level]
	if !ok {
		rule = guidelineTable[RiskLow]
	}
	if len(refs) == 0 {
		refs = []string{guidelines.DefaultReference}
	}
	return GuidelineOutput{
		StabilizationPlan:      rule.plan,
		MonitoringInstructions: rule.monitoring,
		MedicationGuidance:     rule.medication,
		GuidelineRefs:          append([]string(nil), refs...),
		Source:                 SourceRuleBased,
	}
}
