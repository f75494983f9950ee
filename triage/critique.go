package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/metrics"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/safety"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/structured"
)

const (
	revisionNote = "\n(Note: Revised for safety by Critique Agent)"
	bypassNote   = "Critique Agent bypass (LLM error)"
)

// BlockedPlan is the plan text that replaces a plan failing the safety check.
func BlockedPlan(violation string) string {
	return "BLOCKED BY SAFETY CHECK: " + violation + ". Follow standard hospital protocol and seek senior obstetric review."
}

// CritiqueStep screens the guideline plan with the heuristic checker and then
// asks the model for a safety review. A model failure leaves the plan as is
// and records a bypassed, safe verdict.
type CritiqueStep struct {
	Model    modelclient.Generator
	Checker  *safety.Checker
	Prompts  *prompt.Manager
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// NewCritiqueStep returns a CritiqueStep with the default checker.
func NewCritiqueStep(model modelclient.Generator) *CritiqueStep {
	return &CritiqueStep{
		Model:    model,
		Checker:  safety.NewChecker(),
		Prompts:  DefaultPrompts(),
		Recorder: metrics.Nop(),
		Logger:   logging.WithComponent("triage"),
	}
}

func (c *CritiqueStep) Name() string { return StepCritique }

type critiquePromptData struct {
	RiskLevel  RiskLevel
	Plan       string
	Medication string
}

func (c *CritiqueStep) Run(ctx context.Context, s *CaseState) *CaseState {
	log := caseLogger(c.Logger, StepCritique, s)
	if s.Guideline == nil {
		fallback := RuleBasedGuideline(s.RiskLevel(), nil)
		s.Guideline = &fallback
	}
	g := s.Guideline

	if violation, found := c.Checker.Check(g.StabilizationPlan + "\n" + g.MedicationGuidance); found {
		log.Warn("plan blocked by safety check", "violation", violation)
		c.block(s, violation, "pre-review")
		return s
	}

	res, err := c.review(ctx, s)
	if err != nil {
		log.Warn("critique model unusable, continuing unreviewed", "error", err)
		s.Error = "Critique model unavailable: " + err.Error()
		s.Critique = &CritiqueOutput{Safe: true, CritiqueNotes: bypassNote, Bypassed: true}
		return s
	}

	safe := structured.Bool(res.Data, "safe", true)
	revised := strings.TrimSpace(structured.String(res.Data, "revised_plan", ""))
	if strings.EqualFold(revised, "null") || strings.EqualFold(revised, "none") {
		revised = ""
	}
	defaultScore := 100
	if !safe {
		defaultScore = 0
	}
	out := &CritiqueOutput{
		Safe:          safe,
		SafetyScore:   clampInt(structured.Int(res.Data, "safety_score", defaultScore), 0, 100),
		CritiqueNotes: structured.String(res.Data, "critique_notes", ""),
		RevisedPlan:   revised,
	}
	s.Critique = out

	if safe || revised == "" {
		return s
	}
	if violation, found := c.Checker.Check(revised); found {
		log.Warn("model revision blocked by safety check", "violation", violation)
		c.block(s, violation, "revision")
		s.Critique.CritiqueNotes = out.CritiqueNotes
		s.Critique.RevisedPlan = revised
		return s
	}
	log.Info("plan revised by critique")
	g.StabilizationPlan = revised
	g.MedicationGuidance += revisionNote
	return s
}

func (c *CritiqueStep) review(ctx context.Context, s *CaseState) (modelclient.Result, error) {
	if c.Model == nil {
		return modelclient.Result{}, fmt.Errorf("%w: no critique backend configured", matrixerrors.ErrModelUnavailable)
	}
	system, user, err := renderPair(c.Prompts, PromptCritiqueSystem, PromptCritique, critiquePromptData{
		RiskLevel:  s.RiskLevel(),
		Plan:       s.Guideline.StabilizationPlan,
		Medication: s.Guideline.MedicationGuidance,
	})
	if err != nil {
		return modelclient.Result{}, err
	}
	res := c.Model.Generate(ctx, modelclient.Request{
		Step:        StepCritique,
		CaseID:      s.CaseID,
		System:      system,
		Prompt:      user,
		AllowRemote: s.Topology.ForcesEscalation(),
	})
	if !res.OK {
		return res, res.Err
	}
	return res, nil
}

func (c *CritiqueStep) block(s *CaseState, violation, stage string) {
	s.Guideline.StabilizationPlan = BlockedPlan(violation)
	s.Critique = &CritiqueOutput{
		Safe:               false,
		SafetyScore:        0,
		CritiqueNotes:      violation,
		HeuristicViolation: violation,
	}
	if c.Recorder != nil {
		c.Recorder.IncSafetyBlock(stage)
	}
}
