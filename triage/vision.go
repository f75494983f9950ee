package triage

import (
	"context"
	"log/slog"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/structured"
)

const visionSystem = "You are a clinical imaging assistant for maternal care. " +
	`Reply with JSON only: {"analysis": "<findings>"}`

// VisionStep describes visible findings in the optional clinical image.
type VisionStep struct {
	Model  modelclient.Generator
	Logger *slog.Logger
}

// NewVisionStep returns a VisionStep.
func NewVisionStep(model modelclient.Generator) *VisionStep {
	return &VisionStep{Model: model, Logger: logging.WithComponent("triage")}
}

func (v *VisionStep) Name() string { return StepVision }

func (v *VisionStep) Run(ctx context.Context, s *CaseState) *CaseState {
	log := caseLogger(v.Logger, StepVision, s)

	if !s.Patient.HasImage() {
		s.Vision = &VisionOutput{Status: VisionSkipped, Findings: "No clinical imagery provided."}
		return s
	}
	if !s.Topology.IsVisionAllowed() {
		log.Info("vision disabled by topology", "mode", s.Topology.Mode)
		s.Vision = &VisionOutput{Status: VisionSkipped, Findings: "Vision analysis disabled by topology policy."}
		return s
	}
	if v.Model == nil {
		s.Vision = visionFailure(s, "no vision backend configured")
		return s
	}

	res := v.Model.Generate(ctx, modelclient.Request{
		Step:        StepVision,
		CaseID:      s.CaseID,
		System:      visionSystem,
		Prompt:      VisionPrompt,
		Image:       s.Patient.Image,
		AllowRemote: s.Topology.IsVisionAllowed(),
	})
	if !res.OK {
		log.Warn("vision analysis failed", "error", res.Err)
		s.Vision = visionFailure(s, errText(res.Err))
		return s
	}

	findings := structured.String(res.Data, "analysis", "")
	if findings == "" {
		findings = structured.String(res.Data, "findings", "No findings returned.")
	}
	s.Vision = &VisionOutput{Status: VisionSuccess, Findings: findings, Model: res.Model}
	return s
}

func visionFailure(s *CaseState, msg string) *VisionOutput {
	s.Error = "Vision analysis failed: " + msg
	return &VisionOutput{Status: VisionFailed, Findings: "Vision service error: " + msg, Error: msg}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
