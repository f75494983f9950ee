package triage

import (
	"context"
	"log/slog"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
)

// Step is one pipeline stage. Run is total: failures degrade the state and
// are never returned.
type Step interface {
	Name() string
	Run(ctx context.Context, s *CaseState) *CaseState
}

// Step names, also used as graph node names and model-call labels.
const (
	StepVision     = "vision"
	StepRisk       = "risk"
	StepGuideline  = "guideline"
	StepCritique   = "critique"
	StepRouter     = "router"
	StepEscalation = "escalation"
)

func renderPair(m *prompt.Manager, systemName, userName string, data any) (string, string, error) {
	system, err := m.Render(systemName, nil)
	if err != nil {
		return "", "", err
	}
	user, err := m.Render(userName, data)
	if err != nil {
		return "", "", err
	}
	return system, user, nil
}

func caseLogger(l *slog.Logger, step string, s *CaseState) *slog.Logger {
	return l.With("step", step, "case_id", s.CaseID)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
