package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/graph"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/modelclient"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/metrics"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/prompt"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/safety"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
)

// PolicySource yields the current topology policy.
type PolicySource interface {
	Snapshot() topology.Policy
}

// CaseSink receives terminal case states.
type CaseSink interface {
	SaveCase(ctx context.Context, s *CaseState) error
}

// Config wires an Engine. Local serves risk, guideline and critique; Vision
// and Executive default to Local when nil.
type Config struct {
	Local     modelclient.Generator
	Vision    modelclient.Generator
	Executive modelclient.Generator
	Retriever Retriever
	Topology  PolicySource
	Sink      CaseSink
	Prompts   *prompt.Manager
	Checker   *safety.Checker
	Recorder  metrics.Recorder
	Logger    *slog.Logger
	TopK      int
}

// Engine runs cases through vision, risk, guideline, critique and router, and
// then escalation when the gate opens.
type Engine struct {
	graph    *graph.Graph[*CaseState]
	topology PolicySource
	sink     CaseSink
	recorder metrics.Recorder
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// NewEngine builds the case graph.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Topology == nil {
		return nil, fmt.Errorf("%w: engine needs a topology source", matrixerrors.ErrInvalidInput)
	}
	if cfg.Local == nil {
		return nil, fmt.Errorf("%w: engine needs a local model", matrixerrors.ErrInvalidInput)
	}
	if cfg.Vision == nil {
		cfg.Vision = cfg.Local
	}
	if cfg.Executive == nil {
		cfg.Executive = cfg.Local
	}
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.Checker == nil {
		cfg.Checker = safety.NewChecker()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Nop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("triage")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultGuidelineTopK
	}

	steps := []Step{
		&VisionStep{Model: cfg.Vision, Logger: cfg.Logger},
		&RiskStep{Model: cfg.Local, Prompts: cfg.Prompts, Logger: cfg.Logger},
		&GuidelineStep{Model: cfg.Local, Retriever: cfg.Retriever, TopK: cfg.TopK, Prompts: cfg.Prompts, Logger: cfg.Logger},
		&CritiqueStep{Model: cfg.Local, Checker: cfg.Checker, Prompts: cfg.Prompts, Recorder: cfg.Recorder, Logger: cfg.Logger},
		RouterStep{},
	}
	escalation := &EscalationStep{Model: cfg.Executive, Prompts: cfg.Prompts, Logger: cfg.Logger}

	b := graph.NewBuilder[*CaseState]("triage").
		WithLogger(cfg.Logger).
		AddNode("start", graph.NodeTypeStart, nil).
		AddNode("end", graph.NodeTypeEnd, nil)
	prev := "start"
	for _, st := range steps {
		b.AddStep(st.Name(), adapt(st))
		b.AddEdge(prev, st.Name())
		prev = st.Name()
	}
	b.AddConditionNode("escalation_gate", func(_ context.Context, s *CaseState) (string, error) {
		if ShouldEscalate(s) {
			return "escalate", nil
		}
		return "end", nil
	}, map[string]string{"escalate": StepEscalation, "end": "end"}).
		AddEdge(prev, "escalation_gate").
		AddStep(StepEscalation, adapt(escalation)).
		AddEdge(StepEscalation, "end").
		SetMaxVisits(1)

	return &Engine{
		graph:    b.Build(),
		topology: cfg.Topology,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}, nil
}

func adapt(st Step) graph.NodeFunc[*CaseState] {
	return func(ctx context.Context, s *CaseState) (*CaseState, error) {
		return st.Run(ctx, s), nil
	}
}

// Run triages one case. It fails only for invalid intake or a context that
// is cancelled; a cancellation after the case started returns the partial
// state together with the context error. Step failures are absorbed into the
// state.
func (e *Engine) Run(ctx context.Context, patient PatientData) (*CaseState, error) {
	if err := patient.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := NewCaseState(e.newID(), patient, e.topology.Snapshot(), e.now())
	log := e.logger.With("case_id", s.CaseID, "topology", s.Topology.Mode)
	log.InfoContext(ctx, "case started")

	out, err := e.graph.Execute(ctx, s)
	if out == nil {
		out = s
	}
	out.CompletedAt = e.now()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			log.WarnContext(ctx, "case cancelled", "error", err)
			return out, ctxErr
		}
		log.ErrorContext(ctx, "case graph failed", "error", err)
		return out, fmt.Errorf("%w: %w", matrixerrors.ErrInternal, err)
	}

	e.recorder.ObserveCase(string(out.RiskLevel()), out.Mode, out.EscalationTriggered, out.CompletedAt.Sub(out.StartedAt))
	if e.sink != nil {
		if err := e.sink.SaveCase(ctx, out); err != nil {
			log.WarnContext(ctx, "case persistence failed", "error", err)
		}
	}
	log.InfoContext(ctx, "case completed",
		"risk_level", out.RiskLevel(),
		"escalated", out.EscalationTriggered,
		"mode", out.Mode,
		"cloud_connected", out.CloudConnected)
	return out, nil
}
