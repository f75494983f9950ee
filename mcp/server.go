// Package mcp exposes the triage engine as Model Context Protocol tools and
// provides a client for driving a remote node.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/store"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/topology"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// Version is advertised during the MCP handshake.
const Version = "0.1.0"

// Tool names.
const (
	ToolTriageCase    = "triage_case"
	ToolGetTopology   = "get_topology"
	ToolSetTopology   = "set_topology"
	ToolGetCase       = "get_case"
	ToolListCases     = "list_cases"
	ToolCheckServices = "check_services"
)

// CaseRunner runs one case to completion.
type CaseRunner interface {
	Run(ctx context.Context, patient triage.PatientData) (*triage.CaseState, error)
}

// ServerConfig wires a Server. Cases and Health are optional; their tools
// are only registered when set.
type ServerConfig struct {
	Runner   CaseRunner
	Topology *topology.Store
	Cases    store.CaseStore
	Health   *topology.HealthChecker
	Logger   *slog.Logger
}

// Server owns the SDK server and its tool handlers.
type Server struct {
	cfg ServerConfig
	sdk *sdkmcp.Server
}

// NewServer registers the triage tools.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil || cfg.Topology == nil {
		return nil, fmt.Errorf("%w: mcp server needs a runner and a topology store", matrixerrors.ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("mcp")
	}

	s := &Server{cfg: cfg}
	s.sdk = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "matrix",
		Title:   "Maternal triage escalation engine",
		Version: Version,
	}, nil)

	s.addTriageTool()
	s.addTopologyTools()
	if cfg.Cases != nil {
		s.addCaseTools()
	}
	if cfg.Health != nil {
		s.addHealthTool()
	}
	return s, nil
}

// SDK returns the underlying server.
func (s *Server) SDK() *sdkmcp.Server { return s.sdk }

// Run serves a single session on t until the client disconnects.
func (s *Server) Run(ctx context.Context, t sdkmcp.Transport) error {
	return s.sdk.Run(ctx, t)
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return s.sdk }, nil)
}

// TriageArgs is the triage_case input.
type TriageArgs struct {
	Name                string   `json:"name,omitempty"`
	Age                 int      `json:"age,omitempty"`
	GestationalAgeWeeks int      `json:"gestational_age_weeks,omitempty"`
	BPSystolic          int      `json:"bp_systolic" jsonschema:"Systolic blood pressure in mmHg"`
	BPDiastolic         int      `json:"bp_diastolic" jsonschema:"Diastolic blood pressure in mmHg"`
	HeartRate           int      `json:"heart_rate,omitempty"`
	Proteinuria         string   `json:"proteinuria,omitempty" jsonschema:"Dipstick grade: none, trace, 1+, 2+ or 3+"`
	Symptoms            []string `json:"symptoms,omitempty" jsonschema:"Symptoms such as headache, visual_disturbance, epigastric_pain, oedema, fetal_movement_reduced"`
	MedicalHistory      string   `json:"medical_history,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	ImageBase64         string   `json:"image_base64,omitempty" jsonschema:"Optional base64 clinical image"`
	ImageMIMEType       string   `json:"image_mime_type,omitempty" jsonschema:"MIME type of the image, default image/jpeg"`
}

// PatientData converts the arguments into engine input.
func (a TriageArgs) PatientData() (triage.PatientData, error) {
	p := triage.PatientData{
		Name:                a.Name,
		Age:                 a.Age,
		GestationalAgeWeeks: a.GestationalAgeWeeks,
		BPSystolic:          a.BPSystolic,
		BPDiastolic:         a.BPDiastolic,
		HeartRate:           a.HeartRate,
		Proteinuria:         a.Proteinuria,
		MedicalHistory:      a.MedicalHistory,
		Notes:               a.Notes,
	}
	p.SymptomsFromList(a.Symptoms)
	if a.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(a.ImageBase64)
		if err != nil {
			return p, fmt.Errorf("%w: image_base64: %v", matrixerrors.ErrInvalidInput, err)
		}
		p.Image = &message.Image{Data: data, MIMEType: a.ImageMIMEType}
	}
	return p, nil
}

func (s *Server) addTriageTool() {
	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolTriageCase,
		Description: "Run a maternal triage case through risk, guideline, critique and escalation",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, a TriageArgs) (*sdkmcp.CallToolResult, any, error) {
		patient, err := a.PatientData()
		if err != nil {
			return nil, nil, err
		}
		state, err := s.cfg.Runner.Run(ctx, patient)
		if err != nil {
			return nil, nil, err
		}
		s.cfg.Logger.Info("case triaged over mcp", "case_id", state.CaseID, "risk_level", state.RiskLevel())
		return jsonResult(state)
	})
}

// SetTopologyArgs is the set_topology input. Omitted fields keep their
// current value.
type SetTopologyArgs struct {
	Mode                  *string `json:"mode,omitempty" jsonschema:"OFFLINE, HYBRID or CLOUD"`
	FallbackEnabled       *bool   `json:"fallback_enabled,omitempty"`
	VisionEnabled         *bool   `json:"vision_enabled,omitempty"`
	ExecutiveAgentEnabled *bool   `json:"executive_agent_enabled,omitempty"`
	DataCollectionEnabled *bool   `json:"data_collection_enabled,omitempty"`
	UpdatedBy             string  `json:"updated_by,omitempty" jsonschema:"Operator making the change"`
}

// Update converts the arguments into a partial policy change.
func (a SetTopologyArgs) Update() topology.Update {
	u := topology.Update{
		FallbackEnabled:       a.FallbackEnabled,
		VisionEnabled:         a.VisionEnabled,
		ExecutiveAgentEnabled: a.ExecutiveAgentEnabled,
		DataCollectionEnabled: a.DataCollectionEnabled,
	}
	if a.Mode != nil {
		m := topology.Mode(*a.Mode)
		u.Mode = &m
	}
	return u
}

func (s *Server) addTopologyTools() {
	type noArgs struct{}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolGetTopology,
		Description: "Return the current deployment topology policy",
	}, func(context.Context, *sdkmcp.CallToolRequest, noArgs) (*sdkmcp.CallToolResult, any, error) {
		return jsonResult(s.cfg.Topology.Snapshot())
	})

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolSetTopology,
		Description: "Change the topology mode (OFFLINE, HYBRID, CLOUD) or feature toggles",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, a SetTopologyArgs) (*sdkmcp.CallToolResult, any, error) {
		u := a.Update()
		if u.Empty() {
			return nil, nil, fmt.Errorf("%w: no topology fields supplied", matrixerrors.ErrInvalidInput)
		}
		by := a.UpdatedBy
		if by == "" {
			by = "mcp"
		}
		p, err := s.cfg.Topology.Update(ctx, u, by)
		if err != nil {
			return nil, nil, err
		}
		s.cfg.Logger.Info("topology updated over mcp", "mode", p.Mode, "by", by)
		return jsonResult(p)
	})
}

func (s *Server) addCaseTools() {
	type getArgs struct {
		CaseID string `json:"case_id" jsonschema:"Case identifier returned by triage_case"`
	}
	type listArgs struct {
		Limit int `json:"limit,omitempty" jsonschema:"Maximum number of cases, newest first"`
	}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolGetCase,
		Description: "Fetch a stored case record",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, a getArgs) (*sdkmcp.CallToolResult, any, error) {
		rec, err := s.cfg.Cases.Get(ctx, a.CaseID)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(rec)
	})

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolListCases,
		Description: "List recent case records",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, a listArgs) (*sdkmcp.CallToolResult, any, error) {
		recs, err := s.cfg.Cases.List(ctx, a.Limit)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(recs)
	})
}

func (s *Server) addHealthTool() {
	type noArgs struct{}

	sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
		Name:        ToolCheckServices,
		Description: "Probe model backends and stores",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ noArgs) (*sdkmcp.CallToolResult, any, error) {
		return jsonResult(s.cfg.Health.Check(ctx))
	})
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, errors.Join(matrixerrors.ErrInternal, err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
