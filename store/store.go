// Package store persists terminal triage cases.
package store

import (
	"context"
	"time"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// CaseStore receives terminal case states and serves them back as records.
type CaseStore interface {
	SaveCase(ctx context.Context, s *triage.CaseState) error
	Get(ctx context.Context, caseID string) (*Record, error)
	// List returns the most recent records first.
	List(ctx context.Context, limit int) ([]*Record, error)
	Count(ctx context.Context) (int, error)
}

var (
	_ CaseStore       = (*InMemoryStore)(nil)
	_ CaseStore       = (*PostgresStore)(nil)
	_ CaseStore       = (*RedisStore)(nil)
	_ CaseStore       = (*MongoStore)(nil)
	_ triage.CaseSink = (CaseStore)(nil)
)

// Record is the persisted form of a finished case.
type Record struct {
	CaseID           string                  `json:"case_id" bson:"_id"`
	Patient          triage.PatientData      `json:"patient_data" bson:"patient_data"`
	RiskLevel        triage.RiskLevel        `json:"risk_level" bson:"risk_level"`
	RiskScore        int                     `json:"risk_score" bson:"risk_score"`
	Escalated        bool                    `json:"escalated" bson:"escalated"`
	EscalationReason string                  `json:"escalation_reason,omitempty" bson:"escalation_reason,omitempty"`
	Mode             string                  `json:"mode" bson:"mode"`
	CloudConnected   bool                    `json:"cloud_connected" bson:"cloud_connected"`
	Topology         string                  `json:"topology" bson:"topology"`
	Vision           *triage.VisionOutput    `json:"vision_output,omitempty" bson:"vision_output,omitempty"`
	Risk             *triage.RiskOutput      `json:"risk_output,omitempty" bson:"risk_output,omitempty"`
	Guideline        *triage.GuidelineOutput `json:"guideline_output,omitempty" bson:"guideline_output,omitempty"`
	Critique         *triage.CritiqueOutput  `json:"critique_output,omitempty" bson:"critique_output,omitempty"`
	Executive        *triage.ExecutiveOutput `json:"executive_output,omitempty" bson:"executive_output,omitempty"`
	Error            string                  `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt        time.Time               `json:"started_at" bson:"started_at"`
	CompletedAt      time.Time               `json:"completed_at" bson:"completed_at"`
}

// FromCase flattens a terminal case. Free-text identifiers are dropped unless
// the case's topology had data collection enabled.
func FromCase(s *triage.CaseState) *Record {
	if s == nil {
		return nil
	}
	r := &Record{
		CaseID:           s.CaseID,
		Patient:          s.Patient,
		RiskLevel:        s.RiskLevel(),
		Escalated:        s.EscalationTriggered,
		EscalationReason: s.EscalationReason,
		Mode:             s.Mode,
		CloudConnected:   s.CloudConnected,
		Topology:         string(s.Topology.Mode),
		Vision:           s.Vision,
		Risk:             s.Risk,
		Guideline:        s.Guideline,
		Critique:         s.Critique,
		Executive:        s.Executive,
		Error:            s.Error,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
	}
	if s.Risk != nil {
		r.RiskScore = s.Risk.RiskScore
	}
	r.Patient.Image = nil
	if !s.Topology.DataCollectionEnabled {
		r.Patient.Name = ""
		r.Patient.Notes = ""
		r.Patient.MedicalHistory = ""
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	return r
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
