package triage

import (
	"encoding/json"
	"errors"
	"testing"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/message"
)

func TestHasProteinuria(t *testing.T) {
	tests := []struct {
		grade string
		want  bool
	}{
		{"", false},
		{"none", false},
		{"None", false},
		{"trace", true},
		{"1+", true},
		{"2+", true},
		{"3+", true},
	}
	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			if got := (PatientData{Proteinuria: tt.grade}).HasProteinuria(); got != tt.want {
				t.Errorf("HasProteinuria(%q) = %v", tt.grade, got)
			}
		})
	}
}

func TestSymptomsFromList(t *testing.T) {
	p := PatientData{AdditionalSymptoms: "nausea"}
	p.SymptomsFromList([]string{"headache", "Visual Disturbance", "edema", "fetal_movement_reduced", "shortness of breath", ""})

	if !p.Headache || !p.VisualDisturbance || !p.Oedema || !p.FetalMovementReduced {
		t.Errorf("flags not set: %+v", p)
	}
	if p.EpigastricPain {
		t.Error("epigastric pain should stay false")
	}
	if p.AdditionalSymptoms != "nausea, shortness of breath" {
		t.Errorf("AdditionalSymptoms = %q", p.AdditionalSymptoms)
	}
}

func TestPatientValidate(t *testing.T) {
	valid := PatientData{Age: 28, GestationalAgeWeeks: 34, BPSystolic: 120, BPDiastolic: 80, Proteinuria: "none"}
	tests := []struct {
		name    string
		mutate  func(p *PatientData)
		wantErr bool
	}{
		{name: "valid", mutate: func(*PatientData) {}},
		{name: "missing systolic", mutate: func(p *PatientData) { p.BPSystolic = 0 }, wantErr: true},
		{name: "diastolic too high", mutate: func(p *PatientData) { p.BPDiastolic = 400 }, wantErr: true},
		{name: "gestation out of range", mutate: func(p *PatientData) { p.GestationalAgeWeeks = 60 }, wantErr: true},
		{name: "unknown proteinuria", mutate: func(p *PatientData) { p.Proteinuria = "4+" }, wantErr: true},
		{name: "negative heart rate", mutate: func(p *PatientData) { p.HeartRate = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v", err)
			}
			if err != nil && !errors.Is(err, matrixerrors.ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidInput: %v", err)
			}
		})
	}
}

func TestParseRiskLevel(t *testing.T) {
	if l, ok := ParseRiskLevel(" Severe "); !ok || l != RiskSevere {
		t.Errorf("ParseRiskLevel = %q, %v", l, ok)
	}
	if _, ok := ParseRiskLevel("critical"); ok {
		t.Error("critical is not a level")
	}
}

func TestCaseStateJSONKeys(t *testing.T) {
	s := NewCaseState("c1", PatientData{BPSystolic: 150, Image: &message.Image{Data: []byte{1}}}, policy("HYBRID"), timeZero)
	s.Risk = &RiskOutput{RiskLevel: RiskHigh, RiskScore: 68, ImmediateActions: []string{}}
	s.Guideline = &GuidelineOutput{StabilizationPlan: "x"}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"patient_data", "risk_output", "guideline_output", "escalation_triggered", "escalation_reason", "cloud_connected", "mode"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if _, ok := doc["executive_output"]; ok {
		t.Error("executive_output should be omitted when unset")
	}
	risk := doc["risk_output"].(map[string]any)
	if risk["risk_level"] != "high" || risk["risk_score"].(float64) != 68 {
		t.Errorf("risk_output = %v", risk)
	}
	if doc["mode"] != ModeOffline {
		t.Errorf("initial mode = %v", doc["mode"])
	}
}
