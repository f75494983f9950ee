package prompt

import (
	"errors"
	"strings"
	"testing"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
)

func TestTemplateRender(t *testing.T) {
	tests := []struct {
		name    string
		content string
		data    any
		want    string
		wantErr bool
	}{
		{
			name:    "map data",
			content: "BP {{.Sys}}/{{.Dia}} mmHg",
			data:    map[string]any{"Sys": 165, "Dia": 110},
			want:    "BP 165/110 mmHg",
		},
		{
			name:    "struct data with helpers",
			content: "Headache: {{yesno .Headache}}; refs: {{join .Refs \", \"}}",
			data: struct {
				Headache bool
				Refs     []string
			}{Headache: true, Refs: []string{"WHO 2011", "NICE NG133"}},
			want: "Headache: yes; refs: WHO 2011, NICE NG133",
		},
		{
			name:    "missing key",
			content: "{{.Absent}}",
			data:    map[string]any{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewTemplate(tt.name, tt.content)
			if err != nil {
				t.Fatalf("NewTemplate: %v", err)
			}
			got, err := tmpl.Render(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Render() error = %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTemplateParseError(t *testing.T) {
	if _, err := NewTemplate("bad", "{{.Unclosed"); !errors.Is(err, matrixerrors.ErrInvalidInput) {
		t.Errorf("error = %v", err)
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("risk", "Risk for {{.Name}}"); err != nil {
		t.Fatal(err)
	}
	if err := m.RegisterString("risk", "dup"); !errors.Is(err, matrixerrors.ErrInvalidInput) {
		t.Errorf("duplicate error = %v", err)
	}
	if err := m.Register(&Template{}); err == nil {
		t.Error("empty name should be rejected")
	}

	got, err := m.Render("risk", map[string]any{"Name": "Amina"})
	if err != nil || got != "Risk for Amina" {
		t.Errorf("Render() = %q, %v", got, err)
	}
	if _, err := m.Render("missing", nil); !errors.Is(err, matrixerrors.ErrNotFound) {
		t.Errorf("missing template error = %v", err)
	}

	m.MustRegister(map[string]string{"critique": "Plan: {{.Plan}}"})
	if names := m.List(); len(names) != 2 || names[0] != "critique" {
		t.Errorf("List() = %v", names)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewManager().MustRegister(map[string]string{"bad": "{{"})
}

func TestBuilder(t *testing.T) {
	got := NewBuilder().
		AddSection("VITALS", "BP 120/80").
		AddFormat("GA %d weeks", 32).
		Add("\n").
		AddLine("end").
		Build()
	want := "VITALS:\nBP 120/80\nGA 32 weeks\nend\n"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
	b := NewBuilder().Add("x")
	if b.Reset().Build() != "" {
		t.Error("Reset should clear parts")
	}
	if !strings.HasPrefix(NewBuilder().AddSection("A", "b").Build(), "A:") {
		t.Error("section title missing")
	}
}
