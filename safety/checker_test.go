package safety

import (
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		violates bool
		contains string
	}{
		{name: "mgso4 5g", text: "Give mgso4 5g IV stat", violates: true, contains: "Magnesium"},
		{name: "magnesium sulphate 6g", text: "magnesium sulphate 6g over 10 minutes", violates: true, contains: "6g"},
		{name: "magnesium sulfate US spelling", text: "Magnesium Sulfate 5 grams loading", violates: true, contains: "Magnesium"},
		{name: "mgso4 in mg", text: "MgSO4 6000 mg", violates: true, contains: "6g"},
		{name: "standard loading dose", text: "MgSO4: 4g IV over 20 min (loading), then 1–2g/hr maintenance.", violates: false},
		{name: "lisinopril", text: "Start Lisinopril 10mg daily", violates: true, contains: "lisinopril"},
		{name: "valsartan", text: "switch to valsartan", violates: true, contains: "valsartan"},
		{name: "generic ACE phrase is allowed", text: "Do NOT use ACE inhibitors or ARBs in pregnancy.", violates: false},
		{name: "labetalol 450mg", text: "labetalol 450mg IV", violates: true, contains: "Labetalol"},
		{name: "labetalol grams", text: "Labetalol 0.5 g", violates: true, contains: "500mg"},
		{name: "labetalol within ceiling", text: "Labetalol 20mg IV q10min (max 300mg)", violates: false},
		{name: "mgso4 milligrams at ceiling", text: "MgSO4 5000mg", violates: true, contains: "5g"},
		{name: "mgso4 thousands separator", text: "MgSO4 5,000 mg IV", violates: true, contains: "5g"},
		{name: "mgso4 grams with separator and decimal", text: "magnesium sulfate 1,000.5 mg then 6g", violates: true, contains: "6g"},
		{name: "labetalol grams at ceiling", text: "labetalol 0.4g", violates: true, contains: "400mg"},
		{name: "labetalol thousands separator", text: "Labetalol 1,200 mg", violates: true, contains: "1200mg"},
		{name: "labetalol second dose in clause", text: "Labetalol (max 300mg): give 400 mg", violates: true, contains: "400mg"},
		{name: "labetalol dose in later clause", text: "Labetalol 20mg IV. Paracetamol 1,000 mg oral.", violates: false},
		{name: "decimal comma is not a separator", text: "MgSO4 4,5 g", violates: false},
		{name: "empty", text: "", violates: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := Check(tt.text)
			if ok != tt.violates {
				t.Fatalf("Check(%q) = (%q, %v), want violation=%v", tt.text, msg, ok, tt.violates)
			}
			if tt.violates && !strings.Contains(msg, tt.contains) {
				t.Fatalf("violation %q does not mention %q", msg, tt.contains)
			}
			if !tt.violates && msg != "" {
				t.Fatalf("expected empty message, got %q", msg)
			}
		})
	}
}

func TestCheckReturnsFirstRule(t *testing.T) {
	msg, ok := Check("labetalol 500mg, losartan 50mg and mgso4 8g")
	if !ok {
		t.Fatalf("expected violation")
	}
	if !strings.HasPrefix(msg, "Magnesium") {
		t.Fatalf("expected magnesium rule to win, got %q", msg)
	}
}

func TestCustomDrugList(t *testing.T) {
	c := NewChecker("atenolol")
	if _, ok := c.Check("atenolol 50mg"); !ok {
		t.Fatalf("expected custom drug to be flagged")
	}
	if _, ok := c.Check("lisinopril 10mg"); ok {
		t.Fatalf("custom list should replace the defaults")
	}
}
