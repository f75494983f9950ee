// Package safety holds deterministic plan checks that override model output.
package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MagnesiumCeilingGrams is the smallest magnesium sulfate dose that is flagged.
	MagnesiumCeilingGrams = 5.0
	// LabetalolCeilingMg is the smallest labetalol dose that is flagged.
	LabetalolCeilingMg = 400.0
)

// DefaultContraindicated lists ACE inhibitors and ARBs that must never appear in a plan.
var DefaultContraindicated = []string{"lisinopril", "enalapril", "losartan", "valsartan"}

var (
	magnesiumPattern = regexp.MustCompile(`(?i)mgso4|magnesium\s+sul(?:ph|f)ate`)
	labetalolPattern = regexp.MustCompile(`(?i)labetalol`)

	// dosePattern matches an amount with an optional thousands separator
	// ("5,000") and decimal part, followed by a gram or milligram unit.
	dosePattern = regexp.MustCompile(`(?i)(?:^|[^\d.,])(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?\s*(mg|gm|grams?|g)\b`)
	clauseEnd   = regexp.MustCompile(`[;\n]|\.(?:\s|$)`)
)

// Checker applies the dose ceilings and the contraindicated drug list.
type Checker struct {
	drugs *regexp.Regexp
}

// NewChecker builds a checker for the given contraindicated drug names.
// An empty list falls back to DefaultContraindicated.
func NewChecker(drugs ...string) *Checker {
	if len(drugs) == 0 {
		drugs = DefaultContraindicated
	}
	quoted := make([]string, 0, len(drugs))
	for _, d := range drugs {
		d = strings.TrimSpace(d)
		if d != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(d)))
		}
	}
	return &Checker{
		drugs: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`),
	}
}

var defaultChecker = NewChecker()

// Check runs the default checker over text.
func Check(text string) (string, bool) {
	return defaultChecker.Check(text)
}

// Check returns the first violation found in text, testing the magnesium
// ceiling, then contraindicated drugs, then the labetalol ceiling.
func (c *Checker) Check(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	for _, grams := range dosesAfter(text, magnesiumPattern, "g") {
		if grams >= MagnesiumCeilingGrams {
			return fmt.Sprintf("Magnesium sulfate dose of %sg exceeds the 4g loading-dose ceiling", formatDose(grams)), true
		}
	}

	if m := c.drugs.FindString(text); m != "" {
		return fmt.Sprintf("Contraindicated medication in pregnancy: %s (ACE inhibitor/ARB)", strings.ToLower(m)), true
	}

	for _, mg := range dosesAfter(text, labetalolPattern, "mg") {
		if mg >= LabetalolCeilingMg {
			return fmt.Sprintf("Labetalol dose of %smg exceeds the 300mg safe ceiling", formatDose(mg)), true
		}
	}

	return "", false
}

// dosesAfter returns every dose written after a mention of drug, converted
// to want. A mention covers the rest of its clause, which ends at a
// semicolon, a newline or a full stop.
func dosesAfter(text string, drug *regexp.Regexp, want string) []float64 {
	var doses []float64
	for _, loc := range drug.FindAllStringIndex(text, -1) {
		tail := text[loc[1]:]
		if end := clauseEnd.FindStringIndex(tail); end != nil {
			tail = tail[:end[0]]
		}
		for _, m := range dosePattern.FindAllStringSubmatch(tail, -1) {
			amount := strings.ReplaceAll(m[1], ",", "") + m[2]
			if v, ok := toUnit(amount, m[3], want); ok {
				doses = append(doses, v)
			}
		}
	}
	return doses
}

// toUnit converts an amount with a gram or milligram unit into want ("g" or "mg").
func toUnit(amount, unit, want string) (float64, bool) {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, false
	}
	isMg := strings.EqualFold(unit, "mg")
	switch {
	case want == "g" && isMg:
		return v / 1000, true
	case want == "mg" && !isMg:
		return v * 1000, true
	default:
		return v, true
	}
}

func formatDose(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
