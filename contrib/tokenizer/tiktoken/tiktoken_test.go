package tiktoken

import "testing"

func newTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := NewTiktokenTokenizer("cl100k_base")
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	return tok
}

func TestCountTokensCountsIDs(t *testing.T) {
	tok := newTokenizer(t)
	text := "magnesium sulfate loading dose"
	if got, want := tok.CountTokens(text), len(tok.Encode(text)); got != want {
		t.Errorf("CountTokens() = %d, want %d", got, want)
	}
	if tok.CountTokens("") != 0 {
		t.Error("empty text should have zero tokens")
	}
}

func TestTruncate(t *testing.T) {
	tok := newTokenizer(t)
	text := "Severe hypertension in pregnancy requires urgent antihypertensive treatment"
	short := tok.Truncate(text, 3)
	if tok.CountTokens(short) > 3 {
		t.Errorf("Truncate kept %d tokens", tok.CountTokens(short))
	}
	if tok.Truncate(text, 1000) != text {
		t.Error("text under the limit should be unchanged")
	}
	if tok.Truncate(text, 0) != "" {
		t.Error("zero limit should return empty text")
	}
}
