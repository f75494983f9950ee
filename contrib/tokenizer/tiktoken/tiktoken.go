// Package tiktoken wraps tiktoken-go for prompt budgeting.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text by BPE tokens.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves name as a model first and then as an encoding.
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

// DecodeIds turns token ids back into text.
func (t *Tokenizer) DecodeIds(ids []int) string {
	return t.enc.Decode(ids)
}

// Truncate keeps at most limit tokens of text.
func (t *Tokenizer) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	ids := t.Encode(text)
	if len(ids) <= limit {
		return text
	}
	return t.DecodeIds(ids[:limit])
}
