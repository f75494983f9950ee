// Package hashing provides an offline embedder based on signed feature
// hashing of word unigrams and bigrams. It needs no model weights, so the
// guideline index works on an air-gapped edge device.
package hashing

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// DefaultDimension matches the local sentence-embedding size.
const DefaultDimension = 384

// Embedder hashes tokens into a fixed-width vector.
type Embedder struct {
	dimension int
}

var _ vector.Embedder = (*Embedder)(nil)

// New returns a hashing embedder. Non-positive dimensions use DefaultDimension.
func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

// Dimension returns the vector width.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns the unit-length hashed vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimension)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+"_"+tok, 0.5)
		}
	}
	return vector.Normalize(vec), nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lower-cases text and splits on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
