package guidelines

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// DefaultReference is cited when no retrieved source is available.
const DefaultReference = "WHO 2011 — Hypertensive Disorders of Pregnancy"

// Hit is a retrieved excerpt with its similarity rounded to four decimals.
type Hit struct {
	Source     string  `json:"source"`
	Text       string  `json:"chunk_text"`
	Similarity float64 `json:"similarity"`
}

// TokenCounter counts model tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// Retriever embeds queries and searches the guideline store.
type Retriever struct {
	store    vector.VectorStore
	embedder vector.Embedder
	cache    *lru.Cache[string, []float32]
	topK     int
	counter  TokenCounter
	budget   int
	lambda   float32
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets the default number of excerpts.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithTokenBudget drops trailing hits once the formatted context would
// exceed budget tokens. The best hit is always kept.
func WithTokenBudget(counter TokenCounter, budget int) Option {
	return func(r *Retriever) {
		r.counter = counter
		r.budget = budget
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever builds a Retriever whose query embeddings are cached in an
// LRU of cacheSize entries (zero disables the cache).
func NewRetriever(store vector.VectorStore, embedder vector.Embedder, cacheSize int, opts ...Option) (*Retriever, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("%w: retriever needs a store and an embedder", matrixerrors.ErrInvalidInput)
	}
	r := &Retriever{
		store:    store,
		embedder: embedder,
		topK:     3,
		logger:   slog.Default(),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		r.cache = cache
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns up to topK hits for query, best first. topK <= 0 uses the
// configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty retrieval query", matrixerrors.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = r.topK
	}

	qv, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	fetch := topK
	if r.lambda > 0 {
		fetch = topK * candidatePool
	}
	found, err := r.store.Search(ctx, qv, fetch)
	if err != nil {
		return nil, fmt.Errorf("search guidelines: %w", err)
	}
	if r.lambda > 0 {
		found = mmr(found, r.lambda, topK)
	}

	hits := make([]Hit, 0, len(found))
	for _, e := range found {
		hits = append(hits, Hit{Source: e.Source, Text: e.Text, Similarity: vector.Round4(e.Score)})
	}
	hits = r.trim(hits)
	r.logger.Debug("retrieved guideline excerpts", "query", query, "hits", len(hits))
	return hits, nil
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(query); ok {
			return v, nil
		}
	}
	v, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if r.cache != nil {
		r.cache.Add(query, v)
	}
	return v, nil
}

func (r *Retriever) trim(hits []Hit) []Hit {
	if r.counter == nil || r.budget <= 0 || len(hits) <= 1 {
		return hits
	}
	used := 0
	for i, h := range hits {
		used += r.counter.CountTokens(formatHit(i, h))
		if used > r.budget && i > 0 {
			r.logger.Debug("guideline context over token budget", "kept", i, "budget", r.budget)
			return hits[:i]
		}
	}
	return hits
}

// FormatContext renders hits as numbered excerpts separated by blank lines.
func FormatContext(hits []Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = formatHit(i, h)
	}
	return strings.Join(parts, "\n\n")
}

func formatHit(i int, h Hit) string {
	return fmt.Sprintf("[%d] (%s, similarity %v):\n%s", i+1, h.Source, h.Similarity, h.Text)
}

// References lists the sources of hits in order.
func References(hits []Hit) []string {
	refs := make([]string, len(hits))
	for i, h := range hits {
		refs[i] = h.Source
	}
	return refs
}

// FallbackContext is the built-in excerpt set used when retrieval fails.
func FallbackContext(riskLevel string) string {
	if riskLevel == "severe" || riskLevel == "high" {
		return "[WHO 2011 — Severe Preeclampsia]: Magnesium sulphate is the drug of choice for " +
			"preventing and treating eclampsia. Give a 4g IV loading dose over 20 minutes, then " +
			"1g/hr IV maintenance for 24 hours after the last seizure.\n\n" +
			"[WHO 2011 — Antihypertensives]: Start antihypertensive treatment when BP is at or above " +
			"160/110 mmHg. IV labetalol, oral nifedipine or IV hydralazine are appropriate.\n\n" +
			"[NICE NG133 2019]: Severe hypertension should be treated with IV labetalol first-line " +
			"unless contraindicated."
	}
	return "[WHO 2011 — Mild Hypertension]: Check blood pressure at every antenatal visit. " +
		"Women with BP 140-159/90-109 and no proteinuria are managed expectantly under close " +
		"surveillance, with antihypertensives if BP rises above 150/100."
}
