package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openaisdk.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder implements vector.Embedder against the embeddings endpoint.
// Vectors are truncated or zero-padded to the configured dimension and then
// L2-normalised so they can share a table with the hashing embedder.
type OpenAIEmbedder struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

var _ vector.Embedder = (*OpenAIEmbedder)(nil)

// New creates an OpenAIEmbedder.
func New(apiKey, baseURL, model string, dimension int) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIEmbedder{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.EmbeddingModel(model),
		dimension: dimension,
	}
}

// Dimension return number of embedding dimensions
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", matrixerrors.ErrModelUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to embeddings
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 && strings.HasPrefix(string(e.model), "text-embedding-3") {
		params.Dimensions = openaisdk.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: create embeddings: %w", matrixerrors.ErrModelUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", matrixerrors.ErrMalformedOutput, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for i, emb := range resp.Data {
		out[i] = vector.Normalize(convertVector(emb.Embedding, e.dimension))
	}
	return out, nil
}

func convertVector(input []float64, expected int) []float32 {
	if expected <= 0 {
		expected = len(input)
	}
	vec := make([]float32, expected)
	for i := 0; i < len(input) && i < expected; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}
