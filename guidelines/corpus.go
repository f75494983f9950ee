// Package guidelines holds the curated obstetric guideline corpus and the
// retrieval layer the guideline step grounds its plans on.
package guidelines

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

//go:embed corpus.yaml
var corpusYAML []byte

// Chunk is one guideline excerpt.
type Chunk struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Text   string `yaml:"text"`
}

type corpusDoc struct {
	Chunks []Chunk `yaml:"chunks"`
}

// DefaultCorpus returns the embedded WHO/NICE excerpt set.
func DefaultCorpus() ([]Chunk, error) {
	return ParseCorpus(corpusYAML)
}

// ParseCorpus decodes a corpus document. Every chunk needs an id and text.
func ParseCorpus(data []byte) ([]Chunk, error) {
	var doc corpusDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse corpus: %w", matrixerrors.ErrInvalidInput, err)
	}
	seen := make(map[string]struct{}, len(doc.Chunks))
	for i, c := range doc.Chunks {
		if c.ID == "" || c.Text == "" {
			return nil, fmt.Errorf("%w: chunk %d missing id or text", matrixerrors.ErrInvalidInput, i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %q", matrixerrors.ErrInvalidInput, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return doc.Chunks, nil
}

// Ingest embeds and stores chunks. A store that already holds rows is left
// untouched and Ingest reports zero inserted.
func Ingest(ctx context.Context, store vector.VectorStore, embedder vector.Embedder, chunks []Chunk, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count guideline chunks: %w", err)
	}
	if count > 0 {
		logger.Info("guideline store already populated, skipping ingestion", "rows", count)
		return 0, nil
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed guideline chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			matrixerrors.ErrMalformedOutput, len(vectors), len(chunks))
	}

	for i, c := range chunks {
		if err := store.AddEmbedding(ctx, &vector.Embedding{
			ID:     c.ID,
			Source: c.Source,
			Text:   c.Text,
			Vector: vectors[i],
		}); err != nil {
			return i, fmt.Errorf("store chunk %s: %w", c.ID, err)
		}
		logger.Debug("ingested guideline chunk", "id", c.ID, "source", c.Source)
	}
	logger.Info("ingested guideline chunks", "count", len(chunks))
	return len(chunks), nil
}
