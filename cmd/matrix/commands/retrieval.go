package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/config"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/embedder/hashing"
	openaiembed "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/embedder/openai"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/tokenizer/tiktoken"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/vector/inmemory"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/contrib/vector/pg"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/guidelines"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/vector"
)

// retrieval bundles the guideline store with the embedder that fills it.
type retrieval struct {
	store     vector.VectorStore
	embedder  vector.Embedder
	retriever *guidelines.Retriever
}

func (a *app) initRetrieval(ctx context.Context) error {
	rc := a.cfg.Retrieval

	embedder, err := newEmbedder(rc)
	if err != nil {
		return err
	}

	var vs vector.VectorStore
	switch strings.ToLower(rc.Backend) {
	case "", "memory":
		vs = inmemory.NewInMemoryVectorStore()
	case "pgvector":
		store, err := pg.NewPGVectorStore(ctx, &pg.PGVectorConfig{
			Host:      rc.Postgres.Host,
			Port:      rc.Postgres.Port,
			User:      rc.Postgres.User,
			Password:  rc.Postgres.Password,
			DBName:    rc.Postgres.DBName,
			SSLMode:   rc.Postgres.SSLMode,
			Dimension: embedder.Dimension(),
			TableName: rc.PGTableName,
		})
		if err != nil {
			return fmt.Errorf("guideline store: %w", err)
		}
		a.health.Register("retrieval:pgvector", store)
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		vs = store
	default:
		return fmt.Errorf("unknown retrieval backend %q", rc.Backend)
	}

	opts := []guidelines.Option{
		guidelines.WithTopK(rc.TopK),
		guidelines.WithDiversity(rc.Diversity),
		guidelines.WithLogger(logging.WithComponent("guidelines")),
	}
	if rc.TokenBudget > 0 {
		counter, err := tiktoken.NewTiktokenTokenizer(rc.Encoding)
		if err != nil {
			return fmt.Errorf("tokenizer %q: %w", rc.Encoding, err)
		}
		opts = append(opts, guidelines.WithTokenBudget(counter, rc.TokenBudget))
	}
	retriever, err := guidelines.NewRetriever(vs, embedder, rc.CacheSize, opts...)
	if err != nil {
		return err
	}
	a.retrieval = &retrieval{store: vs, embedder: embedder, retriever: retriever}

	// The in-memory store starts empty on every process, so it is always seeded.
	if rc.SeedOnStart || strings.ToLower(rc.Backend) != "pgvector" {
		chunks, err := guidelines.DefaultCorpus()
		if err != nil {
			return err
		}
		if _, err := guidelines.Ingest(ctx, vs, embedder, chunks, logging.WithComponent("guidelines")); err != nil {
			return err
		}
	}
	return nil
}

func newEmbedder(rc config.RetrievalConfig) (vector.Embedder, error) {
	switch strings.ToLower(rc.Embedder) {
	case "", "hashing":
		return hashing.New(rc.Dimension), nil
	case "openai":
		if rc.OpenAIKey == "" {
			return nil, fmt.Errorf("openai embedder needs retrieval.openai_api_key")
		}
		return openaiembed.New(rc.OpenAIKey, rc.OpenAIURL, rc.OpenAIModel, rc.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", rc.Embedder)
	}
}
