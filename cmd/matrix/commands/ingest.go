package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/guidelines"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
)

var (
	ingestFile   string
	ingestSource string
	ingestForce  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load guideline excerpts into the retrieval store",
	Long: `Embeds a guideline corpus into the configured retrieval backend. Without
--file the built-in WHO/NICE excerpts are used. YAML files use the corpus
layout; Markdown files are split by heading.

A populated store is left alone unless --force is given.`,
	Example: `  matrix ingest
  matrix ingest --file who-2011.md --source "WHO 2011" --force`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "corpus file (.yaml, .yml or .md)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source label for Markdown files (default: file name)")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "clear the store before ingesting")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chunks, err := loadChunks(ingestFile, ingestSource)
	if err != nil {
		return err
	}

	// Seeding is this command's job.
	cfg.Retrieval.SeedOnStart = false

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, appOptions{withRetrieval: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	vs := a.retrieval.store
	if ingestForce {
		if err := vs.Clear(ctx); err != nil {
			return fmt.Errorf("clear guideline store: %w", err)
		}
	}
	n, err := guidelines.Ingest(ctx, vs, a.retrieval.embedder, chunks, logging.WithComponent("ingest"))
	if err != nil {
		return err
	}
	total, err := vs.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks, store holds %d\n", n, total)
	return nil
}

func loadChunks(path, source string) ([]guidelines.Chunk, error) {
	if path == "" {
		return guidelines.DefaultCorpus()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		if source == "" {
			source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return guidelines.NewMarkdownSplitter().Split(source, data)
	case ".yaml", ".yml":
		return guidelines.ParseCorpus(data)
	default:
		return nil, fmt.Errorf("unsupported corpus file %q", path)
	}
}
