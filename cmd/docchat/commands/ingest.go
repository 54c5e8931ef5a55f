package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docchat/docchat-go/internal/ingestion"
	"github.com/docchat/docchat-go/internal/logging"
)

// NewIngestCmd constructs the `docchat ingest` command, which extracts a PDF,
// chunks and embeds its text, and stores the chunks in the vector store.
func NewIngestCmd() *cobra.Command {
	var file string
	var source string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a PDF document into the vector store",
		Long: `Extract, chunk, embed, and store a PDF document.

Re-ingesting a document under the same source name replaces all of its
previously stored chunks, so updated documents never leave stale text
behind. Other documents are unaffected.

The vector store backend is selected with VECTOR_STORE (sqlite or qdrant,
default sqlite) and the embedding backend with EMBEDDING_PROVIDER.

Examples:
  docchat ingest --file ./manual.pdf
  docchat ingest --file ./manual.pdf --source manual-v2
  docchat ingest --file ./manual.pdf --chunk-size 800 --chunk-overlap 80`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if file == "" {
				return fmt.Errorf("ingest: --file is required")
			}
			if source == "" {
				source = filepath.Base(file)
			}
			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = getEnvInt("CHUNK_SIZE", chunkSize)
			}
			if !cmd.Flags().Changed("chunk-overlap") {
				chunkOverlap = getEnvInt("CHUNK_OVERLAP", chunkOverlap)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, _, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(emb, store, ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				OnProgress: func(p ingestion.Progress) {
					log.Info("ingestion progress",
						slog.String("stage", p.Stage),
						slog.Int("pages", p.Pages),
						slog.Int("chunks", p.Chunks),
						slog.Int("embedded", p.Embedded),
					)
				},
			}, log)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("file", file),
				slog.String("source", source))

			n, err := pipeline.IngestPDF(ctx, file, source)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("ingested %q as source %q: %d chunks stored\n", file, source, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the PDF document to ingest (required)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source name for the document (default: file basename)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "Target chunk length in characters")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 100, "Characters shared between consecutive chunks")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
