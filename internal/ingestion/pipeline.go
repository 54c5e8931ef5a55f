package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/docchat/docchat-go/internal/rag"
)

const (
	// embedBatchSize is how many chunk texts are sent per embedding request.
	embedBatchSize = 100
	// maxConcurrentBatches bounds in-flight embedding requests.
	maxConcurrentBatches = 4
)

// Progress reports pipeline stage transitions to the caller. Fields are
// cumulative: Embedded counts chunks whose vectors have arrived so far.
type Progress struct {
	Stage    string
	Pages    int
	Chunks   int
	Embedded int
}

// Config holds the tunable parameters of an ingestion run.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// OnProgress, when set, is called after each stage and after every
	// embedded batch. It must be safe for concurrent use.
	OnProgress func(Progress)
}

// Pipeline ingests documents: extract, clean, chunk, embed, store. A run
// replaces all previously stored chunks for the same source.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	chunker  *Chunker
	cfg      Config
	log      *slog.Logger
}

// NewPipeline wires an ingestion pipeline. embedder and store are required.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("ingestion: embedder is required")
	}
	if store == nil {
		return nil, errors.New("ingestion: store is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:      cfg,
		log:      log,
	}, nil
}

// IngestPDF extracts a PDF from disk and ingests it under the given source
// name. It returns the number of chunks stored.
func (p *Pipeline) IngestPDF(ctx context.Context, path, source string) (int, error) {
	pages, err := ExtractPDF(path)
	if err != nil {
		return 0, err
	}
	p.report(Progress{Stage: "extracted", Pages: len(pages)})
	return p.IngestPages(ctx, source, pages)
}

// IngestPages chunks, embeds, and stores pre-extracted pages. Nothing is
// written to the store until every chunk has an embedding, so a failed run
// never leaves a source half-replaced.
func (p *Pipeline) IngestPages(ctx context.Context, source string, pages []Page) (int, error) {
	if source == "" {
		return 0, errors.New("ingestion: source name is required")
	}
	for i := range pages {
		pages[i].Text = CleanText(pages[i].Text)
	}
	chunks := p.chunker.ChunkPages(source, p.embedder.ModelID(), pages)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("ingestion: no text extracted for source %q", source)
	}
	p.report(Progress{Stage: "chunked", Pages: len(pages), Chunks: len(chunks)})

	if err := p.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}

	if err := p.store.Upsert(ctx, source, chunks); err != nil {
		return 0, err
	}
	p.report(Progress{Stage: "stored", Pages: len(pages), Chunks: len(chunks), Embedded: len(chunks)})
	p.log.InfoContext(ctx, "document ingested",
		slog.String("source", source),
		slog.Int("pages", len(pages)),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// embedChunks fills the Embedding field of every chunk in place, batching
// requests and running up to maxConcurrentBatches batches in parallel.
// Transient backend failures are retried with exponential backoff.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []rag.Chunk) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		embedded int
		sem      = make(chan struct{}, maxConcurrentBatches)
	)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			vectors, err := p.embedBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			embedded += len(batch)
			p.report(Progress{Stage: "embedding", Chunks: len(chunks), Embedded: embedded})
		}()
	}
	wg.Wait()
	return firstErr
}

// embedBatch embeds one batch of chunk texts, retrying transient failures.
// A context cancellation aborts the retry loop immediately.
func (p *Pipeline) embedBatch(ctx context.Context, batch []rag.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	var vectors [][]float32
	operation := func() error {
		var err error
		vectors, err = p.embedder.Embed(ctx, texts)
		if err != nil {
			p.log.WarnContext(ctx, "embedding batch failed, retrying", slog.String("error", err.Error()))
			return err
		}
		if len(vectors) != len(texts) {
			return backoff.Permanent(&rag.EmbeddingError{
				Backend: p.embedder.ModelID(),
				Err:     fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts)),
			})
		}
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) report(pr Progress) {
	if p.cfg.OnProgress != nil {
		p.cfg.OnProgress(pr)
	}
}
