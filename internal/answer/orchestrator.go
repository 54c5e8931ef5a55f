package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/docchat/docchat-go/internal/rag"
)

// Answer is the result of one question: the generated text plus the context
// entries its citation markers refer to. Sources is empty when the system
// declined for lack of context.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Orchestrator runs the full question path: retrieve, assemble, generate.
type Orchestrator struct {
	retriever rag.Retriever
	assembler *Assembler
	generator *Generator
	topK      int
	log       *slog.Logger
}

// OrchestratorConfig wires an Orchestrator. Retriever and Generator are
// required; TopK defaults to the retriever's own default when zero.
type OrchestratorConfig struct {
	Retriever        rag.Retriever
	Generator        *Generator
	TopK             int
	MaxContextTokens int
	Logger           *slog.Logger
}

// NewOrchestrator validates the config and returns a ready Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("answer: retriever is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("answer: generator is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		retriever: cfg.Retriever,
		assembler: NewAssembler(cfg.MaxContextTokens),
		generator: cfg.Generator,
		topK:      cfg.TopK,
		log:       log,
	}, nil
}

// Ask answers a question from the ingested documents. A blank question is
// rejected with ErrInvalidQuery. When retrieval finds nothing, the decline
// phrase is returned with no sources and the chat backend is never called.
func (o *Orchestrator) Ask(ctx context.Context, question string, f rag.Filter) (Answer, error) {
	contextBlock, sources, err := o.prepare(ctx, question, f)
	if err != nil {
		return Answer{}, err
	}
	if contextBlock == "" {
		return Answer{Text: DeclinePhrase}, nil
	}

	text, err := o.generator.Generate(ctx, question, contextBlock)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: sources}, nil
}

// AskStream is Ask with incremental delivery: answer fragments are written
// to w as they arrive. The decline path writes the phrase once and returns.
func (o *Orchestrator) AskStream(ctx context.Context, question string, f rag.Filter, w io.Writer) (Answer, error) {
	contextBlock, sources, err := o.prepare(ctx, question, f)
	if err != nil {
		return Answer{}, err
	}
	if contextBlock == "" {
		if _, err := io.WriteString(w, DeclinePhrase); err != nil {
			return Answer{}, err
		}
		return Answer{Text: DeclinePhrase}, nil
	}

	text, err := o.generator.Stream(ctx, question, contextBlock, w)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Sources: sources}, nil
}

// prepare validates the question, retrieves matching chunks, and assembles
// the context block. An empty block signals the decline path.
func (o *Orchestrator) prepare(ctx context.Context, question string, f rag.Filter) (string, []Source, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, ErrInvalidQuery
	}

	matches, err := o.retriever.Retrieve(ctx, question, o.topK, f)
	if err != nil {
		return "", nil, err
	}
	if len(matches) == 0 {
		o.log.InfoContext(ctx, "no relevant chunks found, declining",
			slog.String("source", f.Source))
		return "", nil, nil
	}

	contextBlock, sources := o.assembler.Assemble(matches)
	o.log.DebugContext(ctx, "context assembled",
		slog.Int("matches", len(matches)),
		slog.Int("cited", len(sources)))
	return contextBlock, sources, nil
}
