package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DeclinePhrase is the exact reply used when the document does not contain
// the answer. The generator instructs the model to emit it verbatim, and the
// orchestrator short-circuits to it when retrieval comes back empty.
const DeclinePhrase = "I don't know based on the provided document."

const systemPrompt = `You are a document question-answering assistant.

Answer the user's question using ONLY the numbered context passages below.
Each passage is labeled [n] with its page number.

Rules:
- Base every statement on the passages. Do not use outside knowledge.
- Cite the passages you used with their markers, e.g. [1] or [2][3].
- If the passages do not contain the answer, reply with exactly:
  ` + DeclinePhrase + `
- Keep the answer concise and factual.

Context passages:

%s`

// Generator produces grounded answers with an eino ChatModel.
type Generator struct {
	chat    model.BaseChatModel
	backend string
}

// NewGenerator wires a Generator around a chat model. backend is only used
// to label errors (e.g. "ollama").
func NewGenerator(chat model.BaseChatModel, backend string) (*Generator, error) {
	if chat == nil {
		return nil, errors.New("answer: chat model is required")
	}
	if backend == "" {
		backend = "llm"
	}
	return &Generator{chat: chat, backend: backend}, nil
}

func buildMessages(question, contextBlock string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(systemPrompt, contextBlock)),
		schema.UserMessage(question),
	}
}

// Generate returns the complete answer for a question over the given context
// block. Backend faults come back as *GenerationError.
func (g *Generator) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	msg, err := g.chat.Generate(ctx, buildMessages(question, contextBlock))
	if err != nil {
		return "", &GenerationError{Backend: g.backend, Err: err}
	}
	return strings.TrimSpace(msg.Content), nil
}

// Stream writes answer fragments to w as they arrive and returns the full
// accumulated answer. A mid-stream receive or write failure is reported as
// *GenerationError; fragments already written stay written.
func (g *Generator) Stream(ctx context.Context, question, contextBlock string, w io.Writer) (string, error) {
	sr, err := g.chat.Stream(ctx, buildMessages(question, contextBlock))
	if err != nil {
		return "", &GenerationError{Backend: g.backend, Err: err}
	}
	defer sr.Close()

	var buf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return buf.String(), &GenerationError{Backend: g.backend, Err: fmt.Errorf("stream receive: %w", err)}
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		buf.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return buf.String(), &GenerationError{Backend: g.backend, Err: fmt.Errorf("stream write: %w", err)}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
