package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docchat/docchat-go/internal/logging"
	"github.com/docchat/docchat-go/internal/rag"
)

// NewAskCmd constructs the `docchat ask` command, which answers a single
// question from the ingested documents and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your ingested documents",
		Long: `Ask a natural language question about previously ingested documents.

The answer is generated strictly from the stored document text. Citation
markers like [1] refer to the source list printed after the answer, each
with its page number.

Examples:
  docchat ask "what is the recommended daily protein intake?"
  docchat ask --source manual.pdf "how do I reset the device?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, providerCfg, err := buildProvider(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			store, _, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer store.Close()

			orch, err := buildOrchestrator(chatModel, string(providerCfg.Backend), emb, store, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			ans, err := orch.AskStream(ctx, args[0], rag.Filter{Source: source}, os.Stdout)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Println()

			if len(ans.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range ans.Sources {
					fmt.Printf("  [%d] %s, p. %d\n", s.Ref, s.Document, s.Page)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Restrict retrieval to one ingested document")

	return cmd
}
