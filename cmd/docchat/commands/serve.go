package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/docchat/docchat-go/internal/logging"
	"github.com/docchat/docchat-go/internal/server"
	"github.com/docchat/docchat-go/internal/tracing"
)

// NewServeCmd constructs the `docchat serve` command, which starts the HTTP
// query API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docchat HTTP query API",
		Long: `Start the docchat HTTP server on localhost.

The server exposes POST /api/query (JSON answer), POST /api/chat (SSE
streaming), plus health, readiness, and Prometheus metrics endpoints.
Documents must be ingested first with 'docchat ingest'.

Examples:
  docchat serve
  docchat serve --port 9090
  MODEL_PROVIDER=azure docchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Flags win over env; env (possibly set from YAML) wins over defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCCHAT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCCHAT_PORT", port)
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, providerCfg, err := buildProvider(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, storeName, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer store.Close()

			orch, err := buildOrchestrator(chatModel, string(providerCfg.Backend), emb, store, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(orch, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(storeName, store),
				APIKey:  os.Getenv("DOCCHAT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
