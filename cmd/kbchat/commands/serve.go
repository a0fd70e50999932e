package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/kbchat-go/internal/logging"
	"github.com/54b3r/kbchat-go/internal/server"
	"github.com/54b3r/kbchat-go/internal/tracing"
)

// NewServeCmd returns the serve command, which runs the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the knowledge-base chat HTTP API",
		Long: `Serve starts the HTTP API exposing POST /chat and GET /health.

The index is bootstrapped lazily: the first request that needs it attaches to
an existing vector collection or builds one from the content source. Every
chat request then re-checks the source and refreshes the index when the
corpus has changed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Optional Langfuse tracing. No-op unless LANGFUSE_* is set.
			if handler, flush, enabled := tracing.Setup(); enabled {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			st, err := buildStack(ctx, log, registry)
			if err != nil {
				return err
			}
			defer st.close()

			srv, err := server.New(st.pipeline, st.engine, &server.Config{
				Host:            host,
				Port:            port,
				ReadTimeout:     30 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				Logger:          log,
				Environment:     os.Getenv("APP_ENV"),
				Pingers: []server.Pinger{
					server.NewStorePinger(st.store),
					server.NewSourcePinger(st.sourceURL),
				},
				RateLimit:       envFloat("KBCHAT_RATE_LIMIT", 0),
				RateBurst:       envInt("KBCHAT_RATE_BURST", 0),
				MetricsRegistry: registry,
				MetricsGatherer: registry,
				Info: server.HealthInfo{
					Collection:       st.collection,
					ChatModel:        st.providerCfg.ModelName(),
					EmbeddingBackend: st.embedBackend,
					TopK:             st.topK,
				},
			})
			if err != nil {
				return fmt.Errorf("initialising server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", envOrDefault("HOST", "0.0.0.0"), "interface to bind")
	cmd.Flags().IntVar(&port, "port", envInt("PORT", 3000), "port to listen on")

	return cmd
}
