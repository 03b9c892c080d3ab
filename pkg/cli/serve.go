package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/vaidya-health/vaidya/pkg/cli/config"
	httpctrl "github.com/vaidya-health/vaidya/pkg/controller/http"
	"github.com/vaidya-health/vaidya/pkg/service/triage"
	"github.com/vaidya-health/vaidya/pkg/service/worker"
	"github.com/vaidya-health/vaidya/pkg/utils/async"
	"github.com/vaidya-health/vaidya/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var syncInterval time.Duration
	var skipKnowledge bool
	var compCfg componentConfig
	var artifactCfg config.Artifact

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("VAIDYA_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "index-sync-interval",
			Usage:       "Interval to reload the vector index from the repository (0 disables; useful with a shared firestore backend)",
			Sources:     cli.EnvVars("VAIDYA_INDEX_SYNC_INTERVAL"),
			Destination: &syncInterval,
		},
		&cli.BoolFlag{
			Name:        "skip-knowledge",
			Usage:       "Do not index the configured medical knowledge base at startup",
			Sources:     cli.EnvVars("VAIDYA_SKIP_KNOWLEDGE"),
			Destination: &skipKnowledge,
		},
	}

	// Add shared config flags
	flags = append(flags, compCfg.Flags()...)
	flags = append(flags, artifactCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			comp, err := buildComponents(ctx, &compCfg)
			if err != nil {
				return err
			}
			defer comp.Close()

			store, closeStore, err := artifactCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to open artifact store")
			}
			defer closeStore()

			loader := triage.NewLoader(store)
			uc := comp.useCases(loader)

			// Model loading and knowledge indexing run in the background; /health reports
			// unavailable until the models are loaded.
			async.Dispatch(ctx, func(ctx context.Context) error {
				bundle, err := loader.Get(ctx)
				if err != nil {
					return goerr.Wrap(err, "failed to load triage models")
				}
				logging.From(ctx).Info("Triage models loaded", "bundle_id", bundle.ID, "trained_at", bundle.TrainedAt)
				return nil
			})
			if !skipKnowledge {
				async.Dispatch(ctx, comp.seedKnowledge)
			}

			var syncWorker *worker.IndexSyncWorker
			if syncInterval > 0 {
				syncWorker = worker.NewIndexSyncWorker(comp.index, syncInterval)
				if err := syncWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start index sync worker")
				}
			}

			httpHandler := httpctrl.New(uc, httpctrl.WithReadiness(func(ctx context.Context) error {
				_, err := loader.Get(context.WithoutCancel(ctx))
				return err
			}))
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server",
					"addr", addr,
					"llm", slog.GroupValue(compCfg.llm.LogAttrs()...),
					"embedding", slog.GroupValue(compCfg.embedding.LogAttrs()...),
					"cache", slog.GroupValue(compCfg.cache.LogAttrs()...),
					"artifact", slog.GroupValue(artifactCfg.LogAttrs()...),
				)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if syncWorker != nil {
					syncWorker.Stop()
				}

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Attempt graceful shutdown
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
