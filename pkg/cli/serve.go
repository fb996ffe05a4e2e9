package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/caresim-lab/caseflow/pkg/cli/config"
	httpctrl "github.com/caresim-lab/caseflow/pkg/controller/http"
	"github.com/caresim-lab/caseflow/pkg/repository/memory"
	"github.com/caresim-lab/caseflow/pkg/usecase"
	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var localEmbedder bool
	var appCfg config.AppConfig
	var geminiCfg config.Gemini
	var visionCfg config.Vision

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CASEFLOW_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "local-embedder",
			Usage:       "Use the deterministic in-process embedder instead of the embedding API",
			Sources:     cli.EnvVars("CASEFLOW_LOCAL_EMBEDDER"),
			Destination: &localEmbedder,
		},
	}

	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, visionCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			deps, err := buildDeps(ctx, &geminiCfg, &visionCfg, &appCfg, localEmbedder)
			if err != nil {
				return goerr.Wrap(err, "failed to assemble pipeline dependencies")
			}

			repo := memory.New()
			uc := usecase.New(repo, deps)

			srv, err := httpctrl.New(uc)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
