package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/codex/internal/api"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with the scheduler running",
		Long: `Boot the engine, start the pass scheduler and serve the JSON API and
Prometheus metrics until SIGINT or SIGTERM.

Example:
  codex serve --addr :8080 --mappings ./mappings --db codex.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := bootEngine(ctx, opts.RootOptions, engine.WithMetrics(metrics.New(true)))
	if err != nil {
		return f.Fail("engine boot failed", err)
	}
	defer func() {
		if derr := e.Dispose(); derr != nil {
			f.VerboseLog("dispose: %v", derr)
		}
	}()

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.New(e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.Run(gctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, opts.Addr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	return nil
}
