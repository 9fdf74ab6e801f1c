package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/engine"
)

// newFormatter builds the formatter for a command. Verbose logs go to
// stderr to avoid corrupting JSON.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// bootEngine loads the configuration named by --config and boots an engine
// over --mappings and --db. The caller must Dispose it.
func bootEngine(ctx context.Context, opts *RootOptions, extra ...engine.Option) (*engine.Engine, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	eopts := []engine.Option{engine.WithMappingDir(opts.Mappings)}
	if opts.Database != "" {
		eopts = append(eopts, engine.WithStorePath(opts.Database))
	}
	return engine.New(ctx, cfg, append(eopts, extra...)...)
}

// withEngine boots an engine, runs fn and disposes the engine. Boot
// failures are reported through f.
func withEngine(cmd *cobra.Command, opts *RootOptions, f *OutputFormatter, fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx := commandContext(cmd)
	e, err := bootEngine(ctx, opts)
	if err != nil {
		return f.Fail("engine boot failed", err)
	}
	defer func() {
		if derr := e.Dispose(); derr != nil {
			f.VerboseLog("dispose: %v", derr)
		}
	}()
	return fn(ctx, e)
}
