package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// PassOptions holds flags for the pass command.
type PassOptions struct {
	*RootOptions
	Count int
}

// NewPassCommand creates the pass command.
func NewPassCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run global synchronization passes",
		Long: `Run one or more global synchronization passes back to back and print
their summaries. Each pass also runs the soft integrity validation.

Example:
  codex pass
  codex pass --count 3 --db codex.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of passes to run")

	return cmd
}

func runPass(opts *PassOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Count < 1 {
		return f.Fail("invalid flags", ir.InvalidArgument("--count must be at least 1, got %d", opts.Count))
	}

	return withEngine(cmd, opts.RootOptions, f, func(ctx context.Context, e *engine.Engine) error {
		summaries := make([]ir.PassSummary, 0, opts.Count)
		for i := 0; i < opts.Count; i++ {
			s, err := e.RunGlobalPass(ctx)
			if err != nil {
				return f.Fail("pass failed", err)
			}
			e.Flush(ctx)
			summaries = append(summaries, s)
			f.VerboseLog("pass %d: processed %d", s.Seq, s.Processed)
		}
		return f.Emit(summaries, func(w io.Writer) {
			for _, s := range summaries {
				writePassSummary(w, s)
			}
		})
	})
}

func writePassSummary(w io.Writer, s ir.PassSummary) {
	state := "complete"
	switch {
	case s.Cancelled:
		state = "cancelled"
	case s.Partial:
		state = "partial"
	}
	fmt.Fprintf(w, "pass %d [%s]\n", s.Seq, state)
	fmt.Fprintf(w, "  processed:        %d\n", s.Processed)
	fmt.Fprintf(w, "  pairs scored:     %d\n", s.PairsScored)
	fmt.Fprintf(w, "  global resonance: %.6f\n", s.GlobalResonance)
	fmt.Fprintf(w, "  alerts raised:    %d\n", s.AlertsRaised)
	fmt.Fprintf(w, "  violations:       %d\n", s.Violations)
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "  failed:           %v (retried %d)\n", s.Failed, s.Retried)
	}
}
