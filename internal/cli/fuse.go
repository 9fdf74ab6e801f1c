package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// FuseOptions holds flags for the fuse command.
type FuseOptions struct {
	*RootOptions
	Type    string
	Consent bool
	Resolve bool
	Abort   string
}

// NewFuseCommand creates the fuse command.
func NewFuseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FuseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fuse <id> <id> [id...]",
		Short: "Run a fusion session",
		Long: `Create a fusion session over two or more entities and drive it through
its lifecycle in one process. Sessions are in-memory; with --db, closed
sessions are archived and every transition lands in the audit ledger.

--resolve implies --consent. --abort closes the session with the given
reason after the other steps.

Example:
  codex fuse card_0_fool node_1 --type alchemical
  codex fuse card_0_fool node_1 --type alchemical --resolve --db codex.db
  codex fuse card_0_fool node_1 --type ritual --consent --abort "changed mind"`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuse(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "fusion type (required)")
	cmd.Flags().BoolVar(&opts.Consent, "consent", false, "confirm consent after creating")
	cmd.Flags().BoolVar(&opts.Resolve, "resolve", false, "resolve the session (implies --consent)")
	cmd.Flags().StringVar(&opts.Abort, "abort", "", "abort the session with this reason")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runFuse(opts *FuseOptions, cmd *cobra.Command, ids []string) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Resolve && opts.Abort != "" {
		return f.Fail("invalid flags", ir.InvalidArgument("--resolve and --abort are mutually exclusive"))
	}

	return withEngine(cmd, opts.RootOptions, f, func(ctx context.Context, e *engine.Engine) error {
		s, err := e.CreateFusionSession(ctx, ids, opts.Type)
		if err != nil {
			return f.Fail("create session failed", err)
		}
		f.VerboseLog("created %s", s.ID)

		if opts.Consent || opts.Resolve {
			if s, err = e.ConfirmConsent(ctx, s.ID); err != nil {
				return f.Fail("consent failed", err)
			}
			f.VerboseLog("consented %s", s.ID)
		}
		if opts.Resolve {
			if s, err = e.Resolve(ctx, s.ID); err != nil {
				return f.Fail("resolve failed", err)
			}
		}
		if opts.Abort != "" {
			if s, err = e.Abort(ctx, s.ID, opts.Abort); err != nil {
				return f.Fail("abort failed", err)
			}
		}

		return f.Emit(s, func(w io.Writer) {
			writeSession(w, s)
		})
	})
}

func writeSession(w io.Writer, s ir.FusionSession) {
	fmt.Fprintf(w, "session %s [%s]\n", s.ID, s.State)
	fmt.Fprintf(w, "  type:         %s (intensity %d)\n", s.FusionType, s.Intensity)
	fmt.Fprintf(w, "  participants: %s\n", strings.Join(s.ParticipantIDs, ", "))
	fmt.Fprintf(w, "  protocols:    %s\n", strings.Join(s.SafetyProtocols, ", "))
	if s.AbortReason != "" {
		fmt.Fprintf(w, "  aborted:      %s\n", s.AbortReason)
	}
	if o := s.Outcome; o != nil {
		fmt.Fprintf(w, "  outcome:      %s, phi %.4f, stability %.4f\n", o.DominantElement, o.PhiScore, o.Stability)
		fmt.Fprintf(w, "  capabilities: %s\n", strings.Join(o.Capabilities, ", "))
		fmt.Fprintf(w, "  digest:       %s\n", o.Digest)
	}
}
