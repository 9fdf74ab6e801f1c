package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Actions []string
	Limit   int
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit ledger",
		Long: `Print audit records in sequence order. Without --db the ledger only
holds what boot recorded in this process.

Example:
  codex audit --db codex.db
  codex audit --db codex.db --action fusion.resolve --limit 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Actions, "action", nil, "only show these actions (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last n records (0 for all)")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.Limit < 0 {
		return f.Fail("invalid flags", ir.InvalidArgument("--limit must not be negative"))
	}

	return withEngine(cmd, opts.RootOptions, f, func(ctx context.Context, e *engine.Engine) error {
		records, err := e.Audit(ctx)
		if err != nil {
			return f.Fail("load audit ledger failed", err)
		}
		records = filterAudit(records, opts.Actions, opts.Limit)
		return f.Emit(records, func(w io.Writer) {
			for _, r := range records {
				fmt.Fprintf(w, "%6d  %s  %-20s %-10s %s\n",
					r.Seq, r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
					r.Action, r.Actor, strings.Join(r.EntityIDs, ","))
			}
		})
	})
}

func filterAudit(records []ir.AuditRecord, actions []string, limit int) []ir.AuditRecord {
	out := make([]ir.AuditRecord, 0, len(records))
	for _, r := range records {
		if len(actions) == 0 || slices.Contains(actions, r.Action) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
