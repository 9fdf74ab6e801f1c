package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health [id]",
		Short: "Show entity health",
		Long: `Without an id, show the aggregate health report. With an id, show the
record of one entity.

Example:
  codex health
  codex health node_12 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(cmd, rootOpts, f, func(_ context.Context, e *engine.Engine) error {
				if len(args) == 1 {
					rec, err := e.GetHealth(args[0])
					if err != nil {
						return f.Fail("health lookup failed", err)
					}
					return f.Emit(rec, func(w io.Writer) {
						writeHealthRecord(w, rec)
					})
				}
				report := e.GetHealthReport()
				return f.Emit(report, func(w io.Writer) {
					fmt.Fprintf(w, "overall health: %.4f across %d entities\n", report.OverallHealth, len(report.PerEntity))
					if len(report.CriticalEntities) > 0 {
						fmt.Fprintf(w, "critical: %v\n", report.CriticalEntities)
					}
					for _, v := range report.Violations {
						fmt.Fprintf(w, "violation %s: %s\n", v.Kind, v.Message)
					}
				})
			})
		},
	}
}

func writeHealthRecord(w io.Writer, rec ir.HealthRecord) {
	fmt.Fprintf(w, "%s: %.4f (%s)\n", rec.EntityID, rec.Value, rec.Severity)
	fmt.Fprintf(w, "  decay: %g/s  regen: %g\n", rec.DecayRate, rec.RegenRate)
	for _, a := range rec.ActiveAlerts {
		fmt.Fprintf(w, "  alert %s below %.2f\n", a.Severity, a.Threshold)
	}
}
