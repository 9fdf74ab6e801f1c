package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/artifact"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	WriteMappings string
	MappingFormat string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the boot integrity check",
		Long: `Boot the engine and report the hard integrity pass.

Fatal violations (duplicate ids, duplicate components, count mismatches)
fail with exit code 1. A missing or malformed mapping artifact disables the
feature it gates and is reported without failing.

With --write-mappings, the card/lattice mapping derived from the current
configuration is written first, and validated when --mappings is not set.

Example:
  codex validate --mappings ./mappings
  codex validate --write-mappings ./mappings --mapping-format toml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WriteMappings, "write-mappings", "", "write the generated card/lattice mapping to this directory")
	cmd.Flags().StringVar(&opts.MappingFormat, "mapping-format", artifact.FormatYAML, "format of written mappings (yaml|json|toml)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	root := *opts.RootOptions

	if opts.WriteMappings != "" {
		path, err := writeMappings(opts.Config, opts.WriteMappings, opts.MappingFormat)
		if err != nil {
			return formatter.Fail("write mappings failed", err)
		}
		formatter.VerboseLog("wrote %s", path)
		if root.Mappings == "" {
			root.Mappings = opts.WriteMappings
		}
	}

	return withEngine(cmd, &root, formatter, func(_ context.Context, e *engine.Engine) error {
		report := e.BootReport()
		return formatter.Emit(report, func(w io.Writer) {
			writeReport(w, report)
		})
	})
}

func writeMappings(configPath, dir, format string) (string, error) {
	switch format {
	case artifact.FormatYAML, artifact.FormatJSON, artifact.FormatTOML:
	default:
		return "", ir.InvalidArgument("unknown mapping format %q", format)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	doc, err := engine.GenerateMirrorDocument(cfg)
	if err != nil {
		return "", err
	}
	return artifact.WriteFile(dir, engine.MirrorArtifactName, format, doc)
}

func writeReport(w io.Writer, r ir.ValidationReport) {
	if r.Pass {
		fmt.Fprintln(w, "✓ Integrity check passed")
	} else {
		fmt.Fprintln(w, "✗ Integrity check failed")
	}
	fmt.Fprintf(w, "  report:      %s\n", r.ID)
	fmt.Fprintf(w, "  fingerprint: %s\n", r.CatalogFingerprint)
	if len(r.DisabledFeatures) > 0 {
		fmt.Fprintf(w, "  disabled:    %v\n", r.DisabledFeatures)
	}
	for _, v := range r.Violations {
		marker := "warning"
		if v.Fatal {
			marker = "fatal"
		}
		fmt.Fprintf(w, "  %s %s: %s\n", marker, v.Kind, v.Message)
	}
}
