package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// NewNodeCommand creates the node command.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node <id>",
		Short: "Show a lattice node",
		Long: `Show a lattice node by "node_<n>" or bare integer id.

Example:
  codex node node_73
  codex node 73 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(cmd, rootOpts, f, func(_ context.Context, e *engine.Engine) error {
				n, err := e.GetNode(args[0])
				if err != nil {
					return f.Fail("node lookup failed", err)
				}
				return f.Emit(n, func(w io.Writer) {
					fmt.Fprintf(w, "%s\n", n.Key())
					fmt.Fprintf(w, "  numerology core: %d\n", n.NumerologyCore)
					fmt.Fprintf(w, "  element:         %s\n", n.Element)
					fmt.Fprintf(w, "  geometry:        %s\n", n.GeometryTag)
					fmt.Fprintf(w, "  frequency:       %.3f Hz\n", n.BaseFrequencyHz)
					fmt.Fprintf(w, "  related:         %v\n", n.RelatedIDs)
				})
			})
		},
	}
}

// NewCardCommand creates the card command.
func NewCardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "card <id>",
		Short: "Show an arcana card with its mirrored nodes",
		Long: `Show an arcana card. Mirrors are derived only when the card/lattice
mapping is available (see validate --write-mappings).

Example:
  codex card card_0_fool --mappings ./mappings`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(cmd, rootOpts, f, func(_ context.Context, e *engine.Engine) error {
				c, err := e.GetCard(args[0])
				if err != nil {
					return f.Fail("card lookup failed", err)
				}
				return f.Emit(c, func(w io.Writer) {
					fmt.Fprintf(w, "%s (%s)\n", c.Name, c.ID)
					fmt.Fprintf(w, "  kind:      %s\n", c.Kind)
					if c.Suit != "" {
						fmt.Fprintf(w, "  suit:      %s %d\n", c.Suit, c.Rank)
					}
					fmt.Fprintf(w, "  element:   %s\n", c.Element)
					fmt.Fprintf(w, "  frequency: %.3f Hz\n", c.FrequencyHz)
					if len(c.Keywords) > 0 {
						fmt.Fprintf(w, "  keywords:  %s\n", strings.Join(c.Keywords, ", "))
					}
					fmt.Fprintf(w, "  mirrors:   %v\n", c.MirroredNodeIDs)
					fmt.Fprintf(w, "  resonance: %.4f\n", c.ResonanceStrength)
				})
			})
		},
	}
}

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Keywords []string
	Suits    []string
	Elements []string
	Limit    int
	Offset   int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search arcana cards",
		Long: `Filter cards by keyword, suit and element, ordered by ordinal.
Every keyword must match the card name or one of its keywords.

Example:
  codex search --keyword love
  codex search --suit cups --limit 5 --offset 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Keywords, "keyword", nil, "keyword to match (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Suits, "suit", nil, "suit filter: wands, cups, swords, pentacles (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Elements, "element", nil, "element filter (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (0 for the default of 20, at most 100)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "items to skip")

	return cmd
}

func runSearch(opts *SearchOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	q := catalog.Query{Keywords: opts.Keywords, Limit: opts.Limit, Offset: opts.Offset}
	for _, s := range opts.Suits {
		q.Suits = append(q.Suits, ir.Suit(s))
	}
	for _, el := range opts.Elements {
		q.Elements = append(q.Elements, ir.Element(el))
	}

	return withEngine(cmd, opts.RootOptions, f, func(_ context.Context, e *engine.Engine) error {
		res, err := e.SearchCards(q)
		if err != nil {
			return f.Fail("search failed", err)
		}
		return f.Emit(res, func(w io.Writer) {
			fmt.Fprintf(w, "%d card(s) match, showing %d\n", res.TotalCount, len(res.Items))
			for _, c := range res.Items {
				fmt.Fprintf(w, "  %-24s %-22s %s\n", c.ID, c.Name, c.Element)
			}
		})
	})
}

// NewResonanceCommand creates the resonance command.
func NewResonanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resonance <id> <id> [id...]",
		Short: "Score resonance between entities",
		Long: `With two ids, score the pair and the energy the first would transfer.
With three or more, score the frequency stack of the whole group.

Example:
  codex resonance card_0_fool node_1
  codex resonance card_0_fool card_1_magician node_9`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withEngine(cmd, rootOpts, f, func(_ context.Context, e *engine.Engine) error {
				if len(args) == 2 {
					pr, err := e.PairResonance(args[0], args[1])
					if err != nil {
						return f.Fail("resonance failed", err)
					}
					return f.Emit(pr, func(w io.Writer) {
						fmt.Fprintf(w, "%s ~ %s\n", pr.SourceID, pr.TargetID)
						fmt.Fprintf(w, "  resonance:       %.6f\n", pr.Resonance)
						fmt.Fprintf(w, "  energy transfer: %.6f\n", pr.EnergyTransfer)
					})
				}
				fr, err := e.FusionResonance(args...)
				if err != nil {
					return f.Fail("resonance failed", err)
				}
				return f.Emit(fr, func(w io.Writer) {
					fmt.Fprintf(w, "%d entities, %d comparisons, %d golden hits\n", len(args), fr.Comparisons, fr.Hits)
					fmt.Fprintf(w, "  phi score:  %.6f\n", fr.PhiScore)
					fmt.Fprintf(w, "  stability:  %.6f\n", fr.Stability)
					fmt.Fprintf(w, "  regularity: %.6f\n", fr.Regularity)
				})
			})
		},
	}
}
