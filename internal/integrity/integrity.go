// Package integrity checks taxonomy counts, identifier uniqueness and the
// structure of cross-taxonomy mapping artifacts.
//
// A report is consumed twice: at boot in hard mode, where fatal violations
// abort startup, and during periodic sweeps in soft mode, where findings
// are only surfaced.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// Required top-level fields of a mapping artifact.
const (
	FieldMetadata        = "metadata"
	FieldMirrorStructure = "mirror_structure"
)

// maxListed caps the entity ids attached to a dangling-reference violation.
const maxListed = 10

// Artifact is a mapping document already resolved by a collaborator.
// Err is set when the collaborator could not read or parse the source.
type Artifact struct {
	Name   string
	Source string
	Format string
	Doc    map[string]any
	Err    error
}

// Input is the in-memory data a pass validates.
type Input struct {
	Nodes       []ir.LatticeNode
	Cards       []ir.ArcanaCard
	Components  []string
	Artifacts   map[string]Artifact
	Fingerprint string
}

// Validator runs integrity passes. It holds no mutable state.
type Validator struct {
	cfg  *config.Config
	wall clock.Wall
}

// New creates a validator.
func New(cfg *config.Config, wall clock.Wall) *Validator {
	if wall == nil {
		wall = clock.System{}
	}
	return &Validator{cfg: cfg, wall: wall}
}

// Run executes every check and assembles a report. Pass is true when no
// violation is fatal.
//
// Cancellation is checked between checks and between artifacts; a cancelled
// run returns the partial report with Cancelled set and ctx.Err().
// In hard mode a report with fatal violations is returned together with a
// ConfigurationError.
func (v *Validator) Run(ctx context.Context, mode ir.ValidationMode, in Input) (ir.ValidationReport, error) {
	report := ir.ValidationReport{
		Mode:               mode,
		Timestamp:          v.wall.Now(),
		Violations:         []ir.Violation{},
		DisabledFeatures:   []string{},
		CatalogFingerprint: in.Fingerprint,
	}

	steps := []func() []ir.Violation{
		func() []ir.Violation { return v.ValidateUniqueness(in) },
		func() []ir.Violation { return v.ValidateCounts(in) },
	}
	var runErr error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		report.Violations = append(report.Violations, step()...)
	}

	if runErr == nil {
		for _, m := range v.cfg.CrossMappings {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			var art *Artifact
			if a, ok := in.Artifacts[m.Name()]; ok {
				art = &a
			}
			violations, disabled := v.ValidateCrossMapping(m, art, in)
			report.Violations = append(report.Violations, violations...)
			if disabled && !slices.Contains(report.DisabledFeatures, m.Feature) {
				report.DisabledFeatures = append(report.DisabledFeatures, m.Feature)
			}
		}
	}

	report.Cancelled = runErr != nil
	report.Pass = len(report.Fatal()) == 0
	id, err := ir.ReportID(mode, report.Timestamp, in.Fingerprint, report.Violations)
	if err != nil {
		return report, fmt.Errorf("report id: %w", err)
	}
	report.ID = id

	for _, viol := range report.Violations {
		slog.Warn("integrity violation",
			"mode", mode,
			"kind", viol.Kind,
			"fatal", viol.Fatal,
			"entities", viol.Entities,
			"message", viol.Message,
		)
	}
	if runErr != nil {
		return report, runErr
	}
	if mode == ir.ValidationHard && !report.Pass {
		fatal := report.Fatal()
		return report, ir.ConfigurationError(
			fmt.Sprintf("%d fatal integrity violation(s), first: %s", len(fatal), fatal[0].Message),
			fatal...)
	}
	return report, nil
}

// ValidateCounts compares actual taxonomy sizes against the declared and
// sacred constants. Mismatches against declarations are fatal. Differences
// between taxonomy sizes are non-fatal unless whitelisted, in which case
// they are not reported at all.
func (v *Validator) ValidateCounts(in Input) []ir.Violation {
	var out []ir.Violation
	mismatch := func(entity string, want, got int) {
		if want != got {
			out = append(out, ir.Violation{
				Kind:     ir.ViolationCountMismatch,
				Entities: []string{entity},
				Message:  fmt.Sprintf("%s: expected %d, got %d", entity, want, got),
				Fatal:    true,
			})
		}
	}

	s := v.cfg.Sacred
	mismatch("lattice", v.cfg.LatticeSize, len(in.Nodes))
	if !slices.Contains(s.LatticeSizes, len(in.Nodes)) {
		out = append(out, ir.Violation{
			Kind:     ir.ViolationCountMismatch,
			Entities: []string{"lattice"},
			Message:  fmt.Sprintf("lattice size %d is not one of %v", len(in.Nodes), s.LatticeSizes),
			Fatal:    true,
		})
	}
	mismatch("cards", v.cfg.CardCount, len(in.Cards))
	mismatch("cards.sacred", s.CardCount, len(in.Cards))

	var majors, minors int
	perSuit := map[ir.Suit]int{}
	for _, c := range in.Cards {
		switch c.Kind {
		case ir.CardMajor:
			majors++
		case ir.CardMinor:
			minors++
			perSuit[c.Suit]++
		}
	}
	mismatch("cards.major", s.MajorCount, majors)
	mismatch("cards.minor", s.MinorCount, minors)
	mismatch("cards.suits", s.SuitCount, len(perSuit))
	for _, suit := range sortedSuits(perSuit) {
		mismatch("cards."+string(suit), s.RanksPerSuit, perSuit[suit])
	}

	sizes := []int{v.cfg.CardCount}
	for _, n := range append([]int{v.cfg.LatticeSize}, s.LatticeSizes...) {
		if !slices.Contains(sizes, n) {
			sizes = append(sizes, n)
		}
	}
	slices.Sort(sizes)
	for i := 0; i < len(sizes); i++ {
		for j := i + 1; j < len(sizes); j++ {
			if v.accepted(sizes[i], sizes[j]) {
				continue
			}
			out = append(out, ir.Violation{
				Kind:     ir.ViolationCountDiscrepancy,
				Entities: []string{fmt.Sprint(sizes[i]), fmt.Sprint(sizes[j])},
				Message:  fmt.Sprintf("taxonomy sizes %d and %d coexist without an accepted discrepancy", sizes[i], sizes[j]),
			})
		}
	}
	return out
}

func (v *Validator) accepted(a, b int) bool {
	for _, d := range v.cfg.AcceptedDiscrepancies {
		if d.Accepts(a, b) {
			return true
		}
	}
	return false
}

// ValidateUniqueness reports duplicate node ids, card ids and component
// identifiers. Every duplicate is fatal.
func (v *Validator) ValidateUniqueness(in Input) []ir.Violation {
	var out []ir.Violation
	dup := func(kind ir.ViolationKind, what string, ids []string) {
		seen := make(map[string]int, len(ids))
		var dups []string
		for _, id := range ids {
			seen[id]++
			if seen[id] == 2 {
				dups = append(dups, id)
			}
		}
		for _, id := range dups {
			out = append(out, ir.Violation{
				Kind:     kind,
				Entities: []string{id},
				Message:  fmt.Sprintf("duplicate %s %s (%d occurrences)", what, id, seen[id]),
				Fatal:    true,
			})
		}
	}

	nodeIDs := make([]string, len(in.Nodes))
	for i, n := range in.Nodes {
		nodeIDs[i] = n.Key()
	}
	cardIDs := make([]string, len(in.Cards))
	for i, c := range in.Cards {
		cardIDs[i] = c.ID
	}
	dup(ir.ViolationDuplicateID, "node id", nodeIDs)
	dup(ir.ViolationDuplicateID, "card id", cardIDs)
	dup(ir.ViolationDuplicateComponent, "component", in.Components)
	return out
}

// ValidateCrossMapping checks one declared taxonomy pair. A missing or
// malformed artifact disables the pair's feature; dangling references are
// reported but leave the feature enabled. None of these are fatal.
func (v *Validator) ValidateCrossMapping(m config.CrossMapping, art *Artifact, in Input) (violations []ir.Violation, disabled bool) {
	pair := []string{m.A, m.B}
	if art == nil {
		return []ir.Violation{{
			Kind:     ir.ViolationMappingMissing,
			Entities: pair,
			Message:  fmt.Sprintf("no mapping artifact %q; feature %s disabled", m.Name(), m.Feature),
		}}, true
	}
	malformed := func(msg string) ([]ir.Violation, bool) {
		return []ir.Violation{{
			Kind:     ir.ViolationMappingMalformed,
			Entities: pair,
			Message:  fmt.Sprintf("mapping artifact %q (%s): %s; feature %s disabled", m.Name(), art.Source, msg, m.Feature),
		}}, true
	}
	if art.Err != nil {
		return malformed(art.Err.Error())
	}
	if art.Doc == nil {
		return malformed("empty document")
	}
	if _, ok := art.Doc[FieldMetadata].(map[string]any); !ok {
		return malformed("missing or non-object field " + FieldMetadata)
	}
	structure, ok := art.Doc[FieldMirrorStructure].(map[string]any)
	if !ok {
		return malformed("missing or non-object field " + FieldMirrorStructure)
	}

	dangling := danglingRefs(structure, in)
	if len(dangling) > 0 {
		listed := dangling[:min(len(dangling), maxListed)]
		violations = append(violations, ir.Violation{
			Kind:     ir.ViolationMappingDangling,
			Entities: listed,
			Message:  fmt.Sprintf("mapping artifact %q references %d unknown entities", m.Name(), len(dangling)),
		})
	}
	return violations, false
}

// danglingRefs returns, in sorted order, the keys and values of the mirror
// structure that name no catalog entity. Keys are entity ids; values are a
// single id or a list of ids, where integers denote lattice nodes.
func danglingRefs(structure map[string]any, in Input) []string {
	known := make(map[string]bool, len(in.Nodes)+len(in.Cards))
	for _, n := range in.Nodes {
		known[n.Key()] = true
	}
	for _, c := range in.Cards {
		known[c.ID] = true
	}

	var out []string
	add := func(id string) {
		if !known[id] && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for key, val := range structure {
		add(key)
		for _, ref := range refs(val) {
			add(ref)
		}
	}
	slices.Sort(out)
	return out
}

func refs(val any) []string {
	switch x := val.(type) {
	case string:
		return []string{x}
	case int:
		return []string{ir.NodeKey(x)}
	case int64:
		return []string{ir.NodeKey(int(x))}
	case float64:
		return []string{ir.NodeKey(int(x))}
	case []any:
		var out []string
		for _, e := range x {
			out = append(out, refs(e)...)
		}
		return out
	}
	return nil
}

func sortedSuits(m map[ir.Suit]int) []ir.Suit {
	out := make([]ir.Suit, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
