package integrity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/testutil"
)

func validMapping() Artifact {
	return Artifact{
		Name:   "cards__lattice",
		Source: "memory",
		Format: "yaml",
		Doc: map[string]any{
			"metadata": map[string]any{"version": "1"},
			"mirror_structure": map[string]any{
				"card_0_fool":     []any{1, 6, 14},
				"card_1_magician": []any{"node_2"},
			},
		},
	}
}

func testInput(t *testing.T, cfg *config.Config) Input {
	t.Helper()
	cat, err := catalog.New(cfg)
	require.NoError(t, err)
	return Input{
		Nodes:       cat.RawNodes(),
		Cards:       cat.RawCards(),
		Components:  []string{"catalog", "resonance", "fusion"},
		Artifacts:   map[string]Artifact{"cards__lattice": validMapping()},
		Fingerprint: cat.Fingerprint(),
	}
}

func newValidator(cfg *config.Config) *Validator {
	return New(cfg, testutil.NewFakeClock(testutil.Epoch))
}

func TestRunCleanCatalogPasses(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)

	report, err := v.Run(context.Background(), ir.ValidationHard, testInput(t, cfg))
	require.NoError(t, err)
	assert.True(t, report.Pass)
	assert.Empty(t, report.Violations)
	assert.Empty(t, report.DisabledFeatures)
	assert.Len(t, report.ID, 64)
	assert.Equal(t, testutil.Epoch, report.Timestamp)
	assert.NotEmpty(t, report.CatalogFingerprint)
}

func TestRunDeterministicID(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	in := testInput(t, cfg)

	a, err := v.Run(context.Background(), ir.ValidationSoft, in)
	require.NoError(t, err)
	b, err := v.Run(context.Background(), ir.ValidationSoft, in)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestDuplicatesAreFatalInHardMode(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	in := testInput(t, cfg)
	in.Nodes = append([]ir.LatticeNode(nil), in.Nodes...)
	in.Nodes[10] = in.Nodes[0]
	in.Components = append(in.Components, "fusion")

	report, err := v.Run(context.Background(), ir.ValidationHard, in)
	require.Error(t, err)
	assert.True(t, ir.IsConfigurationError(err))
	assert.False(t, report.Pass)

	kinds := map[ir.ViolationKind]int{}
	for _, viol := range report.Fatal() {
		kinds[viol.Kind]++
	}
	assert.Equal(t, 1, kinds[ir.ViolationDuplicateID])
	assert.Equal(t, 1, kinds[ir.ViolationDuplicateComponent])

	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Len(t, e.Violations, 2)
}

func TestSoftModeNeverErrorsOnFatal(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	in := testInput(t, cfg)
	in.Components = []string{"a", "a"}

	report, err := v.Run(context.Background(), ir.ValidationSoft, in)
	require.NoError(t, err)
	assert.False(t, report.Pass)
}

func TestValidateCounts(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	in := testInput(t, cfg)
	assert.Empty(t, v.ValidateCounts(in))

	short := in
	short.Cards = in.Cards[:77]
	violations := v.ValidateCounts(short)
	require.NotEmpty(t, violations)
	for _, viol := range violations {
		assert.Equal(t, ir.ViolationCountMismatch, viol.Kind)
		assert.True(t, viol.Fatal)
	}
}

func TestCountDiscrepancyWhitelist(t *testing.T) {
	cfg := config.MustDefault()
	cfg.AcceptedDiscrepancies = []config.Discrepancy{{A: 78, B: 144}}
	v := newValidator(cfg)

	violations := v.ValidateCounts(testInput(t, cfg))
	require.Len(t, violations, 2, "78/99 and 99/144 are no longer accepted")
	for _, viol := range violations {
		assert.Equal(t, ir.ViolationCountDiscrepancy, viol.Kind)
		assert.False(t, viol.Fatal)
	}
	assert.Equal(t, []string{"78", "99"}, violations[0].Entities)
}

func TestCrossMappingDegradedNotFatal(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)

	tests := []struct {
		name     string
		artifact *Artifact
		kind     ir.ViolationKind
	}{
		{"missing", nil, ir.ViolationMappingMissing},
		{"load error", &Artifact{Source: "x.yaml", Err: errors.New("yaml: bad indent")}, ir.ViolationMappingMalformed},
		{"empty", &Artifact{Source: "x.yaml"}, ir.ViolationMappingMalformed},
		{"no metadata", &Artifact{Doc: map[string]any{"mirror_structure": map[string]any{}}}, ir.ViolationMappingMalformed},
		{"structure wrong type", &Artifact{Doc: map[string]any{"metadata": map[string]any{}, "mirror_structure": []any{}}}, ir.ViolationMappingMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput(t, cfg)
			delete(in.Artifacts, "cards__lattice")
			if tt.artifact != nil {
				in.Artifacts["cards__lattice"] = *tt.artifact
			}

			report, err := v.Run(context.Background(), ir.ValidationHard, in)
			require.NoError(t, err)
			assert.True(t, report.Pass)
			require.Len(t, report.Violations, 1)
			assert.Equal(t, tt.kind, report.Violations[0].Kind)
			assert.False(t, report.Violations[0].Fatal)
			assert.Equal(t, []string{"mirroring"}, report.DisabledFeatures)
		})
	}
}

func TestCrossMappingDanglingKeepsFeature(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	in := testInput(t, cfg)
	art := validMapping()
	art.Doc["mirror_structure"] = map[string]any{
		"card_0_fool":   []any{1, 999},
		"card_ghost":    "node_3",
		"card_cups_ace": 5.0,
	}

	violations, disabled := v.ValidateCrossMapping(cfg.CrossMappings[0], &art, in)
	assert.False(t, disabled)
	require.Len(t, violations, 1)
	assert.Equal(t, ir.ViolationMappingDangling, violations[0].Kind)
	assert.Equal(t, []string{"card_ghost", "node_999"}, violations[0].Entities)
}

func TestRunCancelled(t *testing.T) {
	cfg := config.MustDefault()
	v := newValidator(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := v.Run(ctx, ir.ValidationSoft, testInput(t, cfg))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Violations)
}
