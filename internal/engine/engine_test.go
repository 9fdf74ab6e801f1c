package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/artifact"
	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/fusion"
	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/metrics"
	"github.com/roach88/codex/internal/resonance"
	"github.com/roach88/codex/internal/testutil"
)

// mirrorArtifacts builds a valid cards/lattice mapping for cfg.
func mirrorArtifacts(t *testing.T, cfg *config.Config) map[string]integrity.Artifact {
	t.Helper()
	arts, err := GenerateArtifacts(cfg)
	require.NoError(t, err)
	return arts
}

type testEngine struct {
	*Engine
	clock *testutil.FakeClock
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	cfg := config.MustDefault()
	cfg.ConsentTimeoutMs = 1000
	clk := testutil.NewFakeClock(testutil.Epoch)
	base := []Option{
		WithClock(clk),
		WithSessionIDs(testutil.NewSequenceIDGenerator("session")),
		WithArtifacts(mirrorArtifacts(t, cfg)),
	}
	e, err := New(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Dispose() })
	return &testEngine{Engine: e, clock: clk}
}

func actions(records []ir.AuditRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Action
	}
	return out
}

func TestNew_BootsWithMirrors(t *testing.T) {
	e := newTestEngine(t)

	report := e.BootReport()
	assert.True(t, report.Pass)
	assert.Equal(t, ir.ValidationHard, report.Mode)
	assert.Empty(t, report.DisabledFeatures)
	assert.NotEmpty(t, report.ID)

	card, err := e.GetCard("card_0_fool")
	require.NoError(t, err)
	require.NotEmpty(t, card.MirroredNodeIDs)
	assert.LessOrEqual(t, len(card.MirroredNodeIDs), resonance.MaxMirrors)
	assert.Equal(t, 1, card.MirroredNodeIDs[0], "primary mirror of ordinal 0")
	assert.Greater(t, card.ResonanceStrength, 0.0)

	records, err := e.Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{audit.ActionValidation}, actions(records))
	assert.Equal(t, []string{report.ID}, records[0].EntityIDs)
}

func TestNew_MissingMappingDisablesMirroring(t *testing.T) {
	cfg := config.MustDefault()
	e, err := New(context.Background(), cfg,
		WithClock(testutil.NewFakeClock(testutil.Epoch)),
		WithMappingDir(filepath.Join(t.TempDir(), "absent")),
	)
	require.NoError(t, err)
	defer e.Dispose()

	report := e.BootReport()
	assert.True(t, report.Pass, "missing mapping is not fatal")
	assert.Equal(t, []string{FeatureMirroring}, report.DisabledFeatures)

	card, err := e.GetCard("card_0_fool")
	require.NoError(t, err)
	assert.Empty(t, card.MirroredNodeIDs)

	view, err := e.GetEntity("card_0_fool")
	require.NoError(t, err)
	assert.Empty(t, view.Related)
}

func TestNew_LoadsMappingDir(t *testing.T) {
	cfg := config.MustDefault()
	arts := mirrorArtifacts(t, cfg)
	dir := t.TempDir()
	_, err := artifact.WriteFile(dir, "cards__lattice", artifact.FormatTOML, arts["cards__lattice"].Doc)
	require.NoError(t, err)

	e, err := New(context.Background(), cfg,
		WithClock(testutil.NewFakeClock(testutil.Epoch)),
		WithMappingDir(dir),
	)
	require.NoError(t, err)
	defer e.Dispose()

	assert.Empty(t, e.BootReport().DisabledFeatures)
}

func TestNew_FatalViolationsAbortBoot(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		kind ir.ViolationKind
	}{
		{
			name: "duplicate component",
			opts: []Option{WithComponents("catalog")},
			kind: ir.ViolationDuplicateComponent,
		},
		{
			name: "wrong lattice size",
			opts: []Option{WithCatalogOptions(catalog.WithNodeCount(100))},
			kind: ir.ViolationCountMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithClock(testutil.NewFakeClock(testutil.Epoch))}, tt.opts...)
			e, err := New(context.Background(), config.MustDefault(), opts...)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, ir.IsConfigurationError(err))

			var ierr *ir.Error
			require.True(t, errors.As(err, &ierr))
			require.NotEmpty(t, ierr.Violations)
			assert.Equal(t, tt.kind, ierr.Violations[0].Kind)
		})
	}
}

func TestFusionLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := audit.WithActor(context.Background(), "operator")

	s, err := e.CreateFusionSession(ctx, []string{"node_1", "card_0_fool"}, "harmonic")
	require.NoError(t, err)
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, ir.StateProposed, s.State)

	s, err = e.ConfirmConsent(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateActive, s.State)

	s, err = e.Resolve(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateResolved, s.State)
	require.NotNil(t, s.Outcome)
	assert.NotEmpty(t, s.Outcome.Digest)

	_, err = e.Abort(ctx, s.ID, "late")
	assert.True(t, ir.IsInvalidStateTransition(err))

	got, err := e.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateResolved, got.State)
	assert.Len(t, e.ListSessions(), 1)

	records, err := e.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		audit.ActionValidation,
		audit.ActionFusionPropose,
		audit.ActionFusionConsent,
		audit.ActionFusionResolve,
	}, actions(records))
	assert.Equal(t, "operator", records[1].Actor)
	assert.Equal(t, []string{"session-1", "node_1", "card_0_fool"}, records[1].EntityIDs)
}

func TestFusion_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateFusionSession(ctx, []string{"node_1", "node_9999"}, "harmonic")
	assert.True(t, ir.IsNotFound(err))

	_, err = e.CreateFusionSession(ctx, []string{"node_1"}, "harmonic")
	assert.True(t, ir.IsInvalidArgument(err))

	_, err = e.ConfirmConsent(ctx, "missing")
	assert.True(t, ir.IsNotFound(err))

	_, err = e.GetSession(ctx, "missing")
	assert.True(t, ir.IsNotFound(err))
}

func TestFusion_ConsentTimeoutAborts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	s, err := e.CreateFusionSession(ctx, []string{"node_1", "node_2"}, "harmonic")
	require.NoError(t, err)

	e.clock.Advance(time.Second)

	got, err := e.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateAborted, got.State)
	assert.Equal(t, fusion.ReasonConsentTimeout, got.AbortReason)

	_, err = e.ConfirmConsent(ctx, s.ID)
	assert.True(t, ir.IsInvalidStateTransition(err))
}

func TestRunGlobalPass_FlushRecordsEvents(t *testing.T) {
	m := metrics.New(false)
	e := newTestEngine(t, WithMetrics(m))
	ctx := context.Background()

	e.clock.Advance(5 * time.Second)
	s, err := e.RunGlobalPass(ctx)
	require.NoError(t, err)
	assert.False(t, s.Partial)
	assert.Equal(t, 144+78, s.Processed)
	assert.Greater(t, s.PairsScored, 0)
	assert.Greater(t, s.GlobalResonance, 0.0)

	handled := e.Flush(ctx)
	assert.Equal(t, 2, handled, "pass summary and soft report")

	records, err := e.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		audit.ActionValidation,
		audit.ActionValidation,
		audit.ActionPassSummary,
	}, actions(records), "the soft report is published before the summary")

	last, ok := e.LastPass()
	require.True(t, ok)
	assert.Equal(t, s.Seq, last.Seq)

	reports, err := e.Reports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, ir.ValidationSoft, reports[1].Mode)

	hr := e.GetHealthReport()
	assert.InDelta(t, 0.95, hr.OverallHealth, 1e-9)
	assert.Empty(t, hr.Violations)
	assert.Empty(t, hr.CriticalEntities)
}

func TestHealthAlertsFlowToLedger(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// 1.0 - 0.01*70s = 0.3: caution and warning tiers
	e.clock.Advance(70 * time.Second)
	_, err := e.RunGlobalPass(ctx)
	require.NoError(t, err)
	e.Flush(ctx)

	records, err := e.Audit(ctx)
	require.NoError(t, err)
	alerts := 0
	for _, r := range records {
		if r.Action == audit.ActionHealthAlert {
			alerts++
		}
	}
	assert.Equal(t, 2*(144+78), alerts)

	rec, err := e.GetHealth("node_1")
	require.NoError(t, err)
	assert.Equal(t, ir.SeverityWarning, rec.Severity)
	assert.Len(t, rec.ActiveAlerts, 2)
}

func TestSoftViolationsSurfaceInHealthReport(t *testing.T) {
	cfg := config.MustDefault()
	e, err := New(context.Background(), cfg, WithClock(testutil.NewFakeClock(testutil.Epoch)))
	require.NoError(t, err)
	defer e.Dispose()

	_, err = e.RunGlobalPass(context.Background())
	require.NoError(t, err)
	e.Flush(context.Background())

	hr := e.GetHealthReport()
	require.Len(t, hr.Violations, 1)
	assert.Equal(t, ir.ViolationMappingMissing, hr.Violations[0].Kind)
}

func TestSyncSubsetAndResonance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.SyncSubset(ctx, "card_0_fool", []string{"node_1", "node_2"})
	require.NoError(t, err)
	require.Len(t, res.Pairs, 2)
	assert.Zero(t, res.Failed)

	pr, err := e.PairResonance("card_0_fool", "node_1")
	require.NoError(t, err)
	assert.InDelta(t, res.Pairs[0].Resonance, pr.Resonance, 1e-12)
	assert.InDelta(t, pr.Resonance*0.1, pr.EnergyTransfer, 1e-12)

	_, err = e.PairResonance("card_0_fool", "nope")
	assert.True(t, ir.IsNotFound(err))

	fr, err := e.FusionResonance("card_0_fool", "node_1", "node_2")
	require.NoError(t, err)
	assert.NotEmpty(t, fr.Frequencies)

	_, err = e.FusionResonance()
	assert.True(t, ir.IsInvalidArgument(err))
}

func TestQueries(t *testing.T) {
	e := newTestEngine(t)

	n, err := e.GetNode("node_12")
	require.NoError(t, err)
	assert.Equal(t, 12, n.ID)

	n, err = e.GetNode("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n.ID)

	_, err = e.GetNode("node_0")
	assert.True(t, ir.IsNotFound(err))

	res, err := e.SearchCards(catalog.Query{Suits: []ir.Suit{ir.SuitCups}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 14, res.TotalCount)
	assert.Len(t, res.Items, 5)
}

func TestRun_SchedulesPasses(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.clock.Pending() > 0 }, time.Second, time.Millisecond)
	e.clock.Advance(e.Config().PassInterval())

	require.Eventually(t, func() bool {
		_, ok := e.LastPass()
		return ok
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		records, err := e.Audit(context.Background())
		return err == nil && len(records) >= 3
	}, time.Second, time.Millisecond, "Run drains the pass events")

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 0, e.clock.Pending(), "the pass timer is stopped on exit")
}

func TestRun_StopsOnDispose(t *testing.T) {
	e := newTestEngine(t)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()
	require.Eventually(t, func() bool { return e.clock.Pending() > 0 }, time.Second, time.Millisecond)

	require.NoError(t, e.Dispose())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 0, e.clock.Pending(), "the pass timer is stopped on exit")

	e.clock.Advance(time.Hour)
	_, ok := e.LastPass()
	assert.False(t, ok, "no pass runs after dispose")
	assert.NoError(t, e.Dispose(), "dispose is idempotent")
}

func TestStore_PersistsAcrossBoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex.db")
	ctx := context.Background()

	e1 := newTestEngine(t, WithStorePath(path))
	s, err := e1.CreateFusionSession(ctx, []string{"node_1", "node_2"}, "harmonic")
	require.NoError(t, err)
	_, err = e1.Abort(ctx, s.ID, "operator cancelled")
	require.NoError(t, err)
	require.NoError(t, e1.Dispose())

	e2 := newTestEngine(t, WithStorePath(path))
	got, err := e2.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateAborted, got.State)
	assert.Equal(t, "operator cancelled", got.AbortReason)

	records, err := e2.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		audit.ActionValidation,
		audit.ActionFusionPropose,
		audit.ActionFusionAbort,
		audit.ActionValidation,
	}, actions(records))
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	reports, err := e2.Reports(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, reports, 1, "both boots share a timestamp and fingerprint so the report id repeats")
}
