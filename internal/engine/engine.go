package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/codex/internal/artifact"
	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/coordinator"
	"github.com/roach88/codex/internal/fusion"
	"github.com/roach88/codex/internal/health"
	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/metrics"
	"github.com/roach88/codex/internal/resonance"
	"github.com/roach88/codex/internal/store"
)

// FeatureMirroring is the cross-mapping feature gating card mirrors.
const FeatureMirroring = "mirroring"

// maxReports bounds the in-memory report history.
const maxReports = 32

// Engine wires all components together.
//
// Thread-safety model:
//   - the query/command surface is safe from any goroutine
//   - Run and Flush must not be called concurrently with each other
//   - Dispose is idempotent
type Engine struct {
	cfg  *config.Config
	wall clock.Wall

	cat       *catalog.Catalog
	calc      *resonance.Calculator
	validator *integrity.Validator
	health    *health.Monitor
	fusion    *fusion.Manager
	coord     *coordinator.Coordinator
	recorder  *audit.Recorder
	ledger    audit.Ledger
	store     *store.Store
	metrics   *metrics.Metrics
	queue     *eventQueue

	artifacts  map[string]integrity.Artifact
	components []string
	bootReport ir.ValidationReport

	// options consumed during boot
	storePath   string
	ownsStore   bool
	mappingDir  string
	sessionIDs  fusion.IDGenerator
	pairFunc    coordinator.PairFunc
	catalogOpts []catalog.Option

	mu       sync.Mutex
	reports  []ir.ValidationReport
	lastSoft *ir.ValidationReport

	disposeOnce sync.Once
	done        chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used by every component.
func WithClock(w clock.Wall) Option {
	return func(e *Engine) { e.wall = w }
}

// WithStorePath opens (and owns) a SQLite store at path for the audit
// ledger, the session archive and validation reports.
func WithStorePath(path string) Option {
	return func(e *Engine) { e.storePath = path }
}

// WithStore uses an already open store. The caller keeps ownership.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithMappingDir loads mapping artifacts from dir.
func WithMappingDir(dir string) Option {
	return func(e *Engine) { e.mappingDir = dir }
}

// WithArtifacts supplies already resolved mapping artifacts and skips
// loading from disk.
func WithArtifacts(arts map[string]integrity.Artifact) Option {
	return func(e *Engine) { e.artifacts = arts }
}

// WithMetrics instruments the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSessionIDs overrides fusion session id generation.
func WithSessionIDs(g fusion.IDGenerator) Option {
	return func(e *Engine) { e.sessionIDs = g }
}

// WithPairFunc overrides pair scoring in the coordinator.
func WithPairFunc(f coordinator.PairFunc) Option {
	return func(e *Engine) { e.pairFunc = f }
}

// WithCatalogOptions passes options through to catalog construction.
func WithCatalogOptions(opts ...catalog.Option) Option {
	return func(e *Engine) { e.catalogOpts = append(e.catalogOpts, opts...) }
}

// WithComponents registers extra component names for the duplicate
// component check.
func WithComponents(names ...string) Option {
	return func(e *Engine) { e.components = append(e.components, names...) }
}

// New boots an engine. A nil cfg uses the schema defaults.
//
// Boot fails with a ConfigurationError when the catalog cannot be built or
// the hard integrity pass finds fatal violations; in the latter case the
// report is still recorded in the ledger.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}
	e := &Engine{
		cfg:   cfg,
		wall:  clock.System{},
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.boot(ctx); err != nil {
		e.closeStore()
		return nil, err
	}
	return e, nil
}

func (e *Engine) boot(ctx context.Context) error {
	if e.storePath != "" && e.store == nil {
		st, err := store.Open(e.storePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		e.store, e.ownsStore = st, true
	}
	var start int64
	if e.store != nil {
		seq, err := e.store.MaxSeq(ctx)
		if err != nil {
			return err
		}
		e.ledger, start = e.store, seq
	} else {
		e.ledger = audit.NewMemoryLedger()
	}
	e.recorder = audit.NewRecorder(e.ledger, e.wall, start)

	cat, err := catalog.New(e.cfg, e.catalogOpts...)
	if err != nil {
		return err
	}
	e.cat = cat

	if e.artifacts == nil {
		arts, err := artifact.LoadDir(e.mappingDir)
		if err != nil {
			return err
		}
		e.artifacts = arts
	}
	e.components = append(e.baseComponents(), e.components...)

	e.validator = integrity.New(e.cfg, e.wall)
	report, runErr := e.validator.Run(ctx, ir.ValidationHard, e.integrityInput())
	e.bootReport = report
	e.publishReport(ctx, report)
	if runErr != nil {
		slog.Error("boot aborted by integrity check",
			"fatal", len(report.Fatal()),
			"error", runErr,
		)
		return runErr
	}

	e.calc = resonance.New(e.cfg)
	if slices.Contains(report.DisabledFeatures, FeatureMirroring) {
		slog.Warn("card mirroring disabled", "reason", "mapping artifact unavailable")
	} else if err := e.deriveMirrors(); err != nil {
		return err
	}

	e.health = health.New(e.cfg, e.wall, cat.EntityIDs(), health.WithAlertSink(func(a ir.Alert) {
		e.queue.Enqueue(ir.Event{Type: ir.EventAlert, Alert: &a})
	}))

	fopts := []fusion.Option{
		fusion.WithClock(e.wall),
		fusion.WithRecorder(e.recorder),
		fusion.WithHealth(e.health),
		fusion.WithObserver(e.metrics.ObserveSession),
	}
	if e.store != nil {
		fopts = append(fopts, fusion.WithArchive(e.store))
	}
	if e.sessionIDs != nil {
		fopts = append(fopts, fusion.WithIDGenerator(e.sessionIDs))
	}
	e.fusion = fusion.NewManager(e.cfg, e.calc, cat, fopts...)

	copts := []coordinator.Option{
		coordinator.WithClock(e.wall),
		coordinator.WithValidation(e.validator, e.integrityInput),
		coordinator.WithSummarySink(func(s ir.PassSummary) {
			e.queue.Enqueue(ir.Event{Type: ir.EventPassSummary, Pass: &s})
		}),
		coordinator.WithReportSink(func(r ir.ValidationReport) {
			e.queue.Enqueue(ir.Event{Type: ir.EventValidation, Report: &r})
		}),
	}
	if e.pairFunc != nil {
		copts = append(copts, coordinator.WithPairFunc(e.pairFunc))
	}
	e.coord = coordinator.New(e.cfg, cat, e.calc, e.health, copts...)

	nodes, cards := cat.Size()
	slog.Info("engine booted",
		"fingerprint", cat.Fingerprint(),
		"nodes", nodes,
		"cards", cards,
		"disabled_features", report.DisabledFeatures,
		"audit_seq", start,
	)
	return nil
}

func (e *Engine) baseComponents() []string {
	names := []string{"catalog", "resonance", "integrity", "health", "fusion", "coordinator", "audit"}
	if e.store != nil {
		names = append(names, "store")
	}
	if e.metrics != nil {
		names = append(names, "metrics")
	}
	return names
}

// deriveMirrors computes every card's mirrored nodes and resonance strength.
func (e *Engine) deriveMirrors() error {
	for _, card := range e.cat.RawCards() {
		ids := e.calc.MirroredNodes(card)
		nodes := make([]ir.LatticeNode, 0, len(ids))
		for _, id := range ids {
			n, err := e.cat.Node(id)
			if err != nil {
				return fmt.Errorf("mirror %s: %w", card.ID, err)
			}
			nodes = append(nodes, n)
		}
		if err := e.cat.SetMirrors(card.ID, ids, e.calc.ResonanceStrength(card, nodes)); err != nil {
			return fmt.Errorf("mirror %s: %w", card.ID, err)
		}
	}
	return nil
}

// integrityInput snapshots what the validator checks. Raw slices are used
// so duplicates hidden by the catalog index are still visible.
func (e *Engine) integrityInput() integrity.Input {
	cards := e.cat.RawCards()
	return integrity.Input{
		Nodes:       e.cat.RawNodes(),
		Cards:       cards,
		Components:  slices.Clone(e.components),
		Artifacts:   e.artifacts,
		Fingerprint: e.cat.Fingerprint(),
	}
}

// publishReport records, persists and instruments a report.
func (e *Engine) publishReport(ctx context.Context, r ir.ValidationReport) {
	e.recorder.RecordOrLog(ctx, audit.ActionValidation, r.ID)
	if e.store != nil {
		if err := e.store.SaveReport(ctx, r); err != nil {
			slog.Warn("save validation report failed", "report_id", r.ID, "error", err)
		}
	}
	e.metrics.ObserveReport(r)

	e.mu.Lock()
	e.reports = append(e.reports, r)
	if len(e.reports) > maxReports {
		e.reports = slices.Clone(e.reports[len(e.reports)-maxReports:])
	}
	if r.Mode == ir.ValidationSoft {
		last := r
		e.lastSoft = &last
	}
	e.mu.Unlock()
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Catalog returns the entity catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Metrics returns the metrics, or nil when not instrumented.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// BootReport returns the hard validation report produced at boot.
func (e *Engine) BootReport() ir.ValidationReport { return e.bootReport }

// Dispose stops consent timers, closes the event queue, drains what was
// already published and closes an owned store. Safe to call more than once.
func (e *Engine) Dispose() error {
	var err error
	e.disposeOnce.Do(func() {
		e.fusion.Dispose()
		e.queue.Close()
		close(e.done)
		e.Flush(context.Background())
		err = e.closeStore()
		slog.Info("engine disposed")
	})
	return err
}

func (e *Engine) closeStore() error {
	if !e.ownsStore || e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
