// Package coordinator orchestrates periodic global synchronization passes
// and on-demand subset synchronization.
//
// A global pass recomputes resonance along every entity's static relation
// graph, ticks health, runs a soft integrity pass and reports a summary.
// Passes are single-flight; failures are logged per pair and retried on the
// next pass.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/health"
	"github.com/roach88/codex/internal/integrity"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/resonance"
)

const globalPassKey = "global"

// PairFunc scores one pair. The default is Calculator.PairResonance; tests
// and scenarios substitute a failing variant.
type PairFunc func(ctx context.Context, a, b ir.EntityView) (float64, error)

// InputFunc supplies the data for the soft integrity pass.
type InputFunc func() integrity.Input

// Coordinator runs synchronization. It is safe for concurrent use.
type Coordinator struct {
	cfg       *config.Config
	cat       *catalog.Catalog
	calc      *resonance.Calculator
	health    *health.Monitor
	validator *integrity.Validator
	input     InputFunc
	wall      clock.Wall
	pair      PairFunc
	sink      func(ir.PassSummary)
	reports   func(ir.ValidationReport)

	group singleflight.Group
	seq   *clock.Logical
	retry *RetrySet

	mu       sync.Mutex
	cursor   int
	lastTick time.Time
	last     *ir.PassSummary
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the wall clock.
func WithClock(w clock.Wall) Option { return func(c *Coordinator) { c.wall = w } }

// WithPairFunc overrides pair scoring.
func WithPairFunc(f PairFunc) Option { return func(c *Coordinator) { c.pair = f } }

// WithValidation enables the soft integrity pass.
func WithValidation(v *integrity.Validator, input InputFunc) Option {
	return func(c *Coordinator) { c.validator, c.input = v, input }
}

// WithSummarySink receives every pass summary.
func WithSummarySink(fn func(ir.PassSummary)) Option {
	return func(c *Coordinator) { c.sink = fn }
}

// WithReportSink receives every soft validation report.
func WithReportSink(fn func(ir.ValidationReport)) Option {
	return func(c *Coordinator) { c.reports = fn }
}

// New creates a coordinator.
func New(cfg *config.Config, cat *catalog.Catalog, calc *resonance.Calculator, mon *health.Monitor, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		cat:    cat,
		calc:   calc,
		health: mon,
		wall:   clock.System{},
		seq:    clock.NewLogical(),
		retry:  NewRetrySet(),
	}
	c.pair = func(_ context.Context, a, b ir.EntityView) (float64, error) {
		return c.calc.PairResonance(a, b), nil
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastTick = c.wall.Now()
	return c
}

// RunGlobalPass runs one pass, or joins the pass already in flight and
// returns its summary. The in-flight pass runs under the first caller's
// context.
func (c *Coordinator) RunGlobalPass(ctx context.Context) (ir.PassSummary, error) {
	v, err, shared := c.group.Do(globalPassKey, func() (any, error) {
		return c.runPass(ctx)
	})
	if shared {
		slog.Debug("joined in-flight global pass")
	}
	summary, _ := v.(ir.PassSummary)
	return summary, err
}

// LastSummary returns the most recent completed or partial pass summary.
func (c *Coordinator) LastSummary() (ir.PassSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return ir.PassSummary{}, false
	}
	s := *c.last
	s.Failed = append([]string(nil), s.Failed...)
	return s, true
}

// Retry exposes the pending retry set.
func (c *Coordinator) Retry() *RetrySet { return c.retry }

func (c *Coordinator) runPass(ctx context.Context) (ir.PassSummary, error) {
	start := c.wall.Now()
	deadline := start.Add(c.cfg.PassDeadline())
	summary := ir.PassSummary{
		Seq:       c.seq.Next(),
		StartedAt: start,
		Failed:    []string{},
	}
	var scoreSum float64

	// Pending pairs are scored once, first. The walk below reuses these
	// outcomes when it reaches the pair's source.
	pending := c.retry.Pending()
	retried := make(map[Pair]*pairOutcome, len(pending))
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		summary.Retried++
		r, err := c.scorePair(ctx, p)
		if err != nil {
			c.retry.Add(p)
		} else {
			c.retry.Remove(p)
		}
		retried[p] = &pairOutcome{score: r, err: err}
	}

	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	ids := c.cat.EntityIDs()
	if cursor >= len(ids) {
		cursor = 0
	}
	var stopErr error
	for cursor < len(ids) {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			stopErr = err
			break
		}
		if summary.Processed > 0 && !c.wall.Now().Before(deadline) {
			summary.Partial = true
			break
		}
		sum, n := c.syncEntity(ctx, ids[cursor], &summary, retried)
		scoreSum += sum
		summary.PairsScored += n
		summary.Processed++
		cursor++
	}
	// Retried pairs whose source was not walked this pass still count once.
	for _, p := range pending {
		o, ok := retried[p]
		if !ok || o.used {
			continue
		}
		if o.err != nil {
			summary.Failed = append(summary.Failed, p.Key())
			continue
		}
		scoreSum += o.score
		summary.PairsScored++
	}
	roundDone := cursor >= len(ids)
	if roundDone {
		cursor = 0
	}
	if summary.PairsScored > 0 {
		summary.GlobalResonance = scoreSum / float64(summary.PairsScored)
	}

	if roundDone && stopErr == nil {
		c.finishRound(ctx, &summary)
	}

	summary.Cursor = cursor
	summary.FinishedAt = c.wall.Now()

	c.mu.Lock()
	c.cursor = cursor
	last := summary
	c.last = &last
	c.mu.Unlock()

	slog.Info("global pass finished",
		"pass_seq", summary.Seq,
		"processed", summary.Processed,
		"pairs_scored", summary.PairsScored,
		"failed", len(summary.Failed),
		"retried", summary.Retried,
		"global_resonance", summary.GlobalResonance,
		"partial", summary.Partial,
		"cancelled", summary.Cancelled,
	)
	if c.sink != nil {
		c.sink(summary)
	}
	return summary, stopErr
}

// pairOutcome is the result of a pair retried at the start of a pass.
type pairOutcome struct {
	score float64
	err   error
	used  bool
}

// syncEntity recomputes one entity's resonance from its relations and
// stores it as a single update. Pairs already retried this pass are not
// scored again. Failed pairs go to the retry set.
func (c *Coordinator) syncEntity(ctx context.Context, id string, summary *ir.PassSummary, retried map[Pair]*pairOutcome) (sum float64, n int) {
	view, err := c.cat.Entity(id)
	if err != nil {
		slog.Warn("sync entity lookup failed", "entity_id", id, "error", err)
		return 0, 0
	}
	for _, rel := range view.Related {
		p := Pair{Source: id, Target: rel}
		var r float64
		if o, ok := retried[p]; ok {
			o.used = true
			r, err = o.score, o.err
		} else {
			r, err = c.scorePair(ctx, p)
			if err != nil {
				c.retry.Add(p)
			} else {
				c.retry.Remove(p)
			}
		}
		if err != nil {
			summary.Failed = append(summary.Failed, p.Key())
			continue
		}
		sum += r
		n++
	}
	if n > 0 {
		if err := c.cat.SetResonance(id, sum/float64(n)); err != nil {
			slog.Warn("sync resonance update failed", "entity_id", id, "error", err)
		}
	}
	return sum, n
}

func (c *Coordinator) scorePair(ctx context.Context, p Pair) (float64, error) {
	a, err := c.cat.Entity(p.Source)
	if err != nil {
		return 0, err
	}
	b, err := c.cat.Entity(p.Target)
	if err != nil {
		return 0, err
	}
	r, err := c.pair(ctx, a, b)
	if err != nil {
		slog.Warn("sync pair failed",
			"source_id", p.Source,
			"target_id", p.Target,
			"attempts", c.retry.Attempts(p)+1,
			"error", err,
		)
		return 0, err
	}
	return r, nil
}

// finishRound ticks health by the time since the last completed round and
// runs the soft integrity pass. Health lands after every resonance write of
// the round, so a reader may briefly pair a new resonance with old health.
func (c *Coordinator) finishRound(ctx context.Context, summary *ir.PassSummary) {
	now := c.wall.Now()
	c.mu.Lock()
	dt := now.Sub(c.lastTick)
	c.lastTick = now
	c.mu.Unlock()

	if c.health != nil && dt > 0 {
		alerts, err := c.health.Tick(ctx, dt)
		if err != nil {
			slog.Warn("health tick failed", "pass_seq", summary.Seq, "error", err)
		}
		summary.AlertsRaised = len(alerts)
	}
	if c.validator != nil && c.input != nil {
		report, err := c.validator.Run(ctx, ir.ValidationSoft, c.input())
		if err != nil {
			slog.Warn("soft validation failed", "pass_seq", summary.Seq, "error", err)
		}
		summary.Violations = len(report.Violations)
		if c.reports != nil && !report.Cancelled {
			c.reports(report)
		}
	}
}

// SubsetResult is the outcome of SyncSubset.
type SubsetResult struct {
	SourceID      string          `json:"source_id"`
	Pairs         []ir.PairResult `json:"pairs"`
	MeanResonance float64         `json:"mean_resonance"`
	TotalEnergy   float64         `json:"total_energy"`
	Failed        int             `json:"failed"`
}

// SyncSubset scores the source against each target independently. All ids
// must exist. A failing target is reported in its PairResult and does not
// affect the others. Energy is computed from the source's current health.
func (c *Coordinator) SyncSubset(ctx context.Context, sourceID string, targetIDs []string) (SubsetResult, error) {
	if len(targetIDs) == 0 {
		return SubsetResult{}, ir.InvalidArgument("at least one target is required")
	}
	source, err := c.cat.Entity(sourceID)
	if err != nil {
		return SubsetResult{}, err
	}
	targets := make([]ir.EntityView, len(targetIDs))
	for i, id := range targetIDs {
		t, err := c.cat.Entity(id)
		if err != nil {
			return SubsetResult{}, err
		}
		targets[i] = t
	}
	sourceHealth := 1.0
	if c.health != nil {
		if v, err := c.health.Value(sourceID); err == nil {
			sourceHealth = v
		}
	}

	res := SubsetResult{SourceID: sourceID, Pairs: make([]ir.PairResult, len(targets))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.SyncParallelism)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			pr := ir.PairResult{SourceID: sourceID, TargetID: target.ID}
			if err := gctx.Err(); err != nil {
				pr.Error = err.Error()
				res.Pairs[i] = pr
				return nil
			}
			r, err := c.pair(gctx, source, target)
			if err != nil {
				pr.Error = err.Error()
				slog.Warn("subset pair failed", "source_id", sourceID, "target_id", target.ID, "error", err)
			} else {
				pr.Resonance = r
				pr.EnergyTransfer = c.calc.EnergyTransfer(r, sourceHealth)
			}
			res.Pairs[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("sync subset: %w", err)
	}

	var ok int
	for _, pr := range res.Pairs {
		if !pr.OK() {
			res.Failed++
			continue
		}
		ok++
		res.MeanResonance += pr.Resonance
		res.TotalEnergy += pr.EnergyTransfer
	}
	if ok > 0 {
		res.MeanResonance /= float64(ok)
	}
	if res.Failed == len(res.Pairs) && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}
