package engine

import (
	"context"
	"slices"

	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/coordinator"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/resonance"
)

// GetNode resolves "node_<n>" or a bare integer id.
func (e *Engine) GetNode(id string) (ir.LatticeNode, error) {
	return e.cat.NodeByKey(id)
}

// GetCard returns a card with its derived mirrors and resonance.
func (e *Engine) GetCard(id string) (ir.ArcanaCard, error) {
	return e.cat.Card(id)
}

// GetEntity resolves any entity id to its uniform view.
func (e *Engine) GetEntity(id string) (ir.EntityView, error) {
	return e.cat.Entity(id)
}

// SearchCards filters and paginates cards.
func (e *Engine) SearchCards(q catalog.Query) (catalog.SearchResult, error) {
	return e.cat.SearchCards(q)
}

// CreateFusionSession proposes a fusion between existing entities.
func (e *Engine) CreateFusionSession(ctx context.Context, ids []string, fusionType string) (ir.FusionSession, error) {
	return e.fusion.Create(ctx, ids, fusionType)
}

// ConfirmConsent moves a proposed session to active.
func (e *Engine) ConfirmConsent(ctx context.Context, sessionID string) (ir.FusionSession, error) {
	return e.fusion.ConfirmConsent(ctx, sessionID)
}

// Resolve completes an active session and computes its outcome.
func (e *Engine) Resolve(ctx context.Context, sessionID string) (ir.FusionSession, error) {
	return e.fusion.Resolve(ctx, sessionID)
}

// Abort terminates a live session.
func (e *Engine) Abort(ctx context.Context, sessionID, reason string) (ir.FusionSession, error) {
	return e.fusion.Abort(ctx, sessionID, reason)
}

// GetSession returns a live session, falling back to the archive for
// sessions from earlier runs.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (ir.FusionSession, error) {
	s, err := e.fusion.Get(sessionID)
	if err == nil || !ir.IsNotFound(err) || e.store == nil {
		return s, err
	}
	return e.store.LoadSession(ctx, sessionID)
}

// ListSessions returns the sessions held by this engine in creation order.
func (e *Engine) ListSessions() []ir.FusionSession {
	return e.fusion.List()
}

// GetHealthReport aggregates health and attaches the findings of the latest
// soft validation pass.
func (e *Engine) GetHealthReport() ir.HealthReport {
	r := e.health.Report()
	e.mu.Lock()
	if e.lastSoft != nil {
		r.Violations = slices.Clone(e.lastSoft.Violations)
	}
	e.mu.Unlock()
	return r
}

// GetHealth returns one entity's health record.
func (e *Engine) GetHealth(id string) (ir.HealthRecord, error) {
	return e.health.Record(id)
}

// SyncSubset scores a source entity against explicit targets.
func (e *Engine) SyncSubset(ctx context.Context, sourceID string, targetIDs []string) (coordinator.SubsetResult, error) {
	return e.coord.SyncSubset(ctx, sourceID, targetIDs)
}

// RunGlobalPass runs one synchronization pass now. Its events are queued
// for Run or Flush.
func (e *Engine) RunGlobalPass(ctx context.Context) (ir.PassSummary, error) {
	return e.coord.RunGlobalPass(ctx)
}

// LastPass returns the most recent pass summary.
func (e *Engine) LastPass() (ir.PassSummary, bool) {
	return e.coord.LastSummary()
}

// PairResonance scores two entities and the energy the first would
// transfer at its current health.
func (e *Engine) PairResonance(a, b string) (ir.PairResult, error) {
	va, err := e.cat.Entity(a)
	if err != nil {
		return ir.PairResult{}, err
	}
	vb, err := e.cat.Entity(b)
	if err != nil {
		return ir.PairResult{}, err
	}
	h, err := e.health.Value(a)
	if err != nil {
		return ir.PairResult{}, err
	}
	r := e.calc.PairResonance(va, vb)
	return ir.PairResult{
		SourceID:       a,
		TargetID:       b,
		Resonance:      r,
		EnergyTransfer: e.calc.EnergyTransfer(r, h),
	}, nil
}

// FusionResonance scores the frequency stack of a set of entities without
// opening a session.
func (e *Engine) FusionResonance(ids ...string) (resonance.FusionResult, error) {
	if len(ids) == 0 {
		return resonance.FusionResult{}, ir.InvalidArgument("at least one entity is required")
	}
	members := make([][]float64, 0, len(ids))
	for _, id := range ids {
		v, err := e.cat.Entity(id)
		if err != nil {
			return resonance.FusionResult{}, err
		}
		members = append(members, v.FrequenciesHz)
	}
	return e.calc.FusionResonance(members), nil
}

// Audit returns the full ledger ordered by seq.
func (e *Engine) Audit(ctx context.Context) ([]ir.AuditRecord, error) {
	return e.ledger.LoadAll(ctx)
}

// Reports returns recent validation reports, oldest first. Reports from
// earlier runs are included when a store is configured.
func (e *Engine) Reports(ctx context.Context, limit int) ([]ir.ValidationReport, error) {
	if e.store != nil {
		return e.store.LoadReports(ctx, limit)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := slices.Clone(e.reports)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
