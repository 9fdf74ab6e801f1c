// Package health tracks a decaying, regenerating health value per entity
// and raises severity alerts with hysteresis.
package health

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// tier is one alerting level, ordered from most to least severe.
type tier struct {
	severity  ir.Severity
	threshold float64
}

// Monitor owns one record per entity. The entity set is fixed at
// construction, so the index needs no lock; each record has its own.
type Monitor struct {
	cfg     *config.Config
	wall    clock.Wall
	tiers   []tier
	order   []string
	entries map[string]*entry
	sink    func(ir.Alert)
}

type entry struct {
	mu sync.Mutex
	// at is the entity's simulated time, advanced by Tick.
	at         time.Time
	regenUntil time.Time
	rec        ir.HealthRecord
	active     map[ir.Severity]ir.Alert
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlertSink receives every newly raised alert. It runs under the
// entity lock and must not call back into the monitor.
func WithAlertSink(fn func(ir.Alert)) Option {
	return func(m *Monitor) { m.sink = fn }
}

// New creates a monitor for the given entity ids, all at initialHealth.
func New(cfg *config.Config, wall clock.Wall, ids []string, opts ...Option) *Monitor {
	if wall == nil {
		wall = clock.System{}
	}
	th := cfg.Thresholds
	m := &Monitor{
		cfg:  cfg,
		wall: wall,
		tiers: []tier{
			{ir.SeverityCritical, th.Critical},
			{ir.SeverityWarning, th.Warning},
			{ir.SeverityCaution, th.Caution},
		},
		entries: make(map[string]*entry, len(ids)),
	}
	for _, opt := range opts {
		opt(m)
	}

	now := wall.Now()
	for _, id := range ids {
		if _, dup := m.entries[id]; dup {
			continue
		}
		e := &entry{
			at: now,
			rec: ir.HealthRecord{
				EntityID:    id,
				Value:       clamp01(cfg.InitialHealth),
				DecayRate:   cfg.DecayRate,
				RegenRate:   cfg.RegenRate,
				LastUpdated: now,
			},
			active: map[ir.Severity]ir.Alert{},
		}
		m.order = append(m.order, id)
		m.entries[id] = e
		m.evaluate(e, e.rec.Value)
	}
	return m
}

// Severity classifies a value. The band between caution and healthy is
// nominal and carries no alert.
func (m *Monitor) Severity(v float64) ir.Severity {
	for _, t := range m.tiers {
		if v < t.threshold {
			return t.severity
		}
	}
	if v >= m.cfg.Thresholds.Healthy {
		return ir.SeverityHealthy
	}
	return ir.SeverityNominal
}

// Activate opens a regeneration window for each entity.
func (m *Monitor) Activate(ids ...string) error {
	for _, id := range ids {
		if _, ok := m.entries[id]; !ok {
			return ir.NotFound(id)
		}
	}
	for _, id := range ids {
		e := m.entries[id]
		e.mu.Lock()
		e.regenUntil = e.at.Add(m.cfg.RegenWindow())
		e.mu.Unlock()
	}
	return nil
}

// Tick advances every entity by dt: regeneration while inside its window,
// decay outside it. dt = 0 changes nothing. Cancellation is checked between
// entities; entities already advanced stay advanced.
func (m *Monitor) Tick(ctx context.Context, dt time.Duration) ([]ir.Alert, error) {
	if dt < 0 {
		return nil, ir.InvalidArgument("tick dt must be non-negative, got %s", dt)
	}
	var raised []ir.Alert
	if dt == 0 {
		return raised, nil
	}
	for _, id := range m.order {
		if err := ctx.Err(); err != nil {
			return raised, err
		}
		raised = append(raised, m.advance(m.entries[id], dt)...)
	}
	return raised, nil
}

func (m *Monitor) advance(e *entry, dt time.Duration) []ir.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	regen := time.Duration(0)
	if e.regenUntil.After(e.at) {
		regen = min(dt, e.regenUntil.Sub(e.at))
	}
	decay := dt - regen
	v := e.rec.Value + e.rec.RegenRate*regen.Seconds() - e.rec.DecayRate*decay.Seconds()

	e.at = e.at.Add(dt)
	e.rec.LastUpdated = e.at
	return m.evaluate(e, v)
}

// Set overrides an entity's value.
func (m *Monitor) Set(id string, v float64) ([]ir.Alert, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ir.NotFound(id)
	}
	if math.IsNaN(v) {
		return nil, ir.InvalidArgument("health value is NaN")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.evaluate(e, v), nil
}

// Transfer moves up to amount of health from one entity to another. The
// source never gives more than it has. It returns the amount moved.
func (m *Monitor) Transfer(from, to string, amount float64) (float64, error) {
	if amount < 0 || math.IsNaN(amount) {
		return 0, ir.InvalidArgument("transfer amount must be non-negative")
	}
	src, ok := m.entries[from]
	if !ok {
		return 0, ir.NotFound(from)
	}
	dst, ok := m.entries[to]
	if !ok {
		return 0, ir.NotFound(to)
	}
	if from == to {
		return 0, nil
	}

	// Lock in id order so concurrent opposite transfers cannot deadlock.
	first, second := src, dst
	if to < from {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	moved := math.Min(amount, src.rec.Value)
	m.evaluate(src, src.rec.Value-moved)
	m.evaluate(dst, dst.rec.Value+moved)
	return moved, nil
}

// evaluate stores v clamped and reconciles alerts. Callers hold e.mu.
func (m *Monitor) evaluate(e *entry, v float64) []ir.Alert {
	v = clamp01(v)
	e.rec.Value = v
	e.rec.Severity = m.Severity(v)

	var raised []ir.Alert
	for _, t := range m.tiers {
		_, active := e.active[t.severity]
		switch {
		case !active && v < t.threshold:
			a := ir.Alert{
				EntityID:  e.rec.EntityID,
				Severity:  t.severity,
				Threshold: t.threshold,
				Value:     v,
				RaisedAt:  e.rec.LastUpdated,
			}
			e.active[t.severity] = a
			raised = append(raised, a)
		case active && v >= t.threshold+m.cfg.HysteresisMargin:
			delete(e.active, t.severity)
			slog.Debug("health alert resolved",
				"entity_id", e.rec.EntityID,
				"severity", t.severity,
				"value", v,
			)
		}
	}
	for _, a := range raised {
		slog.Warn("health alert raised",
			"entity_id", a.EntityID,
			"severity", a.Severity,
			"threshold", a.Threshold,
			"value", a.Value,
		)
		if m.sink != nil {
			m.sink(a)
		}
	}
	return raised
}

// Value returns the current health of an entity.
func (m *Monitor) Value(id string) (float64, error) {
	e, ok := m.entries[id]
	if !ok {
		return 0, ir.NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Value, nil
}

// Record returns a copy of an entity's record.
func (m *Monitor) Record(id string) (ir.HealthRecord, error) {
	e, ok := m.entries[id]
	if !ok {
		return ir.HealthRecord{}, ir.NotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.snapshot(e), nil
}

func (m *Monitor) snapshot(e *entry) ir.HealthRecord {
	rec := e.rec
	rec.ActiveAlerts = make([]ir.Alert, 0, len(e.active))
	for _, t := range m.tiers {
		if a, ok := e.active[t.severity]; ok {
			rec.ActiveAlerts = append(rec.ActiveAlerts, a)
		}
	}
	return rec
}

// Report aggregates every record in registration order.
func (m *Monitor) Report() ir.HealthReport {
	report := ir.HealthReport{
		PerEntity:        make([]ir.HealthRecord, 0, len(m.order)),
		CriticalEntities: []string{},
	}
	var sum float64
	for _, id := range m.order {
		e := m.entries[id]
		e.mu.Lock()
		rec := m.snapshot(e)
		e.mu.Unlock()

		report.PerEntity = append(report.PerEntity, rec)
		sum += rec.Value
		if rec.Severity == ir.SeverityCritical {
			report.CriticalEntities = append(report.CriticalEntities, id)
		}
	}
	if len(m.order) > 0 {
		report.OverallHealth = sum / float64(len(m.order))
	}
	return report
}

// IDs returns the tracked entity ids in registration order.
func (m *Monitor) IDs() []string {
	return append([]string(nil), m.order...)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
