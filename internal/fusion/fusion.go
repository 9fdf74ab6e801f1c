// Package fusion runs the session state machine that combines two or more
// entities under consent and safety gating.
//
//	Proposed --consent--> Active --resolve--> Resolved
//	    |                   |
//	    +------abort--------+----> Aborted
//
// Resolved and Aborted are terminal. Mutations are serialized per session;
// sessions with different ids never contend.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/resonance"
)

// Abort reasons set by the manager itself.
const (
	ReasonConsentTimeout = "consent timeout"
	ReasonHealthCritical = "participant health critical"
	ReasonIntensityCap   = "intensity above cap"
	ReasonDisposed       = "manager disposed"
)

// Entities resolves participant ids.
type Entities interface {
	Entity(id string) (ir.EntityView, error)
}

// Health is the subset of the health monitor used for gating and
// post-fusion regeneration.
type Health interface {
	Value(id string) (float64, error)
	Severity(v float64) ir.Severity
	Activate(ids ...string) error
}

// Archive receives sessions once they become terminal.
type Archive interface {
	ArchiveSession(ctx context.Context, s ir.FusionSession) error
}

// Observer is notified of every committed transition. It runs under the
// session lock and must not call back into the manager for that session.
type Observer func(s ir.FusionSession)

// Manager owns all sessions.
type Manager struct {
	cfg      *config.Config
	calc     *resonance.Calculator
	entities Entities
	health   Health
	wall     clock.Wall
	ids      IDGenerator
	recorder *audit.Recorder
	archive  Archive
	observer Observer

	mu       sync.RWMutex
	sessions map[string]*entry
	order    []string
	disposed bool
}

type entry struct {
	mu    sync.Mutex
	s     ir.FusionSession
	timer clock.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides UUIDv7 session ids.
func WithIDGenerator(g IDGenerator) Option { return func(m *Manager) { m.ids = g } }

// WithClock overrides the wall clock.
func WithClock(w clock.Wall) Option { return func(m *Manager) { m.wall = w } }

// WithRecorder appends every transition to the audit ledger.
func WithRecorder(r *audit.Recorder) Option { return func(m *Manager) { m.recorder = r } }

// WithArchive stores terminal sessions.
func WithArchive(a Archive) Option { return func(m *Manager) { m.archive = a } }

// WithHealth enables health gating and post-fusion activation.
func WithHealth(h Health) Option { return func(m *Manager) { m.health = h } }

// WithObserver registers a transition callback.
func WithObserver(o Observer) Option { return func(m *Manager) { m.observer = o } }

// NewManager creates a manager.
func NewManager(cfg *config.Config, calc *resonance.Calculator, entities Entities, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		calc:     calc,
		entities: entities,
		wall:     clock.System{},
		ids:      UUIDv7Generator{},
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create proposes a session. It needs at least two distinct existing
// entities; intensity is derived from their mean pairwise resonance.
func (m *Manager) Create(ctx context.Context, participantIDs []string, fusionType string) (ir.FusionSession, error) {
	if len(participantIDs) < 2 {
		return ir.FusionSession{}, ir.InvalidArgument("fusion needs at least 2 participants, got %d", len(participantIDs))
	}
	if fusionType == "" {
		return ir.FusionSession{}, ir.InvalidArgument("fusion type is required")
	}
	views := make([]ir.EntityView, 0, len(participantIDs))
	for i, id := range participantIDs {
		if slices.Contains(participantIDs[:i], id) {
			return ir.FusionSession{}, ir.InvalidArgument("duplicate participant %s", id)
		}
		v, err := m.entities.Entity(id)
		if err != nil {
			return ir.FusionSession{}, err
		}
		views = append(views, v)
	}

	intensity := resonance.Intensity(meanPairResonance(m.calc, views))

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ir.FusionSession{}, ir.InvalidArgument(ReasonDisposed)
	}
	e := &entry{s: ir.FusionSession{
		ID:              m.ids.Generate(),
		ParticipantIDs:  slices.Clone(participantIDs),
		FusionType:      fusionType,
		Intensity:       intensity,
		State:           ir.StateProposed,
		SafetyProtocols: m.cfg.ProtocolsFor(fusionType),
		CreatedAt:       m.wall.Now(),
	}}
	id := e.s.ID
	if _, dup := m.sessions[id]; dup {
		m.mu.Unlock()
		return ir.FusionSession{}, ir.InvalidArgument("session id %s already exists", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m.sessions[id] = e
	m.order = append(m.order, id)
	m.mu.Unlock()

	e.timer = m.wall.AfterFunc(m.cfg.ConsentTimeout(), func() { m.expire(id) })
	slog.Info("fusion session proposed",
		"session_id", id,
		"participants", participantIDs,
		"fusion_type", fusionType,
		"intensity", e.s.Intensity,
	)
	m.committed(ctx, audit.ActionFusionPropose, e.s)
	return e.s.Clone(), nil
}

// ConfirmConsent moves a Proposed session to Active. Consent after the
// timeout, or while any participant is critical, aborts the session and
// returns SafetyViolation.
func (m *Manager) ConfirmConsent(ctx context.Context, id string) (ir.FusionSession, error) {
	e, err := m.lookup(id)
	if err != nil {
		return ir.FusionSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != ir.StateProposed {
		return e.s.Clone(), ir.InvalidStateTransition(id, e.s.State, ir.StateActive)
	}
	now := m.wall.Now()
	if now.Sub(e.s.CreatedAt) >= m.cfg.ConsentTimeout() {
		m.abortLocked(ctx, e, ReasonConsentTimeout)
		return e.s.Clone(), ir.SafetyViolation(id, ReasonConsentTimeout)
	}
	if reason := m.safetyCheck(e.s); reason != "" {
		m.abortLocked(ctx, e, reason)
		return e.s.Clone(), ir.SafetyViolation(id, reason)
	}

	e.s.State = ir.StateActive
	e.s.ConsentedAt = &now
	if e.timer != nil {
		e.timer.Stop()
	}
	slog.Info("fusion consent confirmed", "session_id", id)
	m.committed(ctx, audit.ActionFusionConsent, e.s)
	return e.s.Clone(), nil
}

// safetyCheck returns a non-empty reason when the session must not start.
func (m *Manager) safetyCheck(s ir.FusionSession) string {
	if slices.Contains(s.SafetyProtocols, "intensity_cap") && s.Intensity > m.cfg.IntensityCap {
		return fmt.Sprintf("%s: %d > %d", ReasonIntensityCap, s.Intensity, m.cfg.IntensityCap)
	}
	if m.health == nil || !slices.Contains(s.SafetyProtocols, "health_floor") {
		return ""
	}
	for _, pid := range s.ParticipantIDs {
		v, err := m.health.Value(pid)
		if err != nil {
			continue
		}
		if m.health.Severity(v) == ir.SeverityCritical {
			return fmt.Sprintf("%s: %s", ReasonHealthCritical, pid)
		}
	}
	return ""
}

// Resolve moves an Active session to Resolved and fixes its outcome.
func (m *Manager) Resolve(ctx context.Context, id string) (ir.FusionSession, error) {
	e, err := m.lookup(id)
	if err != nil {
		return ir.FusionSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State != ir.StateActive {
		return e.s.Clone(), ir.InvalidStateTransition(id, e.s.State, ir.StateResolved)
	}
	outcome, err := m.computeOutcome(e.s.ParticipantIDs)
	if err != nil {
		return e.s.Clone(), err
	}

	now := m.wall.Now()
	e.s.State = ir.StateResolved
	e.s.Outcome = &outcome
	e.s.ClosedAt = &now

	if m.health != nil {
		if err := m.health.Activate(e.s.ParticipantIDs...); err != nil {
			slog.Warn("fusion activation failed", "session_id", id, "error", err)
		}
	}
	slog.Info("fusion session resolved",
		"session_id", id,
		"dominant_element", outcome.DominantElement,
		"digest", outcome.Digest,
	)
	m.committed(ctx, audit.ActionFusionResolve, e.s)
	return e.s.Clone(), nil
}

// Abort moves a Proposed or Active session to Aborted.
func (m *Manager) Abort(ctx context.Context, id, reason string) (ir.FusionSession, error) {
	if reason == "" {
		return ir.FusionSession{}, ir.InvalidArgument("abort reason is required")
	}
	e, err := m.lookup(id)
	if err != nil {
		return ir.FusionSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.State.Terminal() {
		return e.s.Clone(), ir.InvalidStateTransition(id, e.s.State, ir.StateAborted)
	}
	m.abortLocked(ctx, e, reason)
	return e.s.Clone(), nil
}

// abortLocked commits the Aborted state. Callers hold e.mu.
func (m *Manager) abortLocked(ctx context.Context, e *entry, reason string) {
	now := m.wall.Now()
	e.s.State = ir.StateAborted
	e.s.AbortReason = reason
	e.s.ClosedAt = &now
	if e.timer != nil {
		e.timer.Stop()
	}
	slog.Info("fusion session aborted", "session_id", e.s.ID, "reason", reason)
	m.committed(ctx, audit.ActionFusionAbort, e.s)
}

// expire is the consent timer callback.
func (m *Manager) expire(id string) {
	e, err := m.lookup(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.State == ir.StateProposed {
		m.abortLocked(context.Background(), e, ReasonConsentTimeout)
	}
}

// committed runs the side effects of a transition: audit, archive of
// terminal sessions, observer. Callers hold the session lock, so observers
// see transitions in commit order.
func (m *Manager) committed(ctx context.Context, action string, s ir.FusionSession) {
	m.recorder.RecordOrLog(ctx, action, append([]string{s.ID}, s.ParticipantIDs...)...)
	if s.State.Terminal() && m.archive != nil {
		if err := m.archive.ArchiveSession(ctx, s.Clone()); err != nil {
			slog.Warn("fusion archive failed", "session_id", s.ID, "error", err)
		}
	}
	if m.observer != nil {
		m.observer(s.Clone())
	}
}

// Get returns a copy of a session.
func (m *Manager) Get(id string) (ir.FusionSession, error) {
	e, err := m.lookup(id)
	if err != nil {
		return ir.FusionSession{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), nil
}

// List returns copies of all sessions in creation order.
func (m *Manager) List() []ir.FusionSession {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.sessions[id])
	}
	m.mu.RUnlock()

	out := make([]ir.FusionSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.s.Clone())
		e.mu.Unlock()
	}
	return out
}

// Dispose stops every pending consent timer and rejects new sessions.
// Existing sessions keep their state.
func (m *Manager) Dispose() {
	m.mu.Lock()
	m.disposed = true
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ir.NotFound(id)
	}
	return e, nil
}
