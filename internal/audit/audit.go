// Package audit is the append-only ledger capability. Core components
// depend only on Ledger; MemoryLedger serves tests and the durable
// implementation lives in the store package.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/codex/internal/clock"
	"github.com/roach88/codex/internal/ir"
)

// Action names recorded in the ledger.
const (
	ActionFusionPropose = "fusion.propose"
	ActionFusionConsent = "fusion.consent"
	ActionFusionResolve = "fusion.resolve"
	ActionFusionAbort   = "fusion.abort"
	ActionPassSummary   = "sync.pass"
	ActionValidation    = "integrity.validate"
	ActionHealthAlert   = "health.alert"
)

// SystemActor is recorded when no actor is attached to the context.
const SystemActor = "system"

// Ledger is the narrow persistence capability.
type Ledger interface {
	Append(ctx context.Context, rec ir.AuditRecord) error
	LoadAll(ctx context.Context) ([]ir.AuditRecord, error)
}

type actorKey struct{}

// WithActor attaches the acting principal to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}

// Recorder stamps records with a sequence number, timestamp, actor and
// content-addressed id before appending them.
type Recorder struct {
	ledger Ledger
	seq    *clock.Logical
	wall   clock.Wall
}

// NewRecorder creates a recorder whose sequence resumes after start.
func NewRecorder(ledger Ledger, wall clock.Wall, start int64) *Recorder {
	if wall == nil {
		wall = clock.System{}
	}
	return &Recorder{ledger: ledger, seq: clock.NewLogicalAt(start), wall: wall}
}

// Record appends one entry. A nil recorder records nothing.
func (r *Recorder) Record(ctx context.Context, action string, entityIDs ...string) (ir.AuditRecord, error) {
	if r == nil {
		return ir.AuditRecord{}, nil
	}
	rec := ir.AuditRecord{
		Seq:       r.seq.Next(),
		Action:    action,
		EntityIDs: slices.Clone(entityIDs),
		Timestamp: r.wall.Now(),
		Actor:     ActorFrom(ctx),
	}
	if rec.EntityIDs == nil {
		rec.EntityIDs = []string{}
	}
	id, err := ir.AuditRecordID(rec.Action, rec.EntityIDs, rec.Actor, rec.Timestamp, rec.Seq)
	if err != nil {
		return rec, err
	}
	rec.ID = id
	if err := r.ledger.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("append %s: %w", action, err)
	}
	return rec, nil
}

// RecordOrLog is Record for callers that must not fail on ledger errors.
func (r *Recorder) RecordOrLog(ctx context.Context, action string, entityIDs ...string) {
	if _, err := r.Record(ctx, action, entityIDs...); err != nil {
		slog.Warn("audit append failed",
			"action", action,
			"entity_ids", entityIDs,
			"error", err,
		)
	}
}

// Seq returns the last issued sequence number.
func (r *Recorder) Seq() int64 {
	if r == nil {
		return 0
	}
	return r.seq.Current()
}

// MemoryLedger keeps records in memory.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemoryLedger struct {
	mu      sync.Mutex
	records []ir.AuditRecord
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append stores a copy of rec.
func (l *MemoryLedger) Append(_ context.Context, rec ir.AuditRecord) error {
	rec.EntityIDs = slices.Clone(rec.EntityIDs)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// LoadAll returns every record in sequence order.
func (l *MemoryLedger) LoadAll(_ context.Context) ([]ir.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ir.AuditRecord, len(l.records))
	for i, r := range l.records {
		r.EntityIDs = slices.Clone(r.EntityIDs)
		out[i] = r
	}
	slices.SortStableFunc(out, func(a, b ir.AuditRecord) int {
		return int(a.Seq - b.Seq)
	})
	return out, nil
}
