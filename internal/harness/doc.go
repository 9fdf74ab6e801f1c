// Package harness runs YAML scenarios against a real engine.
//
// # Scenario Format
//
//	name: fusion_lifecycle
//	description: "Propose, consent and resolve a two-card fusion"
//	config: |
//	  consentTimeoutMs: 1000
//	mappings: generated   # or "none" to boot with mirroring disabled
//	steps:
//	  - op: create
//	    as: s1
//	    participants: [card_0_fool, card_1_magician]
//	    fusion_type: union
//	    expect: { state: proposed }
//	  - op: consent
//	    session: s1
//	  - op: advance
//	    duration: 90s
//	  - op: pass
//	  - op: health
//	    id: node_1
//	    expect: { severity: critical }
//	assertions:
//	  - type: audit_order
//	    actions: [fusion.propose, fusion.consent]
//	  - type: session_state
//	    session: s1
//	    state: active
//
// Ops: create, consent, resolve, abort, advance, pass, sync, resonance,
// node, card, health. A step without expect.error fails the scenario if it
// returns an error.
//
// Assertion types:
//
//   - audit_order: actions appear in the ledger in this order
//   - audit_count: an action appears exactly count times
//   - session_state: a named session ends in state
//   - health_between: overall health lies in [min, max]
//   - disabled_features: the boot report disabled exactly these features
//
// # Deterministic Execution
//
// Every scenario boots a fresh engine on an in-memory SQLite store with a
// fake clock at testutil.Epoch and sequential session ids. Events are
// flushed after every step. The trace quantizes floats to micros, so
// identical scenarios produce byte-identical snapshots for golden
// comparison.
package harness
