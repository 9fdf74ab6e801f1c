// Package engine is the explicit context object of the codex. It boots every
// component in data-flow order, owns the periodic scheduler and the event
// queue, exposes the query/command surface and tears everything down.
//
// BOOT ORDER:
//
//  1. configuration (already loaded by the caller)
//  2. audit ledger (SQLite store when configured, in-memory otherwise)
//  3. entity catalog
//  4. mapping artifacts
//  5. hard integrity pass; fatal violations abort boot
//  6. card mirrors and resonance strength, unless mirroring is disabled
//  7. health monitor, fusion manager, synchronization coordinator
//
// EVENTS:
//
// Components publish pass summaries, health alerts and soft validation
// reports through callbacks that only enqueue. Run (or Flush) drains the
// queue on a single goroutine and fans each event out to the log, the audit
// ledger, the report store and metrics.
//
// There is no package-level state; every Engine is independent.
package engine
