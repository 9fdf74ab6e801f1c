// Package ir provides the foundational record types for the codex registry.
//
// Every other internal package imports ir; ir imports nothing internal. The
// package holds:
//   - Catalog records (LatticeNode, ArcanaCard, EntityView)
//   - Runtime records (FusionSession, HealthRecord, ValidationReport,
//     AuditRecord, Event)
//   - The boundary error type (Error) and its classification helpers
//   - RFC 8785 canonical JSON and domain-separated digests
//
// Canonical JSON forbids floats. Float-valued fields (frequencies, resonance,
// health) enter a digest through Micros, which quantizes to integer
// millionths so that digests stay stable across platforms.
package ir
