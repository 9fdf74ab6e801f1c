package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCatalog = "codex/catalog/v1"
	DomainOutcome = "codex/outcome/v1"
	DomainAudit   = "codex/audit/v1"
	DomainReport  = "codex/report/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalNode renders the immutable core of a node as an IR object.
func CanonicalNode(n LatticeNode) IRObject {
	return IRObject{
		"id":                IRInt(n.ID),
		"numerology_core":   IRInt(n.NumerologyCore),
		"element":           IRString(n.Element),
		"geometry_tag":      IRString(n.GeometryTag),
		"base_frequency_hz": Micros(n.BaseFrequencyHz),
		"related_ids":       Ints(n.RelatedIDs),
	}
}

// CanonicalCard renders the immutable core of a card as an IR object.
// Derived fields (mirrors, resonance) are excluded.
func CanonicalCard(c ArcanaCard) IRObject {
	return IRObject{
		"id":            IRString(c.ID),
		"ordinal":       IRInt(c.Ordinal),
		"kind":          IRString(c.Kind),
		"name":          IRString(c.Name),
		"suit":          IRString(c.Suit),
		"rank":          IRInt(c.Rank),
		"element":       IRString(c.Element),
		"planet":        IRString(c.Planet),
		"hebrew_letter": IRString(c.HebrewLetter),
		"frequency_hz":  Micros(c.FrequencyHz),
		"keywords":      Strings(c.Keywords),
	}
}

// CatalogFingerprint hashes the immutable cores of both taxonomies.
// Two catalogs built from the same tables and config share a fingerprint.
func CatalogFingerprint(nodes []LatticeNode, cards []ArcanaCard) (string, error) {
	ns := make(IRArray, 0, len(nodes))
	for _, n := range nodes {
		ns = append(ns, CanonicalNode(n))
	}
	cs := make(IRArray, 0, len(cards))
	for _, c := range cards {
		cs = append(cs, CanonicalCard(c))
	}
	canonical, err := MarshalCanonical(IRObject{
		"schema_version": IRString(SchemaVersion),
		"tables_version": IRString(TablesVersion),
		"nodes":          ns,
		"cards":          cs,
	})
	if err != nil {
		return "", fmt.Errorf("CatalogFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCatalog, canonical), nil
}

// OutcomeDigest hashes a fusion outcome. The Digest field itself is ignored,
// so the digest of an outcome is stable whether or not it was already set.
func OutcomeDigest(o FusionOutcome) (string, error) {
	obj := IRObject{
		"participants":      Strings(o.Participants),
		"dominant_element":  IRString(o.DominantElement),
		"mean_numerology":   Micros(o.MeanNumerology),
		"mean_frequency_hz": Micros(o.MeanFrequencyHz),
		"mean_resonance":    Micros(o.MeanResonance),
		"capabilities":      Strings(o.Capabilities),
		"phi_score":         Micros(o.PhiScore),
		"stability":         Micros(o.Stability),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OutcomeDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOutcome, canonical), nil
}

// AuditRecordID computes the content-addressed id of a ledger entry.
func AuditRecordID(action string, entityIDs []string, actor string, ts time.Time, seq int64) (string, error) {
	obj := IRObject{
		"action":     IRString(action),
		"entity_ids": Strings(entityIDs),
		"actor":      IRString(actor),
		"ts":         IRInt(ts.UnixNano()),
		"seq":        IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("AuditRecordID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainAudit, canonical), nil
}

// ReportID computes the id of a validation report from its content.
func ReportID(mode ValidationMode, ts time.Time, fingerprint string, violations []Violation) (string, error) {
	vs := make(IRArray, 0, len(violations))
	for _, v := range violations {
		vs = append(vs, IRObject{
			"kind":     IRString(v.Kind),
			"entities": Strings(v.Entities),
			"message":  IRString(v.Message),
			"fatal":    IRBool(v.Fatal),
		})
	}
	canonical, err := MarshalCanonical(IRObject{
		"mode":        IRString(mode),
		"ts":          IRInt(ts.UnixNano()),
		"fingerprint": IRString(fingerprint),
		"violations":  vs,
	})
	if err != nil {
		return "", fmt.Errorf("ReportID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReport, canonical), nil
}
