package ir

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Element is the elemental attribute shared by both taxonomies.
type Element string

const (
	ElementFire  Element = "fire"
	ElementWater Element = "water"
	ElementAir   Element = "air"
	ElementEarth Element = "earth"
	ElementEther Element = "ether"
)

// Elements lists every element in canonical order. Order matters: it breaks
// ties when a fusion outcome picks a dominant element.
var Elements = []Element{ElementFire, ElementWater, ElementAir, ElementEarth, ElementEther}

// Valid reports whether e is a known element.
func (e Element) Valid() bool {
	for _, known := range Elements {
		if e == known {
			return true
		}
	}
	return false
}

// EntityKind distinguishes the two taxonomies.
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindCard EntityKind = "card"
)

// LatticeNode is an entity of the 99/144-element lattice.
// Core fields are immutable once the catalog is built.
type LatticeNode struct {
	ID              int     `json:"id"`
	NumerologyCore  int     `json:"numerology_core"`
	Element         Element `json:"element"`
	GeometryTag     string  `json:"geometry_tag"`
	BaseFrequencyHz float64 `json:"base_frequency_hz"`
	RelatedIDs      []int   `json:"related_ids"`
}

// Key returns the boundary identifier of the node ("node_73").
func (n LatticeNode) Key() string {
	return NodeKey(n.ID)
}

// NodeKey formats a lattice id as a boundary identifier.
func NodeKey(id int) string {
	return "node_" + strconv.Itoa(id)
}

// ParseNodeKey parses "node_<n>". The second result is false for anything else.
func ParseNodeKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, "node_")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CardKind is major or minor arcana.
type CardKind string

const (
	CardMajor CardKind = "major"
	CardMinor CardKind = "minor"
)

// Suit is one of the four minor arcana suits.
type Suit string

const (
	SuitWands     Suit = "wands"
	SuitCups      Suit = "cups"
	SuitSwords    Suit = "swords"
	SuitPentacles Suit = "pentacles"
)

// Suits lists the suits in deck order.
var Suits = []Suit{SuitWands, SuitCups, SuitSwords, SuitPentacles}

// ArcanaCard is an entity of the 78-card deck.
//
// MirroredNodeIDs and ResonanceStrength are derived after boot; the catalog
// stores them outside the immutable core and merges them into returned copies.
type ArcanaCard struct {
	ID                string   `json:"id"`
	Ordinal           int      `json:"ordinal"`
	Kind              CardKind `json:"kind"`
	Name              string   `json:"name"`
	Suit              Suit     `json:"suit,omitempty"`
	Rank              int      `json:"rank,omitempty"`
	Element           Element  `json:"element"`
	Planet            string   `json:"planet,omitempty"`
	HebrewLetter      string   `json:"hebrew_letter,omitempty"`
	FrequencyHz       float64  `json:"frequency_hz"`
	Keywords          []string `json:"keywords"`
	MirroredNodeIDs   []int    `json:"mirrored_node_ids"`
	ResonanceStrength float64  `json:"resonance_strength"`
}

// NumerologyCore reduces the card ordinal to 1..9. Ordinal 0 reduces to 9.
func (c ArcanaCard) NumerologyCore() int {
	return ((c.Ordinal+8)%9 + 1)
}

// EntityView is the taxonomy-neutral projection used by fusion, health and
// synchronization. It is a copy; mutating it changes nothing in the catalog.
type EntityView struct {
	ID             string     `json:"id"`
	Kind           EntityKind `json:"kind"`
	Element        Element    `json:"element"`
	NumerologyCore int        `json:"numerology_core"`
	FrequenciesHz  []float64  `json:"frequencies_hz"`
	Tags           []string   `json:"tags"`
	Related        []string   `json:"related"`
	Resonance      float64    `json:"resonance"`
}

// SessionState is the fusion session lifecycle state.
type SessionState string

const (
	StateProposed SessionState = "proposed"
	StateActive   SessionState = "active"
	StateResolved SessionState = "resolved"
	StateAborted  SessionState = "aborted"
)

// Terminal reports whether no transition may leave s.
func (s SessionState) Terminal() bool {
	return s == StateResolved || s == StateAborted
}

// FusionOutcome is the deterministic product of a resolved session.
type FusionOutcome struct {
	Participants    []string `json:"participants"`
	DominantElement Element  `json:"dominant_element"`
	MeanNumerology  float64  `json:"mean_numerology"`
	MeanFrequencyHz float64  `json:"mean_frequency_hz"`
	MeanResonance   float64  `json:"mean_resonance"`
	Capabilities    []string `json:"capabilities"`
	PhiScore        float64  `json:"phi_score"`
	Stability       float64  `json:"stability"`
	Digest          string   `json:"digest"`
}

// FusionSession combines two or more entities under consent gating.
type FusionSession struct {
	ID              string         `json:"id"`
	ParticipantIDs  []string       `json:"participant_ids"`
	FusionType      string         `json:"fusion_type"`
	Intensity       int            `json:"intensity"`
	State           SessionState   `json:"state"`
	SafetyProtocols []string       `json:"safety_protocols"`
	CreatedAt       time.Time      `json:"created_at"`
	ConsentedAt     *time.Time     `json:"consented_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	AbortReason     string         `json:"abort_reason,omitempty"`
	Outcome         *FusionOutcome `json:"outcome,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the manager.
func (s FusionSession) Clone() FusionSession {
	out := s
	out.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	out.SafetyProtocols = append([]string(nil), s.SafetyProtocols...)
	if s.ConsentedAt != nil {
		t := *s.ConsentedAt
		out.ConsentedAt = &t
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	if s.Outcome != nil {
		o := *s.Outcome
		o.Participants = append([]string(nil), s.Outcome.Participants...)
		o.Capabilities = append([]string(nil), s.Outcome.Capabilities...)
		out.Outcome = &o
	}
	return out
}

// Severity is the discrete alert tier derived from a health value.
type Severity string

const (
	SeverityHealthy  Severity = "healthy"
	SeverityNominal  Severity = "nominal"
	SeverityCaution  Severity = "caution"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised when a health value crosses a tier downward.
type Alert struct {
	EntityID  string    `json:"entity_id"`
	Severity  Severity  `json:"severity"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	RaisedAt  time.Time `json:"raised_at"`
}

// HealthRecord is the per-entity health state.
type HealthRecord struct {
	EntityID     string    `json:"entity_id"`
	Value        float64   `json:"value"`
	Severity     Severity  `json:"severity"`
	DecayRate    float64   `json:"decay_rate"`
	RegenRate    float64   `json:"regen_rate"`
	LastUpdated  time.Time `json:"last_updated"`
	ActiveAlerts []Alert   `json:"active_alerts"`
}

// HealthReport aggregates all health records.
type HealthReport struct {
	OverallHealth    float64        `json:"overall_health"`
	PerEntity        []HealthRecord `json:"per_entity"`
	CriticalEntities []string       `json:"critical_entities"`
	// Violations carries the findings of the latest soft validation pass.
	Violations []Violation `json:"violations,omitempty"`
}

// ViolationKind categorizes integrity violations.
type ViolationKind string

const (
	ViolationCountMismatch      ViolationKind = "count_mismatch"
	ViolationCountDiscrepancy   ViolationKind = "count_discrepancy"
	ViolationDuplicateID        ViolationKind = "duplicate_id"
	ViolationDuplicateComponent ViolationKind = "duplicate_component"
	ViolationMappingMissing     ViolationKind = "mapping_missing"
	ViolationMappingMalformed   ViolationKind = "mapping_malformed"
	ViolationMappingDangling    ViolationKind = "mapping_dangling"
)

// Violation is a single integrity finding.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Entities []string      `json:"entities"`
	Message  string        `json:"message"`
	Fatal    bool          `json:"fatal"`
}

// String renders the violation for logs.
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s %v", v.Kind, v.Message, v.Entities)
}

// ValidationMode selects how a report is consumed.
type ValidationMode string

const (
	// ValidationHard runs at boot; fatal violations abort startup.
	ValidationHard ValidationMode = "hard"
	// ValidationSoft runs during periodic sweeps; findings are surfaced only.
	ValidationSoft ValidationMode = "soft"
)

// ValidationReport is the output of an integrity pass.
type ValidationReport struct {
	ID                 string         `json:"id"`
	Mode               ValidationMode `json:"mode"`
	Timestamp          time.Time      `json:"timestamp"`
	Violations         []Violation    `json:"violations"`
	Pass               bool           `json:"pass"`
	DisabledFeatures   []string       `json:"disabled_features"`
	CatalogFingerprint string         `json:"catalog_fingerprint,omitempty"`
	Cancelled          bool           `json:"cancelled,omitempty"`
}

// Fatal returns the fatal subset of the violations.
func (r ValidationReport) Fatal() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Fatal {
			out = append(out, v)
		}
	}
	return out
}

// AuditRecord is an append-only ledger entry.
type AuditRecord struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Action    string    `json:"action"`
	EntityIDs []string  `json:"entity_ids"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
}

// PairResult is the outcome of synchronizing one source/target pair.
type PairResult struct {
	SourceID       string  `json:"source_id"`
	TargetID       string  `json:"target_id"`
	Resonance      float64 `json:"resonance"`
	EnergyTransfer float64 `json:"energy_transfer"`
	Error          string  `json:"error,omitempty"`
}

// OK reports whether the pair synchronized without error.
func (p PairResult) OK() bool {
	return p.Error == ""
}

// PassSummary describes one global synchronization pass.
type PassSummary struct {
	Seq             int64     `json:"seq"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Processed       int       `json:"processed"`
	Failed          []string  `json:"failed"`
	Retried         int       `json:"retried"`
	PairsScored     int       `json:"pairs_scored"`
	GlobalResonance float64   `json:"global_resonance"`
	Partial         bool      `json:"partial"`
	Cancelled       bool      `json:"cancelled"`
	Cursor          int       `json:"cursor"`
	AlertsRaised    int       `json:"alerts_raised"`
	Violations      int       `json:"violations"`
}

// EventType distinguishes published events.
type EventType string

const (
	EventPassSummary EventType = "pass.summary"
	EventAlert       EventType = "health.alert"
	EventValidation  EventType = "validation.report"
)

// Event wraps a published notification. Exactly one payload is set.
type Event struct {
	Type   EventType         `json:"type"`
	Pass   *PassSummary      `json:"pass,omitempty"`
	Alert  *Alert            `json:"alert,omitempty"`
	Report *ValidationReport `json:"report,omitempty"`
}
