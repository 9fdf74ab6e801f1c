// Package catalog builds and serves the two taxonomies: the lattice of
// numbered nodes and the 78-card deck.
//
// Core records are generated once and never mutated, so readers share them
// without locking. The only mutable state is the derived per-entity slot
// (card mirrors, current resonance), each guarded by its own lock.
package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// Catalog is the immutable entity store with per-entity derived slots.
type Catalog struct {
	cfg         *config.Config
	nodes       []ir.LatticeNode
	cards       []ir.ArcanaCard
	nodeIndex   map[int]int
	cardIndex   map[string]int
	slots       map[string]*slot
	fingerprint string
}

// slot holds the mutable fields of one entity.
type slot struct {
	mu        sync.RWMutex
	mirrors   []int
	resonance float64
}

// Option customizes catalog construction.
type Option func(*buildOptions)

type buildOptions struct {
	nodeCount int
	nodes     []ir.LatticeNode
	cards     []ir.ArcanaCard
}

// WithNodeCount generates n lattice nodes instead of the declared size.
func WithNodeCount(n int) Option {
	return func(o *buildOptions) { o.nodeCount = n }
}

// WithNodes replaces the generated lattice with externally supplied nodes.
func WithNodes(nodes []ir.LatticeNode) Option {
	return func(o *buildOptions) { o.nodes = nodes }
}

// WithCards replaces the generated deck with externally supplied cards.
func WithCards(cards []ir.ArcanaCard) Option {
	return func(o *buildOptions) { o.cards = cards }
}

// New builds the catalog. A size mismatch against the declared
// configuration is a fatal ConfigurationError.
//
// Duplicate ids are not rejected here; the first occurrence is indexed and
// the hard integrity pass reports the duplicate.
func New(cfg *config.Config, opts ...Option) (*Catalog, error) {
	o := buildOptions{nodeCount: cfg.LatticeSize}
	for _, opt := range opts {
		opt(&o)
	}

	nodes := o.nodes
	if nodes == nil {
		nodes = GenerateLattice(o.nodeCount, cfg)
	}
	cards := o.cards
	if cards == nil {
		cards = GenerateCards(cfg)
	}

	if len(nodes) != cfg.LatticeSize {
		return nil, ir.ConfigurationError(
			fmt.Sprintf("lattice has %d nodes, declared latticeSize is %d", len(nodes), cfg.LatticeSize),
			ir.Violation{
				Kind:     ir.ViolationCountMismatch,
				Entities: []string{"lattice"},
				Message:  fmt.Sprintf("expected %d nodes, got %d", cfg.LatticeSize, len(nodes)),
				Fatal:    true,
			})
	}
	if len(cards) != cfg.CardCount {
		return nil, ir.ConfigurationError(
			fmt.Sprintf("deck has %d cards, declared cardCount is %d", len(cards), cfg.CardCount),
			ir.Violation{
				Kind:     ir.ViolationCountMismatch,
				Entities: []string{"cards"},
				Message:  fmt.Sprintf("expected %d cards, got %d", cfg.CardCount, len(cards)),
				Fatal:    true,
			})
	}

	c := &Catalog{
		cfg:       cfg,
		nodes:     nodes,
		cards:     cards,
		nodeIndex: make(map[int]int, len(nodes)),
		cardIndex: make(map[string]int, len(cards)),
		slots:     make(map[string]*slot, len(nodes)+len(cards)),
	}
	for i, n := range nodes {
		if _, dup := c.nodeIndex[n.ID]; !dup {
			c.nodeIndex[n.ID] = i
			c.slots[n.Key()] = &slot{}
		}
	}
	for i, card := range cards {
		if _, dup := c.cardIndex[card.ID]; !dup {
			c.cardIndex[card.ID] = i
			c.slots[card.ID] = &slot{mirrors: slices.Clone(card.MirroredNodeIDs), resonance: card.ResonanceStrength}
		}
	}

	fp, err := ir.CatalogFingerprint(nodes, cards)
	if err != nil {
		return nil, fmt.Errorf("catalog fingerprint: %w", err)
	}
	c.fingerprint = fp
	return c, nil
}

// Config returns the configuration the catalog was built with.
func (c *Catalog) Config() *config.Config { return c.cfg }

// Fingerprint identifies the immutable catalog content.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// Node returns a copy of the node with the given id.
func (c *Catalog) Node(id int) (ir.LatticeNode, error) {
	i, ok := c.nodeIndex[id]
	if !ok {
		return ir.LatticeNode{}, ir.NotFound(ir.NodeKey(id))
	}
	n := c.nodes[i]
	n.RelatedIDs = slices.Clone(n.RelatedIDs)
	return n, nil
}

// NodeByKey resolves "node_<n>" or a bare integer.
func (c *Catalog) NodeByKey(key string) (ir.LatticeNode, error) {
	id, ok := ir.ParseNodeKey(key)
	if !ok {
		n, err := strconv.Atoi(key)
		if err != nil {
			return ir.LatticeNode{}, ir.NotFound(key)
		}
		id = n
	}
	return c.Node(id)
}

// Card returns a copy of the card with its current derived fields merged in.
func (c *Catalog) Card(id string) (ir.ArcanaCard, error) {
	i, ok := c.cardIndex[id]
	if !ok {
		return ir.ArcanaCard{}, ir.NotFound(id)
	}
	return c.cardAt(i), nil
}

func (c *Catalog) cardAt(i int) ir.ArcanaCard {
	card := c.cards[i]
	card.Keywords = slices.Clone(card.Keywords)
	s := c.slots[card.ID]
	s.mu.RLock()
	card.MirroredNodeIDs = slices.Clone(s.mirrors)
	card.ResonanceStrength = s.resonance
	s.mu.RUnlock()
	if card.MirroredNodeIDs == nil {
		card.MirroredNodeIDs = []int{}
	}
	return card
}

// Nodes returns copies of all nodes in id order.
func (c *Catalog) Nodes() []ir.LatticeNode {
	out := make([]ir.LatticeNode, len(c.nodes))
	for i, n := range c.nodes {
		n.RelatedIDs = slices.Clone(n.RelatedIDs)
		out[i] = n
	}
	return out
}

// Cards returns copies of all cards in ordinal order.
func (c *Catalog) Cards() []ir.ArcanaCard {
	out := make([]ir.ArcanaCard, len(c.cards))
	for i := range c.cards {
		out[i] = c.cardAt(i)
	}
	return out
}

// Size returns the node and card counts.
func (c *Catalog) Size() (nodes, cards int) {
	return len(c.nodes), len(c.cards)
}

// EntityIDs lists every indexed entity: nodes in id order, then cards in
// ordinal order.
func (c *Catalog) EntityIDs() []string {
	out := make([]string, 0, len(c.nodeIndex)+len(c.cardIndex))
	for i, n := range c.nodes {
		if c.nodeIndex[n.ID] == i {
			out = append(out, n.Key())
		}
	}
	for i, card := range c.cards {
		if c.cardIndex[card.ID] == i {
			out = append(out, card.ID)
		}
	}
	return out
}

// Has reports whether id names an indexed entity.
func (c *Catalog) Has(id string) bool {
	_, ok := c.slots[id]
	return ok
}

// Entity resolves any entity id to its taxonomy-neutral view.
func (c *Catalog) Entity(id string) (ir.EntityView, error) {
	if i, ok := c.cardIndex[id]; ok {
		card := c.cardAt(i)
		tags := []string{string(card.Element), string(card.Kind)}
		if card.Suit != "" {
			tags = append(tags, string(card.Suit))
		}
		tags = append(tags, card.Keywords...)
		related := make([]string, 0, len(card.MirroredNodeIDs))
		for _, nid := range card.MirroredNodeIDs {
			related = append(related, ir.NodeKey(nid))
		}
		return ir.EntityView{
			ID:             card.ID,
			Kind:           ir.KindCard,
			Element:        card.Element,
			NumerologyCore: card.NumerologyCore(),
			FrequenciesHz:  []float64{card.FrequencyHz},
			Tags:           dedupe(tags),
			Related:        related,
			Resonance:      card.ResonanceStrength,
		}, nil
	}

	n, err := c.NodeByKey(id)
	if err != nil {
		return ir.EntityView{}, ir.NotFound(id)
	}
	related := make([]string, 0, len(n.RelatedIDs))
	for _, r := range n.RelatedIDs {
		related = append(related, ir.NodeKey(r))
	}
	return ir.EntityView{
		ID:             n.Key(),
		Kind:           ir.KindNode,
		Element:        n.Element,
		NumerologyCore: n.NumerologyCore,
		FrequenciesHz:  []float64{n.BaseFrequencyHz},
		Tags:           dedupe([]string{string(n.Element), n.GeometryTag, "numerology_" + strconv.Itoa(n.NumerologyCore)}),
		Related:        related,
		Resonance:      c.Resonance(n.Key()),
	}, nil
}

// SetMirrors records the derived mirroring of a card.
func (c *Catalog) SetMirrors(cardID string, nodeIDs []int, strength float64) error {
	if _, ok := c.cardIndex[cardID]; !ok {
		return ir.NotFound(cardID)
	}
	s := c.slots[cardID]
	s.mu.Lock()
	s.mirrors = slices.Clone(nodeIDs)
	s.resonance = strength
	s.mu.Unlock()
	return nil
}

// SetResonance replaces the current resonance of an entity.
func (c *Catalog) SetResonance(id string, r float64) error {
	s, ok := c.slots[id]
	if !ok {
		return ir.NotFound(id)
	}
	s.mu.Lock()
	s.resonance = r
	s.mu.Unlock()
	return nil
}

// Resonance returns the current resonance of an entity, 0 if unknown.
func (c *Catalog) Resonance(id string) float64 {
	s, ok := c.slots[id]
	if !ok {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resonance
}

// RawNodes returns the nodes as constructed, duplicates included.
// It exists for integrity validation and must not be mutated.
func (c *Catalog) RawNodes() []ir.LatticeNode { return c.nodes }

// RawCards returns the cards as constructed, duplicates included.
// It exists for integrity validation and must not be mutated.
func (c *Catalog) RawCards() []ir.ArcanaCard { return c.cards }

func dedupe(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
