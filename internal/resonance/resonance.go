// Package resonance computes card to node mirroring and the resonance and
// fusion-frequency scores. Every function is pure: results depend only on
// the arguments and the configuration tables.
package resonance

import (
	"math"
	"slices"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// MaxMirrors caps the number of nodes a card mirrors.
const MaxMirrors = 3

// Calculator holds the tuning constants. It has no mutable state and is
// safe for concurrent use.
type Calculator struct {
	latticeSize         int
	affinityWeight      float64
	harmonicWeight      float64
	intervals           []int
	harmonics           map[string][]int
	goldenRatio         float64
	phiTolerance        float64
	coherenceBase       float64
	regularityK         float64
	transferCoefficient float64
}

// New builds a calculator from configuration.
func New(cfg *config.Config) *Calculator {
	intervals := append([]int{0}, cfg.HarmonicIntervals...)
	slices.Sort(intervals)
	return &Calculator{
		latticeSize:         cfg.LatticeSize,
		affinityWeight:      cfg.AffinityWeight,
		harmonicWeight:      cfg.HarmonicWeight,
		intervals:           slices.Compact(intervals),
		harmonics:           cfg.Tables.ElementalHarmonics,
		goldenRatio:         cfg.GoldenRatio,
		phiTolerance:        cfg.PhiTolerance,
		coherenceBase:       cfg.CoherenceBase,
		regularityK:         cfg.RegularityK,
		transferCoefficient: cfg.TransferCoefficient,
	}
}

// MirroredNodes returns 1 to 3 lattice ids for a card. The primary node is
// (ordinal mod latticeSize)+1; secondaries are offsets from the primary
// taken from the elemental-harmonic table.
func (c *Calculator) MirroredNodes(card ir.ArcanaCard) []int {
	n := c.latticeSize
	if n <= 0 {
		return []int{}
	}
	primary := card.Ordinal%n + 1
	out := []int{primary}
	for _, off := range c.harmonics[string(card.Element)] {
		if len(out) == MaxMirrors {
			break
		}
		id := ((primary-1+off)%n+n)%n + 1
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// HarmonicDistance reduces the absolute numerology difference against the
// harmonic interval set. 0 means the pair sits exactly on an interval.
func (c *Calculator) HarmonicDistance(a, b int) int {
	raw := a - b
	if raw < 0 {
		raw = -raw
	}
	best := raw
	for _, h := range c.intervals {
		d := raw - h
		if d < 0 {
			d = -d
		}
		best = min(best, d)
	}
	return best
}

// Affinity reports whether two elements resonate: equal, either is ether,
// or a complementary pair (fire/air, water/earth).
func Affinity(a, b ir.Element) bool {
	if a == b || a == ir.ElementEther || b == ir.ElementEther {
		return true
	}
	pair := [2]ir.Element{min(a, b), max(a, b)}
	return pair == [2]ir.Element{ir.ElementAir, ir.ElementFire} ||
		pair == [2]ir.Element{ir.ElementEarth, ir.ElementWater}
}

// Score combines elemental affinity and harmonic distance. It is
// non-increasing in distance and clamped to [0,1].
func (c *Calculator) Score(affinity bool, distance int) float64 {
	var a float64
	if affinity {
		a = 1
	}
	if distance < 0 {
		distance = 0
	}
	return clamp(c.affinityWeight*a+c.harmonicWeight/(1+float64(distance)), 0, 1)
}

// ResonanceStrength is the mean score of a card against its nodes, or 0
// when there are none.
func (c *Calculator) ResonanceStrength(card ir.ArcanaCard, nodes []ir.LatticeNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	core := card.NumerologyCore()
	var sum float64
	for _, n := range nodes {
		sum += c.Score(Affinity(card.Element, n.Element), c.HarmonicDistance(core, n.NumerologyCore))
	}
	return clamp(sum/float64(len(nodes)), 0, 1)
}

// PairResonance scores any two entities from either taxonomy.
func (c *Calculator) PairResonance(a, b ir.EntityView) float64 {
	return c.Score(Affinity(a.Element, b.Element), c.HarmonicDistance(a.NumerologyCore, b.NumerologyCore))
}

// Intensity maps an aggregate resonance onto 1..10.
func Intensity(r float64) int {
	if math.IsNaN(r) {
		return 1
	}
	return int(clamp(1+math.Round(9*clamp(r, 0, 1)), 1, 10))
}

// EnergyTransfer is the energy moved along a pair with resonance r from a
// source whose health is sourceHealth.
func (c *Calculator) EnergyTransfer(r, sourceHealth float64) float64 {
	return clamp(r, 0, 1) * clamp(sourceHealth, 0, 1) * c.transferCoefficient
}

// CoherenceBase is the upper bound of fusion stability.
func (c *Calculator) CoherenceBase() float64 { return c.coherenceBase }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
