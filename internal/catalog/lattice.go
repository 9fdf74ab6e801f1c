package catalog

import (
	"math"
	"slices"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/ir"
)

// octaveSpan is the number of ids sharing one octave of the solfeggio table.
const octaveSpan = 36

// NumerologyCore reduces a lattice id to 1..9.
func NumerologyCore(id int) int {
	return ((id-1)%9+9)%9 + 1
}

// ElementOf maps a lattice id to its element. Ids divisible by etherDivisor
// belong to the ether tier; the rest cycle fire, water, air, earth.
func ElementOf(id, etherDivisor int) ir.Element {
	if etherDivisor > 0 && id%etherDivisor == 0 {
		return ir.ElementEther
	}
	switch id % 4 {
	case 1:
		return ir.ElementFire
	case 2:
		return ir.ElementWater
	case 3:
		return ir.ElementAir
	default:
		return ir.ElementEarth
	}
}

// GenerateLattice builds n nodes. It is pure: the same n and tables always
// produce identical output.
func GenerateLattice(n int, cfg *config.Config) []ir.LatticeNode {
	if n <= 0 {
		return []ir.LatticeNode{}
	}
	nodes := make([]ir.LatticeNode, n)
	for i := range nodes {
		id := i + 1
		core := NumerologyCore(id)
		nodes[i] = ir.LatticeNode{
			ID:              id,
			NumerologyCore:  core,
			Element:         ElementOf(id, cfg.EtherDivisor),
			GeometryTag:     cfg.Tables.GeometryTags[core-1],
			BaseFrequencyHz: cfg.Tables.SolfeggioHz[core-1] * math.Exp2(float64((id-1)/octaveSpan)),
			RelatedIDs:      relatedIDs(id, n),
		}
	}
	return nodes
}

// relatedIDs links a node to its ring neighbours and to the node one
// numerology cycle ahead.
func relatedIDs(id, n int) []int {
	wrap := func(x int) int { return ((x-1)%n+n)%n + 1 }
	var out []int
	for _, r := range []int{wrap(id - 1), wrap(id + 1), wrap(id + 9)} {
		if r != id && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}
