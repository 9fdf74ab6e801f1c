package fusion

import (
	"fmt"
	"slices"

	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/resonance"
)

// computeOutcome combines the participants' attributes. The result depends
// only on the participant list and catalog state, never on timing.
func (m *Manager) computeOutcome(participantIDs []string) (ir.FusionOutcome, error) {
	views := make([]ir.EntityView, 0, len(participantIDs))
	for _, id := range participantIDs {
		v, err := m.entities.Entity(id)
		if err != nil {
			return ir.FusionOutcome{}, fmt.Errorf("resolve participant %s: %w", id, err)
		}
		views = append(views, v)
	}
	return Combine(m.calc, views)
}

// Combine builds an outcome from entity views: averaged numeric fields,
// unioned capability tags, the most frequent element, and the fusion
// resonance of the frequency stack. Only core attributes are read; the
// runtime resonance slot of each view is ignored.
func Combine(calc *resonance.Calculator, views []ir.EntityView) (ir.FusionOutcome, error) {
	if len(views) == 0 {
		return ir.FusionOutcome{}, ir.InvalidArgument("no participants to combine")
	}
	out := ir.FusionOutcome{
		Participants: make([]string, 0, len(views)),
		Capabilities: []string{},
	}
	counts := map[ir.Element]int{}
	members := make([][]float64, 0, len(views))
	n := float64(len(views))
	for _, v := range views {
		out.Participants = append(out.Participants, v.ID)
		counts[v.Element]++
		out.MeanNumerology += float64(v.NumerologyCore) / n
		out.MeanFrequencyHz += mean(v.FrequenciesHz) / n
		members = append(members, v.FrequenciesHz)
		for _, tag := range v.Tags {
			if !slices.Contains(out.Capabilities, tag) {
				out.Capabilities = append(out.Capabilities, tag)
			}
		}
	}
	slices.Sort(out.Capabilities)
	out.MeanResonance = meanPairResonance(calc, views)

	best := -1
	for _, e := range ir.Elements {
		if counts[e] > best {
			best = counts[e]
			out.DominantElement = e
		}
	}
	fr := calc.FusionResonance(members)
	out.PhiScore, out.Stability = fr.PhiScore, fr.Stability

	digest, err := ir.OutcomeDigest(out)
	if err != nil {
		return ir.FusionOutcome{}, err
	}
	out.Digest = digest
	return out, nil
}

// meanPairResonance is the mean pairwise resonance of the views.
func meanPairResonance(calc *resonance.Calculator, views []ir.EntityView) float64 {
	var sum float64
	var n int
	for i := 0; i < len(views); i++ {
		for j := i + 1; j < len(views); j++ {
			sum += calc.PairResonance(views[i], views[j])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func mean(fs []float64) float64 {
	if len(fs) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum / float64(len(fs))
}
