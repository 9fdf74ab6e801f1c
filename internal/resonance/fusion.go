package resonance

import (
	"math"
	"slices"
)

// FusionResult describes the frequency stack of a set of fusing members.
type FusionResult struct {
	Frequencies []float64 `json:"frequencies"`
	Comparisons int       `json:"comparisons"`
	Hits        int       `json:"hits"`
	PhiScore    float64   `json:"phi_score"`
	Variance    float64   `json:"variance"`
	Regularity  float64   `json:"regularity"`
	Stability   float64   `json:"stability"`
}

// FusionResonance unions the members' frequencies and scores how many
// unordered pairs sit within tolerance of the golden ratio, and how evenly
// the frequencies are spaced.
//
// PhiScore is in [0,1] and 0 without comparisons. Stability is in
// [0, coherenceBase].
func (c *Calculator) FusionResonance(members [][]float64) FusionResult {
	var freqs []float64
	for _, m := range members {
		for _, f := range m {
			if f > 0 && !math.IsInf(f, 0) && !slices.Contains(freqs, f) {
				freqs = append(freqs, f)
			}
		}
	}
	slices.Sort(freqs)
	res := FusionResult{Frequencies: freqs, Regularity: 1}
	if res.Frequencies == nil {
		res.Frequencies = []float64{}
	}

	for i := 0; i < len(freqs); i++ {
		for j := i + 1; j < len(freqs); j++ {
			res.Comparisons++
			if math.Abs(freqs[j]/freqs[i]-c.goldenRatio) <= c.phiTolerance {
				res.Hits++
			}
		}
	}
	if res.Comparisons > 0 {
		res.PhiScore = float64(res.Hits) / float64(res.Comparisons)
	}

	if len(freqs) > 2 {
		gaps := make([]float64, len(freqs)-1)
		var mean float64
		for i := range gaps {
			gaps[i] = freqs[i+1] - freqs[i]
			mean += gaps[i]
		}
		mean /= float64(len(gaps))
		for _, g := range gaps {
			res.Variance += (g - mean) * (g - mean)
		}
		res.Variance /= float64(len(gaps))
		res.Regularity = 1 / (1 + res.Variance/c.regularityK)
	}
	res.Stability = clamp(c.coherenceBase*res.Regularity, 0, c.coherenceBase)
	return res
}
