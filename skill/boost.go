package skill

import (
	"math"
	"math/rand"
	"sort"
)

// BoostExample is one labeled team-matchup feature vector.
type BoostExample struct {
	Features []float64
	TeamAWon bool
}

// Stump is one boosted decision stump: route on a single feature threshold,
// emit a leaf value on each side.
type Stump struct {
	Feature   int
	Threshold float64
	Left      float64 // value when feature <= threshold
	Right     float64
}

// BoostModel is a gradient-boosted stump classifier over the team-aggregate
// difference features, fit with logistic loss and Newton leaf values. It is
// deliberately shallow and heavily shrunk so the small local corpus cannot
// be memorized outright.
type BoostModel struct {
	Prior        float64 // log-odds of the base rate
	LearningRate float64
	Stumps       []Stump
	Trained      bool
}

// thresholdCandidates per feature when searching splits.
const thresholdCandidates = 16

// TrainBoost fits a boosted stump ensemble. Rounds, shrinkage and the
// per-round subsample fraction come from settings; the subsample draw is
// seeded so runs are reproducible.
func TrainBoost(examples []BoostExample, s *PredictorSettings, seed int64) *BoostModel {
	m := &BoostModel{LearningRate: s.BoostLearning}
	if len(examples) == 0 {
		return m
	}

	var positives int
	for _, ex := range examples {
		if ex.TeamAWon {
			positives++
		}
	}
	// Clamped base rate keeps the prior finite on one-sided corpora.
	rate := math.Max(0.01, math.Min(0.99, float64(positives)/float64(len(examples))))
	m.Prior = math.Log(rate / (1 - rate))

	rng := rand.New(rand.NewSource(seed))
	scores := make([]float64, len(examples))
	for i := range scores {
		scores[i] = m.Prior
	}

	for round := 0; round < s.BoostRounds; round++ {
		sample := subsample(rng, len(examples), s.BoostSubsample)
		stump, ok := fitStump(examples, scores, sample)
		if !ok {
			break
		}
		m.Stumps = append(m.Stumps, stump)
		for i, ex := range examples {
			scores[i] += m.LearningRate * stump.eval(ex.Features)
		}
	}

	m.Trained = len(m.Stumps) > 0
	return m
}

// PredictProb returns P(team A wins) for one feature vector.
func (m *BoostModel) PredictProb(features []float64) (float64, error) {
	if m == nil || !m.Trained {
		return 0, ErrModelUntrained
	}
	score := m.Prior
	for _, s := range m.Stumps {
		score += m.LearningRate * s.eval(features)
	}
	return sigmoid(score), nil
}

func (s *Stump) eval(features []float64) float64 {
	if s.Feature >= len(features) || features[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// fitStump finds the single split that best fits the current pseudo
// residuals over the sampled rows, with Newton-step leaf values
// (sum residual / sum hessian).
func fitStump(examples []BoostExample, scores []float64, sample []int) (Stump, bool) {
	if len(sample) == 0 {
		return Stump{}, false
	}
	dim := len(examples[sample[0]].Features)

	residuals := make([]float64, len(examples))
	hessians := make([]float64, len(examples))
	for _, i := range sample {
		p := sigmoid(scores[i])
		y := 0.0
		if examples[i].TeamAWon {
			y = 1.0
		}
		residuals[i] = y - p
		hessians[i] = math.Max(p*(1-p), 1e-6)
	}

	best := Stump{}
	bestGain := math.Inf(-1)
	found := false

	for f := 0; f < dim; f++ {
		for _, threshold := range candidateThresholds(examples, sample, f) {
			var rl, hl, rr, hr float64
			for _, i := range sample {
				if examples[i].Features[f] <= threshold {
					rl += residuals[i]
					hl += hessians[i]
				} else {
					rr += residuals[i]
					hr += hessians[i]
				}
			}
			if hl == 0 || hr == 0 {
				continue
			}
			gain := rl*rl/hl + rr*rr/hr
			if gain > bestGain {
				bestGain = gain
				best = Stump{Feature: f, Threshold: threshold, Left: rl / hl, Right: rr / hr}
				found = true
			}
		}
	}
	return best, found
}

func candidateThresholds(examples []BoostExample, sample []int, feature int) []float64 {
	values := make([]float64, 0, len(sample))
	for _, i := range sample {
		if feature < len(examples[i].Features) {
			values = append(values, examples[i].Features[feature])
		}
	}
	sort.Float64s(values)
	values = dedupeSorted(values)
	if len(values) < 2 {
		return nil
	}
	if len(values) <= thresholdCandidates {
		// Midpoints between adjacent distinct values.
		out := make([]float64, 0, len(values)-1)
		for i := 0; i+1 < len(values); i++ {
			out = append(out, (values[i]+values[i+1])/2)
		}
		return out
	}
	out := make([]float64, 0, thresholdCandidates)
	for q := 1; q <= thresholdCandidates; q++ {
		idx := q * (len(values) - 1) / (thresholdCandidates + 1)
		out = append(out, values[idx])
	}
	return dedupeSorted(out)
}

func dedupeSorted(v []float64) []float64 {
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != v[i-1] {
			out = append(out, x)
		}
	}
	return out
}

func subsample(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1.0 || n <= 2 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	k := int(math.Ceil(fraction * float64(n)))
	perm := rng.Perm(n)
	out := perm[:k]
	sort.Ints(out)
	return out
}
