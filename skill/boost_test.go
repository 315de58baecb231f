package skill

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boostCorpus builds a linearly separable corpus: team A wins iff the
// rating-diff feature is positive.
func boostCorpus(n int) []BoostExample {
	out := make([]BoostExample, 0, 2*n)
	for i := 0; i < n; i++ {
		diff := 0.5 + float64(i%5)*0.8
		win := make([]float64, FeatureDim)
		loss := make([]float64, FeatureDim)
		win[0] = diff
		loss[0] = -diff
		// Noise columns that should not matter.
		win[8] = float64(i % 3)
		loss[8] = float64(i % 3)
		out = append(out,
			BoostExample{Features: win, TeamAWon: true},
			BoostExample{Features: loss, TeamAWon: false},
		)
	}
	return out
}

func TestTrainBoostEmptyCorpus(t *testing.T) {
	s := &DefaultSettings().Predictor
	m := TrainBoost(nil, s, 1)

	assert.False(t, m.Trained)
	_, err := m.PredictProb(make([]float64, FeatureDim))
	assert.ErrorIs(t, err, ErrModelUntrained)
}

func TestTrainBoostSeparable(t *testing.T) {
	s := DefaultSettings().Predictor
	s.BoostRounds = 50
	m := TrainBoost(boostCorpus(30), &s, 1)

	require.True(t, m.Trained)

	up := make([]float64, FeatureDim)
	up[0] = 2.0
	down := make([]float64, FeatureDim)
	down[0] = -2.0

	pUp, err := m.PredictProb(up)
	require.NoError(t, err)
	pDown, err := m.PredictProb(down)
	require.NoError(t, err)

	assert.Greater(t, pUp, 0.6)
	assert.Less(t, pDown, 0.4)
}

func TestTrainBoostOneSidedPrior(t *testing.T) {
	s := DefaultSettings().Predictor
	s.BoostRounds = 5

	examples := make([]BoostExample, 10)
	for i := range examples {
		examples[i] = BoostExample{Features: make([]float64, FeatureDim), TeamAWon: true}
	}
	m := TrainBoost(examples, &s, 1)

	// The prior must stay finite on an all-wins corpus.
	assert.False(t, math.IsInf(m.Prior, 0))
	assert.InDelta(t, math.Log(0.99/0.01), m.Prior, 1e-9)
}

func TestTrainBoostReproducible(t *testing.T) {
	s := DefaultSettings().Predictor
	s.BoostRounds = 30
	corpus := boostCorpus(20)

	m1 := TrainBoost(corpus, &s, 99)
	m2 := TrainBoost(corpus, &s, 99)

	probe := make([]float64, FeatureDim)
	probe[0] = 1.3
	p1, err := m1.PredictProb(probe)
	require.NoError(t, err)
	p2, err := m2.PredictProb(probe)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestStumpEvalShortVector(t *testing.T) {
	s := Stump{Feature: 5, Threshold: 0, Left: -1, Right: 1}
	// A vector shorter than the stump's feature routes left.
	assert.Equal(t, -1.0, s.eval([]float64{1, 2}))
}
