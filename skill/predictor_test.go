package skill

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPredictor(store *MemoryStore) *Predictor {
	settings := DefaultSettings()
	return NewPredictor(zap.NewNop(), &settings.Predictor, NewFeatureBuilder(store, store), nil)
}

func TestPredictFallsBackToElo(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())

	teamA := []*Player{testPlayer(7, PointGuard)}
	teamB := []*Player{testPlayer(4, Center)}

	pred := p.Predict(context.Background(), teamA, teamB, GameType3v3)
	assert.Equal(t, StrategyElo, pred.Strategy)
	assert.Greater(t, pred.Probability, 0.5)
}

func TestPredictSymmetry(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())
	ctx := context.Background()

	teamA := []*Player{testPlayer(8, PointGuard), testPlayer(6, Center)}
	teamB := []*Player{testPlayer(5, SmallForward), testPlayer(5, ShootingG)}

	forward := p.Predict(ctx, teamA, teamB, GameType2v2)
	reverse := p.Predict(ctx, teamB, teamA, GameType2v2)
	assert.InDelta(t, 1.0, forward.Probability+reverse.Probability, 1e-9)
}

func TestPredictIdenticalTeams(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())
	team := []*Player{testPlayer(6, PointGuard), testPlayer(6, Center)}

	pred := p.Predict(context.Background(), team, team, GameType2v2)
	assert.Equal(t, 0.5, pred.Probability)
}

func TestPredictOrphanedTeamsStillAnswer(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())

	pred := p.Predict(context.Background(), []*Player{nil}, []*Player{nil}, GameType2v2)
	assert.Equal(t, StrategyElo, pred.Strategy)
	assert.Equal(t, 0.5, pred.Probability)
}

func TestPredictUsesTrainedEmbedding(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())

	strong := testPlayer(5, PointGuard)
	weak := testPlayer(5, Center)

	settings := DefaultSettings().Predictor
	settings.MaxPlayers = 4
	em := NewEmbeddingModel(&settings, 3)
	_, err := em.EnsurePlayer(strong.ID, 9)
	require.NoError(t, err)
	_, err = em.EnsurePlayer(weak.ID, 2)
	require.NoError(t, err)
	em.Train([]TrainingGame{
		{TeamAIDs: []uuid.UUID{strong.ID}, TeamBIDs: []uuid.UUID{weak.ID}, TeamAWon: true},
		{TeamAIDs: []uuid.UUID{weak.ID}, TeamBIDs: []uuid.UUID{strong.ID}, TeamAWon: false},
	}, 50, 0.05)

	p.Swap(&ModelSnapshot{Version: 1, TrainedAt: time.Now(), Embedding: em})

	pred := p.Predict(context.Background(), []*Player{strong}, []*Player{weak}, GameType2v2)
	assert.Equal(t, StrategyEmbedding, pred.Strategy)

	// Unknown players drop through past the embedding head.
	pred = p.Predict(context.Background(), []*Player{testPlayer(6, Center)}, []*Player{weak}, GameType2v2)
	assert.Equal(t, StrategyElo, pred.Strategy)
}

func TestPredict1v1(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())

	a := testPlayer(8, PointGuard)
	b := testPlayer(4, PointGuard)
	assert.Greater(t, p.Predict1v1(a, b), 0.5)
	assert.Less(t, p.Predict1v1(b, a), 0.5)
	assert.Equal(t, 0.5, p.Predict1v1(a, a))
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	p := newTestPredictor(store)
	ctx := context.Background()

	settings := DefaultSettings().Predictor
	settings.BoostRounds = 20
	boost := TrainBoost(boostCorpus(20), &settings, 5)
	require.True(t, boost.Trained)

	p.Swap(&ModelSnapshot{Version: 3, TrainedAt: time.Now().UTC(), Boost: boost})
	require.NoError(t, p.Save(ctx, store))

	restored := newTestPredictor(store)
	require.NoError(t, restored.Load(ctx, store))

	snap := restored.Snapshot()
	assert.Equal(t, int64(3), snap.Version)
	require.NotNil(t, snap.Boost)
	assert.True(t, snap.Boost.Trained)
	assert.Len(t, snap.Boost.Stumps, len(boost.Stumps))
}

func TestLoadMissingModelIsNotAnError(t *testing.T) {
	p := newTestPredictor(NewMemoryStore())
	require.NoError(t, p.Load(context.Background(), NewMemoryStore()))
	assert.Equal(t, int64(0), p.Snapshot().Version)
}
