package skill

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	stores := Stores{
		Players: store, Results: store, Games: store,
		Stats: store, History: store, Models: store,
	}
	return NewService(zap.NewNop(), nil, stores, nil, "", 7), store
}

func registerPlayer(t *testing.T, svc *Service, selfReported float64) *Player {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	p := &Player{ID: id, SelfReported: selfReported, Position: SmallForward, Height: `6'1"`, Weight: 185}
	require.NoError(t, svc.RegisterPlayer(context.Background(), p))
	return p
}

func TestServiceGameLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	var roster []Participant
	for _, level := range []float64{8, 7, 4, 3} {
		p := registerPlayer(t, svc, level)
		roster = append(roster, Participant{PlayerID: p.ID, Player: p})
	}

	require.NoError(t, svc.AssignTeams(ctx, GameType2v2, roster))
	for i := range roster {
		assert.NotEqual(t, TeamUnassigned, roster[i].Team)
	}

	id, _ := uuid.NewV4()
	game := &GameRecord{
		ID: id, Type: GameType2v2, Status: GameStatusCompleted,
		ScheduledAt: time.Now().UTC(), ScoreA: 15, ScoreB: 11,
		Participants: roster,
	}
	require.NoError(t, store.SaveGame(ctx, game))
	require.NoError(t, svc.UpdateRatingsAfterGame(ctx, game))

	winning := game.WinningTeam()
	for i := range roster {
		got, err := store.GetPlayer(ctx, roster[i].PlayerID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.GamesPlayed)
		if roster[i].Team == winning {
			assert.Equal(t, 1, got.Wins)
		} else {
			assert.Equal(t, 1, got.Losses)
		}
	}
}

func TestServicePredictMatchupLines(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	strongA := registerPlayer(t, svc, 9)
	strongB := registerPlayer(t, svc, 8)
	weakA := registerPlayer(t, svc, 3)
	weakB := registerPlayer(t, svc, 2)

	pred := svc.PredictMatchup(ctx, []*Player{strongA, strongB}, []*Player{weakA, weakB}, GameType2v2)

	assert.Greater(t, pred.Probability, 0.5)
	assert.Equal(t, StrategyElo, pred.Strategy)
	assert.True(t, strings.HasPrefix(pred.Lines.Moneyline, "-"), "favorite moneyline %q", pred.Lines.Moneyline)
	assert.True(t, strings.HasPrefix(pred.Lines.Spread, "-"), "favorite spread %q", pred.Lines.Spread)
}

func TestServicePredictChallenge(t *testing.T) {
	svc, _ := newTestService(t)

	a := registerPlayer(t, svc, 8)
	b := registerPlayer(t, svc, 4)

	pred := svc.PredictChallenge(a, b)
	assert.Greater(t, pred.Probability, 0.5)

	mirror := svc.PredictChallenge(b, a)
	assert.InDelta(t, 1.0, pred.Probability+mirror.Probability, 1e-9)
}

func TestServiceChallengeLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	a := registerPlayer(t, svc, 5)
	b := registerPlayer(t, svc, 5)

	require.NoError(t, svc.UpdateRatingsAfterChallenge(ctx, a.ID, b.ID, 15, 9))

	gotA, err := store.GetPlayer(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := store.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Greater(t, gotA.Rating, gotB.Rating)
}

func TestServiceTrainModelRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	strong := []*Player{registerPlayer(t, svc, 8), registerPlayer(t, svc, 8)}
	weak := []*Player{registerPlayer(t, svc, 3), registerPlayer(t, svc, 3)}

	for i := 0; i < 12; i++ {
		var g *GameRecord
		if i%2 == 0 {
			g = completedGame(GameType2v2, 15, 7, strong, weak)
		} else {
			g = completedGame(GameType2v2, 7, 15, weak, strong)
		}
		require.NoError(t, store.SaveGame(ctx, g))
	}

	report, err := svc.TrainModel(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, int64(1), report.Version)

	// A rebuilt service restores the trained generation from the store.
	svc2 := NewService(zap.NewNop(), nil, Stores{
		Players: store, Results: store, Games: store,
		Stats: store, History: store, Models: store,
	}, nil, "", 7)
	require.NoError(t, svc2.LoadModels(ctx))
	assert.Equal(t, int64(1), svc2.Predictor().Snapshot().Version)
}

func TestServiceComputePerformanceRating(t *testing.T) {
	svc, _ := newTestService(t)

	line := &PlayerGameStats{Points: 9, Rebounds: 4, Assists: 3, FieldGoalsMade: 4, FieldGoalsAttempted: 7}
	r := svc.ComputePerformanceRating(line, GameType3v3, true, 5, 5.5, PointGuard)
	assert.GreaterOrEqual(t, r, RatingMin)
	assert.LessOrEqual(t, r, RatingMax)
}
