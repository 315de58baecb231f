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

type engineFixture struct {
	store  *MemoryStore
	engine *RatingEngine
}

func newEngineFixture() *engineFixture {
	store := NewMemoryStore()
	return &engineFixture{
		store:  store,
		engine: NewRatingEngine(zap.NewNop(), DefaultSettings(), store, store, store, store, nil),
	}
}

func (f *engineFixture) addPlayer(t *testing.T, rating float64, games, wins int) *Player {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	p := &Player{
		ID: id, Rating: rating, Confidence: 0.5, Position: SmallForward,
		GamesPlayed: games, Wins: wins, Losses: games - wins,
	}
	require.NoError(t, f.store.CreatePlayer(context.Background(), p))
	return p
}

func completedGame(gameType GameType, scoreA, scoreB int, teamA, teamB []*Player) *GameRecord {
	id, _ := uuid.NewV4()
	g := &GameRecord{
		ID: id, Type: gameType, Status: GameStatusCompleted,
		ScheduledAt: time.Now().UTC(), ScoreA: scoreA, ScoreB: scoreB,
	}
	for _, p := range teamA {
		g.Participants = append(g.Participants, Participant{PlayerID: p.ID, Team: TeamA, Player: p})
	}
	for _, p := range teamB {
		g.Participants = append(g.Participants, Participant{PlayerID: p.ID, Team: TeamB, Player: p})
	}
	return g
}

func TestUpdateRatingsRequiresCompletedGame(t *testing.T) {
	f := newEngineFixture()
	a := f.addPlayer(t, 5, 5, 3)
	b := f.addPlayer(t, 5, 5, 3)

	g := completedGame(GameType2v2, 15, 10, []*Player{a}, []*Player{b})
	g.Status = GameStatusInProgress
	assert.ErrorIs(t, f.engine.UpdateRatingsAfterGame(context.Background(), g), ErrGameNotCompleted)
}

func TestUpdateRatingsWinnersUpLosersDown(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	winners := []*Player{f.addPlayer(t, 5, 5, 3), f.addPlayer(t, 5, 5, 3)}
	losers := []*Player{f.addPlayer(t, 5, 5, 3), f.addPlayer(t, 5, 5, 3)}

	g := completedGame(GameType2v2, 15, 10, winners, losers)
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	for _, w := range winners {
		got, err := f.store.GetPlayer(ctx, w.ID)
		require.NoError(t, err)
		assert.Greater(t, got.Rating, 5.0)
		assert.Equal(t, 6, got.GamesPlayed)
		assert.Equal(t, 4, got.Wins)
		assert.Greater(t, got.RatingMu, 0.0)
	}
	for _, l := range losers {
		got, err := f.store.GetPlayer(ctx, l.ID)
		require.NoError(t, err)
		assert.Less(t, got.Rating, 5.0)
		assert.Equal(t, 6, got.GamesPlayed)
		assert.Equal(t, 3, got.Losses)
	}
}

func TestUpdateRatingsAppendsHistory(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	a := f.addPlayer(t, 6, 5, 3)
	b := f.addPlayer(t, 4, 5, 3)
	g := completedGame(GameType2v2, 15, 12, []*Player{a}, []*Player{b})
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	entries, err := f.store.Recent(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, g.ID, entries[0].GameID)
	assert.Equal(t, 6.0, entries[0].OldRating)
	assert.Equal(t, GameType2v2, entries[0].GameType)
}

func TestUpdateRatingsColdStartUsesOpponentPrior(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	// Self-reported a 3, but plays (and beats) a team of 7s.
	newcomer := f.addPlayer(t, 3, 0, 0)
	teammate := f.addPlayer(t, 7, 10, 5)
	opponents := []*Player{f.addPlayer(t, 7, 10, 5), f.addPlayer(t, 7, 10, 5)}

	g := completedGame(GameType2v2, 15, 10, []*Player{newcomer, teammate}, opponents)
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	got, err := f.store.GetPlayer(ctx, newcomer.ID)
	require.NoError(t, err)
	// The first update blends from the opponents' average, not the claim.
	assert.Greater(t, got.Rating, 6.5)
}

func TestUpdateRatingsStatsPathUsesBoxScore(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	star := f.addPlayer(t, 5, 5, 3)
	bench := f.addPlayer(t, 5, 5, 3)
	opponents := []*Player{f.addPlayer(t, 5, 5, 3), f.addPlayer(t, 5, 5, 3)}

	g := completedGame(GameType2v2, 15, 8, []*Player{star, bench}, opponents)
	require.NoError(t, f.store.SaveStats(ctx, &PlayerGameStats{
		GameID: g.ID, PlayerID: star.ID,
		Points: 12, Rebounds: 5, Assists: 3, Steals: 2,
		FieldGoalsMade: 5, FieldGoalsAttempted: 7,
	}))
	require.NoError(t, f.store.SaveStats(ctx, &PlayerGameStats{
		GameID: g.ID, PlayerID: bench.ID,
		Points: 0, Turnovers: 4, FieldGoalsAttempted: 5,
	}))
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	gotStar, err := f.store.GetPlayer(ctx, star.ID)
	require.NoError(t, err)
	gotBench, err := f.store.GetPlayer(ctx, bench.ID)
	require.NoError(t, err)

	// Same team, same outcome: the box score separates them.
	assert.Greater(t, gotStar.Rating, gotBench.Rating)
}

func TestUpdateRatingsSnapshotConsistency(t *testing.T) {
	// Opponent averages must come from pre-game ratings, so processing the
	// same matchup twice moves ratings by a different amount the second time
	// only because the stored ratings changed, not the in-game order.
	f := newEngineFixture()
	ctx := context.Background()

	a := f.addPlayer(t, 6, 5, 3)
	b := f.addPlayer(t, 6, 5, 3)
	c := f.addPlayer(t, 4, 5, 3)
	d := f.addPlayer(t, 4, 5, 3)

	g := completedGame(GameType2v2, 15, 5, []*Player{a, b}, []*Player{c, d})
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	gotA, err := f.store.GetPlayer(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := f.store.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	// Identical inputs, identical outcome.
	assert.Equal(t, gotA.Rating, gotB.Rating)
	assert.Equal(t, gotA.Confidence, gotB.Confidence)
}

func TestUpdateRatingsSandbaggerDampened(t *testing.T) {
	ctx := context.Background()

	build := func(wins int) (float64, *engineFixture, *Player) {
		f := newEngineFixture()
		suspect := f.addPlayer(t, 3, 10, wins)
		suspect.Confidence = 0.9
		require.NoError(t, f.store.CreatePlayer(ctx, suspect))

		// A recent window that far outperforms the 3.0 rating.
		var hist []SkillHistoryEntry
		for i := 0; i < 5; i++ {
			hist = append(hist, SkillHistoryEntry{
				PlayerID: suspect.ID, OldRating: 5, NewRating: 5,
				CreatedAt: time.Now().UTC().Add(-time.Duration(i) * time.Hour),
			})
		}
		require.NoError(t, f.store.ApplyGameResult(ctx, nil, hist))

		opponents := []*Player{f.addPlayer(t, 5, 10, 5), f.addPlayer(t, 5, 10, 5)}
		teammate := f.addPlayer(t, 5, 10, 5)
		g := completedGame(GameType2v2, 15, 10, []*Player{suspect, teammate}, opponents)
		require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

		got, err := f.store.GetPlayer(ctx, suspect.ID)
		require.NoError(t, err)
		return got.Rating, f, suspect
	}

	flaggedRating, _, _ := build(9)   // 90% win rate: flagged
	unflaggedRating, _, _ := build(5) // 50% win rate: not flagged

	// Dampening cuts alpha, so the flagged sandbagger corrects upward faster.
	assert.Greater(t, flaggedRating, unflaggedRating)
	assert.Greater(t, flaggedRating, 3.0)
}

func TestUpdateRatingsBoundsHold(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	top := f.addPlayer(t, 10, 20, 20)
	bottom := f.addPlayer(t, 1, 20, 0)

	g := completedGame(GameType2v2, 15, 0, []*Player{top}, []*Player{bottom})
	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	gotTop, err := f.store.GetPlayer(ctx, top.ID)
	require.NoError(t, err)
	gotBottom, err := f.store.GetPlayer(ctx, bottom.ID)
	require.NoError(t, err)

	assert.LessOrEqual(t, gotTop.Rating, RatingMax)
	assert.GreaterOrEqual(t, gotBottom.Rating, RatingMin)
	assert.GreaterOrEqual(t, gotTop.Confidence, ConfidenceMin)
	assert.LessOrEqual(t, gotTop.Confidence, ConfidenceMax)
}

func TestUpdateRatingsOrphansSkipped(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	a := f.addPlayer(t, 6, 5, 3)
	b := f.addPlayer(t, 4, 5, 3)
	ghost, _ := uuid.NewV4()

	g := completedGame(GameType2v2, 15, 10, []*Player{a}, []*Player{b})
	g.Participants = append(g.Participants, Participant{PlayerID: ghost, Team: TeamB})

	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	got, err := f.store.GetPlayer(ctx, a.ID)
	require.NoError(t, err)
	assert.Greater(t, got.Rating, 6.0)
}

// A game reloaded from persistence carries ids only; the attached Player
// pointers are gone. The update must resolve participants by id and rate
// them exactly as it would the in-memory record.
func TestUpdateRatingsStoreShapedGame(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	winner := f.addPlayer(t, 6, 5, 3)
	loser := f.addPlayer(t, 6, 5, 3)

	g := completedGame(GameType2v2, 15, 8, []*Player{winner}, []*Player{loser})
	for i := range g.Participants {
		g.Participants[i].Player = nil
	}

	require.NoError(t, f.engine.UpdateRatingsAfterGame(ctx, g))

	gotW, err := f.store.GetPlayer(ctx, winner.ID)
	require.NoError(t, err)
	gotL, err := f.store.GetPlayer(ctx, loser.ID)
	require.NoError(t, err)

	assert.Greater(t, gotW.Rating, 6.0, "winner must move even without attached player records")
	assert.Less(t, gotL.Rating, 6.0)
	assert.Equal(t, 6, gotW.GamesPlayed)
	assert.Equal(t, 4, gotW.Wins)

	hist, err := f.store.Recent(ctx, winner.ID, 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, g.ID, hist[0].GameID)
}

func TestRegisterPlayerBootstrapsFromSelfReport(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	id, _ := uuid.NewV4()
	p := &Player{ID: id, SelfReported: 7.5}
	require.NoError(t, f.engine.RegisterPlayer(ctx, p))

	got, err := f.store.GetPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got.Rating)
	assert.Equal(t, ConfidenceMin, got.Confidence)
	assert.InDelta(t, 25.0, got.RatingMu, 1e-9)
}

func TestUpdateRatingsAfterChallenge(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	winner := f.addPlayer(t, 5, 5, 3)
	loser := f.addPlayer(t, 5, 5, 3)

	require.NoError(t, f.engine.UpdateRatingsAfterChallenge(ctx, winner.ID, loser.ID, 15, 8))

	gotW, err := f.store.GetPlayer(ctx, winner.ID)
	require.NoError(t, err)
	gotL, err := f.store.GetPlayer(ctx, loser.ID)
	require.NoError(t, err)

	assert.Greater(t, gotW.Rating, 5.0)
	assert.Less(t, gotL.Rating, 5.0)
	assert.Equal(t, 1, gotW.ChallengeWins)
	assert.Equal(t, 1, gotL.ChallengeLosses)
	// Team game counters untouched.
	assert.Equal(t, 5, gotW.GamesPlayed)

	entries, err := f.store.Recent(ctx, gotW.ID, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, GameType1v1, entries[0].GameType)
	assert.Equal(t, uuid.Nil, entries[0].GameID)
}

func TestUpdateRatingsAfterChallengeTie(t *testing.T) {
	f := newEngineFixture()
	a := f.addPlayer(t, 5, 0, 0)
	b := f.addPlayer(t, 5, 0, 0)

	err := f.engine.UpdateRatingsAfterChallenge(context.Background(), a.ID, b.ID, 11, 11)
	assert.ErrorIs(t, err, ErrTiedChallenge)
}

func TestUpdateRatingsAfterChallengeMarginMatters(t *testing.T) {
	ctx := context.Background()

	run := func(winnerScore, loserScore int) float64 {
		f := newEngineFixture()
		w := f.addPlayer(t, 5, 10, 5)
		l := f.addPlayer(t, 5, 10, 5)
		require.NoError(t, f.engine.UpdateRatingsAfterChallenge(ctx, w.ID, l.ID, winnerScore, loserScore))
		got, err := f.store.GetPlayer(ctx, w.ID)
		require.NoError(t, err)
		return got.Rating
	}

	blowout := run(15, 1)
	squeaker := run(15, 14)
	assert.Greater(t, blowout, squeaker)
}

func TestUpdateRatingsAfterChallengeSwapsMisorderedArgs(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	a := f.addPlayer(t, 5, 5, 3)
	b := f.addPlayer(t, 5, 5, 3)

	// Caller passed the loser first; scores identify the real winner.
	require.NoError(t, f.engine.UpdateRatingsAfterChallenge(ctx, a.ID, b.ID, 8, 15))

	gotA, err := f.store.GetPlayer(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := f.store.GetPlayer(ctx, b.ID)
	require.NoError(t, err)
	assert.Less(t, gotA.Rating, 5.0)
	assert.Greater(t, gotB.Rating, 5.0)
}
