package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerTotals(t *testing.T) {
	p := &Player{GamesPlayed: 10, Wins: 6, Losses: 4, ChallengeWins: 3, ChallengeLosses: 2}

	assert.Equal(t, 15, p.TotalGames())
	assert.Equal(t, 9, p.TotalWins())
	assert.InDelta(t, 0.6, p.WinRate(), 1e-9)

	assert.Zero(t, (&Player{}).WinRate())
}

func TestCurrentRating(t *testing.T) {
	assert.Equal(t, RatingDefault, (&Player{}).CurrentRating())
	assert.Equal(t, RatingDefault, (*Player)(nil).CurrentRating())
	assert.Equal(t, 7.3, (&Player{Rating: 7.3}).CurrentRating())
	assert.Equal(t, RatingMax, (&Player{Rating: 42}).CurrentRating())
}

func TestSkillOrdinal(t *testing.T) {
	// Fresh players carry the default estimate: 25 - 3*(25/3) = 0.
	assert.InDelta(t, 0.0, (&Player{}).SkillOrdinal(), 1e-9)

	seasoned := &Player{RatingMu: 30, RatingSigma: 2}
	assert.InDelta(t, 24.0, seasoned.SkillOrdinal(), 1e-9)
}

func TestGameTypeRosterSize(t *testing.T) {
	assert.Equal(t, 4, GameType2v2.RosterSize())
	assert.Equal(t, 6, GameType3v3.RosterSize())
	assert.Equal(t, 10, GameType5v5.RosterSize())
	assert.Zero(t, GameType1v1.RosterSize())
}

func TestTeamSideOpponent(t *testing.T) {
	assert.Equal(t, TeamB, TeamA.Opponent())
	assert.Equal(t, TeamA, TeamB.Opponent())
	assert.Equal(t, TeamUnassigned, TeamUnassigned.Opponent())
}

func TestGameRecordHelpers(t *testing.T) {
	g := &GameRecord{ScoreA: 15, ScoreB: 11}
	assert.Equal(t, TeamA, g.WinningTeam())
	assert.Equal(t, 4, g.ScoreMargin())

	g = &GameRecord{ScoreA: 9, ScoreB: 15}
	assert.Equal(t, TeamB, g.WinningTeam())
	assert.Equal(t, 6, g.ScoreMargin())

	// Ties resolve to team B per upstream completion recording.
	g = &GameRecord{ScoreA: 10, ScoreB: 10}
	assert.Equal(t, TeamB, g.WinningTeam())
}
