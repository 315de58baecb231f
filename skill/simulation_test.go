package skill

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulatedLeague drives the engine through a seeded synthetic season:
// everyone starts at the 5.0 default while carrying a hidden true skill,
// and the stronger lineup always wins.
type simulatedLeague struct {
	fixture   *engineFixture
	players   []*Player
	trueSkill map[*Player]float64
	rng       *rand.Rand
}

func newSimulatedLeague(t *testing.T, trueSkills []float64, seed int64) *simulatedLeague {
	t.Helper()
	league := &simulatedLeague{
		fixture:   newEngineFixture(),
		trueSkill: make(map[*Player]float64, len(trueSkills)),
		rng:       rand.New(rand.NewSource(seed)),
	}
	for _, ts := range trueSkills {
		p := league.fixture.addPlayer(t, RatingDefault, 0, 0)
		league.players = append(league.players, p)
		league.trueSkill[p] = ts
	}
	return league
}

// playRound shuffles the league into two teams and finalizes one game.
func (l *simulatedLeague) playRound(t *testing.T, gameType GameType) {
	t.Helper()
	order := l.rng.Perm(len(l.players))
	half := len(order) / 2

	var teamA, teamB []*Player
	var skillA, skillB float64
	for i, idx := range order {
		p := l.players[idx]
		if i < half {
			teamA = append(teamA, p)
			skillA += l.trueSkill[p]
		} else {
			teamB = append(teamB, p)
			skillB += l.trueSkill[p]
		}
	}

	scoreA, scoreB := 15, 15-int(skillA-skillB)
	if skillB > skillA {
		scoreA, scoreB = 15-int(skillB-skillA), 15
	}
	if scoreA == scoreB {
		scoreB--
	}
	scoreA, scoreB = max(scoreA, 0), max(scoreB, 0)

	g := completedGame(gameType, scoreA, scoreB, teamA, teamB)
	require.NoError(t, l.fixture.engine.UpdateRatingsAfterGame(context.Background(), g))
}

func (l *simulatedLeague) currentRating(t *testing.T, p *Player) float64 {
	t.Helper()
	got, err := l.fixture.store.GetPlayer(context.Background(), p.ID)
	require.NoError(t, err)
	return got.Rating
}

// A season of deterministic outcomes separates the strongest player from
// the weakest, even though everyone starts at the same rating.
func TestSimulatedSeasonSeparatesSkillLevels(t *testing.T) {
	trueSkills := []float64{9, 8, 7, 6, 4, 3, 2, 1}
	league := newSimulatedLeague(t, trueSkills, 17)

	for round := 0; round < 40; round++ {
		league.playRound(t, GameType5v5)
	}

	best := league.currentRating(t, league.players[0])
	worst := league.currentRating(t, league.players[len(league.players)-1])
	assert.Greater(t, best, worst)

	for _, p := range league.players {
		r := league.currentRating(t, p)
		assert.GreaterOrEqual(t, r, RatingMin)
		assert.LessOrEqual(t, r, RatingMax)

		got, err := league.fixture.store.GetPlayer(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, got.GamesPlayed)
		assert.GreaterOrEqual(t, got.Confidence, ConfidenceMin)
	}
}

// The same seed replays the identical season.
func TestSimulatedSeasonDeterministic(t *testing.T) {
	run := func() []float64 {
		league := newSimulatedLeague(t, []float64{8, 6, 5, 3}, 23)
		for round := 0; round < 12; round++ {
			league.playRound(t, GameType2v2)
		}
		out := make([]float64, len(league.players))
		for i, p := range league.players {
			out[i] = league.currentRating(t, p)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

// With enough games the rating order tracks the hidden skill order for the
// extremes of the league.
func TestSimulatedSeasonRanksExtremes(t *testing.T) {
	trueSkills := []float64{9, 5, 5, 5, 5, 1}
	league := newSimulatedLeague(t, trueSkills, 31)

	for round := 0; round < 60; round++ {
		league.playRound(t, GameType3v3)
	}

	type ranked struct {
		skill  float64
		rating float64
	}
	out := make([]ranked, len(league.players))
	for i, p := range league.players {
		out[i] = ranked{skill: league.trueSkill[p], rating: league.currentRating(t, p)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rating > out[j].rating })

	assert.Equal(t, 9.0, out[0].skill, "the strongest player should top the table")
	assert.Equal(t, 1.0, out[len(out)-1].skill, "the weakest player should finish last")
}
