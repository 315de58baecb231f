package skill

import (
	"context"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// FeatureDim is the width of the team-aggregate difference vector consumed
// by the boosted classifier. The historical training corpus is stored in
// this exact column order; changing it invalidates persisted models.
const FeatureDim = 17

// momentumWindow is the lookback for the short-term "hot week" term.
const momentumWindow = 7 * 24 * time.Hour

// teamAggregate is one team's context summary.
type teamAggregate struct {
	avgRating  float64
	ratingStd  float64
	avgHeight  float64
	avgWeight  float64
	ppg        float64
	rpg        float64
	apg        float64
	winRate    float64
	totalGames float64
	posEntropy float64
	synergy    float64
	hotWeek    float64
}

// FeatureBuilder derives team-aggregate feature vectors from player records
// plus their career stats and recent rating history.
type FeatureBuilder struct {
	stats   StatStore
	history HistoryStore
}

func NewFeatureBuilder(stats StatStore, history HistoryStore) *FeatureBuilder {
	return &FeatureBuilder{stats: stats, history: history}
}

// BuildVector produces the symmetric difference features for P(A beats B).
// Orphaned rosters degrade to neutral aggregates rather than failing.
func (f *FeatureBuilder) BuildVector(ctx context.Context, teamA, teamB []*Player, gameType GameType) ([]float64, error) {
	fa, err := f.teamFeatures(ctx, teamA)
	if err != nil {
		return nil, err
	}
	fb, err := f.teamFeatures(ctx, teamB)
	if err != nil {
		return nil, err
	}

	is5v5, is3v3 := 0.0, 0.0
	switch gameType {
	case GameType5v5:
		is5v5 = 1.0
	case GameType3v3:
		is3v3 = 1.0
	}

	return []float64{
		fa.avgRating - fb.avgRating,
		fa.avgHeight - fb.avgHeight,
		fa.avgWeight - fb.avgWeight,
		fa.ppg - fb.ppg,
		fa.rpg - fb.rpg,
		fa.apg - fb.apg,
		fa.winRate - fb.winRate,
		(fa.totalGames - fb.totalGames) / 50.0,
		fa.ratingStd,
		fb.ratingStd,
		fa.posEntropy,
		fb.posEntropy,
		fa.synergy - fb.synergy,
		fa.hotWeek,
		fb.hotWeek,
		is5v5,
		is3v3,
	}, nil
}

func (f *FeatureBuilder) teamFeatures(ctx context.Context, team []*Player) (teamAggregate, error) {
	players := lo.Filter(team, func(p *Player, _ int) bool { return p != nil })
	agg := teamAggregate{avgRating: RatingDefault, avgHeight: 70.0, avgWeight: 180.0}
	if len(players) == 0 {
		return agg, nil
	}

	ratings := make([]float64, 0, len(players))
	heights := make([]float64, 0, len(players))
	weights := make([]float64, 0, len(players))
	positions := make([]Position, 0, len(players))

	var ppg, rpg, apg float64
	var wins, totalGames int
	var hotWeek float64

	weekAgo := time.Now().UTC().Add(-momentumWindow)

	for _, p := range players {
		ratings = append(ratings, p.CurrentRating())
		heights = append(heights, ParseHeight(p.Height))
		w := p.Weight
		if w == 0 {
			w = 180.0
		}
		weights = append(weights, w)
		pos := p.Position
		if pos == "" {
			pos = DefaultPosition
		}
		positions = append(positions, pos)

		// Rating gained over the trailing week.
		week, err := f.history.Since(ctx, p.ID, weekAgo)
		if err != nil {
			return agg, err
		}
		if len(week) > 1 {
			hotWeek += week[len(week)-1].NewRating - week[0].OldRating
		}

		career, err := f.careerAverages(ctx, p.ID)
		if err != nil {
			return agg, err
		}
		ppg += career.ppg
		rpg += career.rpg
		apg += career.apg

		totalGames += p.TotalGames()
		wins += p.TotalWins()
	}

	n := float64(len(players))
	agg.avgRating = stat.Mean(ratings, nil)
	if len(ratings) > 1 {
		agg.ratingStd = stat.PopStdDev(ratings, nil)
	}
	agg.avgHeight = stat.Mean(heights, nil)
	agg.avgWeight = stat.Mean(weights, nil)
	agg.ppg = ppg / n
	agg.rpg = rpg / n
	agg.apg = apg / n
	agg.totalGames = float64(totalGames)
	agg.winRate = float64(wins) / math.Max(float64(totalGames), 1)
	agg.posEntropy = positionEntropy(positions)
	agg.hotWeek = hotWeek / n

	// Composite synergy proxy: per-player production weighted the way true
	// shooting weights efficiency, rewarded for positional spacing.
	teamEff := agg.ppg*1.5 + agg.rpg*1.2 + agg.apg*1.5
	agg.synergy = teamEff * (1.0 + agg.posEntropy*0.2)

	return agg, nil
}

type careerLine struct {
	ppg, rpg, apg float64
}

func (f *FeatureBuilder) careerAverages(ctx context.Context, playerID uuid.UUID) (careerLine, error) {
	lines, err := f.stats.PlayerStats(ctx, playerID)
	if err != nil {
		return careerLine{}, err
	}
	if len(lines) == 0 {
		return careerLine{}, nil
	}
	var c careerLine
	for _, s := range lines {
		c.ppg += float64(s.Points)
		c.rpg += float64(s.Rebounds)
		c.apg += float64(s.Assists)
	}
	n := float64(len(lines))
	c.ppg /= n
	c.rpg /= n
	c.apg /= n
	return c, nil
}

// positionEntropy measures lineup diversity as the Shannon entropy (bits)
// of the position distribution, normalized against a balanced five-position
// spread and capped at 1.
func positionEntropy(positions []Position) float64 {
	if len(positions) == 0 {
		return 0
	}
	counts := lo.CountValues(positions)
	probs := make([]float64, 0, len(counts))
	n := float64(len(positions))
	for _, c := range counts {
		probs = append(probs, float64(c)/n)
	}
	bits := stat.Entropy(probs) / math.Ln2
	return math.Min(bits/2.5, 1.0)
}
