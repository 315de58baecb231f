package skill

import "math"

// Pickup-PER weights. These synthesize a raw box score into a single
// efficiency number before positional weighting; they differ from the NBA
// scale because pickup formats are short and possession-dense.
const (
	perPoints    = 1.0
	perAssists   = 1.5
	perRebounds  = 1.2
	perSteals    = 2.5
	perBlocks    = 2.5
	perTurnovers = -2.0
	perMissedFG  = -1.0
	perMissedFT  = -0.5
)

// NormalizedSignals is the output of the stat normalizer: a game-type and
// position normalized efficiency read on one box score. Fully deterministic
// in its inputs.
type NormalizedSignals struct {
	// RawPER is the unweighted pickup-PER of the box score.
	RawPER float64
	// WeightedPER applies the position importance weights.
	WeightedPER float64
	// TrueShooting is the true-shooting percentage (0 attempts reads 0.5).
	TrueShooting float64
	// EfficiencyBonus is the bounded tanh efficiency adjustment in (-1, 1).
	EfficiencyBonus float64
	// RawPerformance is the format-scaled scalar the rating engine consumes.
	RawPerformance float64
}

// NormalizeStats converts one box score into normalized efficiency signals
// for the given format and position.
func NormalizeStats(stats *PlayerGameStats, gameType GameType, position Position, s *RatingSettings) NormalizedSignals {
	base := s.baseline(gameType)
	w := s.positionWeights(position)

	missedFG := max(stats.FieldGoalsAttempted-stats.FieldGoalsMade, 0)
	missedFT := max(stats.FreeThrowsAttempted-stats.FreeThrowsMade, 0)

	pts := float64(stats.Points) * perPoints
	ast := float64(stats.Assists) * perAssists
	reb := float64(stats.Rebounds) * perRebounds
	stl := float64(stats.Steals) * perSteals
	blk := float64(stats.Blocks) * perBlocks
	tov := float64(stats.Turnovers) * perTurnovers

	rawPER := pts + ast + reb + stl + blk + tov +
		float64(missedFG)*perMissedFG + float64(missedFT)*perMissedFT

	// Positional importance: centers pay for bad rebounding, guards for
	// turnovers. The turnover term is already negative.
	weightedPER := pts*w.Points +
		ast*w.Assists +
		reb*w.Rebounds +
		stl*w.Steals +
		blk*w.Blocks +
		tov*math.Abs(w.Turnovers)

	// True-shooting variant with a +1 attempt prior so empty lines read
	// neutral instead of exploding.
	tsAttempts := 2.0 * (float64(stats.FieldGoalsAttempted) + 0.44*float64(stats.FreeThrowsAttempted) + 1)
	ts := 0.5
	if tsAttempts > 0 {
		ts = float64(stats.Points) / tsAttempts
	}
	effBonus := math.Tanh((ts - s.TrueShootingCenter) * s.TrueShootingSlope)

	rawPerformance := (weightedPER / math.Max(base.Scale, 1.0)) * (1.0 + effBonus*0.5)

	return NormalizedSignals{
		RawPER:          rawPER,
		WeightedPER:     weightedPER,
		TrueShooting:    ts,
		EfficiencyBonus: effBonus,
		RawPerformance:  rawPerformance,
	}
}

// PerformanceRating maps one box score plus match context onto the [1,10]
// rating scale. A baseline-hitting performance lands near 7.5 before
// context; soft caps near both ends keep single-game outliers from
// saturating the scale, then opponent strength, score margin and the
// win/loss multiplier modulate the result.
func PerformanceRating(stats *PlayerGameStats, gameType GameType, won bool, scoreMargin int, avgOpponentRating float64, position Position, s *RatingSettings) float64 {
	signals := NormalizeStats(stats, gameType, position, s)

	// Linear map: 0 performance -> 0, 15+ -> 10.
	perf := (signals.RawPerformance / 15.0) * 10.0

	// Diminishing returns above 9, slower decay below 1.
	if perf > 9.0 {
		perf = 9.0 + (perf-9.0)*0.1
	} else if perf < 1.0 {
		perf = 1.0 - (1.0-perf)*0.2
	}

	// Overperforming against a stronger lineup is worth more.
	difficulty := 1.0 + (avgOpponentRating-RatingDefault)*0.05

	// Margin amplifier: nonlinear in margin so a blowout moves the needle
	// more than a buzzer-beater, bounded so it never dominates.
	marginNorm := math.Min(math.Abs(float64(scoreMargin))/15.0, 1.0)
	marginAmp := 1.0 + 0.15*math.Pow(marginNorm, 0.7)

	var outcome float64
	if won {
		outcome = 1.1 * marginAmp
	} else {
		outcome = 0.9 / marginAmp
	}

	return round2(clampRating(perf * difficulty * outcome))
}

// TeamTotals are one team's combined counting stats for a game, used to
// express an individual line as a share of team production.
type TeamTotals struct {
	Points   int
	Rebounds int
	Assists  int
}

// Add accumulates one box score into the totals.
func (t *TeamTotals) Add(s *PlayerGameStats) {
	t.Points += s.Points
	t.Rebounds += s.Rebounds
	t.Assists += s.Assists
}

// StatFeatureVector builds the embedding model's 12-dim per-player feature
// vector: team-share normalized counting stats, smoothed shooting
// efficiencies, and a game-type one-hot.
func StatFeatureVector(stats *PlayerGameStats, totals TeamTotals, gameType GameType) []float64 {
	f := make([]float64, 0, 12)
	f = append(f,
		float64(stats.Points)/math.Max(float64(totals.Points), 1),
		float64(stats.Rebounds)/math.Max(float64(totals.Rebounds), 1),
		float64(stats.Assists)/math.Max(float64(totals.Assists), 1),
		float64(stats.Steals),
		float64(stats.Blocks),
		float64(stats.Turnovers),
		float64(stats.FieldGoalsMade+1)/float64(stats.FieldGoalsAttempted+2),
		float64(stats.ThreesMade+1)/float64(stats.ThreesAttempted+2),
		float64(stats.FreeThrowsMade+1)/float64(stats.FreeThrowsAttempted+2),
	)
	switch gameType {
	case GameType5v5:
		f = append(f, 1, 0, 0)
	case GameType3v3:
		f = append(f, 0, 1, 0)
	case GameType2v2:
		f = append(f, 0, 0, 1)
	default:
		f = append(f, 0, 0, 0)
	}
	return f
}
