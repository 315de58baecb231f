package skill

import (
	"math"

	"github.com/montanaflynn/stats"
)

// IsSandbagging reports whether a player's recent in-game performance is
// statistically inconsistent with a suspiciously low rating plus a high win
// rate. It needs at least five rated games and three recent performance
// samples, short-circuits below a 65% win rate, and otherwise flags when the
// z-score of (mean recent performance - current rating) exceeds the
// configured threshold. Deterministic in its inputs.
func IsSandbagging(p *Player, recentPerformances []float64, s *RatingSettings) bool {
	if p == nil {
		return false
	}
	if p.TotalGames() < s.SandbagMinGames || len(recentPerformances) < s.SandbagMinSamples {
		return false
	}
	if p.WinRate() < s.SandbagWinRate {
		return false
	}

	mean, err := stats.Mean(stats.Float64Data(recentPerformances))
	if err != nil {
		return false
	}
	std, err := stats.StandardDeviationPopulation(stats.Float64Data(recentPerformances))
	if err != nil {
		return false
	}
	std = math.Max(std, s.SandbagMinStdDev)

	return (mean-p.CurrentRating())/std > s.SandbagZScore
}
