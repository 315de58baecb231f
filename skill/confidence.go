package skill

import (
	"math"

	"github.com/montanaflynn/stats"
)

// ComputeConfidence maps a Glicko-2-inspired rating deviation onto
// [0.05, 0.95]. The base deviation shrinks asymptotically with games
// played; volatile recent ratings add a penalty. At constant volatility
// confidence never decreases with more games; at constant games it never
// increases with more volatility.
func ComputeConfidence(totalGames int, ratingHistory []float64) float64 {
	rdBase := 350.0*math.Exp(-float64(totalGames)/10.0) + 40.0

	volatility := 0.0
	if len(ratingHistory) >= 3 {
		std, err := stats.StandardDeviationPopulation(stats.Float64Data(ratingHistory))
		if err == nil {
			volatility = math.Min(150.0, std*50.0)
		}
	}

	// Typical Glicko deviation scale runs roughly 30..350.
	rd := math.Min(350.0, rdBase+volatility)
	confidence := 1.0 - (rd-30.0)/320.0
	return math.Round(math.Max(ConfidenceMin, math.Min(ConfidenceMax, confidence))*1e4) / 1e4
}

// LearningRate is the weight the newest result carries in the rating blend.
// Lower confidence means a higher learning rate (Glicko-2 style), with a
// cap over the first few games so early outliers cannot overreact, and a
// hard floor so ratings never freeze entirely.
func LearningRate(totalGamesBefore int, confidence float64, s *RatingSettings) float64 {
	lr := s.MaxLearningRate * (1.0 - confidence)
	if totalGamesBefore < s.EarlyGameCount {
		lr = math.Min(lr, s.EarlyLearningCap)
	}
	return math.Max(s.MinLearningRate, lr)
}

// Alpha is the prior weight in the blend: alpha = 1 - learning rate,
// clamped to the configured band.
func Alpha(totalGamesBefore int, confidence float64, s *RatingSettings) float64 {
	a := 1.0 - LearningRate(totalGamesBefore, confidence, s)
	return math.Min(math.Max(a, s.MinAlpha), s.MaxAlpha)
}
