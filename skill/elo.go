package skill

import (
	"fmt"
	"math"
)

// WinProbabilityFromRatings is the deterministic baseline: skill difference
// converted to an implied point spread, then through a vig-free sportsbook
// logistic. Symmetric, monotone in the rating difference, exactly 0.5 for
// equal ratings, and it cannot fail.
func WinProbabilityFromRatings(ratingA, ratingB float64, s *PredictorSettings) float64 {
	spread := (ratingA - ratingB) * s.SpreadPerSkill
	p := 1.0 / (1.0 + math.Pow(10, -spread/s.SpreadDivisor))
	return math.Max(0.01, math.Min(0.99, p))
}

// eloExpectedScore is the classic expected-outcome logistic used by the
// rating update paths (scale 4 across the 1-10 rating range).
func eloExpectedScore(rating, opponent, scale float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-rating)/scale))
}

// BettingLines is the purely presentational transform of a win probability:
// an American-odds moneyline and a point spread derived via the inverse
// logistic.
type BettingLines struct {
	WinProbability float64 `json:"win_probability"`
	Moneyline      string  `json:"moneyline"`
	Spread         string  `json:"spread"`
}

// CalculateBettingLines converts a win probability in [0,1] into display
// lines. Favorites get negative moneylines and spreads, underdogs positive.
func CalculateBettingLines(winProb float64, s *PredictorSettings) BettingLines {
	winProb = clampProbability(winProb)

	var odds int
	if winProb >= 0.5 {
		if winProb > 0.99 {
			odds = -10000
		} else {
			odds = int(-(winProb / (1.0 - winProb)) * 100)
		}
	} else {
		if winProb < 0.01 {
			odds = 10000
		} else {
			odds = int(((1.0 - winProb) / winProb) * 100)
		}
	}

	// Inverse of p = 1/(1+10^(-spread/divisor)), sign flipped into betting
	// convention (favorite negative).
	var spread float64
	if winProb > 0.001 && winProb < 0.999 {
		spread = -s.SpreadDivisor * math.Log10(1.0/winProb-1.0)
	} else if winProb >= 0.5 {
		spread = 20.0
	} else {
		spread = -20.0
	}
	bettingSpread := -math.Round(spread*10) / 10
	if bettingSpread == 0 {
		bettingSpread = 0.0 // normalize -0.0
	}

	return BettingLines{
		WinProbability: math.Round(winProb*1000) / 1000,
		Moneyline:      formatSigned(float64(odds), 0),
		Spread:         formatSigned(bettingSpread, 1),
	}
}

func formatSigned(v float64, decimals int) string {
	if v > 0 {
		return fmt.Sprintf("+%.*f", decimals, v)
	}
	return fmt.Sprintf("%.*f", decimals, v)
}
