package skill

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Assignment modes reported to metrics.
const (
	assignModeModel  = "model"
	assignModeGreedy = "greedy"
)

var ErrRosterSize = errors.New("skill: roster must have an even size of at least two")

// WinPredictor is the balancer's view of the win-probability model. The
// production Predictor never fails, but the interface admits failure so the
// greedy fallback is a testable contract rather than dead code.
type WinPredictor interface {
	PredictWinProbability(ctx context.Context, teamA, teamB []*Player, gameType GameType) (float64, error)
}

// TeamBalancer splits a full roster into two equal teams minimizing
// |P(A wins) - 0.5| under the win model, with a deterministic
// rating-sum greedy partition as the guaranteed fallback.
type TeamBalancer struct {
	logger    *zap.Logger
	settings  *BalancerSettings
	predictor WinPredictor
	metrics   *Metrics

	// seed makes the >6-player candidate sampling reproducible.
	seed int64
}

func NewTeamBalancer(logger *zap.Logger, settings *BalancerSettings, predictor WinPredictor, metrics *Metrics, seed int64) *TeamBalancer {
	return &TeamBalancer{
		logger:    logger,
		settings:  settings,
		predictor: predictor,
		metrics:   metrics,
		seed:      seed,
	}
}

// AssignTeams labels every participant A or B, teams of equal size. Small
// rosters are searched exhaustively; larger rosters sample candidate splits
// without replacement up to the configured cap. Candidates whose
// probability query fails are skipped; if every candidate fails or no model
// is available, the greedy partition takes over. The method always
// terminates with a complete bipartition.
func (b *TeamBalancer) AssignTeams(ctx context.Context, gameType GameType, roster []Participant) error {
	start := time.Now()
	n := len(roster)
	if n < 2 || n%2 != 0 {
		return ErrRosterSize
	}

	if b.predictor == nil {
		b.GreedyAssign(roster)
		b.metrics.Assignment(assignModeGreedy, time.Since(start))
		return nil
	}

	best, ok := b.searchSplits(ctx, gameType, roster)
	if !ok {
		b.logger.Warn("no usable split candidate, falling back to greedy partition",
			zap.Int("roster_size", n))
		b.GreedyAssign(roster)
		b.metrics.Assignment(assignModeGreedy, time.Since(start))
		return nil
	}

	applySplit(roster, best)
	b.metrics.Assignment(assignModeModel, time.Since(start))
	return nil
}

type splitCandidate struct {
	order   int
	indices []int // team A indices
}

// searchSplits evaluates candidates concurrently and returns the split with
// the smallest imbalance. Ties go to the earliest candidate in enumeration
// order, so results are stable regardless of scheduling.
func (b *TeamBalancer) searchSplits(ctx context.Context, gameType GameType, roster []Participant) ([]int, bool) {
	n := len(roster)
	candidates := b.candidates(n)

	var (
		mu            sync.Mutex
		bestIndices   []int
		bestImbalance = math.Inf(1)
		bestOrder     = math.MaxInt
	)

	workers := b.settings.EvalWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			teamA, teamB := splitPlayers(roster, c.indices)
			prob, err := b.predictor.PredictWinProbability(gctx, teamA, teamB, gameType)
			if err != nil {
				// Degraded-but-expected: drop the candidate, not the search.
				return nil
			}
			imbalance := math.Abs(prob - 0.5)
			mu.Lock()
			if imbalance < bestImbalance || (imbalance == bestImbalance && c.order < bestOrder) {
				bestImbalance = imbalance
				bestOrder = c.order
				bestIndices = c.indices
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return bestIndices, bestIndices != nil
}

// candidates enumerates team-A index sets: exhaustively up to the
// configured roster limit, otherwise a seeded uniform sample of distinct
// splits capped at MaxSampledSplits.
func (b *TeamBalancer) candidates(n int) []splitCandidate {
	k := n / 2
	total := binomial(n, k)
	cap64 := uint64(b.settings.MaxSampledSplits)

	var ranks []uint64
	if n <= b.settings.ExhaustiveLimit || total <= cap64 {
		ranks = make([]uint64, total)
		for r := uint64(0); r < total; r++ {
			ranks[r] = r
		}
	} else {
		rng := rand.New(rand.NewSource(b.seed))
		seen := make(map[uint64]struct{}, cap64)
		ranks = make([]uint64, 0, cap64)
		for uint64(len(ranks)) < cap64 {
			r := uint64(rng.Int63n(int64(total)))
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			ranks = append(ranks, r)
		}
	}

	out := make([]splitCandidate, len(ranks))
	for i, r := range ranks {
		out[i] = splitCandidate{order: i, indices: unrankCombination(r, n, k)}
	}
	return out
}

// GreedyAssign is the deterministic model-free fallback. Rosters small
// enough for exhaustive search minimize the absolute difference of summed
// ratings; larger rosters sort by rating descending and feed the weaker
// team, capped at team size so the bipartition always comes out equal.
// Orphaned participants count as average (5.0) players.
func (b *TeamBalancer) GreedyAssign(roster []Participant) {
	n := len(roster)
	k := n / 2

	if n <= b.settings.ExhaustiveLimit {
		total := binomial(n, k)
		var bestIndices []int
		bestDiff := math.Inf(1)
		for r := uint64(0); r < total; r++ {
			indices := unrankCombination(r, n, k)
			diff := math.Abs(splitRatingDiff(roster, indices))
			if diff < bestDiff {
				bestDiff = diff
				bestIndices = indices
			}
		}
		applySplit(roster, bestIndices)
		return
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return participantRating(&roster[order[i]]) > participantRating(&roster[order[j]])
	})

	var sumA, sumB float64
	var countA, countB int
	for _, idx := range order {
		r := participantRating(&roster[idx])
		if countA < k && (sumA <= sumB || countB >= k) {
			roster[idx].Team = TeamA
			sumA += r
			countA++
		} else {
			roster[idx].Team = TeamB
			sumB += r
			countB++
		}
	}
}

// PreviewSplit returns a non-persisted (A, B) split for display on a full
// roster that has not started: rating-descending alternation.
func PreviewSplit(roster []Participant) (teamA, teamB []Participant) {
	sorted := append([]Participant(nil), roster...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return participantRating(&sorted[i]) > participantRating(&sorted[j])
	})
	for _, p := range sorted {
		if len(teamA) <= len(teamB) {
			teamA = append(teamA, p)
		} else {
			teamB = append(teamB, p)
		}
	}
	return teamA, teamB
}

func participantRating(p *Participant) float64 {
	if player, ok := p.Linked(); ok {
		return player.CurrentRating()
	}
	return RatingDefault
}

func splitPlayers(roster []Participant, teamAIndices []int) (teamA, teamB []*Player) {
	inA := make(map[int]bool, len(teamAIndices))
	for _, i := range teamAIndices {
		inA[i] = true
	}
	for i := range roster {
		player, ok := roster[i].Linked()
		if !ok {
			continue
		}
		if inA[i] {
			teamA = append(teamA, player)
		} else {
			teamB = append(teamB, player)
		}
	}
	return teamA, teamB
}

func splitRatingDiff(roster []Participant, teamAIndices []int) float64 {
	inA := make(map[int]bool, len(teamAIndices))
	for _, i := range teamAIndices {
		inA[i] = true
	}
	var diff float64
	for i := range roster {
		r := participantRating(&roster[i])
		if inA[i] {
			diff += r
		} else {
			diff -= r
		}
	}
	return diff
}

func applySplit(roster []Participant, teamAIndices []int) {
	inA := make(map[int]bool, len(teamAIndices))
	for _, i := range teamAIndices {
		inA[i] = true
	}
	for i := range roster {
		if inA[i] {
			roster[i].Team = TeamA
		} else {
			roster[i].Team = TeamB
		}
	}
}

// binomial computes C(n, k) without overflow for roster-scale inputs.
func binomial(n, k int) uint64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := uint64(1)
	for i := 0; i < k; i++ {
		result = result * uint64(n-i) / uint64(i+1)
	}
	return result
}

// unrankCombination maps a lexicographic rank onto the rank-th k-subset of
// {0..n-1}, so sampled ranks become concrete splits without materializing
// the whole combination space.
func unrankCombination(rank uint64, n, k int) []int {
	indices := make([]int, 0, k)
	next := 0
	for k > 0 {
		c := binomial(n-next-1, k-1)
		if rank < c {
			indices = append(indices, next)
			k--
		} else {
			rank -= c
		}
		next++
	}
	return indices
}
