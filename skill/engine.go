package skill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/intinig/go-openskill/rating"
	"github.com/intinig/go-openskill/types"
	"github.com/samber/lo"
	"go.uber.org/thriftrw/ptr"
	"go.uber.org/zap"
)

var (
	ErrGameNotCompleted = errors.New("skill: game is not completed")
	ErrTiedChallenge    = errors.New("skill: challenge ended in a tie")
)

// RatingEngine consumes completed games and 1v1 challenges and produces
// updated skill, confidence, OpenSkill state and history for every
// participant. It is the sole writer of those fields.
type RatingEngine struct {
	logger   *zap.Logger
	settings *Settings
	players  PlayerStore
	results  ResultStore
	stats    StatStore
	history  HistoryStore
	metrics  *Metrics

	locks playerLocks
}

func NewRatingEngine(logger *zap.Logger, settings *Settings, players PlayerStore, results ResultStore, stats StatStore, history HistoryStore, metrics *Metrics) *RatingEngine {
	return &RatingEngine{
		logger:   logger,
		settings: settings,
		players:  players,
		results:  results,
		stats:    stats,
		history:  history,
		metrics:  metrics,
	}
}

// RegisterPlayer bootstraps the rating fields of a new player from the
// self-reported skill. This is the only rating write outside game and
// challenge processing; the self-report is never trusted again afterwards.
func (e *RatingEngine) RegisterPlayer(ctx context.Context, p *Player) error {
	p.Rating = round2(clampRating(p.SelfReported))
	if p.SelfReported == 0 {
		p.Rating = RatingDefault
	}
	p.Confidence = ComputeConfidence(0, nil)
	def := defaultOpenSkill()
	p.RatingMu = def.Mu
	p.RatingSigma = def.Sigma
	return e.players.CreatePlayer(ctx, p)
}

// ComputePerformanceRating maps one finalized box score plus match context
// onto the [1,10] scale.
func (e *RatingEngine) ComputePerformanceRating(stats *PlayerGameStats, gameType GameType, won bool, scoreMargin int, avgOpponentRating float64, position Position) float64 {
	return PerformanceRating(stats, gameType, won, scoreMargin, avgOpponentRating, position, &e.settings.Rating)
}

// UpdateRatingsAfterGame applies one completed game to every participant
// that still resolves to a player record. Participants are resolved by id
// against the store; any attached Player pointer is ignored, so records
// round-tripped through persistence rate identically to in-memory ones.
// All updates are computed against a single snapshot of ratings captured
// before any mutation, so the result does not depend on participant order,
// and they are persisted as one unit: a failure applies nothing. Updates
// for the same player arriving from concurrently completing games are
// serialized per player id.
func (e *RatingEngine) UpdateRatingsAfterGame(ctx context.Context, game *GameRecord) error {
	if game.Status != GameStatusCompleted {
		return ErrGameNotCompleted
	}

	candidateIDs := lo.FilterMap(game.Participants, func(p Participant, _ int) (uuid.UUID, bool) {
		return p.PlayerID, p.PlayerID != uuid.Nil
	})
	if len(candidateIDs) == 0 {
		e.logger.Warn("completed game has no identifiable participants", zap.String("game_id", game.ID.String()))
		return nil
	}

	unlock := e.locks.lockAll(candidateIDs)
	defer unlock()

	// Re-read everyone under the lock; the records attached to the game may
	// predate another game's just-applied update.
	current := make(map[uuid.UUID]*Player, len(candidateIDs))
	for _, id := range candidateIDs {
		p, err := e.players.GetPlayer(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPlayerNotFound) {
				continue // deleted since roster fill; treated as orphaned
			}
			return fmt.Errorf("load player %s: %w", id, err)
		}
		current[id] = p
	}

	// The consistent pre-update snapshot every opponent average reads from.
	snapshot := make(map[uuid.UUID]float64, len(current))
	for id, p := range current {
		snapshot[id] = p.CurrentRating()
	}

	gameStats, err := e.stats.GameStats(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("load stats for game %s: %w", game.ID, err)
	}

	winning := game.WinningTeam()
	margin := game.ScoreMargin()
	now := time.Now().UTC()

	var (
		updates    []RatingUpdate
		entries    []SkillHistoryEntry
		perfScores = make(map[uuid.UUID]float64, len(current))
		wonByID    = make(map[uuid.UUID]bool, len(current))
	)

	for _, part := range game.Participants {
		player, ok := current[part.PlayerID]
		if !ok {
			continue
		}

		avgOpp := opponentAverage(game.Participants, current, snapshot, part.Team)
		totalBefore := player.TotalGames()

		// Cold start: the self-report placed the player in this game; the
		// first real signal is who they played against.
		oldRating := snapshot[part.PlayerID]
		if totalBefore == 0 {
			oldRating = avgOpp
		}

		won := part.Team == winning
		wonByID[part.PlayerID] = won

		var gameRating float64
		if stat := gameStats[part.PlayerID]; stat != nil {
			gameRating = PerformanceRating(stat, game.Type, won, margin, avgOpp, player.Position, &e.settings.Rating)
		} else {
			// No box score recorded: pure win/loss Elo delta.
			expected := eloExpectedScore(oldRating, avgOpp, e.settings.Rating.EloScale)
			if won {
				gameRating = oldRating + e.settings.Rating.EloStep*(1.0-expected)
			} else {
				gameRating = oldRating - e.settings.Rating.EloStep*expected
			}
			gameRating = clampRating(gameRating)
		}
		perfScores[part.PlayerID] = gameRating

		recent, err := e.history.Recent(ctx, part.PlayerID, e.settings.Rating.HistoryWindow)
		if err != nil {
			return fmt.Errorf("load history for player %s: %w", part.PlayerID, err)
		}
		ratingHist := lo.Map(recent, func(h SkillHistoryEntry, _ int) float64 { return h.NewRating })

		confidence := player.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
		alpha := Alpha(totalBefore, confidence, &e.settings.Rating)

		window := ratingHist
		if len(window) > e.settings.Rating.SandbagWindow {
			window = window[:e.settings.Rating.SandbagWindow]
		}
		if IsSandbagging(player, window, &e.settings.Rating) && gameRating > oldRating {
			alpha = math.Max(alpha-e.settings.Rating.SandbagAlphaDrop, e.settings.Rating.MinAlpha)
			e.metrics.SandbagFlag()
			e.logger.Info("sandbagging suspected, dampening rating gain",
				zap.String("player_id", part.PlayerID.String()),
				zap.Float64("rating", oldRating),
				zap.Float64("game_rating", gameRating))
		}

		// Format reliability discounts the learning portion only.
		lr := (1.0 - alpha) * e.settings.Rating.reliability(game.Type)
		alpha = 1.0 - lr

		newRating := round2(clampRating(alpha*oldRating + lr*gameRating))
		newConfidence := ComputeConfidence(totalBefore+1, append(ratingHist, newRating))

		updates = append(updates, RatingUpdate{
			PlayerID:   part.PlayerID,
			Rating:     newRating,
			Confidence: newConfidence,
			Won:        won,
		})
		entries = append(entries, SkillHistoryEntry{
			PlayerID:  part.PlayerID,
			GameID:    game.ID,
			OldRating: oldRating,
			NewRating: newRating,
			GameType:  game.Type,
			CreatedAt: now,
		})
	}

	// OpenSkill moves on the same outcome, score-weighted by each player's
	// performance rating.
	openskill := e.newOpenSkillRatings(game, current, perfScores, wonByID)
	for i := range updates {
		if r, ok := openskill[updates[i].PlayerID]; ok {
			updates[i].Mu = r.Mu
			updates[i].Sigma = r.Sigma
		}
	}

	if err := e.results.ApplyGameResult(ctx, updates, entries); err != nil {
		return fmt.Errorf("apply result of game %s: %w", game.ID, err)
	}
	e.metrics.RatingUpdate(len(updates))
	e.logger.Info("ratings updated",
		zap.String("game_id", game.ID.String()),
		zap.String("game_type", string(game.Type)),
		zap.Int("players", len(updates)))
	return nil
}

// UpdateRatingsAfterChallenge applies a completed 1v1. The K factor starts
// higher than team play and decays with experience; the score margin
// amplifies the move nonlinearly, capped for near-new players so a 15-0
// first game cannot run away with the rating.
func (e *RatingEngine) UpdateRatingsAfterChallenge(ctx context.Context, winnerID, loserID uuid.UUID, winnerScore, loserScore int) error {
	if winnerScore == loserScore {
		return ErrTiedChallenge
	}
	if winnerScore < loserScore {
		winnerID, loserID = loserID, winnerID
		winnerScore, loserScore = loserScore, winnerScore
	}

	unlock := e.locks.lockAll([]uuid.UUID{winnerID, loserID})
	defer unlock()

	winner, err := e.players.GetPlayer(ctx, winnerID)
	if err != nil {
		return fmt.Errorf("load winner %s: %w", winnerID, err)
	}
	loser, err := e.players.GetPlayer(ctx, loserID)
	if err != nil {
		return fmt.Errorf("load loser %s: %w", loserID, err)
	}

	cs := &e.settings.Challenge
	wBefore, lBefore := winner.TotalGames(), loser.TotalGames()

	wOld := winner.CurrentRating()
	if wBefore == 0 {
		wOld = loser.CurrentRating()
	}
	lOld := loser.CurrentRating()
	if lBefore == 0 {
		lOld = winner.CurrentRating()
	}

	expectedW := eloExpectedScore(wOld, lOld, e.settings.Rating.EloScale)
	expectedL := 1.0 - expectedW

	kW := math.Max(cs.KFloor, cs.KBase/(1.0+cs.KDecay*float64(wBefore)))
	kL := math.Max(cs.KFloor, cs.KBase/(1.0+cs.KDecay*float64(lBefore)))
	if wBefore < cs.EarlyGameCount {
		kW = math.Min(kW, cs.EarlyKCap)
	}
	if lBefore < cs.EarlyGameCount {
		kL = math.Min(kL, cs.EarlyKCap)
	}

	margin := float64(winnerScore - loserScore)
	marginMult := 1.0 + math.Min(cs.MarginCap, math.Pow(margin/cs.TargetScore, cs.MarginExponent))
	if wBefore < 2 && lBefore < 2 {
		marginMult = math.Min(marginMult, cs.EarlyMarginCap)
	}

	wNew := round2(clampRating(wOld + kW*(1.0-expectedW)*marginMult))
	lNew := round2(clampRating(lOld - kL*expectedL*marginMult))

	// Head-to-head OpenSkill move, weighted by the final score.
	rated := rating.Rate([]types.Team{
		{openSkillOf(winner)},
		{openSkillOf(loser)},
	}, &types.OpenSkillOptions{
		Score: []int{winnerScore, loserScore},
		Tau:   ptr.Float64(e.settings.Rating.OpenSkillTau),
	})

	now := time.Now().UTC()
	updates := []RatingUpdate{
		{PlayerID: winner.ID, Rating: wNew, Confidence: ComputeConfidence(wBefore+1, nil), Mu: rated[0][0].Mu, Sigma: rated[0][0].Sigma, Won: true, Challenge: true},
		{PlayerID: loser.ID, Rating: lNew, Confidence: ComputeConfidence(lBefore+1, nil), Mu: rated[1][0].Mu, Sigma: rated[1][0].Sigma, Won: false, Challenge: true},
	}
	entries := []SkillHistoryEntry{
		{PlayerID: winner.ID, OldRating: wOld, NewRating: wNew, GameType: GameType1v1, CreatedAt: now},
		{PlayerID: loser.ID, OldRating: lOld, NewRating: lNew, GameType: GameType1v1, CreatedAt: now},
	}

	if err := e.results.ApplyGameResult(ctx, updates, entries); err != nil {
		return fmt.Errorf("apply challenge result: %w", err)
	}
	e.metrics.RatingUpdate(len(updates))
	e.logger.Info("challenge ratings updated",
		zap.String("winner_id", winner.ID.String()),
		zap.String("loser_id", loser.ID.String()),
		zap.Float64("winner_rating", wNew),
		zap.Float64("loser_rating", lNew))
	return nil
}

// newOpenSkillRatings rates every competitor on their own single-player
// team, winners ranked ahead of losers and both ordered by performance, so
// the update rewards individual contribution inside the team outcome.
func (e *RatingEngine) newOpenSkillRatings(game *GameRecord, current map[uuid.UUID]*Player, perfScores map[uuid.UUID]float64, wonByID map[uuid.UUID]bool) map[uuid.UUID]types.Rating {
	competitors := lo.Filter(game.Participants, func(p Participant, _ int) bool {
		_, ok := current[p.PlayerID]
		return ok && (p.Team == TeamA || p.Team == TeamB)
	})
	if len(competitors) < 2 {
		return nil
	}

	scores := make(map[uuid.UUID]int, len(competitors))
	for _, c := range competitors {
		s := perfScores[c.PlayerID] * 10
		if wonByID[c.PlayerID] {
			s += e.settings.Rating.WinningTeamBonus * 10
		}
		scores[c.PlayerID] = int(s)
	}

	slices.SortStableFunc(competitors, func(a, b Participant) int {
		if wonByID[a.PlayerID] != wonByID[b.PlayerID] {
			if wonByID[a.PlayerID] {
				return -1
			}
			return 1
		}
		return scores[b.PlayerID] - scores[a.PlayerID]
	})

	teams := make([]types.Team, len(competitors))
	ordered := make([]int, len(competitors))
	for i, c := range competitors {
		teams[i] = types.Team{openSkillOf(current[c.PlayerID])}
		ordered[i] = scores[c.PlayerID]
	}

	rated := rating.Rate(teams, &types.OpenSkillOptions{
		Score: ordered,
		Tau:   ptr.Float64(e.settings.Rating.OpenSkillTau),
	})

	out := make(map[uuid.UUID]types.Rating, len(rated))
	for i, team := range rated {
		out[competitors[i].PlayerID] = team[0]
	}
	return out
}

func defaultOpenSkill() types.Rating {
	return types.Rating{Z: 3, Mu: 25.0, Sigma: 25.0 / 3.0}
}

func openSkillOf(p *Player) types.Rating {
	if p.RatingMu == 0 {
		return defaultOpenSkill()
	}
	sigma := p.RatingSigma
	if sigma <= 0 {
		sigma = p.RatingMu / 3.0
	}
	return types.Rating{Z: 3, Mu: p.RatingMu, Sigma: sigma}
}

// opponentAverage averages the snapshot ratings of the linked players on
// the other team; an all-orphan opposition reads as average competition.
func opponentAverage(participants []Participant, current map[uuid.UUID]*Player, snapshot map[uuid.UUID]float64, team TeamSide) float64 {
	var sum float64
	var n int
	for _, p := range participants {
		if p.Team == team {
			continue
		}
		if _, ok := current[p.PlayerID]; !ok {
			continue
		}
		sum += snapshot[p.PlayerID]
		n++
	}
	if n == 0 {
		return RatingDefault
	}
	return sum / float64(n)
}

// playerLocks serializes rating updates per player id. Locks are acquired
// in byte order so two games sharing players cannot deadlock. The map holds
// one mutex per player seen since process start and is never evicted; at
// league scale that is a few thousand entries, well below any eviction
// threshold worth the bookkeeping.
type playerLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *playerLocks) lockAll(ids []uuid.UUID) (unlock func()) {
	sorted := append([]uuid.UUID(nil), ids...)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	sorted = slices.Compact(sorted)

	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	acquired := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m, ok := l.locks[id]
		if !ok {
			m = &sync.Mutex{}
			l.locks[id] = m
		}
		acquired = append(acquired, m)
	}
	l.mu.Unlock()

	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
