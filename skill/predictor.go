package skill

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gofrs/uuid/v5"
)

// Strategy names, in fallback priority order.
const (
	StrategyEmbedding = "embedding"
	StrategyAggregate = "team_aggregate"
	StrategyElo       = "elo"
)

// Prediction is a win probability plus the strategy that produced it.
type Prediction struct {
	Probability float64 `json:"probability"`
	Strategy    string  `json:"strategy"`
}

// ModelSnapshot is one immutable generation of learned state. Inference
// reads whichever snapshot is current; retraining builds a fresh snapshot
// and swaps it in whole, so no reader ever observes a half-updated model.
type ModelSnapshot struct {
	Version   int64
	TrainedAt time.Time
	Embedding *EmbeddingModel
	Boost     *BoostModel
}

// Predictor answers P(team A wins) by walking an explicit ordered list of
// strategies: the pairwise embedding model, the team-aggregate boosted
// classifier blended with the Elo baseline, then the Elo baseline alone.
// A failure in a higher-priority strategy (untrained weights, unknown
// player, missing features) falls through silently; the Elo tail cannot
// fail, so callers always get a probability in [0,1].
type Predictor struct {
	logger   *zap.Logger
	settings *PredictorSettings
	features *FeatureBuilder
	metrics  *Metrics

	snapshot atomic.Pointer[ModelSnapshot]
}

func NewPredictor(logger *zap.Logger, settings *PredictorSettings, features *FeatureBuilder, metrics *Metrics) *Predictor {
	p := &Predictor{
		logger:   logger,
		settings: settings,
		features: features,
		metrics:  metrics,
	}
	p.snapshot.Store(&ModelSnapshot{})
	return p
}

// Snapshot returns the current model generation.
func (p *Predictor) Snapshot() *ModelSnapshot {
	return p.snapshot.Load()
}

// Swap atomically installs a new model generation.
func (p *Predictor) Swap(s *ModelSnapshot) {
	if s == nil {
		s = &ModelSnapshot{}
	}
	p.snapshot.Store(s)
	p.logger.Info("win model snapshot swapped",
		zap.Int64("version", s.Version),
		zap.Bool("embedding", s.Embedding != nil && s.Embedding.Trained),
		zap.Bool("boost", s.Boost != nil && s.Boost.Trained),
	)
}

// PredictWinProbability walks the strategy list and returns the first
// success. It never returns an error; the deterministic Elo baseline is the
// guaranteed tail.
func (p *Predictor) PredictWinProbability(ctx context.Context, teamA, teamB []*Player, gameType GameType) (float64, error) {
	return p.Predict(ctx, teamA, teamB, gameType).Probability, nil
}

// Predict is PredictWinProbability plus the winning strategy's name.
func (p *Predictor) Predict(ctx context.Context, teamA, teamB []*Player, gameType GameType) Prediction {
	type namedStrategy struct {
		name string
		fn   func(context.Context, []*Player, []*Player, GameType) (float64, error)
	}
	strategies := []namedStrategy{
		{StrategyEmbedding, p.predictEmbedding},
		{StrategyAggregate, p.predictAggregate},
		{StrategyElo, p.predictElo},
	}

	for _, s := range strategies {
		prob, err := s.fn(ctx, teamA, teamB, gameType)
		if err != nil {
			p.logger.Debug("prediction strategy unavailable",
				zap.String("strategy", s.name), zap.Error(err))
			continue
		}
		p.metrics.Prediction(s.name)
		return Prediction{Probability: clampProbability(prob), Strategy: s.name}
	}

	// Unreachable: the Elo strategy has no failure mode. Kept as a bound
	// safety net so a probability is always returned.
	return Prediction{Probability: 0.5, Strategy: StrategyElo}
}

// Predict1v1 is the head-to-head probability for two players.
func (p *Predictor) Predict1v1(a, b *Player) float64 {
	return WinProbabilityFromRatings(a.CurrentRating(), b.CurrentRating(), p.settings)
}

// predictEmbedding uses the learned pairwise model on player identity
// alone, evaluated in both orientations and averaged so that
// P(A,B) + P(B,A) == 1 holds for the learned head too.
func (p *Predictor) predictEmbedding(_ context.Context, teamA, teamB []*Player, _ GameType) (float64, error) {
	snap := p.snapshot.Load()
	if snap.Embedding == nil {
		return 0, ErrModelUntrained
	}
	idsA := linkedIDs(teamA)
	idsB := linkedIDs(teamB)
	if len(idsA) == 0 || len(idsB) == 0 {
		return 0, ErrUnknownPlayer
	}
	forward, err := snap.Embedding.PredictWin(idsA, idsB)
	if err != nil {
		return 0, err
	}
	reverse, err := snap.Embedding.PredictWin(idsB, idsA)
	if err != nil {
		return 0, err
	}
	return (forward + (1 - reverse)) / 2, nil
}

// predictAggregate scores the boosted classifier on the symmetric
// difference features and blends with the Elo baseline to bound
// overconfidence while the local corpus is small.
func (p *Predictor) predictAggregate(ctx context.Context, teamA, teamB []*Player, gameType GameType) (float64, error) {
	snap := p.snapshot.Load()
	if snap.Boost == nil {
		return 0, ErrModelUntrained
	}
	if p.features == nil {
		return 0, fmt.Errorf("skill: no feature source configured")
	}

	forward, err := p.aggregateOneWay(ctx, snap.Boost, teamA, teamB, gameType)
	if err != nil {
		return 0, err
	}
	reverse, err := p.aggregateOneWay(ctx, snap.Boost, teamB, teamA, gameType)
	if err != nil {
		return 0, err
	}
	return (forward + (1 - reverse)) / 2, nil
}

func (p *Predictor) aggregateOneWay(ctx context.Context, boost *BoostModel, teamA, teamB []*Player, gameType GameType) (float64, error) {
	fv, err := p.features.BuildVector(ctx, teamA, teamB, gameType)
	if err != nil {
		return 0, err
	}
	prob, err := boost.PredictProb(fv)
	if err != nil {
		return 0, err
	}
	elo := WinProbabilityFromRatings(teamAverageRating(teamA), teamAverageRating(teamB), p.settings)
	w := p.settings.BlendModelWeight
	return clampProbability(w*prob + (1-w)*elo), nil
}

func (p *Predictor) predictElo(_ context.Context, teamA, teamB []*Player, _ GameType) (float64, error) {
	return WinProbabilityFromRatings(teamAverageRating(teamA), teamAverageRating(teamB), p.settings), nil
}

// Load restores the latest persisted snapshot, if any. A missing model is
// not an error; the predictor simply starts on the Elo baseline.
func (p *Predictor) Load(ctx context.Context, store ModelStore) error {
	data, version, err := store.LoadModel(ctx)
	if err != nil {
		if err == ErrModelNotFound {
			p.logger.Info("no persisted win model, starting on elo baseline")
			return nil
		}
		return fmt.Errorf("load win model: %w", err)
	}
	var snap ModelSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("decode win model v%d: %w", version, err)
	}
	p.Swap(&snap)
	return nil
}

// Save persists the current snapshot.
func (p *Predictor) Save(ctx context.Context, store ModelStore) error {
	snap := p.snapshot.Load()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode win model: %w", err)
	}
	if err := store.SaveModel(ctx, snap.Version, buf.Bytes()); err != nil {
		return fmt.Errorf("persist win model v%d: %w", snap.Version, err)
	}
	return nil
}

func linkedIDs(team []*Player) []uuid.UUID {
	return lo.FilterMap(team, func(p *Player, _ int) (uuid.UUID, bool) {
		if p == nil {
			return uuid.Nil, false
		}
		return p.ID, true
	})
}

// teamAverageRating averages the linked players' current ratings; an empty
// or fully orphaned side reads as an average (5.0) team.
func teamAverageRating(team []*Player) float64 {
	ratings := lo.FilterMap(team, func(p *Player, _ int) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return p.CurrentRating(), true
	})
	if len(ratings) == 0 {
		return RatingDefault
	}
	return lo.Sum(ratings) / float64(len(ratings))
}
