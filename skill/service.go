package skill

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Stores bundles the persistence interfaces the service needs. MemoryStore
// satisfies all of them; production wires database-backed implementations.
type Stores struct {
	Players PlayerStore
	Results ResultStore
	Games   GameStore
	Stats   StatStore
	History HistoryStore
	Models  ModelStore
}

// Service is the composed entry point: rating engine, win predictor, team
// balancer and trainer wired against one set of stores and settings.
type Service struct {
	logger   *zap.Logger
	settings *Settings

	engine    *RatingEngine
	predictor *Predictor
	balancer  *TeamBalancer
	trainer   *Trainer
	stores    Stores
}

// NewService wires the subsystem. metrics may be nil; csvPath may be empty
// to disable the historical corpus; seed fixes every stochastic choice
// (split sampling, model init, subsampling) for reproducible runs.
func NewService(logger *zap.Logger, settings *Settings, stores Stores, metrics *Metrics, csvPath string, seed int64) *Service {
	if settings == nil {
		settings = DefaultSettings()
	}
	features := NewFeatureBuilder(stores.Stats, stores.History)
	predictor := NewPredictor(logger, &settings.Predictor, features, metrics)
	return &Service{
		logger:   logger,
		settings: settings,
		engine: NewRatingEngine(logger, settings, stores.Players, stores.Results,
			stores.Stats, stores.History, metrics),
		predictor: predictor,
		balancer:  NewTeamBalancer(logger, &settings.Balancer, predictor, metrics, seed),
		trainer: NewTrainer(logger, &settings.Predictor, stores.Players, stores.Games,
			stores.Stats, features, predictor, stores.Models, metrics, csvPath, seed),
		stores: stores,
	}
}

// LoadModels restores the persisted model snapshot, if any.
func (s *Service) LoadModels(ctx context.Context) error {
	if s.stores.Models == nil {
		return nil
	}
	return s.predictor.Load(ctx, s.stores.Models)
}

// RegisterPlayer bootstraps a new player's rating state from the
// self-reported skill.
func (s *Service) RegisterPlayer(ctx context.Context, p *Player) error {
	return s.engine.RegisterPlayer(ctx, p)
}

// ComputePerformanceRating scores one box score in match context.
func (s *Service) ComputePerformanceRating(stats *PlayerGameStats, gameType GameType, won bool, scoreMargin int, avgOpponentRating float64, position Position) float64 {
	return s.engine.ComputePerformanceRating(stats, gameType, won, scoreMargin, avgOpponentRating, position)
}

// UpdateRatingsAfterGame finalizes a completed game's rating effects.
func (s *Service) UpdateRatingsAfterGame(ctx context.Context, game *GameRecord) error {
	return s.engine.UpdateRatingsAfterGame(ctx, game)
}

// UpdateRatingsAfterChallenge finalizes a 1v1 challenge.
func (s *Service) UpdateRatingsAfterChallenge(ctx context.Context, winnerID, loserID uuid.UUID, winnerScore, loserScore int) error {
	return s.engine.UpdateRatingsAfterChallenge(ctx, winnerID, loserID, winnerScore, loserScore)
}

// AssignTeams labels a full roster A/B minimizing predicted imbalance.
func (s *Service) AssignTeams(ctx context.Context, gameType GameType, roster []Participant) error {
	return s.balancer.AssignTeams(ctx, gameType, roster)
}

// MatchupPrediction is a matchup's probability, strategy and display lines
// from team A's perspective.
type MatchupPrediction struct {
	Prediction
	Lines BettingLines `json:"lines"`
}

// PredictMatchup answers P(team A wins) plus the derived betting lines.
func (s *Service) PredictMatchup(ctx context.Context, teamA, teamB []*Player, gameType GameType) MatchupPrediction {
	pred := s.predictor.Predict(ctx, teamA, teamB, gameType)
	return MatchupPrediction{
		Prediction: pred,
		Lines:      CalculateBettingLines(pred.Probability, &s.settings.Predictor),
	}
}

// PredictChallenge answers the head-to-head probability that a beats b,
// with display lines.
func (s *Service) PredictChallenge(a, b *Player) MatchupPrediction {
	prob := s.predictor.Predict1v1(a, b)
	return MatchupPrediction{
		Prediction: Prediction{Probability: prob, Strategy: StrategyElo},
		Lines:      CalculateBettingLines(prob, &s.settings.Predictor),
	}
}

// TrainModel runs one retraining pass and swaps the result in.
func (s *Service) TrainModel(ctx context.Context) (*TrainingReport, error) {
	return s.trainer.Train(ctx)
}

// StartPeriodicTraining retrains on the given interval until ctx ends.
// Blocks; run it on its own goroutine.
func (s *Service) StartPeriodicTraining(ctx context.Context, interval time.Duration) {
	s.trainer.RunPeriodic(ctx, interval)
}

// Predictor exposes the underlying win model for callers that need the
// strategy breakdown.
func (s *Service) Predictor() *Predictor {
	return s.predictor
}
