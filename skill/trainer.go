package skill

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Training run outcomes reported to metrics.
const (
	trainOutcomeOK      = "ok"
	trainOutcomeSkipped = "skipped"
	trainOutcomeError   = "error"
)

// TrainingGame is one completed game prepared for the embedding model:
// linked player ids per side plus their per-player stat vectors, aligned by
// index.
type TrainingGame struct {
	TeamAIDs   []uuid.UUID
	TeamBIDs   []uuid.UUID
	TeamAStats [][]float64
	TeamBStats [][]float64
	TeamAWon   bool
}

// TrainingReport summarizes one retraining run.
type TrainingReport struct {
	Version        int64           `json:"version"`
	LocalGames     int             `json:"local_games"`
	HistoricalRows int             `json:"historical_rows"`
	Skipped        bool            `json:"skipped"`
	Embedding      EmbeddingReport `json:"embedding"`
	BoostStumps    int             `json:"boost_stumps"`
}

// Trainer rebuilds the learned win models from the completed-game corpus
// plus an optional historical matchup CSV, and swaps the result into the
// predictor as a new snapshot. Training never mutates the serving snapshot;
// a failed run leaves the previous generation untouched.
type Trainer struct {
	logger    *zap.Logger
	settings  *PredictorSettings
	players   PlayerStore
	games     GameStore
	stats     StatStore
	features  *FeatureBuilder
	predictor *Predictor
	models    ModelStore
	metrics   *Metrics

	// csvPath points at the historical matchup corpus; empty disables it.
	csvPath string
	seed    int64
}

func NewTrainer(logger *zap.Logger, settings *PredictorSettings, players PlayerStore, games GameStore, stats StatStore, features *FeatureBuilder, predictor *Predictor, models ModelStore, metrics *Metrics, csvPath string, seed int64) *Trainer {
	return &Trainer{
		logger:    logger,
		settings:  settings,
		players:   players,
		games:     games,
		stats:     stats,
		features:  features,
		predictor: predictor,
		models:    models,
		metrics:   metrics,
		csvPath:   csvPath,
		seed:      seed,
	}
}

// Train runs one full retraining pass. Below the minimum corpus size the run
// is a no-op skip, not an error: the predictor keeps serving whatever it has,
// down to the Elo baseline.
func (t *Trainer) Train(ctx context.Context) (*TrainingReport, error) {
	start := time.Now()
	report, err := t.train(ctx)
	switch {
	case err != nil:
		t.metrics.TrainRun(trainOutcomeError, time.Since(start))
	case report.Skipped:
		t.metrics.TrainRun(trainOutcomeSkipped, time.Since(start))
	default:
		t.metrics.TrainRun(trainOutcomeOK, time.Since(start))
	}
	return report, err
}

func (t *Trainer) train(ctx context.Context) (*TrainingReport, error) {
	report := &TrainingReport{}

	games, err := t.games.ListCompletedGames(ctx)
	if err != nil {
		return report, fmt.Errorf("list completed games: %w", err)
	}

	historical, err := t.loadHistoricalCSV()
	if err != nil {
		return report, err
	}
	report.LocalGames = len(games)
	report.HistoricalRows = len(historical)

	if len(games)+len(historical) < t.settings.MinTrainingGames {
		report.Skipped = true
		t.logger.Info("training skipped, corpus below minimum",
			zap.Int("local_games", len(games)),
			zap.Int("historical_rows", len(historical)),
			zap.Int("minimum", t.settings.MinTrainingGames))
		return report, nil
	}

	corpus, boostExamples, err := t.buildCorpus(ctx, games)
	if err != nil {
		return report, err
	}
	boostExamples = append(historical, boostExamples...)

	embedding := NewEmbeddingModel(t.settings, t.seed)
	if err := t.seedEmbeddings(ctx, embedding, corpus); err != nil {
		return report, err
	}
	if len(corpus) > 0 {
		report.Embedding = embedding.Train(corpus, t.settings.TrainEpochs, t.settings.TrainLearning)
	}

	boost := TrainBoost(boostExamples, t.settings, t.seed)
	report.BoostStumps = len(boost.Stumps)

	prev := t.predictor.Snapshot()
	snap := &ModelSnapshot{
		Version:   prev.Version + 1,
		TrainedAt: time.Now().UTC(),
		Boost:     boost,
	}
	if embedding.Trained {
		snap.Embedding = embedding
	}
	report.Version = snap.Version

	t.predictor.Swap(snap)
	if t.models != nil {
		if err := t.predictor.Save(ctx, t.models); err != nil {
			// The new generation is serving either way; persistence catches
			// up on the next successful run.
			t.logger.Warn("trained model not persisted", zap.Error(err))
		}
	}

	t.logger.Info("win models retrained",
		zap.Int64("version", snap.Version),
		zap.Int("local_games", report.LocalGames),
		zap.Int("historical_rows", report.HistoricalRows),
		zap.Float64("embedding_accuracy", report.Embedding.FinalAccuracy),
		zap.Int("boost_stumps", report.BoostStumps))
	return report, nil
}

// RunPeriodic retrains on a fixed interval until the context is canceled.
func (t *Trainer) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Train(ctx); err != nil {
				t.logger.Error("periodic training failed", zap.Error(err))
			}
		}
	}
}

// buildCorpus turns completed games into embedding training games and
// boosted-classifier examples. Games with an unresolved side contribute
// nothing; a game only reaches the corpus complete.
func (t *Trainer) buildCorpus(ctx context.Context, games []*GameRecord) ([]TrainingGame, []BoostExample, error) {
	var corpus []TrainingGame
	var examples []BoostExample

	for _, g := range games {
		playersA, err := t.resolveTeam(ctx, g, TeamA)
		if err != nil {
			return nil, nil, err
		}
		playersB, err := t.resolveTeam(ctx, g, TeamB)
		if err != nil {
			return nil, nil, err
		}
		if len(playersA) == 0 || len(playersB) == 0 {
			continue
		}

		teamAWon := g.WinningTeam() == TeamA

		fv, err := t.features.BuildVector(ctx, playersA, playersB, g.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("features for game %s: %w", g.ID, err)
		}
		examples = append(examples, BoostExample{Features: fv, TeamAWon: teamAWon})

		gameStats, err := t.stats.GameStats(ctx, g.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("stats for game %s: %w", g.ID, err)
		}
		tg := TrainingGame{TeamAWon: teamAWon}
		tg.TeamAIDs, tg.TeamAStats = teamStatVectors(playersA, gameStats, g.Type)
		tg.TeamBIDs, tg.TeamBStats = teamStatVectors(playersB, gameStats, g.Type)
		corpus = append(corpus, tg)
	}
	return corpus, examples, nil
}

func (t *Trainer) resolveTeam(ctx context.Context, g *GameRecord, side TeamSide) ([]*Player, error) {
	var out []*Player
	for _, part := range g.Team(side) {
		p, err := t.players.GetPlayer(ctx, part.PlayerID)
		if err != nil {
			if errors.Is(err, ErrPlayerNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve player %s: %w", part.PlayerID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// teamStatVectors builds the per-player stat vectors for one side, aligned
// with the returned id slice. Players without a recorded box score get a
// zero vector, which the projection treats as no stat signal.
func teamStatVectors(team []*Player, gameStats map[uuid.UUID]*PlayerGameStats, gameType GameType) ([]uuid.UUID, [][]float64) {
	var totals TeamTotals
	for _, p := range team {
		if s := gameStats[p.ID]; s != nil {
			totals.Add(s)
		}
	}
	ids := make([]uuid.UUID, len(team))
	vectors := make([][]float64, len(team))
	for i, p := range team {
		ids[i] = p.ID
		if s := gameStats[p.ID]; s != nil {
			vectors[i] = StatFeatureVector(s, totals, gameType)
		} else {
			vectors[i] = StatFeatureVector(&PlayerGameStats{}, totals, gameType)
		}
	}
	return ids, vectors
}

// seedEmbeddings assigns an embedding row to every player in the corpus,
// seeded from their self-reported skill. A full table stops assigning but
// does not fail the run; games touching unseeded players are skipped by
// Train.
func (t *Trainer) seedEmbeddings(ctx context.Context, m *EmbeddingModel, corpus []TrainingGame) error {
	for _, g := range corpus {
		for _, id := range append(append([]uuid.UUID(nil), g.TeamAIDs...), g.TeamBIDs...) {
			if _, ok := m.Index[id]; ok {
				continue
			}
			selfReported := RatingDefault
			p, err := t.players.GetPlayer(ctx, id)
			if err == nil && p.SelfReported > 0 {
				selfReported = p.SelfReported
			} else if err != nil && !errors.Is(err, ErrPlayerNotFound) {
				return fmt.Errorf("resolve player %s: %w", id, err)
			}
			if _, err := m.EnsurePlayer(id, selfReported); err != nil {
				t.logger.Warn("embedding table full, remaining players unseeded",
					zap.Int("capacity", m.MaxPlayers))
				return nil
			}
		}
	}
	return nil
}

// loadHistoricalCSV reads the offline matchup corpus: FeatureDim feature
// columns in the canonical order plus a trailing team_a_won column. A
// missing file is not an error; malformed rows are.
func (t *Trainer) loadHistoricalCSV() ([]BoostExample, error) {
	if t.csvPath == "" {
		return nil, nil
	}
	f, err := os.Open(t.csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			t.logger.Info("no historical corpus file", zap.String("path", t.csvPath))
			return nil, nil
		}
		return nil, fmt.Errorf("open historical corpus: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read historical corpus header: %w", err)
	}
	if len(header) != FeatureDim+1 || header[FeatureDim] != "team_a_won" {
		return nil, fmt.Errorf("historical corpus: want %d feature columns plus team_a_won, got %d columns", FeatureDim, len(header))
	}

	var out []BoostExample
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("historical corpus line %d: %w", line, err)
		}
		features := make([]float64, FeatureDim)
		for i := 0; i < FeatureDim; i++ {
			features[i], err = strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("historical corpus line %d column %s: %w", line, header[i], err)
			}
		}
		label, err := strconv.ParseFloat(record[FeatureDim], 64)
		if err != nil {
			return nil, fmt.Errorf("historical corpus line %d label: %w", line, err)
		}
		out = append(out, BoostExample{Features: features, TeamAWon: label >= 0.5})
	}
	return out, nil
}
