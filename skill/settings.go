package skill

// Settings carries every tunable constant behind the rating, prediction and
// balancing algorithms. The shapes of the formulas are fixed; the numbers
// are parameters with the defaults below. Zero-valued sections fall back to
// defaults at read time so a partially populated config file is safe.
type Settings struct {
	Rating    RatingSettings    `koanf:"rating" json:"rating"`
	Challenge ChallengeSettings `koanf:"challenge" json:"challenge"`
	Predictor PredictorSettings `koanf:"predictor" json:"predictor"`
	Balancer  BalancerSettings  `koanf:"balancer" json:"balancer"`
}

// Baseline is the expected per-player output of an average (5.0) player for
// one game format, used to normalize box scores across formats. Scale
// compresses raw performance in the smaller, higher-volume formats.
type Baseline struct {
	Points    float64 `koanf:"points" json:"points"`
	Rebounds  float64 `koanf:"rebounds" json:"rebounds"`
	Assists   float64 `koanf:"assists" json:"assists"`
	Steals    float64 `koanf:"steals" json:"steals"`
	Blocks    float64 `koanf:"blocks" json:"blocks"`
	Turnovers float64 `koanf:"turnovers" json:"turnovers"`
	Scale     float64 `koanf:"scale" json:"scale"`
}

// StatWeights is the per-position importance of each stat family. Turnovers
// carry a negative weight.
type StatWeights struct {
	Points    float64 `koanf:"points" json:"points"`
	Rebounds  float64 `koanf:"rebounds" json:"rebounds"`
	Assists   float64 `koanf:"assists" json:"assists"`
	Steals    float64 `koanf:"steals" json:"steals"`
	Blocks    float64 `koanf:"blocks" json:"blocks"`
	Turnovers float64 `koanf:"turnovers" json:"turnovers"`
	FGPct     float64 `koanf:"fg_pct" json:"fg_pct"`
}

// RatingSettings tunes the rating engine (performance rating, adaptive
// blend, confidence, sandbagging).
type RatingSettings struct {
	Baselines       map[GameType]Baseline    `koanf:"baselines" json:"baselines"`
	PositionWeights map[Position]StatWeights `koanf:"position_weights" json:"position_weights"`

	// Reliability discounts the learning rate by format; 5v5 is the most
	// representative sample of true skill, 2v2 the noisiest.
	Reliability map[GameType]float64 `koanf:"reliability" json:"reliability"`

	// Adaptive blend: the learning rate scales with uncertainty, capped for
	// the first few games so early results cannot swing the rating.
	MaxLearningRate  float64 `koanf:"max_learning_rate" json:"max_learning_rate"`
	MinLearningRate  float64 `koanf:"min_learning_rate" json:"min_learning_rate"`
	EarlyLearningCap float64 `koanf:"early_learning_cap" json:"early_learning_cap"`
	EarlyGameCount   int     `koanf:"early_game_count" json:"early_game_count"`
	MinAlpha         float64 `koanf:"min_alpha" json:"min_alpha"`
	MaxAlpha         float64 `koanf:"max_alpha" json:"max_alpha"`
	SandbagAlphaDrop float64 `koanf:"sandbag_alpha_drop" json:"sandbag_alpha_drop"`

	// True-shooting efficiency curve.
	TrueShootingCenter float64 `koanf:"true_shooting_center" json:"true_shooting_center"`
	TrueShootingSlope  float64 `koanf:"true_shooting_slope" json:"true_shooting_slope"`

	// Win/loss-only Elo fallback when no stats were recorded.
	EloScale float64 `koanf:"elo_scale" json:"elo_scale"`
	EloStep  float64 `koanf:"elo_step" json:"elo_step"`

	// Sandbagging detector thresholds.
	SandbagMinGames   int     `koanf:"sandbag_min_games" json:"sandbag_min_games"`
	SandbagMinSamples int     `koanf:"sandbag_min_samples" json:"sandbag_min_samples"`
	SandbagWinRate    float64 `koanf:"sandbag_win_rate" json:"sandbag_win_rate"`
	SandbagZScore     float64 `koanf:"sandbag_z_score" json:"sandbag_z_score"`
	SandbagMinStdDev  float64 `koanf:"sandbag_min_std_dev" json:"sandbag_min_std_dev"`

	// History windows.
	HistoryWindow int `koanf:"history_window" json:"history_window"`
	SandbagWindow int `koanf:"sandbag_window" json:"sandbag_window"`

	// OpenSkill update.
	OpenSkillTau     float64 `koanf:"openskill_tau" json:"openskill_tau"`
	WinningTeamBonus float64 `koanf:"winning_team_bonus" json:"winning_team_bonus"`
}

// ChallengeSettings tunes 1v1 finalization. 1v1 results matter more per
// game than team results, so the K factor starts higher and decays with
// experience.
type ChallengeSettings struct {
	KBase          float64 `koanf:"k_base" json:"k_base"`
	KDecay         float64 `koanf:"k_decay" json:"k_decay"`
	KFloor         float64 `koanf:"k_floor" json:"k_floor"`
	EarlyKCap      float64 `koanf:"early_k_cap" json:"early_k_cap"`
	EarlyGameCount int     `koanf:"early_game_count" json:"early_game_count"`
	MarginCap      float64 `koanf:"margin_cap" json:"margin_cap"`
	MarginExponent float64 `koanf:"margin_exponent" json:"margin_exponent"`
	EarlyMarginCap float64 `koanf:"early_margin_cap" json:"early_margin_cap"`
	TargetScore    float64 `koanf:"target_score" json:"target_score"`
}

// PredictorSettings tunes the win-probability strategies and their training.
type PredictorSettings struct {
	// Point-spread logistic: one skill point is worth SpreadPerSkill points
	// on the scoreboard; the divisor is the sportsbook logistic scale.
	SpreadPerSkill float64 `koanf:"spread_per_skill" json:"spread_per_skill"`
	SpreadDivisor  float64 `koanf:"spread_divisor" json:"spread_divisor"`

	// Weight on the boosted classifier when blending with the Elo baseline;
	// bounds overconfidence while training data is sparse.
	BlendModelWeight float64 `koanf:"blend_model_weight" json:"blend_model_weight"`

	// Embedding model shape and training schedule.
	EmbeddingDim  int     `koanf:"embedding_dim" json:"embedding_dim"`
	StatDim       int     `koanf:"stat_dim" json:"stat_dim"`
	MaxPlayers    int     `koanf:"max_players" json:"max_players"`
	TrainEpochs   int     `koanf:"train_epochs" json:"train_epochs"`
	TrainLearning float64 `koanf:"train_learning_rate" json:"train_learning_rate"`

	// Boosted classifier schedule.
	BoostRounds    int     `koanf:"boost_rounds" json:"boost_rounds"`
	BoostLearning  float64 `koanf:"boost_learning_rate" json:"boost_learning_rate"`
	BoostSubsample float64 `koanf:"boost_subsample" json:"boost_subsample"`

	// Minimum corpus size before a retrain produces a usable model.
	MinTrainingGames int `koanf:"min_training_games" json:"min_training_games"`
}

// BalancerSettings tunes the split search.
type BalancerSettings struct {
	// Rosters up to this size are searched exhaustively; larger rosters are
	// sampled without replacement up to MaxSampledSplits.
	ExhaustiveLimit  int `koanf:"exhaustive_limit" json:"exhaustive_limit"`
	MaxSampledSplits int `koanf:"max_sampled_splits" json:"max_sampled_splits"`

	// Parallelism for candidate evaluation; 0 means GOMAXPROCS.
	EvalWorkers int `koanf:"eval_workers" json:"eval_workers"`
}

// DefaultSettings returns the authoritative parameter set.
func DefaultSettings() *Settings {
	return &Settings{
		Rating: RatingSettings{
			Baselines: map[GameType]Baseline{
				GameType5v5: {Points: 3.0, Rebounds: 2.0, Assists: 1.0, Steals: 0.5, Blocks: 0.3, Turnovers: 1.0, Scale: 1.0},
				GameType3v3: {Points: 5.0, Rebounds: 3.0, Assists: 1.5, Steals: 0.8, Blocks: 0.5, Turnovers: 1.2, Scale: 1.5},
				GameType2v2: {Points: 7.5, Rebounds: 4.0, Assists: 2.0, Steals: 1.0, Blocks: 0.6, Turnovers: 1.5, Scale: 2.0},
			},
			PositionWeights: map[Position]StatWeights{
				PointGuard:   {Points: 0.8, Rebounds: 0.4, Assists: 1.8, Steals: 1.2, Blocks: 0.2, Turnovers: -1.2, FGPct: 0.6},
				ShootingG:    {Points: 1.4, Rebounds: 0.5, Assists: 0.9, Steals: 1.0, Blocks: 0.3, Turnovers: -0.8, FGPct: 1.2},
				SmallForward: {Points: 1.2, Rebounds: 1.0, Assists: 0.8, Steals: 1.0, Blocks: 0.5, Turnovers: -0.7, FGPct: 1.0},
				PowerForward: {Points: 1.0, Rebounds: 1.5, Assists: 0.6, Steals: 0.6, Blocks: 1.2, Turnovers: -0.6, FGPct: 1.0},
				Center:       {Points: 0.9, Rebounds: 1.8, Assists: 0.4, Steals: 0.4, Blocks: 1.5, Turnovers: -0.5, FGPct: 1.1},
			},
			Reliability: map[GameType]float64{
				GameType5v5: 1.0,
				GameType3v3: 0.95,
				GameType2v2: 0.9,
			},
			MaxLearningRate:    0.5,
			MinLearningRate:    0.05,
			EarlyLearningCap:   0.25,
			EarlyGameCount:     3,
			MinAlpha:           0.1,
			MaxAlpha:           0.95,
			SandbagAlphaDrop:   0.25,
			TrueShootingCenter: 0.52,
			TrueShootingSlope:  6.0,
			EloScale:           4.0,
			EloStep:            1.5,
			SandbagMinGames:    5,
			SandbagMinSamples:  3,
			SandbagWinRate:     0.65,
			SandbagZScore:      1.5,
			SandbagMinStdDev:   0.3,
			HistoryWindow:      10,
			SandbagWindow:      5,
			OpenSkillTau:       0.3,
			WinningTeamBonus:   4.0,
		},
		Challenge: ChallengeSettings{
			KBase:          0.6,
			KDecay:         0.08,
			KFloor:         0.35,
			EarlyKCap:      0.45,
			EarlyGameCount: 3,
			MarginCap:      0.6,
			MarginExponent: 0.7,
			EarlyMarginCap: 1.3,
			TargetScore:    15.0,
		},
		Predictor: PredictorSettings{
			SpreadPerSkill:   4.5,
			SpreadDivisor:    15.0,
			BlendModelWeight: 0.7,
			EmbeddingDim:     16,
			StatDim:          12,
			MaxPlayers:       500,
			TrainEpochs:      50,
			TrainLearning:    1e-3,
			BoostRounds:      150,
			BoostLearning:    0.05,
			BoostSubsample:   0.85,
			MinTrainingGames: 10,
		},
		Balancer: BalancerSettings{
			ExhaustiveLimit:  6,
			MaxSampledSplits: 500,
			EvalWorkers:      0,
		},
	}
}

// baseline returns the format baseline, falling back to 5v5 for unknown
// formats the way unknown positions fall back to neutral weights.
func (s *RatingSettings) baseline(gt GameType) Baseline {
	if b, ok := s.Baselines[gt]; ok && b.Points > 0 {
		return b
	}
	if b, ok := s.Baselines[GameType5v5]; ok && b.Points > 0 {
		return b
	}
	return Baseline{Points: 3.0, Rebounds: 2.0, Assists: 1.0, Steals: 0.5, Blocks: 0.3, Turnovers: 1.0, Scale: 1.0}
}

var neutralWeights = StatWeights{Points: 1.0, Rebounds: 1.0, Assists: 1.0, Steals: 1.0, Blocks: 1.0, Turnovers: -1.0, FGPct: 1.0}

func (s *RatingSettings) positionWeights(pos Position) StatWeights {
	if pos == "" {
		pos = DefaultPosition
	}
	if w, ok := s.PositionWeights[pos]; ok {
		return w
	}
	return neutralWeights
}

func (s *RatingSettings) reliability(gt GameType) float64 {
	if w, ok := s.Reliability[gt]; ok && w > 0 {
		return w
	}
	return 1.0
}
