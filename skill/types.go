// Package skill implements the rating, prediction, and team-balancing core
// for pickup basketball: a continuously updated per-player skill estimate
// with confidence, a layered win-probability model, and a roster bipartition
// search that minimizes predicted win-probability imbalance.
package skill

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/intinig/go-openskill/rating"
)

// Position is a player's preferred role on the floor.
type Position string

const (
	PointGuard   Position = "PG"
	ShootingG    Position = "SG"
	SmallForward Position = "SF"
	PowerForward Position = "PF"
	Center       Position = "C"
)

// DefaultPosition is assumed when a player never set one.
const DefaultPosition = SmallForward

// GameType is the roster format. Pickup games are played to 15, so the
// per-player statistical baselines differ sharply between formats.
type GameType string

const (
	GameType2v2 GameType = "2v2"
	GameType3v3 GameType = "3v3"
	GameType5v5 GameType = "5v5"

	// GameType1v1 only appears in history entries written by challenge
	// finalization; it is never a team roster format.
	GameType1v1 GameType = "1v1"
)

// RosterSize returns the full roster size for the format (both teams).
func (gt GameType) RosterSize() int {
	switch gt {
	case GameType2v2:
		return 4
	case GameType3v3:
		return 6
	case GameType5v5:
		return 10
	default:
		return 0
	}
}

// GameStatus is the lifecycle of a game record.
type GameStatus string

const (
	GameStatusOpen       GameStatus = "open"
	GameStatusFull       GameStatus = "full"
	GameStatusInProgress GameStatus = "in_progress"
	GameStatusCompleted  GameStatus = "completed"
)

// TeamSide labels one half of a bipartition.
type TeamSide string

const (
	TeamA          TeamSide = "A"
	TeamB          TeamSide = "B"
	TeamUnassigned TeamSide = ""
)

// Opponent returns the other side, or unassigned for unassigned.
func (t TeamSide) Opponent() TeamSide {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	default:
		return TeamUnassigned
	}
}

// Rating domain bounds. Every outward-facing rating is clamped to these.
const (
	RatingMin     = 1.0
	RatingMax     = 10.0
	RatingDefault = 5.0

	ConfidenceMin = 0.05
	ConfidenceMax = 0.95
)

// Player is the rating subsystem's view of a user. Rating, Confidence,
// the win/loss counters and the OpenSkill pair are mutated exclusively by
// the RatingEngine (and bootstrap registration).
type Player struct {
	ID       uuid.UUID `json:"id" bson:"_id"`
	Position Position  `json:"position" bson:"position"`

	// SelfReported is the 1-10 skill the player claimed at signup. It is
	// trusted for initial matchmaking placement only, never for updates.
	SelfReported float64 `json:"self_reported_skill" bson:"self_reported_skill"`

	Rating     float64 `json:"rating" bson:"rating"`
	Confidence float64 `json:"confidence" bson:"confidence"`

	// Team game totals.
	GamesPlayed int `json:"games_played" bson:"games_played"`
	Wins        int `json:"wins" bson:"wins"`
	Losses      int `json:"losses" bson:"losses"`

	// 1v1 challenge totals, tracked separately.
	ChallengeWins   int `json:"challenge_wins" bson:"challenge_wins"`
	ChallengeLosses int `json:"challenge_losses" bson:"challenge_losses"`

	// OpenSkill estimate maintained alongside the scalar rating; feeds
	// matchmaking placement displays and team strength aggregates.
	RatingMu    float64 `json:"rating_mu" bson:"rating_mu"`
	RatingSigma float64 `json:"rating_sigma" bson:"rating_sigma"`

	Height string  `json:"height" bson:"height"` // e.g. `6'2"`
	Weight float64 `json:"weight" bson:"weight"` // pounds
}

// TotalGames counts every rated result: team games plus 1v1 challenges.
func (p *Player) TotalGames() int {
	return p.GamesPlayed + p.ChallengeWins + p.ChallengeLosses
}

// TotalWins counts team wins plus challenge wins.
func (p *Player) TotalWins() int {
	return p.Wins + p.ChallengeWins
}

// WinRate is total wins over total rated results.
func (p *Player) WinRate() float64 {
	total := p.TotalGames()
	if total == 0 {
		return 0
	}
	return float64(p.TotalWins()) / float64(total)
}

// SkillOrdinal is the conservative OpenSkill estimate (mu - 3*sigma) used
// for matchmaking placement displays.
func (p *Player) SkillOrdinal() float64 {
	return rating.Ordinal(openSkillOf(p))
}

// CurrentRating returns the clamped rating, defaulting unset players to 5.0.
func (p *Player) CurrentRating() float64 {
	if p == nil || p.Rating == 0 {
		return RatingDefault
	}
	return clampRating(p.Rating)
}

// Participant is one roster slot of a game. Player may be nil when the
// underlying account was deleted; consumers must check Linked rather than
// dereference, and orphaned slots are excluded from rating math while still
// receiving a team label.
type Participant struct {
	PlayerID uuid.UUID `json:"player_id" bson:"player_id"`
	Team     TeamSide  `json:"team" bson:"team"`
	Player   *Player   `json:"-" bson:"-"`
}

// Linked reports whether the participant still resolves to a player record.
func (p *Participant) Linked() (*Player, bool) {
	if p == nil || p.Player == nil {
		return nil, false
	}
	return p.Player, true
}

// GameRecord is a scheduled pickup game.
type GameRecord struct {
	ID           uuid.UUID     `json:"id" bson:"_id"`
	Type         GameType      `json:"game_type" bson:"game_type"`
	ScheduledAt  time.Time     `json:"scheduled_at" bson:"scheduled_at"`
	Status       GameStatus    `json:"status" bson:"status"`
	ScoreA       int           `json:"team_a_score" bson:"team_a_score"`
	ScoreB       int           `json:"team_b_score" bson:"team_b_score"`
	Participants []Participant `json:"participants" bson:"participants"`
}

// WinningTeam returns the side with the higher final score. Ties resolve to
// team B losing, matching how completion is recorded upstream.
func (g *GameRecord) WinningTeam() TeamSide {
	if g.ScoreA > g.ScoreB {
		return TeamA
	}
	return TeamB
}

// ScoreMargin is the absolute final score difference.
func (g *GameRecord) ScoreMargin() int {
	m := g.ScoreA - g.ScoreB
	if m < 0 {
		return -m
	}
	return m
}

// Team returns the participants assigned to one side.
func (g *GameRecord) Team(side TeamSide) []Participant {
	out := make([]Participant, 0, len(g.Participants)/2)
	for _, p := range g.Participants {
		if p.Team == side {
			out = append(out, p)
		}
	}
	return out
}

// PlayerGameStats is one participant's box score for one game. It may be
// corrected until stats are finalized; the rating engine treats it as
// read-only input.
type PlayerGameStats struct {
	GameID   uuid.UUID `json:"game_id" bson:"game_id"`
	PlayerID uuid.UUID `json:"player_id" bson:"player_id"`

	Points    int `json:"pts" bson:"pts"`
	Rebounds  int `json:"reb" bson:"reb"`
	Assists   int `json:"ast" bson:"ast"`
	Steals    int `json:"stl" bson:"stl"`
	Blocks    int `json:"blk" bson:"blk"`
	Turnovers int `json:"tov" bson:"tov"`

	FieldGoalsMade      int `json:"fgm" bson:"fgm"`
	FieldGoalsAttempted int `json:"fga" bson:"fga"`
	ThreesMade          int `json:"three_pm" bson:"three_pm"`
	ThreesAttempted     int `json:"three_pa" bson:"three_pa"`
	FreeThrowsMade      int `json:"ftm" bson:"ftm"`
	FreeThrowsAttempted int `json:"fta" bson:"fta"`
}

// SkillHistoryEntry records one rating transition. Entries are append-only
// and written exclusively by the RatingEngine; trajectories and variance for
// confidence and sandbagging are reconstructed from them.
type SkillHistoryEntry struct {
	PlayerID  uuid.UUID `json:"player_id" bson:"player_id"`
	GameID    uuid.UUID `json:"game_id,omitempty" bson:"game_id,omitempty"` // Nil for 1v1 challenges
	OldRating float64   `json:"old_rating" bson:"old_rating"`
	NewRating float64   `json:"new_rating" bson:"new_rating"`
	GameType  GameType  `json:"game_type" bson:"game_type"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ParseHeight converts a height string such as `6'2"` or "6-2" to inches,
// clamped to [60, 96]. Unparseable input yields 70 inches.
func ParseHeight(height string) float64 {
	const fallback = 70.0
	s := strings.TrimSpace(height)
	if s == "" {
		return fallback
	}
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "-", "'")
	parts := strings.Split(s, "'")
	feet, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return fallback
	}
	inches := 0
	if len(parts) > 1 {
		if v, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			inches = v
		}
	}
	return math.Max(60, math.Min(96, float64(feet*12+inches)))
}

func clampRating(r float64) float64 {
	return math.Max(RatingMin, math.Min(RatingMax, r))
}

func clampProbability(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

// round2 rounds to two decimals, the precision ratings are stored at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
