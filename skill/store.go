package skill

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// The stores below are the full contract between this core and the
// persistence layer. The core reads player, game and stat records, and
// writes rating fields, team labels and history entries; everything else
// about storage is the collaborator's business.

var (
	ErrPlayerNotFound = errors.New("skill: player not found")
	ErrModelNotFound  = errors.New("skill: no persisted model state")
)

// RatingUpdate is one player's outcome of a completed game or challenge.
// A game's updates are applied as a unit: either every participant's rating
// moves, or none does.
type RatingUpdate struct {
	PlayerID   uuid.UUID
	Rating     float64
	Confidence float64
	Mu         float64
	Sigma      float64

	Won       bool
	Challenge bool
}

// PlayerStore reads player records.
type PlayerStore interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (*Player, error)
	CreatePlayer(ctx context.Context, p *Player) error
}

// ResultStore applies one completed game's rating updates and history
// entries atomically.
type ResultStore interface {
	ApplyGameResult(ctx context.Context, updates []RatingUpdate, history []SkillHistoryEntry) error
}

// GameStore reads game records for training.
type GameStore interface {
	ListCompletedGames(ctx context.Context) ([]*GameRecord, error)
	SaveGame(ctx context.Context, g *GameRecord) error
}

// StatStore reads box scores.
type StatStore interface {
	// GameStats returns the per-player box scores of one game.
	GameStats(ctx context.Context, gameID uuid.UUID) (map[uuid.UUID]*PlayerGameStats, error)
	// PlayerStats returns every box score recorded for one player.
	PlayerStats(ctx context.Context, playerID uuid.UUID) ([]*PlayerGameStats, error)
	SaveStats(ctx context.Context, s *PlayerGameStats) error
}

// HistoryStore reads the append-only rating trajectory.
type HistoryStore interface {
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, playerID uuid.UUID, limit int) ([]SkillHistoryEntry, error)
	// Since returns entries at or after t, oldest first.
	Since(ctx context.Context, playerID uuid.UUID, t time.Time) ([]SkillHistoryEntry, error)
}

// ModelStore persists opaque serialized model state across restarts. The
// encoding is an implementation detail of this package.
type ModelStore interface {
	SaveModel(ctx context.Context, version int64, data []byte) error
	LoadModel(ctx context.Context) (data []byte, version int64, err error)
}

// MemoryStore is the in-process implementation of every store interface,
// used in tests and for bootstrap runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
	games   map[uuid.UUID]*GameRecord
	stats   map[uuid.UUID]map[uuid.UUID]*PlayerGameStats // game -> player -> stats
	history map[uuid.UUID][]SkillHistoryEntry            // player -> ascending by time
	model   []byte
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[uuid.UUID]*Player),
		games:   make(map[uuid.UUID]*GameRecord),
		stats:   make(map[uuid.UUID]map[uuid.UUID]*PlayerGameStats),
		history: make(map[uuid.UUID][]SkillHistoryEntry),
	}
}

func (m *MemoryStore) GetPlayer(_ context.Context, id uuid.UUID) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) CreatePlayer(_ context.Context, p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.players[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ApplyGameResult(_ context.Context, updates []RatingUpdate, history []SkillHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Validate before mutating so a bad update applies nothing.
	for _, u := range updates {
		if _, ok := m.players[u.PlayerID]; !ok {
			return ErrPlayerNotFound
		}
	}
	for _, u := range updates {
		p := m.players[u.PlayerID]
		p.Rating = u.Rating
		p.Confidence = u.Confidence
		if u.Mu != 0 || u.Sigma != 0 {
			p.RatingMu = u.Mu
			p.RatingSigma = u.Sigma
		}
		switch {
		case u.Challenge && u.Won:
			p.ChallengeWins++
		case u.Challenge:
			p.ChallengeLosses++
		case u.Won:
			p.GamesPlayed++
			p.Wins++
		default:
			p.GamesPlayed++
			p.Losses++
		}
	}
	for _, h := range history {
		m.history[h.PlayerID] = append(m.history[h.PlayerID], h)
	}
	return nil
}

func (m *MemoryStore) ListCompletedGames(_ context.Context) ([]*GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*GameRecord, 0, len(m.games))
	for _, g := range m.games {
		if g.Status == GameStatusCompleted {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryStore) SaveGame(_ context.Context, g *GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	cp.Participants = append([]Participant(nil), g.Participants...)
	m.games[g.ID] = &cp
	return nil
}

func (m *MemoryStore) GameStats(_ context.Context, gameID uuid.UUID) (map[uuid.UUID]*PlayerGameStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]*PlayerGameStats, len(m.stats[gameID]))
	for id, s := range m.stats[gameID] {
		cp := *s
		out[id] = &cp
	}
	return out, nil
}

func (m *MemoryStore) PlayerStats(_ context.Context, playerID uuid.UUID) ([]*PlayerGameStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PlayerGameStats
	for _, byPlayer := range m.stats {
		if s, ok := byPlayer[playerID]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveStats(_ context.Context, s *PlayerGameStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPlayer, ok := m.stats[s.GameID]
	if !ok {
		byPlayer = make(map[uuid.UUID]*PlayerGameStats)
		m.stats[s.GameID] = byPlayer
	}
	cp := *s
	byPlayer[s.PlayerID] = &cp
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, playerID uuid.UUID, limit int) ([]SkillHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[playerID]
	out := make([]SkillHistoryEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *MemoryStore) Since(_ context.Context, playerID uuid.UUID, t time.Time) ([]SkillHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SkillHistoryEntry
	for _, e := range m.history[playerID] {
		if !e.CreatedAt.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveModel(_ context.Context, version int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = append([]byte(nil), data...)
	m.version = version
	return nil
}

func (m *MemoryStore) LoadModel(_ context.Context) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.model == nil {
		return nil, 0, ErrModelNotFound
	}
	return append([]byte(nil), m.model...), m.version, nil
}
