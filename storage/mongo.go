// Package storage provides the MongoDB-backed implementations of the skill
// package's store interfaces.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/courtlabs/courtiq/skill"
)

const (
	collPlayers = "players"
	collGames   = "games"
	collStats   = "game_stats"
	collHistory = "skill_history"
	collModels  = "win_models"
)

// MongoStore implements every skill store interface on one database.
type MongoStore struct {
	logger *zap.Logger
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and pings it before returning a store.
func Connect(ctx context.Context, logger *zap.Logger, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	logger.Info("connected to mongodb", zap.String("database", database))
	return &MongoStore{logger: logger, client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the query paths rely on.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(collHistory).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "player_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	_, err = m.db.Collection(collStats).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "player_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create stats index: %w", err)
	}
	_, err = m.db.Collection(collGames).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create games index: %w", err)
	}
	return nil
}

func (m *MongoStore) GetPlayer(ctx context.Context, id uuid.UUID) (*skill.Player, error) {
	var p skill.Player
	err := m.db.Collection(collPlayers).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, skill.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("find player %s: %w", id, err)
	}
	return &p, nil
}

func (m *MongoStore) CreatePlayer(ctx context.Context, p *skill.Player) error {
	if _, err := m.db.Collection(collPlayers).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert player %s: %w", p.ID, err)
	}
	return nil
}

// ApplyGameResult writes one game's rating updates and history entries in a
// multi-document transaction so readers never observe a half-applied game.
func (m *MongoStore) ApplyGameResult(ctx context.Context, updates []skill.RatingUpdate, history []skill.SkillHistoryEntry) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		models := make([]mongo.WriteModel, 0, len(updates))
		for _, u := range updates {
			set := bson.M{
				"rating":     u.Rating,
				"confidence": u.Confidence,
			}
			if u.Mu != 0 || u.Sigma != 0 {
				set["rating_mu"] = u.Mu
				set["rating_sigma"] = u.Sigma
			}
			inc := bson.M{}
			switch {
			case u.Challenge && u.Won:
				inc["challenge_wins"] = 1
			case u.Challenge:
				inc["challenge_losses"] = 1
			case u.Won:
				inc["games_played"] = 1
				inc["wins"] = 1
			default:
				inc["games_played"] = 1
				inc["losses"] = 1
			}
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": u.PlayerID}).
				SetUpdate(bson.M{"$set": set, "$inc": inc}))
		}
		res, err := m.db.Collection(collPlayers).BulkWrite(sc, models)
		if err != nil {
			return nil, fmt.Errorf("bulk update players: %w", err)
		}
		if int(res.MatchedCount) != len(updates) {
			return nil, skill.ErrPlayerNotFound
		}

		if len(history) > 0 {
			docs := make([]interface{}, len(history))
			for i := range history {
				docs[i] = history[i]
			}
			if _, err := m.db.Collection(collHistory).InsertMany(sc, docs); err != nil {
				return nil, fmt.Errorf("insert history: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

func (m *MongoStore) ListCompletedGames(ctx context.Context) ([]*skill.GameRecord, error) {
	cur, err := m.db.Collection(collGames).Find(ctx,
		bson.M{"status": skill.GameStatusCompleted},
		options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find completed games: %w", err)
	}
	var out []*skill.GameRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode completed games: %w", err)
	}
	return out, nil
}

func (m *MongoStore) SaveGame(ctx context.Context, g *skill.GameRecord) error {
	_, err := m.db.Collection(collGames).ReplaceOne(ctx,
		bson.M{"_id": g.ID}, g, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

func (m *MongoStore) GameStats(ctx context.Context, gameID uuid.UUID) (map[uuid.UUID]*skill.PlayerGameStats, error) {
	cur, err := m.db.Collection(collStats).Find(ctx, bson.M{"game_id": gameID})
	if err != nil {
		return nil, fmt.Errorf("find stats for game %s: %w", gameID, err)
	}
	var lines []*skill.PlayerGameStats
	if err := cur.All(ctx, &lines); err != nil {
		return nil, fmt.Errorf("decode stats for game %s: %w", gameID, err)
	}
	out := make(map[uuid.UUID]*skill.PlayerGameStats, len(lines))
	for _, s := range lines {
		out[s.PlayerID] = s
	}
	return out, nil
}

func (m *MongoStore) PlayerStats(ctx context.Context, playerID uuid.UUID) ([]*skill.PlayerGameStats, error) {
	cur, err := m.db.Collection(collStats).Find(ctx, bson.M{"player_id": playerID})
	if err != nil {
		return nil, fmt.Errorf("find stats for player %s: %w", playerID, err)
	}
	var out []*skill.PlayerGameStats
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode stats for player %s: %w", playerID, err)
	}
	return out, nil
}

func (m *MongoStore) SaveStats(ctx context.Context, s *skill.PlayerGameStats) error {
	_, err := m.db.Collection(collStats).ReplaceOne(ctx,
		bson.M{"game_id": s.GameID, "player_id": s.PlayerID}, s,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save stats for player %s game %s: %w", s.PlayerID, s.GameID, err)
	}
	return nil
}

func (m *MongoStore) Recent(ctx context.Context, playerID uuid.UUID, limit int) ([]skill.SkillHistoryEntry, error) {
	cur, err := m.db.Collection(collHistory).Find(ctx,
		bson.M{"player_id": playerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find history for player %s: %w", playerID, err)
	}
	var out []skill.SkillHistoryEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode history for player %s: %w", playerID, err)
	}
	return out, nil
}

func (m *MongoStore) Since(ctx context.Context, playerID uuid.UUID, t time.Time) ([]skill.SkillHistoryEntry, error) {
	cur, err := m.db.Collection(collHistory).Find(ctx,
		bson.M{"player_id": playerID, "created_at": bson.M{"$gte": t}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find history for player %s: %w", playerID, err)
	}
	var out []skill.SkillHistoryEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode history for player %s: %w", playerID, err)
	}
	return out, nil
}

// modelDoc is the single-row persisted model state.
type modelDoc struct {
	ID      string    `bson:"_id"`
	Version int64     `bson:"version"`
	Data    []byte    `bson:"data"`
	SavedAt time.Time `bson:"saved_at"`
}

const modelDocID = "current"

func (m *MongoStore) SaveModel(ctx context.Context, version int64, data []byte) error {
	doc := modelDoc{ID: modelDocID, Version: version, Data: data, SavedAt: time.Now().UTC()}
	_, err := m.db.Collection(collModels).ReplaceOne(ctx,
		bson.M{"_id": modelDocID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save model v%d: %w", version, err)
	}
	return nil
}

func (m *MongoStore) LoadModel(ctx context.Context) ([]byte, int64, error) {
	var doc modelDoc
	err := m.db.Collection(collModels).FindOne(ctx, bson.M{"_id": modelDocID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, skill.ErrModelNotFound
		}
		return nil, 0, fmt.Errorf("load model: %w", err)
	}
	return doc.Data, doc.Version, nil
}

// Stores bundles the mongo store as the skill service's store set.
func (m *MongoStore) Stores() skill.Stores {
	return skill.Stores{
		Players: m,
		Results: m,
		Games:   m,
		Stats:   m,
		History: m,
		Models:  m,
	}
}
