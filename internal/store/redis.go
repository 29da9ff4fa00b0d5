package store

import (
	"context"
	"encoding/json"
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:"
	roomPrefix    = "room:"
	gamePrefix    = "game:"

	roomTTL  = 24 * time.Hour
	gameTTL  = 6 * time.Hour
	writeTTL = 3 * time.Second
)

// Store is a durable key-value cache for session records and
// room/game snapshots. The in-memory state stays authoritative; every
// write here is fire-and-forget. When REDIS_ADDR is unset (or the
// ping fails) the store acts as a no-op so the server keeps running.
type Store struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// Connect creates the store. A nil return is valid and means
// persistence is disabled.
func Connect(addr, password string, db int, sessionTTL time.Duration) *Store {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, snapshots disabled", "error", err)
		return nil
	}

	logger.Info("redis connected", "addr", addr)
	return &Store{client: client, sessionTTL: sessionTTL}
}

func (s *Store) set(key string, v any, ttl time.Duration) {
	if s == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("store marshal failed", "key", key, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTTL)
		defer cancel()
		if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
			logger.Warn("store write failed", "key", key, "error", err)
		}
	}()
}

func (s *Store) del(key string) {
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTTL)
		defer cancel()
		if err := s.client.Del(ctx, key).Err(); err != nil {
			logger.Warn("store delete failed", "key", key, "error", err)
		}
	}()
}

func (s *Store) SaveSession(rec domain.PlayerRecord) {
	if s == nil {
		return
	}
	s.set(sessionPrefix+rec.Token, rec, s.sessionTTL)
}

func (s *Store) GetSession(ctx context.Context, token string) (*domain.PlayerRecord, error) {
	if s == nil {
		return nil, nil
	}
	data, err := s.client.Get(ctx, sessionPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.PlayerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) DeleteSession(token string) {
	s.del(sessionPrefix + token)
}

func (s *Store) SaveRoom(snap domain.RoomSnapshot) {
	s.set(roomPrefix+snap.Code, snap, roomTTL)
}

func (s *Store) DeleteRoom(code string) {
	s.del(roomPrefix + code)
}

// RoomSnapshots returns every persisted room (restart recovery).
func (s *Store) RoomSnapshots(ctx context.Context) ([]domain.RoomSnapshot, error) {
	var out []domain.RoomSnapshot
	err := s.scan(ctx, roomPrefix+"*", func(data []byte) {
		var snap domain.RoomSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			out = append(out, snap)
		}
	})
	return out, err
}

func (s *Store) SaveGame(snap domain.GameSnapshot) {
	s.set(gamePrefix+snap.Code, snap, gameTTL)
}

func (s *Store) DeleteGame(code string) {
	s.del(gamePrefix + code)
}

// GameSnapshots returns every persisted engine state (restart recovery).
func (s *Store) GameSnapshots(ctx context.Context) ([]domain.GameSnapshot, error) {
	var out []domain.GameSnapshot
	err := s.scan(ctx, gamePrefix+"*", func(data []byte) {
		var snap domain.GameSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			out = append(out, snap)
		}
	})
	return out, err
}

func (s *Store) scan(ctx context.Context, pattern string, fn func([]byte)) error {
	if s == nil {
		return nil
	}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		fn(data)
	}
	return iter.Err()
}
