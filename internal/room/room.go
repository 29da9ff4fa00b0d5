package room

import (
	"errors"
	"time"
)

type Status string

const (
	StatusLobby    Status = "lobby"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ23456789"
	CodeLength   = 4

	MinCapacity     = 2
	MaxCapacity     = 10
	DefaultCapacity = 8
)

var (
	// ErrJoinFailed covers both "room not found" and "room already in
	// progress": a joining client must not be able to probe which
	// codes exist.
	ErrJoinFailed = errors.New("room unavailable")

	ErrRoomFull      = errors.New("room is full")
	ErrBanned        = errors.New("you are banned from this room")
	ErrAlreadyInRoom = errors.New("already in this room")

	ErrNotFound         = errors.New("room not found")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotInLobby       = errors.New("room is not in the lobby")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrNotMember        = errors.New("player is not in this room")
	ErrUnknownGame      = errors.New("unknown game")
)

// Settings are the host-controlled room options. Config carries
// game-specific fields, filtered against the plugin's whitelist.
type Settings struct {
	GameID   string         `json:"gameId"`
	Capacity int            `json:"capacity"`
	Config   map[string]any `json:"config,omitempty"`
}

// Room is one joinable group of players. Members keeps join order;
// some games treat it as turn order.
type Room struct {
	Code      string
	Status    Status
	Members   []string
	HostID    string
	Banned    map[string]struct{}
	Settings  Settings
	Teams     map[string]int
	CreatedAt time.Time

	// GameState is the engine-owned opaque state, mirrored here as a
	// read-mostly copy for persistence while Status is
	// playing/finished. The engine is the sole writer.
	GameState any
}

func (r *Room) IsMember(playerID string) bool {
	for _, id := range r.Members {
		if id == playerID {
			return true
		}
	}
	return false
}

func (r *Room) IsBanned(playerID string) bool {
	_, banned := r.Banned[playerID]
	return banned
}

func (r *Room) removeMember(playerID string) bool {
	for i, id := range r.Members {
		if id == playerID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			delete(r.Teams, playerID)
			return true
		}
	}
	return false
}
