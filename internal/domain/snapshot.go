package domain

import (
	"encoding/json"
	"time"
)

// PlayerRecord is the durable session record kept per token so a
// returning socket can re-identify after a process restart.
type PlayerRecord struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	Name       string `json:"name"`
	AvatarSeed int    `json:"avatar_seed"`
	RoomCode   string `json:"room_code,omitempty"`
	Spectator  bool   `json:"spectator,omitempty"`
}

// RoomSnapshot mirrors a room's membership and settings. Member
// records are embedded so a restart can rebuild both the room and its
// (disconnected) players from one key.
type RoomSnapshot struct {
	Code      string         `json:"code"`
	Status    string         `json:"status"`
	Members   []PlayerRecord `json:"members"`
	HostID    string         `json:"host_id"`
	Banned    []string       `json:"banned,omitempty"`
	GameID    string         `json:"game_id"`
	Capacity  int            `json:"capacity"`
	Config    map[string]any `json:"config,omitempty"`
	Teams     map[string]int `json:"teams,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PauseRecord is the persisted pause metadata of a running engine.
type PauseRecord struct {
	DisconnectedID string        `json:"disconnected_id"`
	StartedAt      time.Time     `json:"started_at"`
	Deadline       time.Time     `json:"deadline"`
	TimerRemaining time.Duration `json:"timer_remaining"`
}

// GameSnapshot is the persisted engine state for one room.
type GameSnapshot struct {
	Code      string          `json:"code"`
	GameID    string          `json:"game_id"`
	State     json.RawMessage `json:"state"`
	Pause     *PauseRecord    `json:"pause,omitempty"`
	StartedAt time.Time       `json:"started_at"`
}
