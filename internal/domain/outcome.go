package domain

import "time"

// RoomOutcome is the historical record written when a match ends.
type RoomOutcome struct {
	ID         int64          `json:"id"`
	RoomCode   string         `json:"room_code"`
	GameID     string         `json:"game_id"`
	Players    []string       `json:"players"`
	Reason     string         `json:"reason"`
	Summary    map[string]any `json:"summary"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
