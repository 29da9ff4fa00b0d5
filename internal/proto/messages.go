package proto

import "time"

// Inbound message types.
const (
	TypeConnect        = "connect"
	TypeHeartbeat      = "heartbeat"
	TypeCreateRoom     = "createRoom"
	TypeJoinRoom       = "joinRoom"
	TypeLeaveRoom      = "leaveRoom"
	TypeUpdateSettings = "updateSettings"
	TypeStartGame      = "startGame"
	TypeKickPlayer     = "kickPlayer"
	TypeSwitchTeam     = "switchTeam"
	TypeReturnToLobby  = "returnToLobby"
	TypeEndGame        = "endGame"
	TypeGameAction     = "gameAction"
)

// Outbound message types.
const (
	TypeConnected          = "connected"
	TypeRoomCreated        = "roomCreated"
	TypeRoomJoined         = "roomJoined"
	TypeRoomState          = "roomState"
	TypePlayerJoined       = "playerJoined"
	TypePlayerLeft         = "playerLeft"
	TypePlayerKicked       = "playerKicked"
	TypePlayerDisconnected = "playerDisconnected"
	TypePlayerReconnected  = "playerReconnected"
	TypeSettingsUpdated    = "settingsUpdated"
	TypeGameStarted        = "gameStarted"
	TypeGameState          = "gameState"
	TypeGameOver           = "gameOver"
	TypeGamePaused         = "gamePaused"
	TypeGameResumed        = "gameResumed"
	TypeReturnedToLobby    = "returnedToLobby"
	TypeGameActionResult   = "gameActionResult"
	TypeError              = "error"
)

// Stable error codes. joinFailed deliberately covers both unknown and
// in-progress rooms.
const (
	CodeInvalidMessage   = "invalidMessage"
	CodeRateLimited      = "rateLimited"
	CodeNotConnected     = "notConnected"
	CodeJoinFailed       = "joinFailed"
	CodeRoomFull         = "roomFull"
	CodePlayerBanned     = "playerBanned"
	CodeAlreadyInRoom    = "alreadyInRoom"
	CodeRoomNotFound     = "roomNotFound"
	CodeNotHost          = "notHost"
	CodeNotInLobby       = "notInLobby"
	CodeNotEnoughPlayers = "notEnoughPlayers"
	CodeNotInRoom        = "notInRoom"
	CodeUnknownGame      = "unknownGame"
	CodeNoGame           = "noGame"
)

// Outbound is the envelope for every server-to-client frame.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error builds a generic error frame.
func Error(code, message string) Outbound {
	return Outbound{Type: TypeError, Data: ErrorPayload{Code: code, Message: message}}
}

type ConnectedPayload struct {
	PlayerID     string `json:"playerId"`
	SessionToken string `json:"sessionToken"`
	Name         string `json:"name"`
	AvatarSeed   int    `json:"avatarSeed"`
	Reconnected  bool   `json:"reconnected,omitempty"`
}

type MemberPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarSeed int    `json:"avatarSeed"`
	Connected  bool   `json:"connected"`
	Spectator  bool   `json:"spectator,omitempty"`
	Team       int    `json:"team,omitempty"`
}

type SettingsPayload struct {
	GameID   string         `json:"gameId"`
	Capacity int            `json:"capacity"`
	Config   map[string]any `json:"config,omitempty"`
}

type RoomPayload struct {
	Code     string          `json:"code"`
	Status   string          `json:"status"`
	HostID   string          `json:"hostId"`
	Members  []MemberPayload `json:"members"`
	Settings SettingsPayload `json:"settings"`
}

type PlayerEventPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name,omitempty"`
}

type GamePausedPayload struct {
	PlayerID string    `json:"playerId"`
	Deadline time.Time `json:"deadline"`
}

type GameOverPayload struct {
	View   any    `json:"view"`
	Reason string `json:"reason,omitempty"`
}

type GameActionResultPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
