package proto

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLen   = 24
	maxTokenLen  = 128
	maxFrameLen  = 16 * 1024
	maxActionLen = 8 * 1024

	codeLength   = 4
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ23456789"
)

// ErrInvalid covers every decode or structural-validation failure. A
// frame that fails here is never partially interpreted.
var ErrInvalid = errors.New("invalid message")

// Inbound is the envelope for every client-to-server frame.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses the envelope of a raw frame.
func Decode(raw []byte) (*Inbound, error) {
	if len(raw) == 0 || len(raw) > maxFrameLen {
		return nil, ErrInvalid
	}
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, ErrInvalid
	}
	if in.Type == "" {
		return nil, ErrInvalid
	}
	return &in, nil
}

func unmarshalBody(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrInvalid
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalid
	}
	return nil
}

type ConnectRequest struct {
	Name         string `json:"name"`
	AvatarSeed   int    `json:"avatarSeed"`
	SessionToken string `json:"sessionToken,omitempty"`
	Spectator    bool   `json:"spectator,omitempty"`
}

// ParseConnect validates name shape and token bounds. Name is
// required unless a session token is presented.
func ParseConnect(data json.RawMessage) (*ConnectRequest, error) {
	var req ConnectRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.SessionToken) > maxTokenLen {
		return nil, ErrInvalid
	}
	if req.SessionToken == "" {
		if req.Name == "" {
			return nil, ErrInvalid
		}
	}
	if req.Name != "" {
		if !utf8.ValidString(req.Name) || utf8.RuneCountInString(req.Name) > maxNameLen {
			return nil, ErrInvalid
		}
	}
	if req.AvatarSeed < 0 {
		return nil, ErrInvalid
	}
	return &req, nil
}

type CreateRoomRequest struct {
	GameID   string         `json:"gameId,omitempty"`
	Capacity int            `json:"capacity,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

func ParseCreateRoom(data json.RawMessage) (*CreateRoomRequest, error) {
	var req CreateRoomRequest
	if len(data) == 0 {
		// settings are optional on create
		return &req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrInvalid
	}
	if len(req.GameID) > 32 || req.Capacity < 0 || req.Capacity > 1000 {
		return nil, ErrInvalid
	}
	return &req, nil
}

type JoinRoomRequest struct {
	Code string `json:"code"`
}

// ParseJoinRoom normalizes and shape-checks the room code. A
// malformed code is an invalid message, not a join failure.
func ParseJoinRoom(data json.RawMessage) (*JoinRoomRequest, error) {
	var req JoinRoomRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if len(req.Code) != codeLength {
		return nil, ErrInvalid
	}
	for _, c := range req.Code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return nil, ErrInvalid
		}
	}
	return &req, nil
}

type UpdateSettingsRequest = CreateRoomRequest

func ParseUpdateSettings(data json.RawMessage) (*UpdateSettingsRequest, error) {
	var req UpdateSettingsRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	if len(req.GameID) > 32 || req.Capacity < 0 || req.Capacity > 1000 {
		return nil, ErrInvalid
	}
	return &req, nil
}

type KickPlayerRequest struct {
	PlayerID string `json:"playerId"`
}

func ParseKickPlayer(data json.RawMessage) (*KickPlayerRequest, error) {
	var req KickPlayerRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	if req.PlayerID == "" || len(req.PlayerID) > 64 {
		return nil, ErrInvalid
	}
	return &req, nil
}

type SwitchTeamRequest struct {
	Team int `json:"team"`
}

func ParseSwitchTeam(data json.RawMessage) (*SwitchTeamRequest, error) {
	var req SwitchTeamRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	if req.Team < 0 || req.Team > 16 {
		return nil, ErrInvalid
	}
	return &req, nil
}

type GameActionRequest struct {
	Action json.RawMessage `json:"action"`
}

func ParseGameAction(data json.RawMessage) (*GameActionRequest, error) {
	var req GameActionRequest
	if err := unmarshalBody(data, &req); err != nil {
		return nil, err
	}
	if len(req.Action) == 0 || len(req.Action) > maxActionLen {
		return nil, ErrInvalid
	}
	return &req, nil
}
