package proto

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	in, err := Decode([]byte(`{"type":"connect","data":{"name":"Ana"}}`))
	require.NoError(t, err)
	assert.Equal(t, "connect", in.Type)
	assert.JSONEq(t, `{"name":"Ana"}`, string(in.Data))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":        nil,
		"not json":     []byte("{nope"),
		"missing type": []byte(`{"data":{}}`),
		"oversized":    bytes.Repeat([]byte("a"), maxFrameLen+1),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseConnect(t *testing.T) {
	req, err := ParseConnect(json.RawMessage(`{"name":"  Ana  ","avatarSeed":7}`))
	require.NoError(t, err)
	assert.Equal(t, "Ana", req.Name, "name is trimmed")
	assert.Equal(t, 7, req.AvatarSeed)
}

func TestParseConnectTokenOnly(t *testing.T) {
	req, err := ParseConnect(json.RawMessage(`{"sessionToken":"abc123"}`))
	require.NoError(t, err)
	assert.Empty(t, req.Name)
	assert.Equal(t, "abc123", req.SessionToken)
}

func TestParseConnectRejections(t *testing.T) {
	cases := map[string]string{
		"no name no token": `{}`,
		"blank name":       `{"name":"   "}`,
		"name too long":    `{"name":"` + strings.Repeat("x", 25) + `"}`,
		"token too long":   `{"sessionToken":"` + strings.Repeat("t", 129) + `"}`,
		"negative seed":    `{"name":"Ana","avatarSeed":-1}`,
		"bad utf8 length":  `{"name":"` + strings.Repeat("я", 25) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConnect(json.RawMessage(body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseConnectAllowsFullWidthName(t *testing.T) {
	// 24 multi-byte runes are within the limit
	_, err := ParseConnect(json.RawMessage(`{"name":"` + strings.Repeat("я", 24) + `"}`))
	assert.NoError(t, err)
}

func TestParseJoinRoomNormalizes(t *testing.T) {
	req, err := ParseJoinRoom(json.RawMessage(`{"code":" ab27 "}`))
	require.NoError(t, err)
	assert.Equal(t, "AB27", req.Code)
}

func TestParseJoinRoomRejections(t *testing.T) {
	cases := map[string]string{
		"too short":          `{"code":"AB2"}`,
		"too long":           `{"code":"AB272"}`,
		"ambiguous zero":     `{"code":"AB20"}`,
		"ambiguous one":      `{"code":"AB21"}`,
		"non alphanumerical": `{"code":"AB2!"}`,
		"empty":              `{"code":""}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJoinRoom(json.RawMessage(body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseCreateRoomOptionalBody(t *testing.T) {
	req, err := ParseCreateRoom(nil)
	require.NoError(t, err)
	assert.Empty(t, req.GameID)
	assert.Zero(t, req.Capacity)

	req, err = ParseCreateRoom(json.RawMessage(`{"gameId":"guessword","capacity":4,"config":{"rounds":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "guessword", req.GameID)
	assert.Equal(t, 4, req.Capacity)

	_, err = ParseCreateRoom(json.RawMessage(`{"capacity":-1}`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseSwitchTeamBounds(t *testing.T) {
	req, err := ParseSwitchTeam(json.RawMessage(`{"team":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, req.Team)

	_, err = ParseSwitchTeam(json.RawMessage(`{"team":-1}`))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = ParseSwitchTeam(json.RawMessage(`{"team":17}`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseGameAction(t *testing.T) {
	req, err := ParseGameAction(json.RawMessage(`{"action":{"op":"guess","text":"apple"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"guess","text":"apple"}`, string(req.Action))

	_, err = ParseGameAction(json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalid)

	big := `{"action":"` + strings.Repeat("a", maxActionLen) + `"}`
	_, err = ParseGameAction(json.RawMessage(big))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseKickPlayer(t *testing.T) {
	req, err := ParseKickPlayer(json.RawMessage(`{"playerId":"abcd1234"}`))
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", req.PlayerID)

	_, err = ParseKickPlayer(json.RawMessage(`{"playerId":""}`))
	assert.ErrorIs(t, err, ErrInvalid)
}
