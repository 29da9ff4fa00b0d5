// Package guessword implements the built-in word guessing game: one
// player describes a secret word, the rest race to guess it before the
// round clock runs out.
package guessword

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"fishka_server/internal/game"
)

const (
	defaultRounds       = 3
	defaultRoundSeconds = 60
	defaultLanguage     = "en"
	defaultDifficulty   = "medium"

	wordFetchTimeout = 2 * time.Second
)

type Plugin struct {
	words game.WordSource
	now   func() time.Time
}

func New(words game.WordSource) *Plugin {
	return &Plugin{words: words, now: time.Now}
}

// SetClock overrides the time source (tests).
func (p *Plugin) SetClock(now func() time.Time) { p.now = now }

func (p *Plugin) ID() string      { return "guessword" }
func (p *Plugin) MinPlayers() int { return 2 }

func (p *Plugin) ConfigFields() []string {
	return []string{"language", "difficulty", "rounds", "roundSeconds"}
}

type action struct {
	Op   string `json:"op"`
	Text string `json:"text,omitempty"`
}

func (p *Plugin) Init(players []game.PlayerInfo, config map[string]any) (game.State, error) {
	order := make([]any, 0, len(players))
	scores := make(map[string]any, len(players))
	for _, pl := range players {
		order = append(order, pl.ID)
		scores[pl.ID] = float64(0)
	}

	st := game.State{
		"players":      order,
		"scores":       scores,
		"turn":         float64(0),
		"round":        float64(1),
		"rounds":       configFloat(config, "rounds", defaultRounds),
		"roundSeconds": configFloat(config, "roundSeconds", defaultRoundSeconds),
		"language":     configString(config, "language", defaultLanguage),
		"difficulty":   configString(config, "difficulty", defaultDifficulty),
		"used":         []any{},
	}

	if err := p.drawWord(st); err != nil {
		return nil, err
	}
	p.resetClock(st)
	return st, nil
}

func (p *Plugin) Validate(st game.State, playerID string, raw game.Action) string {
	var a action
	if err := json.Unmarshal(raw, &a); err != nil {
		return "malformed action"
	}

	switch a.Op {
	case "guess":
		if playerID == describer(st) {
			return "the describer cannot guess"
		}
		if strings.TrimSpace(a.Text) == "" {
			return "empty guess"
		}
		return ""
	case "skip":
		if playerID != describer(st) {
			return "only the describer can skip"
		}
		return ""
	case "timeout":
		if playerID != game.ServerActor {
			return "reserved action"
		}
		return ""
	default:
		return "unknown action: " + a.Op
	}
}

func (p *Plugin) Reduce(st game.State, playerID string, raw game.Action) game.State {
	var a action
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil
	}

	next := cloneState(st)
	switch a.Op {
	case "guess":
		guess := strings.TrimSpace(strings.ToLower(a.Text))
		if guess != strings.ToLower(next["word"].(string)) {
			next["lastGuess"] = map[string]any{"playerId": playerID, "text": a.Text}
			return next
		}
		addScore(next, playerID, 1)
		addScore(next, describer(next), 1)
		next["revealed"] = map[string]any{"word": next["word"], "guessedBy": playerID}
		return p.advance(next)

	case "skip":
		// a new word, same turn, the clock keeps running
		if err := p.drawWord(next); err != nil {
			return nil
		}
		delete(next, "lastGuess")
		return next

	case "timeout":
		next["revealed"] = map[string]any{"word": next["word"]}
		return p.advance(next)
	}
	return nil
}

// advance rotates the describer and, when the rotation wraps, moves to
// the next round. Past the final round the game is over and no new
// word is drawn.
func (p *Plugin) advance(st game.State) game.State {
	delete(st, "lastGuess")

	order := st["players"].([]any)
	turn := int(st["turn"].(float64)) + 1
	if turn >= len(order) {
		turn = 0
		st["round"] = st["round"].(float64) + 1
	}
	st["turn"] = float64(turn)

	if st["round"].(float64) > st["rounds"].(float64) {
		st["done"] = true
		delete(st, "word")
		delete(st, game.TimerEndsAtKey)
		return st
	}

	if err := p.drawWord(st); err != nil {
		// dictionary ran dry mid-game, end gracefully
		st["done"] = true
		delete(st, "word")
		delete(st, game.TimerEndsAtKey)
		return st
	}
	p.resetClock(st)
	return st
}

func (p *Plugin) PlayerView(st game.State, playerID string) any {
	view := p.SpectatorView(st).(map[string]any)
	if playerID == describer(st) {
		view["word"] = st["word"]
	}
	return view
}

func (p *Plugin) SpectatorView(st game.State) any {
	view := map[string]any{
		"players":      st["players"],
		"scores":       st["scores"],
		"describer":    describer(st),
		"round":        st["round"],
		"rounds":       st["rounds"],
		"roundSeconds": st["roundSeconds"],
	}
	if v, ok := st[game.TimerEndsAtKey]; ok {
		view[game.TimerEndsAtKey] = v
	}
	if v, ok := st["lastGuess"]; ok {
		view["lastGuess"] = v
	}
	if v, ok := st["revealed"]; ok {
		view["revealed"] = v
	}
	if done, _ := st["done"].(bool); done {
		view["done"] = true
	}
	if w, ok := st["word"].(string); ok {
		view["wordLength"] = float64(len([]rune(w)))
	}
	return view
}

func (p *Plugin) Terminal(st game.State) bool {
	done, _ := st["done"].(bool)
	return done
}

func (p *Plugin) NextTimer(st game.State) *game.TimerSpec {
	if done, _ := st["done"].(bool); done {
		return nil
	}
	round := int(st["round"].(float64))
	turn := int(st["turn"].(float64))
	return &game.TimerSpec{
		Key:    "round:" + strconv.Itoa(round) + ":" + strconv.Itoa(turn),
		Delay:  time.Duration(st["roundSeconds"].(float64)) * time.Second,
		Action: game.Action(`{"op":"timeout"}`),
	}
}

func (p *Plugin) AutoActions(st game.State) []game.Action { return nil }

// PausesOnDisconnect freezes the match only for seated players.
// Spectators are absent from the turn order and may come and go.
func (p *Plugin) PausesOnDisconnect(st game.State, playerID string) bool {
	for _, id := range st["players"].([]any) {
		if id == playerID {
			return true
		}
	}
	return false
}

func (p *Plugin) drawWord(st game.State) error {
	used := make(map[string]struct{})
	for _, w := range st["used"].([]any) {
		if s, ok := w.(string); ok {
			used[s] = struct{}{}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), wordFetchTimeout)
	defer cancel()
	w, err := p.words.Random(ctx, st["language"].(string), st["difficulty"].(string), used)
	if err != nil {
		return err
	}

	st["word"] = w.Text
	st["used"] = append(st["used"].([]any), w.Text)
	return nil
}

func (p *Plugin) resetClock(st game.State) {
	secs := st["roundSeconds"].(float64)
	st[game.TimerEndsAtKey] = float64(p.now().Add(time.Duration(secs) * time.Second).UnixMilli())
}

func describer(st game.State) string {
	order := st["players"].([]any)
	if len(order) == 0 {
		return ""
	}
	turn := int(st["turn"].(float64))
	return order[turn%len(order)].(string)
}

func addScore(st game.State, playerID string, delta float64) {
	scores := st["scores"].(map[string]any)
	cur, _ := scores[playerID].(float64)
	scores[playerID] = cur + delta
}

// cloneState copies the top level and the score map, the two places a
// reducer mutates. Deeper values are treated as immutable.
func cloneState(st game.State) game.State {
	next := make(game.State, len(st))
	for k, v := range st {
		next[k] = v
	}
	scores := make(map[string]any)
	for k, v := range st["scores"].(map[string]any) {
		scores[k] = v
	}
	next["scores"] = scores
	return next
}

func configFloat(config map[string]any, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		if v > 0 {
			return v
		}
	case int:
		if v > 0 {
			return float64(v)
		}
	}
	return def
}

func configString(config map[string]any, key, def string) string {
	if s, ok := config[key].(string); ok && s != "" {
		return s
	}
	return def
}
