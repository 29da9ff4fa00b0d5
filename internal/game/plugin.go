package game

import (
	"context"
	"encoding/json"
	"time"

	"fishka_server/internal/domain"
)

// State is the opaque per-room game state. The engine never looks
// inside it beyond the timerEndsAt convention; plugins own the shape.
type State = map[string]any

// Action is an opaque plugin-specific action payload.
type Action = json.RawMessage

// ServerActor is the reserved acting id used for engine-originated
// actions (timer expiry, auto-advance). Player ids are random hex and
// cannot collide with it.
const ServerActor = "server"

// TimerEndsAtKey is the state field the engine reads to capture the
// remaining duration of an in-flight timer when pausing. Plugins that
// keep a ticking clock store the deadline here as epoch milliseconds.
const TimerEndsAtKey = "timerEndsAt"

// PlayerInfo is what a plugin learns about each participant at init.
type PlayerInfo struct {
	ID   string
	Name string
	Team int
}

// TimerSpec declares the single next server-originated timer as a
// pure function of state. Key must be stable for a given phase+round
// so repeated broadcasts do not reset a ticking clock.
type TimerSpec struct {
	Key    string
	Delay  time.Duration
	Action Action
}

// Plugin is the contract one concrete game implements. Validate,
// Reduce and the view functions must never mutate the state they are
// given; Reduce returns a fresh state instead. Plugins may consult
// collaborators (a dictionary, the wall clock) as long as every
// resulting fact lands in the returned state.
type Plugin interface {
	// ID is the stable game id used in room settings.
	ID() string

	// MinPlayers is the smallest member count the game can start with.
	MinPlayers() int

	// ConfigFields whitelists the game-config keys clients may set.
	// Everything else is dropped before the settings are stored.
	ConfigFields() []string

	// Init produces the initial state for the given players/config.
	Init(players []PlayerInfo, config map[string]any) (State, error)

	// Validate returns "" when the action is acceptable, otherwise a
	// human-readable rejection reason surfaced verbatim to the actor.
	Validate(state State, playerID string, action Action) string

	// Reduce applies the action and returns the new state, or nil when
	// the action is not applicable in the current state.
	Reduce(state State, playerID string, action Action) State

	// PlayerView redacts state for one member. Hidden information
	// (secret words, concealed hands) never leaves this function for
	// players who must not see it.
	PlayerView(state State, playerID string) any

	// SpectatorView is the shared redaction for spectators and the
	// terminal game-over broadcast.
	SpectatorView(state State) any

	// Terminal reports whether the state has reached a game end.
	Terminal(state State) bool

	// NextTimer declares the next scheduled timer, or nil.
	NextTimer(state State) *TimerSpec

	// AutoActions lists server-originated actions to run after start
	// and after every successful mutation (auto-advance and the like).
	AutoActions(state State) []Action

	// PausesOnDisconnect reports whether losing this player should
	// freeze the match.
	PausesOnDisconnect(state State, playerID string) bool
}

// WordSource is the dictionary collaborator handed to word-based
// plugins at construction time.
type WordSource interface {
	Random(ctx context.Context, language, difficulty string, exclude map[string]struct{}) (*domain.Word, error)
}
