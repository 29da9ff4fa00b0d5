package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/game"
	"fishka_server/internal/logger"
	"fishka_server/internal/metrics"
	"fishka_server/internal/player"
	"fishka_server/internal/proto"
	"fishka_server/internal/room"
)

var (
	ErrAlreadyRunning = errors.New("game already running")
	ErrNoEngine       = errors.New("no game in progress")
)

const maxAutoPasses = 8

// Persister stores engine snapshots. Writes are fire-and-forget; the
// in-memory state stays authoritative.
type Persister interface {
	SaveGame(snap domain.GameSnapshot)
	DeleteGame(code string)
}

// OutcomeSink records finished matches.
type OutcomeSink interface {
	Create(ctx context.Context, o *domain.RoomOutcome) error
}

// ActionResult is what a submitted action comes back with. Error
// carries the plugin's rejection reason verbatim when there is one.
type ActionResult struct {
	Success bool
	Error   string
}

// Manager owns one Engine per playing room and drives the
// idle → running ⇄ paused → finished state machine.
type Manager struct {
	engines map[string]*Engine

	rooms   *room.Registry
	players *player.Registry
	games   *game.Registry
	sched   Scheduler

	store    Persister   // optional
	outcomes OutcomeSink // optional

	pauseTimeout time.Duration
	now          func() time.Time
}

func NewManager(rooms *room.Registry, players *player.Registry, games *game.Registry, sched Scheduler, pauseTimeout time.Duration) *Manager {
	return &Manager{
		engines:      make(map[string]*Engine),
		rooms:        rooms,
		players:      players,
		games:        games,
		sched:        sched,
		pauseTimeout: pauseTimeout,
		now:          time.Now,
	}
}

// SetPersister wires the snapshot store (optional).
func (m *Manager) SetPersister(p Persister) { m.store = p }

// SetOutcomeSink wires the outcome log (optional).
func (m *Manager) SetOutcomeSink(s OutcomeSink) { m.outcomes = s }

// SetClock overrides the time source (tests).
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) Get(code string) *Engine { return m.engines[code] }

// Start creates the engine for the room, asks the plugin for initial
// state, flips the room to playing and broadcasts the first views.
func (m *Manager) Start(code string) error {
	rm := m.rooms.Get(code)
	if rm == nil {
		return room.ErrNotFound
	}
	if _, exists := m.engines[code]; exists {
		return ErrAlreadyRunning
	}
	plugin, ok := m.games.Get(rm.Settings.GameID)
	if !ok {
		return room.ErrUnknownGame
	}

	infos := make([]game.PlayerInfo, 0, len(rm.Members))
	for _, id := range rm.Members {
		p := m.players.ByID(id)
		if p == nil || p.Spectator {
			continue
		}
		infos = append(infos, game.PlayerInfo{ID: p.ID, Name: p.Name, Team: rm.Teams[p.ID]})
	}

	state, err := plugin.Init(infos, rm.Settings.Config)
	if err != nil {
		return err
	}

	e := &Engine{
		code:      code,
		gameID:    plugin.ID(),
		plugin:    plugin,
		state:     state,
		startedAt: m.now(),
	}
	m.engines[code] = e
	rm.Status = room.StatusPlaying
	rm.GameState = state
	metrics.RunningGames.Set(float64(len(m.engines)))

	m.persist(e)
	m.broadcastViews(e, proto.TypeGameStarted)
	m.serverPhase(e)
	if !e.finished {
		m.armTimer(e, 0)
	}

	logger.Info("game started", "code", code, "game", e.gameID, "players", len(infos))
	return nil
}

// HandleAction runs the validate/reduce contract for one action.
func (m *Manager) HandleAction(code, playerID string, action game.Action) ActionResult {
	e := m.engines[code]
	if e == nil || e.finished || e.state == nil {
		return ActionResult{Error: "no game in progress"}
	}
	if e.pause != nil && playerID != game.ServerActor {
		return ActionResult{Error: "game is paused"}
	}
	return m.apply(e, playerID, action, true)
}

func (m *Manager) apply(e *Engine, playerID string, action game.Action, runPhase bool) ActionResult {
	if reason := e.plugin.Validate(e.state, playerID, action); reason != "" {
		return ActionResult{Error: reason}
	}

	next := e.plugin.Reduce(e.state, playerID, action)
	if next == nil {
		// validate passed but the reducer did not apply; reject
		// without a message rather than guessing
		return ActionResult{}
	}

	e.state = next
	if rm := m.rooms.Get(e.code); rm != nil {
		rm.GameState = next
	}
	m.persist(e)
	m.broadcastViews(e, proto.TypeGameState)

	if e.plugin.Terminal(next) {
		m.finish(e, "")
		return ActionResult{Success: true}
	}

	if runPhase {
		m.serverPhase(e)
		if !e.finished {
			m.armTimer(e, 0)
		}
	}
	return ActionResult{Success: true}
}

// serverPhase runs plugin-declared server-originated actions until
// none apply (bounded so a misbehaving plugin cannot spin forever).
func (m *Manager) serverPhase(e *Engine) {
	for pass := 0; pass < maxAutoPasses; pass++ {
		acts := e.plugin.AutoActions(e.state)
		if len(acts) == 0 {
			return
		}
		applied := false
		for _, a := range acts {
			if e.finished {
				return
			}
			if res := m.apply(e, game.ServerActor, a, false); res.Success {
				applied = true
			}
		}
		if !applied {
			return
		}
	}
	logger.Warn("server action loop cut off", "code", e.code, "game", e.gameID)
}

// armTimer asks the plugin for its next timer and schedules it. The
// slot is keyed: a matching key keeps the ticking clock, a new key
// cancels and reschedules. overrideDelay > 0 replaces the declared
// delay (used when resuming with captured remaining time).
func (m *Manager) armTimer(e *Engine, overrideDelay time.Duration) {
	if e.pause != nil {
		// the clock stays frozen until resume
		return
	}
	spec := e.plugin.NextTimer(e.state)
	if spec == nil {
		e.cancelTimer()
		return
	}
	if e.timer != nil && e.timer.key == spec.Key {
		return
	}
	e.cancelTimer()

	delay := spec.Delay
	if overrideDelay > 0 {
		delay = overrideDelay
	}
	key := spec.Key
	action := spec.Action
	slot := &timerSlot{key: key}
	slot.cancel = m.sched.After(delay, func() { m.timerFired(e.code, key, action) })
	e.timer = slot
}

func (m *Manager) timerFired(code, key string, action game.Action) {
	e := m.engines[code]
	if e == nil || e.finished || e.pause != nil {
		return
	}
	if e.timer == nil || e.timer.key != key {
		// stale fire: the slot was re-armed under a different key
		return
	}
	e.timer = nil
	m.HandleAction(code, game.ServerActor, action)
}

// Pause freezes the match after a disconnect. No-op when already
// paused or when the plugin opts out for this player.
func (m *Manager) Pause(code, playerID string) bool {
	e := m.engines[code]
	if e == nil || e.finished || e.pause != nil {
		return false
	}
	if !e.plugin.PausesOnDisconnect(e.state, playerID) {
		return false
	}

	remaining := m.remainingTimer(e)
	e.cancelTimer()

	now := m.now()
	e.pause = &domain.PauseRecord{
		DisconnectedID: playerID,
		StartedAt:      now,
		Deadline:       now.Add(m.pauseTimeout),
		TimerRemaining: remaining,
	}
	m.persist(e)
	e.pauseTimer = m.sched.After(m.pauseTimeout, func() { m.pauseExpired(code) })

	m.broadcast(e, proto.Outbound{
		Type: proto.TypeGamePaused,
		Data: proto.GamePausedPayload{PlayerID: playerID, Deadline: e.pause.Deadline},
	})
	logger.Info("game paused", "code", code, "player", playerID, "timer_remaining", remaining)
	return true
}

// remainingTimer reads the in-flight timer's remaining duration out
// of the state's timerEndsAt field when present, else falls back to
// the plugin-declared duration.
func (m *Manager) remainingTimer(e *Engine) time.Duration {
	if v, ok := e.state[game.TimerEndsAtKey]; ok {
		if ms, ok := toMillis(v); ok {
			rem := time.UnixMilli(ms).Sub(m.now())
			if rem < 0 {
				rem = 0
			}
			return rem
		}
	}
	if spec := e.plugin.NextTimer(e.state); spec != nil {
		return spec.Delay
	}
	return 0
}

// Resume unfreezes the match once every current member is connected
// again. Restores the captured remaining duration into the state's
// timer field and re-arms the game timer.
func (m *Manager) Resume(code, playerID string) bool {
	e := m.engines[code]
	if e == nil || e.pause == nil {
		return false
	}
	rm := m.rooms.Get(code)
	if rm == nil {
		return false
	}
	for _, id := range rm.Members {
		p := m.players.ByID(id)
		if p == nil || !p.Connected() {
			return false
		}
	}

	e.cancelPauseTimer()
	remaining := e.pause.TimerRemaining
	if remaining > 0 {
		if _, ok := e.state[game.TimerEndsAtKey]; ok {
			e.state[game.TimerEndsAtKey] = float64(m.now().Add(remaining).UnixMilli())
			rm.GameState = e.state
		}
	}
	e.pause = nil
	m.persist(e)
	m.armTimer(e, remaining)

	m.broadcast(e, proto.Outbound{
		Type: proto.TypeGameResumed,
		Data: proto.PlayerEventPayload{PlayerID: playerID},
	})
	m.broadcastViews(e, proto.TypeGameState)

	logger.Info("game resumed", "code", code, "player", playerID, "timer_remaining", remaining)
	return true
}

func (m *Manager) pauseExpired(code string) {
	e := m.engines[code]
	if e == nil || e.finished || e.pause == nil {
		return
	}
	logger.Info("pause deadline elapsed, ending match", "code", code)
	m.finish(e, "pause timeout")
}

// ForceEnd terminates the match through the normal terminal path.
func (m *Manager) ForceEnd(code, reason string) bool {
	e := m.engines[code]
	if e == nil || e.finished {
		return false
	}
	m.finish(e, reason)
	return true
}

// finish is the single terminal path: plugin-declared game end, host
// endGame and pause timeout all land here.
func (m *Manager) finish(e *Engine, reason string) {
	if e.finished {
		return
	}
	e.finished = true
	e.cancelTimer()
	e.cancelPauseTimer()
	e.pause = nil

	rm := m.rooms.Get(e.code)
	if rm != nil {
		rm.Status = room.StatusFinished
		rm.GameState = e.state
	}

	view := e.plugin.SpectatorView(e.state)
	m.broadcast(e, proto.Outbound{
		Type: proto.TypeGameOver,
		Data: proto.GameOverPayload{View: view, Reason: reason},
	})

	m.logOutcome(e, rm, reason)
	if m.store != nil {
		m.store.DeleteGame(e.code)
	}
	logger.Info("game finished", "code", e.code, "reason", reason)
}

func (m *Manager) logOutcome(e *Engine, rm *room.Room, reason string) {
	if m.outcomes == nil || rm == nil {
		return
	}

	outcome := &domain.RoomOutcome{
		RoomCode:  e.code,
		GameID:    e.gameID,
		Reason:    reason,
		StartedAt: e.startedAt,
	}
	for _, id := range rm.Members {
		outcome.Players = append(outcome.Players, id)
	}
	if summary, ok := e.plugin.SpectatorView(e.state).(map[string]any); ok {
		outcome.Summary = summary
	}

	// fire-and-forget: the store never gates the broadcast
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.outcomes.Create(ctx, outcome); err != nil {
			logger.Warn("outcome log failed", "code", outcome.RoomCode, "error", err)
		}
	}()
}

// Destroy discards the engine: timers cancelled, state dropped,
// snapshot deleted. Idempotent.
func (m *Manager) Destroy(code string) bool {
	e, ok := m.engines[code]
	if !ok {
		return false
	}
	e.cancelTimer()
	e.cancelPauseTimer()
	e.pause = nil
	delete(m.engines, code)
	metrics.RunningGames.Set(float64(len(m.engines)))

	if rm := m.rooms.Get(code); rm != nil {
		rm.GameState = nil
	}
	if m.store != nil {
		m.store.DeleteGame(code)
	}
	logger.Info("engine destroyed", "code", code)
	return true
}

// Restore rehydrates an engine from a persisted snapshot, re-arming
// the pause deadline with whatever time remains. A deadline already in
// the past finishes the match immediately.
func (m *Manager) Restore(snap domain.GameSnapshot) error {
	if _, exists := m.engines[snap.Code]; exists {
		return ErrAlreadyRunning
	}
	rm := m.rooms.Get(snap.Code)
	if rm == nil {
		return room.ErrNotFound
	}
	plugin, ok := m.games.Get(snap.GameID)
	if !ok {
		return room.ErrUnknownGame
	}

	var state game.State
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return err
	}

	e := &Engine{
		code:      snap.Code,
		gameID:    snap.GameID,
		plugin:    plugin,
		state:     state,
		startedAt: snap.StartedAt,
	}
	m.engines[snap.Code] = e
	rm.Status = room.StatusPlaying
	rm.GameState = state
	metrics.RunningGames.Set(float64(len(m.engines)))

	if snap.Pause != nil {
		left := snap.Pause.Deadline.Sub(m.now())
		if left <= 0 {
			m.finish(e, "pause timeout")
			return nil
		}
		e.pause = snap.Pause
		code := snap.Code
		e.pauseTimer = m.sched.After(left, func() { m.pauseExpired(code) })
	} else {
		m.armTimer(e, 0)
	}

	logger.Info("engine restored", "code", snap.Code, "game", snap.GameID, "paused", snap.Pause != nil)
	return nil
}

// Snapshot serializes the engine for the persister.
func (m *Manager) Snapshot(e *Engine) (domain.GameSnapshot, error) {
	data, err := json.Marshal(e.state)
	if err != nil {
		return domain.GameSnapshot{}, err
	}
	return domain.GameSnapshot{
		Code:      e.code,
		GameID:    e.gameID,
		State:     data,
		Pause:     e.pause,
		StartedAt: e.startedAt,
	}, nil
}

func (m *Manager) persist(e *Engine) {
	if m.store == nil {
		return
	}
	snap, err := m.Snapshot(e)
	if err != nil {
		logger.Error("snapshot marshal failed", "code", e.code, "error", err)
		return
	}
	m.store.SaveGame(snap)
}

// broadcastViews computes one view per connected member: their own
// redacted view for players, the shared spectator view for
// spectators. The engine never inspects view contents.
func (m *Manager) broadcastViews(e *Engine, msgType string) {
	rm := m.rooms.Get(e.code)
	if rm == nil {
		return
	}
	for _, id := range rm.Members {
		p := m.players.ByID(id)
		if p == nil || !p.Connected() {
			continue
		}
		var view any
		if p.Spectator {
			view = e.plugin.SpectatorView(e.state)
		} else {
			view = e.plugin.PlayerView(e.state, id)
		}
		p.Conn.Send(proto.Outbound{Type: msgType, Data: view})
	}
}

// ViewFor computes the view one member would receive right now. Used
// to replay game state on reconnect.
func (m *Manager) ViewFor(code, playerID string, spectator bool) (any, bool) {
	e := m.engines[code]
	if e == nil || e.finished || e.state == nil {
		return nil, false
	}
	if spectator {
		return e.plugin.SpectatorView(e.state), true
	}
	return e.plugin.PlayerView(e.state, playerID), true
}

func (m *Manager) broadcast(e *Engine, msg proto.Outbound) {
	rm := m.rooms.Get(e.code)
	if rm == nil {
		return
	}
	for _, id := range rm.Members {
		if p := m.players.ByID(id); p != nil && p.Connected() {
			p.Conn.Send(msg)
		}
	}
}

func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
