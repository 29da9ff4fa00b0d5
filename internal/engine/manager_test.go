package engine

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/game"
	"fishka_server/internal/player"
	"fishka_server/internal/proto"
	"fishka_server/internal/room"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentConn struct {
	closed bool
	sent   []proto.Outbound
}

func (c *sentConn) Send(v any) bool {
	if msg, ok := v.(proto.Outbound); ok {
		c.sent = append(c.sent, msg)
	}
	return true
}
func (c *sentConn) Close()           { c.closed = true }
func (c *sentConn) RemoteIP() string { return "127.0.0.1" }

func (c *sentConn) byType(t string) []proto.Outbound {
	var out []proto.Outbound
	for _, m := range c.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
}

type fakeSched struct {
	timers []*fakeTimer
}

func (s *fakeSched) After(d time.Duration, fn func()) CancelFunc {
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

func (s *fakeSched) pending() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.cancelled && t.fn != nil {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeSched) fire(t *fakeTimer) {
	if t.cancelled {
		return
	}
	fn := t.fn
	t.fn = nil
	fn()
}

// counterPlugin is a 2-player counter game: increment/decrement, a
// keyed round timer driven by timerEndsAt, terminal on "finish".
type counterPlugin struct {
	pauses bool
}

type counterAction struct {
	Op string `json:"op"`
}

func (counterPlugin) ID() string             { return "counter" }
func (counterPlugin) MinPlayers() int        { return 2 }
func (counterPlugin) ConfigFields() []string { return []string{"roundMillis"} }

func (counterPlugin) Init(players []game.PlayerInfo, config map[string]any) (game.State, error) {
	ids := make([]any, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	st := game.State{"count": float64(0), "players": ids, "round": float64(1)}
	if v, ok := config["roundMillis"]; ok {
		st["roundMillis"] = v
	}
	return st, nil
}

func (counterPlugin) Validate(st game.State, playerID string, action game.Action) string {
	var a counterAction
	if err := json.Unmarshal(action, &a); err != nil {
		return "malformed action"
	}
	switch a.Op {
	case "increment", "decrement", "finish", "timeout", "noop":
		return ""
	default:
		return "unknown op: " + a.Op
	}
}

func (counterPlugin) Reduce(st game.State, playerID string, action game.Action) game.State {
	var a counterAction
	if err := json.Unmarshal(action, &a); err != nil {
		return nil
	}
	next := game.State{}
	for k, v := range st {
		next[k] = v
	}
	count := st["count"].(float64)
	switch a.Op {
	case "increment":
		next["count"] = count + 1
	case "decrement":
		next["count"] = count - 1
	case "finish":
		next["done"] = true
	case "timeout":
		next["round"] = st["round"].(float64) + 1
	case "noop":
		return nil
	}
	return next
}

func (counterPlugin) PlayerView(st game.State, playerID string) any {
	return map[string]any{"count": st["count"], "me": playerID}
}

func (counterPlugin) SpectatorView(st game.State) any {
	return map[string]any{"count": st["count"]}
}

func (counterPlugin) Terminal(st game.State) bool {
	done, _ := st["done"].(bool)
	return done
}

func (counterPlugin) NextTimer(st game.State) *game.TimerSpec {
	ms, ok := st["roundMillis"].(float64)
	if !ok {
		return nil
	}
	round := st["round"].(float64)
	return &game.TimerSpec{
		Key:    "round:" + strconv.Itoa(int(round)),
		Delay:  time.Duration(ms) * time.Millisecond,
		Action: game.Action(`{"op":"timeout"}`),
	}
}

func (counterPlugin) AutoActions(st game.State) []game.Action { return nil }

func (p counterPlugin) PausesOnDisconnect(game.State, string) bool { return p.pauses }

type world struct {
	mgr     *Manager
	rooms   *room.Registry
	players *player.Registry
	sched   *fakeSched
	code    string
	host    *player.Player
	p2      *player.Player
	hostC   *sentConn
	p2C     *sentConn
	now     time.Time
}

func newWorld(t *testing.T, plugin game.Plugin, config map[string]any) *world {
	t.Helper()

	w := &world{now: time.Unix(10000, 0), sched: &fakeSched{}}
	clock := func() time.Time { return w.now }

	players := player.NewRegistry()
	players.SetClock(clock)
	games := game.NewRegistry()
	require.NoError(t, games.Register(plugin))
	rooms := room.NewRegistry(players, games)
	rooms.SetClock(clock)

	w.hostC = &sentConn{}
	w.host = players.Create("Host", 1, w.hostC)
	rm, err := rooms.Create(w.host.ID, room.Settings{GameID: plugin.ID(), Config: config})
	require.NoError(t, err)

	w.p2C = &sentConn{}
	w.p2 = players.Create("P2", 2, w.p2C)
	_, err = rooms.Join(rm.Code, w.p2.ID)
	require.NoError(t, err)

	w.mgr = NewManager(rooms, players, games, w.sched, 90*time.Second)
	w.mgr.SetClock(clock)
	w.rooms = rooms
	w.players = players
	w.code = rm.Code
	return w
}

func act(op string) game.Action {
	return game.Action(`{"op":"` + op + `"}`)
}

func TestStartBroadcastsPersonalizedViews(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)

	require.NoError(t, w.mgr.Start(w.code))

	assert.Equal(t, room.StatusPlaying, w.rooms.Get(w.code).Status)

	hostStarted := w.hostC.byType(proto.TypeGameStarted)
	p2Started := w.p2C.byType(proto.TypeGameStarted)
	require.Len(t, hostStarted, 1)
	require.Len(t, p2Started, 1)

	hostView := hostStarted[0].Data.(map[string]any)
	p2View := p2Started[0].Data.(map[string]any)
	assert.Equal(t, w.host.ID, hostView["me"], "each member gets their own view")
	assert.Equal(t, w.p2.ID, p2View["me"])
}

func TestStartTwiceFails(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)
	require.NoError(t, w.mgr.Start(w.code))
	assert.ErrorIs(t, w.mgr.Start(w.code), ErrAlreadyRunning)
}

func TestCounterScenario(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	r1 := w.mgr.HandleAction(w.code, w.host.ID, act("increment"))
	r2 := w.mgr.HandleAction(w.code, w.p2.ID, act("increment"))
	r3 := w.mgr.HandleAction(w.code, w.host.ID, act("decrement"))

	assert.True(t, r1.Success)
	assert.True(t, r2.Success)
	assert.True(t, r3.Success)

	e := w.mgr.Get(w.code)
	assert.Equal(t, float64(1), e.State()["count"])
}

func TestValidateRejectionLeavesStateUntouched(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	res := w.mgr.HandleAction(w.code, w.host.ID, act("teleport"))

	assert.False(t, res.Success)
	assert.Equal(t, "unknown op: teleport", res.Error)
	assert.Equal(t, float64(0), w.mgr.Get(w.code).State()["count"])
}

func TestReduceNilIsRejectedWithoutMessage(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	res := w.mgr.HandleAction(w.code, w.host.ID, act("noop"))

	assert.False(t, res.Success)
	assert.Empty(t, res.Error)
}

func TestActionWithoutEngine(t *testing.T) {
	w := newWorld(t, counterPlugin{}, nil)
	res := w.mgr.HandleAction(w.code, w.host.ID, act("increment"))
	assert.False(t, res.Success)
}

func TestTerminalActionFinishesMatch(t *testing.T) {
	w := newWorld(t, counterPlugin{}, map[string]any{"roundMillis": float64(60000)})
	require.NoError(t, w.mgr.Start(w.code))
	require.NotEmpty(t, w.sched.pending(), "round timer armed at start")

	res := w.mgr.HandleAction(w.code, w.host.ID, act("finish"))

	require.True(t, res.Success)
	assert.Equal(t, room.StatusFinished, w.rooms.Get(w.code).Status)
	assert.True(t, w.mgr.Get(w.code).Finished())
	assert.Empty(t, w.sched.pending(), "timers cancelled on finish")

	over := w.p2C.byType(proto.TypeGameOver)
	require.Len(t, over, 1)
	view := over[0].Data.(proto.GameOverPayload).View.(map[string]any)
	_, leaked := view["me"]
	assert.False(t, leaked, "game over carries the spectator view")
}

func TestTimerKeyedRearm(t *testing.T) {
	w := newWorld(t, counterPlugin{}, map[string]any{"roundMillis": float64(60000)})
	require.NoError(t, w.mgr.Start(w.code))

	require.Len(t, w.sched.pending(), 1)
	first := w.sched.pending()[0]

	// same round, same key: broadcasting more state must not reset
	// the ticking clock
	w.mgr.HandleAction(w.code, w.host.ID, act("increment"))
	require.Len(t, w.sched.pending(), 1)
	assert.Same(t, first, w.sched.pending()[0])

	// timer fires, round advances, new key, new timer
	w.sched.fire(first)
	e := w.mgr.Get(w.code)
	assert.Equal(t, float64(2), e.State()["round"])
	require.Len(t, w.sched.pending(), 1)
	assert.NotSame(t, first, w.sched.pending()[0])
}

func TestPauseCapturesRemainingAndResumeRestoresIt(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, map[string]any{"roundMillis": float64(60000)})
	require.NoError(t, w.mgr.Start(w.code))

	// plugin keeps a ticking clock in timerEndsAt: 60s from now
	e := w.mgr.Get(w.code)
	e.State()[game.TimerEndsAtKey] = float64(w.now.Add(60 * time.Second).UnixMilli())

	// 20s pass, then p2 drops: 40s should remain
	w.now = w.now.Add(20 * time.Second)
	w.players.Disconnect(w.p2.Conn)
	require.True(t, w.mgr.Pause(w.code, w.p2.ID))

	require.True(t, e.Paused())
	assert.Equal(t, 40*time.Second, e.PauseInfo().TimerRemaining)

	pausedMsgs := w.hostC.byType(proto.TypeGamePaused)
	require.Len(t, pausedMsgs, 1)
	assert.Equal(t, w.p2.ID, pausedMsgs[0].Data.(proto.GamePausedPayload).PlayerID)

	// player actions are rejected while paused, server actions pass
	res := w.mgr.HandleAction(w.code, w.host.ID, act("increment"))
	assert.False(t, res.Success)
	assert.Equal(t, "game is paused", res.Error)
	assert.True(t, w.mgr.HandleAction(w.code, game.ServerActor, act("increment")).Success)

	// 10s paused, then p2 reconnects
	w.now = w.now.Add(10 * time.Second)
	w.players.Reconnect(w.p2.Token, &sentConn{})
	require.True(t, w.mgr.Resume(w.code, w.p2.ID))

	assert.False(t, e.Paused())

	// the clock resumes with ~40s, not the full 60s and not zero
	endsAt := int64(e.State()[game.TimerEndsAtKey].(float64))
	assert.Equal(t, w.now.Add(40*time.Second).UnixMilli(), endsAt)

	timers := w.sched.pending()
	require.Len(t, timers, 1)
	assert.Equal(t, 40*time.Second, timers[0].d)
}

func TestResumeWaitsForEveryMember(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	w.players.Disconnect(w.hostC)
	w.players.Disconnect(w.p2C)
	require.True(t, w.mgr.Pause(w.code, w.host.ID))

	w.players.Reconnect(w.host.Token, &sentConn{})
	assert.False(t, w.mgr.Resume(w.code, w.host.ID), "p2 still disconnected")
	assert.True(t, w.mgr.Get(w.code).Paused())

	w.players.Reconnect(w.p2.Token, &sentConn{})
	assert.True(t, w.mgr.Resume(w.code, w.p2.ID))
	assert.False(t, w.mgr.Get(w.code).Paused())
}

func TestPauseIsNotNested(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	w.players.Disconnect(w.p2.Conn)
	require.True(t, w.mgr.Pause(w.code, w.p2.ID))
	assert.False(t, w.mgr.Pause(w.code, w.host.ID), "pause is binary, not nested")
}

func TestPluginCanOptOutOfPause(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: false}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	w.players.Disconnect(w.p2.Conn)
	assert.False(t, w.mgr.Pause(w.code, w.p2.ID))
	assert.False(t, w.mgr.Get(w.code).Paused())
}

func TestPauseDeadlineForceFinishes(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, nil)
	require.NoError(t, w.mgr.Start(w.code))

	w.players.Disconnect(w.p2.Conn)
	require.True(t, w.mgr.Pause(w.code, w.p2.ID))

	timers := w.sched.pending()
	require.Len(t, timers, 1)
	assert.Equal(t, 90*time.Second, timers[0].d)

	w.sched.fire(timers[0])

	assert.True(t, w.mgr.Get(w.code).Finished())
	assert.Equal(t, room.StatusFinished, w.rooms.Get(w.code).Status)
	over := w.hostC.byType(proto.TypeGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, "pause timeout", over[0].Data.(proto.GameOverPayload).Reason)
}

func TestDestroyIsIdempotent(t *testing.T) {
	w := newWorld(t, counterPlugin{}, map[string]any{"roundMillis": float64(60000)})
	require.NoError(t, w.mgr.Start(w.code))

	assert.True(t, w.mgr.Destroy(w.code))
	assert.Nil(t, w.mgr.Get(w.code))
	assert.Nil(t, w.rooms.Get(w.code).GameState)
	assert.Empty(t, w.sched.pending())

	assert.False(t, w.mgr.Destroy(w.code), "second destroy has no effect")
}

func TestStaleTimerFireIsIgnored(t *testing.T) {
	w := newWorld(t, counterPlugin{}, map[string]any{"roundMillis": float64(60000)})
	require.NoError(t, w.mgr.Start(w.code))

	timers := w.sched.pending()
	require.Len(t, timers, 1)
	stale := timers[0]

	w.mgr.Destroy(w.code)
	w.sched.fire(stale) // must be a no-op, not a panic
}

func TestRestoreRearmsPauseDeadline(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, nil)

	stateJSON, err := json.Marshal(game.State{"count": float64(3), "players": []any{w.host.ID, w.p2.ID}, "round": float64(1)})
	require.NoError(t, err)

	snap := domain.GameSnapshot{
		Code:   w.code,
		GameID: "counter",
		State:  stateJSON,
		Pause: &domain.PauseRecord{
			DisconnectedID: w.p2.ID,
			StartedAt:      w.now.Add(-30 * time.Second),
			Deadline:       w.now.Add(60 * time.Second),
			TimerRemaining: 15 * time.Second,
		},
		StartedAt: w.now.Add(-5 * time.Minute),
	}

	require.NoError(t, w.mgr.Restore(snap))

	e := w.mgr.Get(w.code)
	require.NotNil(t, e)
	assert.True(t, e.Paused())
	assert.Equal(t, float64(3), e.State()["count"])

	timers := w.sched.pending()
	require.Len(t, timers, 1)
	assert.Equal(t, 60*time.Second, timers[0].d, "pause timeout re-armed with time remaining")
}

func TestRestorePastDeadlineFinishesImmediately(t *testing.T) {
	w := newWorld(t, counterPlugin{pauses: true}, nil)

	stateJSON, err := json.Marshal(game.State{"count": float64(0), "players": []any{}, "round": float64(1)})
	require.NoError(t, err)

	snap := domain.GameSnapshot{
		Code:   w.code,
		GameID: "counter",
		State:  stateJSON,
		Pause: &domain.PauseRecord{
			DisconnectedID: w.p2.ID,
			Deadline:       w.now.Add(-time.Second),
		},
		StartedAt: w.now.Add(-10 * time.Minute),
	}

	require.NoError(t, w.mgr.Restore(snap))
	assert.True(t, w.mgr.Get(w.code).Finished())
}
