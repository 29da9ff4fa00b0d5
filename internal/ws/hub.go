package ws

import (
	"context"
	"errors"
	"time"

	"fishka_server/internal/config"
	"fishka_server/internal/engine"
	"fishka_server/internal/game"
	"fishka_server/internal/logger"
	"fishka_server/internal/metrics"
	"fishka_server/internal/player"
	"fishka_server/internal/proto"
	"fishka_server/internal/ratelimit"
	"fishka_server/internal/room"
	"fishka_server/internal/store"
)

const (
	eventBuffer = 256
	sweepPeriod = 30 * time.Second
	prunePeriod = 5 * time.Minute
)

// Hub is the single event loop that owns every registry. All state
// mutation happens on the Run goroutine; sockets and timers only post
// closures in.
type Hub struct {
	events chan func()

	cfg     *config.Config
	players *player.Registry
	rooms   *room.Registry
	games   *game.Registry
	engine  *engine.Manager
	store   *store.Store // nil-safe

	rlConnect *ratelimit.Limiter
	rlJoin    *ratelimit.Limiter
	rlAction  *ratelimit.Limiter
}

func NewHub(cfg *config.Config, players *player.Registry, rooms *room.Registry, games *game.Registry, mgr *engine.Manager, st *store.Store) *Hub {
	return &Hub{
		events:    make(chan func(), eventBuffer),
		cfg:       cfg,
		players:   players,
		rooms:     rooms,
		games:     games,
		engine:    mgr,
		store:     st,
		rlConnect: ratelimit.New(cfg.ConnectRateLimit, cfg.ConnectRateWindow, "connect"),
		rlJoin:    ratelimit.New(cfg.JoinRateLimit, cfg.JoinRateWindow, "join"),
		rlAction:  ratelimit.New(cfg.ActionRateLimit, cfg.ActionRateWindow, "action"),
	}
}

// Post enqueues fn for execution on the hub goroutine.
func (h *Hub) Post(fn func()) { h.events <- fn }

// Run drains the event queue until ctx is cancelled. Sweeps run
// inline between events, so they see consistent state like everything
// else.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(sweepPeriod)
	prune := time.NewTicker(prunePeriod)
	defer sweep.Stop()
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-h.events:
			fn()
		case <-sweep.C:
			h.sweep()
		case <-prune.C:
			h.rlConnect.Prune()
			h.rlJoin.Prune()
			h.rlAction.Prune()
		}
	}
}

// Register hands a freshly upgraded socket to the hub and starts its
// pumps.
func (h *Hub) Register(c *Client) {
	h.Post(func() { metrics.ActiveConnections.Inc() })
	go c.writePump()
	go c.readPump()
}

func (h *Hub) handleFrame(c player.Conn, raw []byte) {
	in, err := proto.Decode(raw)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "malformed message"))
		return
	}

	p := h.players.ByConn(c)

	switch in.Type {
	case proto.TypeConnect:
		h.handleConnect(c, p, in)
	case proto.TypeHeartbeat:
		h.players.Heartbeat(c)
	default:
		if p == nil {
			c.Send(proto.Error(proto.CodeNotConnected, "connect first"))
			return
		}
		h.players.Heartbeat(c)
		h.dispatch(c, p, in)
	}
}

func (h *Hub) dispatch(c player.Conn, p *player.Player, in *proto.Inbound) {
	switch in.Type {
	case proto.TypeCreateRoom:
		h.handleCreateRoom(c, p, in)
	case proto.TypeJoinRoom:
		h.handleJoinRoom(c, p, in)
	case proto.TypeLeaveRoom:
		h.handleLeaveRoom(c, p)
	case proto.TypeUpdateSettings:
		h.handleUpdateSettings(c, p, in)
	case proto.TypeStartGame:
		h.handleStartGame(c, p)
	case proto.TypeKickPlayer:
		h.handleKickPlayer(c, p, in)
	case proto.TypeSwitchTeam:
		h.handleSwitchTeam(c, p, in)
	case proto.TypeReturnToLobby:
		h.handleReturnToLobby(c, p)
	case proto.TypeEndGame:
		h.handleEndGame(c, p)
	case proto.TypeGameAction:
		h.handleGameAction(c, p, in)
	default:
		c.Send(proto.Error(proto.CodeInvalidMessage, "unknown message type"))
	}
}

func (h *Hub) handleConnect(c player.Conn, p *player.Player, in *proto.Inbound) {
	if p != nil {
		// already identified on this socket, re-ack
		c.Send(connectedMsg(p, false))
		return
	}
	if !h.rlConnect.Allow(c.RemoteIP()) {
		c.Send(proto.Error(proto.CodeRateLimited, "too many connection attempts"))
		c.Close()
		return
	}

	req, err := proto.ParseConnect(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid connect payload"))
		return
	}

	if req.SessionToken != "" {
		if pl := h.players.Reconnect(req.SessionToken, c); pl != nil {
			h.finishReconnect(c, pl)
			return
		}
		// token expired or unknown, fall through to a fresh identity
		// when a name was supplied
		if req.Name == "" {
			c.Send(proto.Error(proto.CodeInvalidMessage, "unknown session"))
			return
		}
	}

	pl := h.players.Create(req.Name, req.AvatarSeed, c)
	pl.Spectator = req.Spectator
	h.store.SaveSession(pl.Record())

	c.Send(connectedMsg(pl, false))
	logger.Info("player connected", "player", pl.ID, "name", pl.Name, "ip", c.RemoteIP())
}

// finishReconnect replays everything the returning player missed: the
// room roster, the pause banner or their current game view.
func (h *Hub) finishReconnect(c player.Conn, p *player.Player) {
	c.Send(connectedMsg(p, true))
	logger.Info("player reconnected", "player", p.ID, "room", p.RoomCode)

	if p.RoomCode == "" {
		return
	}
	rm := h.rooms.Get(p.RoomCode)
	if rm == nil || !rm.IsMember(p.ID) {
		p.RoomCode = ""
		h.store.SaveSession(p.Record())
		return
	}

	h.broadcastRoom(rm, proto.Outbound{
		Type: proto.TypePlayerReconnected,
		Data: proto.PlayerEventPayload{PlayerID: p.ID, Name: p.Name},
	}, p.ID)
	c.Send(proto.Outbound{Type: proto.TypeRoomState, Data: h.roomPayload(rm)})

	e := h.engine.Get(rm.Code)
	if e == nil || e.Finished() {
		return
	}

	h.engine.Resume(rm.Code, p.ID)
	if e.Paused() {
		// somebody else is still gone
		info := e.PauseInfo()
		c.Send(proto.Outbound{
			Type: proto.TypeGamePaused,
			Data: proto.GamePausedPayload{PlayerID: info.DisconnectedID, Deadline: info.Deadline},
		})
		return
	}
	if view, ok := h.engine.ViewFor(rm.Code, p.ID, p.Spectator); ok {
		c.Send(proto.Outbound{Type: proto.TypeGameState, Data: view})
	}
}

func (h *Hub) handleDisconnect(c player.Conn) {
	metrics.ActiveConnections.Dec()

	p := h.players.Disconnect(c)
	if p == nil || p.Connected() {
		// unknown socket, or a newer one already owns the session
		return
	}
	logger.Info("player disconnected", "player", p.ID, "room", p.RoomCode)

	if p.RoomCode == "" {
		return
	}
	rm := h.rooms.Get(p.RoomCode)
	if rm == nil {
		return
	}

	h.broadcastRoom(rm, proto.Outbound{
		Type: proto.TypePlayerDisconnected,
		Data: proto.PlayerEventPayload{PlayerID: p.ID, Name: p.Name},
	}, p.ID)

	if rm.Status == room.StatusPlaying {
		h.engine.Pause(rm.Code, p.ID)
	}
}

func (h *Hub) handleCreateRoom(c player.Conn, p *player.Player, in *proto.Inbound) {
	req, err := proto.ParseCreateRoom(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid settings"))
		return
	}
	if p.RoomCode != "" {
		c.Send(proto.Error(proto.CodeAlreadyInRoom, "leave your current room first"))
		return
	}

	rm, err := h.rooms.Create(p.ID, room.Settings{GameID: req.GameID, Capacity: req.Capacity, Config: req.Config})
	if err != nil {
		c.Send(roomError(err))
		return
	}

	h.persistRoom(rm)
	h.store.SaveSession(p.Record())
	c.Send(proto.Outbound{Type: proto.TypeRoomCreated, Data: h.roomPayload(rm)})
}

func (h *Hub) handleJoinRoom(c player.Conn, p *player.Player, in *proto.Inbound) {
	if !h.rlJoin.Allow(c.RemoteIP()) {
		c.Send(proto.Error(proto.CodeRateLimited, "too many join attempts"))
		return
	}
	req, err := proto.ParseJoinRoom(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid room code"))
		return
	}
	if p.RoomCode != "" {
		c.Send(proto.Error(proto.CodeAlreadyInRoom, "leave your current room first"))
		return
	}

	rm, err := h.rooms.Join(req.Code, p.ID)
	if err != nil {
		c.Send(roomError(err))
		return
	}

	h.persistRoom(rm)
	h.store.SaveSession(p.Record())
	h.broadcastRoom(rm, proto.Outbound{
		Type: proto.TypePlayerJoined,
		Data: proto.PlayerEventPayload{PlayerID: p.ID, Name: p.Name},
	}, p.ID)
	h.broadcastRoomState(rm, p.ID)
	c.Send(proto.Outbound{Type: proto.TypeRoomJoined, Data: h.roomPayload(rm)})
}

func (h *Hub) handleLeaveRoom(c player.Conn, p *player.Player) {
	code := p.RoomCode
	if code == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}

	res := h.rooms.Leave(code, p.ID)
	if !res.Left {
		p.RoomCode = ""
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}
	h.store.SaveSession(p.Record())
	c.Send(proto.Outbound{Type: proto.TypePlayerLeft, Data: proto.PlayerEventPayload{PlayerID: p.ID}})

	h.afterLeave(code, p.ID, proto.TypePlayerLeft, res)
}

// afterLeave handles the shared fallout of leave and kick: engine
// teardown on destroy, roster broadcast, snapshot upkeep.
func (h *Hub) afterLeave(code, playerID, eventType string, res room.LeaveResult) {
	for _, id := range res.Pruned {
		if pr := h.players.ByID(id); pr != nil {
			h.store.SaveSession(pr.Record())
		}
	}

	if res.Destroyed {
		h.engine.Destroy(code)
		h.store.DeleteRoom(code)
		return
	}

	rm := h.rooms.Get(code)
	if rm == nil {
		return
	}
	h.persistRoom(rm)

	h.broadcastRoom(rm, proto.Outbound{
		Type: eventType,
		Data: proto.PlayerEventPayload{PlayerID: playerID},
	}, "")
	h.broadcastRoomState(rm, "")

	// a mid-game departure may leave the match unable to continue
	if rm.Status == room.StatusPlaying {
		if plugin, ok := h.games.Get(rm.Settings.GameID); ok && h.rooms.PlayerCount(rm) < plugin.MinPlayers() {
			h.engine.ForceEnd(code, "not enough players")
		}
	}
}

func (h *Hub) handleUpdateSettings(c player.Conn, p *player.Player, in *proto.Inbound) {
	req, err := proto.ParseUpdateSettings(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid settings"))
		return
	}
	if p.RoomCode == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}

	rm, err := h.rooms.UpdateSettings(p.RoomCode, p.ID, room.Settings{GameID: req.GameID, Capacity: req.Capacity, Config: req.Config})
	if err != nil {
		c.Send(roomError(err))
		return
	}

	h.persistRoom(rm)
	h.broadcastRoom(rm, proto.Outbound{Type: proto.TypeSettingsUpdated, Data: settingsPayload(rm)}, "")
}

func (h *Hub) handleStartGame(c player.Conn, p *player.Player) {
	if p.RoomCode == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}
	if err := h.rooms.CanStart(p.RoomCode, p.ID); err != nil {
		c.Send(roomError(err))
		return
	}
	if err := h.engine.Start(p.RoomCode); err != nil {
		c.Send(roomError(err))
		return
	}
	if rm := h.rooms.Get(p.RoomCode); rm != nil {
		h.persistRoom(rm)
	}
}

func (h *Hub) handleKickPlayer(c player.Conn, p *player.Player, in *proto.Inbound) {
	req, err := proto.ParseKickPlayer(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid kick payload"))
		return
	}
	if p.RoomCode == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}

	code := p.RoomCode
	target := h.players.ByID(req.PlayerID)
	res, err := h.rooms.Kick(code, p.ID, req.PlayerID)
	if err != nil {
		c.Send(roomError(err))
		return
	}

	if target != nil {
		h.store.SaveSession(target.Record())
		if target.Connected() {
			target.Conn.Send(proto.Outbound{
				Type: proto.TypePlayerKicked,
				Data: proto.PlayerEventPayload{PlayerID: target.ID},
			})
		}
	}
	h.afterLeave(code, req.PlayerID, proto.TypePlayerKicked, res)
}

func (h *Hub) handleSwitchTeam(c player.Conn, p *player.Player, in *proto.Inbound) {
	req, err := proto.ParseSwitchTeam(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid team"))
		return
	}
	if p.RoomCode == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}

	if err := h.rooms.SwitchTeam(p.RoomCode, p.ID, req.Team); err != nil {
		c.Send(roomError(err))
		return
	}
	rm := h.rooms.Get(p.RoomCode)
	h.persistRoom(rm)
	h.broadcastRoomState(rm, "")
}

func (h *Hub) handleReturnToLobby(c player.Conn, p *player.Player) {
	rm := h.rooms.Get(p.RoomCode)
	if rm == nil {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}
	if rm.HostID != p.ID {
		c.Send(proto.Error(proto.CodeNotHost, "host only"))
		return
	}
	if rm.Status == room.StatusLobby {
		c.Send(proto.Outbound{Type: proto.TypeRoomState, Data: h.roomPayload(rm)})
		return
	}

	h.engine.Destroy(rm.Code)
	rm.Status = room.StatusLobby
	h.persistRoom(rm)

	h.broadcastRoom(rm, proto.Outbound{Type: proto.TypeReturnedToLobby}, "")
	h.broadcastRoomState(rm, "")
}

func (h *Hub) handleEndGame(c player.Conn, p *player.Player) {
	rm := h.rooms.Get(p.RoomCode)
	if rm == nil {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}
	if rm.HostID != p.ID {
		c.Send(proto.Error(proto.CodeNotHost, "host only"))
		return
	}
	if !h.engine.ForceEnd(rm.Code, "ended by host") {
		c.Send(proto.Error(proto.CodeNoGame, "no game in progress"))
		return
	}
	h.persistRoom(rm)
}

func (h *Hub) handleGameAction(c player.Conn, p *player.Player, in *proto.Inbound) {
	if !h.rlAction.Allow(p.ID) {
		c.Send(proto.Error(proto.CodeRateLimited, "too many actions"))
		return
	}
	req, err := proto.ParseGameAction(in.Data)
	if err != nil {
		c.Send(proto.Error(proto.CodeInvalidMessage, "invalid action"))
		return
	}
	if p.RoomCode == "" {
		c.Send(proto.Error(proto.CodeNotInRoom, "not in a room"))
		return
	}
	if p.Spectator {
		c.Send(proto.Error(proto.CodeNoGame, "spectators cannot act"))
		return
	}

	res := h.engine.HandleAction(p.RoomCode, p.ID, game.Action(req.Action))
	c.Send(proto.Outbound{
		Type: proto.TypeGameActionResult,
		Data: proto.GameActionResultPayload{Success: res.Success, Error: res.Error},
	})
	if res.Success {
		h.persistRoomByCode(p.RoomCode)
	}
}

// sweep runs the periodic lifecycle checks: stale heartbeats, idle
// players, abandoned rooms.
func (h *Hub) sweep() {
	// closing stale sockets makes their read pumps post disconnects,
	// which then run through the normal path
	h.players.SweepStale(h.cfg.HeartbeatTimeout)

	for _, p := range h.players.SweepIdle(h.cfg.PlayerIdleTimeout) {
		h.store.DeleteSession(p.Token)
	}

	for _, code := range h.rooms.Cleanup(h.cfg.RoomIdleTimeout) {
		h.engine.Destroy(code)
		h.store.DeleteRoom(code)
	}
}

// RestoreFromStore rebuilds rooms, sessions and running games from
// persisted snapshots after a restart. Everybody comes back
// disconnected; running games restore paused or finish if their pause
// deadline already passed.
func (h *Hub) RestoreFromStore(ctx context.Context) {
	snaps, err := h.store.RoomSnapshots(ctx)
	if err != nil {
		logger.Warn("room snapshot scan failed", "error", err)
		return
	}
	for _, snap := range snaps {
		h.rooms.Restore(snap)
	}

	games, err := h.store.GameSnapshots(ctx)
	if err != nil {
		logger.Warn("game snapshot scan failed", "error", err)
	}
	for _, snap := range games {
		if err := h.engine.Restore(snap); err != nil {
			logger.Warn("game restore failed", "code", snap.Code, "error", err)
			h.store.DeleteGame(snap.Code)
		}
	}

	if len(snaps) > 0 || len(games) > 0 {
		logger.Info("state restored", "rooms", len(snaps), "games", len(games))
	}
}

func (h *Hub) persistRoom(rm *room.Room) {
	if rm == nil {
		return
	}
	h.store.SaveRoom(h.rooms.Snapshot(rm))
}

func (h *Hub) persistRoomByCode(code string) {
	h.persistRoom(h.rooms.Get(code))
}

// broadcastRoom sends msg to every connected member except exceptID.
func (h *Hub) broadcastRoom(rm *room.Room, msg proto.Outbound, exceptID string) {
	for _, id := range rm.Members {
		if id == exceptID {
			continue
		}
		if m := h.players.ByID(id); m != nil && m.Connected() {
			m.Conn.Send(msg)
		}
	}
}

func (h *Hub) broadcastRoomState(rm *room.Room, exceptID string) {
	h.broadcastRoom(rm, proto.Outbound{Type: proto.TypeRoomState, Data: h.roomPayload(rm)}, exceptID)
}

func (h *Hub) roomPayload(rm *room.Room) proto.RoomPayload {
	out := proto.RoomPayload{
		Code:     rm.Code,
		Status:   string(rm.Status),
		HostID:   rm.HostID,
		Settings: settingsPayload(rm),
	}
	for _, id := range rm.Members {
		m := h.players.ByID(id)
		if m == nil {
			continue
		}
		out.Members = append(out.Members, proto.MemberPayload{
			ID:         m.ID,
			Name:       m.Name,
			AvatarSeed: m.AvatarSeed,
			Connected:  m.Connected(),
			Spectator:  m.Spectator,
			Team:       rm.Teams[m.ID],
		})
	}
	return out
}

func settingsPayload(rm *room.Room) proto.SettingsPayload {
	return proto.SettingsPayload{
		GameID:   rm.Settings.GameID,
		Capacity: rm.Settings.Capacity,
		Config:   rm.Settings.Config,
	}
}

func connectedMsg(p *player.Player, reconnected bool) proto.Outbound {
	return proto.Outbound{
		Type: proto.TypeConnected,
		Data: proto.ConnectedPayload{
			PlayerID:     p.ID,
			SessionToken: p.Token,
			Name:         p.Name,
			AvatarSeed:   p.AvatarSeed,
			Reconnected:  reconnected,
		},
	}
}

// roomError maps registry errors to stable wire codes.
func roomError(err error) proto.Outbound {
	switch {
	case errors.Is(err, room.ErrJoinFailed):
		return proto.Error(proto.CodeJoinFailed, "unable to join room")
	case errors.Is(err, room.ErrRoomFull):
		return proto.Error(proto.CodeRoomFull, "room is full")
	case errors.Is(err, room.ErrBanned):
		return proto.Error(proto.CodePlayerBanned, "you were removed from this room")
	case errors.Is(err, room.ErrAlreadyInRoom):
		return proto.Error(proto.CodeAlreadyInRoom, "already in this room")
	case errors.Is(err, room.ErrNotFound):
		return proto.Error(proto.CodeRoomNotFound, "room not found")
	case errors.Is(err, room.ErrNotHost):
		return proto.Error(proto.CodeNotHost, "host only")
	case errors.Is(err, room.ErrNotInLobby):
		return proto.Error(proto.CodeNotInLobby, "room is not in the lobby")
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return proto.Error(proto.CodeNotEnoughPlayers, "not enough players")
	case errors.Is(err, room.ErrNotMember):
		return proto.Error(proto.CodeNotInRoom, "not a member of this room")
	case errors.Is(err, room.ErrUnknownGame):
		return proto.Error(proto.CodeUnknownGame, "unknown game")
	case errors.Is(err, engine.ErrAlreadyRunning):
		return proto.Error(proto.CodeNotInLobby, "game already running")
	default:
		return proto.Error(proto.CodeInvalidMessage, err.Error())
	}
}
