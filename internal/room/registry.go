package room

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/game"
	"fishka_server/internal/logger"
	"fishka_server/internal/metrics"
	"fishka_server/internal/player"
)

// LeaveResult describes everything a single leave changed, so the
// caller can broadcast once per affected player.
type LeaveResult struct {
	Left      bool
	Pruned    []string // disconnected lobby members dropped alongside
	NewHostID string   // non-empty when host authority moved
	Destroyed bool
}

// Registry owns all live rooms. Like the player registry it is
// confined to the hub goroutine and needs no locking.
type Registry struct {
	rooms   map[string]*Room
	players *player.Registry
	games   *game.Registry

	now func() time.Time
}

func NewRegistry(players *player.Registry, games *game.Registry) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		players: players,
		games:   games,
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func (r *Registry) Get(code string) *Room { return r.rooms[code] }
func (r *Registry) Count() int            { return len(r.rooms) }

// Create opens a new room with hostID as sole member.
func (r *Registry) Create(hostID string, s Settings) (*Room, error) {
	host := r.players.ByID(hostID)
	if host == nil {
		return nil, ErrNotMember
	}

	clean, err := r.sanitizeSettings(s)
	if err != nil {
		return nil, err
	}

	rm := &Room{
		Code:      r.generateCode(),
		Status:    StatusLobby,
		Members:   []string{hostID},
		HostID:    hostID,
		Banned:    make(map[string]struct{}),
		Settings:  clean,
		Teams:     make(map[string]int),
		CreatedAt: r.now(),
	}
	r.rooms[rm.Code] = rm
	host.RoomCode = rm.Code
	metrics.LiveRooms.Set(float64(len(r.rooms)))

	logger.Info("room created", "code", rm.Code, "host", hostID, "game", clean.GameID)
	return rm, nil
}

// Join appends the player to the room. Not-found and in-progress
// both come back as ErrJoinFailed; full and banned stay distinct.
func (r *Registry) Join(code, playerID string) (*Room, error) {
	p := r.players.ByID(playerID)
	if p == nil {
		return nil, ErrJoinFailed
	}

	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrJoinFailed
	}
	if rm.Status != StatusLobby {
		return nil, ErrJoinFailed
	}
	if rm.IsBanned(playerID) {
		return nil, ErrBanned
	}
	if rm.IsMember(playerID) {
		return nil, ErrAlreadyInRoom
	}
	if len(rm.Members) >= rm.Settings.Capacity {
		return nil, ErrRoomFull
	}

	p.Name = r.dedupeName(rm, p.Name)
	rm.Members = append(rm.Members, playerID)
	p.RoomCode = code

	logger.Info("player joined room", "code", code, "player", playerID, "name", p.Name)
	return rm, nil
}

// dedupeName resolves case-insensitive name collisions inside the
// room by appending the lowest free numeric suffix.
func (r *Registry) dedupeName(rm *Room, name string) string {
	taken := make(map[string]struct{}, len(rm.Members))
	for _, id := range rm.Members {
		if m := r.players.ByID(id); m != nil {
			taken[strings.ToLower(m.Name)] = struct{}{}
		}
	}

	if _, clash := taken[strings.ToLower(name)]; !clash {
		return name
	}
	for n := 2; ; n++ {
		candidate := name + " " + strconv.Itoa(n)
		if _, clash := taken[strings.ToLower(candidate)]; !clash {
			return candidate
		}
	}
}

// Leave removes the player. While in the lobby it also prunes any
// other already-disconnected members. Idempotent: leaving a room the
// player is not in reports Left=false and changes nothing.
func (r *Registry) Leave(code, playerID string) LeaveResult {
	var res LeaveResult

	rm, ok := r.rooms[code]
	if !ok {
		return res
	}
	if !rm.removeMember(playerID) {
		return res
	}
	res.Left = true
	if p := r.players.ByID(playerID); p != nil && p.RoomCode == code {
		p.RoomCode = ""
	}

	if rm.Status == StatusLobby {
		for _, id := range append([]string(nil), rm.Members...) {
			m := r.players.ByID(id)
			if m == nil || !m.Connected() {
				rm.removeMember(id)
				res.Pruned = append(res.Pruned, id)
				if m != nil {
					m.RoomCode = ""
				}
			}
		}
	}

	if len(rm.Members) == 0 {
		r.destroy(rm)
		res.Destroyed = true
		return res
	}

	if !rm.IsMember(rm.HostID) {
		rm.HostID = rm.Members[0]
		res.NewHostID = rm.HostID
		logger.Info("host transferred", "code", code, "host", rm.HostID)
	}
	return res
}

// Kick bans and removes a member. Host-only.
func (r *Registry) Kick(code, hostID, targetID string) (LeaveResult, error) {
	rm, ok := r.rooms[code]
	if !ok {
		return LeaveResult{}, ErrNotFound
	}
	if rm.HostID != hostID {
		return LeaveResult{}, ErrNotHost
	}
	if !rm.IsMember(targetID) {
		return LeaveResult{}, ErrNotMember
	}

	rm.Banned[targetID] = struct{}{}
	return r.Leave(code, targetID), nil
}

// UpdateSettings replaces the settings. Host-only, lobby-only.
func (r *Registry) UpdateSettings(code, hostID string, s Settings) (*Room, error) {
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	if rm.HostID != hostID {
		return nil, ErrNotHost
	}
	if rm.Status != StatusLobby {
		return nil, ErrNotInLobby
	}

	clean, err := r.sanitizeSettings(s)
	if err != nil {
		return nil, err
	}
	rm.Settings = clean
	return rm, nil
}

// CanStart checks every precondition for starting the match,
// returning the first violated one.
func (r *Registry) CanStart(code, hostID string) error {
	rm, ok := r.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if rm.HostID != hostID {
		return ErrNotHost
	}
	if rm.Status != StatusLobby {
		return ErrNotInLobby
	}
	plugin, ok := r.games.Get(rm.Settings.GameID)
	if !ok {
		return ErrUnknownGame
	}
	if r.PlayerCount(rm) < plugin.MinPlayers() {
		return ErrNotEnoughPlayers
	}
	return nil
}

// PlayerCount counts the members who hold a seat in the game.
// Spectators watch but never fill one.
func (r *Registry) PlayerCount(rm *Room) int {
	n := 0
	for _, id := range rm.Members {
		if p := r.players.ByID(id); p != nil && !p.Spectator {
			n++
		}
	}
	return n
}

// SwitchTeam assigns the player to a team while in the lobby.
func (r *Registry) SwitchTeam(code, playerID string, team int) error {
	rm, ok := r.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if rm.Status != StatusLobby {
		return ErrNotInLobby
	}
	if !rm.IsMember(playerID) {
		return ErrNotMember
	}
	rm.Teams[playerID] = team
	return nil
}

// Destroy removes the room outright. Idempotent.
func (r *Registry) Destroy(code string) bool {
	rm, ok := r.rooms[code]
	if !ok {
		return false
	}
	for _, id := range rm.Members {
		if p := r.players.ByID(id); p != nil && p.RoomCode == code {
			p.RoomCode = ""
		}
	}
	r.destroy(rm)
	return true
}

func (r *Registry) destroy(rm *Room) {
	delete(r.rooms, rm.Code)
	metrics.LiveRooms.Set(float64(len(r.rooms)))
	logger.Info("room destroyed", "code", rm.Code)
}

// Cleanup destroys rooms where every member is disconnected and the
// most recent heartbeat among them is older than idle. The orphaned
// players are removed from the registry as well. Returns the codes of
// destroyed rooms.
func (r *Registry) Cleanup(idle time.Duration) []string {
	cutoff := r.now().Add(-idle)
	var destroyed []string

	for code, rm := range r.rooms {
		abandoned := true
		latest := rm.CreatedAt
		for _, id := range rm.Members {
			p := r.players.ByID(id)
			if p == nil {
				continue
			}
			if p.Connected() {
				abandoned = false
				break
			}
			if p.LastSeen.After(latest) {
				latest = p.LastSeen
			}
		}
		if !abandoned || latest.After(cutoff) {
			continue
		}

		for _, id := range rm.Members {
			r.players.Remove(id)
		}
		delete(r.rooms, code)
		destroyed = append(destroyed, code)
		logger.Info("idle room swept", "code", code)
	}

	if len(destroyed) > 0 {
		metrics.LiveRooms.Set(float64(len(r.rooms)))
	}
	return destroyed
}

// Snapshot builds the durable view of the room, member records
// included.
func (r *Registry) Snapshot(rm *Room) domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		Code:      rm.Code,
		Status:    string(rm.Status),
		HostID:    rm.HostID,
		GameID:    rm.Settings.GameID,
		Capacity:  rm.Settings.Capacity,
		Config:    rm.Settings.Config,
		Teams:     rm.Teams,
		CreatedAt: rm.CreatedAt,
	}
	for id := range rm.Banned {
		snap.Banned = append(snap.Banned, id)
	}
	for _, id := range rm.Members {
		if p := r.players.ByID(id); p != nil {
			snap.Members = append(snap.Members, p.Record())
		}
	}
	return snap
}

// Restore rebuilds a room (and its members, disconnected) from a
// snapshot. Existing rooms with the same code are left untouched.
func (r *Registry) Restore(snap domain.RoomSnapshot) *Room {
	if rm, ok := r.rooms[snap.Code]; ok {
		return rm
	}

	rm := &Room{
		Code:      snap.Code,
		Status:    Status(snap.Status),
		HostID:    snap.HostID,
		Banned:    make(map[string]struct{}),
		Settings:  Settings{GameID: snap.GameID, Capacity: snap.Capacity, Config: snap.Config},
		Teams:     snap.Teams,
		CreatedAt: snap.CreatedAt,
	}
	if rm.Teams == nil {
		rm.Teams = make(map[string]int)
	}
	if rm.Settings.Capacity < MinCapacity || rm.Settings.Capacity > MaxCapacity {
		rm.Settings.Capacity = DefaultCapacity
	}
	for _, id := range snap.Banned {
		rm.Banned[id] = struct{}{}
	}
	for _, rec := range snap.Members {
		p := r.players.Restore(rec)
		p.RoomCode = snap.Code
		rm.Members = append(rm.Members, p.ID)
	}

	r.rooms[rm.Code] = rm
	metrics.LiveRooms.Set(float64(len(r.rooms)))
	logger.Info("room restored", "code", rm.Code, "members", len(rm.Members))
	return rm
}

// sanitizeSettings clamps capacity and drops any game-config field
// the plugin does not whitelist, so clients cannot smuggle arbitrary
// payloads into persisted settings.
func (r *Registry) sanitizeSettings(s Settings) (Settings, error) {
	if s.GameID == "" {
		ids := r.games.IDs()
		if len(ids) == 0 {
			return Settings{}, ErrUnknownGame
		}
		s.GameID = ids[0]
	}
	plugin, ok := r.games.Get(s.GameID)
	if !ok {
		return Settings{}, ErrUnknownGame
	}

	if s.Capacity == 0 {
		s.Capacity = DefaultCapacity
	}
	if s.Capacity < MinCapacity {
		s.Capacity = MinCapacity
	}
	if s.Capacity > MaxCapacity {
		s.Capacity = MaxCapacity
	}

	clean := make(map[string]any)
	for _, field := range plugin.ConfigFields() {
		if v, ok := s.Config[field]; ok {
			clean[field] = v
		}
	}
	s.Config = clean
	return s, nil
}

// generateCode retries random generation until the code is unique
// among live rooms.
func (r *Registry) generateCode() string {
	for {
		code := randomCode()
		if _, exists := r.rooms[code]; !exists {
			return code
		}
	}
}

func randomCode() string {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		// fall back to a time-derived code if the random source fails
		t := time.Now().UnixNano()
		for i := range b {
			b[i] = CodeAlphabet[int(t>>uint(i*6))%len(CodeAlphabet)]
		}
		return string(b)
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(b)
}
