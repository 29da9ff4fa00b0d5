package player

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"fishka_server/internal/domain"
)

// Conn is the transport handle bound to a connected player. The ws
// package implements it; registries never touch the wire format.
type Conn interface {
	// Send queues one outbound message, reporting false when the
	// client cannot keep up.
	Send(v any) bool
	Close()
	RemoteIP() string
}

// Player is one identity on the platform. Conn is nil while the
// player is disconnected; Token survives reconnects.
type Player struct {
	ID         string
	Token      string
	Name       string
	AvatarSeed int
	RoomCode   string
	Conn       Conn
	LastSeen   time.Time
	Spectator  bool
}

func (p *Player) Connected() bool { return p.Conn != nil }

// Record converts to the durable session record.
func (p *Player) Record() domain.PlayerRecord {
	return domain.PlayerRecord{
		ID:         p.ID,
		Token:      p.Token,
		Name:       p.Name,
		AvatarSeed: p.AvatarSeed,
		RoomCode:   p.RoomCode,
		Spectator:  p.Spectator,
	}
}

// Registry owns player identity and the session-token reconnect
// window. It is confined to the hub goroutine: every method runs to
// completion inside one event, so no locking is needed.
type Registry struct {
	byID    map[string]*Player
	byToken map[string]*Player
	byConn  map[Conn]*Player

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*Player),
		byToken: make(map[string]*Player),
		byConn:  make(map[Conn]*Player),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// Create allocates a fresh player bound to conn and indexes it by id,
// token and connection handle.
func (r *Registry) Create(name string, avatarSeed int, conn Conn) *Player {
	p := &Player{
		ID:         randomHex(8),
		Token:      randomHex(32),
		Name:       name,
		AvatarSeed: avatarSeed,
		Conn:       conn,
		LastSeen:   r.now(),
	}
	r.byID[p.ID] = p
	r.byToken[p.Token] = p
	r.byConn[conn] = p
	return p
}

// Restore re-indexes a player from a durable record, disconnected.
// Used for restart recovery; a no-op returning the existing player if
// the id is already known.
func (r *Registry) Restore(rec domain.PlayerRecord) *Player {
	if p, ok := r.byID[rec.ID]; ok {
		return p
	}
	p := &Player{
		ID:         rec.ID,
		Token:      rec.Token,
		Name:       rec.Name,
		AvatarSeed: rec.AvatarSeed,
		RoomCode:   rec.RoomCode,
		Spectator:  rec.Spectator,
		LastSeen:   r.now(),
	}
	r.byID[p.ID] = p
	r.byToken[p.Token] = p
	return p
}

// Reconnect rebinds the player named by token to conn. Any stale
// handle is removed from the index and force-closed first, so one
// session never resolves through two live sockets. Returns nil for
// unknown tokens.
func (r *Registry) Reconnect(token string, conn Conn) *Player {
	p, ok := r.byToken[token]
	if !ok {
		return nil
	}

	// Ordered steps: unmap the old handle before installing the new
	// one. A page-refresh race can leave the old socket technically
	// open while the new one arrives.
	if p.Conn != nil && p.Conn != conn {
		delete(r.byConn, p.Conn)
		p.Conn.Close()
	}

	p.Conn = conn
	p.LastSeen = r.now()
	r.byConn[conn] = p
	return p
}

// Disconnect clears the handle but keeps the player indexed by id and
// token for the reconnect window. Returns nil when the connection is
// not mapped to anyone.
func (r *Registry) Disconnect(conn Conn) *Player {
	p, ok := r.byConn[conn]
	if !ok {
		return nil
	}
	delete(r.byConn, conn)

	// A newer socket may already own the player; only clear the
	// handle when it is still ours.
	if p.Conn == conn {
		p.Conn = nil
		p.LastSeen = r.now()
	}
	return p
}

// Remove fully unindexes the player.
func (r *Registry) Remove(id string) {
	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byToken, p.Token)
	if p.Conn != nil {
		delete(r.byConn, p.Conn)
		p.Conn = nil
	}
}

// Heartbeat bumps the last-activity timestamp for the connection.
func (r *Registry) Heartbeat(conn Conn) {
	if p, ok := r.byConn[conn]; ok {
		p.LastSeen = r.now()
	}
}

func (r *Registry) ByConn(conn Conn) *Player { return r.byConn[conn] }
func (r *Registry) ByID(id string) *Player   { return r.byID[id] }
func (r *Registry) ByToken(token string) *Player {
	return r.byToken[token]
}

// Count returns the number of indexed players.
func (r *Registry) Count() int { return len(r.byID) }

// SweepStale closes connections whose heartbeat is older than
// timeout and returns the affected players.
func (r *Registry) SweepStale(timeout time.Duration) []*Player {
	cutoff := r.now().Add(-timeout)
	var stale []*Player
	for conn, p := range r.byConn {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, p)
			conn.Close()
		}
	}
	return stale
}

// SweepIdle removes disconnected, roomless players past the idle
// timeout and returns them.
func (r *Registry) SweepIdle(timeout time.Duration) []*Player {
	cutoff := r.now().Add(-timeout)
	var gone []*Player
	for id, p := range r.byID {
		if p.Conn == nil && p.RoomCode == "" && p.LastSeen.Before(cutoff) {
			gone = append(gone, p)
			delete(r.byID, id)
			delete(r.byToken, p.Token)
		}
	}
	return gone
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// timestamp fallback if the random source fails
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
