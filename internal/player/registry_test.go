package player

import (
	"testing"
	"time"

	"fishka_server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed bool
	sent   []any
}

func (c *fakeConn) Send(v any) bool {
	c.sent = append(c.sent, v)
	return true
}
func (c *fakeConn) Close()           { c.closed = true }
func (c *fakeConn) RemoteIP() string { return "127.0.0.1" }

func TestCreateIndexesAllThreeWays(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}

	p := r.Create("Alice", 7, conn)

	require.NotEmpty(t, p.ID)
	require.NotEmpty(t, p.Token)
	assert.Same(t, p, r.ByID(p.ID))
	assert.Same(t, p, r.ByToken(p.Token))
	assert.Same(t, p, r.ByConn(conn))
	assert.True(t, p.Connected())
}

func TestReconnectClosesStaleHandle(t *testing.T) {
	r := NewRegistry()
	oldConn := &fakeConn{}
	p := r.Create("Bob", 1, oldConn)

	newConn := &fakeConn{}
	got := r.Reconnect(p.Token, newConn)

	require.Same(t, p, got)
	assert.True(t, oldConn.closed, "stale handle must be force-closed")
	assert.Nil(t, r.ByConn(oldConn), "stale handle no longer resolvable")
	assert.Same(t, p, r.ByConn(newConn))
	assert.Same(t, newConn, got.Conn.(*fakeConn))
}

func TestReconnectUnknownToken(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Reconnect("nope", &fakeConn{}))
}

func TestDisconnectKeepsReconnectWindow(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	p := r.Create("Carol", 2, conn)

	got := r.Disconnect(conn)

	require.Same(t, p, got)
	assert.False(t, p.Connected())
	assert.Same(t, p, r.ByID(p.ID), "still indexed by id")
	assert.Same(t, p, r.ByToken(p.Token), "still indexed by token")
	assert.Nil(t, r.ByConn(conn))
}

func TestDisconnectOldSocketAfterReconnect(t *testing.T) {
	r := NewRegistry()
	oldConn := &fakeConn{}
	p := r.Create("Dave", 3, oldConn)

	newConn := &fakeConn{}
	r.Reconnect(p.Token, newConn)

	// The old socket's close event arrives late; it must not clear
	// the new handle.
	r.Disconnect(oldConn)
	assert.True(t, p.Connected())
	assert.Same(t, p, r.ByConn(newConn))
}

func TestRemoveUnindexes(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	p := r.Create("Eve", 4, conn)

	r.Remove(p.ID)

	assert.Nil(t, r.ByID(p.ID))
	assert.Nil(t, r.ByToken(p.Token))
	assert.Nil(t, r.ByConn(conn))

	// second remove is a no-op
	r.Remove(p.ID)
}

func TestSweepStaleClosesOldConnections(t *testing.T) {
	now := time.Unix(5000, 0)
	r := NewRegistry()
	r.SetClock(func() time.Time { return now })

	staleConn := &fakeConn{}
	stale := r.Create("Old", 1, staleConn)

	now = now.Add(2 * time.Minute)
	freshConn := &fakeConn{}
	r.Create("New", 2, freshConn)

	swept := r.SweepStale(time.Minute)

	require.Len(t, swept, 1)
	assert.Same(t, stale, swept[0])
	assert.True(t, staleConn.closed)
	assert.False(t, freshConn.closed)
}

func TestSweepIdleRemovesRoomlessDisconnected(t *testing.T) {
	now := time.Unix(5000, 0)
	r := NewRegistry()
	r.SetClock(func() time.Time { return now })

	conn := &fakeConn{}
	idle := r.Create("Idle", 1, conn)
	r.Disconnect(conn)

	roomConn := &fakeConn{}
	inRoom := r.Create("Roomed", 2, roomConn)
	inRoom.RoomCode = "AB23"
	r.Disconnect(roomConn)

	now = now.Add(15 * time.Minute)
	gone := r.SweepIdle(10 * time.Minute)

	require.Len(t, gone, 1)
	assert.Same(t, idle, gone[0])
	assert.Nil(t, r.ByID(idle.ID))
	assert.Same(t, inRoom, r.ByID(inRoom.ID), "players with a room are kept")
}

func TestRestoreFromRecord(t *testing.T) {
	r := NewRegistry()

	p := r.Restore(domain.PlayerRecord{
		ID: "p1", Token: "tok1", Name: "Ann", AvatarSeed: 9, RoomCode: "XY34",
	})

	assert.False(t, p.Connected())
	assert.Same(t, p, r.ByToken("tok1"))
	assert.Equal(t, "XY34", p.RoomCode)

	// restoring the same id again returns the existing player
	assert.Same(t, p, r.Restore(domain.PlayerRecord{ID: "p1", Token: "tok1"}))
}
