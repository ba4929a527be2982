package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	s := m.Create("claude")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "claude", s.Provider)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestTouchCountsMessages(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())
	s := m.Create("claude")

	m.Touch(s.ID)
	m.Touch(s.ID)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, 2, got.Messages)
}

func TestExpiry(t *testing.T) {
	m := NewManager(10*time.Millisecond, zerolog.Nop())
	s := m.Create("claude")

	time.Sleep(20 * time.Millisecond)

	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count())
}

func TestCleanupExpiredKeepsConnected(t *testing.T) {
	m := NewManager(10*time.Millisecond, zerolog.Nop())

	idle := m.Create("claude")
	connected := m.AttachConn("conn-1", "", "gemini")

	time.Sleep(20 * time.Millisecond)

	removed := m.CleanupExpired()
	assert.Equal(t, 1, removed)

	_, ok := m.Get(idle.ID)
	assert.False(t, ok)
	_, ok = m.Get(connected.ID)
	assert.True(t, ok)
}

func TestAttachConnReusesSession(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	s1 := m.AttachConn("conn-1", "", "claude")
	s2 := m.AttachConn("conn-2", s1.ID, "claude")
	assert.Equal(t, s1.ID, s2.ID)

	stats := m.GetStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 2, stats.Connections)
}

func TestAttachConnUnknownSessionCreatesNew(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	s := m.AttachConn("conn-1", "no-such-session", "claude")
	assert.NotEqual(t, "no-such-session", s.ID)
	assert.Equal(t, 1, m.Count())
}

func TestDetachConn(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	s := m.AttachConn("conn-1", "", "claude")
	m.DetachConn("conn-1")

	stats := m.GetStats()
	assert.Equal(t, 0, stats.Connections)

	// Session survives the detach.
	_, ok := m.Get(s.ID)
	assert.True(t, ok)

	// Detaching twice is harmless.
	m.DetachConn("conn-1")
}

func TestRemove(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())

	s := m.AttachConn("conn-1", "", "claude")
	assert.True(t, m.Remove(s.ID))
	assert.False(t, m.Remove(s.ID))

	stats := m.GetStats()
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.Connections)
}

func TestStatsByProvider(t *testing.T) {
	m := NewManager(time.Hour, zerolog.Nop())
	m.Create("claude")
	m.Create("claude")
	m.Create("gemini")

	stats := m.GetStats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByProvider["claude"])
	assert.Equal(t, 1, stats.ByProvider["gemini"])
	assert.Len(t, m.List(), 3)
}
