package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telecare-signaling/internal/domain"
)

func TestRegisterLastWriterWins(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	first, evicted := registry.Register(c1, "user-1", domain.RolePatient, "Alice")
	assert.Nil(t, evicted)
	assert.Equal(t, uint64(1), first.Generation)

	second, evicted := registry.Register(c2, "user-1", domain.RolePatient, "Alice")
	require.NotNil(t, evicted)
	assert.Same(t, first, evicted)
	assert.Equal(t, uint64(2), second.Generation)

	current, ok := registry.Lookup("user-1")
	require.True(t, ok)
	assert.Same(t, second, current)
}

func TestStaleUnregisterKeepsNewerRecord(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	c1 := &fakeConn{}
	c2 := &fakeConn{}

	registry.Register(c1, "user-1", domain.RolePatient, "Alice")
	registry.Register(c2, "user-1", domain.RolePatient, "Alice")

	// The superseded transport closes late; its unregister must not remove
	// the newer record.
	entry, current := registry.Unregister(c1)
	require.NotNil(t, entry)
	assert.False(t, current)

	got, ok := registry.Lookup("user-1")
	require.True(t, ok)
	assert.Same(t, c2, got.Conn.(*fakeConn))
	assert.Equal(t, 1, registry.Count())
}

func TestUnregisterCurrentRemovesRecord(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	c1 := &fakeConn{}

	registry.Register(c1, "user-1", domain.RoleDoctor, "Dr. Bob")
	entry, current := registry.Unregister(c1)

	require.NotNil(t, entry)
	assert.True(t, current)
	_, ok := registry.Lookup("user-1")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Count())
}

func TestUnregisterUnknownConn(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	entry, current := registry.Unregister(&fakeConn{})
	assert.Nil(t, entry)
	assert.False(t, current)
}

func TestReRegisterSameConnDifferentIdentity(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	c1 := &fakeConn{}

	registry.Register(c1, "user-1", domain.RolePatient, "Alice")
	registry.Register(c1, "user-2", domain.RolePatient, "Alice")

	_, ok := registry.Lookup("user-1")
	assert.False(t, ok)
	entry, ok := registry.Lookup("user-2")
	require.True(t, ok)
	assert.Same(t, c1, entry.Conn.(*fakeConn))
	assert.Equal(t, 1, registry.Count())
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	healthy := &fakeConn{}
	slow := &fakeConn{full: true}

	registry.Register(healthy, "user-1", domain.RolePatient, "Alice")
	registry.Register(slow, "user-2", domain.RolePatient, "Carol")

	registry.Broadcast([]byte(`{"event":"ping"}`))

	assert.Len(t, healthy.msgs, 1)
	assert.Empty(t, slow.msgs)
}
