package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telecare-signaling/internal/domain"
	pkgerrors "telecare-signaling/pkg/errors"
)

// fakeStatusStore records write-through calls for assertion
type fakeStatusStore struct {
	mu      sync.Mutex
	saved   []domain.DoctorPresence
	removed []string
}

func (s *fakeStatusStore) SaveStatus(_ context.Context, presence domain.DoctorPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, presence)
	return nil
}

func (s *fakeStatusStore) RemoveStatus(_ context.Context, doctorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, doctorID)
	return nil
}

func (s *fakeStatusStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *fakeStatusStore) removedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.removed)
}

func registerDoctor(t *testing.T, coord *Coordinator, doctorID, speciality string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	_, err := coord.Register(conn, doctorID, domain.RoleDoctor, "Dr. "+doctorID, speciality)
	require.NoError(t, err)
	return conn
}

func registerPatient(t *testing.T, coord *Coordinator, patientID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	_, err := coord.Register(conn, patientID, domain.RolePatient, patientID, "")
	require.NoError(t, err)
	return conn
}

func TestSetStatusUnknownDoctor(t *testing.T) {
	coord := newTestCoordinator(Options{})
	err := coord.Presence.SetStatus("nobody", domain.StatusOnline, true)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeUnknownDoctor, pkgerrors.CodeOf(err))
}

func TestOfflineStatusForcesUnavailable(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerDoctor(t, coord, "doc-1", "cardiology")

	err := coord.Presence.SetStatus("doc-1", domain.StatusOffline, true)
	require.NoError(t, err)

	snapshot := coord.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusOffline, snapshot[0].Status)
	assert.False(t, snapshot[0].IsAvailable)
}

func TestBusyRestoreRoundTrip(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerDoctor(t, coord, "doc-1", "cardiology")
	require.NoError(t, coord.Presence.SetStatus("doc-1", domain.StatusOnline, false))

	coord.Presence.MarkBusy("doc-1")
	snapshot := coord.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusBusy, snapshot[0].Status)
	assert.False(t, snapshot[0].IsAvailable)

	coord.Presence.RestoreFromBusy("doc-1")
	snapshot = coord.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusOnline, snapshot[0].Status)
	assert.False(t, snapshot[0].IsAvailable)
}

func TestMarkBusyIdempotent(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerDoctor(t, coord, "doc-1", "")

	coord.Presence.MarkBusy("doc-1")
	coord.Presence.MarkBusy("doc-1")
	coord.Presence.RestoreFromBusy("doc-1")

	snapshot := coord.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusOnline, snapshot[0].Status)
	assert.True(t, snapshot[0].IsAvailable)
}

func TestRestoreFromBusyWithoutBusyIsNoop(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerDoctor(t, coord, "doc-1", "")

	coord.Presence.RestoreFromBusy("doc-1")

	snapshot := coord.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusOnline, snapshot[0].Status)
}

func TestStatusChangeBroadcastToEveryone(t *testing.T) {
	coord := newTestCoordinator(Options{})
	patient := registerPatient(t, coord, "pat-1")
	doctor := registerDoctor(t, coord, "doc-1", "dermatology")
	patient.reset()
	doctor.reset()

	require.NoError(t, coord.Presence.SetStatus("doc-1", domain.StatusBusy, false))

	for _, conn := range []*fakeConn{patient, doctor} {
		payloads := conn.received(t, EventDoctorStatusChanged)
		require.Len(t, payloads, 1)

		var payload DoctorStatusChangedPayload
		require.NoError(t, json.Unmarshal(payloads[0], &payload))
		assert.Equal(t, "doc-1", payload.DoctorID)
		assert.Equal(t, string(domain.StatusBusy), payload.Status)
		assert.False(t, payload.IsAvailable)
	}
}

func TestStatusWriteThrough(t *testing.T) {
	store := &fakeStatusStore{}
	coord := newTestCoordinator(Options{StatusStore: store})
	conn := registerDoctor(t, coord, "doc-1", "cardiology")

	assert.Eventually(t, func() bool {
		return store.savedCount() >= 1
	}, time.Second, 10*time.Millisecond, "SetOnline should persist the status")

	coord.Disconnect(conn)
	assert.Eventually(t, func() bool {
		return store.removedCount() == 1
	}, time.Second, 10*time.Millisecond, "disconnect should remove the persisted status")
}

func TestSnapshotSkipsEntriesWithoutConnection(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerDoctor(t, coord, "doc-1", "")

	// Simulate the inconsistency directly: presence entry present, registry
	// record gone.
	entry, _ := coord.Registry.Lookup("doc-1")
	coord.Registry.Unregister(entry.Conn)

	coord.Presence.SetOnline("doc-1", "")
	assert.Empty(t, coord.Presence.Snapshot())
}
