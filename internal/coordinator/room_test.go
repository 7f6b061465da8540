package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "telecare-signaling/pkg/errors"
)

func TestJoinRequiresLiveConnection(t *testing.T) {
	coord := newTestCoordinator(Options{})
	err := coord.Rooms.Join("room-1", "nobody")
	assert.Equal(t, pkgerrors.ErrCodeNotFound, pkgerrors.CodeOf(err))
	assert.Equal(t, 0, coord.Rooms.RoomCount())
}

func TestJoinNotifiesExistingParticipants(t *testing.T) {
	coord := newTestCoordinator(Options{})
	doctor := registerDoctor(t, coord, "doc-1", "")
	registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "doc-1"))
	doctor.reset()
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))

	payloads := doctor.received(t, EventUserJoinedConsultation)
	require.Len(t, payloads, 1)

	var payload ConsultationEventPayload
	require.NoError(t, json.Unmarshal(payloads[0], &payload))
	assert.Equal(t, "room-1", payload.ConsultationID)
	assert.Equal(t, "pat-1", payload.UserID)
}

func TestJoinIsIdempotent(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))

	room, ok := coord.Rooms.Room("room-1")
	require.True(t, ok)
	assert.Len(t, room.Participants, 1)
}

func TestRoomCapacity(t *testing.T) {
	coord := newTestCoordinator(Options{RoomCapacity: 2})
	registerPatient(t, coord, "pat-1")
	registerPatient(t, coord, "pat-2")
	registerPatient(t, coord, "pat-3")

	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	require.NoError(t, coord.Rooms.Join("room-1", "pat-2"))

	err := coord.Rooms.Join("room-1", "pat-3")
	assert.Equal(t, pkgerrors.ErrCodeRoomFull, pkgerrors.CodeOf(err))

	// A participant already inside may "join" again despite the room
	// being full.
	assert.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	assert.Equal(t, 1, coord.Rooms.RoomCount())

	coord.Rooms.Leave("room-1", "pat-1")
	assert.Equal(t, 0, coord.Rooms.RoomCount())

	// Leaving again, or leaving a room never joined, is a silent no-op.
	coord.Rooms.Leave("room-1", "pat-1")
	coord.Rooms.Leave("missing", "pat-1")
}

func TestLeaveNotifiesRemaining(t *testing.T) {
	coord := newTestCoordinator(Options{})
	doctor := registerDoctor(t, coord, "doc-1", "")
	registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "doc-1"))
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	doctor.reset()

	coord.Rooms.Leave("room-1", "pat-1")

	payloads := doctor.received(t, EventUserLeftConsultation)
	require.Len(t, payloads, 1)

	var payload ConsultationEventPayload
	require.NoError(t, json.Unmarshal(payloads[0], &payload))
	assert.Equal(t, "pat-1", payload.UserID)
	assert.Equal(t, 1, coord.Rooms.RoomCount())
}

func TestRelayRequiresMembership(t *testing.T) {
	coord := newTestCoordinator(Options{})
	registerPatient(t, coord, "pat-1")
	registerPatient(t, coord, "pat-2")

	// Unknown room.
	err := coord.Rooms.Relay("room-1", "pat-1", json.RawMessage(`{}`))
	assert.Equal(t, pkgerrors.ErrCodeNotParticipant, pkgerrors.CodeOf(err))

	// Existing room, non-member sender.
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	err = coord.Rooms.Relay("room-1", "pat-2", json.RawMessage(`{}`))
	assert.Equal(t, pkgerrors.ErrCodeNotParticipant, pkgerrors.CodeOf(err))
}

func TestRelayBroadcastsToOthers(t *testing.T) {
	coord := newTestCoordinator(Options{})
	doctor := registerDoctor(t, coord, "doc-1", "")
	patient := registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "doc-1"))
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	doctor.reset()
	patient.reset()

	message := json.RawMessage(`{"kind":"chat","text":"hello"}`)
	require.NoError(t, coord.Rooms.Relay("room-1", "pat-1", message))

	payloads := doctor.received(t, EventConsultationMessage)
	require.Len(t, payloads, 1)

	var payload ConsultationMessagePayload
	require.NoError(t, json.Unmarshal(payloads[0], &payload))
	assert.Equal(t, "pat-1", payload.From)
	assert.JSONEq(t, string(message), string(payload.Message))

	// The sender does not receive an echo.
	assert.Empty(t, patient.received(t, EventConsultationMessage))
}

func TestDisconnectEvictsFromRooms(t *testing.T) {
	coord := newTestCoordinator(Options{})
	doctor := registerDoctor(t, coord, "doc-1", "")
	patient := registerPatient(t, coord, "pat-1")

	require.NoError(t, coord.Rooms.Join("room-1", "doc-1"))
	require.NoError(t, coord.Rooms.Join("room-1", "pat-1"))
	require.NoError(t, coord.Rooms.Join("room-2", "pat-1"))
	doctor.reset()

	coord.Disconnect(patient)

	assert.Len(t, doctor.received(t, EventUserLeftConsultation), 1)

	room, ok := coord.Rooms.Room("room-1")
	require.True(t, ok)
	assert.Len(t, room.Participants, 1)

	_, ok = coord.Rooms.Room("room-2")
	assert.False(t, ok)
}
