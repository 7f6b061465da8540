package coordinator

import (
	"encoding/json"
	"sync"
	"time"

	"telecare-signaling/internal/domain"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/metrics"

	"go.uber.org/zap"
)

// RoomManager tracks consultation room membership for the chat and
// recording-control side channel layered on top of an accepted call. Rooms
// are created on first join and deleted the moment the participant set
// becomes empty; no dangling rooms.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*domain.ConsultationRoom

	registry *Registry
	capacity int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewRoomManager creates a room manager; capacity bounds the participant set
// of every room it creates
func NewRoomManager(registry *Registry, capacity int, m *metrics.Metrics, log *zap.Logger) *RoomManager {
	return &RoomManager{
		rooms:    make(map[string]*domain.ConsultationRoom),
		registry: registry,
		capacity: capacity,
		metrics:  m,
		log:      log,
	}
}

// Join adds userID to the room, creating it if absent, and notifies the
// existing participants
func (rm *RoomManager) Join(roomID, userID string) error {
	entry, ok := rm.registry.Lookup(userID)
	if !ok {
		return pkgerrors.NotFoundError("connection")
	}

	rm.mu.Lock()
	room, exists := rm.rooms[roomID]
	if !exists {
		room = &domain.ConsultationRoom{
			RoomID:       roomID,
			Participants: make(map[string]*domain.RoomParticipant),
			Capacity:     rm.capacity,
			CreatedAt:    time.Now().UTC(),
		}
		rm.rooms[roomID] = room
	}
	if _, already := room.Participants[userID]; !already && len(room.Participants) >= room.Capacity {
		if !exists {
			delete(rm.rooms, roomID)
		}
		rm.mu.Unlock()
		return pkgerrors.RoomFullError(roomID)
	}
	room.Participants[userID] = &domain.RoomParticipant{
		UserID:      userID,
		Role:        entry.Role,
		DisplayName: entry.DisplayName,
		JoinedAt:    time.Now().UTC(),
	}
	others := rm.othersLocked(room, userID)
	count := len(rm.rooms)
	rm.mu.Unlock()

	rm.metrics.SetActiveRooms(count)
	rm.notify(others, EventUserJoinedConsultation, ConsultationEventPayload{
		ConsultationID: roomID,
		UserID:         userID,
		Role:           entry.Role,
		Timestamp:      time.Now().UTC(),
	})
	return nil
}

// Leave removes userID from the room, notifies the remaining participants,
// and deletes the room when it empties. Leaving a room one is not in is a
// no-op: the disconnect path makes duplicate leaves unavoidable.
func (rm *RoomManager) Leave(roomID, userID string) {
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	if !ok {
		rm.mu.Unlock()
		return
	}
	participant, member := room.Participants[userID]
	if !member {
		rm.mu.Unlock()
		return
	}
	delete(room.Participants, userID)
	if len(room.Participants) == 0 {
		delete(rm.rooms, roomID)
	}
	others := rm.othersLocked(room, userID)
	count := len(rm.rooms)
	rm.mu.Unlock()

	rm.metrics.SetActiveRooms(count)
	rm.notify(others, EventUserLeftConsultation, ConsultationEventPayload{
		ConsultationID: roomID,
		UserID:         userID,
		Role:           participant.Role,
		Timestamp:      time.Now().UTC(),
	})
}

// Relay broadcasts an opaque side-channel message to every other participant.
// It fails with NotParticipant when the sender is not in the room; delivery
// to each recipient is best-effort.
func (rm *RoomManager) Relay(roomID, fromID string, message json.RawMessage) error {
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	if !ok {
		rm.mu.Unlock()
		return pkgerrors.NotParticipantError("sender is not in this consultation room")
	}
	if _, member := room.Participants[fromID]; !member {
		rm.mu.Unlock()
		return pkgerrors.NotParticipantError("sender is not in this consultation room")
	}
	others := rm.othersLocked(room, fromID)
	rm.mu.Unlock()

	rm.metrics.RecordRoomMessage()
	rm.notify(others, EventConsultationMessage, ConsultationMessagePayload{
		ConsultationID: roomID,
		From:           fromID,
		Message:        message,
		Timestamp:      time.Now().UTC(),
	})
	return nil
}

// HandleDisconnect evicts userID from every room it participates in
func (rm *RoomManager) HandleDisconnect(userID string) {
	rm.mu.Lock()
	var roomIDs []string
	for roomID, room := range rm.rooms {
		if _, member := room.Participants[userID]; member {
			roomIDs = append(roomIDs, roomID)
		}
	}
	rm.mu.Unlock()

	for _, roomID := range roomIDs {
		rm.Leave(roomID, userID)
	}
}

// Room returns a copy of the room's participant set
func (rm *RoomManager) Room(roomID string) (domain.ConsultationRoom, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	room, ok := rm.rooms[roomID]
	if !ok {
		return domain.ConsultationRoom{}, false
	}
	copied := domain.ConsultationRoom{
		RoomID:       room.RoomID,
		Participants: make(map[string]*domain.RoomParticipant, len(room.Participants)),
		Capacity:     room.Capacity,
		CreatedAt:    room.CreatedAt,
	}
	for id, p := range room.Participants {
		participant := *p
		copied.Participants[id] = &participant
	}
	return copied, true
}

// RoomCount returns the number of rooms with at least one participant
func (rm *RoomManager) RoomCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.rooms)
}

// othersLocked snapshots the other participants' user IDs. Callers hold rm.mu.
func (rm *RoomManager) othersLocked(room *domain.ConsultationRoom, except string) []string {
	others := make([]string, 0, len(room.Participants))
	for id := range room.Participants {
		if id != except {
			others = append(others, id)
		}
	}
	return others
}

// notify delivers an event to each target's current connection
func (rm *RoomManager) notify(userIDs []string, event string, payload interface{}) {
	if len(userIDs) == 0 {
		return
	}
	msg, err := encodeEnvelope(event, payload)
	if err != nil {
		rm.log.Error("failed to encode consultation notice", zap.Error(err))
		return
	}
	for _, userID := range userIDs {
		entry, ok := rm.registry.Lookup(userID)
		if !ok {
			continue
		}
		if !entry.Conn.Send(msg) {
			rm.log.Warn("consultation notice dropped, send buffer full",
				zap.String("event", event),
				zap.String("user_id", userID))
		}
	}
}
