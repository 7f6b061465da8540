// Package coordinator implements the real-time presence and call-signaling
// coordinator: the connection registry, doctor presence tracker, queue relay,
// call state machine, and consultation room manager. State lives entirely in
// memory and is lost on restart; clients re-register on reconnect.
package coordinator

import (
	"telecare-signaling/internal/domain"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/metrics"

	"go.uber.org/zap"
)

// Coordinator wires the five signaling tables together and sequences the
// side effects of registration and disconnect. Every table is constructed
// here and injected by reference; nothing is package-global, so each test
// run gets an isolated world.
type Coordinator struct {
	Registry *Registry
	Presence *PresenceTracker
	Queue    *QueueRelay
	Calls    *CallMachine
	Rooms    *RoomManager

	log *zap.Logger
}

// Options configures coordinator construction
type Options struct {
	StatusStore  StatusStore // nil disables the status write-through
	RoomCapacity int
}

// New builds a coordinator with freshly constructed tables
func New(opts Options, m *metrics.Metrics, log *zap.Logger) *Coordinator {
	registry := NewRegistry(log)
	presence := NewPresenceTracker(registry, opts.StatusStore, m, log)
	return &Coordinator{
		Registry: registry,
		Presence: presence,
		Queue:    NewQueueRelay(registry, m, log),
		Calls:    NewCallMachine(registry, presence, m, log),
		Rooms:    NewRoomManager(registry, opts.RoomCapacity, m, log),
		log:      log,
	}
}

// Register binds a connection to its trusted identity and runs the
// registration side effects: doctors go online and broadcast, everyone else
// is seeded with the current doctor directory.
func (c *Coordinator) Register(conn Conn, userID string, role domain.Role, displayName, speciality string) (*Entry, error) {
	if userID == "" {
		return nil, pkgerrors.MissingFieldError("userId")
	}
	if !role.Valid() {
		return nil, pkgerrors.InvalidInputError("unknown role: " + string(role))
	}

	entry, evicted := c.Registry.Register(conn, userID, role, displayName)
	if evicted != nil {
		// The superseded transport stays open; its eventual disconnect is
		// recognized as stale and cleans up nothing.
		c.log.Debug("stale connection left open after re-registration",
			zap.String("user_id", userID))
	}

	if role == domain.RoleDoctor {
		c.Presence.SetOnline(userID, speciality)
	} else {
		c.seedDirectory(entry)
	}

	c.log.Info("connection registered",
		zap.String("user_id", userID),
		zap.String("role", string(role)))
	return entry, nil
}

// Disconnect runs the full cleanup sequence for a closing transport:
// registry removal, force-ending calls, room eviction, and the final
// presence broadcast. A stale disconnect (superseded by a newer
// registration) removes only the transport binding.
func (c *Coordinator) Disconnect(conn Conn) {
	entry, current := c.Registry.Unregister(conn)
	if entry == nil {
		return
	}
	if !current {
		c.log.Debug("stale disconnect ignored",
			zap.String("user_id", entry.UserID),
			zap.Uint64("generation", entry.Generation))
		return
	}

	c.Calls.HandleDisconnect(entry.UserID)
	c.Rooms.HandleDisconnect(entry.UserID)
	if entry.Role == domain.RoleDoctor {
		c.Presence.SetOffline(entry.UserID)
	}

	c.log.Info("connection unregistered",
		zap.String("user_id", entry.UserID),
		zap.String("role", string(entry.Role)))
}

// seedDirectory sends the presence snapshot to a newly registered
// non-doctor connection
func (c *Coordinator) seedDirectory(entry *Entry) {
	msg, err := encodeEnvelope(EventDoctorDirectory, DoctorDirectoryPayload{
		Doctors: c.Presence.Snapshot(),
	})
	if err != nil {
		c.log.Error("failed to encode doctor directory", zap.Error(err))
		return
	}
	if !entry.Conn.Send(msg) {
		c.log.Warn("doctor directory dropped, send buffer full",
			zap.String("user_id", entry.UserID))
	}
}
