package coordinator

import (
	"sync"
	"time"

	"telecare-signaling/internal/domain"

	"go.uber.org/zap"
)

// Entry pairs a connection record with its transport handle. The registry is
// the single source of truth for reachability: other components look targets
// up per operation instead of caching handles, because a handle is stale the
// moment a disconnect or re-registration happens.
type Entry struct {
	domain.ConnectionRecord
	Conn Conn
}

// Registry binds live transport connections to declared identities. All
// access goes through one coarse lock; every operation is O(1) map work and
// outbound sends are non-blocking enqueues.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Entry
	byConn map[Conn]*Entry

	// generations survives unregistration so a reconnecting identity always
	// gets a strictly larger generation than any record it supersedes.
	generations map[string]uint64

	log *zap.Logger
}

// NewRegistry creates an empty connection registry
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		byUser:      make(map[string]*Entry),
		byConn:      make(map[Conn]*Entry),
		generations: make(map[string]uint64),
		log:         log,
	}
}

// Register binds conn to the given identity. The default policy is
// last-writer-wins per user ID: a prior record for the same identity is
// evicted (returned as second value) without closing its transport. An
// explicit re-registration on the same connection replaces its old record.
func (r *Registry) Register(conn Conn, userID string, role domain.Role, displayName string) (*Entry, *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations[userID]++
	entry := &Entry{
		ConnectionRecord: domain.ConnectionRecord{
			UserID:      userID,
			Role:        role,
			DisplayName: displayName,
			ConnectedAt: time.Now().UTC(),
			Generation:  r.generations[userID],
		},
		Conn: conn,
	}

	if prior, ok := r.byConn[conn]; ok && prior.UserID != userID {
		// Same transport re-registering as a different identity drops the
		// old binding entirely.
		if r.byUser[prior.UserID] == prior {
			delete(r.byUser, prior.UserID)
		}
	}

	evicted := r.byUser[userID]
	if evicted != nil && evicted.Conn == conn {
		evicted = nil
	}

	r.byUser[userID] = entry
	r.byConn[conn] = entry

	if evicted != nil {
		r.log.Info("connection superseded",
			zap.String("user_id", userID),
			zap.Uint64("old_generation", evicted.Generation),
			zap.Uint64("new_generation", entry.Generation))
	}

	return entry, evicted
}

// Lookup returns the current entry for a user ID
func (r *Registry) Lookup(userID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byUser[userID]
	return entry, ok
}

// LookupConn returns the entry bound to a transport handle
func (r *Registry) LookupConn(conn Conn) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byConn[conn]
	return entry, ok
}

// Unregister removes the record bound to conn. It reports the removed entry
// and whether that entry was still the current one for its user ID; a stale
// unregister racing a newer registration removes only the transport binding,
// never the newer record.
func (r *Registry) Unregister(conn Conn) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn)

	current := r.byUser[entry.UserID] == entry
	if current {
		delete(r.byUser, entry.UserID)
	}

	return entry, current
}

// Broadcast enqueues msg on every live connection. Connections with a full
// send buffer miss the message; the next snapshot or status change heals them.
func (r *Registry) Broadcast(msg []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for conn, entry := range r.byConn {
		if !conn.Send(msg) {
			r.log.Warn("broadcast dropped for slow connection",
				zap.String("user_id", entry.UserID))
		}
	}
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
