package coordinator

import (
	"context"
	"sync"
	"time"

	"telecare-signaling/internal/domain"
	"telecare-signaling/pkg/constants"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/metrics"

	"go.uber.org/zap"
)

// StatusStore is the external status-persistence collaborator. Writes are
// dispatched fire-and-forget; a failure is logged and never blocks or fails
// the in-memory state change or its broadcast.
type StatusStore interface {
	SaveStatus(ctx context.Context, presence domain.DoctorPresence) error
	RemoveStatus(ctx context.Context, doctorID string) error
}

// presenceEntry keeps the broadcast state plus the pre-call values needed to
// restore a doctor after a busy period.
type presenceEntry struct {
	domain.DoctorPresence
	prevStatus    domain.PresenceStatus
	prevAvailable bool
}

// PresenceTracker maintains the availability state of every connected doctor.
// An entry exists only while the doctor has a live connection record; entries
// are removed, not marked offline, on disconnect.
type PresenceTracker struct {
	mu      sync.Mutex
	doctors map[string]*presenceEntry

	registry *Registry
	store    StatusStore
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewPresenceTracker creates a presence tracker over the given registry.
// store may be nil when no persistence collaborator is configured.
func NewPresenceTracker(registry *Registry, store StatusStore, m *metrics.Metrics, log *zap.Logger) *PresenceTracker {
	return &PresenceTracker{
		doctors:  make(map[string]*presenceEntry),
		registry: registry,
		store:    store,
		metrics:  m,
		log:      log,
	}
}

// SetOnline creates or overwrites the presence entry for a registering doctor
func (p *PresenceTracker) SetOnline(doctorID, speciality string) {
	p.mu.Lock()
	entry := &presenceEntry{
		DoctorPresence: domain.DoctorPresence{
			DoctorID:    doctorID,
			Status:      domain.StatusOnline,
			IsAvailable: true,
			Speciality:  speciality,
			LastActive:  time.Now().UTC(),
		},
	}
	p.doctors[doctorID] = entry
	snapshot := entry.DoctorPresence
	count := len(p.doctors)
	p.mu.Unlock()

	p.metrics.SetDoctorsOnline(count)
	p.publish(snapshot)
}

// SetStatus applies an explicit status update requested by the doctor.
// It fails with UnknownDoctor when no live presence entry exists.
func (p *PresenceTracker) SetStatus(doctorID string, status domain.PresenceStatus, isAvailable bool) error {
	p.mu.Lock()
	entry, ok := p.doctors[doctorID]
	if !ok {
		p.mu.Unlock()
		return pkgerrors.UnknownDoctorError(doctorID)
	}
	// Offline always implies unavailable.
	if status == domain.StatusOffline {
		isAvailable = false
	}
	entry.Status = status
	entry.IsAvailable = isAvailable
	// An explicit update overrides any pending busy restore.
	entry.prevStatus = ""
	entry.prevAvailable = false
	entry.LastActive = time.Now().UTC()
	snapshot := entry.DoctorPresence
	p.mu.Unlock()

	p.publish(snapshot)
	return nil
}

// MarkBusy flips a doctor to busy for the duration of an active call,
// remembering the prior state. A doctor without a presence entry (already
// disconnected) is ignored.
func (p *PresenceTracker) MarkBusy(doctorID string) {
	p.mu.Lock()
	entry, ok := p.doctors[doctorID]
	if !ok || entry.Status == domain.StatusBusy {
		p.mu.Unlock()
		return
	}
	entry.prevStatus = entry.Status
	entry.prevAvailable = entry.IsAvailable
	entry.Status = domain.StatusBusy
	entry.IsAvailable = false
	entry.LastActive = time.Now().UTC()
	snapshot := entry.DoctorPresence
	p.mu.Unlock()

	p.publish(snapshot)
}

// RestoreFromBusy reverts a doctor to the state recorded by MarkBusy. It is a
// no-op unless the doctor is currently busy, and unless MarkBusy recorded a
// prior state: a doctor who set busy explicitly stays busy.
func (p *PresenceTracker) RestoreFromBusy(doctorID string) {
	p.mu.Lock()
	entry, ok := p.doctors[doctorID]
	if !ok || entry.Status != domain.StatusBusy || entry.prevStatus == "" {
		p.mu.Unlock()
		return
	}
	entry.Status = entry.prevStatus
	entry.IsAvailable = entry.prevAvailable
	entry.prevStatus = ""
	entry.prevAvailable = false
	entry.LastActive = time.Now().UTC()
	snapshot := entry.DoctorPresence
	p.mu.Unlock()

	p.publish(snapshot)
}

// SetOffline removes the presence entry on disconnect, after one final
// offline broadcast and persistence call.
func (p *PresenceTracker) SetOffline(doctorID string) {
	p.mu.Lock()
	entry, ok := p.doctors[doctorID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.doctors, doctorID)
	snapshot := entry.DoctorPresence
	snapshot.Status = domain.StatusOffline
	snapshot.IsAvailable = false
	count := len(p.doctors)
	p.mu.Unlock()

	p.metrics.SetDoctorsOnline(count)
	p.broadcast(snapshot)
	if p.store != nil {
		go p.removePersisted(doctorID)
	}
}

// Snapshot returns the availability of every connected doctor, used to seed
// a newly connected patient. A presence entry whose doctor has no live
// connection record is a bug condition; it is skipped and logged.
func (p *PresenceTracker) Snapshot() []domain.DoctorPresence {
	p.mu.Lock()
	entries := make([]domain.DoctorPresence, 0, len(p.doctors))
	for _, entry := range p.doctors {
		entries = append(entries, entry.DoctorPresence)
	}
	p.mu.Unlock()

	out := entries[:0]
	for _, presence := range entries {
		if _, ok := p.registry.Lookup(presence.DoctorID); !ok {
			p.log.Error("presence entry without live connection",
				zap.String("doctor_id", presence.DoctorID))
			continue
		}
		out = append(out, presence)
	}
	return out
}

// publish broadcasts a status change and dispatches the write-through
func (p *PresenceTracker) publish(presence domain.DoctorPresence) {
	p.broadcast(presence)
	if p.store != nil {
		go p.persist(presence)
	}
}

func (p *PresenceTracker) broadcast(presence domain.DoctorPresence) {
	msg, err := encodeEnvelope(EventDoctorStatusChanged, DoctorStatusChangedPayload{
		DoctorID:    presence.DoctorID,
		Status:      string(presence.Status),
		IsAvailable: presence.IsAvailable,
		Speciality:  presence.Speciality,
		Timestamp:   presence.LastActive,
	})
	if err != nil {
		p.log.Error("failed to encode status broadcast", zap.Error(err))
		return
	}
	p.registry.Broadcast(msg)
	p.metrics.RecordPresenceBroadcast(string(presence.Status))
}

func (p *PresenceTracker) persist(presence domain.DoctorPresence) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.StatusWriteTimeout)
	defer cancel()
	if err := p.store.SaveStatus(ctx, presence); err != nil {
		p.log.Warn("status write-through failed",
			zap.String("doctor_id", presence.DoctorID),
			zap.String("status", string(presence.Status)),
			zap.Error(err))
	}
}

func (p *PresenceTracker) removePersisted(doctorID string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.StatusWriteTimeout)
	defer cancel()
	if err := p.store.RemoveStatus(ctx, doctorID); err != nil {
		p.log.Warn("status removal write-through failed",
			zap.String("doctor_id", doctorID),
			zap.Error(err))
	}
}
