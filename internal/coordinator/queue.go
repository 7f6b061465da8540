package coordinator

import (
	"telecare-signaling/internal/domain"
	"telecare-signaling/pkg/metrics"

	"go.uber.org/zap"
)

// QueueRelay forwards queue join/leave notices from patient connections to
// the target doctor's current connection. It holds no state of its own: it is
// a routing function over the registry with at-most-once delivery. A notice
// for an unreachable doctor is dropped silently; the patient-side client owns
// retries and staleness detection.
type QueueRelay struct {
	registry *Registry
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewQueueRelay creates a queue relay over the given registry
func NewQueueRelay(registry *Registry, m *metrics.Metrics, log *zap.Logger) *QueueRelay {
	return &QueueRelay{
		registry: registry,
		metrics:  m,
		log:      log,
	}
}

// ForwardJoin relays a queue-join notice to the doctor named in the notice
func (q *QueueRelay) ForwardJoin(notice QueueNotice) {
	q.forward(EventJoinQueue, notice)
}

// ForwardLeave relays a queue-leave notice to the doctor named in the notice
func (q *QueueRelay) ForwardLeave(notice QueueNotice) {
	q.forward(EventLeaveQueue, notice)
}

func (q *QueueRelay) forward(event string, notice QueueNotice) {
	entry, ok := q.registry.Lookup(notice.DoctorID)
	if !ok || entry.Role != domain.RoleDoctor {
		q.metrics.RecordQueueDrop(event)
		q.log.Debug("queue notice dropped, doctor unreachable",
			zap.String("event", event),
			zap.String("doctor_id", notice.DoctorID),
			zap.String("patient_id", notice.PatientID))
		return
	}

	msg, err := encodeEnvelope(event, notice)
	if err != nil {
		q.log.Error("failed to encode queue notice", zap.Error(err))
		return
	}
	if !entry.Conn.Send(msg) {
		q.metrics.RecordQueueDrop(event)
		q.log.Warn("queue notice dropped, send buffer full",
			zap.String("event", event),
			zap.String("doctor_id", notice.DoctorID))
		return
	}
	q.metrics.RecordQueueForward(event)
}
