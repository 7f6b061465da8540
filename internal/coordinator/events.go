package coordinator

import (
	"encoding/json"
	"time"

	"telecare-signaling/internal/domain"

	"github.com/google/uuid"
)

// Outbound event names. Inbound names live with the transport handler; these
// are the events the coordinator itself emits.
const (
	EventDoctorStatusChanged = "doctor_status_changed"
	EventDoctorDirectory     = "doctor_directory"

	EventJoinQueue  = "join_queue"
	EventLeaveQueue = "leave_queue"

	EventIncomingCall = "incoming_call"
	EventCallAccepted = "call_accepted"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
	EventWebRTCSignal = "webrtc-signal"

	EventUserJoinedConsultation = "user_joined_consultation"
	EventUserLeftConsultation   = "user_left_consultation"
	EventConsultationMessage    = "consultation_message"
)

// DoctorStatusChangedPayload is broadcast to every connection on any
// presence change.
type DoctorStatusChangedPayload struct {
	DoctorID    string    `json:"doctorId"`
	Status      string    `json:"status"`
	IsAvailable bool      `json:"isAvailable"`
	Speciality  string    `json:"speciality,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DoctorDirectoryPayload seeds a newly registered patient connection with the
// current presence snapshot.
type DoctorDirectoryPayload struct {
	Doctors []domain.DoctorPresence `json:"doctors"`
}

// QueueNotice is relayed verbatim from a patient connection to the target
// doctor's connection.
type QueueNotice struct {
	DoctorID    string `json:"doctorId"`
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName,omitempty"`
	Symptoms    string `json:"symptoms,omitempty"`
}

// IncomingCallPayload notifies the callee of a new ringing call. Metadata is
// an opaque negotiation bootstrap blob; the coordinator never inspects it.
type IncomingCallPayload struct {
	CallID   uuid.UUID       `json:"callId"`
	From     string          `json:"from"`
	FromName string          `json:"fromName,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// CallLifecyclePayload carries accept/reject/end notifications.
type CallLifecyclePayload struct {
	CallID uuid.UUID `json:"callId"`
}

// SignalPayload forwards an opaque negotiation blob between the two parties
// of an active call.
type SignalPayload struct {
	To     string          `json:"to"`
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

// ConsultationEventPayload carries join/leave notices for a consultation room.
type ConsultationEventPayload struct {
	ConsultationID string      `json:"consultationId"`
	UserID         string      `json:"userId"`
	Role           domain.Role `json:"role"`
	Timestamp      time.Time   `json:"timestamp"`
}

// ConsultationMessagePayload broadcasts a side-channel message to the other
// room participants. Message contents are opaque to the coordinator.
type ConsultationMessagePayload struct {
	ConsultationID string          `json:"consultationId"`
	From           string          `json:"from"`
	Message        json.RawMessage `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
}
