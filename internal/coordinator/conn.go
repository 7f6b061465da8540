package coordinator

import (
	"encoding/json"
)

// Conn is the transport-side handle for one live connection. Implementations
// enqueue onto a bounded per-connection buffer; Send never blocks and reports
// whether the message was accepted. The coordinator treats a false return as
// a delivery failure to log, never as an error to raise.
type Conn interface {
	Send(msg []byte) bool
}

// Envelope is the wire framing for every coordinator event, in both
// directions: an event name plus an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEnvelope marshals an outbound event. Payloads are coordinator-owned
// structs, so a marshal failure is a programming error surfaced to the
// caller's log, never to the remote peer.
func encodeEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
