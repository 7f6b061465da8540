package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallState is the signaling state of a call session
type CallState string

const (
	CallStateRinging  CallState = "ringing"
	CallStateActive   CallState = "active"
	CallStateEnded    CallState = "ended"
	CallStateRejected CallState = "rejected"
)

// Terminal reports whether the state admits no further transitions
func (s CallState) Terminal() bool {
	return s == CallStateEnded || s == CallStateRejected
}

// CallSession is the signaling-layer record of one call attempt between two
// identities. The call ID is immutable once assigned; at most one non-terminal
// session exists per unordered pair of participants.
type CallSession struct {
	CallID     uuid.UUID  `json:"call_id"`
	CallerID   string     `json:"caller_id"`
	CalleeID   string     `json:"callee_id"`
	CallerRole Role       `json:"caller_role"`
	CalleeRole Role       `json:"callee_role"`
	State      CallState  `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// OtherParty returns the session participant that is not userID,
// and false if userID is not a participant at all.
func (c *CallSession) OtherParty(userID string) (string, bool) {
	switch userID {
	case c.CallerID:
		return c.CalleeID, true
	case c.CalleeID:
		return c.CallerID, true
	}
	return "", false
}
