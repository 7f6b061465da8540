package coordinator

import (
	"encoding/json"
	"sync"
	"time"

	"telecare-signaling/internal/domain"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pairKey is the unordered pair of participant identities. At most one
// non-terminal session exists per pair at a time.
type pairKey struct {
	low, high string
}

func makePair(a, b string) pairKey {
	if a < b {
		return pairKey{low: a, high: b}
	}
	return pairKey{low: b, high: a}
}

// CallMachine drives the call-setup protocol per (caller, callee) pair:
// initiate moves a pair from idle to ringing, accept to active, and
// reject/end/disconnect to a terminal state. Terminal sessions are dropped
// from the active table immediately, so any lookup miss is an invalid-state
// condition rather than a not-found one.
type CallMachine struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.CallSession
	byPair   map[pairKey]uuid.UUID

	registry *Registry
	presence *PresenceTracker
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewCallMachine creates a call machine over the given registry and
// presence tracker
func NewCallMachine(registry *Registry, presence *PresenceTracker, m *metrics.Metrics, log *zap.Logger) *CallMachine {
	return &CallMachine{
		sessions: make(map[uuid.UUID]*domain.CallSession),
		byPair:   make(map[pairKey]uuid.UUID),
		registry: registry,
		presence: presence,
		metrics:  m,
		log:      log,
	}
}

// Initiate creates a ringing session between caller and callee and delivers
// an incoming_call notice to the callee. Unlike the best-effort queue relay,
// an unreachable callee is an explicit error back to the caller: a call
// attempt has user-visible stakes.
func (cm *CallMachine) Initiate(callerID, calleeID string, metadata json.RawMessage) (*domain.CallSession, error) {
	if callerID == calleeID {
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeInvalidInput))
		return nil, pkgerrors.InvalidInputError("caller and callee must differ")
	}

	callee, ok := cm.registry.Lookup(calleeID)
	if !ok {
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeCalleeUnreachable))
		return nil, pkgerrors.CalleeUnreachableError(calleeID)
	}

	var callerName string
	callerRole := domain.Role("")
	if caller, ok := cm.registry.Lookup(callerID); ok {
		callerName = caller.DisplayName
		callerRole = caller.Role
	}

	cm.mu.Lock()
	pair := makePair(callerID, calleeID)
	if _, exists := cm.byPair[pair]; exists {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeAlreadyInCall))
		return nil, pkgerrors.AlreadyInCallError("a call between these parties is already in progress")
	}

	session := &domain.CallSession{
		CallID:     uuid.New(),
		CallerID:   callerID,
		CalleeID:   calleeID,
		CallerRole: callerRole,
		CalleeRole: callee.Role,
		State:      domain.CallStateRinging,
		StartedAt:  time.Now().UTC(),
	}
	cm.sessions[session.CallID] = session
	cm.byPair[pair] = session.CallID
	active := len(cm.sessions)
	result := *session
	cm.mu.Unlock()

	cm.metrics.SetActiveCalls(active)
	cm.sendTo(calleeID, EventIncomingCall, IncomingCallPayload{
		CallID:   session.CallID,
		From:     callerID,
		FromName: callerName,
		Metadata: metadata,
	})

	cm.log.Info("call initiated",
		zap.String("call_id", session.CallID.String()),
		zap.String("caller_id", callerID),
		zap.String("callee_id", calleeID))

	return &result, nil
}

// Accept transitions a ringing session to active, marks the doctor side
// busy, and notifies both parties.
func (cm *CallMachine) Accept(callID uuid.UUID, accepterID string) error {
	cm.mu.Lock()
	session, ok := cm.sessions[callID]
	if !ok {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeInvalidState))
		return pkgerrors.InvalidStateError("no ringing call with this id")
	}
	if accepterID != session.CalleeID {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeNotParticipant))
		return pkgerrors.NotParticipantError("only the callee may accept this call")
	}
	if session.State != domain.CallStateRinging {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeInvalidState))
		return pkgerrors.InvalidStateError("call is not ringing")
	}
	session.State = domain.CallStateActive
	doctorID := cm.doctorSide(session)
	callerID, calleeID := session.CallerID, session.CalleeID
	cm.mu.Unlock()

	if doctorID != "" {
		cm.presence.MarkBusy(doctorID)
	}

	payload := CallLifecyclePayload{CallID: callID}
	cm.sendTo(callerID, EventCallAccepted, payload)
	cm.sendTo(calleeID, EventCallAccepted, payload)

	cm.log.Info("call accepted", zap.String("call_id", callID.String()))
	return nil
}

// Reject declines a ringing session: the session becomes terminal, is
// dropped from the active table, and the caller is notified.
func (cm *CallMachine) Reject(callID uuid.UUID, rejecterID string) error {
	cm.mu.Lock()
	session, ok := cm.sessions[callID]
	if !ok {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeInvalidState))
		return pkgerrors.InvalidStateError("no ringing call with this id")
	}
	if rejecterID != session.CalleeID {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeNotParticipant))
		return pkgerrors.NotParticipantError("only the callee may reject this call")
	}
	if session.State != domain.CallStateRinging {
		cm.mu.Unlock()
		cm.metrics.RecordCallFailure(string(pkgerrors.ErrCodeInvalidState))
		return pkgerrors.InvalidStateError("call is not ringing")
	}
	cm.finishLocked(session, domain.CallStateRejected)
	callerID := session.CallerID
	active := len(cm.sessions)
	cm.mu.Unlock()

	cm.metrics.SetActiveCalls(active)
	cm.metrics.RecordCallOutcome(string(domain.CallStateRejected))
	cm.sendTo(callerID, EventCallRejected, CallLifecyclePayload{CallID: callID})

	cm.log.Info("call rejected", zap.String("call_id", callID.String()))
	return nil
}

// RelaySignal forwards an opaque negotiation payload between the two parties
// of the active session for this pair. The payload is never inspected.
// Protocol violations raise; a delivery failure on a valid relay is logged
// and dropped, matching the fire-and-forget nature of the channel.
func (cm *CallMachine) RelaySignal(fromID, toID string, signal json.RawMessage) error {
	cm.mu.Lock()
	callID, ok := cm.byPair[makePair(fromID, toID)]
	if !ok {
		cm.mu.Unlock()
		return pkgerrors.InvalidStateError("no active call between these parties")
	}
	session := cm.sessions[callID]
	if session.State != domain.CallStateActive {
		cm.mu.Unlock()
		return pkgerrors.InvalidStateError("call is not active")
	}
	if _, participant := session.OtherParty(fromID); !participant {
		cm.mu.Unlock()
		return pkgerrors.NotParticipantError("sender is not a party to this call")
	}
	cm.mu.Unlock()

	cm.metrics.RecordSignalRelayed()
	cm.sendTo(toID, EventWebRTCSignal, SignalPayload{
		To:     toID,
		From:   fromID,
		Signal: signal,
	})
	return nil
}

// End terminates a session from ringing or active. The remaining party is
// notified and the doctor's presence reverts from busy to its prior value.
func (cm *CallMachine) End(callID uuid.UUID, enderID string) error {
	cm.mu.Lock()
	session, ok := cm.sessions[callID]
	if !ok {
		cm.mu.Unlock()
		return pkgerrors.InvalidStateError("no call with this id")
	}
	other, participant := session.OtherParty(enderID)
	if !participant {
		cm.mu.Unlock()
		return pkgerrors.NotParticipantError("ender is not a party to this call")
	}
	wasActive := session.State == domain.CallStateActive
	cm.finishLocked(session, domain.CallStateEnded)
	doctorID := cm.doctorSide(session)
	startedAt := session.StartedAt
	active := len(cm.sessions)
	cm.mu.Unlock()

	cm.afterEnd(callID, doctorID, other, wasActive, startedAt, active)
	cm.log.Info("call ended",
		zap.String("call_id", callID.String()),
		zap.String("ended_by", enderID))
	return nil
}

// EndBetween terminates the active session for a pair, addressed by peer
// identity rather than call ID (the webrtc-end surface).
func (cm *CallMachine) EndBetween(fromID, toID string) error {
	cm.mu.Lock()
	callID, ok := cm.byPair[makePair(fromID, toID)]
	cm.mu.Unlock()
	if !ok {
		return pkgerrors.InvalidStateError("no active call between these parties")
	}
	return cm.End(callID, fromID)
}

// HandleDisconnect force-ends every non-terminal session involving userID.
// This is the only path where a session ends on behalf of a third party (the
// registry); cleanup never raises and notifies the remaining party exactly
// once per session.
func (cm *CallMachine) HandleDisconnect(userID string) {
	type endedCall struct {
		callID    uuid.UUID
		doctorID  string
		remaining string
		wasActive bool
		startedAt time.Time
	}

	cm.mu.Lock()
	var ended []endedCall
	for _, session := range cm.sessions {
		remaining, participant := session.OtherParty(userID)
		if !participant {
			continue
		}
		ended = append(ended, endedCall{
			callID:    session.CallID,
			doctorID:  cm.doctorSide(session),
			remaining: remaining,
			wasActive: session.State == domain.CallStateActive,
			startedAt: session.StartedAt,
		})
		cm.finishLocked(session, domain.CallStateEnded)
	}
	active := len(cm.sessions)
	cm.mu.Unlock()

	for _, e := range ended {
		cm.afterEnd(e.callID, e.doctorID, e.remaining, e.wasActive, e.startedAt, active)
		cm.log.Info("call ended by disconnect",
			zap.String("call_id", e.callID.String()),
			zap.String("disconnected", userID))
	}
}

// Session returns a copy of the non-terminal session with the given id
func (cm *CallMachine) Session(callID uuid.UUID) (domain.CallSession, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	session, ok := cm.sessions[callID]
	if !ok {
		return domain.CallSession{}, false
	}
	return *session, true
}

// ActiveCount returns the number of non-terminal sessions
func (cm *CallMachine) ActiveCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.sessions)
}

// finishLocked moves a session to a terminal state and drops it from the
// active tables. Callers hold cm.mu.
func (cm *CallMachine) finishLocked(session *domain.CallSession, state domain.CallState) {
	now := time.Now().UTC()
	session.State = state
	session.EndedAt = &now
	delete(cm.sessions, session.CallID)
	delete(cm.byPair, makePair(session.CallerID, session.CalleeID))
}

// afterEnd applies the post-terminal side effects of an ended session
func (cm *CallMachine) afterEnd(callID uuid.UUID, doctorID, remaining string, wasActive bool, startedAt time.Time, active int) {
	cm.metrics.SetActiveCalls(active)
	cm.metrics.RecordCallOutcome(string(domain.CallStateEnded))
	if wasActive {
		cm.metrics.RecordCallDuration(time.Since(startedAt))
		if doctorID != "" {
			cm.presence.RestoreFromBusy(doctorID)
		}
	}
	cm.sendTo(remaining, EventCallEnded, CallLifecyclePayload{CallID: callID})
}

// doctorSide returns the doctor participant of a session, or empty when
// neither side registered as a doctor
func (cm *CallMachine) doctorSide(session *domain.CallSession) string {
	if session.CallerRole == domain.RoleDoctor {
		return session.CallerID
	}
	if session.CalleeRole == domain.RoleDoctor {
		return session.CalleeID
	}
	return ""
}

// sendTo delivers an event to a user's current connection, resolving the
// target through the registry at send time so stale handles are never used
func (cm *CallMachine) sendTo(userID, event string, payload interface{}) {
	entry, ok := cm.registry.Lookup(userID)
	if !ok {
		cm.log.Debug("signaling notice dropped, target unreachable",
			zap.String("event", event),
			zap.String("user_id", userID))
		return
	}
	msg, err := encodeEnvelope(event, payload)
	if err != nil {
		cm.log.Error("failed to encode signaling notice", zap.Error(err))
		return
	}
	if !entry.Conn.Send(msg) {
		cm.log.Warn("signaling notice dropped, send buffer full",
			zap.String("event", event),
			zap.String("user_id", userID))
	}
}
