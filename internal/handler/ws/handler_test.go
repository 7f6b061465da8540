package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telecare-signaling/internal/coordinator"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/logger"
	"telecare-signaling/pkg/metrics"
)

func init() {
	// The handler logs through the package-global logger.
	logger.Log = zap.NewNop()
	logger.Sugar = logger.Log.Sugar()
}

func newTestHandler() *Handler {
	m := metrics.NewMetrics("test")
	coord := coordinator.New(coordinator.Options{RoomCapacity: 4}, m, zap.NewNop())
	return NewHandler(coord, m, 10)
}

func newTestClient(h *Handler, userID, role string) *client {
	return &client{
		handler:     h,
		send:        make(chan []byte, 16),
		done:        make(chan struct{}),
		userID:      userID,
		role:        role,
		displayName: userID,
	}
}

// drain decodes everything queued on the client's send buffer
func drain(t *testing.T, c *client) []coordinator.Envelope {
	t.Helper()
	var out []coordinator.Envelope
	for {
		select {
		case msg := <-c.send:
			var env coordinator.Envelope
			require.NoError(t, json.Unmarshal(msg, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func event(raw string) []byte {
	return []byte(raw)
}

func TestDispatchRequiresRegistration(t *testing.T) {
	h := newTestHandler()
	c := newTestClient(h, "pat-1", "patient")

	h.dispatch(c, event(`{"event":"initiate_call","data":{"to":"doc-1"}}`))

	envs := drain(t, c)
	require.Len(t, envs, 1)
	assert.Equal(t, eventError, envs[0].Event)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &payload))
	assert.Equal(t, pkgerrors.ErrCodeUnauthorized, payload.Code)
}

func TestDispatchRegisterThenInitiateUnreachable(t *testing.T) {
	h := newTestHandler()
	c := newTestClient(h, "pat-1", "patient")

	h.dispatch(c, event(`{"event":"register","data":{"name":"Alice"}}`))
	assert.True(t, c.registered)

	// A patient gets the doctor directory on registration.
	envs := drain(t, c)
	require.Len(t, envs, 1)
	assert.Equal(t, coordinator.EventDoctorDirectory, envs[0].Event)

	h.dispatch(c, event(`{"event":"initiate_call","data":{"to":"doc-1"}}`))

	envs = drain(t, c)
	require.Len(t, envs, 1)
	assert.Equal(t, eventError, envs[0].Event)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &payload))
	assert.Equal(t, pkgerrors.ErrCodeCalleeUnreachable, payload.Code)
	assert.Equal(t, eventInitiateCall, payload.Event)
}

func TestDispatchDoctorRegistration(t *testing.T) {
	h := newTestHandler()
	doc := newTestClient(h, "doc-1", "doctor")

	h.dispatch(doc, event(`{"event":"register","data":{"name":"Dr. Bob","speciality":"cardiology"}}`))
	require.True(t, doc.registered)

	// The registering doctor receives their own status broadcast.
	envs := drain(t, doc)
	require.Len(t, envs, 1)
	assert.Equal(t, coordinator.EventDoctorStatusChanged, envs[0].Event)

	snapshot := h.coordinator.Presence.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "cardiology", snapshot[0].Speciality)
}

func TestDispatchMalformedEnvelope(t *testing.T) {
	h := newTestHandler()
	c := newTestClient(h, "pat-1", "patient")

	h.dispatch(c, event(`not json`))

	envs := drain(t, c)
	require.Len(t, envs, 1)
	assert.Equal(t, eventError, envs[0].Event)
}

func TestDispatchUnknownEvent(t *testing.T) {
	h := newTestHandler()
	c := newTestClient(h, "pat-1", "patient")
	h.dispatch(c, event(`{"event":"register"}`))
	drain(t, c)

	h.dispatch(c, event(`{"event":"teleport","data":{}}`))

	envs := drain(t, c)
	require.Len(t, envs, 1)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &payload))
	assert.Equal(t, pkgerrors.ErrCodeInvalidInput, payload.Code)
}

func TestDispatchStatusUpdateValidation(t *testing.T) {
	h := newTestHandler()
	doc := newTestClient(h, "doc-1", "doctor")
	h.dispatch(doc, event(`{"event":"register"}`))
	drain(t, doc)

	h.dispatch(doc, event(`{"event":"update_doctor_status","data":{"status":"asleep"}}`))

	envs := drain(t, doc)
	require.Len(t, envs, 1)
	assert.Equal(t, eventError, envs[0].Event)
}

func TestDispatchQueueNoticeStampsSender(t *testing.T) {
	h := newTestHandler()
	doc := newTestClient(h, "doc-1", "doctor")
	pat := newTestClient(h, "pat-1", "patient")
	h.dispatch(doc, event(`{"event":"register"}`))
	h.dispatch(pat, event(`{"event":"register","data":{"name":"Alice"}}`))
	drain(t, doc)
	drain(t, pat)

	// The sender cannot impersonate another patient.
	h.dispatch(pat, event(`{"event":"join_queue","data":{"doctorId":"doc-1","patientId":"someone-else","symptoms":"cough"}}`))

	envs := drain(t, doc)
	require.Len(t, envs, 1)
	assert.Equal(t, coordinator.EventJoinQueue, envs[0].Event)

	var notice coordinator.QueueNotice
	require.NoError(t, json.Unmarshal(envs[0].Data, &notice))
	assert.Equal(t, "pat-1", notice.PatientID)
	assert.Equal(t, "Alice", notice.PatientName)
	assert.Equal(t, "cough", notice.Symptoms)
}

func TestDispatchFullCallFlow(t *testing.T) {
	h := newTestHandler()
	doc := newTestClient(h, "doc-1", "doctor")
	pat := newTestClient(h, "pat-1", "patient")
	h.dispatch(doc, event(`{"event":"register"}`))
	h.dispatch(pat, event(`{"event":"register"}`))
	drain(t, doc)
	drain(t, pat)

	h.dispatch(pat, event(`{"event":"initiate_call","data":{"to":"doc-1","metadata":{"sdp":"offer"}}}`))

	envs := drain(t, doc)
	require.Len(t, envs, 1)
	require.Equal(t, coordinator.EventIncomingCall, envs[0].Event)

	var incoming coordinator.IncomingCallPayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &incoming))

	accept, _ := json.Marshal(coordinator.Envelope{
		Event: eventAcceptCall,
		Data:  json.RawMessage(`{"callId":"` + incoming.CallID.String() + `"}`),
	})
	h.dispatch(doc, accept)

	assert.Len(t, drain(t, pat), 2) // doctor busy broadcast + call_accepted

	h.dispatch(pat, event(`{"event":"webrtc-signal","data":{"to":"doc-1","signal":{"c":"x"}}}`))
	envs = drain(t, doc)
	found := false
	for _, env := range envs {
		if env.Event == coordinator.EventWebRTCSignal {
			found = true
		}
	}
	assert.True(t, found)

	h.dispatch(doc, event(`{"event":"webrtc-end","data":{"to":"pat-1"}}`))
	envs = drain(t, pat)
	found = false
	for _, env := range envs {
		if env.Event == coordinator.EventCallEnded {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, 0, h.coordinator.Calls.ActiveCount())
}
