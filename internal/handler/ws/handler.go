// Package ws exposes the signaling coordinator over a WebSocket endpoint:
// one upgraded connection per user, JSON event envelopes in both directions.
package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"telecare-signaling/internal/coordinator"
	"telecare-signaling/internal/domain"
	"telecare-signaling/internal/middleware"
	"telecare-signaling/pkg/constants"
	pkgerrors "telecare-signaling/pkg/errors"
	"telecare-signaling/pkg/logger"
	"telecare-signaling/pkg/metrics"
)

// Inbound event names. The webrtc-* pair keeps the dashed spelling the
// browser clients already emit.
const (
	eventRegister           = "register"
	eventUpdateDoctorStatus = "update_doctor_status"
	eventJoinQueue          = "join_queue"
	eventLeaveQueue         = "leave_queue"
	eventInitiateCall       = "initiate_call"
	eventAcceptCall         = "accept_call"
	eventRejectCall         = "reject_call"
	eventWebRTCSignal       = "webrtc-signal"
	eventWebRTCEnd          = "webrtc-end"
	eventJoinConsultation   = "join_consultation"
	eventLeaveConsultation  = "leave_consultation"
	eventConsultationMsg    = "consultation_message"

	eventError = "error"
)

type registerPayload struct {
	Name       string `json:"name,omitempty"`
	Speciality string `json:"speciality,omitempty"`
}

type statusUpdatePayload struct {
	Status      string `json:"status"`
	IsAvailable bool   `json:"isAvailable"`
}

type initiateCallPayload struct {
	To       string          `json:"to"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type callActionPayload struct {
	CallID uuid.UUID `json:"callId"`
}

type signalPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type endPayload struct {
	To string `json:"to"`
}

type consultationPayload struct {
	ConsultationID string          `json:"consultationId"`
	Message        json.RawMessage `json:"message,omitempty"`
}

type errorPayload struct {
	Code    pkgerrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Event   string              `json:"event,omitempty"`
}

// Handler upgrades authenticated HTTP requests to WebSocket connections and
// dispatches inbound events to the coordinator
type Handler struct {
	coordinator *coordinator.Coordinator
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	semaphore   chan struct{}
}

// NewHandler creates a WebSocket handler; maxConnections bounds the number
// of concurrently upgraded connections
func NewHandler(coord *coordinator.Coordinator, m *metrics.Metrics, maxConnections int) *Handler {
	if maxConnections <= 0 {
		maxConnections = constants.DefaultMaxConnections
	}
	allowedOrigins := middleware.AllowedOrigins()
	return &Handler{
		coordinator: coord,
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser client
				}
				return allowedOrigins[origin]
			},
		},
		semaphore: make(chan struct{}, maxConnections),
	}
}

// HandleWebSocket upgrades the request and starts the read/write pumps.
// Identity comes from the auth middleware; the register event only supplies
// profile fields.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("websocket connection rejected, at capacity",
			zap.Int("max_connections", cap(h.semaphore)))
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.releaseSlot()
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &client{
		handler:     h,
		conn:        conn,
		send:        make(chan []byte, constants.SendBufferSize),
		done:        make(chan struct{}),
		userID:      c.GetString("user_id"),
		role:        c.GetString("role"),
		displayName: c.GetString("display_name"),
	}

	h.metrics.ConnectionOpened()
	logger.Info("websocket connection opened",
		zap.String("user_id", client.userID),
		zap.String("role", client.role))

	go client.writePump()
	go client.readPump()
}

func (h *Handler) releaseSlot() {
	<-h.semaphore
}

// dispatch routes one inbound envelope. Events arrive serially per connection
// from the read pump, so registration ordering needs no locking here.
func (h *Handler) dispatch(c *client, raw []byte) {
	var env coordinator.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, "", pkgerrors.InvalidInputError("malformed event envelope"))
		return
	}
	h.metrics.RecordWebSocketMessage(env.Event, "inbound")

	if env.Event != eventRegister && !c.registered {
		h.sendError(c, env.Event, pkgerrors.UnauthorizedError("register before sending signaling events"))
		return
	}

	switch env.Event {
	case eventRegister:
		h.handleRegister(c, env.Data)
	case eventUpdateDoctorStatus:
		h.handleStatusUpdate(c, env.Data)
	case eventJoinQueue:
		h.handleQueue(c, env.Data, true)
	case eventLeaveQueue:
		h.handleQueue(c, env.Data, false)
	case eventInitiateCall:
		h.handleInitiate(c, env.Data)
	case eventAcceptCall:
		h.handleCallAction(c, env.Event, env.Data)
	case eventRejectCall:
		h.handleCallAction(c, env.Event, env.Data)
	case eventWebRTCSignal:
		h.handleSignal(c, env.Data)
	case eventWebRTCEnd:
		h.handleEnd(c, env.Data)
	case eventJoinConsultation:
		h.handleConsultationJoin(c, env.Data)
	case eventLeaveConsultation:
		h.handleConsultationLeave(c, env.Data)
	case eventConsultationMsg:
		h.handleConsultationMessage(c, env.Data)
	default:
		h.metrics.RecordWebSocketError("unknown_event")
		h.sendError(c, env.Event, pkgerrors.InvalidInputError("unknown event: "+env.Event))
	}
}

func (h *Handler) handleRegister(c *client, data json.RawMessage) {
	var payload registerPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			h.sendError(c, eventRegister, pkgerrors.InvalidInputError("malformed register payload"))
			return
		}
	}
	if payload.Name != "" {
		c.displayName = payload.Name
	}

	_, err := h.coordinator.Register(c, c.userID, domain.Role(c.role), c.displayName, payload.Speciality)
	if err != nil {
		h.sendError(c, eventRegister, err)
		return
	}
	c.registered = true
}

func (h *Handler) handleStatusUpdate(c *client, data json.RawMessage) {
	var payload statusUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, eventUpdateDoctorStatus, pkgerrors.InvalidInputError("malformed status payload"))
		return
	}
	status := domain.PresenceStatus(payload.Status)
	if status != domain.StatusOnline && status != domain.StatusOffline && status != domain.StatusBusy {
		h.sendError(c, eventUpdateDoctorStatus, pkgerrors.InvalidInputError("unknown status: "+payload.Status))
		return
	}
	if err := h.coordinator.Presence.SetStatus(c.userID, status, payload.IsAvailable); err != nil {
		h.sendError(c, eventUpdateDoctorStatus, err)
	}
}

func (h *Handler) handleQueue(c *client, data json.RawMessage, join bool) {
	var notice coordinator.QueueNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		h.metrics.RecordWebSocketError("malformed_payload")
		return
	}
	// Queue notices speak for the sending connection.
	notice.PatientID = c.userID
	if notice.PatientName == "" {
		notice.PatientName = c.displayName
	}
	if join {
		h.coordinator.Queue.ForwardJoin(notice)
	} else {
		h.coordinator.Queue.ForwardLeave(notice)
	}
}

func (h *Handler) handleInitiate(c *client, data json.RawMessage) {
	var payload initiateCallPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, eventInitiateCall, pkgerrors.InvalidInputError("malformed call payload"))
		return
	}
	if payload.To == "" {
		h.sendError(c, eventInitiateCall, pkgerrors.MissingFieldError("to"))
		return
	}
	if _, err := h.coordinator.Calls.Initiate(c.userID, payload.To, payload.Metadata); err != nil {
		h.sendError(c, eventInitiateCall, err)
	}
}

func (h *Handler) handleCallAction(c *client, event string, data json.RawMessage) {
	var payload callActionPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.CallID == uuid.Nil {
		h.sendError(c, event, pkgerrors.MissingFieldError("callId"))
		return
	}
	var err error
	if event == eventAcceptCall {
		err = h.coordinator.Calls.Accept(payload.CallID, c.userID)
	} else {
		err = h.coordinator.Calls.Reject(payload.CallID, c.userID)
	}
	if err != nil {
		h.sendError(c, event, err)
	}
}

func (h *Handler) handleSignal(c *client, data json.RawMessage) {
	var payload signalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, eventWebRTCSignal, pkgerrors.InvalidInputError("malformed signal payload"))
		return
	}
	if payload.To == "" {
		h.sendError(c, eventWebRTCSignal, pkgerrors.MissingFieldError("to"))
		return
	}
	if err := h.coordinator.Calls.RelaySignal(c.userID, payload.To, payload.Signal); err != nil {
		h.sendError(c, eventWebRTCSignal, err)
	}
}

func (h *Handler) handleEnd(c *client, data json.RawMessage) {
	var payload endPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.To == "" {
		h.sendError(c, eventWebRTCEnd, pkgerrors.MissingFieldError("to"))
		return
	}
	if err := h.coordinator.Calls.EndBetween(c.userID, payload.To); err != nil {
		h.sendError(c, eventWebRTCEnd, err)
	}
}

func (h *Handler) handleConsultationJoin(c *client, data json.RawMessage) {
	var payload consultationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConsultationID == "" {
		h.sendError(c, eventJoinConsultation, pkgerrors.MissingFieldError("consultationId"))
		return
	}
	if err := h.coordinator.Rooms.Join(payload.ConsultationID, c.userID); err != nil {
		h.sendError(c, eventJoinConsultation, err)
	}
}

func (h *Handler) handleConsultationLeave(c *client, data json.RawMessage) {
	var payload consultationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConsultationID == "" {
		h.sendError(c, eventLeaveConsultation, pkgerrors.MissingFieldError("consultationId"))
		return
	}
	h.coordinator.Rooms.Leave(payload.ConsultationID, c.userID)
}

func (h *Handler) handleConsultationMessage(c *client, data json.RawMessage) {
	var payload consultationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConsultationID == "" {
		h.sendError(c, eventConsultationMsg, pkgerrors.MissingFieldError("consultationId"))
		return
	}
	if err := h.coordinator.Rooms.Relay(payload.ConsultationID, c.userID, payload.Message); err != nil {
		h.sendError(c, eventConsultationMsg, err)
	}
}

// sendError delivers a protocol error back on the same connection. Delivery
// is best-effort like every other outbound path.
func (h *Handler) sendError(c *client, event string, err error) {
	appErr := pkgerrors.GetAppError(err)
	h.metrics.RecordWebSocketError(string(appErr.Code))

	env, encodeErr := json.Marshal(coordinator.Envelope{
		Event: eventError,
		Data:  mustMarshal(errorPayload{Code: appErr.Code, Message: appErr.Message, Event: event}),
	})
	if encodeErr != nil {
		return
	}
	if !c.Send(env) {
		logger.Warn("error notice dropped, send buffer full",
			zap.String("user_id", c.userID),
			zap.String("code", string(appErr.Code)))
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
