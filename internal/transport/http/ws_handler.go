package http

import (
	"encoding/json"
	"net/http"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams room events to a websocket and accepts answers on the same connection.
type WSHandler struct {
	service  *app.ArenaService
	limiters *limiterSet
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ArenaService, limiters *limiterSet, logger *zap.Logger, checkOrigin func(r *http.Request) bool) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WSHandler{
		service:  service,
		limiters: limiters,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the request and wires the connection into the room's event feed.
// The caller identity has already been verified by RequireIdentity.
func (h *WSHandler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	code := domain.NormalizeCode(c.Param("code"))
	caller := identityFrom(c)

	v, err := h.service.ValidateRoom(ctx, code)
	if err != nil {
		writeError(c, err)
		return
	}
	if !v.Valid && v.Reason == domain.ReasonNotFound {
		writeError(c, domain.ErrRoomNotFound)
		return
	}

	events, cancel, err := h.service.Subscribe(ctx, code)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.String("room", code), zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// the writer goroutine is the only one touching conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", zap.String("room", code), zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "event", Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "room", Payload: v}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		send <- h.handleInbound(c, code, caller, inbound)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleInbound(c *gin.Context, code string, caller domain.Identity, inbound inboundMessage) outboundMessage {
	ctx := c.Request.Context()
	switch inbound.Type {
	case "answer":
		if !h.limiters.Allow(caller.PlayerID) {
			return outboundMessage{Type: "error", Payload: errorBody{Code: "rate_limited", Message: "too many answers, slow down"}}
		}
		var req answerRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil {
			return errorMessage(domain.ErrInvalidInput)
		}
		sub, err := req.toSubmission()
		if err != nil {
			return errorMessage(err)
		}
		result, err := h.service.SubmitAnswer(ctx, code, caller, sub)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: "answerResult", Payload: result}
	case "advance":
		var req advanceRequest
		if err := json.Unmarshal(inbound.Payload, &req); err != nil {
			return errorMessage(domain.ErrInvalidInput)
		}
		action, err := domain.ParseAction(req.Action)
		if err != nil {
			return errorMessage(err)
		}
		transition, err := h.service.AdvanceRoom(ctx, code, caller, action, req.ExpectedIndex)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage{Type: "transition", Payload: transition}
	default:
		return outboundMessage{Type: "error", Payload: errorBody{Code: "invalid_input", Message: "unsupported message type"}}
	}
}

func errorMessage(err error) outboundMessage {
	_, code := classify(err)
	return outboundMessage{Type: "error", Payload: errorBody{Code: code, Message: err.Error()}}
}
