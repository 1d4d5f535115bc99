package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/signaling-coordinator/modules/broadcast"
	"github.com/example/signaling-coordinator/modules/coordinator"
)

// Inbound message types.
const (
	TypeRegister        = "register"
	TypeCreateChannel   = "create-channel"
	TypeJoinChannel     = "join-channel"
	TypeLeaveChannel    = "leave-channel"
	TypeOffer           = "offer"
	TypeAnswer          = "answer"
	TypeICECandidate    = "ice-candidate"
	TypePrivateMessage  = "private-message"
	TypeTypingStart     = "typing-start"
	TypeTypingStop      = "typing-stop"
	TypeGetPrivate      = "get-private-messages"
	TypeGetParticipants = "get-participants"
	TypeGetChannels     = "get-channels"
	TypeGetStats        = "get-stats"
	TypeChannelMessage  = "channel-message"
	TypeEmergency       = "emergency-message"
	TypePing            = "ping"
)

// Frame-level errors answered on the connection.
var (
	ErrInvalidFrame   = errors.New("invalid message format")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownType    = errors.New("unknown message type")
	ErrRateLimited    = errors.New("rate limit exceeded, please slow down")
)

// Coordinator is the command surface the websocket handlers drive.
type Coordinator interface {
	Register(connID string, req coordinator.RegisterRequest)
	CreateChannel(connID string, req coordinator.CreateChannelRequest)
	JoinChannel(connID string, req coordinator.JoinChannelRequest)
	LeaveChannel(connID string)
	Relay(connID string, kind coordinator.SignalKind, req coordinator.SignalRequest)
	ChannelMessage(connID string, req coordinator.SignalRequest)
	Emergency(connID string, req coordinator.EmergencyRequest)
	SendPrivate(connID string, req coordinator.PrivateMessageRequest)
	Typing(connID string, req coordinator.TypingRequest, typing bool)
	RequestHistory(connID string, req coordinator.HistoryRequest)
	RequestSnapshot(connID string, kind coordinator.SnapshotKind)
	Ping(connID string)
	Reject(connID string, err error)
	Disconnect(connID string)
}

var _ Coordinator = (*coordinator.Engine)(nil)

// RateConfig bounds the inbound frame rate of one connection.
type RateConfig struct {
	PerSecond float64
	Burst     int
}

// registerPayload accepts joinedAt as RFC 3339 text or epoch milliseconds.
type registerPayload struct {
	Identity string          `json:"identity"`
	JoinedAt json.RawMessage `json:"joinedAt,omitempty"`
}

// Handlers contains HTTP and WebSocket handlers.
type Handlers struct {
	coordinator Coordinator
	hub         *broadcast.Hub
	rate        RateConfig
	logger      types.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(c Coordinator, hub *broadcast.Hub, rc RateConfig, logger types.Logger) *Handlers {
	return &Handlers{
		coordinator: c,
		hub:         hub,
		rate:        rc,
		logger:      logger,
	}
}

// HandleWebSocket runs the read loop of one connection. Every write goes
// through the hub so the connection has a single writer.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	client := h.hub.Register(connID, c)
	limiter := rate.NewLimiter(rate.Limit(h.rate.PerSecond), h.rate.Burst)

	// The connection is recycled once this handler returns, so the writer
	// must be gone first.
	defer func() {
		h.coordinator.Disconnect(connID)
		h.hub.Unregister(connID)
		_ = client.Close()
		<-client.Done()
	}()

	h.logger.Info("WebSocket connected", "connID", connID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", "connID", connID, "error", err)
			}
			break
		}

		if !limiter.Allow() {
			h.coordinator.Reject(connID, ErrRateLimited)
			continue
		}

		var msg broadcast.Envelope
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			h.coordinator.Reject(connID, ErrInvalidFrame)
			continue
		}

		if err := h.handleMessage(connID, msg); err != nil {
			h.coordinator.Reject(connID, err)
		}
	}

	h.logger.Info("WebSocket disconnected", "connID", connID)
}

// handleMessage maps one inbound frame onto a coordinator command.
func (h *Handlers) handleMessage(connID string, msg broadcast.Envelope) error {
	switch msg.Type {
	case TypeRegister:
		var p registerPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		joinedAt, err := parseJoinedAt(p.JoinedAt)
		if err != nil {
			return err
		}
		h.coordinator.Register(connID, coordinator.RegisterRequest{Identity: p.Identity, JoinedAt: joinedAt})

	case TypeCreateChannel:
		var req coordinator.CreateChannelRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.CreateChannel(connID, req)

	case TypeJoinChannel:
		var req coordinator.JoinChannelRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.JoinChannel(connID, req)

	case TypeLeaveChannel:
		h.coordinator.LeaveChannel(connID)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		var req coordinator.SignalRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.Relay(connID, coordinator.SignalKind(msg.Type), req)

	case TypeChannelMessage:
		var req coordinator.SignalRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.ChannelMessage(connID, req)

	case TypePrivateMessage:
		var req coordinator.PrivateMessageRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.SendPrivate(connID, req)

	case TypeTypingStart, TypeTypingStop:
		var req coordinator.TypingRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.Typing(connID, req, msg.Type == TypeTypingStart)

	case TypeGetPrivate:
		var req coordinator.HistoryRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.RequestHistory(connID, req)

	case TypeGetParticipants:
		h.coordinator.RequestSnapshot(connID, coordinator.SnapshotParticipants)
	case TypeGetChannels:
		h.coordinator.RequestSnapshot(connID, coordinator.SnapshotChannels)
	case TypeGetStats:
		h.coordinator.RequestSnapshot(connID, coordinator.SnapshotStats)

	case TypeEmergency:
		var req coordinator.EmergencyRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		h.coordinator.Emergency(connID, req)

	case TypePing:
		h.coordinator.Ping(connID)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}
	return nil
}

// decode unmarshals a payload. An absent payload leaves v at its zero value.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

func parseJoinedAt(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, ErrInvalidPayload
	}
	return t, nil
}

// HealthCheck handles health check requests (GET /health).
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"service":     "signaling-coordinator",
		"connections": h.hub.ClientCount(),
	})
}
