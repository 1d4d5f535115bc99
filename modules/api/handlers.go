package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"golang.org/x/sync/singleflight"

	"github.com/example/signaling-coordinator/domain/presence"
	"github.com/example/signaling-coordinator/modules/coordinator"
)

const (
	readTimeout         = 5 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/", m.serviceInfo)
	app.Get("/health", m.healthHandler)
	if m.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.metrics))
	}

	api := app.Group("/api/v1")
	api.Get("/participants", m.listParticipants)
	api.Get("/channels", m.listChannels)
	api.Get("/channels/:id/members", m.channelMembers)
	api.Get("/stats", m.getStats)
	api.Get("/private-messages/:a/:b", m.privateHistory)
}

// coalesce runs fn once for concurrent callers sharing key. The call gets its
// own deadline so one cancelled request does not fail the others.
func coalesce[T any](g *singleflight.Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err, _ := g.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		defer cancel()
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func unavailable(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
		Error:   "coordinator_unavailable",
		Message: err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// serviceInfo handles GET /.
func (m *APIModule) serviceInfo(c *fiber.Ctx) error {
	return c.JSON(ServiceInfo{
		Service: "signaling-coordinator",
		Features: []string{
			"presence",
			"channels",
			"negotiation-relay",
			"private-messages",
			"scheduled-eviction",
		},
		Endpoints: map[string]string{
			"health":           "GET /health",
			"metrics":          "GET /metrics",
			"participants":     "GET /api/v1/participants",
			"channels":         "GET /api/v1/channels",
			"channel_members":  "GET /api/v1/channels/:id/members",
			"stats":            "GET /api/v1/stats",
			"private_messages": "GET /api/v1/private-messages/:a/:b?limit=",
		},
	})
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	details := map[string]any{
		"module": "api",
		"port":   m.port,
	}
	if m.hub != nil {
		details["connected_clients"] = m.hub.ClientCount()
	}
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: details,
	})
}

// listParticipants handles GET /api/v1/participants.
func (m *APIModule) listParticipants(c *fiber.Ctx) error {
	participants, err := coalesce(&m.reads, "participants", m.coordinatorAdapter.ListParticipants)
	if err != nil {
		return unavailable(c, err)
	}
	return c.JSON(ParticipantsResponse{
		Participants: participants,
		Total:        len(participants),
	})
}

// listChannels handles GET /api/v1/channels.
func (m *APIModule) listChannels(c *fiber.Ctx) error {
	resp, err := coalesce(&m.reads, "channels", m.coordinatorAdapter.ListChannels)
	if err != nil {
		return unavailable(c, err)
	}
	return c.JSON(ChannelsResponse{
		Channels: resp.Channels,
		Stats:    resp.Stats,
		Total:    len(resp.Channels),
	})
}

// channelMembers handles GET /api/v1/channels/:id/members.
func (m *APIModule) channelMembers(c *fiber.Ctx) error {
	channelID := c.Params("id")
	if channelID == "" {
		return badRequest(c, "Channel ID is required")
	}

	type result struct {
		members []string
		found   bool
	}
	res, err := coalesce(&m.reads, "members:"+channelID, func(ctx context.Context) (result, error) {
		members, found, err := m.coordinatorAdapter.ChannelMembers(ctx, channelID)
		return result{members: members, found: found}, err
	})
	if err != nil {
		return unavailable(c, err)
	}
	if !res.found {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Channel not found",
		})
	}

	return c.JSON(MembersResponse{
		ChannelID: channelID,
		Members:   res.members,
		Total:     len(res.members),
	})
}

// getStats handles GET /api/v1/stats.
func (m *APIModule) getStats(c *fiber.Ctx) error {
	stats, err := coalesce(&m.reads, "stats", m.coordinatorAdapter.Stats)
	if err != nil {
		return unavailable(c, err)
	}
	return c.JSON(stats)
}

// privateHistory handles GET /api/v1/private-messages/:a/:b.
func (m *APIModule) privateHistory(c *fiber.Ctx) error {
	a, b := c.Params("a"), c.Params("b")
	for _, identity := range []string{a, b} {
		if err := coordinator.ValidateIdentity(identity); err != nil {
			return badRequest(c, err.Error())
		}
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return badRequest(c, "limit must be positive")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	key := fmt.Sprintf("history:%s\x1f%s\x1f%d", a, b, limit)
	messages, err := coalesce(&m.reads, key, func(ctx context.Context) ([]presence.Message, error) {
		return m.coordinatorAdapter.PrivateHistory(ctx, a, b, limit)
	})
	if err != nil {
		return unavailable(c, err)
	}

	return c.JSON(HistoryResponse{
		Participants: [2]string{a, b},
		Messages:     messages,
		Total:        len(messages),
	})
}
