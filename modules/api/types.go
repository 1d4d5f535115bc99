package api

import (
	"github.com/example/signaling-coordinator/domain/presence"
)

// ParticipantsResponse is the body of GET /api/v1/participants.
type ParticipantsResponse struct {
	Participants []presence.ParticipantEntry `json:"participants"`
	Total        int                         `json:"total"`
}

// ChannelsResponse is the body of GET /api/v1/channels.
type ChannelsResponse struct {
	Channels []presence.ChannelEntry `json:"channels"`
	Stats    presence.ChannelStats   `json:"stats"`
	Total    int                     `json:"total"`
}

// MembersResponse is the body of GET /api/v1/channels/:id/members.
type MembersResponse struct {
	ChannelID string   `json:"channelId"`
	Members   []string `json:"members"`
	Total     int      `json:"total"`
}

// HistoryResponse is the body of GET /api/v1/private-messages/:a/:b.
type HistoryResponse struct {
	Participants [2]string          `json:"participants"`
	Messages     []presence.Message `json:"messages"`
	Total        int                `json:"total"`
}

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Service   string            `json:"service"`
	Features  []string          `json:"features"`
	Endpoints map[string]string `json:"endpoints"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
