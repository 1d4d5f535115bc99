package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/signaling-coordinator/domain/presence"
)

// CoordinatorPort defines the read operations other modules may use.
type CoordinatorPort interface {
	ListParticipants(ctx context.Context) ([]presence.ParticipantEntry, error)
	ListChannels(ctx context.Context) (*ListChannelsResponse, error)
	ChannelMembers(ctx context.Context, channelID string) ([]string, bool, error)
	Stats(ctx context.Context) (*Stats, error)
	PrivateHistory(ctx context.Context, a, b string, limit int) ([]presence.Message, error)
}

// CoordinatorAdapter wraps the coordinator's ServiceContainer.
type CoordinatorAdapter struct {
	container mono.ServiceContainer
}

// Compile-time interface check
var _ CoordinatorPort = (*CoordinatorAdapter)(nil)

// NewCoordinatorAdapter creates a new adapter for coordinator services.
// container is the ServiceContainer received via SetDependencyServiceContainer.
func NewCoordinatorAdapter(container mono.ServiceContainer) *CoordinatorAdapter {
	if container == nil {
		panic("coordinator adapter requires non-nil ServiceContainer")
	}
	return &CoordinatorAdapter{container: container}
}

// ListParticipants returns the participant snapshot.
func (a *CoordinatorAdapter) ListParticipants(ctx context.Context) ([]presence.ParticipantEntry, error) {
	req := ListParticipantsRequest{}
	var resp ListParticipantsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListParticipants,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceListParticipants, err)
	}
	return resp.Participants, nil
}

// ListChannels returns the channel snapshot with member counts.
func (a *CoordinatorAdapter) ListChannels(ctx context.Context) (*ListChannelsResponse, error) {
	req := ListChannelsRequest{}
	var resp ListChannelsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListChannels,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceListChannels, err)
	}
	return &resp, nil
}

// ChannelMembers returns the members of a channel and whether it exists.
func (a *CoordinatorAdapter) ChannelMembers(ctx context.Context, channelID string) ([]string, bool, error) {
	req := ChannelMembersRequest{ChannelID: channelID}
	var resp ChannelMembersResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceChannelMembers,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, false, fmt.Errorf("%s service call failed: %w", ServiceChannelMembers, err)
	}
	return resp.Members, resp.Found, nil
}

// Stats returns a summary of the coordinator state.
func (a *CoordinatorAdapter) Stats(ctx context.Context) (*Stats, error) {
	req := StatsRequest{}
	var resp Stats
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceStats,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceStats, err)
	}
	return &resp, nil
}

// PrivateHistory returns the conversation between x and y, oldest first.
func (a *CoordinatorAdapter) PrivateHistory(ctx context.Context, x, y string, limit int) ([]presence.Message, error) {
	req := PrivateHistoryRequest{A: x, B: y, Limit: limit}
	var resp PrivateHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePrivateHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServicePrivateHistory, err)
	}
	return resp.Messages, nil
}
