package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Service names exposed to dependent modules.
const (
	ServiceListParticipants = "list-participants"
	ServiceListChannels     = "list-channels"
	ServiceChannelMembers   = "channel-members"
	ServiceStats            = "coordinator-stats"
	ServicePrivateHistory   = "private-history"
)

// RegisterServices registers the read-only request-reply services.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceListParticipants,
		json.Unmarshal,
		json.Marshal,
		m.listParticipants,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListParticipants, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceListChannels,
		json.Unmarshal,
		json.Marshal,
		m.listChannels,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListChannels, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceChannelMembers,
		json.Unmarshal,
		json.Marshal,
		m.channelMembers,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceChannelMembers, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceStats,
		json.Unmarshal,
		json.Marshal,
		m.stats,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStats, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServicePrivateHistory,
		json.Unmarshal,
		json.Marshal,
		m.privateHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePrivateHistory, err)
	}

	m.logger.Info("Registered coordinator services",
		"services", []string{ServiceListParticipants, ServiceListChannels, ServiceChannelMembers, ServiceStats, ServicePrivateHistory})
	return nil
}

func (m *Module) listParticipants(ctx context.Context, _ ListParticipantsRequest, _ *mono.Msg) (ListParticipantsResponse, error) {
	participants, err := m.engine.Participants(ctx)
	if err != nil {
		return ListParticipantsResponse{}, err
	}
	return ListParticipantsResponse{Participants: participants}, nil
}

func (m *Module) listChannels(ctx context.Context, _ ListChannelsRequest, _ *mono.Msg) (ListChannelsResponse, error) {
	channels, stats, err := m.engine.Channels(ctx)
	if err != nil {
		return ListChannelsResponse{}, err
	}
	return ListChannelsResponse{Channels: channels, Stats: stats}, nil
}

func (m *Module) channelMembers(ctx context.Context, req ChannelMembersRequest, _ *mono.Msg) (ChannelMembersResponse, error) {
	members, found, err := m.engine.Members(ctx, req.ChannelID)
	if err != nil {
		return ChannelMembersResponse{}, err
	}
	if !found {
		return ChannelMembersResponse{Found: false}, nil
	}
	return ChannelMembersResponse{Found: true, Members: members}, nil
}

func (m *Module) stats(ctx context.Context, _ StatsRequest, _ *mono.Msg) (Stats, error) {
	return m.engine.Stats(ctx)
}

func (m *Module) privateHistory(ctx context.Context, req PrivateHistoryRequest, _ *mono.Msg) (PrivateHistoryResponse, error) {
	if req.A == "" || req.B == "" {
		return PrivateHistoryResponse{}, ErrRecipientEmpty
	}
	messages, err := m.engine.History(ctx, req.A, req.B, req.Limit)
	if err != nil {
		return PrivateHistoryResponse{}, err
	}
	return PrivateHistoryResponse{Messages: messages}, nil
}
