package realtime

import (
	"context"
	"strings"

	"vox-chat/internal/domain"
	"vox-chat/internal/events"
	"vox-chat/internal/session"
)

func (r *Router) createChannel(connID string, c *events.CreateChannel) error {
	ch, err := r.store.CreateChannel(connID, c.Name, c.Type)
	if err != nil {
		return err
	}
	r.enqueue("save_channel", func(ctx context.Context, p Persistence) error {
		return p.SaveChannel(ctx, ch)
	})
	r.toAll(events.EventChannelsUpdated, r.store.Channels())
	return nil
}

func (r *Router) updateChannel(connID string, c *events.UpdateChannel) error {
	ch, err := r.store.UpdateChannel(connID, c.ID, session.ChannelUpdate{Name: c.Name, Type: c.Type})
	if err != nil {
		return err
	}
	r.enqueue("save_channel", func(ctx context.Context, p Persistence) error {
		return p.SaveChannel(ctx, ch)
	})
	r.toAll(events.EventChannelsUpdated, r.store.Channels())
	return nil
}

// deleteChannel removes the channel together with its messages, its voice
// room and any screen share running in it. Former voice members are told to
// tear down their voice session.
func (r *Router) deleteChannel(connID string, c *events.DeleteChannel) error {
	removal, err := r.store.DeleteChannel(connID, c.ChannelID)
	if err != nil {
		return err
	}
	id := removal.Channel.ID
	r.enqueue("delete_channel", func(ctx context.Context, p Persistence) error {
		return p.DeleteChannel(ctx, id)
	})

	r.toAll(events.EventChannelsUpdated, r.store.Channels())
	if removal.Channel.Type == domain.ChannelTypeText {
		r.toAll(events.EventMessagesUpdated, r.store.MessagesByChannel())
	}
	if removal.Sharer != "" {
		r.toAll(events.EventScreenShareStopped, events.ScreenSharePayload{UserID: removal.Sharer, ChannelID: id})
	}
	if len(removal.VoiceMembers) > 0 {
		for _, member := range removal.VoiceMembers {
			r.peers.drop(member)
		}
		r.deliver(removal.VoiceMembers, r.encode(events.EventForceDisconnectVoice, events.ForceDisconnectPayload{ChannelID: id}))
		r.toAll(events.EventVoiceUsersUpdate, r.store.VoiceUsers())
	}
	return nil
}

func (r *Router) updateRoles(connID string, c *events.UpdateRoles) error {
	roles, err := r.store.ReplaceRoles(connID, c.Roles)
	if err != nil {
		return r.adminError(connID, err)
	}
	r.enqueue("replace_roles", func(ctx context.Context, p Persistence) error {
		return p.ReplaceRoles(ctx, roles)
	})
	r.toAll(events.EventRolesUpdated, roles)
	return nil
}

func (r *Router) assignRole(connID string, c *events.AssignRole) error {
	name := strings.TrimSpace(c.UserID)
	ids, err := r.store.AssignRoles(connID, name, c.RoleIDs)
	if err != nil {
		return r.adminError(connID, err)
	}
	r.enqueue("set_user_roles", func(ctx context.Context, p Persistence) error {
		return p.SetUserRoles(ctx, name, ids)
	})
	r.toAll(events.EventUserRolesUpdate, r.store.Assignments())
	return nil
}
