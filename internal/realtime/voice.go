package realtime

import (
	"errors"

	"vox-chat/internal/events"
	voxerrors "vox-chat/pkg/errors"
)

func (r *Router) joinVoice(connID string, c *events.JoinVoice) error {
	if err := r.store.JoinVoice(connID, c.ChannelID); err != nil {
		if errors.Is(err, voxerrors.ErrInOtherVoice) {
			r.channelError(connID, events.CodeVoiceSwitch, err)
			return errors.Join(errSilent, err)
		}
		return err
	}
	r.toAll(events.EventVoiceUsersUpdate, r.store.VoiceUsers())
	r.toVoice(c.ChannelID, connID, events.EventUserJoinedVoice, events.UserPayload{UserID: connID})
	return nil
}

func (r *Router) leaveVoice(connID string, c *events.LeaveVoice) error {
	shareCleared, err := r.store.LeaveVoice(connID, c.ChannelID)
	if err != nil {
		return err
	}
	r.afterVoiceLeave(connID, c.ChannelID, shareCleared)
	return nil
}

func (r *Router) kickUser(connID string, c *events.KickUser) error {
	shareCleared, err := r.store.Kick(connID, c.UserID, c.ChannelID)
	if err != nil {
		return err
	}
	r.toConn(c.UserID, events.EventForceDisconnectVoice, events.ForceDisconnectPayload{ChannelID: c.ChannelID})
	r.afterVoiceLeave(c.UserID, c.ChannelID, shareCleared)
	return nil
}

// afterVoiceLeave broadcasts the deltas of a voice departure and closes the
// leaver's peer sessions.
func (r *Router) afterVoiceLeave(connID, channelID string, shareCleared bool) {
	r.peers.drop(connID)
	if shareCleared {
		r.toAll(events.EventScreenShareStopped, events.ScreenSharePayload{UserID: connID, ChannelID: channelID})
	}
	r.toAll(events.EventVoiceUsersUpdate, r.store.VoiceUsers())
	r.toVoice(channelID, "", events.EventUserLeftVoice, events.UserPayload{UserID: connID})
}

func (r *Router) startShare(connID string, c *events.ScreenShareStart) error {
	if err := r.store.StartShare(connID, c.ChannelID); err != nil {
		return err
	}
	r.toAll(events.EventScreenShareStarted, events.ScreenSharePayload{UserID: connID, ChannelID: c.ChannelID})
	return nil
}

func (r *Router) stopShare(connID string, c *events.ScreenShareStop) error {
	if err := r.store.StopShare(connID, c.ChannelID); err != nil {
		return err
	}
	r.toAll(events.EventScreenShareStopped, events.ScreenSharePayload{UserID: connID, ChannelID: c.ChannelID})
	return nil
}
