package realtime

import (
	"context"
	"net"

	"vox-chat/internal/domain"
	"vox-chat/internal/events"

	"go.uber.org/zap"
)

func (r *Router) onConnect(connID, remoteAddr string) {
	if r.store.HasConnection(connID) {
		return
	}
	room := r.store.AddConnection(connID, remoteAddr)
	r.metrics.ConnectionOpened()

	r.toConn(connID, events.EventInit, r.store.Snapshot())
	r.toAll(events.EventPresenceUpdate, r.store.Presence())

	r.log.Logger.Info("connection registered",
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
		zap.String("room", room),
	)
}

// onDisconnect releases everything the connection owned before any delta is
// broadcast.
func (r *Router) onDisconnect(connID string) {
	d, ok := r.store.RemoveConnection(connID)
	if !ok {
		return
	}
	r.metrics.ConnectionClosed()
	r.peers.drop(connID)

	if d.ShareChannel != "" {
		r.toAll(events.EventScreenShareStopped, events.ScreenSharePayload{UserID: connID, ChannelID: d.ShareChannel})
	}
	for _, ch := range d.LeftVoice {
		r.toVoice(ch, "", events.EventUserLeftVoice, events.UserPayload{UserID: connID})
	}
	if len(d.LeftVoice) > 0 {
		r.toAll(events.EventVoiceUsersUpdate, r.store.VoiceUsers())
	}
	r.toAll(events.EventPresenceUpdate, r.store.Presence())
	if d.Conn.Name != "" {
		r.toAll(events.EventUsernamesUpdate, r.store.Usernames())
	}

	r.log.Logger.Info("connection released",
		zap.String("conn_id", connID),
		zap.String("name", d.Conn.Name),
		zap.Strings("left_voice", d.LeftVoice),
	)
}

func (r *Router) setUsername(connID string, c *events.SetUsername) error {
	change, err := r.store.SetName(connID, c.Name)
	if err != nil {
		return err
	}
	conn, _ := r.store.Connection(connID)
	now := r.timeNow().UTC()

	login := domain.LoginLog{
		ID:        r.newID(),
		Username:  c.Name,
		ConnID:    connID,
		LoginTime: now,
		IPAddress: remoteIP(conn.RemoteAddr),
	}
	r.enqueue("touch_user", func(ctx context.Context, p Persistence) error {
		return p.TouchUser(ctx, login.Username, now)
	})
	r.enqueue("record_login", func(ctx context.Context, p Persistence) error {
		return p.RecordLogin(ctx, login)
	})
	if change.SeededRole != "" {
		roles := []string{change.SeededRole}
		r.enqueue("set_user_roles", func(ctx context.Context, p Persistence) error {
			return p.SetUserRoles(ctx, login.Username, roles)
		})
	}

	r.toAll(events.EventUsernamesUpdate, r.store.Usernames())
	r.toAll(events.EventUserRolesUpdate, r.store.Assignments())
	return nil
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (r *Router) updatePresence(connID string, c *events.UpdatePresence) error {
	if err := r.store.SetPresence(connID, c.Status); err != nil {
		return err
	}
	r.toAll(events.EventPresenceUpdate, r.store.Presence())
	return nil
}

func (r *Router) updateVoiceState(connID string, c *events.UpdateVoiceState) error {
	state, err := r.store.UpdateVoiceState(connID, c.VoiceStatePatch)
	if err != nil {
		return err
	}
	r.toAll(events.EventVoiceStateUpdate, events.VoiceStatePayload{UserID: connID, State: state})
	return nil
}
