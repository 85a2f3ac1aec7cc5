package realtime

import (
	"errors"

	"vox-chat/internal/events"
	"vox-chat/internal/session"
	voxerrors "vox-chat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newLoginID() string { return uuid.NewString() }

func (r *Router) encode(event string, data any) []byte {
	frame, err := events.Encode(event, data)
	if err != nil {
		r.log.Logger.Error("encode outbound event", zap.String("event", event), zap.Error(err))
		return nil
	}
	return frame
}

func (r *Router) deliver(ids []string, frame []byte) {
	if frame == nil {
		return
	}
	for _, id := range ids {
		r.sender.Send(id, frame)
	}
}

func (r *Router) toConn(connID, event string, data any) {
	r.deliver([]string{connID}, r.encode(event, data))
}

func (r *Router) toAll(event string, data any) {
	r.deliver(r.store.ConnectionIDs(), r.encode(event, data))
}

// toRoom sends to a channel's message room, minus except.
func (r *Router) toRoom(channelID, except, event string, data any) {
	r.deliver(without(r.store.RoomMembers(channelID), except), r.encode(event, data))
}

// toVoice sends to the members of a voice channel, minus except.
func (r *Router) toVoice(channelID, except, event string, data any) {
	r.deliver(without(r.store.VoiceMembers(channelID), except), r.encode(event, data))
}

func without(ids []string, except string) []string {
	if except == "" {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

func (r *Router) channelError(connID, code string, err error) {
	r.toConn(connID, events.EventChannelError, events.ChannelErrorPayload{Code: code, Message: errorMessage(err)})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, voxerrors.ErrLastAdministrator):
		return voxerrors.ErrLastAdministrator.Error()
	case errors.Is(err, voxerrors.ErrAdministratorRole):
		return voxerrors.ErrAdministratorRole.Error()
	case errors.Is(err, voxerrors.ErrInOtherVoice):
		return "leave your current voice channel before joining another one"
	case session.IsPermissionDenied(err):
		return "you do not have permission to do that"
	}
	return "invalid request"
}

// adminError answers a failed role command with a targeted channel-error.
func (r *Router) adminError(connID string, err error) error {
	code := events.CodeInvalidRoles
	switch {
	case session.IsPermissionDenied(err):
		code = events.CodePermissionDenied
	case errors.Is(err, voxerrors.ErrLastAdministrator):
		code = events.CodeLastAdministrator
	case errors.Is(err, voxerrors.ErrAdministratorRole):
		code = events.CodeAdministratorRole
	}
	r.channelError(connID, code, err)
	return errors.Join(errSilent, err)
}

func rejectReason(err error) string {
	switch {
	case session.IsPermissionDenied(err):
		return "forbidden"
	case errors.Is(err, voxerrors.ErrLastAdministrator), errors.Is(err, voxerrors.ErrAdministratorRole):
		return "last_administrator"
	case errors.Is(err, voxerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, voxerrors.ErrInOtherVoice):
		return "voice_switch"
	case errors.Is(err, session.ErrUnchanged):
		return "unchanged"
	case errors.Is(err, voxerrors.ErrInvalidInput):
		return "invalid"
	}
	return "precondition"
}
