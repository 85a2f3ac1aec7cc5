package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownEvent   = fmt.Errorf("unknown event: %w", voxerrors.ErrInvalidInput)
	ErrMalformedFrame = fmt.Errorf("malformed frame: %w", voxerrors.ErrInvalidInput)
)

// Command is one decoded inbound client event.
type Command interface {
	Event() string
}

// checker is implemented by commands with rules the validator tags cannot
// express.
type checker interface {
	check() error
}

type JoinChannel struct {
	ChannelID string `validate:"required,max=128"`
}

type LeaveChannel struct {
	ChannelID string `validate:"required,max=128"`
}

type SendMessage struct {
	ChannelID string                 `json:"channelId" validate:"required,max=128"`
	Text      string                 `json:"text" validate:"required_without_all=GifURL File,max=4000"`
	User      string                 `json:"user" validate:"max=64"`
	GifURL    string                 `json:"gifUrl" validate:"omitempty,url,max=2048"`
	File      *domain.FileAttachment `json:"file"`
}

type EditMessage struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	NewText   string `json:"newText" validate:"required,max=4000"`
}

type DeleteMessage struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
}

type Reaction struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Emoji     string `json:"emoji" validate:"required,max=64"`
	UserID    string `json:"userId" validate:"max=128"`
}

type AddReaction struct{ Reaction }

type RemoveReaction struct{ Reaction }

type CreateChannel struct {
	Name string             `json:"name" validate:"required,max=100"`
	Type domain.ChannelType `json:"type" validate:"required,oneof=text voice"`
}

type UpdateChannel struct {
	ID   string              `json:"id" validate:"required,max=128"`
	Name *string             `json:"name" validate:"omitempty,min=1,max=100"`
	Type *domain.ChannelType `json:"type" validate:"omitempty,oneof=text voice"`
}

type DeleteChannel struct {
	ChannelID string `validate:"required,max=128"`
}

type UpdateRoles struct {
	Roles []domain.Role
}

type AssignRole struct {
	UserID  string   `json:"userId" validate:"required,max=64"`
	RoleIDs []string `json:"roleIds" validate:"dive,required,max=128"`
}

type SetUsername struct {
	Name string `validate:"required,max=32"`
}

type JoinVoice struct {
	ChannelID string `validate:"required,max=128"`
}

type LeaveVoice struct {
	ChannelID string `validate:"required,max=128"`
}

type KickUser struct {
	UserID    string `json:"userId" validate:"required,max=128"`
	ChannelID string `json:"channelId" validate:"required,max=128"`
}

type UpdateVoiceState struct {
	domain.VoiceStatePatch
}

type UpdatePresence struct {
	Status domain.PresenceStatus
}

type ScreenShareStart struct {
	ChannelID string `validate:"required,max=128"`
}

type ScreenShareStop struct {
	ChannelID string `validate:"required,max=128"`
}

type ScreenData struct {
	ChannelID string          `json:"channelId" validate:"required,max=128"`
	Data      json.RawMessage `json:"data" validate:"required"`
}

type Typing struct {
	ChannelID string `json:"channelId" validate:"required,max=128"`
	User      string `json:"user" validate:"max=64"`
	IsTyping  bool   `json:"isTyping"`
}

// Signal is a WebRTC negotiation message addressed to one connection. The
// payload is relayed untouched.
type Signal struct {
	Kind         string          `json:"-"`
	TargetUserID string          `json:"targetUserId" validate:"required,max=128"`
	Payload      json.RawMessage `json:"-" validate:"required"`
}

func (JoinChannel) Event() string      { return CmdJoinChannel }
func (LeaveChannel) Event() string     { return CmdLeaveChannel }
func (SendMessage) Event() string      { return CmdSendMessage }
func (EditMessage) Event() string      { return CmdEditMessage }
func (DeleteMessage) Event() string    { return CmdDeleteMessage }
func (AddReaction) Event() string      { return CmdAddReaction }
func (RemoveReaction) Event() string   { return CmdRemoveReaction }
func (CreateChannel) Event() string    { return CmdCreateChannel }
func (UpdateChannel) Event() string    { return CmdUpdateChannel }
func (DeleteChannel) Event() string    { return CmdDeleteChannel }
func (UpdateRoles) Event() string      { return CmdUpdateRoles }
func (AssignRole) Event() string       { return CmdAssignRole }
func (SetUsername) Event() string      { return CmdSetUsername }
func (JoinVoice) Event() string        { return CmdJoinVoice }
func (LeaveVoice) Event() string       { return CmdLeaveVoice }
func (KickUser) Event() string         { return CmdKickUser }
func (UpdateVoiceState) Event() string { return CmdUpdateVoiceState }
func (UpdatePresence) Event() string   { return CmdUpdatePresence }
func (ScreenShareStart) Event() string { return CmdScreenShareStart }
func (ScreenShareStop) Event() string  { return CmdScreenShareStop }
func (ScreenData) Event() string       { return CmdScreenData }
func (Typing) Event() string           { return CmdTyping }
func (s Signal) Event() string         { return s.Kind }

// Several commands carry a bare string as payload. Objects of the form
// {"channelId": "..."} are accepted too.
func decodeString(raw json.RawMessage, keys ...string) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if err := json.Unmarshal(v, &s); err != nil {
				return "", err
			}
			return strings.TrimSpace(s), nil
		}
	}
	return "", errors.New("missing value")
}

func (u *UpdateRoles) check() error {
	for _, r := range u.Roles {
		if r.ID == "" {
			return errors.New("role without id")
		}
		for _, p := range r.Permissions {
			if !p.Valid() {
				return fmt.Errorf("unknown permission %q", p)
			}
		}
	}
	return nil
}

func (u *UpdatePresence) check() error {
	if !u.Status.Valid() {
		return fmt.Errorf("unknown presence %q", u.Status)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses one inbound frame into its command. Unknown event names and
// payloads that do not match the command's shape are rejected.
func Decode(raw []byte) (Command, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		return nil, ErrMalformedFrame
	}
	data := f.Data
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("null")
	}

	cmd, err := decodeCommand(f.Event, data)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", f.Event, err, voxerrors.ErrInvalidInput)
	}
	if c, ok := cmd.(checker); ok {
		if err := c.check(); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", f.Event, err, voxerrors.ErrInvalidInput)
		}
	}
	return cmd, nil
}

func decodeCommand(event string, data json.RawMessage) (Command, error) {
	bad := func(err error) error {
		return fmt.Errorf("%s: %v: %w", event, err, voxerrors.ErrInvalidInput)
	}
	str := func(keys ...string) (string, error) {
		s, err := decodeString(data, keys...)
		if err != nil {
			return "", bad(err)
		}
		return s, nil
	}
	obj := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return bad(err)
		}
		return nil
	}

	switch event {
	case CmdJoinChannel:
		id, err := str("channelId")
		return &JoinChannel{ChannelID: id}, err
	case CmdLeaveChannel:
		id, err := str("channelId")
		return &LeaveChannel{ChannelID: id}, err
	case CmdDeleteChannel:
		id, err := str("channelId", "id")
		return &DeleteChannel{ChannelID: id}, err
	case CmdJoinVoice:
		id, err := str("channelId")
		return &JoinVoice{ChannelID: id}, err
	case CmdLeaveVoice:
		id, err := str("channelId")
		return &LeaveVoice{ChannelID: id}, err
	case CmdScreenShareStart:
		id, err := str("channelId")
		return &ScreenShareStart{ChannelID: id}, err
	case CmdScreenShareStop:
		id, err := str("channelId")
		return &ScreenShareStop{ChannelID: id}, err
	case CmdSetUsername:
		name, err := str("name", "username")
		return &SetUsername{Name: name}, err
	case CmdUpdatePresence:
		status, err := str("status")
		return &UpdatePresence{Status: domain.PresenceStatus(status)}, err

	case CmdSendMessage:
		c := &SendMessage{}
		return c, obj(c)
	case CmdEditMessage:
		c := &EditMessage{}
		return c, obj(c)
	case CmdDeleteMessage:
		c := &DeleteMessage{}
		return c, obj(c)
	case CmdAddReaction:
		c := &AddReaction{}
		return c, obj(&c.Reaction)
	case CmdRemoveReaction:
		c := &RemoveReaction{}
		return c, obj(&c.Reaction)
	case CmdCreateChannel:
		c := &CreateChannel{}
		return c, obj(c)
	case CmdUpdateChannel:
		c := &UpdateChannel{}
		return c, obj(c)
	case CmdUpdateRoles:
		c := &UpdateRoles{}
		return c, obj(&c.Roles)
	case CmdAssignRole:
		c := &AssignRole{}
		return c, obj(c)
	case CmdKickUser:
		c := &KickUser{}
		return c, obj(c)
	case CmdUpdateVoiceState:
		c := &UpdateVoiceState{}
		return c, obj(&c.VoiceStatePatch)
	case CmdScreenData:
		c := &ScreenData{}
		return c, obj(c)
	case CmdTyping:
		c := &Typing{}
		return c, obj(c)

	case CmdWebRTCOffer, CmdWebRTCAnswer, CmdWebRTCCandidate:
		return decodeSignal(event, data, bad)
	}
	return nil, fmt.Errorf("%q: %w", event, ErrUnknownEvent)
}

// signalField names the payload key each signaling event carries.
var signalField = map[string]string{
	CmdWebRTCOffer:     "offer",
	CmdWebRTCAnswer:    "answer",
	CmdWebRTCCandidate: "candidate",
}

// SignalField returns the payload key used by a signaling event.
func SignalField(kind string) string {
	return signalField[kind]
}

func decodeSignal(event string, data json.RawMessage, bad func(error) error) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, bad(err)
	}
	s := &Signal{Kind: event, Payload: fields[signalField[event]]}
	if raw, ok := fields["targetUserId"]; ok {
		if err := json.Unmarshal(raw, &s.TargetUserID); err != nil {
			return nil, bad(err)
		}
	}
	return s, nil
}
