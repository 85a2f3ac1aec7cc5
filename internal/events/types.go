package events

// Inbound command names, as sent by clients.
const (
	CmdJoinChannel      = "join-channel"
	CmdLeaveChannel     = "leave-channel"
	CmdSendMessage      = "send-message"
	CmdEditMessage      = "edit-message"
	CmdDeleteMessage    = "delete-message"
	CmdAddReaction      = "add-reaction"
	CmdRemoveReaction   = "remove-reaction"
	CmdCreateChannel    = "create-channel"
	CmdUpdateChannel    = "update-channel"
	CmdDeleteChannel    = "delete-channel"
	CmdUpdateRoles      = "update-roles"
	CmdAssignRole       = "assign-role"
	CmdSetUsername      = "set-username"
	CmdJoinVoice        = "join-voice"
	CmdLeaveVoice       = "leave-voice"
	CmdKickUser         = "kick-user"
	CmdUpdateVoiceState = "update-voice-state"
	CmdUpdatePresence   = "update-presence"
	CmdScreenShareStart = "screen-share-start"
	CmdScreenShareStop  = "screen-share-stop"
	CmdScreenData       = "screen-data"
	CmdTyping           = "typing"
	CmdWebRTCOffer      = "webrtc-offer"
	CmdWebRTCAnswer     = "webrtc-answer"
	CmdWebRTCCandidate  = "webrtc-ice-candidate"
)

// Outbound event names.
const (
	EventInit                 = "init"
	EventNewMessage           = "new-message"
	EventMessageUpdated       = "message-updated"
	EventReactionUpdated      = "reaction-updated"
	EventMessagesUpdated      = "messages-updated"
	EventChannelsUpdated      = "channels-updated"
	EventRolesUpdated         = "roles-updated"
	EventPresenceUpdate       = "presence-update"
	EventVoiceStateUpdate     = "voice-state-update"
	EventUserRolesUpdate      = "user-roles-update"
	EventUsernamesUpdate      = "usernames-update"
	EventVoiceUsersUpdate     = "voice-users-update"
	EventUserJoinedVoice      = "user-joined-voice"
	EventUserLeftVoice        = "user-left-voice"
	EventScreenShareStarted   = "screen-share-started"
	EventScreenShareStopped   = "screen-share-stopped"
	EventScreenStream         = "screen-stream"
	EventUserTyping           = "user-typing"
	EventMention              = "mention"
	EventChannelError         = "channel-error"
	EventForceDisconnectVoice = "force-disconnect-voice"
	EventWebRTCOffer          = CmdWebRTCOffer
	EventWebRTCAnswer         = CmdWebRTCAnswer
	EventWebRTCCandidate      = CmdWebRTCCandidate
)

// channel-error codes.
const (
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeLastAdministrator = "LAST_ADMINISTRATOR"
	CodeAdministratorRole = "ADMINISTRATOR_ROLE_REQUIRED"
	CodeInvalidRoles      = "INVALID_ROLES"
	CodeVoiceSwitch       = "VOICE_SWITCH_REQUIRED"
)
