package domain

import "slices"

type Permission string

const (
	PermAdministrator  Permission = "ADMINISTRATOR"
	PermManageChannels Permission = "MANAGE_CHANNELS"
	PermManageRoles    Permission = "MANAGE_ROLES"
	PermKickMembers    Permission = "KICK_MEMBERS"
	PermSendMessages   Permission = "SEND_MESSAGES"
	PermConnectVoice   Permission = "CONNECT_VOICE"
	PermDeleteMessages Permission = "DELETE_MESSAGES"
	PermEditMessages   Permission = "EDIT_MESSAGES"
)

var AllPermissions = []Permission{
	PermAdministrator,
	PermManageChannels,
	PermManageRoles,
	PermKickMembers,
	PermSendMessages,
	PermConnectVoice,
	PermDeleteMessages,
	PermEditMessages,
}

func (p Permission) Valid() bool {
	return slices.Contains(AllPermissions, p)
}

type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Color       string       `json:"color"`
	Permissions []Permission `json:"permissions"`
}

func (r Role) Has(p Permission) bool {
	return slices.Contains(r.Permissions, p)
}

func (r Role) IsAdministrator() bool {
	return r.Has(PermAdministrator)
}

func (r Role) Clone() Role {
	r.Permissions = slices.Clone(r.Permissions)
	return r
}

// Seed role ids.
const (
	RoleAdminID  = "admin"
	RoleModID    = "mod"
	RoleMemberID = "member"
)

// DefaultRoles is installed into an empty database.
func DefaultRoles() []Role {
	return []Role{
		{ID: RoleAdminID, Name: "Administrator", Color: "#f1c40f", Permissions: []Permission{PermAdministrator}},
		{ID: RoleModID, Name: "Moderator", Color: "#2ecc71", Permissions: []Permission{
			PermManageChannels, PermSendMessages, PermConnectVoice, PermDeleteMessages, PermEditMessages,
		}},
		{ID: RoleMemberID, Name: "Member", Color: "#95a5a6", Permissions: []Permission{
			PermSendMessages, PermConnectVoice, PermEditMessages,
		}},
	}
}

// DefaultChannels is installed into an empty database.
func DefaultChannels() []Channel {
	return []Channel{
		{ID: "general", Name: "general", Type: ChannelTypeText},
		{ID: "voc", Name: "Voc", Type: ChannelTypeVoice},
	}
}
