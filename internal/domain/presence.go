package domain

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceIdle    PresenceStatus = "idle"
	PresenceDND     PresenceStatus = "dnd"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceIdle, PresenceDND, PresenceOffline:
		return true
	}
	return false
}

type VoiceState struct {
	Speaking bool `json:"speaking"`
	Muted    bool `json:"muted"`
	Deafened bool `json:"deafened"`
}

// VoiceStatePatch carries a partial voice state; nil fields are left as is.
type VoiceStatePatch struct {
	Speaking *bool `json:"speaking,omitempty"`
	Muted    *bool `json:"muted,omitempty"`
	Deafened *bool `json:"deafened,omitempty"`
}

func (s VoiceState) Merge(p VoiceStatePatch) VoiceState {
	if p.Speaking != nil {
		s.Speaking = *p.Speaking
	}
	if p.Muted != nil {
		s.Muted = *p.Muted
	}
	if p.Deafened != nil {
		s.Deafened = *p.Deafened
	}
	return s
}

// User is the durable record of a display name.
type User struct {
	Username  string    `json:"username"`
	LastLogin time.Time `json:"lastLogin"`
}

type LoginLog struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	ConnID    string    `json:"connId"`
	LoginTime time.Time `json:"loginTime"`
	IPAddress string    `json:"ipAddress"`
}
