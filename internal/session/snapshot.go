package session

import "vox-chat/internal/domain"

// Snapshot is the full state handed to a newly connected client. All maps
// keyed by connection id only cover live connections.
type Snapshot struct {
	Channels      []domain.Channel                 `json:"channels"`
	Messages      map[string][]*domain.Message     `json:"messages"`
	Roles         []domain.Role                    `json:"roles"`
	UserRoles     map[string][]string              `json:"userRoles"`
	UserPresence  map[string]domain.PresenceStatus `json:"userPresence"`
	VoiceStates   map[string]domain.VoiceState     `json:"voiceStates"`
	ScreenSharers map[string]string                `json:"screenSharers"`
	VoiceUsers    map[string][]string              `json:"voiceUsers"`
	Usernames     map[string]string                `json:"usernames"`
}

// Snapshot copies the whole state under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]domain.Channel, len(s.channels))
	copy(channels, s.channels)

	return Snapshot{
		Channels:      channels,
		Messages:      s.messagesByChannel(),
		Roles:         s.rolesCopy(),
		UserRoles:     s.assignmentsCopy(),
		UserPresence:  s.presence(),
		VoiceStates:   s.voiceStates(),
		ScreenSharers: s.screenSharers(),
		VoiceUsers:    s.voiceUsers(),
		Usernames:     s.usernames(),
	}
}

func (s *Store) Presence() map[string]domain.PresenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence()
}

func (s *Store) presence() map[string]domain.PresenceStatus {
	out := make(map[string]domain.PresenceStatus, len(s.conns))
	for id, c := range s.conns {
		out[id] = c.Presence
	}
	return out
}

func (s *Store) voiceStates() map[string]domain.VoiceState {
	out := make(map[string]domain.VoiceState, len(s.conns))
	for id, c := range s.conns {
		out[id] = c.Voice
	}
	return out
}

// Usernames maps named connections to their display name.
func (s *Store) Usernames() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usernames()
}

func (s *Store) usernames() map[string]string {
	out := make(map[string]string, len(s.conns))
	for id, c := range s.conns {
		if c.Name != "" {
			out[id] = c.Name
		}
	}
	return out
}
