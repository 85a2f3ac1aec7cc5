package session

import (
	"fmt"
	"slices"
	"sort"

	"vox-chat/internal/domain"
	"vox-chat/internal/permissions"
	voxerrors "vox-chat/pkg/errors"
)

// AddConnection registers a new connection as online with a zeroed voice
// state and joins it to the first text channel's room. It returns the id of
// that room, or "" when there is no text channel.
func (s *Store) AddConnection(id, remoteAddr string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Connection{
		ID:          id,
		Presence:    domain.PresenceOnline,
		RemoteAddr:  remoteAddr,
		ConnectedAt: s.clock(),
		rooms:       make(map[string]struct{}),
	}
	s.conns[id] = c

	for _, ch := range s.channels {
		if ch.Type == domain.ChannelTypeText {
			c.rooms[ch.ID] = struct{}{}
			return ch.ID
		}
	}
	return ""
}

// Departure describes what a disconnect released.
type Departure struct {
	Conn Connection
	// ShareChannel is the voice channel the connection was sharing its
	// screen in, or "".
	ShareChannel string
	// LeftVoice lists the voice channels the connection was removed from.
	LeftVoice []string
}

// RemoveConnection drops every ephemeral resource owned by the connection.
func (s *Store) RemoveConnection(id string) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[id]
	if !ok {
		return Departure{}, false
	}
	delete(s.conns, id)

	d := Departure{Conn: *c}
	for chID, sharer := range s.sharers {
		if sharer == id {
			delete(s.sharers, chID)
			d.ShareChannel = chID
		}
	}
	for _, ch := range s.channels {
		members, ok := s.voice[ch.ID]
		if !ok {
			continue
		}
		if _, in := members[id]; in {
			delete(members, id)
			d.LeftVoice = append(d.LeftVoice, ch.ID)
		}
	}
	return d, true
}

// NameChange is the result of SetName.
type NameChange struct {
	// SeededRole is the role id auto-assigned to a name seen for the first
	// time, or "".
	SeededRole string
}

// SetName attaches a display name to the connection. A name with no role
// assignment is seeded with the administrator role when nobody holds it yet,
// otherwise with the member role.
func (s *Store) SetName(connID, name string) (NameChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[connID]
	if !ok {
		return NameChange{}, fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	c.Name = name

	if len(s.assignments[name]) > 0 {
		return NameChange{}, nil
	}

	var seed string
	if adminID, ok := permissions.AdministratorRoleID(s.roles); ok && s.evaluator().AdministratorHolders() == 0 {
		seed = adminID
	} else if memberID, ok := s.memberRoleID(); ok {
		seed = memberID
	}
	if seed == "" {
		return NameChange{}, nil
	}
	s.assignments[name] = []string{seed}
	return NameChange{SeededRole: seed}, nil
}

func (s *Store) memberRoleID() (string, bool) {
	for _, r := range s.roles {
		if r.ID == domain.RoleMemberID {
			return r.ID, true
		}
	}
	for _, r := range s.roles {
		if r.Name == "Member" {
			return r.ID, true
		}
	}
	return "", false
}

func (s *Store) Connection(connID string) (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	if !ok {
		return Connection{}, false
	}
	out := *c
	out.rooms = nil
	return out, true
}

func (s *Store) HasConnection(connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conns[connID]
	return ok
}

// ConnectionIDs returns every live connection id in a stable order.
func (s *Store) ConnectionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConnectionsNamed returns the live connections using name.
func (s *Store) ConnectionsNamed(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, c := range s.conns {
		if c.Name != "" && c.Name == name {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// JoinRoom subscribes the connection to a channel's message room.
func (s *Store) JoinRoom(connID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	if _, _, ok := s.channel(channelID); !ok {
		return fmt.Errorf("channel %s: %w", channelID, voxerrors.ErrNotFound)
	}
	c.rooms[channelID] = struct{}{}
	return nil
}

func (s *Store) LeaveRoom(connID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[connID]; ok {
		delete(c.rooms, channelID)
	}
}

// RoomMembers returns the connections subscribed to a channel's room.
func (s *Store) RoomMembers(channelID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, c := range s.conns {
		if _, ok := c.rooms[channelID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) SetPresence(connID string, status domain.PresenceStatus) error {
	if !status.Valid() {
		return fmt.Errorf("presence %q: %w", status, voxerrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	c.Presence = status
	return nil
}

// UpdateVoiceState merges patch into the connection's voice state.
func (s *Store) UpdateVoiceState(connID string, patch domain.VoiceStatePatch) (domain.VoiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[connID]
	if !ok {
		return domain.VoiceState{}, fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	c.Voice = c.Voice.Merge(patch)
	return c.Voice, nil
}

// sortedMembers must be called with the lock held.
func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
