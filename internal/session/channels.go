package session

import (
	"fmt"
	"slices"
	"strings"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"
)

func (s *Store) Channels() []domain.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

func (s *Store) Channel(id string) (domain.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, _, ok := s.channel(id)
	return c, ok
}

// nameTaken must be called with the lock held.
func (s *Store) nameTaken(name, exceptID string) bool {
	norm := domain.NormalizeChannelName(name)
	for _, c := range s.channels {
		if c.ID != exceptID && domain.NormalizeChannelName(c.Name) == norm {
			return true
		}
	}
	return false
}

func (s *Store) CreateChannel(actorID, name string, typ domain.ChannelType) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermManageChannels); err != nil {
		return domain.Channel{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" || !typ.Valid() {
		return domain.Channel{}, voxerrors.ErrInvalidInput
	}
	if s.nameTaken(name, "") {
		return domain.Channel{}, fmt.Errorf("%q: %w", name, voxerrors.ErrChannelNameTaken)
	}

	c := domain.Channel{ID: s.newID(), Name: name, Type: typ}
	s.channels = append(s.channels, c)
	if c.IsVoice() {
		s.voice[c.ID] = make(map[string]struct{})
	} else {
		s.messages[c.ID] = nil
	}
	return c, nil
}

// ChannelUpdate carries the fields to merge; nil means unchanged.
type ChannelUpdate struct {
	Name *string
	Type *domain.ChannelType
}

// UpdateChannel merges fields into an existing channel. The type of a
// channel is fixed at creation.
func (s *Store) UpdateChannel(actorID, id string, upd ChannelUpdate) (domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermManageChannels); err != nil {
		return domain.Channel{}, err
	}
	c, idx, ok := s.channel(id)
	if !ok {
		return domain.Channel{}, fmt.Errorf("channel %s: %w", id, voxerrors.ErrNotFound)
	}
	if upd.Type != nil && *upd.Type != c.Type {
		return domain.Channel{}, fmt.Errorf("channel type is immutable: %w", voxerrors.ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return domain.Channel{}, voxerrors.ErrInvalidInput
		}
		if name != c.Name && s.nameTaken(name, c.ID) {
			return domain.Channel{}, fmt.Errorf("%q: %w", name, voxerrors.ErrChannelNameTaken)
		}
		c.Name = name
	}
	s.channels[idx] = c
	return c, nil
}

// ChannelRemoval describes what deleting a channel cascaded to.
type ChannelRemoval struct {
	Channel         domain.Channel
	DroppedMessages int
	// VoiceMembers were connected to the channel when it was deleted.
	VoiceMembers []string
	// Sharer was sharing a screen in the channel, or "".
	Sharer string
}

func (s *Store) DeleteChannel(actorID, id string) (ChannelRemoval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermManageChannels); err != nil {
		return ChannelRemoval{}, err
	}
	c, idx, ok := s.channel(id)
	if !ok {
		return ChannelRemoval{}, fmt.Errorf("channel %s: %w", id, voxerrors.ErrNotFound)
	}

	r := ChannelRemoval{Channel: c, DroppedMessages: len(s.messages[id])}
	s.channels = slices.Delete(s.channels, idx, idx+1)
	delete(s.messages, id)
	if members, ok := s.voice[id]; ok {
		r.VoiceMembers = sortedMembers(members)
		delete(s.voice, id)
	}
	if sharer, ok := s.sharers[id]; ok {
		r.Sharer = sharer
		delete(s.sharers, id)
	}
	for _, conn := range s.conns {
		delete(conn.rooms, id)
	}
	return r, nil
}

// require must be called with the lock held.
func (s *Store) require(actorID string, perm domain.Permission) error {
	c, ok := s.conns[actorID]
	if !ok {
		return fmt.Errorf("connection %s: %w", actorID, voxerrors.ErrNotFound)
	}
	if c.Name == "" {
		return fmt.Errorf("%s: %w", perm, voxerrors.ErrUnnamed)
	}
	if !s.evaluator().Has(c.Name, perm) {
		return fmt.Errorf("%s: %w", perm, voxerrors.ErrForbidden)
	}
	return nil
}
