package session

import (
	"fmt"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"
)

// JoinVoice adds the connection to a voice channel. A connection sits in at
// most one voice channel; joining a second one fails with ErrInOtherVoice
// and leaves the existing membership alone.
func (s *Store) JoinVoice(connID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conns[connID]; !ok {
		return fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	ch, _, ok := s.channel(channelID)
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, voxerrors.ErrNotFound)
	}
	if !ch.IsVoice() {
		return voxerrors.ErrNotVoiceChannel
	}
	if current, ok := s.voiceChannelOf(connID); ok {
		if current == channelID {
			return voxerrors.ErrAlreadyExists
		}
		return fmt.Errorf("in %s: %w", current, voxerrors.ErrInOtherVoice)
	}
	s.voice[channelID][connID] = struct{}{}
	return nil
}

// LeaveVoice removes the connection from a voice channel. It reports whether
// the connection's screen share in that channel was cleared as well.
func (s *Store) LeaveVoice(connID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeVoiceMember(connID, channelID)
}

// Kick force-removes target from a voice channel on behalf of actor.
func (s *Store) Kick(actorID, targetID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermKickMembers); err != nil {
		return false, err
	}
	return s.removeVoiceMember(targetID, channelID)
}

func (s *Store) removeVoiceMember(connID, channelID string) (bool, error) {
	members, ok := s.voice[channelID]
	if !ok {
		return false, fmt.Errorf("voice channel %s: %w", channelID, voxerrors.ErrNotFound)
	}
	if _, in := members[connID]; !in {
		return false, voxerrors.ErrNotVoiceMember
	}
	delete(members, connID)
	if s.sharers[channelID] == connID {
		delete(s.sharers, channelID)
		return true, nil
	}
	return false, nil
}

// VoiceMembers returns the connections in a voice channel.
func (s *Store) VoiceMembers(channelID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMembers(s.voice[channelID])
}

// VoiceChannelOf returns the voice channel the connection is in.
func (s *Store) VoiceChannelOf(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceChannelOf(connID)
}

// VoiceUsers returns membership of every voice channel.
func (s *Store) VoiceUsers() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceUsers()
}

func (s *Store) voiceUsers() map[string][]string {
	out := make(map[string][]string, len(s.voice))
	for chID, members := range s.voice {
		out[chID] = sortedMembers(members)
	}
	return out
}

// StartShare registers the connection as the screen sharer of a voice
// channel it is a member of. Only one sharer per channel is allowed.
func (s *Store) StartShare(connID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.voice[channelID]
	if !ok {
		return fmt.Errorf("voice channel %s: %w", channelID, voxerrors.ErrNotFound)
	}
	if _, in := members[connID]; !in {
		return voxerrors.ErrNotVoiceMember
	}
	if current, ok := s.sharers[channelID]; ok {
		if current == connID {
			return voxerrors.ErrAlreadyExists
		}
		return voxerrors.ErrShareTaken
	}
	s.sharers[channelID] = connID
	return nil
}

func (s *Store) StopShare(connID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sharers[channelID] != connID {
		return voxerrors.ErrNotSharer
	}
	delete(s.sharers, channelID)
	return nil
}

// FrameRecipients checks that connID is the registered sharer of the
// channel and returns the other members of its voice room.
func (s *Store) FrameRecipients(connID, channelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sharers[channelID] != connID || connID == "" {
		return nil, voxerrors.ErrNotSharer
	}
	var out []string
	for _, id := range sortedMembers(s.voice[channelID]) {
		if id != connID {
			out = append(out, id)
		}
	}
	return out, nil
}

// ScreenSharers maps each sharing connection to its voice channel.
func (s *Store) ScreenSharers() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screenSharers()
}

func (s *Store) screenSharers() map[string]string {
	out := make(map[string]string, len(s.sharers))
	for chID, connID := range s.sharers {
		out[connID] = chID
	}
	return out
}
