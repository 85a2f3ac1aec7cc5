package session

import (
	"errors"
	"fmt"
	"strings"

	"vox-chat/internal/domain"
	voxerrors "vox-chat/pkg/errors"
)

// NewMessage is the caller-supplied part of a message.
type NewMessage struct {
	ChannelID string
	Text      string
	User      string
	GifURL    string
	File      *domain.FileAttachment
}

// AddMessage appends a message to a text channel. The author is the
// connection's display name, then the name the client claimed, then the
// connection id.
func (s *Store) AddMessage(connID string, in NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[connID]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connID, voxerrors.ErrNotFound)
	}
	ch, _, ok := s.channel(in.ChannelID)
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", in.ChannelID, voxerrors.ErrNotFound)
	}
	if ch.Type != domain.ChannelTypeText {
		return nil, voxerrors.ErrNotTextChannel
	}

	author := conn.Name
	if author == "" {
		author = strings.TrimSpace(in.User)
	}
	if author == "" {
		author = connID
	}

	m := &domain.Message{
		ID:        s.newID(),
		ChannelID: ch.ID,
		Text:      in.Text,
		User:      author,
		UserID:    connID,
		Timestamp: s.clock().UTC(),
		Reactions: domain.Reactions{},
		GifURL:    in.GifURL,
	}
	if in.File != nil {
		f := *in.File
		m.File = &f
	}
	s.messages[ch.ID] = append(s.messages[ch.ID], m)
	return m.Clone(), nil
}

// EditMessage replaces a message's text. The edited timestamp never moves
// backwards.
func (s *Store) EditMessage(actorID, channelID, messageID, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermEditMessages); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, voxerrors.ErrInvalidInput
	}
	m, _, ok := s.message(channelID, messageID)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, voxerrors.ErrNotFound)
	}

	now := s.clock().UTC()
	if m.Edited != nil && now.Before(*m.Edited) {
		now = *m.Edited
	}
	m.Text = text
	m.Edited = &now
	return m.Clone(), nil
}

func (s *Store) DeleteMessage(actorID, channelID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require(actorID, domain.PermDeleteMessages); err != nil {
		return err
	}
	_, idx, ok := s.message(channelID, messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, voxerrors.ErrNotFound)
	}
	msgs := s.messages[channelID]
	s.messages[channelID] = append(msgs[:idx:idx], msgs[idx+1:]...)
	return nil
}

// ErrUnchanged is returned by reaction updates that were already in effect.
var ErrUnchanged = errors.New("unchanged")

func (s *Store) AddReaction(channelID, messageID, emoji, reactor string) (domain.Reactions, error) {
	return s.react(channelID, messageID, func(r domain.Reactions) bool {
		return r.Add(emoji, reactor)
	})
}

func (s *Store) RemoveReaction(channelID, messageID, emoji, reactor string) (domain.Reactions, error) {
	return s.react(channelID, messageID, func(r domain.Reactions) bool {
		return r.Remove(emoji, reactor)
	})
}

func (s *Store) react(channelID, messageID string, apply func(domain.Reactions) bool) (domain.Reactions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _, ok := s.message(channelID, messageID)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, voxerrors.ErrNotFound)
	}
	if m.Reactions == nil {
		m.Reactions = domain.Reactions{}
	}
	if !apply(m.Reactions) {
		return nil, ErrUnchanged
	}
	return m.Reactions.Clone(), nil
}

// ApplyLinkPreview attaches a fetched preview to a message that still exists.
func (s *Store) ApplyLinkPreview(channelID, messageID string, p domain.LinkPreview) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _, ok := s.message(channelID, messageID)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, voxerrors.ErrNotFound)
	}
	m.LinkPreview = &p
	return m.Clone(), nil
}

func (s *Store) Message(channelID, messageID string) (*domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, _, ok := s.message(channelID, messageID)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// MessagesByChannel returns a deep copy of every text channel's messages.
func (s *Store) MessagesByChannel() map[string][]*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesByChannel()
}

func (s *Store) messagesByChannel() map[string][]*domain.Message {
	out := make(map[string][]*domain.Message, len(s.messages))
	for chID, msgs := range s.messages {
		cp := make([]*domain.Message, 0, len(msgs))
		for _, m := range msgs {
			cp = append(cp, m.Clone())
		}
		out[chID] = cp
	}
	return out
}
