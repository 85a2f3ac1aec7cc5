// Package session holds the authoritative in-memory state of the server:
// channels, messages, roles and assignments, and everything tied to live
// connections (presence, voice state, voice membership, screen sharing).
//
// Every method takes the store lock, so each call is atomic with respect to
// the others. Callers that need several calls to appear as one step (the
// realtime router) serialize themselves on top of that.
package session

import (
	"slices"
	"sync"
	"time"

	"vox-chat/internal/domain"
	"vox-chat/internal/permissions"

	"github.com/google/uuid"
)

// Connection is one live transport session.
type Connection struct {
	ID          string
	Name        string
	Presence    domain.PresenceStatus
	Voice       domain.VoiceState
	RemoteAddr  string
	ConnectedAt time.Time
	rooms       map[string]struct{}
}

// LoadedState is the durable state a store starts from.
type LoadedState struct {
	Channels    []domain.Channel
	Messages    []*domain.Message
	Roles       []domain.Role
	Assignments map[string][]string
}

type Store struct {
	mu sync.RWMutex

	channels    []domain.Channel
	messages    map[string][]*domain.Message
	roles       []domain.Role
	assignments map[string][]string

	conns   map[string]*Connection
	voice   map[string]map[string]struct{}
	sharers map[string]string // voice channel id -> sharer connection id

	clock func() time.Time
	newID func() string
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func New(state LoadedState, opts ...Option) *Store {
	s := &Store{
		messages:    make(map[string][]*domain.Message),
		assignments: make(map[string][]string),
		conns:       make(map[string]*Connection),
		voice:       make(map[string]map[string]struct{}),
		sharers:     make(map[string]string),
		clock:       time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, c := range state.Channels {
		s.channels = append(s.channels, c)
		if c.IsVoice() {
			s.voice[c.ID] = make(map[string]struct{})
		} else {
			s.messages[c.ID] = nil
		}
	}
	for _, m := range state.Messages {
		if _, ok := s.messages[m.ChannelID]; !ok {
			continue
		}
		c := m.Clone()
		if c.Reactions == nil {
			c.Reactions = domain.Reactions{}
		}
		s.messages[m.ChannelID] = append(s.messages[m.ChannelID], c)
	}
	for _, r := range state.Roles {
		s.roles = append(s.roles, r.Clone())
	}
	for name, ids := range state.Assignments {
		s.assignments[name] = slices.Clone(ids)
	}
	return s
}

// evaluator must be called with the lock held.
func (s *Store) evaluator() permissions.Evaluator {
	return permissions.New(s.roles, s.assignments)
}

func (s *Store) channel(id string) (domain.Channel, int, bool) {
	for i, c := range s.channels {
		if c.ID == id {
			return c, i, true
		}
	}
	return domain.Channel{}, -1, false
}

func (s *Store) message(channelID, messageID string) (*domain.Message, int, bool) {
	for i, m := range s.messages[channelID] {
		if m.ID == messageID {
			return m, i, true
		}
	}
	return nil, -1, false
}

// voiceChannelOf returns the voice channel connID is in, if any.
func (s *Store) voiceChannelOf(connID string) (string, bool) {
	for chID, members := range s.voice {
		if _, ok := members[connID]; ok {
			return chID, true
		}
	}
	return "", false
}

// Can reports whether the connection's display name grants perm.
func (s *Store) Can(connID string, perm domain.Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	if !ok {
		return false
	}
	return s.evaluator().Has(c.Name, perm)
}
