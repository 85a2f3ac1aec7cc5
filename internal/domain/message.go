package domain

import (
	"slices"
	"time"
)

type FileAttachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size,omitempty"`
}

type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Reactions maps an emoji to the ids that reacted with it. Each reactor
// appears at most once per emoji and emoji keys with no reactors are removed.
type Reactions map[string][]string

// Add records reactor under emoji. It reports false when already present.
func (r Reactions) Add(emoji, reactor string) bool {
	if slices.Contains(r[emoji], reactor) {
		return false
	}
	r[emoji] = append(r[emoji], reactor)
	return true
}

// Remove drops reactor from emoji. It reports false when nothing changed.
func (r Reactions) Remove(emoji, reactor string) bool {
	ids, ok := r[emoji]
	if !ok {
		return false
	}
	idx := slices.Index(ids, reactor)
	if idx < 0 {
		return false
	}
	ids = slices.Delete(slices.Clone(ids), idx, idx+1)
	if len(ids) == 0 {
		delete(r, emoji)
	} else {
		r[emoji] = ids
	}
	return true
}

func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, ids := range r {
		out[emoji] = slices.Clone(ids)
	}
	return out
}

type Message struct {
	ID          string          `json:"id"`
	ChannelID   string          `json:"-"`
	Text        string          `json:"text"`
	User        string          `json:"user"`
	UserID      string          `json:"userId,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Edited      *time.Time      `json:"edited,omitempty"`
	Reactions   Reactions       `json:"reactions"`
	GifURL      string          `json:"gifUrl,omitempty"`
	File        *FileAttachment `json:"file,omitempty"`
	LinkPreview *LinkPreview    `json:"linkPreview,omitempty"`
}

// Clone returns a deep copy safe to hand outside the session store.
func (m *Message) Clone() *Message {
	out := *m
	out.Reactions = m.Reactions.Clone()
	if m.Edited != nil {
		t := *m.Edited
		out.Edited = &t
	}
	if m.File != nil {
		f := *m.File
		out.File = &f
	}
	if m.LinkPreview != nil {
		p := *m.LinkPreview
		out.LinkPreview = &p
	}
	return &out
}
