package realtime

import (
	"context"
	"regexp"
	"strings"

	"vox-chat/internal/domain"
	"vox-chat/internal/events"
	"vox-chat/internal/session"

	"go.uber.org/zap"
)

var (
	mentionPattern = regexp.MustCompile(`@([\p{L}\p{N}_.-]+)`)
	urlPattern     = regexp.MustCompile(`https?://[^\s]+`)
)

// mentionedNames returns the distinct @names in text, in order.
func mentionedNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(m[1], ".")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func firstURL(text string) string {
	return strings.TrimRight(urlPattern.FindString(text), ".,;:!?)\"'")
}

func (r *Router) sendMessage(connID string, c *events.SendMessage) error {
	m, err := r.store.AddMessage(connID, session.NewMessage{
		ChannelID: c.ChannelID,
		Text:      c.Text,
		User:      c.User,
		GifURL:    c.GifURL,
		File:      c.File,
	})
	if err != nil {
		return err
	}

	r.enqueue("save_message", func(ctx context.Context, p Persistence) error {
		return p.SaveMessage(ctx, m)
	})
	r.toRoom(m.ChannelID, "", events.EventNewMessage, events.NewMessagePayload{ChannelID: m.ChannelID, Message: m})
	r.notifyMentions(connID, m)

	if u := firstURL(m.Text); u != "" {
		r.fetchPreview(m.ChannelID, m.ID, u)
	}
	return nil
}

// notifyMentions sends one notice per mentioned live connection. The
// sender's own connection never gets one.
func (r *Router) notifyMentions(senderID string, m *domain.Message) {
	names := mentionedNames(m.Text)
	if len(names) == 0 {
		return
	}
	frame := r.encode(events.EventMention, events.MentionPayload{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		MentionedBy: m.User,
	})
	notified := make(map[string]bool)
	for _, name := range names {
		for _, id := range r.store.ConnectionsNamed(name) {
			if id == senderID || notified[id] {
				continue
			}
			notified[id] = true
			r.deliver([]string{id}, frame)
		}
	}
}

// fetchPreview looks the URL up off the loop; the result comes back through
// the inbox like any other event.
func (r *Router) fetchPreview(channelID, messageID, url string) {
	if r.preview == nil {
		return
	}
	ctx := r.ctx
	go func() {
		p, err := r.preview.Fetch(ctx, url)
		if err != nil {
			r.log.Logger.Debug("link preview failed", zap.String("url", url), zap.Error(err))
			return
		}
		if p == nil {
			return
		}
		env := envelope{kind: kindPreview, preview: previewResult{channelID: channelID, messageID: messageID, preview: p}}
		select {
		case r.inbox <- env:
		case <-ctx.Done():
		case <-r.done:
		}
	}()
}

func (r *Router) onPreview(res previewResult) {
	if res.preview == nil {
		return
	}
	m, err := r.store.ApplyLinkPreview(res.channelID, res.messageID, *res.preview)
	if err != nil {
		// The message was deleted while the preview was being fetched.
		return
	}
	r.enqueue("save_message", func(ctx context.Context, p Persistence) error {
		return p.SaveMessage(ctx, m)
	})
	r.toAll(events.EventMessageUpdated, events.MessageUpdatedPayload{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		LinkPreview: m.LinkPreview,
	})
}

func (r *Router) editMessage(connID string, c *events.EditMessage) error {
	m, err := r.store.EditMessage(connID, c.ChannelID, c.MessageID, c.NewText)
	if err != nil {
		return err
	}
	r.enqueue("save_message", func(ctx context.Context, p Persistence) error {
		return p.SaveMessage(ctx, m)
	})
	r.toAll(events.EventMessageUpdated, events.MessageUpdatedPayload{
		ChannelID:       m.ChannelID,
		MessageID:       m.ID,
		NewText:         m.Text,
		EditedTimestamp: m.Edited,
	})
	return nil
}

func (r *Router) deleteMessage(connID string, c *events.DeleteMessage) error {
	if err := r.store.DeleteMessage(connID, c.ChannelID, c.MessageID); err != nil {
		return err
	}
	id := c.MessageID
	r.enqueue("delete_message", func(ctx context.Context, p Persistence) error {
		return p.DeleteMessage(ctx, id)
	})
	r.toAll(events.EventMessagesUpdated, r.store.MessagesByChannel())
	return nil
}

type reactFunc func(channelID, messageID, emoji, reactor string) (domain.Reactions, error)

// react applies a reaction toggle. The reactor is the id the client named,
// falling back to the connection itself.
func (r *Router) react(c events.Reaction, apply reactFunc, connID string) error {
	reactor := c.UserID
	if reactor == "" {
		reactor = connID
	}
	reactions, err := apply(c.ChannelID, c.MessageID, c.Emoji, reactor)
	if err != nil {
		return err
	}
	if m, ok := r.store.Message(c.ChannelID, c.MessageID); ok {
		r.enqueue("save_message", func(ctx context.Context, p Persistence) error {
			return p.SaveMessage(ctx, m)
		})
	}
	r.toRoom(c.ChannelID, "", events.EventReactionUpdated, events.ReactionUpdatedPayload{
		ChannelID: c.ChannelID,
		MessageID: c.MessageID,
		Reactions: reactions,
	})
	return nil
}

func (r *Router) typing(connID string, c *events.Typing) error {
	user := c.User
	if conn, ok := r.store.Connection(connID); ok && conn.Name != "" {
		user = conn.Name
	}
	r.toRoom(c.ChannelID, connID, events.EventUserTyping, events.TypingPayload{
		ChannelID: c.ChannelID,
		User:      user,
		IsTyping:  c.IsTyping,
	})
	return nil
}
