package events

import (
	"encoding/json"
	"time"

	"vox-chat/internal/domain"
)

type NewMessagePayload struct {
	ChannelID string          `json:"channelId"`
	Message   *domain.Message `json:"message"`
}

// MessageUpdatedPayload announces an edit or a late link preview.
type MessageUpdatedPayload struct {
	ChannelID       string              `json:"channelId"`
	MessageID       string              `json:"messageId"`
	NewText         string              `json:"newText,omitempty"`
	EditedTimestamp *time.Time          `json:"editedTimestamp,omitempty"`
	LinkPreview     *domain.LinkPreview `json:"linkPreview,omitempty"`
}

type ReactionUpdatedPayload struct {
	ChannelID string           `json:"channelId"`
	MessageID string           `json:"messageId"`
	Reactions domain.Reactions `json:"reactions"`
}

type VoiceStatePayload struct {
	UserID string            `json:"userId"`
	State  domain.VoiceState `json:"state"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type ScreenSharePayload struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

type ScreenStreamPayload struct {
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
	User      string `json:"user"`
	IsTyping  bool   `json:"isTyping"`
}

type MentionPayload struct {
	ChannelID   string `json:"channelId"`
	MessageID   string `json:"messageId"`
	MentionedBy string `json:"mentionedBy"`
}

type ChannelErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ForceDisconnectPayload struct {
	ChannelID string `json:"channelId"`
}

// SignalPayload is the relayed form of a WebRTC negotiation message: the
// payload keeps its original key (offer, answer or candidate).
func SignalPayload(kind, sourceID string, payload json.RawMessage) map[string]any {
	return map[string]any{
		"sourceUserId":    sourceID,
		signalField[kind]: payload,
	}
}
