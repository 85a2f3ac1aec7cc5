package domain

import "strings"

type ChannelType string

const (
	ChannelTypeText  ChannelType = "text"
	ChannelTypeVoice ChannelType = "voice"
)

func (t ChannelType) Valid() bool {
	return t == ChannelTypeText || t == ChannelTypeVoice
}

type Channel struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
}

func (c Channel) IsVoice() bool {
	return c.Type == ChannelTypeVoice
}

// NormalizeChannelName folds a channel name for uniqueness checks.
func NormalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
