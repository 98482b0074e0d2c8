package model

import "time"

// PreviewMaxLen caps LastMessagePreview, in runes.
const PreviewMaxLen = 100

// Conversation is one merged roster entry per real-world contact. It is
// request-scoped: rebuilt from scratch on every load and replaced wholesale on
// the next refresh. Phone is the standardized canonical key; AvatarURL is
// populated asynchronously and may arrive after the snapshot is first served.
type Conversation struct {
	Phone              string    `json:"phone"`
	Name               string    `json:"name"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadCount        int       `json:"unread_count"`
	Stage              string    `json:"stage,omitempty"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
}
