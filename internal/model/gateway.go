package model

// GatewayChat is one entry from the messaging gateway's live chat list.
// IDs are gateway-native and may carry any of the JID suffix tags; the
// display name may be empty or a generic self placeholder.
type GatewayChat struct {
	ID                   string          `json:"id" validate:"required"`
	DisplayName          string          `json:"displayName,omitempty"`
	UnreadCount          int             `json:"unreadCount,omitempty"`
	LastMessage          *MessagePayload `json:"lastMessage,omitempty"`
	LastMessageTimestamp int64           `json:"lastMessageTimestamp,omitempty"` // epoch seconds
}

// MessagePayload mirrors the gateway's typed last-message object. Exactly one
// sub-field is normally populated; the roster derives a human-readable preview
// from whichever one is present.
type MessagePayload struct {
	Conversation           string                  `json:"conversation,omitempty"`
	ExtendedTextMessage    *ExtendedTextMessage    `json:"extendedTextMessage,omitempty"`
	ImageMessage           *MediaMessage           `json:"imageMessage,omitempty"`
	VideoMessage           *MediaMessage           `json:"videoMessage,omitempty"`
	AudioMessage           *MediaMessage           `json:"audioMessage,omitempty"`
	DocumentMessage        *DocumentMessage        `json:"documentMessage,omitempty"`
	StickerMessage         *MediaMessage           `json:"stickerMessage,omitempty"`
	LocationMessage        *LocationMessage        `json:"locationMessage,omitempty"`
	ContactMessage         *ContactMessage         `json:"contactMessage,omitempty"`
	ButtonsResponseMessage *ButtonsResponseMessage `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage    *ListResponseMessage    `json:"listResponseMessage,omitempty"`
}

// ExtendedTextMessage carries formatted or link-preview text.
type ExtendedTextMessage struct {
	Text string `json:"text,omitempty"`
}

// MediaMessage covers image, video, audio and sticker payloads.
type MediaMessage struct {
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
}

// DocumentMessage is a file attachment.
type DocumentMessage struct {
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Title    string `json:"title,omitempty"`
}

// LocationMessage is a shared location pin.
type LocationMessage struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// ContactMessage is a shared contact card.
type ContactMessage struct {
	DisplayName string `json:"displayName,omitempty"`
	Vcard       string `json:"vcard,omitempty"`
}

// ButtonsResponseMessage is the reply to an interactive button prompt.
type ButtonsResponseMessage struct {
	SelectedButtonID    string `json:"selectedButtonId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText,omitempty"`
}

// ListResponseMessage is the reply to an interactive list prompt.
type ListResponseMessage struct {
	Title        string            `json:"title,omitempty"`
	SingleSelect *ListSingleSelect `json:"singleSelectReply,omitempty"`
}

// ListSingleSelect holds the selected row of a list reply.
type ListSingleSelect struct {
	SelectedRowID string `json:"selectedRowId,omitempty"`
}
