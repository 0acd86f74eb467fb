package models

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeFile  MessageType = "file"
)

// Message is a single persisted chat entry. Rows are immutable after
// insert except the Delivered and Read flags.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       int         `json:"sender_id"`
	RecipientID    int         `json:"recipient_id"`
	Type           MessageType `json:"type"`
	Text           string      `json:"text,omitempty"`
	MediaURL       string      `json:"media_url,omitempty"`
	ThumbnailURL   string      `json:"thumbnail,omitempty"`
	Delivered      bool        `json:"delivered"`
	Read           bool        `json:"read"`
	CreatedAt      time.Time   `json:"created_at"`
}

// HasContent reports whether the message carries a text body or a
// media reference. Messages with neither are rejected before persist.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.MediaURL != ""
}

type SendMessageRequest struct {
	Text      string `json:"text,omitempty"`
	Type      string `json:"type,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}
