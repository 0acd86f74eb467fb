package models

import "time"

// Conversation is the persisted pairing of two participants plus
// delivery/read bookkeeping. The participant pair is stored normalized
// (UserLow < UserHigh) so a unique index on the pair can guarantee at
// most one conversation per unordered pair.
type Conversation struct {
	ID            string     `json:"id"`
	UserLow       int        `json:"-"`
	UserHigh      int        `json:"-"`
	LastMessageID *string    `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadLow     int        `json:"-"`
	UnreadHigh    int        `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PairKey normalizes two participant ids into (low, high) order.
func PairKey(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func (c *Conversation) HasParticipant(userID int) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// OtherParticipant returns the participant that is not userID.
// The caller must have verified membership first.
func (c *Conversation) OtherParticipant(userID int) int {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

func (c *Conversation) UnreadFor(userID int) int {
	if c.UserLow == userID {
		return c.UnreadLow
	}
	return c.UnreadHigh
}

// Participants returns both participant ids, low first.
func (c *Conversation) Participants() []int {
	return []int{c.UserLow, c.UserHigh}
}

type CreateConversationRequest struct {
	RecipientID int `json:"recipient_id"`
}

type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	IsNew          bool   `json:"is_new"`
}

// ConversationSummary is one row of the authenticated user's
// conversation list.
type ConversationSummary struct {
	ConversationID  string     `json:"conversation_id"`
	OtherUserID     int        `json:"other_user_id"`
	OtherUsername   string     `json:"other_username"`
	OtherUserStatus string     `json:"other_user_status"`
	LastMessageText string     `json:"last_message_text,omitempty"`
	LastMessageType string     `json:"last_message_type,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}
