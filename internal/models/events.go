package models

// Client -> server events.
const (
	EventUserOnline  = "user-online"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventMarkAsRead  = "mark-as-read"
)

// Server -> client events.
const (
	EventUserStatusChange = "user-status-change"
	EventReceiveMessage   = "receive-message"
	EventMessageSent      = "message-sent"
	EventMessageDelivered = "message-delivered"
	EventMessagesRead     = "messages-read"
	EventUserTyping       = "user-typing"
	EventMessageError     = "message-error"
)

// WSEvent is the wire envelope for every socket event in both
// directions. Fields not used by a given event are omitted.
type WSEvent struct {
	Event          string   `json:"event"`
	ConversationID string   `json:"conversation_id,omitempty"`
	UserID         int      `json:"user_id,omitempty"`
	RecipientID    int      `json:"recipient_id,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Text           string   `json:"text,omitempty"`
	Type           string   `json:"type,omitempty"`
	MediaURL       string   `json:"media_url,omitempty"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
	IsTyping       bool     `json:"is_typing,omitempty"`
	Online         bool     `json:"online"`
	Error          string   `json:"error,omitempty"`
}

func StatusChangeEvent(userID int, online bool) WSEvent {
	return WSEvent{Event: EventUserStatusChange, UserID: userID, Online: online}
}

func ReceiveMessageEvent(msg *Message) WSEvent {
	return WSEvent{Event: EventReceiveMessage, Message: msg}
}

func MessageSentEvent(msg *Message) WSEvent {
	return WSEvent{Event: EventMessageSent, Message: msg}
}

func MessageDeliveredEvent(messageID string) WSEvent {
	return WSEvent{Event: EventMessageDelivered, MessageID: messageID}
}

func MessagesReadEvent(conversationID string) WSEvent {
	return WSEvent{Event: EventMessagesRead, ConversationID: conversationID}
}

func UserTypingEvent(conversationID string, isTyping bool) WSEvent {
	return WSEvent{Event: EventUserTyping, ConversationID: conversationID, IsTyping: isTyping}
}

func MessageErrorEvent(err error) WSEvent {
	return WSEvent{Event: EventMessageError, Error: err.Error()}
}
