package realtime

import (
	"context"

	"campus-chat/internal/models"
	"campus-chat/internal/presence"
	"campus-chat/internal/utils"
)

// Store is the slice of the chat persistence layer the coordinator
// needs. The store is the source of truth: a message row is always
// written before any push attempt.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	MarkDelivered(ctx context.Context, messageID string) error
	UndeliveredFor(ctx context.Context, userID int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID string, readerID int) (int64, error)
}

// Directory is the optional cross-instance presence view.
type Directory interface {
	Announce(ctx context.Context, userID int) error
	Refresh(ctx context.Context, userID int) error
	Revoke(ctx context.Context, userID int) error
	Online(ctx context.Context, userID int) (bool, error)
}

// Publisher is the optional cross-instance delivery channel.
type Publisher interface {
	Publish(ctx context.Context, recipientID int, ev models.WSEvent) error
}

// SendInput carries a send-message request from either the socket or
// the HTTP fallback path. The sender comes from the authenticated
// connection, never from the payload.
type SendInput struct {
	ConversationID string
	Text           string
	Type           models.MessageType
	MediaURL       string
	Thumbnail      string
}

// Coordinator decides, for each outbound message, between live push to
// a connected recipient and store-only delivery resolved at the
// recipient's next connect. It also reconciles delivered/read flags
// across both paths.
type Coordinator struct {
	store    Store
	registry presence.Registry

	// nil when Redis is not configured; the coordinator then degrades
	// to single-instance presence.
	directory Directory
	fanout    Publisher
}

func NewCoordinator(store Store, registry presence.Registry) *Coordinator {
	return &Coordinator{store: store, registry: registry}
}

// WithCluster attaches the Redis-backed presence directory and
// delivery fanout.
func (co *Coordinator) WithCluster(d Directory, p Publisher) *Coordinator {
	co.directory = d
	co.fanout = p
	return co
}

// UserOnline registers the connection, broadcasts the status change
// and replays every message queued while the user was offline. Each
// replayed message is flipped to delivered and its original sender is
// notified.
func (co *Coordinator) UserOnline(ctx context.Context, c presence.Client, userID int) {
	co.registry.SetOnline(userID, c)
	if co.directory != nil {
		if err := co.directory.Announce(ctx, userID); err != nil {
			utils.LogError(err, "presence announce")
		}
	}
	co.registry.Broadcast(models.StatusChangeEvent(userID, true))

	msgs, err := co.store.UndeliveredFor(ctx, userID)
	if err != nil {
		utils.LogError(err, "reconnect sweep")
		return
	}
	for i := range msgs {
		msg := &msgs[i]
		if err := c.Send(models.ReceiveMessageEvent(msg)); err != nil {
			utils.LogError(err, "sweep push")
			continue
		}
		msg.Delivered = true
		if err := co.store.MarkDelivered(ctx, msg.ID); err != nil {
			utils.LogError(err, "sweep mark delivered")
		}
		co.notify(ctx, msg.SenderID, models.MessageDeliveredEvent(msg.ID))
	}
}

// Disconnect removes the presence entry for this connection handle and
// broadcasts the offline status. A handle already replaced by a newer
// connection for the same user is a no-op, so a late disconnect never
// knocks a reconnected user offline.
func (co *Coordinator) Disconnect(ctx context.Context, c presence.Client) {
	userID, ok := co.registry.Remove(c)
	if !ok {
		return
	}
	if co.directory != nil {
		if err := co.directory.Revoke(ctx, userID); err != nil {
			utils.LogError(err, "presence revoke")
		}
	}
	co.registry.Broadcast(models.StatusChangeEvent(userID, false))
}

// RefreshPresence extends the directory TTL for a still-connected
// user. No-op without a directory.
func (co *Coordinator) RefreshPresence(ctx context.Context, userID int) {
	if co.directory == nil {
		return
	}
	if err := co.directory.Refresh(ctx, userID); err != nil {
		utils.LogError(err, "presence refresh")
	}
}

// SendMessage runs the send pipeline: persist first (the durability
// point), then attempt a live push, then confirm delivery to the
// sender. The returned row is the persisted message; the caller sends
// it back to the sender as message-sent (socket) or as the HTTP
// response body.
func (co *Coordinator) SendMessage(ctx context.Context, senderID int, in SendInput) (*models.Message, error) {
	conv, err := co.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.HasParticipant(senderID) {
		return nil, models.ErrConversationNotFound
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    conv.OtherParticipant(senderID),
		Type:           msgType,
		Text:           in.Text,
		MediaURL:       in.MediaURL,
		ThumbnailURL:   in.Thumbnail,
	}
	if !msg.HasContent() {
		return nil, models.ErrEmptyMessage
	}

	if err := co.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Push attempt. No retry, no timeout: a recipient that is offline
	// everywhere keeps the row queued until their next user-online.
	if co.push(ctx, msg.RecipientID, models.ReceiveMessageEvent(msg)) {
		msg.Delivered = true
		if err := co.store.MarkDelivered(ctx, msg.ID); err != nil {
			utils.LogError(err, "mark delivered")
		}
		co.notify(ctx, senderID, models.MessageDeliveredEvent(msg.ID))
	}

	return msg, nil
}

// Typing relays a typing indicator to the other participant if they
// are online right now; otherwise it vanishes. Nothing is persisted.
func (co *Coordinator) Typing(ctx context.Context, userID int, conversationID string, recipientID int, isTyping bool) {
	co.push(ctx, recipientID, models.UserTypingEvent(conversationID, isTyping))
}

// MarkRead sets every message in the conversation authored by the
// other participant to read, resets the reader's unread counter and
// notifies the other participant if online. Idempotent: a repeat call
// updates nothing.
func (co *Coordinator) MarkRead(ctx context.Context, readerID int, conversationID string) (int64, error) {
	conv, err := co.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if conv == nil || !conv.HasParticipant(readerID) {
		return 0, models.ErrConversationNotFound
	}

	updated, err := co.store.MarkConversationRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	co.push(ctx, conv.OtherParticipant(readerID), models.MessagesReadEvent(conversationID))
	return updated, nil
}

// Online reports whether userID is reachable for push, consulting the
// shared directory when one is configured.
func (co *Coordinator) Online(ctx context.Context, userID int) bool {
	if co.registry.Online(userID) {
		return true
	}
	if co.directory != nil {
		online, err := co.directory.Online(ctx, userID)
		if err != nil {
			utils.LogError(err, "presence lookup")
			return false
		}
		return online
	}
	return false
}

// DeliverLocal hands a fanned-out event from another instance to the
// matching local connection, if any. Wired as the fanout subscriber.
func (co *Coordinator) DeliverLocal(recipientID int, ev models.WSEvent) {
	if c, ok := co.registry.Get(recipientID); ok {
		if err := c.Send(ev); err != nil {
			utils.LogError(err, "fanout delivery")
		}
	}
}

// push emits ev to the recipient's local connection, falling back to
// the fanout channel when the directory shows them online on another
// instance. Reports whether a push was attempted anywhere; a fanned-out
// push is counted as delivered at most once without confirmation.
func (co *Coordinator) push(ctx context.Context, recipientID int, ev models.WSEvent) bool {
	if c, ok := co.registry.Get(recipientID); ok {
		if err := c.Send(ev); err != nil {
			utils.LogError(err, "push")
			return false
		}
		return true
	}
	if co.fanout != nil && co.directory != nil {
		online, err := co.directory.Online(ctx, recipientID)
		if err != nil || !online {
			return false
		}
		if err := co.fanout.Publish(ctx, recipientID, ev); err != nil {
			utils.LogError(err, "fanout publish")
			return false
		}
		return true
	}
	return false
}

// notify is a best-effort push to a single user with no queued
// fallback, used for delivery receipts.
func (co *Coordinator) notify(ctx context.Context, userID int, ev models.WSEvent) {
	co.push(ctx, userID, ev)
}
