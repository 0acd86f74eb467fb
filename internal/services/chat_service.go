package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"campus-chat/internal/db"
	"campus-chat/internal/models"
	"campus-chat/internal/utils"
)

type ChatService struct{}

func NewChatService() *ChatService {
	return &ChatService{}
}

// GetOrCreateConversation returns the single conversation for the
// unordered pair, creating it if absent. The unique index on
// (user_low, user_high) serializes concurrent first-contact attempts;
// an insert losing that race falls back to reading the winner's row.
func (s *ChatService) GetOrCreateConversation(ctx context.Context, userID1, userID2 int) (*models.Conversation, bool, error) {
	if userID1 == userID2 {
		return nil, false, models.ErrInvalidRecipient
	}
	low, high := models.PairKey(userID1, userID2)

	conv, err := s.getByPair(ctx, low, high)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}

	query := `
		INSERT INTO conversations (id, user_low, user_high)
		VALUES ($1, $2, $3)
		RETURNING id, user_low, user_high, last_message_id, last_message_at,
		          unread_low, unread_high, created_at
	`
	conv, err = scanConversation(db.Pool.QueryRow(ctx, query, uuid.NewString(), low, high))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			conv, err = s.getByPair(ctx, low, high)
			if err != nil {
				return nil, false, err
			}
			return conv, false, nil
		}
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, true, nil
}

func (s *ChatService) getByPair(ctx context.Context, low, high int) (*models.Conversation, error) {
	query := `
		SELECT id, user_low, user_high, last_message_id, last_message_at,
		       unread_low, unread_high, created_at
		FROM conversations
		WHERE user_low = $1 AND user_high = $2
	`
	conv, err := scanConversation(db.Pool.QueryRow(ctx, query, low, high))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation by pair: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id, or nil if absent.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, user_low, user_high, last_message_id, last_message_at,
		       unread_low, unread_high, created_at
		FROM conversations
		WHERE id = $1
	`
	conv, err := scanConversation(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// SaveMessage persists a new message row (the durability point of the
// send pipeline), then updates the parent conversation's last-message
// pointer and the recipient's unread counter. A bookkeeping failure
// after the row insert is logged and tolerated: the message exists and
// the conversation pointer drifts until the next send.
func (s *ChatService) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.ID = uuid.NewString()
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id,
		                      type, text, media_url, thumbnail_url, delivered, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, FALSE)
		RETURNING created_at
	`
	err := db.Pool.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID,
		msg.Type, msg.Text, msg.MediaURL, msg.ThumbnailURL,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	bookkeeping := `
		UPDATE conversations SET
			last_message_id = $1,
			last_message_at = $2,
			unread_low = unread_low + CASE WHEN user_low = $3 THEN 1 ELSE 0 END,
			unread_high = unread_high + CASE WHEN user_high = $3 THEN 1 ELSE 0 END
		WHERE id = $4
	`
	if _, err := db.Pool.Exec(ctx, bookkeeping, msg.ID, msg.CreatedAt, msg.RecipientID, msg.ConversationID); err != nil {
		utils.LogError(err, "conversation bookkeeping")
	}
	return nil
}

// ListMessages returns the most recent messages of a conversation,
// oldest first.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, recipient_id, type,
		       COALESCE(text, ''), COALESCE(media_url, ''), COALESCE(thumbnail_url, ''),
		       delivered, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UndeliveredFor returns every queued message addressed to userID,
// oldest first, for the reconnect sweep.
func (s *ChatService) UndeliveredFor(ctx context.Context, userID int) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, recipient_id, type,
		       COALESCE(text, ''), COALESCE(media_url, ''), COALESCE(thumbnail_url, ''),
		       delivered, is_read, created_at
		FROM messages
		WHERE recipient_id = $1 AND NOT delivered
		ORDER BY created_at ASC
	`
	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying undelivered messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *ChatService) MarkDelivered(ctx context.Context, messageID string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE messages SET delivered = TRUE WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("marking delivered: %w", err)
	}
	return nil
}

// MarkConversationRead flips every message authored by the other
// participant to read and zeroes the reader's unread counter. Returns
// the number of newly-read messages; repeat calls update nothing.
func (s *ChatService) MarkConversationRead(ctx context.Context, conversationID string, readerID int) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE messages SET is_read = TRUE
		 WHERE conversation_id = $1 AND recipient_id = $2 AND NOT is_read`,
		conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}

	_, err = db.Pool.Exec(ctx,
		`UPDATE conversations SET
			unread_low = CASE WHEN user_low = $2 THEN 0 ELSE unread_low END,
			unread_high = CASE WHEN user_high = $2 THEN 0 ELSE unread_high END
		 WHERE id = $1`,
		conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("resetting unread counter: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListConversations returns the user's conversations ordered by most
// recent activity, with the other participant resolved.
func (s *ChatService) ListConversations(ctx context.Context, userID int) ([]models.ConversationSummary, error) {
	query := `
		SELECT c.id, u.id, u.username,
		       COALESCE(m.text, ''), COALESCE(m.type, ''), c.last_message_at,
		       CASE WHEN c.user_low = $1 THEN c.unread_low ELSE c.unread_high END
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user_low = $1 THEN c.user_high ELSE c.user_low END
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.user_low = $1 OR c.user_high = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
	`
	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var item models.ConversationSummary
		if err := rows.Scan(
			&item.ConversationID,
			&item.OtherUserID,
			&item.OtherUsername,
			&item.LastMessageText,
			&item.LastMessageType,
			&item.LastMessageAt,
			&item.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		summaries = append(summaries, item)
	}
	return summaries, nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.UserLow,
		&conv.UserHigh,
		&conv.LastMessageID,
		&conv.LastMessageAt,
		&conv.UnreadLow,
		&conv.UnreadHigh,
		&conv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Type,
			&msg.Text,
			&msg.MediaURL,
			&msg.ThumbnailURL,
			&msg.Delivered,
			&msg.Read,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
