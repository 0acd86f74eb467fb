package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"campus-chat/internal/models"
	"campus-chat/internal/realtime"
	"campus-chat/internal/services"
)

const historyLimit = 100

// CreateConversationHandler finds or creates the single conversation
// between the authenticated user and the recipient.
func CreateConversationHandler(chatService *services.ChatService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		var req models.CreateConversationRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if req.RecipientID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Recipient ID required"})
		}

		conv, isNew, err := chatService.GetOrCreateConversation(c.Context(), userID, req.RecipientID)
		if err != nil {
			if errors.Is(err, models.ErrInvalidRecipient) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		return c.JSON(models.ConversationResponse{ConversationID: conv.ID, IsNew: isNew})
	}
}

// ListConversationsHandler returns the authenticated user's
// conversations with the other participant's online status attached.
func ListConversationsHandler(chatService *services.ChatService, coord *realtime.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)

		summaries, err := chatService.ListConversations(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch conversations"})
		}

		for i := range summaries {
			if coord.Online(c.Context(), summaries[i].OtherUserID) {
				summaries[i].OtherUserStatus = "online"
			} else {
				summaries[i].OtherUserStatus = "offline"
			}
		}

		if summaries == nil {
			summaries = []models.ConversationSummary{}
		}
		return c.JSON(summaries)
	}
}

// ListMessagesHandler returns a conversation's history, oldest first.
// Side effect: fetching history counts as opening the conversation, so
// the reader's unread messages are marked read and their counter reset.
func ListMessagesHandler(chatService *services.ChatService, coord *realtime.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		conv, err := chatService.GetConversation(c.Context(), conversationID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if conv == nil || !conv.HasParticipant(userID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": models.ErrConversationNotFound.Error()})
		}

		messages, err := chatService.ListMessages(c.Context(), conversationID, historyLimit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		if _, err := coord.MarkRead(c.Context(), userID, conversationID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		if messages == nil {
			messages = []models.Message{}
		}
		return c.JSON(messages)
	}
}

// SendMessageHandler is the HTTP fallback to the socket send path. It
// runs the same coordinator pipeline, so delivery semantics are
// identical; the HTTP response replaces the message-sent event.
func SendMessageHandler(coord *realtime.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		conversationID := c.Params("id")

		var req models.SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}

		msg, err := coord.SendMessage(c.Context(), userID, realtime.SendInput{
			ConversationID: conversationID,
			Text:           req.Text,
			Type:           models.MessageType(req.Type),
			MediaURL:       req.MediaURL,
			Thumbnail:      req.Thumbnail,
		})
		if err != nil {
			switch {
			case errors.Is(err, models.ErrConversationNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			case errors.Is(err, models.ErrEmptyMessage):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
		}

		return c.Status(fiber.StatusCreated).JSON(msg)
	}
}

// ListUsersHandler lists all other users with their online status.
func ListUsersHandler(userService *services.UserService, coord *realtime.Coordinator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authUserID := c.Locals("user_id").(int)

		users, err := userService.ListUsers(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch users"})
		}

		resp := make([]fiber.Map, 0, len(users))
		for _, u := range users {
			if u.ID == authUserID {
				continue
			}
			status := "offline"
			if coord.Online(c.Context(), u.ID) {
				status = "online"
			}
			resp = append(resp, fiber.Map{
				"id":         u.ID,
				"username":   u.Username,
				"created_at": u.CreatedAt,
				"status":     status,
			})
		}

		return c.JSON(resp)
	}
}
