package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"campus-chat/internal/models"
	"campus-chat/internal/realtime"
	"campus-chat/internal/services"
	"campus-chat/internal/utils"
)

const (
	eventTimeout    = 10 * time.Second
	presencePeriod  = 20 * time.Second
	maxMessageBytes = 64 * 1024
)

// wsClient wraps a websocket connection as a presence handle. Fiber's
// websocket conns are not safe for concurrent writes, so every Send
// serializes through the mutex.
type wsClient struct {
	id       string
	userID   int
	username string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// WebSocketHandler is the realtime gateway read loop. The connection
// was already authenticated by AuthMiddleware; the user identity in
// locals binds to the connection for its lifetime.
func WebSocketHandler(coord *realtime.Coordinator) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		cl := &wsClient{
			id:       uuid.New().String(),
			userID:   conn.Locals("user_id").(int),
			username: conn.Locals("username").(string),
			conn:     conn,
		}

		stop := make(chan struct{})
		defer func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			coord.Disconnect(ctx, cl)
			cancel()
			conn.Close()
		}()

		// Keep the shared presence directory entry alive while the
		// connection does.
		go func() {
			ticker := time.NewTicker(presencePeriod)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
					coord.RefreshPresence(ctx, cl.userID)
					cancel()
				}
			}
		}()

		conn.SetReadLimit(maxMessageBytes)

		for {
			msgType, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("ws read error: %v", err)
				}
				break
			}
			if msgType != websocket.TextMessage {
				continue
			}

			var ev models.WSEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				utils.LogError(err, "ws event parse")
				continue
			}

			handleEvent(coord, cl, ev)
		}
	})
}

// handleEvent dispatches one inbound event to the delivery
// coordinator. Failures are terminal at this boundary: they are
// reported back to this client only and never retried.
func handleEvent(coord *realtime.Coordinator, cl *wsClient, ev models.WSEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch ev.Event {
	case models.EventUserOnline:
		coord.UserOnline(ctx, cl, cl.userID)

	case models.EventSendMessage:
		msg, err := coord.SendMessage(ctx, cl.userID, realtime.SendInput{
			ConversationID: ev.ConversationID,
			Text:           ev.Text,
			Type:           models.MessageType(ev.Type),
			MediaURL:       ev.MediaURL,
			Thumbnail:      ev.Thumbnail,
		})
		if err != nil {
			utils.LogError(err, "send message")
			_ = cl.Send(models.MessageErrorEvent(err))
			return
		}
		_ = cl.Send(models.MessageSentEvent(msg))

	case models.EventTyping:
		coord.Typing(ctx, cl.userID, ev.ConversationID, ev.RecipientID, ev.IsTyping)

	case models.EventMarkAsRead:
		if _, err := coord.MarkRead(ctx, cl.userID, ev.ConversationID); err != nil {
			utils.LogError(err, "mark as read")
			_ = cl.Send(models.MessageErrorEvent(err))
		}

	default:
		log.Printf("unknown event: %s", ev.Event)
	}
}

// WSUpgradeMiddleware upgrades the connection to WebSocket
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the bearer credential before any request or
// socket event is processed. Missing, malformed or expired tokens
// refuse the connection.
func AuthMiddleware(tokens *services.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Token from query param `access_token` or Authorization header
		token := c.Query("access_token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				token = authHeader[7:]
			}
		}

		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
		}

		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		return c.Next()
	}
}
