package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"campus-chat/internal/config"
	"campus-chat/internal/db"
	"campus-chat/internal/handlers"
	"campus-chat/internal/models"
	"campus-chat/internal/presence"
	"campus-chat/internal/realtime"
	"campus-chat/internal/services"
	"campus-chat/internal/storage"
)

func Run() {
	cfg := config.MustLoad()

	// Init DB
	if err := db.InitDB(cfg.Database); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Services
	tokenService := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	userService := services.NewUserService(tokenService)
	chatService := services.NewChatService()

	// Realtime core: in-process registry plus the optional Redis
	// presence directory and cross-instance delivery fanout.
	registry := presence.NewMemory()
	coord := realtime.NewCoordinator(chatService, registry)

	fanoutCtx, stopFanout := context.WithCancel(context.Background())
	defer stopFanout()

	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Connected to Redis")

		directory := presence.NewDirectory(redisClient, cfg.Redis.PresenceTTL)
		fanout := presence.NewFanout(redisClient)
		coord.WithCluster(directory, fanout)
		go fanout.Subscribe(fanoutCtx, coord.DeliverLocal)
	}

	// Fiber App
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Routes
	api := app.Group("/api")

	// Public Routes
	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, models.ErrUserExists) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	api.Post("/refresh", func(c *fiber.Ctx) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
		}
		if body.RefreshToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "refresh_token required"})
		}
		res, err := userService.Refresh(body.RefreshToken)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid refresh token"})
		}
		return c.JSON(res)
	})

	// Protected Routes
	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware(tokenService))

	protected.Get("/users", handlers.ListUsersHandler(userService, coord))

	protected.Post("/conversations", handlers.CreateConversationHandler(chatService))
	protected.Get("/conversations", handlers.ListConversationsHandler(chatService, coord))
	protected.Get("/conversations/:id/messages", handlers.ListMessagesHandler(chatService, coord))
	protected.Post("/conversations/:id/messages", handlers.SendMessageHandler(coord))

	if cfg.S3.Enabled() {
		mediaStore := storage.NewS3Storage(cfg.S3)
		protected.Post("/media", handlers.MediaUploadHandler(mediaStore))
	} else {
		log.Println("Warning: S3 not configured, media upload disabled")
	}

	// Health Check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket Route
	// Note: Middleware order matters. AuthMiddleware checks the token
	// before the upgrade completes, so an unauthenticated connection
	// never processes a single event.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware(tokenService))
	app.Get("/ws", handlers.WebSocketHandler(coord))

	// Start Server
	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful Shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c // Block until signal
	log.Println("Gracefully shutting down...")
	stopFanout()
	_ = app.Shutdown()
	log.Println("Server shutdown complete")
}
