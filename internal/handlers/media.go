package handlers

import (
	"github.com/gofiber/fiber/v2"

	"campus-chat/internal/storage"
)

// MediaUploadHandler accepts a multipart upload (field name: "media"),
// stores it and returns a URL usable as a message's media_url.
func MediaUploadHandler(store *storage.S3Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("media")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "media file is required"})
		}

		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
		}
		defer file.Close()

		contentType := fileHeader.Header.Get("Content-Type")
		out, err := store.Upload(c.Context(), storage.UploadInput{
			Reader:      file,
			ContentType: contentType,
			Size:        fileHeader.Size,
			Filename:    fileHeader.Filename,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store media"})
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"url":  out.URL,
			"type": storage.MediaTypeFor(contentType),
			"size": out.Size,
		})
	}
}
