package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coeus-solutions/api-podcast/internal/service"
	"github.com/coeus-solutions/api-podcast/pkg/response"
)

const maxUploadSize = 500 * 1024 * 1024 // 500MB

const clipURLTTL = 1 * time.Hour

type UploadHandler struct {
	service *service.MediaUploadService
}

func NewUploadHandler(svc *service.MediaUploadService) *UploadHandler {
	return &UploadHandler{
		service: svc,
	}
}

// Media handles POST /api/media
func (h *UploadHandler) Media(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 500MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"audio/wav":   true,
		"audio/x-wav": true,
		"audio/wave":  true,
		"audio/mpeg":  true,
		"audio/mp3":   true,
		"audio/mp4":   true,
		"audio/x-m4a": true,
		"audio/ogg":   true,
		"video/mp4":   true,
		"video/webm":  true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: WAV, MP3, M4A, OGG, MP4, WebM", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Upload(c.Context(), file.Filename, f, file.Size)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// ClipURL handles GET /api/clips/*, returning a signed download URL for
// a stored clip key.
func (h *UploadHandler) ClipURL(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return response.ValidationError(c, "Clip key is required", nil)
	}

	result, err := h.service.SignedClipURL(c.Context(), key, clipURLTTL)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
