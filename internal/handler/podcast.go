package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/coeus-solutions/api-podcast/internal/middleware"
	"github.com/coeus-solutions/api-podcast/internal/model"
	"github.com/coeus-solutions/api-podcast/internal/service"
	"github.com/coeus-solutions/api-podcast/internal/token"
	"github.com/coeus-solutions/api-podcast/pkg/response"
)

type PodcastHandler struct {
	service   *service.PodcastService
	clips     *service.ClipService
	validator *validator.Validate
}

func NewPodcastHandler(svc *service.PodcastService, clips *service.ClipService, v *validator.Validate) *PodcastHandler {
	return &PodcastHandler{
		service:   svc,
		clips:     clips,
		validator: v,
	}
}

// Submit handles POST /api/podcasts
func (h *PodcastHandler) Submit(c *fiber.Ctx) error {
	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	accountID := middleware.GetUserID(c)

	mediaJob := &model.MediaJob{
		MediaKey:  req.MediaKey,
		Duration:  req.Duration,
		AccountID: accountID,
		Title:     req.Title,
	}

	result, err := h.service.Submit(c.Context(), accountID, mediaJob)
	if err != nil {
		var insufficient *token.InsufficientTokensError
		if errors.As(err, &insufficient) {
			return response.InsufficientTokens(c, err.Error(), map[string]interface{}{
				"required":  insufficient.Required,
				"available": insufficient.Available,
			})
		}
		if errors.Is(err, token.ErrAccountNotFound) {
			return response.NotFound(c, "Account not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/podcasts/jobs/:jobId
func (h *PodcastHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/podcasts/jobs/:jobId/result
func (h *PodcastHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/podcasts/jobs/:jobId/cancel
func (h *PodcastHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.service.Cancel(c.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job already finished" {
			return response.ValidationError(c, "Job already finished", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// Delete handles DELETE /api/podcasts/jobs/:jobId. Stored artifacts are
// removed best-effort; partial failure still reports success with the
// count of objects actually deleted.
func (h *PodcastHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job has no stored artifacts", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	keys := make([]string, 0, len(result.KeyPoints)+1)
	for _, kp := range result.KeyPoints {
		keys = append(keys, kp.ClipKey)
	}
	keys = append(keys, result.MediaKey)

	deleted := h.clips.Cleanup(c.Context(), keys)

	return response.OK(c, fiber.Map{
		"jobId":   jobID,
		"deleted": deleted,
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
