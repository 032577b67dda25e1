package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/forecaster/internal/models"
	"github.com/soltixdb/forecaster/internal/services"
)

// Upload handles CSV uploads
// POST /v1/uploads (multipart field "file")
func (h *Handler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return services.NewServiceErrorWithDetails(services.CodeInvalidRequest, "multipart field 'file' is required", map[string]interface{}{
			"error": err.Error(),
		})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	upload, err := h.uploadService.Upload(c.UserContext(), fh.Filename, f)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toUploadResponse(upload))
}

// GetUpload returns the columns and preview of an upload
// GET /v1/uploads/:id
func (h *Handler) GetUpload(c *fiber.Ctx) error {
	upload, err := h.uploadService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toUploadResponse(upload))
}

func toUploadResponse(u *services.Upload) models.UploadResponse {
	candidates := make([]models.TimeCandidate, len(u.TimeCandidates))
	for i, tc := range u.TimeCandidates {
		candidates[i] = models.TimeCandidate{Column: tc.Column, Score: tc.Score}
	}
	preview := u.Preview.Preview
	if preview == nil {
		preview = []map[string]string{}
	}
	return models.UploadResponse{
		UploadID:       u.UploadID,
		Filename:       u.Filename,
		Columns:        u.Columns,
		TimeCandidates: candidates,
		Preview:        preview,
		CreatedAt:      u.CreatedAt.Format(time.RFC3339),
	}
}
