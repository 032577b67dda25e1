package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/forecaster/internal/models"
	"github.com/soltixdb/forecaster/internal/services"
)

// SubmitForecast creates a forecast job
// POST /v1/forecasts
func (h *Handler) SubmitForecast(c *fiber.Ctx) error {
	var body models.SubmitForecastRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_JSON",
				Message: "Failed to parse JSON body",
				Path:    c.Path(),
				Details: map[string]interface{}{"error": err.Error()},
			},
		})
	}

	job, err := h.jobService.Submit(c.UserContext(), &services.SubmitRequest{
		UploadID:     body.UploadID,
		TimeColumn:   body.TimeColumn,
		TargetColumn: body.TargetColumn,
		Exogenous:    body.Exogenous,
		Horizon:      body.Horizon,
		Model:        body.Model,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(models.SubmitForecastResponse{
		JobID:    job.ID,
		UploadID: job.UploadID,
		Status:   string(job.Status),
		Message:  "Forecast job queued",
	})
}

// GetForecast returns the status of a forecast job
// GET /v1/forecasts/:id
func (h *Handler) GetForecast(c *fiber.Ctx) error {
	job, err := h.jobService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(models.NewJobResponse(job))
}

// ListForecasts lists forecast jobs newest first
// GET /v1/forecasts?limit=&offset=
func (h *Handler) ListForecasts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	offset := c.QueryInt("offset", 0)

	jobs, err := h.jobService.List(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	resp := models.JobListResponse{
		Jobs:   make([]models.JobResponse, len(jobs)),
		Count:  len(jobs),
		Limit:  h.jobService.ClampLimit(limit),
		Offset: max(offset, 0),
	}
	for i, job := range jobs {
		resp.Jobs[i] = models.NewJobResponse(job)
	}
	return c.JSON(resp)
}

// GetForecastResult returns the forecast record of a completed job, or the
// failure record of a failed one
// GET /v1/forecasts/:id/result
func (h *Handler) GetForecastResult(c *fiber.Ctx) error {
	result, err := h.jobService.Result(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if result.Record != nil {
		return c.JSON(result.Record)
	}
	return c.JSON(result.Failure)
}

// GetForecastFile downloads forecast.csv or forecast.png
// GET /v1/forecasts/:id/files/:name
func (h *Handler) GetForecastFile(c *fiber.Ctx) error {
	name := c.Params("name")
	path, err := h.jobService.ArtifactPath(c.UserContext(), c.Params("id"), name)
	if err != nil {
		return err
	}
	return c.Download(path, name)
}
