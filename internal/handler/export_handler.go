package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ramsalab/survey-api/internal/dto"
	"github.com/ramsalab/survey-api/internal/models"
	"github.com/ramsalab/survey-api/internal/service"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
	"github.com/ramsalab/survey-api/pkg/response"
)

type exportService interface {
	Enqueue(ctx context.Context, req dto.CreateExportRequest) (*models.ExportJob, error)
	Get(ctx context.Context, id string) (*models.ExportJob, error)
	List(ctx context.Context, limit int) ([]models.ExportJob, error)
	Links(job *models.ExportJob) (*service.ExportLinks, error)
	OpenArtifact(token string) (*os.File, string, error)
}

// ExportHandler exposes the export job endpoints.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create starts a new export run.
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.exports.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.describe(job))
}

// Get returns one export job with a signed download link when ready.
func (h *ExportHandler) Get(c *gin.Context) {
	job, err := h.exports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if job == nil {
		response.Error(c, appErrors.ErrExportNotFound)
		return
	}
	response.JSON(c, http.StatusOK, h.describe(job), nil)
}

// List returns recent export jobs.
func (h *ExportHandler) List(c *gin.Context) {
	limit := 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		limit = v
	}

	jobs, err := h.exports.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.ExportJobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, *h.describe(&jobs[i]))
	}
	response.JSON(c, http.StatusOK, out, map[string]interface{}{"count": len(out)})
}

// Download streams a completed artifact referenced by a signed token.
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "missing download token"))
		return
	}

	file, name, err := h.exports.OpenArtifact(token)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrExportLinkInvalid.Code, appErrors.ErrExportLinkInvalid.Status, appErrors.ErrExportLinkInvalid.Message))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Cache-Control", "no-store")
	http.ServeContent(c.Writer, c.Request, name, exportModTime(file), file)
}

func exportModTime(f *os.File) time.Time {
	if info, err := f.Stat(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

func (h *ExportHandler) describe(job *models.ExportJob) *dto.ExportJobResponse {
	out := &dto.ExportJobResponse{
		ID:           job.ID,
		SurveyName:   job.SurveyName,
		Status:       job.Status,
		IncludeMedia: job.IncludeMedia,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if links, err := h.exports.Links(job); err == nil {
		out.DownloadURL = &links.URL
		out.ExpiresAt = &links.ExpiresAt
	}
	return out
}
