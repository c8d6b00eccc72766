package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/service"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

type exportJobService interface {
	CreateJob(ctx context.Context, req models.ExportRequest, actorID string) (*models.ExportJobStatus, error)
	GetStatus(ctx context.Context, id string) (*models.ExportJobStatus, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

var exportContentTypes = map[models.ExportFormat]string{
	models.ExportFormatCSV: "text/csv",
	models.ExportFormatPDF: "application/pdf",
	models.ExportFormatICS: "text/calendar; charset=utf-8",
}

// ExportHandler exposes asynchronous timetable exports.
type ExportHandler struct {
	jobs exportJobService
}

// NewExportHandler constructs the handler.
func NewExportHandler(jobs exportJobService) *ExportHandler {
	return &ExportHandler{jobs: jobs}
}

// Create godoc
// @Summary Queue a timetable export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body models.ExportRequest true "Export selection"
// @Success 202 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req models.ExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	status, err := h.jobs.CreateJob(c.Request.Context(), req, middleware.ActorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, status, nil)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, status, nil)
}

// Download godoc
// @Summary Download a finished export through its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download token required"))
		return
	}
	download, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	contentType, ok := exportContentTypes[download.Format]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, nil)
}
