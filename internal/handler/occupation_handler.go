package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

type occupationService interface {
	Get(ctx context.Context, kind models.OccupationKind, id string) (*models.Occupation, error)
	CreateClass(ctx context.Context, req models.ClassRequest) (*models.Occupation, error)
	UpdateClass(ctx context.Context, id string, req models.ClassRequest) (*models.Occupation, error)
	CreateExam(ctx context.Context, req models.ExamRequest) (*models.Occupation, error)
	UpdateExam(ctx context.Context, id string, req models.ExamRequest) (*models.Occupation, error)
	Delete(ctx context.Context, kind models.OccupationKind, id string) error
}

type timetableQuery interface {
	Query(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, *models.Pagination, bool, error)
}

// OccupationHandler exposes class and exam occupations.
type OccupationHandler struct {
	occupations occupationService
	query       timetableQuery
}

// NewOccupationHandler builds a new handler.
func NewOccupationHandler(occupations occupationService, query timetableQuery) *OccupationHandler {
	return &OccupationHandler{occupations: occupations, query: query}
}

// ListClasses godoc
// @Summary List weekly classes
// @Tags Classes
// @Produce json
// @Param room_id query string false "Room ID"
// @Param weekday query string false "Weekday"
// @Param batch query string false "Batch"
// @Param semester query string false "Semester"
// @Param course_code query string false "Course code"
// @Param instructor query string false "Instructor"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *OccupationHandler) ListClasses(c *gin.Context) {
	h.list(c, models.OccupationClass)
}

// GetClass godoc
// @Summary Get a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *OccupationHandler) GetClass(c *gin.Context) {
	h.get(c, models.OccupationClass)
}

// CreateClass godoc
// @Summary Schedule a weekly class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body models.ClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes [post]
func (h *OccupationHandler) CreateClass(c *gin.Context) {
	var req models.ClassRequest
	if !bindJSON(c, &req, "invalid class payload") {
		return
	}
	occupation, err := h.occupations.CreateClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, occupation)
}

// UpdateClass godoc
// @Summary Replace a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.ClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *OccupationHandler) UpdateClass(c *gin.Context) {
	var req models.ClassRequest
	if !bindJSON(c, &req, "invalid class payload") {
		return
	}
	occupation, err := h.occupations.UpdateClass(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, occupation, nil)
}

// DeleteClass godoc
// @Summary Delete a class
// @Tags Classes
// @Param id path string true "Class ID"
// @Success 204
// @Router /classes/{id} [delete]
func (h *OccupationHandler) DeleteClass(c *gin.Context) {
	h.delete(c, models.OccupationClass)
}

// ListExams godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param room_id query string false "Room ID"
// @Param date_from query string false "First date (YYYY-MM-DD)"
// @Param date_to query string false "Last date (YYYY-MM-DD)"
// @Param batch query string false "Batch"
// @Param semester query string false "Semester"
// @Param exam_type query string false "Exam type"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *OccupationHandler) ListExams(c *gin.Context) {
	h.list(c, models.OccupationExam)
}

// GetExam godoc
// @Summary Get an exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *OccupationHandler) GetExam(c *gin.Context) {
	h.get(c, models.OccupationExam)
}

// CreateExam godoc
// @Summary Schedule an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body models.ExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams [post]
func (h *OccupationHandler) CreateExam(c *gin.Context) {
	var req models.ExamRequest
	if !bindJSON(c, &req, "invalid exam payload") {
		return
	}
	occupation, err := h.occupations.CreateExam(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, occupation)
}

// UpdateExam godoc
// @Summary Replace an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body models.ExamRequest true "Exam payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *OccupationHandler) UpdateExam(c *gin.Context) {
	var req models.ExamRequest
	if !bindJSON(c, &req, "invalid exam payload") {
		return
	}
	occupation, err := h.occupations.UpdateExam(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, occupation, nil)
}

// DeleteExam godoc
// @Summary Delete an exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Success 204
// @Router /exams/{id} [delete]
func (h *OccupationHandler) DeleteExam(c *gin.Context) {
	h.delete(c, models.OccupationExam)
}

func (h *OccupationHandler) list(c *gin.Context, kind models.OccupationKind) {
	filter, err := occupationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Kind = kind
	items, pagination, hit, err := h.query.Query(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, items, pagination)
}

func (h *OccupationHandler) get(c *gin.Context, kind models.OccupationKind) {
	occupation, err := h.occupations.Get(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, occupation, nil)
}

func (h *OccupationHandler) delete(c *gin.Context, kind models.OccupationKind) {
	if err := h.occupations.Delete(c.Request.Context(), kind, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
