package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

type timetableService interface {
	Query(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, *models.Pagination, bool, error)
	Timeline(ctx context.Context, filter models.OccupationFilter) (*models.Timeline, bool, error)
	Grid(ctx context.Context, filter models.OccupationFilter, opts models.GridOptions) (*models.Grid, bool, error)
	Options(ctx context.Context) (*models.TimetableOptions, bool, error)
	GridDefaults() models.GridOptions
}

// TimetableHandler serves the read projections of the schedule ledger.
type TimetableHandler struct {
	query timetableService
}

// NewTimetableHandler builds a new handler.
func NewTimetableHandler(query timetableService) *TimetableHandler {
	return &TimetableHandler{query: query}
}

// Flat godoc
// @Summary Filtered flat list of occupations
// @Tags Timetable
// @Produce json
// @Param room_id query string false "Room ID"
// @Param kind query string false "CLASS, EXAM or BOOKING"
// @Param weekday query string false "Weekday"
// @Param date_from query string false "First date"
// @Param date_to query string false "Last date"
// @Param batch query string false "Batch"
// @Param semester query string false "Semester"
// @Param course_code query string false "Course code"
// @Param instructor query string false "Instructor"
// @Param exam_type query string false "Exam type"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetable [get]
func (h *TimetableHandler) Flat(c *gin.Context) {
	filter, err := occupationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, hit, err := h.query.Query(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, items, pagination)
}

// Timeline godoc
// @Summary Occupations grouped by date, weekly classes resolved into dates
// @Tags Timetable
// @Produce json
// @Param from query string true "First date"
// @Param to query string true "Last date"
// @Success 200 {object} response.Envelope
// @Router /timetable/timeline [get]
func (h *TimetableHandler) Timeline(c *gin.Context) {
	filter, err := occupationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	timeline, hit, err := h.query.Timeline(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, timeline, nil)
}

// Grid godoc
// @Summary Weekday by time-slot grid
// @Tags Timetable
// @Produce json
// @Param day_start query string false "First slot start (HH:MM)"
// @Param day_end query string false "Last slot end (HH:MM)"
// @Param slot_minutes query int false "Slot length in minutes"
// @Success 200 {object} response.Envelope
// @Router /timetable/grid [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	filter, err := occupationFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	opts, err := gridOptions(c, h.query.GridDefaults())
	if err != nil {
		response.Error(c, err)
		return
	}
	grid, hit, err := h.query.Grid(c.Request.Context(), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, grid, nil)
}

// Options godoc
// @Summary Distinct filter values
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/options [get]
func (h *TimetableHandler) Options(c *gin.Context) {
	options, hit, err := h.query.Options(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, options, nil)
}
