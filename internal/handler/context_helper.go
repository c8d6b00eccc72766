package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

const maxPageSize = 200

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// respond writes data with pagination and whatever response meta the
// request collected.
func respond(c *gin.Context, data interface{}, pagination *models.Pagination) {
	response.JSON(c, http.StatusOK, data, pagination, middleware.ExtractMeta(c))
}

func parsePage(c *gin.Context) (int, int, error) {
	page, err := intQuery(c, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := intQuery(c, "page_size")
	if err != nil {
		return 0, 0, err
	}
	if page < 0 {
		return 0, 0, appErrors.Invalid("page", "page must be positive")
	}
	if size < 0 || size > maxPageSize {
		return 0, 0, appErrors.Invalid("page_size", "page_size must be between 1 and 200")
	}
	return page, size, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Invalid(name, name+" must be an integer")
	}
	return value, nil
}

func dateQuery(c *gin.Context, names ...string) (models.Date, error) {
	for _, name := range names {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		date, err := models.ParseDate(raw)
		if err != nil {
			return models.Date{}, appErrors.Invalid(name, err.Error())
		}
		return date, nil
	}
	return models.Date{}, nil
}

// occupationFilter reads the shared timetable filter parameters. Absent
// parameters are wildcards.
func occupationFilter(c *gin.Context) (models.OccupationFilter, error) {
	filter := models.OccupationFilter{
		RoomID:     strings.TrimSpace(c.Query("room_id")),
		Batch:      strings.TrimSpace(c.Query("batch")),
		Semester:   strings.TrimSpace(c.Query("semester")),
		CourseCode: strings.TrimSpace(c.Query("course_code")),
		Instructor: strings.TrimSpace(c.Query("instructor")),
	}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind, err := models.ParseOccupationKind(raw)
		if err != nil {
			return filter, appErrors.Invalid("kind", err.Error())
		}
		filter.Kind = kind
	}
	if raw := strings.TrimSpace(c.Query("weekday")); raw != "" {
		day, err := models.ParseWeekday(raw)
		if err != nil {
			return filter, appErrors.Invalid("weekday", err.Error())
		}
		filter.Weekday = day
	}
	if raw := strings.TrimSpace(c.Query("exam_type")); raw != "" {
		examType, err := models.ParseExamType(raw)
		if err != nil {
			return filter, appErrors.Invalid("exam_type", err.Error())
		}
		filter.ExamType = examType
	}
	if raw := strings.TrimSpace(c.Query("booking_status")); raw != "" {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			return filter, appErrors.Invalid("booking_status", err.Error())
		}
		filter.BookingStatus = status
	}

	var err error
	if filter.DateFrom, err = dateQuery(c, "date_from", "from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = dateQuery(c, "date_to", "to"); err != nil {
		return filter, err
	}
	if !filter.DateFrom.IsZero() && !filter.DateTo.IsZero() && filter.DateTo.Before(filter.DateFrom) {
		return filter, appErrors.Invalid("date_to", "date_to must not be before date_from")
	}
	if filter.Page, filter.PageSize, err = parsePage(c); err != nil {
		return filter, err
	}
	return filter, nil
}

func bookingFilter(c *gin.Context) (models.BookingFilter, error) {
	filter := models.BookingFilter{RoomID: strings.TrimSpace(c.Query("room_id"))}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			return filter, appErrors.Invalid("status", err.Error())
		}
		filter.Status = status
	}
	var err error
	if filter.DateFrom, err = dateQuery(c, "date_from", "from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = dateQuery(c, "date_to", "to"); err != nil {
		return filter, err
	}
	if filter.Page, filter.PageSize, err = parsePage(c); err != nil {
		return filter, err
	}
	return filter, nil
}

// gridOptions overlays day_start, day_end and slot_minutes on defaults.
func gridOptions(c *gin.Context, defaults models.GridOptions) (models.GridOptions, error) {
	opts := defaults
	if raw := strings.TrimSpace(c.Query("day_start")); raw != "" {
		at, err := models.ParseClock(raw)
		if err != nil {
			return opts, appErrors.Invalid("day_start", err.Error())
		}
		opts.DayStart = at
	}
	if raw := strings.TrimSpace(c.Query("day_end")); raw != "" {
		at, err := models.ParseClock(raw)
		if err != nil {
			return opts, appErrors.Invalid("day_end", err.Error())
		}
		opts.DayEnd = at
	}
	slot, err := intQuery(c, "slot_minutes")
	if err != nil {
		return opts, err
	}
	if slot != 0 {
		opts.SlotMinutes = slot
	}
	return opts, nil
}
