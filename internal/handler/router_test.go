package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	"github.com/noah-isme/campus-scheduler/internal/service"
)

type apiEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *apiError              `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

type testAPI struct {
	router   *gin.Engine
	verifier *service.TokenVerifier
	admin    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	validate := service.NewValidator()
	logger := zap.NewNop()

	rooms := service.NewRoomService(store, nil, nil, validate, logger)
	occupations := service.NewOccupationService(store, nil, nil, validate, logger)
	bookings := service.NewBookingService(store, nil, nil, service.BookingServiceConfig{}, validate, logger)
	query := service.NewQueryService(store, nil, nil, service.QueryServiceConfig{TimelineMaxDays: 31}, logger)
	verifier := service.NewTokenVerifier("handler-secret")

	router := gin.New()
	RegisterRoutes(router, RouterConfig{
		APIPrefix:   "/api/v1",
		Auth:        verifier,
		Logger:      logger,
		Rooms:       NewRoomHandler(rooms, query),
		Occupations: NewOccupationHandler(occupations, query),
		Bookings:    NewBookingHandler(bookings, logger),
		Timetable:   NewTimetableHandler(query),
		Ops:         NewMetricsHandler(service.NewMetricsService(), nil, logger),
	})

	admin, err := verifier.Sign(models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	return &testAPI{router: router, verifier: verifier, admin: admin}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var envelope apiEnvelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && w.Code != http.StatusNoContent {
		_ = json.Unmarshal(w.Body.Bytes(), &envelope)
	}
	return w, envelope
}

func (a *testAPI) createRoom(t *testing.T, name string) models.Room {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/rooms", a.admin, models.CreateRoomRequest{Name: name, Capacity: 40})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.Room
	require.NoError(t, json.Unmarshal(env.Data, &room))
	return room
}

func classPayload(roomID, weekday, start, end string) models.ClassRequest {
	return models.ClassRequest{
		RoomID: roomID, Weekday: weekday, Start: start, End: end,
		CourseCode: "CSE101", CourseTitle: "Structured Programming", Batch: "27", Semester: "1", Instructor: "Rahman",
	}
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	api := newTestAPI(t)
	payload := models.CreateRoomRequest{Name: "A101", Capacity: 40}

	w, env := api.do(t, http.MethodPost, "/api/v1/rooms", "", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/rooms", "not-a-jwt", payload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	student, err := api.verifier.Sign(models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}, time.Hour)
	require.NoError(t, err)
	w, env = api.do(t, http.MethodPost, "/api/v1/rooms", student, payload)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/bookings/pending", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/rooms", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassConflictMapsTo409WithDetails(t *testing.T) {
	api := newTestAPI(t)
	room := api.createRoom(t, "A101")

	w, env := api.do(t, http.MethodPost, "/api/v1/classes", api.admin, classPayload(room.ID, "Monday", "09:00", "10:30"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.Occupation
	require.NoError(t, json.Unmarshal(env.Data, &first))

	w, env = api.do(t, http.MethodPost, "/api/v1/classes", api.admin, classPayload(room.ID, "monday", "10:00", "11:00"))
	require.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	conflict, ok := env.Error.Details["conflict"].(map[string]interface{})
	require.True(t, ok, "conflict detail missing: %s", w.Body.String())
	assert.Equal(t, first.ID, conflict["occupation_id"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/classes", api.admin, classPayload(room.ID, "Monday", "10:30", "11:30"))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestValidationAndNotFoundMapping(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(t, http.MethodPost, "/api/v1/rooms", api.admin, `{"name": "A101", "capacity": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "capacity", env.Error.Details["field"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/rooms", api.admin, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/rooms/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/timetable?weekday=Funday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "weekday", env.Error.Details["field"])

	w, env = api.do(t, http.MethodGet, "/api/v1/timetable?date_from=2025-02-01&date_to=2025-01-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "date_to", env.Error.Details["field"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/timetable?page_size=1000", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingWorkflowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	room := api.createRoom(t, "Seminar Hall")

	submit := models.SubmitBookingRequest{
		RoomID: room.ID, Date: "2025-01-06", Start: "10:00", End: "11:00",
		RequestedBy: "Nadia", Email: "nadia@campus.test", Purpose: "Club meeting", Attendees: 20,
	}
	w, env := api.do(t, http.MethodPost, "/api/v1/bookings", "", submit)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.BookingRequest
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, models.BookingPending, first.Status)

	submit.Start, submit.End = "10:30", "11:30"
	w, env = api.do(t, http.MethodPost, "/api/v1/bookings", "", submit)
	require.Equal(t, http.StatusCreated, w.Code)
	var second models.BookingRequest
	require.NoError(t, json.Unmarshal(env.Data, &second))

	w, env = api.do(t, http.MethodGet, "/api/v1/bookings/pending", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []models.BookingRequest
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 2)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+first.ID+"/approve", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approval models.ApprovalResult
	require.NoError(t, json.Unmarshal(env.Data, &approval))
	assert.Equal(t, models.BookingApproved, approval.Booking.Status)
	assert.Equal(t, models.OccupationBooking, approval.Occupation.Kind)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+second.ID+"/approve", api.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+second.ID+"/reject", api.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+first.ID+"/withdraw", "", models.WithdrawBookingRequest{Email: "nadia@campus.test"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "STATE_ERROR", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+second.ID+"/withdraw", "", models.WithdrawBookingRequest{Email: "someone@campus.test"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/bookings/"+second.ID+"/reject", api.admin, models.RejectBookingRequest{Reason: "Hall already taken"})
	require.Equal(t, http.StatusOK, w.Code)
	var rejected models.BookingRequest
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	assert.Equal(t, models.BookingRejected, rejected.Status)

	w, env = api.do(t, http.MethodGet, "/api/v1/bookings?status=approved", api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approved []models.BookingRequest
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Len(t, approved, 1)
	assert.Equal(t, first.ID, approved[0].ID)

	w, env = api.do(t, http.MethodDelete, "/api/v1/exams/"+approval.Occupation.ID, api.admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "STATE_ERROR", env.Error.Code)
}

func TestTimetableProjectionsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	room := api.createRoom(t, "A101")
	w, _ := api.do(t, http.MethodPost, "/api/v1/classes", api.admin, classPayload(room.ID, "Monday", "09:00", "10:00"))
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := api.do(t, http.MethodGet, "/api/v1/classes?room_id="+room.ID+"&page=1&page_size=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	assert.Equal(t, false, env.Meta["cache_hit"])

	w, env = api.do(t, http.MethodGet, "/api/v1/timetable/timeline?from=2025-01-06&to=2025-01-13", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var timeline models.Timeline
	require.NoError(t, json.Unmarshal(env.Data, &timeline))
	assert.Len(t, timeline.Buckets, 2)

	w, _ = api.do(t, http.MethodGet, "/api/v1/timetable/timeline?from=2025-01-01&to=2025-03-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/timetable/grid?slot_minutes=30", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grid models.Grid
	require.NoError(t, json.Unmarshal(env.Data, &grid))
	assert.Equal(t, 30, grid.Options.SlotMinutes)

	w, _ = api.do(t, http.MethodGet, "/api/v1/timetable/grid?day_start=25:00", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/free?date=2025-01-06", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/free", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/timetable/options", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var options models.TimetableOptions
	require.NoError(t, json.Unmarshal(env.Data, &options))
	assert.Equal(t, []string{"27"}, options.Batches)
}

func TestRoomCascadeDeleteOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	room := api.createRoom(t, "A101")
	w, _ := api.do(t, http.MethodPost, "/api/v1/classes", api.admin, classPayload(room.ID, "Tuesday", "09:00", "10:00"))
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := api.do(t, http.MethodDelete, "/api/v1/rooms/"+room.ID, api.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result models.RoomCascadeResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.OccupationsRemoved)

	w, _ = api.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/timetable?room_id="+room.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/classes?room_id="+room.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProbes(t *testing.T) {
	api := newTestAPI(t)
	w, _ := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
