package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

type roomService interface {
	List(ctx context.Context) ([]models.Room, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error)
	Update(ctx context.Context, id string, req models.UpdateRoomRequest) (*models.Room, error)
	Delete(ctx context.Context, id string) (*models.RoomCascadeResult, error)
}

type freeWindowFinder interface {
	FreeWindows(ctx context.Context, roomID string, date models.Date) (*models.FreeWindows, error)
}

// RoomHandler exposes the room catalog.
type RoomHandler struct {
	rooms roomService
	free  freeWindowFinder
}

// NewRoomHandler builds a new handler.
func NewRoomHandler(rooms roomService, free freeWindowFinder) *RoomHandler {
	return &RoomHandler{rooms: rooms, free: free}
}

// List godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, rooms, nil)
}

// Get godoc
// @Summary Get a room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, room, nil)
}

// Create godoc
// @Summary Create a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body models.CreateRoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req models.CreateRoomRequest
	if !bindJSON(c, &req, "invalid room payload") {
		return
	}
	room, err := h.rooms.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Update godoc
// @Summary Update a room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body models.UpdateRoomRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [put]
func (h *RoomHandler) Update(c *gin.Context) {
	var req models.UpdateRoomRequest
	if !bindJSON(c, &req, "invalid room payload") {
		return
	}
	room, err := h.rooms.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, room, nil)
}

// Delete godoc
// @Summary Delete a room with its occupations and booking requests
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [delete]
func (h *RoomHandler) Delete(c *gin.Context) {
	result, err := h.rooms.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, result, nil)
}

// FreeWindows godoc
// @Summary Free windows of a room on a date
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/free [get]
func (h *RoomHandler) FreeWindows(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		response.Error(c, appErrors.Invalid("date", "date is required"))
		return
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Invalid("date", err.Error()))
		return
	}
	free, err := h.free.FreeWindows(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, free, nil)
}
