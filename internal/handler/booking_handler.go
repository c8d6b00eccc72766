package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/middleware"
	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/response"
)

type bookingService interface {
	Submit(ctx context.Context, req models.SubmitBookingRequest) (*models.BookingRequest, error)
	Approve(ctx context.Context, id string) (*models.ApprovalResult, error)
	Reject(ctx context.Context, id string, req models.RejectBookingRequest) (*models.BookingRequest, error)
	Withdraw(ctx context.Context, id string, req models.WithdrawBookingRequest) (*models.BookingRequest, error)
	Get(ctx context.Context, id string) (*models.BookingRequest, error)
	ListAll(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, *models.Pagination, error)
	ListPending(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, *models.Pagination, error)
}

// BookingHandler exposes the booking request workflow.
type BookingHandler struct {
	bookings bookingService
	logger   *zap.Logger
}

// NewBookingHandler builds a new handler.
func NewBookingHandler(bookings bookingService, logger *zap.Logger) *BookingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{bookings: bookings, logger: logger}
}

// Submit godoc
// @Summary Submit a booking request
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body models.SubmitBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Submit(c *gin.Context) {
	var req models.SubmitBookingRequest
	if !bindJSON(c, &req, "invalid booking payload") {
		return
	}
	booking, err := h.bookings.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Withdraw godoc
// @Summary Withdraw a pending booking request
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body models.WithdrawBookingRequest true "Requester email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /bookings/{id}/withdraw [post]
func (h *BookingHandler) Withdraw(c *gin.Context) {
	var req models.WithdrawBookingRequest
	if !bindJSON(c, &req, "invalid withdraw payload") {
		return
	}
	booking, err := h.bookings.Withdraw(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, booking, nil)
}

// List godoc
// @Summary List booking requests
// @Tags Bookings
// @Produce json
// @Param status query string false "Pending, Approved, Rejected or Withdrawn"
// @Param room_id query string false "Room ID"
// @Param date_from query string false "First date"
// @Param date_to query string false "Last date"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	filter, err := bookingFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.bookings.ListAll(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, items, pagination)
}

// Pending godoc
// @Summary List pending booking requests, oldest first
// @Tags Bookings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bookings/pending [get]
func (h *BookingHandler) Pending(c *gin.Context) {
	filter, err := bookingFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.bookings.ListPending(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, items, pagination)
}

// Get godoc
// @Summary Get a booking request
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, booking, nil)
}

// Approve godoc
// @Summary Approve a pending booking request
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/approve [post]
func (h *BookingHandler) Approve(c *gin.Context) {
	result, err := h.bookings.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("booking approved via api", zap.String("booking_id", result.Booking.ID), zap.String("actor", middleware.ActorID(c)))
	respond(c, result, nil)
}

// Reject godoc
// @Summary Reject a pending booking request
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body models.RejectBookingRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/reject [post]
func (h *BookingHandler) Reject(c *gin.Context) {
	var req models.RejectBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reject payload"))
		return
	}
	booking, err := h.bookings.Reject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, booking, nil)
}
