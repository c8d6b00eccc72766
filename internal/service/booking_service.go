package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

// BookingServiceConfig tunes the booking workflow.
type BookingServiceConfig struct {
	// CheckOnSubmit rejects submissions whose slot is already committed.
	CheckOnSubmit bool
}

// BookingService runs the booking request workflow:
// Pending -> Approved | Rejected | Withdrawn, every target state terminal.
type BookingService struct {
	ledger
	validator *validator.Validate
	cfg       BookingServiceConfig
}

// NewBookingService instantiates BookingService.
func NewBookingService(store repository.Store, cache *CacheService, metrics *MetricsService, cfg BookingServiceConfig, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		ledger:    ledger{store: store, cache: cache, metrics: metrics, logger: logger},
		validator: validate,
		cfg:       cfg,
	}
}

// Submit stores a Pending booking request.
func (s *BookingService) Submit(ctx context.Context, req models.SubmitBookingRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid booking payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, appErrors.Invalid("date", err.Error())
	}
	window, err := parseWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	requestedBy := strings.TrimSpace(req.RequestedBy)
	if requestedBy == "" {
		return nil, appErrors.Invalid("requested_by", "requested_by is required")
	}
	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return nil, appErrors.Invalid("purpose", "purpose is required")
	}

	booking := &models.BookingRequest{
		ID:          uuid.NewString(),
		RoomID:      strings.TrimSpace(req.RoomID),
		Date:        date,
		TimeWindow:  window,
		RequestedBy: requestedBy,
		Email:       strings.TrimSpace(req.Email),
		Purpose:     purpose,
		Attendees:   req.Attendees,
		Status:      models.BookingPending,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.unit(ctx, "booking_submit", []string{booking.RoomID}, func(w repository.ScheduleWriter) error {
		room, err := requireRoom(ctx, w, booking.RoomID)
		if err != nil {
			return err
		}
		if booking.Attendees > room.Capacity {
			return appErrors.Invalid("attendees", "attendees exceed room capacity").WithDetail("capacity", room.Capacity)
		}
		if s.cfg.CheckOnSubmit {
			if err := s.check(ctx, w, booking.ToOccupation("", booking.CreatedAt)); err != nil {
				return err
			}
		}
		return w.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to submit booking")
	}
	s.metrics.RecordBookingTransition(models.BookingPending)
	s.logger.Info("booking submitted", zap.String("booking_id", booking.ID), zap.String("room_id", booking.RoomID), zap.String("date", booking.Date.String()))
	return booking, nil
}

// Approve commits the booking as an occupation when its slot is free. On
// conflict the request stays Pending.
func (s *BookingService) Approve(ctx context.Context, id string) (*models.ApprovalResult, error) {
	var occupation models.Occupation
	booking, err := s.transition(ctx, id, models.BookingApproved, func(w repository.ScheduleWriter, booking *models.BookingRequest, now time.Time) error {
		room, err := requireRoom(ctx, w, booking.RoomID)
		if err != nil {
			return err
		}
		if booking.Attendees > room.Capacity {
			return appErrors.Invalid("attendees", "attendees exceed room capacity").WithDetail("capacity", room.Capacity)
		}
		occupation = booking.ToOccupation(uuid.NewString(), now)
		if err := s.check(ctx, w, occupation); err != nil {
			return err
		}
		if err := w.InsertOccupation(ctx, &occupation); err != nil {
			return err
		}
		booking.OccupationID = &occupation.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking approved", zap.String("booking_id", booking.ID), zap.String("occupation_id", occupation.ID), zap.String("room_id", booking.RoomID))
	return &models.ApprovalResult{Booking: *booking, Occupation: occupation}, nil
}

// Reject resolves the booking with a mandatory reason. The ledger is untouched.
func (s *BookingService) Reject(ctx context.Context, id string, req models.RejectBookingRequest) (*models.BookingRequest, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Invalid("reason", "rejection reason is required")
	}
	booking, err := s.transition(ctx, id, models.BookingRejected, func(_ repository.ScheduleWriter, booking *models.BookingRequest, _ time.Time) error {
		booking.RejectionReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking rejected", zap.String("booking_id", booking.ID))
	return booking, nil
}

// Withdraw lets the requester retract a Pending booking.
func (s *BookingService) Withdraw(ctx context.Context, id string, req models.WithdrawBookingRequest) (*models.BookingRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid withdraw payload")
	}
	email := strings.TrimSpace(req.Email)
	booking, err := s.transition(ctx, id, models.BookingWithdrawn, func(_ repository.ScheduleWriter, booking *models.BookingRequest, _ time.Time) error {
		if !strings.EqualFold(booking.Email, email) {
			return appErrors.Clone(appErrors.ErrForbidden, "only the requester may withdraw a booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking withdrawn", zap.String("booking_id", booking.ID))
	return booking, nil
}

// Get returns a booking request by id.
func (s *BookingService) Get(ctx context.Context, id string) (*models.BookingRequest, error) {
	var booking *models.BookingRequest
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		booking, err = r.GetBooking(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err, "booking not found", "failed to load booking")
	}
	return booking, nil
}

// ListAll returns booking requests matching filter, oldest first.
func (s *BookingService) ListAll(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, *models.Pagination, error) {
	var bookings []models.BookingRequest
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		bookings, err = r.ListBookings(ctx, filter)
		return err
	})
	if err != nil {
		return nil, nil, storeError(err, "booking not found", "failed to list bookings")
	}
	page, meta := models.Paginate(bookings, filter.Page, filter.PageSize)
	return page, meta, nil
}

// ListPending returns the requests awaiting a decision.
func (s *BookingService) ListPending(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, *models.Pagination, error) {
	filter.Status = models.BookingPending
	return s.ListAll(ctx, filter)
}

// transition moves a Pending booking to target inside its room's unit of
// work. apply may veto the move or stage ledger writes alongside it.
func (s *BookingService) transition(ctx context.Context, id string, target models.BookingStatus, apply func(repository.ScheduleWriter, *models.BookingRequest, time.Time) error) (*models.BookingRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var resolved *models.BookingRequest
	operation := "booking_" + strings.ToLower(string(target))
	err = s.unit(ctx, operation, []string{current.RoomID}, func(w repository.ScheduleWriter) error {
		booking, err := w.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if booking.Resolved() {
			return appErrors.Clone(appErrors.ErrState, "booking is already "+strings.ToLower(string(booking.Status))).
				WithDetail("status", booking.Status)
		}
		now := time.Now().UTC()
		if err := apply(w, booking, now); err != nil {
			return err
		}
		booking.Status = target
		booking.ResolvedAt = &now
		if err := w.UpdateBooking(ctx, booking); err != nil {
			return err
		}
		resolved = booking
		return nil
	})
	if err != nil {
		return nil, storeError(err, "booking not found", "failed to update booking")
	}
	s.metrics.RecordBookingTransition(target)
	return resolved, nil
}
