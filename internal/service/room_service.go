package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	"github.com/noah-isme/campus-scheduler/internal/scheduling"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

// RoomService manages the room catalog.
type RoomService struct {
	ledger
	validator *validator.Validate
}

// NewRoomService instantiates RoomService.
func NewRoomService(store repository.Store, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{
		ledger:    ledger{store: store, cache: cache, metrics: metrics, logger: logger},
		validator: validate,
	}
}

// List returns every room ordered by id.
func (s *RoomService) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		rooms, err = r.ListRooms(ctx)
		return err
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to list rooms")
	}
	return rooms, nil
}

// Get returns a room by id.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	var room *models.Room
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		room, err = r.GetRoom(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to load room")
	}
	return room, nil
}

// FindByName returns the room whose name matches case-insensitively.
func (s *RoomService) FindByName(ctx context.Context, name string) (*models.Room, error) {
	var room *models.Room
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		room, err = r.FindRoomByName(ctx, name)
		return err
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to load room")
	}
	return room, nil
}

// Create registers a new room.
func (s *RoomService) Create(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid room payload")
	}
	name, err := roomName(req.Name)
	if err != nil {
		return nil, err
	}
	availability, err := normaliseAvailability(req.Availability)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	room := &models.Room{
		ID:           uuid.NewString(),
		Name:         name,
		Capacity:     req.Capacity,
		Facilities:   normaliseFacilities(req.Facilities),
		Availability: availability,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.unit(ctx, "room_create", []string{room.ID}, func(w repository.ScheduleWriter) error {
		return w.InsertRoom(ctx, room)
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to create room")
	}
	s.logger.Info("room created", zap.String("room_id", room.ID), zap.String("name", room.Name))
	return room, nil
}

// Update applies partial changes to a room. Existing occupations are not
// revalidated against a changed availability template.
func (s *RoomService) Update(ctx context.Context, id string, req models.UpdateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid room payload")
	}

	var name string
	if req.Name != nil {
		var err error
		if name, err = roomName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		return nil, appErrors.Invalid("capacity", "capacity must be greater than zero")
	}
	var availability []models.DayAvailability
	if req.Availability != nil {
		var err error
		if availability, err = normaliseAvailability(*req.Availability); err != nil {
			return nil, err
		}
	}

	var updated *models.Room
	err := s.unit(ctx, "room_update", []string{id}, func(w repository.ScheduleWriter) error {
		room, err := requireRoom(ctx, w, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			room.Name = name
		}
		if req.Capacity != nil {
			room.Capacity = *req.Capacity
		}
		if req.Facilities != nil {
			room.Facilities = normaliseFacilities(*req.Facilities)
		}
		if req.Availability != nil {
			room.Availability = availability
		}
		room.UpdatedAt = time.Now().UTC()
		if err := w.UpdateRoom(ctx, room); err != nil {
			return err
		}
		updated = room
		return nil
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to update room")
	}
	s.logger.Info("room updated", zap.String("room_id", id))
	return updated, nil
}

// Delete removes a room together with its occupations and booking requests.
func (s *RoomService) Delete(ctx context.Context, id string) (*models.RoomCascadeResult, error) {
	var result models.RoomCascadeResult
	err := s.unit(ctx, "room_delete", []string{id}, func(w repository.ScheduleWriter) error {
		var err error
		result, err = w.DeleteRoom(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to delete room")
	}
	s.logger.Info("room deleted",
		zap.String("room_id", id),
		zap.Int("occupations_removed", result.OccupationsRemoved),
		zap.Int("bookings_removed", result.BookingsRemoved),
	)
	return &result, nil
}

func roomName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", appErrors.Invalid("name", "name is required")
	}
	return name, nil
}

// normaliseFacilities trims tags and drops blanks and duplicates, keeping
// first-seen order.
func normaliseFacilities(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// normaliseAvailability parses the weekly template, merging repeated weekdays,
// and rejects malformed or overlapping windows. Days come out Monday first
// with windows ordered by start.
func normaliseAvailability(days []models.AvailabilityRequestDay) ([]models.DayAvailability, error) {
	byDay := make(map[models.Weekday][]models.TimeWindow)
	for i, day := range days {
		weekday, err := models.ParseWeekday(day.Weekday)
		if err != nil {
			return nil, appErrors.Invalid(fmt.Sprintf("availability[%d].weekday", i), err.Error())
		}
		for j, raw := range day.Windows {
			window, err := parseWindow(raw.Start, raw.End)
			if err != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, err.Error()).
					WithDetail("field", fmt.Sprintf("availability[%d].windows[%d]", i, j))
			}
			byDay[weekday] = append(byDay[weekday], window)
		}
		if _, ok := byDay[weekday]; !ok {
			byDay[weekday] = nil
		}
	}

	out := make([]models.DayAvailability, 0, len(byDay))
	for _, weekday := range models.Weekdays {
		windows, ok := byDay[weekday]
		if !ok {
			continue
		}
		sort.Slice(windows, func(a, b int) bool { return windows[a].Start < windows[b].Start })
		if i, j, overlap := scheduling.FirstOverlap(windows); overlap {
			return nil, appErrors.Invalid("availability", fmt.Sprintf("%s windows %s and %s overlap", weekday, windows[i], windows[j]))
		}
		if windows == nil {
			windows = []models.TimeWindow{}
		}
		out = append(out, models.DayAvailability{Weekday: weekday, Windows: windows})
	}
	return out, nil
}
