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

// maxRelocationAttempts bounds retries when an occupation moves to another
// room between reading it and locking its rooms.
const maxRelocationAttempts = 3

// OccupationService maintains class and exam occupations in the schedule
// ledger. Every mutation is checked against committed occupations of the
// same room inside the room's unit of work.
type OccupationService struct {
	ledger
	validator *validator.Validate
}

// NewOccupationService instantiates OccupationService.
func NewOccupationService(store repository.Store, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *OccupationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OccupationService{
		ledger:    ledger{store: store, cache: cache, metrics: metrics, logger: logger},
		validator: validate,
	}
}

// Get returns an occupation of the given kind.
func (s *OccupationService) Get(ctx context.Context, kind models.OccupationKind, id string) (*models.Occupation, error) {
	var occupation *models.Occupation
	err := s.snapshot(ctx, func(r repository.ScheduleReader) error {
		var err error
		occupation, err = r.GetOccupation(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeError(err, notFoundMessage(kind), "failed to load occupation")
	}
	if occupation.Kind != kind {
		return nil, appErrors.Clone(appErrors.ErrNotFound, notFoundMessage(kind))
	}
	return occupation, nil
}

// CreateClass commits a recurring weekly class.
func (s *OccupationService) CreateClass(ctx context.Context, req models.ClassRequest) (*models.Occupation, error) {
	candidate, err := s.classFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, candidate)
}

// UpdateClass replaces a class, keeping its id.
func (s *OccupationService) UpdateClass(ctx context.Context, id string, req models.ClassRequest) (*models.Occupation, error) {
	candidate, err := s.classFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.replace(ctx, id, candidate)
}

// CreateExam commits a one-off exam.
func (s *OccupationService) CreateExam(ctx context.Context, req models.ExamRequest) (*models.Occupation, error) {
	candidate, err := s.examFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, candidate)
}

// UpdateExam replaces an exam, keeping its id.
func (s *OccupationService) UpdateExam(ctx context.Context, id string, req models.ExamRequest) (*models.Occupation, error) {
	candidate, err := s.examFromRequest(req)
	if err != nil {
		return nil, err
	}
	return s.replace(ctx, id, candidate)
}

// Delete removes a class or exam. Approved bookings leave the ledger only
// through a room cascade.
func (s *OccupationService) Delete(ctx context.Context, kind models.OccupationKind, id string) error {
	for attempt := 0; attempt < maxRelocationAttempts; attempt++ {
		current, err := s.Get(ctx, kind, id)
		if err != nil {
			if appErrors.HasCode(err, appErrors.ErrNotFound.Code) && kind != models.OccupationBooking {
				return s.refuseBooking(ctx, id, err)
			}
			return err
		}
		moved := false
		err = s.unit(ctx, "occupation_delete", []string{current.RoomID}, func(w repository.ScheduleWriter) error {
			existing, err := w.GetOccupation(ctx, id)
			if err != nil {
				return err
			}
			if existing.RoomID != current.RoomID {
				moved = true
				return errRelocated
			}
			return w.DeleteOccupation(ctx, id)
		})
		if moved {
			continue
		}
		if err != nil {
			return storeError(err, notFoundMessage(kind), "failed to delete occupation")
		}
		s.logger.Info("occupation deleted", zap.String("occupation_id", id), zap.String("kind", string(kind)), zap.String("room_id", current.RoomID))
		return nil
	}
	return appErrors.Clone(appErrors.ErrConflict, "occupation changed concurrently, retry the request")
}

// refuseBooking turns a kind mismatch on an approved booking into a state
// error; anything else keeps the original not-found error.
func (s *OccupationService) refuseBooking(ctx context.Context, id string, notFound error) error {
	if _, err := s.Get(ctx, models.OccupationBooking, id); err == nil {
		return appErrors.Clone(appErrors.ErrState, "approved bookings cannot be removed through the class or exam endpoints")
	}
	return notFound
}

func (s *OccupationService) create(ctx context.Context, candidate models.Occupation) (*models.Occupation, error) {
	now := time.Now().UTC()
	candidate.ID = uuid.NewString()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	err := s.unit(ctx, "occupation_create", []string{candidate.RoomID}, func(w repository.ScheduleWriter) error {
		if _, err := requireRoom(ctx, w, candidate.RoomID); err != nil {
			return err
		}
		if err := s.check(ctx, w, candidate); err != nil {
			return err
		}
		return w.InsertOccupation(ctx, &candidate)
	})
	if err != nil {
		return nil, storeError(err, "room not found", "failed to create occupation")
	}
	s.logger.Info("occupation created",
		zap.String("occupation_id", candidate.ID),
		zap.String("kind", string(candidate.Kind)),
		zap.String("room_id", candidate.RoomID),
		zap.String("key", candidate.Key().String()),
	)
	return &candidate, nil
}

// replace swaps an occupation for candidate under the same id. The old
// record is excluded from the check, so the outcome equals deleting it and
// creating candidate in one step. Both rooms are locked when it moves.
func (s *OccupationService) replace(ctx context.Context, id string, candidate models.Occupation) (*models.Occupation, error) {
	for attempt := 0; attempt < maxRelocationAttempts; attempt++ {
		current, err := s.Get(ctx, candidate.Kind, id)
		if err != nil {
			return nil, err
		}

		moved := false
		err = s.unit(ctx, "occupation_update", []string{current.RoomID, candidate.RoomID}, func(w repository.ScheduleWriter) error {
			existing, err := w.GetOccupation(ctx, id)
			if err != nil {
				return err
			}
			if existing.RoomID != current.RoomID {
				moved = true
				return errRelocated
			}
			if existing.Kind != candidate.Kind {
				return appErrors.Clone(appErrors.ErrNotFound, notFoundMessage(candidate.Kind))
			}
			if _, err := requireRoom(ctx, w, candidate.RoomID); err != nil {
				return err
			}
			candidate.ID = existing.ID
			candidate.CreatedAt = existing.CreatedAt
			candidate.UpdatedAt = time.Now().UTC()
			if err := s.check(ctx, w, candidate); err != nil {
				return err
			}
			return w.UpdateOccupation(ctx, &candidate)
		})
		if moved {
			continue
		}
		if err != nil {
			return nil, storeError(err, notFoundMessage(candidate.Kind), "failed to update occupation")
		}
		s.logger.Info("occupation updated",
			zap.String("occupation_id", candidate.ID),
			zap.String("kind", string(candidate.Kind)),
			zap.String("room_id", candidate.RoomID),
			zap.String("previous_room_id", current.RoomID),
		)
		return &candidate, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "occupation changed concurrently, retry the request")
}

func (s *OccupationService) classFromRequest(req models.ClassRequest) (models.Occupation, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Occupation{}, invalidPayload(err, "invalid class payload")
	}
	weekday, err := models.ParseWeekday(req.Weekday)
	if err != nil {
		return models.Occupation{}, appErrors.Invalid("weekday", err.Error())
	}
	window, err := parseWindow(req.Start, req.End)
	if err != nil {
		return models.Occupation{}, err
	}
	return models.Occupation{
		RoomID:     strings.TrimSpace(req.RoomID),
		Kind:       models.OccupationClass,
		TimeWindow: window,
		Class: &models.ClassDetails{
			Weekday:     weekday,
			CourseCode:  strings.TrimSpace(req.CourseCode),
			CourseTitle: strings.TrimSpace(req.CourseTitle),
			Batch:       strings.TrimSpace(req.Batch),
			Semester:    strings.TrimSpace(req.Semester),
			Instructor:  strings.TrimSpace(req.Instructor),
		},
	}, nil
}

func (s *OccupationService) examFromRequest(req models.ExamRequest) (models.Occupation, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Occupation{}, invalidPayload(err, "invalid exam payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return models.Occupation{}, appErrors.Invalid("date", err.Error())
	}
	examType, err := models.ParseExamType(req.ExamType)
	if err != nil {
		return models.Occupation{}, appErrors.Invalid("exam_type", err.Error())
	}
	window, err := parseWindow(req.Start, req.End)
	if err != nil {
		return models.Occupation{}, err
	}
	return models.Occupation{
		RoomID:     strings.TrimSpace(req.RoomID),
		Kind:       models.OccupationExam,
		TimeWindow: window,
		Exam: &models.ExamDetails{
			Date:        date,
			CourseCode:  strings.TrimSpace(req.CourseCode),
			CourseTitle: strings.TrimSpace(req.CourseTitle),
			Batch:       strings.TrimSpace(req.Batch),
			Semester:    strings.TrimSpace(req.Semester),
			ExamType:    examType,
			Invigilator: strings.TrimSpace(req.Invigilator),
		},
	}, nil
}

// errRelocated aborts a unit whose occupation moved rooms after it was read.
var errRelocated = appErrors.Clone(appErrors.ErrConflict, "occupation moved to another room")

func notFoundMessage(kind models.OccupationKind) string {
	switch kind {
	case models.OccupationClass:
		return "class not found"
	case models.OccupationExam:
		return "exam not found"
	case models.OccupationBooking:
		return "booking occupation not found"
	default:
		return "occupation not found"
	}
}
