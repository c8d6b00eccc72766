package service

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	"github.com/noah-isme/campus-scheduler/internal/scheduling"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return validate
}

// invalidPayload wraps a validator failure, naming the first offending field.
func invalidPayload(err error, message string) *appErrors.Error {
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return appErr.WithDetail("field", fieldErrs[0].Field()).WithDetail("rule", fieldErrs[0].Tag())
	}
	return appErr
}

// storeError maps repository failures onto typed errors. Typed errors raised
// inside a unit of work pass through untouched.
func storeError(err error, notFound, failure string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	case errors.Is(err, repository.ErrDuplicateRoomName):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "room name already exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
}

// ledger bundles the collaborators every mutating service shares.
type ledger struct {
	store   repository.Store
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// unit runs fn inside a room unit of work, records its latency and advances
// the cache generation once it committed.
func (l ledger) unit(ctx context.Context, operation string, roomIDs []string, fn func(repository.ScheduleWriter) error) error {
	start := time.Now()
	err := l.store.WithRooms(ctx, roomIDs, fn)
	l.metrics.ObserveCommit(operation, time.Since(start), err)
	if err == nil {
		l.cache.Bump(ctx)
	}
	return err
}

// snapshot runs fn against a point-in-time read view.
func (l ledger) snapshot(ctx context.Context, fn func(repository.ScheduleReader) error) error {
	reader, release, err := l.store.Snapshot(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open schedule snapshot")
	}
	defer release()
	return fn(reader)
}

// check loads the committed occupations in the candidate's scope and reports
// the first one it overlaps as a CONFLICT error.
func (l ledger) check(ctx context.Context, r repository.ScheduleReader, candidate models.Occupation) error {
	committed, err := r.OccupationsForKeys(ctx, candidate.RoomID, scheduling.Scope(candidate))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedule")
	}
	existing, err := scheduling.FindConflict(candidate, committed)
	if err != nil {
		var corruption *scheduling.CorruptionError
		if errors.As(err, &corruption) {
			l.metrics.RecordCorruption()
			l.logger.Error("schedule ledger corrupted",
				zap.String("room_id", corruption.RoomID),
				zap.String("first", corruption.First.ID),
				zap.String("second", corruption.Second.ID),
				zap.String("key", corruption.First.Key().String()),
			)
			return appErrors.Wrap(err, appErrors.ErrLedgerCorrupted.Code, appErrors.ErrLedgerCorrupted.Status, appErrors.ErrLedgerCorrupted.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict check failed")
	}
	if existing == nil {
		return nil
	}
	l.metrics.RecordConflict(candidate.Kind, existing.Kind)
	detail := models.NewOccupationConflictError(candidate, *existing)
	l.logger.Warn("occupation conflict",
		zap.String("room_id", candidate.RoomID),
		zap.String("candidate_kind", string(candidate.Kind)),
		zap.String("conflicting_id", existing.ID),
		zap.String("window", candidate.TimeWindow.String()),
	)
	return appErrors.Wrap(detail, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, detail.Message).
		WithDetail("conflict", detail.Conflict)
}

// requireRoom loads a room inside a unit, mapping absence to NOT_FOUND.
func requireRoom(ctx context.Context, r repository.ScheduleReader, id string) (*models.Room, error) {
	room, err := r.GetRoom(ctx, id)
	if err != nil {
		return nil, storeError(err, "room not found", "failed to load room")
	}
	return room, nil
}

// parseWindow validates a wire time window, naming the offending field.
func parseWindow(start, end string) (models.TimeWindow, error) {
	from, err := models.ParseClock(start)
	if err != nil {
		return models.TimeWindow{}, appErrors.Invalid("start", err.Error())
	}
	to, err := models.ParseClock(end)
	if err != nil {
		return models.TimeWindow{}, appErrors.Invalid("end", err.Error())
	}
	window := models.TimeWindow{Start: from, End: to}
	if !window.Valid() {
		return models.TimeWindow{}, appErrors.Invalid("end", "end must be after start")
	}
	return window, nil
}
