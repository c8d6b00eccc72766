package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/repository"
	"github.com/noah-isme/campus-scheduler/internal/scheduling"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

// QueryServiceConfig holds projection defaults.
type QueryServiceConfig struct {
	Grid            models.GridOptions
	TimelineMaxDays int
	CacheTTL        time.Duration
}

// QueryService answers read-only questions about the schedule ledger. It
// never mutates; results come from a consistent snapshot.
type QueryService struct {
	store   repository.Store
	cache   *CacheService
	cfg     QueryServiceConfig
	logger  *zap.Logger
	metrics *MetricsService
}

// NewQueryService instantiates QueryService.
func NewQueryService(store repository.Store, cache *CacheService, metrics *MetricsService, cfg QueryServiceConfig, logger *zap.Logger) *QueryService {
	if cfg.Grid == (models.GridOptions{}) {
		cfg.Grid = scheduling.DefaultGridOptions
	}
	if cfg.TimelineMaxDays <= 0 {
		cfg.TimelineMaxDays = 366
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{store: store, cache: cache, cfg: cfg, logger: logger, metrics: metrics}
}

// GridDefaults returns the grid shape used when a request leaves it unset.
func (s *QueryService) GridDefaults() models.GridOptions {
	return s.cfg.Grid
}

// Query returns the flat listing of occupations matching filter: classes by
// weekday first, then dated occupations by date.
func (s *QueryService) Query(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, *models.Pagination, bool, error) {
	var occupations []models.Occupation
	hit, err := s.cached(ctx, "flat", []string{filterKey(filter)}, &occupations, func(r repository.ScheduleReader) error {
		unpaged := filter
		unpaged.Page, unpaged.PageSize = 0, 0
		list, err := listForRoom(ctx, r, unpaged)
		if err != nil {
			return err
		}
		scheduling.SortFlat(list)
		occupations = list
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	page, meta := models.Paginate(occupations, filter.Page, filter.PageSize)
	return page, meta, hit, nil
}

// Timeline groups the occupations matching filter by date over
// [filter.DateFrom, filter.DateTo], resolving weekly classes into dates.
func (s *QueryService) Timeline(ctx context.Context, filter models.OccupationFilter) (*models.Timeline, bool, error) {
	if filter.DateFrom.IsZero() {
		return nil, false, appErrors.Invalid("from", "from is required")
	}
	if filter.DateTo.IsZero() {
		return nil, false, appErrors.Invalid("to", "to is required")
	}
	if filter.DateTo.Before(filter.DateFrom) {
		return nil, false, appErrors.Invalid("to", "to must not be before from")
	}
	if days := filter.DateFrom.DaysUntil(filter.DateTo) + 1; days > s.cfg.TimelineMaxDays {
		return nil, false, appErrors.Invalid("to", fmt.Sprintf("range spans %d days, limit is %d", days, s.cfg.TimelineMaxDays))
	}

	var timeline models.Timeline
	hit, err := s.cached(ctx, "timeline", []string{filterKey(filter)}, &timeline, func(r repository.ScheduleReader) error {
		list, err := listForRoom(ctx, r, filter)
		if err != nil {
			return err
		}
		timeline, err = scheduling.BuildTimeline(list, filter.DateFrom, filter.DateTo)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &timeline, hit, nil
}

// Grid builds the weekday by time-slot matrix. Zero option fields fall back
// to the configured defaults.
func (s *QueryService) Grid(ctx context.Context, filter models.OccupationFilter, opts models.GridOptions) (*models.Grid, bool, error) {
	if opts.DayStart == 0 && opts.DayEnd == 0 {
		opts.DayStart, opts.DayEnd = s.cfg.Grid.DayStart, s.cfg.Grid.DayEnd
	}
	if opts.SlotMinutes == 0 {
		opts.SlotMinutes = s.cfg.Grid.SlotMinutes
	}
	if err := scheduling.ValidateGridOptions(opts); err != nil {
		return nil, false, appErrors.Invalid("slot_minutes", err.Error())
	}

	var grid models.Grid
	gridKey := fmt.Sprintf("%s-%s-%d", opts.DayStart, opts.DayEnd, opts.SlotMinutes)
	hit, err := s.cached(ctx, "grid", []string{gridKey, filterKey(filter)}, &grid, func(r repository.ScheduleReader) error {
		list, err := listForRoom(ctx, r, filter)
		if err != nil {
			return err
		}
		grid, err = scheduling.BuildGrid(list, opts)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &grid, hit, nil
}

// Options lists the distinct rooms, courses, batches, semesters and
// instructors referenced by the ledger.
func (s *QueryService) Options(ctx context.Context) (*models.TimetableOptions, bool, error) {
	var options models.TimetableOptions
	hit, err := s.cached(ctx, "options", nil, &options, func(r repository.ScheduleReader) error {
		rooms, err := r.ListRooms(ctx)
		if err != nil {
			return err
		}
		list, err := r.ListOccupations(ctx, models.OccupationFilter{})
		if err != nil {
			return err
		}
		options = scheduling.CollectOptions(rooms, list)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &options, hit, nil
}

// FreeWindows returns the parts of a room's availability on date that no
// class, exam or approved booking occupies.
func (s *QueryService) FreeWindows(ctx context.Context, roomID string, date models.Date) (*models.FreeWindows, error) {
	if date.IsZero() {
		return nil, appErrors.Invalid("date", "date is required")
	}
	result := &models.FreeWindows{RoomID: roomID, Date: date, Weekday: date.Weekday()}
	err := s.read(ctx, func(r repository.ScheduleReader) error {
		room, err := requireRoom(ctx, r, roomID)
		if err != nil {
			return err
		}
		busy, err := r.OccupationsForKeys(ctx, roomID, []models.ScheduleKey{models.DateKey(date), models.WeekdayKey(date.Weekday())})
		if err != nil {
			return err
		}
		result.Windows = scheduling.SubtractBusy(room.WindowsOn(date.Weekday()), busy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cached serves dest from the projection cache or fills it through load and
// stores it. The boolean reports a cache hit.
func (s *QueryService) cached(ctx context.Context, projection string, parts []string, dest interface{}, load func(repository.ScheduleReader) error) (bool, error) {
	key, useCache := s.cache.Key(ctx, projection, parts...)
	if useCache && s.cache.Get(ctx, key, dest) {
		return true, nil
	}
	if err := s.read(ctx, load); err != nil {
		return false, err
	}
	if useCache {
		s.cache.Set(ctx, key, dest, s.cfg.CacheTTL)
	}
	return false, nil
}

func (s *QueryService) read(ctx context.Context, fn func(repository.ScheduleReader) error) error {
	reader, release, err := s.store.Snapshot(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open schedule snapshot")
	}
	defer release()
	return storeError(fn(reader), "room not found", "failed to query schedule")
}

// listForRoom lists the occupations matching filter. A room_id predicate
// must name an existing room.
func listForRoom(ctx context.Context, r repository.ScheduleReader, filter models.OccupationFilter) ([]models.Occupation, error) {
	if filter.RoomID != "" {
		if _, err := requireRoom(ctx, r, filter.RoomID); err != nil {
			return nil, err
		}
	}
	return r.ListOccupations(ctx, filter)
}

// filterKey renders the predicates of a filter into a stable cache key part.
func filterKey(f models.OccupationFilter) string {
	parts := []string{
		f.RoomID,
		string(f.Kind),
		string(f.Weekday),
		f.DateFrom.String(),
		f.DateTo.String(),
		strings.ToLower(f.Batch),
		strings.ToLower(f.Semester),
		strings.ToLower(f.CourseCode),
		strings.ToLower(f.Instructor),
		string(f.ExamType),
		string(f.BookingStatus),
	}
	return strings.Join(parts, "|")
}
