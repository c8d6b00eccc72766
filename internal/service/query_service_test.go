package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

func mustDate(t *testing.T, raw string) models.Date {
	t.Helper()
	d, err := models.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestQueryFiltersCombineWithAnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	found, _, _, err := env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID, Weekday: models.Monday})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, class.ID, found[0].ID)
	assert.Equal(t, "CSE101", found[0].Class.CourseCode)
	assert.Equal(t, "27", found[0].Class.Batch)

	none, _, _, err := env.query.Query(ctx, models.OccupationFilter{Semester: "2"})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, _, _, err := env.query.Query(ctx, models.OccupationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "an empty filter is a wildcard")
}

func TestQueryOrdersClassesBeforeDatedAndPaginates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	_, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "14:00", "16:00", "CSE201"))
	require.NoError(t, err)
	env.class(t, room.ID, "Friday", "09:00", "10:00", "CSE103")
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	list, meta, _, err := env.query.Query(ctx, models.OccupationFilter{})
	require.NoError(t, err)
	assert.Nil(t, meta)
	require.Len(t, list, 3)
	assert.Equal(t, models.Monday, list[0].Class.Weekday)
	assert.Equal(t, models.Friday, list[1].Class.Weekday)
	assert.Equal(t, models.OccupationExam, list[2].Kind)

	page, meta, _, err := env.query.Query(ctx, models.OccupationFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 3, meta.TotalCount)
	assert.Equal(t, models.OccupationExam, page[0].Kind)
}

func TestGridKeepsWeekdayCellsSeparate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	exam, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "14:00", "16:00", "CSE201"))
	require.NoError(t, err)

	grid, _, err := env.query.Grid(ctx, models.OccupationFilter{
		DateFrom: mustDate(t, "2025-01-06"),
		DateTo:   mustDate(t, "2025-01-12"),
	}, models.GridOptions{})
	require.NoError(t, err)
	assert.Equal(t, env.query.GridDefaults(), grid.Options)

	mondayCell := grid.Cell(models.Monday, 1)
	require.NotNil(t, mondayCell)
	require.Len(t, mondayCell.Entries, 1)
	assert.Equal(t, class.ID, mondayCell.Entries[0].Occupation.ID)

	wednesdayCell := grid.Cell(models.Wednesday, 6)
	require.NotNil(t, wednesdayCell)
	require.Len(t, wednesdayCell.Entries, 1)
	assert.Equal(t, exam.ID, wednesdayCell.Entries[0].Occupation.ID)
	assert.Equal(t, 2, wednesdayCell.Entries[0].SlotSpan)

	placed := 0
	for _, row := range grid.Rows {
		for _, cell := range row.Cells {
			placed += len(cell.Entries)
		}
	}
	assert.Equal(t, 2, placed)
	assert.Empty(t, grid.Unplaced)

	_, _, err = env.query.Grid(ctx, models.OccupationFilter{}, models.GridOptions{DayStart: 8 * 60, DayEnd: 9 * 60, SlotMinutes: 90})
	appErr := requireCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "slot_minutes", appErr.Details["field"])
}

func TestTimelineResolvesWeeklyClasses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	_, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "14:00", "16:00", "CSE201"))
	require.NoError(t, err)

	timeline, _, err := env.query.Timeline(ctx, models.OccupationFilter{
		DateFrom: mustDate(t, "2025-01-06"),
		DateTo:   mustDate(t, "2025-01-13"),
	})
	require.NoError(t, err)
	dates := make([]string, 0, len(timeline.Buckets))
	for _, bucket := range timeline.Buckets {
		dates = append(dates, bucket.Date.String())
	}
	assert.Equal(t, []string{"2025-01-06", "2025-01-08", "2025-01-13"}, dates)
}

func TestTimelineValidatesRange(t *testing.T) {
	ctx := context.Background()
	store := newTestEnv(t, nil, BookingServiceConfig{}).store
	query := NewQueryService(store, nil, nil, QueryServiceConfig{TimelineMaxDays: 7}, zap.NewNop())

	_, _, err := query.Timeline(ctx, models.OccupationFilter{DateTo: mustDate(t, "2025-01-06")})
	requireCode(t, err, appErrors.ErrValidation.Code)
	_, _, err = query.Timeline(ctx, models.OccupationFilter{DateFrom: mustDate(t, "2025-01-06"), DateTo: mustDate(t, "2025-01-05")})
	requireCode(t, err, appErrors.ErrValidation.Code)
	_, _, err = query.Timeline(ctx, models.OccupationFilter{DateFrom: mustDate(t, "2025-01-06"), DateTo: mustDate(t, "2025-01-13")})
	requireCode(t, err, appErrors.ErrValidation.Code)
	_, _, err = query.Timeline(ctx, models.OccupationFilter{DateFrom: mustDate(t, "2025-01-06"), DateTo: mustDate(t, "2025-01-12")})
	require.NoError(t, err)
}

func TestFreeWindowsSubtractsOccupations(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30, availability("Monday", "08:00", "12:00", "13:00", "17:00"))
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "13:00", "14:30", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, booking.ID)
	require.NoError(t, err)
	_, err = env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "15:00", "16:00", 5))
	require.NoError(t, err)

	free, err := env.query.FreeWindows(ctx, room.ID, mustDate(t, monday))
	require.NoError(t, err)
	assert.Equal(t, models.Monday, free.Weekday)
	windows := make([]string, 0, len(free.Windows))
	for _, w := range free.Windows {
		windows = append(windows, w.String())
	}
	assert.Equal(t, []string{"08:00-09:00", "10:00-12:00", "14:30-17:00"}, windows)

	tuesday, err := env.query.FreeWindows(ctx, room.ID, mustDate(t, "2025-01-07"))
	require.NoError(t, err)
	assert.Empty(t, tuesday.Windows)

	_, err = env.query.FreeWindows(ctx, "missing", mustDate(t, monday))
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestOptionsListDistinctValues(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	env.class(t, room.ID, "Tuesday", "09:00", "10:00", "CSE101")
	_, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "14:00", "16:00", "CSE201"))
	require.NoError(t, err)

	options, _, err := env.query.Options(ctx)
	require.NoError(t, err)
	require.Len(t, options.Rooms, 1)
	assert.Equal(t, "A101", options.Rooms[0].Name)
	require.Len(t, options.Courses, 2)
	assert.Equal(t, "CSE101", options.Courses[0].Code)
	assert.Equal(t, []string{"26", "27"}, options.Batches)
	assert.Equal(t, []string{"1", "3"}, options.Semesters)
	assert.Equal(t, []string{"Rahman"}, options.Instructors)
}

// cacheRepoStub is an in-memory CacheRepository that round-trips values through JSON.
type cacheRepoStub struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	incrErr  error
	gets     int
	hits     int
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string][]byte{}, counters: map[string]int64{}}
}

func (c *cacheRepoStub) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *cacheRepoStub) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *cacheRepoStub) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incrErr != nil {
		return 0, c.incrErr
	}
	c.counters[key]++
	return c.counters[key], nil
}

func (c *cacheRepoStub) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

func TestQueryCacheServesHitsAndSeesCommittedWrites(t *testing.T) {
	ctx := context.Background()
	repo := newCacheRepoStub()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	env := newTestEnv(t, cache, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	first, _, hit, err := env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, first, 1)

	cached, _, hit, err := env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first[0].ID, cached[0].ID)
	assert.Equal(t, first[0].Start, cached[0].Start)

	env.class(t, room.ID, "Tuesday", "09:00", "10:00", "CSE102")
	fresh, _, hit, err := env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID})
	require.NoError(t, err)
	assert.False(t, hit, "a committed write moves the generation")
	assert.Len(t, fresh, 2)
}

func TestCacheBypassedWhileGenerationCannotAdvance(t *testing.T) {
	ctx := context.Background()
	repo := newCacheRepoStub()
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	env := newTestEnv(t, cache, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	_, _, _, err := env.query.Query(ctx, models.OccupationFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, repo.values)

	repo.incrErr = errors.New("redis down")
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	assert.Empty(t, repo.values, "stale projections are dropped")

	list, _, hit, err := env.query.Query(ctx, models.OccupationFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, list, 1)
	_, ok := cache.Key(ctx, "flat")
	assert.False(t, ok)

	repo.incrErr = nil
	env.class(t, room.ID, "Tuesday", "09:00", "10:00", "CSE101")
	_, ok = cache.Key(ctx, "flat")
	assert.True(t, ok)
}

func TestCacheDisabledIsNoop(t *testing.T) {
	var nilCache *CacheService
	_, ok := nilCache.Key(context.Background(), "flat")
	assert.False(t, ok)
	nilCache.Bump(context.Background())

	cache := NewCacheService(newCacheRepoStub(), nil, 0, nil, false)
	assert.False(t, cache.Enabled())
	assert.False(t, cache.Get(context.Background(), "k", &struct{}{}))
}
