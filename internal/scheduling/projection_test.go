package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

func date(raw string) models.Date {
	d, err := models.ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWeeklyDates(t *testing.T) {
	dates, err := WeeklyDates(models.Monday, date("2025-01-01"), date("2025-01-20"))
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-01-06", dates[0].String())
	assert.Equal(t, "2025-01-13", dates[1].String())
	assert.Equal(t, "2025-01-20", dates[2].String())

	dates, err = WeeklyDates(models.Sunday, date("2025-01-06"), date("2025-01-10"))
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestWeeklyRecurrence(t *testing.T) {
	rec, ok, err := WeeklyRecurrence(models.Monday, date("2025-01-01"), date("2025-01-20"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-06", rec.First.String())
	assert.Equal(t, 3, rec.Count)
	assert.Contains(t, rec.Rule, "FREQ=WEEKLY")
	assert.Contains(t, rec.Rule, "COUNT=3")
	assert.Contains(t, rec.Rule, "BYDAY=MO")
	assert.NotContains(t, rec.Rule, "DTSTART")

	_, ok, err = WeeklyRecurrence(models.Sunday, date("2025-01-06"), date("2025-01-10"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildTimelineResolvesWeeklyClasses(t *testing.T) {
	occupations := []models.Occupation{
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
		examAt("e1", "r1", "2025-01-06", "08:00", "09:00"),
		examAt("e2", "r1", "2025-02-01", "08:00", "09:00"),
		bookingAt("b1", "r2", "2025-01-08", "13:00", "14:00"),
	}
	timeline, err := BuildTimeline(occupations, date("2025-01-06"), date("2025-01-13"))
	require.NoError(t, err)
	require.Len(t, timeline.Buckets, 3)

	first := timeline.Buckets[0]
	assert.Equal(t, "2025-01-06", first.Date.String())
	assert.Equal(t, models.Monday, first.Weekday)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, "e1", first.Entries[0].ID)
	assert.Equal(t, "c1", first.Entries[1].ID)

	assert.Equal(t, "2025-01-08", timeline.Buckets[1].Date.String())
	assert.Equal(t, "b1", timeline.Buckets[1].Entries[0].ID)
	assert.Equal(t, "2025-01-13", timeline.Buckets[2].Date.String())
	assert.Equal(t, "c1", timeline.Buckets[2].Entries[0].ID)
}

func TestSortFlat(t *testing.T) {
	occupations := []models.Occupation{
		examAt("e2", "r1", "2025-01-09", "08:00", "09:00"),
		classAt("c3", "r2", models.Friday, "09:00", "10:00"),
		examAt("e1", "r1", "2025-01-07", "10:00", "11:00"),
		classAt("c2", "r2", models.Monday, "09:00", "10:00"),
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
		classAt("c0", "r9", models.Monday, "08:00", "09:00"),
	}
	SortFlat(occupations)
	ids := make([]string, 0, len(occupations))
	for _, o := range occupations {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "e1", "e2"}, ids)
}

func TestBuildGridPlacesByWeekdayAndSlot(t *testing.T) {
	class := classAt("c1", "r1", models.Monday, "09:00", "10:00")
	exam := examAt("e1", "r1", "2025-01-08", "14:00", "16:30")

	grid, err := BuildGrid([]models.Occupation{class, exam}, DefaultGridOptions)
	require.NoError(t, err)
	require.Len(t, grid.Slots, 12)
	require.Len(t, grid.Rows, 7)

	monday := grid.Cell(models.Monday, 1)
	require.NotNil(t, monday)
	require.Len(t, monday.Entries, 1)
	assert.Equal(t, "c1", monday.Entries[0].Occupation.ID)
	assert.Equal(t, 60, monday.Entries[0].DurationMinutes)
	assert.Equal(t, 1, monday.Entries[0].SlotSpan)

	wednesday := grid.Cell(models.Wednesday, 6)
	require.NotNil(t, wednesday)
	require.Len(t, wednesday.Entries, 1)
	assert.Equal(t, "e1", wednesday.Entries[0].Occupation.ID)
	assert.Equal(t, 150, wednesday.Entries[0].DurationMinutes)
	assert.Equal(t, 3, wednesday.Entries[0].SlotSpan)

	placed := 0
	for _, row := range grid.Rows {
		for _, cell := range row.Cells {
			placed += len(cell.Entries)
		}
	}
	assert.Equal(t, 2, placed)
	assert.Empty(t, grid.Unplaced)
}

func TestBuildGridUnplacedAndOptions(t *testing.T) {
	early := classAt("c1", "r1", models.Tuesday, "07:00", "08:30")
	late := classAt("c2", "r1", models.Tuesday, "20:00", "21:00")

	grid, err := BuildGrid([]models.Occupation{early, late}, DefaultGridOptions)
	require.NoError(t, err)
	require.Len(t, grid.Unplaced, 2)

	grid, err = BuildGrid([]models.Occupation{early}, models.GridOptions{DayStart: models.MustClock("07:00"), DayEnd: models.MustClock("09:00"), SlotMinutes: 45})
	require.NoError(t, err)
	require.Len(t, grid.Slots, 3)
	assert.Equal(t, "08:30-09:00", grid.Slots[2].String())
	cell := grid.Cell(models.Tuesday, 0)
	require.NotNil(t, cell)
	require.Len(t, cell.Entries, 1)
	assert.Equal(t, 2, cell.Entries[0].SlotSpan)

	_, err = BuildGrid(nil, models.GridOptions{DayStart: models.MustClock("10:00"), DayEnd: models.MustClock("09:00"), SlotMinutes: 30})
	assert.Error(t, err)
	_, err = BuildGrid(nil, models.GridOptions{DayStart: models.MustClock("08:00"), DayEnd: models.MustClock("09:00"), SlotMinutes: 0})
	assert.Error(t, err)
}

func TestSubtractBusy(t *testing.T) {
	available := []models.TimeWindow{window("08:00", "12:00"), window("13:00", "17:00")}
	busy := []models.Occupation{
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
		bookingAt("b1", "r1", "2025-01-06", "10:00", "10:30"),
		examAt("e1", "r1", "2025-01-06", "11:30", "13:30"),
	}
	free := SubtractBusy(available, busy)
	require.Len(t, free, 3)
	assert.Equal(t, "08:00-09:00", free[0].String())
	assert.Equal(t, "10:30-11:30", free[1].String())
	assert.Equal(t, "13:30-17:00", free[2].String())
}

func TestCollectOptions(t *testing.T) {
	rooms := []models.Room{{ID: "r1", Name: "A101"}, {ID: "r2", Name: "B202"}, {ID: "r3", Name: "Unused"}}
	occupations := []models.Occupation{
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
		classAt("c2", "r1", models.Tuesday, "09:00", "10:00"),
		examAt("e1", "r2", "2025-01-06", "08:00", "09:00"),
		bookingAt("b1", "r2", "2025-01-07", "08:00", "09:00"),
	}
	opts := CollectOptions(rooms, occupations)
	assert.Equal(t, []models.RoomOption{{ID: "r1", Name: "A101"}, {ID: "r2", Name: "B202"}}, opts.Rooms)
	assert.Equal(t, []models.CourseOption{{Code: "CSE101", Title: "Intro"}, {Code: "CSE201", Title: "Data Structures"}}, opts.Courses)
	assert.Equal(t, []string{"26", "27"}, opts.Batches)
	assert.Equal(t, []string{"1", "3"}, opts.Semesters)
	assert.Equal(t, []string{"Rahman"}, opts.Instructors)
}
