package scheduling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teambition/rrule-go"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

// DefaultGridOptions is the grid shape used when a request does not override it.
var DefaultGridOptions = models.GridOptions{
	DayStart:    8 * 60,
	DayEnd:      20 * 60,
	SlotMinutes: 60,
}

var rruleWeekdays = map[models.Weekday]rrule.Weekday{
	models.Monday:    rrule.MO,
	models.Tuesday:   rrule.TU,
	models.Wednesday: rrule.WE,
	models.Thursday:  rrule.TH,
	models.Friday:    rrule.FR,
	models.Saturday:  rrule.SA,
	models.Sunday:    rrule.SU,
}

// WeeklyRule builds the recurrence of a weekly class between two dates inclusive.
func WeeklyRule(day models.Weekday, from, until models.Date) (*rrule.RRule, error) {
	byDay, ok := rruleWeekdays[day]
	if !ok {
		return nil, fmt.Errorf("invalid weekday %q", day)
	}
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   from.Time(),
		Until:     until.Time(),
		Byweekday: []rrule.Weekday{byDay},
		Wkst:      rrule.MO,
	})
}

// WeeklyDates resolves a weekday into the concrete dates of [from, to].
func WeeklyDates(day models.Weekday, from, to models.Date) ([]models.Date, error) {
	if to.Before(from) {
		return nil, nil
	}
	rule, err := WeeklyRule(day, from, to)
	if err != nil {
		return nil, err
	}
	occurrences := rule.All()
	dates := make([]models.Date, 0, len(occurrences))
	for _, at := range occurrences {
		dates = append(dates, models.DateOf(at))
	}
	return dates, nil
}

// Recurrence is a weekly class expressed as an iCalendar recurrence: the
// first concrete date and an RRULE value that counts every occurrence.
type Recurrence struct {
	First models.Date
	Count int
	Rule  string
}

// WeeklyRecurrence describes the occurrences of day within [from, to]. The
// rule is COUNT based so it stays valid against a floating DTSTART. ok is
// false when the weekday never occurs in range.
func WeeklyRecurrence(day models.Weekday, from, to models.Date) (rec Recurrence, ok bool, err error) {
	dates, err := WeeklyDates(day, from, to)
	if err != nil || len(dates) == 0 {
		return Recurrence{}, false, err
	}
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dates[0].Time(),
		Count:     len(dates),
		Byweekday: []rrule.Weekday{rruleWeekdays[day]},
		Wkst:      rrule.MO,
	})
	if err != nil {
		return Recurrence{}, false, err
	}
	return Recurrence{First: dates[0], Count: len(dates), Rule: rule.OrigOptions.RRuleString()}, true, nil
}

// SortFlat orders a flat listing: weekly classes first by weekday, then dated
// occupations by date; ties by start, room and id.
func SortFlat(occupations []models.Occupation) {
	sort.SliceStable(occupations, func(i, j int) bool {
		a, b := occupations[i], occupations[j]
		aDate, aDated := a.Date()
		bDate, bDated := b.Date()
		if aDated != bDated {
			return !aDated
		}
		if !aDated && a.Class.Weekday != b.Class.Weekday {
			return a.Class.Weekday.Index() < b.Class.Weekday.Index()
		}
		if aDated && aDate != bDate {
			return aDate.Before(bDate)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.ID < b.ID
	})
}

// BuildTimeline groups occupations by concrete date over [from, to]. Weekly
// classes appear on every date of the range that falls on their weekday.
func BuildTimeline(occupations []models.Occupation, from, to models.Date) (models.Timeline, error) {
	byDate := make(map[models.Date][]models.Occupation)
	weekly := make(map[models.Weekday][]models.Date)
	for _, occupation := range occupations {
		if date, ok := occupation.Date(); ok {
			if date.Before(from) || date.After(to) {
				continue
			}
			byDate[date] = append(byDate[date], occupation)
			continue
		}
		day := occupation.Class.Weekday
		dates, resolved := weekly[day]
		if !resolved {
			var err error
			dates, err = WeeklyDates(day, from, to)
			if err != nil {
				return models.Timeline{}, err
			}
			weekly[day] = dates
		}
		for _, date := range dates {
			byDate[date] = append(byDate[date], occupation)
		}
	}

	timeline := models.Timeline{From: from, To: to, Buckets: make([]models.TimelineBucket, 0, len(byDate))}
	for date, entries := range byDate {
		SortByStart(entries)
		timeline.Buckets = append(timeline.Buckets, models.TimelineBucket{Date: date, Weekday: date.Weekday(), Entries: entries})
	}
	sort.Slice(timeline.Buckets, func(i, j int) bool {
		return timeline.Buckets[i].Date.Before(timeline.Buckets[j].Date)
	})
	return timeline, nil
}

// ValidateGridOptions rejects grids without a positive slot inside a non-empty day.
func ValidateGridOptions(opts models.GridOptions) error {
	if !opts.DayStart.Valid() || !opts.DayEnd.Valid() || opts.DayStart >= opts.DayEnd {
		return fmt.Errorf("grid day %s-%s is empty", opts.DayStart, opts.DayEnd)
	}
	if opts.SlotMinutes <= 0 || opts.SlotMinutes > int(opts.DayEnd-opts.DayStart) {
		return fmt.Errorf("slot length %d does not fit the grid day", opts.SlotMinutes)
	}
	return nil
}

// GridSlots cuts the grid day into slots; the last slot may be shorter.
func GridSlots(opts models.GridOptions) []models.TimeWindow {
	slots := make([]models.TimeWindow, 0)
	step := models.ClockTime(opts.SlotMinutes)
	for start := opts.DayStart; start < opts.DayEnd; start += step {
		end := start + step
		if end > opts.DayEnd {
			end = opts.DayEnd
		}
		slots = append(slots, models.TimeWindow{Start: start, End: end})
	}
	return slots
}

// BuildGrid places each occupation once, in the slot containing its start on
// its weekday. Occupations starting outside the grid day are returned unplaced.
func BuildGrid(occupations []models.Occupation, opts models.GridOptions) (models.Grid, error) {
	if err := ValidateGridOptions(opts); err != nil {
		return models.Grid{}, err
	}
	slots := GridSlots(opts)
	grid := models.Grid{
		Options:  opts,
		Slots:    slots,
		Rows:     make([]models.GridRow, len(models.Weekdays)),
		Unplaced: []models.GridPlacement{},
	}
	for i, day := range models.Weekdays {
		cells := make([]models.GridCell, len(slots))
		for j, slot := range slots {
			cells[j] = models.GridCell{Slot: slot, Entries: []models.GridPlacement{}}
		}
		grid.Rows[i] = models.GridRow{Weekday: day, Cells: cells}
	}

	sorted := append([]models.Occupation(nil), occupations...)
	SortFlat(sorted)
	for _, occupation := range sorted {
		placement := models.GridPlacement{Occupation: occupation, DurationMinutes: occupation.Minutes()}
		if occupation.Start < opts.DayStart || occupation.Start >= opts.DayEnd {
			grid.Unplaced = append(grid.Unplaced, placement)
			continue
		}
		index := int(occupation.Start-opts.DayStart) / opts.SlotMinutes
		span := 0
		for k := index; k < len(slots) && slots[k].Start < occupation.End; k++ {
			span++
		}
		placement.SlotSpan = span
		row := &grid.Rows[occupation.Weekday().Index()]
		row.Cells[index].Entries = append(row.Cells[index].Entries, placement)
	}
	return grid, nil
}

// SubtractBusy removes the busy windows from the available ones.
func SubtractBusy(available []models.TimeWindow, busy []models.Occupation) []models.TimeWindow {
	blocked := make([]models.TimeWindow, 0, len(busy))
	for _, occupation := range busy {
		blocked = append(blocked, occupation.TimeWindow)
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].Start < blocked[j].Start })

	free := make([]models.TimeWindow, 0, len(available))
	for _, window := range available {
		cursor := window.Start
		for _, b := range blocked {
			if b.End <= cursor || b.Start >= window.End {
				continue
			}
			if b.Start > cursor {
				free = append(free, models.TimeWindow{Start: cursor, End: b.Start})
			}
			if b.End > cursor {
				cursor = b.End
			}
		}
		if cursor < window.End {
			free = append(free, models.TimeWindow{Start: cursor, End: window.End})
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i].Start < free[j].Start })
	return free
}

// CollectOptions derives the distinct filter values present in the ledger.
// rooms supplies display names; rooms never referenced by an occupation are omitted.
func CollectOptions(rooms []models.Room, occupations []models.Occupation) models.TimetableOptions {
	names := make(map[string]string, len(rooms))
	for _, room := range rooms {
		names[room.ID] = room.Name
	}
	roomSeen := map[string]struct{}{}
	courseSeen := map[string]struct{}{}
	batches := newDistinct()
	semesters := newDistinct()
	instructors := newDistinct()
	opts := models.TimetableOptions{
		Rooms:   []models.RoomOption{},
		Courses: []models.CourseOption{},
	}
	for _, occupation := range occupations {
		if _, ok := roomSeen[occupation.RoomID]; !ok {
			roomSeen[occupation.RoomID] = struct{}{}
			opts.Rooms = append(opts.Rooms, models.RoomOption{ID: occupation.RoomID, Name: names[occupation.RoomID]})
		}
		if code := occupation.CourseCode(); code != "" {
			key := strings.ToUpper(code)
			if _, ok := courseSeen[key]; !ok {
				courseSeen[key] = struct{}{}
				opts.Courses = append(opts.Courses, models.CourseOption{Code: code, Title: occupation.CourseTitle()})
			}
		}
		batches.add(occupation.Batch())
		semesters.add(occupation.Semester())
		if occupation.Kind == models.OccupationClass {
			instructors.add(occupation.Class.Instructor)
		}
	}
	sort.Slice(opts.Rooms, func(i, j int) bool { return opts.Rooms[i].ID < opts.Rooms[j].ID })
	sort.Slice(opts.Courses, func(i, j int) bool { return opts.Courses[i].Code < opts.Courses[j].Code })
	opts.Batches = batches.sorted()
	opts.Semesters = semesters.sorted()
	opts.Instructors = instructors.sorted()
	return opts
}

type distinct struct {
	seen   map[string]struct{}
	values []string
}

func newDistinct() *distinct {
	return &distinct{seen: map[string]struct{}{}, values: []string{}}
}

func (d *distinct) add(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	key := strings.ToLower(value)
	if _, ok := d.seen[key]; ok {
		return
	}
	d.seen[key] = struct{}{}
	d.values = append(d.values, value)
}

func (d *distinct) sorted() []string {
	sort.Strings(d.values)
	return d.values
}
