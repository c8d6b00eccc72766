package models

import "strings"

// OccupationFilter narrows ledger queries. Zero values are wildcards; set
// fields combine with AND.
type OccupationFilter struct {
	RoomID        string
	Kind          OccupationKind
	Weekday       Weekday
	DateFrom      Date
	DateTo        Date
	Batch         string
	Semester      string
	CourseCode    string
	Instructor    string
	ExamType      ExamType
	BookingStatus BookingStatus
	Page          int
	PageSize      int
}

// Matches applies every predicate of the filter to o.
func (f OccupationFilter) Matches(o Occupation) bool {
	if f.RoomID != "" && o.RoomID != f.RoomID {
		return false
	}
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.BookingStatus != "" && (f.BookingStatus != BookingApproved || o.Kind != OccupationBooking) {
		return false
	}
	if f.Weekday != "" && o.Weekday() != f.Weekday {
		return false
	}
	if !f.matchesRange(o) {
		return false
	}
	if f.Batch != "" && !strings.EqualFold(o.Batch(), f.Batch) {
		return false
	}
	if f.Semester != "" && !strings.EqualFold(o.Semester(), f.Semester) {
		return false
	}
	if f.CourseCode != "" && !strings.EqualFold(o.CourseCode(), f.CourseCode) {
		return false
	}
	if f.Instructor != "" && (o.Kind != OccupationClass || !strings.EqualFold(o.Class.Instructor, f.Instructor)) {
		return false
	}
	if f.ExamType != "" && (o.Kind != OccupationExam || o.Exam.ExamType != f.ExamType) {
		return false
	}
	return true
}

func (f OccupationFilter) matchesRange(o Occupation) bool {
	if f.DateFrom.IsZero() && f.DateTo.IsZero() {
		return true
	}
	if date, ok := o.Date(); ok {
		if !f.DateFrom.IsZero() && date.Before(f.DateFrom) {
			return false
		}
		if !f.DateTo.IsZero() && date.After(f.DateTo) {
			return false
		}
		return true
	}
	// A weekly class matches when its weekday occurs inside the range. An
	// open-ended or week-long range always contains it.
	if f.DateFrom.IsZero() || f.DateTo.IsZero() {
		return true
	}
	if f.DateTo.Before(f.DateFrom) {
		return false
	}
	if f.DateFrom.DaysUntil(f.DateTo) >= 6 {
		return true
	}
	for d := f.DateFrom; !d.After(f.DateTo); d = d.AddDays(1) {
		if d.Weekday() == o.Class.Weekday {
			return true
		}
	}
	return false
}

// TimelineBucket groups the occupations of one calendar date.
type TimelineBucket struct {
	Date    Date         `json:"date"`
	Weekday Weekday      `json:"weekday"`
	Entries []Occupation `json:"entries"`
}

// Timeline is the grouped-by-date projection of a date range.
type Timeline struct {
	From    Date             `json:"from"`
	To      Date             `json:"to"`
	Buckets []TimelineBucket `json:"buckets"`
}

// GridOptions shapes the weekday by time-slot matrix.
type GridOptions struct {
	DayStart    ClockTime `json:"day_start"`
	DayEnd      ClockTime `json:"day_end"`
	SlotMinutes int       `json:"slot_minutes"`
}

// GridPlacement is an occupation anchored in the slot holding its start.
type GridPlacement struct {
	Occupation      Occupation `json:"occupation"`
	DurationMinutes int        `json:"duration_minutes"`
	SlotSpan        int        `json:"slot_span"`
}

// GridCell holds the placements starting in one slot of one weekday.
type GridCell struct {
	Slot    TimeWindow      `json:"slot"`
	Entries []GridPlacement `json:"entries"`
}

// GridRow is one weekday of the grid.
type GridRow struct {
	Weekday Weekday    `json:"weekday"`
	Cells   []GridCell `json:"cells"`
}

// Grid is the weekday by time-slot projection.
type Grid struct {
	Options  GridOptions     `json:"options"`
	Slots    []TimeWindow    `json:"slots"`
	Rows     []GridRow       `json:"rows"`
	Unplaced []GridPlacement `json:"unplaced"`
}

// Cell returns the cell for a weekday and slot index, or nil.
func (g Grid) Cell(day Weekday, slot int) *GridCell {
	for i := range g.Rows {
		if g.Rows[i].Weekday != day {
			continue
		}
		if slot < 0 || slot >= len(g.Rows[i].Cells) {
			return nil
		}
		return &g.Rows[i].Cells[slot]
	}
	return nil
}

// CourseOption is a distinct course offered in the ledger.
type CourseOption struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// RoomOption is a distinct room referenced by the ledger.
type RoomOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TimetableOptions lists the distinct values used to build filter menus.
type TimetableOptions struct {
	Rooms       []RoomOption   `json:"rooms"`
	Courses     []CourseOption `json:"courses"`
	Batches     []string       `json:"batches"`
	Semesters   []string       `json:"semesters"`
	Instructors []string       `json:"instructors"`
}

// FreeWindows lists the unoccupied parts of a room's availability on a date.
type FreeWindows struct {
	RoomID  string       `json:"room_id"`
	Date    Date         `json:"date"`
	Weekday Weekday      `json:"weekday"`
	Windows []TimeWindow `json:"windows"`
}
