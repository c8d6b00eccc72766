package models

import (
	"fmt"
	"strings"
	"time"
)

// OccupationKind tags which activity holds a room.
type OccupationKind string

const (
	OccupationClass   OccupationKind = "CLASS"
	OccupationExam    OccupationKind = "EXAM"
	OccupationBooking OccupationKind = "BOOKING"
)

// ParseOccupationKind accepts a kind in any case.
func ParseOccupationKind(raw string) (OccupationKind, error) {
	switch kind := OccupationKind(strings.ToUpper(strings.TrimSpace(raw))); kind {
	case OccupationClass, OccupationExam, OccupationBooking:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid occupation kind %q", raw)
	}
}

// ExamType classifies an exam occupation.
type ExamType string

const (
	ExamMidterm   ExamType = "Midterm"
	ExamFinal     ExamType = "Final"
	ExamQuiz      ExamType = "Quiz"
	ExamOral      ExamType = "Oral"
	ExamPractical ExamType = "Practical"
)

var examTypes = []ExamType{ExamMidterm, ExamFinal, ExamQuiz, ExamOral, ExamPractical}

// ParseExamType accepts an exam type in any case.
func ParseExamType(raw string) (ExamType, error) {
	for _, t := range examTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(raw)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid exam type %q", raw)
}

// ClassDetails is the payload of a recurring weekly class.
type ClassDetails struct {
	Weekday     Weekday `json:"weekday"`
	CourseCode  string  `json:"course_code"`
	CourseTitle string  `json:"course_title"`
	Batch       string  `json:"batch"`
	Semester    string  `json:"semester"`
	Instructor  string  `json:"instructor"`
}

// ExamDetails is the payload of a one-off exam.
type ExamDetails struct {
	Date        Date     `json:"date"`
	CourseCode  string   `json:"course_code"`
	CourseTitle string   `json:"course_title"`
	Batch       string   `json:"batch"`
	Semester    string   `json:"semester"`
	ExamType    ExamType `json:"exam_type"`
	Invigilator string   `json:"invigilator,omitempty"`
}

// BookingDetails is the payload of an approved booking.
type BookingDetails struct {
	Date        Date   `json:"date"`
	BookingID   string `json:"booking_id"`
	RequestedBy string `json:"requested_by"`
	Email       string `json:"email"`
	Purpose     string `json:"purpose"`
	Attendees   int    `json:"attendees"`
}

// Occupation is a committed claim on a room for a time window. Exactly one
// of Class, Exam or Booking is set, matching Kind.
type Occupation struct {
	ID     string         `json:"id"`
	RoomID string         `json:"room_id"`
	Kind   OccupationKind `json:"kind"`
	TimeWindow
	Class     *ClassDetails   `json:"class,omitempty"`
	Exam      *ExamDetails    `json:"exam,omitempty"`
	Booking   *BookingDetails `json:"booking,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks that the payload matches the kind tag.
func (o Occupation) Validate() error {
	present := 0
	for _, set := range []bool{o.Class != nil, o.Exam != nil, o.Booking != nil} {
		if set {
			present++
		}
	}
	if present != 1 {
		return fmt.Errorf("occupation %s carries %d payloads", o.ID, present)
	}
	switch o.Kind {
	case OccupationClass:
		if o.Class == nil {
			return fmt.Errorf("occupation %s: class payload missing", o.ID)
		}
	case OccupationExam:
		if o.Exam == nil {
			return fmt.Errorf("occupation %s: exam payload missing", o.ID)
		}
	case OccupationBooking:
		if o.Booking == nil {
			return fmt.Errorf("occupation %s: booking payload missing", o.ID)
		}
	default:
		return fmt.Errorf("occupation %s: unknown kind %q", o.ID, o.Kind)
	}
	return nil
}

// Key returns the ledger key the occupation is indexed under.
func (o Occupation) Key() ScheduleKey {
	switch o.Kind {
	case OccupationClass:
		return WeekdayKey(o.Class.Weekday)
	case OccupationExam:
		return DateKey(o.Exam.Date)
	case OccupationBooking:
		return DateKey(o.Booking.Date)
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Date returns the calendar date of a dated occupation.
func (o Occupation) Date() (Date, bool) {
	switch o.Kind {
	case OccupationClass:
		return Date{}, false
	case OccupationExam:
		return o.Exam.Date, true
	case OccupationBooking:
		return o.Booking.Date, true
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Weekday returns the class weekday or the weekday of the occupation date.
func (o Occupation) Weekday() Weekday {
	if date, ok := o.Date(); ok {
		return date.Weekday()
	}
	return o.Class.Weekday
}

// Recurring reports whether the occupation repeats weekly.
func (o Occupation) Recurring() bool {
	return o.Kind == OccupationClass
}

// CourseCode is empty for bookings.
func (o Occupation) CourseCode() string {
	switch o.Kind {
	case OccupationClass:
		return o.Class.CourseCode
	case OccupationExam:
		return o.Exam.CourseCode
	case OccupationBooking:
		return ""
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// CourseTitle is empty for bookings.
func (o Occupation) CourseTitle() string {
	switch o.Kind {
	case OccupationClass:
		return o.Class.CourseTitle
	case OccupationExam:
		return o.Exam.CourseTitle
	case OccupationBooking:
		return ""
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Batch is empty for bookings.
func (o Occupation) Batch() string {
	switch o.Kind {
	case OccupationClass:
		return o.Class.Batch
	case OccupationExam:
		return o.Exam.Batch
	case OccupationBooking:
		return ""
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Semester is empty for bookings.
func (o Occupation) Semester() string {
	switch o.Kind {
	case OccupationClass:
		return o.Class.Semester
	case OccupationExam:
		return o.Exam.Semester
	case OccupationBooking:
		return ""
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Title is a short human label used by exports and grid cells.
func (o Occupation) Title() string {
	switch o.Kind {
	case OccupationClass:
		return strings.TrimSpace(o.Class.CourseCode + " " + o.Class.CourseTitle)
	case OccupationExam:
		return strings.TrimSpace(fmt.Sprintf("%s %s (%s exam)", o.Exam.CourseCode, o.Exam.CourseTitle, o.Exam.ExamType))
	case OccupationBooking:
		return "Booking: " + o.Booking.Purpose
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", o.Kind))
	}
}

// Clone returns a copy that does not share payload pointers.
func (o Occupation) Clone() Occupation {
	out := o
	if o.Class != nil {
		c := *o.Class
		out.Class = &c
	}
	if o.Exam != nil {
		e := *o.Exam
		out.Exam = &e
	}
	if o.Booking != nil {
		b := *o.Booking
		out.Booking = &b
	}
	return out
}

// ScheduleKey identifies the ledger bucket of an occupation: a weekday for
// recurring classes or a date for dated occupations.
type ScheduleKey struct {
	Weekday Weekday
	Date    Date
}

// WeekdayKey builds the key for recurring classes.
func WeekdayKey(day Weekday) ScheduleKey { return ScheduleKey{Weekday: day} }

// DateKey builds the key for dated occupations.
func DateKey(date Date) ScheduleKey { return ScheduleKey{Date: date} }

// Dated reports whether the key addresses a calendar date.
func (k ScheduleKey) Dated() bool { return !k.Date.IsZero() }

func (k ScheduleKey) String() string {
	if k.Dated() {
		return "D:" + k.Date.String()
	}
	return "W:" + string(k.Weekday)
}

// ClassRequest is the payload for creating or replacing a class occupation.
type ClassRequest struct {
	RoomID      string `json:"room_id" validate:"required"`
	Weekday     string `json:"weekday" validate:"required"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	CourseCode  string `json:"course_code" validate:"required,max=32"`
	CourseTitle string `json:"course_title" validate:"required,max=200"`
	Batch       string `json:"batch" validate:"required,max=32"`
	Semester    string `json:"semester" validate:"required,max=32"`
	Instructor  string `json:"instructor" validate:"required,max=120"`
}

// ExamRequest is the payload for creating or replacing an exam occupation.
type ExamRequest struct {
	RoomID      string `json:"room_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	CourseCode  string `json:"course_code" validate:"required,max=32"`
	CourseTitle string `json:"course_title" validate:"required,max=200"`
	Batch       string `json:"batch" validate:"required,max=32"`
	Semester    string `json:"semester" validate:"required,max=32"`
	ExamType    string `json:"exam_type" validate:"required"`
	Invigilator string `json:"invigilator" validate:"omitempty,max=120"`
}

// OccupationConflict describes the committed occupation a candidate collides with.
type OccupationConflict struct {
	OccupationID string         `json:"occupation_id"`
	RoomID       string         `json:"room_id"`
	Kind         OccupationKind `json:"kind"`
	Key          string         `json:"key"`
	Start        ClockTime      `json:"start"`
	End          ClockTime      `json:"end"`
	Label        string         `json:"label"`
}

// OccupationConflictError is returned when a candidate overlaps a committed occupation.
type OccupationConflictError struct {
	Message  string             `json:"message"`
	Conflict OccupationConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *OccupationConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NewOccupationConflictError describes a collision with existing.
func NewOccupationConflictError(candidate, existing Occupation) *OccupationConflictError {
	return &OccupationConflictError{
		Message: fmt.Sprintf("%s overlaps %s %s in room %s (%s)", candidate.TimeWindow, strings.ToLower(string(existing.Kind)), existing.ID, existing.RoomID, existing.TimeWindow),
		Conflict: OccupationConflict{
			OccupationID: existing.ID,
			RoomID:       existing.RoomID,
			Kind:         existing.Kind,
			Key:          existing.Key().String(),
			Start:        existing.Start,
			End:          existing.End,
			Label:        existing.Title(),
		},
	}
}
