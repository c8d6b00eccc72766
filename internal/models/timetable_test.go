package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleClass() Occupation {
	return Occupation{
		ID: "c1", RoomID: "r1", Kind: OccupationClass,
		TimeWindow: TimeWindow{Start: MustClock("09:00"), End: MustClock("10:00")},
		Class:      &ClassDetails{Weekday: Monday, CourseCode: "CSE101", CourseTitle: "Intro", Batch: "27", Semester: "1", Instructor: "Rahman"},
	}
}

func sampleBooking() Occupation {
	d, _ := ParseDate("2025-01-08")
	return Occupation{
		ID: "b1", RoomID: "r1", Kind: OccupationBooking,
		TimeWindow: TimeWindow{Start: MustClock("13:00"), End: MustClock("14:00")},
		Booking:    &BookingDetails{Date: d, BookingID: "req-1", RequestedBy: "Club", Email: "club@example.edu", Purpose: "Meetup", Attendees: 12},
	}
}

func TestOccupationFilterMatches(t *testing.T) {
	class := sampleClass()
	booking := sampleBooking()
	monday, _ := ParseDate("2025-01-06")
	tuesday, _ := ParseDate("2025-01-07")
	friday, _ := ParseDate("2025-01-10")

	cases := []struct {
		name    string
		filter  OccupationFilter
		class   bool
		booking bool
	}{
		{"wildcard", OccupationFilter{}, true, true},
		{"room and weekday", OccupationFilter{RoomID: "r1", Weekday: Monday}, true, false},
		{"weekday of booking date", OccupationFilter{Weekday: Wednesday}, false, true},
		{"other semester", OccupationFilter{Semester: "2"}, false, false},
		{"semester only on courses", OccupationFilter{Semester: "1"}, true, false},
		{"course code case-insensitive", OccupationFilter{CourseCode: "cse101"}, true, false},
		{"approved bookings", OccupationFilter{BookingStatus: BookingApproved}, false, true},
		{"pending matches nothing", OccupationFilter{BookingStatus: BookingPending}, false, false},
		{"range without monday", OccupationFilter{DateFrom: tuesday, DateTo: friday}, false, true},
		{"range with monday", OccupationFilter{DateFrom: monday, DateTo: tuesday}, true, false},
		{"open-ended range", OccupationFilter{DateFrom: friday}, true, false},
		{"kind", OccupationFilter{Kind: OccupationBooking}, false, true},
		{"instructor", OccupationFilter{Instructor: "rahman"}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.class, tc.filter.Matches(class), "class")
			assert.Equal(t, tc.booking, tc.filter.Matches(booking), "booking")
		})
	}
}

func TestOccupationValidateAndKey(t *testing.T) {
	class := sampleClass()
	assert.NoError(t, class.Validate())
	assert.Equal(t, "W:Monday", class.Key().String())

	booking := sampleBooking()
	assert.Equal(t, "D:2025-01-08", booking.Key().String())
	assert.Equal(t, Wednesday, booking.Weekday())

	broken := class
	broken.Exam = &ExamDetails{}
	assert.Error(t, broken.Validate())

	mislabelled := class
	mislabelled.Kind = OccupationExam
	assert.Error(t, mislabelled.Validate())
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, meta := Paginate(items, 2, 2)
	assert.Equal(t, []int{3, 4}, page)
	assert.Equal(t, &Pagination{Page: 2, PageSize: 2, TotalCount: 5}, meta)

	all, meta := Paginate(items, 0, 0)
	assert.Equal(t, items, all)
	assert.Nil(t, meta)

	empty, _ := Paginate(items, 9, 2)
	assert.Empty(t, empty)
}
