package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

func window(start, end string) models.TimeWindow {
	w, err := models.ParseWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

func classAt(id, room string, day models.Weekday, start, end string) models.Occupation {
	return models.Occupation{
		ID: id, RoomID: room, Kind: models.OccupationClass, TimeWindow: window(start, end),
		Class: &models.ClassDetails{Weekday: day, CourseCode: "CSE101", CourseTitle: "Intro", Batch: "27", Semester: "1", Instructor: "Rahman"},
	}
}

func examAt(id, room, date, start, end string) models.Occupation {
	d, err := models.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return models.Occupation{
		ID: id, RoomID: room, Kind: models.OccupationExam, TimeWindow: window(start, end),
		Exam: &models.ExamDetails{Date: d, CourseCode: "CSE201", CourseTitle: "Data Structures", Batch: "26", Semester: "3", ExamType: models.ExamMidterm},
	}
}

func bookingAt(id, room, date, start, end string) models.Occupation {
	d, err := models.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return models.Occupation{
		ID: id, RoomID: room, Kind: models.OccupationBooking, TimeWindow: window(start, end),
		Booking: &models.BookingDetails{Date: d, BookingID: "req-" + id, RequestedBy: "Club", Email: "club@example.edu", Purpose: "Meetup", Attendees: 10},
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b models.TimeWindow
		want bool
	}{
		{"disjoint", window("09:00", "10:00"), window("11:00", "12:00"), false},
		{"touching", window("09:00", "10:00"), window("10:00", "11:00"), false},
		{"partial", window("10:00", "11:00"), window("10:30", "11:30"), true},
		{"contained", window("09:00", "12:00"), window("10:00", "10:15"), true},
		{"identical", window("09:00", "10:00"), window("09:00", "10:00"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.a, tc.b))
			assert.Equal(t, tc.want, Overlaps(tc.b, tc.a))
		})
	}
}

func TestFindConflictScopes(t *testing.T) {
	monday := "2025-01-06"
	committed := []models.Occupation{
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
		classAt("c2", "r1", models.Tuesday, "09:00", "10:00"),
		examAt("e1", "r1", monday, "14:00", "16:00"),
		examAt("e2", "r1", "2025-01-07", "10:00", "12:00"),
		bookingAt("b1", "r2", monday, "09:00", "10:00"),
	}

	cases := []struct {
		name      string
		candidate models.Occupation
		wantID    string
	}{
		{"class meets class same weekday", classAt("new", "r1", models.Monday, "09:30", "10:30"), "c1"},
		{"class ignores other weekday", classAt("new", "r1", models.Wednesday, "09:00", "10:00"), ""},
		{"class ignores exams", classAt("new", "r1", models.Monday, "14:30", "15:00"), ""},
		{"exam meets class on weekday", examAt("new", "r1", monday, "09:15", "09:45"), "c1"},
		{"exam meets exam same date", examAt("new", "r1", monday, "15:00", "17:00"), "e1"},
		{"exam ignores exam other date", examAt("new", "r1", "2025-01-13", "15:00", "17:00"), ""},
		{"booking touching class", bookingAt("new", "r1", monday, "10:00", "11:00"), ""},
		{"booking ignores other room", bookingAt("new", "r3", monday, "09:00", "10:00"), ""},
		{"booking meets exam", bookingAt("new", "r1", "2025-01-07", "11:00", "13:00"), "e2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hit, err := FindConflict(tc.candidate, committed)
			require.NoError(t, err)
			if tc.wantID == "" {
				assert.Nil(t, hit)
				return
			}
			require.NotNil(t, hit)
			assert.Equal(t, tc.wantID, hit.ID)
		})
	}
}

func TestFindConflictExcludesSelf(t *testing.T) {
	existing := classAt("c1", "r1", models.Monday, "09:00", "10:00")
	moved := classAt("c1", "r1", models.Monday, "09:30", "10:30")

	hit, err := FindConflict(moved, []models.Occupation{existing})
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestFindConflictDetectsCorruption(t *testing.T) {
	committed := []models.Occupation{
		classAt("c1", "r1", models.Monday, "09:00", "11:00"),
		classAt("c2", "r1", models.Monday, "10:00", "12:00"),
	}
	hit, err := FindConflict(classAt("new", "r1", models.Monday, "15:00", "16:00"), committed)
	assert.Nil(t, hit)
	var corrupted *CorruptionError
	require.ErrorAs(t, err, &corrupted)
	assert.Equal(t, "r1", corrupted.RoomID)
}

func TestFindConflictToleratesOverlapAcrossKeys(t *testing.T) {
	monday := "2025-01-06"
	committed := []models.Occupation{
		examAt("e1", "r1", monday, "09:00", "10:00"),
		classAt("c1", "r1", models.Monday, "09:00", "10:00"),
	}

	hit, err := FindConflict(bookingAt("b1", "r1", monday, "14:00", "15:00"), committed)
	require.NoError(t, err)
	assert.Nil(t, hit)

	hit, err = FindConflict(bookingAt("b2", "r1", monday, "09:30", "10:30"), committed)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "c1", hit.ID)
}

func TestFindConflictReturnsEarliestOverlap(t *testing.T) {
	committed := []models.Occupation{
		classAt("late", "r1", models.Friday, "11:00", "12:00"),
		classAt("early", "r1", models.Friday, "09:00", "10:00"),
	}
	hit, err := FindConflict(classAt("new", "r1", models.Friday, "09:30", "11:30"), committed)
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "early", hit.ID)
}

func TestFirstOverlap(t *testing.T) {
	_, _, found := FirstOverlap([]models.TimeWindow{window("08:00", "10:00"), window("10:00", "12:00")})
	assert.False(t, found)

	i, j, found := FirstOverlap([]models.TimeWindow{window("08:00", "10:00"), window("13:00", "14:00"), window("09:00", "09:30")})
	require.True(t, found)
	assert.Equal(t, 0, i)
	assert.Equal(t, 2, j)
}

func TestScope(t *testing.T) {
	keys := Scope(examAt("e", "r1", "2025-01-08", "14:00", "15:00"))
	require.Len(t, keys, 2)
	assert.Equal(t, "D:2025-01-08", keys[0].String())
	assert.Equal(t, "W:Wednesday", keys[1].String())

	keys = Scope(classAt("c", "r1", models.Monday, "09:00", "10:00"))
	require.Len(t, keys, 1)
	assert.Equal(t, "W:Monday", keys[0].String())
}
