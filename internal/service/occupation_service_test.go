package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

func TestCreateClassRejectsOverlapOnSameWeekday(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	existing := env.class(t, room.ID, "Monday", "09:00", "10:30", "CSE101")

	_, err := env.occupations.CreateClass(ctx, classRequest(room.ID, "monday", "10:00", "11:00", "CSE102"))
	appErr := requireCode(t, err, appErrors.ErrConflict.Code)
	conflict := appErr.Details["conflict"].(models.OccupationConflict)
	assert.Equal(t, existing.ID, conflict.OccupationID)
	assert.Equal(t, models.OccupationClass, conflict.Kind)
	assert.Equal(t, "W:Monday", conflict.Key)

	// Same window on another weekday or in another room is free.
	env.class(t, room.ID, "Tuesday", "10:00", "11:00", "CSE102")
	other := env.room(t, "B202", 30)
	env.class(t, other.ID, "Monday", "10:00", "11:00", "CSE102")
	env.class(t, room.ID, "Monday", "10:30", "11:30", "CSE103")
}

func TestExamScopeIncludesWeekdayClasses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Wednesday", "14:00", "15:00", "CSE101")

	_, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "14:30", "16:00", "CSE201"))
	appErr := requireCode(t, err, appErrors.ErrConflict.Code)
	assert.Equal(t, class.ID, appErr.Details["conflict"].(models.OccupationConflict).OccupationID)

	exam, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "15:00", "17:00", "CSE201"))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-08", exam.Exam.Date.String())

	_, err = env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "16:00", "18:00", "CSE202"))
	requireCode(t, err, appErrors.ErrConflict.Code)

	// Classes are only checked against classes.
	env.class(t, room.ID, "Wednesday", "16:00", "17:00", "CSE105")
}

func TestUpdateClassExcludesItself(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	env.class(t, room.ID, "Monday", "11:00", "12:00", "CSE102")

	updated, err := env.occupations.UpdateClass(ctx, class.ID, classRequest(room.ID, "Monday", "09:30", "10:30", "CSE101"))
	require.NoError(t, err)
	assert.Equal(t, class.ID, updated.ID)
	assert.Equal(t, class.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "09:30", updated.Start.String())

	_, err = env.occupations.UpdateClass(ctx, class.ID, classRequest(room.ID, "Monday", "10:30", "11:30", "CSE101"))
	requireCode(t, err, appErrors.ErrConflict.Code)

	stored, err := env.occupations.Get(ctx, models.OccupationClass, class.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:30", stored.Start.String(), "failed update leaves the record untouched")
}

func TestUpdateClassMovesRoom(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	a := env.room(t, "A101", 30)
	b := env.room(t, "B202", 30)
	class := env.class(t, a.ID, "Monday", "09:00", "10:00", "CSE101")

	moved, err := env.occupations.UpdateClass(ctx, class.ID, classRequest(b.ID, "Monday", "09:00", "10:00", "CSE101"))
	require.NoError(t, err)
	assert.Equal(t, b.ID, moved.RoomID)

	inA, _, _, err := env.query.Query(ctx, models.OccupationFilter{RoomID: a.ID})
	require.NoError(t, err)
	assert.Empty(t, inA)
	inB, _, _, err := env.query.Query(ctx, models.OccupationFilter{RoomID: b.ID})
	require.NoError(t, err)
	require.Len(t, inB, 1)

	// The vacated slot is free again.
	env.class(t, a.ID, "Monday", "09:00", "10:00", "CSE102")
}

func TestOccupationKindIsEnforced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	_, err := env.occupations.Get(ctx, models.OccupationExam, class.ID)
	requireCode(t, err, appErrors.ErrNotFound.Code)
	_, err = env.occupations.UpdateExam(ctx, class.ID, examRequest(room.ID, wednesday, "09:00", "10:00", "CSE101"))
	requireCode(t, err, appErrors.ErrNotFound.Code)
	err = env.occupations.Delete(ctx, models.OccupationExam, class.ID)
	requireCode(t, err, appErrors.ErrNotFound.Code)

	require.NoError(t, env.occupations.Delete(ctx, models.OccupationClass, class.ID))
	err = env.occupations.Delete(ctx, models.OccupationClass, class.ID)
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestDeleteRefusesApprovedBooking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 5))
	require.NoError(t, err)
	approved, err := env.bookings.Approve(ctx, booking.ID)
	require.NoError(t, err)

	err = env.occupations.Delete(ctx, models.OccupationClass, approved.Occupation.ID)
	requireCode(t, err, appErrors.ErrState.Code)
	err = env.occupations.Delete(ctx, models.OccupationExam, approved.Occupation.ID)
	requireCode(t, err, appErrors.ErrState.Code)
}

func TestOccupationPayloadValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	cases := []struct {
		name  string
		run   func() error
		code  string
		field string
	}{
		{"bad weekday", func() error {
			_, err := env.occupations.CreateClass(ctx, classRequest(room.ID, "Funday", "09:00", "10:00", "X"))
			return err
		}, appErrors.ErrValidation.Code, "weekday"},
		{"bad start", func() error {
			_, err := env.occupations.CreateClass(ctx, classRequest(room.ID, "Monday", "9am", "10:00", "X"))
			return err
		}, appErrors.ErrValidation.Code, "start"},
		{"empty window", func() error {
			_, err := env.occupations.CreateClass(ctx, classRequest(room.ID, "Monday", "10:00", "10:00", "X"))
			return err
		}, appErrors.ErrValidation.Code, "end"},
		{"missing course", func() error {
			_, err := env.occupations.CreateClass(ctx, classRequest(room.ID, "Monday", "09:00", "10:00", ""))
			return err
		}, appErrors.ErrValidation.Code, "course_code"},
		{"bad exam type", func() error {
			req := examRequest(room.ID, wednesday, "09:00", "10:00", "X")
			req.ExamType = "Pop"
			_, err := env.occupations.CreateExam(ctx, req)
			return err
		}, appErrors.ErrValidation.Code, "exam_type"},
		{"unknown room", func() error {
			_, err := env.occupations.CreateClass(ctx, classRequest("missing", "Monday", "09:00", "10:00", "X"))
			return err
		}, appErrors.ErrNotFound.Code, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := requireCode(t, tc.run(), tc.code)
			if tc.field != "" {
				assert.Equal(t, tc.field, appErr.Details["field"])
			}
		})
	}
}
