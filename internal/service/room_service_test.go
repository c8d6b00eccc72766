package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

func TestRoomCreateNormalisesPayload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})

	room, err := env.rooms.Create(ctx, models.CreateRoomRequest{
		Name:       "  A101 ",
		Capacity:   40,
		Facilities: []string{"Projector", " projector", "", "Whiteboard"},
		Availability: []models.AvailabilityRequestDay{
			availability("tuesday", "13:00", "17:00"),
			availability("Monday", "13:00", "17:00"),
			availability("Monday", "08:00", "12:00"),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "A101", room.Name)
	assert.Equal(t, []string{"Projector", "Whiteboard"}, room.Facilities)
	require.Len(t, room.Availability, 2)
	assert.Equal(t, models.Monday, room.Availability[0].Weekday)
	require.Len(t, room.Availability[0].Windows, 2)
	assert.Equal(t, "08:00", room.Availability[0].Windows[0].Start.String())
	assert.Equal(t, models.Tuesday, room.Availability[1].Weekday)
}

func TestRoomCreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	env.room(t, "A101", 30)

	_, err := env.rooms.Create(ctx, models.CreateRoomRequest{Name: "a101", Capacity: 10})
	requireCode(t, err, appErrors.ErrConflict.Code)

	_, err = env.rooms.Create(ctx, models.CreateRoomRequest{Name: "   ", Capacity: 10})
	appErr := requireCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "name", appErr.Details["field"])

	_, err = env.rooms.Create(ctx, models.CreateRoomRequest{Name: "B202", Capacity: 10, Facilities: []string{strings.Repeat("x", 61)}})
	requireCode(t, err, appErrors.ErrValidation.Code)

	_, err = env.rooms.Create(ctx, models.CreateRoomRequest{Name: "B202", Capacity: 10, Availability: []models.AvailabilityRequestDay{
		availability("Monday", "08:00", "12:00", "11:00", "13:00"),
	}})
	appErr = requireCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "availability", appErr.Details["field"])

	_, err = env.rooms.Create(ctx, models.CreateRoomRequest{Name: "B202", Capacity: 10, Availability: []models.AvailabilityRequestDay{
		availability("Someday", "08:00", "12:00"),
	}})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestRoomUpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30, availability("Monday", "08:00", "12:00"))
	env.room(t, "B202", 30)

	capacity := 50
	updated, err := env.rooms.Update(ctx, room.ID, models.UpdateRoomRequest{Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Capacity)
	assert.Equal(t, "A101", updated.Name)
	assert.Len(t, updated.Availability, 1)

	taken := "b202"
	_, err = env.rooms.Update(ctx, room.ID, models.UpdateRoomRequest{Name: &taken})
	requireCode(t, err, appErrors.ErrConflict.Code)

	zero := 0
	_, err = env.rooms.Update(ctx, room.ID, models.UpdateRoomRequest{Capacity: &zero})
	requireCode(t, err, appErrors.ErrValidation.Code)

	_, err = env.rooms.Update(ctx, "missing", models.UpdateRoomRequest{Capacity: &capacity})
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestRoomDeleteCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	other := env.room(t, "B202", 30)
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")
	_, err := env.occupations.CreateExam(ctx, examRequest(room.ID, wednesday, "09:00", "10:00", "CSE201"))
	require.NoError(t, err)
	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "11:00", "12:00", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, booking.ID)
	require.NoError(t, err)
	_, err = env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "13:00", "14:00", 5))
	require.NoError(t, err)
	env.class(t, other.ID, "Monday", "09:00", "10:00", "CSE101")

	result, err := env.rooms.Delete(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.OccupationsRemoved)
	assert.Equal(t, 2, result.BookingsRemoved)

	_, err = env.rooms.Get(ctx, room.ID)
	requireCode(t, err, appErrors.ErrNotFound.Code)
	_, _, _, err = env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID})
	requireCode(t, err, appErrors.ErrNotFound.Code)
	from, _ := models.ParseDate(monday)
	_, _, err = env.query.Timeline(ctx, models.OccupationFilter{RoomID: room.ID, DateFrom: from, DateTo: from.AddDays(6)})
	requireCode(t, err, appErrors.ErrNotFound.Code)
	_, _, err = env.query.Grid(ctx, models.OccupationFilter{RoomID: room.ID}, models.GridOptions{})
	requireCode(t, err, appErrors.ErrNotFound.Code)
	remaining, _, _, err := env.query.Query(ctx, models.OccupationFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, other.ID, remaining[0].RoomID)
	bookings, _, err := env.bookings.ListAll(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, bookings)

	_, err = env.rooms.Delete(ctx, room.ID)
	requireCode(t, err, appErrors.ErrNotFound.Code)

	// The name is free again.
	env.room(t, "A101", 30)
}
