package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

func TestBookingApprovalCommitsOnceAndConflictKeepsPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30, availability("Monday", "09:00", "12:00"))

	first, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 20))
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, first.Status)

	approved, err := env.bookings.Approve(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingApproved, approved.Booking.Status)
	require.NotNil(t, approved.Booking.OccupationID)
	assert.Equal(t, approved.Occupation.ID, *approved.Booking.OccupationID)
	assert.Equal(t, models.OccupationBooking, approved.Occupation.Kind)
	assert.Equal(t, first.ID, approved.Occupation.Booking.BookingID)

	second, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:30", "11:30", 10))
	require.NoError(t, err, "submission does not check the ledger by default")
	assert.Equal(t, models.BookingPending, second.Status)

	_, err = env.bookings.Approve(ctx, second.ID)
	appErr := requireCode(t, err, appErrors.ErrConflict.Code)
	conflict, ok := appErr.Details["conflict"].(models.OccupationConflict)
	require.True(t, ok)
	assert.Equal(t, approved.Occupation.ID, conflict.OccupationID)

	reloaded, err := env.bookings.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, reloaded.Status)
	assert.Nil(t, reloaded.OccupationID)

	occupations, _, _, err := env.query.Query(ctx, models.OccupationFilter{RoomID: room.ID, Kind: models.OccupationBooking})
	require.NoError(t, err)
	require.Len(t, occupations, 1)
}

func TestBookingConcurrentApprovalsCommitExactlyOne(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	const contenders = 8
	ids := make([]string, contenders)
	for i := range ids {
		booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 5))
		require.NoError(t, err)
		ids[i] = booking.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.bookings.Approve(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case appErrors.HasCode(err, appErrors.ErrConflict.Code):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, conflicts)
	pending, _, err := env.bookings.ListPending(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, pending, contenders-1)
}

func TestBookingApproveConflictsWithClassOnSameWeekday(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "09:30", "10:30", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, booking.ID)
	appErr := requireCode(t, err, appErrors.ErrConflict.Code)
	assert.Equal(t, class.ID, appErr.Details["conflict"].(models.OccupationConflict).OccupationID)

	// Touching windows do not conflict.
	adjacent, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, adjacent.ID)
	require.NoError(t, err)
}

func TestBookingApproveAfterClassPlacedOverExam(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	exam, err := env.occupations.CreateExam(ctx, examRequest(room.ID, monday, "09:00", "10:00", "CSE201"))
	require.NoError(t, err)
	// Classes are only checked against classes, so this lands on the exam.
	class := env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "14:00", "15:00", 5))
	require.NoError(t, err)
	approved, err := env.bookings.Approve(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingApproved, approved.Booking.Status)

	_, err = env.occupations.CreateExam(ctx, examRequest(room.ID, monday, "16:00", "17:00", "CSE202"))
	require.NoError(t, err)

	clashing, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "09:30", "10:30", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, clashing.ID)
	appErr := requireCode(t, err, appErrors.ErrConflict.Code)
	assert.Contains(t, []string{exam.ID, class.ID}, appErr.Details["conflict"].(models.OccupationConflict).OccupationID)
}

func TestBookingApproveRechecksCapacity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 25))
	require.NoError(t, err)

	smaller := 20
	_, err = env.rooms.Update(ctx, room.ID, models.UpdateRoomRequest{Capacity: &smaller})
	require.NoError(t, err)

	_, err = env.bookings.Approve(ctx, booking.ID)
	appErr := requireCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "attendees", appErr.Details["field"])
	assert.Equal(t, 20, appErr.Details["capacity"])

	reloaded, err := env.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, reloaded.Status)
	assert.Nil(t, reloaded.OccupationID)
}

func TestBookingRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 5))
	require.NoError(t, err)

	_, err = env.bookings.Reject(ctx, booking.ID, models.RejectBookingRequest{Reason: "   "})
	appErr := requireCode(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "reason", appErr.Details["field"])

	rejected, err := env.bookings.Reject(ctx, booking.ID, models.RejectBookingRequest{Reason: " Room under maintenance "})
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "Room under maintenance", *rejected.RejectionReason)
	assert.NotNil(t, rejected.ResolvedAt)

	_, err = env.bookings.Approve(ctx, booking.ID)
	appErr = requireCode(t, err, appErrors.ErrState.Code)
	assert.Equal(t, models.BookingRejected, appErr.Details["status"])
}

func TestBookingWithdraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)
	booking, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "10:00", "11:00", 5))
	require.NoError(t, err)

	_, err = env.bookings.Withdraw(ctx, booking.ID, models.WithdrawBookingRequest{Email: "someone@campus.test"})
	requireCode(t, err, appErrors.ErrForbidden.Code)
	still, err := env.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, still.Status)

	withdrawn, err := env.bookings.Withdraw(ctx, booking.ID, models.WithdrawBookingRequest{Email: "NADIA@campus.test"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingWithdrawn, withdrawn.Status)

	_, err = env.bookings.Withdraw(ctx, booking.ID, models.WithdrawBookingRequest{Email: "nadia@campus.test"})
	requireCode(t, err, appErrors.ErrState.Code)

	_, err = env.bookings.Withdraw(ctx, "missing", models.WithdrawBookingRequest{Email: "nadia@campus.test"})
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestBookingSubmitValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	room := env.room(t, "A101", 30)

	cases := []struct {
		name  string
		req   models.SubmitBookingRequest
		code  string
		field string
	}{
		{"over capacity", bookingRequest(room.ID, monday, "10:00", "11:00", 31), appErrors.ErrValidation.Code, "attendees"},
		{"inverted window", bookingRequest(room.ID, monday, "11:00", "10:00", 5), appErrors.ErrValidation.Code, "end"},
		{"bad date", bookingRequest(room.ID, "06/01/2025", "10:00", "11:00", 5), appErrors.ErrValidation.Code, "date"},
		{"bad email", func() models.SubmitBookingRequest {
			r := bookingRequest(room.ID, monday, "10:00", "11:00", 5)
			r.Email = "nope"
			return r
		}(), appErrors.ErrValidation.Code, "email"},
		{"unknown room", bookingRequest("missing", monday, "10:00", "11:00", 5), appErrors.ErrNotFound.Code, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.bookings.Submit(ctx, tc.req)
			appErr := requireCode(t, err, tc.code)
			if tc.field != "" {
				assert.Equal(t, tc.field, appErr.Details["field"])
			}
		})
	}

	all, _, err := env.bookings.ListAll(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBookingCheckOnSubmit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{CheckOnSubmit: true})
	room := env.room(t, "A101", 30)
	env.class(t, room.ID, "Monday", "09:00", "10:00", "CSE101")

	_, err := env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "09:30", "10:30", 5))
	requireCode(t, err, appErrors.ErrConflict.Code)

	// Pending requests never block each other.
	_, err = env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "11:00", "12:00", 5))
	require.NoError(t, err)
	_, err = env.bookings.Submit(ctx, bookingRequest(room.ID, monday, "11:00", "12:00", 5))
	require.NoError(t, err)
}

func TestBookingListFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, BookingServiceConfig{})
	a := env.room(t, "A101", 30)
	b := env.room(t, "B202", 30)
	first, err := env.bookings.Submit(ctx, bookingRequest(a.ID, monday, "10:00", "11:00", 5))
	require.NoError(t, err)
	_, err = env.bookings.Submit(ctx, bookingRequest(b.ID, wednesday, "10:00", "11:00", 5))
	require.NoError(t, err)
	_, err = env.bookings.Approve(ctx, first.ID)
	require.NoError(t, err)

	pending, _, err := env.bookings.ListPending(ctx, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].RoomID)

	byRoom, _, err := env.bookings.ListAll(ctx, models.BookingFilter{RoomID: a.ID})
	require.NoError(t, err)
	require.Len(t, byRoom, 1)
	assert.Equal(t, models.BookingApproved, byRoom[0].Status)

	paged, meta, err := env.bookings.ListAll(ctx, models.BookingFilter{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.TotalCount)
}
