package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus enumerates the booking request lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "Pending"
	BookingApproved  BookingStatus = "Approved"
	BookingRejected  BookingStatus = "Rejected"
	BookingWithdrawn BookingStatus = "Withdrawn"
)

// ParseBookingStatus accepts a status in any case.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	for _, status := range []BookingStatus{BookingPending, BookingApproved, BookingRejected, BookingWithdrawn} {
		if strings.EqualFold(string(status), strings.TrimSpace(raw)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", raw)
}

// BookingRequest is an ad-hoc request to use a room that an administrator resolves.
type BookingRequest struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Date   Date   `json:"date"`
	TimeWindow
	RequestedBy     string        `json:"requested_by"`
	Email           string        `json:"email"`
	Purpose         string        `json:"purpose"`
	Attendees       int           `json:"attendees"`
	Status          BookingStatus `json:"status"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	OccupationID    *string       `json:"occupation_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
}

// Resolved reports whether the request left the Pending state.
func (b BookingRequest) Resolved() bool {
	return b.Status != BookingPending
}

// Clone returns a copy that does not share optional pointers.
func (b BookingRequest) Clone() BookingRequest {
	out := b
	if b.RejectionReason != nil {
		reason := *b.RejectionReason
		out.RejectionReason = &reason
	}
	if b.OccupationID != nil {
		id := *b.OccupationID
		out.OccupationID = &id
	}
	if b.ResolvedAt != nil {
		at := *b.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// ToOccupation builds the ledger entry an approval commits.
func (b BookingRequest) ToOccupation(id string, now time.Time) Occupation {
	return Occupation{
		ID:         id,
		RoomID:     b.RoomID,
		Kind:       OccupationBooking,
		TimeWindow: b.TimeWindow,
		Booking: &BookingDetails{
			Date:        b.Date,
			BookingID:   b.ID,
			RequestedBy: b.RequestedBy,
			Email:       b.Email,
			Purpose:     b.Purpose,
			Attendees:   b.Attendees,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SubmitBookingRequest is the public payload for requesting a room.
type SubmitBookingRequest struct {
	RoomID      string `json:"room_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	RequestedBy string `json:"requested_by" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Purpose     string `json:"purpose" validate:"required,max=500"`
	Attendees   int    `json:"attendees" validate:"gte=1"`
}

// RejectBookingRequest carries the mandatory rejection reason.
type RejectBookingRequest struct {
	Reason string `json:"reason"`
}

// WithdrawBookingRequest identifies the requester withdrawing a booking.
type WithdrawBookingRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// BookingFilter narrows booking listings. Zero values are wildcards.
type BookingFilter struct {
	Status   BookingStatus
	RoomID   string
	DateFrom Date
	DateTo   Date
	Page     int
	PageSize int
}

// Matches reports whether the request satisfies every set predicate.
func (f BookingFilter) Matches(b BookingRequest) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.RoomID != "" && b.RoomID != f.RoomID {
		return false
	}
	if !f.DateFrom.IsZero() && b.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && b.Date.After(f.DateTo) {
		return false
	}
	return true
}

// ApprovalResult pairs the resolved request with the occupation it committed.
type ApprovalResult struct {
	Booking    BookingRequest `json:"booking"`
	Occupation Occupation     `json:"occupation"`
}
