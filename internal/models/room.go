package models

import (
	"strings"
	"time"
)

// DayAvailability lists the windows a room can be used on one weekday.
type DayAvailability struct {
	Weekday Weekday      `json:"weekday"`
	Windows []TimeWindow `json:"windows"`
}

// Room is a bookable physical resource.
type Room struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Capacity     int               `json:"capacity"`
	Facilities   []string          `json:"facilities"`
	Availability []DayAvailability `json:"availability"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// WindowsOn returns the availability windows declared for a weekday.
func (r Room) WindowsOn(day Weekday) []TimeWindow {
	for _, entry := range r.Availability {
		if entry.Weekday == day {
			return entry.Windows
		}
	}
	return nil
}

// NameKey normalises a room name for uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Clone returns a deep copy so callers cannot alias store state.
func (r Room) Clone() Room {
	out := r
	out.Facilities = append([]string(nil), r.Facilities...)
	out.Availability = make([]DayAvailability, len(r.Availability))
	for i, entry := range r.Availability {
		out.Availability[i] = DayAvailability{
			Weekday: entry.Weekday,
			Windows: append([]TimeWindow(nil), entry.Windows...),
		}
	}
	return out
}

// CreateRoomRequest is the payload for registering a room.
type CreateRoomRequest struct {
	Name         string                   `json:"name" validate:"required,max=120"`
	Capacity     int                      `json:"capacity" validate:"gt=0"`
	Facilities   []string                 `json:"facilities" validate:"omitempty,dive,max=60"`
	Availability []AvailabilityRequestDay `json:"availability" validate:"omitempty,dive"`
}

// UpdateRoomRequest carries partial room changes; nil fields are left untouched.
type UpdateRoomRequest struct {
	Name         *string                   `json:"name" validate:"omitempty,max=120"`
	Capacity     *int                      `json:"capacity"`
	Facilities   *[]string                 `json:"facilities"`
	Availability *[]AvailabilityRequestDay `json:"availability"`
}

// AvailabilityRequestDay is the wire form of one weekday template entry.
type AvailabilityRequestDay struct {
	Weekday string          `json:"weekday" validate:"required"`
	Windows []WindowRequest `json:"windows" validate:"omitempty,dive"`
}

// WindowRequest is the wire form of a time window.
type WindowRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// RoomCascadeResult summarises what a room deletion removed.
type RoomCascadeResult struct {
	RoomID             string `json:"room_id"`
	OccupationsRemoved int    `json:"occupations_removed"`
	BookingsRemoved    int    `json:"bookings_removed"`
}
