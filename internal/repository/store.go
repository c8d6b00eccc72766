package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

// ErrDuplicateRoomName is returned when a room name is already taken (case-insensitive).
var ErrDuplicateRoomName = errors.New("room name already exists")

// ScheduleReader exposes read access to rooms, the occupation ledger and
// booking requests. Missing records are reported as sql.ErrNoRows.
type ScheduleReader interface {
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	FindRoomByName(ctx context.Context, name string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	GetOccupation(ctx context.Context, id string) (*models.Occupation, error)
	ListOccupations(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, error)
	OccupationsForKeys(ctx context.Context, roomID string, keys []models.ScheduleKey) ([]models.Occupation, error)
	GetBooking(ctx context.Context, id string) (*models.BookingRequest, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, error)
}

// ScheduleWriter stages mutations inside a room unit of work.
type ScheduleWriter interface {
	ScheduleReader
	InsertRoom(ctx context.Context, room *models.Room) error
	UpdateRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, id string) (models.RoomCascadeResult, error)
	InsertOccupation(ctx context.Context, occupation *models.Occupation) error
	UpdateOccupation(ctx context.Context, occupation *models.Occupation) error
	DeleteOccupation(ctx context.Context, id string) error
	InsertBooking(ctx context.Context, booking *models.BookingRequest) error
	UpdateBooking(ctx context.Context, booking *models.BookingRequest) error
}

// Store is the persistence boundary of the scheduling engine.
//
// WithRooms grants exclusive write access to the listed rooms for the
// duration of fn and commits every write fn staged, or none of them when fn
// or the commit fails. Units touching disjoint rooms run concurrently.
//
// Snapshot returns a consistent read view that does not block writers. The
// release func must be called once the caller is done reading.
type Store interface {
	Snapshot(ctx context.Context) (ScheduleReader, func(), error)
	WithRooms(ctx context.Context, roomIDs []string, fn func(ScheduleWriter) error) error
}

// lockOrder de-duplicates room ids and sorts them so concurrent units always
// acquire room locks in the same order.
func lockOrder(roomIDs []string) []string {
	seen := make(map[string]struct{}, len(roomIDs))
	ordered := make([]string, 0, len(roomIDs))
	for _, id := range roomIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)
	return ordered
}
