package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

// MemoryStore keeps the ledger in process. Published state is immutable and
// swapped through an atomic pointer, so snapshots never block writers. Each
// room has its own lock; a unit of work stages its writes on a private copy
// and replays them onto the latest state in a short commit section.
type MemoryStore struct {
	current  atomic.Pointer[memoryState]
	locks    sync.Map
	commitMu sync.Mutex
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.current.Store(newMemoryState())
	return s
}

// Snapshot returns the currently published state.
func (s *MemoryStore) Snapshot(ctx context.Context) (ScheduleReader, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return &memoryReader{state: s.current.Load()}, func() {}, nil
}

// WithRooms runs fn while holding the locks of roomIDs.
func (s *MemoryStore) WithRooms(ctx context.Context, roomIDs []string, fn func(ScheduleWriter) error) error {
	release, err := s.acquire(ctx, lockOrder(roomIDs))
	if err != nil {
		return err
	}
	defer release()

	unit := &memoryUnit{memoryReader: memoryReader{state: s.current.Load()}}
	if err := fn(unit); err != nil {
		return err
	}
	if len(unit.ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	next := s.current.Load().clone()
	for _, op := range unit.ops {
		if err := op(next); err != nil {
			return err
		}
	}
	s.current.Store(next)
	return nil
}

func (s *MemoryStore) roomLock(id string) chan struct{} {
	lock, _ := s.locks.LoadOrStore(id, make(chan struct{}, 1))
	return lock.(chan struct{})
}

func (s *MemoryStore) acquire(ctx context.Context, ids []string) (func(), error) {
	held := make([]chan struct{}, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, id := range ids {
		lock := s.roomLock(id)
		select {
		case lock <- struct{}{}:
			held = append(held, lock)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

type memoryState struct {
	rooms       map[string]models.Room
	names       map[string]string
	occupations map[string]models.Occupation
	index       map[string][]string
	bookings    map[string]models.BookingRequest
}

func newMemoryState() *memoryState {
	return &memoryState{
		rooms:       map[string]models.Room{},
		names:       map[string]string{},
		occupations: map[string]models.Occupation{},
		index:       map[string][]string{},
		bookings:    map[string]models.BookingRequest{},
	}
}

// clone copies the maps. Stored values and index slices are never mutated in
// place, so they can be shared between states.
func (st *memoryState) clone() *memoryState {
	next := &memoryState{
		rooms:       make(map[string]models.Room, len(st.rooms)),
		names:       make(map[string]string, len(st.names)),
		occupations: make(map[string]models.Occupation, len(st.occupations)),
		index:       make(map[string][]string, len(st.index)),
		bookings:    make(map[string]models.BookingRequest, len(st.bookings)),
	}
	for k, v := range st.rooms {
		next.rooms[k] = v
	}
	for k, v := range st.names {
		next.names[k] = v
	}
	for k, v := range st.occupations {
		next.occupations[k] = v
	}
	for k, v := range st.index {
		next.index[k] = v
	}
	for k, v := range st.bookings {
		next.bookings[k] = v
	}
	return next
}

func indexKey(roomID string, key models.ScheduleKey) string {
	return roomID + "|" + key.String()
}

func (st *memoryState) putRoom(room models.Room) error {
	nameKey := models.NameKey(room.Name)
	if owner, ok := st.names[nameKey]; ok && owner != room.ID {
		return ErrDuplicateRoomName
	}
	if previous, ok := st.rooms[room.ID]; ok {
		delete(st.names, models.NameKey(previous.Name))
	}
	st.names[nameKey] = room.ID
	st.rooms[room.ID] = room.Clone()
	return nil
}

func (st *memoryState) addOccupation(occupation models.Occupation) {
	key := indexKey(occupation.RoomID, occupation.Key())
	ids := make([]string, 0, len(st.index[key])+1)
	ids = append(ids, st.index[key]...)
	st.index[key] = append(ids, occupation.ID)
	st.occupations[occupation.ID] = occupation.Clone()
}

func (st *memoryState) removeOccupation(id string) bool {
	existing, ok := st.occupations[id]
	if !ok {
		return false
	}
	key := indexKey(existing.RoomID, existing.Key())
	ids := make([]string, 0, len(st.index[key]))
	for _, candidate := range st.index[key] {
		if candidate != id {
			ids = append(ids, candidate)
		}
	}
	if len(ids) == 0 {
		delete(st.index, key)
	} else {
		st.index[key] = ids
	}
	delete(st.occupations, id)
	return true
}

func (st *memoryState) deleteRoom(id string) (models.RoomCascadeResult, error) {
	room, ok := st.rooms[id]
	if !ok {
		return models.RoomCascadeResult{}, sql.ErrNoRows
	}
	result := models.RoomCascadeResult{RoomID: id}
	for occupationID, occupation := range st.occupations {
		if occupation.RoomID == id && st.removeOccupation(occupationID) {
			result.OccupationsRemoved++
		}
	}
	for bookingID, booking := range st.bookings {
		if booking.RoomID == id {
			delete(st.bookings, bookingID)
			result.BookingsRemoved++
		}
	}
	delete(st.names, models.NameKey(room.Name))
	delete(st.rooms, id)
	return result, nil
}

type memoryReader struct {
	state *memoryState
}

func (r *memoryReader) GetRoom(_ context.Context, id string) (*models.Room, error) {
	room, ok := r.state.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := room.Clone()
	return &out, nil
}

func (r *memoryReader) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	id, ok := r.state.names[models.NameKey(name)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r.GetRoom(ctx, id)
}

func (r *memoryReader) ListRooms(_ context.Context) ([]models.Room, error) {
	rooms := make([]models.Room, 0, len(r.state.rooms))
	for _, room := range r.state.rooms {
		rooms = append(rooms, room.Clone())
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (r *memoryReader) GetOccupation(_ context.Context, id string) (*models.Occupation, error) {
	occupation, ok := r.state.occupations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := occupation.Clone()
	return &out, nil
}

func (r *memoryReader) ListOccupations(_ context.Context, filter models.OccupationFilter) ([]models.Occupation, error) {
	occupations := make([]models.Occupation, 0)
	for _, occupation := range r.state.occupations {
		if filter.Matches(occupation) {
			occupations = append(occupations, occupation.Clone())
		}
	}
	sort.Slice(occupations, func(i, j int) bool { return occupations[i].ID < occupations[j].ID })
	return occupations, nil
}

func (r *memoryReader) OccupationsForKeys(_ context.Context, roomID string, keys []models.ScheduleKey) ([]models.Occupation, error) {
	occupations := make([]models.Occupation, 0)
	for _, key := range keys {
		for _, id := range r.state.index[indexKey(roomID, key)] {
			occupation, ok := r.state.occupations[id]
			if !ok {
				return nil, fmt.Errorf("index entry %s references missing occupation %s", indexKey(roomID, key), id)
			}
			occupations = append(occupations, occupation.Clone())
		}
	}
	return occupations, nil
}

func (r *memoryReader) GetBooking(_ context.Context, id string) (*models.BookingRequest, error) {
	booking, ok := r.state.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := booking.Clone()
	return &out, nil
}

func (r *memoryReader) ListBookings(_ context.Context, filter models.BookingFilter) ([]models.BookingRequest, error) {
	bookings := make([]models.BookingRequest, 0)
	for _, booking := range r.state.bookings {
		if filter.Matches(booking) {
			bookings = append(bookings, booking.Clone())
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
		}
		return bookings[i].ID < bookings[j].ID
	})
	return bookings, nil
}

// memoryUnit reads its own staged writes. The first write clones the state
// it started from; every write is also recorded for replay at commit.
type memoryUnit struct {
	memoryReader
	staged bool
	ops    []func(*memoryState) error
}

func (u *memoryUnit) stage(op func(*memoryState) error) error {
	if !u.staged {
		u.state = u.state.clone()
		u.staged = true
	}
	if err := op(u.state); err != nil {
		return err
	}
	u.ops = append(u.ops, op)
	return nil
}

func (u *memoryUnit) InsertRoom(_ context.Context, room *models.Room) error {
	if _, exists := u.state.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	snapshot := room.Clone()
	return u.stage(func(st *memoryState) error { return st.putRoom(snapshot) })
}

func (u *memoryUnit) UpdateRoom(_ context.Context, room *models.Room) error {
	if _, exists := u.state.rooms[room.ID]; !exists {
		return sql.ErrNoRows
	}
	snapshot := room.Clone()
	return u.stage(func(st *memoryState) error {
		if _, exists := st.rooms[snapshot.ID]; !exists {
			return sql.ErrNoRows
		}
		return st.putRoom(snapshot)
	})
}

func (u *memoryUnit) DeleteRoom(_ context.Context, id string) (models.RoomCascadeResult, error) {
	if _, ok := u.state.rooms[id]; !ok {
		return models.RoomCascadeResult{}, sql.ErrNoRows
	}
	result := models.RoomCascadeResult{RoomID: id}
	for _, occupation := range u.state.occupations {
		if occupation.RoomID == id {
			result.OccupationsRemoved++
		}
	}
	for _, booking := range u.state.bookings {
		if booking.RoomID == id {
			result.BookingsRemoved++
		}
	}
	err := u.stage(func(st *memoryState) error {
		_, err := st.deleteRoom(id)
		return err
	})
	return result, err
}

func (u *memoryUnit) InsertOccupation(_ context.Context, occupation *models.Occupation) error {
	if err := occupation.Validate(); err != nil {
		return err
	}
	snapshot := occupation.Clone()
	return u.stage(func(st *memoryState) error {
		if _, ok := st.rooms[snapshot.RoomID]; !ok {
			return sql.ErrNoRows
		}
		if _, exists := st.occupations[snapshot.ID]; exists {
			return fmt.Errorf("occupation %s already exists", snapshot.ID)
		}
		st.addOccupation(snapshot)
		return nil
	})
}

func (u *memoryUnit) UpdateOccupation(_ context.Context, occupation *models.Occupation) error {
	if err := occupation.Validate(); err != nil {
		return err
	}
	snapshot := occupation.Clone()
	return u.stage(func(st *memoryState) error {
		if _, ok := st.rooms[snapshot.RoomID]; !ok {
			return sql.ErrNoRows
		}
		if !st.removeOccupation(snapshot.ID) {
			return sql.ErrNoRows
		}
		st.addOccupation(snapshot)
		return nil
	})
}

func (u *memoryUnit) DeleteOccupation(_ context.Context, id string) error {
	return u.stage(func(st *memoryState) error {
		if !st.removeOccupation(id) {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (u *memoryUnit) InsertBooking(_ context.Context, booking *models.BookingRequest) error {
	snapshot := booking.Clone()
	return u.stage(func(st *memoryState) error {
		if _, ok := st.rooms[snapshot.RoomID]; !ok {
			return sql.ErrNoRows
		}
		if _, exists := st.bookings[snapshot.ID]; exists {
			return fmt.Errorf("booking %s already exists", snapshot.ID)
		}
		st.bookings[snapshot.ID] = snapshot
		return nil
	})
}

func (u *memoryUnit) UpdateBooking(_ context.Context, booking *models.BookingRequest) error {
	snapshot := booking.Clone()
	return u.stage(func(st *memoryState) error {
		if _, exists := st.bookings[snapshot.ID]; !exists {
			return sql.ErrNoRows
		}
		st.bookings[snapshot.ID] = snapshot
		return nil
	})
}
