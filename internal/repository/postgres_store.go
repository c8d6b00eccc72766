package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

// PostgresStore persists the ledger in PostgreSQL. A unit of work is one
// transaction holding a transaction-scoped advisory lock per room.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Snapshot opens a read-only repeatable-read transaction.
func (s *PostgresStore) Snapshot(ctx context.Context) (ScheduleReader, func(), error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	return &pgSchedule{exec: tx}, func() { _ = tx.Rollback() }, nil
}

// WithRooms runs fn inside a transaction after locking every room id.
func (s *PostgresStore) WithRooms(ctx context.Context, roomIDs []string, fn func(ScheduleWriter) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range lockOrder(roomIDs) {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return fmt.Errorf("lock room %s: %w", id, err)
		}
	}
	if err = fn(&pgSchedule{exec: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapPQError(fmt.Errorf("commit unit of work: %w", err))
	}
	return nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "rooms_name") {
		return ErrDuplicateRoomName
	}
	return err
}

type pgSchedule struct {
	exec sqlx.ExtContext
}

type roomRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Capacity     int            `db:"capacity"`
	Facilities   types.JSONText `db:"facilities"`
	Availability types.JSONText `db:"availability"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func newRoomRow(room *models.Room) (roomRow, error) {
	facilities := room.Facilities
	if facilities == nil {
		facilities = []string{}
	}
	availability := room.Availability
	if availability == nil {
		availability = []models.DayAvailability{}
	}
	rawFacilities, err := json.Marshal(facilities)
	if err != nil {
		return roomRow{}, fmt.Errorf("marshal facilities: %w", err)
	}
	rawAvailability, err := json.Marshal(availability)
	if err != nil {
		return roomRow{}, fmt.Errorf("marshal availability: %w", err)
	}
	return roomRow{
		ID:           room.ID,
		Name:         room.Name,
		Capacity:     room.Capacity,
		Facilities:   types.JSONText(rawFacilities),
		Availability: types.JSONText(rawAvailability),
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}, nil
}

func (r roomRow) toModel() (models.Room, error) {
	room := models.Room{ID: r.ID, Name: r.Name, Capacity: r.Capacity, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if err := r.Facilities.Unmarshal(&room.Facilities); err != nil {
		return models.Room{}, fmt.Errorf("decode facilities of room %s: %w", r.ID, err)
	}
	if err := r.Availability.Unmarshal(&room.Availability); err != nil {
		return models.Room{}, fmt.Errorf("decode availability of room %s: %w", r.ID, err)
	}
	return room, nil
}

const roomColumns = `id, name, capacity, facilities, availability, created_at, updated_at`

func (q *pgSchedule) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var row roomRow
	if err := sqlx.GetContext(ctx, q.exec, &row, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id); err != nil {
		return nil, err
	}
	room, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (q *pgSchedule) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	var row roomRow
	if err := sqlx.GetContext(ctx, q.exec, &row, `SELECT `+roomColumns+` FROM rooms WHERE lower(name) = $1`, models.NameKey(name)); err != nil {
		return nil, err
	}
	room, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (q *pgSchedule) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rows []roomRow
	if err := sqlx.SelectContext(ctx, q.exec, &rows, `SELECT `+roomColumns+` FROM rooms ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]models.Room, 0, len(rows))
	for _, row := range rows {
		room, err := row.toModel()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (q *pgSchedule) InsertRoom(ctx context.Context, room *models.Room) error {
	row, err := newRoomRow(room)
	if err != nil {
		return err
	}
	const query = `INSERT INTO rooms (id, name, capacity, facilities, availability, created_at, updated_at)
VALUES (:id, :name, :capacity, :facilities, :availability, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q.exec, query, row); err != nil {
		return mapPQError(fmt.Errorf("insert room: %w", err))
	}
	return nil
}

func (q *pgSchedule) UpdateRoom(ctx context.Context, room *models.Room) error {
	row, err := newRoomRow(room)
	if err != nil {
		return err
	}
	const query = `UPDATE rooms SET name = :name, capacity = :capacity, facilities = :facilities, availability = :availability, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, q.exec, query, row)
	if err != nil {
		return mapPQError(fmt.Errorf("update room: %w", err))
	}
	return expectAffected(result, "update room")
}

func (q *pgSchedule) DeleteRoom(ctx context.Context, id string) (models.RoomCascadeResult, error) {
	result := models.RoomCascadeResult{RoomID: id}
	occupations, err := q.exec.ExecContext(ctx, `DELETE FROM occupations WHERE room_id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete room occupations: %w", err)
	}
	bookings, err := q.exec.ExecContext(ctx, `DELETE FROM booking_requests WHERE room_id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete room bookings: %w", err)
	}
	room, err := q.exec.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return result, fmt.Errorf("delete room: %w", err)
	}
	if err := expectAffected(room, "delete room"); err != nil {
		return result, err
	}
	removed, err := occupations.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("occupations rows affected: %w", err)
	}
	result.OccupationsRemoved = int(removed)
	removed, err = bookings.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("bookings rows affected: %w", err)
	}
	result.BookingsRemoved = int(removed)
	return result, nil
}

type occupationRow struct {
	ID          string           `db:"id"`
	RoomID      string           `db:"room_id"`
	Kind        string           `db:"kind"`
	Weekday     sql.NullString   `db:"weekday"`
	OccursOn    models.Date      `db:"occurs_on"`
	StartMinute models.ClockTime `db:"start_minute"`
	EndMinute   models.ClockTime `db:"end_minute"`
	CourseCode  sql.NullString   `db:"course_code"`
	CourseTitle sql.NullString   `db:"course_title"`
	Batch       sql.NullString   `db:"batch"`
	Semester    sql.NullString   `db:"semester"`
	Instructor  sql.NullString   `db:"instructor"`
	ExamType    sql.NullString   `db:"exam_type"`
	Invigilator sql.NullString   `db:"invigilator"`
	BookingID   sql.NullString   `db:"booking_id"`
	RequestedBy sql.NullString   `db:"requested_by"`
	Email       sql.NullString   `db:"email"`
	Purpose     sql.NullString   `db:"purpose"`
	Attendees   sql.NullInt64    `db:"attendees"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

func text(value string) sql.NullString {
	return sql.NullString{String: value, Valid: true}
}

func newOccupationRow(o *models.Occupation) (occupationRow, error) {
	if err := o.Validate(); err != nil {
		return occupationRow{}, err
	}
	row := occupationRow{
		ID:          o.ID,
		RoomID:      o.RoomID,
		Kind:        string(o.Kind),
		StartMinute: o.Start,
		EndMinute:   o.End,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	switch o.Kind {
	case models.OccupationClass:
		row.Weekday = text(string(o.Class.Weekday))
		row.CourseCode = text(o.Class.CourseCode)
		row.CourseTitle = text(o.Class.CourseTitle)
		row.Batch = text(o.Class.Batch)
		row.Semester = text(o.Class.Semester)
		row.Instructor = text(o.Class.Instructor)
	case models.OccupationExam:
		row.OccursOn = o.Exam.Date
		row.CourseCode = text(o.Exam.CourseCode)
		row.CourseTitle = text(o.Exam.CourseTitle)
		row.Batch = text(o.Exam.Batch)
		row.Semester = text(o.Exam.Semester)
		row.ExamType = text(string(o.Exam.ExamType))
		row.Invigilator = text(o.Exam.Invigilator)
	case models.OccupationBooking:
		row.OccursOn = o.Booking.Date
		row.BookingID = text(o.Booking.BookingID)
		row.RequestedBy = text(o.Booking.RequestedBy)
		row.Email = text(o.Booking.Email)
		row.Purpose = text(o.Booking.Purpose)
		row.Attendees = sql.NullInt64{Int64: int64(o.Booking.Attendees), Valid: true}
	}
	return row, nil
}

func (r occupationRow) toModel() (models.Occupation, error) {
	occupation := models.Occupation{
		ID:         r.ID,
		RoomID:     r.RoomID,
		Kind:       models.OccupationKind(r.Kind),
		TimeWindow: models.TimeWindow{Start: r.StartMinute, End: r.EndMinute},
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	switch occupation.Kind {
	case models.OccupationClass:
		occupation.Class = &models.ClassDetails{
			Weekday:     models.Weekday(r.Weekday.String),
			CourseCode:  r.CourseCode.String,
			CourseTitle: r.CourseTitle.String,
			Batch:       r.Batch.String,
			Semester:    r.Semester.String,
			Instructor:  r.Instructor.String,
		}
	case models.OccupationExam:
		occupation.Exam = &models.ExamDetails{
			Date:        r.OccursOn,
			CourseCode:  r.CourseCode.String,
			CourseTitle: r.CourseTitle.String,
			Batch:       r.Batch.String,
			Semester:    r.Semester.String,
			ExamType:    models.ExamType(r.ExamType.String),
			Invigilator: r.Invigilator.String,
		}
	case models.OccupationBooking:
		occupation.Booking = &models.BookingDetails{
			Date:        r.OccursOn,
			BookingID:   r.BookingID.String,
			RequestedBy: r.RequestedBy.String,
			Email:       r.Email.String,
			Purpose:     r.Purpose.String,
			Attendees:   int(r.Attendees.Int64),
		}
	}
	if err := occupation.Validate(); err != nil {
		return models.Occupation{}, fmt.Errorf("decode occupation: %w", err)
	}
	return occupation, nil
}

const occupationColumns = `id, room_id, kind, weekday, occurs_on, start_minute, end_minute, course_code, course_title, batch, semester, instructor, exam_type, invigilator, booking_id, requested_by, email, purpose, attendees, created_at, updated_at`

func decodeOccupations(rows []occupationRow) ([]models.Occupation, error) {
	occupations := make([]models.Occupation, 0, len(rows))
	for _, row := range rows {
		occupation, err := row.toModel()
		if err != nil {
			return nil, err
		}
		occupations = append(occupations, occupation)
	}
	return occupations, nil
}

func (q *pgSchedule) GetOccupation(ctx context.Context, id string) (*models.Occupation, error) {
	var row occupationRow
	if err := sqlx.GetContext(ctx, q.exec, &row, `SELECT `+occupationColumns+` FROM occupations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	occupation, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &occupation, nil
}

// ListOccupations pushes the column predicates down to SQL and applies the
// calendar predicates in Go, where weekly classes are resolved.
func (q *pgSchedule) ListOccupations(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.RoomID != "" {
		add("room_id = $%d", filter.RoomID)
	}
	if filter.Kind != "" {
		add("kind = $%d", string(filter.Kind))
	}
	if filter.Batch != "" {
		add("lower(batch) = lower($%d)", filter.Batch)
	}
	if filter.Semester != "" {
		add("lower(semester) = lower($%d)", filter.Semester)
	}
	if filter.CourseCode != "" {
		add("lower(course_code) = lower($%d)", filter.CourseCode)
	}
	if filter.ExamType != "" {
		add("exam_type = $%d", string(filter.ExamType))
	}
	if !filter.DateTo.IsZero() {
		add("(occurs_on IS NULL OR occurs_on <= $%d)", filter.DateTo)
	}
	if !filter.DateFrom.IsZero() {
		add("(occurs_on IS NULL OR occurs_on >= $%d)", filter.DateFrom)
	}

	query := fmt.Sprintf(`SELECT %s FROM occupations WHERE %s ORDER BY id ASC`, occupationColumns, strings.Join(conditions, " AND "))
	var rows []occupationRow
	if err := sqlx.SelectContext(ctx, q.exec, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list occupations: %w", err)
	}
	decoded, err := decodeOccupations(rows)
	if err != nil {
		return nil, err
	}
	occupations := decoded[:0]
	for _, occupation := range decoded {
		if filter.Matches(occupation) {
			occupations = append(occupations, occupation)
		}
	}
	return occupations, nil
}

func (q *pgSchedule) OccupationsForKeys(ctx context.Context, roomID string, keys []models.ScheduleKey) ([]models.Occupation, error) {
	weekdays := []string{}
	dates := []string{}
	for _, key := range keys {
		if key.Dated() {
			dates = append(dates, key.Date.String())
		} else {
			weekdays = append(weekdays, string(key.Weekday))
		}
	}
	query := `SELECT ` + occupationColumns + ` FROM occupations
WHERE room_id = $1 AND ((kind = 'CLASS' AND weekday = ANY($2)) OR (kind <> 'CLASS' AND occurs_on = ANY($3::date[])))
ORDER BY start_minute ASC, id ASC`
	var rows []occupationRow
	if err := sqlx.SelectContext(ctx, q.exec, &rows, query, roomID, pq.Array(weekdays), pq.Array(dates)); err != nil {
		return nil, fmt.Errorf("load occupations for keys: %w", err)
	}
	return decodeOccupations(rows)
}

func (q *pgSchedule) InsertOccupation(ctx context.Context, occupation *models.Occupation) error {
	row, err := newOccupationRow(occupation)
	if err != nil {
		return err
	}
	const query = `INSERT INTO occupations (` + occupationColumns + `)
VALUES (:id, :room_id, :kind, :weekday, :occurs_on, :start_minute, :end_minute, :course_code, :course_title, :batch, :semester, :instructor, :exam_type, :invigilator, :booking_id, :requested_by, :email, :purpose, :attendees, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q.exec, query, row); err != nil {
		return fmt.Errorf("insert occupation: %w", err)
	}
	return nil
}

func (q *pgSchedule) UpdateOccupation(ctx context.Context, occupation *models.Occupation) error {
	row, err := newOccupationRow(occupation)
	if err != nil {
		return err
	}
	const query = `UPDATE occupations SET room_id = :room_id, kind = :kind, weekday = :weekday, occurs_on = :occurs_on,
start_minute = :start_minute, end_minute = :end_minute, course_code = :course_code, course_title = :course_title,
batch = :batch, semester = :semester, instructor = :instructor, exam_type = :exam_type, invigilator = :invigilator,
booking_id = :booking_id, requested_by = :requested_by, email = :email, purpose = :purpose, attendees = :attendees,
updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, q.exec, query, row)
	if err != nil {
		return fmt.Errorf("update occupation: %w", err)
	}
	return expectAffected(result, "update occupation")
}

func (q *pgSchedule) DeleteOccupation(ctx context.Context, id string) error {
	result, err := q.exec.ExecContext(ctx, `DELETE FROM occupations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete occupation: %w", err)
	}
	return expectAffected(result, "delete occupation")
}

type bookingRow struct {
	ID              string           `db:"id"`
	RoomID          string           `db:"room_id"`
	OccursOn        models.Date      `db:"occurs_on"`
	StartMinute     models.ClockTime `db:"start_minute"`
	EndMinute       models.ClockTime `db:"end_minute"`
	RequestedBy     string           `db:"requested_by"`
	Email           string           `db:"email"`
	Purpose         string           `db:"purpose"`
	Attendees       int              `db:"attendees"`
	Status          string           `db:"status"`
	RejectionReason *string          `db:"rejection_reason"`
	OccupationID    *string          `db:"occupation_id"`
	CreatedAt       time.Time        `db:"created_at"`
	ResolvedAt      *time.Time       `db:"resolved_at"`
}

func newBookingRow(b *models.BookingRequest) bookingRow {
	return bookingRow{
		ID:              b.ID,
		RoomID:          b.RoomID,
		OccursOn:        b.Date,
		StartMinute:     b.Start,
		EndMinute:       b.End,
		RequestedBy:     b.RequestedBy,
		Email:           b.Email,
		Purpose:         b.Purpose,
		Attendees:       b.Attendees,
		Status:          string(b.Status),
		RejectionReason: b.RejectionReason,
		OccupationID:    b.OccupationID,
		CreatedAt:       b.CreatedAt,
		ResolvedAt:      b.ResolvedAt,
	}
}

func (r bookingRow) toModel() models.BookingRequest {
	return models.BookingRequest{
		ID:              r.ID,
		RoomID:          r.RoomID,
		Date:            r.OccursOn,
		TimeWindow:      models.TimeWindow{Start: r.StartMinute, End: r.EndMinute},
		RequestedBy:     r.RequestedBy,
		Email:           r.Email,
		Purpose:         r.Purpose,
		Attendees:       r.Attendees,
		Status:          models.BookingStatus(r.Status),
		RejectionReason: r.RejectionReason,
		OccupationID:    r.OccupationID,
		CreatedAt:       r.CreatedAt,
		ResolvedAt:      r.ResolvedAt,
	}
}

const bookingColumns = `id, room_id, occurs_on, start_minute, end_minute, requested_by, email, purpose, attendees, status, rejection_reason, occupation_id, created_at, resolved_at`

func (q *pgSchedule) GetBooking(ctx context.Context, id string) (*models.BookingRequest, error) {
	var row bookingRow
	if err := sqlx.GetContext(ctx, q.exec, &row, `SELECT `+bookingColumns+` FROM booking_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	booking := row.toModel()
	return &booking, nil
}

func (q *pgSchedule) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.BookingRequest, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.RoomID != "" {
		add("room_id = $%d", filter.RoomID)
	}
	if !filter.DateFrom.IsZero() {
		add("occurs_on >= $%d", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		add("occurs_on <= $%d", filter.DateTo)
	}
	query := fmt.Sprintf(`SELECT %s FROM booking_requests WHERE %s ORDER BY created_at ASC, id ASC`, bookingColumns, strings.Join(conditions, " AND "))
	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, q.exec, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list booking requests: %w", err)
	}
	bookings := make([]models.BookingRequest, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toModel())
	}
	return bookings, nil
}

func (q *pgSchedule) InsertBooking(ctx context.Context, booking *models.BookingRequest) error {
	const query = `INSERT INTO booking_requests (` + bookingColumns + `)
VALUES (:id, :room_id, :occurs_on, :start_minute, :end_minute, :requested_by, :email, :purpose, :attendees, :status, :rejection_reason, :occupation_id, :created_at, :resolved_at)`
	if _, err := sqlx.NamedExecContext(ctx, q.exec, query, newBookingRow(booking)); err != nil {
		return fmt.Errorf("insert booking request: %w", err)
	}
	return nil
}

func (q *pgSchedule) UpdateBooking(ctx context.Context, booking *models.BookingRequest) error {
	const query = `UPDATE booking_requests SET status = :status, rejection_reason = :rejection_reason, occupation_id = :occupation_id, resolved_at = :resolved_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, q.exec, query, newBookingRow(booking))
	if err != nil {
		return fmt.Errorf("update booking request: %w", err)
	}
	return expectAffected(result, "update booking request")
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
