package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-scheduler/internal/models"
	"github.com/noah-isme/campus-scheduler/internal/scheduling"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
	"github.com/noah-isme/campus-scheduler/pkg/export"
	"github.com/noah-isme/campus-scheduler/pkg/storage"
)

// defaultCalendarWeeks bounds a calendar export whose range is left open.
const defaultCalendarWeeks = 16

type timetableSource interface {
	Query(ctx context.Context, filter models.OccupationFilter) ([]models.Occupation, *models.Pagination, bool, error)
}

type roomDirectory interface {
	List(ctx context.Context) ([]models.Room, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.CalendarEvent) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix     string
	ResultTTL     time.Duration
	CalendarWeeks int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders timetable selections and persists the files behind
// signed download tokens.
type ExportService struct {
	timetable timetableSource
	rooms     roomDirectory
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	ics       calendarRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(timetable timetableSource, rooms roomDirectory, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, ics calendarRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CalendarWeeks <= 0 {
		cfg.CalendarWeeks = defaultCalendarWeeks
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter("")
	}
	return &ExportService{
		timetable: timetable,
		rooms:     rooms,
		storage:   files,
		csv:       csv,
		pdf:       pdf,
		ics:       ics,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate renders the selection described by job and stores the result.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	filter, err := exportFilter(job.Params)
	if err != nil {
		return nil, err
	}
	occupations, _, _, err := s.timetable.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	roomNames, err := s.roomNames(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(timetableDataset(occupations, roomNames))
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(timetableDataset(occupations, roomNames), exportTitle(job.Params, roomNames))
	case models.ExportFormatICS:
		var events []export.CalendarEvent
		events, err = s.calendarEvents(occupations, roomNames, filter)
		if err == nil {
			payload, err = s.ics.Render(exportTitle(job.Params, roomNames), events)
		}
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("export rendered",
		zap.String("job_id", job.ID),
		zap.String("format", string(job.Params.Format)),
		zap.Int("occupations", len(occupations)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedToken, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) roomNames(ctx context.Context) (map[string]string, error) {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(rooms))
	for _, room := range rooms {
		names[room.ID] = room.Name
	}
	return names, nil
}

// calendarEvents turns occupations into VEVENTs. Weekly classes recur across
// the filter range, or defaultCalendarWeeks from today when it is open.
func (s *ExportService) calendarEvents(occupations []models.Occupation, rooms map[string]string, filter models.OccupationFilter) ([]export.CalendarEvent, error) {
	from, to := filter.DateFrom, filter.DateTo
	if from.IsZero() {
		from = models.DateOf(s.now())
	}
	if to.IsZero() {
		to = from.AddDays(s.cfg.CalendarWeeks*7 - 1)
	}

	events := make([]export.CalendarEvent, 0, len(occupations))
	for _, o := range occupations {
		event := export.CalendarEvent{
			UID:         o.ID + "@campus-scheduler",
			Summary:     o.Title(),
			Description: occupationDetails(o),
			Location:    rooms[o.RoomID],
			Categories:  []string{string(o.Kind)},
		}
		day, dated := o.Date()
		if !dated {
			rec, ok, err := scheduling.WeeklyRecurrence(o.Class.Weekday, from, to)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			day = rec.First
			event.RRule = rec.Rule
		}
		event.Start = atClock(day, o.Start)
		event.End = atClock(day, o.End)
		events = append(events, event)
	}
	return events, nil
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := "all"
	if job.Params.RoomID != "" {
		scope = "room_" + sanitizeFilename(job.Params.RoomID)
	}
	return fmt.Sprintf("timetable_%s_%s_%s.%s", scope, sanitizeFilename(job.ID), timestamp, job.Params.Format)
}

// exportFilter converts persisted job params into a ledger filter.
func exportFilter(params models.ExportJobParams) (models.OccupationFilter, error) {
	filter := models.OccupationFilter{
		RoomID:     params.RoomID,
		Batch:      params.Batch,
		Semester:   params.Semester,
		CourseCode: params.CourseCode,
	}
	if params.Kind != "" {
		kind, err := models.ParseOccupationKind(params.Kind)
		if err != nil {
			return filter, appErrors.Invalid("kind", err.Error())
		}
		filter.Kind = kind
	}
	if params.From != "" {
		from, err := models.ParseDate(params.From)
		if err != nil {
			return filter, appErrors.Invalid("from", err.Error())
		}
		filter.DateFrom = from
	}
	if params.To != "" {
		to, err := models.ParseDate(params.To)
		if err != nil {
			return filter, appErrors.Invalid("to", err.Error())
		}
		filter.DateTo = to
	}
	if !filter.DateFrom.IsZero() && !filter.DateTo.IsZero() && filter.DateTo.Before(filter.DateFrom) {
		return filter, appErrors.Invalid("to", "to must not be before from")
	}
	return filter, nil
}

var timetableHeaders = []string{"Kind", "Room", "Day", "Date", "Start", "End", "Course", "Batch", "Semester", "Details"}

func timetableDataset(occupations []models.Occupation, rooms map[string]string) export.Dataset {
	rows := make([]map[string]string, 0, len(occupations))
	for _, o := range occupations {
		date := ""
		if d, ok := o.Date(); ok {
			date = d.String()
		}
		room := rooms[o.RoomID]
		if room == "" {
			room = o.RoomID
		}
		rows = append(rows, map[string]string{
			"Kind":     string(o.Kind),
			"Room":     room,
			"Day":      string(o.Weekday()),
			"Date":     date,
			"Start":    o.Start.String(),
			"End":      o.End.String(),
			"Course":   o.Title(),
			"Batch":    o.Batch(),
			"Semester": o.Semester(),
			"Details":  occupationDetails(o),
		})
	}
	return export.Dataset{Headers: timetableHeaders, Rows: rows}
}

func occupationDetails(o models.Occupation) string {
	switch o.Kind {
	case models.OccupationClass:
		return "Instructor: " + o.Class.Instructor
	case models.OccupationExam:
		if o.Exam.Invigilator == "" {
			return string(o.Exam.ExamType)
		}
		return fmt.Sprintf("%s, invigilator: %s", o.Exam.ExamType, o.Exam.Invigilator)
	case models.OccupationBooking:
		return fmt.Sprintf("Requested by %s (%d attendees)", o.Booking.RequestedBy, o.Booking.Attendees)
	default:
		return ""
	}
}

func exportTitle(params models.ExportJobParams, rooms map[string]string) string {
	parts := []string{"Timetable"}
	if params.RoomID != "" {
		if name := rooms[params.RoomID]; name != "" {
			parts = append(parts, name)
		} else {
			parts = append(parts, params.RoomID)
		}
	}
	if params.Batch != "" {
		parts = append(parts, "batch "+params.Batch)
	}
	if params.Semester != "" {
		parts = append(parts, "semester "+params.Semester)
	}
	if params.From != "" || params.To != "" {
		parts = append(parts, strings.TrimSpace(params.From+" to "+params.To))
	}
	return strings.Join(parts, " - ")
}

func atClock(day models.Date, at models.ClockTime) time.Time {
	return day.Time().Add(time.Duration(at) * time.Minute)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
