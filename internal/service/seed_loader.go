package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/campus-scheduler/internal/models"
	appErrors "github.com/noah-isme/campus-scheduler/pkg/errors"
)

// SeedFile is the YAML document describing an initial room catalog and its
// recurring classes and exams. Occupations reference rooms by name.
type SeedFile struct {
	Rooms   []SeedRoom  `yaml:"rooms"`
	Classes []SeedClass `yaml:"classes"`
	Exams   []SeedExam  `yaml:"exams"`
}

type SeedRoom struct {
	Name         string             `yaml:"name"`
	Capacity     int                `yaml:"capacity"`
	Facilities   []string           `yaml:"facilities"`
	Availability []SeedAvailability `yaml:"availability"`
}

type SeedAvailability struct {
	Weekday string       `yaml:"weekday"`
	Windows []SeedWindow `yaml:"windows"`
}

type SeedWindow struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type SeedClass struct {
	Room        string `yaml:"room"`
	Weekday     string `yaml:"weekday"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	CourseCode  string `yaml:"course_code"`
	CourseTitle string `yaml:"course_title"`
	Batch       string `yaml:"batch"`
	Semester    string `yaml:"semester"`
	Instructor  string `yaml:"instructor"`
}

type SeedExam struct {
	Room        string `yaml:"room"`
	Date        string `yaml:"date"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	CourseCode  string `yaml:"course_code"`
	CourseTitle string `yaml:"course_title"`
	Batch       string `yaml:"batch"`
	Semester    string `yaml:"semester"`
	ExamType    string `yaml:"exam_type"`
	Invigilator string `yaml:"invigilator"`
}

// SeedResult counts what a seed run created and skipped.
type SeedResult struct {
	RoomsCreated       int `json:"rooms_created"`
	RoomsSkipped       int `json:"rooms_skipped"`
	OccupationsCreated int `json:"occupations_created"`
	OccupationsSkipped int `json:"occupations_skipped"`
}

// SeedLoader imports a SeedFile through the regular services so every seeded
// record passes the same validation and conflict checks as API writes.
// Rooms whose name already exists and occupations that conflict are skipped,
// which makes reloading the same file on restart harmless.
type SeedLoader struct {
	rooms       *RoomService
	occupations *OccupationService
	logger      *zap.Logger
}

// NewSeedLoader instantiates SeedLoader.
func NewSeedLoader(rooms *RoomService, occupations *OccupationService, logger *zap.Logger) *SeedLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedLoader{rooms: rooms, occupations: occupations, logger: logger}
}

// LoadFile reads and applies the seed file at path.
func (l *SeedLoader) LoadFile(ctx context.Context, path string) (*SeedResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	return l.Load(ctx, file)
}

// Load decodes a seed document and applies it.
func (l *SeedLoader) Load(ctx context.Context, r io.Reader) (*SeedResult, error) {
	var seed SeedFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	result := &SeedResult{}
	roomIDs := make(map[string]string, len(seed.Rooms))
	for _, room := range seed.Rooms {
		id, created, err := l.ensureRoom(ctx, room)
		if err != nil {
			return result, fmt.Errorf("seed room %q: %w", room.Name, err)
		}
		roomIDs[models.NameKey(room.Name)] = id
		if created {
			result.RoomsCreated++
		} else {
			result.RoomsSkipped++
		}
	}

	for _, class := range seed.Classes {
		roomID, err := l.resolveRoom(ctx, roomIDs, class.Room)
		if err != nil {
			return result, fmt.Errorf("seed class %s: %w", class.CourseCode, err)
		}
		_, err = l.occupations.CreateClass(ctx, models.ClassRequest{
			RoomID: roomID, Weekday: class.Weekday, Start: class.Start, End: class.End,
			CourseCode: class.CourseCode, CourseTitle: class.CourseTitle,
			Batch: class.Batch, Semester: class.Semester, Instructor: class.Instructor,
		})
		if err := l.tally(result, err, "class", class.CourseCode); err != nil {
			return result, err
		}
	}

	for _, exam := range seed.Exams {
		roomID, err := l.resolveRoom(ctx, roomIDs, exam.Room)
		if err != nil {
			return result, fmt.Errorf("seed exam %s: %w", exam.CourseCode, err)
		}
		_, err = l.occupations.CreateExam(ctx, models.ExamRequest{
			RoomID: roomID, Date: exam.Date, Start: exam.Start, End: exam.End,
			CourseCode: exam.CourseCode, CourseTitle: exam.CourseTitle,
			Batch: exam.Batch, Semester: exam.Semester, ExamType: exam.ExamType, Invigilator: exam.Invigilator,
		})
		if err := l.tally(result, err, "exam", exam.CourseCode); err != nil {
			return result, err
		}
	}

	l.logger.Info("seed applied",
		zap.Int("rooms_created", result.RoomsCreated),
		zap.Int("rooms_skipped", result.RoomsSkipped),
		zap.Int("occupations_created", result.OccupationsCreated),
		zap.Int("occupations_skipped", result.OccupationsSkipped),
	)
	return result, nil
}

func (l *SeedLoader) ensureRoom(ctx context.Context, room SeedRoom) (string, bool, error) {
	if existing, err := l.rooms.FindByName(ctx, room.Name); err == nil {
		return existing.ID, false, nil
	} else if !appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
		return "", false, err
	}

	availability := make([]models.AvailabilityRequestDay, 0, len(room.Availability))
	for _, day := range room.Availability {
		windows := make([]models.WindowRequest, 0, len(day.Windows))
		for _, w := range day.Windows {
			windows = append(windows, models.WindowRequest{Start: w.Start, End: w.End})
		}
		availability = append(availability, models.AvailabilityRequestDay{Weekday: day.Weekday, Windows: windows})
	}
	created, err := l.rooms.Create(ctx, models.CreateRoomRequest{
		Name:         room.Name,
		Capacity:     room.Capacity,
		Facilities:   room.Facilities,
		Availability: availability,
	})
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func (l *SeedLoader) resolveRoom(ctx context.Context, known map[string]string, name string) (string, error) {
	if id, ok := known[models.NameKey(name)]; ok {
		return id, nil
	}
	room, err := l.rooms.FindByName(ctx, name)
	if err != nil {
		return "", err
	}
	known[models.NameKey(name)] = room.ID
	return room.ID, nil
}

// tally counts an occupation outcome. Conflicts are skipped; anything else aborts the run.
func (l *SeedLoader) tally(result *SeedResult, err error, kind, course string) error {
	switch {
	case err == nil:
		result.OccupationsCreated++
		return nil
	case appErrors.HasCode(err, appErrors.ErrConflict.Code):
		result.OccupationsSkipped++
		l.logger.Warn("seed occupation skipped", zap.String("kind", kind), zap.String("course_code", course), zap.Error(err))
		return nil
	default:
		return fmt.Errorf("seed %s %s: %w", kind, course, err)
	}
}
