// Package scheduling holds the pure decision functions of the room ledger:
// conflict detection and the read projections built on top of it.
package scheduling

import (
	"fmt"
	"sort"

	"github.com/noah-isme/campus-scheduler/internal/models"
)

// CorruptionError reports two committed occupations that already overlap.
type CorruptionError struct {
	RoomID string
	First  models.Occupation
	Second models.Occupation
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corrupted: occupations %s (%s) and %s (%s) overlap in room %s",
		e.First.ID, e.First.TimeWindow, e.Second.ID, e.Second.TimeWindow, e.RoomID)
}

// Overlaps reports whether two windows share an instant. Touching windows never overlap.
func Overlaps(a, b models.TimeWindow) bool {
	return a.Start < b.End && b.Start < a.End
}

// Scope returns the ledger keys a candidate must be compared against within its room.
// Classes only meet classes of the same weekday; dated occupations meet every
// dated occupation of the date plus the classes of the date's weekday.
func Scope(candidate models.Occupation) []models.ScheduleKey {
	switch candidate.Kind {
	case models.OccupationClass:
		return []models.ScheduleKey{models.WeekdayKey(candidate.Class.Weekday)}
	case models.OccupationExam, models.OccupationBooking:
		date, _ := candidate.Date()
		return []models.ScheduleKey{models.DateKey(date), models.WeekdayKey(date.Weekday())}
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", candidate.Kind))
	}
}

// FindConflict returns the first committed occupation the candidate overlaps,
// or nil. committed must hold the occupations of the candidate's room for
// every key in Scope(candidate); the candidate itself is skipped so updates
// do not collide with the record they replace. A *CorruptionError is returned
// when committed entries sharing a ledger key already overlap each other.
// Entries under different keys may overlap: a class is only checked against
// classes, so it can land on top of an exam or booking of a matching date.
func FindConflict(candidate models.Occupation, committed []models.Occupation) (*models.Occupation, error) {
	relevant := make([]models.Occupation, 0, len(committed))
	for _, existing := range committed {
		if existing.ID == candidate.ID || existing.RoomID != candidate.RoomID {
			continue
		}
		if !inScope(candidate, existing) {
			continue
		}
		relevant = append(relevant, existing)
	}
	SortByStart(relevant)

	if err := verifyDisjoint(relevant); err != nil {
		return nil, err
	}
	for i := range relevant {
		if Overlaps(candidate.TimeWindow, relevant[i].TimeWindow) {
			hit := relevant[i]
			return &hit, nil
		}
	}
	return nil, nil
}

func inScope(candidate, existing models.Occupation) bool {
	switch candidate.Kind {
	case models.OccupationClass:
		return existing.Kind == models.OccupationClass && existing.Class.Weekday == candidate.Class.Weekday
	case models.OccupationExam, models.OccupationBooking:
		date, _ := candidate.Date()
		if other, dated := existing.Date(); dated {
			return other == date
		}
		return existing.Class.Weekday == date.Weekday()
	default:
		panic(fmt.Sprintf("unknown occupation kind %q", candidate.Kind))
	}
}

// verifyDisjoint checks each ledger key of sorted (ordered by start) on its own.
func verifyDisjoint(sorted []models.Occupation) error {
	byKey := make(map[string][]models.Occupation)
	keys := make([]string, 0, 2)
	for _, o := range sorted {
		key := o.Key().String()
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], o)
	}
	for _, key := range keys {
		if err := verifyKeyDisjoint(byKey[key]); err != nil {
			return err
		}
	}
	return nil
}

func verifyKeyDisjoint(sorted []models.Occupation) error {
	if len(sorted) < 2 {
		return nil
	}
	furthest := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[furthest].End {
			return &CorruptionError{RoomID: sorted[i].RoomID, First: sorted[furthest], Second: sorted[i]}
		}
		if sorted[i].End > sorted[furthest].End {
			furthest = i
		}
	}
	return nil
}

// FirstOverlap returns the indexes of the first pair of overlapping windows.
func FirstOverlap(windows []models.TimeWindow) (int, int, bool) {
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if Overlaps(windows[i], windows[j]) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// SortByStart orders occupations by start, then room, then id.
func SortByStart(occupations []models.Occupation) {
	sort.SliceStable(occupations, func(i, j int) bool {
		a, b := occupations[i], occupations[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.ID < b.ID
	})
}
