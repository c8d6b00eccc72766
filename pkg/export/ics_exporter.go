package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

const icsFloatingLayout = "20060102T150405"

// CalendarEvent is one VEVENT of an iCalendar export. Start and End are wall
// clock times written without a zone. A non-empty RRule makes the event
// recurring from Start.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	RRule       string
	Categories  []string
}

// ICSExporter renders calendar events into an RFC 5545 document.
type ICSExporter struct {
	productID string
	now       func() time.Time
}

// NewICSExporter constructs an iCalendar exporter.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//campus-scheduler//timetable//EN"
	}
	return &ICSExporter{productID: productID, now: time.Now}
}

// Render serialises the events into a VCALENDAR named name.
func (e *ICSExporter) Render(name string, events []CalendarEvent) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := e.now().UTC()
	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics event %q requires a uid", ev.Summary)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("ics event %s ends before it starts", ev.UID)
		}
		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(stamp)
		event.SetProperty(ics.ComponentPropertyDtStart, ev.Start.Format(icsFloatingLayout))
		event.SetProperty(ics.ComponentPropertyDtEnd, ev.End.Format(icsFloatingLayout))
		event.SetSummary(ev.Summary)
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			event.SetLocation(ev.Location)
		}
		for _, category := range ev.Categories {
			event.AddProperty(ics.ComponentPropertyCategories, category)
		}
		if ev.RRule != "" {
			event.AddProperty(ics.ComponentPropertyRrule, ev.RRule)
		}
	}

	return []byte(cal.Serialize()), nil
}
