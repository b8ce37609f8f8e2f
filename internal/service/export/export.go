package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/scheduler"
)

const (
	// productID identifies the exporter in the calendar.
	productID = "-//oshokin//alarm-clock//EN"
	// calendarVersion is the iCalendar version.
	calendarVersion = "2.0"
	// eventDuration is the length of an exported event.
	eventDuration = time.Minute
	// triggerAtStart fires the VALARM at the event start.
	triggerAtStart = "PT0S"
	// actionDisplay shows the description when the VALARM fires.
	actionDisplay = "DISPLAY"
)

// ErrNothingToExport is returned when no record is enabled.
var ErrNothingToExport = errors.New("no enabled alarms to export")

// WriteICS encodes the next fire instant of every enabled record.
// Disabled records are skipped; with none left ErrNothingToExport is
// returned and nothing is written.
func WriteICS(w io.Writer, records []*alarm.Record, now time.Time) (int, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, calendarVersion)
	cal.Props.SetText(ical.PropProductID, productID)

	exported := 0

	for _, record := range records {
		if record == nil || !record.Enabled {
			continue
		}

		cal.Children = append(cal.Children, newEvent(record, now).Component)
		exported++
	}

	if exported == 0 {
		return 0, ErrNothingToExport
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return 0, fmt.Errorf("encode calendar: %w", err)
	}

	return exported, nil
}

// UID returns the calendar uid of the alarm with the given id.
func UID(id int64) string {
	return "alarm-" + strconv.FormatInt(id, 10) + "@alarm-clock"
}

func newEvent(record *alarm.Record, now time.Time) *ical.Event {
	fireAt := scheduler.NextFireAt(now, record.Hour, record.Minute).UTC()
	description := "Alarm at " + record.TimeString()

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, UID(record.ID))
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, fireAt)
	event.Props.SetDateTime(ical.PropDateTimeEnd, fireAt.Add(eventDuration))
	event.Props.SetText(ical.PropSummary, record.DisplayLabel())
	event.Props.SetText(ical.PropDescription, description)

	valarm := ical.NewComponent(ical.CompAlarm)
	valarm.Props.SetText(ical.PropAction, actionDisplay)
	valarm.Props.SetText(ical.PropDescription, description)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = triggerAtStart
	valarm.Props.Set(trigger)

	event.Children = append(event.Children, valarm)

	return event
}
