// Package ical renders canonical events as iCalendar and publishes them to a
// WebDAV or CalDAV collection.
package ical

import (
	"calmux/internal/models"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const productID = "-//calmux//EN"

var nowUTC = func() time.Time { return time.Now().UTC() }

// Encode writes events as a single VCALENDAR.
func Encode(w io.Writer, events []models.CalendarEvent) error {
	cal := newCalendar()
	now := nowUTC()
	for _, ev := range events {
		cal.Children = append(cal.Children, toVEvent(ev, now))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// UID returns the iCalendar UID for ev: the service's own UID when it has
// one, else the event id, else a generated one.
func UID(ev models.CalendarEvent) string {
	if meta, ok := models.GoogleMeta(ev.Metadata); ok && meta.ICalUID != "" {
		return meta.ICalUID
	}
	if ev.ID != "" {
		return ev.ID
	}
	return uuid.NewString()
}

func toVEvent(ev models.CalendarEvent, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, UID(ev))
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	setTemporal(ve.Props, ical.PropDateTimeStart, ev.Start)
	setTemporal(ve.Props, ical.PropDateTimeEnd, ev.End)

	if ev.Description != "" {
		ve.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		ve.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.URL != "" {
		ve.Props.SetText(ical.PropURL, ev.URL)
	}
	if status := eventStatus(ev.Status); status != "" {
		ve.Props.SetText(ical.PropStatus, status)
	}
	for _, a := range ev.Attendees {
		ve.Props.Add(attendeeProp(a))
	}
	return ve
}

// setTemporal writes a date as VALUE=DATE, a zoned value with its TZID and
// an instant in UTC.
func setTemporal(props ical.Props, name string, v models.Temporal) {
	switch v.Kind() {
	case models.KindPlainDate:
		props.SetDate(name, v.Time())
	case models.KindZoned:
		props.SetDateTime(name, v.Time())
	case models.KindInstant:
		props.SetDateTime(name, v.Time().UTC())
	}
}

func eventStatus(s string) string {
	switch strings.ToLower(s) {
	case "confirmed", "busy", "oof", "workingelsewhere":
		return "CONFIRMED"
	case "tentative":
		return "TENTATIVE"
	case "cancelled":
		return "CANCELLED"
	}
	return ""
}

func attendeeProp(a models.Attendee) *ical.Prop {
	p := ical.NewProp(ical.PropAttendee)
	p.Value = "mailto:" + a.Email
	if a.Name != "" {
		p.Params.Set(ical.ParamCommonName, a.Name)
	}

	switch a.Status {
	case models.StatusAccepted:
		p.Params.Set(ical.ParamParticipationStatus, "ACCEPTED")
	case models.StatusDeclined:
		p.Params.Set(ical.ParamParticipationStatus, "DECLINED")
	case models.StatusTentative:
		p.Params.Set(ical.ParamParticipationStatus, "TENTATIVE")
	default:
		p.Params.Set(ical.ParamParticipationStatus, "NEEDS-ACTION")
	}

	switch a.Type {
	case models.TypeOptional:
		p.Params.Set(ical.ParamRole, "OPT-PARTICIPANT")
	case models.TypeResource:
		p.Params.Set(ical.ParamRole, "NON-PARTICIPANT")
		p.Params.Set(ical.ParamCalendarUserType, "RESOURCE")
	default:
		p.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
	}
	return p
}
