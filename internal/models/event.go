package models

import (
	"calmux/internal/calerr"
	"strings"
	"time"
)

// AttendeeStatus is the canonical attendance response.
type AttendeeStatus string

const (
	StatusAccepted  AttendeeStatus = "accepted"
	StatusDeclined  AttendeeStatus = "declined"
	StatusTentative AttendeeStatus = "tentative"
	StatusUnknown   AttendeeStatus = "unknown"
)

// ParseAttendeeStatus maps free text onto a status; anything unrecognized is unknown.
func ParseAttendeeStatus(s string) AttendeeStatus {
	switch st := AttendeeStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusAccepted, StatusDeclined, StatusTentative:
		return st
	}
	return StatusUnknown
}

// AttendeeType is the canonical attendee role.
type AttendeeType string

const (
	TypeRequired AttendeeType = "required"
	TypeOptional AttendeeType = "optional"
	TypeResource AttendeeType = "resource"
)

// Attendee is one participant of an event. Comment and AdditionalGuests are
// only carried by Google.
type Attendee struct {
	ID               string
	Email            string
	Name             string
	Status           AttendeeStatus
	Type             AttendeeType
	Comment          string
	AdditionalGuests int64
	Self             bool
}

// CalendarEvent is one occurrence on a calendar.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Start       Temporal
	End         Temporal
	AllDay      bool
	Location    string
	Status      string
	Attendees   []Attendee
	URL         string
	Color       string
	ReadOnly    bool
	ProviderID  ProviderID
	AccountID   string
	CalendarID  string
	Metadata    Metadata
}

// EventInput is the canonical payload for creating or replacing an event.
type EventInput struct {
	Title       string
	Description string
	Start       Temporal
	End         Temporal
	Location    string
	Attendees   []Attendee
	Color       string
	Metadata    Metadata
}

// AllDay reports whether both bounds are calendar dates.
func (in EventInput) AllDay() bool {
	return in.Start.IsPlainDate() && in.End.IsPlainDate()
}

// Validate enforces the bound invariants: both set, both dates or both
// timed, and end not before start.
func (in EventInput) Validate() error {
	if in.Start.IsZero() {
		return calerr.Invalid("start", "start is required")
	}
	if in.End.IsZero() {
		return calerr.Invalid("end", "end is required")
	}
	if in.Start.IsPlainDate() != in.End.IsPlainDate() {
		return calerr.Invalid("end", "start and end must both be dates or both be date-times")
	}
	if in.End.Compare(in.Start, time.UTC) < 0 {
		return calerr.Invalid("end", "end %s is before start %s", in.End, in.Start)
	}
	for i, a := range in.Attendees {
		if a.Email == "" {
			return calerr.Invalid("attendees", "attendee %d has no email", i)
		}
	}
	return nil
}

// Response is the caller's own answer to an invitation.
type Response struct {
	Status  AttendeeStatus
	Comment string
}

// Validate rejects statuses that cannot be sent as an answer.
func (r Response) Validate() error {
	switch r.Status {
	case StatusAccepted, StatusDeclined, StatusTentative:
		return nil
	}
	return calerr.Invalid("status", "cannot respond with %q", r.Status)
}

// EventFromInput copies input fields onto a new event for calendar cal.
func EventFromInput(cal Calendar, in EventInput) CalendarEvent {
	return CalendarEvent{
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		AllDay:      in.AllDay(),
		Location:    in.Location,
		Attendees:   in.Attendees,
		Color:       in.Color,
		ProviderID:  cal.ProviderID,
		AccountID:   cal.AccountID,
		CalendarID:  cal.ID,
		Metadata:    in.Metadata,
	}
}

// Input returns the writable fields of an existing event.
func (e CalendarEvent) Input() EventInput {
	return EventInput{
		Title:       e.Title,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
		Location:    e.Location,
		Attendees:   e.Attendees,
		Color:       e.Color,
		Metadata:    e.Metadata,
	}
}
