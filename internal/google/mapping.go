package google

import (
	"calmux/internal/models"
	"fmt"
	"strings"

	"google.golang.org/api/calendar/v3"
)

// eventColors is Google's fixed event color table, keyed by colorId.
var eventColors = map[string]string{
	"1":  "#7986cb",
	"2":  "#33b679",
	"3":  "#8e24aa",
	"4":  "#e67c73",
	"5":  "#f6bf26",
	"6":  "#f4511e",
	"7":  "#039be5",
	"8":  "#616161",
	"9":  "#3f51b5",
	"10": "#0b8043",
	"11": "#d50000",
}

func colorID(hex string) string {
	for id, c := range eventColors {
		if strings.EqualFold(c, hex) {
			return id
		}
	}
	return ""
}

// toCalendar converts a calendar list entry. pos is the entry's position in
// the listing and picks the palette color when the entry has none.
func (c *CalendarClient) toCalendar(item *calendar.CalendarListEntry, pos int) models.Calendar {
	name := item.Summary
	if item.SummaryOverride != "" {
		name = item.SummaryOverride
	}
	color := item.BackgroundColor
	if color == "" {
		color = c.opts.Palette.Assign(pos)
	}
	return models.Calendar{
		ID:          item.Id,
		ProviderID:  models.ProviderGoogle,
		AccountID:   c.account.ID,
		Name:        name,
		Description: item.Description,
		TimeZone:    item.TimeZone,
		Primary:     item.Primary,
		ReadOnly:    readOnlyRole(item.AccessRole),
		Color:       color,
	}
}

func readOnlyRole(role string) bool {
	switch role {
	case "reader", "freeBusyReader":
		return true
	}
	return false
}

func toGoogleCalendar(in models.CalendarInput) *calendar.Calendar {
	cal := &calendar.Calendar{}
	if in.Name != nil {
		cal.Summary = *in.Name
	}
	if in.Description != nil {
		cal.Description = *in.Description
		cal.ForceSendFields = append(cal.ForceSendFields, "Description")
	}
	if in.TimeZone != nil {
		cal.TimeZone = *in.TimeZone
	}
	return cal
}

// toEvent converts a Google event into the canonical model. listZone is the
// zone reported by the events listing, kept in metadata only.
func toEvent(item *calendar.Event, cal models.Calendar, listZone string) (models.CalendarEvent, error) {
	start, err := fromGoogleTime(item.Start)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("start: %w", err)
	}
	end := start
	if item.End != nil {
		end, err = fromGoogleTime(item.End)
		if err != nil {
			return models.CalendarEvent{}, fmt.Errorf("end: %w", err)
		}
	}

	attendees := make([]models.Attendee, 0, len(item.Attendees))
	for _, a := range item.Attendees {
		attendees = append(attendees, toAttendee(a))
	}

	readOnly := cal.ReadOnly
	if item.Organizer != nil && !item.Organizer.Self && !item.GuestsCanModify {
		readOnly = true
	}

	return models.CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Start:       start,
		End:         end,
		AllDay:      start.IsPlainDate() && end.IsPlainDate(),
		Location:    item.Location,
		Status:      item.Status,
		Attendees:   attendees,
		URL:         item.HtmlLink,
		Color:       eventColors[item.ColorId],
		ReadOnly:    readOnly,
		ProviderID:  models.ProviderGoogle,
		AccountID:   cal.AccountID,
		CalendarID:  cal.ID,
		Metadata: models.GoogleMetadata{
			ICalUID:       item.ICalUID,
			ETag:          item.Etag,
			EventTimeZone: listZone,
		},
	}, nil
}

// fromGoogleTime reads a date for all-day values, a zoned date-time when the
// value names its zone, and an instant otherwise.
func fromGoogleTime(dt *calendar.EventDateTime) (models.Temporal, error) {
	if dt == nil {
		return models.Temporal{}, fmt.Errorf("missing date")
	}
	if dt.Date != "" {
		return models.FromWire(models.WireTime{Date: dt.Date})
	}
	return models.FromWire(models.WireTime{DateTime: dt.DateTime, TimeZone: dt.TimeZone})
}

func toGoogleTime(v models.Temporal) *calendar.EventDateTime {
	w := v.ToWire()
	return &calendar.EventDateTime{Date: w.Date, DateTime: w.DateTime, TimeZone: w.TimeZone}
}

func toGoogleEvent(in models.EventInput) *calendar.Event {
	ev := &calendar.Event{
		Summary:     in.Title,
		Description: in.Description,
		Location:    in.Location,
		Start:       toGoogleTime(in.Start),
		End:         toGoogleTime(in.End),
		ColorId:     colorID(in.Color),
	}
	if in.Attendees != nil {
		ev.Attendees = make([]*calendar.EventAttendee, 0, len(in.Attendees))
		for _, a := range in.Attendees {
			ev.Attendees = append(ev.Attendees, toGoogleAttendee(a))
		}
	}
	return ev
}

func toAttendee(a *calendar.EventAttendee) models.Attendee {
	return models.Attendee{
		ID:               a.Id,
		Email:            a.Email,
		Name:             a.DisplayName,
		Status:           attendeeStatus(a.ResponseStatus),
		Type:             attendeeType(a),
		Comment:          a.Comment,
		AdditionalGuests: a.AdditionalGuests,
		Self:             a.Self,
	}
}

func toGoogleAttendee(a models.Attendee) *calendar.EventAttendee {
	return &calendar.EventAttendee{
		Id:               a.ID,
		Email:            a.Email,
		DisplayName:      a.Name,
		ResponseStatus:   wireStatus(a.Status),
		Optional:         a.Type == models.TypeOptional,
		Resource:         a.Type == models.TypeResource,
		Comment:          a.Comment,
		AdditionalGuests: a.AdditionalGuests,
	}
}

func attendeeStatus(s string) models.AttendeeStatus {
	switch s {
	case "accepted":
		return models.StatusAccepted
	case "declined":
		return models.StatusDeclined
	case "tentative":
		return models.StatusTentative
	default:
		return models.StatusUnknown
	}
}

func wireStatus(s models.AttendeeStatus) string {
	switch s {
	case models.StatusAccepted, models.StatusDeclined, models.StatusTentative:
		return string(s)
	default:
		return "needsAction"
	}
}

func attendeeType(a *calendar.EventAttendee) models.AttendeeType {
	switch {
	case a.Resource:
		return models.TypeResource
	case a.Optional:
		return models.TypeOptional
	default:
		return models.TypeRequired
	}
}
