package outlook

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"calmux/internal/tz"
	"fmt"
	"strings"
	"time"
)

// namedColors are the values Graph accepts for a calendar's color.
var namedColors = map[string]bool{
	"auto":        true,
	"lightBlue":   true,
	"lightGreen":  true,
	"lightOrange": true,
	"lightGray":   true,
	"lightYellow": true,
	"lightTeal":   true,
	"lightPink":   true,
	"lightBrown":  true,
	"lightRed":    true,
}

func (c *CalendarClient) toCalendar(w wireCalendar, pos int) models.Calendar {
	color := w.HexColor
	if color == "" {
		color = c.opts.Palette.Assign(pos)
	}
	return models.Calendar{
		ID:         w.ID,
		ProviderID: models.ProviderOutlook,
		AccountID:  c.account.ID,
		Name:       w.Name,
		Primary:    w.IsDefaultCalendar,
		ReadOnly:   !w.CanEdit,
		Color:      color,
	}
}

// decoded is a wire event mapped to the canonical model plus what the
// caller should log about it.
type decoded struct {
	event      models.CalendarEvent
	unresolved string
}

func toEvent(w wireEvent, cal models.Calendar, selfEmail string) (decoded, error) {
	start, err := readTime(w.Start, w.OriginalStartTimeZone, w.IsAllDay)
	if err != nil {
		return decoded{}, fmt.Errorf("start: %w", err)
	}
	end, err := readTime(w.End, w.OriginalEndTimeZone, w.IsAllDay)
	if err != nil {
		return decoded{}, fmt.Errorf("end: %w", err)
	}

	unresolved := start.unresolved
	if unresolved == "" {
		unresolved = end.unresolved
	}

	attendees := make([]models.Attendee, 0, len(w.Attendees))
	for _, a := range w.Attendees {
		attendees = append(attendees, toAttendee(a, selfEmail))
	}

	status := w.ShowAs
	if w.IsCancelled {
		status = "cancelled"
	}

	ev := models.CalendarEvent{
		ID:         w.ID,
		Title:      w.Subject,
		Start:      start.value,
		End:        end.value,
		AllDay:     start.value.IsPlainDate() && end.value.IsPlainDate(),
		Status:     status,
		Attendees:  attendees,
		URL:        w.WebLink,
		ReadOnly:   cal.ReadOnly || (!w.IsOrganizer && w.Organizer != nil),
		ProviderID: models.ProviderOutlook,
		AccountID:  cal.AccountID,
		CalendarID: cal.ID,
		Metadata: models.OutlookMetadata{
			StartTimeZone:  start.recorded,
			EndTimeZone:    end.recorded,
			UnresolvedZone: unresolved,
			StartWire:      start.floating,
			EndWire:        end.floating,
		},
	}
	if w.Body != nil {
		ev.Description = w.Body.Content
	}
	if w.Location != nil {
		ev.Location = w.Location.DisplayName
	}
	return decoded{event: ev, unresolved: unresolved}, nil
}

// boundTime is one event bound as read from Graph. recorded is the zone
// string to send back on update. floating is the raw wall clock, kept when the
// sending zone could not be resolved and value is that wall clock taken as UTC.
type boundTime struct {
	value      models.Temporal
	recorded   string
	unresolved string
	floating   models.WireTime
}

// readTime reads one Graph date-time. The wall clock is interpreted in the
// zone it was sent with; the value is then bound to the event's original zone
// when Graph reports one. The original zone string is always recorded. A zone
// with no IANA mapping yields an instant and is returned as unresolved.
func readTime(w *wireDateTime, original string, allDay bool) (boundTime, error) {
	if w == nil || w.DateTime == "" {
		return boundTime{}, fmt.Errorf("missing date-time")
	}

	if allDay {
		day := w.DateTime
		if len(day) > len(models.DateLayout) {
			day = day[:len(models.DateLayout)]
		}
		d, err := time.Parse(models.DateLayout, day)
		if err != nil {
			return boundTime{}, fmt.Errorf("%q is not a date: %w", w.DateTime, err)
		}
		return boundTime{value: models.DateOf(d)}, nil
	}

	recorded := w.TimeZone
	if original != "" {
		recorded = original
	}

	wireLoc, ok := tz.Location(w.TimeZone)
	if !ok {
		t, err := time.Parse(models.LocalLayout, w.DateTime)
		if err != nil {
			return boundTime{}, fmt.Errorf("%q is not a date-time: %w", w.DateTime, err)
		}
		return boundTime{
			value:      models.Instant(t),
			recorded:   recorded,
			unresolved: w.TimeZone,
			floating:   models.WireTime{DateTime: t.Format(models.LocalLayout), TimeZone: w.TimeZone},
		}, nil
	}

	t, err := time.ParseInLocation(models.LocalLayout, w.DateTime, wireLoc)
	if err != nil {
		return boundTime{}, fmt.Errorf("%q is not a date-time: %w", w.DateTime, err)
	}

	zone := w.TimeZone
	if original != "" {
		if _, ok := tz.Resolve(original); !ok {
			// The instant is exact; only the display zone is lost.
			return boundTime{value: models.Instant(t), recorded: recorded, unresolved: original}, nil
		}
		zone = original
	}
	iana, _ := tz.Resolve(zone)
	v, err := models.Zoned(t, iana)
	if err != nil {
		return boundTime{}, err
	}
	return boundTime{value: v, recorded: recorded}, nil
}

// writeTime serializes a bound for a write. All-day bounds are date-only with
// no zone. A zoned bound reuses the original zone string when it still names
// the same zone, so Graph sees what it sent. A bound read from an
// unresolvable zone is sent back as the same wall clock and zone string, and
// cannot be moved.
func writeTime(field string, v models.Temporal, original string, floating models.WireTime) (*wireDateTime, error) {
	switch v.Kind() {
	case models.KindPlainDate:
		return &wireDateTime{DateTime: v.String()}, nil
	case models.KindInstant:
		utc := v.Time().UTC().Format(models.LocalLayout)
		if floating.DateTime == "" {
			return &wireDateTime{DateTime: utc, TimeZone: "UTC"}, nil
		}
		if utc != floating.DateTime {
			return nil, calerr.Invalid(field, "time zone %q has no known mapping, so the time cannot be changed", floating.TimeZone)
		}
		return &wireDateTime{DateTime: floating.DateTime, TimeZone: floating.TimeZone}, nil
	}

	w := &wireDateTime{DateTime: v.Time().Format(models.LocalLayout)}
	switch zone := v.Zone(); {
	case original != "" && tz.Same(original, zone):
		w.TimeZone = original
	default:
		if win, ok := tz.WindowsName(zone); ok {
			w.TimeZone = win
		} else {
			w.TimeZone = zone
		}
	}
	return w, nil
}

func toWireEvent(in models.EventInput) (wireEvent, error) {
	meta, _ := models.OutlookMeta(in.Metadata)

	start, err := writeTime("start", in.Start, meta.StartTimeZone, meta.StartWire)
	if err != nil {
		return wireEvent{}, err
	}
	end, err := writeTime("end", in.End, meta.EndTimeZone, meta.EndWire)
	if err != nil {
		return wireEvent{}, err
	}

	w := wireEvent{
		Subject:  in.Title,
		Body:     &itemBody{ContentType: "text", Content: in.Description},
		Start:    start,
		End:      end,
		Location: &location{DisplayName: in.Location},
		IsAllDay: in.AllDay(),
	}
	for _, a := range in.Attendees {
		w.Attendees = append(w.Attendees, wireAttendee{
			Type:         wireType(a.Type),
			EmailAddress: emailAddress{Name: a.Name, Address: a.Email},
		})
	}
	return w, nil
}

func toAttendee(a wireAttendee, selfEmail string) models.Attendee {
	status := models.StatusUnknown
	if a.Status != nil {
		status = attendeeStatus(a.Status.Response)
	}
	return models.Attendee{
		Email:  a.EmailAddress.Address,
		Name:   a.EmailAddress.Name,
		Status: status,
		Type:   attendeeType(a.Type),
		Self:   selfEmail != "" && strings.EqualFold(a.EmailAddress.Address, selfEmail),
	}
}

func attendeeStatus(s string) models.AttendeeStatus {
	switch s {
	case "accepted", "organizer":
		return models.StatusAccepted
	case "tentativelyAccepted":
		return models.StatusTentative
	case "declined":
		return models.StatusDeclined
	default:
		return models.StatusUnknown
	}
}

func attendeeType(s string) models.AttendeeType {
	switch s {
	case "optional":
		return models.TypeOptional
	case "resource":
		return models.TypeResource
	default:
		return models.TypeRequired
	}
}

func wireType(t models.AttendeeType) string {
	switch t {
	case models.TypeOptional, models.TypeResource:
		return string(t)
	default:
		return string(models.TypeRequired)
	}
}

// responseAction maps a response onto its Graph action segment.
func responseAction(s models.AttendeeStatus) string {
	switch s {
	case models.StatusAccepted:
		return "accept"
	case models.StatusTentative:
		return "tentativelyAccept"
	case models.StatusDeclined:
		return "decline"
	default:
		return ""
	}
}
