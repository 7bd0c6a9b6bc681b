package outlook

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"calmux/internal/provider"
	"calmux/internal/tz"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func wrap(op string, err error, kv ...string) error {
	return calerr.WrapProvider(providerName, op, err, kv...)
}

func calendarPath(id string) string {
	return "/me/calendars/" + url.PathEscape(id)
}

func eventPath(calendarID, eventID string) string {
	return calendarPath(calendarID) + "/events/" + url.PathEscape(eventID)
}

// Capabilities reports that Graph's response actions carry a comment.
func (c *CalendarClient) Capabilities() provider.Capabilities {
	return provider.Capabilities{ResponseComment: true}
}

// Calendars lists the user's calendars, following nextLink pages.
func (c *CalendarClient) Calendars(ctx context.Context) ([]models.Calendar, error) {
	var calendars []models.Calendar
	next := "/me/calendars?$top=" + strconv.Itoa(c.opts.PageSize)
	for page := 0; next != ""; page++ {
		if page == c.opts.MaxPages {
			c.logger.Warn("Calendar listing truncated at page cap", "pages", page, "count", len(calendars))
			break
		}
		var list calendarList
		if err := c.do(ctx, http.MethodGet, next, nil, &list); err != nil {
			return nil, wrap("calendars", err, "account", c.account.ID)
		}
		for _, w := range list.Value {
			calendars = append(calendars, c.toCalendar(w, len(calendars)))
		}
		next = list.NextLink
	}

	c.logger.Debug("Fetched calendar list", "count", len(calendars))
	return calendars, nil
}

func (c *CalendarClient) calendarPayload(in models.CalendarInput) (wireCalendar, error) {
	var w wireCalendar
	if in.Name != nil {
		w.Name = *in.Name
	}
	if in.Color != nil && *in.Color != "" {
		if !namedColors[*in.Color] {
			return wireCalendar{}, calerr.Invalid("color", "outlook calendars take a named color such as lightBlue, got %q", *in.Color)
		}
		w.Color = *in.Color
	}
	if in.Description != nil || in.TimeZone != nil {
		c.logger.Debug("Ignoring calendar fields Graph does not store", "fields", "description,timeZone")
	}
	return w, nil
}

// CreateCalendar creates a calendar in the user's default calendar group.
func (c *CalendarClient) CreateCalendar(ctx context.Context, in models.CalendarInput) (models.Calendar, error) {
	if err := in.Validate(); err != nil {
		return models.Calendar{}, err
	}
	payload, err := c.calendarPayload(in)
	if err != nil {
		return models.Calendar{}, err
	}

	var created wireCalendar
	if err := c.do(ctx, http.MethodPost, "/me/calendars", payload, &created); err != nil {
		return models.Calendar{}, wrap("createCalendar", err)
	}
	return c.toCalendar(created, 0), nil
}

// UpdateCalendar patches a calendar's name or color.
func (c *CalendarClient) UpdateCalendar(ctx context.Context, calendarID string, in models.CalendarInput) (models.Calendar, error) {
	if err := in.ValidatePatch(); err != nil {
		return models.Calendar{}, err
	}
	payload, err := c.calendarPayload(in)
	if err != nil {
		return models.Calendar{}, err
	}

	var updated wireCalendar
	if err := c.do(ctx, http.MethodPatch, calendarPath(calendarID), payload, &updated); err != nil {
		return models.Calendar{}, wrap("updateCalendar", err, "calendar", calendarID)
	}
	return c.toCalendar(updated, 0), nil
}

// DeleteCalendar removes a calendar.
func (c *CalendarClient) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := c.do(ctx, http.MethodDelete, calendarPath(calendarID), nil, nil); err != nil {
		return wrap("deleteCalendar", err, "calendar", calendarID)
	}
	return nil
}

// Events reads the calendar view for the window, which expands occurrences
// and returns them ordered by start.
func (c *CalendarClient) Events(ctx context.Context, cal models.Calendar, timeMin, timeMax models.Temporal) ([]models.CalendarEvent, error) {
	loc := time.UTC
	if l, ok := tz.Location(cal.TimeZone); ok {
		loc = l
	}

	q := url.Values{}
	q.Set("startDateTime", timeMin.Resolve(loc).UTC().Format(time.RFC3339))
	q.Set("endDateTime", timeMax.Resolve(loc).UTC().Format(time.RFC3339))
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", strconv.Itoa(c.opts.PageSize))
	c.logger.Debug("Fetching events", "calendarID", cal.ID, "startDateTime", q.Get("startDateTime"), "endDateTime", q.Get("endDateTime"))

	var events []models.CalendarEvent
	next := calendarPath(cal.ID) + "/calendarView?" + q.Encode()
	for page := 0; next != ""; page++ {
		if page == c.opts.MaxPages {
			c.logger.Warn("Event listing truncated at page cap", "calendarID", cal.ID, "pages", page, "count", len(events))
			break
		}
		var list eventList
		if err := c.do(ctx, http.MethodGet, next, nil, &list); err != nil {
			return nil, wrap("events", err, "calendar", cal.ID)
		}
		for _, w := range list.Value {
			if w.IsCancelled {
				continue
			}
			ev, ok := c.decode(w, cal)
			if ok {
				events = append(events, ev)
			}
		}
		next = list.NextLink
	}

	c.logger.Info("Successfully fetched events from Outlook", "count", len(events), "calendarID", cal.ID)
	return events, nil
}

func (c *CalendarClient) decode(w wireEvent, cal models.Calendar) (models.CalendarEvent, bool) {
	d, err := toEvent(w, cal, c.account.Email)
	if err != nil {
		c.logger.Warn("Skipping unreadable event", "calendarID", cal.ID, "eventID", w.ID, "error", err)
		return models.CalendarEvent{}, false
	}
	if d.unresolved != "" {
		c.logger.Warn("Unknown time zone, keeping event time as a UTC instant", "calendarID", cal.ID, "eventID", w.ID, "timeZone", d.unresolved)
	}
	return d.event, true
}

// CreateEvent creates an event. The transaction id makes a retried create idempotent.
func (c *CalendarClient) CreateEvent(ctx context.Context, cal models.Calendar, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}

	payload, err := toWireEvent(in)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	payload.TransactionID = uuid.NewString()

	var created wireEvent
	if err := c.do(ctx, http.MethodPost, calendarPath(cal.ID)+"/events", payload, &created); err != nil {
		return models.CalendarEvent{}, wrap("createEvent", err, "calendar", cal.ID)
	}
	d, err := toEvent(created, cal, c.account.Email)
	if err != nil {
		return models.CalendarEvent{}, wrap("createEvent", err, "calendar", cal.ID)
	}
	return d.event, nil
}

// UpdateEvent patches an event. Zone strings recorded in the input's metadata
// are sent back unchanged when they still name the same zone.
func (c *CalendarClient) UpdateEvent(ctx context.Context, cal models.Calendar, eventID string, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}

	payload, err := toWireEvent(in)
	if err != nil {
		return models.CalendarEvent{}, err
	}

	var updated wireEvent
	if err := c.do(ctx, http.MethodPatch, eventPath(cal.ID, eventID), payload, &updated); err != nil {
		return models.CalendarEvent{}, wrap("updateEvent", err, "calendar", cal.ID, "event", eventID)
	}
	d, err := toEvent(updated, cal, c.account.Email)
	if err != nil {
		return models.CalendarEvent{}, wrap("updateEvent", err, "calendar", cal.ID, "event", eventID)
	}
	return d.event, nil
}

// DeleteEvent removes an event.
func (c *CalendarClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.do(ctx, http.MethodDelete, eventPath(calendarID, eventID), nil, nil); err != nil {
		return wrap("deleteEvent", err, "calendar", calendarID, "event", eventID)
	}
	return nil
}

// RespondToEvent posts to the accept, tentativelyAccept or decline action.
// Only an invited attendee can respond; the organizer has no response to give.
func (c *CalendarClient) RespondToEvent(ctx context.Context, calendarID, eventID string, resp models.Response) error {
	if err := c.Capabilities().CheckResponse(resp); err != nil {
		return err
	}

	var current struct {
		IsOrganizer bool           `json:"isOrganizer"`
		Attendees   []wireAttendee `json:"attendees"`
	}
	if err := c.do(ctx, http.MethodGet, eventPath(calendarID, eventID)+"?$select=isOrganizer,attendees", nil, &current); err != nil {
		return wrap("respondToEvent", err, "calendar", calendarID, "event", eventID)
	}
	if current.IsOrganizer {
		return calerr.Invalid("event", "event %s is organized by this account", eventID)
	}
	if !hasAttendee(current.Attendees, c.account.Email) {
		return calerr.Invalid("event", "%s is not an attendee of event %s", c.account.Email, eventID)
	}

	action := responseAction(resp.Status)
	body := responseBody{Comment: resp.Comment, SendResponse: true}
	if err := c.do(ctx, http.MethodPost, eventPath(calendarID, eventID)+"/"+action, body, nil); err != nil {
		return wrap("respondToEvent", err, "calendar", calendarID, "event", eventID, "action", action)
	}
	c.logger.Info("Sent event response", "calendarID", calendarID, "eventID", eventID, "action", action)
	return nil
}

func hasAttendee(attendees []wireAttendee, email string) bool {
	for _, a := range attendees {
		if email != "" && strings.EqualFold(a.EmailAddress.Address, email) {
			return true
		}
	}
	return false
}
