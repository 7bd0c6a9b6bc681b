package google

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"calmux/internal/palette"
	"calmux/internal/provider"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const providerName = string(models.ProviderGoogle)

// Options tunes a CalendarClient. Zero values fall back to production defaults.
type Options struct {
	// Endpoint overrides the API base URL.
	Endpoint string
	// HTTPClient is the base client; the bearer token is layered on top of its transport.
	HTTPClient *http.Client
	Palette    palette.Palette
	PageSize   int64
	MaxPages   int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 250
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 10
	}
	if len(o.Palette) == 0 {
		o.Palette = palette.Default
	}
	return o
}

// CalendarClient is the Google Calendar adapter for one linked account.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
	account models.Account
	opts    Options
}

var _ provider.Provider = (*CalendarClient)(nil)

// NewClient creates a Google Calendar client authorized with the account's live access token.
func NewClient(ctx context.Context, logger *slog.Logger, acct models.Account, opts Options) (*CalendarClient, error) {
	opts = opts.withDefaults()

	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: acct.AccessToken, TokenType: "Bearer"}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	service, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{
		service: service,
		logger:  logger.With("provider", providerName, "account", acct.ID),
		account: acct,
		opts:    opts,
	}, nil
}

// Constructor adapts NewClient to the provider registry.
func Constructor(logger *slog.Logger, opts Options) provider.Constructor {
	return func(ctx context.Context, acct models.Account) (provider.Provider, error) {
		return NewClient(ctx, logger, acct, opts)
	}
}

// Capabilities reports that Google carries a comment on the attendee entry.
func (c *CalendarClient) Capabilities() provider.Capabilities {
	return provider.Capabilities{ResponseComment: true}
}

// Calendars lists every calendar on the account's calendar list.
func (c *CalendarClient) Calendars(ctx context.Context) ([]models.Calendar, error) {
	var calendars []models.Calendar
	err := c.service.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if item.Deleted {
				continue
			}
			calendars = append(calendars, c.toCalendar(item, len(calendars)))
		}
		return nil
	})
	if err != nil {
		return nil, calerr.WrapProvider(providerName, "calendars", err, "account", c.account.ID)
	}

	c.logger.Debug("Fetched calendar list", "count", len(calendars))
	return calendars, nil
}

// CreateCalendar creates a secondary calendar owned by the account.
func (c *CalendarClient) CreateCalendar(ctx context.Context, in models.CalendarInput) (models.Calendar, error) {
	if err := in.Validate(); err != nil {
		return models.Calendar{}, err
	}

	created, err := c.service.Calendars.Insert(toGoogleCalendar(in)).Context(ctx).Do()
	if err != nil {
		return models.Calendar{}, calerr.WrapProvider(providerName, "createCalendar", err)
	}

	if in.Color != nil && *in.Color != "" {
		if err := c.patchColor(ctx, created.Id, *in.Color); err != nil {
			return models.Calendar{}, err
		}
	}
	return c.getCalendar(ctx, created.Id)
}

// UpdateCalendar patches the calendar's metadata and list color.
func (c *CalendarClient) UpdateCalendar(ctx context.Context, calendarID string, in models.CalendarInput) (models.Calendar, error) {
	if err := in.ValidatePatch(); err != nil {
		return models.Calendar{}, err
	}

	if in.Name != nil || in.Description != nil || in.TimeZone != nil {
		_, err := c.service.Calendars.Patch(calendarID, toGoogleCalendar(in)).Context(ctx).Do()
		if err != nil {
			return models.Calendar{}, calerr.WrapProvider(providerName, "updateCalendar", err, "calendar", calendarID)
		}
	}
	if in.Color != nil {
		if err := c.patchColor(ctx, calendarID, *in.Color); err != nil {
			return models.Calendar{}, err
		}
	}
	return c.getCalendar(ctx, calendarID)
}

// DeleteCalendar removes a secondary calendar.
func (c *CalendarClient) DeleteCalendar(ctx context.Context, calendarID string) error {
	if err := c.service.Calendars.Delete(calendarID).Context(ctx).Do(); err != nil {
		return calerr.WrapProvider(providerName, "deleteCalendar", err, "calendar", calendarID)
	}
	return nil
}

func (c *CalendarClient) getCalendar(ctx context.Context, calendarID string) (models.Calendar, error) {
	entry, err := c.service.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return models.Calendar{}, calerr.WrapProvider(providerName, "getCalendar", err, "calendar", calendarID)
	}
	return c.toCalendar(entry, 0), nil
}

func (c *CalendarClient) patchColor(ctx context.Context, calendarID, color string) error {
	entry := &calendar.CalendarListEntry{BackgroundColor: color, ForegroundColor: "#000000"}
	_, err := c.service.CalendarList.Patch(calendarID, entry).ColorRgbFormat(true).Context(ctx).Do()
	if err != nil {
		return calerr.WrapProvider(providerName, "updateCalendarColor", err, "calendar", calendarID)
	}
	return nil
}

// Events fetches single event instances intersecting the window, following
// page tokens up to the configured page cap.
func (c *CalendarClient) Events(ctx context.Context, cal models.Calendar, timeMin, timeMax models.Temporal) ([]models.CalendarEvent, error) {
	loc := calendarLocation(cal)
	tmin := timeMin.Resolve(loc).UTC().Format(time.RFC3339)
	tmax := timeMax.Resolve(loc).UTC().Format(time.RFC3339)
	c.logger.Debug("Fetching events", "calendarID", cal.ID, "timeMin", tmin, "timeMax", tmax)

	var events []models.CalendarEvent
	pageToken := ""
	for page := 0; ; page++ {
		if page == c.opts.MaxPages {
			c.logger.Warn("Event listing truncated at page cap", "calendarID", cal.ID, "pages", page, "count", len(events))
			break
		}

		call := c.service.Events.List(cal.ID).
			ShowDeleted(false).
			SingleEvents(true).
			TimeMin(tmin).
			TimeMax(tmax).
			OrderBy("startTime").
			MaxResults(c.opts.PageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, calerr.WrapProvider(providerName, "events", err, "calendar", cal.ID)
		}

		for _, item := range resp.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := toEvent(item, cal, resp.TimeZone)
			if err != nil {
				c.logger.Warn("Skipping unreadable event", "calendarID", cal.ID, "eventID", item.Id, "error", err)
				continue
			}
			events = append(events, ev)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", cal.ID)
	return events, nil
}

// CreateEvent inserts a new event.
func (c *CalendarClient) CreateEvent(ctx context.Context, cal models.Calendar, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}

	created, err := c.service.Events.Insert(cal.ID, toGoogleEvent(in)).Context(ctx).Do()
	if err != nil {
		return models.CalendarEvent{}, calerr.WrapProvider(providerName, "createEvent", err, "calendar", cal.ID)
	}
	ev, err := toEvent(created, cal, "")
	if err != nil {
		return models.CalendarEvent{}, calerr.WrapProvider(providerName, "createEvent", err, "calendar", cal.ID)
	}
	return ev, nil
}

// UpdateEvent patches the canonical fields of an event, leaving fields the
// canonical model does not carry untouched.
func (c *CalendarClient) UpdateEvent(ctx context.Context, cal models.Calendar, eventID string, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}

	patch := toGoogleEvent(in)
	patch.ForceSendFields = []string{"Summary", "Description", "Location"}
	updated, err := c.service.Events.Patch(cal.ID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return models.CalendarEvent{}, calerr.WrapProvider(providerName, "updateEvent", err, "calendar", cal.ID, "event", eventID)
	}
	ev, err := toEvent(updated, cal, "")
	if err != nil {
		return models.CalendarEvent{}, calerr.WrapProvider(providerName, "updateEvent", err, "calendar", cal.ID, "event", eventID)
	}
	return ev, nil
}

// DeleteEvent removes an event.
func (c *CalendarClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return calerr.WrapProvider(providerName, "deleteEvent", err, "calendar", calendarID, "event", eventID)
	}
	return nil
}

// RespondToEvent rewrites the self attendee's status and comment. Google has
// no partial attendee update, so the whole list is resent with every other
// entry untouched.
func (c *CalendarClient) RespondToEvent(ctx context.Context, calendarID, eventID string, resp models.Response) error {
	if err := c.Capabilities().CheckResponse(resp); err != nil {
		return err
	}

	item, err := c.service.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return calerr.WrapProvider(providerName, "respondToEvent", err, "calendar", calendarID, "event", eventID)
	}

	idx := selfIndex(item.Attendees, "")
	if idx < 0 {
		return calerr.Invalid("attendees", "event %s has no attendee entry for this account", eventID)
	}
	if organizedBySelf(item, idx) {
		return calerr.Invalid("event", "event %s is organized by this account", eventID)
	}

	attendees := cloneAttendees(item.Attendees)
	attendees[idx].ResponseStatus = wireStatus(resp.Status)
	if resp.Comment != "" {
		attendees[idx].Comment = resp.Comment
	}
	return c.patchAttendees(ctx, calendarID, eventID, "respondToEvent", attendees)
}

// Accept marks the event accepted for this account, adding a self entry when
// the account is not on the attendee list yet.
func (c *CalendarClient) Accept(ctx context.Context, calendarID, eventID string) error {
	item, err := c.service.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return calerr.WrapProvider(providerName, "accept", err, "calendar", calendarID, "event", eventID)
	}

	attendees := cloneAttendees(item.Attendees)
	idx := selfIndex(attendees, c.account.Email)
	if organizedBySelf(item, idx) {
		return calerr.Invalid("event", "event %s is organized by this account", eventID)
	}
	if idx < 0 {
		if c.account.Email == "" {
			return calerr.Invalid("attendees", "cannot add a self attendee without an account email")
		}
		attendees = append(attendees, &calendar.EventAttendee{Email: c.account.Email})
		idx = len(attendees) - 1
	}
	attendees[idx].ResponseStatus = wireStatus(models.StatusAccepted)
	return c.patchAttendees(ctx, calendarID, eventID, "accept", attendees)
}

func (c *CalendarClient) patchAttendees(ctx context.Context, calendarID, eventID, op string, attendees []*calendar.EventAttendee) error {
	_, err := c.service.Events.Patch(calendarID, eventID, &calendar.Event{Attendees: attendees}).Context(ctx).Do()
	if err != nil {
		return calerr.WrapProvider(providerName, op, err, "calendar", calendarID, "event", eventID)
	}
	c.logger.Info("Updated attendee response", "calendarID", calendarID, "eventID", eventID)
	return nil
}

// PrimaryEmail returns the address owning the account's primary calendar.
func (c *CalendarClient) PrimaryEmail(ctx context.Context) (string, error) {
	entry, err := c.service.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return "", calerr.WrapProvider(providerName, "primaryEmail", err)
	}
	return entry.Id, nil
}

// organizedBySelf reports whether the account organizes item, either through
// the event's organizer or through its own attendee entry at idx.
func organizedBySelf(item *calendar.Event, idx int) bool {
	if item.Organizer != nil && item.Organizer.Self {
		return true
	}
	return idx >= 0 && item.Attendees[idx].Organizer
}

// selfIndex finds the self-flagged attendee, falling back to an email match.
func selfIndex(attendees []*calendar.EventAttendee, email string) int {
	for i, a := range attendees {
		if a.Self {
			return i
		}
	}
	if email == "" {
		return -1
	}
	for i, a := range attendees {
		if strings.EqualFold(a.Email, email) {
			return i
		}
	}
	return -1
}

func cloneAttendees(in []*calendar.EventAttendee) []*calendar.EventAttendee {
	out := make([]*calendar.EventAttendee, len(in))
	for i, a := range in {
		cp := *a
		out[i] = &cp
	}
	return out
}

func calendarLocation(cal models.Calendar) *time.Location {
	if cal.TimeZone != "" {
		if loc, err := time.LoadLocation(cal.TimeZone); err == nil {
			return loc
		}
	}
	return time.UTC
}
