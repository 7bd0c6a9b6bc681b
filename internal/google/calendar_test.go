package google

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/calendar/v3"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *CalendarClient {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	opts.Endpoint = ts.URL + "/"
	opts.HTTPClient = ts.Client()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	acct := models.Account{ID: "acct-1", ProviderID: models.ProviderGoogle, Email: "me@example.com", AccessToken: "live-token"}

	c, err := NewClient(context.Background(), logger, acct, opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCalendarsMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer live-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/users/me/calendarList") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{"id": "me@example.com", "summary": "Me", "primary": true, "accessRole": "owner", "backgroundColor": "#123456", "timeZone": "Europe/Berlin"},
				{"id": "holidays", "summary": "Holidays", "summaryOverride": "Days off", "accessRole": "reader"},
				{"id": "gone", "summary": "Gone", "deleted": true},
			},
		})
	}, Options{})

	cals, err := c.Calendars(context.Background())
	if err != nil {
		t.Fatalf("Calendars: %v", err)
	}
	if len(cals) != 2 {
		t.Fatalf("expected 2 calendars, got %d", len(cals))
	}

	primary := cals[0]
	if !primary.Primary || primary.ReadOnly || primary.Color != "#123456" || primary.TimeZone != "Europe/Berlin" {
		t.Fatalf("unexpected primary calendar: %+v", primary)
	}
	if primary.AccountID != "acct-1" || primary.ProviderID != models.ProviderGoogle {
		t.Fatalf("calendar not attributed to the account: %+v", primary)
	}

	holidays := cals[1]
	if holidays.Name != "Days off" || !holidays.ReadOnly {
		t.Fatalf("unexpected secondary calendar: %+v", holidays)
	}
	if holidays.Color != c.opts.Palette.Assign(1) {
		t.Fatalf("expected palette color for position 1, got %q", holidays.Color)
	}
}

func TestEventsMapping(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("timeMin") != "2024-05-31T22:00:00Z" {
			t.Errorf("timeMin = %q, want the window start resolved in the calendar zone", q.Get("timeMin"))
		}

		if q.Get("pageToken") == "" {
			writeJSON(t, w, map[string]any{
				"timeZone":      "Europe/Berlin",
				"nextPageToken": "p2",
				"items": []map[string]any{
					{
						"id": "allday", "summary": "Offsite", "iCalUID": "allday@google.com", "etag": `"1"`,
						"start": map[string]any{"date": "2024-06-03"},
						"end":   map[string]any{"date": "2024-06-05"},
					},
				},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"items": []map[string]any{
				{
					"id": "timed", "summary": "Standup", "colorId": "11", "htmlLink": "https://calendar.google.com/x",
					"start":     map[string]any{"dateTime": "2024-06-03T09:00:00+02:00", "timeZone": "Europe/Berlin"},
					"end":       map[string]any{"dateTime": "2024-06-03T09:15:00+02:00", "timeZone": "Europe/Berlin"},
					"organizer": map[string]any{"email": "boss@example.com"},
					"attendees": []map[string]any{
						{"email": "a@example.com", "responseStatus": "accepted"},
						{"email": "b@example.com", "responseStatus": "declined", "optional": true},
						{"email": "c@example.com", "responseStatus": "tentative"},
						{"email": "me@example.com", "responseStatus": "needsAction", "self": true},
						{"email": "room@example.com", "responseStatus": "bogus", "resource": true},
					},
				},
				{
					"id": "instant", "summary": "Call",
					"start": map[string]any{"dateTime": "2024-06-04T12:00:00Z"},
					"end":   map[string]any{"dateTime": "2024-06-04T12:30:00Z"},
				},
				{"id": "dropped", "status": "cancelled"},
			},
		})
	}, Options{})

	cal := models.Calendar{ID: "primary", AccountID: "acct-1", TimeZone: "Europe/Berlin"}
	events, err := c.Events(context.Background(), cal, models.PlainDate(2024, 6, 1), models.PlainDate(2024, 6, 8))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	for _, ev := range events {
		if ev.AllDay != (ev.Start.IsPlainDate() && ev.End.IsPlainDate()) {
			t.Fatalf("event %s breaks the all-day invariant", ev.ID)
		}
		if ev.CalendarID != "primary" || ev.AccountID != "acct-1" {
			t.Fatalf("event %s not attributed to its calendar", ev.ID)
		}
	}

	allDay := events[0]
	if !allDay.AllDay || allDay.Start.String() != "2024-06-03" {
		t.Fatalf("unexpected all-day event: %+v", allDay)
	}
	meta, ok := models.GoogleMeta(allDay.Metadata)
	if !ok || meta.ICalUID != "allday@google.com" || meta.EventTimeZone != "Europe/Berlin" {
		t.Fatalf("unexpected metadata: %+v", allDay.Metadata)
	}

	timed := events[1]
	if timed.Start.Kind() != models.KindZoned || timed.Start.Zone() != "Europe/Berlin" {
		t.Fatalf("expected zoned start, got %v", timed.Start)
	}
	if !timed.ReadOnly || timed.Color != "#d50000" || timed.URL == "" {
		t.Fatalf("unexpected timed event: %+v", timed)
	}
	wantStatus := []models.AttendeeStatus{models.StatusAccepted, models.StatusDeclined, models.StatusTentative, models.StatusUnknown, models.StatusUnknown}
	wantType := []models.AttendeeType{models.TypeRequired, models.TypeOptional, models.TypeRequired, models.TypeRequired, models.TypeResource}
	for i, a := range timed.Attendees {
		if a.Status != wantStatus[i] || a.Type != wantType[i] {
			t.Errorf("attendee %d = %s/%s, want %s/%s", i, a.Status, a.Type, wantStatus[i], wantType[i])
		}
	}
	if !timed.Attendees[3].Self {
		t.Fatalf("self flag lost")
	}

	if events[2].Start.Kind() != models.KindInstant {
		t.Fatalf("expected instant start, got %v", events[2].Start.Kind())
	}
}

func TestEventsStopsAtPageCap(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, map[string]any{
			"nextPageToken": fmt.Sprintf("p%d", calls+1),
			"items": []map[string]any{{
				"id":    fmt.Sprintf("ev%d", calls),
				"start": map[string]any{"date": "2024-06-03"},
				"end":   map[string]any{"date": "2024-06-04"},
			}},
		})
	}, Options{MaxPages: 2})

	events, err := c.Events(context.Background(), models.Calendar{ID: "primary"}, models.PlainDate(2024, 6, 1), models.PlainDate(2024, 7, 1))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if calls != 2 || len(events) != 2 {
		t.Fatalf("expected 2 pages and 2 events, got %d pages and %d events", calls, len(events))
	}
}

func TestCreateEventPayload(t *testing.T) {
	var sent calendar.Event
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		sent.Id = "new"
		writeJSON(t, w, &sent)
	}, Options{})

	in := models.EventInput{
		Title: "Offsite",
		Start: models.PlainDate(2024, 6, 3),
		End:   models.PlainDate(2024, 6, 5),
		Color: "#0B8043",
		Attendees: []models.Attendee{
			{Email: "a@example.com", Type: models.TypeOptional},
		},
	}
	ev, err := c.CreateEvent(context.Background(), models.Calendar{ID: "primary"}, in)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if sent.Start.Date != "2024-06-03" || sent.Start.DateTime != "" || sent.End.Date != "2024-06-05" {
		t.Fatalf("unexpected wire bounds: %+v %+v", sent.Start, sent.End)
	}
	if sent.ColorId != "10" {
		t.Fatalf("ColorId = %q", sent.ColorId)
	}
	if len(sent.Attendees) != 1 || !sent.Attendees[0].Optional || sent.Attendees[0].ResponseStatus != "needsAction" {
		t.Fatalf("unexpected attendees: %+v", sent.Attendees)
	}
	if ev.ID != "new" || !ev.AllDay {
		t.Fatalf("unexpected created event: %+v", ev)
	}

	if _, err := c.CreateEvent(context.Background(), models.Calendar{ID: "primary"}, models.EventInput{Start: in.Start}); !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError for a missing end, got %v", err)
	}
}

// attendeeServer serves one event and records the attendee list of every patch.
type attendeeServer struct {
	mu      sync.Mutex
	event   map[string]any
	patches [][]*calendar.EventAttendee
}

func (s *attendeeServer) handle(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, s.event)
		case http.MethodPatch:
			var body calendar.Event
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode patch: %v", err)
			}
			s.patches = append(s.patches, body.Attendees)
			writeJSON(t, w, s.event)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}
}

func baseEvent(attendees ...map[string]any) map[string]any {
	return map[string]any{
		"id":        "ev1",
		"start":     map[string]any{"dateTime": "2024-06-03T09:00:00Z"},
		"end":       map[string]any{"dateTime": "2024-06-03T10:00:00Z"},
		"attendees": attendees,
	}
}

func TestRespondToEventChangesOnlySelf(t *testing.T) {
	srv := &attendeeServer{event: baseEvent(
		map[string]any{"email": "a@example.com", "responseStatus": "accepted"},
		map[string]any{"email": "me@example.com", "responseStatus": "needsAction", "self": true},
		map[string]any{"email": "b@example.com", "responseStatus": "tentative", "comment": "maybe"},
	)}
	c := newTestClient(t, srv.handle(t), Options{})

	err := c.RespondToEvent(context.Background(), "primary", "ev1", models.Response{Status: models.StatusDeclined, Comment: "conflict"})
	if err != nil {
		t.Fatalf("RespondToEvent: %v", err)
	}
	if len(srv.patches) != 1 {
		t.Fatalf("expected one patch, got %d", len(srv.patches))
	}

	got := srv.patches[0]
	if len(got) != 3 {
		t.Fatalf("attendee count changed: %d", len(got))
	}
	if got[0].ResponseStatus != "accepted" || got[2].ResponseStatus != "tentative" || got[2].Comment != "maybe" {
		t.Fatalf("other attendees were modified: %+v %+v", got[0], got[2])
	}
	if got[1].Email != "me@example.com" || got[1].ResponseStatus != "declined" || got[1].Comment != "conflict" {
		t.Fatalf("self attendee not updated: %+v", got[1])
	}
}

func TestRespondToEventWithoutSelf(t *testing.T) {
	srv := &attendeeServer{event: baseEvent(
		map[string]any{"email": "a@example.com", "responseStatus": "accepted"},
	)}
	c := newTestClient(t, srv.handle(t), Options{})

	err := c.RespondToEvent(context.Background(), "primary", "ev1", models.Response{Status: models.StatusAccepted})
	if !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(srv.patches) != 0 {
		t.Fatalf("nothing should be patched")
	}

	err = c.RespondToEvent(context.Background(), "primary", "ev1", models.Response{Status: models.StatusUnknown})
	if !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestRespondToEventAsOrganizer(t *testing.T) {
	tests := []struct {
		name  string
		event map[string]any
	}{
		{"organizer attendee", baseEvent(
			map[string]any{"email": "me@example.com", "self": true, "organizer": true, "responseStatus": "accepted"},
			map[string]any{"email": "a@example.com", "responseStatus": "needsAction"},
		)},
		{"organizer self", func() map[string]any {
			ev := baseEvent(map[string]any{"email": "me@example.com", "self": true, "responseStatus": "accepted"})
			ev["organizer"] = map[string]any{"email": "me@example.com", "self": true}
			return ev
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &attendeeServer{event: tt.event}
			c := newTestClient(t, srv.handle(t), Options{})

			err := c.RespondToEvent(context.Background(), "primary", "ev1", models.Response{Status: models.StatusDeclined})
			if !calerr.IsValidationError(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if err := c.Accept(context.Background(), "primary", "ev1"); !calerr.IsValidationError(err) {
				t.Fatalf("Accept: expected ValidationError, got %v", err)
			}
			if len(srv.patches) != 0 {
				t.Fatalf("nothing should be patched, got %d patches", len(srv.patches))
			}
		})
	}
}

func TestAcceptNeverDuplicatesSelf(t *testing.T) {
	tests := []struct {
		name      string
		attendees []map[string]any
		wantCount int
	}{
		{"self flagged", []map[string]any{{"email": "ME@example.com", "self": true, "responseStatus": "needsAction"}}, 1},
		{"email match", []map[string]any{{"email": "me@example.com", "responseStatus": "declined"}}, 1},
		{"absent", []map[string]any{{"email": "a@example.com", "responseStatus": "accepted"}}, 2},
		{"no attendees", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &attendeeServer{event: baseEvent(tt.attendees...)}
			c := newTestClient(t, srv.handle(t), Options{})

			if err := c.Accept(context.Background(), "primary", "ev1"); err != nil {
				t.Fatalf("Accept: %v", err)
			}
			got := srv.patches[0]
			if len(got) != tt.wantCount {
				t.Fatalf("expected %d attendees, got %d", tt.wantCount, len(got))
			}
			var accepted int
			for _, a := range got {
				if strings.EqualFold(a.Email, "me@example.com") {
					accepted++
					if a.ResponseStatus != "accepted" {
						t.Fatalf("self not accepted: %+v", a)
					}
				}
			}
			if accepted != 1 {
				t.Fatalf("expected exactly one self entry, got %d", accepted)
			}
		})
	}
}

func TestErrorsAreWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"Rate Limit Exceeded","errors":[{"reason":"rateLimitExceeded","message":"Rate Limit Exceeded"}]}}`)
	}, Options{})

	_, err := c.Calendars(context.Background())
	var pe *calerr.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Provider != "google" || pe.Op != "calendars" || pe.Code != "403:rateLimitExceeded" {
		t.Fatalf("unexpected envelope: %+v", pe)
	}
}
