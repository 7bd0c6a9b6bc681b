package ical

import (
	"calmux/internal/models"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

// basicAuthTransport adds Basic Auth and the client's User-Agent to each request.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	req.Header.Set("User-Agent", "calmux/1.0")
	return t.Transport.RoundTrip(req)
}

// Publisher writes events as one .ics resource each into a WebDAV collection.
type Publisher struct {
	webdavClient *webdav.Client
	caldavClient *caldav.Client
	logger       *slog.Logger
	endpoint     string
}

// NewPublisher creates a Publisher for the server at endpoint.
func NewPublisher(logger *slog.Logger, endpoint, username, password string) (*Publisher, error) {
	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	return &Publisher{
		webdavClient: webdavClient,
		caldavClient: caldavClient,
		logger:       logger,
		endpoint:     endpoint,
	}, nil
}

// FindCollection discovers the user's CalDAV calendars and returns the path
// of the one named name.
func (p *Publisher) FindCollection(ctx context.Context, name string) (string, error) {
	principalPath, err := p.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}
	homeSetPath, err := p.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	calendars, err := p.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// Publish uploads each event to <collection>/<uid>.ics. It stops at the
// first failed upload and reports how many succeeded.
func (p *Publisher) Publish(ctx context.Context, collection string, events []models.CalendarEvent) (int, error) {
	collection = strings.TrimPrefix(collection, strings.TrimSuffix(p.endpoint, "/"))
	for i, ev := range events {
		if err := p.put(ctx, collection, ev); err != nil {
			return i, err
		}
	}
	p.logger.Info("Published events", "collection", collection, "count", len(events))
	return len(events), nil
}

func (p *Publisher) put(ctx context.Context, collection string, ev models.CalendarEvent) error {
	uid := UID(ev)
	p.logger.Debug("Publishing event", "eventTitle", ev.Title, "uid", uid)

	cal := newCalendar()
	cal.Children = append(cal.Children, toVEvent(ev, nowUTC()))

	writer, err := p.webdavClient.Create(ctx, path.Join(collection, uid+".ics"))
	if err != nil {
		return fmt.Errorf("failed to create event %s on server: %w", uid, err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event %s: %w", uid, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event %s: %w", uid, err)
	}
	return nil
}
