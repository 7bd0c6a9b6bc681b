package aggregator

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"calmux/internal/provider"
	"context"
)

// calendar connects to the account and finds the calendar in its live listing.
func (s *Service) calendar(ctx context.Context, userID, accountID, calendarID string) (provider.Provider, models.Calendar, error) {
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return nil, models.Calendar{}, err
	}
	cals, err := p.Calendars(ctx)
	if err != nil {
		return nil, models.Calendar{}, err
	}
	for _, c := range cals {
		if c.ID == calendarID {
			return p, c, nil
		}
	}
	return nil, models.Calendar{}, &calerr.NotFoundError{Resource: "calendar", ID: calendarID}
}

func (s *Service) provider(ctx context.Context, userID, accountID string) (provider.Provider, error) {
	acct, err := s.account(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return s.connect(ctx, acct)
}

func writable(cal models.Calendar) error {
	if cal.ReadOnly {
		return calerr.Invalid("calendar", "calendar %s is read-only", cal.ID)
	}
	return nil
}

// ListEvents returns the events of one calendar intersecting [from, to).
func (s *Service) ListEvents(ctx context.Context, userID, accountID, calendarID string, from, to models.Temporal) ([]models.CalendarEvent, error) {
	if from.IsZero() || to.IsZero() {
		return nil, calerr.Invalid("window", "both bounds of the window are required")
	}
	p, cal, err := s.calendar(ctx, userID, accountID, calendarID)
	if err != nil {
		return nil, err
	}
	return p.Events(ctx, cal, from, to)
}

// CreateEvent creates an event on one calendar.
func (s *Service) CreateEvent(ctx context.Context, userID, accountID, calendarID string, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}
	p, cal, err := s.calendar(ctx, userID, accountID, calendarID)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	if err := writable(cal); err != nil {
		return models.CalendarEvent{}, err
	}
	return p.CreateEvent(ctx, cal, in)
}

// UpdateEvent replaces the canonical fields of an event.
func (s *Service) UpdateEvent(ctx context.Context, userID, accountID, calendarID, eventID string, in models.EventInput) (models.CalendarEvent, error) {
	if err := in.Validate(); err != nil {
		return models.CalendarEvent{}, err
	}
	if in.Metadata != nil {
		acct, err := s.account(ctx, userID, accountID)
		if err != nil {
			return models.CalendarEvent{}, err
		}
		if in.Metadata.Provider() != acct.ProviderID {
			return models.CalendarEvent{}, calerr.Invalid("metadata", "%s metadata cannot be sent to a %s account", in.Metadata.Provider(), acct.ProviderID)
		}
	}
	p, cal, err := s.calendar(ctx, userID, accountID, calendarID)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	if err := writable(cal); err != nil {
		return models.CalendarEvent{}, err
	}
	return p.UpdateEvent(ctx, cal, eventID, in)
}

// DeleteEvent removes an event.
func (s *Service) DeleteEvent(ctx context.Context, userID, accountID, calendarID, eventID string) error {
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return err
	}
	return p.DeleteEvent(ctx, calendarID, eventID)
}

// RespondToEvent answers an invitation for the account's own attendee entry.
// A comment is refused up front when the provider cannot deliver it.
func (s *Service) RespondToEvent(ctx context.Context, userID, accountID, calendarID, eventID string, resp models.Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if err := p.Capabilities().CheckResponse(resp); err != nil {
		return err
	}
	return p.RespondToEvent(ctx, calendarID, eventID, resp)
}

// accepter is implemented by providers that can add a missing self attendee
// while accepting.
type accepter interface {
	Accept(ctx context.Context, calendarID, eventID string) error
}

// AcceptEvent accepts an invitation, using the provider's dedicated accept
// shortcut when it has one.
func (s *Service) AcceptEvent(ctx context.Context, userID, accountID, calendarID, eventID string) error {
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if a, ok := p.(accepter); ok {
		return a.Accept(ctx, calendarID, eventID)
	}
	return p.RespondToEvent(ctx, calendarID, eventID, models.Response{Status: models.StatusAccepted})
}

// CreateCalendar creates a calendar on one account.
func (s *Service) CreateCalendar(ctx context.Context, userID, accountID string, in models.CalendarInput) (models.Calendar, error) {
	if err := in.Validate(); err != nil {
		return models.Calendar{}, err
	}
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return models.Calendar{}, err
	}
	return p.CreateCalendar(ctx, in)
}

// UpdateCalendar patches a calendar.
func (s *Service) UpdateCalendar(ctx context.Context, userID, accountID, calendarID string, in models.CalendarInput) (models.Calendar, error) {
	if err := in.ValidatePatch(); err != nil {
		return models.Calendar{}, err
	}
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return models.Calendar{}, err
	}
	return p.UpdateCalendar(ctx, calendarID, in)
}

// DeleteCalendar removes a calendar. When it was the recorded default
// calendar, the default falls back to the account's primary calendar on the
// next listing.
func (s *Service) DeleteCalendar(ctx context.Context, userID, accountID, calendarID string) error {
	p, err := s.provider(ctx, userID, accountID)
	if err != nil {
		return err
	}
	if err := p.DeleteCalendar(ctx, calendarID); err != nil {
		return err
	}

	_, err = s.store.UpdateDefaults(ctx, userID, func(cur models.DefaultSelection, _ []models.Account) (models.DefaultSelection, error) {
		if cur.AccountID == accountID && cur.CalendarID == calendarID {
			return models.DefaultSelection{AccountID: accountID}, nil
		}
		return cur, nil
	})
	return err
}
