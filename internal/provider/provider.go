// Package provider defines the capability contract every calendar service
// adapter implements, and the registry that builds an adapter for an account.
package provider

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"fmt"
	"sync"
)

// Provider reads and writes one linked account's calendars through canonical
// models only. Every failure is a calerr envelope type.
type Provider interface {
	Calendars(ctx context.Context) ([]models.Calendar, error)
	CreateCalendar(ctx context.Context, in models.CalendarInput) (models.Calendar, error)
	UpdateCalendar(ctx context.Context, calendarID string, in models.CalendarInput) (models.Calendar, error)
	DeleteCalendar(ctx context.Context, calendarID string) error

	// Events returns events intersecting [timeMin, timeMax), ordered by start.
	Events(ctx context.Context, cal models.Calendar, timeMin, timeMax models.Temporal) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, cal models.Calendar, in models.EventInput) (models.CalendarEvent, error)
	UpdateEvent(ctx context.Context, cal models.Calendar, eventID string, in models.EventInput) (models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error

	// RespondToEvent sets the caller's own attendance on an event they do not organize.
	RespondToEvent(ctx context.Context, calendarID, eventID string, resp models.Response) error

	Capabilities() Capabilities
}

// Capabilities advertises optional behavior that differs between services.
type Capabilities struct {
	// ResponseComment is true when RespondToEvent delivers a comment.
	ResponseComment bool
}

// CheckResponse rejects a response the capabilities cannot carry.
func (c Capabilities) CheckResponse(resp models.Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}
	if resp.Comment != "" && !c.ResponseComment {
		return calerr.Invalid("comment", "this provider does not deliver response comments")
	}
	return nil
}

// Constructor builds an adapter for an account whose AccessToken is live.
type Constructor func(ctx context.Context, acct models.Account) (Provider, error)

// Registry maps provider ids to adapter constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[models.ProviderID]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[models.ProviderID]Constructor)}
}

// Register adds a constructor for id.
func (r *Registry) Register(id models.ProviderID, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.constructors[id] = c
	return nil
}

// New builds the adapter for acct.
func (r *Registry) New(ctx context.Context, acct models.Account) (Provider, error) {
	r.mu.RLock()
	c, ok := r.constructors[acct.ProviderID]
	r.mu.RUnlock()

	if !ok {
		return nil, calerr.Invalid("provider", "unsupported provider %q", acct.ProviderID)
	}
	p, err := c(ctx, acct)
	if err != nil {
		return nil, calerr.WrapProvider(string(acct.ProviderID), "connect", err, "account", acct.ID)
	}
	return p, nil
}
