// Package aggregator merges the calendars of every linked account into one
// listing, resolves the user's default calendar, and routes single-calendar
// operations to the owning provider.
package aggregator

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"calmux/internal/provider"
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultFetchTimeout = 15 * time.Second

// Accounts resolves linked accounts and their live tokens.
type Accounts interface {
	Linked(ctx context.Context, userID string) ([]models.Account, error)
	Authorize(ctx context.Context, acct models.Account) (models.Account, error)
}

// Store owns the user's default pair.
type Store interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	UpdateDefaults(ctx context.Context, userID string, fn func(cur models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error)) (models.DefaultSelection, error)
	DeleteAccount(ctx context.Context, userID, accountID string, providerID models.ProviderID) (models.DefaultSelection, error)
}

// Providers builds the adapter for an authorized account.
type Providers interface {
	New(ctx context.Context, acct models.Account) (provider.Provider, error)
}

// Options tunes a Service.
type Options struct {
	// FetchTimeout bounds each account's calendar fetch during List.
	FetchTimeout time.Duration
	// Strict makes List return a PartialFailureError whenever any account failed.
	Strict bool
}

// Service is the provider-agnostic calendar API.
type Service struct {
	logger    *slog.Logger
	accounts  Accounts
	store     Store
	providers Providers
	opts      Options
}

// NewService creates a Service.
func NewService(logger *slog.Logger, accounts Accounts, store Store, providers Providers, opts Options) *Service {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &Service{
		logger:    logger,
		accounts:  accounts,
		store:     store,
		providers: providers,
		opts:      opts,
	}
}

// AccountCalendars is one account's contribution to a listing. Err is set
// when the account could not be reached; Calendars is then empty.
type AccountCalendars struct {
	ID         string
	ProviderID models.ProviderID
	Name       string
	Email      string
	Calendars  []models.Calendar
	Err        error
}

// CalendarList is the merged listing across accounts, in linked order.
type CalendarList struct {
	Accounts        []AccountCalendars
	DefaultAccount  string
	DefaultCalendar models.Calendar
}

// Failed returns the accounts that could not be reached.
func (l CalendarList) Failed() []AccountCalendars {
	var failed []AccountCalendars
	for _, a := range l.Accounts {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}

// List fetches the calendars of every linked account concurrently and
// resolves the default calendar. One account failing leaves its entry empty
// with Err set and does not fail the listing, unless every account failed,
// the default account failed, or the service runs in strict mode; the partial
// listing is returned together with a PartialFailureError in those cases.
func (s *Service) List(ctx context.Context, userID string) (CalendarList, error) {
	linked, err := s.accounts.Linked(ctx, userID)
	if err != nil {
		return CalendarList{}, err
	}
	if len(linked) == 0 {
		return CalendarList{}, &calerr.NotFoundError{Resource: "account", ID: userID}
	}

	defaults, err := s.defaults(ctx, userID)
	if err != nil {
		return CalendarList{}, err
	}

	list := CalendarList{Accounts: make([]AccountCalendars, len(linked))}
	var wg sync.WaitGroup
	for i, acct := range linked {
		wg.Add(1)
		go func(i int, acct models.Account) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
			defer cancel()

			cals, err := s.fetchCalendars(fetchCtx, acct)
			list.Accounts[i] = AccountCalendars{
				ID:         acct.ID,
				ProviderID: acct.ProviderID,
				Name:       acct.DisplayName(),
				Email:      acct.Email,
				Calendars:  cals,
				Err:        err,
			}
		}(i, acct)
	}
	wg.Wait()

	failures := make(map[string]error)
	for _, a := range list.Accounts {
		if a.Err != nil {
			failures[a.ID] = a.Err
			s.logger.Warn("Could not list calendars for account", "user", userID, "account", a.ID, "provider", a.ProviderID, "error", a.Err)
		}
	}
	var partial error
	if len(failures) > 0 {
		partial = &calerr.PartialFailureError{Failures: failures, Total: len(linked)}
	}
	if len(failures) == len(linked) {
		return list, partial
	}

	list.DefaultAccount = linked[0].ID
	for _, acct := range linked {
		if acct.ID == defaults.AccountID {
			list.DefaultAccount = acct.ID
			break
		}
	}

	cal, ok := resolveDefaultCalendar(list, defaults)
	if !ok {
		if _, failed := failures[list.DefaultAccount]; failed {
			return list, partial
		}
		return list, &calerr.NotFoundError{Resource: "calendar", ID: "default"}
	}
	list.DefaultCalendar = cal

	s.logger.Info("Listed calendars", "user", userID, "accounts", len(linked), "failed", len(failures), "defaultCalendar", cal.ID)
	if s.opts.Strict && partial != nil {
		return list, partial
	}
	return list, nil
}

// resolveDefaultCalendar picks the recorded calendar when it is still listed
// under the default account, else that account's primary calendar.
func resolveDefaultCalendar(list CalendarList, defaults models.DefaultSelection) (models.Calendar, bool) {
	var calendars []models.Calendar
	for _, a := range list.Accounts {
		if a.ID == list.DefaultAccount {
			calendars = a.Calendars
			break
		}
	}
	if defaults.CalendarID != "" && defaults.AccountID == list.DefaultAccount {
		for _, c := range calendars {
			if c.ID == defaults.CalendarID {
				return c, true
			}
		}
	}
	for _, c := range calendars {
		if c.Primary {
			return c, true
		}
	}
	return models.Calendar{}, false
}

func (s *Service) defaults(ctx context.Context, userID string) (models.DefaultSelection, error) {
	u, err := s.store.GetUser(ctx, userID)
	if calerr.IsNotFoundError(err) {
		return models.DefaultSelection{}, nil
	}
	if err != nil {
		return models.DefaultSelection{}, err
	}
	return u.Defaults, nil
}

func (s *Service) fetchCalendars(ctx context.Context, acct models.Account) ([]models.Calendar, error) {
	p, err := s.connect(ctx, acct)
	if err != nil {
		return nil, err
	}
	return p.Calendars(ctx)
}

// connect authorizes acct and builds its adapter.
func (s *Service) connect(ctx context.Context, acct models.Account) (provider.Provider, error) {
	authorized, err := s.accounts.Authorize(ctx, acct)
	if err != nil {
		return nil, err
	}
	return s.providers.New(ctx, authorized)
}

// account finds one of the user's linked accounts.
func (s *Service) account(ctx context.Context, userID, accountID string) (models.Account, error) {
	linked, err := s.accounts.Linked(ctx, userID)
	if err != nil {
		return models.Account{}, err
	}
	for _, acct := range linked {
		if acct.ID == accountID {
			return acct, nil
		}
	}
	return models.Account{}, &calerr.NotFoundError{Resource: "account", ID: accountID}
}

// SetDefault records accountID/calendarID as the user's default after
// checking the calendar against the live provider listing.
func (s *Service) SetDefault(ctx context.Context, userID, accountID, calendarID string) error {
	if _, _, err := s.calendar(ctx, userID, accountID, calendarID); err != nil {
		return err
	}

	_, err := s.store.UpdateDefaults(ctx, userID, func(_ models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error) {
		for _, a := range accounts {
			if a.ID == accountID {
				return models.DefaultSelection{AccountID: accountID, CalendarID: calendarID}, nil
			}
		}
		return models.DefaultSelection{}, &calerr.NotFoundError{Resource: "account", ID: accountID}
	})
	if err != nil {
		return err
	}
	s.logger.Info("Default calendar set", "user", userID, "account", accountID, "calendar", calendarID)
	return nil
}

// UnlinkAccount removes a linked account. When it was the default, the
// newest remaining account becomes the default with its primary calendar, or
// the default is left unset when no account remains.
func (s *Service) UnlinkAccount(ctx context.Context, userID, accountID string, providerID models.ProviderID) error {
	next, err := s.store.DeleteAccount(ctx, userID, accountID, providerID)
	if err != nil {
		return err
	}
	s.logger.Info("Account unlinked", "user", userID, "account", accountID, "provider", providerID)

	if next.AccountID == "" || next.CalendarID != "" {
		return nil
	}

	primary, err := s.primaryCalendar(ctx, userID, next.AccountID)
	if err != nil {
		s.logger.Warn("Could not resolve primary calendar for the new default account", "user", userID, "account", next.AccountID, "error", err)
		return nil
	}

	_, err = s.store.UpdateDefaults(ctx, userID, func(cur models.DefaultSelection, _ []models.Account) (models.DefaultSelection, error) {
		if cur.AccountID != next.AccountID || cur.CalendarID != "" {
			return cur, nil
		}
		return models.DefaultSelection{AccountID: next.AccountID, CalendarID: primary.ID}, nil
	})
	return err
}

func (s *Service) primaryCalendar(ctx context.Context, userID, accountID string) (models.Calendar, error) {
	acct, err := s.account(ctx, userID, accountID)
	if err != nil {
		return models.Calendar{}, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	cals, err := s.fetchCalendars(fetchCtx, acct)
	if err != nil {
		return models.Calendar{}, err
	}
	for _, c := range cals {
		if c.Primary {
			return c, nil
		}
	}
	return models.Calendar{}, &calerr.NotFoundError{Resource: "calendar", ID: "primary"}
}
