package main

import (
	"bufio"
	"calmux/internal/accounts"
	"calmux/internal/aggregator"
	"calmux/internal/config"
	"calmux/internal/google"
	"calmux/internal/ical"
	"calmux/internal/models"
	"calmux/internal/outlook"
	"calmux/internal/provider"
	"calmux/internal/storage"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calmux",
		Usage: "Read and write calendars across linked Google and Microsoft accounts.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: config.DefaultFile, Usage: "Path to the TOML config file."},
		},
		Commands: []*cli.Command{
			linkCommand(),
			accountsCommand(),
			calendarsCommand(),
			defaultCommand(),
			eventsCommand(),
			createEventCommand(),
			respondCommand(),
			acceptCommand(),
			unlinkCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env is everything a command needs, built from the config file and environment.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Storage
	resolver *accounts.Resolver
	service  *aggregator.Service
	oauth    map[models.ProviderID]*oauth2.Config
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	store, err := storage.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	oauthConfigs := make(map[models.ProviderID]*oauth2.Config)
	if gc, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret); err == nil {
		oauthConfigs[models.ProviderGoogle] = gc
	} else {
		logger.Debug("Google OAuth client not configured", "error", err)
	}
	if oc, err := outlook.OAuthConfig(cfg.Outlook.ClientID, cfg.Outlook.ClientSecret, cfg.Outlook.Tenant); err == nil {
		oauthConfigs[models.ProviderOutlook] = oc
	} else {
		logger.Debug("Outlook OAuth client not configured", "error", err)
	}

	registry := provider.NewRegistry()
	googleOpts := google.Options{Palette: cfg.ColorPalette(), PageSize: int64(cfg.Fetch.PageSize), MaxPages: cfg.Fetch.MaxPages}
	outlookOpts := outlook.Options{Palette: cfg.ColorPalette(), PageSize: cfg.Fetch.PageSize, MaxPages: cfg.Fetch.MaxPages}
	if err := registry.Register(models.ProviderGoogle, google.Constructor(logger, googleOpts)); err != nil {
		store.Close()
		return nil, err
	}
	if err := registry.Register(models.ProviderOutlook, outlook.Constructor(logger, outlookOpts)); err != nil {
		store.Close()
		return nil, err
	}

	tokens := accounts.NewOAuthTokens(logger, store, oauthConfigs)
	resolver := accounts.NewResolver(logger, store, tokens)
	service := aggregator.NewService(logger, resolver, store, registry, aggregator.Options{
		FetchTimeout: cfg.Fetch.Timeout.Duration,
		Strict:       cfg.Fetch.Strict,
	})

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		resolver: resolver,
		service:  service,
		oauth:    oauthConfigs,
	}, nil
}

// withEnv runs action with a ready env and closes the database afterwards.
func withEnv(action func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		defer e.store.Close()
		return action(c, e)
	}
}

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Link a Google or Microsoft account.",
		ArgsUsage: "google|outlook",
		Action: withEnv(func(c *cli.Context, e *env) error {
			providerID, err := models.ParseProviderID(c.Args().First())
			if err != nil {
				return err
			}
			oauthConfig, ok := e.oauth[providerID]
			if !ok {
				return fmt.Errorf("no OAuth client configured for %s, set the client id and secret first", providerID)
			}

			e.logger.Info("Starting authentication flow.", "provider", providerID)
			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := oauthConfig.Exchange(c.Context, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			acct := models.Account{UserID: e.cfg.User, ProviderID: providerID, AccessToken: token.AccessToken}
			switch providerID {
			case models.ProviderGoogle:
				client, err := google.NewClient(c.Context, e.logger, acct, google.Options{})
				if err != nil {
					return err
				}
				if acct.Email, err = client.PrimaryEmail(c.Context); err != nil {
					return fmt.Errorf("failed to identify google account: %w", err)
				}
			case models.ProviderOutlook:
				profile, err := outlook.NewClient(e.logger, acct, outlook.Options{}).Me(c.Context)
				if err != nil {
					return fmt.Errorf("failed to identify microsoft account: %w", err)
				}
				acct.Email, acct.Name = profile.Email, profile.Name
			}
			acct.ProviderAccountID = strings.ToLower(acct.Email)
			acct.AccessToken = ""

			fmt.Printf("Enter a name for this account (blank for %s): ", acct.Email)
			name, _ := reader.ReadString('\n')
			if name = strings.TrimSpace(name); name != "" {
				acct.Name = name
			}

			if err := e.store.SaveAccount(c.Context, &acct, token); err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}
			e.logger.Info("Successfully linked account.", "provider", providerID, "account", acct.ID, "email", acct.Email)
			return nil
		}),
	}
}

func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "List linked accounts, newest first.",
		Action: withEnv(func(c *cli.Context, e *env) error {
			def, err := e.resolver.GetDefaultAccount(c.Context, e.cfg.User)
			if err != nil {
				return err
			}
			linked, err := e.resolver.Linked(c.Context, e.cfg.User)
			if err != nil {
				return err
			}
			for _, a := range linked {
				marker := " "
				if a.ID == def.ID {
					marker = "*"
				}
				fmt.Printf("%s %s  %-8s %s (%s)\n", marker, a.ID, a.ProviderID, a.DisplayName(), a.Email)
			}
			return nil
		}),
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars of every linked account.",
		Action: withEnv(func(c *cli.Context, e *env) error {
			list, err := e.service.List(c.Context, e.cfg.User)
			if err != nil && len(list.Accounts) == 0 {
				return err
			}
			for _, a := range list.Accounts {
				fmt.Printf("%s [%s] %s\n", a.Name, a.ProviderID, a.ID)
				if a.Err != nil {
					fmt.Printf("    unavailable: %v\n", a.Err)
					continue
				}
				for _, cal := range a.Calendars {
					marker := " "
					if a.ID == list.DefaultAccount && cal.ID == list.DefaultCalendar.ID {
						marker = "*"
					}
					flags := ""
					if cal.Primary {
						flags += " primary"
					}
					if cal.ReadOnly {
						flags += " read-only"
					}
					fmt.Printf("  %s %s  %s %s%s\n", marker, cal.Color, cal.Name, cal.ID, flags)
				}
			}
			return err
		}),
	}
}

func defaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "default",
		Usage: "Set the default account and calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Required: true},
			&cli.StringFlag{Name: "calendar", Required: true},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			return e.service.SetDefault(c.Context, e.cfg.User, c.String("account"), c.String("calendar"))
		}),
	}
}

// calendarFlags select a calendar; both empty means the default calendar.
func calendarFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "account", Usage: "Account id (default account if unset)."},
		&cli.StringFlag{Name: "calendar", Usage: "Calendar id (default calendar if unset)."},
	}
}

func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "Window start, YYYY-MM-DD or RFC 3339 (today if unset)."},
		&cli.StringFlag{Name: "to", Usage: "Window end, YYYY-MM-DD or RFC 3339 (seven days after start if unset)."},
	}
}

func selectCalendar(c *cli.Context, e *env) (string, string, error) {
	accountID, calendarID := c.String("account"), c.String("calendar")
	if accountID != "" && calendarID != "" {
		return accountID, calendarID, nil
	}
	list, err := e.service.List(c.Context, e.cfg.User)
	if list.DefaultCalendar.ID == "" {
		return "", "", fmt.Errorf("no default calendar, pass --account and --calendar: %w", err)
	}
	return list.DefaultAccount, list.DefaultCalendar.ID, nil
}

func window(c *cli.Context) (models.Temporal, models.Temporal, error) {
	from := models.DateOf(time.Now())
	if s := c.String("from"); s != "" {
		v, err := parseTemporal(s, "")
		if err != nil {
			return models.Temporal{}, models.Temporal{}, err
		}
		from = v
	}
	if s := c.String("to"); s != "" {
		to, err := parseTemporal(s, "")
		return from, to, err
	}
	return from, models.Instant(from.Resolve(time.Local).AddDate(0, 0, 7)), nil
}

// parseTemporal reads a date as a plain date, a local date-time in zone as a
// zoned value, and anything else as an RFC 3339 instant.
func parseTemporal(s, zone string) (models.Temporal, error) {
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return models.DateOf(t), nil
	}
	if zone != "" {
		return models.ZonedLocal(s, zone)
	}
	t, err := time.Parse(models.InstantLayout, s)
	if err != nil {
		return models.Temporal{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return models.Instant(t), nil
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List the events of a calendar.",
		Flags: append(calendarFlags(), windowFlags()...),
		Action: withEnv(func(c *cli.Context, e *env) error {
			accountID, calendarID, err := selectCalendar(c, e)
			if err != nil {
				return err
			}
			from, to, err := window(c)
			if err != nil {
				return err
			}
			events, err := e.service.ListEvents(c.Context, e.cfg.User, accountID, calendarID, from, to)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("%s  %s -> %s  %s\n", ev.ID, ev.Start, ev.End, ev.Title)
			}
			return nil
		}),
	}
}

func createEventCommand() *cli.Command {
	flags := append(calendarFlags(),
		&cli.StringFlag{Name: "title", Required: true},
		&cli.StringFlag{Name: "start", Required: true, Usage: "YYYY-MM-DD for all-day events, else a date-time."},
		&cli.StringFlag{Name: "end", Required: true},
		&cli.StringFlag{Name: "zone", Usage: "IANA zone for local date-times."},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "location"},
		&cli.StringSliceFlag{Name: "attendee", Usage: "Attendee email, repeatable."},
	)
	return &cli.Command{
		Name:  "create-event",
		Usage: "Create an event.",
		Flags: flags,
		Action: withEnv(func(c *cli.Context, e *env) error {
			accountID, calendarID, err := selectCalendar(c, e)
			if err != nil {
				return err
			}
			start, err := parseTemporal(c.String("start"), c.String("zone"))
			if err != nil {
				return err
			}
			end, err := parseTemporal(c.String("end"), c.String("zone"))
			if err != nil {
				return err
			}
			in := models.EventInput{
				Title:       c.String("title"),
				Description: c.String("description"),
				Location:    c.String("location"),
				Start:       start,
				End:         end,
			}
			for _, email := range c.StringSlice("attendee") {
				in.Attendees = append(in.Attendees, models.Attendee{Email: email, Type: models.TypeRequired, Status: models.StatusUnknown})
			}

			ev, err := e.service.CreateEvent(c.Context, e.cfg.User, accountID, calendarID, in)
			if err != nil {
				return err
			}
			e.logger.Info("Created event.", "eventID", ev.ID, "calendar", calendarID)
			fmt.Println(ev.ID)
			return nil
		}),
	}
}

func respondCommand() *cli.Command {
	flags := append(calendarFlags(),
		&cli.StringFlag{Name: "event", Required: true},
		&cli.StringFlag{Name: "status", Required: true, Usage: "accepted, tentative or declined."},
		&cli.StringFlag{Name: "comment"},
	)
	return &cli.Command{
		Name:  "respond",
		Usage: "Answer an invitation.",
		Flags: flags,
		Action: withEnv(func(c *cli.Context, e *env) error {
			accountID, calendarID, err := selectCalendar(c, e)
			if err != nil {
				return err
			}
			resp := models.Response{Status: models.ParseAttendeeStatus(c.String("status")), Comment: c.String("comment")}
			return e.service.RespondToEvent(c.Context, e.cfg.User, accountID, calendarID, c.String("event"), resp)
		}),
	}
}

func acceptCommand() *cli.Command {
	return &cli.Command{
		Name:  "accept",
		Usage: "Accept an invitation.",
		Flags: append(calendarFlags(), &cli.StringFlag{Name: "event", Required: true}),
		Action: withEnv(func(c *cli.Context, e *env) error {
			accountID, calendarID, err := selectCalendar(c, e)
			if err != nil {
				return err
			}
			return e.service.AcceptEvent(c.Context, e.cfg.User, accountID, calendarID, c.String("event"))
		}),
	}
}

func unlinkCommand() *cli.Command {
	return &cli.Command{
		Name:  "unlink",
		Usage: "Remove a linked account.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Required: true},
			&cli.StringFlag{Name: "provider", Required: true},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			providerID, err := models.ParseProviderID(c.String("provider"))
			if err != nil {
				return err
			}
			return e.service.UnlinkAccount(c.Context, e.cfg.User, c.String("account"), providerID)
		}),
	}
}

func exportCommand() *cli.Command {
	flags := append(calendarFlags(), windowFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "out", Usage: "Write the .ics feed to this file instead of stdout."},
		&cli.BoolFlag{Name: "publish", Usage: "Upload events to the configured WebDAV collection."},
		&cli.StringFlag{Name: "collection", Usage: "Collection path, or a CalDAV calendar name to look up."},
	)
	return &cli.Command{
		Name:  "export",
		Usage: "Export a calendar's events as iCalendar.",
		Flags: flags,
		Action: withEnv(func(c *cli.Context, e *env) error {
			accountID, calendarID, err := selectCalendar(c, e)
			if err != nil {
				return err
			}
			from, to, err := window(c)
			if err != nil {
				return err
			}
			events, err := e.service.ListEvents(c.Context, e.cfg.User, accountID, calendarID, from, to)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				e.logger.Info("No events in window, nothing to export.")
				return nil
			}

			if c.Bool("publish") {
				return publish(c, e, events)
			}

			out := os.Stdout
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				out = f
			}
			return ical.Encode(out, events)
		}),
	}
}

func publish(c *cli.Context, e *env, events []models.CalendarEvent) error {
	if e.cfg.Export.URL == "" {
		return fmt.Errorf("CALMUX_EXPORT_URL is not set")
	}
	p, err := ical.NewPublisher(e.logger, e.cfg.Export.URL, e.cfg.Export.Username, e.cfg.Export.Password)
	if err != nil {
		return err
	}

	collection := c.String("collection")
	if !strings.Contains(collection, "/") {
		if collection, err = p.FindCollection(c.Context, collection); err != nil {
			return err
		}
	}
	n, err := p.Publish(c.Context, collection, events)
	if err != nil {
		return fmt.Errorf("published %d of %d events: %w", n, len(events), err)
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
