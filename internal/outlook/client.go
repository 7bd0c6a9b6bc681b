// Package outlook is the Microsoft Graph calendar adapter. It talks to Graph
// v1.0 over plain HTTPS with a bearer token and maps the wire shapes onto the
// canonical models.
package outlook

import (
	"bytes"
	"calmux/internal/models"
	"calmux/internal/palette"
	"calmux/internal/provider"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const (
	providerName    = string(models.ProviderOutlook)
	msGraphBaseURL  = "https://graph.microsoft.com/v1.0"
	maxErrorBodyLen = 64 << 10
)

// Options tunes a CalendarClient. Zero values fall back to production defaults.
type Options struct {
	// BaseURL overrides the Graph root, e.g. for a test server.
	BaseURL string
	// HTTPClient is the base client; the bearer token is layered on top of its transport.
	HTTPClient *http.Client
	Palette    palette.Palette
	PageSize   int
	MaxPages   int
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = msGraphBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
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

// CalendarClient is the Microsoft Graph adapter for one linked account.
type CalendarClient struct {
	http    *http.Client
	logger  *slog.Logger
	account models.Account
	opts    Options
}

var _ provider.Provider = (*CalendarClient)(nil)

// NewClient creates a Graph client authorized with the account's live access token.
func NewClient(logger *slog.Logger, acct models.Account, opts Options) *CalendarClient {
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

	return &CalendarClient{
		http:    client,
		logger:  logger.With("provider", providerName, "account", acct.ID),
		account: acct,
		opts:    opts,
	}
}

// Constructor adapts NewClient to the provider registry.
func Constructor(logger *slog.Logger, opts Options) provider.Constructor {
	return func(_ context.Context, acct models.Account) (provider.Provider, error) {
		return NewClient(logger, acct, opts), nil
	}
}

// GraphError is the error body Graph returns with a non-2xx status.
type GraphError struct {
	Status  int
	Code    string
	Message string
}

func (e *GraphError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph returned status %d", e.Status)
	}
	return fmt.Sprintf("graph returned status %d: %s", e.Status, e.Message)
}

// ErrorCode exposes the Graph error code, or the HTTP status when the body had none.
func (e *GraphError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return strconv.Itoa(e.Status)
}

// do sends one request. path is relative to the Graph root unless it is
// already absolute, as @odata.nextLink values are. out may be nil.
func (c *CalendarClient) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		endpoint = c.opts.BaseURL + path
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readGraphError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readGraphError(resp *http.Response) error {
	gerr := &GraphError{Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &envelope); err == nil {
		gerr.Code = envelope.Error.Code
		gerr.Message = envelope.Error.Message
	}
	return gerr
}

// Profile identifies the signed-in Graph user.
type Profile struct {
	Email string
	Name  string
}

// Me reads the profile of the account's user.
func (c *CalendarClient) Me(ctx context.Context) (Profile, error) {
	var me struct {
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := c.do(ctx, http.MethodGet, "/me?$select=displayName,mail,userPrincipalName", nil, &me); err != nil {
		return Profile{}, wrap("me", err)
	}
	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return Profile{Email: email, Name: me.DisplayName}, nil
}
