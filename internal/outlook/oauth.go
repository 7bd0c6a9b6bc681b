package outlook

import (
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested when linking an account. offline_access yields a refresh token.
var Scopes = []string{"offline_access", "User.Read", "Calendars.ReadWrite"}

// OAuthConfig returns the OAuth2 config used to link and refresh Microsoft
// accounts. An empty tenant means the multi-tenant "common" endpoint.
func OAuthConfig(clientID, clientSecret, tenant string) (*oauth2.Config, error) {
	if clientID == "" {
		return nil, errors.New("OUTLOOK_CLIENT_ID is not set")
	}
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://localhost",
		Scopes:       Scopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}, nil
}
