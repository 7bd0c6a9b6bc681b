package accounts

import (
	"calmux/internal/models"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
)

// TokenStore persists OAuth tokens per account.
type TokenStore interface {
	LoadToken(ctx context.Context, accountID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, accountID string, tok *oauth2.Token) error
}

// OAuthTokens is the TokenProvider backed by stored OAuth tokens. Expired
// tokens are refreshed through the provider's OAuth config and written back.
type OAuthTokens struct {
	store   TokenStore
	configs map[models.ProviderID]*oauth2.Config
	logger  *slog.Logger
}

var _ TokenProvider = (*OAuthTokens)(nil)

// NewOAuthTokens creates an OAuthTokens. configs holds one OAuth config per
// provider that can be refreshed.
func NewOAuthTokens(logger *slog.Logger, store TokenStore, configs map[models.ProviderID]*oauth2.Config) *OAuthTokens {
	return &OAuthTokens{store: store, configs: configs, logger: logger}
}

// AccessToken returns a valid access token for acct.
func (o *OAuthTokens) AccessToken(ctx context.Context, acct models.Account) (string, error) {
	config, ok := o.configs[acct.ProviderID]
	if !ok || config == nil {
		return "", fmt.Errorf("no OAuth client configured for provider %s", acct.ProviderID)
	}

	token, err := o.store.LoadToken(ctx, acct.ID)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}

	newToken, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	if newToken.AccessToken != token.AccessToken || newToken.RefreshToken != token.RefreshToken {
		if err := o.store.SaveToken(ctx, acct.ID, newToken); err != nil {
			return "", fmt.Errorf("save refreshed token: %w", err)
		}
		o.logger.Debug("Refreshed access token", "provider", acct.ProviderID, "account", acct.ID)
	}
	return newToken.AccessToken, nil
}
