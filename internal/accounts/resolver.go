// Package accounts resolves a user's linked accounts and attaches a live
// access token to each one on demand.
package accounts

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"errors"
	"log/slog"
)

// Store is the linked-account store the resolver reads, and the owner of the
// default pair it repairs.
type Store interface {
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	UpdateDefaults(ctx context.Context, userID string, fn func(cur models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error)) (models.DefaultSelection, error)
}

// TokenProvider returns a currently valid access token for an account,
// refreshing it first when needed.
type TokenProvider interface {
	AccessToken(ctx context.Context, acct models.Account) (string, error)
}

// Resolver answers which accounts a user has and which one is the default.
type Resolver struct {
	store  Store
	tokens TokenProvider
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger, store Store, tokens TokenProvider) *Resolver {
	return &Resolver{store: store, tokens: tokens, logger: logger}
}

// Linked lists the user's accounts, newest first, without tokens.
func (r *Resolver) Linked(ctx context.Context, userID string) ([]models.Account, error) {
	accounts, err := r.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Authorize returns acct with a fresh access token attached. Token failures
// are AuthErrors, never ProviderErrors.
func (r *Resolver) Authorize(ctx context.Context, acct models.Account) (models.Account, error) {
	tok, err := r.tokens.AccessToken(ctx, acct)
	if err != nil {
		var ae *calerr.AuthError
		if errors.As(err, &ae) {
			return models.Account{}, err
		}
		return models.Account{}, &calerr.AuthError{Provider: string(acct.ProviderID), AccountID: acct.ID, Err: err}
	}
	acct.AccessToken = tok
	return acct, nil
}

// GetAccounts lists the user's accounts with fresh tokens attached. It fails
// on the first account whose token cannot be obtained.
func (r *Resolver) GetAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	linked, err := r.Linked(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(linked))
	for _, acct := range linked {
		authorized, err := r.Authorize(ctx, acct)
		if err != nil {
			return nil, err
		}
		out = append(out, authorized)
	}
	return out, nil
}

// GetDefaultAccount returns the recorded default account when it is still
// linked. Otherwise the newest account becomes the default, with its calendar
// cleared, in the same transaction that read the old pair.
func (r *Resolver) GetDefaultAccount(ctx context.Context, userID string) (models.Account, error) {
	acct, err := r.defaultAccount(ctx, userID)
	if err != nil {
		return models.Account{}, err
	}
	return r.Authorize(ctx, acct)
}

func (r *Resolver) defaultAccount(ctx context.Context, userID string) (models.Account, error) {
	var chosen models.Account
	_, err := r.store.UpdateDefaults(ctx, userID, func(cur models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error) {
		if len(accounts) == 0 {
			return cur, &calerr.NotFoundError{Resource: "account", ID: userID}
		}
		for _, a := range accounts {
			if a.ID == cur.AccountID {
				chosen = a
				return cur, nil
			}
		}
		chosen = accounts[0]
		r.logger.Info("Recording default account", "user", userID, "account", chosen.ID, "previous", cur.AccountID)
		return models.DefaultSelection{AccountID: chosen.ID}, nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return chosen, nil
}
