package provider

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"errors"
	"testing"
)

type stubProvider struct{ Provider }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var got models.Account
	err := r.Register(models.ProviderGoogle, func(ctx context.Context, acct models.Account) (Provider, error) {
		got = acct
		return stubProvider{}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(models.ProviderGoogle, nil); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	acct := models.Account{ID: "a1", ProviderID: models.ProviderGoogle, AccessToken: "tok"}
	if _, err := r.New(context.Background(), acct); err != nil {
		t.Fatalf("New: %v", err)
	}
	if got.AccessToken != "tok" {
		t.Fatalf("constructor did not receive the account")
	}

	if _, err := r.New(context.Background(), models.Account{ProviderID: models.ProviderOutlook}); !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError for unregistered provider, got %v", err)
	}
}

func TestRegistryWrapsConstructorErrors(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	_ = r.Register(models.ProviderOutlook, func(context.Context, models.Account) (Provider, error) {
		return nil, boom
	})

	_, err := r.New(context.Background(), models.Account{ID: "a2", ProviderID: models.ProviderOutlook})
	var pe *calerr.ProviderError
	if !errors.As(err, &pe) || pe.Op != "connect" || pe.Context["account"] != "a2" {
		t.Fatalf("expected wrapped connect error, got %v", err)
	}
}

func TestCheckResponse(t *testing.T) {
	withComments := Capabilities{ResponseComment: true}
	without := Capabilities{}

	resp := models.Response{Status: models.StatusDeclined, Comment: "conflict"}
	if err := withComments.CheckResponse(resp); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := without.CheckResponse(resp); !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if err := without.CheckResponse(models.Response{Status: models.StatusAccepted}); err != nil {
		t.Fatalf("comment-free response must pass: %v", err)
	}
	if err := withComments.CheckResponse(models.Response{Status: models.StatusUnknown}); !calerr.IsValidationError(err) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}
