package storage

import (
	"calmux/internal/calerr"
	"calmux/internal/models"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// openTestStorage opens a private in-memory database for one test.
func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open("file:" + name + "?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func linkTestAccount(t *testing.T, s *Storage, userID, providerAccountID string, createdAt time.Time) models.Account {
	t.Helper()

	acct := models.Account{
		UserID:            userID,
		ProviderID:        models.ProviderGoogle,
		ProviderAccountID: providerAccountID,
		Email:             providerAccountID + "@example.com",
		CreatedAt:         createdAt,
	}
	if err := s.SaveAccount(context.Background(), &acct, &oauth2.Token{AccessToken: "at-" + providerAccountID, RefreshToken: "rt"}); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	return acct
}

func TestAccountsNewestFirst(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := linkTestAccount(t, s, "u1", "alice", base)
	b := linkTestAccount(t, s, "u1", "bob", base.Add(time.Hour))
	linkTestAccount(t, s, "u2", "carol", base.Add(2*time.Hour))

	accounts, err := s.ListAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != b.ID || accounts[1].ID != a.ID {
		t.Fatalf("expected [bob, alice], got %+v", accounts)
	}
	if !accounts[1].CreatedAt.Equal(base) {
		t.Fatalf("created_at not preserved: %v", accounts[1].CreatedAt)
	}

	got, err := s.GetAccount(ctx, "u1", a.ID)
	if err != nil || got.Email != "alice@example.com" || got.ProviderID != models.ProviderGoogle {
		t.Fatalf("GetAccount = %+v, %v", got, err)
	}
	if _, err := s.GetAccount(ctx, "u2", a.ID); !calerr.IsNotFoundError(err) {
		t.Fatalf("accounts must be scoped to their user, got %v", err)
	}
}

func TestSaveAccountRelinksSameIdentity(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	first := linkTestAccount(t, s, "u1", "alice", time.Now().UTC())
	again := models.Account{UserID: "u1", ProviderID: models.ProviderGoogle, ProviderAccountID: "alice", Email: "alice@new.example.com"}
	if err := s.SaveAccount(ctx, &again, &oauth2.Token{AccessToken: "fresh"}); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("relinking must keep the account id: %s != %s", again.ID, first.ID)
	}

	accounts, _ := s.ListAccounts(ctx, "u1")
	if len(accounts) != 1 || accounts[0].Email != "alice@new.example.com" {
		t.Fatalf("unexpected accounts after relink: %+v", accounts)
	}
	tok, err := s.LoadToken(ctx, first.ID)
	if err != nil || tok.AccessToken != "fresh" {
		t.Fatalf("LoadToken = %+v, %v", tok, err)
	}
}

func TestTokens(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	acct := linkTestAccount(t, s, "u1", "alice", time.Now().UTC())

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveToken(ctx, acct.ID, &oauth2.Token{AccessToken: "new", RefreshToken: "rt2", Expiry: expiry}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	tok, err := s.LoadToken(ctx, acct.ID)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if tok.AccessToken != "new" || tok.RefreshToken != "rt2" || !tok.Expiry.Equal(expiry) {
		t.Fatalf("unexpected token: %+v", tok)
	}

	if _, err := s.LoadToken(ctx, "missing"); !calerr.IsNotFoundError(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if err := s.SaveToken(ctx, "missing", tok); !calerr.IsNotFoundError(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateDefaults(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	acct := linkTestAccount(t, s, "u1", "alice", time.Now().UTC())

	next, err := s.UpdateDefaults(ctx, "u1", func(cur models.DefaultSelection, accounts []models.Account) (models.DefaultSelection, error) {
		if !cur.IsZero() {
			t.Errorf("expected no recorded default, got %+v", cur)
		}
		if len(accounts) != 1 {
			t.Errorf("expected the user's accounts, got %d", len(accounts))
		}
		return models.DefaultSelection{AccountID: acct.ID, CalendarID: "primary"}, nil
	})
	if err != nil {
		t.Fatalf("UpdateDefaults: %v", err)
	}
	if next.AccountID != acct.ID || next.CalendarID != "primary" {
		t.Fatalf("unexpected pair: %+v", next)
	}

	u, err := s.GetUser(ctx, "u1")
	if err != nil || u.Defaults != next {
		t.Fatalf("GetUser = %+v, %v", u, err)
	}

	// A failing update leaves the pair untouched.
	_, err = s.UpdateDefaults(ctx, "u1", func(models.DefaultSelection, []models.Account) (models.DefaultSelection, error) {
		return models.DefaultSelection{AccountID: "x"}, calerr.Invalid("calendar", "nope")
	})
	if !calerr.IsValidationError(err) {
		t.Fatalf("expected the callback error, got %v", err)
	}
	if u, _ := s.GetUser(ctx, "u1"); u.Defaults != next {
		t.Fatalf("pair changed after a failed update: %+v", u.Defaults)
	}
}

func TestUpdateDefaultsConcurrentWritersKeepPairConsistent(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	if err := s.EnsureUser(ctx, "u1"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_, err := s.UpdateDefaults(ctx, "u1", func(models.DefaultSelection, []models.Account) (models.DefaultSelection, error) {
				return models.DefaultSelection{AccountID: "acct-" + id, CalendarID: "cal-" + id}, nil
			})
			if err != nil {
				t.Errorf("UpdateDefaults: %v", err)
			}
		}(i)
	}
	wg.Wait()

	u, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if strings.TrimPrefix(u.Defaults.AccountID, "acct-") != strings.TrimPrefix(u.Defaults.CalendarID, "cal-") {
		t.Fatalf("pair written by two different writers: %+v", u.Defaults)
	}
}

func TestDeleteAccountRepairsDefault(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := linkTestAccount(t, s, "u1", "alice", base)
	newest := linkTestAccount(t, s, "u1", "bob", base.Add(time.Hour))
	_, err := s.UpdateDefaults(ctx, "u1", func(models.DefaultSelection, []models.Account) (models.DefaultSelection, error) {
		return models.DefaultSelection{AccountID: old.ID, CalendarID: "alice-primary"}, nil
	})
	if err != nil {
		t.Fatalf("UpdateDefaults: %v", err)
	}

	if _, err := s.DeleteAccount(ctx, "u1", old.ID, models.ProviderOutlook); !calerr.IsNotFoundError(err) {
		t.Fatalf("provider must match, got %v", err)
	}

	next, err := s.DeleteAccount(ctx, "u1", old.ID, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if next.AccountID != newest.ID || next.CalendarID != "" {
		t.Fatalf("expected default moved to the newest account with no calendar, got %+v", next)
	}

	next, err = s.DeleteAccount(ctx, "u1", newest.ID, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if !next.IsZero() {
		t.Fatalf("expected default unset, got %+v", next)
	}
	if u, _ := s.GetUser(ctx, "u1"); !u.Defaults.IsZero() {
		t.Fatalf("stored default not cleared: %+v", u.Defaults)
	}
}
