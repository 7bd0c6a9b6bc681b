package models

import "time"

// Account is a linked external calendar account. AccessToken is filled by the
// account resolver for the duration of one call and never stored.
type Account struct {
	ID                string
	UserID            string
	ProviderID        ProviderID
	ProviderAccountID string
	Email             string
	Name              string
	AccessToken       string
	CreatedAt         time.Time
}

// DisplayName labels the account in listings.
func (a Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// DefaultSelection is the user's default account and calendar. Both fields are
// always written together.
type DefaultSelection struct {
	AccountID  string
	CalendarID string
}

// IsZero reports whether no default is recorded.
func (d DefaultSelection) IsZero() bool {
	return d.AccountID == "" && d.CalendarID == ""
}

// User is the owner of linked accounts.
type User struct {
	ID       string
	Defaults DefaultSelection
}
