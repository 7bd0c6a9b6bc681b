package models

import (
	"calmux/internal/calerr"
	"strings"
)

// ProviderID names an external calendar service.
type ProviderID string

const (
	ProviderGoogle  ProviderID = "google"
	ProviderOutlook ProviderID = "outlook"
)

// Providers lists every supported service.
var Providers = []ProviderID{ProviderGoogle, ProviderOutlook}

// ParseProviderID accepts a provider name in any case.
func ParseProviderID(s string) (ProviderID, error) {
	switch p := ProviderID(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderOutlook:
		return p, nil
	}
	return "", calerr.Invalid("provider", "unsupported provider %q", s)
}

// Calendar is a container of events on one linked account.
type Calendar struct {
	ID          string
	ProviderID  ProviderID
	AccountID   string
	Name        string
	Description string
	TimeZone    string
	Primary     bool
	ReadOnly    bool
	Color       string
}

// CalendarInput carries the fields to set on create or update. Nil fields are left unchanged.
type CalendarInput struct {
	Name        *string
	Description *string
	TimeZone    *string
	Color       *string
}

// Validate checks the input for a create call, which needs a name.
func (in CalendarInput) Validate() error {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return calerr.Invalid("name", "calendar name is required")
	}
	return in.ValidatePatch()
}

// ValidatePatch checks the input for an update call.
func (in CalendarInput) ValidatePatch() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return calerr.Invalid("name", "calendar name cannot be blank")
	}
	if in.TimeZone != nil && *in.TimeZone != "" {
		if _, err := loadZone(*in.TimeZone); err != nil {
			return err
		}
	}
	return nil
}
