package models

// Metadata carries provider-specific fields the canonical model cannot
// represent. It is a closed union: only the types below implement it, and only
// the owning adapter reads them.
type Metadata interface {
	Provider() ProviderID
	metadata()
}

// GoogleMetadata is attached to events read from Google Calendar.
type GoogleMetadata struct {
	ICalUID       string
	ETag          string
	EventTimeZone string
}

func (GoogleMetadata) Provider() ProviderID { return ProviderGoogle }
func (GoogleMetadata) metadata()            {}

// OutlookMetadata keeps the zone strings exactly as Microsoft Graph sent them,
// so an update can send them back unchanged.
type OutlookMetadata struct {
	StartTimeZone string
	EndTimeZone   string
	// UnresolvedZone is set when a zone string had no IANA mapping and the
	// value was read as UTC instead.
	UnresolvedZone string
	// StartWire and EndWire hold the wall clock and zone as sent when the
	// sending zone itself was unresolvable. The instant read from them is
	// only the wall clock taken as UTC.
	StartWire WireTime
	EndWire   WireTime
}

func (OutlookMetadata) Provider() ProviderID { return ProviderOutlook }
func (OutlookMetadata) metadata()            {}

// GoogleMeta extracts Google metadata, if that is what m holds.
func GoogleMeta(m Metadata) (GoogleMetadata, bool) {
	switch v := m.(type) {
	case GoogleMetadata:
		return v, true
	case *GoogleMetadata:
		if v != nil {
			return *v, true
		}
	}
	return GoogleMetadata{}, false
}

// OutlookMeta extracts Outlook metadata, if that is what m holds.
func OutlookMeta(m Metadata) (OutlookMetadata, bool) {
	switch v := m.(type) {
	case OutlookMetadata:
		return v, true
	case *OutlookMetadata:
		if v != nil {
			return *v, true
		}
	}
	return OutlookMetadata{}, false
}
