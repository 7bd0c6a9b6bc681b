package models

import (
	"calmux/internal/calerr"
	"calmux/internal/tz"
	"fmt"
	"time"
)

// Wire layouts shared by both services.
const (
	DateLayout    = "2006-01-02"
	LocalLayout   = "2006-01-02T15:04:05"
	InstantLayout = time.RFC3339
)

// TemporalKind tags the variant held by a Temporal.
type TemporalKind uint8

const (
	KindUnset TemporalKind = iota
	KindPlainDate
	KindInstant
	KindZoned
)

func (k TemporalKind) String() string {
	switch k {
	case KindPlainDate:
		return "date"
	case KindInstant:
		return "instant"
	case KindZoned:
		return "zoned"
	default:
		return "unset"
	}
}

// Temporal is a calendar date, an absolute instant, or an instant bound to an
// IANA zone. The zero value is unset.
type Temporal struct {
	kind TemporalKind
	t    time.Time
	zone string
}

// PlainDate builds a date with no time-of-day and no zone, as used by all-day events.
func PlainDate(year int, month time.Month, day int) Temporal {
	return Temporal{kind: KindPlainDate, t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Temporal {
	y, m, d := t.Date()
	return PlainDate(y, m, d)
}

// Instant builds an absolute point in time with no zone attached.
func Instant(t time.Time) Temporal {
	return Temporal{kind: KindInstant, t: t.UTC()}
}

// Zoned binds t to the IANA zone name.
func Zoned(t time.Time, zone string) (Temporal, error) {
	loc, err := loadZone(zone)
	if err != nil {
		return Temporal{}, err
	}
	return Temporal{kind: KindZoned, t: t.In(loc), zone: zone}, nil
}

// ZonedLocal interprets a wall-clock string in the IANA zone name.
func ZonedLocal(local, zone string) (Temporal, error) {
	loc, err := loadZone(zone)
	if err != nil {
		return Temporal{}, err
	}
	t, err := time.ParseInLocation(LocalLayout, local, loc)
	if err != nil {
		return Temporal{}, calerr.Invalid("dateTime", "%q is not a local date-time", local)
	}
	return Temporal{kind: KindZoned, t: t, zone: zone}, nil
}

func loadZone(zone string) (*time.Location, error) {
	if !tz.IsValid(zone) {
		return nil, calerr.Invalid("timeZone", "%q is not an IANA zone", zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, calerr.Invalid("timeZone", "%q: %v", zone, err)
	}
	return loc, nil
}

func (v Temporal) Kind() TemporalKind { return v.kind }
func (v Temporal) IsZero() bool       { return v.kind == KindUnset }
func (v Temporal) IsPlainDate() bool  { return v.kind == KindPlainDate }

// Zone is the IANA zone of a zoned value, empty otherwise.
func (v Temporal) Zone() string { return v.zone }

// Date returns the calendar date. For instants it is the UTC date and for
// zoned values the date in their own zone.
func (v Temporal) Date() (int, time.Month, int) { return v.t.Date() }

// Time returns the absolute time. A plain date yields midnight UTC.
func (v Temporal) Time() time.Time { return v.t }

// Resolve places the value on the absolute timeline, reading a plain date as
// midnight in loc.
func (v Temporal) Resolve(loc *time.Location) time.Time {
	if v.kind != KindPlainDate {
		return v.t
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := v.t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Compare orders v and o once both are resolved in loc.
func (v Temporal) Compare(o Temporal, loc *time.Location) int {
	return v.Resolve(loc).Compare(o.Resolve(loc))
}

// Equal reports identical variant, instant and zone.
func (v Temporal) Equal(o Temporal) bool {
	return v.kind == o.kind && v.zone == o.zone && v.t.Equal(o.t)
}

func (v Temporal) String() string {
	switch v.kind {
	case KindPlainDate:
		return v.t.Format(DateLayout)
	case KindInstant:
		return v.t.Format(InstantLayout)
	case KindZoned:
		return v.t.Format(LocalLayout) + " " + v.zone
	default:
		return ""
	}
}

// WireTime is the service-neutral serialized form of a Temporal.
type WireTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// ToWire serializes the value: a date-only string, a UTC date-time, or a local
// date-time paired with its zone.
func (v Temporal) ToWire() WireTime {
	switch v.kind {
	case KindPlainDate:
		return WireTime{Date: v.t.Format(DateLayout)}
	case KindInstant:
		return WireTime{DateTime: v.t.UTC().Format(InstantLayout)}
	case KindZoned:
		return WireTime{DateTime: v.t.Format(LocalLayout), TimeZone: v.zone}
	default:
		return WireTime{}
	}
}

// FromWire parses a WireTime. A date-time without a zone must carry an offset
// and becomes an Instant; with a zone it becomes a ZonedDateTime whether or not
// the string also carries an offset.
func FromWire(w WireTime) (Temporal, error) {
	switch {
	case w.Date != "":
		d, err := time.Parse(DateLayout, w.Date)
		if err != nil {
			return Temporal{}, calerr.Invalid("date", "%q is not a date", w.Date)
		}
		return DateOf(d), nil
	case w.DateTime == "":
		return Temporal{}, calerr.Invalid("dateTime", "empty wire time")
	case w.TimeZone == "":
		t, err := time.Parse(time.RFC3339Nano, w.DateTime)
		if err != nil {
			return Temporal{}, calerr.Invalid("dateTime", "%q has no zone and no offset", w.DateTime)
		}
		return Instant(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, w.DateTime); err == nil {
		return Zoned(t, w.TimeZone)
	}
	return ZonedLocal(w.DateTime, w.TimeZone)
}

// MustFromWire is FromWire for literals known to be valid.
func MustFromWire(w WireTime) Temporal {
	v, err := FromWire(w)
	if err != nil {
		panic(fmt.Sprintf("models: %v", err))
	}
	return v
}
