// Package tz validates IANA zone identifiers and maps legacy Windows zone
// names, as returned by Microsoft services, onto their IANA equivalents.
package tz

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// IsValid reports whether name is a loadable IANA zone identifier.
func IsValid(name string) bool {
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// Resolve returns name unchanged when it is a valid IANA zone, otherwise the
// IANA zone mapped from a Windows zone name. ok is false when the zone is
// unknown; callers must not substitute UTC without recording it.
func Resolve(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if IsValid(name) {
		return name, true
	}
	if iana, found := windowsToIANA[name]; found {
		return iana, true
	}
	if iana, found := windowsAliases[name]; found {
		return iana, true
	}
	return "", false
}

// Location is Resolve followed by time.LoadLocation.
func Location(name string) (*time.Location, bool) {
	iana, ok := Resolve(name)
	if !ok {
		return nil, false
	}
	loc, err := time.LoadLocation(iana)
	if err != nil {
		return nil, false
	}
	return loc, true
}

// WindowsName returns the Windows zone name whose primary IANA mapping is iana.
func WindowsName(iana string) (string, bool) {
	name, ok := ianaToWindows[iana]
	return name, ok
}

// Same reports whether two zone strings resolve to the same IANA zone.
func Same(a, b string) bool {
	ra, okA := Resolve(a)
	rb, okB := Resolve(b)
	return okA && okB && ra == rb
}

var ianaToWindows = func() map[string]string {
	m := make(map[string]string, len(windowsToIANA))
	for win, iana := range windowsToIANA {
		m[iana] = win
	}
	return m
}()
