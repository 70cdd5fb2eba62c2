package ics

import (
	"strings"
	"time"
)

// Common Windows timezone names (as emitted by Outlook/Exchange feeds)
// mapped to IANA names.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":        "America/Los_Angeles",
	"Mountain Standard Time":       "America/Denver",
	"US Mountain Standard Time":    "America/Phoenix",
	"Central Standard Time":        "America/Chicago",
	"Eastern Standard Time":        "America/New_York",
	"Atlantic Standard Time":       "America/Halifax",
	"Alaskan Standard Time":        "America/Anchorage",
	"Hawaiian Standard Time":       "Pacific/Honolulu",
	"GMT Standard Time":            "Europe/London",
	"W. Europe Standard Time":      "Europe/Berlin",
	"Romance Standard Time":        "Europe/Paris",
	"Central Europe Standard Time": "Europe/Budapest",
	"China Standard Time":          "Asia/Shanghai",
	"Tokyo Standard Time":          "Asia/Tokyo",
	"Korea Standard Time":          "Asia/Seoul",
	"India Standard Time":          "Asia/Kolkata",
	"AUS Eastern Standard Time":    "Australia/Sydney",
	"UTC":                          "UTC",
}

// resolveTZID loads the location named by a TZID parameter. It accepts
// IANA names, quoted names, Mozilla-style "/mozilla.org/.../Zone" prefixes
// and common Windows names.
func resolveTZID(tzid string) (*time.Location, error) {
	name := strings.Trim(strings.TrimSpace(tzid), `"`)
	if iana, ok := windowsToIANA[name]; ok {
		name = iana
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}

	// Some producers prefix the zone with a vendor path.
	parts := strings.Split(strings.TrimPrefix(name, "/"), "/")
	for i := 1; i < len(parts); i++ {
		if loc, err := time.LoadLocation(strings.Join(parts[i:], "/")); err == nil {
			return loc, nil
		}
	}
	return time.LoadLocation(name)
}
