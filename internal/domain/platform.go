package domain

import "strings"

// Platform is the resale marketplace a sale went through. The set is open:
// values outside the known constants are carried through unchanged.
type Platform string

const (
	PlatformLiveFootballTickets Platform = "LiveFootballTickets"
	PlatformTixstock            Platform = "Tixstock"
	PlatformFanpass             Platform = "Fanpass"
	PlatformLiveTicketGroup     Platform = "LiveTicketGroup"
)

// KnownPlatforms lists the marketplaces the dashboard has labels for.
var KnownPlatforms = []Platform{
	PlatformLiveFootballTickets,
	PlatformTixstock,
	PlatformFanpass,
	PlatformLiveTicketGroup,
}

var platformCodes = map[Platform]string{
	PlatformLiveFootballTickets: "LFT",
	PlatformTixstock:            "TIX",
	PlatformFanpass:             "FP",
	PlatformLiveTicketGroup:     "LTG",
}

var platformLabels = map[Platform]string{
	PlatformLiveFootballTickets: "Live Football Tickets",
	PlatformTixstock:            "Tixstock",
	PlatformFanpass:             "Fanpass",
	PlatformLiveTicketGroup:     "Live Ticket Group",
}

// platformAliases maps lower-cased short codes and canonical names to the
// canonical value.
var platformAliases = func() map[string]Platform {
	m := map[string]Platform{
		"ts":                      PlatformTixstock,
		"livefootballtickets.com": PlatformLiveFootballTickets,
	}
	for p, code := range platformCodes {
		m[strings.ToLower(code)] = p
		m[strings.ToLower(string(p))] = p
	}
	return m
}()

// ParsePlatform resolves a short code (LFT) or canonical name
// (LiveFootballTickets) case-insensitively. Unknown non-empty values are
// returned as-is so new marketplaces need no code change here. It reports
// false only for blank input.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if p, ok := platformAliases[strings.ToLower(s)]; ok {
		return p, true
	}
	return Platform(s), true
}

// ShortCode returns the marketplace short code, or the raw value for
// platforms without one.
func (p Platform) ShortCode() string {
	if c, ok := platformCodes[p]; ok {
		return c
	}
	return string(p)
}

// Label returns the display label.
func (p Platform) Label() string {
	if l, ok := platformLabels[p]; ok {
		return l
	}
	return string(p)
}

// Known reports whether p is one of the built-in marketplaces.
func (p Platform) Known() bool {
	_, ok := platformCodes[p]
	return ok
}
