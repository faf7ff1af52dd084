// Package teams resolves display metadata for clubs and national teams from
// free-text event names. Matching is a best-effort substring heuristic, not
// an identity lookup: unknown names always get a stable fallback.
package teams

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Placeholder is the code used when nothing can be derived from a name.
const Placeholder = "TBC"

// neutralColor is used for unknown teams.
const neutralColor = "#6B7280"

// Meta is the display metadata of one team.
type Meta struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Color string `json:"color"`
	Flag  string `json:"flag,omitempty"`
	Known bool   `json:"known"`
}

type entry struct {
	name    string
	code    string
	color   string
	flag    string
	aliases []string
}

var table = []entry{
	{"Liverpool", "LIV", "#C8102E", "", []string{"liverpool", "lfc"}},
	{"Everton", "EVE", "#003399", "", []string{"everton"}},
	{"Arsenal", "ARS", "#EF0107", "", []string{"arsenal"}},
	{"Chelsea", "CHE", "#034694", "", []string{"chelsea"}},
	{"Manchester United", "MUN", "#DA291C", "", []string{"manchester united", "man united", "man utd"}},
	{"Manchester City", "MCI", "#6CABDD", "", []string{"manchester city", "man city"}},
	{"Tottenham Hotspur", "TOT", "#132257", "", []string{"tottenham", "spurs"}},
	{"Newcastle United", "NEW", "#241F20", "", []string{"newcastle"}},
	{"Aston Villa", "AVL", "#670E36", "", []string{"aston villa"}},
	{"West Ham United", "WHU", "#7A263A", "", []string{"west ham"}},
	{"Real Madrid", "RMA", "#FEBE10", "", []string{"real madrid"}},
	{"Barcelona", "BAR", "#A50044", "", []string{"barcelona", "barca"}},
	{"Atlético Madrid", "ATM", "#CB3524", "", []string{"atletico madrid"}},
	{"Bayern Munich", "BAY", "#DC052D", "", []string{"bayern"}},
	{"Paris Saint-Germain", "PSG", "#004170", "", []string{"paris saint-germain", "psg"}},
	{"England", "ENG", "#FFFFFF", "🏴󠁧󠁢󠁥󠁮󠁧󠁿", []string{"england"}},
	{"Scotland", "SCO", "#005EB8", "🏴󠁧󠁢󠁳󠁣󠁴󠁿", []string{"scotland"}},
	{"Wales", "WAL", "#C8102E", "🏴󠁧󠁢󠁷󠁬󠁳󠁿", []string{"wales"}},
	{"France", "FRA", "#002395", "🇫🇷", []string{"france"}},
	{"Germany", "GER", "#000000", "🇩🇪", []string{"germany"}},
	{"Spain", "ESP", "#AA151B", "🇪🇸", []string{"spain"}},
	{"Portugal", "POR", "#006600", "🇵🇹", []string{"portugal"}},
	{"Netherlands", "NED", "#FF6600", "🇳🇱", []string{"netherlands", "holland"}},
	{"Italy", "ITA", "#0066CC", "🇮🇹", []string{"italy"}},
	{"Brazil", "BRA", "#009C3B", "🇧🇷", []string{"brazil", "brasil"}},
	{"Argentina", "ARG", "#75AADB", "🇦🇷", []string{"argentina"}},
	{"United States", "USA", "#002868", "🇺🇸", []string{"united states", "usa", "usmnt"}},
	{"Mexico", "MEX", "#006847", "🇲🇽", []string{"mexico"}},
	{"Canada", "CAN", "#FF0000", "🇨🇦", []string{"canada"}},
	{"Japan", "JPN", "#000080", "🇯🇵", []string{"japan"}},
	{"Morocco", "MAR", "#C1272D", "🇲🇦", []string{"morocco"}},
	{"Côte d'Ivoire", "CIV", "#F77F00", "🇨🇮", []string{"cote d'ivoire", "ivory coast"}},
	{"Türkiye", "TUR", "#E30A17", "🇹🇷", []string{"turkiye", "turkey"}},
}

type alias struct {
	key string
	idx int
}

var (
	aliasOnce sync.Once
	aliases   []alias
)

// sortedAliases orders aliases longest first so "manchester city" wins over
// a shorter alias that happens to be a substring.
func sortedAliases() []alias {
	aliasOnce.Do(func() {
		for i, e := range table {
			for _, a := range e.aliases {
				aliases = append(aliases, alias{key: Fold(a), idx: i})
			}
		}
		sort.SliceStable(aliases, func(i, j int) bool {
			return len(aliases[i].key) > len(aliases[j].key)
		})
	})
	return aliases
}

// Fold lower-cases s and strips diacritics so "Atlético" matches "atletico".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(strings.TrimSpace(out))
}

// Lookup resolves a team name. Unknown names get a derived code and a
// neutral colour.
func Lookup(name string) Meta {
	folded := Fold(name)
	if folded != "" {
		for _, a := range sortedAliases() {
			if strings.Contains(folded, a.key) {
				e := table[a.idx]
				return Meta{Name: e.name, Code: e.code, Color: e.color, Flag: e.flag, Known: true}
			}
		}
	}
	return Meta{
		Name:  DisplayName(name),
		Code:  FallbackCode(name),
		Color: neutralColor,
	}
}

// FallbackCode derives a code of up to three letters: the uppercase letters
// of name when there are at least two, otherwise its first three letters,
// otherwise Placeholder.
func FallbackCode(name string) string {
	var upper, letters []rune
	for _, r := range name {
		if !unicode.IsLetter(r) {
			continue
		}
		letters = append(letters, r)
		if unicode.IsUpper(r) {
			upper = append(upper, r)
		}
	}
	switch {
	case len(upper) >= 2:
		return string(upper[:min(3, len(upper))])
	case len(letters) > 0:
		return strings.ToUpper(string(letters[:min(3, len(letters))]))
	default:
		return Placeholder
	}
}

// DisplayName title-cases a free-text team name.
func DisplayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return Placeholder
	}
	return cases.Title(language.English).String(name)
}

var fixtureSeparators = []string{" vs. ", " vs ", " v ", " - "}

// SplitFixture splits an event name of the form "Home vs Away".
func SplitFixture(eventName string) (home, away string, ok bool) {
	lower := strings.ToLower(eventName)
	if len(lower) != len(eventName) {
		lower = eventName
	}
	for _, sep := range fixtureSeparators {
		if i := strings.Index(lower, sep); i >= 0 {
			home = strings.TrimSpace(eventName[:i])
			away = strings.TrimSpace(eventName[i+len(sep):])
			if home != "" && away != "" {
				return home, away, true
			}
		}
	}
	return strings.TrimSpace(eventName), "", false
}

// Fixture is the display metadata of both sides of an event.
type Fixture struct {
	Event string `json:"event"`
	Home  Meta   `json:"home"`
	Away  *Meta  `json:"away,omitempty"`
}

// LookupFixture resolves both teams of an event name. Names that are not
// fixtures resolve as a single home side.
func LookupFixture(eventName string) Fixture {
	home, away, ok := SplitFixture(eventName)
	f := Fixture{Event: eventName, Home: Lookup(home)}
	if ok {
		m := Lookup(away)
		f.Away = &m
	}
	return f
}
