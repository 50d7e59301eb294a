// Package locale provides the locale-aware pieces of catalog queries:
// localized country names, collation for display order and the folding
// used by free-text search.
package locale

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Localizer names and orders things for one display language. It is safe
// for concurrent use.
type Localizer struct {
	tag     language.Tag
	regions display.Namer
}

func New(tag language.Tag) *Localizer {
	return &Localizer{
		tag:     tag,
		regions: display.Regions(tag),
	}
}

// Parse builds a Localizer from a BCP 47 tag such as "de-CH".
func Parse(tag string) (*Localizer, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return nil, err
	}
	return New(t), nil
}

// Tag returns the display language.
func (l *Localizer) Tag() language.Tag {
	return l.tag
}

// CountryName returns the localized name of a two-letter country code.
// Unknown codes are returned unchanged.
func (l *Localizer) CountryName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := l.regions.Name(region); name != "" {
		return name
	}
	return code
}

// Collator returns a case-insensitive collator for the display language.
// Collators are not safe for concurrent use; take one per sort.
func (l *Localizer) Collator() *collate.Collator {
	return collate.New(l.tag, collate.IgnoreCase)
}

// Fold strips diacritics and case so "Zürich" and "zurich" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// ContainsFolded reports whether needle, already folded, occurs in the
// folded form of haystack.
func ContainsFolded(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), needle)
}
