// Package filter is the closed set of predicates a catalog query can be
// narrowed with. Filters passed together are combined with logical AND.
package filter

import (
	"fmt"
	"strings"

	"server-catalog/pkg/locale"
	"server-catalog/pkg/models"
)

// Filter is a predicate over a logical server. The set of implementations
// is closed; use the constructors in this package.
type Filter interface {
	Match(s *models.Server) bool
	String() string
	filter()
}

// MatchAll reports whether s satisfies every filter.
func MatchAll(s *models.Server, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(s) {
			return false
		}
	}
	return true
}

type logicalID string

// LogicalID matches the logical with exactly this id.
func LogicalID(id string) Filter { return logicalID(id) }

func (f logicalID) Match(s *models.Server) bool { return s.ID == string(f) }
func (f logicalID) String() string              { return fmt.Sprintf("logicalID(%s)", string(f)) }
func (logicalID) filter()                       {}

type tier struct {
	value int
	exact bool
}

// TierMax matches servers with tier <= t.
func TierMax(t int) Filter { return tier{value: t} }

// TierExact matches servers with tier == t.
func TierExact(t int) Filter { return tier{value: t, exact: true} }

func (f tier) Match(s *models.Server) bool {
	if f.exact {
		return s.Tier == f.value
	}
	return s.Tier <= f.value
}

func (f tier) String() string {
	if f.exact {
		return fmt.Sprintf("tier(==%d)", f.value)
	}
	return fmt.Sprintf("tier(<=%d)", f.value)
}

func (tier) filter() {}

type features struct {
	required models.Features
	excluded models.Features
}

// Features matches servers carrying every required feature and none of
// the excluded ones. The two sets must be disjoint; overlapping sets are a
// programming error and panic.
func Features(required, excluded models.Features) Filter {
	if !required.IsDisjoint(excluded) {
		panic(fmt.Sprintf("filter: required features %s overlap excluded %s", required, excluded))
	}
	return features{required: required, excluded: excluded}
}

func (f features) Match(s *models.Server) bool {
	return s.Features.Contains(f.required) && s.Features.IsDisjoint(f.excluded)
}

func (f features) String() string {
	return fmt.Sprintf("features(+%s -%s)", f.required, f.excluded)
}

func (features) filter() {}

type protocolSupport models.Protocols

// ProtocolSupport matches servers with at least one endpoint accepting a
// protocol from mask. Endpoints without override accept everything.
func ProtocolSupport(mask models.Protocols) Filter { return protocolSupport(mask) }

func (f protocolSupport) Match(s *models.Server) bool {
	return s.SupportedProtocols().Intersects(models.Protocols(f))
}

func (f protocolSupport) String() string {
	return fmt.Sprintf("protocolSupport(%s)", models.Protocols(f))
}

func (protocolSupport) filter() {}

type kind struct {
	gateway bool
	name    string
}

// Country matches non-gateway servers, and when code is non-empty only
// those exiting in that country.
func Country(code string) Filter { return kind{name: code} }

// Gateway matches gateway servers, and when name is non-empty only those
// of that gateway.
func Gateway(name string) Filter { return kind{gateway: true, name: name} }

func (f kind) Match(s *models.Server) bool {
	if f.gateway {
		if s.GatewayName == nil {
			return false
		}
		return f.name == "" || *s.GatewayName == f.name
	}
	if s.GatewayName != nil {
		return false
	}
	return f.name == "" || strings.EqualFold(s.ExitCountryCode, f.name)
}

func (f kind) String() string {
	if f.gateway {
		return fmt.Sprintf("kind.gateway(%s)", f.name)
	}
	return fmt.Sprintf("kind.country(%s)", f.name)
}

func (kind) filter() {}

type city string

// City matches servers in exactly this city.
func City(name string) Filter { return city(name) }

func (f city) Match(s *models.Server) bool { return s.City != nil && *s.City == string(f) }
func (f city) String() string              { return fmt.Sprintf("city(%s)", string(f)) }
func (city) filter()                       {}

type notUnderMaintenance struct{}

// NotUnderMaintenance matches servers with a non-zero status.
func NotUnderMaintenance() Filter { return notUnderMaintenance{} }

func (notUnderMaintenance) Match(s *models.Server) bool { return !s.IsUnderMaintenance() }
func (notUnderMaintenance) String() string              { return "isNotUnderMaintenance" }
func (notUnderMaintenance) filter()                     {}

type matches struct {
	raw    string
	folded string
	loc    *locale.Localizer
}

// Matches is the free-text search filter. Country codes match exactly,
// ignoring case; city, translated city, gateway name and the localized
// country name match as diacritic-insensitive substrings.
func Matches(query string, loc *locale.Localizer) Filter {
	query = strings.TrimSpace(query)
	return matches{raw: query, folded: locale.Fold(query), loc: loc}
}

func (f matches) Match(s *models.Server) bool {
	if f.folded == "" {
		return true
	}
	if strings.EqualFold(s.ExitCountryCode, f.raw) || strings.EqualFold(s.EntryCountryCode, f.raw) {
		return true
	}
	for _, field := range []*string{s.City, s.TranslatedCity, s.GatewayName} {
		if field != nil && locale.ContainsFolded(*field, f.folded) {
			return true
		}
	}
	if f.loc != nil && locale.ContainsFolded(f.loc.CountryName(s.ExitCountryCode), f.folded) {
		return true
	}
	return false
}

func (f matches) String() string { return fmt.Sprintf("matches(%q)", f.raw) }
func (matches) filter()          {}
