package query

import (
	"context"
	"sort"

	"server-catalog/pkg/filter"
	"server-catalog/pkg/models"
)

// GroupKind tells country groups from gateway groups.
type GroupKind int

const (
	GroupCountry GroupKind = iota
	GroupGateway
)

func (k GroupKind) String() string {
	if k == GroupGateway {
		return "gateway"
	}
	return "country"
}

// GroupInfo summarizes the servers sharing a gateway name (or none) and an
// exit country.
type GroupInfo struct {
	Kind                GroupKind
	GatewayName         string
	CountryCode         string
	CountryName         string
	ServerCount         int
	CityCount           int
	FeatureUnion        models.Features
	FeatureIntersection models.Features
	Protocols           models.Protocols
	MinTier             int
	MaxTier             int
	IsUnderMaintenance  bool
	Latitude            float64
	Longitude           float64
}

type groupKey struct {
	gateway     bool
	gatewayName string
	countryCode string
}

type accumulator struct {
	info   GroupInfo
	cities map[string]struct{}
}

// GetGroups groups the matching servers by (gateway name, exit country)
// and rolls up each group. Gateway groups come first, ordered by gateway
// name; country groups follow, ordered by localized country name.
func (e *Engine) GetGroups(ctx context.Context, filters []filter.Filter) ([]GroupInfo, error) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey]*accumulator)
	var keys []groupKey
	for _, s := range snap.Servers() {
		if !filter.MatchAll(s, filters) {
			continue
		}
		key := keyOf(s)
		acc, ok := groups[key]
		if !ok {
			acc = newAccumulator(key, s)
			groups[key] = acc
			keys = append(keys, key)
		}
		acc.add(s)
	}

	out := make([]GroupInfo, 0, len(keys))
	for _, key := range keys {
		info := groups[key].info
		info.CityCount = len(groups[key].cities)
		if e.loc != nil {
			info.CountryName = e.loc.CountryName(info.CountryCode)
		} else {
			info.CountryName = info.CountryCode
		}
		out = append(out, info)
	}
	e.sortGroups(out)

	return out, nil
}

func keyOf(s *models.Server) groupKey {
	if s.GatewayName != nil {
		return groupKey{gateway: true, gatewayName: *s.GatewayName, countryCode: s.ExitCountryCode}
	}
	return groupKey{countryCode: s.ExitCountryCode}
}

func newAccumulator(key groupKey, first *models.Server) *accumulator {
	kind := GroupCountry
	if key.gateway {
		kind = GroupGateway
	}
	return &accumulator{
		info: GroupInfo{
			Kind:                kind,
			GatewayName:         key.gatewayName,
			CountryCode:         key.countryCode,
			FeatureIntersection: first.Features,
			MinTier:             first.Tier,
			MaxTier:             first.Tier,
			IsUnderMaintenance:  true,
			Latitude:            first.Latitude,
			Longitude:           first.Longitude,
		},
		cities: make(map[string]struct{}),
	}
}

func (a *accumulator) add(s *models.Server) {
	a.info.ServerCount++
	a.info.FeatureUnion = unionFeatures(a.info.FeatureUnion, s.Features)
	a.info.FeatureIntersection = intersectFeatures(a.info.FeatureIntersection, s.Features)
	a.info.Protocols = unionProtocols(a.info.Protocols, s.SupportedProtocols())
	a.info.MinTier = minTier(a.info.MinTier, s.Tier)
	a.info.MaxTier = maxTier(a.info.MaxTier, s.Tier)
	a.info.IsUnderMaintenance = allUnderMaintenance(a.info.IsUnderMaintenance, s)
	addCity(a.cities, s.City)
}

func unionFeatures(acc, f models.Features) models.Features {
	return acc.Union(f)
}

func intersectFeatures(acc, f models.Features) models.Features {
	return acc.Intersection(f)
}

func unionProtocols(acc, p models.Protocols) models.Protocols {
	return acc.Union(p)
}

func minTier(acc, t int) int {
	return min(acc, t)
}

func maxTier(acc, t int) int {
	return max(acc, t)
}

// allUnderMaintenance stays true only while every member is under
// maintenance; start it at true.
func allUnderMaintenance(acc bool, s *models.Server) bool {
	return acc && s.IsUnderMaintenance()
}

func addCity(cities map[string]struct{}, city *string) {
	if city != nil && *city != "" {
		cities[*city] = struct{}{}
	}
}

func (e *Engine) sortGroups(groups []GroupInfo) {
	compare := func(a, b string) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	if e.loc != nil {
		compare = e.loc.Collator().CompareString
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Kind != b.Kind {
			return a.Kind == GroupGateway
		}
		if a.Kind == GroupGateway {
			if c := compare(a.GatewayName, b.GatewayName); c != 0 {
				return c < 0
			}
		}
		if c := compare(a.CountryName, b.CountryName); c != 0 {
			return c < 0
		}
		return a.CountryCode < b.CountryCode
	})
}
