package api

import (
	"server-catalog/pkg/models"
	"server-catalog/pkg/query"
	"server-catalog/pkg/selector"
)

type EndpointView struct {
	ID              string   `json:"id"`
	EntryIP         string   `json:"entryIp"`
	ExitIP          string   `json:"exitIp"`
	Domain          string   `json:"domain"`
	Label           string   `json:"label,omitempty"`
	X25519PublicKey string   `json:"x25519PublicKey,omitempty"`
	Status          int      `json:"status"`
	Protocols       []string `json:"protocols"`
}

type ServerView struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Domain           string         `json:"domain"`
	EntryCountryCode string         `json:"entryCountryCode"`
	ExitCountryCode  string         `json:"exitCountryCode"`
	Tier             int            `json:"tier"`
	Features         []string       `json:"features"`
	City             *string        `json:"city,omitempty"`
	TranslatedCity   *string        `json:"translatedCity,omitempty"`
	HostCountry      *string        `json:"hostCountry,omitempty"`
	GatewayName      *string        `json:"gatewayName,omitempty"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	Load             int            `json:"load"`
	Score            float64        `json:"score"`
	Status           int            `json:"status"`
	Protocols        []string       `json:"protocols"`
	Endpoints        []EndpointView `json:"endpoints"`
}

type GroupView struct {
	Kind                string   `json:"kind"`
	GatewayName         string   `json:"gatewayName,omitempty"`
	CountryCode         string   `json:"countryCode"`
	CountryName         string   `json:"countryName"`
	ServerCount         int      `json:"serverCount"`
	CityCount           int      `json:"cityCount"`
	FeatureUnion        []string `json:"featureUnion"`
	FeatureIntersection []string `json:"featureIntersection"`
	Protocols           []string `json:"protocols"`
	MinTier             int      `json:"minTier"`
	MaxTier             int      `json:"maxTier"`
	IsUnderMaintenance  bool     `json:"isUnderMaintenance"`
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
}

type UnavailableView struct {
	ForSpecificCountry bool   `json:"forSpecificCountry"`
	ServerType         string `json:"serverType"`
	Reason             string `json:"reason"`
	MinTier            *int   `json:"minTier,omitempty"`
}

type SelectView struct {
	Outcome     string           `json:"outcome"`
	ServerType  string           `json:"serverType"`
	Server      *ServerView      `json:"server,omitempty"`
	Unavailable *UnavailableView `json:"unavailable,omitempty"`
}

func protocolNames(p models.Protocols) []string {
	list := p.List()
	names := make([]string, len(list))
	for i, protocol := range list {
		names[i] = protocol.String()
	}
	return names
}

func NewServerView(s *models.Server) *ServerView {
	return newServerView(s, s.SupportedProtocols())
}

// NewServerInfoView renders a query result with the protocols the engine
// annotated it with.
func NewServerInfoView(info query.ServerInfo) *ServerView {
	return newServerView(info.Server, info.Protocols)
}

func newServerView(s *models.Server, protocols models.Protocols) *ServerView {
	v := &ServerView{
		ID:               s.ID,
		Name:             s.Name,
		Domain:           s.Domain,
		EntryCountryCode: s.EntryCountryCode,
		ExitCountryCode:  s.ExitCountryCode,
		Tier:             s.Tier,
		Features:         s.Features.Names(),
		City:             s.City,
		TranslatedCity:   s.TranslatedCity,
		HostCountry:      s.HostCountry,
		GatewayName:      s.GatewayName,
		Latitude:         s.Latitude,
		Longitude:        s.Longitude,
		Load:             s.Dynamic.Load,
		Score:            s.Dynamic.Score,
		Status:           s.Dynamic.Status,
		Protocols:        protocolNames(protocols),
		Endpoints:        make([]EndpointView, 0, len(s.Endpoints)),
	}
	for _, e := range s.Endpoints {
		v.Endpoints = append(v.Endpoints, EndpointView{
			ID:              e.ID,
			EntryIP:         e.EntryIP,
			ExitIP:          e.ExitIP,
			Domain:          e.Domain,
			Label:           e.Label,
			X25519PublicKey: e.X25519PublicKey,
			Status:          e.Status,
			Protocols:       protocolNames(e.EffectiveMask()),
		})
	}
	return v
}

func newGroupView(g query.GroupInfo) GroupView {
	return GroupView{
		Kind:                g.Kind.String(),
		GatewayName:         g.GatewayName,
		CountryCode:         g.CountryCode,
		CountryName:         g.CountryName,
		ServerCount:         g.ServerCount,
		CityCount:           g.CityCount,
		FeatureUnion:        g.FeatureUnion.Names(),
		FeatureIntersection: g.FeatureIntersection.Names(),
		Protocols:           protocolNames(g.Protocols),
		MinTier:             g.MinTier,
		MaxTier:             g.MaxTier,
		IsUnderMaintenance:  g.IsUnderMaintenance,
		Latitude:            g.Latitude,
		Longitude:           g.Longitude,
	}
}

func newSelectView(r selector.Result) SelectView {
	v := SelectView{
		Outcome:    r.Outcome(),
		ServerType: r.ServerType.String(),
	}
	if r.Server != nil {
		v.Server = NewServerView(r.Server)
	}
	if u := r.Unavailable; u != nil {
		v.Unavailable = &UnavailableView{
			ForSpecificCountry: u.ForSpecificCountry,
			ServerType:         u.ServerType.String(),
			Reason:             v.Outcome,
		}
		if u.Reason.Kind == selector.ReasonUpgrade {
			minTier := u.Reason.MinTier
			v.Unavailable.MinTier = &minTier
		}
	}
	return v
}
