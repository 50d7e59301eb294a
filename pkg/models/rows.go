package models

import (
	"github.com/uptrace/bun"
)

// LogicalRow holds the static fields of a logical.
type LogicalRow struct {
	bun.BaseModel `bun:"table:logicals,alias:l"`

	ID               string  `bun:",pk"`
	Name             string  `bun:",notnull"`
	Domain           string  `bun:",notnull"`
	EntryCountryCode string  `bun:",notnull"`
	ExitCountryCode  string  `bun:",notnull"`
	Tier             int     `bun:",notnull"`
	Features         int64   `bun:",notnull"`
	City             *string
	TranslatedCity   *string
	HostCountry      *string
	GatewayName      *string
	Latitude         float64 `bun:",notnull"`
	Longitude        float64 `bun:",notnull"`
}

// StatusRow holds the dynamic fields of a logical.
type StatusRow struct {
	bun.BaseModel `bun:"table:logical_status,alias:ls"`

	LogicalID string  `bun:",pk"`
	Load      int     `bun:",notnull"`
	Score     float64 `bun:",notnull"`
	Status    int     `bun:",notnull"`
}

// EndpointRow is one physical server of a logical. Position keeps the
// order the endpoints were received in.
type EndpointRow struct {
	bun.BaseModel `bun:"table:endpoints,alias:e"`

	ID              string `bun:",pk"`
	LogicalID       string `bun:",notnull"`
	Position        int    `bun:",notnull"`
	EntryIP         string `bun:",notnull"`
	ExitIP          string `bun:",notnull"`
	Domain          string `bun:",notnull"`
	Label           string `bun:",notnull"`
	X25519PublicKey string `bun:",notnull"`
	Status          int    `bun:",notnull"`
}

// OverrideRow exists for endpoints carrying an override record.
type OverrideRow struct {
	bun.BaseModel `bun:"table:endpoint_overrides,alias:eo"`

	EndpointID   string `bun:",pk"`
	LogicalID    string `bun:",notnull"`
	ProtocolMask *int64
}

// MetadataRow is a flat key/value pair for refresh bookkeeping.
type MetadataRow struct {
	bun.BaseModel `bun:"table:metadata,alias:md"`

	Key   string `bun:"meta_key,pk"`
	Value string `bun:"meta_value,notnull"`
}

// Rows is the persisted form of one Server.
type Rows struct {
	Logical   LogicalRow
	Status    StatusRow
	Endpoints []EndpointRow
	Overrides []OverrideRow
}

// ToRows splits a server into its table rows.
func (s *Server) ToRows() Rows {
	rows := Rows{
		Logical: LogicalRow{
			ID:               s.ID,
			Name:             s.Name,
			Domain:           s.Domain,
			EntryCountryCode: s.EntryCountryCode,
			ExitCountryCode:  s.ExitCountryCode,
			Tier:             s.Tier,
			Features:         int64(s.Features),
			City:             cloneString(s.City),
			TranslatedCity:   cloneString(s.TranslatedCity),
			HostCountry:      cloneString(s.HostCountry),
			GatewayName:      cloneString(s.GatewayName),
			Latitude:         s.Latitude,
			Longitude:        s.Longitude,
		},
		Status: StatusRow{
			LogicalID: s.ID,
			Load:      s.Dynamic.Load,
			Score:     s.Dynamic.Score,
			Status:    s.Dynamic.Status,
		},
	}
	for i, e := range s.Endpoints {
		rows.Endpoints = append(rows.Endpoints, EndpointRow{
			ID:              e.ID,
			LogicalID:       s.ID,
			Position:        i,
			EntryIP:         e.EntryIP,
			ExitIP:          e.ExitIP,
			Domain:          e.Domain,
			Label:           e.Label,
			X25519PublicKey: e.X25519PublicKey,
			Status:          e.Status,
		})
		if e.Override == nil {
			continue
		}
		o := OverrideRow{EndpointID: e.ID, LogicalID: s.ID}
		if e.Override.ProtocolMask != nil {
			mask := int64(*e.Override.ProtocolMask)
			o.ProtocolMask = &mask
		}
		rows.Overrides = append(rows.Overrides, o)
	}
	return rows
}

// ServerFromRows assembles a server. endpoints must already be in position
// order; overrides are keyed by endpoint id.
func ServerFromRows(l LogicalRow, st StatusRow, endpoints []EndpointRow, overrides map[string]OverrideRow) Server {
	s := Server{
		ID:               l.ID,
		Name:             l.Name,
		Domain:           l.Domain,
		EntryCountryCode: l.EntryCountryCode,
		ExitCountryCode:  l.ExitCountryCode,
		Tier:             l.Tier,
		Features:         Features(l.Features),
		City:             l.City,
		TranslatedCity:   l.TranslatedCity,
		HostCountry:      l.HostCountry,
		GatewayName:      l.GatewayName,
		Latitude:         l.Latitude,
		Longitude:        l.Longitude,
		Dynamic: Dynamic{
			Load:   st.Load,
			Score:  st.Score,
			Status: st.Status,
		},
	}
	for _, e := range endpoints {
		ep := Endpoint{
			ID:              e.ID,
			EntryIP:         e.EntryIP,
			ExitIP:          e.ExitIP,
			Domain:          e.Domain,
			Label:           e.Label,
			X25519PublicKey: e.X25519PublicKey,
			Status:          e.Status,
		}
		if o, ok := overrides[e.ID]; ok {
			ep.Override = &Override{}
			if o.ProtocolMask != nil {
				ep.Override.ProtocolMask = ProtocolsPtr(Protocols(*o.ProtocolMask))
			}
		}
		s.Endpoints = append(s.Endpoints, ep)
	}
	return s
}
