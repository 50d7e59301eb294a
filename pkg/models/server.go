package models

// Server is a logical VPN server as sold to users. One or more physical
// endpoints share the logical identity.
type Server struct {
	ID               string
	Name             string
	Domain           string
	EntryCountryCode string
	ExitCountryCode  string
	Tier             int
	Features         Features
	City             *string
	TranslatedCity   *string
	HostCountry      *string
	GatewayName      *string
	Latitude         float64
	Longitude        float64
	Dynamic          Dynamic
	Endpoints        []Endpoint
}

// Dynamic holds the frequently refreshed attributes of a logical.
// Status 0 means under maintenance.
type Dynamic struct {
	Load   int
	Score  float64
	Status int
}

// ServerLoad is a dynamic update addressed to a logical by id.
type ServerLoad struct {
	ID string
	Dynamic
}

// Endpoint is one physical connection target of a logical.
type Endpoint struct {
	ID              string
	EntryIP         string
	ExitIP          string
	Domain          string
	Label           string
	X25519PublicKey string
	Status          int
	Override        *Override
}

// Override narrows what a single endpoint supports.
type Override struct {
	ProtocolMask *Protocols
}

// EffectiveMask is the protocol set the endpoint accepts: the override
// mask when one is present, every protocol otherwise.
func (e Endpoint) EffectiveMask() Protocols {
	if e.Override == nil || e.Override.ProtocolMask == nil {
		return AllProtocols
	}
	return *e.Override.ProtocolMask
}

// SupportedProtocols is the union of the effective masks of all endpoints.
// A logical without endpoints carries no override and supports everything.
func (s *Server) SupportedProtocols() Protocols {
	if len(s.Endpoints) == 0 {
		return AllProtocols
	}
	var set Protocols
	for _, e := range s.Endpoints {
		set = set.Union(e.EffectiveMask())
	}
	return set
}

// IsGateway reports whether the logical belongs to a private gateway.
func (s *Server) IsGateway() bool {
	return s.GatewayName != nil
}

// IsUnderMaintenance reports whether no endpoint of the logical is usable.
func (s *Server) IsUnderMaintenance() bool {
	return s.Dynamic.Status == 0
}

// IsVirtual reports whether the server is hosted outside its exit country.
func (s *Server) IsVirtual() bool {
	return s.HostCountry != nil && *s.HostCountry != s.ExitCountryCode
}

// Clone returns a deep copy of s.
func (s *Server) Clone() *Server {
	if s == nil {
		return nil
	}
	c := *s
	c.City = cloneString(s.City)
	c.TranslatedCity = cloneString(s.TranslatedCity)
	c.HostCountry = cloneString(s.HostCountry)
	c.GatewayName = cloneString(s.GatewayName)
	if s.Endpoints != nil {
		c.Endpoints = make([]Endpoint, len(s.Endpoints))
		for i, e := range s.Endpoints {
			c.Endpoints[i] = e
			if e.Override != nil {
				o := Override{}
				if e.Override.ProtocolMask != nil {
					mask := *e.Override.ProtocolMask
					o.ProtocolMask = &mask
				}
				c.Endpoints[i].Override = &o
			}
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a helper for optional fields.
func StringPtr(s string) *string {
	return &s
}

// ProtocolsPtr is a helper for override masks.
func ProtocolsPtr(p Protocols) *Protocols {
	return &p
}
