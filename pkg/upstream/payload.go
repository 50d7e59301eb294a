package upstream

import (
	"encoding/json"
	"fmt"

	"server-catalog/pkg/models"
)

// CodeSuccess is the API's application-level success code.
const CodeSuccess = 1000

// LogicalsResponse is the /vpn/logicals document.
type LogicalsResponse struct {
	Code           int             `json:"Code"`
	LogicalServers []LogicalServer `json:"LogicalServers"`
}

// LogicalServer is one logical as the API reports it.
type LogicalServer struct {
	ID           string        `json:"ID"`
	Name         string        `json:"Name"`
	Domain       string        `json:"Domain"`
	EntryCountry string        `json:"EntryCountry"`
	ExitCountry  string        `json:"ExitCountry"`
	HostCountry  *string       `json:"HostCountry,omitempty"`
	GatewayName  *string       `json:"GatewayName,omitempty"`
	Tier         int           `json:"Tier"`
	Features     int           `json:"Features"`
	City         *string       `json:"City,omitempty"`
	Translations *Translations `json:"Translations,omitempty"`
	Location     Location      `json:"Location"`
	Status       int           `json:"Status"`
	Load         int           `json:"Load"`
	Score        float64       `json:"Score"`
	Servers      []Endpoint    `json:"Servers"`
}

type Translations struct {
	City *string `json:"City,omitempty"`
}

type Location struct {
	Lat  float64 `json:"Lat"`
	Long float64 `json:"Long"`
}

// Endpoint is one physical server of a logical. ProtocolMask uses the
// models.Protocols bit layout; absent means every protocol.
type Endpoint struct {
	ID              string  `json:"ID"`
	EntryIP         string  `json:"EntryIP"`
	ExitIP          string  `json:"ExitIP"`
	Domain          string  `json:"Domain"`
	Label           string  `json:"Label,omitempty"`
	X25519PublicKey string  `json:"X25519PublicKey,omitempty"`
	Status          int     `json:"Status"`
	ProtocolMask    *uint32 `json:"ProtocolMask,omitempty"`
}

// LoadsResponse is the /vpn/loads document.
type LoadsResponse struct {
	Code           int           `json:"Code"`
	LogicalServers []LogicalLoad `json:"LogicalServers"`
}

type LogicalLoad struct {
	ID     string  `json:"ID"`
	Load   int     `json:"Load"`
	Score  float64 `json:"Score"`
	Status int     `json:"Status"`
}

// DecodeLogicals parses and validates a /vpn/logicals body.
func DecodeLogicals(body []byte) (*LogicalsResponse, error) {
	var resp LogicalsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse logicals: %w", err)
	}
	if resp.Code != CodeSuccess {
		return nil, fmt.Errorf("logicals: unexpected code %d", resp.Code)
	}
	for i, l := range resp.LogicalServers {
		if l.ID == "" {
			return nil, fmt.Errorf("logicals: entry %d has no ID", i)
		}
	}
	return &resp, nil
}

// DecodeLoads parses and validates a /vpn/loads body.
func DecodeLoads(body []byte) (*LoadsResponse, error) {
	var resp LoadsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse loads: %w", err)
	}
	if resp.Code != CodeSuccess {
		return nil, fmt.Errorf("loads: unexpected code %d", resp.Code)
	}
	return &resp, nil
}

// Servers converts the response into catalog records.
func (r *LogicalsResponse) Servers() []models.Server {
	servers := make([]models.Server, 0, len(r.LogicalServers))
	for _, l := range r.LogicalServers {
		servers = append(servers, l.toServer())
	}
	return servers
}

func (l LogicalServer) toServer() models.Server {
	s := models.Server{
		ID:               l.ID,
		Name:             l.Name,
		Domain:           l.Domain,
		EntryCountryCode: l.EntryCountry,
		ExitCountryCode:  l.ExitCountry,
		Tier:             l.Tier,
		Features:         models.Features(l.Features),
		City:             nonEmpty(l.City),
		HostCountry:      nonEmpty(l.HostCountry),
		GatewayName:      nonEmpty(l.GatewayName),
		Latitude:         l.Location.Lat,
		Longitude:        l.Location.Long,
		Dynamic: models.Dynamic{
			Load:   l.Load,
			Score:  l.Score,
			Status: l.Status,
		},
	}
	if l.Translations != nil {
		s.TranslatedCity = nonEmpty(l.Translations.City)
	}
	for _, e := range l.Servers {
		endpoint := models.Endpoint{
			ID:              e.ID,
			EntryIP:         e.EntryIP,
			ExitIP:          e.ExitIP,
			Domain:          e.Domain,
			Label:           e.Label,
			X25519PublicKey: e.X25519PublicKey,
			Status:          e.Status,
		}
		if e.ProtocolMask != nil {
			endpoint.Override = &models.Override{
				ProtocolMask: models.ProtocolsPtr(models.Protocols(*e.ProtocolMask) & models.AllProtocols),
			}
		}
		s.Endpoints = append(s.Endpoints, endpoint)
	}
	return s
}

// Loads converts the response into dynamic updates.
func (r *LoadsResponse) Loads() []models.ServerLoad {
	loads := make([]models.ServerLoad, 0, len(r.LogicalServers))
	for _, l := range r.LogicalServers {
		loads = append(loads, models.ServerLoad{
			ID: l.ID,
			Dynamic: models.Dynamic{
				Load:   l.Load,
				Score:  l.Score,
				Status: l.Status,
			},
		})
	}
	return loads
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
