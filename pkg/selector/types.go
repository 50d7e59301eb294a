package selector

import (
	"fmt"
	"strings"

	"server-catalog/pkg/models"
)

// ServerType is the standard / secure-core toggle.
type ServerType int

const (
	ServerTypeUnspecified ServerType = iota
	ServerTypeStandard
	ServerTypeSecureCore
)

func (t ServerType) String() string {
	switch t {
	case ServerTypeStandard:
		return "standard"
	case ServerTypeSecureCore:
		return "secure_core"
	}
	return "unspecified"
}

// ParseServerType accepts "standard", "secure_core" and the empty string.
func ParseServerType(name string) (ServerType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return ServerTypeUnspecified, nil
	case "standard":
		return ServerTypeStandard, nil
	case "secure_core", "securecore":
		return ServerTypeSecureCore, nil
	}
	return ServerTypeUnspecified, fmt.Errorf("unknown server type %q", name)
}

// features returns the required and excluded features for servers of
// this type.
func (t ServerType) features() (required, excluded models.Features) {
	if t == ServerTypeSecureCore {
		return models.FeatureSecureCore, models.NoFeatures
	}
	return models.NoFeatures, models.FeatureSecureCore
}

// SmartProtocolConfig lists the protocols smart mode may try.
type SmartProtocolConfig struct {
	OpenVPN      bool `mapstructure:"openvpn"`
	IKEv2        bool `mapstructure:"ikev2"`
	WireGuardUDP bool `mapstructure:"wireguard_udp"`
	WireGuardTCP bool `mapstructure:"wireguard_tcp"`
	WireGuardTLS bool `mapstructure:"wireguard_tls"`
}

// DefaultSmartProtocolConfig enables every protocol.
func DefaultSmartProtocolConfig() SmartProtocolConfig {
	return SmartProtocolConfig{
		OpenVPN:      true,
		IKEv2:        true,
		WireGuardUDP: true,
		WireGuardTCP: true,
		WireGuardTLS: true,
	}
}

// Protocols returns the enabled protocols. OpenVPN covers both transports.
func (c SmartProtocolConfig) Protocols() models.Protocols {
	set := models.NoProtocols
	if c.OpenVPN {
		set = set.Union(models.NewProtocols(models.ProtocolOpenVPNUDP, models.ProtocolOpenVPNTCP))
	}
	if c.IKEv2 {
		set = set.Union(models.ProtocolIKEv2.Mask())
	}
	if c.WireGuardUDP {
		set = set.Union(models.ProtocolWireGuardUDP.Mask())
	}
	if c.WireGuardTCP {
		set = set.Union(models.ProtocolWireGuardTCP.Mask())
	}
	if c.WireGuardTLS {
		set = set.Union(models.ProtocolWireGuardTLS.Mask())
	}
	return set
}

// ConnectionProtocol is either one explicit protocol or smart mode.
type ConnectionProtocol struct {
	Smart    bool
	Protocol models.VpnProtocol
}

// SmartProtocol returns the smart connection protocol.
func SmartProtocol() ConnectionProtocol {
	return ConnectionProtocol{Smart: true}
}

// ExplicitProtocol returns a connection protocol pinned to p.
func ExplicitProtocol(p models.VpnProtocol) ConnectionProtocol {
	return ConnectionProtocol{Protocol: p}
}

// ParseConnectionProtocol accepts "smart" or a protocol name.
func ParseConnectionProtocol(name string) (ConnectionProtocol, error) {
	if n := strings.ToLower(strings.TrimSpace(name)); n == "" || n == "smart" {
		return SmartProtocol(), nil
	}
	p, err := models.ParseVpnProtocol(name)
	if err != nil {
		return ConnectionProtocol{}, err
	}
	return ExplicitProtocol(p), nil
}

// Protocols resolves the set a server must intersect with.
func (p ConnectionProtocol) Protocols(smart SmartProtocolConfig) models.Protocols {
	if p.Smart {
		return smart.Protocols()
	}
	return p.Protocol.Mask()
}

func (p ConnectionProtocol) String() string {
	if p.Smart {
		return "smart"
	}
	return p.Protocol.String()
}

// IntentKind enumerates what the user asked to connect to.
type IntentKind int

const (
	IntentFastest IntentKind = iota
	IntentRandom
	IntentCountryFastest
	IntentCountryRandom
	IntentSpecificServer
	IntentCity
)

var intentNames = map[IntentKind]string{
	IntentFastest:        "fastest",
	IntentRandom:         "random",
	IntentCountryFastest: "country_fastest",
	IntentCountryRandom:  "country_random",
	IntentSpecificServer: "server",
	IntentCity:           "city",
}

func (k IntentKind) String() string {
	if name, ok := intentNames[k]; ok {
		return name
	}
	return fmt.Sprintf("intent(%d)", int(k))
}

// Intent is a connection target. CountryCode is set for every kind except
// Fastest and Random; ServerID only for SpecificServer; City only for City.
type Intent struct {
	Kind        IntentKind
	CountryCode string
	ServerID    string
	City        string
}

func Fastest() Intent { return Intent{Kind: IntentFastest} }

func Random() Intent { return Intent{Kind: IntentRandom} }

func CountryFastest(code string) Intent {
	return Intent{Kind: IntentCountryFastest, CountryCode: code}
}

func CountryRandom(code string) Intent {
	return Intent{Kind: IntentCountryRandom, CountryCode: code}
}

func SpecificServer(code, id string) Intent {
	return Intent{Kind: IntentSpecificServer, CountryCode: code, ServerID: id}
}

func City(code, city string) Intent {
	return Intent{Kind: IntentCity, CountryCode: code, City: city}
}

// ParseIntent builds an intent from its kind name and the arguments that
// kind needs. An empty kind means fastest.
func ParseIntent(kind, country, serverID, city string) (Intent, error) {
	switch kind {
	case "", "fastest":
		return Fastest(), nil
	case "random":
		return Random(), nil
	case "country_fastest", "country_random", "server", "city":
	default:
		return Intent{}, fmt.Errorf("unknown intent %q", kind)
	}

	if country == "" {
		return Intent{}, fmt.Errorf("intent %s needs a country", kind)
	}
	switch kind {
	case "country_fastest":
		return CountryFastest(country), nil
	case "country_random":
		return CountryRandom(country), nil
	case "server":
		if serverID == "" {
			return Intent{}, fmt.Errorf("intent server needs a server id")
		}
		return SpecificServer(country, serverID), nil
	default:
		if city == "" {
			return Intent{}, fmt.Errorf("intent city needs a city")
		}
		return City(country, city), nil
	}
}

// ForSpecificCountry reports whether the intent names a country.
func (i Intent) ForSpecificCountry() bool {
	return i.Kind != IntentFastest && i.Kind != IntentRandom
}

// ConnectionRequest is one connect attempt. ServerType may be left
// unspecified to use the environment's toggle.
type ConnectionRequest struct {
	ServerType ServerType
	Intent     Intent
}

// Environment is the user context a selection runs in.
type Environment struct {
	UserTier   int
	ServerType ServerType
	Protocol   ConnectionProtocol
	Smart      SmartProtocolConfig
}

// ReasonKind classifies why a selection found nothing.
type ReasonKind int

const (
	ReasonProtocolNotSupported ReasonKind = iota
	ReasonUpgrade
	ReasonMaintenance
)

// Reason is a diagnosis result. MinTier is set for ReasonUpgrade.
type Reason struct {
	Kind    ReasonKind
	MinTier int
}

func (r Reason) String() string {
	switch r.Kind {
	case ReasonProtocolNotSupported:
		return "protocol_not_supported"
	case ReasonUpgrade:
		return fmt.Sprintf("upgrade(%d)", r.MinTier)
	case ReasonMaintenance:
		return "maintenance"
	}
	return fmt.Sprintf("reason(%d)", int(r.Kind))
}

// Unavailable is reported when a selection fails with a definite reason.
type Unavailable struct {
	ForSpecificCountry bool
	ServerType         ServerType
	Reason             Reason
}

// Result is the outcome of SelectServer. Server is nil when nothing
// matched; Unavailable is additionally set when the cause was determined.
type Result struct {
	Server      *models.Server
	ServerType  ServerType
	Unavailable *Unavailable
}

// Outcome is a short label for the result: "connected", the reason kind,
// or "unknown" when nothing matched and no reason was determined.
func (r Result) Outcome() string {
	switch {
	case r.Server != nil:
		return "connected"
	case r.Unavailable == nil:
		return "unknown"
	case r.Unavailable.Reason.Kind == ReasonUpgrade:
		return "upgrade"
	}
	return r.Unavailable.Reason.String()
}
