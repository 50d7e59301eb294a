package models

import (
	"fmt"
	"strings"
)

// VpnProtocol is a single tunnel protocol an endpoint may accept.
type VpnProtocol int

const (
	ProtocolIKEv2 VpnProtocol = iota
	ProtocolOpenVPNUDP
	ProtocolOpenVPNTCP
	ProtocolWireGuardUDP
	ProtocolWireGuardTCP
	ProtocolWireGuardTLS
)

var protocolNames = map[VpnProtocol]string{
	ProtocolIKEv2:        "ikev2",
	ProtocolOpenVPNUDP:   "openvpn_udp",
	ProtocolOpenVPNTCP:   "openvpn_tcp",
	ProtocolWireGuardUDP: "wireguard_udp",
	ProtocolWireGuardTCP: "wireguard_tcp",
	ProtocolWireGuardTLS: "wireguard_tls",
}

func (p VpnProtocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// Mask returns the single-protocol set for p.
func (p VpnProtocol) Mask() Protocols {
	return Protocols(1) << uint(p)
}

// ParseVpnProtocol parses names such as "wireguard_udp".
func ParseVpnProtocol(name string) (VpnProtocol, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range protocolNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown vpn protocol %q", name)
}

// Protocols is a set of VpnProtocol values.
type Protocols uint32

const (
	NoProtocols  Protocols = 0
	AllProtocols Protocols = 1<<(uint(ProtocolWireGuardTLS)+1) - 1
)

// NewProtocols builds a set from the given protocols.
func NewProtocols(protocols ...VpnProtocol) Protocols {
	var set Protocols
	for _, p := range protocols {
		set |= p.Mask()
	}
	return set
}

// Union returns the protocols present in either set.
func (p Protocols) Union(other Protocols) Protocols {
	return p | other
}

// Intersects reports whether the two sets share at least one protocol.
func (p Protocols) Intersects(other Protocols) bool {
	return p&other != 0
}

// Has reports whether protocol is in the set.
func (p Protocols) Has(protocol VpnProtocol) bool {
	return p&protocol.Mask() != 0
}

// List returns the members of the set in declaration order.
func (p Protocols) List() []VpnProtocol {
	var out []VpnProtocol
	for proto := ProtocolIKEv2; proto <= ProtocolWireGuardTLS; proto++ {
		if p.Has(proto) {
			out = append(out, proto)
		}
	}
	return out
}

func (p Protocols) String() string {
	if p == AllProtocols {
		return "all"
	}
	list := p.List()
	if len(list) == 0 {
		return "none"
	}
	names := make([]string, len(list))
	for i, proto := range list {
		names[i] = proto.String()
	}
	return strings.Join(names, "|")
}
