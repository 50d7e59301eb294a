/*
Package models defines the data structures shared by the server catalog: the
logical servers sold to users, their physical endpoints, the per-endpoint
overrides and the dynamic load data refreshed independently of them.

Core Types:

Server is a logical server. Static fields are replaced wholesale when the
catalog is refreshed; Dynamic is updated on its own, more often:

	type Server struct {
		ID               string    // Unique identifier
		Name             string    // Display name, e.g. "DE#10"
		EntryCountryCode string    // Where the tunnel enters
		ExitCountryCode  string    // Where the traffic leaves
		Tier             int       // 0 = free
		Features         Features  // Capability bit set
		GatewayName      *string   // Non-nil for private gateway servers
		Dynamic          Dynamic   // Load, Score, Status
		Endpoints        []Endpoint
	}

Endpoint is one physical target. Its optional Override narrows the set of
protocols it accepts:

	mask := models.NewProtocols(models.ProtocolWireGuardUDP)
	endpoint := models.Endpoint{
		ID:       "ep-1",
		EntryIP:  "10.0.0.1",
		Override: &models.Override{ProtocolMask: &mask},
	}

Features and Protocols are bit sets with Union, Intersection/Intersects and
disjointness helpers:

	standard := models.FeatureSecureCore.IsDisjoint(server.Features)
	usable := server.SupportedProtocols().Intersects(models.AllProtocols)

Database Integration:

The Row types carry bun tags. A Server is persisted as:
  - one logicals row (static fields)
  - one logical_status row (dynamic fields)
  - one endpoints row per endpoint, with its position
  - zero or one endpoint_overrides row per endpoint
  - the metadata table is a flat string key/value store

Server.ToRows and ServerFromRows convert between the two forms without
losing information, so a stored server reads back deep-equal.

Thread Safety:

The model structures are not thread-safe. The catalog hands out clones and
never mutates a Server after it was published in a snapshot.
*/
package models
