// Package selector turns a connection intent into a concrete server and,
// when nothing qualifies, works out why.
package selector

import (
	"context"
	"fmt"
	"log/slog"

	"server-catalog/pkg/filter"
	"server-catalog/pkg/models"
	"server-catalog/pkg/order"
	"server-catalog/pkg/query"
)

// Querier is the part of the query engine the selector needs.
type Querier interface {
	GetFirstServer(ctx context.Context, filters []filter.Filter, o order.Order) (*models.Server, error)
	GetGroups(ctx context.Context, filters []filter.Filter) ([]query.GroupInfo, error)
}

// Option configures a Selector.
type Option func(*Selector)

// WithUnavailableHandler is called when a selection fails with a reason.
func WithUnavailableHandler(fn func(Unavailable)) Option {
	return func(s *Selector) {
		s.onUnavailable = fn
	}
}

// WithServerTypeChangedHandler is called with the resolved server type
// after every successful selection.
func WithServerTypeChangedHandler(fn func(ServerType)) Option {
	return func(s *Selector) {
		s.onServerTypeChanged = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// Selector holds no per-call state and is safe for concurrent use.
type Selector struct {
	querier             Querier
	logger              *slog.Logger
	onUnavailable       func(Unavailable)
	onServerTypeChanged func(ServerType)
}

func New(querier Querier, opts ...Option) *Selector {
	s := &Selector{
		querier: querier,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectServer picks the server for req. A nil Result.Server with a nil
// error means nothing qualified; errors are storage failures.
func (s *Selector) SelectServer(ctx context.Context, req ConnectionRequest, env Environment) (Result, error) {
	serverType := resolveServerType(req.ServerType, env.ServerType)
	base := baseFilters(req.Intent, serverType)
	protocols := env.Protocol.Protocols(env.Smart)

	filters := append(append([]filter.Filter{}, base...),
		filter.ProtocolSupport(protocols),
		filter.TierMax(env.UserTier),
		filter.NotUnderMaintenance(),
	)

	server, err := s.querier.GetFirstServer(ctx, filters, orderFor(req.Intent.Kind))
	if err != nil {
		return Result{ServerType: serverType}, fmt.Errorf("select server: %w", err)
	}
	if server != nil {
		s.logger.Debug("Selected server", "intent", req.Intent.Kind.String(), "server", server.Name, "type", serverType.String())
		if s.onServerTypeChanged != nil {
			s.onServerTypeChanged(serverType)
		}
		return Result{Server: server, ServerType: serverType}, nil
	}

	result := Result{ServerType: serverType}
	reason, ok := s.diagnose(ctx, base, protocols, env.UserTier)
	if !ok {
		s.logger.Info("No server available and no reason determined", "intent", req.Intent.Kind.String(), "country", req.Intent.CountryCode)
		return result, nil
	}

	unavailable := Unavailable{
		ForSpecificCountry: req.Intent.ForSpecificCountry(),
		ServerType:         serverType,
		Reason:             reason,
	}
	s.logger.Info("No server available", "intent", req.Intent.Kind.String(), "country", req.Intent.CountryCode, "reason", reason.String())
	if s.onUnavailable != nil {
		s.onUnavailable(unavailable)
	}
	result.Unavailable = &unavailable
	return result, nil
}

// diagnose re-runs the base query with one constraint at a time, in
// priority order, and reports the first one that leaves nothing. It
// returns false when no constraint alone explains the empty result or a
// query fails.
func (s *Selector) diagnose(ctx context.Context, base []filter.Filter, protocols models.Protocols, userTier int) (Reason, bool) {
	withProtocol := append(append([]filter.Filter{}, base...), filter.ProtocolSupport(protocols))
	groups, err := s.querier.GetGroups(ctx, withProtocol)
	if err != nil {
		s.logger.Warn("Diagnosis query failed", "step", "protocol", "error", err)
		return Reason{}, false
	}
	if len(groups) == 0 {
		return Reason{Kind: ReasonProtocolNotSupported}, true
	}

	inTier := append(withProtocol, filter.TierMax(userTier))
	found, err := s.querier.GetFirstServer(ctx, inTier, order.None)
	if err != nil {
		s.logger.Warn("Diagnosis query failed", "step", "tier", "error", err)
		return Reason{}, false
	}
	if found == nil {
		return Reason{Kind: ReasonUpgrade, MinTier: lowestTier(groups)}, true
	}

	usable := append(inTier, filter.NotUnderMaintenance())
	found, err = s.querier.GetFirstServer(ctx, usable, order.None)
	if err != nil {
		s.logger.Warn("Diagnosis query failed", "step", "maintenance", "error", err)
		return Reason{}, false
	}
	if found == nil {
		return Reason{Kind: ReasonMaintenance}, true
	}

	return Reason{}, false
}

func lowestTier(groups []query.GroupInfo) int {
	lowest := groups[0].MinTier
	for _, g := range groups[1:] {
		lowest = min(lowest, g.MinTier)
	}
	return lowest
}

func resolveServerType(requested, ambient ServerType) ServerType {
	if requested != ServerTypeUnspecified {
		return requested
	}
	if ambient != ServerTypeUnspecified {
		return ambient
	}
	return ServerTypeStandard
}

// baseFilters are the intent-derived filters, before protocol, tier and
// maintenance are applied.
func baseFilters(intent Intent, serverType ServerType) []filter.Filter {
	required, excluded := serverType.features()

	switch intent.Kind {
	case IntentSpecificServer:
		// The only path that may return a gateway.
		return []filter.Filter{filter.LogicalID(intent.ServerID)}
	case IntentCountryFastest, IntentCountryRandom:
		return []filter.Filter{
			filter.Country(intent.CountryCode),
			filter.Features(required, excluded),
		}
	case IntentCity:
		return []filter.Filter{
			filter.Country(intent.CountryCode),
			filter.City(intent.City),
			filter.Features(required, excluded),
		}
	default:
		return []filter.Filter{
			filter.Country(""),
			filter.Features(required, excluded.Union(models.FeatureRestricted)),
		}
	}
}

func orderFor(kind IntentKind) order.Order {
	if kind == IntentRandom || kind == IntentCountryRandom {
		return order.Random
	}
	return order.Fastest
}
