package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"server-catalog/pkg/filter"
	"server-catalog/pkg/models"
	"server-catalog/pkg/order"
	"server-catalog/pkg/selector"

	"github.com/gorilla/mux"
)

// filtersFromQuery builds the filter list for /groups and /servers.
//
//	country=CH        non-gateway servers exiting in CH ("any" for all)
//	gateway=Acme      servers of gateway Acme ("any" for all gateways)
//	city=Zurich       exact city
//	q=zur             free-text match
//	tier=2            tier <= 2
//	protocol=ikev2    servers accepting the protocol
//	features=p2p,tor  required features
//	exclude=tor       excluded features
//	online=true       skip servers under maintenance
func (s *Server) filtersFromQuery(q url.Values) ([]filter.Filter, error) {
	var filters []filter.Filter

	if v, ok := lookup(q, "country"); ok {
		if v == "any" {
			v = ""
		}
		filters = append(filters, filter.Country(v))
	}
	if v, ok := lookup(q, "gateway"); ok {
		if v == "any" {
			v = ""
		}
		filters = append(filters, filter.Gateway(v))
	}
	if v, ok := lookup(q, "city"); ok {
		filters = append(filters, filter.City(v))
	}
	if v, ok := lookup(q, "q"); ok {
		filters = append(filters, filter.Matches(v, s.engine.Localizer()))
	}
	if v, ok := lookup(q, "tier"); ok {
		tier, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid tier %q", v)
		}
		filters = append(filters, filter.TierMax(tier))
	}
	if v, ok := lookup(q, "protocol"); ok {
		p, err := models.ParseVpnProtocol(v)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter.ProtocolSupport(p.Mask()))
	}

	required, err := models.ParseFeatures(q.Get("features"))
	if err != nil {
		return nil, err
	}
	excluded, err := models.ParseFeatures(q.Get("exclude"))
	if err != nil {
		return nil, err
	}
	if !required.IsDisjoint(excluded) {
		return nil, fmt.Errorf("features and exclude overlap: %s", required.Intersection(excluded))
	}
	if required != models.NoFeatures || excluded != models.NoFeatures {
		filters = append(filters, filter.Features(required, excluded))
	}

	if v, ok := lookup(q, "online"); ok {
		online, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid online %q", v)
		}
		if online {
			filters = append(filters, filter.NotUnderMaintenance())
		}
	}
	return filters, nil
}

func lookup(q url.Values, key string) (string, bool) {
	v := q.Get(key)
	return v, v != ""
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	filters, err := s.filtersFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false)
		return
	}
	groups, err := s.engine.GetGroups(r.Context(), filters)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	views := make([]GroupView, len(groups))
	for i, g := range groups {
		views[i] = newGroupView(g)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := s.filtersFromQuery(q)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false)
		return
	}
	o, err := order.Parse(q.Get("order"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false)
		return
	}
	infos, err := s.engine.GetServers(r.Context(), filters, o)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	views := make([]*ServerView, len(infos))
	for i, info := range infos {
		views[i] = NewServerInfoView(info)
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	server, err := s.engine.GetFirstServer(r.Context(), []filter.Filter{filter.LogicalID(id)}, order.None)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	if server == nil {
		s.writeError(w, r, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("server %q not found", id), false)
		return
	}
	respondJSON(w, http.StatusOK, NewServerView(server))
}

// requestFromQuery builds a selection request. Parameters:
//
//	intent       fastest | random | country_fastest | country_random | server | city
//	country      country code for country, server and city intents
//	server       logical id for the server intent
//	city         city name for the city intent
//	server_type  standard | secure_core (defaults to the configured toggle)
//	tier         user tier (defaults to the configured tier)
//	protocol     smart or a protocol name (defaults to the configured one)
func (s *Server) requestFromQuery(q url.Values) (selector.ConnectionRequest, selector.Environment, error) {
	env := s.env
	var req selector.ConnectionRequest

	intent, err := selector.ParseIntent(q.Get("intent"), q.Get("country"), q.Get("server"), q.Get("city"))
	if err != nil {
		return req, env, err
	}
	req.Intent = intent

	serverType, err := selector.ParseServerType(q.Get("server_type"))
	if err != nil {
		return req, env, err
	}
	req.ServerType = serverType

	if v, ok := lookup(q, "tier"); ok {
		tier, err := strconv.Atoi(v)
		if err != nil {
			return req, env, fmt.Errorf("invalid tier %q", v)
		}
		env.UserTier = tier
	}
	if v, ok := lookup(q, "protocol"); ok {
		protocol, err := selector.ParseConnectionProtocol(v)
		if err != nil {
			return req, env, err
		}
		env.Protocol = protocol
	}
	return req, env, nil
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	req, env, err := s.requestFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), false)
		return
	}
	result, err := s.selector.SelectServer(r.Context(), req, env)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSelection(result.Outcome())
	}
	respondJSON(w, http.StatusOK, newSelectView(result))
}
