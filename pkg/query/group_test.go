package query

import (
	"context"
	"testing"

	"server-catalog/pkg/catalog"
	"server-catalog/pkg/filter"
	"server-catalog/pkg/locale"
	"server-catalog/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestGetGroupsRollup(t *testing.T) {
	ctx := context.Background()
	e := newEngine(
		newServer("CH#1", "CH").tier(1).city("Zurich").at(47.3, 8.5).
			features(models.FeatureP2P|models.FeatureTor).status(0).
			protocols(models.ProtocolIKEv2.Mask()).build(),
		newServer("CH#2", "CH").tier(2).city("Geneva").at(46.2, 6.1).
			features(models.FeatureP2P|models.FeatureStreaming).
			protocols(models.ProtocolWireGuardUDP.Mask()).build(),
		newServer("CH#3", "CH").tier(0).city("Zurich").features(models.FeatureP2P).
			protocols(models.ProtocolWireGuardUDP.Mask()).build(),
	)

	groups, err := e.GetGroups(ctx, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, GroupCountry, g.Kind)
	assert.Equal(t, "CH", g.CountryCode)
	assert.Equal(t, "Switzerland", g.CountryName)
	assert.Equal(t, 3, g.ServerCount)
	assert.Equal(t, 2, g.CityCount)
	assert.Equal(t, models.FeatureP2P|models.FeatureTor|models.FeatureStreaming, g.FeatureUnion)
	assert.Equal(t, models.FeatureP2P, g.FeatureIntersection)
	assert.Equal(t, models.NewProtocols(models.ProtocolIKEv2, models.ProtocolWireGuardUDP), g.Protocols)
	assert.Equal(t, 0, g.MinTier)
	assert.Equal(t, 2, g.MaxTier)
	assert.False(t, g.IsUnderMaintenance)
	assert.Equal(t, 47.3, g.Latitude)
	assert.Equal(t, 8.5, g.Longitude)
}

func TestGetGroupsMaintenanceOnlyWhenAllMembersAre(t *testing.T) {
	ctx := context.Background()
	e := newEngine(
		newServer("SE#1", "SE").status(0).build(),
		newServer("SE#2", "SE").status(0).build(),
		newServer("NO#1", "NO").status(0).build(),
		newServer("NO#2", "NO").status(1).build(),
	)

	groups, err := e.GetGroups(ctx, nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byCode := map[string]GroupInfo{}
	for _, g := range groups {
		byCode[g.CountryCode] = g
	}
	assert.True(t, byCode["SE"].IsUnderMaintenance)
	assert.False(t, byCode["NO"].IsUnderMaintenance)
}

func TestGetGroupsSeparatesGateways(t *testing.T) {
	ctx := context.Background()
	e := newEngine(
		newServer("DE#1", "DE").build(),
		newServer("DE#GW1", "DE").gateway("Zeta").build(),
		newServer("DE#GW2", "DE").gateway("Acme").build(),
		newServer("US#GW1", "US").gateway("Acme").build(),
		newServer("AT#1", "AT").build(),
		newServer("FR#1", "FR").build(),
	)

	groups, err := e.GetGroups(ctx, nil)
	require.NoError(t, err)

	type key struct {
		kind    GroupKind
		gateway string
		country string
	}
	var got []key
	total := 0
	for _, g := range groups {
		got = append(got, key{g.Kind, g.GatewayName, g.CountryCode})
		total += g.ServerCount
	}
	assert.Equal(t, []key{
		{GroupGateway, "Acme", "DE"},
		{GroupGateway, "Acme", "US"},
		{GroupGateway, "Zeta", "DE"},
		{GroupCountry, "", "AT"},
		{GroupCountry, "", "FR"},
		{GroupCountry, "", "DE"},
	}, got)
	assert.Equal(t, 6, total)

	countryOnly, err := e.GetGroups(ctx, []filter.Filter{filter.Country("")})
	require.NoError(t, err)
	for _, g := range countryOnly {
		assert.Equal(t, GroupCountry, g.Kind)
	}
	assert.Len(t, countryOnly, 3)

	gateway, err := e.GetGroups(ctx, []filter.Filter{filter.Gateway("Acme")})
	require.NoError(t, err)
	assert.Len(t, gateway, 2)
}

func TestGetGroupsLocalizedOrder(t *testing.T) {
	ctx := context.Background()
	servers := []models.Server{
		newServer("AT#1", "AT").build(),
		newServer("DE#1", "DE").build(),
		newServer("EC#1", "EC").build(),
	}
	e := NewEngine(staticSource{snap: catalog.NewSnapshot(servers)}, locale.New(language.German))

	groups, err := e.GetGroups(ctx, nil)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"Deutschland", "Ecuador", "Österreich"},
		[]string{groups[0].CountryName, groups[1].CountryName, groups[2].CountryName})
}

func TestGetGroupsEmpty(t *testing.T) {
	groups, err := newEngine().GetGroups(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAccumulatorFunctions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.FeatureTor|models.FeatureP2P, unionFeatures(models.FeatureTor, models.FeatureP2P))
	assert.Equal(t, models.NoFeatures, intersectFeatures(models.FeatureTor, models.FeatureP2P))
	assert.Equal(t, models.AllProtocols, unionProtocols(models.NoProtocols, models.AllProtocols))
	assert.Equal(t, 1, minTier(3, 1))
	assert.Equal(t, 3, maxTier(3, 1))

	down := &models.Server{Dynamic: models.Dynamic{Status: 0}}
	up := &models.Server{Dynamic: models.Dynamic{Status: 1}}
	assert.True(t, allUnderMaintenance(true, down))
	assert.False(t, allUnderMaintenance(true, up))
	assert.False(t, allUnderMaintenance(false, down))

	cities := map[string]struct{}{}
	addCity(cities, nil)
	addCity(cities, models.StringPtr(""))
	addCity(cities, models.StringPtr("Oslo"))
	addCity(cities, models.StringPtr("Oslo"))
	assert.Len(t, cities, 1)
}
