package filter

import (
	"testing"

	"server-catalog/pkg/locale"
	"server-catalog/pkg/models"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func sample() *models.Server {
	return &models.Server{
		ID:               "CH#4",
		Name:             "CH#4",
		EntryCountryCode: "IS",
		ExitCountryCode:  "CH",
		Tier:             2,
		Features:         models.FeatureSecureCore | models.FeatureP2P,
		City:             models.StringPtr("Zürich"),
		TranslatedCity:   models.StringPtr("Zurigo"),
		Dynamic:          models.Dynamic{Status: 1},
		Endpoints: []models.Endpoint{
			{ID: "a", Override: &models.Override{ProtocolMask: models.ProtocolsPtr(models.ProtocolWireGuardUDP.Mask())}},
		},
	}
}

func TestFilters(t *testing.T) {
	t.Parallel()

	en := locale.New(language.English)
	gateway := sample()
	gateway.GatewayName = models.StringPtr("Acme Corp")

	tests := []struct {
		name   string
		filter Filter
		server *models.Server
		want   bool
	}{
		{"id match", LogicalID("CH#4"), sample(), true},
		{"id mismatch", LogicalID("CH#5"), sample(), false},
		{"tier max above", TierMax(3), sample(), true},
		{"tier max equal", TierMax(2), sample(), true},
		{"tier max below", TierMax(1), sample(), false},
		{"tier exact", TierExact(2), sample(), true},
		{"tier exact other", TierExact(0), sample(), false},
		{"features required present", Features(models.FeatureSecureCore, models.NoFeatures), sample(), true},
		{"features required missing", Features(models.FeatureTor, models.NoFeatures), sample(), false},
		{"features excluded present", Features(models.NoFeatures, models.FeatureSecureCore), sample(), false},
		{"features excluded absent", Features(models.FeatureP2P, models.FeatureRestricted), sample(), true},
		{"protocol supported", ProtocolSupport(models.NewProtocols(models.ProtocolWireGuardUDP, models.ProtocolIKEv2)), sample(), true},
		{"protocol unsupported", ProtocolSupport(models.ProtocolIKEv2.Mask()), sample(), false},
		{"country any", Country(""), sample(), true},
		{"country code", Country("ch"), sample(), true},
		{"country other", Country("DE"), sample(), false},
		{"country excludes gateway", Country("CH"), gateway, false},
		{"gateway any", Gateway(""), gateway, true},
		{"gateway name", Gateway("Acme Corp"), gateway, true},
		{"gateway other name", Gateway("Other"), gateway, false},
		{"gateway excludes country", Gateway(""), sample(), false},
		{"city exact", City("Zürich"), sample(), true},
		{"city folded is not exact", City("Zurich"), sample(), false},
		{"not under maintenance", NotUnderMaintenance(), sample(), true},
		{"matches exit code", Matches("ch", en), sample(), true},
		{"matches entry code", Matches("IS", en), sample(), true},
		{"code is not substring", Matches("S", nil), sample(), false},
		{"matches city without diacritics", Matches("zur", en), sample(), true},
		{"matches translated city", Matches("ZURIGO", nil), sample(), true},
		{"matches gateway name", Matches("acme", nil), gateway, true},
		{"matches localized country", Matches("switz", en), sample(), true},
		{"country name needs localizer", Matches("switz", nil), sample(), false},
		{"empty query matches", Matches("  ", nil), sample(), true},
		{"matches nothing", Matches("berlin", en), sample(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.server), tt.filter.String())
		})
	}
}

func TestMaintenanceFilter(t *testing.T) {
	t.Parallel()

	s := sample()
	s.Dynamic.Status = 0
	assert.False(t, NotUnderMaintenance().Match(s))
}

func TestFeaturesRejectsOverlap(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		Features(models.FeatureSecureCore|models.FeatureTor, models.FeatureSecureCore)
	})
}

func TestMatchAll(t *testing.T) {
	t.Parallel()

	s := sample()
	assert.True(t, MatchAll(s, nil))
	assert.True(t, MatchAll(s, []Filter{Country("CH"), TierMax(2), City("Zürich")}))
	assert.False(t, MatchAll(s, []Filter{Country("CH"), TierMax(1)}))
}

func TestTierMonotonicity(t *testing.T) {
	t.Parallel()

	for tierValue := 0; tierValue <= 3; tierValue++ {
		s := sample()
		s.Tier = tierValue
		for t1 := 0; t1 <= 3; t1++ {
			for t2 := t1 + 1; t2 <= 4; t2++ {
				if TierMax(t1).Match(s) {
					assert.True(t, TierMax(t2).Match(s), "tier %d in max(%d) but not max(%d)", tierValue, t1, t2)
				}
			}
		}
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tier(<=3)", TierMax(3).String())
	assert.Equal(t, "kind.gateway(Acme)", Gateway("Acme").String())
	assert.Equal(t, "features(+secure_core -none)", Features(models.FeatureSecureCore, models.NoFeatures).String())
	assert.Equal(t, "protocolSupport(all)", ProtocolSupport(models.AllProtocols).String())
}
