package models

import (
	"fmt"
	"strings"
)

// Features is the capability bit set of a logical server.
type Features uint32

const (
	FeatureSecureCore Features = 1 << iota
	FeatureTor
	FeatureP2P
	FeatureStreaming
	FeatureIPv6
	FeatureRestricted
	FeaturePartner
)

// NoFeatures is the empty feature set.
const NoFeatures Features = 0

var featureNames = []struct {
	feature Features
	name    string
}{
	{FeatureSecureCore, "secure_core"},
	{FeatureTor, "tor"},
	{FeatureP2P, "p2p"},
	{FeatureStreaming, "streaming"},
	{FeatureIPv6, "ipv6"},
	{FeatureRestricted, "restricted"},
	{FeaturePartner, "partner"},
}

// Union returns the features present in either set.
func (f Features) Union(other Features) Features {
	return f | other
}

// Intersection returns the features present in both sets.
func (f Features) Intersection(other Features) Features {
	return f & other
}

// Contains reports whether every feature of other is in f.
func (f Features) Contains(other Features) bool {
	return f&other == other
}

// IsDisjoint reports whether f and other share no feature.
func (f Features) IsDisjoint(other Features) bool {
	return f&other == 0
}

func (f Features) String() string {
	if f == NoFeatures {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// Names returns the feature names in bit order.
func (f Features) Names() []string {
	names := []string{}
	for _, fn := range featureNames {
		if f.Contains(fn.feature) {
			names = append(names, fn.name)
		}
	}
	return names
}

// ParseFeatures parses names separated by "," or "|", as produced by
// String. The empty string and "none" yield NoFeatures.
func ParseFeatures(s string) (Features, error) {
	set := NoFeatures
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" {
			continue
		}
		found := false
		for _, fn := range featureNames {
			if fn.name == name {
				set |= fn.feature
				found = true
				break
			}
		}
		if !found {
			return NoFeatures, fmt.Errorf("unknown feature %q", name)
		}
	}
	return set, nil
}
