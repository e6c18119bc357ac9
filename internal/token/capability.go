// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/samber/oops"
)

// Capability is one permission carried by a token.
type Capability string

// Capabilities recognised by the token service.
const (
	CapLogin              Capability = "login"
	CapRefresh            Capability = "refresh"
	CapPlay               Capability = "play"
	CapHost               Capability = "host"
	CapIDGet              Capability = "idget"
	CapIDGen              Capability = "idgen"
	CapIDList             Capability = "idlist"
	CapIDDelete           Capability = "iddel"
	CapIDUpdate           Capability = "idupdate"
	CapAccountProperties  Capability = "accprops"
	CapGameplayData       Capability = "gpdata"
	CapMakeHost           Capability = "makehost"
	CapServerReactivate   Capability = "serverreactivate"
	CapGenerate           Capability = "gen"
	CapServerAuthenticate Capability = "srvaurc"
	CapPlayerRefreshLogin Capability = "playerrefreshlogin"

	// CapMaster is reserved for operator tokens and grants every capability.
	CapMaster Capability = "master"
)

var known = map[Capability]struct{}{
	CapLogin:              {},
	CapRefresh:            {},
	CapPlay:               {},
	CapHost:               {},
	CapIDGet:              {},
	CapIDGen:              {},
	CapIDList:             {},
	CapIDDelete:           {},
	CapIDUpdate:           {},
	CapAccountProperties:  {},
	CapGameplayData:       {},
	CapMakeHost:           {},
	CapServerReactivate:   {},
	CapGenerate:           {},
	CapServerAuthenticate: {},
	CapPlayerRefreshLogin: {},
	CapMaster:             {},
}

// ErrUnknownCapability is returned for capability strings outside the closed set.
var ErrUnknownCapability = errors.New("unknown capability")

// ParseCapability converts s to a Capability. Matching is exact.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !c.Valid() {
		return "", oops.Code("TOKEN_UNKNOWN_CAPABILITY").With("capability", s).Wrap(ErrUnknownCapability)
	}
	return c, nil
}

// ParseCapabilities parses a comma-separated capability list.
func ParseCapabilities(s string) (Capabilities, error) {
	var out []Capability
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := ParseCapability(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return NewCapabilities(out...), nil
}

// Valid reports whether c belongs to the closed capability set.
func (c Capability) Valid() bool {
	_, ok := known[c]
	return ok
}

// Capabilities is a sorted, de-duplicated capability set.
type Capabilities []Capability

// NewCapabilities builds a set from caps.
func NewCapabilities(caps ...Capability) Capabilities {
	out := slices.Clone(caps)
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether the set grants c. CapMaster grants everything.
func (cs Capabilities) Has(c Capability) bool {
	for _, have := range cs {
		if have == c || have == CapMaster {
			return true
		}
	}
	return false
}

// Strings returns the capabilities as plain strings.
func (cs Capabilities) Strings() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// UnmarshalJSON rejects tokens that carry capabilities outside the closed set.
func (cs *Capabilities) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := make([]Capability, 0, len(raw))
	for _, s := range raw {
		c, err := ParseCapability(s)
		if err != nil {
			return err
		}
		parsed = append(parsed, c)
	}
	*cs = NewCapabilities(parsed...)
	return nil
}
