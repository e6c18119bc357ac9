// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package serverlist

import (
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Status properties reported by servers and understood by the players filter.
const (
	PropPlayersCurrent = "players.current"
	PropPlayersMax     = "players.max"
)

// Filter selects listings. All keys must match.
//
// Reserved keys compare listing fields: id, version, protocol,
// phoenixProtocol, ownerId, port, address and players. Other keys match
// status properties: "==key" equals, "!=key" differs, "=~key" contains,
// "!~key" does not contain, and a bare key contains. Property comparisons
// ignore case.
type Filter map[string]string

// Match reports whether e passes every condition of f.
func (f Filter) Match(e *Entry) bool {
	for key, want := range f {
		if !matchKey(e, key, want) {
			return false
		}
	}
	return true
}

func matchKey(e *Entry, key, want string) bool {
	switch key {
	case "id":
		return e.ServerID == want
	case "version":
		return matchVersion(e.Version, want)
	case "protocol":
		return strconv.Itoa(e.Protocol) == want
	case "phoenixProtocol":
		return strconv.Itoa(e.PhoenixProtocol) == want
	case "ownerId":
		return e.OwnerID == want
	case "port":
		return strconv.Itoa(e.Port) == want
	case "address":
		return slices.Contains(e.Addresses, want)
	case "players":
		return matchPlayers(e.Properties, want)
	}

	if len(key) > 2 {
		raw, ok := e.Properties[key[2:]]
		value, needle := strings.ToLower(raw), strings.ToLower(want)
		switch key[:2] {
		case "==":
			return ok && value == needle
		case "!=":
			return !ok || value != needle
		case "=~":
			return ok && strings.Contains(value, needle)
		case "!~":
			return !ok || !strings.Contains(value, needle)
		}
	}
	value, ok := e.Properties[key]
	return ok && strings.Contains(strings.ToLower(value), strings.ToLower(want))
}

// matchVersion accepts an exact version or a semver constraint such as
// ">= 1.2, < 2".
func matchVersion(have, want string) bool {
	if strings.EqualFold(have, want) {
		return true
	}
	c, err := semver.NewConstraint(want)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(have)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// matchPlayers evaluates "notfull", "<n", "<=n", ">n", ">=n" or "n"
// against the players.current and players.max properties.
func matchPlayers(props map[string]string, want string) bool {
	current, err := strconv.Atoi(props[PropPlayersCurrent])
	if err != nil {
		return false
	}

	if strings.EqualFold(want, "notfull") {
		raw, ok := props[PropPlayersMax]
		if !ok {
			return true
		}
		limit, err := strconv.Atoi(raw)
		return err == nil && current < limit
	}

	for _, op := range []string{"<=", ">=", "<", ">"} {
		rest, ok := strings.CutPrefix(want, op)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return false
		}
		switch op {
		case "<=":
			return current <= n
		case ">=":
			return current >= n
		case "<":
			return current < n
		default:
			return current > n
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(want))
	return err == nil && current == n
}
