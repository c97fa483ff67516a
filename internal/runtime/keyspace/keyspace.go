// Package keyspace maps node identities onto messaging-plane keys and back.
//
// Keys have the shape
//
//	omsn/@v1/<simulation>/<site>/<application>
//
// and a node subscribes to every key of its simulation group with
//
//	omsn/@v1/<simulation>/**
//
// Identity strings are embedded verbatim. A separator inside an identity
// field shifts the positional fields of the resulting key.
package keyspace

import (
	"strings"
)

const (
	// Namespace is the fixed first segment of every key.
	Namespace = "omsn"
	// Version is the fixed second segment of every key.
	Version = "@v1"
	// Separator splits key segments.
	Separator = "/"

	// SingleWildcard matches exactly one segment.
	SingleWildcard = "*"
	// MultiWildcard matches any remaining suffix, including an empty one.
	MultiWildcard = "**"

	// Unknown is used for both sentinel sender fields.
	Unknown = "unknown"

	siteIndex        = 3
	applicationIndex = 4
	minSenderParts   = applicationIndex + 1
	groupParts       = 3
)

// Identity names a bridge node inside a simulation group.
type Identity struct {
	SimulationID  string
	SiteID        string
	ApplicationID string
}

// Sender holds the site and application fields recovered from a key.
type Sender struct {
	SiteID        string `json:"site_id"`
	ApplicationID string `json:"application_id"`
}

// UnknownSender is returned for keys that are too short to carry a sender.
var UnknownSender = Sender{SiteID: Unknown, ApplicationID: Unknown}

func (s Sender) String() string {
	return s.SiteID + Separator + s.ApplicationID
}

// OutboundKey returns the key this node publishes under.
func OutboundKey(id Identity) string {
	return strings.Join([]string{Namespace, Version, id.SimulationID, id.SiteID, id.ApplicationID}, Separator)
}

// InboundPattern returns the pattern matching every key of the simulation group.
func InboundPattern(simulationID string) string {
	return strings.Join([]string{Namespace, Version, simulationID, MultiWildcard}, Separator)
}

// ParseSender extracts the sender fields at their fixed positions. It never
// fails: keys with fewer than five segments yield UnknownSender.
func ParseSender(key string) Sender {
	parts := strings.Split(key, Separator)
	if len(parts) < minSenderParts {
		return UnknownSender
	}
	return Sender{SiteID: parts[siteIndex], ApplicationID: parts[applicationIndex]}
}

// Match reports whether key is covered by pattern. "*" matches one segment
// and "**" matches zero or more segments.
func Match(pattern, key string) bool {
	return matchParts(strings.Split(pattern, Separator), strings.Split(key, Separator))
}

func matchParts(pattern, key []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		if head == MultiWildcard {
			rest := pattern[1:]
			for i := 0; i <= len(key); i++ {
				if matchParts(rest, key[i:]) {
					return true
				}
			}
			return false
		}
		if len(key) == 0 {
			return false
		}
		if head != SingleWildcard && head != key[0] {
			return false
		}
		pattern = pattern[1:]
		key = key[1:]
	}
	return len(key) == 0
}

// Subject converts a key or pattern into a NATS subject. Segments are joined
// with "." and "**" becomes ">".
func Subject(keyOrPattern string) string {
	parts := strings.Split(keyOrPattern, Separator)
	for i, p := range parts {
		if p == MultiWildcard {
			parts[i] = ">"
		}
	}
	return strings.Join(parts, ".")
}

// GroupTopic returns a flat topic shared by every key of the same simulation
// group, for transports whose topic names cannot carry separators or
// wildcards. Characters outside [A-Za-z0-9_-] are replaced with '_'.
func GroupTopic(keyOrPattern string) string {
	parts := strings.SplitN(keyOrPattern, Separator, groupParts+1)
	if len(parts) > groupParts {
		parts = parts[:groupParts]
	}
	return sanitizeTopic(strings.Join(parts, "_"))
}

// ConsumerName returns a broker-safe name unique to the node, used where a
// shared consumer would otherwise split group traffic between nodes.
func ConsumerName(id Identity) string {
	return sanitizeTopic(strings.Join([]string{Namespace, id.SimulationID, id.SiteID, id.ApplicationID}, "-"))
}

func sanitizeTopic(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
