package domain

import (
	"path"
	"strings"
)

// Kind identifies the domain an event belongs to.
type Kind string

const (
	KindProperty       Kind = "property"
	KindMarket         Kind = "market"
	KindInfrastructure Kind = "infrastructure"
)

// Channel is a named delivery topic on the broker and on the client wire protocol.
type Channel string

const (
	ChannelPropertyUpdates       Channel = "property-updates"
	ChannelMarketUpdates         Channel = "market-updates"
	ChannelInfrastructureUpdates Channel = "infrastructure-updates"
)

var kindChannels = map[Kind]Channel{
	KindProperty:       ChannelPropertyUpdates,
	KindMarket:         ChannelMarketUpdates,
	KindInfrastructure: ChannelInfrastructureUpdates,
}

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindProperty, KindMarket, KindInfrastructure}
}

// Channels returns every delivery channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelPropertyUpdates, ChannelMarketUpdates, ChannelInfrastructureUpdates}
}

// ChannelFor returns the channel producers publish the given kind on.
func ChannelFor(kind Kind) (Channel, bool) {
	ch, ok := kindChannels[kind]
	return ch, ok
}

// KindFor is the inverse of ChannelFor.
func KindFor(channel Channel) (Kind, bool) {
	for kind, ch := range kindChannels {
		if ch == channel {
			return kind, true
		}
	}
	return "", false
}

// ParseKind normalizes user supplied kind names ("Property", " markets ").
func ParseKind(raw string) (Kind, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	switch trimmed {
	case "property", "properties":
		return KindProperty, true
	case "market", "markets":
		return KindMarket, true
	case "infrastructure", "infrastructures", "infra":
		return KindInfrastructure, true
	default:
		return "", false
	}
}

// IsKnownChannel reports whether the channel belongs to the static channel set.
func IsKnownChannel(channel Channel) bool {
	_, ok := KindFor(channel)
	return ok
}

// MatchChannels resolves a glob pattern ("*-updates", "market-updates") against the
// static channel set.
func MatchChannels(pattern string) []Channel {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	matched := make([]Channel, 0, len(kindChannels))
	for _, ch := range Channels() {
		if ok, err := path.Match(pattern, string(ch)); err == nil && ok {
			matched = append(matched, ch)
		}
	}
	return matched
}
